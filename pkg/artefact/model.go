// Package artefact defines the declarative service definitions the runtime
// loads: capability manifests, policy rulesets, state models, and consent
// models. Artefacts are pure data and immutable once loaded; new services
// are added by dropping in new artefact files, never by writing code.
package artefact

// SchemaDescriptor is a JSON Schema fragment describing a capability's
// input or output shape. Compile-checked at load time.
type SchemaDescriptor map[string]any

// Constraints carries service-level commitments.
type Constraints struct {
	SLA string `yaml:"sla,omitempty" json:"sla,omitempty"`
	Fee string `yaml:"fee,omitempty" json:"fee,omitempty"`
}

// Redress describes how a citizen challenges an outcome.
type Redress struct {
	Process string `yaml:"process,omitempty" json:"process,omitempty"`
	Contact string `yaml:"contact,omitempty" json:"contact,omitempty"`
}

// Handoff describes when and where the service hands a case to people.
type Handoff struct {
	To   string `yaml:"to,omitempty" json:"to,omitempty"`
	When string `yaml:"when,omitempty" json:"when,omitempty"`
}

// Audit carries the service's evidence-keeping requirements.
type Audit struct {
	RetentionDays int      `yaml:"retention_days,omitempty" json:"retentionDays,omitempty"`
	Events        []string `yaml:"events,omitempty" json:"events,omitempty"`
}

// CapabilityManifest is the descriptive artefact for one capability.
// Keyed by ID, a stable human-legible slug such as "dwp.apply-benefit".
type CapabilityManifest struct {
	ID           string           `yaml:"id" json:"id"`
	Name         string           `yaml:"name" json:"name"`
	Version      string           `yaml:"version,omitempty" json:"version,omitempty"`
	Department   string           `yaml:"department" json:"department"`
	Description  string           `yaml:"description" json:"description"`
	InputSchema  SchemaDescriptor `yaml:"input_schema,omitempty" json:"inputSchema,omitempty"`
	OutputSchema SchemaDescriptor `yaml:"output_schema,omitempty" json:"outputSchema,omitempty"`
	Constraints  Constraints      `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Redress      Redress          `yaml:"redress,omitempty" json:"redress,omitempty"`
	Handoff      Handoff          `yaml:"handoff,omitempty" json:"handoff,omitempty"`
	Audit        Audit            `yaml:"audit,omitempty" json:"audit,omitempty"`
	Consent      []string         `yaml:"consent,omitempty" json:"consent,omitempty"`
}

// Rule is one eligibility rule. Rules are evaluated in definition order
// but order never changes the verdict: eligibility means all rules pass.
type Rule struct {
	ID                 string    `yaml:"id" json:"id"`
	Description        string    `yaml:"description,omitempty" json:"description,omitempty"`
	Condition          Condition `yaml:"condition" json:"condition"`
	ReasonIfFailed     string    `yaml:"reason_if_failed,omitempty" json:"reasonIfFailed,omitempty"`
	AlternativeService string    `yaml:"alternative_service,omitempty" json:"alternativeService,omitempty"`
}

// EdgeCase is an informational flag matched independently of the rules.
// A match never changes the eligibility verdict.
type EdgeCase struct {
	ID          string    `yaml:"id" json:"id"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Condition   Condition `yaml:"condition" json:"condition"`
	Action      string    `yaml:"action,omitempty" json:"action,omitempty"`
}

// PolicyRuleset is the eligibility policy for one capability.
type PolicyRuleset struct {
	Rules               []Rule     `yaml:"rules" json:"rules"`
	EdgeCases           []EdgeCase `yaml:"edge_cases,omitempty" json:"edgeCases,omitempty"`
	ExplanationTemplate string     `yaml:"explanation_template,omitempty" json:"explanationTemplate,omitempty"`
}

// State types within a state model.
const (
	StateTypeInitial  = "initial"
	StateTypeTerminal = "terminal"
)

// State is one node of a case lifecycle.
type State struct {
	ID      string `yaml:"id" json:"id"`
	Type    string `yaml:"type,omitempty" json:"type,omitempty"`
	Receipt bool   `yaml:"receipt,omitempty" json:"receipt,omitempty"`
}

// Transition is one legal edge between states, fired by a trigger.
// An optional condition must additionally hold against caller facts.
type Transition struct {
	From      string     `yaml:"from" json:"from"`
	To        string     `yaml:"to" json:"to"`
	Trigger   string     `yaml:"trigger" json:"trigger"`
	Condition *Condition `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// StateModelDefinition is the finite-state definition for a capability.
// Exactly one state is initial; every transition endpoint must resolve.
type StateModelDefinition struct {
	States      []State      `yaml:"states" json:"states"`
	Transitions []Transition `yaml:"transitions" json:"transitions"`
}

// InitialState returns the id of the declared initial state.
func (d *StateModelDefinition) InitialState() string {
	for _, s := range d.States {
		if s.Type == StateTypeInitial {
			return s.ID
		}
	}
	return ""
}

// StateByID looks up a state definition.
func (d *StateModelDefinition) StateByID(id string) (State, bool) {
	for _, s := range d.States {
		if s.ID == id {
			return s, true
		}
	}
	return State{}, false
}

// Grant is one data-sharing permission a capability may request.
type Grant struct {
	ID          string   `yaml:"id" json:"id"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Purpose     string   `yaml:"purpose,omitempty" json:"purpose,omitempty"`
	DataShared  []string `yaml:"data_shared,omitempty" json:"dataShared,omitempty"`
	Required    bool     `yaml:"required,omitempty" json:"required,omitempty"`
	Duration    string   `yaml:"duration,omitempty" json:"duration,omitempty"`
	Revocable   *bool    `yaml:"revocable,omitempty" json:"revocable,omitempty"`
}

// IsRevocable reports whether the grant can be withdrawn. Grants are
// revocable unless the model says otherwise.
func (g Grant) IsRevocable() bool {
	return g.Revocable == nil || *g.Revocable
}

// ConsentModel is the set of grants a capability may request.
// Grant ids are unique within a model.
type ConsentModel struct {
	Grants []Grant `yaml:"grants" json:"grants"`
}

// GrantByID looks up a grant definition.
func (m *ConsentModel) GrantByID(id string) (Grant, bool) {
	for _, g := range m.Grants {
		if g.ID == id {
			return g, true
		}
	}
	return Grant{}, false
}

// Service bundles the artefacts loaded for one service id. The manifest is
// always present; the other artefacts are independently optional.
type Service struct {
	ID         string                `json:"id"`
	Manifest   CapabilityManifest    `json:"manifest"`
	Policy     *PolicyRuleset        `json:"policy,omitempty"`
	StateModel *StateModelDefinition `json:"stateModel,omitempty"`
	Consent    *ConsentModel         `json:"consent,omitempty"`
}
