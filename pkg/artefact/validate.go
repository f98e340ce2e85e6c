package artefact

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	cerr "github.com/govlegible/civitas/pkg/errors"
)

// validateService runs every load-time check for one service. Integrity
// problems are caught here so invocation time never sees an inconsistent
// artefact set. The returned error names the service and the failed check.
func validateService(svc *Service) error {
	if err := validateManifest(svc); err != nil {
		return err
	}
	if svc.Policy != nil {
		if err := validatePolicy(svc.ID, svc.Policy); err != nil {
			return err
		}
	}
	if svc.StateModel != nil {
		if err := validateStateModel(svc.ID, svc.StateModel); err != nil {
			return err
		}
	}
	if svc.Consent != nil {
		if err := validateConsent(svc.ID, svc.Consent); err != nil {
			return err
		}
	}
	return nil
}

func validateManifest(svc *Service) error {
	m := svc.Manifest
	required := map[string]string{
		"id":          m.ID,
		"name":        m.Name,
		"description": m.Description,
		"department":  m.Department,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			return cerr.Newf(cerr.CodeConfiguration,
				"service %q: manifest missing required field %q", svc.ID, field).
				WithContext("service", svc.ID).
				WithContext("check", "manifest-required-fields")
		}
	}
	if m.ID != svc.ID {
		return cerr.Newf(cerr.CodeIntegrity,
			"service %q: manifest id %q does not match directory name", svc.ID, m.ID)
	}
	if err := compileSchema(svc.ID, "input_schema", m.InputSchema); err != nil {
		return err
	}
	return compileSchema(svc.ID, "output_schema", m.OutputSchema)
}

func compileSchema(serviceID, kind string, descriptor SchemaDescriptor) error {
	if len(descriptor) == 0 {
		return nil
	}
	raw, err := json.Marshal(descriptor)
	if err != nil {
		return cerr.New(cerr.CodeIntegrity,
			fmt.Sprintf("service %q: %s is not serializable", serviceID, kind), err)
	}
	if _, err := jsonschema.CompileString(serviceID+"/"+kind+".json", string(raw)); err != nil {
		return cerr.New(cerr.CodeIntegrity,
			fmt.Sprintf("service %q: %s is not a valid JSON Schema", serviceID, kind), err)
	}
	return nil
}

func validatePolicy(serviceID string, policy *PolicyRuleset) error {
	seen := make(map[string]bool, len(policy.Rules))
	for _, rule := range policy.Rules {
		if strings.TrimSpace(rule.ID) == "" {
			return cerr.Newf(cerr.CodeIntegrity, "service %q: policy rule without id", serviceID)
		}
		if seen[rule.ID] {
			return cerr.Newf(cerr.CodeIntegrity, "service %q: duplicate rule id %q", serviceID, rule.ID)
		}
		seen[rule.ID] = true
		if !rule.Condition.Operator.Known() {
			return cerr.Newf(cerr.CodeIntegrity,
				"service %q: rule %q uses unknown operator %q", serviceID, rule.ID, rule.Condition.Operator)
		}
	}
	for _, ec := range policy.EdgeCases {
		if !ec.Condition.Operator.Known() {
			return cerr.Newf(cerr.CodeIntegrity,
				"service %q: edge case %q uses unknown operator %q", serviceID, ec.ID, ec.Condition.Operator)
		}
	}
	return nil
}

func validateStateModel(serviceID string, def *StateModelDefinition) error {
	if len(def.States) == 0 {
		return cerr.Newf(cerr.CodeIntegrity, "service %q: state model has no states", serviceID)
	}
	ids := make(map[string]bool, len(def.States))
	initial := 0
	for _, state := range def.States {
		if ids[state.ID] {
			return cerr.Newf(cerr.CodeIntegrity, "service %q: duplicate state id %q", serviceID, state.ID)
		}
		ids[state.ID] = true
		switch state.Type {
		case "", StateTypeInitial, StateTypeTerminal:
		default:
			return cerr.Newf(cerr.CodeIntegrity,
				"service %q: state %q has unknown type %q", serviceID, state.ID, state.Type)
		}
		if state.Type == StateTypeInitial {
			initial++
		}
	}
	if initial != 1 {
		return cerr.Newf(cerr.CodeIntegrity,
			"service %q: state model must declare exactly one initial state, found %d", serviceID, initial)
	}
	for _, tr := range def.Transitions {
		if !ids[tr.From] {
			return cerr.Newf(cerr.CodeIntegrity,
				"service %q: transition %q references undefined state %q", serviceID, tr.Trigger, tr.From)
		}
		if !ids[tr.To] {
			return cerr.Newf(cerr.CodeIntegrity,
				"service %q: transition %q references undefined state %q", serviceID, tr.Trigger, tr.To)
		}
		if strings.TrimSpace(tr.Trigger) == "" {
			return cerr.Newf(cerr.CodeIntegrity,
				"service %q: transition %s->%s has no trigger", serviceID, tr.From, tr.To)
		}
		if tr.Condition != nil && !tr.Condition.Operator.Known() {
			return cerr.Newf(cerr.CodeIntegrity,
				"service %q: transition %q uses unknown operator %q", serviceID, tr.Trigger, tr.Condition.Operator)
		}
	}
	return nil
}

func validateConsent(serviceID string, model *ConsentModel) error {
	seen := make(map[string]bool, len(model.Grants))
	for _, grant := range model.Grants {
		if strings.TrimSpace(grant.ID) == "" {
			return cerr.Newf(cerr.CodeIntegrity, "service %q: consent grant without id", serviceID)
		}
		if seen[grant.ID] {
			return cerr.Newf(cerr.CodeIntegrity, "service %q: duplicate grant id %q", serviceID, grant.ID)
		}
		seen[grant.ID] = true
	}
	return nil
}
