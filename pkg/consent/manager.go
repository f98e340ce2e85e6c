// Package consent tracks data-sharing decisions for one case against a
// declarative consent model. The manager never assumes consent: a grant
// with no recorded decision is not granted.
package consent

import (
	"time"

	"github.com/govlegible/civitas/pkg/artefact"
	cerr "github.com/govlegible/civitas/pkg/errors"
)

// Decision is one recorded consent choice. Recording again for the same
// grant replaces the prior decision; every decision is timestamped.
type Decision struct {
	GrantID   string    `json:"grantId"`
	Granted   bool      `json:"granted"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Manager is a per-case instance bound to a consent model.
type Manager struct {
	model     *artefact.ConsentModel
	decisions map[string]Decision
}

// New creates a manager with no decisions recorded.
func New(model *artefact.ConsentModel) *Manager {
	return &Manager{
		model:     model,
		decisions: make(map[string]Decision),
	}
}

// Resume creates a manager pre-populated with persisted decisions, so a
// stored case continues where it left off. Decisions for grants the model
// no longer defines are dropped.
func Resume(model *artefact.ConsentModel, decisions []Decision) *Manager {
	m := New(model)
	for _, d := range decisions {
		if _, ok := model.GrantByID(d.GrantID); ok {
			m.decisions[d.GrantID] = d
		}
	}
	return m
}

// RequiredGrants lists the grants the model marks required.
func (m *Manager) RequiredGrants() []artefact.Grant {
	return m.filterGrants(func(g artefact.Grant) bool { return g.Required })
}

// OptionalGrants lists the grants the model does not require.
func (m *Manager) OptionalGrants() []artefact.Grant {
	return m.filterGrants(func(g artefact.Grant) bool { return !g.Required })
}

// PendingGrants lists grants with no recorded decision.
func (m *Manager) PendingGrants() []artefact.Grant {
	return m.filterGrants(func(g artefact.Grant) bool {
		_, decided := m.decisions[g.ID]
		return !decided
	})
}

func (m *Manager) filterGrants(keep func(artefact.Grant) bool) []artefact.Grant {
	var out []artefact.Grant
	for _, g := range m.model.Grants {
		if keep(g) {
			out = append(out, g)
		}
	}
	return out
}

// RecordDecision records a grant or denial. Recording is an idempotent
// overwrite: a later decision replaces the earlier one, and each recording
// is itself an auditable event for the caller to trace.
func (m *Manager) RecordDecision(grantID string, granted bool, reason string) (Decision, error) {
	grant, ok := m.model.GrantByID(grantID)
	if !ok {
		return Decision{}, cerr.Newf(cerr.CodeInput, "unknown grant %q", grantID)
	}
	if !granted {
		if prior, decided := m.decisions[grantID]; decided && prior.Granted && !grant.IsRevocable() {
			return Decision{}, cerr.Newf(cerr.CodeInput, "grant %q is not revocable", grantID)
		}
	}
	decision := Decision{
		GrantID:   grantID,
		Granted:   granted,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	m.decisions[grantID] = decision
	return decision, nil
}

// Revoke withdraws a previously granted permission.
func (m *Manager) Revoke(grantID, reason string) (Decision, error) {
	return m.RecordDecision(grantID, false, reason)
}

// HasConsent reports whether the grant has an affirmative decision.
// An undecided grant is not consent.
func (m *Manager) HasConsent(grantID string) bool {
	d, ok := m.decisions[grantID]
	return ok && d.Granted
}

// AllRequiredGranted reports whether every required grant has an
// affirmative decision on record.
func (m *Manager) AllRequiredGranted() bool {
	for _, g := range m.model.Grants {
		if g.Required && !m.HasConsent(g.ID) {
			return false
		}
	}
	return true
}

// DataShared returns the data fields a grant covers, for receipt
// population. Unknown grants share nothing.
func (m *Manager) DataShared(grantID string) []string {
	grant, ok := m.model.GrantByID(grantID)
	if !ok {
		return nil
	}
	return grant.DataShared
}

// Decisions returns a snapshot of recorded decisions in grant-definition
// order, for persistence.
func (m *Manager) Decisions() []Decision {
	var out []Decision
	for _, g := range m.model.Grants {
		if d, ok := m.decisions[g.ID]; ok {
			out = append(out, d)
		}
	}
	return out
}
