// Package statemachine enforces a case's lifecycle against a declarative
// state model. One Machine instance tracks one case; the runtime assumes
// a single writer per case at a time.
package statemachine

import (
	"fmt"

	"github.com/govlegible/civitas/pkg/artefact"
	cerr "github.com/govlegible/civitas/pkg/errors"
)

// Machine is a per-case instance bound to a state model definition.
type Machine struct {
	def     *artefact.StateModelDefinition
	current string
}

// AllowedTransition is one edge a case may take from its current state.
type AllowedTransition struct {
	To      string `json:"to"`
	Trigger string `json:"trigger"`
}

// Result reports the outcome of a transition attempt. A disallowed
// transition is a reported failure, never a thrown fault; the case state
// is unchanged on failure.
type Result struct {
	Success   bool   `json:"success"`
	FromState string `json:"fromState"`
	ToState   string `json:"toState,omitempty"`
	Trigger   string `json:"trigger"`
	Error     string `json:"error,omitempty"`
}

// New creates a machine positioned at the model's initial state.
func New(def *artefact.StateModelDefinition) (*Machine, error) {
	if def == nil {
		return nil, cerr.Newf(cerr.CodeConfiguration, "state model is nil")
	}
	initial := def.InitialState()
	if initial == "" {
		return nil, cerr.Newf(cerr.CodeIntegrity, "state model declares no initial state")
	}
	return &Machine{def: def, current: initial}, nil
}

// Resume creates a machine positioned at a known state, so a persisted
// case can continue without replaying every transition.
func Resume(def *artefact.StateModelDefinition, stateID string) (*Machine, error) {
	m, err := New(def)
	if err != nil {
		return nil, err
	}
	if _, ok := def.StateByID(stateID); !ok {
		return nil, cerr.Newf(cerr.CodeInput, "unknown state %q", stateID)
	}
	m.current = stateID
	return m, nil
}

// CurrentState returns the case's live state id.
func (m *Machine) CurrentState() string {
	return m.current
}

// AllowedTransitions lists the edges leaving the current state.
func (m *Machine) AllowedTransitions() []AllowedTransition {
	var out []AllowedTransition
	for _, tr := range m.def.Transitions {
		if tr.From == m.current {
			out = append(out, AllowedTransition{To: tr.To, Trigger: tr.Trigger})
		}
	}
	return out
}

// Transition attempts to advance the case. It succeeds iff exactly one
// transition leaves the current state with the given trigger and, when a
// condition is declared, it holds against the supplied facts.
func (m *Machine) Transition(trigger string, facts map[string]any) Result {
	result := Result{FromState: m.current, Trigger: trigger}

	var matches []artefact.Transition
	for _, tr := range m.def.Transitions {
		if tr.From == m.current && tr.Trigger == trigger {
			matches = append(matches, tr)
		}
	}
	switch {
	case len(matches) == 0:
		result.Error = fmt.Sprintf("no transition %q from state %q", trigger, m.current)
		return result
	case len(matches) > 1:
		result.Error = fmt.Sprintf("ambiguous trigger %q from state %q", trigger, m.current)
		return result
	}

	tr := matches[0]
	if tr.Condition != nil {
		ok, note := tr.Condition.Eval(facts)
		if !ok {
			reason := note
			if reason == "" {
				reason = fmt.Sprintf("condition on field %q not met", tr.Condition.Field)
			}
			result.Error = fmt.Sprintf("transition %q blocked: %s", trigger, reason)
			return result
		}
	}

	m.current = tr.To
	result.Success = true
	result.ToState = tr.To
	return result
}

// IsTerminal reports whether the current state is declared terminal.
func (m *Machine) IsTerminal() bool {
	state, ok := m.def.StateByID(m.current)
	return ok && state.Type == artefact.StateTypeTerminal
}

// RequiresReceipt reports whether the current state requires a receipt.
func (m *Machine) RequiresReceipt() bool {
	state, ok := m.def.StateByID(m.current)
	return ok && state.Receipt
}

// Reset returns the machine to the initial state. Intended for demo and
// test flows, not production case recovery.
func (m *Machine) Reset() {
	m.current = m.def.InitialState()
}
