package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// Outcome classifies how an invocation concluded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
	OutcomeHandoff Outcome = "handoff"
)

// Citizen identifies the person a receipt was issued for.
type Citizen struct {
	ID string `json:"id"`
}

// Receipt is the durable proof-of-action for a completed invocation.
// Issued exactly once per successful invocation, immutable once created.
type Receipt struct {
	ID           string         `json:"id"`
	TraceID      string         `json:"traceId"`
	CapabilityID string         `json:"capabilityId"`
	Timestamp    time.Time      `json:"timestamp"`
	Citizen      Citizen        `json:"citizen"`
	Action       string         `json:"action"`
	Outcome      Outcome        `json:"outcome"`
	Details      map[string]any `json:"details,omitempty"`
	DataShared   []string       `json:"dataShared,omitempty"`
}

// NewReceipt issues a receipt for the given invocation.
func NewReceipt(ictx InvocationContext, capabilityID string, outcome Outcome) Receipt {
	citizen := ictx.UserID
	if citizen == "" {
		citizen = "anonymous"
	}
	return Receipt{
		ID:           uuid.NewString(),
		TraceID:      ictx.TraceID,
		CapabilityID: capabilityID,
		Timestamp:    time.Now().UTC(),
		Citizen:      Citizen{ID: citizen},
		Action:       capabilityID,
		Outcome:      outcome,
	}
}

// CanonicalJSON renders the receipt as RFC 8785 canonical JSON so two
// serializations of the same receipt are byte-identical.
func (r Receipt) CanonicalJSON() ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
