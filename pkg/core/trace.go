package core

import (
	"time"

	"github.com/google/uuid"
)

// TraceEventType identifies a significant step in an invocation's lifecycle.
type TraceEventType string

const (
	EventCapabilityInvoked TraceEventType = "capability.invoked"
	EventPolicyEvaluated   TraceEventType = "policy.evaluated"
	EventConsentRequested  TraceEventType = "consent.requested"
	EventConsentGranted    TraceEventType = "consent.granted"
	EventConsentDenied     TraceEventType = "consent.denied"
	EventConsentRevoked    TraceEventType = "consent.revoked"
	EventStateTransition   TraceEventType = "state.transition"
	EventCapabilityResult  TraceEventType = "capability.result"
	EventReceiptIssued     TraceEventType = "receipt.issued"
	EventErrorRaised       TraceEventType = "error.raised"
)

// TraceEvent is one immutable, append-only record of a step during an
// invocation. All events of one invocation share the trace id.
type TraceEvent struct {
	ID        string            `json:"id"`
	TraceID   string            `json:"traceId"`
	SpanID    string            `json:"spanId"`
	Timestamp time.Time         `json:"timestamp"`
	Type      TraceEventType    `json:"type"`
	Payload   map[string]any    `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewTraceEvent builds an event bound to the invocation context.
func NewTraceEvent(eventType TraceEventType, ictx InvocationContext, payload map[string]any) TraceEvent {
	return TraceEvent{
		ID:        uuid.NewString(),
		TraceID:   ictx.TraceID,
		SpanID:    uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Payload:   payload,
		Metadata:  map[string]string{"sessionId": ictx.SessionID},
	}
}
