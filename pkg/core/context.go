package core

import "github.com/google/uuid"

// InvocationContext identifies one caller interaction. It is carried
// through every invocation and never mutated.
type InvocationContext struct {
	SessionID string `json:"sessionId"`
	TraceID   string `json:"traceId"`
	UserID    string `json:"userId,omitempty"`
}

// NewInvocationContext builds a context with fresh session and trace ids.
func NewInvocationContext(userID string) InvocationContext {
	return InvocationContext{
		SessionID: uuid.NewString(),
		TraceID:   uuid.NewString(),
		UserID:    userID,
	}
}
