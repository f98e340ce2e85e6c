// SPDX-License-Identifier: Apache-2.0
// Package invoker is the single auditable choke point through which every
// capability call passes. It resolves a registered handler, surrounds the
// call with trace events, issues a receipt on success, and returns the
// full ordered event list so the caller can forward it to an evidence
// sink. The invoker owns no persistence and never retries.
package invoker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/govlegible/civitas/pkg/core"
	cerr "github.com/govlegible/civitas/pkg/errors"
	"github.com/govlegible/civitas/pkg/telemetry"
)

// Invocation carries one call through its handler. Handlers emit
// intermediate trace events (policy verdicts, state transitions, consent
// decisions) through it; all events share the invocation's trace id.
type Invocation struct {
	CapabilityID string
	Input        map[string]any
	Context      core.InvocationContext

	events     []core.TraceEvent
	dataShared []string
	outcome    core.Outcome
	details    map[string]any
}

// Emit appends a trace event to the invocation's ordered event list.
func (iv *Invocation) Emit(eventType core.TraceEventType, payload map[string]any) {
	iv.events = append(iv.events, core.NewTraceEvent(eventType, iv.Context, payload))
}

// ShareData records data fields exposed during this invocation so the
// receipt can report them.
func (iv *Invocation) ShareData(fields ...string) {
	iv.dataShared = append(iv.dataShared, fields...)
}

// SetOutcome overrides the receipt outcome for deliberately non-success
// terminal results such as a handoff to a human caseworker.
func (iv *Invocation) SetOutcome(outcome core.Outcome, details map[string]any) {
	iv.outcome = outcome
	iv.details = details
}

// Handler executes one capability. It may consult the policy evaluator,
// state machine, and consent manager for its service, and reach external
// systems only through an adapter.
type Handler func(ctx context.Context, iv *Invocation) (any, error)

// Result is the structured outcome of an invocation. TraceEvents holds
// every event emitted for the call in order; a receipt is present only
// when the invocation succeeded.
type Result struct {
	Success     bool              `json:"success"`
	Output      any               `json:"output,omitempty"`
	Error       string            `json:"error,omitempty"`
	Receipt     *core.Receipt     `json:"receipt,omitempty"`
	TraceEvents []core.TraceEvent `json:"traceEvents"`
	Duration    time.Duration     `json:"duration"`
}

// Invoker dispatches capability calls to registered handlers.
type Invoker struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	logger      *slog.Logger
	tracer      trace.Tracer
	invocations metric.Int64Counter
	failures    metric.Int64Counter
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithLogger sets the invoker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Invoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates an empty invoker.
func New(opts ...Option) *Invoker {
	meter := otel.Meter("civitas/invoker")
	invocations, _ := meter.Int64Counter("civitas.invocations",
		metric.WithDescription("Capability invocations started"))
	failures, _ := meter.Int64Counter("civitas.invocation.failures",
		metric.WithDescription("Capability invocations that failed"))

	inv := &Invoker{
		handlers:    make(map[string]Handler),
		logger:      slog.Default(),
		tracer:      otel.Tracer("civitas/invoker"),
		invocations: invocations,
		failures:    failures,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// RegisterHandler binds a handler to a capability id. Registering again
// replaces the previous handler.
func (i *Invoker) RegisterHandler(capabilityID string, handler Handler) error {
	if capabilityID == "" {
		return cerr.Newf(cerr.CodeConfiguration, "capability id is empty")
	}
	if handler == nil {
		return cerr.Newf(cerr.CodeConfiguration, "handler for %q is nil", capabilityID)
	}
	i.mu.Lock()
	i.handlers[capabilityID] = handler
	i.mu.Unlock()
	return nil
}

// Invoke runs one capability call. Event order: capability.invoked, any
// handler-emitted events, then capability.result and receipt.issued on
// success or error.raised on failure. No receipt is ever issued for a
// failed invocation, and handler faults never escape as panics or errors:
// every outcome is a structured Result.
func (i *Invoker) Invoke(ctx context.Context, capabilityID string, input map[string]any, ictx core.InvocationContext) Result {
	ctx, span := i.tracer.Start(ctx, "capability.invoke",
		trace.WithAttributes(telemetry.InvocationAttributes(capabilityID, ictx.TraceID, ictx.SessionID, ictx.UserID)...))
	defer span.End()
	ctx = telemetry.WithAuditTrace(ctx, ictx.TraceID)
	i.invocations.Add(ctx, 1, metric.WithAttributes(attribute.String(telemetry.AttrCapabilityID, capabilityID)))

	iv := &Invocation{
		CapabilityID: capabilityID,
		Input:        input,
		Context:      ictx,
		outcome:      core.OutcomeSuccess,
	}
	iv.Emit(core.EventCapabilityInvoked, map[string]any{
		"capabilityId": capabilityID,
		"sessionId":    ictx.SessionID,
		"inputShape":   summarizeInput(input),
	})

	i.mu.RLock()
	handler, ok := i.handlers[capabilityID]
	i.mu.RUnlock()
	if !ok {
		return i.fail(ctx, iv, 0, fmt.Sprintf("no handler for %q", capabilityID))
	}

	start := time.Now()
	output, err := i.run(ctx, handler, iv)
	elapsed := time.Since(start)
	if err != nil {
		return i.fail(ctx, iv, elapsed, err.Error())
	}

	iv.Emit(core.EventCapabilityResult, map[string]any{
		"capabilityId": capabilityID,
		"durationMs":   elapsed.Milliseconds(),
		"outcome":      string(iv.outcome),
	})

	receipt := core.NewReceipt(ictx, capabilityID, iv.outcome)
	receipt.Details = iv.details
	receipt.DataShared = iv.dataShared
	iv.Emit(core.EventReceiptIssued, map[string]any{
		"receiptId": receipt.ID,
		"outcome":   string(receipt.Outcome),
	})

	recordSpanEvents(span, iv.events)
	span.SetAttributes(telemetry.OutcomeAttributes(string(iv.outcome), receipt.ID, float64(elapsed)/float64(time.Millisecond))...)

	i.logger.InfoContext(ctx, "capability invoked",
		"capability", capabilityID, "outcome", string(iv.outcome), "duration", elapsed)

	return Result{
		Success:     true,
		Output:      output,
		Receipt:     &receipt,
		TraceEvents: iv.events,
		Duration:    elapsed,
	}
}

// run executes the handler, converting a panic into a reported failure so
// no fault crosses the core boundary.
func (i *Invoker) run(ctx context.Context, handler Handler, iv *Invocation) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = cerr.Newf(cerr.CodeInternal, "handler panic: %v", r)
		}
	}()
	return handler(ctx, iv)
}

func (i *Invoker) fail(ctx context.Context, iv *Invocation, elapsed time.Duration, msg string) Result {
	iv.Emit(core.EventErrorRaised, map[string]any{
		"capabilityId": iv.CapabilityID,
		"error":        msg,
		"durationMs":   elapsed.Milliseconds(),
	})
	i.failures.Add(ctx, 1, metric.WithAttributes(attribute.String(telemetry.AttrCapabilityID, iv.CapabilityID)))
	span := trace.SpanFromContext(ctx)
	recordSpanEvents(span, iv.events)
	span.SetAttributes(telemetry.OutcomeAttributes(string(core.OutcomeFailure), "", float64(elapsed)/float64(time.Millisecond))...)
	i.logger.WarnContext(ctx, "capability failed", "capability", iv.CapabilityID, "error", msg)
	return Result{
		Success:     false,
		Error:       msg,
		TraceEvents: iv.events,
		Duration:    elapsed,
	}
}

// recordSpanEvents mirrors the domain trace events onto the invocation
// span so an OTLP backend shows the same story as the evidence trail.
func recordSpanEvents(span trace.Span, events []core.TraceEvent) {
	for _, ev := range events {
		if attrs := spanEventAttributes(ev); attrs != nil {
			span.AddEvent(string(ev.Type), trace.WithAttributes(attrs...))
		}
	}
}

func spanEventAttributes(ev core.TraceEvent) []attribute.KeyValue {
	switch ev.Type {
	case core.EventPolicyEvaluated:
		eligible, _ := ev.Payload["eligible"].(bool)
		failed, _ := ev.Payload["failed"].(int)
		return telemetry.PolicyAttributes(eligible, failed)
	case core.EventStateTransition:
		from, _ := ev.Payload["fromState"].(string)
		to, _ := ev.Payload["toState"].(string)
		trigger, _ := ev.Payload["trigger"].(string)
		return telemetry.TransitionAttributes(from, to, trigger)
	case core.EventConsentRequested, core.EventConsentGranted,
		core.EventConsentDenied, core.EventConsentRevoked:
		grant, _ := ev.Payload["grant"].(string)
		return telemetry.ConsentAttributes(grant, ev.Type == core.EventConsentGranted)
	default:
		return nil
	}
}

// summarizeInput reports the shape of the input, never its values, so the
// invoked event carries no sensitive payload.
func summarizeInput(input map[string]any) map[string]string {
	shape := make(map[string]string, len(input))
	for key, value := range input {
		shape[key] = fmt.Sprintf("%T", value)
	}
	return shape
}
