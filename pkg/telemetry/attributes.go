// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for civitas spans. These follow OpenTelemetry
// naming conventions where applicable.
const (
	AttrCapabilityID = "civitas.capability.id"
	AttrServiceID    = "civitas.service.id"
	AttrTraceID      = "civitas.trace.id"
	AttrSessionID    = "civitas.session.id"
	AttrCitizenID    = "civitas.citizen.id"

	AttrPolicyEligible = "civitas.policy.eligible"
	AttrPolicyFailed   = "civitas.policy.failed_rules"

	AttrStateFrom    = "civitas.state.from"
	AttrStateTo      = "civitas.state.to"
	AttrStateTrigger = "civitas.state.trigger"

	AttrConsentGrant   = "civitas.consent.grant"
	AttrConsentGranted = "civitas.consent.granted"

	AttrOutcome    = "civitas.outcome"
	AttrReceiptID  = "civitas.receipt.id"
	AttrDurationMs = "civitas.duration_ms"
)

// InvocationAttributes returns common attributes for invocation spans.
func InvocationAttributes(capabilityID, traceID, sessionID, citizenID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrCapabilityID, capabilityID),
		attribute.String(AttrTraceID, traceID),
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(AttrSessionID, sessionID))
	}
	if citizenID != "" {
		attrs = append(attrs, attribute.String(AttrCitizenID, citizenID))
	}
	return attrs
}

// PolicyAttributes returns attributes for a policy evaluation span.
func PolicyAttributes(eligible bool, failedRules int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(AttrPolicyEligible, eligible),
		attribute.Int(AttrPolicyFailed, failedRules),
	}
}

// TransitionAttributes returns attributes for a state transition span.
func TransitionAttributes(from, to, trigger string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrStateFrom, from),
		attribute.String(AttrStateTrigger, trigger),
	}
	if to != "" {
		attrs = append(attrs, attribute.String(AttrStateTo, to))
	}
	return attrs
}

// ConsentAttributes returns attributes for a consent decision span.
func ConsentAttributes(grantID string, granted bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrConsentGrant, grantID),
		attribute.Bool(AttrConsentGranted, granted),
	}
}

// OutcomeAttributes returns attributes describing how an invocation ended.
func OutcomeAttributes(outcome, receiptID string, durationMs float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrOutcome, outcome),
	}
	if receiptID != "" {
		attrs = append(attrs, attribute.String(AttrReceiptID, receiptID))
	}
	if durationMs > 0 {
		attrs = append(attrs, attribute.Float64(AttrDurationMs, durationMs))
	}
	return attrs
}
