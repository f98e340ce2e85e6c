package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestInitStdout(t *testing.T) {
	shutdown, err := Init("civitas-test", "0.0.1")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitUnknownExporter(t *testing.T) {
	if _, err := InitWithConfig("civitas-test", "0.0.1", Config{Exporter: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestInitOTLPRequiresEndpoint(t *testing.T) {
	if _, err := InitWithConfig("civitas-test", "0.0.1", Config{Exporter: "otlp"}); err == nil {
		t.Fatal("expected error when otlp endpoint is missing")
	}
}

func TestConfigureSlogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "json")

	logger.Info("quiet")
	logger.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatal("info record should be suppressed at warn level")
	}
	if !strings.Contains(out, "loud") {
		t.Fatal("warn record missing")
	}
}

func TestConfigureSlogTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "text")
	logger.Info("hello", "capability", "dwp_apply_benefit_check_eligibility")
	if !strings.Contains(buf.String(), "capability=dwp_apply_benefit_check_eligibility") {
		t.Fatalf("unexpected text output: %s", buf.String())
	}
}

func TestSlogCarriesAuditTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	ctx := WithAuditTrace(context.Background(), "trace-abc")
	logger.InfoContext(ctx, "capability invoked")
	if !strings.Contains(buf.String(), `"audit_trace_id":"trace-abc"`) {
		t.Fatalf("audit trail id missing from record: %s", buf.String())
	}

	buf.Reset()
	logger.Info("no context")
	if strings.Contains(buf.String(), "audit_trace_id") {
		t.Fatalf("record without a bound id should not carry the attribute: %s", buf.String())
	}
}

func TestAuditTraceFromContext(t *testing.T) {
	if got := AuditTraceFromContext(context.Background()); got != "" {
		t.Fatalf("unbound context should yield nothing, got %q", got)
	}
	ctx := WithAuditTrace(context.Background(), "trace-1")
	if got := AuditTraceFromContext(ctx); got != "trace-1" {
		t.Fatalf("unexpected id: %q", got)
	}
	if WithAuditTrace(context.Background(), "") != context.Background() {
		t.Fatal("empty id should leave the context untouched")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestInvocationAttributes(t *testing.T) {
	attrs := attrMap(InvocationAttributes("dwp_apply_benefit_check_eligibility", "trace-1", "sess-1", ""))
	if attrs[AttrCapabilityID].AsString() != "dwp_apply_benefit_check_eligibility" {
		t.Fatal("capability attribute missing")
	}
	if _, ok := attrs[AttrCitizenID]; ok {
		t.Fatal("empty citizen id should be omitted")
	}
}

func TestTransitionAttributes(t *testing.T) {
	attrs := attrMap(TransitionAttributes("not-started", "", "verify-identity"))
	if _, ok := attrs[AttrStateTo]; ok {
		t.Fatal("failed transition should omit the target state")
	}
	if attrs[AttrStateTrigger].AsString() != "verify-identity" {
		t.Fatal("trigger attribute missing")
	}
}

func TestOutcomeAttributes(t *testing.T) {
	attrs := attrMap(OutcomeAttributes("success", "receipt-1", 12.5))
	if attrs[AttrOutcome].AsString() != "success" {
		t.Fatal("outcome attribute missing")
	}
	if attrs[AttrReceiptID].AsString() != "receipt-1" {
		t.Fatal("receipt attribute missing")
	}
	if attrs[AttrDurationMs].AsFloat64() != 12.5 {
		t.Fatal("duration attribute missing")
	}
}
