package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/govlegible/civitas/pkg/adapter"
	"github.com/govlegible/civitas/pkg/artefact"
	"github.com/govlegible/civitas/pkg/cases"
	"github.com/govlegible/civitas/pkg/config"
	"github.com/govlegible/civitas/pkg/core"
	"github.com/govlegible/civitas/pkg/invoker"
	"github.com/govlegible/civitas/pkg/policy"
)

type memCaseStore struct {
	byKey map[string]cases.Case
}

func newMemCaseStore() *memCaseStore {
	return &memCaseStore{byKey: make(map[string]cases.Case)}
}

func (s *memCaseStore) Get(_ context.Context, userID, serviceID string) (*cases.Case, error) {
	c, ok := s.byKey[userID+"/"+serviceID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memCaseStore) Put(_ context.Context, c cases.Case) error {
	s.byKey[c.UserID+"/"+c.ServiceID] = c
	return nil
}

func boolPtr(v bool) *bool { return &v }

func submitService() *artefact.Service {
	return &artefact.Service{
		ID: "dwp.apply-benefit",
		Manifest: artefact.CapabilityManifest{
			ID:         "dwp.apply-benefit",
			Name:       "Apply for Employment Support",
			Department: "DWP",
			Handoff:    artefact.Handoff{To: "human-caseworker", When: "edge case flagged"},
		},
		Policy: &artefact.PolicyRuleset{
			Rules: []artefact.Rule{
				{
					ID:             "age-range",
					Condition:      artefact.Condition{Field: "age", Operator: artefact.OpGte, Value: 18},
					ReasonIfFailed: "You must be 18 or over.",
				},
			},
			EdgeCases: []artefact.EdgeCase{
				{
					ID:        "pension-age",
					Condition: artefact.Condition{Field: "age", Operator: artefact.OpGte, Value: 65},
				},
			},
		},
		StateModel: &artefact.StateModelDefinition{
			States: []artefact.State{
				{ID: "not-started", Type: artefact.StateTypeInitial},
				{ID: "decided", Type: artefact.StateTypeTerminal},
			},
			Transitions: []artefact.Transition{
				{From: "not-started", To: "decided", Trigger: "decide"},
			},
		},
		Consent: &artefact.ConsentModel{
			Grants: []artefact.Grant{
				{ID: "share-income-data", DataShared: []string{"income"}, Required: true, Revocable: boolPtr(true)},
			},
		},
	}
}

func runSubmit(t *testing.T, svc *artefact.Service, store cases.Store, content adapter.Adapter, input map[string]any) invoker.Result {
	t.Helper()
	inv := invoker.New()
	if err := inv.RegisterHandler("submit", submitHandler(svc, store, content)); err != nil {
		t.Fatalf("register: %v", err)
	}
	ictx := core.NewInvocationContext("citizen-1")
	return inv.Invoke(context.Background(), "submit", input, ictx)
}

func TestSubmitRecordsConsentAndVerdict(t *testing.T) {
	store := newMemCaseStore()
	result := runSubmit(t, submitService(), store, nil, map[string]any{
		"facts":   map[string]any{"age": 30},
		"consent": map[string]any{"share-income-data": true},
	})
	if !result.Success {
		t.Fatalf("submit failed: %s", result.Error)
	}
	report := result.Output.(map[string]any)
	verdict := report["verdict"].(policy.Verdict)
	if !verdict.Eligible {
		t.Fatalf("expected eligible verdict: %+v", verdict)
	}
	if report["currentState"] != "not-started" {
		t.Fatalf("unexpected state: %v", report["currentState"])
	}
	if result.Receipt == nil || result.Receipt.Outcome != core.OutcomeSuccess {
		t.Fatalf("expected success receipt: %+v", result.Receipt)
	}
	if len(result.Receipt.DataShared) == 0 || result.Receipt.DataShared[0] != "income" {
		t.Fatalf("granted consent must surface shared data on the receipt: %v", result.Receipt.DataShared)
	}

	c, _ := store.Get(context.Background(), "citizen-1", "dwp.apply-benefit")
	if c == nil || len(c.Decisions) != 1 || !c.Decisions[0].Granted {
		t.Fatalf("consent decision not persisted: %+v", c)
	}
}

func TestSubmitWithoutRequiredConsentIsPartial(t *testing.T) {
	result := runSubmit(t, submitService(), newMemCaseStore(), nil, map[string]any{
		"facts": map[string]any{"age": 30},
	})
	if !result.Success {
		t.Fatalf("missing consent is a reportable outcome, not a fault: %s", result.Error)
	}
	if result.Receipt.Outcome != core.OutcomePartial {
		t.Fatalf("expected partial receipt, got %s", result.Receipt.Outcome)
	}
	report := result.Output.(map[string]any)
	pending := report["pendingGrants"].([]string)
	if len(pending) != 1 || pending[0] != "share-income-data" {
		t.Fatalf("unexpected pending grants: %v", pending)
	}
	if _, ok := report["verdict"]; ok {
		t.Fatal("policy must not run before required consent is granted")
	}
}

func TestSubmitIneligibleIsPartial(t *testing.T) {
	result := runSubmit(t, submitService(), newMemCaseStore(), nil, map[string]any{
		"facts":   map[string]any{"age": 15},
		"consent": map[string]any{"share-income-data": true},
	})
	if !result.Success {
		t.Fatalf("submit failed: %s", result.Error)
	}
	if result.Receipt.Outcome != core.OutcomePartial {
		t.Fatalf("expected partial receipt, got %s", result.Receipt.Outcome)
	}
}

func TestSubmitEdgeCaseHandsOff(t *testing.T) {
	result := runSubmit(t, submitService(), newMemCaseStore(), nil, map[string]any{
		"facts":   map[string]any{"age": 70},
		"consent": map[string]any{"share-income-data": true},
	})
	if !result.Success {
		t.Fatalf("submit failed: %s", result.Error)
	}
	if result.Receipt.Outcome != core.OutcomeHandoff {
		t.Fatalf("edge case with a declared handoff must produce a handoff receipt, got %s", result.Receipt.Outcome)
	}
}

func TestSubmitRequiresUserID(t *testing.T) {
	inv := invoker.New()
	if err := inv.RegisterHandler("submit", submitHandler(submitService(), newMemCaseStore(), nil)); err != nil {
		t.Fatalf("register: %v", err)
	}
	result := inv.Invoke(context.Background(), "submit", nil, core.NewInvocationContext(""))
	if result.Success {
		t.Fatal("submit without user_id must fail")
	}
	if result.Receipt != nil {
		t.Fatal("failed submit must not issue a receipt")
	}
}

func TestSubmitRevocationEmitsRevokedEvent(t *testing.T) {
	svc := submitService()
	store := newMemCaseStore()
	inv := invoker.New()
	if err := inv.RegisterHandler("submit", submitHandler(svc, store, nil)); err != nil {
		t.Fatalf("register: %v", err)
	}

	first := inv.Invoke(context.Background(), "submit", map[string]any{
		"facts":   map[string]any{"age": 30},
		"consent": map[string]any{"share-income-data": true},
	}, core.NewInvocationContext("citizen-1"))
	if !first.Success {
		t.Fatalf("grant submit failed: %s", first.Error)
	}

	second := inv.Invoke(context.Background(), "submit", map[string]any{
		"consent": map[string]any{"share-income-data": false},
	}, core.NewInvocationContext("citizen-1"))
	if !second.Success {
		t.Fatalf("revocation submit failed: %s", second.Error)
	}
	var revoked, denied bool
	for _, event := range second.TraceEvents {
		switch event.Type {
		case core.EventConsentRevoked:
			revoked = true
			if event.Payload["grant"] != "share-income-data" {
				t.Fatalf("unexpected grant in revocation event: %v", event.Payload)
			}
		case core.EventConsentDenied:
			denied = true
		}
	}
	if !revoked {
		t.Fatalf("withdrawing a granted consent must emit %s: %+v", core.EventConsentRevoked, second.TraceEvents)
	}
	if denied {
		t.Fatal("a revocation is not a first-time denial")
	}
}

func TestSubmitFreshDenialEmitsDeniedEvent(t *testing.T) {
	result := runSubmit(t, submitService(), newMemCaseStore(), nil, map[string]any{
		"consent": map[string]any{"share-income-data": false},
	})
	if !result.Success {
		t.Fatalf("submit failed: %s", result.Error)
	}
	for _, event := range result.TraceEvents {
		if event.Type == core.EventConsentRevoked {
			t.Fatal("denying a never-granted consent must not report a revocation")
		}
	}
}

type fakeToolRegistrar struct {
	added   []string
	deleted []string
}

func (f *fakeToolRegistrar) AddTool(tool mcp.Tool, _ server.ToolHandlerFunc) {
	f.added = append(f.added, tool.Name)
}

func (f *fakeToolRegistrar) DeleteTools(names ...string) {
	f.deleted = append(f.deleted, names...)
}

func writeSubmitFixture(t *testing.T, root, id string) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := fmt.Sprintf("id: %s\nname: Test Service\ndepartment: Test\ndescription: A test service.\n", id)
	if err := os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestSubmitToolsSyncDropsStaleTools(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeSubmitFixture(t, dir, "dwp.apply-benefit")
	writeSubmitFixture(t, dir, "hmrc.claim-refund")

	store := artefact.NewStore(dir)
	if err := store.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	registry, err := buildAdapters(ctx, config.AdaptersConfig{})
	if err != nil {
		t.Fatalf("build adapters: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := &fakeToolRegistrar{}
	tracker := &submitTools{}
	if err := tracker.Sync(reg, invoker.New(), nil, store, newMemCaseStore(), registry, logger); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(reg.added) != 2 {
		t.Fatalf("expected two submit tools, got %v", reg.added)
	}
	if len(reg.deleted) != 0 {
		t.Fatalf("nothing should be deleted on first sync: %v", reg.deleted)
	}

	if err := os.RemoveAll(filepath.Join(dir, "hmrc.claim-refund")); err != nil {
		t.Fatalf("remove service: %v", err)
	}
	if err := store.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := tracker.Sync(reg, invoker.New(), nil, store, newMemCaseStore(), registry, logger); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if len(reg.deleted) != 1 || reg.deleted[0] != "hmrc_claim_refund_submit" {
		t.Fatalf("the dropped service's submit tool must be deleted: %v", reg.deleted)
	}
	for _, name := range reg.deleted {
		if name == "dwp_apply_benefit_submit" {
			t.Fatal("a surviving service's submit tool must not be deleted")
		}
	}
}

func TestSubmitEnrichesWithGuidance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title": "How to apply"}`))
	}))
	defer server.Close()

	content := adapter.NewContentAdapter(server.URL)
	if err := content.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("init content adapter: %v", err)
	}

	result := runSubmit(t, submitService(), newMemCaseStore(), content, map[string]any{
		"facts":   map[string]any{"age": 30},
		"consent": map[string]any{"share-income-data": true},
	})
	if !result.Success {
		t.Fatalf("submit failed: %s", result.Error)
	}
	report := result.Output.(map[string]any)
	guidance := report["guidance"].(map[string]any)
	if guidance["title"] != "How to apply" {
		t.Fatalf("guidance not attached: %v", report["guidance"])
	}
}
