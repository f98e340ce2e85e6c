package consent

import (
	"testing"

	"github.com/govlegible/civitas/pkg/artefact"
)

func incomeModel() *artefact.ConsentModel {
	no := false
	return &artefact.ConsentModel{
		Grants: []artefact.Grant{
			{ID: "share-income-data", Purpose: "Assess entitlement", DataShared: []string{"income", "savings"}, Required: true},
			{ID: "share-medical-record", DataShared: []string{"conditions"}, Required: true},
			{ID: "share-contact-details", DataShared: []string{"email"}, Required: false},
			{ID: "fraud-check", DataShared: []string{"nino"}, Required: false, Revocable: &no},
		},
	}
}

func TestRequiredOptionalPending(t *testing.T) {
	m := New(incomeModel())
	if got := len(m.RequiredGrants()); got != 2 {
		t.Fatalf("expected 2 required grants, got %d", got)
	}
	if got := len(m.OptionalGrants()); got != 2 {
		t.Fatalf("expected 2 optional grants, got %d", got)
	}
	if got := len(m.PendingGrants()); got != 4 {
		t.Fatalf("expected all grants pending, got %d", got)
	}

	if _, err := m.RecordDecision("share-income-data", true, ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := len(m.PendingGrants()); got != 3 {
		t.Fatalf("expected 3 pending after one decision, got %d", got)
	}
}

func TestAllRequiredGranted(t *testing.T) {
	m := New(incomeModel())
	if m.AllRequiredGranted() {
		t.Fatal("nothing decided yet")
	}
	m.RecordDecision("share-income-data", true, "")
	if m.AllRequiredGranted() {
		t.Fatal("one required grant still undecided")
	}
	m.RecordDecision("share-medical-record", true, "")
	if !m.AllRequiredGranted() {
		t.Fatal("all required grants are granted")
	}

	// Revoking a required grant flips the answer back.
	if _, err := m.Revoke("share-income-data", "changed my mind"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if m.AllRequiredGranted() {
		t.Fatal("revocation must flip AllRequiredGranted to false")
	}
}

func TestUndecidedGrantIsNotConsent(t *testing.T) {
	m := New(incomeModel())
	if m.HasConsent("share-contact-details") {
		t.Fatal("undecided grant must not count as consent")
	}
	m.RecordDecision("share-contact-details", false, "no thanks")
	if m.HasConsent("share-contact-details") {
		t.Fatal("denied grant must not count as consent")
	}
}

func TestRecordDecisionOverwrites(t *testing.T) {
	m := New(incomeModel())
	first, _ := m.RecordDecision("share-income-data", false, "initially denied")
	second, _ := m.RecordDecision("share-income-data", true, "reconsidered")
	if !m.HasConsent("share-income-data") {
		t.Fatal("latest decision should win")
	}
	if first.Timestamp.IsZero() || second.Timestamp.IsZero() {
		t.Fatal("decisions must be timestamped")
	}
	if got := len(m.Decisions()); got != 1 {
		t.Fatalf("overwrite must not duplicate decisions, got %d", got)
	}
}

func TestUnknownGrant(t *testing.T) {
	m := New(incomeModel())
	if _, err := m.RecordDecision("ghost", true, ""); err == nil {
		t.Fatal("unknown grant must be an input error")
	}
	if m.DataShared("ghost") != nil {
		t.Fatal("unknown grant shares nothing")
	}
}

func TestNonRevocableGrant(t *testing.T) {
	m := New(incomeModel())
	m.RecordDecision("fraud-check", true, "")
	if _, err := m.Revoke("fraud-check", ""); err == nil {
		t.Fatal("non-revocable granted permission must refuse revocation")
	}
	if !m.HasConsent("fraud-check") {
		t.Fatal("failed revocation must leave the grant intact")
	}
}

func TestDataShared(t *testing.T) {
	m := New(incomeModel())
	got := m.DataShared("share-income-data")
	if len(got) != 2 || got[0] != "income" {
		t.Fatalf("unexpected data fields: %v", got)
	}
}

func TestResume(t *testing.T) {
	m := New(incomeModel())
	m.RecordDecision("share-income-data", true, "")
	m.RecordDecision("share-medical-record", true, "")

	restored := Resume(incomeModel(), m.Decisions())
	if !restored.AllRequiredGranted() {
		t.Fatal("resumed manager should carry prior decisions")
	}
	if got := len(restored.PendingGrants()); got != 2 {
		t.Fatalf("expected 2 pending after resume, got %d", got)
	}
}
