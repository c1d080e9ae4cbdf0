package matcher

import (
	"testing"
	"time"

	"bank-reconciliation-engine/internal/models"

	"github.com/shopspring/decimal"
)

func TestNewMatchingEngine(t *testing.T) {
	engine := NewMatchingEngine(nil)
	if engine == nil {
		t.Fatal("expected engine to be created")
	}
	if engine.Config.DateToleranceDays != 3 {
		t.Errorf("expected default config, got date tolerance %d", engine.Config.DateToleranceDays)
	}

	custom := StrictMatchingConfig()
	engine = NewMatchingEngine(custom)
	if engine.Config.DateToleranceDays != custom.DateToleranceDays {
		t.Error("expected custom config to be used")
	}
}

func TestReconcileEmptyInputs(t *testing.T) {
	engine := NewMatchingEngine(nil)

	result, err := engine.Reconcile(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Errorf("expected no matches, got %d", len(result.Matches))
	}
	if result.Summary.TotalTransactions != 0 || result.Summary.TotalEntries != 0 {
		t.Error("expected empty summary")
	}
}

func TestReconcileInvalidConfig(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.Config.MinConfidenceScore = 5.0

	if _, err := engine.Reconcile(nil, nil); err == nil {
		t.Error("expected error for invalid configuration")
	}
}

func TestReconcileFirstFit(t *testing.T) {
	engine := NewMatchingEngine(nil)
	date := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	tx := testTransaction("TX1", 500.00, date, "Abonnement logiciel")
	// Both entries qualify; the supplied order decides, and the scan stops at
	// the first hit.
	first := testEntry("JE1", 500.00, 0, date, "Abonnement logiciel")
	second := testEntry("JE2", 500.00, 0, date, "Abonnement logiciel")

	result, err := engine.Reconcile(
		[]*models.BankTransaction{tx},
		[]*models.JournalEntry{first, second},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Matches))
	}
	if result.Matches[0].JournalEntry.ID != "JE1" {
		t.Errorf("expected first entry to win, got %s", result.Matches[0].JournalEntry.ID)
	}
	if len(result.UnmatchedEntries) != 1 || result.UnmatchedEntries[0].ID != "JE2" {
		t.Error("expected JE2 to remain unmatched")
	}
}

func TestReconcileOneShotConsumption(t *testing.T) {
	engine := NewMatchingEngine(nil)
	date := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	// Two transactions compete for a single qualifying entry.
	tx1 := testTransaction("TX1", 320.00, date, "Facture transport")
	tx2 := testTransaction("TX2", 320.00, date, "Facture transport")
	entry := testEntry("JE1", 320.00, 0, date, "Facture transport")

	result, err := engine.Reconcile(
		[]*models.BankTransaction{tx1, tx2},
		[]*models.JournalEntry{entry},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Matches))
	}
	if result.Matches[0].BankTransaction.ID != "TX1" {
		t.Errorf("expected TX1 to consume the entry, got %s", result.Matches[0].BankTransaction.ID)
	}
	if len(result.UnmatchedTransactions) != 1 || result.UnmatchedTransactions[0].ID != "TX2" {
		t.Error("expected TX2 to remain unmatched")
	}
}

func TestReconcileEntryStaysAvailableAfterLowScore(t *testing.T) {
	engine := NewMatchingEngine(nil)
	date := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	// JE1 fails the amount gate against TX1 but matches TX2 exactly. Failing
	// for one transaction must not consume the entry.
	tx1 := testTransaction("TX1", 100.00, date, "Honoraires")
	tx2 := testTransaction("TX2", 250.00, date, "Honoraires")
	entry := testEntry("JE1", 250.00, 0, date, "Honoraires")

	result, err := engine.Reconcile(
		[]*models.BankTransaction{tx1, tx2},
		[]*models.JournalEntry{entry},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Matches))
	}
	if result.Matches[0].BankTransaction.ID != "TX2" {
		t.Errorf("expected TX2 to match, got %s", result.Matches[0].BankTransaction.ID)
	}
}

func TestReconcileSortedByConfidence(t *testing.T) {
	engine := NewMatchingEngine(nil)
	date := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	// TX1 finds a weaker match than TX2; output order must follow confidence,
	// not assignment order.
	tx1 := testTransaction("TX1", 120.00, date, "Paiement Fournisseur BETA Inc")
	tx2 := testTransaction("TX2", 480.00, date, "Virement Client ACME Corp")
	weak := testEntry("JE1", 120.00, 0, date, "Fournisseur BETA Inc")
	strong := testEntry("JE2", 480.00, 0, date, "Virement Client ACME Corp")

	result, err := engine.Reconcile(
		[]*models.BankTransaction{tx1, tx2},
		[]*models.JournalEntry{weak, strong},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(result.Matches))
	}
	if result.Matches[0].BankTransaction.ID != "TX2" {
		t.Errorf("expected the 1.0-confidence match first, got %s with %.2f",
			result.Matches[0].BankTransaction.ID, result.Matches[0].Confidence)
	}
	if result.Matches[0].Confidence < result.Matches[1].Confidence {
		t.Error("matches not sorted by confidence descending")
	}
}

func TestReconcileDeterministic(t *testing.T) {
	engine := NewMatchingEngine(nil)
	date := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	transactions := []*models.BankTransaction{
		testTransaction("TX1", 150.00, date, "Salaires avril"),
		testTransaction("TX2", 150.00, date.AddDate(0, 0, -1), "Salaires avril"),
		testTransaction("TX3", 980.50, date, "Loyer bureaux"),
	}
	entries := []*models.JournalEntry{
		testEntry("JE1", 150.00, 0, date, "Salaires avril"),
		testEntry("JE2", 150.00, 0, date.AddDate(0, 0, -1), "Salaires avril"),
		testEntry("JE3", 980.50, 0, date, "Loyer bureaux"),
	}

	first, err := engine.Reconcile(transactions, entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 5; i++ {
		again, err := engine.Reconcile(transactions, entries)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(again.Matches) != len(first.Matches) {
			t.Fatalf("run %d produced %d matches, first run produced %d", i, len(again.Matches), len(first.Matches))
		}
		for j := range first.Matches {
			if first.Matches[j].BankTransaction.ID != again.Matches[j].BankTransaction.ID ||
				first.Matches[j].JournalEntry.ID != again.Matches[j].JournalEntry.ID {
				t.Fatalf("run %d diverged at match %d", i, j)
			}
		}
	}
}

func TestReconcileSummary(t *testing.T) {
	engine := NewMatchingEngine(nil)
	date := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	transactions := []*models.BankTransaction{
		testTransaction("TX1", 1500.00, date, "Virement Client ACME Corp"),
		testTransaction("TX2", 999.99, date, "No counterpart"),
	}
	entries := []*models.JournalEntry{
		testEntry("JE1", 1500.00, 0, date, "Virement Client ACME Corp"),
	}

	result, err := engine.Reconcile(transactions, entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary := result.Summary
	if summary.TotalTransactions != 2 || summary.TotalEntries != 1 {
		t.Errorf("totals = (%d, %d), want (2, 1)", summary.TotalTransactions, summary.TotalEntries)
	}
	if summary.MatchedPairs != 1 || summary.ExactMatches != 1 {
		t.Errorf("matched = %d exact = %d, want 1 and 1", summary.MatchedPairs, summary.ExactMatches)
	}
	if summary.UnmatchedTransactions != 1 {
		t.Errorf("unmatched transactions = %d, want 1", summary.UnmatchedTransactions)
	}
	if !summary.TotalAmountMatched.Equal(decimal.NewFromFloat(1500.00)) {
		t.Errorf("TotalAmountMatched = %s, want 1500", summary.TotalAmountMatched)
	}
	if !summary.TotalAmountUnmatched.Equal(decimal.NewFromFloat(999.99)) {
		t.Errorf("TotalAmountUnmatched = %s, want 999.99", summary.TotalAmountUnmatched)
	}
}

func TestUpdateConfiguration(t *testing.T) {
	engine := NewMatchingEngine(nil)

	invalid := DefaultMatchingConfig()
	invalid.MinConfidenceScore = -1
	if err := engine.UpdateConfiguration(invalid); err == nil {
		t.Error("expected error for invalid configuration")
	}

	valid := RelaxedMatchingConfig()
	if err := engine.UpdateConfiguration(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.Config.DateToleranceDays != valid.DateToleranceDays {
		t.Error("configuration was not applied")
	}

	// The engine keeps a copy, not the caller's pointer.
	valid.DateToleranceDays = 99
	if engine.Config.DateToleranceDays == 99 {
		t.Error("engine configuration aliased the caller's config")
	}
}
