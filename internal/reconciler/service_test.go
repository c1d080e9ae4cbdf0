package reconciler

import (
	"context"
	"testing"
	"time"

	"bank-reconciliation-engine/internal/matcher"
	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/internal/store"
	"bank-reconciliation-engine/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, memory *store.MemoryStore) *ReconciliationService {
	t.Helper()

	svc, err := NewReconciliationService(memory, nil, nil)
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	return svc
}

func addTransaction(s *store.MemoryStore, id string, amount float64, date time.Time, description string) {
	s.AddBankTransaction(&models.BankTransaction{
		ID:              id,
		BankAccountID:   "BA1",
		CompanyID:       "C1",
		TransactionDate: date,
		Description:     description,
		Amount:          decimal.NewFromFloat(amount),
	})
}

func addEntry(s *store.MemoryStore, id string, debit float64, date time.Time, description string) {
	s.AddJournalEntry(&models.JournalEntry{
		ID:          id,
		CompanyID:   "C1",
		EntryNumber: "JE-" + id,
		EntryDate:   date,
		Description: description,
		Debit:       decimal.NewFromFloat(debit),
		Credit:      decimal.Zero,
		AccountCode: "411",
	})
}

func TestNewReconciliationService(t *testing.T) {
	_, err := NewReconciliationService(nil, nil, nil)
	require.Error(t, err)

	invalid := matcher.DefaultMatchingConfig()
	invalid.MinConfidenceScore = 2.0
	_, err = NewReconciliationService(store.NewMemoryStore(), invalid, nil)
	require.Error(t, err)

	svc, err := NewReconciliationService(store.NewMemoryStore(), nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestRunValidatesRequest(t *testing.T) {
	svc := newTestService(t, store.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Run(ctx, nil)
	require.Error(t, err)

	_, err = svc.Run(ctx, &RunRequest{BankAccountID: "BA1"})
	require.Error(t, err)

	_, err = svc.Run(ctx, &RunRequest{CompanyID: "C1"})
	require.Error(t, err)
}

func TestRunProposesMatches(t *testing.T) {
	memory := store.NewMemoryStore()
	svc := newTestService(t, memory)
	ctx := context.Background()
	date := testNow.AddDate(0, 0, -1)

	addTransaction(memory, "TX1", 1500.00, date, "Virement Client ACME Corp")
	addEntry(memory, "JE1", 1500.00, date, "Virement Client ACME Corp")
	addTransaction(memory, "TX2", 75.00, date, "Sans contrepartie")

	result, err := svc.Run(ctx, &RunRequest{CompanyID: "C1", BankAccountID: "BA1"})
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, "TX1", result.Matches[0].BankTransaction.ID)
	assert.Equal(t, matcher.MatchExact, result.Matches[0].MatchType)
	require.Len(t, result.UnmatchedTransactions, 1)
	assert.Equal(t, "TX2", result.UnmatchedTransactions[0].ID)
	assert.Equal(t, testNow, result.RanAt)
}

func TestRunIsSideEffectFree(t *testing.T) {
	memory := store.NewMemoryStore()
	svc := newTestService(t, memory)
	ctx := context.Background()
	date := testNow.AddDate(0, 0, -1)

	addTransaction(memory, "TX1", 500.00, date, "Facture")
	addEntry(memory, "JE1", 500.00, date, "Facture")

	_, err := svc.Run(ctx, &RunRequest{CompanyID: "C1", BankAccountID: "BA1"})
	require.NoError(t, err)

	tx, err := memory.GetBankTransaction(ctx, "TX1")
	require.NoError(t, err)
	assert.False(t, tx.Reconciled, "a run must not mutate state")

	// The same proposal appears again on the next run.
	again, err := svc.Run(ctx, &RunRequest{CompanyID: "C1", BankAccountID: "BA1"})
	require.NoError(t, err)
	assert.Len(t, again.Matches, 1)
}

func TestRunExcludesStaleEntries(t *testing.T) {
	memory := store.NewMemoryStore()
	svc := newTestService(t, memory)
	ctx := context.Background()

	// Outside the 30-day lookback window relative to the fixed clock. The
	// entry would match on amount but is never fetched.
	stale := testNow.AddDate(0, 0, -45)
	addTransaction(memory, "TX1", 500.00, testNow.AddDate(0, 0, -1), "Facture")
	addEntry(memory, "JE1", 500.00, stale, "Facture")

	result, err := svc.Run(ctx, &RunRequest{CompanyID: "C1", BankAccountID: "BA1"})
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
	assert.Len(t, result.UnmatchedTransactions, 1)
}

func TestRunFetchFailureAborts(t *testing.T) {
	memory := store.NewMemoryStore()
	svc := newTestServiceWithStore(t, &failingFetchStore{MemoryStore: memory})
	ctx := context.Background()

	_, err := svc.Run(ctx, &RunRequest{CompanyID: "C1", BankAccountID: "BA1"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryFetch))
}

// failingFetchStore wraps MemoryStore to fail the transaction fetch
type failingFetchStore struct {
	*store.MemoryStore
}

func newTestServiceWithStore(t *testing.T, recordStore store.RecordStore) *ReconciliationService {
	t.Helper()

	svc, err := NewReconciliationService(recordStore, nil, nil)
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	return svc
}

func (f *failingFetchStore) FetchUnreconciledBankTransactions(ctx context.Context, bankAccountID string, limit int) ([]*models.BankTransaction, error) {
	return nil, errors.FetchError("unreconciled bank transactions", context.DeadlineExceeded)
}
