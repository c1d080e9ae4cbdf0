package store

import (
	"context"
	"testing"
	"time"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func seedTransaction(t *testing.T, s *SQLiteStore, id string, amount float64, date time.Time) *models.BankTransaction {
	t.Helper()

	tx := &models.BankTransaction{
		ID:              id,
		BankAccountID:   "BA1",
		CompanyID:       "C1",
		TransactionDate: date,
		Description:     "Virement client",
		Amount:          decimal.NewFromFloat(amount),
	}
	require.NoError(t, s.SaveBankTransaction(context.Background(), tx))
	return tx
}

func seedEntry(t *testing.T, s *SQLiteStore, id string, debit float64, date time.Time) *models.JournalEntry {
	t.Helper()

	entry := &models.JournalEntry{
		ID:          id,
		CompanyID:   "C1",
		EntryNumber: "JE-" + id,
		EntryDate:   date,
		Description: "Virement client",
		Debit:       decimal.NewFromFloat(debit),
		Credit:      decimal.Zero,
		AccountCode: "411",
	}
	require.NoError(t, s.SaveJournalEntry(context.Background(), entry))
	return entry
}

func TestSQLiteStore_FetchUnreconciledBankTransactions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	seedTransaction(t, s, "TX-old", 100, base.AddDate(0, 0, -5))
	seedTransaction(t, s, "TX-new", 200, base)
	seedTransaction(t, s, "TX-mid", 300, base.AddDate(0, 0, -2))

	// A reconciled transaction must not be returned.
	reconciled := seedTransaction(t, s, "TX-done", 400, base)
	require.NoError(t, s.MarkBankTransactionReconciled(ctx, reconciled.ID, base))

	got, err := s.FetchUnreconciledBankTransactions(ctx, "BA1", 100)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest first.
	assert.Equal(t, "TX-new", got[0].ID)
	assert.Equal(t, "TX-mid", got[1].ID)
	assert.Equal(t, "TX-old", got[2].ID)

	limited, err := s.FetchUnreconciledBankTransactions(ctx, "BA1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	other, err := s.FetchUnreconciledBankTransactions(ctx, "BA-unknown", 100)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLiteStore_FetchUnreconciledJournalEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	seedEntry(t, s, "JE-recent", 100, base)
	seedEntry(t, s, "JE-week", 200, base.AddDate(0, 0, -7))
	seedEntry(t, s, "JE-stale", 300, base.AddDate(0, 0, -45))

	got, err := s.FetchUnreconciledJournalEntries(ctx, "C1", base.AddDate(0, 0, -30), 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "JE-recent", got[0].ID)
	assert.Equal(t, "JE-week", got[1].ID)
}

func TestSQLiteStore_GetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	seeded := seedTransaction(t, s, "TX1", -1234.56, date)

	got, err := s.GetBankTransaction(ctx, "TX1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, seeded.ID, got.ID)
	assert.True(t, got.Amount.Equal(decimal.NewFromFloat(-1234.56)))
	assert.False(t, got.Reconciled)
	assert.Nil(t, got.ReconciledAt)

	missing, err := s.GetBankTransaction(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	entry := seedEntry(t, s, "JE1", 89.90, date)
	gotEntry, err := s.GetJournalEntry(ctx, "JE1")
	require.NoError(t, err)
	require.NotNil(t, gotEntry)
	assert.Equal(t, entry.EntryNumber, gotEntry.EntryNumber)
	assert.True(t, gotEntry.Debit.Equal(decimal.NewFromFloat(89.90)))

	missingEntry, err := s.GetJournalEntry(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missingEntry)
}

func TestSQLiteStore_MarkReconciledConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	seedTransaction(t, s, "TX1", 100, date)

	require.NoError(t, s.MarkBankTransactionReconciled(ctx, "TX1", date))

	got, err := s.GetBankTransaction(ctx, "TX1")
	require.NoError(t, err)
	assert.True(t, got.Reconciled)
	require.NotNil(t, got.ReconciledAt)

	// Second mark loses the optimistic check.
	err = s.MarkBankTransactionReconciled(ctx, "TX1", date)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeWriteConflict))

	// Missing row is also a conflict, not a silent success.
	err = s.MarkBankTransactionReconciled(ctx, "nope", date)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeWriteConflict))
}

func TestSQLiteStore_UnmarkIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	seedTransaction(t, s, "TX1", 100, date)
	require.NoError(t, s.MarkBankTransactionReconciled(ctx, "TX1", date))

	require.NoError(t, s.UnmarkBankTransactionReconciled(ctx, "TX1"))
	require.NoError(t, s.UnmarkBankTransactionReconciled(ctx, "TX1"))
	require.NoError(t, s.UnmarkBankTransactionReconciled(ctx, "nope"))

	got, err := s.GetBankTransaction(ctx, "TX1")
	require.NoError(t, err)
	assert.False(t, got.Reconciled)
	assert.Nil(t, got.ReconciledAt)
}

func TestSQLiteStore_ReconciliationRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	seedTransaction(t, s, "TX1", 100, date)
	seedEntry(t, s, "JE1", 100, date)

	record := &models.ReconciliationRecord{
		ID:                "R1",
		CompanyID:         "C1",
		BankTransactionID: "TX1",
		JournalEntryID:    "JE1",
		MatchType:         "exact",
		Confidence:        1.0,
		MatchedAt:         date,
	}
	require.NoError(t, s.InsertReconciliationRecord(ctx, record))

	got, err := s.GetReconciliationRecord(ctx, "TX1", "JE1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "R1", got.ID)
	assert.Equal(t, 1.0, got.Confidence)

	// The pair is unique regardless of the record ID.
	dup := *record
	dup.ID = "R2"
	err = s.InsertReconciliationRecord(ctx, &dup)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeWriteConflict))

	require.NoError(t, s.DeleteReconciliationRecord(ctx, "TX1", "JE1"))
	require.NoError(t, s.DeleteReconciliationRecord(ctx, "TX1", "JE1"))

	gone, err := s.GetReconciliationRecord(ctx, "TX1", "JE1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSQLiteStore_CountReconciliationState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	seedTransaction(t, s, "TX1", 100, date)
	seedTransaction(t, s, "TX2", 200, date)
	seedEntry(t, s, "JE1", 100, date)

	require.NoError(t, s.MarkBankTransactionReconciled(ctx, "TX1", date))
	require.NoError(t, s.InsertReconciliationRecord(ctx, &models.ReconciliationRecord{
		ID:                "R1",
		CompanyID:         "C1",
		BankTransactionID: "TX1",
		JournalEntryID:    "JE1",
		MatchType:         "exact",
		Confidence:        0.94,
		MatchedAt:         date,
	}))

	counts, err := s.CountReconciliationState(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.TotalTransactions)
	assert.Equal(t, 1, counts.ReconciledTransactions)
	assert.Equal(t, 1, counts.ActiveRecords)
	assert.InDelta(t, 0.94, counts.ConfidenceSum, 1e-9)

	empty, err := s.CountReconciliationState(ctx, "C-unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalTransactions)
	assert.Equal(t, 0, empty.ActiveRecords)
}

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	s := newTestStore(t)

	// Re-running against an already-migrated database applies nothing.
	require.NoError(t, s.runMigrations())
}
