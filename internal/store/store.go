package store

import (
	"context"
	"time"

	"bank-reconciliation-engine/internal/models"
)

// RecordStore is the boundary to the relational backend holding bank
// transactions, journal entries, and reconciliation records. The matching run
// consumes the two read queries; acceptance and reversal issue the write
// operations. Every call is fallible and potentially latent, so all take a
// context.
//
// This interface allows swapping implementations (SQLite, PostgreSQL, a hosted
// backend) and makes testing with fakes straightforward.
type RecordStore interface {
	// FetchUnreconciledBankTransactions returns unreconciled bank
	// transactions for the account, ordered by transaction date descending.
	// The ordering is load-bearing for the greedy matcher's determinism.
	FetchUnreconciledBankTransactions(ctx context.Context, bankAccountID string, limit int) ([]*models.BankTransaction, error)

	// FetchUnreconciledJournalEntries returns unreconciled journal entries
	// for the company dated on or after since, ordered by entry date
	// descending.
	FetchUnreconciledJournalEntries(ctx context.Context, companyID string, since time.Time, limit int) ([]*models.JournalEntry, error)

	// GetBankTransaction retrieves a bank transaction by ID. Returns
	// (nil, nil) when no such transaction exists.
	GetBankTransaction(ctx context.Context, id string) (*models.BankTransaction, error)

	// GetJournalEntry retrieves a journal entry by ID. Returns (nil, nil)
	// when no such entry exists.
	GetJournalEntry(ctx context.Context, id string) (*models.JournalEntry, error)

	// MarkBankTransactionReconciled sets the reconciled flag and timestamp
	// on a currently-unreconciled bank transaction. Returns a write-conflict
	// error when the transaction is missing or already reconciled, so two
	// concurrent acceptances of the same record cannot both succeed.
	MarkBankTransactionReconciled(ctx context.Context, id string, reconciledAt time.Time) error

	// UnmarkBankTransactionReconciled resets the reconciled flag and clears
	// the timestamp. Unmarking an already-unreconciled transaction is a
	// no-op, not an error.
	UnmarkBankTransactionReconciled(ctx context.Context, id string) error

	// MarkJournalEntryReconciled sets the reconciled flag and timestamp on a
	// currently-unreconciled journal entry, with the same conflict semantics
	// as MarkBankTransactionReconciled.
	MarkJournalEntryReconciled(ctx context.Context, id string, reconciledAt time.Time) error

	// UnmarkJournalEntryReconciled resets the reconciled flag and clears the
	// timestamp. Idempotent like UnmarkBankTransactionReconciled.
	UnmarkJournalEntryReconciled(ctx context.Context, id string) error

	// InsertReconciliationRecord persists the durable evidence of an
	// accepted match. The store enforces uniqueness on the
	// (bank transaction, journal entry) pair and returns a write-conflict
	// error for a duplicate.
	InsertReconciliationRecord(ctx context.Context, record *models.ReconciliationRecord) error

	// DeleteReconciliationRecord removes the record for the pair. Deleting a
	// non-existent record is a no-op, not an error.
	DeleteReconciliationRecord(ctx context.Context, bankTransactionID, journalEntryID string) error

	// GetReconciliationRecord retrieves the record for the pair. Returns
	// (nil, nil) when no record exists.
	GetReconciliationRecord(ctx context.Context, bankTransactionID, journalEntryID string) (*models.ReconciliationRecord, error)

	// CountReconciliationState returns aggregate reconciliation counts for a
	// company: total bank transactions, reconciled bank transactions, and
	// the confidence sum across active records.
	CountReconciliationState(ctx context.Context, companyID string) (*StateCounts, error)

	// Close releases the underlying store resources.
	Close() error
}

// StateCounts holds aggregate reconciliation counters for one company
type StateCounts struct {
	TotalTransactions      int     `json:"total_transactions"`
	ReconciledTransactions int     `json:"reconciled_transactions"`
	ActiveRecords          int     `json:"active_records"`
	ConfidenceSum          float64 `json:"confidence_sum"`
}
