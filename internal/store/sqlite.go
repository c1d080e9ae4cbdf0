package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/errors"
	"bank-reconciliation-engine/pkg/logger"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore provides SQLite-backed access to bank transactions, journal
// entries, and reconciliation records. It implements the RecordStore interface.
type SQLiteStore struct {
	db  *sql.DB
	log logger.Logger
}

// Compile-time check that SQLiteStore implements RecordStore
var _ RecordStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and applies pending
// migrations. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string, log logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "failed to open database")
	}

	// SQLite allows one writer; a single pooled connection also keeps
	// ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "failed to enable foreign keys")
	}

	s := &SQLiteStore{db: db, log: log.WithComponent("store")}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migration is one versioned schema step applied inside a transaction
type migration struct {
	version int
	name    string
	up      string
}

var allMigrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		up: `
	CREATE TABLE IF NOT EXISTS bank_transactions (
		id               TEXT PRIMARY KEY,
		bank_account_id  TEXT NOT NULL,
		company_id       TEXT NOT NULL,
		transaction_date TIMESTAMP NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		amount           TEXT NOT NULL,
		reference        TEXT NOT NULL DEFAULT '',
		reconciled       INTEGER NOT NULL DEFAULT 0,
		reconciled_at    TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS journal_entries (
		id            TEXT PRIMARY KEY,
		company_id    TEXT NOT NULL,
		entry_number  TEXT NOT NULL DEFAULT '',
		entry_date    TIMESTAMP NOT NULL,
		description   TEXT NOT NULL DEFAULT '',
		debit         TEXT NOT NULL,
		credit        TEXT NOT NULL,
		account_code  TEXT NOT NULL DEFAULT '',
		reconciled    INTEGER NOT NULL DEFAULT 0,
		reconciled_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS reconciliation_records (
		id                  TEXT PRIMARY KEY,
		company_id          TEXT NOT NULL,
		bank_transaction_id TEXT NOT NULL REFERENCES bank_transactions(id),
		journal_entry_id    TEXT NOT NULL REFERENCES journal_entries(id),
		match_type          TEXT NOT NULL,
		confidence          REAL NOT NULL,
		matched_at          TIMESTAMP NOT NULL,
		UNIQUE (bank_transaction_id, journal_entry_id)
	);

	CREATE INDEX IF NOT EXISTS idx_bank_tx_unreconciled
		ON bank_transactions(bank_account_id, reconciled, transaction_date DESC);
	CREATE INDEX IF NOT EXISTS idx_journal_unreconciled
		ON journal_entries(company_id, reconciled, entry_date DESC);
	CREATE INDEX IF NOT EXISTS idx_records_company
		ON reconciliation_records(company_id);
	`,
	},
}

// runMigrations executes all pending migrations
func (s *SQLiteStore) runMigrations() error {
	if _, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "failed to create migrations table")
	}

	applied := make(map[int]bool)
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "failed to read applied migrations")
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "failed to scan migration version")
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "failed to iterate migrations")
	}

	for _, m := range allMigrations {
		if applied[m.version] {
			continue
		}

		s.log.Infof("applying migration %d: %s", m.version, m.name)

		tx, err := s.db.Begin()
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError,
				fmt.Sprintf("failed to begin migration %d", m.version))
		}

		if _, err := tx.Exec(m.up); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError,
				fmt.Sprintf("migration %d (%s) failed", m.version, m.name))
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError,
				fmt.Sprintf("failed to record migration %d", m.version))
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError,
				fmt.Sprintf("failed to commit migration %d", m.version))
		}
	}

	return nil
}

// FetchUnreconciledBankTransactions returns unreconciled bank transactions for
// the account, newest first.
func (s *SQLiteStore) FetchUnreconciledBankTransactions(ctx context.Context, bankAccountID string, limit int) ([]*models.BankTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, bank_account_id, company_id, transaction_date, description, amount, reference, reconciled, reconciled_at
	FROM bank_transactions
	WHERE bank_account_id = ? AND reconciled = 0
	ORDER BY transaction_date DESC
	LIMIT ?`, bankAccountID, limit)
	if err != nil {
		return nil, errors.FetchError("unreconciled bank transactions", err)
	}
	defer rows.Close()

	var transactions []*models.BankTransaction
	for rows.Next() {
		tx, err := scanBankTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.FetchError("unreconciled bank transactions", err)
	}

	return transactions, nil
}

// FetchUnreconciledJournalEntries returns unreconciled journal entries for the
// company dated on or after since, newest first.
func (s *SQLiteStore) FetchUnreconciledJournalEntries(ctx context.Context, companyID string, since time.Time, limit int) ([]*models.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, company_id, entry_number, entry_date, description, debit, credit, account_code, reconciled, reconciled_at
	FROM journal_entries
	WHERE company_id = ? AND reconciled = 0 AND entry_date >= ?
	ORDER BY entry_date DESC
	LIMIT ?`, companyID, since, limit)
	if err != nil {
		return nil, errors.FetchError("unreconciled journal entries", err)
	}
	defer rows.Close()

	var entries []*models.JournalEntry
	for rows.Next() {
		entry, err := scanJournalEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.FetchError("unreconciled journal entries", err)
	}

	return entries, nil
}

// GetBankTransaction retrieves a bank transaction by ID
func (s *SQLiteStore) GetBankTransaction(ctx context.Context, id string) (*models.BankTransaction, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, bank_account_id, company_id, transaction_date, description, amount, reference, reconciled, reconciled_at
	FROM bank_transactions WHERE id = ?`, id)

	tx, err := scanBankTransaction(row)
	if err != nil {
		if errors.HasCode(err, errors.CodeScanFailed) && isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}

	return tx, nil
}

// GetJournalEntry retrieves a journal entry by ID
func (s *SQLiteStore) GetJournalEntry(ctx context.Context, id string) (*models.JournalEntry, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, company_id, entry_number, entry_date, description, debit, credit, account_code, reconciled, reconciled_at
	FROM journal_entries WHERE id = ?`, id)

	entry, err := scanJournalEntry(row)
	if err != nil {
		if errors.HasCode(err, errors.CodeScanFailed) && isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}

	return entry, nil
}

// MarkBankTransactionReconciled flips the reconciled flag using an optimistic
// update: only a currently-unreconciled row qualifies, so concurrent
// acceptances of the same transaction cannot both succeed.
func (s *SQLiteStore) MarkBankTransactionReconciled(ctx context.Context, id string, reconciledAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE bank_transactions SET reconciled = 1, reconciled_at = ?
	WHERE id = ? AND reconciled = 0`, reconciledAt, id)
	if err != nil {
		return errors.WriteError(errors.CodeWriteFailed, "mark bank transaction reconciled", err).
			WithContext("bank_transaction_id", id)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.WriteError(errors.CodeWriteFailed, "mark bank transaction reconciled", err)
	}
	if affected == 0 {
		return errors.WriteError(errors.CodeWriteConflict, "mark bank transaction reconciled", nil).
			WithContext("bank_transaction_id", id)
	}

	return nil
}

// UnmarkBankTransactionReconciled resets the reconciled flag. Idempotent.
func (s *SQLiteStore) UnmarkBankTransactionReconciled(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
	UPDATE bank_transactions SET reconciled = 0, reconciled_at = NULL
	WHERE id = ?`, id)
	if err != nil {
		return errors.WriteError(errors.CodeWriteFailed, "unmark bank transaction reconciled", err).
			WithContext("bank_transaction_id", id)
	}

	return nil
}

// MarkJournalEntryReconciled flips the reconciled flag with the same optimistic
// semantics as MarkBankTransactionReconciled.
func (s *SQLiteStore) MarkJournalEntryReconciled(ctx context.Context, id string, reconciledAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE journal_entries SET reconciled = 1, reconciled_at = ?
	WHERE id = ? AND reconciled = 0`, reconciledAt, id)
	if err != nil {
		return errors.WriteError(errors.CodeWriteFailed, "mark journal entry reconciled", err).
			WithContext("journal_entry_id", id)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.WriteError(errors.CodeWriteFailed, "mark journal entry reconciled", err)
	}
	if affected == 0 {
		return errors.WriteError(errors.CodeWriteConflict, "mark journal entry reconciled", nil).
			WithContext("journal_entry_id", id)
	}

	return nil
}

// UnmarkJournalEntryReconciled resets the reconciled flag. Idempotent.
func (s *SQLiteStore) UnmarkJournalEntryReconciled(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
	UPDATE journal_entries SET reconciled = 0, reconciled_at = NULL
	WHERE id = ?`, id)
	if err != nil {
		return errors.WriteError(errors.CodeWriteFailed, "unmark journal entry reconciled", err).
			WithContext("journal_entry_id", id)
	}

	return nil
}

// InsertReconciliationRecord persists an accepted match. The unique index on
// (bank_transaction_id, journal_entry_id) turns duplicate acceptance into a
// write conflict instead of a second record.
func (s *SQLiteStore) InsertReconciliationRecord(ctx context.Context, record *models.ReconciliationRecord) error {
	if err := record.Validate(); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "reconciliation_record", record.String(), err)
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO reconciliation_records (id, company_id, bank_transaction_id, journal_entry_id, match_type, confidence, matched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.CompanyID, record.BankTransactionID, record.JournalEntryID,
		record.MatchType, record.Confidence, record.MatchedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.WriteError(errors.CodeWriteConflict, "insert reconciliation record", err).
				WithContext("bank_transaction_id", record.BankTransactionID).
				WithContext("journal_entry_id", record.JournalEntryID)
		}
		return errors.WriteError(errors.CodeWriteFailed, "insert reconciliation record", err)
	}

	return nil
}

// DeleteReconciliationRecord removes the record for the pair. Idempotent.
func (s *SQLiteStore) DeleteReconciliationRecord(ctx context.Context, bankTransactionID, journalEntryID string) error {
	_, err := s.db.ExecContext(ctx, `
	DELETE FROM reconciliation_records
	WHERE bank_transaction_id = ? AND journal_entry_id = ?`, bankTransactionID, journalEntryID)
	if err != nil {
		return errors.WriteError(errors.CodeDeleteFailed, "delete reconciliation record", err).
			WithContext("bank_transaction_id", bankTransactionID).
			WithContext("journal_entry_id", journalEntryID)
	}

	return nil
}

// GetReconciliationRecord retrieves the record for the pair, or (nil, nil)
// when none exists.
func (s *SQLiteStore) GetReconciliationRecord(ctx context.Context, bankTransactionID, journalEntryID string) (*models.ReconciliationRecord, error) {
	record := &models.ReconciliationRecord{}
	err := s.db.QueryRowContext(ctx, `
	SELECT id, company_id, bank_transaction_id, journal_entry_id, match_type, confidence, matched_at
	FROM reconciliation_records
	WHERE bank_transaction_id = ? AND journal_entry_id = ?`, bankTransactionID, journalEntryID).
		Scan(&record.ID, &record.CompanyID, &record.BankTransactionID, &record.JournalEntryID,
			&record.MatchType, &record.Confidence, &record.MatchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.FetchError("reconciliation record", err)
	}

	return record, nil
}

// CountReconciliationState returns aggregate reconciliation counts for the company
func (s *SQLiteStore) CountReconciliationState(ctx context.Context, companyID string) (*StateCounts, error) {
	counts := &StateCounts{}

	err := s.db.QueryRowContext(ctx, `
	SELECT COUNT(*), COALESCE(SUM(reconciled), 0)
	FROM bank_transactions WHERE company_id = ?`, companyID).
		Scan(&counts.TotalTransactions, &counts.ReconciledTransactions)
	if err != nil {
		return nil, errors.FetchError("reconciliation state counts", err)
	}

	err = s.db.QueryRowContext(ctx, `
	SELECT COUNT(*), COALESCE(SUM(confidence), 0)
	FROM reconciliation_records WHERE company_id = ?`, companyID).
		Scan(&counts.ActiveRecords, &counts.ConfidenceSum)
	if err != nil {
		return nil, errors.FetchError("reconciliation state counts", err)
	}

	return counts, nil
}

// SaveBankTransaction inserts or replaces a bank transaction. Statement import
// lives outside this subsystem; this entry point exists for seeding and tests.
func (s *SQLiteStore) SaveBankTransaction(ctx context.Context, tx *models.BankTransaction) error {
	if err := tx.Validate(); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "bank_transaction", tx.String(), err)
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO bank_transactions
	(id, bank_account_id, company_id, transaction_date, description, amount, reference, reconciled, reconciled_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.BankAccountID, tx.CompanyID, tx.TransactionDate, tx.Description,
		tx.Amount.String(), tx.Reference, tx.Reconciled, nullableTime(tx.ReconciledAt))
	if err != nil {
		return errors.WriteError(errors.CodeWriteFailed, "save bank transaction", err)
	}

	return nil
}

// SaveJournalEntry inserts or replaces a journal entry. Entry creation lives in
// the accounting module; this entry point exists for seeding and tests.
func (s *SQLiteStore) SaveJournalEntry(ctx context.Context, entry *models.JournalEntry) error {
	if err := entry.Validate(); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "journal_entry", entry.String(), err)
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO journal_entries
	(id, company_id, entry_number, entry_date, description, debit, credit, account_code, reconciled, reconciled_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.CompanyID, entry.EntryNumber, entry.EntryDate, entry.Description,
		entry.Debit.String(), entry.Credit.String(), entry.AccountCode, entry.Reconciled, nullableTime(entry.ReconciledAt))
	if err != nil {
		return errors.WriteError(errors.CodeWriteFailed, "save journal entry", err)
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBankTransaction(row scanner) (*models.BankTransaction, error) {
	tx := &models.BankTransaction{}
	var amount string
	var reconciledAt sql.NullTime

	err := row.Scan(&tx.ID, &tx.BankAccountID, &tx.CompanyID, &tx.TransactionDate,
		&tx.Description, &amount, &tx.Reference, &tx.Reconciled, &reconciledAt)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryFetch, errors.CodeScanFailed, "failed to scan bank transaction")
	}

	tx.Amount, err = models.ParseDecimalFromString(amount)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, "amount", amount, err)
	}

	if reconciledAt.Valid {
		t := reconciledAt.Time
		tx.ReconciledAt = &t
	}

	return tx, nil
}

func scanJournalEntry(row scanner) (*models.JournalEntry, error) {
	entry := &models.JournalEntry{}
	var debit, credit string
	var reconciledAt sql.NullTime

	err := row.Scan(&entry.ID, &entry.CompanyID, &entry.EntryNumber, &entry.EntryDate,
		&entry.Description, &debit, &credit, &entry.AccountCode, &entry.Reconciled, &reconciledAt)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryFetch, errors.CodeScanFailed, "failed to scan journal entry")
	}

	entry.Debit, err = models.ParseDecimalFromString(debit)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, "debit", debit, err)
	}

	entry.Credit, err = models.ParseDecimalFromString(credit)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, "credit", credit, err)
	}

	if reconciledAt.Valid {
		t := reconciledAt.Time
		entry.ReconciledAt = &t
	}

	return entry, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func isNoRows(err error) bool {
	engineErr, ok := errors.AsEngineError(err)
	return ok && engineErr.Cause == sql.ErrNoRows
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
