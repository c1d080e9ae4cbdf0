package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/errors"
)

// MemoryStore is an in-memory RecordStore. It backs tests and small
// evaluation runs where no database is wired up.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]*models.BankTransaction
	entries      map[string]*models.JournalEntry
	records      map[string]*models.ReconciliationRecord

	// FailureHook, when set, is consulted before every mutating operation.
	// Returning a non-nil error makes that operation fail, which lets tests
	// exercise compensation and repair paths.
	FailureHook func(operation string) error
}

var _ RecordStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*models.BankTransaction),
		entries:      make(map[string]*models.JournalEntry),
		records:      make(map[string]*models.ReconciliationRecord),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) failIfHooked(operation string) error {
	if m.FailureHook == nil {
		return nil
	}
	return m.FailureHook(operation)
}

// AddBankTransaction seeds a transaction. A copy is stored so callers cannot
// mutate store state through the original pointer.
func (m *MemoryStore) AddBankTransaction(tx *models.BankTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.transactions[tx.ID] = &cp
}

// AddJournalEntry seeds a journal entry
func (m *MemoryStore) AddJournalEntry(entry *models.JournalEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries[entry.ID] = &cp
}

func recordKey(bankTransactionID, journalEntryID string) string {
	return bankTransactionID + "|" + journalEntryID
}

func (m *MemoryStore) FetchUnreconciledBankTransactions(ctx context.Context, bankAccountID string, limit int) ([]*models.BankTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.BankTransaction
	for _, tx := range m.transactions {
		if tx.BankAccountID == bankAccountID && !tx.Reconciled {
			cp := *tx
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].TransactionDate.After(out[j].TransactionDate)
		}
		return out[i].ID < out[j].ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) FetchUnreconciledJournalEntries(ctx context.Context, companyID string, since time.Time, limit int) ([]*models.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.JournalEntry
	for _, entry := range m.entries {
		if entry.CompanyID == companyID && !entry.Reconciled && !entry.EntryDate.Before(since) {
			cp := *entry
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].EntryDate.After(out[j].EntryDate)
		}
		return out[i].ID < out[j].ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetBankTransaction(ctx context.Context, id string) (*models.BankTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (m *MemoryStore) GetJournalEntry(ctx context.Context, id string) (*models.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (m *MemoryStore) MarkBankTransactionReconciled(ctx context.Context, id string, reconciledAt time.Time) error {
	if err := m.failIfHooked("mark_bank_transaction"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok || tx.Reconciled {
		return errors.WriteError(errors.CodeWriteConflict, "mark bank transaction reconciled", nil).
			WithContext("bank_transaction_id", id)
	}

	tx.Reconciled = true
	t := reconciledAt
	tx.ReconciledAt = &t
	return nil
}

func (m *MemoryStore) UnmarkBankTransactionReconciled(ctx context.Context, id string) error {
	if err := m.failIfHooked("unmark_bank_transaction"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if tx, ok := m.transactions[id]; ok {
		tx.Reconciled = false
		tx.ReconciledAt = nil
	}
	return nil
}

func (m *MemoryStore) MarkJournalEntryReconciled(ctx context.Context, id string, reconciledAt time.Time) error {
	if err := m.failIfHooked("mark_journal_entry"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok || entry.Reconciled {
		return errors.WriteError(errors.CodeWriteConflict, "mark journal entry reconciled", nil).
			WithContext("journal_entry_id", id)
	}

	entry.Reconciled = true
	t := reconciledAt
	entry.ReconciledAt = &t
	return nil
}

func (m *MemoryStore) UnmarkJournalEntryReconciled(ctx context.Context, id string) error {
	if err := m.failIfHooked("unmark_journal_entry"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[id]; ok {
		entry.Reconciled = false
		entry.ReconciledAt = nil
	}
	return nil
}

func (m *MemoryStore) InsertReconciliationRecord(ctx context.Context, record *models.ReconciliationRecord) error {
	if err := m.failIfHooked("insert_record"); err != nil {
		return err
	}

	if err := record.Validate(); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "reconciliation_record", record.String(), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey(record.BankTransactionID, record.JournalEntryID)
	if _, exists := m.records[key]; exists {
		return errors.WriteError(errors.CodeWriteConflict, "insert reconciliation record", nil).
			WithContext("bank_transaction_id", record.BankTransactionID).
			WithContext("journal_entry_id", record.JournalEntryID)
	}

	cp := *record
	m.records[key] = &cp
	return nil
}

func (m *MemoryStore) DeleteReconciliationRecord(ctx context.Context, bankTransactionID, journalEntryID string) error {
	if err := m.failIfHooked("delete_record"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, recordKey(bankTransactionID, journalEntryID))
	return nil
}

func (m *MemoryStore) GetReconciliationRecord(ctx context.Context, bankTransactionID, journalEntryID string) (*models.ReconciliationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[recordKey(bankTransactionID, journalEntryID)]
	if !ok {
		return nil, nil
	}
	cp := *record
	return &cp, nil
}

func (m *MemoryStore) CountReconciliationState(ctx context.Context, companyID string) (*StateCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := &StateCounts{}
	for _, tx := range m.transactions {
		if tx.CompanyID != companyID {
			continue
		}
		counts.TotalTransactions++
		if tx.Reconciled {
			counts.ReconciledTransactions++
		}
	}
	for _, record := range m.records {
		if record.CompanyID != companyID {
			continue
		}
		counts.ActiveRecords++
		counts.ConfidenceSum += record.Confidence
	}
	return counts, nil
}
