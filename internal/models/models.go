package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BankTransaction represents one bank-statement line for a specific bank account.
// Transactions are created by statement import, read by the matching engine, and
// mutated (reconciled flag plus timestamp) only through the reconciliation state
// manager. They are never deleted by this subsystem.
type BankTransaction struct {
	ID              string          `json:"id"`
	BankAccountID   string          `json:"bank_account_id"`
	CompanyID       string          `json:"company_id"`
	TransactionDate time.Time       `json:"transaction_date"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Reference       string          `json:"reference,omitempty"`
	Reconciled      bool            `json:"reconciled"`
	ReconciledAt    *time.Time      `json:"reconciled_at,omitempty"`
}

// NewBankTransaction creates a new BankTransaction instance
func NewBankTransaction(id, bankAccountID, companyID string, date time.Time, description string, amount decimal.Decimal) *BankTransaction {
	return &BankTransaction{
		ID:              id,
		BankAccountID:   bankAccountID,
		CompanyID:       companyID,
		TransactionDate: date,
		Description:     description,
		Amount:          amount,
	}
}

// Validate performs basic validation on the BankTransaction
func (bt *BankTransaction) Validate() error {
	if strings.TrimSpace(bt.ID) == "" {
		return fmt.Errorf("bank transaction ID cannot be empty")
	}

	if strings.TrimSpace(bt.BankAccountID) == "" {
		return fmt.Errorf("bank transaction account reference cannot be empty")
	}

	if bt.TransactionDate.IsZero() {
		return fmt.Errorf("bank transaction date cannot be zero")
	}

	return nil
}

// MatchingAmount returns the monetary magnitude used for matching.
// Bank statements carry signed amounts (negative for debits).
func (bt *BankTransaction) MatchingAmount() decimal.Decimal {
	return bt.Amount.Abs()
}

// IsDebit returns true if the transaction amount represents a debit (negative amount)
func (bt *BankTransaction) IsDebit() bool {
	return bt.Amount.IsNegative()
}

// String returns a string representation of the BankTransaction
func (bt *BankTransaction) String() string {
	return fmt.Sprintf("BankTransaction{ID: %s, Amount: %s, Date: %s, Reconciled: %t}",
		bt.ID, bt.Amount.String(), bt.TransactionDate.Format("2006-01-02"), bt.Reconciled)
}

// JournalEntry represents one accounting-ledger entry in double-entry form.
// Same ownership and lifecycle rules as BankTransaction: the matching engine
// reads entries, only the reconciliation state manager mutates them.
type JournalEntry struct {
	ID           string          `json:"id"`
	CompanyID    string          `json:"company_id"`
	EntryNumber  string          `json:"entry_number,omitempty"`
	EntryDate    time.Time       `json:"entry_date"`
	Description  string          `json:"description"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	AccountCode  string          `json:"account_code"`
	Reconciled   bool            `json:"reconciled"`
	ReconciledAt *time.Time      `json:"reconciled_at,omitempty"`
}

// NewJournalEntry creates a new JournalEntry instance
func NewJournalEntry(id, companyID string, date time.Time, description string, debit, credit decimal.Decimal, accountCode string) *JournalEntry {
	return &JournalEntry{
		ID:          id,
		CompanyID:   companyID,
		EntryDate:   date,
		Description: description,
		Debit:       debit,
		Credit:      credit,
		AccountCode: accountCode,
	}
}

// Validate performs basic validation on the JournalEntry
func (je *JournalEntry) Validate() error {
	if strings.TrimSpace(je.ID) == "" {
		return fmt.Errorf("journal entry ID cannot be empty")
	}

	if je.EntryDate.IsZero() {
		return fmt.Errorf("journal entry date cannot be zero")
	}

	if je.Debit.IsNegative() {
		return fmt.Errorf("journal entry debit cannot be negative: %s", je.Debit.String())
	}

	if je.Credit.IsNegative() {
		return fmt.Errorf("journal entry credit cannot be negative: %s", je.Credit.String())
	}

	return nil
}

// MatchingAmount returns the entry's amount for matching purposes: |debit - credit|.
func (je *JournalEntry) MatchingAmount() decimal.Decimal {
	return je.Debit.Sub(je.Credit).Abs()
}

// String returns a string representation of the JournalEntry
func (je *JournalEntry) String() string {
	return fmt.Sprintf("JournalEntry{ID: %s, Debit: %s, Credit: %s, Date: %s, Reconciled: %t}",
		je.ID, je.Debit.String(), je.Credit.String(), je.EntryDate.Format("2006-01-02"), je.Reconciled)
}

// MatchTypeManual tags reconciliation records created from a user-confirmed
// match rather than an auto-accepted proposal.
const MatchTypeManual = "manual"

// ReconciliationRecord is the durable evidence of an accepted match between a
// bank transaction and a journal entry. A bank transaction and a journal entry
// can each be referenced by at most one active record at a time.
type ReconciliationRecord struct {
	ID                string    `json:"id"`
	CompanyID         string    `json:"company_id"`
	BankTransactionID string    `json:"bank_transaction_id"`
	JournalEntryID    string    `json:"journal_entry_id"`
	MatchType         string    `json:"match_type"`
	Confidence        float64   `json:"confidence"`
	MatchedAt         time.Time `json:"matched_at"`
}

// Validate performs basic validation on the ReconciliationRecord
func (rr *ReconciliationRecord) Validate() error {
	if strings.TrimSpace(rr.BankTransactionID) == "" {
		return fmt.Errorf("reconciliation record bank transaction reference cannot be empty")
	}

	if strings.TrimSpace(rr.JournalEntryID) == "" {
		return fmt.Errorf("reconciliation record journal entry reference cannot be empty")
	}

	if strings.TrimSpace(rr.MatchType) == "" {
		return fmt.Errorf("reconciliation record match type cannot be empty")
	}

	if rr.Confidence < 0.0 || rr.Confidence > 1.0 {
		return fmt.Errorf("reconciliation record confidence must be between 0.0 and 1.0: %f", rr.Confidence)
	}

	if rr.MatchedAt.IsZero() {
		return fmt.Errorf("reconciliation record matched-at time cannot be zero")
	}

	return nil
}

// String returns a string representation of the ReconciliationRecord
func (rr *ReconciliationRecord) String() string {
	return fmt.Sprintf("ReconciliationRecord{BankTx: %s, Entry: %s, Type: %s, Confidence: %.2f}",
		rr.BankTransactionID, rr.JournalEntryID, rr.MatchType, rr.Confidence)
}

// ParseDecimalFromString parses a decimal value from string with validation,
// tolerating common currency symbols and thousand separators.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// DayDifference returns the absolute difference between two dates in whole
// calendar days, ignoring the time-of-day component.
func DayDifference(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)

	diff := ad.Sub(bd)
	if diff < 0 {
		diff = -diff
	}

	return int(diff / (24 * time.Hour))
}
