package reconciler

import (
	"context"
	"math"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/pkg/errors"
	"bank-reconciliation-engine/pkg/logger"

	"github.com/google/uuid"
)

// AcceptRequest identifies a proposal the caller wants to commit
type AcceptRequest struct {
	CompanyID         string
	BankTransactionID string
	JournalEntryID    string
	MatchType         string
	Confidence        float64
}

func (r *AcceptRequest) validate() error {
	if r.CompanyID == "" {
		return errors.ValidationError(errors.CodeMissingField, "company_id", "", nil)
	}
	if r.BankTransactionID == "" {
		return errors.ValidationError(errors.CodeMissingField, "bank_transaction_id", "", nil)
	}
	if r.JournalEntryID == "" {
		return errors.ValidationError(errors.CodeMissingField, "journal_entry_id", "", nil)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return errors.ValidationError(errors.CodeOutOfRange, "confidence", r.Confidence, nil)
	}
	return nil
}

// AcceptMatch commits a match: it marks both sides reconciled and inserts the
// reconciliation record. The three writes are sequential and not atomic, so a
// mid-sequence failure triggers compensation that unwinds the writes already
// applied. Accepting the same pair twice is a no-op returning the existing
// record.
func (s *ReconciliationService) AcceptMatch(ctx context.Context, req *AcceptRequest) (*models.ReconciliationRecord, error) {
	if req == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "request", nil, nil)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	log := s.log.WithFields(logger.Fields{
		"bank_transaction_id": req.BankTransactionID,
		"journal_entry_id":    req.JournalEntryID,
	})

	// Idempotence guard: an existing record for the pair means a previous
	// acceptance already completed.
	existing, err := s.store.GetReconciliationRecord(ctx, req.BankTransactionID, req.JournalEntryID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Info("match already accepted")
		return existing, nil
	}

	tx, err := s.store.GetBankTransaction(ctx, req.BankTransactionID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "bank_transaction_id", req.BankTransactionID, nil).
			WithSuggestion("Verify the bank transaction exists before accepting a match")
	}

	entry, err := s.store.GetJournalEntry(ctx, req.JournalEntryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "journal_entry_id", req.JournalEntryID, nil).
			WithSuggestion("Verify the journal entry exists before accepting a match")
	}

	matchType := req.MatchType
	if matchType == "" {
		matchType = models.MatchTypeManual
	}

	// Cancellation is honored between phases, never inside the write sequence.
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "accept aborted before writes")
	}

	now := s.now()
	record := &models.ReconciliationRecord{
		ID:                uuid.New().String(),
		CompanyID:         req.CompanyID,
		BankTransactionID: req.BankTransactionID,
		JournalEntryID:    req.JournalEntryID,
		MatchType:         matchType,
		Confidence:        req.Confidence,
		MatchedAt:         now,
	}

	// Write 1 of 3
	if err := s.store.MarkBankTransactionReconciled(ctx, req.BankTransactionID, now); err != nil {
		log.WithError(err).Error("accept failed before any write took effect")
		return nil, err
	}

	// Write 2 of 3
	if err := s.store.MarkJournalEntryReconciled(ctx, req.JournalEntryID, now); err != nil {
		log.WithError(err).Warn("accept failed mid-sequence, compensating")
		if compErr := s.store.UnmarkBankTransactionReconciled(ctx, req.BankTransactionID); compErr != nil {
			log.WithError(compErr).Error("compensation failed, state is inconsistent")
			return nil, errors.WriteError(errors.CodePartialApply, "accept match", err).
				WithContext("bank_transaction_id", req.BankTransactionID).
				WithContext("journal_entry_id", req.JournalEntryID).
				WithSuggestion("Run Repair to restore a consistent state")
		}
		return nil, err
	}

	// Write 3 of 3
	if err := s.store.InsertReconciliationRecord(ctx, record); err != nil {
		log.WithError(err).Warn("accept failed mid-sequence, compensating")
		compensated := true
		if compErr := s.store.UnmarkJournalEntryReconciled(ctx, req.JournalEntryID); compErr != nil {
			log.WithError(compErr).Error("journal entry compensation failed")
			compensated = false
		}
		if compErr := s.store.UnmarkBankTransactionReconciled(ctx, req.BankTransactionID); compErr != nil {
			log.WithError(compErr).Error("bank transaction compensation failed")
			compensated = false
		}
		if !compensated {
			return nil, errors.WriteError(errors.CodePartialApply, "accept match", err).
				WithContext("bank_transaction_id", req.BankTransactionID).
				WithContext("journal_entry_id", req.JournalEntryID).
				WithSuggestion("Run Repair to restore a consistent state")
		}
		return nil, err
	}

	log.WithField("record_id", record.ID).Info("match accepted")
	return record, nil
}

// ReverseMatch undoes an accepted match: it clears both reconciled flags and
// deletes the record. Every step is idempotent, so reversing a pair that was
// never accepted, or reversing twice, succeeds without effect.
func (s *ReconciliationService) ReverseMatch(ctx context.Context, bankTransactionID, journalEntryID string) error {
	if bankTransactionID == "" {
		return errors.ValidationError(errors.CodeMissingField, "bank_transaction_id", "", nil)
	}
	if journalEntryID == "" {
		return errors.ValidationError(errors.CodeMissingField, "journal_entry_id", "", nil)
	}

	log := s.log.WithFields(logger.Fields{
		"bank_transaction_id": bankTransactionID,
		"journal_entry_id":    journalEntryID,
	})

	if err := s.store.UnmarkBankTransactionReconciled(ctx, bankTransactionID); err != nil {
		return err
	}
	if err := s.store.UnmarkJournalEntryReconciled(ctx, journalEntryID); err != nil {
		return err
	}
	if err := s.store.DeleteReconciliationRecord(ctx, bankTransactionID, journalEntryID); err != nil {
		return err
	}

	log.Info("match reversed")
	return nil
}

// PairStatus describes the persisted state of one (transaction, entry) pair
type PairStatus struct {
	BankTransactionID     string `json:"bank_transaction_id"`
	JournalEntryID        string `json:"journal_entry_id"`
	TransactionReconciled bool   `json:"transaction_reconciled"`
	EntryReconciled       bool   `json:"entry_reconciled"`
	RecordExists          bool   `json:"record_exists"`
	Consistent            bool   `json:"consistent"`
}

// Status inspects the three persisted facts about a pair and reports whether
// they agree. All three set, or all three clear, is consistent; anything else
// is the residue of a failed acceptance whose compensation did not complete.
func (s *ReconciliationService) Status(ctx context.Context, bankTransactionID, journalEntryID string) (*PairStatus, error) {
	tx, err := s.store.GetBankTransaction(ctx, bankTransactionID)
	if err != nil {
		return nil, err
	}
	entry, err := s.store.GetJournalEntry(ctx, journalEntryID)
	if err != nil {
		return nil, err
	}
	record, err := s.store.GetReconciliationRecord(ctx, bankTransactionID, journalEntryID)
	if err != nil {
		return nil, err
	}

	status := &PairStatus{
		BankTransactionID: bankTransactionID,
		JournalEntryID:    journalEntryID,
		RecordExists:      record != nil,
	}
	if tx != nil {
		status.TransactionReconciled = tx.Reconciled
	}
	if entry != nil {
		status.EntryReconciled = entry.Reconciled
	}

	allSet := status.TransactionReconciled && status.EntryReconciled && status.RecordExists
	allClear := !status.TransactionReconciled && !status.EntryReconciled && !status.RecordExists
	status.Consistent = allSet || allClear

	return status, nil
}

// Repair restores a pair in a partial state back to fully unreconciled, the
// safe direction since a reversal can always be re-accepted. Consistent pairs
// are left untouched.
func (s *ReconciliationService) Repair(ctx context.Context, bankTransactionID, journalEntryID string) (*PairStatus, error) {
	status, err := s.Status(ctx, bankTransactionID, journalEntryID)
	if err != nil {
		return nil, err
	}
	if status.Consistent {
		return status, nil
	}

	s.log.WithFields(logger.Fields{
		"bank_transaction_id": bankTransactionID,
		"journal_entry_id":    journalEntryID,
	}).Warn("repairing inconsistent pair")

	if err := s.ReverseMatch(ctx, bankTransactionID, journalEntryID); err != nil {
		return nil, err
	}

	return s.Status(ctx, bankTransactionID, journalEntryID)
}

// AutoAcceptResult summarizes a batch acceptance pass
type AutoAcceptResult struct {
	Accepted int                            `json:"accepted"`
	Skipped  int                            `json:"skipped"`
	Failed   int                            `json:"failed"`
	Records  []*models.ReconciliationRecord `json:"records"`
}

// AutoAccept runs a reconciliation pass and commits every proposal whose
// confidence reaches minConfidence. Proposals below the floor are skipped and
// a single failed acceptance does not stop the batch.
func (s *ReconciliationService) AutoAccept(ctx context.Context, req *RunRequest, minConfidence float64) (*AutoAcceptResult, error) {
	if minConfidence < 0 || minConfidence > 1 {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "min_confidence", minConfidence, nil)
	}

	runResult, err := s.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &AutoAcceptResult{}
	for _, match := range runResult.Matches {
		if match.Confidence < minConfidence {
			result.Skipped++
			continue
		}

		record, err := s.AcceptMatch(ctx, &AcceptRequest{
			CompanyID:         req.CompanyID,
			BankTransactionID: match.BankTransaction.ID,
			JournalEntryID:    match.JournalEntry.ID,
			MatchType:         match.MatchType.String(),
			Confidence:        match.Confidence,
		})
		if err != nil {
			s.log.WithError(err).WithFields(logger.Fields{
				"bank_transaction_id": match.BankTransaction.ID,
				"journal_entry_id":    match.JournalEntry.ID,
			}).Warn("auto-accept skipped failing match")
			result.Failed++
			continue
		}

		result.Accepted++
		result.Records = append(result.Records, record)
	}

	s.log.WithFields(logger.Fields{
		"accepted": result.Accepted,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
	}).Info("auto-accept complete")

	return result, nil
}

// Stats summarizes the persisted reconciliation state of a company
type Stats struct {
	CompanyID                string  `json:"company_id"`
	TotalTransactions        int     `json:"total_transactions"`
	ReconciledTransactions   int     `json:"reconciled_transactions"`
	UnreconciledTransactions int     `json:"unreconciled_transactions"`
	ReconciliationRate       float64 `json:"reconciliation_rate"`
	ActiveRecords            int     `json:"active_records"`
	AverageConfidence        float64 `json:"average_confidence"`
}

// GetStats computes reconciliation coverage for a company
func (s *ReconciliationService) GetStats(ctx context.Context, companyID string) (*Stats, error) {
	if companyID == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "company_id", "", nil)
	}

	counts, err := s.store.CountReconciliationState(ctx, companyID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		CompanyID:                companyID,
		TotalTransactions:        counts.TotalTransactions,
		ReconciledTransactions:   counts.ReconciledTransactions,
		UnreconciledTransactions: counts.TotalTransactions - counts.ReconciledTransactions,
		ActiveRecords:            counts.ActiveRecords,
	}
	if counts.TotalTransactions > 0 {
		rate := float64(counts.ReconciledTransactions) / float64(counts.TotalTransactions)
		stats.ReconciliationRate = math.Round(rate*10000) / 10000
	}
	if counts.ActiveRecords > 0 {
		avg := counts.ConfidenceSum / float64(counts.ActiveRecords)
		stats.AverageConfidence = math.Round(avg*10000) / 10000
	}

	return stats, nil
}
