// Package reconciler orchestrates reconciliation runs and manages the
// persistent reconciliation state that results from accepting them.
//
// A run is read-only: it fetches unreconciled bank transactions and journal
// entries, proposes matches through the matching engine, and returns them.
// Nothing is written until a caller accepts a proposal with AcceptMatch, and
// an accepted match can later be undone with ReverseMatch.
package reconciler

import (
	"context"
	"time"

	"bank-reconciliation-engine/internal/matcher"
	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/internal/store"
	"bank-reconciliation-engine/pkg/errors"
	"bank-reconciliation-engine/pkg/logger"
)

// ReconciliationService coordinates candidate fetching, matching, and state
// transitions for one tenant at a time.
type ReconciliationService struct {
	store  store.RecordStore
	engine *matcher.MatchingEngine
	log    logger.Logger
	now    func() time.Time
}

// NewReconciliationService creates a service over the given store. A nil
// config selects the default matching configuration; a nil logger discards
// log output.
func NewReconciliationService(recordStore store.RecordStore, config *matcher.MatchingConfig, log logger.Logger) (*ReconciliationService, error) {
	if recordStore == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "store", nil, nil)
	}
	if config == nil {
		config = matcher.DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &ReconciliationService{
		store:  recordStore,
		engine: matcher.NewMatchingEngine(config),
		log:    log.WithComponent("reconciler"),
		now:    time.Now,
	}, nil
}

// RunRequest identifies the tenant scope of a reconciliation run
type RunRequest struct {
	CompanyID     string
	BankAccountID string
}

func (r *RunRequest) validate() error {
	if r.CompanyID == "" {
		return errors.ValidationError(errors.CodeMissingField, "company_id", "", nil)
	}
	if r.BankAccountID == "" {
		return errors.ValidationError(errors.CodeMissingField, "bank_account_id", "", nil)
	}
	return nil
}

// RunResult carries the proposals and the leftovers of one run
type RunResult struct {
	CompanyID             string                        `json:"company_id"`
	BankAccountID         string                        `json:"bank_account_id"`
	Matches               []*matcher.MatchResult        `json:"matches"`
	UnmatchedTransactions []*models.BankTransaction     `json:"unmatched_transactions"`
	UnmatchedEntries      []*models.JournalEntry        `json:"unmatched_entries"`
	Summary               matcher.ReconciliationSummary `json:"summary"`
	RanAt                 time.Time                     `json:"ran_at"`
	Duration              time.Duration                 `json:"duration"`
}

// Run executes one side-effect-free reconciliation run: fetch the bounded
// candidate sets, score them, and return the proposals sorted by confidence
// descending. A fetch failure aborts the run; since nothing was written the
// caller can simply retry.
func (s *ReconciliationService) Run(ctx context.Context, req *RunRequest) (*RunResult, error) {
	if req == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "request", nil, nil)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	config := s.engine.GetConfiguration()
	log := s.log.WithFields(logger.Fields{
		"company_id":      req.CompanyID,
		"bank_account_id": req.BankAccountID,
	})

	transactions, err := s.store.FetchUnreconciledBankTransactions(ctx, req.BankAccountID, config.MaxBankTransactions)
	if err != nil {
		log.WithError(err).Error("failed to fetch bank transactions")
		return nil, err
	}

	since := s.now().AddDate(0, 0, -config.JournalLookbackDays)
	entries, err := s.store.FetchUnreconciledJournalEntries(ctx, req.CompanyID, since, config.MaxJournalEntries)
	if err != nil {
		log.WithError(err).Error("failed to fetch journal entries")
		return nil, err
	}

	log.WithFields(logger.Fields{
		"transactions": len(transactions),
		"entries":      len(entries),
	}).Info("starting reconciliation run")

	matchResult, err := s.engine.Reconcile(transactions, entries)
	if err != nil {
		return nil, errors.MatchingError(errors.CodeMatchingFailed, "reconciliation run", err)
	}

	log.WithFields(logger.Fields{
		"matched":   matchResult.Summary.MatchedPairs,
		"unmatched": matchResult.Summary.UnmatchedTransactions,
	}).Info("reconciliation run complete")

	return &RunResult{
		CompanyID:             req.CompanyID,
		BankAccountID:         req.BankAccountID,
		Matches:               matchResult.Matches,
		UnmatchedTransactions: matchResult.UnmatchedTransactions,
		UnmatchedEntries:      matchResult.UnmatchedEntries,
		Summary:               matchResult.Summary,
		RanAt:                 s.now(),
		Duration:              time.Since(started),
	}, nil
}

// GetConfiguration returns a copy of the active matching configuration
func (s *ReconciliationService) GetConfiguration() *matcher.MatchingConfig {
	return s.engine.GetConfiguration()
}

// UpdateConfiguration swaps in a new matching configuration after validating it
func (s *ReconciliationService) UpdateConfiguration(config *matcher.MatchingConfig) error {
	return s.engine.UpdateConfiguration(config)
}
