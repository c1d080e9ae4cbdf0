package matcher

import (
	"fmt"
	"sort"

	"bank-reconciliation-engine/internal/models"

	"github.com/shopspring/decimal"
)

// MatchingEngine proposes one-to-one correspondences between unreconciled bank
// transactions and journal entries using greedy, transaction-first, one-shot
// assignment: for each bank transaction, in input order, the first journal
// entry that clears both hard gates and the confidence threshold is taken and
// scanning stops for that transaction. A journal entry is only excluded from
// later transactions once it has actually been chosen.
//
// The assignment is deliberately not a maximum-weight bipartite matching; it is
// a first-fit greedy pass appropriate for the small bounded batches the store
// queries supply. Scan order is load-bearing: both input lists are expected in
// date-descending order, and two runs over equal inputs produce identical
// matches.
type MatchingEngine struct {
	Config *MatchingConfig
}

// ReconciliationResult represents the complete result of a matching run
type ReconciliationResult struct {
	Matches               []*MatchResult
	UnmatchedTransactions []*models.BankTransaction
	UnmatchedEntries      []*models.JournalEntry
	Summary               ReconciliationSummary
}

// ReconciliationSummary provides aggregate statistics about a matching run
type ReconciliationSummary struct {
	TotalTransactions     int
	TotalEntries          int
	MatchedPairs          int
	UnmatchedTransactions int
	UnmatchedEntries      int
	ExactMatches          int
	DateAmountMatches     int
	FuzzyMatches          int
	TotalAmountMatched    decimal.Decimal
	TotalAmountUnmatched  decimal.Decimal
}

// NewMatchingEngine creates a new matching engine with the specified configuration
func NewMatchingEngine(config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return &MatchingEngine{
		Config: config,
	}
}

// Reconcile proposes matches between the supplied bank transactions and journal
// entries. Both lists are scanned in the order supplied (date descending from
// the store queries). Empty inputs are not an error and yield an empty result.
// The returned matches are sorted by confidence descending, independent of the
// assignment order used internally.
func (me *MatchingEngine) Reconcile(transactions []*models.BankTransaction, entries []*models.JournalEntry) (*ReconciliationResult, error) {
	if err := me.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matching configuration: %w", err)
	}

	var matches []*MatchResult
	matchedEntryIDs := make(map[string]bool)
	matchedTransactionIDs := make(map[string]bool)

	for _, tx := range transactions {
		for _, entry := range entries {
			if matchedEntryIDs[entry.ID] {
				continue
			}

			result, ok := me.Config.EvaluateCandidate(tx, entry)
			if !ok {
				continue
			}

			matches = append(matches, result)
			matchedTransactionIDs[tx.ID] = true
			matchedEntryIDs[entry.ID] = true
			break
		}
	}

	var unmatchedTransactions []*models.BankTransaction
	for _, tx := range transactions {
		if !matchedTransactionIDs[tx.ID] {
			unmatchedTransactions = append(unmatchedTransactions, tx)
		}
	}

	var unmatchedEntries []*models.JournalEntry
	for _, entry := range entries {
		if !matchedEntryIDs[entry.ID] {
			unmatchedEntries = append(unmatchedEntries, entry)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})

	return &ReconciliationResult{
		Matches:               matches,
		UnmatchedTransactions: unmatchedTransactions,
		UnmatchedEntries:      unmatchedEntries,
		Summary:               me.calculateSummary(matches, transactions, entries, unmatchedTransactions),
	}, nil
}

// calculateSummary calculates aggregate statistics for a matching run
func (me *MatchingEngine) calculateSummary(
	matches []*MatchResult,
	transactions []*models.BankTransaction,
	entries []*models.JournalEntry,
	unmatchedTransactions []*models.BankTransaction,
) ReconciliationSummary {
	summary := ReconciliationSummary{
		TotalTransactions:     len(transactions),
		TotalEntries:          len(entries),
		MatchedPairs:          len(matches),
		UnmatchedTransactions: len(transactions) - len(matches),
		UnmatchedEntries:      len(entries) - len(matches),
		TotalAmountMatched:    decimal.Zero,
		TotalAmountUnmatched:  decimal.Zero,
	}

	for _, match := range matches {
		switch match.MatchType {
		case MatchExact:
			summary.ExactMatches++
		case MatchDateAmount:
			summary.DateAmountMatches++
		case MatchFuzzy:
			summary.FuzzyMatches++
		}

		summary.TotalAmountMatched = summary.TotalAmountMatched.Add(match.BankTransaction.MatchingAmount())
	}

	for _, tx := range unmatchedTransactions {
		summary.TotalAmountUnmatched = summary.TotalAmountUnmatched.Add(tx.MatchingAmount())
	}

	return summary
}

// GetConfiguration returns a copy of the current configuration
func (me *MatchingEngine) GetConfiguration() *MatchingConfig {
	return me.Config.Clone()
}

// UpdateConfiguration updates the matching configuration
func (me *MatchingEngine) UpdateConfiguration(config *MatchingConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	me.Config = config.Clone()
	return nil
}
