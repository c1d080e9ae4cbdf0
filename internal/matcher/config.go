// Package matcher implements the bank-reconciliation matching engine: similarity
// scoring between bank transactions and journal entries, weighted confidence
// evaluation, and greedy one-shot match assignment.
//
// The engine uses a three-stage approach per bank transaction:
//  1. Hard gating on amount and date tolerances
//  2. Scoring based on amount, date, and description similarity
//  3. First-fit acceptance above a confidence threshold
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.DateToleranceDays = 2
//
//	engine := matcher.NewMatchingEngine(config)
//	result, err := engine.Reconcile(transactions, entries)
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchType classifies the quality of an accepted match. The classification is
// persisted with reconciliation records and drives how much manual review an
// accepted match deserves.
type MatchType int

const (
	// MatchExact represents a perfect match: exact amount and same date.
	// These matches usually require no manual review.
	MatchExact MatchType = iota

	// MatchDateAmount represents an exact amount with a near-exact date.
	// These matches may require minimal review.
	MatchDateAmount

	// MatchFuzzy represents a match that clears the confidence threshold on
	// the combined score without exact amount-and-date agreement. These
	// matches usually require manual review before acceptance.
	MatchFuzzy

	// MatchNone indicates the pair did not qualify as a match.
	MatchNone
)

// String returns the persisted string form of the MatchType
func (mt MatchType) String() string {
	switch mt {
	case MatchExact:
		return "exact"
	case MatchDateAmount:
		return "date_amount"
	case MatchFuzzy:
		return "fuzzy"
	case MatchNone:
		return "none"
	default:
		return "unknown"
	}
}

// MatchingWeights defines the relative importance of the similarity criteria.
// Weights must sum to approximately 1.0.
type MatchingWeights struct {
	AmountWeight      float64 `json:"amount_weight" mapstructure:"amount_weight"`
	DateWeight        float64 `json:"date_weight" mapstructure:"date_weight"`
	DescriptionWeight float64 `json:"description_weight" mapstructure:"description_weight"`
}

// Validate checks if the matching weights are valid
func (mw *MatchingWeights) Validate() error {
	if mw.AmountWeight < 0.0 || mw.AmountWeight > 1.0 {
		return fmt.Errorf("amount weight must be between 0.0 and 1.0: %f", mw.AmountWeight)
	}

	if mw.DateWeight < 0.0 || mw.DateWeight > 1.0 {
		return fmt.Errorf("date weight must be between 0.0 and 1.0: %f", mw.DateWeight)
	}

	if mw.DescriptionWeight < 0.0 || mw.DescriptionWeight > 1.0 {
		return fmt.Errorf("description weight must be between 0.0 and 1.0: %f", mw.DescriptionWeight)
	}

	total := mw.AmountWeight + mw.DateWeight + mw.DescriptionWeight
	if total < 0.9 || total > 1.1 {
		return fmt.Errorf("weights should sum to approximately 1.0, got %f", total)
	}

	return nil
}

// MatchingConfig holds the tunable parameters of the matching algorithm.
// Different tenants or jurisdictions can run with different tolerances; the
// defaults reproduce the production matching behavior.
//
// Configuration areas:
//   - Hard gates: amount tolerance and date window that exclude a pair outright
//   - Match quality: confidence threshold and the classification boundary
//   - Scoring: relative weights for amount, date, and description similarity
//   - Batch bounds: caps on the candidate sets fetched per run
type MatchingConfig struct {
	// AmountTolerance is the maximum absolute amount difference, in currency
	// units, for a pair to be considered at all (hard gate).
	AmountTolerance decimal.Decimal `json:"amount_tolerance" mapstructure:"amount_tolerance"`

	// DateToleranceDays is the maximum date difference, in whole days, for a
	// pair to be considered at all (hard gate).
	DateToleranceDays int `json:"date_tolerance_days" mapstructure:"date_tolerance_days"`

	// MinConfidenceScore is the minimum combined confidence for a candidate
	// to be accepted into the result set.
	MinConfidenceScore float64 `json:"min_confidence_score" mapstructure:"min_confidence_score"`

	// DateAmountBoundary is the minimum date score for an exact-amount pair
	// to classify as a date_amount match rather than fuzzy.
	DateAmountBoundary float64 `json:"date_amount_boundary" mapstructure:"date_amount_boundary"`

	// MaxBankTransactions caps the number of unreconciled bank transactions
	// fetched per run.
	MaxBankTransactions int `json:"max_bank_transactions" mapstructure:"max_bank_transactions"`

	// MaxJournalEntries caps the number of unreconciled journal entries
	// fetched per run.
	MaxJournalEntries int `json:"max_journal_entries" mapstructure:"max_journal_entries"`

	// JournalLookbackDays confines candidate journal entries to a trailing
	// date window.
	JournalLookbackDays int `json:"journal_lookback_days" mapstructure:"journal_lookback_days"`

	// Weights holds the relative importance of the similarity criteria.
	Weights MatchingWeights `json:"weights" mapstructure:"weights"`
}

// DefaultMatchingConfig returns the production matching configuration:
// 0.01 amount tolerance, 3-day date window, 0.7 confidence cutoff, and
// 0.5/0.3/0.2 amount/date/description weights.
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AmountTolerance:     decimal.NewFromFloat(0.01),
		DateToleranceDays:   3,
		MinConfidenceScore:  0.7,
		DateAmountBoundary:  0.9,
		MaxBankTransactions: 100,
		MaxJournalEntries:   200,
		JournalLookbackDays: 30,
		Weights: MatchingWeights{
			AmountWeight:      0.5,
			DateWeight:        0.3,
			DescriptionWeight: 0.2,
		},
	}
}

// StrictMatchingConfig returns a configuration for strict matching: same-day
// exact amounts only, with a high acceptance bar.
func StrictMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AmountTolerance:     decimal.Zero,
		DateToleranceDays:   0,
		MinConfidenceScore:  0.95,
		DateAmountBoundary:  0.9,
		MaxBankTransactions: 100,
		MaxJournalEntries:   200,
		JournalLookbackDays: 30,
		Weights: MatchingWeights{
			AmountWeight:      0.6,
			DateWeight:        0.3,
			DescriptionWeight: 0.1,
		},
	}
}

// RelaxedMatchingConfig returns a configuration for exploratory matching with
// wider tolerances and a lower acceptance bar.
func RelaxedMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AmountTolerance:     decimal.NewFromFloat(0.05),
		DateToleranceDays:   7,
		MinConfidenceScore:  0.5,
		DateAmountBoundary:  0.8,
		MaxBankTransactions: 200,
		MaxJournalEntries:   400,
		JournalLookbackDays: 60,
		Weights: MatchingWeights{
			AmountWeight:      0.5,
			DateWeight:        0.3,
			DescriptionWeight: 0.2,
		},
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", mc.AmountTolerance.String())
	}

	if mc.DateToleranceDays < 0 {
		return fmt.Errorf("date tolerance days cannot be negative: %d", mc.DateToleranceDays)
	}

	if mc.MinConfidenceScore < 0.0 || mc.MinConfidenceScore > 1.0 {
		return fmt.Errorf("minimum confidence score must be between 0.0 and 1.0: %f", mc.MinConfidenceScore)
	}

	if mc.DateAmountBoundary < 0.0 || mc.DateAmountBoundary > 1.0 {
		return fmt.Errorf("date-amount boundary must be between 0.0 and 1.0: %f", mc.DateAmountBoundary)
	}

	if mc.MaxBankTransactions <= 0 {
		return fmt.Errorf("max bank transactions must be positive: %d", mc.MaxBankTransactions)
	}

	if mc.MaxJournalEntries <= 0 {
		return fmt.Errorf("max journal entries must be positive: %d", mc.MaxJournalEntries)
	}

	if mc.JournalLookbackDays <= 0 {
		return fmt.Errorf("journal lookback days must be positive: %d", mc.JournalLookbackDays)
	}

	if err := mc.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	return nil
}

// Clone creates a deep copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}

	clone := *mc
	return &clone
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{AmountTolerance: %s, DateTolerance: %d days, MinConfidence: %.2f, Weights: %.2f/%.2f/%.2f}",
		mc.AmountTolerance.String(), mc.DateToleranceDays, mc.MinConfidenceScore,
		mc.Weights.AmountWeight, mc.Weights.DateWeight, mc.Weights.DescriptionWeight)
}
