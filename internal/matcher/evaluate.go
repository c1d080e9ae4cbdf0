package matcher

import (
	"fmt"
	"math"

	"bank-reconciliation-engine/internal/models"
)

// MatchResult is an ephemeral match proposal: the candidate pair, the combined
// confidence, the match-type classification, and the three component scores.
// Results are produced by each matching run and consumed by the caller for
// acceptance or rejection; they are never persisted as-is.
type MatchResult struct {
	BankTransaction  *models.BankTransaction `json:"bank_transaction"`
	JournalEntry     *models.JournalEntry    `json:"journal_entry"`
	Confidence       float64                 `json:"confidence"`
	MatchType        MatchType               `json:"match_type"`
	AmountScore      float64                 `json:"amount_score"`
	DateScore        float64                 `json:"date_score"`
	DescriptionScore float64                 `json:"description_score"`
}

// String returns a string representation of the MatchResult
func (mr *MatchResult) String() string {
	return fmt.Sprintf("MatchResult{BankTx: %s, Entry: %s, Confidence: %.2f, Type: %s}",
		mr.BankTransaction.ID, mr.JournalEntry.ID, mr.Confidence, mr.MatchType)
}

// EvaluateCandidate scores a (bank transaction, journal entry) pair. The pair
// must clear both hard gates (amount and date tolerance) and the combined
// confidence threshold to qualify; ok reports whether it did. The confidence is
// the weighted sum of the three component scores, rounded to 2 decimal places.
func (mc *MatchingConfig) EvaluateCandidate(tx *models.BankTransaction, entry *models.JournalEntry) (result *MatchResult, ok bool) {
	amountScore, ok := mc.AmountScore(tx.MatchingAmount(), entry.MatchingAmount())
	if !ok {
		return nil, false
	}

	dateScore, ok := mc.DateScore(tx.TransactionDate, entry.EntryDate)
	if !ok {
		return nil, false
	}

	descriptionScore := DescriptionScore(tx.Description, entry.Description)

	confidence := amountScore*mc.Weights.AmountWeight +
		dateScore*mc.Weights.DateWeight +
		descriptionScore*mc.Weights.DescriptionWeight
	confidence = math.Round(confidence*100) / 100

	if confidence < mc.MinConfidenceScore {
		return nil, false
	}

	return &MatchResult{
		BankTransaction:  tx,
		JournalEntry:     entry,
		Confidence:       confidence,
		MatchType:        mc.classifyMatch(amountScore, dateScore, descriptionScore),
		AmountScore:      amountScore,
		DateScore:        dateScore,
		DescriptionScore: descriptionScore,
	}, true
}

// classifyMatch determines the match type from the component scores, in
// priority order: exact, then date_amount, then fuzzy. An exact match requires
// all three components to score 1.0; identical amount and date with a merely
// similar description classifies as date_amount. The date_amount rule uses the
// configured boundary rather than requiring an exact date.
func (mc *MatchingConfig) classifyMatch(amountScore, dateScore, descriptionScore float64) MatchType {
	if amountScore == 1.0 && dateScore == 1.0 && descriptionScore == 1.0 {
		return MatchExact
	}

	if amountScore == 1.0 && dateScore >= mc.DateAmountBoundary {
		return MatchDateAmount
	}

	return MatchFuzzy
}
