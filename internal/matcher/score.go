package matcher

import (
	"strings"
	"time"

	"bank-reconciliation-engine/internal/models"

	"github.com/shopspring/decimal"
)

// AmountScore scores the proximity of two non-negative monetary magnitudes.
// Amount is a hard gate: when the absolute difference exceeds the configured
// tolerance the pair is rejected outright and ok is false. Within tolerance the
// score is 1 - |a-b|/a.
func (mc *MatchingConfig) AmountScore(a, b decimal.Decimal) (score float64, ok bool) {
	diff := a.Sub(b).Abs()
	if diff.GreaterThan(mc.AmountTolerance) {
		return 0, false
	}

	if a.IsZero() {
		if b.IsZero() {
			return 1.0, true
		}
		return 0, false
	}

	ratio, _ := diff.Div(a).Float64()
	return 1.0 - ratio, true
}

// DateScore scores the proximity of two dates in whole calendar days.
// Date is a hard gate: pairs further apart than the configured tolerance are
// rejected and ok is false. Within the window the score decays linearly,
// 1 - days/window.
func (mc *MatchingConfig) DateScore(d1, d2 time.Time) (score float64, ok bool) {
	days := models.DayDifference(d1, d2)
	if days > mc.DateToleranceDays {
		return 0, false
	}

	if mc.DateToleranceDays == 0 {
		return 1.0, true
	}

	return 1.0 - float64(days)/float64(mc.DateToleranceDays), true
}

// DescriptionScore scores the similarity of two free-text descriptions using
// case-insensitive, whitespace-trimmed normalized Levenshtein distance. Unlike
// amount and date this is never a gate: it always contributes, weighted low.
// Equal non-empty strings score 1.0; either string empty scores 0.0.
func DescriptionScore(s1, s2 string) float64 {
	a := strings.ToLower(strings.TrimSpace(s1))
	b := strings.ToLower(strings.TrimSpace(s2))

	if a == "" || b == "" {
		return 0.0
	}

	if a == b {
		return 1.0
	}

	ra := []rune(a)
	rb := []rune(b)

	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}

	return 1.0 - float64(levenshteinDistance(ra, rb))/float64(maxLen)
}

// levenshteinDistance computes the classic edit distance with unit costs for
// substitution, insertion, and deletion. No transposition.
func levenshteinDistance(a, b []rune) int {
	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := 0; j <= len(b); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			deletion := matrix[i-1][j] + 1
			insertion := matrix[i][j-1] + 1
			substitution := matrix[i-1][j-1] + cost

			min := deletion
			if insertion < min {
				min = insertion
			}
			if substitution < min {
				min = substitution
			}

			matrix[i][j] = min
		}
	}

	return matrix[len(a)][len(b)]
}
