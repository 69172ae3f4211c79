package service

import (
	"github.com/medication-safety-cds/internal/domain"
)

// MaxRiskScore is the upper bound of the overall risk score.
const MaxRiskScore = 100

// AggregateRiskScore sums the severity weight of every alert, clamped to [0, MaxRiskScore].
func AggregateRiskScore(alerts []domain.Alert) int {
	score := 0
	for _, alert := range alerts {
		score += alert.Common().Severity.Weight()
		if score >= MaxRiskScore {
			return MaxRiskScore
		}
	}
	return clamp(score, 0, MaxRiskScore)
}
