package service

import (
	"sort"
	"strings"

	"github.com/medication-safety-cds/internal/domain"
)

// SynthesizeRecommendations orders alerts by severity, most severe first and stable on
// ties, and emits one recommendation per distinct action. Alerts sharing an action are
// merged into the first recommendation's related alert IDs.
func SynthesizeRecommendations(alerts []domain.Alert) []domain.Recommendation {
	ordered := make([]domain.AlertBase, len(alerts))
	for i, alert := range alerts {
		ordered[i] = alert.Common()
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Severity.Rank() > ordered[j].Severity.Rank()
	})

	recommendations := make([]domain.Recommendation, 0)
	index := make(map[string]int)
	for _, alert := range ordered {
		for _, action := range alert.Recommendations {
			key := strings.ToLower(strings.TrimSpace(action))
			if key == "" {
				continue
			}
			if i, ok := index[key]; ok {
				recommendations[i].RelatedAlertIDs = appendUnique(recommendations[i].RelatedAlertIDs, alert.ID)
				continue
			}
			index[key] = len(recommendations)
			recommendations = append(recommendations, domain.Recommendation{
				Priority:        alert.Severity,
				Action:          strings.TrimSpace(action),
				Rationale:       alert.Rationale,
				RelatedAlertIDs: []string{alert.ID},
			})
		}
	}
	return recommendations
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
