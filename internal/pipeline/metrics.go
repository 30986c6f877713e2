package pipeline

import (
	"math"

	"github.com/sells-group/visibility-cli/internal/model"
)

// Finalize folds all prompt outcomes into per-service report metrics.
// Pure function; persisting the result is the caller's job.
//
// averageRank is the mean of ranks across every mentioned run with an
// identifiable rank; unmentioned and rank-less runs are excluded, not
// counted as zero. A report with zero mentions always scores 0 no matter
// what query coverage says.
func Finalize(outcomes []promptOutcome, services []model.ServiceID) map[model.ServiceID]model.ServiceMetrics {
	metrics := make(map[model.ServiceID]model.ServiceMetrics, len(services))
	for _, svc := range services {
		metrics[svc] = serviceMetrics(outcomes, svc)
	}
	return metrics
}

func serviceMetrics(outcomes []promptOutcome, svc model.ServiceID) model.ServiceMetrics {
	var totalRuns, mentionedRuns, mentionedPrompts int
	var rankSum float64
	var rankCount int

	for _, o := range outcomes {
		agg, ok := o.aggregates[svc]
		if ok {
			totalRuns += agg.TotalRuns
			mentionedRuns += agg.MentionedCount
			if agg.Mentioned {
				mentionedPrompts++
			}
		}
		for _, r := range o.runs[svc] {
			if r.BusinessMentioned && r.Rank != nil {
				rankSum += float64(*r.Rank)
				rankCount++
			}
		}
	}

	var m model.ServiceMetrics
	if len(outcomes) > 0 {
		m.QueryCoverage = float64(mentionedPrompts) / float64(len(outcomes)) * 100
	}
	if totalRuns > 0 {
		m.MentionRate = float64(mentionedRuns) / float64(totalRuns) * 100
	}
	if rankCount > 0 {
		avg := rankSum / float64(rankCount)
		m.AverageRank = &avg
	}
	m.VisibilityScore = visibilityScore(m.QueryCoverage, m.MentionRate, m.AverageRank, mentionedRuns)
	return m
}

func visibilityScore(coverage, mentionRate float64, averageRank *float64, mentionedRuns int) int {
	if mentionedRuns == 0 {
		return 0
	}
	rank := 1.0
	if averageRank != nil && *averageRank > 0 {
		rank = *averageRank
	}
	return int(math.Round(coverage / 100 * mentionRate / 100 * (1 / rank) * 100))
}
