package probe

import (
	"github.com/sells-group/visibility-cli/internal/model"
)

// Aggregate summarizes a batch of run results for one (prompt, service)
// pair. It always computes from the full batch, never incrementally, so
// re-running aggregation can not double count.
//
// Mention probability is mentioned runs over all runs. Average rank is
// computed only over runs that were mentioned and have a rank; when no
// run has one, it stays nil rather than a misleading zero.
func Aggregate(results []model.RunResult) model.PromptAggregate {
	agg := model.PromptAggregate{
		TotalRuns: len(results),
	}
	if len(results) == 0 {
		return agg
	}

	rankSum := 0
	rankCount := 0
	uniqueSources := make(map[string]struct{})

	for _, r := range results {
		if r.BusinessMentioned {
			agg.MentionedCount++
			if r.Rank != nil {
				rankSum += *r.Rank
				rankCount++
			}
		}
		for _, src := range r.Sources {
			uniqueSources[src] = struct{}{}
		}
	}

	agg.Mentioned = agg.MentionedCount > 0
	agg.MentionProbability = float64(agg.MentionedCount) / float64(len(results)) * 100
	if rankCount > 0 {
		avg := float64(rankSum) / float64(rankCount)
		agg.AverageRank = &avg
	}
	agg.TotalSources = len(uniqueSources)

	return agg
}
