package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/visibility-cli/internal/model"
)

// FormatReport renders a full report as human-readable text for the CLI.
func FormatReport(full *model.FullReport, competitors []model.CompetitorStanding, sources []model.SourceCount) string {
	var b strings.Builder

	name := full.Company.Name
	if name == "" {
		name = full.Company.URL
	}
	fmt.Fprintf(&b, "# Visibility Report: %s\n", name)
	fmt.Fprintf(&b, "URL: %s\n", full.Company.URL)
	fmt.Fprintf(&b, "Report ID: %s\n", full.Report.ID)
	fmt.Fprintf(&b, "Status: %s\n", full.Report.Status)
	if full.Report.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", full.Report.Error)
	}
	fmt.Fprintf(&b, "Execution: %dms\n\n", full.Report.ExecutionMs)

	if summary := full.Report.Summary; summary != nil {
		b.WriteString("## Summary\n")
		fmt.Fprintf(&b, "- Visibility level: %s\n", summary.VisibilityLevel)
		for _, f := range summary.VisibilityFactors {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
		for _, svc := range full.Report.Services {
			m, ok := summary.Metrics[svc]
			if !ok {
				continue
			}
			rank := "n/a"
			if m.AverageRank != nil {
				rank = fmt.Sprintf("%.2f", *m.AverageRank)
			}
			fmt.Fprintf(&b, "- %s: score %d, coverage %.1f%%, mention rate %.1f%%, avg rank %s\n",
				svc, m.VisibilityScore, m.QueryCoverage, m.MentionRate, rank)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Prompts\n")
	if len(full.Prompts) == 0 {
		b.WriteString("No prompts recorded.\n")
	}
	for _, fp := range full.Prompts {
		fmt.Fprintf(&b, "%d. [%s] %s\n", fp.Prompt.OrderIndex+1, fp.Prompt.Category, fp.Prompt.Text)
		for _, svc := range full.Report.Services {
			agg, ok := fp.Prompt.Aggregates[svc]
			if !ok {
				continue
			}
			rank := "n/a"
			if agg.AverageRank != nil {
				rank = fmt.Sprintf("%.2f", *agg.AverageRank)
			}
			fmt.Fprintf(&b, "   %s: mentioned %d/%d (%.0f%%), avg rank %s, %d sources\n",
				svc, agg.MentionedCount, agg.TotalRuns, agg.MentionProbability, rank, agg.TotalSources)
		}
	}
	b.WriteString("\n")

	if len(competitors) > 0 {
		b.WriteString("## Competitors\n")
		for i, c := range competitors {
			fmt.Fprintf(&b, "%d. %s: %d mentions, avg rank %.2f\n", i+1, c.Name, c.Mentions, c.AverageRank)
		}
		b.WriteString("\n")
	}

	if len(sources) > 0 {
		b.WriteString("## Top Sources\n")
		for _, s := range sources {
			fmt.Fprintf(&b, "- %s: %d citations\n", s.Domain, s.Citations)
		}
	}

	return b.String()
}
