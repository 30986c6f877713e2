package model

import (
	"net/url"
	"strings"
	"time"
)

// Prompt is one generated query belonging to a report. OrderIndex is the
// only authoritative ordering; it is fixed at generation time regardless
// of completion order. Aggregates start neutral and are overwritten
// exactly once per service after that prompt's batch completes.
type Prompt struct {
	ID         string                        `json:"id"`
	ReportID   string                        `json:"report_id"`
	Category   string                        `json:"category"`
	Text       string                        `json:"text"`
	OrderIndex int                           `json:"order_index"`
	Aggregates map[ServiceID]PromptAggregate `json:"aggregates"`
	CreatedAt  time.Time                     `json:"created_at"`
}

// PromptAggregate summarizes all runs of one (prompt, service) pair.
type PromptAggregate struct {
	Mentioned          bool     `json:"mentioned"`
	MentionedCount     int      `json:"mentioned_count"`
	TotalRuns          int      `json:"total_runs"`
	MentionProbability float64  `json:"mention_probability"`
	AverageRank        *float64 `json:"average_rank,omitempty"`
	TotalSources       int      `json:"total_sources"`
}

// PromptRun is one probe's outcome. Immutable once written.
// Rank is set only when the business was mentioned and a rank was
// identifiable; a mention without a resolvable rank keeps Rank nil.
type PromptRun struct {
	ID                string    `json:"id"`
	PromptID          string    `json:"prompt_id"`
	ReportID          string    `json:"report_id"`
	RunNumber         int       `json:"run_number"`
	Service           ServiceID `json:"service"`
	BusinessMentioned bool      `json:"business_mentioned"`
	Rank              *int      `json:"rank,omitempty"`
	MentionContext    string    `json:"mention_context,omitempty"`
	ExecutionMs       int64     `json:"execution_ms"`
	AnswerChars       int       `json:"answer_chars"`
	TokensUsed        int       `json:"tokens_used"`
	CreatedAt         time.Time `json:"created_at"`
}

// CompetitorMention is one competitor observed in one run's answer.
// Rank 1 is most prominent. Raw observations are kept as-is; the same
// competitor may appear across runs with different ranks.
type CompetitorMention struct {
	ID        string  `json:"id"`
	RunID     string  `json:"run_id"`
	ReportID  string  `json:"report_id"`
	Name      string  `json:"name"`
	Rank      int     `json:"rank"`
	SourceURL *string `json:"source_url,omitempty"`
}

// SourceCitation is one source URL surfaced by one run's answer.
type SourceCitation struct {
	ID                string    `json:"id"`
	RunID             string    `json:"run_id"`
	ReportID          string    `json:"report_id"`
	Service           ServiceID `json:"service"`
	URL               string    `json:"url"`
	Domain            string    `json:"domain"`
	BusinessMentioned bool      `json:"business_mentioned"`
	Competitors       []string  `json:"competitors,omitempty"`
}

// CompetitorEntry is a competitor as reported by answer analysis,
// before persistence.
type CompetitorEntry struct {
	Name      string  `json:"name"`
	Rank      int     `json:"rank"`
	SourceURL *string `json:"source_url"`
}

// RunResult is the outcome of a single probe. A failed probe yields the
// neutral result (not mentioned, nil rank, empty slices) so the batch
// denominator stays fixed.
type RunResult struct {
	RunNumber         int
	Service           ServiceID
	BusinessMentioned bool
	Rank              *int
	MentionContext    string
	Competitors       []CompetitorEntry
	Sources           []string
	ExecutionMs       int64
	AnswerChars       int
	TokensUsed        int
}

// NeutralRunResult returns the placeholder result substituted for any
// probe failure.
func NeutralRunResult(runNumber int, service ServiceID) RunResult {
	return RunResult{
		RunNumber:         runNumber,
		Service:           service,
		BusinessMentioned: false,
		Rank:              nil,
		Competitors:       []CompetitorEntry{},
		Sources:           []string{},
	}
}

// Domain extracts the registrable host from a source URL, stripping any
// leading "www.". Unparseable URLs fall back to the raw string.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.TrimPrefix(strings.ToLower(rawURL), "www.")
	}
	host := strings.ToLower(u.Host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	return strings.TrimPrefix(host, "www.")
}
