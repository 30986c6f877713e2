package model

import (
	"time"
)

// ReportStatus represents the lifecycle state of a visibility report.
type ReportStatus string

const (
	ReportStatusGenerating ReportStatus = "generating"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusFailed     ReportStatus = "failed"
)

// ServiceID identifies an answer-generating service.
type ServiceID string

const (
	ServiceGPT        ServiceID = "gpt"
	ServicePerplexity ServiceID = "perplexity"
	ServiceGemini     ServiceID = "gemini"
)

// VisibilityLevel is the qualitative assessment of a report.
type VisibilityLevel string

const (
	VisibilityHigh   VisibilityLevel = "High"
	VisibilityMedium VisibilityLevel = "Medium"
	VisibilityLow    VisibilityLevel = "Low"
)

// Company represents the business being measured. Uniquely keyed by URL;
// repeated report runs for the same URL update the row in place.
type Company struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Industry       string    `json:"industry,omitempty"`
	Products       string    `json:"products,omitempty"`
	TargetCustomer string    `json:"target_customer,omitempty"`
	Location       string    `json:"location,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ServiceMetrics holds report-level visibility metrics for one service.
type ServiceMetrics struct {
	VisibilityScore int      `json:"visibility_score"`
	QueryCoverage   float64  `json:"query_coverage"`
	MentionRate     float64  `json:"mention_rate"`
	AverageRank     *float64 `json:"average_rank,omitempty"`
}

// ReportSummary is the final aggregate written to a completed report.
type ReportSummary struct {
	Metrics           map[ServiceID]ServiceMetrics `json:"metrics"`
	VisibilityLevel   VisibilityLevel              `json:"visibility_level"`
	VisibilityFactors []string                     `json:"visibility_factors"`
}

// Report is one visibility-measurement run for a company. Status is
// monotonic: generating transitions exactly once to completed or failed.
type Report struct {
	ID            string         `json:"id"`
	CompanyID     string         `json:"company_id"`
	Status        ReportStatus   `json:"status"`
	PromptCount   int            `json:"prompt_count"`
	RunsPerPrompt int            `json:"runs_per_prompt"`
	Services      []ServiceID    `json:"services"`
	Summary       *ReportSummary `json:"summary,omitempty"`
	ExecutionMs   int64          `json:"execution_ms"`
	Error         string         `json:"error,omitempty"`
	MessageID     string         `json:"message_id,omitempty"` // inbound correlation id for duplicate-delivery detection
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// FullReport is a report expanded with its company and owned prompt tree,
// as returned by the query surface.
type FullReport struct {
	Report  Report       `json:"report"`
	Company Company      `json:"company"`
	Prompts []FullPrompt `json:"prompts"`
}

// FullPrompt is a prompt with its nested runs, competitors, and citations.
type FullPrompt struct {
	Prompt Prompt    `json:"prompt"`
	Runs   []FullRun `json:"runs"`
}

// FullRun is a run with its owned competitor mentions and source citations.
type FullRun struct {
	Run         PromptRun           `json:"run"`
	Competitors []CompetitorMention `json:"competitors"`
	Citations   []SourceCitation    `json:"citations"`
}

// CompetitorStanding is one row of the per-report competitor leaderboard.
type CompetitorStanding struct {
	Name        string  `json:"name"`
	Mentions    int     `json:"mentions"`
	AverageRank float64 `json:"average_rank"`
}

// SourceCount is one row of the per-report top-sources listing.
type SourceCount struct {
	Domain    string `json:"domain"`
	Citations int    `json:"citations"`
}
