package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/model"
)

// ErrReportFinalized is returned when a write targets a report that has
// already transitioned to completed or failed. Callers treat it as an
// idempotent no-op; the stored summary is never overwritten.
var ErrReportFinalized = eris.New("store: report already finalized")

// ReportConfig holds the configuration captured on report creation.
type ReportConfig struct {
	PromptCount   int               `json:"prompt_count"`
	RunsPerPrompt int               `json:"runs_per_prompt"`
	Services      []model.ServiceID `json:"services"`
	MessageID     string            `json:"message_id,omitempty"`
}

// ReportFilter specifies criteria for listing reports.
type ReportFilter struct {
	Status     model.ReportStatus `json:"status,omitempty"`
	CompanyURL string             `json:"company_url,omitempty"`
	Limit      int                `json:"limit,omitempty"`
	Offset     int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for the visibility engine.
//
// All writes are append-only inserts except the company upsert (keyed by
// URL), the prompt aggregate overwrite, and the report status transition.
// Report status is monotonic: generating moves exactly once to completed
// or failed and rejects further writes.
type Store interface {
	// Companies
	UpsertCompany(ctx context.Context, company model.Company) (*model.Company, error)
	GetCompanyByURL(ctx context.Context, url string) (*model.Company, error)

	// Reports
	ClaimMessage(ctx context.Context, messageID string) (bool, error)
	CreateReport(ctx context.Context, companyID string, cfg ReportConfig) (*model.Report, error)
	CompleteReport(ctx context.Context, reportID string, summary model.ReportSummary, executionMs int64) error
	FailReport(ctx context.Context, reportID string, errMsg string) error
	GetReport(ctx context.Context, reportID string) (*model.Report, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error)

	// Prompts and raw observations
	CreatePrompt(ctx context.Context, prompt model.Prompt) (*model.Prompt, error)
	UpdatePromptAggregates(ctx context.Context, promptID string, aggs map[model.ServiceID]model.PromptAggregate) error
	InsertPromptRun(ctx context.Context, run model.PromptRun) (*model.PromptRun, error)
	InsertCompetitorMention(ctx context.Context, m model.CompetitorMention) error
	InsertSourceCitation(ctx context.Context, c model.SourceCitation) error

	// Query surface
	GetFullReport(ctx context.Context, reportID string) (*model.FullReport, error)
	GetLatestReportByCompany(ctx context.Context, companyURL string) (*model.Report, error)
	CompetitorLeaderboard(ctx context.Context, reportID string) ([]model.CompetitorStanding, error)
	TopSources(ctx context.Context, reportID string, limit int) ([]model.SourceCount, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
