package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/visibility-cli/internal/analysis"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/store"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertCompany(ctx context.Context, company model.Company) (*model.Company, error) {
	args := m.Called(ctx, company)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Company), args.Error(1)
}

func (m *mockStore) GetCompanyByURL(ctx context.Context, url string) (*model.Company, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Company), args.Error(1)
}

func (m *mockStore) ClaimMessage(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) CreateReport(ctx context.Context, companyID string, cfg store.ReportConfig) (*model.Report, error) {
	args := m.Called(ctx, companyID, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Report), args.Error(1)
}

func (m *mockStore) CompleteReport(ctx context.Context, reportID string, summary model.ReportSummary, executionMs int64) error {
	args := m.Called(ctx, reportID, summary, executionMs)
	return args.Error(0)
}

func (m *mockStore) FailReport(ctx context.Context, reportID string, errMsg string) error {
	args := m.Called(ctx, reportID, errMsg)
	return args.Error(0)
}

func (m *mockStore) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	args := m.Called(ctx, reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Report), args.Error(1)
}

func (m *mockStore) ListReports(ctx context.Context, filter store.ReportFilter) ([]model.Report, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Report), args.Error(1)
}

func (m *mockStore) CreatePrompt(ctx context.Context, prompt model.Prompt) (*model.Prompt, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Prompt), args.Error(1)
}

func (m *mockStore) UpdatePromptAggregates(ctx context.Context, promptID string, aggs map[model.ServiceID]model.PromptAggregate) error {
	args := m.Called(ctx, promptID, aggs)
	return args.Error(0)
}

func (m *mockStore) InsertPromptRun(ctx context.Context, run model.PromptRun) (*model.PromptRun, error) {
	args := m.Called(ctx, run)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PromptRun), args.Error(1)
}

func (m *mockStore) InsertCompetitorMention(ctx context.Context, cm model.CompetitorMention) error {
	args := m.Called(ctx, cm)
	return args.Error(0)
}

func (m *mockStore) InsertSourceCitation(ctx context.Context, c model.SourceCitation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockStore) GetFullReport(ctx context.Context, reportID string) (*model.FullReport, error) {
	args := m.Called(ctx, reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FullReport), args.Error(1)
}

func (m *mockStore) GetLatestReportByCompany(ctx context.Context, companyURL string) (*model.Report, error) {
	args := m.Called(ctx, companyURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Report), args.Error(1)
}

func (m *mockStore) CompetitorLeaderboard(ctx context.Context, reportID string) ([]model.CompetitorStanding, error) {
	args := m.Called(ctx, reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CompetitorStanding), args.Error(1)
}

func (m *mockStore) TopSources(ctx context.Context, reportID string, limit int) ([]model.SourceCount, error) {
	args := m.Called(ctx, reportID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SourceCount), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Runner Mock ---

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) RunBatch(ctx context.Context, company model.Company, promptText string, n int, service model.ServiceID) []model.RunResult {
	args := m.Called(ctx, company, promptText, n, service)
	return args.Get(0).([]model.RunResult)
}

// --- Analyzer Mock ---

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) GeneratePrompts(ctx context.Context, company model.Company, count int) ([]analysis.GeneratedPrompt, error) {
	args := m.Called(ctx, company, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analysis.GeneratedPrompt), args.Error(1)
}

func (m *mockAnalyzer) WarmCache(ctx context.Context) {
	m.Called(ctx)
}

func (m *mockAnalyzer) QualitativeAssessment(ctx context.Context, company model.Company, metrics map[model.ServiceID]model.ServiceMetrics) (model.VisibilityLevel, []string) {
	args := m.Called(ctx, company, metrics)
	return args.Get(0).(model.VisibilityLevel), args.Get(1).([]string)
}
