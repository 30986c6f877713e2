package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedCompany(t *testing.T, st *SQLiteStore, url string) *model.Company {
	t.Helper()
	c, err := st.UpsertCompany(context.Background(), model.Company{
		URL:  url,
		Name: "Acme",
	})
	require.NoError(t, err)
	return c
}

func seedReport(t *testing.T, st *SQLiteStore, companyID string) *model.Report {
	t.Helper()
	r, err := st.CreateReport(context.Background(), companyID, ReportConfig{
		PromptCount:   2,
		RunsPerPrompt: 4,
		Services:      []model.ServiceID{model.ServiceGPT},
		MessageID:     "msg-seed",
	})
	require.NoError(t, err)
	return r
}

// --- Companies ---

func TestSQLite_UpsertCompany_SameURLUpdatesInPlace(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.UpsertCompany(ctx, model.Company{URL: "https://acme.com", Name: "Acme"})
	require.NoError(t, err)

	second, err := st.UpsertCompany(ctx, model.Company{URL: "https://acme.com", Name: "Acme Corp", Industry: "Manufacturing"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	got, err := st.GetCompanyByURL(ctx, "https://acme.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme Corp", got.Name)
	assert.Equal(t, "Manufacturing", got.Industry)
}

func TestSQLite_GetCompanyByURL_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetCompanyByURL(context.Background(), "https://unknown.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Message claims ---

func TestSQLite_ClaimMessage_DuplicateRejected(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	claimed, err := st.ClaimMessage(ctx, "msg-123")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = st.ClaimMessage(ctx, "msg-123")
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = st.ClaimMessage(ctx, "msg-456")
	require.NoError(t, err)
	assert.True(t, claimed)
}

// --- Report lifecycle ---

func TestSQLite_CompleteReport_SecondFinalizeIsRejected(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	company := seedCompany(t, st, "https://acme.com")
	report := seedReport(t, st, company.ID)

	summary := model.ReportSummary{
		Metrics: map[model.ServiceID]model.ServiceMetrics{
			model.ServiceGPT: {VisibilityScore: 33, QueryCoverage: 50, MentionRate: 50},
		},
		VisibilityLevel:   model.VisibilityMedium,
		VisibilityFactors: []string{"mentioned in half of queries"},
	}

	require.NoError(t, st.CompleteReport(ctx, report.ID, summary, 9000))

	// Second finalize of any kind leaves the stored summary untouched.
	err := st.FailReport(ctx, report.ID, "late failure")
	assert.ErrorIs(t, err, ErrReportFinalized)
	err = st.CompleteReport(ctx, report.ID, model.ReportSummary{}, 1)
	assert.ErrorIs(t, err, ErrReportFinalized)

	got, err := st.GetReport(ctx, report.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ReportStatusCompleted, got.Status)
	assert.Equal(t, int64(9000), got.ExecutionMs)
	require.NotNil(t, got.Summary)
	assert.Equal(t, model.VisibilityMedium, got.Summary.VisibilityLevel)
	assert.Equal(t, 33, got.Summary.Metrics[model.ServiceGPT].VisibilityScore)
}

func TestSQLite_FailReport_RetainsPartialData(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	company := seedCompany(t, st, "https://acme.com")
	report := seedReport(t, st, company.ID)

	prompt, err := st.CreatePrompt(ctx, model.Prompt{
		ReportID:   report.ID,
		Text:       "best widget maker near me",
		OrderIndex: 0,
	})
	require.NoError(t, err)

	require.NoError(t, st.FailReport(ctx, report.ID, "prompt generation gave up"))

	got, err := st.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusFailed, got.Status)
	assert.Equal(t, "prompt generation gave up", got.Error)

	full, err := st.GetFullReport(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, full.Prompts, 1)
	assert.Equal(t, prompt.ID, full.Prompts[0].Prompt.ID)
}

func TestSQLite_CompleteReport_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteReport(context.Background(), "ghost", model.ReportSummary{}, 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReportFinalized)
}

// --- Prompts and runs ---

func TestSQLite_PromptRunRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	company := seedCompany(t, st, "https://acme.com")
	report := seedReport(t, st, company.ID)

	prompt, err := st.CreatePrompt(ctx, model.Prompt{
		ReportID:   report.ID,
		Category:   "discovery",
		Text:       "who makes the best widgets",
		OrderIndex: 0,
	})
	require.NoError(t, err)

	rank := 2
	run, err := st.InsertPromptRun(ctx, model.PromptRun{
		PromptID:          prompt.ID,
		ReportID:          report.ID,
		RunNumber:         1,
		Service:           model.ServiceGPT,
		BusinessMentioned: true,
		Rank:              &rank,
		MentionContext:    "Acme is a solid mid-market option",
		ExecutionMs:       840,
		AnswerChars:       1200,
		TokensUsed:        300,
	})
	require.NoError(t, err)

	// A neutral run keeps rank NULL.
	_, err = st.InsertPromptRun(ctx, model.PromptRun{
		PromptID:  prompt.ID,
		ReportID:  report.ID,
		RunNumber: 2,
		Service:   model.ServiceGPT,
	})
	require.NoError(t, err)

	require.NoError(t, st.InsertCompetitorMention(ctx, model.CompetitorMention{
		RunID:    run.ID,
		ReportID: report.ID,
		Name:     "WidgetWorks",
		Rank:     1,
	}))
	require.NoError(t, st.InsertSourceCitation(ctx, model.SourceCitation{
		RunID:             run.ID,
		ReportID:          report.ID,
		Service:           model.ServiceGPT,
		URL:               "https://www.reviews.example/widgets",
		Domain:            "reviews.example",
		BusinessMentioned: true,
		Competitors:       []string{"WidgetWorks"},
	}))

	full, err := st.GetFullReport(ctx, report.ID)
	require.NoError(t, err)
	require.NotNil(t, full)
	require.Len(t, full.Prompts, 1)
	require.Len(t, full.Prompts[0].Runs, 2)

	got := full.Prompts[0].Runs[0]
	assert.Equal(t, 1, got.Run.RunNumber)
	assert.True(t, got.Run.BusinessMentioned)
	require.NotNil(t, got.Run.Rank)
	assert.Equal(t, 2, *got.Run.Rank)
	require.Len(t, got.Competitors, 1)
	assert.Equal(t, "WidgetWorks", got.Competitors[0].Name)
	require.Len(t, got.Citations, 1)
	assert.Equal(t, "reviews.example", got.Citations[0].Domain)
	assert.Equal(t, []string{"WidgetWorks"}, got.Citations[0].Competitors)

	neutral := full.Prompts[0].Runs[1]
	assert.False(t, neutral.Run.BusinessMentioned)
	assert.Nil(t, neutral.Run.Rank)
	assert.Empty(t, neutral.Competitors)
	assert.Empty(t, neutral.Citations)
}

func TestSQLite_UpdatePromptAggregates_Overwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	company := seedCompany(t, st, "https://acme.com")
	report := seedReport(t, st, company.ID)
	prompt, err := st.CreatePrompt(ctx, model.Prompt{ReportID: report.ID, Text: "q", OrderIndex: 0})
	require.NoError(t, err)

	avg := 1.5
	aggs := map[model.ServiceID]model.PromptAggregate{
		model.ServiceGPT: {
			Mentioned:          true,
			MentionedCount:     2,
			TotalRuns:          4,
			MentionProbability: 50,
			AverageRank:        &avg,
			TotalSources:       3,
		},
	}
	require.NoError(t, st.UpdatePromptAggregates(ctx, prompt.ID, aggs))

	// A second aggregation pass replaces, never accumulates.
	aggs[model.ServiceGPT] = model.PromptAggregate{
		Mentioned: true, MentionedCount: 2, TotalRuns: 4, MentionProbability: 50, AverageRank: &avg, TotalSources: 3,
	}
	require.NoError(t, st.UpdatePromptAggregates(ctx, prompt.ID, aggs))

	full, err := st.GetFullReport(ctx, report.ID)
	require.NoError(t, err)
	got := full.Prompts[0].Prompt.Aggregates[model.ServiceGPT]
	assert.Equal(t, 2, got.MentionedCount)
	assert.Equal(t, 4, got.TotalRuns)
	assert.InDelta(t, 50.0, got.MentionProbability, 0.001)
	require.NotNil(t, got.AverageRank)
	assert.InDelta(t, 1.5, *got.AverageRank, 0.001)
}

func TestSQLite_PromptsOrderedByOrderIndex(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	company := seedCompany(t, st, "https://acme.com")
	report := seedReport(t, st, company.ID)

	// Inserted out of order; order_index is authoritative.
	for _, idx := range []int{2, 0, 1} {
		_, err := st.CreatePrompt(ctx, model.Prompt{
			ReportID:   report.ID,
			Text:       "prompt",
			OrderIndex: idx,
		})
		require.NoError(t, err)
	}

	full, err := st.GetFullReport(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, full.Prompts, 3)
	for i, fp := range full.Prompts {
		assert.Equal(t, i, fp.Prompt.OrderIndex)
	}
}

// --- Query surface ---

func TestSQLite_GetLatestReportByCompany(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	company := seedCompany(t, st, "https://acme.com")
	seedReport(t, st, company.ID)
	time.Sleep(2 * time.Millisecond) // keep created_at strictly increasing
	second := seedReport(t, st, company.ID)

	latest, err := st.GetLatestReportByCompany(ctx, "https://acme.com")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)

	none, err := st.GetLatestReportByCompany(ctx, "https://other.com")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLite_ListReports_FilterByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	company := seedCompany(t, st, "https://acme.com")
	done := seedReport(t, st, company.ID)
	seedReport(t, st, company.ID)
	require.NoError(t, st.CompleteReport(ctx, done.ID, model.ReportSummary{}, 100))

	completed, err := st.ListReports(ctx, ReportFilter{Status: model.ReportStatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, done.ID, completed[0].ID)

	all, err := st.ListReports(ctx, ReportFilter{CompanyURL: "https://acme.com"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_CompetitorLeaderboard_Ordering(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	company := seedCompany(t, st, "https://acme.com")
	report := seedReport(t, st, company.ID)
	prompt, err := st.CreatePrompt(ctx, model.Prompt{ReportID: report.ID, Text: "q", OrderIndex: 0})
	require.NoError(t, err)
	run, err := st.InsertPromptRun(ctx, model.PromptRun{
		PromptID: prompt.ID, ReportID: report.ID, RunNumber: 1, Service: model.ServiceGPT,
	})
	require.NoError(t, err)

	mentions := []model.CompetitorMention{
		{RunID: run.ID, ReportID: report.ID, Name: "WidgetWorks", Rank: 1},
		{RunID: run.ID, ReportID: report.ID, Name: "WidgetWorks", Rank: 3},
		{RunID: run.ID, ReportID: report.ID, Name: "GadgetCo", Rank: 1},
	}
	for _, m := range mentions {
		require.NoError(t, st.InsertCompetitorMention(ctx, m))
	}

	standings, err := st.CompetitorLeaderboard(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, standings, 2)
	assert.Equal(t, "WidgetWorks", standings[0].Name)
	assert.Equal(t, 2, standings[0].Mentions)
	assert.InDelta(t, 2.0, standings[0].AverageRank, 0.001)
	assert.Equal(t, "GadgetCo", standings[1].Name)
}

func TestSQLite_TopSources_LimitAndOrdering(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	company := seedCompany(t, st, "https://acme.com")
	report := seedReport(t, st, company.ID)
	prompt, err := st.CreatePrompt(ctx, model.Prompt{ReportID: report.ID, Text: "q", OrderIndex: 0})
	require.NoError(t, err)
	run, err := st.InsertPromptRun(ctx, model.PromptRun{
		PromptID: prompt.ID, ReportID: report.ID, RunNumber: 1, Service: model.ServiceGPT,
	})
	require.NoError(t, err)

	domains := []string{"reviews.example", "reviews.example", "blog.example", "news.example"}
	for i, d := range domains {
		require.NoError(t, st.InsertSourceCitation(ctx, model.SourceCitation{
			RunID:    run.ID,
			ReportID: report.ID,
			Service:  model.ServiceGPT,
			URL:      "https://" + d + "/page",
			Domain:   d,
			Competitors: func() []string {
				if i == 0 {
					return []string{"WidgetWorks"}
				}
				return nil
			}(),
		}))
	}

	top, err := st.TopSources(ctx, report.ID, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "reviews.example", top[0].Domain)
	assert.Equal(t, 2, top[0].Citations)
	assert.Equal(t, "blog.example", top[1].Domain)
}
