package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/visibility-cli/internal/analysis"
	"github.com/sells-group/visibility-cli/internal/config"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/probe"
	"github.com/sells-group/visibility-cli/internal/store"
)

// ErrDuplicateMessage is returned when the inbound message id has already
// been claimed by an earlier delivery. The caller treats it as a no-op.
var ErrDuplicateMessage = eris.New("pipeline: message already processed")

// Runner executes the full run batch for one (prompt, service) pair.
type Runner interface {
	RunBatch(ctx context.Context, company model.Company, promptText string, n int, service model.ServiceID) []model.RunResult
}

// Analyzer covers the language-model capabilities the pipeline consumes:
// prompt generation up front and the qualitative assessment at the end.
type Analyzer interface {
	GeneratePrompts(ctx context.Context, company model.Company, count int) ([]analysis.GeneratedPrompt, error)
	WarmCache(ctx context.Context)
	QualitativeAssessment(ctx context.Context, company model.Company, metrics map[model.ServiceID]model.ServiceMetrics) (model.VisibilityLevel, []string)
}

// ReportRequest is one inbound request to measure a company's visibility.
type ReportRequest struct {
	Company   model.Company `json:"company"`
	MessageID string        `json:"message_id,omitempty"`
}

// Engine orchestrates a full visibility report: prompt generation, the
// per-prompt run batches, persistence, and the final report fold.
type Engine struct {
	cfg      *config.Config
	store    store.Store
	runner   Runner
	analyzer Analyzer
}

// New creates an Engine with all dependencies.
func New(cfg *config.Config, st store.Store, runner Runner, analyzer Analyzer) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    st,
		runner:   runner,
		analyzer: analyzer,
	}
}

// promptOutcome accumulates one prompt's aggregates and raw run results.
// Each slot is written by exactly one goroutine.
type promptOutcome struct {
	prompt     model.Prompt
	aggregates map[model.ServiceID]model.PromptAggregate
	runs       map[model.ServiceID][]model.RunResult
}

// Run executes one full report. The report row is created in generating
// and always leaves that state: completed with a summary, or failed with
// the error captured. Partial prompt data written before a failure is
// retained for diagnostics.
func (e *Engine) Run(ctx context.Context, req ReportRequest) (*model.Report, error) {
	log := zap.L().With(zap.String("company", req.Company.Name), zap.String("url", req.Company.URL))
	log.Info("pipeline: starting report")

	if req.MessageID != "" {
		claimed, err := e.store.ClaimMessage(ctx, req.MessageID)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: claim message")
		}
		if !claimed {
			log.Info("pipeline: duplicate delivery, skipping", zap.String("message_id", req.MessageID))
			return nil, ErrDuplicateMessage
		}
	}

	company, err := e.store.UpsertCompany(ctx, req.Company)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: upsert company")
	}

	services := e.cfg.Probe.ServiceIDs()
	report, err := e.store.CreateReport(ctx, company.ID, store.ReportConfig{
		PromptCount:   e.cfg.Probe.PromptCount,
		RunsPerPrompt: e.cfg.Probe.RunsPerPrompt,
		Services:      services,
		MessageID:     req.MessageID,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create report")
	}
	log = log.With(zap.String("report_id", report.ID))
	start := time.Now()

	generated, err := e.analyzer.GeneratePrompts(ctx, *company, e.cfg.Probe.PromptCount)
	if err != nil {
		e.fail(ctx, report.ID, err)
		return nil, eris.Wrap(err, "pipeline: generate prompts")
	}

	prompts := make([]model.Prompt, 0, len(generated))
	for i, gp := range generated {
		created, createErr := e.store.CreatePrompt(ctx, model.Prompt{
			ReportID:   report.ID,
			Category:   gp.Category,
			Text:       gp.Text,
			OrderIndex: i,
		})
		if createErr != nil {
			e.fail(ctx, report.ID, createErr)
			return nil, eris.Wrap(createErr, "pipeline: create prompt")
		}
		prompts = append(prompts, *created)
	}

	// One primer call so the fan-out's analysis requests read a warm
	// prompt cache instead of racing to write it.
	e.analyzer.WarmCache(ctx)

	outcomes := make([]promptOutcome, len(prompts))
	var persistMu sync.Mutex
	persistFailures := 0

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Probe.MaxConcurrentPrompts)
	for i := range prompts {
		g.Go(func() error {
			outcome, perr := e.processPrompt(gCtx, *company, prompts[i], services)
			outcomes[i] = outcome
			if perr != nil {
				log.Warn("pipeline: prompt persistence incomplete",
					zap.String("prompt_id", prompts[i].ID),
					zap.Error(perr),
				)
				persistMu.Lock()
				persistFailures++
				persistMu.Unlock()
			}
			return nil
		})
	}
	if waitErr := g.Wait(); waitErr != nil {
		e.fail(ctx, report.ID, waitErr)
		return nil, eris.Wrap(waitErr, "pipeline: run prompts")
	}

	// Persistence unreachable across the board is a pipeline-level
	// failure, not per-prompt noise.
	if len(prompts) > 0 && persistFailures == len(prompts) {
		failErr := eris.New("pipeline: persistence failed for every prompt")
		e.fail(ctx, report.ID, failErr)
		return nil, failErr
	}

	metrics := Finalize(outcomes, services)
	level, factors := e.analyzer.QualitativeAssessment(ctx, *company, metrics)

	summary := model.ReportSummary{
		Metrics:           metrics,
		VisibilityLevel:   level,
		VisibilityFactors: factors,
	}
	executionMs := time.Since(start).Milliseconds()
	if err := e.store.CompleteReport(ctx, report.ID, summary, executionMs); err != nil {
		if !eris.Is(err, store.ErrReportFinalized) {
			return nil, eris.Wrap(err, "pipeline: complete report")
		}
		// Another finalization won; the stored summary is authoritative,
		// so report what actually persisted rather than this run's fold.
		log.Warn("pipeline: report already finalized", zap.Error(err))
		stored, getErr := e.store.GetReport(ctx, report.ID)
		if getErr != nil || stored == nil {
			log.Warn("pipeline: failed to re-fetch finalized report", zap.Error(getErr))
			return report, nil
		}
		return stored, nil
	}

	log.Info("pipeline: report completed",
		zap.Int("prompts", len(prompts)),
		zap.Int64("execution_ms", executionMs),
		zap.String("visibility_level", string(level)),
	)

	report.Status = model.ReportStatusCompleted
	report.Summary = &summary
	report.ExecutionMs = executionMs
	return report, nil
}

// processPrompt runs every configured service's batch for one prompt and
// persists the raw runs plus the single aggregate overwrite. Row-level
// insert failures are logged and skipped so the rest of the prompt's data
// still lands; the returned error reports only a failed aggregate write.
func (e *Engine) processPrompt(ctx context.Context, company model.Company, prompt model.Prompt, services []model.ServiceID) (promptOutcome, error) {
	log := zap.L().With(zap.String("prompt_id", prompt.ID), zap.Int("order_index", prompt.OrderIndex))

	outcome := promptOutcome{
		prompt:     prompt,
		aggregates: make(map[model.ServiceID]model.PromptAggregate, len(services)),
		runs:       make(map[model.ServiceID][]model.RunResult, len(services)),
	}
	for _, svc := range services {
		results := e.runner.RunBatch(ctx, company, prompt.Text, e.cfg.Probe.RunsPerPrompt, svc)
		outcome.runs[svc] = results
		outcome.aggregates[svc] = probe.Aggregate(results)
		e.persistRuns(ctx, log, prompt, svc, results)
	}

	if err := e.store.UpdatePromptAggregates(ctx, prompt.ID, outcome.aggregates); err != nil {
		return outcome, eris.Wrap(err, "pipeline: update prompt aggregates")
	}
	return outcome, nil
}

// persistRuns writes one service's raw observations. A failed row insert
// never blocks the remaining rows.
func (e *Engine) persistRuns(ctx context.Context, log *zap.Logger, prompt model.Prompt, svc model.ServiceID, results []model.RunResult) {
	for _, r := range results {
		run, err := e.store.InsertPromptRun(ctx, model.PromptRun{
			PromptID:          prompt.ID,
			ReportID:          prompt.ReportID,
			RunNumber:         r.RunNumber,
			Service:           r.Service,
			BusinessMentioned: r.BusinessMentioned,
			Rank:              r.Rank,
			MentionContext:    r.MentionContext,
			ExecutionMs:       r.ExecutionMs,
			AnswerChars:       r.AnswerChars,
			TokensUsed:        r.TokensUsed,
		})
		if err != nil {
			log.Warn("pipeline: insert run failed",
				zap.String("service", string(svc)),
				zap.Int("run_number", r.RunNumber),
				zap.Error(err),
			)
			continue
		}

		for _, comp := range r.Competitors {
			if err := e.store.InsertCompetitorMention(ctx, model.CompetitorMention{
				RunID:     run.ID,
				ReportID:  prompt.ReportID,
				Name:      comp.Name,
				Rank:      comp.Rank,
				SourceURL: comp.SourceURL,
			}); err != nil {
				log.Warn("pipeline: insert competitor failed",
					zap.String("competitor", comp.Name),
					zap.Error(err),
				)
			}
		}
		for _, src := range r.Sources {
			competitors := make([]string, 0, len(r.Competitors))
			for _, comp := range r.Competitors {
				competitors = append(competitors, comp.Name)
			}
			if err := e.store.InsertSourceCitation(ctx, model.SourceCitation{
				RunID:             run.ID,
				ReportID:          prompt.ReportID,
				Service:           svc,
				URL:               src,
				Domain:            model.Domain(src),
				BusinessMentioned: r.BusinessMentioned,
				Competitors:       competitors,
			}); err != nil {
				log.Warn("pipeline: insert citation failed",
					zap.String("url", src),
					zap.Error(err),
				)
			}
		}
	}
}

// fail marks the report failed, keeping the partial data already written.
func (e *Engine) fail(ctx context.Context, reportID string, cause error) {
	if err := e.store.FailReport(ctx, reportID, cause.Error()); err != nil {
		zap.L().Error("pipeline: failed to mark report failed",
			zap.String("report_id", reportID),
			zap.Error(err),
		)
	}
}
