// Package probe asks an answer service the same customer question
// repeatedly and converts each answer into a structured run result. A probe
// never propagates an error: any failure along the way becomes the neutral
// result, so the run denominator stays fixed and metrics are not skewed by
// transient outages.
package probe

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/analysis"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/resilience"
	"github.com/sells-group/visibility-cli/pkg/answer"
)

// AnswerAnalyzer extracts visibility signals from a raw answer.
type AnswerAnalyzer interface {
	AnalyzeAnswer(ctx context.Context, company model.Company, prompt, answerText string) (*analysis.Analysis, error)
}

// Prober probes answer services and analyzes what comes back.
type Prober struct {
	generators map[model.ServiceID]answer.Generator
	analyzer   AnswerAnalyzer
	timeout    time.Duration
	retry      resilience.RetryConfig
}

// New creates a Prober. timeout bounds one full probe (answer + analysis);
// transient generation failures are retried inside that budget.
func New(generators map[model.ServiceID]answer.Generator, analyzer AnswerAnalyzer, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Prober{
		generators: generators,
		analyzer:   analyzer,
		timeout:    timeout,
		retry:      resilience.DefaultRetryConfig(),
	}
}

// Probe runs one probe: generate an answer, analyze it. Failures are
// logged and yield the neutral result.
func (p *Prober) Probe(ctx context.Context, company model.Company, promptText string, runNumber int, service model.ServiceID) model.RunResult {
	gen, ok := p.generators[service]
	if !ok {
		zap.L().Warn("probe: no generator for service",
			zap.String("service", string(service)),
		)
		return model.NeutralRunResult(runNumber, service)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	retry := p.retry
	retry.OnRetry = resilience.RetryLogger(string(service), "generate_answer")
	ans, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*answer.Answer, error) {
		return gen.GenerateAnswer(ctx, promptText)
	})
	if err != nil {
		zap.L().Warn("probe: answer generation failed",
			zap.String("service", string(service)),
			zap.Int("run", runNumber),
			zap.Error(err),
		)
		return model.NeutralRunResult(runNumber, service)
	}

	// An empty answer carries no signal to analyze; treating it as a
	// failure keeps the analyzer from hallucinating a mention out of it.
	if strings.TrimSpace(ans.Text) == "" {
		zap.L().Warn("probe: empty answer text",
			zap.String("service", string(service)),
			zap.Int("run", runNumber),
		)
		return model.NeutralRunResult(runNumber, service)
	}

	result, err := p.analyzer.AnalyzeAnswer(ctx, company, promptText, ans.Text)
	if err != nil {
		zap.L().Warn("probe: answer analysis failed",
			zap.String("service", string(service)),
			zap.Int("run", runNumber),
			zap.Error(err),
		)
		return model.NeutralRunResult(runNumber, service)
	}

	return model.RunResult{
		RunNumber:         runNumber,
		Service:           service,
		BusinessMentioned: result.BusinessMentioned,
		Rank:              result.Rank,
		MentionContext:    result.MentionContext,
		Competitors:       result.Competitors,
		Sources:           ans.Sources,
		ExecutionMs:       time.Since(start).Milliseconds(),
		AnswerChars:       len(ans.Text),
		TokensUsed:        ans.TokensUsed + result.TokensUsed,
	}
}

// RunBatch probes one (prompt, service) pair n times concurrently and
// returns the results ordered by run number. Always returns exactly n
// results.
func (p *Prober) RunBatch(ctx context.Context, company model.Company, promptText string, n int, service model.ServiceID) []model.RunResult {
	results := make([]model.RunResult, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(runNumber int) {
			defer wg.Done()
			results[runNumber-1] = p.Probe(ctx, company, promptText, runNumber, service)
		}(i + 1)
	}
	wg.Wait()

	return results
}
