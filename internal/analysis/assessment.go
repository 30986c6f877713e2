package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/pkg/anthropic"
)

const assessSystemPrompt = `You assess a business's overall visibility in AI assistant answers from its measured metrics. Respond with a valid JSON object only:
{"visibility_level": "<High|Medium|Low>", "visibility_factors": ["<short factor>", ...]}
Factors are concrete observations (e.g. "never recommended first", "strong coverage on local queries"), at most five.`

const assessUserPrompt = `Business: %s (%s)

Per-service metrics:
%s`

// QualitativeAssessment derives a visibility level and supporting factors
// from the computed metrics. On any failure it falls back to a level
// derived from the best visibility score, so report completion never
// hinges on this call.
func (a *Analyzer) QualitativeAssessment(ctx context.Context, company model.Company, metrics map[model.ServiceID]model.ServiceMetrics) (model.VisibilityLevel, []string) {
	metricsJSON, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return fallbackLevel(metrics), nil
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: 512,
		System:    []anthropic.SystemBlock{{Text: assessSystemPrompt}},
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(assessUserPrompt, company.Name, company.URL, metricsJSON)},
		},
	})
	if err != nil {
		zap.L().Warn("analysis: qualitative assessment failed, using score-derived level",
			zap.Error(err),
		)
		return fallbackLevel(metrics), nil
	}
	resp.Usage.LogCost(a.model, "qualitative_assessment")

	var raw struct {
		VisibilityLevel   string   `json:"visibility_level"`
		VisibilityFactors []string `json:"visibility_factors"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(extractText(resp))), &raw); err != nil {
		zap.L().Warn("analysis: unparseable assessment output, using score-derived level",
			zap.Error(err),
		)
		return fallbackLevel(metrics), nil
	}

	switch model.VisibilityLevel(raw.VisibilityLevel) {
	case model.VisibilityHigh, model.VisibilityMedium, model.VisibilityLow:
		if len(raw.VisibilityFactors) > 5 {
			raw.VisibilityFactors = raw.VisibilityFactors[:5]
		}
		return model.VisibilityLevel(raw.VisibilityLevel), raw.VisibilityFactors
	default:
		return fallbackLevel(metrics), raw.VisibilityFactors
	}
}

// fallbackLevel maps the best per-service visibility score to a level.
func fallbackLevel(metrics map[model.ServiceID]model.ServiceMetrics) model.VisibilityLevel {
	best := 0
	for _, m := range metrics {
		if m.VisibilityScore > best {
			best = m.VisibilityScore
		}
	}
	switch {
	case best >= 60:
		return model.VisibilityHigh
	case best >= 25:
		return model.VisibilityMedium
	default:
		return model.VisibilityLow
	}
}
