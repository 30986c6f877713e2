// Package analysis turns raw assistant answers into structured visibility
// signals using the Anthropic API: did the answer mention the business, at
// what rank, which competitors appeared, and which sources were cited.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/pkg/anthropic"
)

const analyzeSystemPrompt = `You analyze how a specific business appears in an AI assistant's answer to a consumer question. Respond with a valid JSON object only:
{
  "business_mentioned": <bool>,
  "rank": <int position among recommended businesses, 1 = first; null if not mentioned or no clear position>,
  "mention_context": "<short quote or paraphrase of how the business was described; empty if not mentioned>",
  "competitors": [{"name": "<business name>", "rank": <int>, "source_url": "<url or null>"}]
}
Rank competitors by prominence in the answer, 1 = most prominent. Do not include the target business in competitors. Do not invent businesses that are not in the answer.`

const analyzeUserPrompt = `Target business:
Name: %s
Website: %s
Industry: %s

Consumer question:
%s

Assistant answer:
%s`

// Analysis is the structured result of analyzing one answer.
type Analysis struct {
	BusinessMentioned bool
	Rank              *int
	MentionContext    string
	Competitors       []model.CompetitorEntry
	TokensUsed        int
}

// Analyzer runs all Anthropic-backed analysis for the measurement engine.
type Analyzer struct {
	client anthropic.Client
	model  string
}

// NewAnalyzer creates an Analyzer using the given model.
func NewAnalyzer(client anthropic.Client, model string) *Analyzer {
	return &Analyzer{client: client, model: model}
}

// WarmCache issues one small request carrying the cached analysis system
// prompt, so the analysis fan-out reads a warm cache instead of every
// concurrent first call paying the cache write. Failure only costs the
// optimization; it is logged and ignored.
func (a *Analyzer) WarmCache(ctx context.Context) {
	_, err := anthropic.PrimerRequest(ctx, a.client, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: 1,
		System:    anthropic.BuildCachedSystemBlocks(analyzeSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: "ok"},
		},
	})
	if err != nil {
		zap.L().Warn("analysis: cache warm failed", zap.Error(err))
	}
}

// AnalyzeAnswer extracts visibility signals from one answer. Any error —
// API failure or output that fails validation — is returned to the caller,
// which treats the whole probe as failed.
func (a *Analyzer) AnalyzeAnswer(ctx context.Context, company model.Company, prompt, answerText string) (*Analysis, error) {
	userPrompt := fmt.Sprintf(analyzeUserPrompt,
		company.Name, company.URL, company.Industry, prompt, answerText)

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: 1024,
		System:    anthropic.BuildCachedSystemBlocks(analyzeSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: analyze answer")
	}

	result, err := parseAnalysis(extractText(resp))
	if err != nil {
		return nil, err
	}
	result.TokensUsed = int(resp.Usage.InputTokens + resp.Usage.OutputTokens)
	resp.Usage.LogCost(a.model, "analyze_answer")
	return result, nil
}

// parseAnalysis validates the model output strictly. A response that is
// not the expected JSON shape is an error, never a silent zero value: the
// caller substitutes the neutral run result so a hallucinated mention can
// not inflate metrics.
func parseAnalysis(text string) (*Analysis, error) {
	text = cleanJSON(text)

	var raw struct {
		BusinessMentioned *bool  `json:"business_mentioned"`
		Rank              *int   `json:"rank"`
		MentionContext    string `json:"mention_context"`
		Competitors       []struct {
			Name      string  `json:"name"`
			Rank      int     `json:"rank"`
			SourceURL *string `json:"source_url"`
		} `json:"competitors"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, eris.Wrap(err, "analysis: unmarshal analysis")
	}
	if raw.BusinessMentioned == nil {
		return nil, eris.New("analysis: business_mentioned missing from analysis")
	}
	if raw.Rank != nil && *raw.Rank < 1 {
		return nil, eris.Errorf("analysis: invalid rank %d", *raw.Rank)
	}

	out := &Analysis{
		BusinessMentioned: *raw.BusinessMentioned,
		MentionContext:    strings.TrimSpace(raw.MentionContext),
	}
	// Rank only means something for a mentioned business.
	if out.BusinessMentioned {
		out.Rank = raw.Rank
	}
	for _, c := range raw.Competitors {
		if strings.TrimSpace(c.Name) == "" {
			return nil, eris.New("analysis: competitor with empty name")
		}
		if c.Rank < 1 {
			return nil, eris.Errorf("analysis: invalid competitor rank %d for %q", c.Rank, c.Name)
		}
		out.Competitors = append(out.Competitors, model.CompetitorEntry{
			Name:      strings.TrimSpace(c.Name),
			Rank:      c.Rank,
			SourceURL: c.SourceURL,
		})
	}
	return out, nil
}
