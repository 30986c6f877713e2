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

const generateSystemPrompt = `You generate realistic questions that potential customers would ask an AI assistant when looking for products or services like the ones a given business offers. The questions must never name the business itself: they describe a need, and visibility is measured by whether the assistant recommends the business unprompted. Respond with a valid JSON array only:
[{"category": "<one of: discovery, comparison, recommendation, local, problem>", "text": "<the question>"}]
Vary categories and phrasing. Questions must read like real consumer queries, not market research.`

const generateUserPrompt = `Business:
Name: %s
Website: %s
Description: %s
Industry: %s
Products/services: %s
Target customer: %s
Location: %s

Generate exactly %d questions.`

// GeneratedPrompt is one customer-style question before persistence.
type GeneratedPrompt struct {
	Category string
	Text     string
}

// GeneratePrompts produces count customer-style questions for the company.
// A generation failure is returned as an error; the caller fails the whole
// report since there is nothing to probe without prompts.
func (a *Analyzer) GeneratePrompts(ctx context.Context, company model.Company, count int) ([]GeneratedPrompt, error) {
	userPrompt := fmt.Sprintf(generateUserPrompt,
		company.Name, company.URL, company.Description, company.Industry,
		company.Products, company.TargetCustomer, company.Location, count)

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: 4096,
		System:    []anthropic.SystemBlock{{Text: generateSystemPrompt}},
		Messages: []anthropic.Message{
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: generate prompts")
	}
	resp.Usage.LogCost(a.model, "generate_prompts")

	prompts, err := parseGeneratedPrompts(extractText(resp))
	if err != nil {
		return nil, err
	}
	if len(prompts) < count {
		return nil, eris.Errorf("analysis: generated %d prompts, need %d", len(prompts), count)
	}
	if len(prompts) > count {
		zap.L().Debug("analysis: truncating extra generated prompts",
			zap.Int("generated", len(prompts)),
			zap.Int("requested", count),
		)
		prompts = prompts[:count]
	}
	return prompts, nil
}

func parseGeneratedPrompts(text string) ([]GeneratedPrompt, error) {
	text = cleanJSON(text)

	var raw []struct {
		Category string `json:"category"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, eris.Wrap(err, "analysis: unmarshal generated prompts")
	}

	var out []GeneratedPrompt
	for _, p := range raw {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		out = append(out, GeneratedPrompt{
			Category: strings.TrimSpace(p.Category),
			Text:     strings.TrimSpace(p.Text),
		})
	}
	if len(out) == 0 {
		return nil, eris.New("analysis: no usable prompts in generation output")
	}
	return out, nil
}
