package answer

import (
	"context"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/pkg/gemini"
	"github.com/sells-group/visibility-cli/pkg/openai"
	"github.com/sells-group/visibility-cli/pkg/perplexity"
)

// answerSystemPrompt frames every probe the way a consumer assistant is
// actually used: no awareness of the measurement.
const answerSystemPrompt = "You are a helpful assistant answering a consumer question. " +
	"Answer naturally and concretely, recommending specific businesses or products where relevant."

// gptGenerator adapts the OpenAI client.
type gptGenerator struct {
	client openai.Client
}

// NewGPT returns a Generator backed by OpenAI chat completions.
func NewGPT(client openai.Client) Generator {
	return &gptGenerator{client: client}
}

func (g *gptGenerator) Name() string { return "gpt" }

func (g *gptGenerator) GenerateAnswer(ctx context.Context, prompt string) (*Answer, error) {
	resp, err := g.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Messages: []openai.Message{
			{Role: "system", Content: answerSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "answer: gpt")
	}
	return &Answer{
		Text:       resp.Content,
		Sources:    extractURLs(resp.Content),
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// perplexityGenerator adapts the Perplexity client. Sonar models return
// grounding citations directly.
type perplexityGenerator struct {
	client perplexity.Client
}

// NewPerplexity returns a Generator backed by Perplexity chat completions.
func NewPerplexity(client perplexity.Client) Generator {
	return &perplexityGenerator{client: client}
}

func (g *perplexityGenerator) Name() string { return "perplexity" }

func (g *perplexityGenerator) GenerateAnswer(ctx context.Context, prompt string) (*Answer, error) {
	resp, err := g.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: answerSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "answer: perplexity")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("answer: perplexity returned no choices")
	}
	return &Answer{
		Text:       resp.Choices[0].Message.Content,
		Sources:    resp.Citations,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// geminiGenerator adapts the Gemini client. Search grounding supplies the
// source URIs.
type geminiGenerator struct {
	client gemini.Client
}

// NewGemini returns a Generator backed by Gemini generation.
func NewGemini(client gemini.Client) Generator {
	return &geminiGenerator{client: client}
}

func (g *geminiGenerator) Name() string { return "gemini" }

func (g *geminiGenerator) GenerateAnswer(ctx context.Context, prompt string) (*Answer, error) {
	resp, err := g.client.GenerateContent(ctx, gemini.GenerateRequest{
		Prompt: answerSystemPrompt + "\n\n" + prompt,
	})
	if err != nil {
		return nil, eris.Wrap(err, "answer: gemini")
	}
	return &Answer{
		Text:       resp.Text,
		Sources:    resp.Sources,
		TokensUsed: resp.TotalTokens,
	}, nil
}

var urlPattern = regexp.MustCompile(`https?://[^\s)\]}>"']+`)

// extractURLs pulls plain-text URLs out of an answer body, for services
// that do not return structured citations.
func extractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:")
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
