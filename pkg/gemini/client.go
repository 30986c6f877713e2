package gemini

import (
	"context"

	"github.com/rotisserie/eris"
	genai "google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

// Client generates grounded answers against the Gemini API.
type Client interface {
	GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is a single-turn generation request.
type GenerateRequest struct {
	Model       string
	Prompt      string
	Temperature *float64
}

// GenerateResponse is the generation result. Sources lists the web URIs
// the answer was grounded on, when search grounding produced any.
type GenerateResponse struct {
	Text        string
	Sources     []string
	TotalTokens int
}

// Option configures the client.
type Option func(*sdkClient)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *sdkClient) {
		c.model = model
	}
}

// WithSearchGrounding toggles the Google Search tool. Enabled by default;
// grounding is what surfaces source URIs alongside the answer.
func WithSearchGrounding(enabled bool) Option {
	return func(c *sdkClient) {
		c.grounding = enabled
	}
}

type sdkClient struct {
	cli       *genai.Client
	model     string
	grounding bool
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (Client, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}

	c := &sdkClient{cli: cli, model: defaultModel, grounding: true}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *sdkClient) GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		cfg.Temperature = &temp
	}
	if c.grounding {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := c.cli.Models.GenerateContent(ctx, model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: req.Prompt}}}},
		cfg,
	)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: generate content")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, eris.New("gemini: empty candidates in response")
	}

	out := &GenerateResponse{
		Text:    resp.Candidates[0].Content.Parts[0].Text,
		Sources: groundingSources(resp.Candidates[0]),
	}
	if resp.UsageMetadata != nil {
		out.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func groundingSources(cand *genai.Candidate) []string {
	if cand.GroundingMetadata == nil {
		return nil
	}
	var sources []string
	for _, chunk := range cand.GroundingMetadata.GroundingChunks {
		if chunk.Web != nil && chunk.Web.URI != "" {
			sources = append(sources, chunk.Web.URI)
		}
	}
	return sources
}
