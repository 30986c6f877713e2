package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/analysis"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/pipeline"
	"github.com/sells-group/visibility-cli/internal/probe"
	"github.com/sells-group/visibility-cli/internal/store"
	"github.com/sells-group/visibility-cli/pkg/answer"
	anthropicpkg "github.com/sells-group/visibility-cli/pkg/anthropic"
	"github.com/sells-group/visibility-cli/pkg/gemini"
	"github.com/sells-group/visibility-cli/pkg/openai"
	"github.com/sells-group/visibility-cli/pkg/perplexity"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "visibility.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// env bundles everything a report run needs.
type env struct {
	Store  store.Store
	Engine *pipeline.Engine
}

func (e *env) Close() {
	_ = e.Store.Close()
}

// initEngine validates config, opens the store, and wires the answer
// generators, analyzer, and pipeline engine.
func initEngine(ctx context.Context) (*env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	generators, err := initGenerators(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	analyzer := analysis.NewAnalyzer(anthropicClient, cfg.Anthropic.Model)

	prober := probe.New(generators, analyzer, time.Duration(cfg.Probe.TimeoutSecs)*time.Second)
	engine := pipeline.New(cfg, st, prober, analyzer)

	return &env{Store: st, Engine: engine}, nil
}

// initGenerators builds one rate-limited generator per configured service.
func initGenerators(ctx context.Context) (map[model.ServiceID]answer.Generator, error) {
	rps := cfg.Probe.RequestsPerSecond
	burst := 1
	generators := make(map[model.ServiceID]answer.Generator, len(cfg.Probe.Services))

	for _, svc := range cfg.Probe.ServiceIDs() {
		var gen answer.Generator
		switch svc {
		case model.ServiceGPT:
			gen = answer.NewGPT(openai.NewClient(cfg.OpenAI.Key, openai.WithModel(cfg.OpenAI.Model)))
		case model.ServicePerplexity:
			gen = answer.NewPerplexity(perplexity.NewClient(cfg.Perplexity.Key,
				perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
				perplexity.WithModel(cfg.Perplexity.Model),
			))
		case model.ServiceGemini:
			client, err := gemini.NewClient(ctx, cfg.Gemini.Key, gemini.WithModel(cfg.Gemini.Model))
			if err != nil {
				return nil, eris.Wrap(err, "init gemini client")
			}
			gen = answer.NewGemini(client)
		default:
			return nil, eris.Errorf("unknown answer service %q", svc)
		}
		generators[svc] = answer.RateLimited(gen, rps, burst)
	}

	return generators, nil
}
