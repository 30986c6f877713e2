// Package answer unifies the services that produce consumer-style answers
// behind a single Generator interface, so probing code does not care which
// assistant it is measuring.
package answer

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/rotisserie/eris"
)

// Answer is one answer-service response.
type Answer struct {
	Text       string
	Sources    []string
	TokensUsed int
}

// Generator produces an answer to a customer-style prompt.
type Generator interface {
	Name() string
	GenerateAnswer(ctx context.Context, prompt string) (*Answer, error)
}

// rateLimited wraps a Generator with a token-bucket limiter so bursts of
// concurrent probes do not trip provider rate limits.
type rateLimited struct {
	inner   Generator
	limiter *rate.Limiter
}

// RateLimited wraps g so calls wait for limiter tokens before dispatch.
// rps <= 0 disables limiting.
func RateLimited(g Generator, rps float64, burst int) Generator {
	if rps <= 0 {
		return g
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{
		inner:   g,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *rateLimited) Name() string { return r.inner.Name() }

func (r *rateLimited) GenerateAnswer(ctx context.Context, prompt string) (*Answer, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "answer: rate limit wait for %s", r.inner.Name())
	}
	return r.inner.GenerateAnswer(ctx, prompt)
}
