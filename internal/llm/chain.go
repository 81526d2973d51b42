package llm

import (
	"context"
	"fmt"

	"newsdesk/internal/core"
	"newsdesk/internal/logger"
)

// Backend is one inference provider in a fallback chain.
type Backend interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
	ScoreCluster(ctx context.Context, articles []core.Article) (core.ClusterScore, error)
	Rewrite(ctx context.Context, articles []core.Article) (*core.Rewrite, error)
}

// Chain tries an ordered list of backends in sequence. Each backend's
// failure passes through normalizeError so callers see one uniform error
// shape regardless of which provider produced it. If every backend fails,
// the last error is returned.
type Chain struct {
	backends []Backend
}

// NewChain builds a fallback chain. At least one backend is required.
func NewChain(backends ...Backend) (*Chain, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("at least one inference backend is required")
	}
	return &Chain{backends: backends}, nil
}

// Name lists the chained backends.
func (c *Chain) Name() string {
	name := "chain("
	for i, b := range c.backends {
		if i > 0 {
			name += ","
		}
		name += b.Name()
	}
	return name + ")"
}

// Embed tries each backend until one returns a vector.
func (c *Chain) Embed(ctx context.Context, text string) ([]float64, error) {
	var lastErr error
	for _, b := range c.backends {
		vec, err := b.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = normalizeError(err)
		logger.Warn("inference backend failed, trying next", "backend", b.Name(), "op", "embed", "error", err.Error())
	}
	return nil, lastErr
}

// ScoreCluster tries each backend until one returns a score.
func (c *Chain) ScoreCluster(ctx context.Context, articles []core.Article) (core.ClusterScore, error) {
	var lastErr error
	for _, b := range c.backends {
		score, err := b.ScoreCluster(ctx, articles)
		if err == nil {
			return score, nil
		}
		lastErr = normalizeError(err)
		logger.Warn("inference backend failed, trying next", "backend", b.Name(), "op", "score", "error", err.Error())
	}
	return core.ClusterScore{}, lastErr
}

// Rewrite tries each backend until one returns a result. A nil rewrite with
// no error (validation rejection) is a final answer, not a failover reason.
func (c *Chain) Rewrite(ctx context.Context, articles []core.Article) (*core.Rewrite, error) {
	var lastErr error
	for _, b := range c.backends {
		rw, err := b.Rewrite(ctx, articles)
		if err == nil {
			return rw, nil
		}
		lastErr = normalizeError(err)
		logger.Warn("inference backend failed, trying next", "backend", b.Name(), "op", "rewrite", "error", err.Error())
	}
	return nil, lastErr
}
