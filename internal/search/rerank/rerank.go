// Package rerank implements the optional cross-encoder rerank stage
// (C11): reorders a candidate pool using a cross-encoder model, in
// batches, bounded by a semaphore and gated by a circuit breaker, with
// graceful degradation to the unreranked order on failure.
package rerank

import (
	"context"
	"sort"

	"golang.org/x/sync/semaphore"

	"github.com/giak/mnemolite/internal/breaker"
	"github.com/giak/mnemolite/internal/observability"
)

// Candidate is one result carried through rerank: its score is replaced
// in place on success, left untouched on a degraded batch.
type Candidate struct {
	ChunkID int64
	Content string
	Score   float64
}

// Provider is the cross-encoder scoring backend. A real implementation
// calls out to a hosted reranking model; ScoresFor returns one score per
// document, aligned by index.
type Provider interface {
	ScoresFor(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Config tunes batching and concurrency.
type Config struct {
	BatchSize      int
	MaxConcurrency int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 3
	}
	return c
}

// Reranker reorders candidate pools via Provider, skipping entirely when
// its breaker is OPEN (the caller is expected to check State first).
type Reranker struct {
	provider Provider
	cfg      Config
	breaker  *breaker.CircuitBreaker
	sem      *semaphore.Weighted
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// New builds a Reranker bound to one Provider and breaker.
func New(provider Provider, cfg Config, cb *breaker.CircuitBreaker, logger observability.Logger, metrics observability.MetricsClient) *Reranker {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Reranker{
		provider: provider,
		cfg:      cfg,
		breaker:  cb,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		logger:   logger,
		metrics:  metrics,
	}
}

// Rerank scores every candidate in batches of cfg.BatchSize, sorts the
// whole pool by score descending, and truncates to topK (topK<=0 keeps
// everything). A batch whose scoring call fails keeps its original
// scores, which then take part in the same sort, rather than failing
// the whole rerank (spec §4.11's graceful-degradation contract).
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	out := make([]Candidate, 0, len(candidates))
	for start := 0; start < len(candidates); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		if err := r.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		scored, err := r.scoreBatch(ctx, query, batch)
		r.sem.Release(1)

		if err != nil {
			r.logger.Warn("rerank batch degraded", map[string]interface{}{"error": err.Error()})
			r.metrics.IncrementCounter("rerank_batch_failures_total", 1)
			out = append(out, batch...)
			continue
		}
		out = append(out, scored...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

func (r *Reranker) scoreBatch(ctx context.Context, query string, batch []Candidate) ([]Candidate, error) {
	documents := make([]string, len(batch))
	for i, c := range batch {
		documents[i] = c.Content
	}

	result, err := r.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return r.provider.ScoresFor(ctx, query, documents)
	})
	if err != nil {
		return nil, err
	}
	scores := result.([]float64)

	scored := make([]Candidate, len(batch))
	for i, c := range batch {
		scored[i] = c
		if i < len(scores) {
			scored[i].Score = scores[i]
		}
	}
	return scored, nil
}
