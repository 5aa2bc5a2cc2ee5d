// Package search implements the Hybrid Search Engine (C11): lexical,
// vector, and reciprocal-rank-fused hybrid retrieval over the Chunk
// Store, with result caching and optional cross-encoder rerank.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giak/mnemolite/internal/breaker"
	"github.com/giak/mnemolite/internal/cache"
	"github.com/giak/mnemolite/internal/observability"
	"github.com/giak/mnemolite/internal/search/rerank"
	"github.com/giak/mnemolite/internal/store"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	Lexical Mode = "lexical"
	Vector  Mode = "vector"
	Hybrid  Mode = "hybrid"
)

// rrfK is the reciprocal-rank-fusion constant from spec §4.11.
const rrfK = 60

// candidatePoolMultiplier widens the pool fetched from each leg before
// fusion/rerank narrow it back down to TopK.
const candidatePoolMultiplier = 3

// queryEmbedder projects a query into the CODE embedding space for the
// vector leg, typically bound to
// `func(ctx, texts) { return client.Embed(ctx, embedclient.Code, texts) }`.
type queryEmbedder func(ctx context.Context, texts []string) ([][]float32, error)

// Request describes one search call, matching spec §4.11's parameters.
type Request struct {
	Query   string
	Mode    Mode
	Filters store.Filters
	TopK    int
	Rerank  bool
}

// Result is one ranked chunk in the response.
type Result struct {
	Chunk store.Row
	Score float64
}

// Metadata reports how a Response was produced.
type Metadata struct {
	LatencyMS      int64
	CacheHit       bool
	Reranked       bool
	Degraded       bool
	TotalCandidates int
}

// Response is the full shape returned to callers, matching spec
// §4.11's `{results[], metadata{...}}` contract.
type Response struct {
	Results  []Result
	Metadata Metadata
}

// Engine wires the Chunk Store, cache, query embedder, and optional
// reranker together.
type Engine struct {
	store        *store.Store
	cache        *cache.MultiLayerCache
	embedQuery   queryEmbedder
	reranker     *rerank.Reranker
	rerankBreaker *breaker.CircuitBreaker
	logger       observability.Logger
	metrics      observability.MetricsClient
	tracer       *observability.Tracer
}

// New builds an Engine. embedQuery and reranker may be nil: a nil
// embedQuery disables the vector leg (hybrid degrades to lexical-only),
// a nil reranker disables rerank regardless of Request.Rerank.
func New(s *store.Store, c *cache.MultiLayerCache, embedQuery queryEmbedder, reranker *rerank.Reranker, rerankBreaker *breaker.CircuitBreaker, logger observability.Logger, metrics observability.MetricsClient) *Engine {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Engine{store: s, cache: c, embedQuery: embedQuery, reranker: reranker, rerankBreaker: rerankBreaker, logger: logger, metrics: metrics, tracer: observability.NewTracer("mnemolite/search")}
}

// Search executes one request, consulting the cache first under a
// fingerprint key, then falling back to the store.
func (e *Engine) Search(ctx context.Context, req Request) (Response, error) {
	ctx, end := e.tracer.Start(ctx, "search", attribute.String("mode", string(req.Mode)))
	defer end()

	start := time.Now()
	if req.TopK <= 0 {
		req.TopK = 10
	}

	key := fingerprint(req)
	if e.cache != nil {
		var cached Response
		result, err := e.cache.Get(ctx, key, &cached)
		if err == nil && (result == cache.HitL1 || result == cache.HitL2) {
			cached.Metadata.CacheHit = true
			cached.Metadata.LatencyMS = time.Since(start).Milliseconds()
			return cached, nil
		}
	}

	resp, err := e.search(ctx, req)
	if err != nil {
		return Response{}, err
	}
	resp.Metadata.LatencyMS = time.Since(start).Milliseconds()

	if e.cache != nil {
		_ = e.cache.Set(ctx, key, resp)
	}
	return resp, nil
}

func (e *Engine) search(ctx context.Context, req Request) (Response, error) {
	pool := req.TopK * candidatePoolMultiplier

	switch req.Mode {
	case Vector:
		rows, err := e.vectorLeg(ctx, req, pool)
		if err != nil {
			return Response{}, err
		}
		return e.finalize(ctx, req, rowsToResults(rows), len(rows), false)

	case Hybrid:
		return e.hybridSearch(ctx, req, pool)

	default: // Lexical
		rows, err := e.store.LexicalTopK(ctx, req.Query, req.Filters, pool)
		if err != nil {
			return Response{}, err
		}
		return e.finalize(ctx, req, rowsToResults(rows), len(rows), false)
	}
}

func (e *Engine) hybridSearch(ctx context.Context, req Request, pool int) (Response, error) {
	lexRows, lexErr := e.store.LexicalTopK(ctx, req.Query, req.Filters, pool)
	if lexErr != nil {
		return Response{}, lexErr
	}

	vecRows, vecErr := e.vectorLeg(ctx, req, pool)
	degraded := vecErr != nil
	if degraded {
		e.logger.Warn("vector leg failed, degrading to lexical-only", map[string]interface{}{"error": vecErr.Error()})
		e.metrics.IncrementCounter("search_degraded_total", 1)
		return e.finalize(ctx, req, rowsToResults(lexRows), len(lexRows), true)
	}

	fused := fuse(lexRows, vecRows)
	return e.finalize(ctx, req, fused, len(lexRows)+len(vecRows), false)
}

func (e *Engine) vectorLeg(ctx context.Context, req Request, pool int) ([]store.Row, error) {
	if e.embedQuery == nil {
		return nil, fmt.Errorf("search: no query embedder configured")
	}
	vecs, err := e.embedQuery(ctx, []string{req.Query})
	if err != nil {
		return nil, err
	}
	return e.store.VectorTopK(ctx, vecs[0], "code_embedding", req.Filters, pool)
}

func (e *Engine) finalize(ctx context.Context, req Request, results []Result, totalCandidates int, degraded bool) (Response, error) {
	reranked := false
	if req.Rerank && e.reranker != nil && req.TopK <= 50 {
		if e.rerankBreaker == nil || e.rerankBreaker.State() != breaker.Open {
			candidates := make([]rerank.Candidate, len(results))
			for i, r := range results {
				candidates[i] = rerank.Candidate{ChunkID: r.Chunk.ID, Content: r.Chunk.Body, Score: r.Score}
			}
			out, err := e.reranker.Rerank(ctx, req.Query, candidates, req.TopK)
			if err == nil {
				results = candidatesToResults(out, results)
				reranked = true
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > req.TopK {
		results = results[:req.TopK]
	}

	return Response{
		Results: results,
		Metadata: Metadata{
			Reranked:        reranked,
			Degraded:        degraded,
			TotalCandidates: totalCandidates,
		},
	}, nil
}

// fuse combines two ranked row lists via Reciprocal Rank Fusion:
// score(d) = sum(1 / (k + rank_s(d))) across the legs it appears in.
func fuse(lexical, vector []store.Row) []Result {
	scores := make(map[int64]float64)
	rows := make(map[int64]store.Row)

	for rank, row := range lexical {
		scores[row.ID] += 1.0 / float64(rrfK+rank+1)
		rows[row.ID] = row
	}
	for rank, row := range vector {
		scores[row.ID] += 1.0 / float64(rrfK+rank+1)
		rows[row.ID] = row
	}

	out := make([]Result, 0, len(rows))
	for id, row := range rows {
		out = append(out, Result{Chunk: row, Score: scores[id]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func rowsToResults(rows []store.Row) []Result {
	out := make([]Result, len(rows))
	for i, row := range rows {
		out[i] = Result{Chunk: row, Score: row.Similarity}
	}
	return out
}

func candidatesToResults(candidates []rerank.Candidate, original []Result) []Result {
	byID := make(map[int64]store.Row, len(original))
	for _, r := range original {
		byID[r.Chunk.ID] = r.Chunk
	}
	out := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		row, ok := byID[c.ChunkID]
		if !ok {
			continue
		}
		out = append(out, Result{Chunk: row, Score: c.Score})
	}
	return out
}

// fingerprint derives the cache key from every input that changes the
// result set, per spec §4.11's `hash(query_text XOR filters XOR mode XOR
// top_k)` description.
func fingerprint(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s|%s|%s|%s", req.Query, req.Mode, req.TopK,
		req.Filters.Repository, req.Filters.Language, req.Filters.ChunkType, req.Filters.PathPrefix)
	return "search:" + hex.EncodeToString(h.Sum(nil))
}
