package rerank_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giak/mnemolite/internal/breaker"
	"github.com/giak/mnemolite/internal/search/rerank"
)

type stubProvider struct {
	scores []float64
	err    error
}

func (s stubProvider) ScoresFor(ctx context.Context, query string, documents []string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

func newBreaker() *breaker.CircuitBreaker {
	return breaker.New("reranker", breaker.Config{FailureThreshold: 5}, nil, nil)
}

func TestRerankOrdersCandidatesByScoreDescending(t *testing.T) {
	provider := stubProvider{scores: []float64{0.1, 0.9}}
	r := rerank.New(provider, rerank.Config{BatchSize: 10}, newBreaker(), nil, nil)

	out, err := r.Rerank(context.Background(), "q", []rerank.Candidate{
		{ChunkID: 1, Content: "a", Score: 0.5},
		{ChunkID: 2, Content: "b", Score: 0.5},
	}, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].ChunkID)
}

func TestRerankKeepsOriginalScoresOnBatchFailure(t *testing.T) {
	provider := stubProvider{err: errors.New("provider unavailable")}
	r := rerank.New(provider, rerank.Config{BatchSize: 10}, newBreaker(), nil, nil)

	in := []rerank.Candidate{{ChunkID: 1, Content: "a", Score: 0.3}, {ChunkID: 2, Content: "b", Score: 0.7}}
	out, err := r.Rerank(context.Background(), "q", in, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].ChunkID) // original scores preserved, so the higher original score wins the sort
}

func TestRerankTruncatesToTopK(t *testing.T) {
	provider := stubProvider{scores: []float64{0.1, 0.5, 0.9}}
	r := rerank.New(provider, rerank.Config{BatchSize: 10}, newBreaker(), nil, nil)

	out, err := r.Rerank(context.Background(), "q", []rerank.Candidate{
		{ChunkID: 1}, {ChunkID: 2}, {ChunkID: 3},
	}, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
}
