package embedclient

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giak/mnemolite/internal/breaker"
)

type fakeInvoker struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	body, _ := json.Marshal(titanEmbeddingResponse{Embedding: f.vector})
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func TestEmbedTextReturnsOneVectorPerInput(t *testing.T) {
	fi := &fakeInvoker{vector: []float32{0.1, 0.2, 0.3}}
	cb := breaker.New("embedding_service", breaker.Config{}, nil, nil)
	c := newWithInvoker(fi, ModelConfig{}, 2, cb)

	vecs, err := c.Embed(context.Background(), Text, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vecs[0])
	assert.Equal(t, 3, fi.calls)
}

func TestEmbedHybridConcatenatesTextAndCode(t *testing.T) {
	fi := &fakeInvoker{vector: []float32{1, 2}}
	cb := breaker.New("embedding_service", breaker.Config{}, nil, nil)
	c := newWithInvoker(fi, ModelConfig{}, 4, cb)

	vecs, err := c.Embed(context.Background(), Hybrid, []string{"a"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, []float32{1, 2, 1, 2}, vecs[0])
}

func TestEmbedReturnsErrOpenWhenBreakerTripped(t *testing.T) {
	fi := &fakeInvoker{err: assert.AnError}
	cb := breaker.New("embedding_service", breaker.Config{FailureThreshold: 1}, nil, nil)
	c := newWithInvoker(fi, ModelConfig{}, 4, cb)

	_, err := c.Embed(context.Background(), Text, []string{"a"})
	require.Error(t, err)

	_, err = c.Embed(context.Background(), Text, []string{"b"})
	require.ErrorIs(t, err, ErrEmbeddingServiceOpen)
}
