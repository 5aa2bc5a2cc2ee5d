package consumer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giak/mnemolite/internal/consumer"
	"github.com/giak/mnemolite/internal/stream"
)

func newTestStream(t *testing.T) *stream.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := stream.New(stream.Config{Address: mr.Addr()}, nil)
	require.NoError(t, err)
	return c
}

func TestHandleFileLevelErrorAcksAndContinues(t *testing.T) {
	sc := newTestStream(t)
	ctx := context.Background()
	require.NoError(t, sc.EnsureConsumerGroup(ctx, "batches", "workers"))
	_, err := sc.Publish(ctx, "batches", map[string]interface{}{"job_id": "j1", "batch_index": "0", "attempt": "1"})
	require.NoError(t, err)

	worker := func(ctx context.Context, b consumer.BatchPayload) error {
		return errors.New("parse error: unexpected token")
	}
	c := consumer.New(sc, consumer.Config{StreamName: "batches", DeadLetterStream: "batches-dlq", Group: "workers", ConsumerName: "c0", BlockDuration: 10 * time.Millisecond}, worker, nil, nil)

	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_ = c.Run(runCtx)

	depth, err := sc.Depth(ctx, "batches")
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth) // original entry still present, just acked
}

func TestHandleBatchLevelErrorRepublishesWithIncrementedAttempt(t *testing.T) {
	sc := newTestStream(t)
	ctx := context.Background()
	require.NoError(t, sc.EnsureConsumerGroup(ctx, "batches", "workers"))
	_, err := sc.Publish(ctx, "batches", map[string]interface{}{"job_id": "j1", "batch_index": "0", "attempt": "1"})
	require.NoError(t, err)

	var attempts []string
	worker := func(ctx context.Context, b consumer.BatchPayload) error {
		attempts = append(attempts, "x")
		return errors.New("subprocess crash: signal: killed")
	}
	c := consumer.New(sc, consumer.Config{
		StreamName: "batches", DeadLetterStream: "batches-dlq", Group: "workers", ConsumerName: "c0",
		BlockDuration: 10 * time.Millisecond,
		RetryDelay:    func(int) time.Duration { return time.Millisecond },
	}, worker, nil, nil)

	runCtx, cancel := context.WithTimeout(ctx, 80*time.Millisecond)
	defer cancel()
	_ = c.Run(runCtx)

	depth, err := sc.Depth(ctx, "batches")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, depth, int64(2)) // original + at least one republish
}

func TestHandleBatchLevelErrorWaitsOutTheBackoffDelayBeforeRepublishing(t *testing.T) {
	sc := newTestStream(t)
	ctx := context.Background()
	require.NoError(t, sc.EnsureConsumerGroup(ctx, "batches", "workers"))
	_, err := sc.Publish(ctx, "batches", map[string]interface{}{"job_id": "j1", "batch_index": "0", "attempt": "1"})
	require.NoError(t, err)

	worker := func(ctx context.Context, b consumer.BatchPayload) error {
		return errors.New("subprocess crash: signal: killed")
	}
	c := consumer.New(sc, consumer.Config{
		StreamName: "batches", DeadLetterStream: "batches-dlq", Group: "workers", ConsumerName: "c0",
		BlockDuration: 10 * time.Millisecond,
		RetryDelay:    func(int) time.Duration { return time.Hour },
	}, worker, nil, nil)

	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_ = c.Run(runCtx)

	depth, err := sc.Depth(ctx, "batches")
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth) // still waiting out the delay, not yet republished
}

func TestHandleSystemLevelErrorHaltsConsumer(t *testing.T) {
	sc := newTestStream(t)
	ctx := context.Background()
	require.NoError(t, sc.EnsureConsumerGroup(ctx, "batches", "workers"))
	_, err := sc.Publish(ctx, "batches", map[string]interface{}{"job_id": "j1", "batch_index": "0", "attempt": "1"})
	require.NoError(t, err)

	worker := func(ctx context.Context, b consumer.BatchPayload) error {
		return errors.New("out of memory")
	}
	c := consumer.New(sc, consumer.Config{StreamName: "batches", DeadLetterStream: "batches-dlq", Group: "workers", ConsumerName: "c0", BlockDuration: 10 * time.Millisecond}, worker, nil, nil)

	err = c.Run(ctx)
	require.Error(t, err)
}
