package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 3, RecoveryTimeout: 50 * time.Millisecond, HalfOpenMaxCalls: 1}, nil, nil)

	failing := func(ctx context.Context) (interface{}, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(context.Background(), failing)
		require.Error(t, err)
	}

	assert.Equal(t, Open, cb.State())

	_, err := cb.Execute(context.Background(), failing)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestCircuitBreakerHalfOpenAfterRecoveryTimeout(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond, HalfOpenMaxCalls: 1}, nil, nil)

	_, _ = cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})
	require.Equal(t, Open, cb.State())

	time.Sleep(15 * time.Millisecond)

	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, Closed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond, HalfOpenMaxCalls: 1}, nil, nil)

	_, _ = cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})
	time.Sleep(15 * time.Millisecond)

	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("still failing")
	})
	require.Error(t, err)
	assert.Equal(t, Open, cb.State())
}

func TestRegistryReusesBreakerByName(t *testing.T) {
	reg := NewRegistry(nil, nil)
	a := reg.GetOrCreate(VectorCacheKV, Config{FailureThreshold: 5})
	b := reg.GetOrCreate(VectorCacheKV, Config{FailureThreshold: 99})
	assert.Same(t, a, b)
}

func TestSnapshotReportsConsecutiveFailures(t *testing.T) {
	cb := New("snap", Config{FailureThreshold: 10}, nil, nil)
	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("boom")
		})
	}
	snap := cb.Snapshot()
	assert.Equal(t, uint32(3), snap.ConsecutiveFailures)
	assert.Equal(t, uint64(3), snap.TotalFailures)
	assert.Equal(t, "closed", snap.State)
}
