package classify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"file not found", errors.New("open a.ts: no such file or directory"), FileNotFound},
		{"parse error", errors.New("syntax error near unexpected token"), ParseError},
		{"timeout", errors.New("context deadline exceeded"), Timeout},
		{"embedding", errors.New("embedding service returned 503"), EmbeddingError},
		{"subprocess crash", errors.New("signal: killed"), SubprocessCrash},
		{"db connection", errors.New("dial tcp: connection refused"), DBConnectionError},
		{"stream lost", errors.New("redis connection is unhealthy"), StreamConnectionLost},
		{"oom", errors.New("cannot allocate memory"), OutOfMemory},
		{"unmatched", errors.New("something bizarre happened"), CriticalError},
		{"nil error", nil, CriticalError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestTierOf(t *testing.T) {
	assert.Equal(t, TierFile, TierOf(ParseError))
	assert.Equal(t, TierBatch, TierOf(SubprocessCrash))
	assert.Equal(t, TierSystem, TierOf(OutOfMemory))
	assert.Equal(t, TierSystem, TierOf(ErrorType("unknown")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(SubprocessCrash))
	assert.True(t, IsRetryable(DBConnectionError))
	assert.False(t, IsRetryable(ParseError))
	assert.False(t, IsRetryable(OutOfMemory))
}

func TestShouldStopConsumer(t *testing.T) {
	assert.True(t, ShouldStopConsumer(OutOfMemory))
	assert.True(t, ShouldStopConsumer(CriticalError))
	assert.False(t, ShouldStopConsumer(SubprocessCrash))
}

func TestRetryDelaySeconds(t *testing.T) {
	want := []int{5, 10, 20, 40, 60, 60, 60, 60, 60, 60}
	for i, w := range want {
		attempt := i + 1
		assert.Equal(t, w, RetryDelaySeconds(attempt), "attempt %d", attempt)
	}
}
