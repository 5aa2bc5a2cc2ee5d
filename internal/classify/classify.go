// Package classify maps raw errors from any stage of the indexing
// pipeline onto the closed three-tier taxonomy the rest of the system
// reasons about: per-file errors that let the batch continue, per-batch
// errors that trigger a retry, and system errors that halt the consumer.
package classify

import (
	"errors"
	"math"
	"strings"
)

// ErrUnsupportedLanguage marks a file whose language has no registered
// chunker; the caller classifies this as a file-level ParseError.
var ErrUnsupportedLanguage = errors.New("classify: unsupported language")

// Tier partitions ErrorType into the three propagation classes from §4.1.
type Tier int

const (
	TierFile Tier = iota
	TierBatch
	TierSystem
)

// ErrorType is the closed taxonomy every indexing failure is mapped to.
type ErrorType string

const (
	// File-level: continue-on-error.
	FileNotFound   ErrorType = "file_not_found"
	ParseError     ErrorType = "parse_error"
	Timeout        ErrorType = "timeout"
	EmbeddingError ErrorType = "embedding_generation_failed"

	// Batch-level: retry with backoff, then dead-letter.
	SubprocessCrash   ErrorType = "subprocess_crash"
	SubprocessTimeout ErrorType = "subprocess_timeout"
	DBConnectionError ErrorType = "db_connection_error"

	// System-level: halt the consumer.
	StreamConnectionLost ErrorType = "stream_connection_lost"
	OutOfMemory          ErrorType = "out_of_memory"
	CriticalError        ErrorType = "critical_error"
)

var tiers = map[ErrorType]Tier{
	FileNotFound:   TierFile,
	ParseError:     TierFile,
	Timeout:        TierFile,
	EmbeddingError: TierFile,

	SubprocessCrash:   TierBatch,
	SubprocessTimeout: TierBatch,
	DBConnectionError: TierBatch,

	StreamConnectionLost: TierSystem,
	OutOfMemory:          TierSystem,
	CriticalError:        TierSystem,
}

// TierOf returns the propagation tier for a given ErrorType.
func TierOf(t ErrorType) Tier {
	if tier, ok := tiers[t]; ok {
		return tier
	}
	return TierSystem
}

// pattern pairs a substring to match against an error's message/type
// against the ErrorType it maps to. Checked in order; first match wins.
type pattern struct {
	substr string
	errType ErrorType
}

// patterns is intentionally ordered most-specific-first; classification
// is pattern-based on message content the way the upstream workers
// report failures (os errors, driver errors, subprocess signals).
var patterns = []pattern{
	{"no such file", FileNotFound},
	{"file not found", FileNotFound},
	{"enoent", FileNotFound},

	{"syntax error", ParseError},
	{"parse error", ParseError},
	{"unexpected token", ParseError},
	{"invalid utf", ParseError},
	{"encoding", ParseError},
	{"exceeds max size", ParseError},
	{"unsupported language", ParseError},

	{"context deadline exceeded", Timeout},
	{"i/o timeout", Timeout},
	{"timed out", Timeout},

	{"embedding", EmbeddingError},

	{"signal: killed", SubprocessCrash},
	{"subprocess exited", SubprocessCrash},
	{"panic:", SubprocessCrash},

	{"subprocess timeout", SubprocessTimeout},

	{"connection refused", DBConnectionError},
	{"connection reset", DBConnectionError},
	{"too many connections", DBConnectionError},
	{"database is closed", DBConnectionError},

	{"redis connection is unhealthy", StreamConnectionLost},
	{"stream connection lost", StreamConnectionLost},

	{"out of memory", OutOfMemory},
	{"cannot allocate memory", OutOfMemory},
}

// Classify maps an error's message to an ErrorType. Classification is
// total: an unmatched message becomes CriticalError so the consumer
// fails safe rather than silently retrying an unrecognized condition.
func Classify(err error) ErrorType {
	if err == nil {
		return CriticalError
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p.substr) {
			return p.errType
		}
	}
	return CriticalError
}

// IsRetryable reports whether a batch carrying this error should be
// re-queued rather than dead-lettered immediately.
func IsRetryable(t ErrorType) bool {
	return TierOf(t) == TierBatch
}

// ShouldStopConsumer reports whether this error must halt the consumer
// loop entirely, requiring operator intervention.
func ShouldStopConsumer(t ErrorType) bool {
	return TierOf(t) == TierSystem
}

// MaxBatchRetries is the cap on batch-level retry attempts before
// dead-lettering, per §4.1.
const MaxBatchRetries = 3

// RetryDelaySeconds computes the exponential backoff delay for a given
// 1-indexed attempt number: min(5 * 2^(attempt-1), 60).
func RetryDelaySeconds(attempt int) int {
	if attempt < 1 {
		attempt = 1
	}
	delay := 5 * math.Pow(2, float64(attempt-1))
	if delay > 60 {
		delay = 60
	}
	return int(delay)
}
