// Package breaker implements the per-dependency circuit breaker (C2):
// CLOSED -> (consecutive failures >= failure_threshold) -> OPEN ->
// (after recovery_timeout) -> HALF_OPEN (admits <= half_open_max_calls)
// -> CLOSED on success, OPEN on any failure.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/giak/mnemolite/internal/observability"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Errors returned when a call is rejected without being attempted.
var (
	ErrOpen              = errors.New("circuit breaker is open")
	ErrHalfOpenExhausted = errors.New("half-open probe budget exhausted")
)

// Config holds the per-dependency tuning named in spec §4.2 and §6.
type Config struct {
	FailureThreshold int           // consecutive failures before tripping
	RecoveryTimeout  time.Duration // time OPEN before a HALF_OPEN probe is admitted
	HalfOpenMaxCalls int           // concurrent probes admitted while HALF_OPEN
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 1
	}
	return c
}

// CircuitBreaker guards one named dependency.
type CircuitBreaker struct {
	name   string
	config Config

	state           atomic.Value // State
	counts          atomic.Value // *Counts
	lastOpenedAt    atomic.Value // time.Time
	halfOpenInFlight atomic.Int32

	mu sync.Mutex

	logger  observability.Logger
	metrics observability.MetricsClient
}

// New creates a CircuitBreaker for the named dependency.
func New(name string, config Config, logger observability.Logger, metrics observability.MetricsClient) *CircuitBreaker {
	config = config.withDefaults()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}

	cb := &CircuitBreaker{name: name, config: config, logger: logger, metrics: metrics}
	cb.state.Store(Closed)
	initial := NewCounts()
	cb.counts.Store(&initial)
	cb.lastOpenedAt.Store(time.Time{})
	cb.recordStateGauge(Closed)
	return cb
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	return cb.state.Load().(State)
}

// Snapshot exposes {state, consecutive_failures, total_failures,
// last_opened_at} for the process-wide registry's observability surface.
type Snapshot struct {
	Name                string
	State               string
	ConsecutiveFailures uint32
	TotalFailures       uint64
	LastOpenedAt        time.Time
}

// Snapshot returns the current observable state.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	counts := cb.getCounts()
	return Snapshot{
		Name:                cb.name,
		State:               cb.State().String(),
		ConsecutiveFailures: counts.ConsecutiveFailures,
		TotalFailures:       counts.TotalFailures,
		LastOpenedAt:        cb.lastOpenedAt.Load().(time.Time),
	}
}

// Execute runs fn under breaker protection. When the breaker is OPEN,
// fn is never called and ErrOpen is returned immediately so the caller
// can fall back (e.g. cache -> direct DB).
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := cb.canExecute(); err != nil {
		cb.metrics.IncrementCounterWithLabels("circuit_breaker_rejected_total", 1, map[string]string{"name": cb.name})
		return nil, err
	}

	probing := cb.State() == HalfOpen
	if probing {
		cb.halfOpenInFlight.Add(1)
		defer cb.halfOpenInFlight.Add(-1)
	}

	value, err := fn(ctx)
	if err != nil {
		cb.recordFailure()
		cb.metrics.IncrementCounterWithLabels("circuit_breaker_failures_total", 1, map[string]string{"name": cb.name})
		return nil, err
	}

	cb.recordSuccess()
	cb.metrics.IncrementCounterWithLabels("circuit_breaker_successes_total", 1, map[string]string{"name": cb.name})
	return value, nil
}

func (cb *CircuitBreaker) canExecute() error {
	switch cb.State() {
	case Closed:
		return nil
	case Open:
		lastOpened := cb.lastOpenedAt.Load().(time.Time)
		if time.Since(lastOpened) > cb.config.RecoveryTimeout {
			cb.transitionTo(HalfOpen)
			return nil
		}
		return ErrOpen
	case HalfOpen:
		if int(cb.halfOpenInFlight.Load()) >= cb.config.HalfOpenMaxCalls {
			return ErrHalfOpenExhausted
		}
		return nil
	default:
		return fmt.Errorf("breaker %s: unknown state", cb.name)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	counts := cb.getCounts()
	counts.RecordSuccess()
	cb.counts.Store(counts)

	if cb.State() == HalfOpen {
		cb.transitionTo(Closed)
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	counts := cb.getCounts()
	counts.RecordFailure()
	cb.counts.Store(counts)

	switch cb.State() {
	case Closed:
		if int(counts.ConsecutiveFailures) >= cb.config.FailureThreshold {
			cb.transitionTo(Open)
		}
	case HalfOpen:
		cb.transitionTo(Open)
	}
}

func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.State()
	if oldState == newState {
		return
	}
	cb.state.Store(newState)

	if newState == Open {
		cb.lastOpenedAt.Store(time.Now())
	}
	if newState == HalfOpen {
		fresh := NewCounts()
		cb.counts.Store(&fresh)
		cb.halfOpenInFlight.Store(0)
	}

	cb.logger.Info("circuit breaker state changed", map[string]interface{}{
		"name": cb.name, "from": oldState.String(), "to": newState.String(),
	})
	cb.recordStateGauge(newState)
}

func (cb *CircuitBreaker) getCounts() *Counts {
	counts := cb.counts.Load().(*Counts)
	copied := counts.Copy()
	return &copied
}

func (cb *CircuitBreaker) recordStateGauge(s State) {
	cb.metrics.RecordGauge("circuit_breaker_state", float64(s), map[string]string{"name": cb.name})
}

// Reset forces the breaker back to CLOSED with fresh counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(Closed)
	fresh := NewCounts()
	cb.counts.Store(&fresh)
}

// Registry is the process-wide, name-keyed set of breakers required by
// §4.2 ("A process-wide registry exposes metrics ... for observability").
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger observability.Logger, metrics observability.MetricsClient) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
		metrics:  metrics,
	}
}

// GetOrCreate returns the named breaker, creating it with config if absent.
func (r *Registry) GetOrCreate(name string, config Config) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok = r.breakers[name]; ok {
		return cb
	}
	cb = New(name, config, r.logger, r.metrics)
	r.breakers[name] = cb
	return cb
}

// Snapshots returns the observable state of every registered breaker.
func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Snapshot, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.Snapshot()
	}
	return out
}

// Named dependencies from spec §4.2.
const (
	VectorCacheKV       = "vector_cache_kv"
	EmbeddingService    = "embedding_service"
	RelationalDBHealth  = "relational_db_health"
)
