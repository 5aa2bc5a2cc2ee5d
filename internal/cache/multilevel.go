package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/giak/mnemolite/internal/breaker"
	"github.com/giak/mnemolite/internal/observability"
)

// Layer selects which tier a Clear call targets.
type Layer int

const (
	L1 Layer = iota
	L2
	AllLayers
)

// envelope is what actually lives in both layers, so a negative result
// (a cached miss) can be distinguished from a cached hit without a
// second round trip.
type envelope struct {
	Negative bool            `json:"negative,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// MultiLayerCache composes a bounded in-process LRU (L1) in front of an
// external KV store (L2), consulting L2 only while its circuit breaker
// reports CLOSED or HALF_OPEN. Lookup order is L1 -> L2 -> origin; an L2
// hit backfills L1.
type MultiLayerCache struct {
	l1      *lru.LRU[string, []byte]
	l2      L2
	l2Breaker *breaker.CircuitBreaker

	l2TTL       time.Duration
	negativeTTL time.Duration

	logger  observability.Logger
	metrics observability.MetricsClient
}

// Config configures capacity/TTL for both layers.
type Config struct {
	L1Capacity  int
	L1TTL       time.Duration
	L2TTL       time.Duration
	NegativeTTL time.Duration
}

// New builds a MultiLayerCache. l2 and l2Breaker may be nil, in which case
// the cache degrades to L1-only (useful for tests and for a process
// running without Redis configured).
func New(cfg Config, l2 L2, l2Breaker *breaker.CircuitBreaker, logger observability.Logger, metrics observability.MetricsClient) *MultiLayerCache {
	if cfg.L1Capacity <= 0 {
		cfg.L1Capacity = 10000
	}
	if cfg.L1TTL <= 0 {
		cfg.L1TTL = 5 * time.Minute
	}
	if cfg.L2TTL <= 0 {
		cfg.L2TTL = 30 * time.Minute
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = 30 * time.Second
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}

	return &MultiLayerCache{
		l1:          lru.NewLRU[string, []byte](cfg.L1Capacity, nil, cfg.L1TTL),
		l2:          l2,
		l2Breaker:   l2Breaker,
		l2TTL:       cfg.L2TTL,
		negativeTTL: cfg.NegativeTTL,
		logger:      logger,
		metrics:     metrics,
	}
}

// Result reports where a Get was satisfied from, for cache_hit metadata
// the search engine surfaces in its response.
type Result int

const (
	Miss Result = iota
	HitL1
	HitL2
	HitNegative
)

// Get looks up key, trying L1 then L2. dest receives the decoded payload
// on HitL1/HitL2; HitNegative and Miss leave dest untouched.
func (c *MultiLayerCache) Get(ctx context.Context, key string, dest interface{}) (Result, error) {
	if raw, ok := c.l1.Get(key); ok {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return Miss, err
		}
		if env.Negative {
			c.metrics.IncrementCounterWithLabels("cache_result_total", 1, map[string]string{"layer": "l1", "result": "negative"})
			return HitNegative, nil
		}
		c.metrics.IncrementCounterWithLabels("cache_result_total", 1, map[string]string{"layer": "l1", "result": "hit"})
		if err := json.Unmarshal(env.Payload, dest); err != nil {
			return Miss, err
		}
		return HitL1, nil
	}

	if c.l2 == nil {
		c.metrics.IncrementCounterWithLabels("cache_result_total", 1, map[string]string{"layer": "l1", "result": "miss"})
		return Miss, nil
	}

	var raw envelope
	_, err := c.withBreaker(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, c.l2.Get(ctx, key, &raw)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.metrics.IncrementCounterWithLabels("cache_result_total", 1, map[string]string{"layer": "l2", "result": "miss"})
			return Miss, nil
		}
		if errors.Is(err, breaker.ErrOpen) {
			// L2 is tripped; degrade silently to L1-only.
			c.logger.Warn("L2 circuit open, degrading to L1-only", nil)
			return Miss, nil
		}
		return Miss, nil
	}

	encoded, _ := json.Marshal(raw)
	c.l1.Add(key, encoded)

	if raw.Negative {
		c.metrics.IncrementCounterWithLabels("cache_result_total", 1, map[string]string{"layer": "l2", "result": "negative"})
		return HitNegative, nil
	}
	if err := json.Unmarshal(raw.Payload, dest); err != nil {
		return Miss, err
	}
	c.metrics.IncrementCounterWithLabels("cache_result_total", 1, map[string]string{"layer": "l2", "result": "hit"})
	return HitL2, nil
}

// Set writes value through both layers. An L2 failure is logged but
// never surfaces to the caller; the write is still effective via L1.
func (c *MultiLayerCache) Set(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	env := envelope{Payload: payload}
	c.writeThrough(ctx, key, env, c.l2TTL)
	return nil
}

// SetNegative caches a miss with a shorter TTL so repeated lookups for
// the same not-found key don't recompute the origin on every call
// (thundering-herd protection).
func (c *MultiLayerCache) SetNegative(ctx context.Context, key string) {
	c.writeThrough(ctx, key, envelope{Negative: true}, c.negativeTTL)
}

func (c *MultiLayerCache) writeThrough(ctx context.Context, key string, env envelope, ttl time.Duration) {
	encoded, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.l1.Add(key, encoded)

	if c.l2 == nil {
		return
	}
	_, err = c.withBreaker(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, c.l2.Set(ctx, key, env, ttl)
	})
	if err != nil {
		c.logger.Warn("L2 write failed, value remains L1-only", map[string]interface{}{"error": err.Error()})
	}
}

func (c *MultiLayerCache) withBreaker(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if c.l2Breaker == nil {
		return fn(ctx)
	}
	return c.l2Breaker.Execute(ctx, fn)
}

// Clear purges the selected layer(s). Idempotent: clearing an already
// empty layer is a no-op, not an error.
func (c *MultiLayerCache) Clear(ctx context.Context, layer Layer) error {
	switch layer {
	case L1:
		c.l1.Purge()
	case L2:
		return c.clearL2(ctx)
	case AllLayers:
		c.l1.Purge()
		return c.clearL2(ctx)
	}
	return nil
}

func (c *MultiLayerCache) clearL2(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	_, err := c.withBreaker(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, c.l2.Flush(ctx)
	})
	if err != nil && !errors.Is(err, breaker.ErrOpen) {
		return err
	}
	return nil
}
