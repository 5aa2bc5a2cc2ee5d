// Package consumer implements the Batch Consumer (C9): consumer-group
// semantics over the durable stream, dispatching each entry to a Worker
// and classifying failures into continue/retry/halt per C1.
package consumer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/giak/mnemolite/internal/classify"
	"github.com/giak/mnemolite/internal/observability"
	"github.com/giak/mnemolite/internal/stream"
)

// BatchPayload is the decoded form of one stream entry, matching the
// wire shape in spec §6.
type BatchPayload struct {
	JobID      string
	BatchIndex int
	Repository string
	Files      []string
	Attempt    int
}

// WorkerFunc executes one batch end-to-end (C10). A non-nil error is
// classified by the Consumer to decide ack/retry/dead-letter/halt.
type WorkerFunc func(ctx context.Context, batch BatchPayload) error

// Config tunes the consumer loop.
type Config struct {
	StreamName        string
	DeadLetterStream  string
	Group             string
	ConsumerName      string
	ReadCount         int64
	BlockDuration     time.Duration

	// RetryDelay computes how long to wait before republishing a
	// batch-level failure for the given (post-increment) attempt
	// number. Defaults to classify.RetryDelaySeconds. Tests override
	// this to avoid waiting out the real 5/10/20/40/60s sequence.
	RetryDelay func(attempt int) time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReadCount <= 0 {
		c.ReadCount = 1
	}
	if c.BlockDuration <= 0 {
		c.BlockDuration = 5 * time.Second
	}
	if c.RetryDelay == nil {
		c.RetryDelay = func(attempt int) time.Duration {
			return time.Duration(classify.RetryDelaySeconds(attempt)) * time.Second
		}
	}
	return c
}

// Consumer runs the read/dispatch/ack loop described in spec §4.9.
type Consumer struct {
	stream  *stream.Client
	cfg     Config
	worker  WorkerFunc
	logger  observability.Logger
	metrics observability.MetricsClient
}

// New builds a Consumer bound to one stream Client and Worker.
func New(streamClient *stream.Client, cfg Config, worker WorkerFunc, logger observability.Logger, metrics observability.MetricsClient) *Consumer {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Consumer{stream: streamClient, cfg: cfg.withDefaults(), worker: worker, logger: logger, metrics: metrics}
}

// Run loops until ctx is cancelled or a system-level error halts the
// consumer. The stop signal is only honored between entries, never
// mid-Worker invocation.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		entries, err := c.stream.ReadGroup(ctx, c.cfg.StreamName, c.cfg.Group, c.cfg.ConsumerName, c.cfg.ReadCount, c.cfg.BlockDuration)
		if err != nil {
			c.logger.Error("read group failed", map[string]interface{}{"error": err.Error()})
			continue
		}

		for _, entry := range entries {
			if err := c.handle(ctx, entry); err != nil {
				return err // system-level: halt
			}
		}
	}
}

// handle processes one entry, returning a non-nil error only when the
// consumer must halt (a system-level classification).
func (c *Consumer) handle(ctx context.Context, entry stream.Entry) error {
	payload := decodePayload(entry.Values)

	err := c.worker(ctx, payload)
	if err == nil {
		c.metrics.IncrementCounter("consumer_batches_succeeded_total", 1)
		return c.ack(ctx, entry.ID)
	}

	errType := classify.Classify(err)
	switch classify.TierOf(errType) {
	case classify.TierFile:
		// Already recorded per-file by the Worker/Error Log; the batch
		// as a whole still succeeded.
		c.metrics.IncrementCounterWithLabels("consumer_file_errors_total", 1, map[string]string{"error_type": string(errType)})
		return c.ack(ctx, entry.ID)

	case classify.TierBatch:
		return c.retryOrDeadLetter(ctx, entry, payload, errType, err)

	default: // TierSystem
		c.logger.Error("system-level error, halting consumer", map[string]interface{}{
			"error": err.Error(), "error_type": string(errType),
		})
		c.metrics.IncrementCounterWithLabels("consumer_system_errors_total", 1, map[string]string{"error_type": string(errType)})
		return err
	}
}

func (c *Consumer) retryOrDeadLetter(ctx context.Context, entry stream.Entry, payload BatchPayload, errType classify.ErrorType, cause error) error {
	nextAttempt := payload.Attempt + 1

	if nextAttempt > classify.MaxBatchRetries {
		if dlErr := c.stream.PublishToDeadLetter(ctx, c.cfg.DeadLetterStream, entry.Values, string(errType), cause.Error()); dlErr != nil {
			c.logger.Error("dead-letter publish failed", map[string]interface{}{"error": dlErr.Error()})
		}
		c.metrics.IncrementCounterWithLabels("consumer_batches_dead_lettered_total", 1, map[string]string{"error_type": string(errType)})
		return c.ack(ctx, entry.ID)
	}

	fields := make(map[string]interface{}, len(entry.Values))
	for k, v := range entry.Values {
		fields[k] = v
	}
	fields["attempt"] = strconv.Itoa(nextAttempt)

	timer := time.NewTimer(c.cfg.RetryDelay(nextAttempt))
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}

	if _, err := c.stream.Publish(ctx, c.cfg.StreamName, fields); err != nil {
		return err
	}
	c.metrics.IncrementCounterWithLabels("consumer_batches_retried_total", 1, map[string]string{"error_type": string(errType)})
	return c.ack(ctx, entry.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) error {
	return c.stream.Ack(ctx, c.cfg.StreamName, c.cfg.Group, id)
}

func decodePayload(values map[string]interface{}) BatchPayload {
	p := BatchPayload{}
	if v, ok := values["job_id"].(string); ok {
		p.JobID = v
	}
	if v, ok := values["repository"].(string); ok {
		p.Repository = v
	}
	if v, ok := values["batch_index"].(string); ok {
		p.BatchIndex, _ = strconv.Atoi(v)
	}
	if v, ok := values["attempt"].(string); ok {
		p.Attempt, _ = strconv.Atoi(v)
	}
	if p.Attempt == 0 {
		p.Attempt = 1
	}
	if v, ok := values["files"].(string); ok && v != "" {
		p.Files = strings.Split(v, "\x1f")
	}
	return p
}
