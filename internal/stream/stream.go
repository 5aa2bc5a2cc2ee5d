// Package stream implements the durable stream transport shared by the
// Batch Producer (C8) and Batch Consumer (C9): Redis Streams consumer
// groups with at-least-once delivery, plus a dead-letter stream for
// batches that exhaust their retry budget.
package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/giak/mnemolite/internal/observability"
)

// Config configures the Redis connection backing the stream.
type Config struct {
	Address      string
	Password     string
	Database     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Entry is one message read from a stream, ready to be acked or claimed.
type Entry struct {
	ID     string
	Values map[string]interface{}
}

// Client wraps a Redis connection for stream production and consumption.
// One Client is shared by every producer/consumer goroutine in a process.
type Client struct {
	rdb    *redis.Client
	logger observability.Logger
	tracer *observability.Tracer
}

// New dials Redis and verifies connectivity with PING.
func New(cfg Config, logger observability.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "stream: connect")
	}

	return &Client{rdb: rdb, logger: logger, tracer: observability.NewTracer("mnemolite/stream")}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

// EnsureConsumerGroup creates the named consumer group, creating the
// stream itself (MKSTREAM) if it does not yet exist. Idempotent: an
// already-existing group is not an error.
func (c *Client) EnsureConsumerGroup(ctx context.Context, streamName, group string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, streamName, group, "$").Err()
	if err != nil && !isBusyGroupErr(err) {
		return errors.Wrap(err, "stream: ensure consumer group")
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// Publish appends fields to streamName via XADD, returning the assigned
// entry ID.
func (c *Client) Publish(ctx context.Context, streamName string, fields map[string]interface{}) (string, error) {
	ctx, end := c.tracer.Start(ctx, "stream.publish", attribute.String("stream", streamName))
	defer end()

	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: fields,
	}).Result()
	if err != nil {
		return "", errors.Wrap(err, "stream: publish")
	}
	return id, nil
}

// PublishToDeadLetter appends the original entry's fields plus the
// classification that exhausted its retry budget to deadLetterStream.
func (c *Client) PublishToDeadLetter(ctx context.Context, deadLetterStream string, original map[string]interface{}, errorType, lastError string) error {
	fields := make(map[string]interface{}, len(original)+2)
	for k, v := range original {
		fields[k] = v
	}
	fields["error_type"] = errorType
	fields["last_error"] = lastError
	_, err := c.Publish(ctx, deadLetterStream, fields)
	return err
}

// ReadGroup blocks up to block for up to count new entries delivered to
// consumerName within group, reading from streamName with ">" (never
// redelivered) semantics.
func (c *Client) ReadGroup(ctx context.Context, streamName, group, consumerName string, count int64, block time.Duration) ([]Entry, error) {
	ctx, end := c.tracer.Start(ctx, "stream.consume", attribute.String("stream", streamName), attribute.String("group", group))
	defer end()

	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumerName,
		Streams:  []string{streamName, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "stream: read group")
	}

	var entries []Entry
	for _, s := range res {
		for _, msg := range s.Messages {
			entries = append(entries, Entry{ID: msg.ID, Values: msg.Values})
		}
	}
	return entries, nil
}

// Ack acknowledges processed entry IDs, removing them from the group's
// pending-entries list.
func (c *Client) Ack(ctx context.Context, streamName, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.rdb.XAck(ctx, streamName, group, ids...).Err(); err != nil {
		return errors.Wrap(err, "stream: ack")
	}
	return nil
}

// Claim transfers ownership of entries idle for at least minIdle to
// newConsumer, used to recover work abandoned by a crashed consumer.
func (c *Client) Claim(ctx context.Context, streamName, group, newConsumer string, minIdle time.Duration, ids []string) ([]Entry, error) {
	msgs, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   streamName,
		Group:    group,
		Consumer: newConsumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "stream: claim")
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, Entry{ID: msg.ID, Values: msg.Values})
	}
	return entries, nil
}

// Depth reports the current stream length, used for queue-depth metrics.
func (c *Client) Depth(ctx context.Context, streamName string) (int64, error) {
	info, err := c.rdb.XInfoStream(ctx, streamName).Result()
	if err != nil {
		return 0, errors.Wrap(err, "stream: depth")
	}
	return info.Length, nil
}

// ConsumerName builds a stable per-instance consumer identity.
func ConsumerName(prefix string, instanceIndex int) string {
	return fmt.Sprintf("%s-%d", prefix, instanceIndex)
}
