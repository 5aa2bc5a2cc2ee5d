// Command consumer runs the Batch Consumer loop: it reads batches off
// the durable stream's consumer group, hands each to the Worker, and
// dispatches failures to ack/retry/dead-letter/halt per the shared
// error classification.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giak/mnemolite/internal/breaker"
	"github.com/giak/mnemolite/internal/chunking"
	"github.com/giak/mnemolite/internal/chunking/parsers"
	"github.com/giak/mnemolite/internal/config"
	"github.com/giak/mnemolite/internal/consumer"
	"github.com/giak/mnemolite/internal/embedclient"
	"github.com/giak/mnemolite/internal/errorlog"
	"github.com/giak/mnemolite/internal/graph"
	"github.com/giak/mnemolite/internal/observability"
	"github.com/giak/mnemolite/internal/store"
	"github.com/giak/mnemolite/internal/stream"
	"github.com/giak/mnemolite/internal/worker"
)

func main() {
	logger := observability.NewLogger("consumer")
	metrics := observability.NewMetricsClient()
	shutdownTracing := observability.InitTracerProvider("mnemolite-consumer")
	defer shutdownTracing(context.Background())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	opts, err := redis.ParseURL(cfg.StreamURL)
	if err != nil {
		log.Fatalf("parse stream url: %v", err)
	}
	streamClient, err := stream.New(stream.Config{Address: opts.Addr, Password: opts.Password, Database: opts.DB}, logger)
	if err != nil {
		log.Fatalf("connect to stream: %v", err)
	}
	defer streamClient.Close()

	if err := streamClient.EnsureConsumerGroup(ctx, cfg.StreamName, cfg.ConsumerGroup); err != nil {
		log.Fatalf("ensure consumer group: %v", err)
	}

	chunkStore, err := store.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect chunk store: %v", err)
	}
	defer chunkStore.Close()

	graphStore := graph.NewStore(chunkStore.DB())
	errLog := errorlog.NewLog(chunkStore.DB())

	chunker := chunking.NewService(cfg.MaxFileSize, logger)
	chunker.RegisterParser(parsers.PythonParser{})
	chunker.RegisterParser(parsers.NewJavaScriptParser())
	chunker.RegisterParser(parsers.NewTypeScriptParser())
	chunker.RegisterParser(parsers.PHPParser{})
	chunker.RegisterParser(parsers.NewVueParser())

	embeddingBreaker := breaker.New("embedding_service", breaker.Config{
		FailureThreshold: cfg.EmbeddingBreaker.FailureThreshold,
		RecoveryTimeout:  cfg.EmbeddingBreaker.RecoveryTimeout,
		HalfOpenMaxCalls: cfg.EmbeddingBreaker.HalfOpenMaxCalls,
	}, logger, metrics)

	embedClient, err := embedclient.New(ctx, cfg.AWSRegion, embedclient.ModelConfig{}, cfg.EmbeddingMaxBatch, embeddingBreaker, logger, metrics)
	if err != nil {
		log.Fatalf("build embedding client: %v", err)
	}

	w := worker.New(chunker, embedClient, chunkStore, graphStore, errLog, logger, metrics)

	c := consumer.New(streamClient, consumer.Config{
		StreamName:       cfg.StreamName,
		DeadLetterStream: cfg.DeadLetterStream,
		Group:            cfg.ConsumerGroup,
		ConsumerName:     stream.ConsumerName("consumer", 0),
		BlockDuration:    5 * time.Second,
	}, w.Process, logger, metrics)

	logger.Info("consumer starting", map[string]interface{}{"stream": cfg.StreamName, "group": cfg.ConsumerGroup})
	if err := c.Run(ctx); err != nil {
		logger.Error("consumer halted", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	logger.Info("consumer stopped", nil)
}
