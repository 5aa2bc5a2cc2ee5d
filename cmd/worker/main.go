// Command worker processes a single batch of files end to end (parse,
// embed, persist, build graph) without going through the durable
// stream. It exists for local backfills and manual reprocessing; the
// long-running pipeline is cmd/consumer, which invokes the same
// internal/worker.Worker per batch it reads off the stream.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

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
	"github.com/giak/mnemolite/internal/worker"
)

var (
	repository = flag.String("repository", "", "repository identifier to tag every chunk with")
	fileList   = flag.String("files", "", "comma-separated file paths; reads newline-separated paths from stdin if empty")
)

func main() {
	flag.Parse()
	if *repository == "" {
		fmt.Fprintln(os.Stderr, "usage: worker -repository <name> [-files a.py,b.ts,...] (or pipe paths on stdin)")
		os.Exit(1)
	}

	files, err := resolveFiles(*fileList)
	if err != nil {
		log.Fatalf("resolve file list: %v", err)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no files to process")
		os.Exit(1)
	}

	logger := observability.NewLogger("worker")
	metrics := observability.NewMetricsClient()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.WorkerTimeout)
	defer cancel()

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

	start := time.Now()
	err = w.Process(ctx, consumer.BatchPayload{Repository: *repository, Files: files})
	logger.Info("batch processed", map[string]interface{}{
		"repository": *repository,
		"file_count": len(files),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		logger.Error("batch processing failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func resolveFiles(flagValue string) ([]string, error) {
	if flagValue != "" {
		parts := strings.Split(flagValue, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}

	var files []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			files = append(files, line)
		}
	}
	return files, scanner.Err()
}
