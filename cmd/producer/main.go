// Command producer submits one repository for indexing: it walks the
// given root path, partitions the discovered files into fixed-size
// batches, and publishes each batch onto the durable stream for the
// Batch Consumer to pick up.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/giak/mnemolite/internal/config"
	"github.com/giak/mnemolite/internal/observability"
	"github.com/giak/mnemolite/internal/producer"
	"github.com/giak/mnemolite/internal/stream"
)

var (
	repository = flag.String("repository", "", "repository identifier to tag every chunk with")
	rootPath   = flag.String("root", "", "filesystem path to walk")
	extensions = flag.String("extensions", ".py,.js,.jsx,.mjs,.ts,.tsx,.php,.vue", "comma-separated list of extensions to index")
)

func main() {
	flag.Parse()
	if *repository == "" || *rootPath == "" {
		fmt.Fprintln(os.Stderr, "usage: producer -repository <name> -root <path> [-extensions .py,.ts,...]")
		os.Exit(1)
	}

	logger := observability.NewLogger("producer")
	shutdownTracing := observability.InitTracerProvider("mnemolite-producer")
	defer shutdownTracing(context.Background())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

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

	p := producer.New(streamClient)
	resp, err := p.Submit(ctx, cfg.StreamName, producer.Request{
		JobID:      uuid.NewString(),
		Repository: *repository,
		RootPath:   *rootPath,
		Extensions: splitExtensions(*extensions),
		BatchSize:  cfg.BatchSize,
	})
	if err != nil {
		log.Fatalf("submit: %v", err)
	}

	logger.Info("submitted indexing job", map[string]interface{}{
		"job_id":       resp.JobID,
		"total_files":  resp.TotalFiles,
		"total_batches": resp.TotalBatches,
	})
}

func splitExtensions(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
