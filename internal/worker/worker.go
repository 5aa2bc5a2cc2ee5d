// Package worker implements the Worker (C10): runs one batch end-to-end
// (chunk -> embed -> persist -> record errors), one file at a time,
// under a per-file try boundary so a single broken file never aborts
// the batch.
package worker

import (
	"context"
	"os"
	"time"

	"github.com/giak/mnemolite/internal/chunking"
	"github.com/giak/mnemolite/internal/classify"
	"github.com/giak/mnemolite/internal/consumer"
	"github.com/giak/mnemolite/internal/embedclient"
	"github.com/giak/mnemolite/internal/errorlog"
	"github.com/giak/mnemolite/internal/graph"
	"github.com/giak/mnemolite/internal/observability"
	"github.com/giak/mnemolite/internal/store"
)

// Embedder is the subset of embedclient.Client the Worker calls;
// narrowing to an interface lets tests substitute a fake without
// standing up real AWS credentials.
type Embedder interface {
	Embed(ctx context.Context, domain embedclient.Domain, texts []string) ([][]float32, error)
	Dimensions() int
}

// Worker wires the Chunker, Embedding Client, Chunk Store, Graph
// Builder, and Error Log into one batch-processing unit.
type Worker struct {
	chunker    *chunking.Service
	embed      Embedder
	chunkStore *store.Store
	graphStore *graph.Store
	errors     *errorlog.Log
	logger     observability.Logger
	metrics    observability.MetricsClient
}

// New builds a Worker from its component dependencies.
func New(chunker *chunking.Service, embed Embedder, chunkStore *store.Store, graphStore *graph.Store, errors *errorlog.Log, logger observability.Logger, metrics observability.MetricsClient) *Worker {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Worker{chunker: chunker, embed: embed, chunkStore: chunkStore, graphStore: graphStore, errors: errors, logger: logger, metrics: metrics}
}

// Process implements consumer.WorkerFunc: it processes every file in
// the batch under its own try boundary, persists all successfully
// chunked+embedded chunks in one transaction, runs the Graph Builder
// over them, and appends captured errors to the Error Log. It returns
// non-nil only for uncaught system-level failures (spec §4.10's "exit
// code 0 even with partial file failures" contract).
func (w *Worker) Process(ctx context.Context, batch consumer.BatchPayload) error {
	var allChunks []chunking.Chunk

	for _, filePath := range batch.Files {
		chunks, err := w.processFile(ctx, batch.Repository, filePath)
		if err != nil {
			w.recordFileError(ctx, batch.Repository, filePath, err)
			continue
		}
		allChunks = append(allChunks, chunks...)
	}

	if len(allChunks) == 0 {
		return nil
	}

	if err := w.chunkStore.UpsertBatch(ctx, allChunks); err != nil {
		return err // persistence failure is batch-level (DB_CONNECTION_ERROR pattern), surfaced to the Consumer
	}

	if w.graphStore != nil {
		g := graph.Build(allChunks)
		g.ComputePagerank()
		if err := w.graphStore.Persist(ctx, g); err != nil {
			w.logger.Warn("graph persistence failed", map[string]interface{}{"error": err.Error()})
		}
	}

	return nil
}

// processFile parses, then embeds, a single file's content. Failure at
// either stage is the caller's responsibility to record as a file-level
// error and continue to the next file.
func (w *Worker) processFile(ctx context.Context, repository, filePath string) ([]chunking.Chunk, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	chunks, declErrs, err := w.chunker.ChunkFile(repository, filePath, content)
	if err != nil {
		return nil, err
	}
	for _, de := range declErrs {
		w.recordDeclarationError(ctx, repository, filePath, de)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Body
	}
	vectors, err := w.embed.Embed(ctx, embedclient.Hybrid, texts)
	if err != nil {
		return nil, err
	}
	dim := w.embed.Dimensions()
	for i := range chunks {
		if len(vectors[i]) >= 2*dim {
			chunks[i].TextEmbedding = vectors[i][:dim]
			chunks[i].CodeEmbedding = vectors[i][dim:]
		}
	}

	return chunks, nil
}

func (w *Worker) recordFileError(ctx context.Context, repository, filePath string, cause error) {
	errType := classify.Classify(cause)
	w.metrics.IncrementCounterWithLabels("worker_file_errors_total", 1, map[string]string{"error_type": string(errType)})
	if w.errors == nil {
		return
	}
	_ = w.errors.Record(ctx, errorlog.Entry{
		Repository: repository,
		FilePath:   filePath,
		ErrorType:  string(errType),
		Message:    cause.Error(),
		OccurredAt: time.Now(),
	})
}

func (w *Worker) recordDeclarationError(ctx context.Context, repository, filePath string, de chunking.DeclarationError) {
	if w.errors == nil {
		return
	}
	_ = w.errors.Record(ctx, errorlog.Entry{
		Repository: repository,
		FilePath:   filePath,
		ErrorType:  "chunking_error",
		Message:    de.Message,
		OccurredAt: time.Now(),
	})
}
