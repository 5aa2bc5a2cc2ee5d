package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/giak/mnemolite/internal/chunking"
	"github.com/giak/mnemolite/internal/chunking/parsers"
	"github.com/giak/mnemolite/internal/consumer"
	"github.com/giak/mnemolite/internal/embedclient"
	"github.com/giak/mnemolite/internal/errorlog"
	"github.com/giak/mnemolite/internal/graph"
	"github.com/giak/mnemolite/internal/store"
	"github.com/giak/mnemolite/internal/worker"
)

// fakeEmbedder returns a fixed-length zero vector per input so the
// Worker's embed stage can be exercised without AWS credentials.
type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Embed(ctx context.Context, domain embedclient.Domain, texts []string) ([][]float32, error) {
	vec := make([]float32, f.dim)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = vec
	}
	return out, nil
}

func (f fakeEmbedder) Dimensions() int { return f.dim }

func newTestWorker(t *testing.T) (*worker.Worker, sqlmock.Sqlmock, sqlmock.Sqlmock, sqlmock.Sqlmock) {
	t.Helper()

	chunkDB, chunkMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = chunkDB.Close() })
	chunkStore := store.NewWithDB(sqlx.NewDb(chunkDB, "postgres"))

	graphDB, graphMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = graphDB.Close() })
	graphStore := graph.NewStore(sqlx.NewDb(graphDB, "postgres"))

	errDB, errMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = errDB.Close() })
	errLog := errorlog.NewLog(sqlx.NewDb(errDB, "postgres"))

	chunker := chunking.NewService(2*1024*1024, nil)
	chunker.RegisterParser(parsers.PythonParser{})

	w := worker.New(chunker, fakeEmbedder{dim: 4}, chunkStore, graphStore, errLog, nil, nil)
	return w, chunkMock, graphMock, errMock
}

func TestProcessPersistsChunksFromAGoodFileAndSkipsABadOne(t *testing.T) {
	dir := t.TempDir()
	goodFile := filepath.Join(dir, "good.py")
	require.NoError(t, os.WriteFile(goodFile, []byte("def f():\n    return 1\n"), 0o644))
	missingFile := filepath.Join(dir, "missing.py")

	w, chunkMock, graphMock, errMock := newTestWorker(t)

	chunkMock.ExpectBegin()
	chunkMock.ExpectExec("INSERT INTO code_chunks").WillReturnResult(sqlmock.NewResult(1, 1))
	chunkMock.ExpectCommit()

	graphMock.ExpectBegin()
	graphMock.ExpectExec("INSERT INTO nodes").WillReturnResult(sqlmock.NewResult(1, 1))
	graphMock.ExpectCommit()

	errMock.ExpectExec("INSERT INTO indexing_errors").WillReturnResult(sqlmock.NewResult(1, 1))

	batch := consumer.BatchPayload{Repository: "r", Files: []string{goodFile, missingFile}}
	err := w.Process(context.Background(), batch)
	require.NoError(t, err)
	require.NoError(t, chunkMock.ExpectationsWereMet())
	require.NoError(t, errMock.ExpectationsWereMet())
}

func TestProcessReturnsErrorWhenPersistenceFails(t *testing.T) {
	dir := t.TempDir()
	goodFile := filepath.Join(dir, "good.py")
	require.NoError(t, os.WriteFile(goodFile, []byte("def f():\n    return 1\n"), 0o644))

	w, chunkMock, _, _ := newTestWorker(t)

	chunkMock.ExpectBegin()
	chunkMock.ExpectExec("INSERT INTO code_chunks").WillReturnError(errors.New("connection refused"))
	chunkMock.ExpectRollback()

	batch := consumer.BatchPayload{Repository: "r", Files: []string{goodFile}}
	err := w.Process(context.Background(), batch)
	require.Error(t, err)
}
