package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/giak/mnemolite/internal/chunking"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return &Store{db: sqlx.NewDb(mockDB, "postgres")}, mock
}

func TestUpsertBatchCommitsAllOrNothing(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	chunks := []chunking.Chunk{
		{Repository: "r", FilePath: "a.py", Type: chunking.ChunkFunction, Name: "f", StartLine: 1, Body: "def f(): pass"},
		{Repository: "r", FilePath: "a.py", Type: chunking.ChunkFunction, Name: "g", StartLine: 3, Body: "def g(): pass"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO code_chunks").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO code_chunks").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, s.UpsertBatch(ctx, chunks))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	chunks := []chunking.Chunk{
		{Repository: "r", FilePath: "a.py", Type: chunking.ChunkFunction, Name: "f", StartLine: 1, Body: "def f(): pass"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO code_chunks").WillReturnError(assertErr)
	mock.ExpectRollback()

	require.Error(t, s.UpsertBatch(ctx, chunks))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestByRepositoryOrdersByFilePathThenStartLine(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "repository", "file_path", "language", "chunk_type", "name", "unnameable", "body", "start_line", "end_line", "content_hash"}).
		AddRow(1, "r", "a.py", "python", "function", "f", false, "def f(): pass", 1, 1, "hash1")

	mock.ExpectQuery("SELECT .* FROM code_chunks").WithArgs("r", 10, 0).WillReturnRows(rows)

	result, err := s.ByRepository(ctx, "r", 10, 0)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, "f", result[0].Name)
}

func TestDeleteByRepository(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM code_chunks WHERE repository").WithArgs("r").WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, s.DeleteByRepository(ctx, "r"))
	require.NoError(t, mock.ExpectationsWereMet())
}

var assertErr = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }
