package search_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giak/mnemolite/internal/search"
	"github.com/giak/mnemolite/internal/store"
)

func newMockEngine(t *testing.T, embedQuery func(ctx context.Context, texts []string) ([][]float32, error)) (*search.Engine, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	s := store.NewWithDB(sqlx.NewDb(mockDB, "postgres"))
	return search.New(s, nil, embedQuery, nil, nil, nil, nil), mock
}

func TestSearchLexicalModeReturnsRankedResults(t *testing.T) {
	e, mock := newMockEngine(t, nil)

	mock.ExpectQuery("SELECT id, repository").WillReturnRows(
		sqlmock.NewRows([]string{"id", "repository", "file_path", "language", "chunk_type", "name", "unnameable", "body", "start_line", "end_line", "content_hash", "similarity"}).
			AddRow(1, "r", "a.py", "python", "function", "f", false, "def f(): pass", 1, 1, "h1", 0.9).
			AddRow(2, "r", "b.py", "python", "function", "g", false, "def g(): pass", 1, 1, "h2", 0.5),
	)

	resp, err := e.Search(context.Background(), search.Request{Query: "f", Mode: search.Lexical, TopK: 5})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, int64(1), resp.Results[0].Chunk.ID)
}

func TestSearchHybridDegradesToLexicalWhenVectorLegFails(t *testing.T) {
	e, mock := newMockEngine(t, nil) // nil embedQuery forces the vector leg to fail

	mock.ExpectQuery("SELECT id, repository").WillReturnRows(
		sqlmock.NewRows([]string{"id", "repository", "file_path", "language", "chunk_type", "name", "unnameable", "body", "start_line", "end_line", "content_hash", "similarity"}).
			AddRow(1, "r", "a.py", "python", "function", "f", false, "def f(): pass", 1, 1, "h1", 0.9),
	)

	resp, err := e.Search(context.Background(), search.Request{Query: "f", Mode: search.Hybrid, TopK: 5})
	require.NoError(t, err)
	assert.True(t, resp.Metadata.Degraded)
	require.Len(t, resp.Results, 1)
}

func TestSearchHybridFusesLexicalAndVectorLegs(t *testing.T) {
	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{0.1, 0.2, 0.3}}, nil
	}
	e, mock := newMockEngine(t, embed)

	cols := []string{"id", "repository", "file_path", "language", "chunk_type", "name", "unnameable", "body", "start_line", "end_line", "content_hash", "similarity"}
	mock.ExpectQuery("(?s)SELECT id, repository.*similarity\\(body").WillReturnRows(
		sqlmock.NewRows(cols).AddRow(1, "r", "a.py", "python", "function", "f", false, "body-a", 1, 1, "h1", 0.9),
	)
	mock.ExpectQuery("(?s)SELECT id, repository.*<=>").WillReturnRows(
		sqlmock.NewRows(cols).
			AddRow(2, "r", "b.py", "python", "function", "g", false, "body-b", 1, 1, "h2", 0.8).
			AddRow(1, "r", "a.py", "python", "function", "f", false, "body-a", 1, 1, "h1", 0.7),
	)

	resp, err := e.Search(context.Background(), search.Request{Query: "f", Mode: search.Hybrid, TopK: 5})
	require.NoError(t, err)
	assert.False(t, resp.Metadata.Degraded)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, int64(1), resp.Results[0].Chunk.ID) // appears in both legs, ranks first under RRF
}

func TestSearchVectorModeErrorsWithoutAnEmbedder(t *testing.T) {
	e, _ := newMockEngine(t, nil)
	_, err := e.Search(context.Background(), search.Request{Query: "f", Mode: search.Vector, TopK: 5})
	require.Error(t, err)
}
