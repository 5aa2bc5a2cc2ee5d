package errorlog

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockLog(t *testing.T) (*Log, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return &Log{db: sqlx.NewDb(mockDB, "postgres")}, mock
}

func TestRecordInsertsOneRow(t *testing.T) {
	l, mock := newMockLog(t)
	mock.ExpectExec("INSERT INTO indexing_errors").WillReturnResult(sqlmock.NewResult(1, 1))

	err := l.Record(context.Background(), Entry{
		Repository: "r", FilePath: "a.py", ErrorType: "parse_error",
		Message: "syntax error", OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAppliesRepositoryFilterAndPagination(t *testing.T) {
	l, mock := newMockLog(t)

	mock.ExpectQuery("SELECT COUNT").WithArgs("r").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT id, repository").WithArgs("r", 10, 0).WillReturnRows(
		sqlmock.NewRows([]string{"id", "repository", "file_path", "error_type", "message", "stack", "chunk_type", "language", "occurred_at"}).
			AddRow(1, "r", "a.py", "parse_error", "boom", "", "", "python", time.Now()),
	)

	entries, total, err := l.List(context.Background(), Filters{Repository: "r"}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, entries, 1)
}
