// Package errorlog implements the Indexing Error Log (C12): an
// append-only audit of per-file failures, written by the Worker
// (including the Chunker's declaration errors), read with pagination by
// the monitoring UI.
package errorlog

import (
	"context"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Entry is one failure record.
type Entry struct {
	ID         int64     `db:"id"`
	Repository string    `db:"repository"`
	FilePath   string    `db:"file_path"`
	ErrorType  string    `db:"error_type"`
	Message    string    `db:"message"`
	Stack      string    `db:"stack"`
	ChunkType  string    `db:"chunk_type"`
	Language   string    `db:"language"`
	OccurredAt time.Time `db:"occurred_at"`
}

// Filters narrows a List call.
type Filters struct {
	Repository string
	ErrorType  string
}

// Log appends and reads indexing_errors rows.
type Log struct {
	db *sqlx.DB
}

// NewLog wraps an existing connection pool.
func NewLog(db *sqlx.DB) *Log { return &Log{db: db} }

// Record appends one failure row. Append-only: no update or delete path
// is exposed, matching the audit-trail contract in spec §4.12.
func (l *Log) Record(ctx context.Context, e Entry) error {
	_, err := l.db.NamedExecContext(ctx, `
INSERT INTO indexing_errors (repository, file_path, error_type, message, stack, chunk_type, language, occurred_at)
VALUES (:repository, :file_path, :error_type, :message, :stack, :chunk_type, :language, :occurred_at)
`, e)
	return errors.Wrap(err, "errorlog: record")
}

// List returns a page of entries matching Filters, newest first.
func (l *Log) List(ctx context.Context, f Filters, limit, offset int) ([]Entry, int, error) {
	where := ""
	args := []interface{}{}
	arg := 1
	if f.Repository != "" {
		where += " WHERE repository = $1"
		args = append(args, f.Repository)
		arg++
	}
	if f.ErrorType != "" {
		if where == "" {
			where = " WHERE error_type = $1"
		} else {
			where += " AND error_type = $2"
		}
		args = append(args, f.ErrorType)
		arg++
	}

	var total int
	countArgs := append([]interface{}{}, args...)
	if err := l.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM indexing_errors"+where, countArgs...); err != nil {
		return nil, 0, errors.Wrap(err, "errorlog: count")
	}

	pageArgs := append(append([]interface{}{}, args...), limit, offset)
	query := "SELECT id, repository, file_path, error_type, message, stack, chunk_type, language, occurred_at FROM indexing_errors" +
		where + " ORDER BY occurred_at DESC LIMIT $" + strconv.Itoa(arg) + " OFFSET $" + strconv.Itoa(arg+1)

	var entries []Entry
	if err := l.db.SelectContext(ctx, &entries, query, pageArgs...); err != nil {
		return nil, 0, errors.Wrap(err, "errorlog: list")
	}
	return entries, total, nil
}
