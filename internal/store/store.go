// Package store implements the Chunk Store (C6): relational persistence
// of chunks, their dense vectors, and a trigram lexical index, with
// replace-by-identity upsert semantics.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/giak/mnemolite/internal/chunking"
)

// Filters narrow a read to a subset of chunks, matching spec §4.11's
// filter set.
type Filters struct {
	Repository string
	Language   string
	ChunkType  string
	PathPrefix string
}

// Row is a persisted chunk as read back from the store, including the
// generated chunk ID other components (Graph Builder, Search) key off.
type Row struct {
	ID         int64             `db:"id"`
	Repository string            `db:"repository"`
	FilePath   string            `db:"file_path"`
	Language   string            `db:"language"`
	ChunkType  string            `db:"chunk_type"`
	Name       string            `db:"name"`
	Unnameable bool              `db:"unnameable"`
	Body       string            `db:"body"`
	StartLine  int               `db:"start_line"`
	EndLine    int               `db:"end_line"`
	ContentHash string           `db:"content_hash"`
	Similarity  float64          `db:"similarity"`
}

// Store persists chunks into the code_chunks table.
type Store struct {
	db *sqlx.DB
}

// New opens a connection pool against databaseURL, capped at 10 open
// connections per process with up to 5 kept idle; no minimum number of
// open connections is held.
func New(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "store: connect")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool, shared process-wide with
// the Graph Builder's own Store per spec §5.
func NewWithDB(db *sqlx.DB) *Store { return &Store{db: db} }

// DB exposes the underlying connection pool so other stores (the Graph
// Builder's, the Error Log's) can share it process-wide per spec §5.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// UpsertBatch persists a batch of chunks atomically: replace-by-identity
// within a single transaction, committing all or nothing.
func (s *Store) UpsertBatch(ctx context.Context, chunks []chunking.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "store: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt := `
INSERT INTO code_chunks
	(repository, file_path, language, chunk_type, name, unnameable, body,
	 start_byte, end_byte, start_line, end_line, content_hash,
	 text_embedding, code_embedding, metadata,
	 cyclomatic_complexity, cognitive_complexity, loc, afferent_coupling, efferent_coupling)
VALUES
	(:repository, :file_path, :language, :chunk_type, :name, :unnameable, :body,
	 :start_byte, :end_byte, :start_line, :end_line, :content_hash,
	 :text_embedding, :code_embedding, :metadata,
	 :cyclomatic_complexity, :cognitive_complexity, :loc, :afferent_coupling, :efferent_coupling)
ON CONFLICT (repository, file_path, chunk_type, name, start_line)
DO UPDATE SET
	body = EXCLUDED.body,
	start_byte = EXCLUDED.start_byte,
	end_byte = EXCLUDED.end_byte,
	end_line = EXCLUDED.end_line,
	content_hash = EXCLUDED.content_hash,
	text_embedding = EXCLUDED.text_embedding,
	code_embedding = EXCLUDED.code_embedding,
	metadata = EXCLUDED.metadata,
	unnameable = EXCLUDED.unnameable,
	cyclomatic_complexity = EXCLUDED.cyclomatic_complexity,
	cognitive_complexity = EXCLUDED.cognitive_complexity,
	loc = EXCLUDED.loc,
	afferent_coupling = EXCLUDED.afferent_coupling,
	efferent_coupling = EXCLUDED.efferent_coupling
`

	for _, c := range chunks {
		params := map[string]interface{}{
			"repository":            c.Repository,
			"file_path":             c.FilePath,
			"language":              string(c.Language),
			"chunk_type":            string(c.Type),
			"name":                  c.Name,
			"unnameable":            c.Unnameable,
			"body":                  c.Body,
			"start_byte":            c.StartByte,
			"end_byte":              c.EndByte,
			"start_line":            c.StartLine,
			"end_line":              c.EndLine,
			"content_hash":          c.ContentHash,
			"text_embedding":        toVector(c.TextEmbedding),
			"code_embedding":        toVector(c.CodeEmbedding),
			"metadata":              flattenMetadata(c.Metadata),
			"cyclomatic_complexity": c.Metrics.Cyclomatic,
			"cognitive_complexity":  c.Metrics.Cognitive,
			"loc":                   c.Metrics.LOC,
			"afferent_coupling":     c.Metrics.AfferentCoupling,
			"efferent_coupling":     c.Metrics.EfferentCoupling,
		}
		if _, err := tx.NamedExecContext(ctx, stmt, params); err != nil {
			return errors.Wrapf(err, "store: upsert chunk %s", c.Identity())
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "store: commit")
	}
	return nil
}

func toVector(v []float32) interface{} {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func flattenMetadata(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// DeleteByRepository removes every chunk belonging to repository.
func (s *Store) DeleteByRepository(ctx context.Context, repository string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM code_chunks WHERE repository = $1`, repository)
	return errors.Wrap(err, "store: delete by repository")
}

// DeleteByIdentity removes exactly one chunk by its identity tuple.
func (s *Store) DeleteByIdentity(ctx context.Context, repository, filePath, chunkType, name string, startLine int) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM code_chunks
WHERE repository = $1 AND file_path = $2 AND chunk_type = $3 AND name = $4 AND start_line = $5
`, repository, filePath, chunkType, name, startLine)
	return errors.Wrap(err, "store: delete by identity")
}

// ByIdentity reads a single chunk by its identity tuple.
func (s *Store) ByIdentity(ctx context.Context, repository, filePath, chunkType, name string, startLine int) (*Row, error) {
	var row Row
	err := s.db.GetContext(ctx, &row, `
SELECT id, repository, file_path, language, chunk_type, name, unnameable, body, start_line, end_line, content_hash
FROM code_chunks
WHERE repository = $1 AND file_path = $2 AND chunk_type = $3 AND name = $4 AND start_line = $5
`, repository, filePath, chunkType, name, startLine)
	if err != nil {
		return nil, errors.Wrap(err, "store: by identity")
	}
	return &row, nil
}

// ByRepository returns a page of chunks belonging to repository, ordered
// by file_path then start_line for stable pagination.
func (s *Store) ByRepository(ctx context.Context, repository string, limit, offset int) ([]Row, error) {
	var rows []Row
	err := s.db.SelectContext(ctx, &rows, `
SELECT id, repository, file_path, language, chunk_type, name, unnameable, body, start_line, end_line, content_hash
FROM code_chunks
WHERE repository = $1
ORDER BY file_path, start_line
LIMIT $2 OFFSET $3
`, repository, limit, offset)
	return rows, errors.Wrap(err, "store: by repository")
}

// LexicalTopK ranks chunks by pg_trgm similarity against query over the
// body and name columns, applying Filters.
func (s *Store) LexicalTopK(ctx context.Context, query string, f Filters, k int) ([]Row, error) {
	where, args := buildFilterClause(f, 2)
	sql := fmt.Sprintf(`
SELECT id, repository, file_path, language, chunk_type, name, unnameable, body, start_line, end_line, content_hash,
       GREATEST(similarity(body, $1), similarity(name, $1)) AS similarity
FROM code_chunks
%s
ORDER BY similarity DESC
LIMIT $%d
`, where, len(args)+2)

	all := append([]interface{}{query}, args...)
	all = append(all, k)

	var rows []Row
	err := s.db.SelectContext(ctx, &rows, sql, all...)
	return rows, errors.Wrap(err, "store: lexical top k")
}

// VectorTopK ranks chunks by cosine distance against vec in the given
// embedding column ("text_embedding" or "code_embedding"), applying
// Filters.
func (s *Store) VectorTopK(ctx context.Context, vec []float32, column string, f Filters, k int) ([]Row, error) {
	if column != "text_embedding" && column != "code_embedding" {
		return nil, errors.Errorf("store: unknown embedding column %q", column)
	}
	where, args := buildFilterClause(f, 2)
	sql := fmt.Sprintf(`
SELECT id, repository, file_path, language, chunk_type, name, unnameable, body, start_line, end_line, content_hash,
       1 - (%s <=> $1) AS similarity
FROM code_chunks
%s
ORDER BY %s <=> $1
LIMIT $%d
`, column, where, column, len(args)+2)

	all := append([]interface{}{pgvector.NewVector(vec)}, args...)
	all = append(all, k)

	var rows []Row
	err := s.db.SelectContext(ctx, &rows, sql, all...)
	return rows, errors.Wrap(err, "store: vector top k")
}

func buildFilterClause(f Filters, startArg int) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	arg := startArg

	if f.Repository != "" {
		clauses = append(clauses, fmt.Sprintf("repository = $%d", arg))
		args = append(args, f.Repository)
		arg++
	}
	if f.Language != "" {
		clauses = append(clauses, fmt.Sprintf("language = $%d", arg))
		args = append(args, f.Language)
		arg++
	}
	if f.ChunkType != "" {
		clauses = append(clauses, fmt.Sprintf("chunk_type = $%d", arg))
		args = append(args, f.ChunkType)
		arg++
	}
	if f.PathPrefix != "" {
		clauses = append(clauses, fmt.Sprintf("file_path LIKE $%d", arg))
		args = append(args, f.PathPrefix+"%")
		arg++
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
