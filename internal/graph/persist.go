package graph

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Store persists nodes and edges into their own tables, kept separate
// from the Chunk Store's ownership of code_chunks per spec §3's
// ownership rule.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an existing connection pool (shared with the Chunk
// Store process-wide, per spec §5's connection-pool sizing).
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// Persist writes every node then every edge from g inside one
// transaction, replacing any prior rows for the same chunk identities.
func (s *Store) Persist(ctx context.Context, g *Graph) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "graph: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, n := range g.Nodes {
		_, err := tx.ExecContext(ctx, `
INSERT INTO nodes (id, kind, chunk_identity, repository, file_path, name, pagerank)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	kind = EXCLUDED.kind, pagerank = EXCLUDED.pagerank
`, n.ID, string(n.Kind), n.ChunkIdentity, n.Repository, n.FilePath, n.Name, n.Pagerank)
		if err != nil {
			return errors.Wrapf(err, "graph: upsert node %s", n.ID)
		}
	}

	for _, e := range g.EdgeList() {
		_, err := tx.ExecContext(ctx, `
INSERT INTO edges (src, dst, kind, call_count, importance_score, critical_path)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (src, dst, kind) DO UPDATE SET
	call_count = EXCLUDED.call_count,
	importance_score = EXCLUDED.importance_score,
	critical_path = EXCLUDED.critical_path
`, e.Src, e.Dst, string(e.Kind), e.CallCount, e.Importance, e.CriticalPath)
		if err != nil {
			return errors.Wrapf(err, "graph: upsert edge %s->%s (%s)", e.Src, e.Dst, e.Kind)
		}
	}

	return errors.Wrap(tx.Commit(), "graph: commit")
}
