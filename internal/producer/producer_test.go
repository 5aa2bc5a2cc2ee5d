package producer_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/giak/mnemolite/internal/producer"
	"github.com/giak/mnemolite/internal/stream"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestSubmitExcludesBuildDirectoriesAtEveryDepth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.ts", "export const a = 1;")
	writeFile(t, root, "dist/a.js", "var a=1;")
	writeFile(t, root, "node_modules/x.ts", "export const x = 1;")
	writeFile(t, root, "packages/ui/dist/b.ts", "export const b = 1;")

	mr := miniredis.RunT(t)
	sc, err := stream.New(stream.Config{Address: mr.Addr()}, nil)
	require.NoError(t, err)
	p := producer.New(sc)

	resp, err := p.Submit(context.Background(), "batches", producer.Request{
		JobID:      "job-1",
		Repository: "repo",
		RootPath:   root,
		Extensions: []string{".ts"},
		BatchSize:  40,
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.TotalFiles)
	require.Equal(t, 1, resp.TotalBatches)
}

func TestSubmitPartitionsIntoFixedSizeBatches(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 85; i++ {
		writeFile(t, root, filepath.Join("src", fmt.Sprintf("file%03d.py", i)), "x = 1")
	}

	mr := miniredis.RunT(t)
	sc, err := stream.New(stream.Config{Address: mr.Addr()}, nil)
	require.NoError(t, err)
	p := producer.New(sc)

	resp, err := p.Submit(context.Background(), "batches", producer.Request{
		JobID:      "job-2",
		Repository: "repo",
		RootPath:   root,
		Extensions: []string{".py"},
		BatchSize:  40,
	})
	require.NoError(t, err)
	require.Equal(t, 85, resp.TotalFiles)
	require.Equal(t, 3, resp.TotalBatches) // ceil(85/40) = 3, last batch has 5
}
