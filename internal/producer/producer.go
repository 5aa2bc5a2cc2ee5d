// Package producer implements the Batch Producer (C8): directory
// walking with gitignore-style filtering, fixed-size batching, and
// publication to the durable stream.
package producer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/giak/mnemolite/internal/stream"
)

// alwaysExcluded are build-output directories excluded at every depth
// regardless of .gitignore content, per spec §4.8.
var alwaysExcluded = []string{"dist", "node_modules", ".git"}

// Response is returned to the caller after a batch job is fully
// published.
type Response struct {
	JobID       string
	TotalBatches int
	TotalFiles   int
}

// Producer walks a root path and publishes fixed-size batches of files
// to a durable stream.
type Producer struct {
	stream *stream.Client
}

// New builds a Producer over the given stream client.
func New(streamClient *stream.Client) *Producer {
	return &Producer{stream: streamClient}
}

// Request describes one indexing submission.
type Request struct {
	JobID      string
	Repository string
	RootPath   string
	Extensions []string // e.g. [".py", ".ts"]; empty means all files
	BatchSize  int
}

func (r Request) withDefaults() Request {
	if r.BatchSize <= 0 {
		r.BatchSize = 40
	}
	return r
}

// Submit walks req.RootPath, filters by gitignore rules plus the
// always-excluded build directories and allowed extensions, partitions
// the sorted file list into fixed-size batches, and publishes each
// batch as one stream entry keyed by job_id and batch_index.
func (p *Producer) Submit(ctx context.Context, streamName string, req Request) (*Response, error) {
	req = req.withDefaults()

	files, err := walk(req.RootPath, req.Extensions)
	if err != nil {
		return nil, fmt.Errorf("producer: walk %s: %w", req.RootPath, err)
	}

	batches := partition(files, req.BatchSize)

	for i, batch := range batches {
		fields := map[string]interface{}{
			"job_id":      req.JobID,
			"batch_index": strconv.Itoa(i),
			"repository":  req.Repository,
			"files":       strings.Join(batch, "\x1f"),
			"attempt":     "1",
		}
		if _, err := p.stream.Publish(ctx, streamName, fields); err != nil {
			return nil, fmt.Errorf("producer: publish batch %d: %w", i, err)
		}
	}

	return &Response{
		JobID:        req.JobID,
		TotalBatches: len(batches),
		TotalFiles:   len(files),
	}, nil
}

// walk returns every file under root passing extension filtering and
// gitignore-style exclusion, in sorted order for reproducibility.
func walk(root string, extensions []string) ([]string, error) {
	matcher := loadGitignore(root)

	var files []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}

		if info.IsDir() {
			if isAlwaysExcludedDir(info.Name()) {
				return filepath.SkipDir
			}
			if matcher != nil && rel != "." && matcher.MatchesPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}
		if !extensionAllowed(p, extensions) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func isAlwaysExcludedDir(name string) bool {
	for _, excluded := range alwaysExcluded {
		if name == excluded {
			return true
		}
	}
	return false
}

func extensionAllowed(p string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(p)
	for _, allowed := range extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func loadGitignore(root string) *ignore.GitIgnore {
	m, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return m
}

// partition splits files into batches of at most size entries each;
// the last batch holds the remainder.
func partition(files []string, size int) [][]string {
	if len(files) == 0 {
		return nil
	}
	var batches [][]string
	for start := 0; start < len(files); start += size {
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[start:end])
	}
	return batches
}
