// Package graph implements the Graph Builder (C7): a declaration pass
// that projects nameable chunks into nodes, a reference pass that
// resolves identifier references into edges, and pagerank over the
// calls-kind subgraph.
package graph

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/giak/mnemolite/internal/chunking"
)

// NodeKind mirrors the nameable subset of chunking.ChunkType.
type NodeKind string

// EdgeKind is the closed taxonomy of cross-chunk references.
type EdgeKind string

const (
	EdgeCalls      EdgeKind = "calls"
	EdgeImports    EdgeKind = "imports"
	EdgeInherits   EdgeKind = "inherits"
	EdgeImplements EdgeKind = "implements"
	EdgeReferences EdgeKind = "references"
)

// Node is the graph projection of one nameable chunk.
type Node struct {
	ID             string // fully-qualified name within the repository
	Kind           NodeKind
	ChunkIdentity  string
	Repository     string
	FilePath       string
	Name           string
	Pagerank       *float64
}

// Edge is a directed reference between two nodes.
type Edge struct {
	Src          string
	Dst          string
	Kind         EdgeKind
	CallCount    int
	Importance   float64
	CriticalPath bool
}

// edgeKey identifies an edge for deduplication by (src, dst, kind).
type edgeKey struct {
	src, dst string
	kind     EdgeKind
}

// Graph holds the declaration and reference pass output for one
// repository snapshot.
type Graph struct {
	Nodes map[string]*Node
	Edges map[edgeKey]*Edge
}

var identifierRe = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
var extendsRe = regexp.MustCompile(`\bextends\s+([A-Za-z_][A-Za-z0-9_.]*)`)
var implementsRe = regexp.MustCompile(`\bimplements\s+([A-Za-z_][A-Za-z0-9_.,\s]*)`)
var importRe = regexp.MustCompile(`(?m)^\s*(?:import|from)\s+.*?\b([A-Za-z_][A-Za-z0-9_]*)\b`)

// Build runs the declaration pass then the reference pass over chunks,
// belonging to a single repository, producing nodes and deduplicated
// edges with call_count accumulated.
func Build(chunks []chunking.Chunk) *Graph {
	g := &Graph{Nodes: make(map[string]*Node), Edges: make(map[edgeKey]*Edge)}

	byName := declare(chunks, g)
	reference(chunks, g, byName)

	return g
}

// declare runs the declaration pass: one node per nameable chunk,
// fully-qualified by repository/file path/name. Anonymous chunks
// (Unnameable or empty Name) are excluded.
func declare(chunks []chunking.Chunk, g *Graph) map[string][]*Node {
	byName := make(map[string][]*Node)

	for _, c := range chunks {
		if c.Unnameable || c.Name == "" {
			continue
		}
		fqn := fullyQualifiedName(c)
		node := &Node{
			ID:            fqn,
			Kind:          NodeKind(c.Type),
			ChunkIdentity: c.Identity(),
			Repository:    c.Repository,
			FilePath:      c.FilePath,
			Name:          c.Name,
		}
		g.Nodes[fqn] = node
		byName[c.Name] = append(byName[c.Name], node)
	}

	return byName
}

func fullyQualifiedName(c chunking.Chunk) string {
	return fmt.Sprintf("%s:%s#%s", c.Repository, c.FilePath, c.Name)
}

// reference scans each chunk's body for identifier references and
// resolves them against the declaration table in same-file >
// same-directory > repository-wide order. Unresolved references are
// silently dropped.
func reference(chunks []chunking.Chunk, g *Graph, byName map[string][]*Node) {
	for _, c := range chunks {
		if c.Unnameable || c.Name == "" {
			continue
		}
		srcFQN := fullyQualifiedName(c)

		for _, m := range extendsRe.FindAllStringSubmatch(c.Body, -1) {
			if target := resolve(m[1], c, byName); target != nil && target.ID != srcFQN {
				addEdge(g, srcFQN, target.ID, EdgeInherits)
			}
		}
		for _, m := range implementsRe.FindAllStringSubmatch(c.Body, -1) {
			for _, name := range strings.Split(m[1], ",") {
				name = strings.TrimSpace(name)
				if target := resolve(name, c, byName); target != nil && target.ID != srcFQN {
					addEdge(g, srcFQN, target.ID, EdgeImplements)
				}
			}
		}
		for _, m := range importRe.FindAllStringSubmatch(c.Body, -1) {
			if target := resolve(m[1], c, byName); target != nil {
				addOrIncrementEdge(g, srcFQN, target.ID, EdgeImports)
			}
		}
		header := c.Body
		if nl := strings.IndexByte(header, '\n'); nl >= 0 {
			header = header[:nl]
		}
		for _, m := range identifierRe.FindAllStringSubmatchIndex(c.Body, -1) {
			name := c.Body[m[2]:m[3]]
			if name == c.Name && m[0] < len(header) {
				continue // the chunk's own declaration header, not a call
			}
			if target := resolve(name, c, byName); target != nil {
				addOrIncrementEdge(g, srcFQN, target.ID, EdgeCalls)
			}
		}
	}
}

// resolve picks the best-matching declaration for name, preferring
// same-file, then same-directory, then repository-wide matches.
func resolve(name string, from chunking.Chunk, byName map[string][]*Node) *Node {
	candidates := byName[name]
	if len(candidates) == 0 {
		return nil
	}

	var sameDir *Node
	for _, cand := range candidates {
		if cand.Repository != from.Repository {
			continue
		}
		if cand.FilePath == from.FilePath {
			return cand
		}
		if sameDir == nil && path.Dir(cand.FilePath) == path.Dir(from.FilePath) {
			sameDir = cand
		}
	}
	if sameDir != nil {
		return sameDir
	}
	for _, cand := range candidates {
		if cand.Repository == from.Repository {
			return cand
		}
	}
	return nil
}

func addEdge(g *Graph, src, dst string, kind EdgeKind) {
	key := edgeKey{src, dst, kind}
	if _, ok := g.Edges[key]; ok {
		return
	}
	g.Edges[key] = &Edge{Src: src, Dst: dst, Kind: kind, CallCount: 1}
}

func addOrIncrementEdge(g *Graph, src, dst string, kind EdgeKind) {
	key := edgeKey{src, dst, kind}
	if e, ok := g.Edges[key]; ok {
		e.CallCount++
		return
	}
	g.Edges[key] = &Edge{Src: src, Dst: dst, Kind: kind, CallCount: 1}
}

// EdgeList returns all edges as a flat slice, useful for persistence.
func (g *Graph) EdgeList() []*Edge {
	out := make([]*Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		out = append(out, e)
	}
	return out
}
