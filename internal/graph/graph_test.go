package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giak/mnemolite/internal/chunking"
	"github.com/giak/mnemolite/internal/graph"
)

func TestBuildCreatesNodesForNameableChunksOnly(t *testing.T) {
	chunks := []chunking.Chunk{
		{Repository: "r", FilePath: "a.py", Type: chunking.ChunkFunction, Name: "foo", Body: "def foo():\n    bar()\n"},
		{Repository: "r", FilePath: "a.py", Type: chunking.ChunkFunction, Name: "bar", Body: "def bar():\n    pass\n"},
		{Repository: "r", FilePath: "a.py", Type: chunking.ChunkFunction, Name: "", Unnameable: true, Body: "lambda: None"},
	}

	g := graph.Build(chunks)
	require.Len(t, g.Nodes, 2)

	var sawCall bool
	for _, e := range g.EdgeList() {
		if e.Kind == graph.EdgeCalls {
			sawCall = true
		}
	}
	assert.True(t, sawCall)
}

func TestNoSelfLoopsForInheritsOrImplements(t *testing.T) {
	chunks := []chunking.Chunk{
		{Repository: "r", FilePath: "a.py", Type: chunking.ChunkClass, Name: "Base", Body: "class Base:\n    pass\n"},
	}
	g := graph.Build(chunks)
	for _, e := range g.EdgeList() {
		if e.Kind == graph.EdgeInherits || e.Kind == graph.EdgeImplements {
			assert.NotEqual(t, e.Src, e.Dst)
		}
	}
}

func TestResolutionPrefersSameFileOverSameDirectory(t *testing.T) {
	chunks := []chunking.Chunk{
		{Repository: "r", FilePath: "pkg/a.py", Type: chunking.ChunkFunction, Name: "helper", Body: "def helper(): pass"},
		{Repository: "r", FilePath: "pkg/b.py", Type: chunking.ChunkFunction, Name: "helper", Body: "def helper(): pass"},
		{Repository: "r", FilePath: "pkg/a.py", Type: chunking.ChunkFunction, Name: "caller", Body: "def caller():\n    helper()\n"},
	}

	g := graph.Build(chunks)
	callerFQN := "r:pkg/a.py#caller"
	expectedTarget := "r:pkg/a.py#helper"

	var found bool
	for _, e := range g.EdgeList() {
		if e.Src == callerFQN && e.Kind == graph.EdgeCalls {
			require.Equal(t, expectedTarget, e.Dst)
			found = true
		}
	}
	assert.True(t, found)
}

func TestEdgesDeduplicatedByTripleAndCallCountIncrements(t *testing.T) {
	chunks := []chunking.Chunk{
		{Repository: "r", FilePath: "a.py", Type: chunking.ChunkFunction, Name: "target", Body: "def target(): pass"},
		{Repository: "r", FilePath: "a.py", Type: chunking.ChunkFunction, Name: "caller", Body: "def caller():\n    target()\n    target()\n"},
	}

	g := graph.Build(chunks)
	var calls int
	var callCount int
	for _, e := range g.EdgeList() {
		if e.Kind == graph.EdgeCalls {
			calls++
			callCount = e.CallCount
		}
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, callCount)
}

func TestComputePagerankAssignsScoresToAllNodes(t *testing.T) {
	chunks := []chunking.Chunk{
		{Repository: "r", FilePath: "a.py", Type: chunking.ChunkFunction, Name: "foo", Body: "def foo():\n    bar()\n"},
		{Repository: "r", FilePath: "a.py", Type: chunking.ChunkFunction, Name: "bar", Body: "def bar():\n    pass\n"},
	}

	g := graph.Build(chunks)
	g.ComputePagerank()

	for _, n := range g.Nodes {
		require.NotNil(t, n.Pagerank)
		assert.Greater(t, *n.Pagerank, 0.0)
	}
}
