package graph

const (
	pagerankDamping    = 0.85
	pagerankIterations = 50
	pagerankEpsilon    = 1e-6
)

// ComputePagerank scores every node by pagerank over the calls-kind edge
// subgraph only, with damping 0.85. Nodes with no outgoing calls edges
// distribute their rank uniformly (standard dangling-node handling).
// Results are written onto each Node's Pagerank field.
func (g *Graph) ComputePagerank() {
	ids := make([]string, 0, len(g.Nodes))
	index := make(map[string]int, len(g.Nodes))
	for id := range g.Nodes {
		index[id] = len(ids)
		ids = append(ids, id)
	}
	n := len(ids)
	if n == 0 {
		return
	}

	outLinks := make([][]int, n)
	outDegree := make([]int, n)
	for key, e := range g.Edges {
		if key.kind != EdgeCalls {
			continue
		}
		srcIdx, ok := index[e.Src]
		if !ok {
			continue
		}
		dstIdx, ok := index[e.Dst]
		if !ok {
			continue
		}
		outLinks[srcIdx] = append(outLinks[srcIdx], dstIdx)
		outDegree[srcIdx]++
	}

	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}

	base := (1 - pagerankDamping) / float64(n)

	for iter := 0; iter < pagerankIterations; iter++ {
		next := make([]float64, n)
		var danglingMass float64
		for i, r := range rank {
			if outDegree[i] == 0 {
				danglingMass += r
			}
		}
		danglingShare := pagerankDamping * danglingMass / float64(n)

		for i := range next {
			next[i] = base + danglingShare
		}
		for i, links := range outLinks {
			if outDegree[i] == 0 {
				continue
			}
			share := pagerankDamping * rank[i] / float64(outDegree[i])
			for _, dst := range links {
				next[dst] += share
			}
		}

		delta := 0.0
		for i := range rank {
			delta += abs(next[i] - rank[i])
		}
		rank = next
		if delta < pagerankEpsilon {
			break
		}
	}

	for id, idx := range index {
		score := rank[idx]
		g.Nodes[id].Pagerank = &score
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
