package graph

import (
	"sort"
	"strings"
)

// Direction of rank progression.
type Direction string

const (
	TopToBottom Direction = "TB"
	LeftToRight Direction = "LR"
)

const (
	DefaultRankSeparation = 150.0
	DefaultNodeSeparation = 250.0
)

type layoutConfig struct {
	direction Direction
	rankSep   float64
	nodeSep   float64
}

// LayoutOption configures Layout and ToGraph.
type LayoutOption func(*layoutConfig)

// WithDirection sets the rank direction.
func WithDirection(d Direction) LayoutOption {
	return func(c *layoutConfig) {
		if d == LeftToRight || d == TopToBottom {
			c.direction = d
		}
	}
}

// WithRankSeparation sets the distance between ranks.
func WithRankSeparation(v float64) LayoutOption {
	return func(c *layoutConfig) {
		if v > 0 {
			c.rankSep = v
		}
	}
}

// WithNodeSeparation sets the distance between nodes of one rank.
func WithNodeSeparation(v float64) LayoutOption {
	return func(c *layoutConfig) {
		if v > 0 {
			c.nodeSep = v
		}
	}
}

// ParseDirection maps "TB"/"LR" (any case) to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case TopToBottom:
		return TopToBottom, true
	case LeftToRight:
		return LeftToRight, true
	}
	return "", false
}

// Layout assigns a position to every node with a layered layout: back edges
// are dropped, ranks are longest paths from the sources, each rank is
// ordered by one barycenter sweep. Every tie falls back to node insertion
// order, so the same topology always yields the same positions.
func Layout(g *Graph, opts ...LayoutOption) {
	if g == nil || len(g.Nodes) == 0 {
		return
	}
	cfg := layoutConfig{direction: TopToBottom, rankSep: DefaultRankSeparation, nodeSep: DefaultNodeSeparation}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if _, dup := index[n.ID]; !dup {
			index[n.ID] = i
		}
	}
	count := len(g.Nodes)

	out := make([][]int, count)
	for _, e := range g.Edges {
		from, okFrom := index[e.Source]
		to, okTo := index[e.Target]
		if !okFrom || !okTo || from == to {
			continue
		}
		out[from] = append(out[from], to)
	}

	root, hasRoot := index[g.Initial]
	dag := acyclic(out, root, hasRoot)
	rank := longestPathRanks(dag)
	layers := orderLayers(dag, rank)

	for r, layer := range layers {
		width := float64(len(layer)-1) * cfg.nodeSep
		for pos, node := range layer {
			along := float64(r) * cfg.rankSep
			across := float64(pos)*cfg.nodeSep - width/2
			if cfg.direction == LeftToRight {
				g.Nodes[node].Position = Position{X: along, Y: across}
			} else {
				g.Nodes[node].Position = Position{X: across, Y: along}
			}
		}
	}
}

// acyclic drops every edge that closes a cycle in a DFS that starts at the
// initial node and then visits remaining nodes in insertion order.
func acyclic(out [][]int, root int, hasRoot bool) [][]int {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(out))
	dag := make([][]int, len(out))

	var visit func(u int)
	visit = func(u int) {
		color[u] = grey
		for _, v := range out[u] {
			switch color[v] {
			case grey:
				continue
			case white:
				dag[u] = append(dag[u], v)
				visit(v)
			default:
				dag[u] = append(dag[u], v)
			}
		}
		color[u] = black
	}

	if hasRoot {
		visit(root)
	}
	for u := range out {
		if color[u] == white {
			visit(u)
		}
	}
	return dag
}

// longestPathRanks is a Kahn pass relaxing rank[v] = max(rank[u]+1).
func longestPathRanks(dag [][]int) []int {
	indeg := make([]int, len(dag))
	for _, targets := range dag {
		for _, v := range targets {
			indeg[v]++
		}
	}
	queue := make([]int, 0, len(dag))
	for u, d := range indeg {
		if d == 0 {
			queue = append(queue, u)
		}
	}
	rank := make([]int, len(dag))
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range dag[u] {
			if rank[u]+1 > rank[v] {
				rank[v] = rank[u] + 1
			}
			indeg[v]--
			if indeg[v] == 0 {
				queue = append(queue, v)
			}
		}
	}
	return rank
}

// orderLayers groups nodes by rank in insertion order, then reorders each
// rank below the first by the mean position of its predecessors in the rank
// above.
func orderLayers(dag [][]int, rank []int) [][]int {
	maxRank := 0
	for _, r := range rank {
		if r > maxRank {
			maxRank = r
		}
	}
	layers := make([][]int, maxRank+1)
	for u, r := range rank {
		layers[r] = append(layers[r], u)
	}

	preds := make([][]int, len(dag))
	for u, targets := range dag {
		for _, v := range targets {
			preds[v] = append(preds[v], u)
		}
	}

	position := make([]float64, len(dag))
	for _, layer := range layers {
		for i, u := range layer {
			position[u] = float64(i)
		}
	}

	for r := 1; r <= maxRank; r++ {
		layer := layers[r]
		bary := make(map[int]float64, len(layer))
		for i, u := range layer {
			sum, n := 0.0, 0
			for _, p := range preds[u] {
				if rank[p] == r-1 {
					sum += position[p]
					n++
				}
			}
			if n == 0 {
				bary[u] = float64(i)
				continue
			}
			bary[u] = sum / float64(n)
		}
		sort.SliceStable(layer, func(i, j int) bool {
			a, b := layer[i], layer[j]
			if bary[a] != bary[b] {
				return bary[a] < bary[b]
			}
			return a < b
		})
		for i, u := range layer {
			position[u] = float64(i)
		}
	}
	return layers
}
