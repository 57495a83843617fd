package network

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamashdown/tradeintel/internal/config"
	"github.com/liamashdown/tradeintel/internal/graph"
)

func newAnalyzer() *Analyzer {
	return NewAnalyzer(config.DefaultAnalysis().Network)
}

// build creates a graph from "a-b" style undirected edges with the given weight
func build(nodes []string, edges [][2]string, weight float64) *graph.NetworkGraph {
	g := graph.New()
	for _, id := range nodes {
		g.AddNode(graph.Node{ID: id})
	}
	for _, e := range edges {
		g.Connect(e[0], e[1], weight, graph.EdgePattern)
	}
	return g
}

func sum(scores map[string]float64) float64 {
	total := 0.0
	for _, v := range scores {
		total += v
	}
	return total
}

func TestAnalyzeNilAndEmptyGraph(t *testing.T) {
	a := newAnalyzer()
	for name, g := range map[string]*graph.NetworkGraph{"nil": nil, "empty": graph.New()} {
		t.Run(name, func(t *testing.T) {
			m := a.Analyze(g)
			require.NotNil(t, m)
			assert.Empty(t, m.PageRank)
			assert.Empty(t, m.Betweenness)
			assert.Empty(t, m.Communities)
			assert.Empty(t, m.CriticalPaths)
			assert.Equal(t, 0.0, m.MaxPageRank())
		})
	}
}

func TestAnalyzeSingleNode(t *testing.T) {
	m := newAnalyzer().Analyze(build([]string{"solo"}, nil, 0))

	require.Len(t, m.PageRank, 1)
	assert.InDelta(t, 1.0, m.PageRank["solo"], 1e-12)
	assert.Equal(t, map[string]float64{"solo": 0}, m.Betweenness)
	assert.Empty(t, m.Communities)
	assert.Empty(t, m.CriticalPaths)
}

func TestPageRankSumsToOne(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		edges [][2]string
	}{
		{"pair", []string{"a", "b"}, [][2]string{{"a", "b"}}},
		{"star", []string{"hub", "a", "b", "c", "d"}, [][2]string{{"hub", "a"}, {"hub", "b"}, {"hub", "c"}, {"hub", "d"}}},
		{"with isolated nodes", []string{"a", "b", "c", "x", "y"}, [][2]string{{"a", "b"}, {"b", "c"}}},
		{"no edges", []string{"a", "b", "c"}, nil},
		{"triangle with tail", []string{"a", "b", "c", "d"}, [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"c", "d"}}},
	}

	a := newAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr := a.PageRank(build(tt.nodes, tt.edges, 0.6))
			require.Len(t, pr, len(tt.nodes))
			assert.InDelta(t, 1.0, sum(pr), 1e-6)
			for id, v := range pr {
				assert.Greater(t, v, 0.0, id)
			}
		})
	}
}

func TestPageRankHubRanksHighest(t *testing.T) {
	pr := newAnalyzer().PageRank(build(
		[]string{"hub", "a", "b", "c"},
		[][2]string{{"hub", "a"}, {"hub", "b"}, {"hub", "c"}},
		0.9,
	))
	for _, leaf := range []string{"a", "b", "c"} {
		assert.Greater(t, pr["hub"], pr[leaf])
	}
}

func TestBetweenness(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		edges [][2]string
		want  map[string]float64
	}{
		{
			name:  "path",
			nodes: []string{"a", "b", "c"},
			edges: [][2]string{{"a", "b"}, {"b", "c"}},
			want:  map[string]float64{"a": 0, "b": 1, "c": 0},
		},
		{
			name:  "square splits credit over two shortest paths",
			nodes: []string{"a", "b", "c", "d"},
			edges: [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}, {"d", "a"}},
			want:  map[string]float64{"a": 1, "b": 1, "c": 1, "d": 1},
		},
		{
			name:  "line of four",
			nodes: []string{"a", "b", "c", "d"},
			edges: [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}},
			want:  map[string]float64{"a": 0, "b": 1, "c": 1, "d": 0},
		},
		{
			name:  "disconnected pairs",
			nodes: []string{"a", "b", "c", "d"},
			edges: [][2]string{{"a", "b"}, {"c", "d"}},
			want:  map[string]float64{"a": 0, "b": 0, "c": 0, "d": 0},
		},
	}

	a := newAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Betweenness(build(tt.nodes, tt.edges, 0.5))
			require.Len(t, got, len(tt.want))
			for id, want := range tt.want {
				assert.InDelta(t, want, got[id], 1e-9, id)
			}
		})
	}
}

func TestBetweennessBoundsOnDenseGraph(t *testing.T) {
	var nodes []string
	var edges [][2]string
	for i := 0; i < 12; i++ {
		nodes = append(nodes, fmt.Sprintf("n%d", i))
	}
	for i := 0; i < 12; i++ {
		edges = append(edges, [2]string{nodes[i], nodes[(i+1)%12]})
		if i%3 == 0 {
			edges = append(edges, [2]string{nodes[i], nodes[(i+5)%12]})
		}
	}

	got := newAnalyzer().Betweenness(build(nodes, edges, 0.5))
	top := 0.0
	for id, v := range got {
		assert.GreaterOrEqual(t, v, 0.0, id)
		assert.LessOrEqual(t, v, 1.0, id)
		if v > top {
			top = v
		}
	}
	assert.Equal(t, 1.0, top)
}

func TestCommunities(t *testing.T) {
	a := newAnalyzer()

	t.Run("two separate pairs", func(t *testing.T) {
		got := a.Communities(build([]string{"a", "b", "c", "d", "e"}, [][2]string{{"a", "b"}, {"c", "d"}}, 0.5))
		require.Len(t, got, 2)
		assert.ElementsMatch(t, []string{"a", "b"}, got[0].Members)
		assert.ElementsMatch(t, []string{"c", "d"}, got[1].Members)
		assert.Equal(t, 1, got[0].ID)
		assert.Equal(t, 2, got[1].ID)
	})

	t.Run("connected path collapses into one group", func(t *testing.T) {
		got := a.Communities(build([]string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}}, 0.5))
		require.Len(t, got, 1)
		assert.Equal(t, 3, got[0].Size)
	})

	t.Run("no edges means no communities", func(t *testing.T) {
		assert.Empty(t, a.Communities(build([]string{"a", "b", "c"}, nil, 0)))
	})

	t.Run("capped at max communities", func(t *testing.T) {
		var nodes []string
		var edges [][2]string
		for i := 0; i < 15; i++ {
			x, y := fmt.Sprintf("x%d", i), fmt.Sprintf("y%d", i)
			nodes = append(nodes, x, y)
			edges = append(edges, [2]string{x, y})
		}
		assert.Len(t, a.Communities(build(nodes, edges, 0.5)), 10)
	})
}

func TestCriticalPaths(t *testing.T) {
	a := newAnalyzer()

	t.Run("pair", func(t *testing.T) {
		g := build([]string{"a", "b"}, [][2]string{{"a", "b"}}, 0.5)
		paths := a.CriticalPaths(g, a.PageRank(g))
		require.Len(t, paths, 1)
		assert.Equal(t, []string{"a", "b"}, paths[0].Path)
		assert.InDelta(t, 0.5, paths[0].TotalWeight, 1e-9)
		assert.InDelta(t, 0.5, paths[0].Score, 1e-6)
	})

	t.Run("sorted by score and skips unreachable pairs", func(t *testing.T) {
		g := build(
			[]string{"hub", "a", "b", "x", "y"},
			[][2]string{{"hub", "a"}, {"hub", "b"}, {"x", "y"}},
			0.5,
		)
		paths := a.CriticalPaths(g, a.PageRank(g))
		// hub-a, hub-b, a-b and x-y
		require.Len(t, paths, 4)
		for i := 1; i < len(paths); i++ {
			assert.GreaterOrEqual(t, paths[i-1].Score, paths[i].Score)
		}
		for _, p := range paths {
			assert.Equal(t, p.Source, p.Path[0])
			assert.Equal(t, p.Target, p.Path[len(p.Path)-1])
		}
	})

	t.Run("capped at max critical paths", func(t *testing.T) {
		var nodes []string
		var edges [][2]string
		for i := 0; i < 12; i++ {
			nodes = append(nodes, fmt.Sprintf("n%d", i))
			if i > 0 {
				edges = append(edges, [2]string{nodes[i-1], nodes[i]})
			}
		}
		g := build(nodes, edges, 0.5)
		// 10 top nodes give 45 connected pairs
		assert.Len(t, a.CriticalPaths(g, a.PageRank(g)), 20)
	})
}
