package network

import (
	"math"
	"sort"

	"github.com/liamashdown/tradeintel/internal/config"
	"github.com/liamashdown/tradeintel/internal/graph"
)

// Community is a group of alerts sharing a propagated label
type Community struct {
	ID      int      `json:"id"`
	Label   string   `json:"label"`
	Members []string `json:"members"`
	Size    int      `json:"size"`
}

// CriticalPath connects two of the most important alerts.
// The path is the first one found by DFS, not necessarily the shortest.
type CriticalPath struct {
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Path        []string `json:"path"`
	TotalWeight float64  `json:"total_weight"`
	Score       float64  `json:"score"`
}

// Metrics bundles the structural metrics of one graph
type Metrics struct {
	PageRank      map[string]float64 `json:"pagerank"`
	Betweenness   map[string]float64 `json:"betweenness_centrality"`
	Communities   []Community        `json:"communities"`
	CriticalPaths []CriticalPath     `json:"critical_paths"`
}

// MaxPageRank returns the highest PageRank score, or 0
func (m *Metrics) MaxPageRank() float64 {
	return maxValue(m.PageRank)
}

// MaxBetweenness returns the highest betweenness score, or 0
func (m *Metrics) MaxBetweenness() float64 {
	return maxValue(m.Betweenness)
}

func maxValue(scores map[string]float64) float64 {
	top := 0.0
	for _, v := range scores {
		if v > top {
			top = v
		}
	}
	return top
}

// Analyzer computes network metrics over correlation graphs
type Analyzer struct {
	cfg config.NetworkConfig
}

// NewAnalyzer creates a network metrics analyzer
func NewAnalyzer(cfg config.NetworkConfig) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze computes every metric. A nil or empty graph yields empty results.
func (a *Analyzer) Analyze(g *graph.NetworkGraph) *Metrics {
	m := &Metrics{
		PageRank:    a.PageRank(g),
		Betweenness: a.Betweenness(g),
		Communities: a.Communities(g),
	}
	m.CriticalPaths = a.CriticalPaths(g, m.PageRank)
	return m
}

// PageRank runs power iteration from a uniform distribution. Mass held by nodes
// without out-links is spread evenly so scores keep summing to one.
func (a *Analyzer) PageRank(g *graph.NetworkGraph) map[string]float64 {
	scores := make(map[string]float64, g.Len())
	n := g.Len()
	if n == 0 {
		return scores
	}

	for _, node := range g.Nodes {
		scores[node.ID] = 1 / float64(n)
	}

	d := a.cfg.Damping
	for iter := 0; iter < a.cfg.MaxIterations; iter++ {
		outCount := make(map[string]int, n)
		for _, e := range g.Edges {
			outCount[e.Source]++
		}

		dangling := 0.0
		for _, node := range g.Nodes {
			if outCount[node.ID] == 0 {
				dangling += scores[node.ID]
			}
		}

		next := make(map[string]float64, n)
		base := (1-d)/float64(n) + d*dangling/float64(n)
		for _, node := range g.Nodes {
			next[node.ID] = base
		}
		for _, e := range g.Edges {
			out := outCount[e.Source]
			if out == 0 {
				out = 1
			}
			next[e.Target] += d * scores[e.Source] / float64(out)
		}

		delta := 0.0
		for id, v := range next {
			delta = math.Max(delta, math.Abs(v-scores[id]))
		}
		scores = next
		if delta < a.cfg.Tolerance {
			break
		}
	}

	return scores
}

// Betweenness credits each intermediate node of every pair's shortest paths with
// 1/#paths, capped at MaxPathsPerPair paths per pair, then normalizes by the maximum.
func (a *Analyzer) Betweenness(g *graph.NetworkGraph) map[string]float64 {
	scores := make(map[string]float64, g.Len())
	if g.Len() == 0 {
		return scores
	}
	for _, node := range g.Nodes {
		scores[node.ID] = 0
	}

	adj := neighbors(g)
	for i, src := range g.Nodes {
		preds := shortestPredecessors(adj, src.ID)
		for _, dst := range g.Nodes[i+1:] {
			paths := enumeratePaths(preds, src.ID, dst.ID, a.cfg.MaxPathsPerPair)
			if len(paths) == 0 {
				continue
			}
			credit := 1 / float64(len(paths))
			for _, p := range paths {
				for _, id := range p[1 : len(p)-1] {
					scores[id] += credit
				}
			}
		}
	}

	top := maxValue(scores)
	if top > 0 {
		for id := range scores {
			scores[id] /= top
		}
	}
	return scores
}

// Communities runs label propagation. Each node adopts the most common label among
// its neighbours, ties going to the label seen first. Only groups of two or more
// are reported, largest first.
func (a *Analyzer) Communities(g *graph.NetworkGraph) []Community {
	communities := []Community{}
	if g.Len() < 2 {
		return communities
	}

	adj := neighbors(g)
	labels := make(map[string]string, g.Len())
	for _, node := range g.Nodes {
		labels[node.ID] = node.ID
	}

	for round := 0; round < a.cfg.CommunityRounds; round++ {
		changed := false
		for _, node := range g.Nodes {
			best := majorityLabel(adj[node.ID], labels)
			if best != "" && best != labels[node.ID] {
				labels[node.ID] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	groups := make(map[string][]string)
	var order []string
	for _, node := range g.Nodes {
		label := labels[node.ID]
		if _, ok := groups[label]; !ok {
			order = append(order, label)
		}
		groups[label] = append(groups[label], node.ID)
	}

	for _, label := range order {
		members := groups[label]
		if len(members) < 2 {
			continue
		}
		communities = append(communities, Community{Label: label, Members: members, Size: len(members)})
	}
	sort.SliceStable(communities, func(i, j int) bool {
		return communities[i].Size > communities[j].Size
	})
	if len(communities) > a.cfg.MaxCommunities {
		communities = communities[:a.cfg.MaxCommunities]
	}
	for i := range communities {
		communities[i].ID = i + 1
	}
	return communities
}

func majorityLabel(neighbours []string, labels map[string]string) string {
	counts := make(map[string]int, len(neighbours))
	for _, id := range neighbours {
		counts[labels[id]]++
	}
	best, bestCount := "", 0
	for _, id := range neighbours {
		if label := labels[id]; counts[label] > bestCount {
			best, bestCount = label, counts[label]
		}
	}
	return best
}

// CriticalPaths connects each pair of the top PageRank nodes with the first path
// found by DFS and scores it by total weight times the endpoints' PageRank.
// The path is approximate: DFS order decides it, not length.
func (a *Analyzer) CriticalPaths(g *graph.NetworkGraph, pageRank map[string]float64) []CriticalPath {
	paths := []CriticalPath{}
	if g.Len() < 2 {
		return paths
	}

	top := make([]string, 0, g.Len())
	for _, node := range g.Nodes {
		top = append(top, node.ID)
	}
	sort.SliceStable(top, func(i, j int) bool { return pageRank[top[i]] > pageRank[top[j]] })
	if len(top) > a.cfg.CriticalTopNodes {
		top = top[:a.cfg.CriticalTopNodes]
	}

	adj := g.Adjacency()
	for i, src := range top {
		for _, dst := range top[i+1:] {
			path, weight, ok := firstPath(adj, src, dst)
			if !ok {
				continue
			}
			paths = append(paths, CriticalPath{
				Source:      src,
				Target:      dst,
				Path:        path,
				TotalWeight: weight,
				Score:       weight * (pageRank[src] + pageRank[dst]),
			})
		}
	}

	sort.SliceStable(paths, func(i, j int) bool { return paths[i].Score > paths[j].Score })
	if len(paths) > a.cfg.MaxCriticalPaths {
		paths = paths[:a.cfg.MaxCriticalPaths]
	}
	return paths
}

func firstPath(adj map[string][]graph.Edge, src, dst string) ([]string, float64, bool) {
	visited := map[string]bool{src: true}
	path := []string{src}
	weight := 0.0

	var dfs func(id string) bool
	dfs = func(id string) bool {
		if id == dst {
			return true
		}
		for _, e := range adj[id] {
			if visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			path = append(path, e.Target)
			weight += e.Weight
			if dfs(e.Target) {
				return true
			}
			path = path[:len(path)-1]
			weight -= e.Weight
		}
		return false
	}

	if !dfs(src) {
		return nil, 0, false
	}
	return append([]string(nil), path...), weight, true
}

// neighbors lists distinct neighbour ids per node in edge insertion order
func neighbors(g *graph.NetworkGraph) map[string][]string {
	adj := make(map[string][]string, g.Len())
	seen := make(map[[2]string]bool, len(g.Edges))
	for _, e := range g.Edges {
		key := [2]string{e.Source, e.Target}
		if seen[key] || e.Source == e.Target {
			continue
		}
		seen[key] = true
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	return adj
}

// shortestPredecessors runs BFS from src and records, for every reached node, the
// neighbours one step closer to src
func shortestPredecessors(adj map[string][]string, src string) map[string][]string {
	dist := map[string]int{src: 0}
	preds := map[string][]string{src: nil}
	queue := []string{src}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			d, seen := dist[next]
			if !seen {
				dist[next] = dist[id] + 1
				preds[next] = []string{id}
				queue = append(queue, next)
			} else if d == dist[id]+1 {
				preds[next] = append(preds[next], id)
			}
		}
	}
	return preds
}

// enumeratePaths walks predecessors back from dst, returning at most limit
// shortest paths ordered src..dst
func enumeratePaths(preds map[string][]string, src, dst string, limit int) [][]string {
	if _, ok := preds[dst]; !ok || src == dst {
		return nil
	}

	var paths [][]string
	rev := []string{dst}
	var walk func(id string)
	walk = func(id string) {
		if len(paths) >= limit {
			return
		}
		if id == src {
			p := make([]string, len(rev))
			for i := range rev {
				p[i] = rev[len(rev)-1-i]
			}
			paths = append(paths, p)
			return
		}
		for _, prev := range preds[id] {
			rev = append(rev, prev)
			walk(prev)
			rev = rev[:len(rev)-1]
		}
	}
	walk(dst)
	return paths
}
