package multihop

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/liamashdown/tradeintel/internal/config"
	"github.com/liamashdown/tradeintel/internal/graph"
)

// Connection is one cascade path starting at the seed alert
type Connection struct {
	Path             []string         `json:"path"`
	Hops             int              `json:"hops"`
	TotalCorrelation float64          `json:"total_correlation"`
	CompoundRisk     float64          `json:"compound_risk"`
	ConnectionTypes  []graph.EdgeType `json:"connection_types"`
}

// TransitiveRisk is the shortest connection between two specific alerts
type TransitiveRisk struct {
	Source    string   `json:"source"`
	Target    string   `json:"target"`
	Reachable bool     `json:"reachable"`
	Path      []string `json:"path"`
	Hops      int      `json:"hops"`
	Risk      float64  `json:"risk"`
}

type link struct {
	target string
	weight float64
	kind   graph.EdgeType
}

// Analyzer enumerates bounded-length cascade paths through the alert window
type Analyzer struct {
	loader   *graph.Loader
	cfg      config.MultiHopConfig
	graphCfg config.GraphConfig
	log      *logrus.Logger
}

// NewAnalyzer creates a multi-hop analyzer
func NewAnalyzer(loader *graph.Loader, cfg config.MultiHopConfig, graphCfg config.GraphConfig, log *logrus.Logger) *Analyzer {
	return &Analyzer{loader: loader, cfg: cfg, graphCfg: graphCfg, log: log}
}

// Hops resolves the effective hop bound: the default when unset, never above the limit
func (a *Analyzer) Hops(maxHops int) int {
	if maxHops <= 0 {
		return a.cfg.DefaultMaxHops
	}
	if maxHops > a.cfg.MaxHopsLimit {
		return a.cfg.MaxHopsLimit
	}
	return maxHops
}

// CompoundRisk scores a path by its node count
func CompoundRisk(pathLen int) float64 {
	return math.Min(100, float64(pathLen*20+(pathLen-1)*15))
}

// Analyze returns up to MaxResults paths from the seed, highest compound risk first.
// Returns nil when the seed cannot be resolved or the store read fails.
func (a *Analyzer) Analyze(ctx context.Context, alertID string, maxHops, windowDays int) []Connection {
	maxHops = a.Hops(maxHops)
	adj, ok := a.adjacency(ctx, alertID, windowDays)
	if !ok {
		return nil
	}

	var (
		results  []Connection
		seen     = make(map[string]bool)
		explored int
		path     = []string{alertID}
		types    []graph.EdgeType
	)

	var dfs func(current string, correlation float64)
	dfs = func(current string, correlation float64) {
		depth := len(path) - 1
		for _, l := range adj[current] {
			if explored >= a.cfg.MaxExplored {
				return
			}
			// The first two hops may not revisit; later hops may close loops
			if depth < 2 && contains(path, l.target) {
				continue
			}
			explored++

			path = append(path, l.target)
			types = append(types, l.kind)
			score := correlation * l.weight

			sig := strings.Join(path, ">")
			if !seen[sig] {
				seen[sig] = true
				results = append(results, Connection{
					Path:             append([]string(nil), path...),
					Hops:             len(path) - 1,
					TotalCorrelation: score,
					CompoundRisk:     CompoundRisk(len(path)),
					ConnectionTypes:  append([]graph.EdgeType(nil), types...),
				})
			}
			if len(path)-1 < maxHops {
				dfs(l.target, score)
			}

			path = path[:len(path)-1]
			types = types[:len(types)-1]
		}
	}
	dfs(alertID, 1)

	if explored >= a.cfg.MaxExplored {
		a.log.WithFields(logrus.Fields{
			"alert_id": alertID,
			"max_hops": maxHops,
			"explored": explored,
		}).Warn("Multi-hop exploration bound reached, results truncated")
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CompoundRisk != results[j].CompoundRisk {
			return results[i].CompoundRisk > results[j].CompoundRisk
		}
		return results[i].TotalCorrelation > results[j].TotalCorrelation
	})
	if len(results) > a.cfg.MaxResults {
		results = results[:a.cfg.MaxResults]
	}
	if results == nil {
		results = []Connection{}
	}
	return results
}

// TransitiveRisk finds the shortest path from one alert to another within maxHops.
// Returns nil when the source cannot be resolved or the store read fails.
func (a *Analyzer) TransitiveRisk(ctx context.Context, fromID, toID string, maxHops, windowDays int) *TransitiveRisk {
	maxHops = a.Hops(maxHops)
	result := &TransitiveRisk{Source: fromID, Target: toID, Path: []string{}}

	adj, ok := a.adjacency(ctx, fromID, windowDays, toID)
	if !ok {
		return nil
	}
	if fromID == toID {
		result.Reachable = true
		result.Path = []string{fromID}
		return result
	}

	prev := map[string]string{fromID: ""}
	depth := map[string]int{fromID: 0}
	queue := []string{fromID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if depth[id] >= maxHops {
			continue
		}
		for _, l := range adj[id] {
			if _, visited := prev[l.target]; visited {
				continue
			}
			prev[l.target] = id
			depth[l.target] = depth[id] + 1
			if l.target == toID {
				result.Path = tracePath(prev, toID)
				result.Reachable = true
				result.Hops = len(result.Path) - 1
				result.Risk = math.Min(100, float64(result.Hops*25))
				return result
			}
			queue = append(queue, l.target)
		}
	}
	return result
}

// adjacency loads the seed and window and connects every significantly related pair.
// extra ids are resolved individually so targets outside the window stay reachable.
func (a *Analyzer) adjacency(ctx context.Context, seedID string, windowDays int, extra ...string) (map[string][]link, bool) {
	seed := a.loader.Seed(ctx, seedID)
	if seed == nil {
		return nil, false
	}
	window, ok := a.loader.Window(ctx, seedID, windowDays, a.cfg.FetchLimit)
	if !ok {
		return nil, false
	}

	g := graph.New()
	if n, ok := graph.NodeFromAlert(seed); ok {
		g.AddNode(n)
	}
	for _, n := range graph.Nodes(window) {
		g.AddNode(n)
	}
	for _, id := range extra {
		if _, ok := g.Node(id); ok || id == seedID {
			continue
		}
		if alert := a.loader.Seed(ctx, id); alert != nil {
			n, _ := graph.NodeFromAlert(alert)
			g.AddNode(n)
		}
	}

	adj := make(map[string][]link, len(g.Nodes))
	for i := 0; i < len(g.Nodes); i++ {
		for j := i + 1; j < len(g.Nodes); j++ {
			x, y := g.Nodes[i], g.Nodes[j]
			strength, kind := graph.ConnectionStrength(a.graphCfg, x, y)
			if strength <= a.graphCfg.SignificanceThreshold {
				continue
			}
			adj[x.ID] = append(adj[x.ID], link{target: y.ID, weight: strength, kind: kind})
			adj[y.ID] = append(adj[y.ID], link{target: x.ID, weight: strength, kind: kind})
		}
	}
	return adj, true
}

func tracePath(prev map[string]string, target string) []string {
	var rev []string
	for id := target; id != ""; id = prev[id] {
		rev = append(rev, id)
	}
	path := make([]string, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path
}

func contains(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}
