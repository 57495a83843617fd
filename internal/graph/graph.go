package graph

import (
	"fmt"
	"time"

	"github.com/liamashdown/tradeintel/internal/anomaly"
)

// EdgeType names the strongest reason two alerts are connected
type EdgeType string

const (
	EdgeProduct  EdgeType = "product"
	EdgePattern  EdgeType = "pattern"
	EdgeSameType EdgeType = "type"
	EdgeTemporal EdgeType = "temporal"
)

// Metadata carries the alert fields the analyzers need beyond type and severity
type Metadata struct {
	AnomalyID string         `json:"anomaly_id"`
	ProductID string         `json:"product_id,omitempty"`
	Status    anomaly.Status `json:"status"`
}

// Node is one alert in a correlation graph
type Node struct {
	ID        string           `json:"id"`
	Type      anomaly.Type     `json:"type"`
	Severity  anomaly.Severity `json:"severity"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  Metadata         `json:"metadata"`
}

// Edge is one direction of a symmetric connection
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Weight float64  `json:"weight"`
	Type   EdgeType `json:"type"`
}

// NetworkGraph is a correlation graph over alerts. Node ids are unique.
type NetworkGraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	index map[string]int // node id -> position in Nodes
}

// New creates an empty graph
func New() *NetworkGraph {
	return &NetworkGraph{
		Nodes: []Node{},
		Edges: []Edge{},
		index: make(map[string]int),
	}
}

// NodeFromAlert builds a graph node from an alert. Returns false when the alert has no anomaly.
func NodeFromAlert(a *anomaly.Alert) (Node, bool) {
	if a == nil || a.Anomaly == nil {
		return Node{}, false
	}
	return Node{
		ID:        a.ID,
		Type:      a.Anomaly.Type,
		Severity:  a.Anomaly.Severity,
		Timestamp: a.Timestamp(),
		Metadata: Metadata{
			AnomalyID: a.Anomaly.ID,
			ProductID: a.Anomaly.ProductID,
			Status:    a.Status,
		},
	}, true
}

// AddNode inserts a node, replacing any existing node with the same id
func (g *NetworkGraph) AddNode(n Node) {
	g.ensureIndex()
	if i, ok := g.index[n.ID]; ok {
		g.Nodes[i] = n
		return
	}
	g.index[n.ID] = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
}

// Connect inserts the edge in both directions with the same weight
func (g *NetworkGraph) Connect(a, b string, weight float64, t EdgeType) {
	g.Edges = append(g.Edges,
		Edge{Source: a, Target: b, Weight: weight, Type: t},
		Edge{Source: b, Target: a, Weight: weight, Type: t},
	)
}

// Node returns the node with the given id
func (g *NetworkGraph) Node(id string) (Node, bool) {
	if g == nil {
		return Node{}, false
	}
	// Read-only: graphs are shared through the analysis cache
	if g.index == nil || len(g.index) != len(g.Nodes) {
		for _, n := range g.Nodes {
			if n.ID == id {
				return n, true
			}
		}
		return Node{}, false
	}
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Len returns the number of nodes; zero for a nil graph
func (g *NetworkGraph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Nodes)
}

// Adjacency returns outgoing edges per node id, in edge insertion order
func (g *NetworkGraph) Adjacency() map[string][]Edge {
	adj := make(map[string][]Edge, g.Len())
	if g == nil {
		return adj
	}
	for _, e := range g.Edges {
		adj[e.Source] = append(adj[e.Source], e)
	}
	return adj
}

// Neighbors returns the distinct ids connected to id
func (g *NetworkGraph) Neighbors(id string) []string {
	if g == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, e := range g.Edges {
		if e.Source == id && !seen[e.Target] {
			seen[e.Target] = true
			out = append(out, e.Target)
		}
	}
	return out
}

// Validate checks node ids are unique and every edge references existing nodes
func (g *NetworkGraph) Validate() error {
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if ids[n.ID] {
			return fmt.Errorf("duplicate node %q", n.ID)
		}
		ids[n.ID] = true
	}
	for _, e := range g.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			return fmt.Errorf("edge %s->%s references unknown node", e.Source, e.Target)
		}
		if e.Weight < 0 || e.Weight > 1 {
			return fmt.Errorf("edge %s->%s weight %.3f out of range", e.Source, e.Target, e.Weight)
		}
	}
	return nil
}

// ensureIndex rebuilds the id index for graphs built without New (e.g. decoded from JSON)
func (g *NetworkGraph) ensureIndex() {
	if g.index != nil && len(g.index) == len(g.Nodes) {
		return
	}
	g.index = make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		g.index[n.ID] = i
	}
}
