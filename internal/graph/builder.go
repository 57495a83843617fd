package graph

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/liamashdown/tradeintel/internal/config"
	"github.com/liamashdown/tradeintel/internal/metrics"
)

// Builder constructs correlation graphs from the alerts in a time window
type Builder struct {
	loader *Loader
	cfg    config.GraphConfig
	log    *logrus.Logger
}

// NewBuilder creates a graph builder
func NewBuilder(loader *Loader, cfg config.GraphConfig, log *logrus.Logger) *Builder {
	return &Builder{loader: loader, cfg: cfg, log: log}
}

// BuildForAlert builds the graph of alerts significantly connected to the seed.
// Returns nil when the seed cannot be resolved or the store read fails.
func (b *Builder) BuildForAlert(ctx context.Context, alertID string, windowDays int) *NetworkGraph {
	seed := b.loader.Seed(ctx, alertID)
	if seed == nil {
		return nil
	}
	seedNode, _ := NodeFromAlert(seed)

	candidates, ok := b.loader.Window(ctx, seed.ID, windowDays, b.cfg.FetchLimit)
	if !ok {
		return nil
	}

	g := New()
	g.AddNode(seedNode)
	for _, n := range Nodes(candidates) {
		if n.ID == seedNode.ID {
			continue
		}
		strength, edgeType := ConnectionStrength(b.cfg, seedNode, n)
		if strength <= b.cfg.SignificanceThreshold {
			continue
		}
		g.AddNode(n)
		g.Connect(seedNode.ID, n.ID, strength, edgeType)
	}

	b.log.WithFields(logrus.Fields{
		"alert_id":    alertID,
		"window_days": windowDays,
		"candidates":  len(candidates),
		"nodes":       len(g.Nodes),
		"edges":       len(g.Edges),
	}).Debug("Built alert graph")
	metrics.RecordGraphSize(len(g.Nodes), len(g.Edges))

	return g
}

// BuildNetwork builds the graph over every alert in the window, connecting all
// significantly related pairs. Returns nil when the store read fails.
func (b *Builder) BuildNetwork(ctx context.Context, windowDays int) *NetworkGraph {
	alerts, ok := b.loader.Window(ctx, "", windowDays, b.cfg.FetchLimit)
	if !ok {
		return nil
	}

	g := New()
	for _, n := range Nodes(alerts) {
		g.AddNode(n)
	}
	nodes := g.Nodes
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			strength, edgeType := ConnectionStrength(b.cfg, nodes[i], nodes[j])
			if strength > b.cfg.SignificanceThreshold {
				g.Connect(nodes[i].ID, nodes[j].ID, strength, edgeType)
			}
		}
	}

	b.log.WithFields(logrus.Fields{
		"window_days": windowDays,
		"nodes":       len(g.Nodes),
		"edges":       len(g.Edges),
	}).Debug("Built alert network")
	metrics.RecordGraphSize(len(g.Nodes), len(g.Edges))

	return g
}
