package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/liamashdown/tradeintel/internal/correlation"
	"github.com/liamashdown/tradeintel/internal/graph"
	"github.com/liamashdown/tradeintel/internal/metrics"
	"github.com/liamashdown/tradeintel/internal/multihop"
	"github.com/liamashdown/tradeintel/internal/network"
	"github.com/liamashdown/tradeintel/internal/predictor"
	"github.com/liamashdown/tradeintel/internal/processor"
	"github.com/liamashdown/tradeintel/internal/ratelimit"
	"github.com/liamashdown/tradeintel/internal/risk"
	"github.com/liamashdown/tradeintel/internal/temporal"
)

// Engine is the analysis surface served over HTTP
type Engine interface {
	AlertGraph(ctx context.Context, alertID string, windowDays int) *graph.NetworkGraph
	Network(ctx context.Context, windowDays int) *processor.NetworkReport
	NetworkMetrics(ctx context.Context, alertID string, windowDays int) *network.Metrics
	Correlations(ctx context.Context, category string, windowDays int) *correlation.Report
	MultiHop(ctx context.Context, alertID string, maxHops, windowDays int) []multihop.Connection
	TransitiveRisk(ctx context.Context, fromID, toID string, maxHops, windowDays int) *multihop.TransitiveRisk
	Temporal(ctx context.Context, alertID string, windowDays int) *temporal.Analysis
	RiskScores(ctx context.Context) []risk.Score
	Interconnection(ctx context.Context, alertID string, windowDays int) *risk.Interconnection
	Predict(ctx context.Context, alertID string, windowDays int) *predictor.CascadePrediction
	InvalidateAlert(alertID string) int
	InvalidateAll() int
}

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the engine as a JSON API
type Server struct {
	engine  Engine
	store   Pinger
	limiter *ratelimit.Limiter
	log     *logrus.Logger
}

// NewServer creates the API server
func NewServer(engine Engine, store Pinger, limiter *ratelimit.Limiter, log *logrus.Logger) *Server {
	return &Server{engine: engine, store: store, limiter: limiter, log: log}
}

// Router builds the HTTP routes
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.throttle)

		r.Route("/alerts/{alertID}", func(r chi.Router) {
			r.Get("/graph", s.handleAlertGraph)
			r.Get("/network-metrics", s.handleNetworkMetrics)
			r.Get("/multi-hop", s.handleMultiHop)
			r.Get("/transitive/{targetID}", s.handleTransitive)
			r.Get("/temporal", s.handleTemporal)
			r.Get("/interconnection", s.handleInterconnection)
			r.Get("/prediction", s.handlePrediction)
		})
		r.Get("/network", s.handleNetwork)
		r.Get("/correlations", s.handleCorrelations)
		r.Get("/risk-scores", s.handleRiskScores)
		r.Post("/cache/invalidate", s.handleInvalidate)
	})

	return r
}

// observe records request metrics under the matched route pattern
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordAPIRequest(route, status, time.Since(start))

		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"route":       route,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("Handled request")
	})
}

// throttle rejects requests once the token bucket is empty
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			metrics.APIThrottled.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
