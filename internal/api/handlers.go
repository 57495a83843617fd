package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/liamashdown/tradeintel/internal/metrics"
)

const (
	defaultWindowDays = 30
	maxWindowDays     = 365
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt reads an integer query parameter in [lo,hi], falling back to def when absent
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", name, lo, hi)
	}
	return v, nil
}

func windowDays(w http.ResponseWriter, r *http.Request) (int, bool) {
	days, err := queryInt(r, "window_days", defaultWindowDays, 1, maxWindowDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return days, true
}

func maxHops(w http.ResponseWriter, r *http.Request) (int, bool) {
	// Zero selects the configured default; larger values are clamped downstream
	hops, err := queryInt(r, "max_hops", 0, 0, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return hops, true
}

// respond writes v, or 404 when the analysis had no data for the request
func respond[T any](w http.ResponseWriter, v *T, what string) {
	if v == nil {
		writeError(w, http.StatusNotFound, what+" not available")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics.RecordHealthCheck(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.WithError(err).Warn("Readiness check failed")
		metrics.RecordHealthCheck(false)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	metrics.RecordHealthCheck(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleAlertGraph(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	respond(w, s.engine.AlertGraph(r.Context(), chi.URLParam(r, "alertID"), days), "graph")
}

func (s *Server) handleNetworkMetrics(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	respond(w, s.engine.NetworkMetrics(r.Context(), chi.URLParam(r, "alertID"), days), "network metrics")
}

func (s *Server) handleMultiHop(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	hops, ok := maxHops(w, r)
	if !ok {
		return
	}
	conns := s.engine.MultiHop(r.Context(), chi.URLParam(r, "alertID"), hops, days)
	if conns == nil {
		writeError(w, http.StatusNotFound, "multi-hop connections not available")
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

func (s *Server) handleTransitive(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	hops, ok := maxHops(w, r)
	if !ok {
		return
	}
	risk := s.engine.TransitiveRisk(r.Context(), chi.URLParam(r, "alertID"), chi.URLParam(r, "targetID"), hops, days)
	respond(w, risk, "transitive risk")
}

func (s *Server) handleTemporal(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	respond(w, s.engine.Temporal(r.Context(), chi.URLParam(r, "alertID"), days), "temporal analysis")
}

func (s *Server) handleInterconnection(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	respond(w, s.engine.Interconnection(r.Context(), chi.URLParam(r, "alertID"), days), "interconnection")
}

// Predictions always answer, degraded when data is missing
func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	respond(w, s.engine.Predict(r.Context(), chi.URLParam(r, "alertID"), days), "prediction")
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	respond(w, s.engine.Network(r.Context(), days), "network")
}

func (s *Server) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	respond(w, s.engine.Correlations(r.Context(), r.URL.Query().Get("category"), days), "correlations")
}

func (s *Server) handleRiskScores(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.RiskScores(r.Context()))
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	alertID := r.URL.Query().Get("alert_id")

	var removed int
	if alertID == "" {
		removed = s.engine.InvalidateAll()
	} else {
		removed = s.engine.InvalidateAlert(alertID)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alert_id": alertID,
		"removed":  removed,
	})
}
