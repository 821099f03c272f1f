package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks the data backend and reports middleware counters.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"store": "ok"}
	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
		s.logger.WarnContext(ctx, "Readiness check failed", "error", err)
	}

	tm := s.tracer.GetMetrics()
	rm := s.limiter.GetMetrics()
	dm := s.detector.GetMetrics()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
		"metrics": map[string]any{
			"total_requests":      tm.TotalRequests,
			"server_errors":       tm.ServerErrors,
			"rate_limited":        rm.TotalHits,
			"rate_limit_clients":  rm.ClientCount,
			"suspicious_requests": dm.SuspiciousRequests,
		},
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := s.mustUser(r)
	writeData(w, http.StatusOK, userJSON{ID: u.ID, Name: u.Name, Email: u.Email})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.dashboard.Categories(r.Context(), s.mustUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, categoryOptions(cats))
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	years, err := s.dashboard.Years(r.Context(), s.mustUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, yearOptions(years))
}
