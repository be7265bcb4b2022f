// File: internal/server/handlers.go
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/api/schemas"
	"github.com/xkilldash9x/conductor/internal/automation"
	"github.com/xkilldash9x/conductor/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxBodyBytes     = 1 << 20
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// automationRequest is the trigger body. FormData stays untyped so that a
// missing or mistyped property can be reported by name.
type automationRequest struct {
	FormData interface{} `json:"formData"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAutomation(w http.ResponseWriter, r *http.Request) {
	var req automationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid JSON format.")
		return
	}

	input, err := schemas.ParseFormData(req.FormData)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.limiter.Allow() {
		s.respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again later.")
		return
	}
	if !s.runs.TryAcquire(1) {
		s.respondWithError(w, http.StatusTooManyRequests, "Too many automation runs in progress. Try again later.")
		return
	}
	defer s.runs.Release(1)

	ctx, cancel := context.WithTimeout(r.Context(), s.maxDuration)
	defer cancel()

	result, report, err := s.automator.Run(ctx, input)
	fields := []zap.Field{zap.String("path", r.URL.Path)}
	if report != nil {
		fields = append(fields, zap.String("run_id", report.RunID), zap.String("state", string(report.State)))
	}
	if err != nil {
		if schemas.IsRequestError(err) {
			s.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("Automation failed", append(fields, zap.Error(err))...)
		s.respondWithError(w, http.StatusInternalServerError, automation.Describe(err))
		return
	}

	s.logger.Info("Automation completed", fields...)
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondWithError(w, http.StatusServiceUnavailable, "Run history is not configured.")
		return
	}

	run, err := s.history.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Run not found.")
			return
		}
		s.logger.Error("Failed to load run", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Internal error retrieving run.")
		return
	}
	s.respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondWithError(w, http.StatusServiceUnavailable, "Run history is not configured.")
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondWithError(w, http.StatusBadRequest, "limit must be a positive integer.")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.history.ListRecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list runs", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Internal error retrieving runs.")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(runs),
		"runs":  runs,
	})
}

// respondWithError sends a {"error": message} body.
func (s *Server) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, map[string]string{"error": message})
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
