package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/scheduler"
	"github.com/shaibs3/ResearchGraph/internal/taskgraph"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeError maps domain errors onto status codes. Unexpected errors are
// logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, scheduler.ErrUnknownJob):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, taskgraph.ErrNotReady), errors.Is(err, scheduler.ErrJobRunning):
		status = http.StatusConflict
	case errors.Is(err, scheduler.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		http.Error(w, "Internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func decodeBody(req *http.Request, v interface{}) error {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", model.ErrInvalidArgument)
	}
	return nil
}

func pathID(req *http.Request) (int64, error) {
	raw := mux.Vars(req)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", raw, model.ErrInvalidArgument)
	}
	return id, nil
}

func queryInt(req *http.Request, key string, def int) (int, error) {
	raw := req.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, model.ErrInvalidArgument)
	}
	return n, nil
}
