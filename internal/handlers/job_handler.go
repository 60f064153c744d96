package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// JobRunner triggers a named background job synchronously.
type JobRunner interface {
	RunNow(ctx context.Context, name string) (string, error)
}

type JobHandler struct {
	runner JobRunner
	logger *zap.Logger
}

func NewJobHandler(runner JobRunner) *JobHandler {
	return &JobHandler{runner: runner}
}

func (h *JobHandler) RegisterRoutes(router *mux.Router, logger *zap.Logger) {
	h.logger = logger.Named("job_handler")
	router.HandleFunc("/v1/jobs/{name}/run", h.handleRun).Methods(http.MethodPost)
}

func (h *JobHandler) handleRun(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	runID, err := h.runner.RunNow(req.Context(), name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job": name, "run_id": runID})
}
