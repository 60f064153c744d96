package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shaibs3/ResearchGraph/internal/model"
	"github.com/shaibs3/ResearchGraph/internal/taskgraph"
	"go.uber.org/zap"
)

// TaskHandler exposes projects, tasks and the dependency graph.
type TaskHandler struct {
	orch   *taskgraph.Orchestrator
	store  taskgraph.Store
	logger *zap.Logger
}

func NewTaskHandler(orch *taskgraph.Orchestrator, st taskgraph.Store) *TaskHandler {
	return &TaskHandler{orch: orch, store: st}
}

func (h *TaskHandler) RegisterRoutes(router *mux.Router, logger *zap.Logger) {
	h.logger = logger.Named("task_handler")
	router.HandleFunc("/v1/projects", h.handleCreateProject).Methods(http.MethodPost)
	router.HandleFunc("/v1/projects/{id:[0-9]+}", h.handleGetProject).Methods(http.MethodGet)
	router.HandleFunc("/v1/projects/{id:[0-9]+}/tasks", h.handleResolveTask).Methods(http.MethodPost)
	router.HandleFunc("/v1/projects/{id:[0-9]+}/tasks", h.handleListTasks).Methods(http.MethodGet)
	router.HandleFunc("/v1/projects/{id:[0-9]+}/ready", h.handleReadyTasks).Methods(http.MethodGet)
	router.HandleFunc("/v1/projects/{id:[0-9]+}/plan", h.handlePlan).Methods(http.MethodPost)
	router.HandleFunc("/v1/projects/{id:[0-9]+}/dependencies", h.handleProjectDependencies).Methods(http.MethodGet)

	router.HandleFunc("/v1/tasks/{id:[0-9]+}", h.handleGetTask).Methods(http.MethodGet)
	router.HandleFunc("/v1/tasks/{id:[0-9]+}/dependencies", h.handleAddDependency).Methods(http.MethodPost)
	router.HandleFunc("/v1/tasks/{id:[0-9]+}/dependencies", h.handleListDependencies).Methods(http.MethodGet)
	router.HandleFunc("/v1/tasks/{id:[0-9]+}/entities", h.handleLinkEntity).Methods(http.MethodPost)
	router.HandleFunc("/v1/tasks/{id:[0-9]+}/entities", h.handleTaskEntities).Methods(http.MethodGet)
	router.HandleFunc("/v1/tasks/{id:[0-9]+}/ready", h.handleReady).Methods(http.MethodGet)
	router.HandleFunc("/v1/tasks/{id:[0-9]+}/execute", h.handleExecute).Methods(http.MethodPost)
}

func (h *TaskHandler) handleCreateProject(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeBody(req, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if body.Name == "" {
		writeError(w, h.logger, fmt.Errorf("project name is required: %w", model.ErrInvalidArgument))
		return
	}
	id, err := h.orch.CreateProject(req.Context(), body.Name, body.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *TaskHandler) handleGetProject(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	project, err := h.store.GetProject(req.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *TaskHandler) handleResolveTask(w http.ResponseWriter, req *http.Request) {
	projectID, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var body struct {
		Summary      string `json:"summary"`
		Description  string `json:"description"`
		OutputSchema string `json:"output_schema"`
		SelectedID   *int64 `json:"selected_id"`
		ParentID     *int64 `json:"parent_id"`
	}
	if err := decodeBody(req, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, created, err := h.orch.GetOrCreateTask(req.Context(), taskgraph.ResolveRequest{
		ProjectID:    projectID,
		Summary:      body.Summary,
		Description:  body.Description,
		OutputSchema: body.OutputSchema,
		SelectedID:   body.SelectedID,
		ParentID:     body.ParentID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{"id": id, "created": created})
}

func (h *TaskHandler) handleListTasks(w http.ResponseWriter, req *http.Request) {
	projectID, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.store.GetProject(req.Context(), projectID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	tasks, err := h.store.ListTasks(req.Context(), projectID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": nonNil(tasks)})
}

func (h *TaskHandler) handleReadyTasks(w http.ResponseWriter, req *http.Request) {
	projectID, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	tasks, err := h.orch.ReadyTasks(req.Context(), projectID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": nonNil(tasks)})
}

func (h *TaskHandler) handlePlan(w http.ResponseWriter, req *http.Request) {
	projectID, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var plan taskgraph.Plan
	if err := decodeBody(req, &plan); err != nil {
		writeError(w, h.logger, err)
		return
	}
	result, err := h.orch.ApplyPlan(req.Context(), projectID, plan)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *TaskHandler) handleProjectDependencies(w http.ResponseWriter, req *http.Request) {
	projectID, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	deps, err := h.store.ProjectDependencies(req.Context(), projectID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"dependencies": nonNil(deps)})
}

func (h *TaskHandler) handleGetTask(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	task, err := h.store.GetTask(req.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleAddDependency adds an edge into the task named in the path.
func (h *TaskHandler) handleAddDependency(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var body struct {
		SourceTaskID            int64          `json:"source_task_id"`
		RelationshipDescription string         `json:"relationship_description"`
		DataSchema              string         `json:"data_schema"`
		DataFlow                model.DataFlow `json:"data_flow"`
	}
	if err := decodeBody(req, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	dep := model.TaskDependency{
		SourceTaskID:            body.SourceTaskID,
		DependentTaskID:         id,
		RelationshipDescription: body.RelationshipDescription,
		DataSchema:              body.DataSchema,
		DataFlow:                body.DataFlow,
	}
	if err := h.orch.AddDependency(req.Context(), dep); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dep)
}

func (h *TaskHandler) handleListDependencies(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.store.GetTask(req.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	incoming, err := h.store.Dependencies(req.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	outgoing, err := h.store.Dependents(req.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dependencies": nonNil(incoming),
		"dependents":   nonNil(outgoing),
	})
}

func (h *TaskHandler) handleLinkEntity(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var body struct {
		EntityID       int64   `json:"entity_id"`
		FeedbackRating float64 `json:"feedback_rating"`
	}
	if err := decodeBody(req, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	link := model.TaskEntity{TaskID: id, EntityID: body.EntityID, FeedbackRating: body.FeedbackRating}
	if err := h.store.LinkEntityToTask(req.Context(), link); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (h *TaskHandler) handleTaskEntities(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.store.GetTask(req.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	entities, err := h.store.TaskEntities(req.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entities": nonNil(entities)})
}

func (h *TaskHandler) handleReady(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ready, err := h.orch.IsReady(req.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"task_id": id, "ready": ready})
}

func (h *TaskHandler) handleExecute(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	outcome, err := h.orch.ExecuteTask(req.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
