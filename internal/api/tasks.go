package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acarin/missionmind/internal/bus"
	"github.com/acarin/missionmind/internal/engine"
	"github.com/acarin/missionmind/internal/store"
	"github.com/acarin/missionmind/internal/summarizer"
)

// openPerUserCap is the open-assignment count at which a candidate pool is
// considered saturated for the workload penalty.
const openPerUserCap = 10.0

// Evaluators bundles the pure engine components the handlers invoke. All
// snapshot loading happens in the handlers; the evaluators never see the
// store.
type Evaluators struct {
	Scorer      *engine.PriorityScorer
	Assessor    *engine.RiskAssessor
	Router      *engine.RoutingEngine
	Authorities *engine.AuthorityRecommender
	Quality     *engine.QualityChecker
}

type TasksHandler struct {
	store      store.Store
	eval       Evaluators
	events     bus.Client
	summarizer summarizer.Client
	logger     *slog.Logger
}

func NewTasksHandler(s store.Store, eval Evaluators, events bus.Client, sum summarizer.Client, logger *slog.Logger) *TasksHandler {
	return &TasksHandler{store: s, eval: eval, events: events, summarizer: sum, logger: logger}
}

// Score computes and persists the priority score for a task.
// POST /api/v1/tasks/{id}/score
func (h *TasksHandler) Score(w http.ResponseWriter, r *http.Request) {
	task := h.loadTask(w, r)
	if task == nil {
		return
	}

	ratio, err := h.workloadRatio(r, task)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.eval.Scorer.Score(task, &engine.PriorityContext{
		Now:           time.Now(),
		WorkloadRatio: ratio,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if err := h.store.UpdateTaskPriority(r.Context(), task.ID, result.Score); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if h.events != nil {
		_ = h.events.Publish(bus.SubjectTaskScored(task.ID), bus.TaskScoredEvent{
			TaskID:        task.ID,
			PriorityScore: result.Score,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"task_id":        task.ID,
		"priority_score": result.Score,
		"factors":        result.Factors,
	})
}

// Risk returns an on-demand risk assessment without persisting it; the sweep
// owns persistence.
// GET /api/v1/tasks/{id}/risk
func (h *TasksHandler) Risk(w http.ResponseWriter, r *http.Request) {
	task := h.loadTask(w, r)
	if task == nil {
		return
	}

	suspense, err := h.store.GetSuspense(r.Context(), task.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	deps, err := h.store.UnresolvedDependencyCount(r.Context(), task.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	onTime, err := h.store.OwnerOnTimeRate(r.Context(), task.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	assessment, err := h.eval.Assessor.Assess(task, suspense, &engine.RiskContext{
		Now:                    time.Now(),
		UnresolvedDependencies: deps,
		OwnerOnTimeRate:        onTime,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// Route runs the routing decision and persists the resulting assignment.
// POST /api/v1/tasks/{id}/route
func (h *TasksHandler) Route(w http.ResponseWriter, r *http.Request) {
	task := h.loadTask(w, r)
	if task == nil {
		return
	}

	tree, err := h.loadTree(r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	subtree, err := tree.SubtreeIDs(task.OrgUnitID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	users, err := h.store.ListUsersByOrgUnits(r.Context(), subtree)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	workload, err := h.store.WorkloadCounts(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	lastAssigned, err := h.store.LastAssignedAt(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	decision, err := h.eval.Router.Route(task, &engine.CandidatePool{
		Users:        users,
		Workload:     workload,
		LastAssigned: lastAssigned,
		Tree:         tree,
		Now:          time.Now(),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	assignment := decision.Assignment()
	if err := h.store.CreateAssignment(r.Context(), assignment); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if h.events != nil {
		subject := bus.SubjectTaskRouted(task.ID)
		if decision.Fallback {
			subject = bus.SubjectTaskUnroutable(task.ID)
		}
		_ = h.events.Publish(subject, bus.TaskRoutedEvent{
			TaskID:         task.ID,
			AssigneeUserID: assignment.AssigneeUserID,
			AssigneeOrgID:  assignment.AssigneeOrgID,
			Fallback:       decision.Fallback,
		})
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"decision":   decision,
		"assignment": assignment,
	})
}

// AuthoritySuggestions ranks approval authorities for the task.
// GET /api/v1/tasks/{id}/authority-suggestions
func (h *TasksHandler) AuthoritySuggestions(w http.ResponseWriter, r *http.Request) {
	task := h.loadTask(w, r)
	if task == nil {
		return
	}

	tree, err := h.loadTree(r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	authorities, err := h.store.ListAuthorities(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	recs, err := h.eval.Authorities.Recommend(task, &engine.AuthorityGraph{
		Tree:        tree,
		Authorities: authorities,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if recs == nil {
		recs = []engine.AuthorityRecommendation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"task_id":     task.ID,
		"suggestions": recs,
	})
}

// QualityCheck runs the advisory completeness rules.
// GET /api/v1/tasks/{id}/quality-check
func (h *TasksHandler) QualityCheck(w http.ResponseWriter, r *http.Request) {
	task := h.loadTask(w, r)
	if task == nil {
		return
	}

	result := h.eval.Quality.Check(task)
	if !result.Passed && h.events != nil {
		_ = h.events.Publish(bus.SubjectQualityFailed(task.ID), result)
	}
	writeJSON(w, http.StatusOK, result)
}

// Summary proxies the external summarization service.
// GET /api/v1/tasks/{id}/summary
func (h *TasksHandler) Summary(w http.ResponseWriter, r *http.Request) {
	task := h.loadTask(w, r)
	if task == nil {
		return
	}
	if h.summarizer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "summarizer not configured"})
		return
	}

	summary, err := h.summarizer.Summarize(r.Context(), task.ID, task.Title, task.Description)
	if err != nil {
		h.logger.Warn("summarizer call failed", "task_id", task.ID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "summarizer unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *TasksHandler) loadTask(w http.ResponseWriter, r *http.Request) *store.Task {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task id required"})
		return nil
	}
	task, err := h.store.GetTask(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil
	}
	if task == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return nil
	}
	return task
}

func (h *TasksHandler) loadTree(r *http.Request) (*engine.OrgTree, error) {
	units, err := h.store.ListOrgUnits(r.Context())
	if err != nil {
		return nil, err
	}
	return engine.NewOrgTree(units), nil
}

// workloadRatio measures saturation of the task's org subtree: mean open
// assignments per member against the per-user cap. No members means no
// penalty signal.
func (h *TasksHandler) workloadRatio(r *http.Request, task *store.Task) (float64, error) {
	tree, err := h.loadTree(r)
	if err != nil {
		return 0, err
	}
	subtree, err := tree.SubtreeIDs(task.OrgUnitID)
	if err != nil {
		// A malformed tree should not block scoring; the factor degrades.
		return 0, nil
	}
	users, err := h.store.ListUsersByOrgUnits(r.Context(), subtree)
	if err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, nil
	}
	workload, err := h.store.WorkloadCounts(r.Context())
	if err != nil {
		return 0, err
	}
	total := 0
	for _, u := range users {
		total += workload[u.ID]
	}
	ratio := float64(total) / (float64(len(users)) * openPerUserCap)
	if ratio > 1 {
		ratio = 1
	}
	return ratio, nil
}

func writeEngineError(w http.ResponseWriter, err error) {
	var invalid *engine.InvalidInputError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": invalid.Error(),
			"field": invalid.Field,
		})
		return
	}
	var structural *engine.StructuralError
	if errors.As(err, &structural) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": structural.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
