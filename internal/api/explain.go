package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acarin/missionmind/internal/engine"
	"github.com/acarin/missionmind/internal/store"
)

type ExplainHandler struct {
	store  store.Store
	scorer *engine.PriorityScorer
}

func NewExplainHandler(s store.Store, scorer *engine.PriorityScorer) *ExplainHandler {
	return &ExplainHandler{store: s, scorer: scorer}
}

// Explain returns the per-factor scoring breakdown for a task, recomputed
// against the current snapshot alongside the persisted score.
// GET /api/v1/scoring/explain/{task_id}
func (h *ExplainHandler) Explain(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task_id required"})
		return
	}

	task, err := h.store.GetTask(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if task == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}

	result, err := h.scorer.Score(task, &engine.PriorityContext{Now: time.Now()})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"task_id":         task.ID,
		"persisted_score": task.PriorityScore,
		"current_score":   result.Score,
		"factors":         result.Factors,
	})
}
