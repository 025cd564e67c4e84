package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/acarin/missionmind/internal/store"
)

// AuthorityGraph is the immutable approval-authority snapshot.
type AuthorityGraph struct {
	Tree        *OrgTree
	Authorities []*store.Authority
}

// AuthorityRecommendation ranks one authority for a task.
type AuthorityRecommendation struct {
	AuthorityID string  `json:"authority_id"`
	Title       string  `json:"title"`
	OrgUnitID   string  `json:"org_unit_id"`
	Grade       string  `json:"grade,omitempty"`
	Confidence  float64 `json:"confidence"`
	Rationale   string  `json:"rationale"`
}

// AuthorityRecommender ranks approval authorities for a task using the org
// hierarchy and policy-area overlap.
type AuthorityRecommender struct {
	matchWeight     float64
	proximityWeight float64
	maxSuggestions  int
	logger          *slog.Logger
}

func NewAuthorityRecommender(logger *slog.Logger) *AuthorityRecommender {
	return &AuthorityRecommender{
		matchWeight:     0.6,
		proximityWeight: 0.4,
		maxSuggestions:  3,
		logger:          logger,
	}
}

// Recommend filters to authorities whose org scope sits on the task org's
// ancestor chain and whose classification ceiling covers the task, then ranks
// by confidence. Proximity prefers the lowest appropriate authority: the
// closest in-scope org wins over a more senior one. At most three suggestions
// come back; an empty scope yields an org-chief placeholder instead of an
// empty list. A cyclic hierarchy is a StructuralError, detected before any
// ranking happens.
func (r *AuthorityRecommender) Recommend(task *store.Task, graph *AuthorityGraph) ([]AuthorityRecommendation, error) {
	if !task.Classification.Valid() {
		return nil, invalidInput("classification", "unknown level "+string(task.Classification))
	}
	if graph == nil || graph.Tree == nil {
		return nil, invalidInput("authority_graph", "org tree required")
	}

	chain, err := graph.Tree.AncestorChain(task.OrgUnitID)
	if err != nil {
		return nil, err
	}
	distance := make(map[string]int, len(chain))
	for i, id := range chain {
		distance[id] = i
	}

	var out []AuthorityRecommendation
	for _, auth := range graph.Authorities {
		d, inScope := distance[auth.OrgUnitID]
		if !inScope {
			continue
		}
		if auth.MaxClassification.Rank() < task.Classification.Rank() {
			continue
		}
		match := jaccard(auth.PolicyAreas, task.Tags)
		if len(task.Tags) > 0 && len(auth.PolicyAreas) > 0 && match == 0 {
			continue
		}

		proximity := 1.0 / float64(1+d)
		confidence := r.matchWeight*match + r.proximityWeight*proximity

		out = append(out, AuthorityRecommendation{
			AuthorityID: auth.ID,
			Title:       auth.Title,
			OrgUnitID:   auth.OrgUnitID,
			Grade:       auth.Grade,
			Confidence:  confidence,
			Rationale:   fmt.Sprintf("authority aligned with org %s (tier %d)", auth.OrgUnitID, d+1),
		})
	}

	precedence := make(map[string]int, len(graph.Authorities))
	for _, auth := range graph.Authorities {
		precedence[auth.ID] = auth.PrecedenceOrder
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		pi, pj := precedence[out[i].AuthorityID], precedence[out[j].AuthorityID]
		if pi != pj {
			return pi < pj
		}
		return out[i].AuthorityID < out[j].AuthorityID
	})

	// Thin org charts are common early on. Point at the org chief rather
	// than return nothing.
	if len(out) == 0 {
		r.logger.Debug("no authority in scope, defaulting to org chief", "task_id", task.ID, "org_unit_id", task.OrgUnitID)
		out = append(out, AuthorityRecommendation{
			AuthorityID: "DEFAULT",
			Title:       "Org Chief",
			OrgUnitID:   task.OrgUnitID,
			Grade:       "GS-15",
			Confidence:  0.4,
			Rationale:   "no authority records available; defaulting to org chief",
		})
	}
	if len(out) > r.maxSuggestions {
		out = out[:r.maxSuggestions]
	}

	return out, nil
}

// jaccard computes set overlap over lower-cased tags. Empty sets score 0.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, s := range a {
		setA[strings.ToLower(s)] = true
	}
	setB := make(map[string]bool, len(b))
	for _, s := range b {
		setB[strings.ToLower(s)] = true
	}
	inter, union := 0, len(setA)
	for s := range setB {
		if setA[s] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}
