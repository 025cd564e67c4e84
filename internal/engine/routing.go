package engine

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/acarin/missionmind/internal/store"
)

// DefaultKeywordSections maps mission keywords to the staff section org code
// that owns the subject area.
func DefaultKeywordSections() map[string]string {
	return map[string]string{
		"readiness":      "OPS_G3",
		"training":       "OPS_G3",
		"intel":          "INTEL_G2",
		"logistics":      "LOG_G4",
		"personnel":      "PERS_G1",
		"legal":          "JA",
		"chaplain":       "CHAP",
		"communications": "G6_CIO",
	}
}

// CandidatePool is the immutable staffing snapshot routing operates on.
type CandidatePool struct {
	Users        []*store.User
	Workload     map[string]int       // user ID -> open assignment count
	LastAssigned map[string]time.Time // user ID -> most recent assignment
	Tree         *OrgTree

	// Now drives the out-of-office check. Zero skips it, leaving only the
	// availability flag.
	Now time.Time
}

type RankedCandidate struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Workload     int    `json:"workload"`
	SkillOverlap int    `json:"skill_overlap"`
	Rationale    string `json:"rationale"`
}

// RouteDecision is a pure recommendation; the caller persists the resulting
// assignment. Fallback is set when no individual was eligible and the task
// routes to the org unit itself.
type RouteDecision struct {
	TaskID     string            `json:"task_id"`
	Candidates []RankedCandidate `json:"candidates,omitempty"`
	Fallback   bool              `json:"fallback"`
	OrgUnitID  string            `json:"org_unit_id,omitempty"`
	Rationale  string            `json:"rationale"`
}

// Assignment materializes the decision into a pending assignment record:
// the top candidate as action officer, or a role-less org assignment on
// fallback.
func (d RouteDecision) Assignment() *store.Assignment {
	a := &store.Assignment{
		TaskID:    d.TaskID,
		State:     store.AssignmentPending,
		Rationale: d.Rationale,
	}
	if d.Fallback {
		a.AssigneeOrgID = d.OrgUnitID
		return a
	}
	a.AssigneeUserID = d.Candidates[0].UserID
	a.Role = store.RoleActionOfficer
	return a
}

// RoutingEngine selects or ranks assignees for a task.
type RoutingEngine struct {
	keywordSections map[string]string
	logger          *slog.Logger
}

func NewRoutingEngine(logger *slog.Logger) *RoutingEngine {
	return &RoutingEngine{
		keywordSections: DefaultKeywordSections(),
		logger:          logger,
	}
}

// Route filters the pool to eligible candidates and ranks them. Eligibility:
// membership in the task's org subtree, clearance at or above the task
// classification, availability, and — when the task carries tags — at least
// one shared skill tag. An empty eligible set is not an error; the decision
// falls back to the org unit itself.
func (e *RoutingEngine) Route(task *store.Task, pool *CandidatePool) (RouteDecision, error) {
	if !task.Classification.Valid() {
		return RouteDecision{}, invalidInput("classification", "unknown level "+string(task.Classification))
	}
	if pool == nil || pool.Tree == nil {
		return RouteDecision{}, invalidInput("candidate_pool", "org tree required")
	}

	subtree, err := pool.Tree.SubtreeIDs(task.OrgUnitID)
	if err != nil {
		return RouteDecision{}, err
	}
	inSubtree := make(map[string]bool, len(subtree))
	for _, id := range subtree {
		inSubtree[id] = true
	}

	var eligible []RankedCandidate
	for _, u := range pool.Users {
		if !e.eligible(task, u, inSubtree, pool.Now) {
			continue
		}
		eligible = append(eligible, RankedCandidate{
			UserID:       u.ID,
			Name:         u.Name,
			Workload:     pool.Workload[u.ID],
			SkillOverlap: overlapCount(u.Skills, task.Tags),
			Rationale:    "eligible in " + u.OrgUnitID,
		})
	}

	if len(eligible) == 0 {
		return RouteDecision{
			TaskID:    task.ID,
			Fallback:  true,
			OrgUnitID: task.OrgUnitID,
			Rationale: "no eligible individual; assigned to org unit",
		}, nil
	}

	// Stable rank: least loaded first, then best skill fit, then least
	// recently assigned (never assigned wins), then ID for determinism.
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Workload != b.Workload {
			return a.Workload < b.Workload
		}
		if a.SkillOverlap != b.SkillOverlap {
			return a.SkillOverlap > b.SkillOverlap
		}
		la, lb := pool.LastAssigned[a.UserID], pool.LastAssigned[b.UserID]
		if !la.Equal(lb) {
			return la.Before(lb)
		}
		return a.UserID < b.UserID
	})

	return RouteDecision{
		TaskID:     task.ID,
		Candidates: eligible,
		Rationale:  "ranked by workload, skill fit, rotation",
	}, nil
}

func (e *RoutingEngine) eligible(task *store.Task, u *store.User, inSubtree map[string]bool, now time.Time) bool {
	if !inSubtree[u.OrgUnitID] {
		return false
	}
	if u.ClearanceLevel.Rank() < task.Classification.Rank() {
		return false
	}
	if !u.Available {
		return false
	}
	if !now.IsZero() && u.OutOfOfficeUntil != nil && u.OutOfOfficeUntil.After(now) {
		return false
	}
	if len(task.Tags) > 0 && overlapCount(u.Skills, task.Tags) == 0 {
		return false
	}
	return true
}

// SelectDefault returns the task's own org unit for the org-level fallback.
func (e *RoutingEngine) SelectDefault(task *store.Task, tree *OrgTree) (*store.OrgUnit, error) {
	unit := tree.Unit(task.OrgUnitID)
	if unit == nil {
		return nil, invalidInput("org_unit_id", "unknown org unit "+task.OrgUnitID)
	}
	return unit, nil
}

// RecommendOrgUnit suggests the staff section responsible for the task's
// subject area by keyword, falling back to the originating org unit.
func (e *RoutingEngine) RecommendOrgUnit(task *store.Task, tree *OrgTree) (string, string) {
	text := strings.ToLower(strings.Join(append(append([]string{}, task.Tags...), task.Title, task.Description), " "))

	keywords := make([]string, 0, len(e.keywordSections))
	for kw := range e.keywordSections {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)

	for _, kw := range keywords {
		if !strings.Contains(text, kw) {
			continue
		}
		sectionID := e.keywordSections[kw]
		if unit := tree.Unit(sectionID); unit != nil {
			return unit.ID, "matched keyword '" + kw + "' with org " + unit.Name
		}
	}
	if unit := tree.Unit(task.OrgUnitID); unit != nil {
		return unit.ID, "defaulted to originating org"
	}
	return task.OrgUnitID, "no org metadata available; used provided org_unit_id"
}

func overlapCount(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[strings.ToLower(s)] = true
	}
	n := 0
	for _, s := range b {
		if set[strings.ToLower(s)] {
			n++
		}
	}
	return n
}
