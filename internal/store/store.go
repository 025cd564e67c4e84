package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Classification is a security classification level per DoDM 5200.01.
type Classification string

const (
	ClassUnclassified Classification = "U"
	ClassConfidential Classification = "C"
	ClassSecret       Classification = "S"
	ClassTopSecret    Classification = "TS"
)

// Rank returns the ordinal position of a classification level, with
// UNCLASSIFIED lowest. Unknown levels rank below UNCLASSIFIED so they never
// satisfy a clearance check.
func (c Classification) Rank() int {
	switch c {
	case ClassUnclassified:
		return 0
	case ClassConfidential:
		return 1
	case ClassSecret:
		return 2
	case ClassTopSecret:
		return 3
	default:
		return -1
	}
}

// Valid reports whether c is one of the known classification levels.
func (c Classification) Valid() bool { return c.Rank() >= 0 }

type TaskStatus string

const (
	StatusDraft            TaskStatus = "draft"
	StatusOpen             TaskStatus = "open"
	StatusAssigned         TaskStatus = "assigned"
	StatusInWork           TaskStatus = "in_work"
	StatusCoordination     TaskStatus = "coord"
	StatusPendingSignature TaskStatus = "pending_signature"
	StatusClosed           TaskStatus = "closed"
	StatusOverdue          TaskStatus = "overdue"
	StatusCancelled        TaskStatus = "cancelled"
)

// statusSuccessors encodes the task workflow DAG. Overdue and cancelled are
// reachable from every non-terminal state and are handled in CanTransition.
var statusSuccessors = map[TaskStatus][]TaskStatus{
	StatusDraft:            {StatusOpen},
	StatusOpen:             {StatusAssigned},
	StatusAssigned:         {StatusInWork},
	StatusInWork:           {StatusCoordination, StatusPendingSignature},
	StatusCoordination:     {StatusClosed},
	StatusPendingSignature: {StatusClosed},
}

// Terminal reports whether a task status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// CanTransition reports whether the workflow permits moving from s to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusOverdue || next == StatusCancelled {
		return true
	}
	for _, succ := range statusSuccessors[s] {
		if succ == next {
			return true
		}
	}
	return false
}

// Task is a tasker record. JSON field names follow the existing schema so
// downstream consumers keep working unchanged.
type Task struct {
	ID            string `json:"id"`
	ControlNumber string `json:"control_number,omitempty"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Originator    string `json:"originator"`
	OrgUnitID     string `json:"org_unit_id"`

	// Classification and CUI
	Classification         Classification    `json:"classification"`
	ClassificationPortions map[string]string `json:"classification_portions,omitempty"`
	CUIMarked              bool              `json:"cui_marked"`
	CUICategories          []string          `json:"cui_categories,omitempty"`

	// Timing and prioritization
	SuspenseDate         time.Time  `json:"suspense_date"`
	InternalSuspenseDate *time.Time `json:"internal_suspense_date,omitempty"`
	PriorityScore        float64    `json:"priority_score"`
	ExpediteFlag         bool       `json:"expedite_flag"`

	Status TaskStatus `json:"status"`

	// Records management
	RecordSeriesID  string     `json:"record_series_id,omitempty"`
	DispositionDate *time.Time `json:"disposition_date,omitempty"`

	Tags []string `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RiskLevel string

const (
	RiskGreen RiskLevel = "green"
	RiskAmber RiskLevel = "amber"
	RiskRed   RiskLevel = "red"
)

// RiskDriver is one contributing factor in a risk assessment, ordered by
// contribution magnitude in Suspense.Drivers.
type RiskDriver struct {
	Code         string  `json:"code"`
	Label        string  `json:"label"`
	Contribution float64 `json:"contribution"`
}

// Suspense tracks the deadline state for a task, one-to-one with Task.
type Suspense struct {
	TaskID          string       `json:"task_id"`
	SuspenseDate    time.Time    `json:"suspense_date"`
	LeadTimeDays    int          `json:"lead_time_days"`
	RiskLevel       RiskLevel    `json:"risk_level"`
	LateProbability float64      `json:"late_probability"`
	Drivers         []RiskDriver `json:"drivers,omitempty"`
	ExtensionCount  int          `json:"extension_count"`

	// UpdatedAt doubles as the optimistic-concurrency token for sweep writes.
	UpdatedAt time.Time `json:"updated_at"`
}

// OrgUnit is one node in the organizational hierarchy. ParentID is empty for
// a root. Tree shape is validated by the engine, never assumed here.
type OrgUnit struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Echelon  string `json:"echelon,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

type User struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	OrgUnitID        string         `json:"org_unit_id"`
	Skills           []string       `json:"skills,omitempty"`
	Available        bool           `json:"is_available"`
	OutOfOfficeUntil *time.Time     `json:"out_of_office_until,omitempty"`
	ClearanceLevel   Classification `json:"clearance_level,omitempty"`
}

// Authority is an approval role scoped to one org unit. Lower PrecedenceOrder
// means higher precedence.
type Authority struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	OrgUnitID         string         `json:"org_unit_id"`
	Grade             string         `json:"grade,omitempty"`
	PolicyAreas       []string       `json:"policy_areas,omitempty"`
	MaxClassification Classification `json:"max_classification"`
	CanDelegate       bool           `json:"can_delegate"`
	PrecedenceOrder   int            `json:"precedence_order"`
}

type AssignmentRole string

const (
	RoleOPR           AssignmentRole = "opr"
	RoleOCR           AssignmentRole = "ocr"
	RoleInfo          AssignmentRole = "info"
	RoleReviewer      AssignmentRole = "reviewer"
	RoleApprover      AssignmentRole = "approver"
	RoleActionOfficer AssignmentRole = "action_officer"
)

type AssignmentState string

const (
	AssignmentPending    AssignmentState = "pending"
	AssignmentAccepted   AssignmentState = "accepted"
	AssignmentInProgress AssignmentState = "in_progress"
	AssignmentCompleted  AssignmentState = "completed"
	AssignmentDeclined   AssignmentState = "declined"
)

// CanTransition reports whether an assignment may move from s to next.
// Declined is reachable only from pending and accepted.
func (s AssignmentState) CanTransition(next AssignmentState) bool {
	switch s {
	case AssignmentPending:
		return next == AssignmentAccepted || next == AssignmentDeclined
	case AssignmentAccepted:
		return next == AssignmentInProgress || next == AssignmentDeclined
	case AssignmentInProgress:
		return next == AssignmentCompleted
	default:
		return false
	}
}

// Assignment links a task to exactly one assignee: a user or an org unit,
// never both. Org-level assignments carry no role when produced by the
// routing fallback.
type Assignment struct {
	ID             uuid.UUID       `json:"id"`
	TaskID         string          `json:"task_id"`
	AssigneeUserID string          `json:"assignee_user_id,omitempty"`
	AssigneeOrgID  string          `json:"assignee_org_id,omitempty"`
	Role           AssignmentRole  `json:"role,omitempty"`
	State          AssignmentState `json:"state"`
	Rationale      string          `json:"rationale,omitempty"`
	AssignedAt     time.Time       `json:"assigned_at"`
}

type TaskFilter struct {
	Status    *TaskStatus
	OrgUnitID string
	Limit     int
	Offset    int
}

// Store is the persistence surface consumed by the API layer and the sweep.
// The evaluators themselves never touch it; snapshots are loaded first and
// passed in.
type Store interface {
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error)
	ListOpenTasks(ctx context.Context) ([]*Task, error)
	UpdateTaskPriority(ctx context.Context, id string, score float64) error

	GetSuspense(ctx context.Context, taskID string) (*Suspense, error)
	// UpdateSuspenseRisk persists a re-derived risk state. The write succeeds
	// only when the stored row's updated_at still equals expectedUpdatedAt;
	// otherwise ErrConflict is returned and the caller retries against the
	// refreshed row.
	UpdateSuspenseRisk(ctx context.Context, taskID string, level RiskLevel, lateProbability float64, drivers []RiskDriver, expectedUpdatedAt time.Time) error

	ListOrgUnits(ctx context.Context) ([]*OrgUnit, error)
	ListUsersByOrgUnits(ctx context.Context, orgUnitIDs []string) ([]*User, error)
	ListAuthorities(ctx context.Context) ([]*Authority, error)

	// WorkloadCounts maps user ID to the number of open assignments.
	WorkloadCounts(ctx context.Context) (map[string]int, error)
	// LastAssignedAt maps user ID to the most recent assignment time, used
	// as the routing round-robin tie-break.
	LastAssignedAt(ctx context.Context) (map[string]time.Time, error)
	CreateAssignment(ctx context.Context, a *Assignment) error

	UnresolvedDependencyCount(ctx context.Context, taskID string) (int, error)
	OwnerOnTimeRate(ctx context.Context, taskID string) (*float64, error)

	Close() error
}
