package bus

import (
	"time"

	"github.com/acarin/missionmind/internal/store"
)

type TaskScoredEvent struct {
	TaskID        string  `json:"task_id"`
	PriorityScore float64 `json:"priority_score"`
}

type TaskRoutedEvent struct {
	TaskID         string `json:"task_id"`
	AssigneeUserID string `json:"assignee_user_id,omitempty"`
	AssigneeOrgID  string `json:"assignee_org_id,omitempty"`
	Fallback       bool   `json:"fallback"`
}

type RiskChangedEvent struct {
	TaskID          string             `json:"task_id"`
	RiskLevel       store.RiskLevel    `json:"risk_level"`
	PreviousLevel   store.RiskLevel    `json:"previous_level"`
	LateProbability float64            `json:"late_probability"`
	Drivers         []store.RiskDriver `json:"drivers,omitempty"`
}

type SweepStatsEvent struct {
	Assessed  int       `json:"assessed"`
	Changed   int       `json:"changed"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}
