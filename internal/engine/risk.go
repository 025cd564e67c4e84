package engine

import (
	"log/slog"
	"sort"
	"time"

	"github.com/acarin/missionmind/internal/store"
)

// RiskWeights defines the blend of lateness signals. Weights should sum to
// roughly 1.0 so late probability stays interpretable, but the result is
// clamped regardless.
type RiskWeights struct {
	Schedule     float64
	Dependencies float64
	OwnerHistory float64
	Approver     float64
}

func DefaultRiskWeights() RiskWeights {
	return RiskWeights{
		Schedule:     0.45,
		Dependencies: 0.20,
		OwnerHistory: 0.20,
		Approver:     0.15,
	}
}

// RiskThresholds are the band boundaries. Amber is inclusive on the lower
// bound, red on its own lower bound.
type RiskThresholds struct {
	Amber float64
	Red   float64
}

func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{Amber: 0.25, Red: 0.6}
}

// Band maps a late probability to its discrete risk level. Boundaries are
// exact: p == Amber is amber, p == Red is red.
func (t RiskThresholds) Band(p float64) store.RiskLevel {
	switch {
	case p < t.Amber:
		return store.RiskGreen
	case p < t.Red:
		return store.RiskAmber
	default:
		return store.RiskRed
	}
}

// Calendar marks non-working days. A nil Calendar treats every day as a
// working day.
type Calendar struct {
	Holidays map[string]bool // keyed by YYYY-MM-DD
}

// WorkingDays counts weekdays between from and to that are not holidays.
// Returns 0 when to is not after from.
func (c *Calendar) WorkingDays(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	days := 0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if c != nil && c.Holidays[d.Format("2006-01-02")] {
			continue
		}
		days++
	}
	return days
}

// RiskContext carries the snapshot inputs beyond the task and suspense rows.
type RiskContext struct {
	Now time.Time

	// UnresolvedDependencies is the count of blocking tasks still open.
	UnresolvedDependencies int

	// OwnerOnTimeRate is the assigned owner's historical on-time rate in
	// [0,1]. Nil means no history; a neutral default is used.
	OwnerOnTimeRate *float64

	// ApproverUnavailable is set when the approving authority is known to be
	// out of office for the remaining window.
	ApproverUnavailable bool

	Calendar *Calendar
}

// RiskAssessment is the derived lateness estimate for one open suspense.
type RiskAssessment struct {
	TaskID          string             `json:"task_id"`
	RiskLevel       store.RiskLevel    `json:"risk_level"`
	LateProbability float64            `json:"late_probability"`
	Drivers         []store.RiskDriver `json:"drivers"`
}

// RiskAssessor estimates lateness probability for open suspenses. Stateless
// beyond configuration; safe for concurrent use.
type RiskAssessor struct {
	weights     RiskWeights
	thresholds  RiskThresholds
	driverShare float64
	typicalDays map[store.Classification]float64
	logger      *slog.Logger
}

// driverShare is the fraction of total probability a factor must contribute
// before it is reported as a driver.
func NewRiskAssessor(weights RiskWeights, thresholds RiskThresholds, driverShare float64, logger *slog.Logger) *RiskAssessor {
	return &RiskAssessor{
		weights:     weights,
		thresholds:  thresholds,
		driverShare: driverShare,
		typicalDays: map[store.Classification]float64{
			store.ClassUnclassified: 5,
			store.ClassConfidential: 7,
			store.ClassSecret:       10,
			store.ClassTopSecret:    14,
		},
		logger: logger,
	}
}

// Assess derives the late probability and risk band for one task. Idempotent:
// an unchanged snapshot always produces an identical assessment.
func (a *RiskAssessor) Assess(task *store.Task, suspense *store.Suspense, rc *RiskContext) (RiskAssessment, error) {
	if suspense == nil || suspense.SuspenseDate.IsZero() {
		return RiskAssessment{}, invalidInput("suspense_date", "required")
	}
	if rc == nil || rc.Now.IsZero() {
		return RiskAssessment{}, invalidInput("now", "reference time required")
	}
	if !task.Classification.Valid() {
		return RiskAssessment{}, invalidInput("classification", "unknown level "+string(task.Classification))
	}

	type contribution struct {
		code  string
		label string
		value float64
	}

	contributions := []contribution{
		{"SUSPENSE_WINDOW", "suspense window nearly exhausted", a.weights.Schedule * a.scheduleRisk(task, suspense, rc)},
		{"DEPENDENCIES", "high dependency count", a.weights.Dependencies * dependencyRisk(rc.UnresolvedDependencies)},
		{"OWNER_HISTORY", "owner late-delivery history", a.weights.OwnerHistory * ownerRisk(rc.OwnerOnTimeRate)},
		{"APPROVER", "approver unavailable", a.weights.Approver * approverRisk(rc.ApproverUnavailable)},
	}

	var total float64
	for _, c := range contributions {
		total += c.value
	}
	p := clamp(total, 0, 1)

	sort.SliceStable(contributions, func(i, j int) bool {
		return contributions[i].value > contributions[j].value
	})

	var drivers []store.RiskDriver
	for _, c := range contributions {
		if total > 0 && c.value/total > a.driverShare {
			drivers = append(drivers, store.RiskDriver{
				Code:         c.code,
				Label:        c.label,
				Contribution: c.value,
			})
		}
	}

	return RiskAssessment{
		TaskID:          task.ID,
		RiskLevel:       a.thresholds.Band(p),
		LateProbability: p,
		Drivers:         drivers,
	}, nil
}

// scheduleRisk compares working days remaining against the typical completion
// time for the task's classification. Saturates at 1 once the window closes.
func (a *RiskAssessor) scheduleRisk(task *store.Task, suspense *store.Suspense, rc *RiskContext) float64 {
	typical := a.typicalDays[task.Classification]
	if typical <= 0 {
		typical = 5
	}
	remaining := float64(rc.Calendar.WorkingDays(rc.Now, suspense.SuspenseDate))
	return clamp(1-remaining/typical, 0, 1)
}

// dependencyRisk saturates at five unresolved blockers.
func dependencyRisk(unresolved int) float64 {
	return clamp(float64(unresolved)/5, 0, 1)
}

func ownerRisk(onTimeRate *float64) float64 {
	rate := 0.5
	if onTimeRate != nil {
		rate = clamp(*onTimeRate, 0, 1)
	}
	return 1 - rate
}

func approverRisk(unavailable bool) float64 {
	if unavailable {
		return 1
	}
	return 0
}
