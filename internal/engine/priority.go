package engine

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/acarin/missionmind/internal/store"
)

// PriorityWeights defines the relative importance of each priority factor.
// The sum is unconstrained; the final score is clamped to [0,1].
type PriorityWeights struct {
	Urgency         float64
	Originator      float64
	Keyword         float64
	Escalation      float64
	WorkloadPenalty float64
	ExpediteBonus   float64
}

// DefaultPriorityWeights returns the default scoring policy. These are not
// fitted to data; deployments tune them through configuration.
func DefaultPriorityWeights() PriorityWeights {
	return PriorityWeights{
		Urgency:         0.35,
		Originator:      0.25,
		Keyword:         0.15,
		Escalation:      0.10,
		WorkloadPenalty: 0.10,
		ExpediteBonus:   0.15,
	}
}

// Validate checks that no weight is negative.
func (w PriorityWeights) Validate() error {
	for _, v := range []float64{w.Urgency, w.Originator, w.Keyword, w.Escalation, w.WorkloadPenalty, w.ExpediteBonus} {
		if v < 0 {
			return invalidInput("weights", "negative priority weight")
		}
	}
	return nil
}

// DefaultOriginatorWeights maps originator echelon markers to weights.
// Matching is by substring on the upper-cased originator string.
func DefaultOriginatorWeights() map[string]float64 {
	return map[string]float64{
		"HQDA": 1.0,
		"ACOM": 0.85,
		"ASCC": 0.8,
		"DRU":  0.75,
	}
}

// DefaultMissionKeywords lists the terms that mark a task as mission-aligned
// for the keyword boost.
func DefaultMissionKeywords() []string {
	return []string{
		"readiness", "training", "intel", "logistics",
		"personnel", "legal", "chaplain", "communications",
	}
}

const defaultOriginatorWeight = 0.5

// PriorityContext carries the per-call inputs the task record itself does not
// hold. Now is required so that identical snapshots always score identically.
type PriorityContext struct {
	Now time.Time

	// EscalationRate is the historical escalation rate of the originating org
	// unit, in [0,1]. Zero means no history.
	EscalationRate float64

	// WorkloadRatio is the saturation of the candidate pool, in [0,1].
	WorkloadRatio float64
}

// PriorityResult is the scoring output, with a per-factor breakdown for the
// explain surface.
type PriorityResult struct {
	Score   float64        `json:"priority_score"`
	Factors []FactorResult `json:"factors"`
}

// PriorityScorer converts task urgency signals into a bounded score. Pure:
// the only state it holds is configuration.
type PriorityScorer struct {
	weights           PriorityWeights
	horizonDays       float64
	originatorWeights map[string]float64
	missionKeywords   []string
	logger            *slog.Logger
}

func NewPriorityScorer(weights PriorityWeights, horizonDays int, logger *slog.Logger) *PriorityScorer {
	return &PriorityScorer{
		weights:           weights,
		horizonDays:       float64(horizonDays),
		originatorWeights: DefaultOriginatorWeights(),
		missionKeywords:   DefaultMissionKeywords(),
		logger:            logger,
	}
}

// Score computes the priority score for one task. Total on well-formed input;
// a zero suspense date or Now is an InvalidInputError.
func (s *PriorityScorer) Score(task *store.Task, pc *PriorityContext) (PriorityResult, error) {
	if task.SuspenseDate.IsZero() {
		return PriorityResult{}, invalidInput("suspense_date", "required")
	}
	if pc == nil || pc.Now.IsZero() {
		return PriorityResult{}, invalidInput("now", "reference time required")
	}
	if !task.Classification.Valid() {
		return PriorityResult{}, invalidInput("classification", "unknown level "+string(task.Classification))
	}

	factors := []FactorResult{
		s.urgencyFactor(task, pc.Now),
		s.originatorFactor(task.Originator),
		s.keywordFactor(task),
		s.escalationFactor(pc.EscalationRate),
		s.workloadFactor(pc.WorkloadRatio),
		s.expediteFactor(task.ExpediteFlag),
	}

	weights := []float64{
		s.weights.Urgency,
		s.weights.Originator,
		s.weights.Keyword,
		s.weights.Escalation,
		-s.weights.WorkloadPenalty,
		s.weights.ExpediteBonus,
	}

	var total float64
	for i := range factors {
		factors[i].Weight = weights[i]
		factors[i].Weighted = factors[i].Score * weights[i]
		total += factors[i].Weighted
	}

	return PriorityResult{
		Score:   clamp(total, 0, 1),
		Factors: factors,
	}, nil
}

// urgencyFactor saturates at 1 once the suspense date has passed.
func (s *PriorityScorer) urgencyFactor(task *store.Task, now time.Time) FactorResult {
	suspense := task.SuspenseDate
	reason := "external suspense"
	if task.InternalSuspenseDate != nil && task.InternalSuspenseDate.Before(suspense) {
		suspense = *task.InternalSuspenseDate
		reason = "internal suspense"
	}
	days := suspense.Sub(now).Hours() / 24
	u := clamp(1-days/s.horizonDays, 0, 1)
	if days <= 0 {
		reason = "suspense passed"
	}
	return FactorResult{Name: "urgency", Score: u, Available: true, Reason: reason}
}

func (s *PriorityScorer) originatorFactor(originator string) FactorResult {
	upper := strings.ToUpper(originator)

	// Deterministic lookup order: most specific (longest) marker first.
	markers := make([]string, 0, len(s.originatorWeights))
	for m := range s.originatorWeights {
		markers = append(markers, m)
	}
	sort.Slice(markers, func(i, j int) bool {
		if len(markers[i]) != len(markers[j]) {
			return len(markers[i]) > len(markers[j])
		}
		return markers[i] < markers[j]
	})

	for _, m := range markers {
		if strings.Contains(upper, m) {
			return FactorResult{Name: "originator", Score: s.originatorWeights[m], Available: true, Reason: "matched " + m}
		}
	}
	return FactorResult{Name: "originator", Score: defaultOriginatorWeight, Available: false, Reason: "no originator class match"}
}

func (s *PriorityScorer) keywordFactor(task *store.Task) FactorResult {
	text := strings.ToLower(strings.Join(append(append([]string{}, task.Tags...), task.Title, task.Description), " "))
	var matched []string
	for _, kw := range s.missionKeywords {
		if strings.Contains(text, kw) {
			matched = append(matched, kw)
		}
	}
	if len(matched) == 0 {
		return FactorResult{Name: "keyword", Score: 0, Available: true, Reason: "no mission keywords"}
	}
	return FactorResult{Name: "keyword", Score: 1, Available: true, Reason: "matched: " + strings.Join(matched, ", ")}
}

func (s *PriorityScorer) escalationFactor(rate float64) FactorResult {
	return FactorResult{Name: "escalation", Score: clamp(rate, 0, 1), Available: rate > 0, Reason: "org escalation history"}
}

func (s *PriorityScorer) workloadFactor(ratio float64) FactorResult {
	return FactorResult{Name: "workload", Score: clamp(ratio, 0, 1), Available: true, Reason: "candidate pool saturation"}
}

func (s *PriorityScorer) expediteFactor(expedite bool) FactorResult {
	if expedite {
		return FactorResult{Name: "expedite", Score: 1, Available: true, Reason: "expedite flag set"}
	}
	return FactorResult{Name: "expedite", Score: 0, Available: true, Reason: "not expedited"}
}
