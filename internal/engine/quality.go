package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/acarin/missionmind/internal/store"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	default:
		return -1
	}
}

type QualityIssue struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

type QualityCheckResult struct {
	TaskID string         `json:"task_id"`
	Issues []QualityIssue `json:"issues"`
	Passed bool           `json:"passed"`
}

// ambiguousPhrases are phrasings Army 25-50 flags as vague or non-actionable
// in formal taskers.
var ambiguousPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\basap\b`),
	regexp.MustCompile(`(?i)\bas soon as possible\b`),
	regexp.MustCompile(`(?i)\bat your earliest convenience\b`),
	regexp.MustCompile(`(?i)\betc\.`),
	regexp.MustCompile(`(?i)\band/or\b`),
}

// QualityChecker lints task content before staffing. Advisory only: callers
// decide what to do with the issues.
type QualityChecker struct {
	minDescriptionLen int
}

func NewQualityChecker(minDescriptionLen int) *QualityChecker {
	return &QualityChecker{minDescriptionLen: minDescriptionLen}
}

// Check evaluates every rule independently; no rule short-circuits another.
// Passed is true iff no issue reached medium severity.
func (q *QualityChecker) Check(task *store.Task) QualityCheckResult {
	var issues []QualityIssue

	if len(task.Description) < q.minDescriptionLen {
		issues = append(issues, QualityIssue{
			Code:     "DESC_LEN",
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("description is brief (%d chars); Army 25-50 recommends more context", len(task.Description)),
		})
	}

	if task.Classification.Rank() > store.ClassUnclassified.Rank() && len(task.ClassificationPortions) == 0 {
		issues = append(issues, QualityIssue{
			Code:     "PORTION_MARKING",
			Severity: SeverityHigh,
			Message:  "content classified " + string(task.Classification) + " but portion markings are missing",
		})
	}

	if task.RecordSeriesID == "" && retentionApplies(task) {
		issues = append(issues, QualityIssue{
			Code:     "ARIMS_TAG",
			Severity: SeverityLow,
			Message:  "ARIMS record series missing; add before final approval",
		})
	}

	text := task.Title + " " + task.Description
	for _, re := range ambiguousPhrases {
		if m := re.FindString(text); m != "" {
			issues = append(issues, QualityIssue{
				Code:     "AMBIGUOUS_PHRASE",
				Severity: SeverityLow,
				Message:  "ambiguous phrasing: " + strings.TrimSpace(m),
			})
		}
	}

	passed := true
	for _, i := range issues {
		if i.Severity.rank() >= SeverityMedium.rank() {
			passed = false
			break
		}
	}

	return QualityCheckResult{TaskID: task.ID, Issues: issues, Passed: passed}
}

// retentionApplies is a conservative heuristic: a disposition date, CUI
// marking, or signature-bound workflow state all imply the record is retained
// under ARIMS.
func retentionApplies(task *store.Task) bool {
	return task.DispositionDate != nil || task.CUIMarked || task.Status == store.StatusPendingSignature
}
