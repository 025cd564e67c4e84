package engine

import (
	"testing"

	"github.com/acarin/missionmind/internal/store"
)

func TestCheckShortDescription(t *testing.T) {
	q := NewQualityChecker(30)

	task := baseTask(7)
	task.Description = "do it"

	result := q.Check(task)
	if result.Passed {
		t.Error("a 5-char description must fail the check")
	}
	found := false
	for _, i := range result.Issues {
		if i.Code == "DESC_LEN" {
			found = true
			if i.Severity.rank() < SeverityMedium.rank() {
				t.Errorf("DESC_LEN should be at least medium, got %s", i.Severity)
			}
		}
	}
	if !found {
		t.Errorf("expected DESC_LEN issue, got %+v", result.Issues)
	}
}

func TestCheckPortionMarkings(t *testing.T) {
	q := NewQualityChecker(10)

	t.Run("classified without portions", func(t *testing.T) {
		task := baseTask(7)
		task.Classification = store.ClassSecret

		result := q.Check(task)
		if result.Passed {
			t.Error("classified content without portion markings must fail")
		}
		if result.Issues[0].Code != "PORTION_MARKING" {
			t.Errorf("expected PORTION_MARKING, got %+v", result.Issues)
		}
	})

	t.Run("classified with portions", func(t *testing.T) {
		task := baseTask(7)
		task.Classification = store.ClassSecret
		task.ClassificationPortions = map[string]string{"para1": "S", "para2": "U"}

		result := q.Check(task)
		for _, i := range result.Issues {
			if i.Code == "PORTION_MARKING" {
				t.Errorf("unexpected portion issue: %+v", i)
			}
		}
	})

	t.Run("unclassified needs none", func(t *testing.T) {
		result := q.Check(baseTask(7))
		for _, i := range result.Issues {
			if i.Code == "PORTION_MARKING" {
				t.Errorf("unclassified task should not need portions: %+v", i)
			}
		}
	})
}

func TestCheckRecordSeries(t *testing.T) {
	q := NewQualityChecker(10)

	task := baseTask(7)
	task.CUIMarked = true // retention applies

	result := q.Check(task)
	found := false
	for _, i := range result.Issues {
		if i.Code == "ARIMS_TAG" {
			found = true
			if i.Severity != SeverityLow {
				t.Errorf("ARIMS_TAG is advisory, got %s", i.Severity)
			}
		}
	}
	if !found {
		t.Errorf("expected ARIMS_TAG issue, got %+v", result.Issues)
	}
	// Low severity alone must not fail the check.
	if !result.Passed {
		t.Errorf("low-severity issues should not fail: %+v", result.Issues)
	}

	task.RecordSeriesID = "400-series"
	result = q.Check(task)
	for _, i := range result.Issues {
		if i.Code == "ARIMS_TAG" {
			t.Errorf("record series present, issue should clear: %+v", i)
		}
	}
}

func TestCheckAmbiguousPhrasing(t *testing.T) {
	q := NewQualityChecker(10)

	task := baseTask(7)
	task.Description = "Provide the slides ASAP and coordinate the rest etc."

	result := q.Check(task)
	count := 0
	for _, i := range result.Issues {
		if i.Code == "AMBIGUOUS_PHRASE" {
			count++
			if i.Severity != SeverityLow {
				t.Errorf("phrasing issues are low severity, got %s", i.Severity)
			}
		}
	}
	if count != 2 {
		t.Errorf("expected 2 phrasing issues (asap, etc.), got %d: %+v", count, result.Issues)
	}
}

func TestCheckAllRulesEvaluated(t *testing.T) {
	q := NewQualityChecker(30)

	task := baseTask(7)
	task.Description = "asap" // short AND ambiguous
	task.Classification = store.ClassConfidential
	task.CUIMarked = true

	result := q.Check(task)
	codes := map[string]bool{}
	for _, i := range result.Issues {
		codes[i.Code] = true
	}
	for _, want := range []string{"DESC_LEN", "PORTION_MARKING", "ARIMS_TAG", "AMBIGUOUS_PHRASE"} {
		if !codes[want] {
			t.Errorf("rule %s did not fire; rules must not short-circuit: %+v", want, result.Issues)
		}
	}
	if result.Passed {
		t.Error("expected failed check")
	}
}

func TestCheckCleanTaskPasses(t *testing.T) {
	q := NewQualityChecker(30)

	task := baseTask(7)
	task.Description = "Prepare the quarterly readiness summary with supporting annexes."
	task.RecordSeriesID = "400-series"

	result := q.Check(task)
	if !result.Passed {
		t.Errorf("clean task should pass, got %+v", result.Issues)
	}
}
