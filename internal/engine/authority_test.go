package engine

import (
	"reflect"
	"testing"
	"time"

	"github.com/acarin/missionmind/internal/store"
)

func testAuthorities() []*store.Authority {
	return []*store.Authority{
		{ID: "AUTH_HQ", Title: "Chief of Staff", OrgUnitID: "HQ", Grade: "O-6", PolicyAreas: []string{"readiness", "personnel"}, MaxClassification: store.ClassTopSecret, PrecedenceOrder: 10},
		{ID: "AUTH_G3", Title: "G-3 Director", OrgUnitID: "OPS_G3", Grade: "O-5", PolicyAreas: []string{"readiness", "training"}, MaxClassification: store.ClassSecret, PrecedenceOrder: 30},
		{ID: "AUTH_G2", Title: "G-2 Director", OrgUnitID: "INTEL_G2", Grade: "O-5", PolicyAreas: []string{"intel"}, MaxClassification: store.ClassTopSecret, PrecedenceOrder: 30},
	}
}

func TestRecommendPrefersLowestAppropriate(t *testing.T) {
	r := NewAuthorityRecommender(discardLogger())

	task := baseTask(7) // org OPS_G3
	task.Tags = []string{"readiness"}

	recs, err := r.Recommend(task, &AuthorityGraph{Tree: testTree(), Authorities: testAuthorities()})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected HQ and G-3 authorities, got %+v", recs)
	}
	// The G-3 director is the lowest appropriate authority: same policy
	// overlap, closer org scope.
	if recs[0].AuthorityID != "AUTH_G3" {
		t.Errorf("expected AUTH_G3 first, got %s", recs[0].AuthorityID)
	}
	if recs[0].Confidence <= recs[1].Confidence {
		t.Errorf("closest in-scope authority should have higher confidence: %+v", recs)
	}
}

func TestRecommendScopeFilter(t *testing.T) {
	r := NewAuthorityRecommender(discardLogger())

	task := baseTask(7) // org OPS_G3
	recs, err := r.Recommend(task, &AuthorityGraph{Tree: testTree(), Authorities: testAuthorities()})
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range recs {
		if rec.OrgUnitID == "INTEL_G2" {
			t.Errorf("INTEL_G2 is not an ancestor of OPS_G3; should be out of scope: %+v", rec)
		}
	}
}

func TestRecommendClassificationCeiling(t *testing.T) {
	r := NewAuthorityRecommender(discardLogger())

	task := baseTask(7)
	task.Classification = store.ClassTopSecret

	recs, err := r.Recommend(task, &AuthorityGraph{Tree: testTree(), Authorities: testAuthorities()})
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range recs {
		if rec.AuthorityID == "AUTH_G3" {
			t.Error("AUTH_G3 tops out at SECRET and cannot approve a TS task")
		}
	}
}

func TestRecommendStableOrdering(t *testing.T) {
	r := NewAuthorityRecommender(discardLogger())

	task := baseTask(7)
	task.Tags = []string{"readiness", "training"}
	graph := &AuthorityGraph{Tree: testTree(), Authorities: testAuthorities()}

	first, err := r.Recommend(task, graph)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Recommend(task, graph)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("ordering unstable across runs:\n%+v\n%+v", first, again)
		}
	}
}

func TestRecommendPrecedenceTieBreak(t *testing.T) {
	r := NewAuthorityRecommender(discardLogger())

	task := baseTask(7)
	task.OrgUnitID = "HQ"
	authorities := []*store.Authority{
		{ID: "AUTH_B", Title: "Deputy", OrgUnitID: "HQ", MaxClassification: store.ClassSecret, PrecedenceOrder: 50},
		{ID: "AUTH_A", Title: "Chief", OrgUnitID: "HQ", MaxClassification: store.ClassSecret, PrecedenceOrder: 20},
	}

	recs, err := r.Recommend(task, &AuthorityGraph{Tree: testTree(), Authorities: authorities})
	if err != nil {
		t.Fatal(err)
	}
	// Equal confidence (same scope, no tags): ascending precedence wins.
	if len(recs) != 2 || recs[0].AuthorityID != "AUTH_A" {
		t.Errorf("expected AUTH_A first by precedence, got %+v", recs)
	}
}

func TestRecommendCapsSuggestions(t *testing.T) {
	r := NewAuthorityRecommender(discardLogger())

	authorities := append(testAuthorities(),
		&store.Authority{ID: "AUTH_HQ2", Title: "Deputy Chief of Staff", OrgUnitID: "HQ", Grade: "O-6", MaxClassification: store.ClassTopSecret, PrecedenceOrder: 20},
		&store.Authority{ID: "AUTH_HQ3", Title: "Secretary of the General Staff", OrgUnitID: "HQ", Grade: "O-5", MaxClassification: store.ClassTopSecret, PrecedenceOrder: 40},
	)

	task := baseTask(7) // org OPS_G3: HQ chain puts four authorities in scope
	recs, err := r.Recommend(task, &AuthorityGraph{Tree: testTree(), Authorities: authorities})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected suggestions capped at 3, got %d", len(recs))
	}
}

func TestRecommendOrgChiefFallback(t *testing.T) {
	r := NewAuthorityRecommender(discardLogger())

	task := baseTask(7)
	recs, err := r.Recommend(task, &AuthorityGraph{Tree: testTree(), Authorities: nil})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected the org chief placeholder, got %+v", recs)
	}
	if recs[0].AuthorityID != "DEFAULT" || recs[0].Title != "Org Chief" {
		t.Errorf("unexpected fallback suggestion: %+v", recs[0])
	}
	if recs[0].OrgUnitID != task.OrgUnitID {
		t.Errorf("fallback should target the task's org, got %s", recs[0].OrgUnitID)
	}
}

func TestRecommendCyclicGraphFailsFast(t *testing.T) {
	r := NewAuthorityRecommender(discardLogger())

	task := baseTask(7)
	task.OrgUnitID = "A"
	cyclic := NewOrgTree([]*store.OrgUnit{
		{ID: "A", ParentID: "B"},
		{ID: "B", ParentID: "C"},
		{ID: "C", ParentID: "A"},
	})

	done := make(chan struct{})
	var err error
	go func() {
		_, err = r.Recommend(task, &AuthorityGraph{Tree: cyclic, Authorities: testAuthorities()})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recommendation did not terminate on a cyclic graph")
	}
	if _, ok := err.(*StructuralError); !ok {
		t.Errorf("expected StructuralError, got %v", err)
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"x", "y"}, []string{"x", "y"}, 1.0},
		{"disjoint", []string{"x"}, []string{"y"}, 0.0},
		{"half", []string{"x", "y"}, []string{"y", "z"}, 1.0 / 3.0},
		{"empty", nil, []string{"x"}, 0.0},
		{"case insensitive", []string{"Intel"}, []string{"intel"}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jaccard(tt.a, tt.b); got != tt.want {
				t.Errorf("jaccard(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
