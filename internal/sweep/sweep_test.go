package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/acarin/missionmind/internal/bus"
	"github.com/acarin/missionmind/internal/config"
	"github.com/acarin/missionmind/internal/engine"
	"github.com/acarin/missionmind/internal/store"
)

var testNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

// fakeStore backs the runner with in-memory rows. Individual methods can be
// overridden per test through the function fields.
type fakeStore struct {
	mu        sync.Mutex
	tasks     map[string]*store.Task
	suspenses map[string]*store.Suspense
	updates   int

	getSuspenseFn func(taskID string) (*store.Suspense, error)
	updateRiskFn  func(taskID string, expectedUpdatedAt time.Time) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:     make(map[string]*store.Task),
		suspenses: make(map[string]*store.Suspense),
	}
}

func (f *fakeStore) addTask(id string, daysOut float64) {
	f.tasks[id] = &store.Task{
		ID:             id,
		Title:          "Staff action " + id,
		Description:    "Prepare quarterly report for command review",
		Originator:     "G-3 OPS",
		OrgUnitID:      "OPS_G3",
		Classification: store.ClassUnclassified,
		Status:         store.StatusOpen,
	}
	f.suspenses[id] = &store.Suspense{
		TaskID:       id,
		SuspenseDate: testNow.Add(time.Duration(daysOut*24) * time.Hour),
		RiskLevel:    store.RiskGreen,
		UpdatedAt:    testNow.Add(-time.Hour),
	}
}

func (f *fakeStore) GetTask(_ context.Context, id string) (*store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id], nil
}

func (f *fakeStore) ListTasks(_ context.Context, _ store.TaskFilter) ([]*store.Task, error) {
	return f.ListOpenTasks(context.Background())
}

func (f *fakeStore) ListOpenTasks(_ context.Context) ([]*store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*store.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) UpdateTaskPriority(_ context.Context, _ string, _ float64) error { return nil }

func (f *fakeStore) GetSuspense(_ context.Context, taskID string) (*store.Suspense, error) {
	if f.getSuspenseFn != nil {
		return f.getSuspenseFn(taskID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.suspenses[taskID]
	if s == nil {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) UpdateSuspenseRisk(_ context.Context, taskID string, level store.RiskLevel, lateProbability float64, drivers []store.RiskDriver, expectedUpdatedAt time.Time) error {
	if f.updateRiskFn != nil {
		if err := f.updateRiskFn(taskID, expectedUpdatedAt); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.suspenses[taskID]
	if s == nil {
		return errors.New("no suspense row")
	}
	if !s.UpdatedAt.Equal(expectedUpdatedAt) {
		return store.ErrConflict
	}
	s.RiskLevel = level
	s.LateProbability = lateProbability
	s.Drivers = drivers
	s.UpdatedAt = s.UpdatedAt.Add(time.Second)
	f.updates++
	return nil
}

func (f *fakeStore) ListOrgUnits(_ context.Context) ([]*store.OrgUnit, error) { return nil, nil }
func (f *fakeStore) ListUsersByOrgUnits(_ context.Context, _ []string) ([]*store.User, error) {
	return nil, nil
}
func (f *fakeStore) ListAuthorities(_ context.Context) ([]*store.Authority, error) { return nil, nil }
func (f *fakeStore) WorkloadCounts(_ context.Context) (map[string]int, error)      { return nil, nil }
func (f *fakeStore) LastAssignedAt(_ context.Context) (map[string]time.Time, error) {
	return nil, nil
}
func (f *fakeStore) CreateAssignment(_ context.Context, _ *store.Assignment) error { return nil }
func (f *fakeStore) UnresolvedDependencyCount(_ context.Context, _ string) (int, error) {
	return 0, nil
}
func (f *fakeStore) OwnerOnTimeRate(_ context.Context, _ string) (*float64, error) { return nil, nil }
func (f *fakeStore) Close() error                                                  { return nil }

type fakeBus struct {
	mu        sync.Mutex
	published []string
	handlers  map[string]func(string, []byte)
}

func (f *fakeBus) Publish(subject string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, subject)
	return nil
}

func (f *fakeBus) Subscribe(subject string, handler func(string, []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]func(string, []byte))
	}
	f.handlers[subject] = handler
	return nil
}

func (f *fakeBus) Close() {}

var _ store.Store = (*fakeStore)(nil)
var _ bus.Client = (*fakeBus)(nil)

func testRunner(fs *fakeStore, fb bus.Client) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assessor := engine.NewRiskAssessor(engine.DefaultRiskWeights(), engine.DefaultRiskThresholds(), 0.2, logger)
	cfg := &config.Config{Sweep: config.SweepConfig{IntervalMs: 60000, Workers: 2, MaxRetries: 3}}
	r := New(fs, fb, assessor, cfg, logger)
	r.now = func() time.Time { return testNow }
	return r
}

func TestSweepPersistsAllOpenTasks(t *testing.T) {
	fs := newFakeStore()
	fs.addTask("T-0001", 1)
	fs.addTask("T-0002", 20)
	fs.addTask("T-0003", -2)

	r := testRunner(fs, &fakeBus{})
	r.SweepOnce(context.Background())

	if fs.updates != 3 {
		t.Fatalf("expected 3 risk updates, got %d", fs.updates)
	}
	if fs.suspenses["T-0003"].RiskLevel == store.RiskGreen {
		t.Errorf("overdue task should not stay green, got %s", fs.suspenses["T-0003"].RiskLevel)
	}
	if fs.suspenses["T-0002"].RiskLevel != store.RiskGreen {
		t.Errorf("distant task should stay green, got %s", fs.suspenses["T-0002"].RiskLevel)
	}
}

func TestSweepPublishesOnBandChange(t *testing.T) {
	fs := newFakeStore()
	fs.addTask("T-0001", -2) // leaves green
	fs.addTask("T-0002", 20) // stays green

	fb := &fakeBus{}
	r := testRunner(fs, fb)
	r.SweepOnce(context.Background())

	var riskEvents int
	for _, subj := range fb.published {
		if subj == bus.SubjectRiskChanged("T-0001") {
			riskEvents++
		}
		if subj == bus.SubjectRiskChanged("T-0002") {
			t.Error("unchanged band should not publish")
		}
	}
	if riskEvents != 1 {
		t.Errorf("expected one risk_changed event, got %d", riskEvents)
	}
}

func TestSweepConflictRetriesAgainstRefreshedRow(t *testing.T) {
	fs := newFakeStore()
	fs.addTask("T-0001", -2)

	// First write hits a concurrent edit; the retry reads the moved row.
	var calls int
	moved := false
	fs.updateRiskFn = func(taskID string, _ time.Time) error {
		calls++
		if !moved {
			moved = true
			fs.mu.Lock()
			fs.suspenses[taskID].UpdatedAt = fs.suspenses[taskID].UpdatedAt.Add(time.Minute)
			fs.mu.Unlock()
			return store.ErrConflict
		}
		return nil
	}

	r := testRunner(fs, &fakeBus{})
	r.SweepOnce(context.Background())

	if calls != 2 {
		t.Fatalf("expected conflict then retry, got %d write attempts", calls)
	}
	if fs.updates != 1 {
		t.Fatalf("expected exactly one successful update, got %d", fs.updates)
	}
}

func TestSweepConflictRetriesBounded(t *testing.T) {
	fs := newFakeStore()
	fs.addTask("T-0001", -2)

	var calls int
	fs.updateRiskFn = func(_ string, _ time.Time) error {
		calls++
		return store.ErrConflict
	}

	r := testRunner(fs, &fakeBus{})
	r.SweepOnce(context.Background())

	// initial attempt plus MaxRetries retries, then gives up
	if calls != 4 {
		t.Fatalf("expected 4 write attempts, got %d", calls)
	}
	if fs.updates != 0 {
		t.Fatalf("no update should have landed, got %d", fs.updates)
	}
}

func TestSweepIsolatesPerTaskFailures(t *testing.T) {
	fs := newFakeStore()
	fs.addTask("T-0001", 1)
	fs.addTask("T-0002", 1)
	fs.addTask("T-0003", 1)

	fs.getSuspenseFn = func(taskID string) (*store.Suspense, error) {
		if taskID == "T-0002" {
			return nil, errors.New("connection reset")
		}
		fs.mu.Lock()
		defer fs.mu.Unlock()
		cp := *fs.suspenses[taskID]
		return &cp, nil
	}

	r := testRunner(fs, &fakeBus{})
	r.SweepOnce(context.Background())

	if fs.updates != 2 {
		t.Fatalf("healthy tasks should still persist, got %d updates", fs.updates)
	}
}

func TestScoredEventTriggersImmediateReassessment(t *testing.T) {
	fs := newFakeStore()
	fs.addTask("T-0001", -2)

	fb := &fakeBus{}
	r := testRunner(fs, fb)
	r.SetupSubscriptions()

	handler := fb.handlers[bus.SubjectAnyTaskScored]
	if handler == nil {
		t.Fatal("no subscription registered for scored events")
	}

	payload, _ := json.Marshal(bus.TaskScoredEvent{TaskID: "T-0001", PriorityScore: 0.9})
	handler("missionmind.task.T-0001.scored", payload)

	if fs.updates != 1 {
		t.Fatalf("scored event should persist a fresh assessment, got %d updates", fs.updates)
	}
	if fs.suspenses["T-0001"].RiskLevel == store.RiskGreen {
		t.Errorf("overdue task should not stay green, got %s", fs.suspenses["T-0001"].RiskLevel)
	}
}

func TestRoutedEventIgnoresMalformedPayload(t *testing.T) {
	fs := newFakeStore()
	fs.addTask("T-0001", 1)

	fb := &fakeBus{}
	r := testRunner(fs, fb)
	r.SetupSubscriptions()

	fb.handlers[bus.SubjectAnyTaskRouted]("missionmind.task.T-0001.routed", []byte("{not json"))

	if fs.updates != 0 {
		t.Fatalf("malformed event should be dropped, got %d updates", fs.updates)
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	fs := newFakeStore()
	for i := 0; i < 50; i++ {
		fs.addTask(fmt.Sprintf("T-%04d", i), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := testRunner(fs, &fakeBus{})
	tasks, _ := fs.ListOpenTasks(ctx)
	results := r.Run(ctx, tasks)

	// Workers check cancellation between tasks, so a pre-cancelled context
	// yields no assessments.
	if len(results) != 0 {
		t.Fatalf("cancelled run should assess nothing, got %d results", len(results))
	}
}

func TestRunDeterministicPartitioning(t *testing.T) {
	if partition("T-0001", 4) != partition("T-0001", 4) {
		t.Fatal("partition must be stable for the same task")
	}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		p := partition(id, 3)
		if p < 0 || p > 2 {
			t.Fatalf("partition out of range: %d", p)
		}
	}
}

func TestStartStop(t *testing.T) {
	fs := newFakeStore()
	r := testRunner(fs, &fakeBus{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	r.Stop()
}
