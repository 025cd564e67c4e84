package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/acarin/missionmind/internal/bus"
	"github.com/acarin/missionmind/internal/config"
	"github.com/acarin/missionmind/internal/engine"
	"github.com/acarin/missionmind/internal/store"
)

// Result pairs one task with its re-derived risk assessment, or the error
// that prevented it. Failures are isolated per task; the batch continues.
type Result struct {
	TaskID     string
	Assessment engine.RiskAssessment
	Err        error
}

// Runner periodically re-assesses risk for all open tasks. It is the only
// stateful actor around the engine: the evaluators stay pure, the runner owns
// scheduling and persistence.
type Runner struct {
	store    store.Store
	events   bus.Client
	assessor *engine.RiskAssessor
	cfg      *config.Config
	logger   *slog.Logger

	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(s store.Store, events bus.Client, assessor *engine.RiskAssessor, cfg *config.Config, logger *slog.Logger) *Runner {
	return &Runner{
		store:    s,
		events:   events,
		assessor: assessor,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.sweepLoop(ctx)
}

func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// SetupSubscriptions registers bus subscriptions so a user-triggered change
// refreshes that task's risk immediately instead of waiting for the next tick.
func (r *Runner) SetupSubscriptions() {
	if r.events == nil {
		return
	}

	_ = r.events.Subscribe(bus.SubjectAnyTaskScored, func(_ string, data []byte) {
		var evt bus.TaskScoredEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			r.logger.Warn("invalid task scored event", "error", err)
			return
		}
		r.reassessOne(evt.TaskID)
	})

	// Routing moves ownership, which feeds the owner-history factor.
	_ = r.events.Subscribe(bus.SubjectAnyTaskRouted, func(_ string, data []byte) {
		var evt bus.TaskRoutedEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			r.logger.Warn("invalid task routed event", "error", err)
			return
		}
		r.reassessOne(evt.TaskID)
	})
}

// reassessOne runs the assess-and-persist path for a single task, with the
// same conflict handling as the periodic batch.
func (r *Runner) reassessOne(taskID string) {
	ctx := context.Background()
	task, err := r.store.GetTask(ctx, taskID)
	if err != nil || task == nil {
		r.logger.Warn("reassess skipped", "task_id", taskID, "error", err)
		return
	}
	assessment, err := r.assessTask(ctx, task)
	if err != nil {
		sweepFailures.Inc()
		r.logger.Warn("reassess failed", "task_id", taskID, "error", err)
		return
	}
	if _, err := r.persist(ctx, Result{TaskID: taskID, Assessment: assessment}); err != nil {
		sweepFailures.Inc()
		r.logger.Warn("reassess persist failed", "task_id", taskID, "error", err)
		return
	}
	sweepAssessed.Inc()
}

func (r *Runner) sweepLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce loads the open-task backlog, re-assesses every suspense, and
// persists the results. Per-task failures are logged and skipped.
func (r *Runner) SweepOnce(ctx context.Context) {
	tasks, err := r.store.ListOpenTasks(ctx)
	if err != nil {
		r.logger.Error("failed to list open tasks for sweep", "error", err)
		return
	}

	results := r.Run(ctx, tasks)

	assessed, changed, failed := 0, 0, 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			sweepFailures.Inc()
			r.logger.Warn("sweep task failed", "task_id", res.TaskID, "error", res.Err)
			continue
		}
		assessed++
		sweepAssessed.Inc()
		bandChanged, err := r.persist(ctx, res)
		if err != nil {
			failed++
			sweepFailures.Inc()
			r.logger.Warn("sweep persist failed", "task_id", res.TaskID, "error", err)
			continue
		}
		if bandChanged {
			changed++
		}
	}

	r.logger.Info("sweep complete", "assessed", assessed, "changed", changed, "failed", failed)
	if r.events != nil {
		_ = r.events.Publish(bus.SubjectSweepStats, bus.SweepStatsEvent{
			Assessed:  assessed,
			Changed:   changed,
			Failed:    failed,
			Timestamp: r.now(),
		})
	}
}

// Run assesses each task against a freshly loaded snapshot and returns the
// results without persisting anything. Tasks are partitioned across workers
// by task identifier; cancellation is checked between iterations so shutdown
// never waits for the whole backlog.
func (r *Runner) Run(ctx context.Context, tasks []*store.Task) []Result {
	workers := r.cfg.Sweep.Workers
	if workers < 1 {
		workers = 1
	}

	partitions := make([][]*store.Task, workers)
	for _, t := range tasks {
		i := partition(t.ID, workers)
		partitions[i] = append(partitions[i], t)
	}

	resultCh := make(chan Result, len(tasks))
	var wg sync.WaitGroup
	for _, part := range partitions {
		if len(part) == 0 {
			continue
		}
		wg.Add(1)
		go func(part []*store.Task) {
			defer wg.Done()
			for _, task := range part {
				select {
				case <-ctx.Done():
					return
				case <-r.stopCh:
					return
				default:
				}
				assessment, err := r.assessTask(ctx, task)
				resultCh <- Result{TaskID: task.ID, Assessment: assessment, Err: err}
			}
		}(part)
	}
	wg.Wait()
	close(resultCh)

	results := make([]Result, 0, len(tasks))
	for res := range resultCh {
		results = append(results, res)
	}
	return results
}

// assessTask gathers the snapshot and invokes the pure assessor. All reads
// happen here, before the evaluator runs.
func (r *Runner) assessTask(ctx context.Context, task *store.Task) (engine.RiskAssessment, error) {
	suspense, err := r.store.GetSuspense(ctx, task.ID)
	if err != nil {
		return engine.RiskAssessment{}, err
	}
	deps, err := r.store.UnresolvedDependencyCount(ctx, task.ID)
	if err != nil {
		return engine.RiskAssessment{}, err
	}
	onTime, err := r.store.OwnerOnTimeRate(ctx, task.ID)
	if err != nil {
		return engine.RiskAssessment{}, err
	}

	return r.assessor.Assess(task, suspense, &engine.RiskContext{
		Now:                    r.now(),
		UnresolvedDependencies: deps,
		OwnerOnTimeRate:        onTime,
	})
}

// persist writes the assessment with an optimistic concurrency check. On
// conflict the suspense row is re-read and the task re-assessed, so a
// concurrent user edit is never clobbered. Returns whether the risk band
// changed.
func (r *Runner) persist(ctx context.Context, res Result) (bool, error) {
	assessment := res.Assessment
	for attempt := 0; ; attempt++ {
		suspense, err := r.store.GetSuspense(ctx, res.TaskID)
		if err != nil {
			return false, err
		}
		if suspense == nil {
			return false, errors.New("suspense row missing")
		}

		previous := suspense.RiskLevel
		err = r.store.UpdateSuspenseRisk(ctx, res.TaskID, assessment.RiskLevel,
			assessment.LateProbability, assessment.Drivers, suspense.UpdatedAt)
		if err == nil {
			changed := previous != assessment.RiskLevel
			if changed && r.events != nil {
				_ = r.events.Publish(bus.SubjectRiskChanged(res.TaskID), bus.RiskChangedEvent{
					TaskID:          res.TaskID,
					RiskLevel:       assessment.RiskLevel,
					PreviousLevel:   previous,
					LateProbability: assessment.LateProbability,
					Drivers:         assessment.Drivers,
				})
			}
			return changed, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return false, err
		}
		sweepConflicts.Inc()
		if attempt >= r.cfg.Sweep.MaxRetries {
			return false, err
		}

		// Row moved under us: re-derive against the refreshed snapshot
		// before retrying the write.
		task, err := r.store.GetTask(ctx, res.TaskID)
		if err != nil {
			return false, err
		}
		if task == nil {
			return false, errors.New("task row missing")
		}
		assessment, err = r.assessTask(ctx, task)
		if err != nil {
			return false, err
		}
	}
}

func partition(taskID string, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(taskID))
	return int(h.Sum32() % uint32(workers))
}
