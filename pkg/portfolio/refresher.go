package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinsight-ai/insight/pkg/common/logger"
	"github.com/clinsight-ai/insight/pkg/common/models"
	"github.com/clinsight-ai/insight/pkg/observability/metrics"
	"github.com/google/uuid"
)

// InputSource supplies the per-study inputs a refresh scores. The extractor
// implements it over stored extract rows.
type InputSource interface {
	BuildInputs(ctx context.Context) ([]models.StudyInput, error)
}

// RunStore persists refresh run records. A nil store keeps runs in memory
// only for the duration of the call.
type RunStore interface {
	Create(ctx context.Context, run *models.RefreshRun) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	Get(ctx context.Context, id uuid.UUID) (*models.RefreshRun, error)
	List(ctx context.Context, limit int) ([]models.RefreshRun, error)
}

// PublishHook runs after a refresh publishes a new snapshot. Hooks feed the
// persistence, cache, alerting and event layers; they must not block long.
type PublishHook func(ctx context.Context, summary *models.PortfolioSummary)

// Refresher drives recompute cycles end to end: pull inputs, score, publish,
// then fan the new snapshot out to the hooks. Overlapping refreshes are
// serialized; a failed cycle leaves the previous snapshot in place.
type Refresher struct {
	engine *Engine
	source InputSource
	store  *SnapshotStore
	runs   RunStore
	hooks  []PublishHook
	gate   chan struct{}
}

func NewRefresher(engine *Engine, source InputSource, store *SnapshotStore, runs RunStore) *Refresher {
	return &Refresher{
		engine: engine,
		source: source,
		store:  store,
		runs:   runs,
		gate:   make(chan struct{}, 1),
	}
}

// AddHook registers a publish hook. Not safe to call once refreshes run.
func (r *Refresher) AddHook(hook PublishHook) {
	r.hooks = append(r.hooks, hook)
}

// RefreshNow runs one refresh cycle synchronously and returns the finished
// run. The returned error reports a failed cycle; the run carries details.
func (r *Refresher) RefreshNow(ctx context.Context, requestedBy string) (*models.RefreshRun, error) {
	run := r.newRun(requestedBy)
	if r.runs != nil {
		if err := r.runs.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("recording refresh run: %w", err)
		}
	}

	r.execute(ctx, run)

	if run.Status == models.RefreshFailed {
		return run, errors.New(run.ErrorMessage)
	}
	return run, nil
}

// Enqueue records a queued run and refreshes in the background. The returned
// run is still queued; poll the run store for completion.
func (r *Refresher) Enqueue(ctx context.Context, requestedBy string) (*models.RefreshRun, error) {
	run := r.newRun(requestedBy)
	if r.runs != nil {
		if err := r.runs.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("recording refresh run: %w", err)
		}
	}

	queued := *run
	go r.execute(context.Background(), run)

	return &queued, nil
}

// Status returns one run's current record.
func (r *Refresher) Status(ctx context.Context, id uuid.UUID) (*models.RefreshRun, error) {
	if r.runs == nil {
		return nil, errors.New("run store not configured")
	}
	return r.runs.Get(ctx, id)
}

// History lists recent runs, newest first.
func (r *Refresher) History(ctx context.Context, limit int) ([]models.RefreshRun, error) {
	if r.runs == nil {
		return nil, errors.New("run store not configured")
	}
	return r.runs.List(ctx, limit)
}

func (r *Refresher) newRun(requestedBy string) *models.RefreshRun {
	return &models.RefreshRun{
		ID:          uuid.New(),
		Status:      models.RefreshQueued,
		RequestedBy: requestedBy,
		CreatedAt:   time.Now().UTC(),
	}
}

func (r *Refresher) execute(ctx context.Context, run *models.RefreshRun) {
	r.gate <- struct{}{}
	defer func() { <-r.gate }()

	metrics.IncRefreshRun()
	started := time.Now().UTC()
	run.Status = models.RefreshRunning
	run.StartedAt = &started
	r.updateRun(ctx, run.ID, map[string]interface{}{
		"status":     models.RefreshRunning,
		"started_at": started,
	})

	inputs, err := r.source.BuildInputs(ctx)
	if err != nil {
		r.fail(ctx, run, fmt.Errorf("building study inputs: %w", err))
		return
	}

	summary, excluded := r.engine.Recompute(ctx, inputs)
	if ctx.Err() != nil {
		r.fail(ctx, run, ctx.Err())
		return
	}

	r.store.Publish(summary)
	metrics.ObserveRecompute(summary.StudyCount, len(excluded))

	completed := time.Now().UTC()
	run.Status = models.RefreshCompleted
	run.StudyCount = summary.StudyCount
	run.ExcludedCount = len(excluded)
	run.CompletedAt = &completed
	run.ErrorMessage = ""
	r.updateRun(ctx, run.ID, map[string]interface{}{
		"status":         models.RefreshCompleted,
		"study_count":    summary.StudyCount,
		"excluded_count": len(excluded),
		"completed_at":   completed,
		"error_message":  "",
	})

	for _, hook := range r.hooks {
		hook(ctx, summary)
	}

	logger.Log.WithFields(map[string]interface{}{
		"run_id":   run.ID.String(),
		"studies":  summary.StudyCount,
		"excluded": len(excluded),
		"took_ms":  completed.Sub(started).Milliseconds(),
	}).Info("Portfolio snapshot published")
}

func (r *Refresher) fail(ctx context.Context, run *models.RefreshRun, err error) {
	metrics.IncRefreshFailure()
	logger.Log.WithError(err).Error("portfolio refresh failed, keeping previous snapshot")
	completed := time.Now().UTC()
	run.Status = models.RefreshFailed
	run.ErrorMessage = err.Error()
	run.CompletedAt = &completed
	r.updateRun(ctx, run.ID, map[string]interface{}{
		"status":        models.RefreshFailed,
		"error_message": err.Error(),
		"completed_at":  completed,
	})
}

func (r *Refresher) updateRun(ctx context.Context, id uuid.UUID, updates map[string]interface{}) {
	if r.runs == nil {
		return
	}
	if err := r.runs.Update(ctx, id, updates); err != nil {
		logger.Log.WithError(err).Warn("failed to update refresh run record")
	}
}
