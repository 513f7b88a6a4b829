// Package registry owns run lifecycle and per-bot task bookkeeping. It
// is the single writer of Run and BotTaskState: every mutation goes
// through one of its serialized per-run operations, so concurrent bot
// tasks never race on the same run record. Operations on different runs
// never contend.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/globalpass/standby-cli/internal/bot"
	"github.com/globalpass/standby-cli/internal/broadcast"
	"github.com/globalpass/standby-cli/internal/consolidate"
	"github.com/globalpass/standby-cli/internal/model"
	"github.com/globalpass/standby-cli/internal/rank"
	"github.com/globalpass/standby-cli/internal/store"
)

// Registry coordinates runs: it creates them, dispatches their bot
// tasks, absorbs per-bot results, and finalizes.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*runEntry

	hub     *broadcast.Hub
	runner  *bot.Runner
	adapters *bot.Registry
	engine  *rank.Engine
	opts    consolidate.Options
	timeout time.Duration
	st      store.Store // optional; nil disables persistence

	// sem bounds concurrently executing runs. Bot adapters drive real
	// browsers upstream, so the default keeps one run's worth in flight.
	sem chan struct{}
}

type runEntry struct {
	mu         sync.Mutex
	run        model.Run
	dispatched []string
	cancel     context.CancelFunc
	timer      *time.Timer
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore attaches a persistence backend. Store failures are logged,
// never fatal to a run.
func WithStore(st store.Store) Option {
	return func(r *Registry) { r.st = st }
}

// WithTimeout sets the per-run deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithMaxConcurrent bounds simultaneously executing runs.
func WithMaxConcurrent(n int) Option {
	return func(r *Registry) {
		if n < 1 {
			n = 1
		}
		r.sem = make(chan struct{}, n)
	}
}

// WithRetainUnverified forwards the gatekeeper retention switch.
func WithRetainUnverified(retain bool) Option {
	return func(r *Registry) { r.opts.RetainUnverified = retain }
}

// New creates a registry over the given adapters, broadcaster, and
// ranking engine.
func New(adapters *bot.Registry, runner *bot.Runner, hub *broadcast.Hub, engine *rank.Engine, opts ...Option) *Registry {
	r := &Registry{
		runs:     make(map[string]*runEntry),
		hub:      hub,
		runner:   runner,
		adapters: adapters,
		engine:   engine,
		timeout:  10 * time.Minute,
		sem:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateRun validates the criteria, selects the applicable bots, and
// registers a new pending run. Invalid criteria create nothing.
func (r *Registry) CreateRun(ctx context.Context, criteria model.SearchCriteria) (string, error) {
	if err := criteria.Validate(); err != nil {
		return "", err
	}

	selected := r.adapters.Select(criteria)
	if len(selected) == 0 {
		return "", eris.Wrap(model.ErrInvalidInput, "no applicable sources for criteria")
	}

	id := uuid.New().String()
	run := model.Run{
		ID:        id,
		Criteria:  criteria,
		Status:    model.RunStatusPending,
		Bots:      make(map[string]*model.BotTaskState, len(selected)),
		CreatedAt: time.Now().UTC(),
	}
	for _, name := range selected {
		run.Bots[name] = &model.BotTaskState{Bot: name, State: model.BotStateIdle}
	}

	entry := &runEntry{run: run, dispatched: selected}

	r.mu.Lock()
	r.runs[id] = entry
	r.mu.Unlock()

	if r.st != nil {
		if err := r.st.CreateRun(ctx, run); err != nil {
			zap.L().Warn("registry: persist run failed", zap.String("run_id", id), zap.Error(err))
		}
	}

	entry.mu.Lock()
	r.publishStatusLocked(entry)
	r.publishLogLocked(entry, fmt.Sprintf("run created for %s", criteria.Route()))
	entry.mu.Unlock()

	zap.L().Info("registry: run created",
		zap.String("run_id", id),
		zap.String("route", criteria.Route()),
		zap.Strings("bots", selected),
	)
	return id, nil
}

// Dispatch transitions the run to running and launches every applicable
// bot as an independent concurrent task. Each bot's completion or
// failure is reported back asynchronously and never blocks the others.
// Dispatch itself returns once the tasks are launched.
func (r *Registry) Dispatch(runID string) error {
	entry, err := r.entry(runID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	if entry.run.Status != model.RunStatusPending {
		entry.mu.Unlock()
		return eris.Errorf("registry: run %s is %s, not pending", runID, entry.run.Status)
	}
	entry.run.Status = model.RunStatusRunning
	r.publishStatusLocked(entry)
	r.publishLogLocked(entry, "run started")

	runCtx, cancel := context.WithCancel(context.Background())
	entry.cancel = cancel

	// The deadline marks still-pending bots as timed out and finalizes
	// with whatever arrived. Bot cancellation is cooperative: a late
	// result is ignored once the run is terminal.
	entry.timer = time.AfterFunc(r.timeout, func() { r.expire(runID) })

	criteria := entry.run.Criteria
	dispatched := entry.dispatched
	entry.mu.Unlock()

	r.persistStatus(runID)

	go func() {
		r.sem <- struct{}{}
		defer func() { <-r.sem }()

		g, gctx := errgroup.WithContext(runCtx)
		for _, source := range dispatched {
			g.Go(func() error {
				r.runBot(gctx, runID, source, criteria)
				return nil
			})
		}
		_ = g.Wait()
		cancel()
	}()

	return nil
}

// runBot executes one bot task and reports its outcome back through the
// serialized update operations.
func (r *Registry) runBot(ctx context.Context, runID, source string, criteria model.SearchCriteria) {
	r.ReportProgress(runID, source, 0, "starting")

	records, err := r.runner.Collect(ctx, source, criteria, func(percent int, caption string) {
		r.ReportProgress(runID, source, percent, caption)
	})
	if err != nil {
		reason := "source unavailable"
		if ctx.Err() != nil {
			reason = "timeout"
		}
		zap.L().Warn("registry: bot failed",
			zap.String("run_id", runID),
			zap.String("bot", source),
			zap.Error(err),
		)
		r.ReportError(runID, source, fmt.Sprintf("%s: %v", reason, eris.Cause(err)))
		return
	}
	r.ReportDone(runID, source, records)
}

// ReportProgress records a bot progress update. Percent is clamped so it
// never regresses below the last recorded value for that bot.
func (r *Registry) ReportProgress(runID, botName string, percent int, caption string) {
	entry, err := r.entry(runID)
	if err != nil {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	task, ok := entry.run.Bots[botName]
	if !ok || entry.run.Status.Terminal() || task.State.Terminal() {
		return
	}

	if percent > 100 {
		percent = 100
	}
	if percent < task.Percent {
		percent = task.Percent
	}
	task.State = model.BotStateRunning
	task.Percent = percent
	if caption != "" {
		task.Caption = caption
	}

	r.hub.Publish(runID, model.Event{
		Type:    model.EventProgress,
		TS:      time.Now().UTC(),
		RunID:   runID,
		Bot:     botName,
		Percent: task.Percent,
		Caption: task.Caption,
	})
}

// ReportDone marks a bot task done and re-consolidates. If every
// dispatched bot is terminal the run finalizes.
func (r *Registry) ReportDone(runID, botName string, records []model.RawFlightRecord) {
	entry, err := r.entry(runID)
	if err != nil {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	task, ok := entry.run.Bots[botName]
	if !ok || entry.run.Status.Terminal() || task.State.Terminal() {
		return
	}

	task.State = model.BotStateDone
	task.Percent = 100
	task.Records = records
	r.publishLogLocked(entry, fmt.Sprintf("[%s] finished with %d records", botName, len(records)))

	r.consolidateLocked(entry)
	if r.allTerminalLocked(entry) {
		r.finalizeLocked(entry)
	}
}

// ReportError marks a bot task failed. The failure is absorbed here: it
// never propagates to other bots or aborts the run.
func (r *Registry) ReportError(runID, botName, reason string) {
	entry, err := r.entry(runID)
	if err != nil {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	task, ok := entry.run.Bots[botName]
	if !ok || entry.run.Status.Terminal() || task.State.Terminal() {
		return
	}

	task.State = model.BotStateError
	task.FailureReason = reason
	r.publishLogLocked(entry, fmt.Sprintf("[%s] error: %s", botName, reason))

	r.consolidateLocked(entry)
	if r.allTerminalLocked(entry) {
		r.finalizeLocked(entry)
	}
}

// expire fires on the per-run deadline: every non-terminal bot becomes
// error("timeout") and the run finalizes with whatever is available.
func (r *Registry) expire(runID string) {
	entry, err := r.entry(runID)
	if err != nil {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.run.Status.Terminal() {
		return
	}
	for _, task := range entry.run.Bots {
		if !task.State.Terminal() {
			task.State = model.BotStateError
			task.FailureReason = "timeout"
			r.publishLogLocked(entry, fmt.Sprintf("[%s] error: timeout", task.Bot))
		}
	}
	r.consolidateLocked(entry)
	r.finalizeLocked(entry)
}

// consolidateLocked rebuilds the run's candidate set from every done bot.
// Running inside the entry lock keeps consolidation ordered relative to
// bot state changes.
func (r *Registry) consolidateLocked(entry *runEntry) {
	candidates := consolidate.FromBots(entry.run.Bots, entry.run.Criteria.TravelStatus, r.opts)
	entry.run.Results = r.engine.Rank(candidates, entry.run.Criteria.TravelStatus)
}

func (r *Registry) allTerminalLocked(entry *runEntry) bool {
	for _, task := range entry.run.Bots {
		if !task.State.Terminal() {
			return false
		}
	}
	return true
}

// finalizeLocked moves the run to its terminal state: completed when at
// least one eligible candidate survived, otherwise error. Partial bot
// failures still complete; failed bots simply contributed nothing.
func (r *Registry) finalizeLocked(entry *runEntry) {
	if entry.run.Status.Terminal() {
		return
	}

	now := time.Now().UTC()
	entry.run.CompletedAt = &now

	if len(entry.run.Results) > 0 {
		entry.run.Status = model.RunStatusCompleted
		r.publishLogLocked(entry, fmt.Sprintf("run finished with %d ranked candidates", len(entry.run.Results)))
	} else {
		entry.run.Status = model.RunStatusError
		entry.run.Error = eris.Cause(model.ErrNoData).Error()
		r.publishLogLocked(entry, "run finished with no eligible candidates")
	}
	r.publishStatusLocked(entry)

	if entry.timer != nil {
		entry.timer.Stop()
	}
	if entry.cancel != nil {
		entry.cancel()
	}

	runID := entry.run.ID
	status := entry.run.Status
	go func() {
		r.persistResult(runID)
		r.hub.Close(runID)
	}()

	zap.L().Info("registry: run finalized",
		zap.String("run_id", runID),
		zap.String("status", string(status)),
	)
}

func (r *Registry) entry(runID string) (*runEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.runs[runID]
	if !ok {
		return nil, eris.Wrapf(model.ErrRunNotFound, "run %s", runID)
	}
	return entry, nil
}

func (r *Registry) publishStatusLocked(entry *runEntry) {
	r.hub.Publish(entry.run.ID, model.Event{
		Type:   model.EventStatus,
		TS:     time.Now().UTC(),
		RunID:  entry.run.ID,
		Status: entry.run.Status,
		Error:  entry.run.Error,
	})
}

func (r *Registry) publishLogLocked(entry *runEntry, message string) {
	r.hub.Publish(entry.run.ID, model.Event{
		Type:    model.EventLog,
		TS:      time.Now().UTC(),
		RunID:   entry.run.ID,
		Message: message,
	})
}

func (r *Registry) persistStatus(runID string) {
	if r.st == nil {
		return
	}
	entry, err := r.entry(runID)
	if err != nil {
		return
	}
	entry.mu.Lock()
	status := entry.run.Status
	errMsg := entry.run.Error
	completed := entry.run.CompletedAt
	entry.mu.Unlock()

	if err := r.st.UpdateRunStatus(context.Background(), runID, status, errMsg, completed); err != nil {
		zap.L().Warn("registry: persist status failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func (r *Registry) persistResult(runID string) {
	if r.st == nil {
		return
	}
	run, err := r.Snapshot(runID)
	if err != nil {
		return
	}
	ctx := context.Background()
	if err := r.st.UpdateRunStatus(ctx, runID, run.Status, run.Error, run.CompletedAt); err != nil {
		zap.L().Warn("registry: persist status failed", zap.String("run_id", runID), zap.Error(err))
	}
	if err := r.st.SaveBotResponses(ctx, runID, run.Bots, run.Results); err != nil {
		zap.L().Warn("registry: persist responses failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// Snapshot returns a deep copy of the run's current state.
func (r *Registry) Snapshot(runID string) (*model.Run, error) {
	entry, err := r.entry(runID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	run := entry.run
	run.Bots = make(map[string]*model.BotTaskState, len(entry.run.Bots))
	for name, task := range entry.run.Bots {
		copied := *task
		run.Bots[name] = &copied
	}
	run.Results = append([]model.ConsolidatedFlight(nil), entry.run.Results...)
	return &run, nil
}

// Results returns the final ranked candidates of a completed run.
func (r *Registry) Results(runID string) ([]model.ConsolidatedFlight, error) {
	run, err := r.Snapshot(runID)
	if err != nil {
		return nil, err
	}
	if run.Status != model.RunStatusCompleted {
		return nil, eris.Errorf("registry: run %s is %s, results require completed", runID, run.Status)
	}
	return run.Results, nil
}

// Subscribe attaches an event listener to a run, replaying history first.
func (r *Registry) Subscribe(runID string) (<-chan model.Event, func(), error) {
	if _, err := r.entry(runID); err != nil {
		return nil, nil, err
	}
	ch, cancel := r.hub.Subscribe(runID)
	return ch, cancel, nil
}

// Wait blocks until the run reaches a terminal state or the context
// expires. Used by the one-shot CLI path.
func (r *Registry) Wait(ctx context.Context, runID string) (*model.Run, error) {
	ch, cancel, err := r.Subscribe(runID)
	if err != nil {
		return nil, err
	}
	defer cancel()

	for {
		// Check first: the run may already be terminal and the stream closed.
		run, err := r.Snapshot(runID)
		if err != nil {
			return nil, err
		}
		if run.Status.Terminal() {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrap(model.ErrTimeout, "waiting for run")
		case _, ok := <-ch:
			if !ok {
				run, err := r.Snapshot(runID)
				if err != nil {
					return nil, err
				}
				return run, nil
			}
		}
	}
}
