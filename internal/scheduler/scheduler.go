// Package scheduler runs cron-triggered headless workflow runs. A polling
// loop picks up due schedules from the store and walks each workflow to
// completion through the engine.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/formflow/formflow/internal/blocks"
	"github.com/formflow/formflow/internal/store"
)

// WorkflowRunner is the interface the scheduler drives runs through.
// Satisfied by the engine orchestrator (avoids import cycle).
type WorkflowRunner interface {
	RunToCompletion(ctx context.Context, workflowID string, mode blocks.Mode, answers map[string]map[string]any, queryParams map[string]string) (*store.Run, error)
}

// Scheduler polls the store for due scheduled runs and executes them.
type Scheduler struct {
	store  store.SchedulerStore
	runner WorkflowRunner
	parser cron.Parser
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // schedule IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(s store.SchedulerStore, runner WorkflowRunner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick checks all enabled schedules and runs those that are due.
func (s *Scheduler) Tick(ctx context.Context) {
	schedules, err := s.store.ListScheduledRuns(ctx, true)
	if err != nil {
		s.logger.Error("failed to list scheduled runs", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, sched := range schedules {
		if sched.NextRunAt == nil || !sched.NextRunAt.After(now) {
			if !s.tryAcquire(sched.ID) {
				continue // already running (dedup)
			}
			if err := s.execute(ctx, sched, now); err != nil {
				s.logger.Error("failed to run schedule",
					slog.String("schedule_id", sched.ID),
					slog.String("error", err.Error()),
				)
			}
			s.release(sched.ID)
		}
	}
}

// execute starts one headless run for a schedule and advances its timestamps.
func (s *Scheduler) execute(ctx context.Context, sched *store.ScheduledRun, now time.Time) error {
	s.logger.Info("running schedule",
		slog.String("schedule_id", sched.ID),
		slog.String("workflow_id", sched.WorkflowID),
	)

	var queryParams map[string]string
	if len(sched.Params) > 0 {
		if err := json.Unmarshal(sched.Params, &queryParams); err != nil {
			s.logger.Warn("ignoring undecodable schedule params",
				slog.String("schedule_id", sched.ID))
			queryParams = nil
		}
	}

	if _, err := s.runner.RunToCompletion(ctx, sched.WorkflowID, blocks.ModeLive, nil, queryParams); err != nil {
		s.logger.Error("scheduled run failed",
			slog.String("schedule_id", sched.ID),
			slog.String("error", err.Error()),
		)
	}

	return s.advance(ctx, sched, now)
}

// advance records the run time and computes the next one from the cron
// expression. Executed even when the run itself failed, so a broken workflow
// cannot pin the schedule to a tight retry loop.
func (s *Scheduler) advance(ctx context.Context, sched *store.ScheduledRun, now time.Time) error {
	nextRun, err := s.CalculateNextRun(sched.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for schedule %q: %w", sched.ID, err)
	}
	return s.store.UpdateScheduledRun(ctx, sched.ID, &now, &nextRun)
}

// tryAcquire returns true and marks the schedule in-flight if it is not
// already running.
func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// release removes the schedule from the in-flight set.
func (s *Scheduler) release(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed runs schedules whose next_run_at is already in the past,
// once, and re-anchors them to the current time.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	schedules, err := s.store.ListScheduledRuns(ctx, true)
	if err != nil {
		return fmt.Errorf("list missed schedules: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, sched := range schedules {
		if sched.NextRunAt != nil && sched.NextRunAt.Before(now) {
			if !s.tryAcquire(sched.ID) {
				continue
			}
			if err := s.execute(ctx, sched, now); err != nil {
				s.logger.Error("failed to recover missed schedule",
					slog.String("schedule_id", sched.ID),
					slog.String("error", err.Error()),
				)
				s.release(sched.ID)
				continue
			}
			s.release(sched.ID)
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.Info("recovered missed schedules", slog.Int("count", recovered))
	}
	return nil
}
