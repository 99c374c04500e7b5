// Package scheduler periodically dispatches scheduled alerts that have come
// due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

// DefaultBatch caps how many due alerts one scan handles.
const DefaultBatch = 20

// Store lists and claims scheduled alerts. *postgres.Store implements it.
type Store interface {
	DueAlerts(ctx context.Context, now time.Time, limit int) ([]types.ScheduledAlert, error)
	ClaimAlert(ctx context.Context, id string, at time.Time) (bool, error)
}

// Dispatcher broadcasts one alert. *broadcast.Broadcaster implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *types.AlertDescriptor) (*types.DeliveryReport, error)
}

// Observer is told about each scan and each scheduled alert.
type Observer interface {
	ObserveScan(err error)
	ObserveScheduled(result string)
}

// Scheduled alert results reported to the Observer.
const (
	ResultDispatched = "dispatched"
	ResultSkipped    = "skipped"
	ResultFailed     = "failed"
)

type Config struct {
	Schedule   string // standard cron spec or descriptor such as "@every 1m"
	Batch      int
	Store      Store
	Dispatcher Dispatcher
	Observer   Observer
	Logger     *slog.Logger
}

type Scheduler struct {
	cfg    Config
	cron   *cron.Cron
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil || cfg.Dispatcher == nil {
		return nil, errors.New("scheduler: store and dispatcher are required")
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultBatch
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	logger := cronLogger{cfg.Logger}
	s := &Scheduler{
		cfg: cfg,
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		now: time.Now,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if _, err := s.cron.AddFunc(cfg.Schedule, func() { _ = s.Scan(s.ctx) }); err != nil {
		return nil, fmt.Errorf("scheduler: parse schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule, cancels a running scan and waits for it.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Scan dispatches every alert due now. Each alert is claimed before it is
// broadcast, so overlapping scans on several replicas send it at most once.
// A failed dispatch after the claim is logged and not retried.
func (s *Scheduler) Scan(ctx context.Context) error {
	now := s.now()
	due, err := s.cfg.Store.DueAlerts(ctx, now, s.cfg.Batch)
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveScan(err)
	}
	if err != nil {
		s.cfg.Logger.Error("scheduled alert scan failed", "error", err)
		return err
	}

	for _, sa := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.observe(s.dispatch(ctx, sa, now))
	}
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, sa types.ScheduledAlert, now time.Time) string {
	claimed, err := s.cfg.Store.ClaimAlert(ctx, sa.ID, now)
	if err != nil {
		s.cfg.Logger.Error("claim scheduled alert", "scheduled_id", sa.ID, "error", err)
		return ResultFailed
	}
	if !claimed {
		return ResultSkipped
	}

	alert := sa.Alert
	report, err := s.cfg.Dispatcher.Dispatch(ctx, &alert)
	if err != nil {
		s.cfg.Logger.Error("scheduled alert dispatch failed",
			"scheduled_id", sa.ID,
			"district", alert.District,
			"error", err,
		)
		return ResultFailed
	}
	s.cfg.Logger.Info("scheduled alert dispatched",
		"scheduled_id", sa.ID,
		"alert_id", alert.ID,
		"sent", report.Sent,
		"failed", report.Failed,
		"late_by_ms", now.Sub(sa.DueAt).Milliseconds(),
	)
	return ResultDispatched
}

func (s *Scheduler) observe(result string) {
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveScheduled(result)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
