package service

import (
	"context"
	"log/slog"
	"time"

	"recurio/internal/docstore"
)

// SyncTarget is one workspace a background pass runs against.
type SyncTarget struct {
	Label string
	Store docstore.Store
}

// SyncTargets lists the workspaces to sync on each tick.
type SyncTargets func(ctx context.Context) ([]SyncTarget, error)

// Notifier delivers a rendered report somewhere a human will read it.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// SyncRunner runs the orchestrator over every target, one after another.
type SyncRunner struct {
	targets  SyncTargets
	recorder SyncRunRecorder
	notifier Notifier
	timeout  time.Duration
	loc      *time.Location
	log      *slog.Logger
}

func NewSyncRunner(targets SyncTargets, recorder SyncRunRecorder, notifier Notifier, timeout time.Duration) *SyncRunner {
	return &SyncRunner{
		targets:  targets,
		recorder: recorder,
		notifier: notifier,
		timeout:  timeout,
		loc:      time.Local,
		log:      slog.Default().With("component", "sync-runner"),
	}
}

// RunAll syncs each target under its own timeout. A failing target is logged
// and does not stop the others.
func (r *SyncRunner) RunAll(ctx context.Context, trigger string) []*SyncReport {
	targets, err := r.targets(ctx)
	if err != nil {
		r.log.Error("list sync targets", "error", err)
		return nil
	}

	var reports []*SyncReport
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		report, err := r.runOne(ctx, t, trigger)
		if err != nil {
			r.log.Error("sync target", "target", t.Label, "error", err)
			continue
		}
		reports = append(reports, report)
		if r.notifier != nil && (report.Created > 0 || len(report.Failures()) > 0) {
			if err := r.notifier.Notify(ctx, FormatSyncReport(t.Label, report, r.loc)); err != nil {
				r.log.Warn("notify sync report", "target", t.Label, "error", err)
			}
		}
	}
	return reports
}

func (r *SyncRunner) runOne(ctx context.Context, t SyncTarget, trigger string) (*SyncReport, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	rules := NewRuleService(t.Store)
	return NewSyncService(t.Store, rules, r.recorder).Run(ctx, SyncOptions{Trigger: trigger})
}
