// Package application contains the reconciliation and listing use cases.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
	"github.com/ericfisherdev/issuesync/internal/domain/port/driven"
)

// Service exposes the core operations. Every call opens its own tracker from
// the factory and closes it before returning.
type Service struct {
	factory driven.TrackerFactory
	now     func() time.Time
}

// NewService creates a Service that opens trackers from factory.
func NewService(factory driven.TrackerFactory) *Service {
	return &Service{factory: factory, now: time.Now}
}

// WithClock replaces the clock used for report durations.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Validate reports what a sync of req would do without mutating anything.
func (s *Service) Validate(ctx context.Context, settings model.RunSettings, req model.SyncRequest) (*model.RunReport, error) {
	return s.reconcile(ctx, settings, req, ModeValidate)
}

// Sync reconciles req against the tracker. When req.DryRun is set nothing is
// mutated and created entries carry a body preview.
func (s *Service) Sync(ctx context.Context, settings model.RunSettings, req model.SyncRequest) (*model.RunReport, error) {
	mode := ModeApply
	if req.DryRun {
		mode = ModeDryRun
	}
	return s.reconcile(ctx, settings, req, mode)
}

// ListIssues returns one page of repository issues.
func (s *Service) ListIssues(ctx context.Context, settings model.RunSettings, q model.ListIssuesQuery) (*model.IssueList, error) {
	q, err := NormalizeListQuery(q)
	if err != nil {
		return nil, err
	}

	tracker, err := s.factory.Open(settings)
	if err != nil {
		return nil, fmt.Errorf("opening tracker: %w", err)
	}
	defer closeTracker(tracker)

	return NewLister(tracker, tracker).List(ctx, q)
}

func (s *Service) reconcile(ctx context.Context, settings model.RunSettings, req model.SyncRequest, mode RunMode) (*model.RunReport, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	tracker, err := s.factory.Open(settings)
	if err != nil {
		return nil, fmt.Errorf("opening tracker: %w", err)
	}
	defer closeTracker(tracker)

	return NewReconciler(tracker, tracker).WithClock(s.now).Run(ctx, req, mode)
}

func closeTracker(t driven.Tracker) {
	if err := t.Close(); err != nil {
		slog.Warn("closing tracker", "error", err)
	}
}
