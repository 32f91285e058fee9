package application

import (
	"time"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
)

// ReportBuilder folds per-item outcomes into a RunReport. It is append-only;
// buckets keep the order in which outcomes were recorded.
type ReportBuilder struct {
	report model.RunReport
	now    func() time.Time
	start  time.Time
}

// NewReportBuilder starts a report for req. now supplies wall-clock time and
// defaults to time.Now when nil.
func NewReportBuilder(req model.SyncRequest, dryRun bool, now func() time.Time) *ReportBuilder {
	if now == nil {
		now = time.Now
	}
	return &ReportBuilder{
		report: model.RunReport{
			Owner:        req.Owner,
			Repo:         req.Repo,
			ProjectTitle: req.ProjectTitle,
			DryRun:       dryRun,
			Created:      []model.ReportItem{},
			Updated:      []model.UpdatedItem{},
			Unchanged:    []model.ReportItem{},
			Errors:       []model.ErrorItem{},
		},
		now:   now,
		start: now(),
	}
}

// SetProjectURL records the resolved project URL.
func (b *ReportBuilder) SetProjectURL(url string) {
	b.report.ProjectURL = url
}

// Created records an issue that was (or would be) created.
func (b *ReportBuilder) Created(item model.ReportItem) {
	b.report.Created = append(b.report.Created, item)
}

// Updated records an issue that received incremental changes.
func (b *ReportBuilder) Updated(item model.UpdatedItem) {
	b.report.Updated = append(b.report.Updated, item)
}

// Unchanged records an issue already in its desired state.
func (b *ReportBuilder) Unchanged(item model.ReportItem) {
	b.report.Unchanged = append(b.report.Unchanged, item)
}

// Failed records a per-item failure.
func (b *ReportBuilder) Failed(title, reason string, err error) {
	b.report.Errors = append(b.report.Errors, model.ErrorItem{
		Title:  title,
		Reason: reason,
		Detail: err.Error(),
	})
}

// Finish computes the metrics and returns the report. total is the number of
// desired items in the run.
func (b *ReportBuilder) Finish(total int) *model.RunReport {
	r := b.report
	r.Metrics = model.Metrics{
		Total:      total,
		Created:    len(r.Created),
		Updated:    len(r.Updated),
		Unchanged:  len(r.Unchanged),
		Errors:     len(r.Errors),
		DurationMS: b.now().Sub(b.start).Milliseconds(),
	}
	return &r
}
