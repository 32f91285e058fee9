package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
	"github.com/ericfisherdev/issuesync/internal/domain/port/driven"
)

// enrichConcurrency bounds concurrent project lookups during a listing.
const enrichConcurrency = 10

// Lister serves paginated issue listings, optionally enriched with each
// issue's item and status on a project board.
type Lister struct {
	issues   driven.IssueTracker
	board    driven.ProjectBoard
	projects *ProjectResolver
}

// NewLister creates a Lister over the two tracker ports.
func NewLister(issues driven.IssueTracker, board driven.ProjectBoard) *Lister {
	return &Lister{
		issues:   issues,
		board:    board,
		projects: NewProjectResolver(board),
	}
}

// NormalizeListQuery trims q, applies the default page size and validates it.
func NormalizeListQuery(q model.ListIssuesQuery) (model.ListIssuesQuery, error) {
	q.Owner = strings.TrimSpace(q.Owner)
	q.Repo = strings.TrimSpace(q.Repo)
	q.ProjectTitle = strings.TrimSpace(q.ProjectTitle)

	if q.PerPage == 0 {
		q.PerPage = model.DefaultPerPage
	}

	switch {
	case q.Owner == "":
		return q, &model.ValidationError{Field: "owner", Reason: "must be non-empty"}
	case q.Repo == "":
		return q, &model.ValidationError{Field: "repo", Reason: "must be non-empty"}
	case q.Page < 1:
		return q, &model.ValidationError{Field: "page", Reason: "must be at least 1"}
	case q.PerPage < 1 || q.PerPage > model.MaxPerPage:
		return q, &model.ValidationError{Field: "per_page", Reason: fmt.Sprintf("must be between 1 and %d", model.MaxPerPage)}
	}
	return q, nil
}

// List returns one page of issues. When q.ETag still matches upstream the
// result is marked NotModified and carries no items.
func (l *Lister) List(ctx context.Context, q model.ListIssuesQuery) (*model.IssueList, error) {
	q, err := NormalizeListQuery(q)
	if err != nil {
		return nil, err
	}

	page, err := l.issues.ListIssues(ctx, q.Owner, q.Repo, driven.ListIssuesOptions{
		State:   "all",
		Page:    q.Page,
		PerPage: q.PerPage,
		ETag:    q.ETag,
	})
	if err != nil {
		return nil, fmt.Errorf("listing issues: %w", err)
	}

	list := &model.IssueList{
		Owner:        q.Owner,
		Repo:         q.Repo,
		ProjectTitle: q.ProjectTitle,
		ETag:         page.ETag,
		NotModified:  page.NotModified,
		Pagination:   model.Pagination{Page: q.Page, PerPage: q.PerPage},
		Items:        []model.IssueRecord{},
	}
	if page.NotModified {
		return list, nil
	}

	if page.NextPage != 0 {
		list.Pagination.HasNext = true
		list.Pagination.NextPage = page.NextPage
	}

	var project *model.ProjectContext
	if q.ProjectTitle != "" {
		project, err = l.projects.EnsureProject(ctx, q.Owner, q.Repo, q.ProjectTitle, false)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &model.ProjectError{Title: q.ProjectTitle, Err: err}
		}
	}

	list.Items = make([]model.IssueRecord, len(page.Issues))
	for i, is := range page.Issues {
		list.Items[i] = issueRecord(is)
	}

	if project != nil {
		if err := l.enrich(ctx, q, project, list.Items); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// enrich fills project item and status for every record. Lookup failures
// leave the record's enrichment fields empty.
func (l *Lister) enrich(ctx context.Context, q model.ListIssuesQuery, project *model.ProjectContext, records []model.IssueRecord) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)

	for i := range records {
		g.Go(func() error {
			rec := &records[i]
			m, err := l.board.GetProjectItem(gctx, q.Owner, q.Repo, rec.Number, project.ID)
			if err != nil {
				slog.Debug("listing enrichment failed", "number", rec.Number, "error", err)
				return nil
			}
			rec.ProjectItemID = m.ItemID
			rec.StatusOption = m.Status
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func issueRecord(is model.RemoteIssue) model.IssueRecord {
	labels := is.Labels
	if labels == nil {
		labels = []string{}
	}
	return model.IssueRecord{
		Number:    is.Number,
		URL:       is.URL,
		Title:     is.Title,
		Labels:    labels,
		State:     is.State,
		CreatedAt: is.CreatedAt,
		UpdatedAt: is.UpdatedAt,
	}
}
