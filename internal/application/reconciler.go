package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
	"github.com/ericfisherdev/issuesync/internal/domain/port/driven"
)

// RunMode selects how much of a reconciliation is carried out.
type RunMode int

const (
	// ModeValidate computes decisions only.
	ModeValidate RunMode = iota
	// ModeDryRun computes decisions and previews created bodies.
	ModeDryRun
	// ModeApply performs the mutations.
	ModeApply
)

// String returns a human-readable name for the mode.
func (m RunMode) String() string {
	switch m {
	case ModeValidate:
		return "validate"
	case ModeDryRun:
		return "dry-run"
	case ModeApply:
		return "apply"
	default:
		return fmt.Sprintf("RunMode(%d)", int(m))
	}
}

// itemState is the observed remote state of one desired item.
type itemState struct {
	existing          *model.RemoteIssue
	membership        model.ProjectMembership
	labelsSatisfied   bool
	inProject         bool
	needsStatusUpdate bool
	missingLabels     []string
}

type action int

const (
	actionCreate action = iota
	actionNone
	actionUpdate
)

// plan is the decision for one item.
type plan struct {
	action       action
	labels       []string // Labels to apply: all desired on create, missing ones on update.
	addToProject bool
	setStatus    bool
	changes      []model.Change
}

// computeItemState derives the boolean state from the observed remote values.
// project may be nil when the board does not exist (yet).
func computeItemState(desired []string, remote model.RemoteItemState, project *model.ProjectContext) itemState {
	if !remote.Present() {
		return itemState{}
	}

	existing, membership := remote.Issue, remote.Membership
	s := itemState{existing: existing, membership: membership}
	for _, l := range desired {
		if !existing.HasLabel(l) {
			s.missingLabels = append(s.missingLabels, l)
		}
	}
	s.labelsSatisfied = len(s.missingLabels) == 0
	s.inProject = membership.InProject()
	s.needsStatusUpdate = s.inProject && project.StatusEnabled() && !model.IsInitialStatus(membership.Status)
	return s
}

// decide applies the decision table to an item's state.
func decide(desired []string, s itemState, project *model.ProjectContext) plan {
	if s.existing == nil {
		return plan{
			action:       actionCreate,
			labels:       desired,
			addToProject: project != nil,
			setStatus:    project.StatusEnabled(),
		}
	}

	if s.labelsSatisfied && s.inProject && !s.needsStatusUpdate {
		return plan{action: actionNone}
	}

	p := plan{action: actionUpdate}
	if !s.labelsSatisfied {
		p.labels = s.missingLabels
		p.changes = append(p.changes, model.ChangeLabels)
	}
	if !s.inProject {
		p.addToProject = true
		p.changes = append(p.changes, model.ChangeProjectItem)
	}
	// Status is only reset for items already on the board.
	if s.needsStatusUpdate {
		p.setStatus = true
		p.changes = append(p.changes, model.ChangeStatus)
	}
	return p
}

// Reconciler converges a repository and its project board towards a list of
// desired issues. Items are processed sequentially in source order.
type Reconciler struct {
	issues   driven.IssueTracker
	board    driven.ProjectBoard
	matcher  *Matcher
	projects *ProjectResolver
	now      func() time.Time
}

// NewReconciler creates a Reconciler over the two tracker ports.
func NewReconciler(issues driven.IssueTracker, board driven.ProjectBoard) *Reconciler {
	return &Reconciler{
		issues:   issues,
		board:    board,
		matcher:  NewMatcher(issues),
		projects: NewProjectResolver(board),
		now:      time.Now,
	}
}

// WithClock replaces the clock used for report durations.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Run reconciles req. Validation failures return *model.ValidationError before
// any network call; a failure to resolve the project returns
// *model.ProjectError. Per-item failures are recorded in the report. Only
// ModeApply mutates remote state, and only ModeApply may create the project.
func (r *Reconciler) Run(ctx context.Context, req model.SyncRequest, mode RunMode) (*model.RunReport, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	report := NewReportBuilder(req, mode != ModeApply, r.now)
	logger := slog.With("owner", req.Owner, "repo", req.Repo, "mode", mode.String())

	project, err := r.projects.EnsureProject(ctx, req.Owner, req.Repo, req.ProjectTitle, mode == ModeApply)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &model.ProjectError{Title: req.ProjectTitle, Err: err}
	}
	if project != nil {
		report.SetProjectURL(project.URL)
	}

	for _, item := range req.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		desired := item.DesiredLabels()

		remote, err := r.observe(ctx, req, item, project)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("item lookup failed", "title", item.Title, "error", err)
			report.Failed(item.Title, model.ReasonLookupFailed, &model.LookupError{Title: item.Title, Err: err})
			continue
		}

		state := computeItemState(desired, remote, project)
		p := decide(desired, state, project)

		if mode != ModeApply {
			recordPlanned(report, req, item, state, p, mode)
			continue
		}

		if err := r.apply(ctx, req, item, state, p, project, report); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("item apply failed", "title", item.Title, "error", err)
			report.Failed(item.Title, failureReason(err), err)
		}
	}

	out := report.Finish(len(req.Items))
	logger.Info("reconciliation finished",
		"total", out.Metrics.Total,
		"created", out.Metrics.Created,
		"updated", out.Metrics.Updated,
		"unchanged", out.Metrics.Unchanged,
		"errors", out.Metrics.Errors,
		"duration_ms", out.Metrics.DurationMS,
	)
	return out, nil
}

// observe finds the remote counterpart of item and its project membership.
func (r *Reconciler) observe(ctx context.Context, req model.SyncRequest, item model.DesiredItem, project *model.ProjectContext) (model.RemoteItemState, error) {
	existing, err := r.matcher.FindExisting(ctx, req.Owner, req.Repo, item.Title)
	if err != nil {
		return model.RemoteItemState{}, err
	}

	var membership model.ProjectMembership
	if existing != nil && project != nil {
		membership, err = r.board.GetProjectItem(ctx, req.Owner, req.Repo, existing.Number, project.ID)
		if err != nil {
			if ctx.Err() != nil {
				return model.RemoteItemState{}, ctx.Err()
			}
			// Treated as not on the board.
			slog.Warn("project membership lookup failed",
				"title", item.Title,
				"number", existing.Number,
				"error", err,
			)
			membership = model.ProjectMembership{}
		}
	}

	return model.RemoteItemState{Issue: existing, Membership: membership}, nil
}

// recordPlanned buckets an item without mutating anything.
func recordPlanned(report *ReportBuilder, req model.SyncRequest, item model.DesiredItem, s itemState, p plan, mode RunMode) {
	switch p.action {
	case actionCreate:
		entry := model.ReportItem{Title: item.Title}
		if mode == ModeDryRun {
			entry.BodyPreview = item.ComposeBody(req.ProjectTitle)
			entry.BodyHTML = RenderBodyPreview(entry.BodyPreview)
		}
		report.Created(entry)
	case actionNone:
		report.Unchanged(model.ReportItem{Title: item.Title, Number: s.existing.Number, URL: s.existing.URL})
	case actionUpdate:
		report.Updated(model.UpdatedItem{
			Title:   item.Title,
			Number:  s.existing.Number,
			URL:     s.existing.URL,
			Changes: p.changes,
		})
	}
}

// apply carries out a plan and records the outcome.
func (r *Reconciler) apply(ctx context.Context, req model.SyncRequest, item model.DesiredItem, s itemState, p plan, project *model.ProjectContext, report *ReportBuilder) error {
	switch p.action {
	case actionNone:
		report.Unchanged(model.ReportItem{Title: item.Title, Number: s.existing.Number, URL: s.existing.URL})
		return nil
	case actionCreate:
		issue, err := r.create(ctx, req, item, p, project)
		if err != nil {
			return err
		}
		report.Created(model.ReportItem{Title: item.Title, Number: issue.Number, URL: issue.URL})
		return nil
	default:
		changes, err := r.update(ctx, req, s, p, project)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			report.Unchanged(model.ReportItem{Title: item.Title, Number: s.existing.Number, URL: s.existing.URL})
			return nil
		}
		report.Updated(model.UpdatedItem{
			Title:   item.Title,
			Number:  s.existing.Number,
			URL:     s.existing.URL,
			Changes: changes,
		})
		return nil
	}
}

func (r *Reconciler) create(ctx context.Context, req model.SyncRequest, item model.DesiredItem, p plan, project *model.ProjectContext) (*model.RemoteIssue, error) {
	if err := r.ensureLabels(ctx, req, p.labels); err != nil {
		return nil, err
	}

	body := item.ComposeBody(req.ProjectTitle)
	issue, err := r.issues.CreateIssue(ctx, req.Owner, req.Repo, item.Title, body, p.labels)
	if err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}
	slog.Info("issue created", "title", item.Title, "number", issue.Number)

	if !p.addToProject || project == nil {
		return issue, nil
	}

	itemID, err := r.addToProject(ctx, req, issue, project)
	if err != nil {
		return nil, err
	}

	if itemID == "" {
		m, err := r.board.GetProjectItem(ctx, req.Owner, req.Repo, issue.Number, project.ID)
		if err != nil {
			return nil, fmt.Errorf("fetching project item of #%d: %w", issue.Number, err)
		}
		itemID = m.ItemID
	}

	if p.setStatus && itemID != "" {
		if err := r.board.SetItemStatus(ctx, project.ID, itemID, project.StatusFieldID, project.InitialOptionID); err != nil {
			return nil, fmt.Errorf("setting initial status of #%d: %w", issue.Number, err)
		}
	}
	return issue, nil
}

func (r *Reconciler) update(ctx context.Context, req model.SyncRequest, s itemState, p plan, project *model.ProjectContext) ([]model.Change, error) {
	var changes []model.Change
	number := s.existing.Number

	if len(p.labels) > 0 {
		if err := r.ensureLabels(ctx, req, p.labels); err != nil {
			return nil, err
		}
		if err := r.issues.AddLabels(ctx, req.Owner, req.Repo, number, p.labels); err != nil {
			return nil, fmt.Errorf("adding labels to #%d: %w", number, err)
		}
		changes = append(changes, model.ChangeLabels)
	}

	if p.addToProject && project != nil {
		if _, err := r.addToProject(ctx, req, s.existing, project); err != nil {
			return nil, err
		}
		changes = append(changes, model.ChangeProjectItem)
	}

	if p.setStatus && project != nil && s.membership.ItemID != "" {
		if err := r.board.SetItemStatus(ctx, project.ID, s.membership.ItemID, project.StatusFieldID, project.InitialOptionID); err != nil {
			return nil, fmt.Errorf("resetting status of #%d: %w", number, err)
		}
		changes = append(changes, model.ChangeStatus)
	}

	return changes, nil
}

// addToProject adds issue to the board and returns the new item id, which is
// empty when the item was already present.
func (r *Reconciler) addToProject(ctx context.Context, req model.SyncRequest, issue *model.RemoteIssue, project *model.ProjectContext) (string, error) {
	nodeID := issue.NodeID
	if nodeID == "" {
		var err error
		nodeID, err = r.board.GetIssueNodeID(ctx, req.Owner, req.Repo, issue.Number)
		if err != nil {
			return "", fmt.Errorf("fetching node id of #%d: %w", issue.Number, err)
		}
	}

	itemID, err := r.board.AddProjectItem(ctx, project.ID, nodeID)
	if err != nil {
		return "", fmt.Errorf("adding #%d to project: %w", issue.Number, err)
	}
	return itemID, nil
}

// ensureLabels makes sure every label about to be applied exists.
func (r *Reconciler) ensureLabels(ctx context.Context, req model.SyncRequest, labels []string) error {
	for _, l := range labels {
		if err := r.issues.EnsureLabel(ctx, req.Owner, req.Repo, l); err != nil {
			return fmt.Errorf("ensuring label %q: %w", l, err)
		}
	}
	return nil
}

// failureReason maps an apply error to its report reason code.
func failureReason(err error) string {
	var (
		transportErr *model.TransportError
		httpErr      *model.HTTPError
		gqlErr       *model.GraphQLError
	)
	switch {
	case errors.As(err, &transportErr):
		return model.ReasonTransportError
	case errors.As(err, &httpErr):
		return model.ReasonHTTPError
	case errors.As(err, &gqlErr):
		return model.ReasonGraphQLError
	default:
		return model.ReasonGitHubError
	}
}
