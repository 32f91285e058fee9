package driven

import (
	"context"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
)

// IssuePage is one page of a repository issue listing.
type IssuePage struct {
	Issues      []model.RemoteIssue
	NextPage    int // 0 when this is the last page.
	ETag        string
	NotModified bool // The caller's entity tag still matches; Issues is empty.
}

// ListIssuesOptions selects a page of repository issues. State is "open",
// "closed" or "all".
type ListIssuesOptions struct {
	State   string
	Page    int
	PerPage int
	ETag    string
}

// IssueTracker defines the driven port for the REST side of the tracker:
// issues, labels and search.
type IssueTracker interface {
	// ListIssues returns one page of issues. Pull requests are excluded.
	ListIssues(ctx context.Context, owner, repo string, opts ListIssuesOptions) (*IssuePage, error)
	GetIssue(ctx context.Context, owner, repo string, number int) (*model.RemoteIssue, error)
	// SearchIssuesByTitle returns issues whose title contains title, oldest first.
	// Callers filter for exact equality.
	SearchIssuesByTitle(ctx context.Context, owner, repo, title string) ([]model.RemoteIssue, error)
	CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (*model.RemoteIssue, error)
	AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error
	// EnsureLabel creates the label when it does not exist yet.
	EnsureLabel(ctx context.Context, owner, repo, name string) error
}

// ProjectBoard defines the driven port for the GraphQL side of the tracker:
// project boards, their fields and items.
type ProjectBoard interface {
	ResolveOwnerAndViewer(ctx context.Context, owner, repo string) (*model.OwnerIdentity, error)
	ListProjects(ctx context.Context, ownerID string) ([]model.ProjectSummary, error)
	CreateProject(ctx context.Context, ownerID, title string) (*model.ProjectSummary, error)
	GetProjectMeta(ctx context.Context, projectID string) (*model.ProjectMeta, error)
	GetProjectFields(ctx context.Context, projectID string) ([]model.ProjectField, error)
	GetIssueNodeID(ctx context.Context, owner, repo string, number int) (string, error)
	// AddProjectItem adds the content node to the project and returns the new
	// item id. An empty id with a nil error means the item was already present.
	AddProjectItem(ctx context.Context, projectID, contentID string) (string, error)
	// GetProjectItem returns the issue's membership on the given project.
	// A zero membership means the issue is not on the board.
	GetProjectItem(ctx context.Context, owner, repo string, number int, projectID string) (model.ProjectMembership, error)
	SetItemStatus(ctx context.Context, projectID, itemID, fieldID, optionID string) error
}

// Tracker is a per-run handle on both sides of the tracker. Close releases
// the run's transport stack and is safe to call more than once.
type Tracker interface {
	IssueTracker
	ProjectBoard
	Close() error
}

// TrackerFactory opens a Tracker for one run.
type TrackerFactory interface {
	Open(settings model.RunSettings) (Tracker, error)
}
