package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
	"github.com/ericfisherdev/issuesync/internal/domain/port/driven"
)

// ProjectResolver resolves, and optionally creates, the project board a run
// targets along with its status vocabulary.
type ProjectResolver struct {
	board driven.ProjectBoard
}

// NewProjectResolver creates a ProjectResolver over the given board port.
func NewProjectResolver(board driven.ProjectBoard) *ProjectResolver {
	return &ProjectResolver{board: board}
}

// EnsureProject finds the project titled title under the repository owner.
// When it is absent and createIfMissing is set, it is created under the owner,
// falling back to the viewer's account. It returns nil when the project does
// not exist and may not be created.
func (r *ProjectResolver) EnsureProject(ctx context.Context, owner, repo, title string, createIfMissing bool) (*model.ProjectContext, error) {
	ids, err := r.board.ResolveOwnerAndViewer(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("resolving owner of %s/%s: %w", owner, repo, err)
	}

	project, err := r.findProject(ctx, ids.OwnerID, title)
	if err != nil {
		return nil, err
	}

	if project == nil {
		if !createIfMissing {
			return nil, nil
		}
		project, err = r.createProject(ctx, ids, title)
		if err != nil {
			return nil, err
		}
	}

	meta, err := r.board.GetProjectMeta(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching project meta: %w", err)
	}

	pc := &model.ProjectContext{
		ID:            project.ID,
		Number:        meta.Number,
		URL:           ProjectURL(meta, owner),
		StatusOptions: map[string]string{},
	}

	fields, err := r.board.GetProjectFields(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching project fields: %w", err)
	}
	resolveStatus(pc, fields)

	if !pc.StatusEnabled() {
		slog.Warn("project has no usable status field; status updates disabled",
			"project", title,
			"url", pc.URL,
		)
	}
	return pc, nil
}

func (r *ProjectResolver) findProject(ctx context.Context, ownerID, title string) (*model.ProjectSummary, error) {
	projects, err := r.board.ListProjects(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	for i := range projects {
		if projects[i].Title == title {
			return &projects[i], nil
		}
	}
	return nil, nil
}

func (r *ProjectResolver) createProject(ctx context.Context, ids *model.OwnerIdentity, title string) (*model.ProjectSummary, error) {
	project, err := r.board.CreateProject(ctx, ids.OwnerID, title)
	if err == nil {
		return project, nil
	}

	slog.Warn("owner-scoped project creation failed, falling back to viewer",
		"owner", ids.OwnerLogin,
		"viewer", ids.ViewerLogin,
		"error", err,
	)
	project, viewerErr := r.board.CreateProject(ctx, ids.ViewerID, title)
	if viewerErr != nil {
		return nil, fmt.Errorf("creating project %q (owner: %v): %w", title, err, viewerErr)
	}
	return project, nil
}

// ProjectURL builds the public URL of a project. Owners that are neither an
// organization nor a user fall back to the organization form with the
// requested owner login.
func ProjectURL(meta *model.ProjectMeta, requestedOwner string) string {
	switch meta.OwnerType {
	case model.OwnerOrganization:
		return fmt.Sprintf("https://github.com/orgs/%s/projects/%d", meta.OwnerLogin, meta.Number)
	case model.OwnerUser:
		return fmt.Sprintf("https://github.com/users/%s/projects/%d", meta.OwnerLogin, meta.Number)
	default:
		return fmt.Sprintf("https://github.com/orgs/%s/projects/%d", requestedOwner, meta.Number)
	}
}

// resolveStatus fills the status field, its options and the initial option.
func resolveStatus(pc *model.ProjectContext, fields []model.ProjectField) {
	for _, f := range fields {
		if f.Kind != model.FieldSingleSelect || f.Name != model.StatusFieldName {
			continue
		}
		pc.StatusFieldID = f.ID
		for _, o := range f.Options {
			pc.StatusOptions[o.Name] = o.ID
		}
		for _, alias := range model.InitialStatusAliases {
			if id, ok := pc.StatusOptions[alias]; ok {
				pc.InitialOptionID = id
				break
			}
		}
		return
	}
}
