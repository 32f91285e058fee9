package application_test

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
	"github.com/ericfisherdev/issuesync/internal/domain/port/driven"
)

const (
	testOwner     = "acme"
	testRepo      = "widgets"
	testProject   = "Roadmap"
	testOwnerID   = "O_acme"
	testViewerID  = "U_octocat"
	testProjectID = "PVT_1"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// --- In-memory tracker used by the application tests ---

// fakeTracker is a small stateful stand-in for GitHub. It holds issues,
// labels and one project board, and counts every port call.
type fakeTracker struct {
	mu sync.Mutex

	issues      []model.RemoteIssue
	labels      map[string]bool
	omitNodeIDs bool

	identity model.OwnerIdentity
	projects map[string][]model.ProjectSummary // By owner node id.
	meta     model.ProjectMeta
	fields   []model.ProjectField
	items    map[int]model.ProjectMembership // By issue number.

	// Failure injection.
	searchErr        error
	listFn           func(opts driven.ListIssuesOptions) (*driven.IssuePage, error)
	createErrFor     map[string]error
	membershipErr    error
	ownerErr         error
	createProjectErr map[string]error
	addAlready       bool

	calls      map[string]int
	closeCalls int
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		labels: map[string]bool{},
		identity: model.OwnerIdentity{
			OwnerID:     testOwnerID,
			OwnerLogin:  testOwner,
			OwnerType:   model.OwnerOrganization,
			ViewerID:    testViewerID,
			ViewerLogin: "octocat",
		},
		projects: map[string][]model.ProjectSummary{
			testOwnerID: {{ID: testProjectID, Number: 7, Title: testProject}},
		},
		meta: model.ProjectMeta{
			Number:     7,
			Title:      testProject,
			OwnerType:  model.OwnerOrganization,
			OwnerLogin: testOwner,
		},
		fields: []model.ProjectField{
			{ID: "F_title", Name: "Title", Kind: model.FieldOther},
			{
				ID:   "F_status",
				Name: model.StatusFieldName,
				Kind: model.FieldSingleSelect,
				Options: []model.FieldOption{
					{ID: "opt_todo", Name: "Todo"},
					{ID: "opt_progress", Name: "In Progress"},
					{ID: "opt_done", Name: "Done"},
				},
			},
		},
		items:            map[int]model.ProjectMembership{},
		createErrFor:     map[string]error{},
		createProjectErr: map[string]error{},
		calls:            map[string]int{},
	}
}

// seed adds an existing issue and returns its number.
func (f *fakeTracker) seed(title string, createdAt time.Time, labels ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(title, createdAt, labels)
}

// seedOnBoard adds an existing issue that already sits on the board.
func (f *fakeTracker) seedOnBoard(title, status string, labels ...string) int {
	n := f.seed(title, baseTime, labels...)
	f.mu.Lock()
	f.items[n] = model.ProjectMembership{ItemID: fmt.Sprintf("PVTI_%d", n), Status: status}
	f.mu.Unlock()
	return n
}

func (f *fakeTracker) insertLocked(title string, createdAt time.Time, labels []string) int {
	n := len(f.issues) + 1
	nodeID := fmt.Sprintf("I_%d", n)
	if f.omitNodeIDs {
		nodeID = ""
	}
	f.issues = append(f.issues, model.RemoteIssue{
		Number:    n,
		NodeID:    nodeID,
		URL:       fmt.Sprintf("https://github.com/%s/%s/issues/%d", testOwner, testRepo, n),
		Title:     title,
		State:     "open",
		Labels:    append([]string(nil), labels...),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
	return n
}

func (f *fakeTracker) record(name string) {
	f.calls[name]++
}

// callCount returns how often the named port method was called.
func (f *fakeTracker) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// totalCalls returns the number of port calls of any kind.
func (f *fakeTracker) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// mutations counts calls that would change remote state.
func (f *fakeTracker) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls["CreateIssue"] + f.calls["AddLabels"] + f.calls["EnsureLabel"] +
		f.calls["CreateProject"] + f.calls["AddProjectItem"] + f.calls["SetItemStatus"]
}

func (f *fakeTracker) issue(number int) model.RemoteIssue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issues[number-1]
}

func (f *fakeTracker) membership(number int) model.ProjectMembership {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[number]
}

func (f *fakeTracker) ListIssues(_ context.Context, _, _ string, opts driven.ListIssuesOptions) (*driven.IssuePage, error) {
	f.mu.Lock()
	f.record("ListIssues")
	listFn := f.listFn
	f.mu.Unlock()

	if listFn != nil {
		return listFn(opts)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	start := (opts.Page - 1) * opts.PerPage
	if start > len(f.issues) {
		start = len(f.issues)
	}
	end := start + opts.PerPage
	if end > len(f.issues) {
		end = len(f.issues)
	}

	page := &driven.IssuePage{
		Issues: append([]model.RemoteIssue(nil), f.issues[start:end]...),
		ETag:   fmt.Sprintf(`W/"page-%d"`, opts.Page),
	}
	if end < len(f.issues) {
		page.NextPage = opts.Page + 1
	}
	return page, nil
}

func (f *fakeTracker) GetIssue(_ context.Context, owner, repo string, number int) (*model.RemoteIssue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetIssue")

	if number < 1 || number > len(f.issues) {
		return nil, &model.HTTPError{Op: fmt.Sprintf("fetching issue %s/%s#%d", owner, repo, number), Status: http.StatusNotFound}
	}
	is := f.issues[number-1]
	is.Labels = append([]string(nil), is.Labels...)
	return &is, nil
}

func (f *fakeTracker) SearchIssuesByTitle(_ context.Context, _, _, title string) ([]model.RemoteIssue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SearchIssuesByTitle")

	if f.searchErr != nil {
		return nil, f.searchErr
	}

	needle := strings.ToLower(title)
	var out []model.RemoteIssue
	for _, is := range f.issues {
		if strings.Contains(strings.ToLower(is.Title), needle) {
			out = append(out, is)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeTracker) CreateIssue(_ context.Context, _, _, title, _ string, labels []string) (*model.RemoteIssue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateIssue")

	if err := f.createErrFor[title]; err != nil {
		return nil, err
	}
	n := f.insertLocked(title, baseTime.Add(time.Duration(len(f.issues)+1)*time.Hour), labels)
	is := f.issues[n-1]
	return &is, nil
}

func (f *fakeTracker) AddLabels(_ context.Context, _, _ string, number int, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AddLabels")

	is := &f.issues[number-1]
	for _, l := range labels {
		if !is.HasLabel(l) {
			is.Labels = append(is.Labels, l)
		}
	}
	return nil
}

func (f *fakeTracker) EnsureLabel(_ context.Context, _, _, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("EnsureLabel")
	f.labels[name] = true
	return nil
}

func (f *fakeTracker) ResolveOwnerAndViewer(_ context.Context, _, _ string) (*model.OwnerIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ResolveOwnerAndViewer")

	if f.ownerErr != nil {
		return nil, f.ownerErr
	}
	ids := f.identity
	return &ids, nil
}

func (f *fakeTracker) ListProjects(_ context.Context, ownerID string) ([]model.ProjectSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListProjects")
	return append([]model.ProjectSummary(nil), f.projects[ownerID]...), nil
}

func (f *fakeTracker) CreateProject(_ context.Context, ownerID, title string) (*model.ProjectSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateProject")

	if err := f.createProjectErr[ownerID]; err != nil {
		return nil, err
	}
	p := model.ProjectSummary{ID: "PVT_new", Number: 8, Title: title}
	f.projects[ownerID] = append(f.projects[ownerID], p)
	f.meta.Number = p.Number
	f.meta.Title = title
	return &p, nil
}

func (f *fakeTracker) GetProjectMeta(_ context.Context, _ string) (*model.ProjectMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetProjectMeta")
	meta := f.meta
	return &meta, nil
}

func (f *fakeTracker) GetProjectFields(_ context.Context, _ string) ([]model.ProjectField, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetProjectFields")
	return f.fields, nil
}

func (f *fakeTracker) GetIssueNodeID(_ context.Context, _, _ string, number int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetIssueNodeID")
	return fmt.Sprintf("I_%d", number), nil
}

func (f *fakeTracker) AddProjectItem(_ context.Context, _, contentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AddProjectItem")

	var n int
	if _, err := fmt.Sscanf(contentID, "I_%d", &n); err != nil {
		return "", &model.GraphQLError{Op: "addProjectV2ItemById", Messages: []string{"Could not resolve to a node"}}
	}
	if _, ok := f.items[n]; ok {
		return "", nil
	}
	f.items[n] = model.ProjectMembership{ItemID: fmt.Sprintf("PVTI_%d", n)}
	if f.addAlready {
		return "", nil
	}
	return f.items[n].ItemID, nil
}

func (f *fakeTracker) GetProjectItem(_ context.Context, _, _ string, number int, _ string) (model.ProjectMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetProjectItem")

	if f.membershipErr != nil {
		return model.ProjectMembership{}, f.membershipErr
	}
	return f.items[number], nil
}

func (f *fakeTracker) SetItemStatus(_ context.Context, _, itemID, _, optionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetItemStatus")

	var name string
	for _, fld := range f.fields {
		for _, o := range fld.Options {
			if o.ID == optionID {
				name = o.Name
			}
		}
	}
	for n, m := range f.items {
		if m.ItemID == itemID {
			m.Status = name
			f.items[n] = m
		}
	}
	return nil
}

func (f *fakeTracker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

// --- Factory ---

type fakeFactory struct {
	tracker *fakeTracker
	err     error
	opened  []model.RunSettings
}

func (f *fakeFactory) Open(settings model.RunSettings) (driven.Tracker, error) {
	f.opened = append(f.opened, settings)
	if f.err != nil {
		return nil, f.err
	}
	return f.tracker, nil
}

// --- Helpers ---

func syncRequest(items ...model.DesiredItem) model.SyncRequest {
	return model.SyncRequest{
		Owner:        testOwner,
		Repo:         testRepo,
		ProjectTitle: testProject,
		Items:        items,
	}
}

func desired(title string, labels ...string) model.DesiredItem {
	return model.DesiredItem{
		Title:   title,
		Summary: "Summary of " + title,
		Labels:  labels,
	}
}

// steppingClock returns a clock advancing by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := baseTime
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}
