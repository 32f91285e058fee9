package model

import "time"

// RemoteIssue is an issue as observed on the tracker.
type RemoteIssue struct {
	Number    int
	NodeID    string // GraphQL node ID; may be empty when the REST payload omitted it.
	URL       string
	Title     string
	State     string
	Labels    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasLabel reports whether the issue carries the named label.
func (i RemoteIssue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// ProjectMembership describes an issue's item on a specific project board.
// A zero value means the issue is not on the board.
type ProjectMembership struct {
	ItemID string
	Status string // Current "Status" option name; empty when unset.
}

// InProject reports whether the issue has an item on the board.
func (m ProjectMembership) InProject() bool {
	return m.ItemID != ""
}

// RemoteItemState is what a lookup found for one desired item. Issue is nil
// when no counterpart exists; Membership is zero when the issue is not on the
// board or no board was resolved.
type RemoteItemState struct {
	Issue      *RemoteIssue
	Membership ProjectMembership
}

// Present reports whether a remote counterpart was found.
func (s RemoteItemState) Present() bool {
	return s.Issue != nil
}

// OwnerType distinguishes organization-owned from user-owned accounts.
type OwnerType string

const (
	OwnerOrganization OwnerType = "Organization"
	OwnerUser         OwnerType = "User"
)

// OwnerIdentity holds the node identities needed to find or create a project:
// the repository owner and the authenticated viewer.
type OwnerIdentity struct {
	OwnerID     string
	OwnerLogin  string
	OwnerType   OwnerType
	ViewerID    string
	ViewerLogin string
}

// ProjectSummary is a project board as listed under an account.
type ProjectSummary struct {
	ID     string
	Number int
	Title  string
}

// ProjectMeta is the metadata needed to build a project's public URL.
type ProjectMeta struct {
	Number     int
	Title      string
	OwnerType  OwnerType
	OwnerLogin string
}

// FieldKind classifies a project field.
type FieldKind string

const (
	FieldSingleSelect FieldKind = "single_select"
	FieldOther        FieldKind = "other"
)

// FieldOption is one option of a single-select field.
type FieldOption struct {
	ID   string
	Name string
}

// ProjectField is a project field definition. Options is only populated for
// single-select fields.
type ProjectField struct {
	ID      string
	Name    string
	Kind    FieldKind
	Options []FieldOption
}

// StatusFieldName is the name of the single-select field holding an item's status.
const StatusFieldName = "Status"

// InitialStatusAliases lists, in priority order, option names that represent
// an initial/backlog status.
var InitialStatusAliases = []string{"To do", "Todo", "Not started", "Backlog"}

// IsInitialStatus reports whether name is one of InitialStatusAliases.
func IsInitialStatus(name string) bool {
	for _, alias := range InitialStatusAliases {
		if name == alias {
			return true
		}
	}
	return false
}

// ProjectContext is resolved once per run and shared read-only by every item.
type ProjectContext struct {
	ID              string
	Number          int
	URL             string
	StatusFieldID   string
	InitialOptionID string
	StatusOptions   map[string]string // Option name to option ID.
}

// StatusEnabled reports whether status updates can be applied. When the
// board has no "Status" field or none of the initial aliases, status actions
// are skipped.
func (p *ProjectContext) StatusEnabled() bool {
	return p != nil && p.StatusFieldID != "" && p.InitialOptionID != ""
}
