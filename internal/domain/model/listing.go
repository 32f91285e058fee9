package model

import "time"

// IssueRecord is one row of an issue listing, optionally enriched with the
// issue's item and status on a project board.
type IssueRecord struct {
	Number        int       `json:"number"`
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Labels        []string  `json:"labels"`
	State         string    `json:"state"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	ProjectItemID string    `json:"project_item_id,omitempty"`
	StatusOption  string    `json:"status_option,omitempty"`
}

// Pagination describes where a listing page sits.
type Pagination struct {
	Page     int  `json:"page"`
	PerPage  int  `json:"per_page"`
	HasNext  bool `json:"has_next"`
	NextPage int  `json:"next_page,omitempty"`
}

// IssueList is a page of issues. NotModified is set when the caller's entity
// tag still matches; Items is then empty and the caller keeps its prior copy.
type IssueList struct {
	Owner        string        `json:"owner"`
	Repo         string        `json:"repo"`
	ProjectTitle string        `json:"project_title,omitempty"`
	ETag         string        `json:"etag,omitempty"`
	NotModified  bool          `json:"-"`
	Pagination   Pagination    `json:"pagination"`
	Items        []IssueRecord `json:"items"`
}

// ListIssuesQuery selects a page of issues to list.
type ListIssuesQuery struct {
	Owner        string
	Repo         string
	ProjectTitle string // Optional; enables project enrichment when set.
	Page         int
	PerPage      int
	ETag         string // Optional conditional-request token.
}

// Listing page-size bounds.
const (
	DefaultPerPage = 50
	MaxPerPage     = 100
)

// RunSettings is the immutable per-call configuration for talking to the
// tracker. It is passed explicitly into every run.
type RunSettings struct {
	Token          string
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
}
