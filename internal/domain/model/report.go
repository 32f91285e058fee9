package model

// Change names one kind of incremental update applied to an existing issue.
type Change string

const (
	ChangeLabels      Change = "labels"
	ChangeProjectItem Change = "project_item"
	ChangeStatus      Change = "status"
)

// Error reason codes recorded in a report's error bucket.
const (
	ReasonLookupFailed   = "lookup_failed"
	ReasonHTTPError      = "http_error"
	ReasonGraphQLError   = "graphql_error"
	ReasonTransportError = "transport_error"
	ReasonGitHubError    = "github_error"
)

// ReportItem identifies an issue in the created or unchanged bucket.
// Number is 0 and URL empty for planned creations in a dry run.
type ReportItem struct {
	Title       string `json:"title"`
	Number      int    `json:"number"`
	URL         string `json:"url"`
	BodyPreview string `json:"body_preview,omitempty"`
	BodyHTML    string `json:"body_html,omitempty"`
}

// UpdatedItem identifies an updated issue and what was touched.
type UpdatedItem struct {
	Title   string   `json:"title"`
	Number  int      `json:"number"`
	URL     string   `json:"url"`
	Changes []Change `json:"changes"`
}

// ErrorItem records a per-item failure.
type ErrorItem struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
	Detail string `json:"detail"`
}

// Metrics summarizes a run.
type Metrics struct {
	Total      int   `json:"total"`
	Created    int   `json:"created"`
	Updated    int   `json:"updated"`
	Unchanged  int   `json:"unchanged"`
	Errors     int   `json:"errors"`
	DurationMS int64 `json:"duration_ms"`
}

// RunReport is the outcome of a validate or sync run. Each bucket keeps the
// source order of the desired items.
type RunReport struct {
	Owner        string        `json:"owner"`
	Repo         string        `json:"repo"`
	ProjectTitle string        `json:"project_title"`
	ProjectURL   string        `json:"project_url,omitempty"`
	DryRun       bool          `json:"dry_run"`
	Created      []ReportItem  `json:"created"`
	Updated      []UpdatedItem `json:"updated"`
	Unchanged    []ReportItem  `json:"unchanged"`
	Errors       []ErrorItem   `json:"errors"`
	Metrics      Metrics       `json:"metrics"`
}
