package model

import (
	"fmt"
	"sort"
	"strings"
)

// Estimate is a coarse size estimate attached to a desired issue.
type Estimate string

const (
	EstimateSmall  Estimate = "S"
	EstimateMedium Estimate = "M"
	EstimateLarge  Estimate = "L"
)

// Valid reports whether e is empty or one of the known sizes.
func (e Estimate) Valid() bool {
	switch e {
	case "", EstimateSmall, EstimateMedium, EstimateLarge:
		return true
	default:
		return false
	}
}

// EpicLabels maps short epic codes to the label applied to their issues.
var EpicLabels = map[string]string{
	"E1": "epic/E1-Repo-Hygiene",
	"E2": "epic/E2-Testing",
	"E3": "epic/E3-Postgres",
	"E4": "epic/E4-Runtime",
	"E5": "epic/E5-Observability-Security",
	"E6": "epic/E6-Models-Docs",
}

// DesiredItem is a caller-specified issue to reconcile into the tracker.
// Title is the only identity used for matching.
type DesiredItem struct {
	Title     string   `json:"title" yaml:"title"`
	Summary   string   `json:"summary" yaml:"summary"`
	EpicLabel string   `json:"epic_label,omitempty" yaml:"epic_label,omitempty"`
	EpicID    string   `json:"epic_id,omitempty" yaml:"epic_id,omitempty"` // Resolved through EpicLabels when EpicLabel is empty.
	Labels    []string `json:"labels" yaml:"labels"`
	DependsOn []string `json:"depends_on" yaml:"depends_on"`
	Estimate  Estimate `json:"estimate,omitempty" yaml:"estimate,omitempty"`
}

// Epic returns the epic label for the item. An explicit EpicLabel wins;
// otherwise EpicID is looked up in EpicLabels. Unknown codes yield "".
func (d DesiredItem) Epic() string {
	if d.EpicLabel != "" {
		return d.EpicLabel
	}
	return EpicLabels[d.EpicID]
}

// DesiredLabels returns the explicit labels plus the epic label,
// de-duplicated and sorted.
func (d DesiredItem) DesiredLabels() []string {
	seen := make(map[string]bool, len(d.Labels)+1)
	labels := make([]string, 0, len(d.Labels)+1)

	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		labels = append(labels, name)
	}

	for _, l := range d.Labels {
		add(l)
	}
	add(d.Epic())

	sort.Strings(labels)
	return labels
}

// ComposeBody builds the markdown body used when the item is created.
func (d DesiredItem) ComposeBody(projectTitle string) string {
	parts := []string{
		"Summary: " + d.Summary,
		strings.TrimRight("Epic: "+d.Epic(), " "),
		strings.TrimRight("Depends on: "+strings.Join(d.DependsOn, ", "), " "),
		strings.TrimRight("Estimate: "+string(d.Estimate), " "),
		"Project: " + projectTitle,
	}
	return strings.Join(parts, "\n\n")
}

// SyncRequest bundles the target repository and project with the ordered
// list of desired items.
type SyncRequest struct {
	Owner        string        `json:"owner" yaml:"owner"`
	Repo         string        `json:"repo" yaml:"repo"`
	ProjectTitle string        `json:"project_title" yaml:"project_title"`
	DryRun       bool          `json:"dry_run" yaml:"dry_run"`
	Items        []DesiredItem `json:"items" yaml:"items"`
}

// WithDefaults returns a copy of r where blank owner, repo and project title
// are replaced by the given defaults.
func (r SyncRequest) WithDefaults(owner, repo, projectTitle string) SyncRequest {
	if strings.TrimSpace(r.Owner) == "" {
		r.Owner = owner
	}
	if strings.TrimSpace(r.Repo) == "" {
		r.Repo = repo
	}
	if strings.TrimSpace(r.ProjectTitle) == "" {
		r.ProjectTitle = projectTitle
	}
	return r
}

// Normalize trims every identifying field in place and validates the request.
// It returns a *ValidationError describing the first problem found.
func (r *SyncRequest) Normalize() error {
	r.Owner = strings.TrimSpace(r.Owner)
	r.Repo = strings.TrimSpace(r.Repo)
	r.ProjectTitle = strings.TrimSpace(r.ProjectTitle)

	switch {
	case r.Owner == "":
		return &ValidationError{Field: "owner", Reason: "must be non-empty"}
	case r.Repo == "":
		return &ValidationError{Field: "repo", Reason: "must be non-empty"}
	case r.ProjectTitle == "":
		return &ValidationError{Field: "project_title", Reason: "must be non-empty"}
	}

	// Items are copied so the caller's slice is never modified.
	items := make([]DesiredItem, len(r.Items))
	copy(items, r.Items)
	r.Items = items

	for i := range r.Items {
		item := &r.Items[i]
		item.Title = strings.TrimSpace(item.Title)
		if item.Title == "" {
			return &ValidationError{Field: fmt.Sprintf("items[%d].title", i), Reason: "must be non-empty"}
		}
		if !item.Estimate.Valid() {
			return &ValidationError{
				Field:  fmt.Sprintf("items[%d].estimate", i),
				Reason: fmt.Sprintf("unknown estimate %q (want S, M or L)", item.Estimate),
			}
		}
	}

	return nil
}
