package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
	"github.com/ericfisherdev/issuesync/internal/domain/port/driven"
)

// Slug fallback scan bounds.
const (
	slugScanPages   = 5
	slugScanPerPage = 100
)

// Matcher finds the remote counterpart of a desired issue by title.
type Matcher struct {
	issues driven.IssueTracker
}

// NewMatcher creates a Matcher over the given issue tracker.
func NewMatcher(issues driven.IssueTracker) *Matcher {
	return &Matcher{issues: issues}
}

// FindExisting returns the oldest issue whose title equals title, or whose
// slug equals title's slug when no exact match exists. The chosen issue is
// re-fetched so callers see its current labels. It returns nil when nothing
// matches.
func (m *Matcher) FindExisting(ctx context.Context, owner, repo, title string) (*model.RemoteIssue, error) {
	results, err := m.issues.SearchIssuesByTitle(ctx, owner, repo, title)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", title, err)
	}

	var candidates []model.RemoteIssue
	for _, is := range results {
		if is.Title == title {
			candidates = append(candidates, is)
		}
	}

	if len(candidates) == 0 {
		candidates, err = m.scanBySlug(ctx, owner, repo, title)
		if err != nil {
			return nil, err
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	chosen := oldest(candidates)
	slog.Debug("matched existing issue",
		"title", title,
		"number", chosen.Number,
		"candidates", len(candidates),
	)

	issue, err := m.issues.GetIssue(ctx, owner, repo, chosen.Number)
	if err != nil {
		return nil, fmt.Errorf("hydrating issue #%d: %w", chosen.Number, err)
	}
	return issue, nil
}

// scanBySlug walks the first pages of all issues looking for titles with the
// same slug. Pull requests are already excluded by the tracker.
func (m *Matcher) scanBySlug(ctx context.Context, owner, repo, title string) ([]model.RemoteIssue, error) {
	target := Slugify(title)
	if target == "" {
		return nil, nil
	}

	var candidates []model.RemoteIssue
	for page := 1; page <= slugScanPages; page++ {
		p, err := m.issues.ListIssues(ctx, owner, repo, driven.ListIssuesOptions{
			State:   "all",
			Page:    page,
			PerPage: slugScanPerPage,
		})
		if err != nil {
			return nil, fmt.Errorf("scanning issues page %d: %w", page, err)
		}

		for _, is := range p.Issues {
			if Slugify(is.Title) == target {
				candidates = append(candidates, is)
			}
		}

		if p.NextPage == 0 {
			break
		}
	}
	return candidates, nil
}

// oldest returns the candidate created first; ties keep source order.
func oldest(candidates []model.RemoteIssue) model.RemoteIssue {
	sorted := make([]model.RemoteIssue, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted[0]
}

// Slugify normalizes a title for fuzzy comparison: lower-case, punctuation
// removed, runs of whitespace and underscores collapsed to single hyphens.
func Slugify(title string) string {
	var b strings.Builder
	pendingHyphen := false

	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsSpace(r), r == '_', r == '-':
			pendingHyphen = true
		case unicode.IsLetter(r), unicode.IsNumber(r):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
