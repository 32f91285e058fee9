package application_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/issuesync/internal/application"
	"github.com/ericfisherdev/issuesync/internal/domain/model"
	"github.com/ericfisherdev/issuesync/internal/domain/port/driven"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Fix Bug: Memory Leak!!", "fix-bug-memory-leak"},
		{"fix-bug-memory-leak", "fix-bug-memory-leak"},
		{"  Hello   World  ", "hello-world"},
		{"snake_case_title", "snake-case-title"},
		{"--Leading and trailing--", "leading-and-trailing"},
		{"Mixed -_- separators", "mixed-separators"},
		{"Add CI (v2)", "add-ci-v2"},
		{"!!!", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, application.Slugify(tt.in))
		})
	}
}

func TestMatcher_ExactMatchPicksOldest(t *testing.T) {
	f := newFakeTracker()
	f.seed("Add CI pipeline", baseTime)
	newer := f.seed("Add CI", baseTime.Add(2*time.Hour))
	older := f.seed("Add CI", baseTime.Add(time.Hour))

	got, err := application.NewMatcher(f).FindExisting(context.Background(), testOwner, testRepo, "Add CI")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, older, got.Number)
	assert.NotEqual(t, newer, got.Number)
	assert.Equal(t, 1, f.callCount("GetIssue"), "chosen issue should be re-fetched once")
	assert.Zero(t, f.callCount("ListIssues"), "slug scan must not run when an exact match exists")
}

func TestMatcher_SlugFallback(t *testing.T) {
	f := newFakeTracker()
	f.seed("unrelated", baseTime)
	n := f.seed("fix-bug-memory-leak", baseTime.Add(time.Hour))

	got, err := application.NewMatcher(f).FindExisting(context.Background(), testOwner, testRepo, "Fix Bug: Memory Leak!!")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, n, got.Number)
	assert.Equal(t, 1, f.callCount("ListIssues"))
}

func TestMatcher_SlugFallbackPicksOldest(t *testing.T) {
	f := newFakeTracker()
	f.seed("Fix bug memory leak", baseTime.Add(3*time.Hour))
	oldest := f.seed("fix_bug_memory_leak", baseTime.Add(time.Hour))

	got, err := application.NewMatcher(f).FindExisting(context.Background(), testOwner, testRepo, "Fix Bug: Memory Leak!!")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, oldest, got.Number)
}

func TestMatcher_NoMatchReturnsNil(t *testing.T) {
	f := newFakeTracker()
	f.seed("Something else", baseTime)

	got, err := application.NewMatcher(f).FindExisting(context.Background(), testOwner, testRepo, "Add CI")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, f.callCount("GetIssue"))
}

func TestMatcher_SlugScanBoundedToFivePages(t *testing.T) {
	f := newFakeTracker()
	var pages []int
	f.listFn = func(opts driven.ListIssuesOptions) (*driven.IssuePage, error) {
		pages = append(pages, opts.Page)
		assert.Equal(t, "all", opts.State)
		assert.Equal(t, 100, opts.PerPage)
		return &driven.IssuePage{
			Issues:   []model.RemoteIssue{{Number: opts.Page, Title: "no match"}},
			NextPage: opts.Page + 1,
		}, nil
	}

	got, err := application.NewMatcher(f).FindExisting(context.Background(), testOwner, testRepo, "Add CI")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, pages)
}

func TestMatcher_SlugScanStopsOnLastPage(t *testing.T) {
	f := newFakeTracker()
	f.listFn = func(opts driven.ListIssuesOptions) (*driven.IssuePage, error) {
		next := 0
		if opts.Page < 2 {
			next = opts.Page + 1
		}
		return &driven.IssuePage{NextPage: next}, nil
	}

	_, err := application.NewMatcher(f).FindExisting(context.Background(), testOwner, testRepo, "Add CI")
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount("ListIssues"))
}

func TestMatcher_SearchErrorIsWrapped(t *testing.T) {
	f := newFakeTracker()
	f.searchErr = &model.HTTPError{Op: "searching issues", Status: http.StatusUnprocessableEntity}

	_, err := application.NewMatcher(f).FindExisting(context.Background(), testOwner, testRepo, "Add CI")
	require.Error(t, err)

	var httpErr *model.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.Status)
}

func TestMatcher_ScanErrorIsWrapped(t *testing.T) {
	f := newFakeTracker()
	f.listFn = func(driven.ListIssuesOptions) (*driven.IssuePage, error) {
		return nil, &model.TransportError{Op: "listing issues", Attempts: 6, Err: errors.New("connection reset")}
	}

	_, err := application.NewMatcher(f).FindExisting(context.Background(), testOwner, testRepo, "Add CI")
	require.Error(t, err)

	var transportErr *model.TransportError
	assert.True(t, errors.As(err, &transportErr))
}
