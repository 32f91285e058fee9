// Package github implements the IssueTracker and ProjectBoard ports on top of
// the GitHub REST (go-github) and GraphQL APIs.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit/github_secondary_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/google/go-querystring/query"
	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
	"github.com/ericfisherdev/issuesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Tracker = (*Client)(nil)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com/"

// labelColor is applied to labels created on demand.
const labelColor = "ededed"

// Client is a per-run handle on GitHub. The transport stack is, from the top:
//  1. go-github (REST client with token auth)
//  2. retryTransport (backoff on 429/5xx/secondary limits and network failures)
//  3. go-github-ratelimit (primary limit guard; secondary limits are detected
//     but never slept on, so they surface to the retry layer)
//  4. cacheBypass + httpcache (in-memory ETag revalidation, scoped to this
//     client; requests carrying the caller's own validator skip the cache)
//  5. the base transport
//
// GraphQL requests enter at layer 3 and are retried by graphqlCall, which
// also inspects GraphQL-level errors.
type Client struct {
	gh         *gh.Client
	graphqlRT  http.RoundTripper
	graphqlURL string
	token      string
	retrier    *Retrier
	timeout    time.Duration
	base       http.RoundTripper
	logger     *slog.Logger
	closeOnce  sync.Once
}

type clientOptions struct {
	transport   http.RoundTripper
	retrierOpts []RetrierOption
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

// WithTransport sets the base transport beneath the cache layer.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithRetrierOptions passes options through to the client's Retrier.
func WithRetrierOptions(opts ...RetrierOption) Option {
	return func(o *clientOptions) { o.retrierOpts = append(o.retrierOpts, opts...) }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// NewClient builds a Client for one run from the given settings.
func NewClient(settings model.RunSettings, opts ...Option) (*Client, error) {
	o := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	base := o.transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}

	cacheTransport := &httpcache.Transport{
		Transport:           base,
		Cache:               httpcache.NewMemoryCache(),
		MarkCachedResponses: true,
	}
	logger := o.logger
	rateLimited := github_ratelimit.New(cacheBypass{cached: cacheTransport, direct: base},
		// A zero single-sleep limit hands every secondary limit back to the
		// Retrier, which owns the retry budget and the Retry-After wait.
		github_secondary_ratelimit.WithSingleSleepLimit(0, func(cc *github_secondary_ratelimit.CallbackContext) {
			logger.Debug("secondary rate limit detected",
				"path", cc.Request.URL.Path, "retry_at", *cc.ResetTime)
		}),
	)

	retrier := NewRetrier(settings.MaxRetries,
		append([]RetrierOption{WithRetryLogger(o.logger)}, o.retrierOpts...)...)

	restHTTP := &http.Client{Transport: &retryTransport{
		base:    rateLimited,
		retrier: retrier,
		timeout: settings.RequestTimeout,
		logger:  o.logger,
	}}

	client := gh.NewClient(restHTTP)
	if settings.Token != "" {
		client = client.WithAuthToken(settings.Token)
	}

	rawURL := settings.BaseURL
	if rawURL == "" {
		rawURL = DefaultBaseURL
	}
	if !strings.HasSuffix(rawURL, "/") {
		rawURL += "/"
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{
		gh:         client,
		graphqlRT:  rateLimited,
		graphqlURL: graphqlURLFor(u),
		token:      settings.Token,
		retrier:    retrier,
		timeout:    settings.RequestTimeout,
		base:       base,
		logger:     o.logger,
	}, nil
}

// graphqlURLFor derives the GraphQL endpoint from a REST base URL.
// GitHub Enterprise serves REST under /api/v3/ and GraphQL under /api/graphql.
func graphqlURLFor(base *url.URL) string {
	u := *base
	if strings.HasSuffix(u.Path, "/api/v3/") {
		u.Path = strings.TrimSuffix(u.Path, "v3/") + "graphql"
	} else {
		u.Path = "/graphql"
	}
	u.RawPath = ""
	return u.String()
}

// Close releases idle connections held by the run's transport. It is safe to
// call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if t, ok := c.base.(interface{ CloseIdleConnections() }); ok {
			t.CloseIdleConnections()
		}
		c.logger.Debug("github client closed")
	})
	return nil
}

// ListIssues retrieves one page of repository issues. When opts.ETag is set it
// is sent as If-None-Match and a 304 yields a NotModified page.
func (c *Client) ListIssues(ctx context.Context, owner, repo string, opts driven.ListIssuesOptions) (*driven.IssuePage, error) {
	lo := &gh.IssueListByRepoOptions{
		State:       opts.State,
		ListOptions: gh.ListOptions{Page: opts.Page, PerPage: opts.PerPage},
	}
	v, err := query.Values(lo)
	if err != nil {
		return nil, fmt.Errorf("encoding issue list options: %w", err)
	}

	u := fmt.Sprintf("repos/%s/%s/issues?%s", owner, repo, v.Encode())
	req, err := c.gh.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building issue list request: %w", err)
	}
	if opts.ETag != "" {
		req.Header.Set("If-None-Match", opts.ETag)
	}

	var issues []*gh.Issue
	resp, err := c.gh.Do(ctx, req, &issues)
	if resp != nil && resp.StatusCode == http.StatusNotModified {
		etag := resp.Header.Get("ETag")
		if etag == "" {
			etag = opts.ETag
		}
		return &driven.IssuePage{ETag: etag, NotModified: true}, nil
	}
	if err != nil {
		return nil, apiError(fmt.Sprintf("listing issues for %s/%s (page %d)", owner, repo, opts.Page), resp, err)
	}

	logRateLimit(resp, owner+"/"+repo+"/issues", opts.Page, len(issues))

	page := &driven.IssuePage{
		Issues:   make([]model.RemoteIssue, 0, len(issues)),
		NextPage: resp.NextPage,
		ETag:     resp.Header.Get("ETag"),
	}
	for _, is := range issues {
		if is.IsPullRequest() {
			continue
		}
		page.Issues = append(page.Issues, mapIssue(is))
	}
	return page, nil
}

// GetIssue retrieves a single issue by number.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*model.RemoteIssue, error) {
	is, resp, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, apiError(fmt.Sprintf("fetching issue %s/%s#%d", owner, repo, number), resp, err)
	}
	logRateLimit(resp, owner+"/"+repo+"/issue", 0, 1)

	issue := mapIssue(is)
	return &issue, nil
}

// SearchIssuesByTitle runs an in:title search restricted to issues of the
// repository, oldest first. Only the first page of 100 results is read.
func (c *Client) SearchIssuesByTitle(ctx context.Context, owner, repo, title string) ([]model.RemoteIssue, error) {
	// Quotes cannot be escaped inside a search phrase; callers filter for
	// exact equality afterwards.
	phrase := strings.ReplaceAll(title, `"`, " ")
	q := fmt.Sprintf(`repo:%s/%s type:issue in:title "%s"`, owner, repo, phrase)

	result, resp, err := c.gh.Search.Issues(ctx, q, &gh.SearchOptions{
		Sort:        "created",
		Order:       "asc",
		ListOptions: gh.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, apiError(fmt.Sprintf("searching issues in %s/%s", owner, repo), resp, err)
	}
	logRateLimit(resp, owner+"/"+repo+"/search", 0, len(result.Issues))

	issues := make([]model.RemoteIssue, 0, len(result.Issues))
	for _, is := range result.Issues {
		if is.IsPullRequest() {
			continue
		}
		issues = append(issues, mapIssue(is))
	}
	return issues, nil
}

// CreateIssue opens a new issue with the given labels.
func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (*model.RemoteIssue, error) {
	req := &gh.IssueRequest{
		Title: gh.Ptr(title),
		Body:  gh.Ptr(body),
	}
	if len(labels) > 0 {
		req.Labels = &labels
	}

	is, resp, err := c.gh.Issues.Create(ctx, owner, repo, req)
	if err != nil {
		return nil, apiError(fmt.Sprintf("creating issue %q in %s/%s", title, owner, repo), resp, err)
	}
	logRateLimit(resp, owner+"/"+repo+"/issues", 0, 1)

	issue := mapIssue(is)
	return &issue, nil
}

// AddLabels attaches labels to an issue. Existing labels are left in place.
func (c *Client) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	_, resp, err := c.gh.Issues.AddLabelsToIssue(ctx, owner, repo, number, labels)
	if err != nil {
		return apiError(fmt.Sprintf("adding labels to %s/%s#%d", owner, repo, number), resp, err)
	}
	return nil
}

// EnsureLabel creates the label when a lookup reports it missing. A 422 on
// creation means another writer created it first and counts as success.
func (c *Client) EnsureLabel(ctx context.Context, owner, repo, name string) error {
	u := fmt.Sprintf("repos/%s/%s/labels/%s", owner, repo, url.PathEscape(name))
	req, err := c.gh.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building label request: %w", err)
	}

	resp, err := c.gh.Do(ctx, req, nil)
	if err == nil {
		return nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return apiError(fmt.Sprintf("fetching label %q in %s/%s", name, owner, repo), resp, err)
	}

	_, resp, err = c.gh.Issues.CreateLabel(ctx, owner, repo, &gh.Label{
		Name:        gh.Ptr(name),
		Color:       gh.Ptr(labelColor),
		Description: gh.Ptr(""),
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
			c.logger.Debug("label already exists", "label", name, "repo", owner+"/"+repo)
			return nil
		}
		return apiError(fmt.Sprintf("creating label %q in %s/%s", name, owner, repo), resp, err)
	}
	c.logger.Info("label created", "label", name, "repo", owner+"/"+repo)
	return nil
}

// apiError converts a go-github failure into the domain error taxonomy.
// Transport and context errors are wrapped unchanged.
func apiError(op string, resp *gh.Response, err error) error {
	var te *model.TransportError
	if errors.As(err, &te) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	var (
		errResp  *gh.ErrorResponse
		rateErr  *gh.RateLimitError
		abuseErr *gh.AbuseRateLimitError
		message  string
	)
	switch {
	case errors.As(err, &rateErr):
		message = rateErr.Message
	case errors.As(err, &abuseErr):
		message = abuseErr.Message
	case errors.As(err, &errResp):
		message = errResp.Message
	default:
		// Decode failures and other client-side errors on a successful status.
		return fmt.Errorf("%s: %w", op, err)
	}

	if status < http.StatusMultipleChoices {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &model.HTTPError{Op: op, Status: status, Body: message}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// mapIssue converts a go-github Issue to a domain RemoteIssue.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapIssue(is *gh.Issue) model.RemoteIssue {
	labels := make([]string, 0, len(is.Labels))
	for _, l := range is.Labels {
		labels = append(labels, l.GetName())
	}

	return model.RemoteIssue{
		Number:    is.GetNumber(),
		NodeID:    is.GetNodeID(),
		URL:       is.GetHTMLURL(),
		Title:     is.GetTitle(),
		State:     is.GetState(),
		Labels:    labels,
		CreatedAt: is.GetCreatedAt().Time,
		UpdatedAt: is.GetUpdatedAt().Time,
	}
}

// cacheBypass sends requests that already carry a validator from the caller
// straight to the network, so a 304 reaches the caller instead of being
// replaced by the cached body.
type cacheBypass struct {
	cached http.RoundTripper
	direct http.RoundTripper
}

func (t cacheBypass) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("If-None-Match") != "" || req.Header.Get("If-Modified-Since") != "" {
		return t.direct.RoundTrip(req)
	}
	return t.cached.RoundTrip(req)
}

// Factory opens a new Client for every run.
type Factory struct {
	opts []Option
}

// Compile-time interface satisfaction check.
var _ driven.TrackerFactory = (*Factory)(nil)

// NewFactory creates a Factory applying opts to every Client it opens.
func NewFactory(opts ...Option) *Factory {
	return &Factory{opts: opts}
}

// Open builds a Client for one run.
func (f *Factory) Open(settings model.RunSettings) (driven.Tracker, error) {
	return NewClient(settings, f.opts...)
}
