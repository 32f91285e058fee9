package github

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/issuesync/internal/domain/model"
)

// RetryState is a state of the retry loop.
type RetryState int

const (
	StateAttempting RetryState = iota
	StateBackoff
	StateSucceeded
	StateFailed
)

// String returns a human-readable name for the state.
func (s RetryState) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateBackoff:
		return "backoff"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("RetryState(%d)", int(s))
	}
}

// Retry timing defaults.
const (
	DefaultMaxRetries = 5
	baseDelay         = 1 * time.Second
	maxDelay          = 16 * time.Second
	maxJitter         = 500 * time.Millisecond
)

// Outcome is the classified result of one attempt.
type Outcome struct {
	Retryable  bool
	RetryAfter time.Duration // Server-requested delay; replaces the computed backoff when > 0.
	Status     int           // HTTP status, 0 for network failures.
	Err        error
}

// RetryResult describes how a retry loop ended. State is StateSucceeded when
// the last attempt was not retryable and StateFailed when the budget ran out.
type RetryResult struct {
	State    RetryState
	Attempts int
	Last     Outcome
}

// Retrier runs attempts with exponential backoff. Sleep and jitter are
// injectable so tests run without waiting.
type Retrier struct {
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func() time.Duration
	logger     *slog.Logger
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithSleep replaces the sleep function used between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) { r.sleep = fn }
}

// WithJitter replaces the jitter source.
func WithJitter(fn func() time.Duration) RetrierOption {
	return func(r *Retrier) { r.jitter = fn }
}

// WithRetryLogger sets the logger used for backoff diagnostics.
func WithRetryLogger(logger *slog.Logger) RetrierOption {
	return func(r *Retrier) { r.logger = logger }
}

// NewRetrier creates a Retrier allowing maxRetries retries after the first
// attempt. Negative values are treated as zero.
func NewRetrier(maxRetries int, opts ...RetrierOption) *Retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	r := &Retrier{
		maxRetries: maxRetries,
		sleep:      sleepContext,
		jitter:     func() time.Duration { return rand.N(maxJitter) },
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxRetries returns the retry budget.
func (r *Retrier) MaxRetries() int {
	return r.maxRetries
}

// Run calls attempt until it reports a non-retryable outcome or the retry
// budget is exhausted. The returned error is non-nil only when ctx ended
// while backing off.
func (r *Retrier) Run(ctx context.Context, op string, attempt func(ctx context.Context) Outcome) (RetryResult, error) {
	state := StateAttempting
	delay := baseDelay
	var (
		attempts int
		last     Outcome
	)

	for {
		switch state {
		case StateAttempting:
			last = attempt(ctx)
			attempts++
			switch {
			case !last.Retryable:
				state = StateSucceeded
			case attempts > r.maxRetries:
				state = StateFailed
			default:
				state = StateBackoff
			}

		case StateBackoff:
			wait := delay
			if last.RetryAfter > 0 {
				wait = last.RetryAfter
			}
			wait += r.jitter()

			r.logger.Warn("github request backing off",
				"op", op,
				"attempt", attempts,
				"status", last.Status,
				"delay", wait,
				"error", last.Err,
			)

			if err := r.sleep(ctx, wait); err != nil {
				return RetryResult{State: StateFailed, Attempts: attempts, Last: last}, err
			}
			delay = min(delay*2, maxDelay)
			state = StateAttempting

		case StateSucceeded, StateFailed:
			return RetryResult{State: state, Attempts: attempts, Last: last}, nil
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// classifyResponse decides whether a completed HTTP exchange should be retried.
func classifyResponse(status int, header http.Header, body []byte) Outcome {
	out := Outcome{Status: status}
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		out.Retryable = true
	case http.StatusForbidden:
		out.Retryable = isSecondaryRateLimit(string(body))
	}
	if out.Retryable {
		out.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	}
	return out
}

// isSecondaryRateLimit reports whether text mentions GitHub's secondary
// (abuse) rate limit.
func isSecondaryRateLimit(text string) bool {
	return strings.Contains(strings.ToLower(text), "secondary rate limit")
}

// parseRetryAfter accepts delta-seconds (integer or decimal) or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// exchange performs a single attempt with its own timeout and buffers the
// response body so the attempt context can be released.
func exchange(ctx context.Context, rt http.RoundTripper, req *http.Request, body []byte, timeout time.Duration) (*http.Response, []byte, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r := req.Clone(attemptCtx)
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		r.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	}

	resp, err := rt.RoundTrip(r)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(buf))
	resp.ContentLength = int64(len(buf))
	return resp, buf, nil
}

// networkOutcome classifies a failed exchange. Failures are retryable unless
// the caller's own context has ended.
func networkOutcome(ctx context.Context, err error) Outcome {
	return Outcome{Retryable: ctx.Err() == nil, Err: err}
}

// retryTransport is an http.RoundTripper that applies the Retrier to every
// request it carries. It sits between go-github and the rate-limit layer.
type retryTransport struct {
	base    http.RoundTripper
	retrier *Retrier
	timeout time.Duration
	logger  *slog.Logger
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("buffering request body: %w", err)
		}
	}

	// max-age=0 makes every cached page stale, so the cache revalidates it
	// with If-None-Match and only serves bodies the server confirmed with 304.
	if req.Method == http.MethodGet && req.Header.Get("Cache-Control") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Cache-Control", "max-age=0")
	}

	op := req.Method + " " + req.URL.Path
	ctx := req.Context()
	t.logger.Debug("github request", "op", op, "headers", RedactHeaders(req.Header))

	var resp *http.Response
	res, err := t.retrier.Run(ctx, op, func(ctx context.Context) Outcome {
		r, buf, err := exchange(ctx, t.base, req, body, t.timeout)
		if err != nil {
			resp = nil
			return networkOutcome(ctx, err)
		}
		resp = r
		return classifyResponse(r.StatusCode, r.Header, buf)
	})
	if err != nil {
		return nil, err
	}

	if res.Last.Err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &model.TransportError{Op: op, Attempts: res.Attempts, Err: res.Last.Err}
	}
	return resp, nil
}
