package model

import (
	"fmt"
	"strings"
)

// TransportError is a network-level failure (timeout, refused connection,
// protocol violation) that persisted after the retry budget was spent.
type TransportError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a terminal non-2xx REST response.
type HTTPError struct {
	Op     string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Body)
}

// GraphQLError is a terminal logical error returned inside a GraphQL response.
// Payload holds the raw "errors" array exactly as received.
type GraphQLError struct {
	Op       string
	Messages []string
	Payload  []byte
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("%s: graphql error: %s", e.Op, strings.Join(e.Messages, "; "))
}

// LookupError wraps any failure while computing the remote state of a
// desired item.
type LookupError struct {
	Title string
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("looking up %q: %v", e.Title, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// ValidationError reports a structurally invalid request. It is raised before
// any network activity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// ProjectError reports that the shared project context of a run could not be
// resolved. It aborts the whole run.
type ProjectError struct {
	Title string
	Err   error
}

func (e *ProjectError) Error() string {
	return fmt.Sprintf("resolving project %q: %v", e.Title, e.Err)
}

func (e *ProjectError) Unwrap() error { return e.Err }
