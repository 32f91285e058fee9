package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/issuesync/internal/application"
	"github.com/ericfisherdev/issuesync/internal/domain/model"
)

// maxBodyBytes caps the size of request bodies.
const maxBodyBytes = 4 << 20

// IssueSyncer is the set of core operations served over HTTP.
type IssueSyncer interface {
	Validate(ctx context.Context, settings model.RunSettings, req model.SyncRequest) (*model.RunReport, error)
	Sync(ctx context.Context, settings model.RunSettings, req model.SyncRequest) (*model.RunReport, error)
	ListIssues(ctx context.Context, settings model.RunSettings, q model.ListIssuesQuery) (*model.IssueList, error)
}

// Compile-time interface satisfaction check.
var _ IssueSyncer = (*application.Service)(nil)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	svc      IssueSyncer
	provider *application.SettingsProvider
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. Run settings
// and request defaults are read from provider on every request so a reload
// applies without a restart.
func NewHandler(svc IssueSyncer, provider *application.SettingsProvider, logger *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		provider: provider,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request id, logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /issues", h.ListIssues)
	mux.HandleFunc("POST /validate", h.Validate)
	mux.HandleFunc("POST /sync", h.Sync)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListIssues returns one page of repository issues. An If-None-Match header
// is forwarded upstream; when the page is unchanged the response is a bare 304.
func (h *Handler) ListIssues(w http.ResponseWriter, r *http.Request) {
	q, err := h.listQuery(r)
	if err != nil {
		h.writeServiceError(w, r, "list issues", err)
		return
	}

	list, err := h.svc.ListIssues(r.Context(), h.provider.Settings(), q)
	if err != nil {
		h.writeServiceError(w, r, "list issues", err)
		return
	}

	if list.ETag != "" {
		w.Header().Set("ETag", list.ETag)
	}
	if list.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

// Validate reports what a sync would do without mutating anything.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSyncRequest(w, r)
	if !ok {
		return
	}

	report, err := h.svc.Validate(r.Context(), h.provider.Settings(), req)
	if err != nil {
		h.writeServiceError(w, r, "validate", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Sync reconciles the desired items. A dry_run request mutates nothing.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSyncRequest(w, r)
	if !ok {
		return
	}

	report, err := h.svc.Sync(r.Context(), h.provider.Settings(), req)
	if err != nil {
		h.writeServiceError(w, r, "sync", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// decodeSyncRequest reads the JSON body and fills blank target fields from the
// configured defaults. On failure it writes a 400 and returns false.
func (h *Handler) decodeSyncRequest(w http.ResponseWriter, r *http.Request) (model.SyncRequest, bool) {
	var req model.SyncRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return h.provider.ApplyDefaults(req), true
}

// listQuery builds a listing query from the URL, falling back to the
// configured defaults for owner, repo and project title.
func (h *Handler) listQuery(r *http.Request) (model.ListIssuesQuery, error) {
	values := r.URL.Query()
	defaults := h.provider.Defaults()

	q := model.ListIssuesQuery{
		Owner:        firstNonBlank(values.Get("owner"), defaults.Owner),
		Repo:         firstNonBlank(values.Get("repo"), defaults.Repo),
		ProjectTitle: firstNonBlank(values.Get("project_title"), defaults.ProjectTitle),
		Page:         1,
		ETag:         r.Header.Get("If-None-Match"),
	}

	if v := values.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return q, &model.ValidationError{Field: "page", Reason: "must be an integer"}
		}
		q.Page = page
	}
	if v := values.Get("per_page"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil {
			return q, &model.ValidationError{Field: "per_page", Reason: "must be an integer"}
		}
		q.PerPage = perPage
	}

	return q, nil
}

// writeServiceError maps an operation error to a status code. Validation
// failures are 422, project resolution failures 502, everything else 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		validationErr *model.ValidationError
		projectErr    *model.ProjectError
	)

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, validationErr.Error())
	case errors.As(err, &projectErr):
		h.logger.Warn("project resolution failed", "op", op, "request_id", RequestIDFromContext(r.Context()), "error", err)
		writeError(w, http.StatusBadGateway, projectErr.Error())
	default:
		h.logger.Error("operation failed", "op", op, "request_id", RequestIDFromContext(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func firstNonBlank(v, fallback string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return fallback
}
