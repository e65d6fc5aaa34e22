// Package api provides HTTP handlers for the analysis service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/composer/internal/core/definition"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/domain"
	"github.com/artpar/composer/internal/shell/metrics"
	"github.com/artpar/composer/internal/shell/store"
)

// MaxDefinitionSize bounds the body of an analysis request.
const MaxDefinitionSize = 1 << 20

// Analyzer analyses and persists one definition.
type Analyzer interface {
	Analyze(ctx context.Context, file string, source []byte) (*domain.Report, error)
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	store    store.Store
	analyzer Analyzer
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewHandler creates a new API handler. The metrics collector is optional.
func NewHandler(s store.Store, a Analyzer, m *metrics.Collector, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		store:    s,
		analyzer: a,
		metrics:  m,
		logger:   l,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)
	r.Use(h.observe)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)

		// Health endpoints
		r.Get("/health", h.handleHealth)
		r.Get("/ready", h.handleReady)

		r.Route("/api/v1/analyses", func(r chi.Router) {
			r.Post("/", h.handleCreateAnalysis)
			r.Get("/", h.handleListAnalyses)
			r.Get("/{id}", h.handleGetAnalysis)
			r.Delete("/{id}", h.handleDeleteAnalysis)
			r.Get("/{id}/diagnostics", h.handleListDiagnostics)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// observe counts requests by matched route pattern.
func (h *Handler) observe(next http.Handler) http.Handler {
	if h.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.ObserveRequest(r.Method, route, status)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if _, err := h.store.ListReports(r.Context(), store.ListOptions{Limit: 1}); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		checks["database"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["database"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Analysis Handlers
// =============================================================================

func (h *Handler) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	source, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxDefinitionSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "definition too large", "validation_error")
			return
		}
		h.writeError(w, http.StatusBadRequest, "failed to read body", "validation_error")
		return
	}

	file := r.URL.Query().Get("file")
	if file == "" {
		file = "request.yaml"
	}

	report, err := h.analyzer.Analyze(r.Context(), file, source)
	if err != nil {
		if isInvalidDefinition(err) {
			h.writeError(w, http.StatusBadRequest, err.Error(), "invalid_definition")
			return
		}
		h.logger.Error("failed to analyse definition", "file", file, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to analyse definition", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusCreated, reportToResponse(report))
}

func (h *Handler) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.store.GetReport(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "analysis not found", "analysis_not_found")
			return
		}
		h.logger.Error("failed to get analysis", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get analysis", "internal_error")
		return
	}

	resp := reportToResponse(report)
	counts, err := h.store.CountDiagnosticsByKind(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to count diagnostics", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get analysis", "internal_error")
		return
	}
	resp.DiagnosticCounts = counts

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)

	var (
		reports []domain.Report
		err     error
	)
	if hash := r.URL.Query().Get("source_hash"); hash != "" {
		reports, err = h.store.ListReportsBySource(r.Context(), hash, opts)
	} else {
		reports, err = h.store.ListReports(r.Context(), opts)
	}
	if err != nil {
		h.logger.Error("failed to list analyses", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list analyses", "internal_error")
		return
	}

	resp := ListReportsResponse{
		Reports: make([]ReportResponse, 0, len(reports)),
		Total:   len(reports),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}
	for i := range reports {
		resp.Reports = append(resp.Reports, reportToResponse(&reports[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteReport(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "analysis not found", "analysis_not_found")
			return
		}
		h.logger.Error("failed to delete analysis", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete analysis", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListDiagnostics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	filter := store.DiagnosticFilter{ListOptions: listOptions(r)}
	if k := r.URL.Query().Get("kind"); k != "" {
		kind, ok := diag.ParseKind(k)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "unknown diagnostic kind: "+k, "validation_error")
			return
		}
		filter.Kind = kind
	}
	if s := r.URL.Query().Get("min_severity"); s != "" {
		sev, err := diag.ParseSeverity(s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
			return
		}
		filter.MinSeverity = sev
	}

	if _, err := h.store.GetReport(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "analysis not found", "analysis_not_found")
			return
		}
		h.logger.Error("failed to get analysis", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list diagnostics", "internal_error")
		return
	}

	diags, err := h.store.ListDiagnostics(r.Context(), id, filter)
	if err != nil {
		h.logger.Error("failed to list diagnostics", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list diagnostics", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, ListDiagnosticsResponse{
		Diagnostics: diagnosticsToResponse(diags),
		Total:       len(diags),
	})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func listOptions(r *http.Request) store.ListOptions {
	opts := store.DefaultListOptions()

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	return opts.Normalize()
}

func isNotFound(err error) bool {
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errors.Is(storeErr.Unwrap(), store.ErrNotFound)
	}
	return false
}

func isInvalidDefinition(err error) bool {
	var parseErr *definition.ParseError
	return errors.As(err, &parseErr) ||
		errors.Is(err, definition.ErrEmptyInput) ||
		errors.Is(err, domain.ErrReportNameRequired)
}
