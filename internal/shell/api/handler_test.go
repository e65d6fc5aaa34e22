package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/composer/internal/core/domain"
	"github.com/artpar/composer/internal/engine"
	"github.com/artpar/composer/internal/shell/metrics"
	"github.com/artpar/composer/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

const catsDef = `
name: cats
bindings:
  - contracts: [ICat]
    type: Cat
    constructors:
      - params: [{name: name, type: string}]
  - contracts: [string]
    value: '"Murka"'
roots:
  - {name: Cat, contract: ICat}
`

const brokenDef = `
name: broken
bindings:
  - contracts: [IService]
    type: Service
    constructors:
      - params: [{name: dep, type: IMissing}]
roots:
  - {name: Service, contract: IService}
`

type testServer struct {
	handler http.Handler
	store   *store.SQLiteStore
	metrics *metrics.Collector
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	a := engine.NewAnalyzer(s, m, logger, engine.Config{})
	return &testServer{
		handler: NewHandler(s, a, m, logger).Routes(),
		store:   s,
		metrics: m,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

type stubAnalyzer struct {
	err error
}

func (s stubAnalyzer) Analyze(ctx context.Context, file string, source []byte) (*domain.Report, error) {
	return nil, s.err
}

// =============================================================================
// Health
// =============================================================================

func TestHealth(t *testing.T) {
	ts := setupServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)
}

func TestReady(t *testing.T) {
	ts := setupServer(t)
	rec := ts.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[ReadyResponse](t, rec).Checks["database"])
}

func TestReady_StoreClosed(t *testing.T) {
	ts := setupServer(t)
	require.NoError(t, ts.store.Close())

	rec := ts.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", decode[ReadyResponse](t, rec).Status)
}

func TestMetrics_CountsRoutes(t *testing.T) {
	ts := setupServer(t)
	ts.do(t, http.MethodGet, "/health", "")
	ts.do(t, http.MethodPost, "/api/v1/analyses/", catsDef)

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `composer_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, body, `composer_analyses_total{outcome="success"} 1`)
}

// =============================================================================
// Analyses
// =============================================================================

func TestCreateAnalysis_Success(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/analyses/?file=cats.yaml", catsDef)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[ReportResponse](t, rec)
	assert.NotEmpty(t, resp.ID)
	assert.True(t, resp.Success)
	assert.Equal(t, "cats.yaml", resp.File)
	assert.NotNil(t, resp.Plans)
	assert.Empty(t, resp.FailedRoots)
}

func TestCreateAnalysis_FatalDiagnostics(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/analyses/", brokenDef)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decode[ReportResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Positive(t, resp.Errors)
	assert.Equal(t, []string{"Service"}, resp.FailedRoots)
	assert.Nil(t, resp.Plans)
	require.NotEmpty(t, resp.Diagnostics)
	assert.Equal(t, "error", resp.Diagnostics[0].Severity)
	assert.True(t, strings.HasPrefix(resp.Diagnostics[0].Location, "request.yaml:"))
}

func TestCreateAnalysis_InvalidDefinition(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/analyses/", "name: x\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_definition", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/analyses/", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAnalysis_TooLarge(t *testing.T) {
	ts := setupServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/analyses/", strings.Repeat("#", MaxDefinitionSize+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCreateAnalysis_InternalError(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	h := NewHandler(s, stubAnalyzer{err: errors.New("disk full")}, nil, nil).Routes()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyses/", strings.NewReader(catsDef)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decode[ErrorResponse](t, rec).Code)
}

func TestGetAnalysis(t *testing.T) {
	ts := setupServer(t)
	created := decode[ReportResponse](t, ts.do(t, http.MethodPost, "/api/v1/analyses/", brokenDef))

	rec := ts.do(t, http.MethodGet, "/api/v1/analyses/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[ReportResponse](t, rec)
	assert.Equal(t, created.ID, resp.ID)
	assert.Len(t, resp.Diagnostics, len(created.Diagnostics))
	assert.Positive(t, resp.DiagnosticCounts["unable_to_resolve"])
}

func TestGetAnalysis_NotFound(t *testing.T) {
	ts := setupServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/analyses/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "analysis_not_found", decode[ErrorResponse](t, rec).Code)
}

func TestListAnalyses(t *testing.T) {
	ts := setupServer(t)
	ts.do(t, http.MethodPost, "/api/v1/analyses/", catsDef)
	ts.do(t, http.MethodPost, "/api/v1/analyses/", brokenDef)
	ts.do(t, http.MethodPost, "/api/v1/analyses/", catsDef)

	resp := decode[ListReportsResponse](t, ts.do(t, http.MethodGet, "/api/v1/analyses/", ""))
	assert.Equal(t, 3, resp.Total)
	for _, r := range resp.Reports {
		assert.Nil(t, r.Plans, "summaries carry no plans")
	}

	resp = decode[ListReportsResponse](t, ts.do(t, http.MethodGet, "/api/v1/analyses/?limit=1&offset=1", ""))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, resp.Limit)
	assert.Equal(t, 1, resp.Offset)

	hash := domain.HashSource([]byte(catsDef))
	resp = decode[ListReportsResponse](t, ts.do(t, http.MethodGet, "/api/v1/analyses/?source_hash="+hash, ""))
	assert.Equal(t, 2, resp.Total)
}

func TestDeleteAnalysis(t *testing.T) {
	ts := setupServer(t)
	created := decode[ReportResponse](t, ts.do(t, http.MethodPost, "/api/v1/analyses/", catsDef))

	rec := ts.do(t, http.MethodDelete, "/api/v1/analyses/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/analyses/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDiagnostics(t *testing.T) {
	ts := setupServer(t)
	created := decode[ReportResponse](t, ts.do(t, http.MethodPost, "/api/v1/analyses/", brokenDef))
	base := "/api/v1/analyses/" + created.ID + "/diagnostics"

	all := decode[ListDiagnosticsResponse](t, ts.do(t, http.MethodGet, base, ""))
	assert.Equal(t, len(created.Diagnostics), all.Total)

	errs := decode[ListDiagnosticsResponse](t, ts.do(t, http.MethodGet, base+"?min_severity=error&kind=unable_to_resolve", ""))
	require.NotEmpty(t, errs.Diagnostics)
	for _, d := range errs.Diagnostics {
		assert.Equal(t, "error", d.Severity)
		assert.EqualValues(t, "unable_to_resolve", d.Kind)
	}

	rec := ts.do(t, http.MethodGet, base+"?kind=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, base+"?min_severity=loud", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/v1/analyses/missing/diagnostics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
