package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/composer/internal/core/definition"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/shell/metrics"
	"github.com/artpar/composer/internal/shell/runtime"
	"github.com/artpar/composer/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

const validDef = `
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

const unusedDef = `
name: unused
bindings:
  - {contracts: [ICat], type: Cat}
  - {contracts: [IDog], type: Dog}
roots:
  - {name: Cat, contract: ICat}
`

func setupAnalyzer(t *testing.T, cfg Config) (*Analyzer, *store.SQLiteStore, *metrics.Collector) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m := metrics.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAnalyzer(s, m, logger, cfg), s, m
}

// =============================================================================
// Analyze
// =============================================================================

func TestAnalyze_StoresSuccessfulReport(t *testing.T) {
	a, s, m := setupAnalyzer(t, Config{})
	ctx := context.Background()

	report, err := a.Analyze(ctx, "cats.yaml", []byte(validDef))
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, "cats", report.Name)
	assert.Positive(t, report.Duration)
	require.Len(t, report.Plans, 1)

	stored, err := s.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.SourceHash, stored.SourceHash)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues("success")))
}

func TestAnalyze_FatalDiagnosticsStillStored(t *testing.T) {
	a, s, m := setupAnalyzer(t, Config{})
	ctx := context.Background()

	report, err := a.Analyze(ctx, "broken.yaml", []byte(brokenDef))
	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.Empty(t, report.Plans)
	assert.Equal(t, []string{"Service"}, report.FailedRoots())

	diags, err := s.ListDiagnostics(ctx, report.ID, store.DiagnosticFilter{Kind: diag.KindUnableToResolve})
	require.NoError(t, err)
	require.NotEmpty(t, diags)
	assert.Equal(t, "broken.yaml", diags[0].Location.File)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues("failure")))
}

func TestAnalyze_InvalidYAML(t *testing.T) {
	a, s, m := setupAnalyzer(t, Config{})
	ctx := context.Background()

	_, err := a.Analyze(ctx, "bad.yaml", []byte("name: [unclosed"))
	assert.ErrorIs(t, err, definition.ErrInvalidYAML)

	reports, err := s.ListReports(ctx, store.DefaultListOptions())
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues("invalid")))
}

func TestAnalyze_CancelledContext(t *testing.T) {
	a, _, _ := setupAnalyzer(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, "cats.yaml", []byte(validDef))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_WithoutStoreOrMetrics(t *testing.T) {
	a := NewAnalyzer(nil, nil, nil, Config{})
	report, err := a.Analyze(context.Background(), "cats.yaml", []byte(validDef))
	require.NoError(t, err)
	assert.True(t, report.Success)
}

// =============================================================================
// Severity Defaults
// =============================================================================

func TestAnalyze_ConfigSeverityIsDefault(t *testing.T) {
	a, _, _ := setupAnalyzer(t, Config{Severity: diag.Overrides{diag.KindMetadataDefect: diag.SeverityError}})

	report, err := a.Analyze(context.Background(), "unused.yaml", []byte(unusedDef))
	require.NoError(t, err)
	assert.False(t, report.Success, "unused binding promoted to error")
}

func TestAnalyze_DefinitionSeverityWins(t *testing.T) {
	a, _, _ := setupAnalyzer(t, Config{Severity: diag.Overrides{diag.KindMetadataDefect: diag.SeverityError}})

	src := unusedDef + "severity:\n  metadata_defect: info\n"
	report, err := a.Analyze(context.Background(), "unused.yaml", []byte(src))
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Zero(t, report.Warnings)
}

func TestInput_FillsUnsetSettings(t *testing.T) {
	a := NewAnalyzer(nil, nil, nil, Config{UntaggedFallback: true, GenericPrecedence: "declaration", MaxDepth: 8})

	doc, err := definition.Parse("cats.yaml", []byte(validDef))
	require.NoError(t, err)
	in := a.input(doc)
	assert.True(t, in.Catalog.UntaggedFallback)
	assert.EqualValues(t, "declaration", in.Catalog.GenericPrecedence)
	assert.Equal(t, 8, in.Graph.MaxDepth)

	doc, err = definition.Parse("cats.yaml", []byte(validDef+"settings:\n  max_depth: 3\n  generic_precedence: specific\n"))
	require.NoError(t, err)
	in = a.input(doc)
	assert.Equal(t, 3, in.Graph.MaxDepth)
	assert.EqualValues(t, "specific", in.Catalog.GenericPrecedence)
}

func TestInput_DefinitionDisablesUntaggedFallback(t *testing.T) {
	a := NewAnalyzer(nil, nil, nil, Config{UntaggedFallback: true})

	doc, err := definition.Parse("cats.yaml", []byte(validDef+"settings:\n  untagged_fallback: false\n"))
	require.NoError(t, err)
	require.NotNil(t, doc.Settings.UntaggedFallback)
	assert.False(t, a.input(doc).Catalog.UntaggedFallback)

	a = NewAnalyzer(nil, nil, nil, Config{})
	doc, err = definition.Parse("cats.yaml", []byte(validDef+"settings:\n  untagged_fallback: true\n"))
	require.NoError(t, err)
	assert.True(t, a.input(doc).Catalog.UntaggedFallback)
}

// =============================================================================
// Batches
// =============================================================================

func TestAnalyzeBatch_IndependentOutcomes(t *testing.T) {
	a, s, _ := setupAnalyzer(t, Config{Workers: 2})

	sources := []Source{
		{File: "cats.yaml", Data: []byte(validDef)},
		{File: "broken.yaml", Data: []byte(brokenDef)},
		{File: "bad.yaml", Data: []byte("::")},
	}
	for i := 0; i < 5; i++ {
		sources = append(sources, Source{File: fmt.Sprintf("cats%d.yaml", i), Data: []byte(validDef)})
	}

	out := a.AnalyzeBatch(context.Background(), sources)
	require.Len(t, out, len(sources))

	assert.True(t, out[0].Report.Success)
	assert.False(t, out[1].Report.Success)
	assert.Error(t, out[2].Err)
	for _, o := range out[3:] {
		require.NoError(t, o.Err)
		assert.True(t, o.Report.Success, o.File)
	}
	assert.True(t, Failed(out))
	assert.False(t, Failed(out[3:]))

	reports, err := s.ListReports(context.Background(), store.DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, reports, 7)
}

// =============================================================================
// Resolve
// =============================================================================

func TestResolve_BuildsRoot(t *testing.T) {
	a, _, m := setupAnalyzer(t, Config{})

	v, err := a.Resolve(context.Background(), "cats.yaml", []byte(validDef), "Cat", nil)
	require.NoError(t, err)
	cat, ok := v.(*runtime.Instance)
	require.True(t, ok)
	assert.Equal(t, "Murka", cat.Arg("name"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("Cat", "success")))
}

func TestResolve_FailedAnalysis(t *testing.T) {
	a, _, _ := setupAnalyzer(t, Config{})
	_, err := a.Resolve(context.Background(), "broken.yaml", []byte(brokenDef), "Service", nil)
	assert.ErrorIs(t, err, ErrAnalysisFailed)
}

func TestResolve_UnknownRoot(t *testing.T) {
	a, _, m := setupAnalyzer(t, Config{})
	_, err := a.Resolve(context.Background(), "cats.yaml", []byte(validDef), "Dog", nil)
	assert.ErrorIs(t, err, runtime.ErrUnknownRoot)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("Dog", "failure")))
}
