// Package engine runs definition analyses on behalf of the CLI and the HTTP
// API: decode, compose, persist the report, record metrics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/artpar/composer/internal/core/catalog"
	"github.com/artpar/composer/internal/core/composer"
	"github.com/artpar/composer/internal/core/definition"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/domain"
	"github.com/artpar/composer/internal/shell/metrics"
	"github.com/artpar/composer/internal/shell/runtime"
	"github.com/artpar/composer/internal/shell/store"
)

// DefaultWorkers bounds AnalyzeBatch when Config.Workers is unset.
const DefaultWorkers = 4

// Config holds analysis defaults. A definition's own settings and severity
// table take precedence.
type Config struct {
	Workers           int
	UntaggedFallback  bool
	GenericPrecedence string
	MaxDepth          int
	Severity          diag.Overrides
}

// Analyzer analyses definitions. Store and metrics are optional.
type Analyzer struct {
	store   store.Store
	metrics *metrics.Collector
	logger  *slog.Logger
	cfg     Config
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(s store.Store, m *metrics.Collector, logger *slog.Logger, cfg Config) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Analyzer{
		store:   s,
		metrics: m,
		logger:  logger.With("component", "analyzer"),
		cfg:     cfg,
	}
}

// =============================================================================
// Single Definitions
// =============================================================================

// Compose decodes and analyses one definition without persisting anything.
func (a *Analyzer) Compose(file string, source []byte) (composer.Result, error) {
	doc, err := definition.Parse(file, source)
	if err != nil {
		if a.metrics != nil {
			a.metrics.ObserveParseFailure()
		}
		return composer.Result{}, err
	}
	return composer.Compose(a.input(doc)), nil
}

// Analyze decodes, analyses and persists one definition. A definition with
// fatal diagnostics still yields a stored report; only undecodable input
// and storage failures are errors.
func (a *Analyzer) Analyze(ctx context.Context, file string, source []byte) (*domain.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := a.Compose(file, source)
	if err != nil {
		a.logger.Debug("definition rejected", "file", file, "error", err)
		return nil, err
	}
	elapsed := time.Since(start)

	report, err := domain.NewReport(file, source, res)
	if err != nil {
		return nil, err
	}
	report.Duration = elapsed

	if a.metrics != nil {
		a.metrics.ObserveAnalysis(res.Success, res.Diagnostics, elapsed)
	}
	if a.store != nil {
		if err := a.store.CreateReport(ctx, report); err != nil {
			return nil, fmt.Errorf("storing report for %s: %w", report.Name, err)
		}
	}

	a.logger.Info("definition analysed",
		"name", report.Name,
		"file", file,
		"report_id", report.ID,
		"success", report.Success,
		"errors", report.Errors,
		"warnings", report.Warnings,
		"duration", elapsed,
	)
	return report, nil
}

// input converts doc, filling unset settings from the analyzer defaults.
func (a *Analyzer) input(doc *definition.Document) composer.Input {
	in := doc.Input()

	if doc.Settings.UntaggedFallback == nil {
		in.Catalog.UntaggedFallback = a.cfg.UntaggedFallback
	}
	if in.Catalog.GenericPrecedence == "" {
		in.Catalog.GenericPrecedence = catalog.GenericPrecedence(a.cfg.GenericPrecedence)
	}
	if in.Graph.MaxDepth <= 0 {
		in.Graph.MaxDepth = a.cfg.MaxDepth
	}

	if len(a.cfg.Severity) > 0 {
		merged := maps.Clone(a.cfg.Severity)
		maps.Copy(merged, in.Severity)
		in.Severity = merged
	}
	return in
}

// =============================================================================
// Batches
// =============================================================================

// Source is one definition to analyse.
type Source struct {
	File string
	Data []byte
}

// Outcome is the result of analysing one Source.
type Outcome struct {
	File   string
	Report *domain.Report
	Err    error
}

// AnalyzeBatch analyses independent definitions in parallel. Outcomes are
// returned in input order; one definition failing never affects another.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, sources []Source) []Outcome {
	out := make([]Outcome, len(sources))

	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)
	for i, src := range sources {
		g.Go(func() error {
			report, err := a.Analyze(ctx, src.File, src.Data)
			out[i] = Outcome{File: src.File, Report: report, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Failed reports whether any outcome errored or has fatal diagnostics.
func Failed(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Err != nil || o.Report == nil || !o.Report.Success {
			return true
		}
	}
	return false
}

// =============================================================================
// Runtime
// =============================================================================

// ErrAnalysisFailed is returned by Resolve when the definition has fatal
// diagnostics.
var ErrAnalysisFailed = errors.New("definition has fatal diagnostics")

// Resolve analyses a definition and builds one of its roots with a generic
// registry, disposing the composition afterwards. The returned value is an
// *runtime.Instance tree describing what was constructed.
func (a *Analyzer) Resolve(ctx context.Context, file string, source []byte, root string, args map[string]any) (any, error) {
	res, err := a.Compose(file, source)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("%w: %s (%d errors)", ErrAnalysisFailed, res.Name, res.Errors())
	}

	comp, err := runtime.New(res, runtime.Registry{}, runtime.Options{Logger: a.logger})
	if err != nil {
		return nil, err
	}
	v, err := comp.Resolve(ctx, root, args)
	if a.metrics != nil {
		a.metrics.ObserveResolve(root, err)
	}
	if derr := comp.Dispose(); derr != nil {
		a.logger.Warn("dispose failed", "composition", comp.ID(), "error", derr)
	}
	return v, err
}
