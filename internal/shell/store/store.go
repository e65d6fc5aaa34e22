package store

import (
	"context"

	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for analysis reports.
type Store interface {
	// Report operations
	CreateReport(ctx context.Context, report *domain.Report) error
	GetReport(ctx context.Context, id string) (*domain.Report, error)
	DeleteReport(ctx context.Context, id string) error
	// ListReports returns report summaries, newest first.
	ListReports(ctx context.Context, opts ListOptions) ([]domain.Report, error)
	ListReportsBySource(ctx context.Context, sourceHash string, opts ListOptions) ([]domain.Report, error)

	// Diagnostic operations
	ListDiagnostics(ctx context.Context, reportID string, filter DiagnosticFilter) ([]diag.Diagnostic, error)
	CountDiagnosticsByKind(ctx context.Context, reportID string) (map[diag.Kind]int, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// ListOptions defines pagination and filtering options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// DiagnosticFilter narrows ListDiagnostics. Zero values match everything.
type DiagnosticFilter struct {
	Kind        diag.Kind
	MinSeverity diag.Severity
	ListOptions
}
