package api

import (
	"time"

	"github.com/artpar/composer/internal/core/composer"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/domain"
)

// =============================================================================
// Response Types
// =============================================================================

// ReportResponse is the response for a single analysis.
type ReportResponse struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	File             string                `json:"file,omitempty"`
	SourceHash       string                `json:"source_hash"`
	Success          bool                  `json:"success"`
	Errors           int                   `json:"errors"`
	Warnings         int                   `json:"warnings"`
	FailedRoots      []string              `json:"failed_roots,omitempty"`
	Roots            []composer.RootStatus `json:"roots"`
	DurationMS       float64               `json:"duration_ms"`
	CreatedAt        time.Time             `json:"created_at"`
	DiagnosticCounts map[diag.Kind]int     `json:"diagnostic_counts,omitempty"`
	Diagnostics      []DiagnosticResponse  `json:"diagnostics,omitempty"`
	// Plans is the raw construction plan output, present only on single
	// report reads of successful analyses.
	Plans any `json:"plans,omitempty"`
	Slots any `json:"slots,omitempty"`
}

// DiagnosticResponse is one diagnostic with its message expanded.
type DiagnosticResponse struct {
	Kind     diag.Kind `json:"kind"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	Location string    `json:"location"`
	Root     string    `json:"root,omitempty"`
}

// ListReportsResponse is the response for listing analyses.
type ListReportsResponse struct {
	Reports []ReportResponse `json:"reports"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ListDiagnosticsResponse is the response for listing a report's diagnostics.
type ListDiagnosticsResponse struct {
	Diagnostics []DiagnosticResponse `json:"diagnostics"`
	Total       int                  `json:"total"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// =============================================================================
// Conversion
// =============================================================================

func reportToResponse(r *domain.Report) ReportResponse {
	resp := ReportResponse{
		ID:          r.ID,
		Name:        r.Name,
		File:        r.File,
		SourceHash:  r.SourceHash,
		Success:     r.Success,
		Errors:      r.Errors,
		Warnings:    r.Warnings,
		FailedRoots: r.FailedRoots(),
		Roots:       r.Roots,
		DurationMS:  float64(r.Duration.Microseconds()) / 1000,
		CreatedAt:   r.CreatedAt,
	}
	if len(r.Diagnostics) > 0 {
		resp.Diagnostics = diagnosticsToResponse(r.Diagnostics)
	}
	if len(r.Plans) > 0 {
		resp.Plans = r.Plans
		resp.Slots = r.Slots
	}
	return resp
}

func diagnosticsToResponse(ds []diag.Diagnostic) []DiagnosticResponse {
	out := make([]DiagnosticResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, DiagnosticResponse{
			Kind:     d.Kind,
			Severity: d.Severity.String(),
			Message:  d.Message(),
			Location: d.Location.String(),
			Root:     d.Root,
		})
	}
	return out
}
