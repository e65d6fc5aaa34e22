// Package domain contains the persisted records of the analysis service.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/composer/internal/core/composer"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/planner"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrReportNameRequired   = errors.New("report name is required")
	ErrReportSourceRequired = errors.New("report source is required")
)

// =============================================================================
// Report
// =============================================================================

// Report is the stored outcome of analysing one definition. Diagnostics are
// kept for failed analyses too; Plans is empty whenever Success is false.
type Report struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	File        string                `json:"file,omitempty"`
	SourceHash  string                `json:"source_hash"`
	Success     bool                  `json:"success"`
	Errors      int                   `json:"errors"`
	Warnings    int                   `json:"warnings"`
	Roots       []composer.RootStatus `json:"roots"`
	Diagnostics []diag.Diagnostic     `json:"diagnostics,omitempty"`
	Plans       []planner.Plan        `json:"plans,omitempty"`
	Slots       []planner.Slot        `json:"slots,omitempty"`
	Duration    time.Duration         `json:"duration_ns"`
	CreatedAt   time.Time             `json:"created_at"`
}

// NewReport builds a report from a composition result.
func NewReport(file string, source []byte, res composer.Result) (*Report, error) {
	name := strings.TrimSpace(res.Name)
	if name == "" {
		return nil, ErrReportNameRequired
	}
	if len(source) == 0 {
		return nil, ErrReportSourceRequired
	}

	return &Report{
		ID:          uuid.New().String(),
		Name:        name,
		File:        file,
		SourceHash:  HashSource(source),
		Success:     res.Success,
		Errors:      res.Errors(),
		Warnings:    res.Warnings(),
		Roots:       res.Roots,
		Diagnostics: res.Diagnostics,
		Plans:       res.Plans,
		Slots:       res.Slots,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// HashSource returns the hex SHA-256 of a definition source.
func HashSource(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}

// FailedRoots returns the names of roots whose resolution failed.
func (r *Report) FailedRoots() []string {
	var out []string
	for _, root := range r.Roots {
		if root.Failed {
			out = append(out, root.Name)
		}
	}
	return out
}

// Summary is a report without plans, used for listings.
func (r *Report) Summary() Report {
	s := *r
	s.Diagnostics = nil
	s.Plans = nil
	s.Slots = nil
	return s
}
