package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	// Open database connection
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", fmt.Errorf("%w: %w", ErrUnavailable, err))
	}
	// A single connection keeps :memory: databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", fmt.Errorf("%w: %w", ErrUnavailable, err))
	}

	// Run migrations
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to migrate database", fmt.Errorf("%w: %w", ErrUnavailable, err))
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateReport inserts the report and its diagnostics atomically.
func (s *SQLiteStore) CreateReport(ctx context.Context, report *domain.Report) error {
	return s.WithTx(ctx, func(tx Store) error {
		return tx.CreateReport(ctx, report)
	})
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*domain.Report, error) {
	return getReport(ctx, s.db, id)
}

func (s *SQLiteStore) DeleteReport(ctx context.Context, id string) error {
	return deleteReport(ctx, s.db, id)
}

func (s *SQLiteStore) ListReports(ctx context.Context, opts ListOptions) ([]domain.Report, error) {
	return listReports(ctx, s.db, "", opts)
}

func (s *SQLiteStore) ListReportsBySource(ctx context.Context, sourceHash string, opts ListOptions) ([]domain.Report, error) {
	return listReports(ctx, s.db, sourceHash, opts)
}

func (s *SQLiteStore) ListDiagnostics(ctx context.Context, reportID string, filter DiagnosticFilter) ([]diag.Diagnostic, error) {
	return listDiagnostics(ctx, s.db, reportID, filter)
}

func (s *SQLiteStore) CountDiagnosticsByKind(ctx context.Context, reportID string) (map[diag.Kind]int, error) {
	return countDiagnosticsByKind(ctx, s.db, reportID)
}

// WithTx executes fn within a database transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", fmt.Errorf("%w: %w", ErrTxFailed, err))
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), fmt.Errorf("%w: %w", ErrTxFailed, rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", fmt.Errorf("%w: %w", ErrTxFailed, err))
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateReport(ctx context.Context, report *domain.Report) error {
	return createReport(ctx, s.tx, report)
}

func (s *txSQLiteStore) GetReport(ctx context.Context, id string) (*domain.Report, error) {
	return getReport(ctx, s.tx, id)
}

func (s *txSQLiteStore) DeleteReport(ctx context.Context, id string) error {
	return deleteReport(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListReports(ctx context.Context, opts ListOptions) ([]domain.Report, error) {
	return listReports(ctx, s.tx, "", opts)
}

func (s *txSQLiteStore) ListReportsBySource(ctx context.Context, sourceHash string, opts ListOptions) ([]domain.Report, error) {
	return listReports(ctx, s.tx, sourceHash, opts)
}

func (s *txSQLiteStore) ListDiagnostics(ctx context.Context, reportID string, filter DiagnosticFilter) ([]diag.Diagnostic, error) {
	return listDiagnostics(ctx, s.tx, reportID, filter)
}

func (s *txSQLiteStore) CountDiagnosticsByKind(ctx context.Context, reportID string) (map[diag.Kind]int, error) {
	return countDiagnosticsByKind(ctx, s.tx, reportID)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Report Operations
// =============================================================================

// reportRow represents a report row in the database.
type reportRow struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	File       string `db:"file"`
	SourceHash string `db:"source_hash"`
	Success    bool   `db:"success"`
	Errors     int    `db:"errors"`
	Warnings   int    `db:"warnings"`
	DurationNS int64  `db:"duration_ns"`
	Roots      string `db:"roots"`
	Plans      string `db:"plans"`
	Slots      string `db:"slots"`
	CreatedAt  string `db:"created_at"`
}

// diagnosticRow represents a diagnostic row in the database.
type diagnosticRow struct {
	ID       int64  `db:"id"`
	ReportID string `db:"report_id"`
	Seq      int    `db:"seq"`
	Kind     string `db:"kind"`
	Severity int    `db:"severity"`
	Template string `db:"template"`
	Params   string `db:"params"`
	File     string `db:"file"`
	Line     int    `db:"line"`
	Col      int    `db:"col"`
	Root     string `db:"root"`
	Message  string `db:"message"`
}

func createReport(ctx context.Context, exec executor, report *domain.Report) error {
	// Serialize JSON fields
	rootsJSON, err := marshalList(report.Roots)
	if err != nil {
		return NewStoreError("CreateReport", "report", report.ID, "failed to serialize roots", ErrInvalidData)
	}
	plansJSON, err := marshalList(report.Plans)
	if err != nil {
		return NewStoreError("CreateReport", "report", report.ID, "failed to serialize plans", ErrInvalidData)
	}
	slotsJSON, err := marshalList(report.Slots)
	if err != nil {
		return NewStoreError("CreateReport", "report", report.ID, "failed to serialize slots", ErrInvalidData)
	}

	query := `
		INSERT INTO reports (
			id, name, file, source_hash, success, errors, warnings,
			duration_ns, roots, plans, slots, created_at
		) VALUES (
			:id, :name, :file, :source_hash, :success, :errors, :warnings,
			:duration_ns, :roots, :plans, :slots, :created_at
		)`

	row := map[string]any{
		"id":          report.ID,
		"name":        report.Name,
		"file":        report.File,
		"source_hash": report.SourceHash,
		"success":     report.Success,
		"errors":      report.Errors,
		"warnings":    report.Warnings,
		"duration_ns": int64(report.Duration),
		"roots":       rootsJSON,
		"plans":       plansJSON,
		"slots":       slotsJSON,
		"created_at":  report.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: reports.id") {
			return NewStoreError("CreateReport", "report", report.ID, "report already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateReport", "report", report.ID, err.Error(), err)
	}

	for i, d := range report.Diagnostics {
		if err := insertDiagnostic(ctx, exec, report.ID, i, d); err != nil {
			return err
		}
	}
	return nil
}

func insertDiagnostic(ctx context.Context, exec executor, reportID string, seq int, d diag.Diagnostic) error {
	params, err := marshalList(d.Params)
	if err != nil {
		return NewStoreError("CreateReport", "diagnostic", reportID, "failed to serialize params", ErrInvalidData)
	}

	query := `
		INSERT INTO diagnostics (
			report_id, seq, kind, severity, template, params,
			file, line, col, root, message
		) VALUES (
			:report_id, :seq, :kind, :severity, :template, :params,
			:file, :line, :col, :root, :message
		)`

	row := map[string]any{
		"report_id": reportID,
		"seq":       seq,
		"kind":      string(d.Kind),
		"severity":  int(d.Severity),
		"template":  d.Template,
		"params":    params,
		"file":      d.Location.File,
		"line":      d.Location.Line,
		"col":       d.Location.Column,
		"root":      d.Root,
		"message":   d.Message(),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		return NewStoreError("CreateReport", "diagnostic", reportID, err.Error(), err)
	}
	return nil
}

func getReport(ctx context.Context, exec executor, id string) (*domain.Report, error) {
	query := `SELECT * FROM reports WHERE id = ?`

	var row reportRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetReport", "report", id, "report not found", ErrNotFound)
		}
		return nil, NewStoreError("GetReport", "report", id, err.Error(), err)
	}

	report, err := rowToReport(&row, true)
	if err != nil {
		return nil, err
	}

	report.Diagnostics, err = listDiagnostics(ctx, exec, id, DiagnosticFilter{ListOptions: ListOptions{Limit: 1000}})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func deleteReport(ctx context.Context, exec executor, id string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteReport", "report", id, err.Error(), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("DeleteReport", "report", id, err.Error(), err)
	}
	if rows == 0 {
		return NewStoreError("DeleteReport", "report", id, "report not found", ErrNotFound)
	}
	return nil
}

func listReports(ctx context.Context, exec executor, sourceHash string, opts ListOptions) ([]domain.Report, error) {
	opts = opts.Normalize()

	var (
		rows []reportRow
		err  error
	)
	if sourceHash == "" {
		query := `SELECT * FROM reports ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	} else {
		query := `SELECT * FROM reports WHERE source_hash = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, sourceHash, opts.Limit, opts.Offset)
	}
	if err != nil {
		return nil, NewStoreError("ListReports", "report", "", err.Error(), err)
	}

	reports := make([]domain.Report, 0, len(rows))
	for _, row := range rows {
		report, err := rowToReport(&row, false)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

// =============================================================================
// Diagnostic Operations
// =============================================================================

func listDiagnostics(ctx context.Context, exec executor, reportID string, filter DiagnosticFilter) ([]diag.Diagnostic, error) {
	opts := filter.ListOptions.Normalize()

	query := `SELECT * FROM diagnostics WHERE report_id = ? AND severity >= ?`
	args := []any{reportID, int(filter.MinSeverity)}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY seq LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	var rows []diagnosticRow
	if err := exec.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, NewStoreError("ListDiagnostics", "diagnostic", reportID, err.Error(), err)
	}

	out := make([]diag.Diagnostic, 0, len(rows))
	for _, row := range rows {
		d, err := rowToDiagnostic(&row)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func countDiagnosticsByKind(ctx context.Context, exec executor, reportID string) (map[diag.Kind]int, error) {
	var rows []struct {
		Kind  string `db:"kind"`
		Count int    `db:"n"`
	}
	query := `SELECT kind, COUNT(*) AS n FROM diagnostics WHERE report_id = ? GROUP BY kind`
	if err := exec.SelectContext(ctx, &rows, query, reportID); err != nil {
		return nil, NewStoreError("CountDiagnosticsByKind", "diagnostic", reportID, err.Error(), err)
	}

	counts := make(map[diag.Kind]int, len(rows))
	for _, r := range rows {
		counts[diag.Kind(r.Kind)] = r.Count
	}
	return counts, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func rowToReport(row *reportRow, withPlans bool) (*domain.Report, error) {
	report := &domain.Report{
		ID:         row.ID,
		Name:       row.Name,
		File:       row.File,
		SourceHash: row.SourceHash,
		Success:    row.Success,
		Errors:     row.Errors,
		Warnings:   row.Warnings,
		Duration:   time.Duration(row.DurationNS),
	}

	if err := unmarshalList(row.Roots, &report.Roots); err != nil {
		return nil, NewStoreError("rowToReport", "report", row.ID, "failed to parse roots", ErrInvalidData)
	}
	if withPlans {
		if err := unmarshalList(row.Plans, &report.Plans); err != nil {
			return nil, NewStoreError("rowToReport", "report", row.ID, "failed to parse plans", ErrInvalidData)
		}
		if err := unmarshalList(row.Slots, &report.Slots); err != nil {
			return nil, NewStoreError("rowToReport", "report", row.ID, "failed to parse slots", ErrInvalidData)
		}
	}

	createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToReport", "report", row.ID, "failed to parse created_at", ErrInvalidData)
	}
	report.CreatedAt = createdAt

	return report, nil
}

func rowToDiagnostic(row *diagnosticRow) (diag.Diagnostic, error) {
	d := diag.Diagnostic{
		Kind:     diag.Kind(row.Kind),
		Severity: diag.Severity(row.Severity),
		Template: row.Template,
		Location: diag.Location{File: row.File, Line: row.Line, Column: row.Col},
		Root:     row.Root,
	}
	if err := unmarshalList(row.Params, &d.Params); err != nil {
		return diag.Diagnostic{}, NewStoreError("rowToDiagnostic", "diagnostic", row.ReportID, "failed to parse params", ErrInvalidData)
	}
	return d, nil
}

// marshalList stores nil slices as "[]".
func marshalList[T any](v []T) (string, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// unmarshalList leaves dst nil for empty lists.
func unmarshalList[T any](s string, dst *[]T) error {
	if s == "" || s == "[]" {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}

// Compile-time interface checks.
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*txSQLiteStore)(nil)
)
