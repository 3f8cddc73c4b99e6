package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
	"github.com/ericfisherdev/ciwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MetricsStore = (*MetricsRepo)(nil)

// MetricsRepo is the SQLite implementation of the MetricsStore port interface.
// It keeps one row per repository holding the latest exported document.
type MetricsRepo struct {
	db  *DB
	now func() time.Time
}

// NewMetricsRepo creates a new MetricsRepo backed by the given DB.
func NewMetricsRepo(db *DB) *MetricsRepo {
	return &MetricsRepo{db: db, now: time.Now}
}

// Save replaces the stored metrics document for a repository.
func (r *MetricsRepo) Save(ctx context.Context, repoFullName string, m model.AutoFixMetrics) error {
	byErrorType, err := json.Marshal(nonNilMap(m.ByErrorType))
	if err != nil {
		return fmt.Errorf("encode by_error_type: %w", err)
	}
	byReason, err := json.Marshal(nonNilMap(m.ByReason))
	if err != nil {
		return fmt.Errorf("encode by_reason: %w", err)
	}

	var average any
	if m.AverageFixDuration != nil {
		average = *m.AverageFixDuration
	}

	const query = `
		INSERT INTO autofix_metrics (
			repo_full_name, total_attempts, successful_fixes, failed_fixes, rollback_count,
			verification_failures, dry_run_attempts, by_error_type, by_reason,
			average_fix_duration_ms, total_fix_duration_ms, start_time, last_updated, saved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_full_name) DO UPDATE SET
			total_attempts = excluded.total_attempts,
			successful_fixes = excluded.successful_fixes,
			failed_fixes = excluded.failed_fixes,
			rollback_count = excluded.rollback_count,
			verification_failures = excluded.verification_failures,
			dry_run_attempts = excluded.dry_run_attempts,
			by_error_type = excluded.by_error_type,
			by_reason = excluded.by_reason,
			average_fix_duration_ms = excluded.average_fix_duration_ms,
			total_fix_duration_ms = excluded.total_fix_duration_ms,
			start_time = excluded.start_time,
			last_updated = excluded.last_updated,
			saved_at = excluded.saved_at
	`

	if _, err := r.db.Writer.ExecContext(ctx, query,
		repoFullName, m.TotalAttempts, m.SuccessfulFixes, m.FailedFixes, m.RollbackCount,
		m.VerificationFailures, m.DryRunAttempts, string(byErrorType), string(byReason),
		average, m.TotalFixDuration, formatTime(m.StartTime), formatTime(m.LastUpdated), formatTime(r.now()),
	); err != nil {
		return fmt.Errorf("upsert autofix metrics for %s: %w", repoFullName, err)
	}

	return nil
}

// Latest returns the stored metrics document, or nil when none was saved.
func (r *MetricsRepo) Latest(ctx context.Context, repoFullName string) (*model.AutoFixMetrics, error) {
	const query = `
		SELECT total_attempts, successful_fixes, failed_fixes, rollback_count,
			verification_failures, dry_run_attempts, by_error_type, by_reason,
			average_fix_duration_ms, total_fix_duration_ms, start_time, last_updated
		FROM autofix_metrics
		WHERE repo_full_name = ?
	`

	var (
		m                     model.AutoFixMetrics
		byErrorType, byReason string
		average               sql.NullInt64
		startTime, lastUpdate string
	)

	err := r.db.Reader.QueryRowContext(ctx, query, repoFullName).Scan(
		&m.TotalAttempts, &m.SuccessfulFixes, &m.FailedFixes, &m.RollbackCount,
		&m.VerificationFailures, &m.DryRunAttempts, &byErrorType, &byReason,
		&average, &m.TotalFixDuration, &startTime, &lastUpdate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query autofix metrics for %s: %w", repoFullName, err)
	}

	if err := json.Unmarshal([]byte(byErrorType), &m.ByErrorType); err != nil {
		return nil, fmt.Errorf("decode by_error_type: %w", err)
	}
	if err := json.Unmarshal([]byte(byReason), &m.ByReason); err != nil {
		return nil, fmt.Errorf("decode by_reason: %w", err)
	}
	if average.Valid {
		m.AverageFixDuration = &average.Int64
	}
	if m.StartTime, err = parseTime(startTime); err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	if m.LastUpdated, err = parseTime(lastUpdate); err != nil {
		return nil, fmt.Errorf("parse last_updated: %w", err)
	}

	return &m, nil
}

// nonNilMap keeps empty maps encoding as {} rather than null.
func nonNilMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
