package store

import (
	"context"

	"github.com/stadtlab/envcrawl/dbopen"
	"github.com/stadtlab/envcrawl/idgen"
)

// Run outcome statuses.
const (
	RunCompleted = "completed"
	RunSkipped   = "skipped"
	RunFailed    = "failed"
)

// runID tags generated crawl-run IDs so their origin stays evident when
// they show up in logs next to other identifiers.
var runID = idgen.Prefixed("run_", idgen.Default)

// RecordRun writes one run outcome to the audit table and returns the run ID.
// Recording is best-effort observability; callers log failures and move on.
func (s *Store) RecordRun(ctx context.Context, r RunRecord) (string, error) {
	db, err := s.open()
	if err != nil {
		return "", err
	}
	defer db.Close()

	if r.ID == "" {
		r.ID = runID()
	}
	_, err = dbopen.Exec(ctx, db,
		`INSERT INTO crawl_runs (id, subject, period, status, detail, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Subject, r.Period, r.Status, r.Detail, r.StartedAt, r.FinishedAt)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// Runs returns recorded run outcomes, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT id, subject, period, status, detail, started_at, finished_at
		FROM crawl_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Subject, &r.Period, &r.Status,
			&r.Detail, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
