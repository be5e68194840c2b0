package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// The store opens its file once per operation while the crawler and the
// read API may hold it at the same time. WAL keeps readers out of the
// writers' way, but two concurrent writers still surface SQLITE_BUSY;
// the helpers here retry through short contention instead of failing
// the whole crawl pass.
var busyBackoff = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	300 * time.Millisecond,
}

// IsBusy reports whether err is SQLite's BUSY or locked condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	for _, marker := range []string{
		"SQLITE_BUSY",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(err.Error(), marker) {
			return true
		}
	}
	return false
}

// RunTx runs fn inside a transaction. Busy errors retry through the
// backoff schedule; any other error, including one from fn, rolls back
// and returns immediately.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = withTx(ctx, db, fn)
		if err == nil || !IsBusy(err) || attempt >= len(busyBackoff) {
			return err
		}
		if waitErr := wait(ctx, busyBackoff[attempt]); waitErr != nil {
			return fmt.Errorf("dbopen: busy retry cancelled: %w", waitErr)
		}
	}
}

func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

// Exec runs a single statement with the same busy-retry schedule as
// RunTx, for writes that need no transaction of their own.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	var err error
	for attempt := 0; ; attempt++ {
		result, err = db.ExecContext(ctx, query, args...)
		if err == nil {
			return result, nil
		}
		if !IsBusy(err) || attempt >= len(busyBackoff) {
			return nil, err
		}
		if waitErr := wait(ctx, busyBackoff[attempt]); waitErr != nil {
			return nil, fmt.Errorf("dbopen: busy retry cancelled: %w", waitErr)
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
