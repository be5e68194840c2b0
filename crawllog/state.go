package crawllog

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/natefinch/atomic"

	"github.com/stadtlab/envcrawl/subject"
)

// Record is the explicit persisted form of a subject's run state: the status
// enum plus the period token it applies to. It complements the free-text log,
// which stays authoritative for recovery and audit.
type Record struct {
	Status     State     `json:"status"`
	Period     string    `json:"period"`
	RecordedAt time.Time `json:"recorded_at"`
}

// StatePath returns the sidecar path for a log file.
func StatePath(logPath string) string { return logPath + ".state" }

// ReadState loads a sidecar record. A missing file returns (nil, nil); a
// corrupt one returns an error so callers fall back to the log.
func ReadState(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// writeState rewrites the sidecar atomically so a crash can never leave a
// half-written record; the worst case is a stale or missing sidecar, which
// Check covers by re-reading the log.
func writeState(path string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

// Check resolves a subject's state for the target period. The sidecar is the
// fast path; whenever it is absent, unreadable, or does not prove completion
// for this target, the decision falls back to parsing the log itself.
func Check(s subject.Subject, logPath, target string) (State, error) {
	rec, err := ReadState(StatePath(logPath))
	if err == nil && rec != nil && rec.Status == StateCompleted &&
		subject.TokenMatches(s, rec.Period, target) {
		// The log must still exist: a sidecar without its log means the
		// precondition (log created at process start) was violated.
		if _, statErr := os.Stat(logPath); statErr == nil {
			return StateCompleted, nil
		}
	}
	return Status(s, logPath, target)
}
