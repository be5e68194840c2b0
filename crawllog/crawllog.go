// Package crawllog owns the durable run state of the crawl scheduler.
//
// Each subject writes timestamped text lines to its own append-only log file.
// The last line is the only load-bearing one: a trailing
// "Process COMPLETED for <period>" line marks the subject's run for that
// period as done, and Status re-derives OPEN/COMPLETED from it on every
// invocation. A crash mid-run simply never writes the completion line, so the
// subject stays OPEN and is re-executed next time (at-least-once, never
// silently skipped).
//
// Alongside the log, Completed maintains a small JSON sidecar record written
// atomically (see state.go). Check prefers the sidecar and falls back to
// parsing the log, which remains the auditable source of truth.
package crawllog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stadtlab/envcrawl/subject"
)

// State is the derived run state of a subject for a target period.
type State string

const (
	StateOpen      State = "OPEN"
	StateCompleted State = "COMPLETED"
)

// ErrLogMissing is returned when a subject's log file does not exist. Log
// files are created at process start, before any status check; a missing file
// is a precondition failure, not an empty log.
var ErrLogMissing = errors.New("crawllog: log file missing")

// completedPrefix is the first-two-words marker of a completion line.
const completedPrefix = "Process COMPLETED"

// Logger appends formatted lines to one subject's crawl log and mirrors them
// to a scoped slog handle. It is handed explicitly to the components of a run;
// there is no process-global logger state.
type Logger struct {
	subject subject.Subject
	path    string
	file    *os.File
	slog    *slog.Logger
	now     func() time.Time
}

// Open creates or opens the subject's log file for appending under dir, named
// by subject and log rotation stamp (subject.LogFileName). Opening the file
// at process start is what guarantees Status never sees ErrLogMissing during
// a normal run.
func Open(dir string, s subject.Subject, now time.Time, log *slog.Logger) (*Logger, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("crawllog: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, subject.LogFileName(s, now))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("crawllog: open %s: %w", path, err)
	}
	return &Logger{
		subject: s,
		path:    path,
		file:    f,
		slog:    log.With("subject", string(s)),
		now:     time.Now,
	}, nil
}

// Path returns the log file path, for status checks against this log.
func (l *Logger) Path() string { return l.path }

// Close closes the underlying file.
func (l *Logger) Close() error { return l.file.Close() }

// Info appends an INFO line.
func (l *Logger) Info(msg string) {
	l.write("INFO", msg)
	l.slog.Info(msg)
}

// Error appends an ERROR line.
func (l *Logger) Error(msg string) {
	l.write("ERROR", msg)
	l.slog.Error(msg)
}

// Completed records the run's single state transition: the completion line for
// the given period token, plus the atomic sidecar record. The log line is
// written first; if the process dies in between, the log alone still proves
// completion and Check falls back to it.
func (l *Logger) Completed(token string) error {
	l.Info(completedPrefix + " for " + token)
	rec := Record{Status: StateCompleted, Period: token, RecordedAt: l.now().UTC()}
	if err := writeState(StatePath(l.path), rec); err != nil {
		return fmt.Errorf("crawllog: state record: %w", err)
	}
	return nil
}

func (l *Logger) write(level, msg string) {
	t := l.now()
	fmt.Fprintf(l.file, "%s,%03d - %s - %s\n", t.Format("2006-01-02 15:04:05"), t.Nanosecond()/1e6, level, msg)
}

// Status derives the subject's state for the target period from the log file
// alone. The file must exist (ErrLogMissing otherwise). An empty log is OPEN.
// Otherwise the last line's message (text after the final " - ") must start
// with "Process COMPLETED" and its trailing token must match the target under
// the subject's tolerance rule.
func Status(s subject.Subject, logPath, target string) (State, error) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return StateOpen, fmt.Errorf("%w: %s", ErrLogMissing, logPath)
		}
		return StateOpen, fmt.Errorf("crawllog: read %s: %w", logPath, err)
	}

	last := lastLine(string(data))
	if last == "" {
		return StateOpen, nil
	}

	// Message is everything after the final " - " separator, mirroring the
	// "<timestamp> - <level> - <message>" line format.
	parts := strings.Split(last, " - ")
	msg := strings.TrimSpace(parts[len(parts)-1])

	fields := strings.Fields(msg)
	if len(fields) < 2 || fields[0]+" "+fields[1] != completedPrefix {
		return StateOpen, nil
	}
	token := fields[len(fields)-1]
	if subject.TokenMatches(s, token, target) {
		return StateCompleted, nil
	}
	return StateOpen, nil
}

// lastLine returns the last non-empty line of text.
func lastLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}
