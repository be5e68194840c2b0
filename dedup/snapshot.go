package dedup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// SnapshotCache persists the most recent raw construction snapshot between
// runs so the next diff has something to compare against.
type SnapshotCache struct {
	Path string
}

// Load returns the cached snapshot, or nil when no snapshot has been written
// yet (first run).
func (c *SnapshotCache) Load() ([]Construction, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("dedup: read snapshot %s: %w", c.Path, err)
	}
	var rows []Construction
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("dedup: decode snapshot %s: %w", c.Path, err)
	}
	return rows, nil
}

// Save atomically replaces the cached snapshot. A crash mid-write leaves the
// previous snapshot intact, so the following run diffs against slightly stale
// data instead of garbage.
func (c *SnapshotCache) Save(rows []Construction) error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("dedup: mkdir: %w", err)
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("dedup: encode snapshot: %w", err)
	}
	if err := atomic.WriteFile(c.Path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("dedup: write snapshot %s: %w", c.Path, err)
	}
	return nil
}
