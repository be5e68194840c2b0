// Package dedup computes the new-or-changed subset of a construction
// snapshot against the previously crawled one.
//
// The comparison key deliberately excludes the two geometry fields: a record
// whose only change is its shape is never flagged. That exclusion is carried
// over from the historical behavior as-is (the geometry payloads are unstable
// nested structures); see DESIGN.md.
package dedup

import (
	"encoding/json"
	"slices"
	"strings"
)

// Construction is one record of the constructions snapshot, projected to the
// fixed ten-column schema of the store.
type Construction struct {
	ID          string          `json:"id"`
	Tstore      string          `json:"tstore"`
	Subtype     string          `json:"subtype"`
	Severity    string          `json:"severity"`
	ValidFrom   string          `json:"valid_from"`
	ValidTo     string          `json:"valid_to"`
	Direction   string          `json:"direction"`
	GeoType     string          `json:"geo_type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Geometries  json.RawMessage `json:"geometries,omitempty"`
}

// compareKey joins every column except Coordinates and Geometries.
func (c *Construction) compareKey() string {
	return strings.Join([]string{
		c.ID, c.Tstore, c.Subtype, c.Severity,
		c.ValidFrom, c.ValidTo, c.Direction, c.GeoType,
	}, "\x1f")
}

// keptSubtypes is the fixed category set persisted to the store.
var keptSubtypes = map[string]bool{
	"roadwork":     true,
	"construction": true,
	"closure":      true,
}

// Diff returns the rows of newSnapshot that are either entirely new or whose
// non-geometry fields changed since prev. With no previous snapshot every row
// passes. A row present with the same key in both snapshots is never
// returned; rows that only disappeared from newSnapshot are not flagged
// either (no deletion detection).
//
// The set algebra mirrors a keep-nothing duplicate drop over the tagged union
// of both snapshots: a key occurring more than once across new+prev,
// including twice inside the same snapshot, disqualifies every row carrying
// it, and of the survivors only the new-tagged rows remain.
func Diff(newSnapshot, prev []Construction) []Construction {
	if prev == nil {
		return slices.Clone(newSnapshot)
	}

	seen := make(map[string]int, len(newSnapshot)+len(prev))
	for i := range newSnapshot {
		seen[newSnapshot[i].compareKey()]++
	}
	for i := range prev {
		seen[prev[i].compareKey()]++
	}

	var out []Construction
	for i := range newSnapshot {
		if seen[newSnapshot[i].compareKey()] == 1 {
			out = append(out, newSnapshot[i])
		}
	}
	return out
}

// FilterSubtypes retains only the roadwork, construction and closure
// categories.
func FilterSubtypes(rows []Construction) []Construction {
	var out []Construction
	for i := range rows {
		if keptSubtypes[rows[i].Subtype] {
			out = append(out, rows[i])
		}
	}
	return out
}

// Candidates is the full pipeline: diff against the previous snapshot, then
// the subtype post-filter. The result feeds the store's ID-keyed upsert.
func Candidates(newSnapshot, prev []Construction) []Construction {
	return FilterSubtypes(Diff(newSnapshot, prev))
}
