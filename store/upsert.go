package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/stadtlab/envcrawl/dbopen"
	"github.com/stadtlab/envcrawl/dedup"
)

// UpsertConstructions writes candidate rows keyed by construction ID.
// A row whose ID already exists overwrites that row in place, keeping its
// position; new IDs are appended. No history is kept. The returned bool
// reports whether the container existed; false means nothing was written.
func (s *Store) UpsertConstructions(ctx context.Context, rows []dedup.Construction) (bool, error) {
	db, err := s.open()
	if err != nil {
		return false, err
	}
	defer db.Close()

	found := false
	err = dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		_, ok, err := datasetID(tx, PathConstructions)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		found = true

		// Materialize the existing ID -> pos mapping for the lookups.
		existing, err := constructionPositions(tx)
		if err != nil {
			return err
		}
		pos, err := nextPos(tx, "construction_rows")
		if err != nil {
			return err
		}

		for _, row := range rows {
			cells := encodeConstruction(row)
			if at, ok := existing[row.ID]; ok {
				_, err = tx.ExecContext(ctx,
					`UPDATE construction_rows SET id = ?, tstore = ?, subtype = ?,
					severity = ?, valid_from = ?, valid_to = ?, direction = ?,
					geo_type = ?, coordinates = ?, geometries = ? WHERE pos = ?`,
					cells[0], cells[1], cells[2], cells[3], cells[4],
					cells[5], cells[6], cells[7], cells[8], cells[9], at)
				if err != nil {
					return fmt.Errorf("overwrite construction %s: %w", row.ID, err)
				}
				continue
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO construction_rows (pos, id, tstore, subtype, severity,
				valid_from, valid_to, direction, geo_type, coordinates, geometries)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				pos, cells[0], cells[1], cells[2], cells[3], cells[4],
				cells[5], cells[6], cells[7], cells[8], cells[9])
			if err != nil {
				return fmt.Errorf("append construction %s: %w", row.ID, err)
			}
			existing[row.ID] = pos
			pos++
		}
		return nil
	})
	return found, err
}

func constructionPositions(tx *sql.Tx) (map[string]int64, error) {
	rows, err := tx.Query(`SELECT pos, id FROM construction_rows`)
	if err != nil {
		return nil, fmt.Errorf("materialize constructions: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]int64)
	for rows.Next() {
		var pos int64
		var cell string
		if err := rows.Scan(&pos, &cell); err != nil {
			return nil, fmt.Errorf("scan construction pos: %w", err)
		}
		byID[decodeCell(cell)] = pos
	}
	return byID, rows.Err()
}

// encodeConstruction renders the ten cells of a construction row.
// Scalar fields are JSON-encoded so a read can tell text from structure;
// the geometry fields are already JSON.
func encodeConstruction(c dedup.Construction) [10]string {
	return [10]string{
		encodeCell(c.ID), encodeCell(c.Tstore), encodeCell(c.Subtype),
		encodeCell(c.Severity), encodeCell(c.ValidFrom), encodeCell(c.ValidTo),
		encodeCell(c.Direction), encodeCell(c.GeoType),
		string(c.Coordinates), string(c.Geometries),
	}
}

func encodeCell(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// decodeCell decodes a JSON string cell, falling back to the opaque text
// when the cell does not decode.
func decodeCell(cell string) string {
	var s string
	if err := json.Unmarshal([]byte(cell), &s); err != nil {
		return cell
	}
	return s
}
