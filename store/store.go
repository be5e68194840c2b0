// Package store provides the single-file datastore for crawled data.
//
// All containers live in one sqlite file. Every operation opens the file,
// performs one unit of work and closes it again; there is no long-lived
// handle and no cross-invocation locking. Logical containers are registered
// in the datasets table and addressed by path, e.g.
// "air_quality/MC042/PM10_1h" or "weather/weather_data".
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/stadtlab/envcrawl/dbopen"
)

// ErrStoreMissing is returned when the store file does not exist on disk.
// The caller is expected to run Initialize first.
var ErrStoreMissing = errors.New("store: file does not exist")

// Container paths for the single-table subjects.
const (
	PathWeather             = "weather/weather_data"
	PathConstructions       = "constructions/construction_data"
	PathCarRegistrations    = "car_registrations/car_registrations_data"
	PathNewCarRegistrations = "new_car_registrations/new_car_registrations_data"
)

// Store is a handle on the store file. It holds no open connection;
// each method opens and closes the file itself.
type Store struct {
	Path string
}

// New creates a Store for the given file path. The file is not touched.
func New(path string) *Store {
	return &Store{Path: path}
}

// open opens the existing store file. sqlite creates missing files on open,
// so absence is checked with os.Stat first and reported as ErrStoreMissing.
func (s *Store) open() (*sql.DB, error) {
	if _, err := os.Stat(s.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreMissing, s.Path)
		}
		return nil, fmt.Errorf("stat store: %w", err)
	}
	return dbopen.Open(s.Path)
}

// datasetID resolves a container path to its dataset ID.
// ok is false when the container is not registered.
func datasetID(q queryRower, path string) (id int64, ok bool, err error) {
	err = q.QueryRow(`SELECT id FROM datasets WHERE path = ?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve dataset %q: %w", path, err)
	}
	return id, true, nil
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}
