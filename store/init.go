package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stadtlab/envcrawl/dbopen"
	"github.com/stadtlab/envcrawl/subject"
)

// Initialize (re)creates the store file from scratch. An existing file is
// removed first. Station and sensor metadata is attached once here and is
// read-only afterwards; the fixed containers plus one per (station, hourly
// component) and one per sensor are registered.
func (s *Store) Initialize(ctx context.Context, stations []Station, sensors []Sensor) error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove existing store: %w", err)
	}

	db, err := dbopen.Open(s.Path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	defer db.Close()

	return dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		now := time.Now().Unix()

		register := func(path string, subj subject.Subject) error {
			_, err := tx.Exec(
				`INSERT INTO datasets (path, subject, created_at) VALUES (?, ?, ?)`,
				path, string(subj), now)
			if err != nil {
				return fmt.Errorf("register dataset %q: %w", path, err)
			}
			return nil
		}

		for _, path := range []struct {
			p string
			s subject.Subject
		}{
			{PathWeather, subject.Weather},
			{PathConstructions, subject.Constructions},
			{PathCarRegistrations, subject.CarRegistrations},
			{PathNewCarRegistrations, subject.NewCarRegistrations},
		} {
			if err := register(path.p, path.s); err != nil {
				return err
			}
		}

		for _, st := range stations {
			components, err := json.Marshal(st.Components)
			if err != nil {
				return fmt.Errorf("encode components for %s: %w", st.Code, err)
			}
			_, err = tx.Exec(
				`INSERT INTO stations (code, name, address, latitude, longitude, components)
				VALUES (?, ?, ?, ?, ?, ?)`,
				st.Code, st.Name, st.Address, st.Latitude, st.Longitude, string(components))
			if err != nil {
				return fmt.Errorf("insert station %s: %w", st.Code, err)
			}
			for _, c := range st.Components {
				// Only the hourly series are crawled.
				if !strings.HasSuffix(c, "_1h") {
					continue
				}
				if err := register(AirQualityPath(st.Code, c), subject.AirQuality); err != nil {
					return err
				}
			}
		}

		for _, sn := range sensors {
			info, err := json.Marshal(sn.Info)
			if err != nil {
				return fmt.Errorf("encode info for sensor %s: %w", sn.Name, err)
			}
			_, err = tx.Exec(
				`INSERT INTO sensors (name, info) VALUES (?, ?)`,
				sn.Name, string(info))
			if err != nil {
				return fmt.Errorf("insert sensor %s: %w", sn.Name, err)
			}
			if err := register(TrafficPath(sn.Name), subject.Traffic); err != nil {
				return err
			}
		}

		return nil
	})
}
