package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stadtlab/envcrawl/dbopen"
)

// AppendAirQuality appends points to a station component series.
// An unregistered container is a soft failure: (false, nil), nothing written.
func (s *Store) AppendAirQuality(ctx context.Context, stationCode, component string, pts []SeriesPoint) (bool, error) {
	return s.appendSeries(ctx, AirQualityPath(stationCode, component), "air_quality_rows", "value", pts)
}

// AppendTraffic appends points to a sensor series.
func (s *Store) AppendTraffic(ctx context.Context, sensorName string, pts []SeriesPoint) (bool, error) {
	return s.appendSeries(ctx, TrafficPath(sensorName), "traffic_rows", "count", pts)
}

func (s *Store) appendSeries(ctx context.Context, path, table, valueCol string, pts []SeriesPoint) (bool, error) {
	db, err := s.open()
	if err != nil {
		return false, err
	}
	defer db.Close()

	found := false
	err = dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		id, ok, err := datasetID(tx, path)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		found = true

		pos, err := nextPos(tx, table+" WHERE dataset_id = "+fmt.Sprint(id))
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (dataset_id, pos, ts, %s) VALUES (?, ?, ?, ?)`, table, valueCol))
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for i, p := range pts {
			if _, err := stmt.ExecContext(ctx, id, pos+int64(i), p.TS, p.Value); err != nil {
				return fmt.Errorf("insert %s row %d: %w", table, i, err)
			}
		}
		return nil
	})
	return found, err
}

// AppendWeather appends one weather observation.
func (s *Store) AppendWeather(ctx context.Context, row WeatherRow) (bool, error) {
	return s.appendFixed(ctx, PathWeather, func(tx *sql.Tx, pos int64) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO weather_rows (pos, ts, temperature, precipitation, wind_speed)
			VALUES (?, ?, ?, ?, ?)`,
			pos, row.TS, row.Temperature, row.Precipitation, row.WindSpeed)
		return err
	}, "weather_rows")
}

// AppendCarRegistrations appends one yearly stock row.
func (s *Store) AppendCarRegistrations(ctx context.Context, row CarRegistrationRow) (bool, error) {
	return s.appendFixed(ctx, PathCarRegistrations, func(tx *sql.Tx, pos int64) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO car_registration_rows
			(pos, year, gasoline, diesel, lpg_cng, hybrid, bev, other)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			pos, row.Year, row.Gasoline, row.Diesel, row.LPGCNG, row.Hybrid, row.BEV, row.Other)
		return err
	}, "car_registration_rows")
}

// AppendNewCarRegistrations appends one monthly registrations row.
func (s *Store) AppendNewCarRegistrations(ctx context.Context, row NewCarRegistrationRow) (bool, error) {
	return s.appendFixed(ctx, PathNewCarRegistrations, func(tx *sql.Tx, pos int64) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO new_car_registration_rows
			(pos, year, month, gasoline, diesel, lpg_cng, bev, hybrid, other)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pos, row.Year, row.Month, row.Gasoline, row.Diesel, row.LPGCNG, row.BEV, row.Hybrid, row.Other)
		return err
	}, "new_car_registration_rows")
}

func (s *Store) appendFixed(ctx context.Context, path string, insert func(tx *sql.Tx, pos int64) error, table string) (bool, error) {
	db, err := s.open()
	if err != nil {
		return false, err
	}
	defer db.Close()

	found := false
	err = dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		_, ok, err := datasetID(tx, path)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		found = true

		pos, err := nextPos(tx, table)
		if err != nil {
			return err
		}
		if err := insert(tx, pos); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
		return nil
	})
	return found, err
}

// nextPos returns the next arrival position for the given table clause.
// The clause is built from fixed table names and numeric dataset IDs only.
func nextPos(tx *sql.Tx, tableClause string) (int64, error) {
	var pos int64
	err := tx.QueryRow(`SELECT COALESCE(MAX(pos), -1) + 1 FROM ` + tableClause).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("next pos: %w", err)
	}
	return pos, nil
}
