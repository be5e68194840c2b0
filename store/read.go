package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stadtlab/envcrawl/dedup"
)

// Stations returns the station metadata attached at initialization.
func (s *Store) Stations(ctx context.Context) ([]Station, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT code, name, address, latitude, longitude, components FROM stations ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Station
	for rows.Next() {
		var st Station
		var components string
		if err := rows.Scan(&st.Code, &st.Name, &st.Address, &st.Latitude, &st.Longitude, &components); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		if err := json.Unmarshal([]byte(components), &st.Components); err != nil {
			return nil, fmt.Errorf("decode components for %s: %w", st.Code, err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

// Sensors returns the traffic sensor metadata attached at initialization.
func (s *Store) Sensors(ctx context.Context) ([]Sensor, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT name, info FROM sensors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Sensor
	for rows.Next() {
		var sn Sensor
		var info string
		if err := rows.Scan(&sn.Name, &info); err != nil {
			return nil, fmt.Errorf("scan sensor: %w", err)
		}
		if err := json.Unmarshal([]byte(info), &sn.Info); err != nil {
			return nil, fmt.Errorf("decode info for %s: %w", sn.Name, err)
		}
		result = append(result, sn)
	}
	return result, rows.Err()
}

// AirQualitySeries returns a station component series in arrival order.
// ok is false when the container is not registered.
func (s *Store) AirQualitySeries(ctx context.Context, stationCode, component string) ([]SeriesPoint, bool, error) {
	return s.series(ctx, AirQualityPath(stationCode, component), "air_quality_rows", "value")
}

// TrafficSeries returns a sensor series in arrival order.
func (s *Store) TrafficSeries(ctx context.Context, sensorName string) ([]SeriesPoint, bool, error) {
	return s.series(ctx, TrafficPath(sensorName), "traffic_rows", "count")
}

func (s *Store) series(ctx context.Context, path, table, valueCol string) ([]SeriesPoint, bool, error) {
	db, err := s.open()
	if err != nil {
		return nil, false, err
	}
	defer db.Close()

	id, ok, err := datasetID(db, path)
	if err != nil || !ok {
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		`SELECT ts, %s FROM %s WHERE dataset_id = ? ORDER BY pos`, valueCol, table), id)
	if err != nil {
		return nil, true, err
	}
	defer rows.Close()

	var result []SeriesPoint
	for rows.Next() {
		var p SeriesPoint
		if err := rows.Scan(&p.TS, &p.Value); err != nil {
			return nil, true, fmt.Errorf("scan %s: %w", table, err)
		}
		result = append(result, p)
	}
	return result, true, rows.Err()
}

// Weather returns all weather observations in arrival order.
func (s *Store) Weather(ctx context.Context) ([]WeatherRow, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT ts, temperature, precipitation, wind_speed FROM weather_rows ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WeatherRow
	for rows.Next() {
		var w WeatherRow
		if err := rows.Scan(&w.TS, &w.Temperature, &w.Precipitation, &w.WindSpeed); err != nil {
			return nil, fmt.Errorf("scan weather: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// Constructions returns the current construction table in arrival order.
// Cells decode best-effort; an undecodable cell is kept as opaque text.
func (s *Store) Constructions(ctx context.Context) ([]dedup.Construction, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT id, tstore, subtype, severity, valid_from, valid_to,
		direction, geo_type, coordinates, geometries
		FROM construction_rows ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []dedup.Construction
	for rows.Next() {
		var cells [10]string
		if err := rows.Scan(&cells[0], &cells[1], &cells[2], &cells[3], &cells[4],
			&cells[5], &cells[6], &cells[7], &cells[8], &cells[9]); err != nil {
			return nil, fmt.Errorf("scan construction: %w", err)
		}
		c := dedup.Construction{
			ID:        decodeCell(cells[0]),
			Tstore:    decodeCell(cells[1]),
			Subtype:   decodeCell(cells[2]),
			Severity:  decodeCell(cells[3]),
			ValidFrom: decodeCell(cells[4]),
			ValidTo:   decodeCell(cells[5]),
			Direction: decodeCell(cells[6]),
			GeoType:   decodeCell(cells[7]),
		}
		if cells[8] != "" {
			c.Coordinates = json.RawMessage(cells[8])
		}
		if cells[9] != "" {
			c.Geometries = json.RawMessage(cells[9])
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// CarRegistrations returns the yearly stock rows in arrival order.
func (s *Store) CarRegistrations(ctx context.Context) ([]CarRegistrationRow, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT year, gasoline, diesel, lpg_cng, hybrid, bev, other
		FROM car_registration_rows ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CarRegistrationRow
	for rows.Next() {
		var r CarRegistrationRow
		if err := rows.Scan(&r.Year, &r.Gasoline, &r.Diesel, &r.LPGCNG,
			&r.Hybrid, &r.BEV, &r.Other); err != nil {
			return nil, fmt.Errorf("scan car registrations: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// NewCarRegistrations returns the monthly registration rows in arrival order.
func (s *Store) NewCarRegistrations(ctx context.Context) ([]NewCarRegistrationRow, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT year, month, gasoline, diesel, lpg_cng, bev, hybrid, other
		FROM new_car_registration_rows ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []NewCarRegistrationRow
	for rows.Next() {
		var r NewCarRegistrationRow
		if err := rows.Scan(&r.Year, &r.Month, &r.Gasoline, &r.Diesel,
			&r.LPGCNG, &r.BEV, &r.Hybrid, &r.Other); err != nil {
			return nil, fmt.Errorf("scan new car registrations: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Datasets lists every registered container.
func (s *Store) Datasets(ctx context.Context) ([]Dataset, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT id, path, subject, created_at FROM datasets ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Dataset
	for rows.Next() {
		var d Dataset
		if err := rows.Scan(&d.ID, &d.Path, &d.Subject, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
