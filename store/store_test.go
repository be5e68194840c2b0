package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stadtlab/envcrawl/dedup"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "envcrawl.db"))
	stations := []Station{
		{
			Code: "MC042", Name: "Neukölln", Latitude: 52.489, Longitude: 13.430,
			Components: []string{"PM10_1h", "NO2_1h", "PM10_24h"},
		},
		{
			Code: "MC010", Name: "Wedding", Latitude: 52.543, Longitude: 13.349,
			Components: []string{"NO2_1h"},
		},
	}
	sensors := []Sensor{
		{
			Name: "Det_A100_01",
			Info: SensorInfo{
				SelfLink:       "https://api.example.org/Things(101)",
				IotID:          101,
				Latitude:       52.47,
				Longitude:      13.31,
				ObservationURL: "https://api.example.org/Datastreams(7)/Observations",
			},
		},
	}
	if err := s.Initialize(context.Background(), stations, sensors); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return s
}

func TestMissingFile(t *testing.T) {
	// WHAT: Every operation on a nonexistent store file fails with ErrStoreMissing.
	// WHY: sqlite silently creates missing files; the precondition must be explicit.
	s := New(filepath.Join(t.TempDir(), "absent.db"))
	ctx := context.Background()

	if _, err := s.Stations(ctx); !errors.Is(err, ErrStoreMissing) {
		t.Errorf("Stations error = %v, want ErrStoreMissing", err)
	}
	if _, err := s.AppendWeather(ctx, WeatherRow{}); !errors.Is(err, ErrStoreMissing) {
		t.Errorf("AppendWeather error = %v, want ErrStoreMissing", err)
	}
	if _, err := s.UpsertConstructions(ctx, nil); !errors.Is(err, ErrStoreMissing) {
		t.Errorf("UpsertConstructions error = %v, want ErrStoreMissing", err)
	}
}

func TestInitializeSeedsContainers(t *testing.T) {
	// WHAT: Initialization registers the fixed containers plus one per hourly
	// component and per sensor, and skips non-hourly components.
	// WHY: The container registry decides which appends land and which no-op.
	s := testStore(t)
	ctx := context.Background()

	datasets, err := s.Datasets(ctx)
	if err != nil {
		t.Fatalf("datasets: %v", err)
	}
	paths := make(map[string]bool, len(datasets))
	for _, d := range datasets {
		paths[d.Path] = true
	}

	for _, want := range []string{
		PathWeather, PathConstructions, PathCarRegistrations, PathNewCarRegistrations,
		"air_quality/MC042/PM10_1h", "air_quality/MC042/NO2_1h",
		"air_quality/MC010/NO2_1h", "traffic/Det_A100_01",
	} {
		if !paths[want] {
			t.Errorf("container %q not registered", want)
		}
	}
	if paths["air_quality/MC042/PM10_24h"] {
		t.Error("non-hourly component got a container")
	}
}

func TestInitializeDestructive(t *testing.T) {
	// WHAT: Re-initializing discards all previously stored rows.
	// WHY: Initialize is an explicit reset, not a merge.
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.AppendWeather(ctx, WeatherRow{TS: 1710496800, Temperature: 8.5}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Initialize(ctx, nil, nil); err != nil {
		t.Fatalf("re-initialize: %v", err)
	}
	rows, err := s.Weather(ctx)
	if err != nil {
		t.Fatalf("weather: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows after re-init, want 0", len(rows))
	}
}

func TestStationMetadata(t *testing.T) {
	// WHAT: Station metadata round-trips through the store, components included.
	// WHY: The coordinator and the API both read the seed attached at init.
	s := testStore(t)

	stations, err := s.Stations(context.Background())
	if err != nil {
		t.Fatalf("stations: %v", err)
	}
	if len(stations) != 2 {
		t.Fatalf("got %d stations, want 2", len(stations))
	}
	// Ordered by code.
	if stations[0].Code != "MC010" || stations[1].Code != "MC042" {
		t.Errorf("station order: %s, %s", stations[0].Code, stations[1].Code)
	}
	if got := stations[1].Components; len(got) != 3 || got[0] != "PM10_1h" {
		t.Errorf("MC042 components = %v", got)
	}
}

func TestSensorMetadata(t *testing.T) {
	// WHAT: The sensor attribute blob decodes back into the same values.
	// WHY: Observation URLs drive the traffic crawl on every later run.
	s := testStore(t)

	sensors, err := s.Sensors(context.Background())
	if err != nil {
		t.Fatalf("sensors: %v", err)
	}
	if len(sensors) != 1 {
		t.Fatalf("got %d sensors, want 1", len(sensors))
	}
	info := sensors[0].Info
	if info.IotID != 101 {
		t.Errorf("iot id = %d, want 101", info.IotID)
	}
	if info.ObservationURL != "https://api.example.org/Datastreams(7)/Observations" {
		t.Errorf("observation url = %q", info.ObservationURL)
	}
	if info.Latitude != 52.47 || info.Longitude != 13.31 {
		t.Errorf("coordinates = %v, %v", info.Latitude, info.Longitude)
	}
}

func TestAppendAirQuality(t *testing.T) {
	// WHAT: Two appends to MC042/PM10_1h yield a series of length 2 in
	// insertion order with prior rows untouched.
	// WHY: Append-only monotonicity is the core store guarantee.
	s := testStore(t)
	ctx := context.Background()

	ok, err := s.AppendAirQuality(ctx, "MC042", "PM10_1h", []SeriesPoint{{TS: 1000, Value: 45.2}})
	if err != nil || !ok {
		t.Fatalf("first append: ok=%v err=%v", ok, err)
	}
	ok, err = s.AppendAirQuality(ctx, "MC042", "PM10_1h", []SeriesPoint{{TS: 2000, Value: 47.9}})
	if err != nil || !ok {
		t.Fatalf("second append: ok=%v err=%v", ok, err)
	}

	pts, ok, err := s.AirQualitySeries(ctx, "MC042", "PM10_1h")
	if err != nil || !ok {
		t.Fatalf("read series: ok=%v err=%v", ok, err)
	}
	if len(pts) != 2 {
		t.Fatalf("got %d points, want 2", len(pts))
	}
	if pts[0].TS != 1000 || pts[0].Value != 45.2 {
		t.Errorf("first point = %+v", pts[0])
	}
	if pts[1].TS != 2000 || pts[1].Value != 47.9 {
		t.Errorf("second point = %+v", pts[1])
	}
}

func TestAppendUnknownContainer(t *testing.T) {
	// WHAT: Appending to an unregistered container is a soft no-op: ok=false,
	// err=nil, nothing written anywhere.
	// WHY: A renamed upstream station must not abort the whole run.
	s := testStore(t)
	ctx := context.Background()

	ok, err := s.AppendAirQuality(ctx, "MC999", "PM10_1h", []SeriesPoint{{TS: 1, Value: 2}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ok {
		t.Error("ok = true for unknown container")
	}

	ok, err = s.AppendTraffic(ctx, "no_such_sensor", []SeriesPoint{{TS: 1, Value: 2}})
	if err != nil || ok {
		t.Errorf("traffic append: ok=%v err=%v, want false, nil", ok, err)
	}
}

func TestAppendSeriesSeparation(t *testing.T) {
	// WHAT: Points land only in their own container; a sibling series stays empty.
	// WHY: All air quality rows share one table keyed by dataset.
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.AppendAirQuality(ctx, "MC042", "PM10_1h", []SeriesPoint{{TS: 1, Value: 10}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	pts, ok, err := s.AirQualitySeries(ctx, "MC042", "NO2_1h")
	if err != nil || !ok {
		t.Fatalf("read sibling: ok=%v err=%v", ok, err)
	}
	if len(pts) != 0 {
		t.Errorf("sibling series has %d points, want 0", len(pts))
	}
}

func TestAppendWeather(t *testing.T) {
	// WHAT: Weather observations accumulate in arrival order.
	s := testStore(t)
	ctx := context.Background()

	for _, row := range []WeatherRow{
		{TS: 1710496800, Temperature: 8.5, Precipitation: 0.2, WindSpeed: 14},
		{TS: 1710500400, Temperature: 9.1, Precipitation: 0, WindSpeed: 12},
	} {
		ok, err := s.AppendWeather(ctx, row)
		if err != nil || !ok {
			t.Fatalf("append %v: ok=%v err=%v", row.TS, ok, err)
		}
	}

	rows, err := s.Weather(ctx)
	if err != nil {
		t.Fatalf("weather: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].TS != 1710496800 || rows[0].Temperature != 8.5 {
		t.Errorf("first row = %+v", rows[0])
	}
}

func TestAppendRegistrations(t *testing.T) {
	// WHAT: Registration rows keep their column values across the round-trip.
	// WHY: The two tables have different column orders; a swap would be silent.
	s := testStore(t)
	ctx := context.Background()

	ok, err := s.AppendCarRegistrations(ctx, CarRegistrationRow{
		Year: 2023, Gasoline: 700000, Diesel: 300000, LPGCNG: 9000,
		Hybrid: 85000, BEV: 42000, Other: 1500,
	})
	if err != nil || !ok {
		t.Fatalf("append cars: ok=%v err=%v", ok, err)
	}
	cars, err := s.CarRegistrations(ctx)
	if err != nil {
		t.Fatalf("read cars: %v", err)
	}
	if len(cars) != 1 || cars[0].Hybrid != 85000 || cars[0].BEV != 42000 {
		t.Errorf("cars = %+v", cars)
	}

	ok, err = s.AppendNewCarRegistrations(ctx, NewCarRegistrationRow{
		Year: 2024, Month: 2, Gasoline: 3500, Diesel: 1200, LPGCNG: 40,
		BEV: 900, Hybrid: 1100, Other: 10,
	})
	if err != nil || !ok {
		t.Fatalf("append new cars: ok=%v err=%v", ok, err)
	}
	newCars, err := s.NewCarRegistrations(ctx)
	if err != nil {
		t.Fatalf("read new cars: %v", err)
	}
	if len(newCars) != 1 || newCars[0].Month != 2 || newCars[0].BEV != 900 || newCars[0].Hybrid != 1100 {
		t.Errorf("new cars = %+v", newCars)
	}
}

func TestUpsertConstructions(t *testing.T) {
	// WHAT: Upserting an existing ID overwrites that row in place without
	// changing the table length; a new ID appends exactly one row.
	// WHY: Constructions keep only the current state, no history.
	s := testStore(t)
	ctx := context.Background()

	coords := json.RawMessage(`[13.4,52.5]`)
	ok, err := s.UpsertConstructions(ctx, []dedup.Construction{
		{ID: "c1", Subtype: "roadwork", Severity: "minor", Coordinates: coords},
		{ID: "c2", Subtype: "closure", Severity: "major"},
	})
	if err != nil || !ok {
		t.Fatalf("seed upsert: ok=%v err=%v", ok, err)
	}

	ok, err = s.UpsertConstructions(ctx, []dedup.Construction{
		{ID: "c1", Subtype: "roadwork", Severity: "major", Coordinates: coords},
	})
	if err != nil || !ok {
		t.Fatalf("overwrite upsert: ok=%v err=%v", ok, err)
	}

	rows, err := s.Constructions(ctx)
	if err != nil {
		t.Fatalf("read constructions: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].ID != "c1" || rows[0].Severity != "major" {
		t.Errorf("c1 not overwritten in place: %+v", rows[0])
	}
	if string(rows[0].Coordinates) != `[13.4,52.5]` {
		t.Errorf("coordinates = %s", rows[0].Coordinates)
	}

	ok, err = s.UpsertConstructions(ctx, []dedup.Construction{
		{ID: "c3", Subtype: "construction"},
	})
	if err != nil || !ok {
		t.Fatalf("append upsert: ok=%v err=%v", ok, err)
	}
	rows, err = s.Constructions(ctx)
	if err != nil {
		t.Fatalf("read constructions: %v", err)
	}
	if len(rows) != 3 || rows[2].ID != "c3" {
		t.Errorf("after new ID: %d rows, last %+v", len(rows), rows[len(rows)-1])
	}
}

func TestUpsertMissingContainer(t *testing.T) {
	// WHAT: Upsert into a store initialized without the containers reports
	// existed=false and writes nothing.
	s := New(filepath.Join(t.TempDir(), "bare.db"))
	ctx := context.Background()
	if err := s.Initialize(ctx, nil, nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	// Drop the registration to simulate a store predating the container.
	db, err := s.open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM datasets WHERE path = ?`, PathConstructions); err != nil {
		t.Fatalf("delete dataset: %v", err)
	}
	db.Close()

	ok, err := s.UpsertConstructions(ctx, []dedup.Construction{{ID: "c1"}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if ok {
		t.Error("existed = true for missing container")
	}
}

func TestConstructionCellFallback(t *testing.T) {
	// WHAT: A cell that is not valid JSON reads back as the opaque text.
	// WHY: Decode on read is best-effort; legacy or hand-edited cells survive.
	s := testStore(t)
	ctx := context.Background()

	db, err := s.open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = db.Exec(
		`INSERT INTO construction_rows (pos, id, subtype) VALUES (0, ?, ?)`,
		"not-json", `"closure"`)
	db.Close()
	if err != nil {
		t.Fatalf("insert raw: %v", err)
	}

	rows, err := s.Constructions(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].ID != "not-json" {
		t.Errorf("opaque cell = %q, want not-json", rows[0].ID)
	}
	if rows[0].Subtype != "closure" {
		t.Errorf("decoded cell = %q, want closure", rows[0].Subtype)
	}
}

func TestRecordAndListRuns(t *testing.T) {
	// WHAT: Run outcomes round-trip through the audit table, newest first.
	s := testStore(t)
	ctx := context.Background()

	id1, err := s.RecordRun(ctx, RunRecord{
		Subject: "weather", Period: "2024-03-15_10:00", Status: RunCompleted,
		StartedAt: 100, FinishedAt: 105,
	})
	if err != nil {
		t.Fatalf("record run: %v", err)
	}
	if id1 == "" {
		t.Fatal("empty run ID")
	}
	if !strings.HasPrefix(id1, "run_") {
		t.Errorf("run ID %q missing run_ prefix", id1)
	}
	if _, err := s.RecordRun(ctx, RunRecord{
		Subject: "traffic", Period: "2024-03-15T07:00:00Z/2024-03-15T08:00:00Z",
		Status: RunFailed, Detail: "fetch: status 503",
		StartedAt: 200, FinishedAt: 201,
	}); err != nil {
		t.Fatalf("record run: %v", err)
	}

	runs, err := s.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].Subject != "traffic" || runs[0].Status != RunFailed {
		t.Errorf("newest run = %+v", runs[0])
	}
	if runs[1].ID != id1 {
		t.Errorf("oldest run ID = %q, want %q", runs[1].ID, id1)
	}
}
