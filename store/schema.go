package store

// Schema is the complete store schema. A fresh file gets all containers;
// pos is the per-container arrival order assigned by the store.
const Schema = `
-- Logical containers, addressed by path
CREATE TABLE IF NOT EXISTS datasets (
    id         INTEGER PRIMARY KEY,
    path       TEXT NOT NULL UNIQUE,
    subject    TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_datasets_subject ON datasets(subject);

-- Air quality station metadata, attached once at initialization
CREATE TABLE IF NOT EXISTS stations (
    code       TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    address    TEXT NOT NULL DEFAULT '',
    latitude   REAL NOT NULL,
    longitude  REAL NOT NULL,
    components TEXT NOT NULL DEFAULT '[]'
);

-- Traffic sensor metadata, one JSON attribute blob per sensor
CREATE TABLE IF NOT EXISTS sensors (
    name TEXT PRIMARY KEY,
    info TEXT NOT NULL DEFAULT '{}'
);

-- Time series rows, one container per (station, component)
CREATE TABLE IF NOT EXISTS air_quality_rows (
    dataset_id INTEGER NOT NULL REFERENCES datasets(id),
    pos        INTEGER NOT NULL,
    ts         REAL NOT NULL,
    value      REAL NOT NULL,
    PRIMARY KEY (dataset_id, pos)
);

-- Time series rows, one container per sensor
CREATE TABLE IF NOT EXISTS traffic_rows (
    dataset_id INTEGER NOT NULL REFERENCES datasets(id),
    pos        INTEGER NOT NULL,
    ts         REAL NOT NULL,
    count      REAL NOT NULL,
    PRIMARY KEY (dataset_id, pos)
);

CREATE TABLE IF NOT EXISTS weather_rows (
    pos           INTEGER PRIMARY KEY,
    ts            REAL NOT NULL,
    temperature   REAL NOT NULL,
    precipitation REAL NOT NULL,
    wind_speed    REAL NOT NULL
);

-- Construction cells are JSON-encoded text, decoded best-effort on read
CREATE TABLE IF NOT EXISTS construction_rows (
    pos         INTEGER PRIMARY KEY,
    id          TEXT NOT NULL,
    tstore      TEXT NOT NULL DEFAULT '',
    subtype     TEXT NOT NULL DEFAULT '',
    severity    TEXT NOT NULL DEFAULT '',
    valid_from  TEXT NOT NULL DEFAULT '',
    valid_to    TEXT NOT NULL DEFAULT '',
    direction   TEXT NOT NULL DEFAULT '',
    geo_type    TEXT NOT NULL DEFAULT '',
    coordinates TEXT NOT NULL DEFAULT '',
    geometries  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS car_registration_rows (
    pos      INTEGER PRIMARY KEY,
    year     INTEGER NOT NULL,
    gasoline INTEGER NOT NULL,
    diesel   INTEGER NOT NULL,
    lpg_cng  INTEGER NOT NULL,
    hybrid   INTEGER NOT NULL,
    bev      INTEGER NOT NULL,
    other    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS new_car_registration_rows (
    pos      INTEGER PRIMARY KEY,
    year     INTEGER NOT NULL,
    month    INTEGER NOT NULL,
    gasoline INTEGER NOT NULL,
    diesel   INTEGER NOT NULL,
    lpg_cng  INTEGER NOT NULL,
    bev      INTEGER NOT NULL,
    hybrid   INTEGER NOT NULL,
    other    INTEGER NOT NULL
);

-- Run outcomes (observability)
CREATE TABLE IF NOT EXISTS crawl_runs (
    id          TEXT PRIMARY KEY,
    subject     TEXT NOT NULL,
    period      TEXT NOT NULL,
    status      TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    started_at  INTEGER NOT NULL,
    finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_crawl_runs_subject ON crawl_runs(subject, started_at DESC);
`
