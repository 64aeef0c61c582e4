package database

import "fmt"

// EnsureSchema creates the realtime and static reference tables when they
// do not exist yet. alert_entities deliberately has no unique key:
// duplicate links across cycles are accepted.
func EnsureSchema(db *DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS agency (
    agency_id TEXT PRIMARY KEY,
    agency_name TEXT NOT NULL,
    agency_url TEXT,
    agency_timezone TEXT
);

CREATE TABLE IF NOT EXISTS stops (
    stop_id TEXT PRIMARY KEY,
    stop_name TEXT,
    stop_lat DOUBLE PRECISION,
    stop_lon DOUBLE PRECISION,
    parent_station TEXT
);

CREATE TABLE IF NOT EXISTS routes (
    route_id TEXT PRIMARY KEY,
    agency_id TEXT,
    route_short_name TEXT,
    route_long_name TEXT,
    route_type INTEGER
);

CREATE TABLE IF NOT EXISTS trips (
    trip_id TEXT PRIMARY KEY,
    route_id TEXT,
    service_id TEXT,
    trip_headsign TEXT,
    direction_id INTEGER
);

CREATE TABLE IF NOT EXISTS trip_updates (
    trip_id TEXT PRIMARY KEY,
    feed_timestamp TIMESTAMPTZ,
    start_time TEXT,
    start_date TEXT
);

CREATE TABLE IF NOT EXISTS stop_time_updates (
    trip_id TEXT NOT NULL,
    stop_index INTEGER NOT NULL,
    feed_timestamp TIMESTAMPTZ,
    stop_id TEXT,
    arrival_time TIMESTAMPTZ,
    departure_time TIMESTAMPTZ,
    arrival_delay BIGINT,
    departure_delay BIGINT,
    PRIMARY KEY (trip_id, stop_index)
);

CREATE TABLE IF NOT EXISTS alerts (
    alert_id TEXT PRIMARY KEY,
    active_period_start TIMESTAMPTZ,
    active_period_end TIMESTAMPTZ,
    cause TEXT,
    severity TEXT,
    header_en TEXT,
    header_fr TEXT,
    description_en TEXT,
    description_fr TEXT
);

CREATE TABLE IF NOT EXISTS alert_entities (
    trip_id TEXT NOT NULL,
    alert_id TEXT NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
