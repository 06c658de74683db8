// Package kpi persists daily emission KPIs.
package kpi

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/predictivemovement/core/metrics/eco"
)

// SQLiteStore persists KPI records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS fleet_emissions (
        fleet TEXT,
        day INTEGER,
        distance_km REAL,
        co2_kg REAL,
        deliveries INTEGER,
        PRIMARY KEY(fleet, day)
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Add inserts or updates the KPI record.
func (s *SQLiteStore) Add(r eco.Record) error {
	d := eco.Day(r.Date)
	_, err := s.db.Exec(`INSERT INTO fleet_emissions (fleet, day, distance_km, co2_kg, deliveries)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(fleet, day) DO UPDATE SET
            distance_km = distance_km + excluded.distance_km,
            co2_kg = co2_kg + excluded.co2_kg,
            deliveries = deliveries + excluded.deliveries`,
		r.Fleet, d.Unix(), r.DistanceKm, r.CO2Kg, r.Deliveries)
	return err
}

// Query returns records in the range [start,end].
func (s *SQLiteStore) Query(fleet string, start, end time.Time) ([]eco.Record, error) {
	start = eco.Day(start)
	end = eco.Day(end)
	rows, err := s.db.Query(`SELECT fleet, day, distance_km, co2_kg, deliveries
        FROM fleet_emissions WHERE fleet = ? AND day >= ? AND day <= ? ORDER BY day`,
		fleet, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []eco.Record
	for rows.Next() {
		var (
			r  eco.Record
			ts int64
		)
		if err := rows.Scan(&r.Fleet, &ts, &r.DistanceKm, &r.CO2Kg, &r.Deliveries); err != nil {
			return nil, err
		}
		r.Date = time.Unix(ts, 0).UTC()
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
