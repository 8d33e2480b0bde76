// Package store is the local sqlite persistence layer: the calibration
// profile survives reboots here, and recent readings are kept for the
// on-device status site. Retention is deliberately short: the cloud owns
// history, the device owns continuity.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"greenos/controller/sensors"
)

// Store wraps the sqlite database. All access happens from the control
// loop and the read-only site handlers; sqlite serializes the rest.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if needed) the database at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			air_temp REAL,
			air_humidity REAL,
			co2 REAL,
			air_quality REAL,
			substrate_temp REAL,
			moisture REAL,
			ph REAL,
			ec REAL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating readings table: %w", err)
	}
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS calibration (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			offset REAL NOT NULL,
			scale REAL NOT NULL,
			vref REAL NOT NULL,
			temp_coeff REAL NOT NULL,
			crc32 INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating calibration table: %w", err)
	}
	return nil
}

// InsertReading appends one snapshot to the history.
func (s *Store) InsertReading(snap sensors.SensorSnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO readings (timestamp, air_temp, air_humidity, co2, air_quality, substrate_temp, moisture, ph, ec)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, snap.Timestamp, snap.AirTemp, snap.AirHumidity, snap.CO2, snap.AirQualityPPM,
		snap.SubstrateTemp, snap.Moisture, snap.PH, snap.EC)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// Reading is one history row.
type Reading struct {
	Timestamp     time.Time `json:"timestamp"`
	AirTemp       float64   `json:"air_temp"`
	AirHumidity   float64   `json:"air_humidity"`
	CO2           float64   `json:"co2"`
	AirQuality    float64   `json:"air_quality"`
	SubstrateTemp float64   `json:"substrate_temp"`
	Moisture      float64   `json:"moisture"`
	PH            float64   `json:"ph"`
	EC            float64   `json:"ec"`
}

// Readings returns the full history in insertion order.
func (s *Store) Readings() ([]Reading, error) {
	rows, err := s.db.Query(`
		SELECT timestamp, air_temp, air_humidity, co2, air_quality, substrate_temp, moisture, ph, ec
		FROM readings ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.Timestamp, &r.AirTemp, &r.AirHumidity, &r.CO2, &r.AirQuality,
			&r.SubstrateTemp, &r.Moisture, &r.PH, &r.EC); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneOlderThan removes history past the retention window.
func (s *Store) PruneOlderThan(retention time.Duration, now time.Time) error {
	res, err := s.db.Exec(`DELETE FROM readings WHERE timestamp < ?`, now.Add(-retention))
	if err != nil {
		return fmt.Errorf("pruning readings: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Info("pruned reading history", "rows", n, "retention", retention)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
