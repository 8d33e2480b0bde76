package store

import (
	"database/sql"
	"errors"
	"fmt"

	"greenos/controller/sensors"
)

// SaveProfile replaces the stored calibration profile, recomputing the
// trailing checksum from the packed field layout.
func (s *Store) SaveProfile(p sensors.Profile) error {
	_, err := s.db.Exec(`
		INSERT INTO calibration (id, offset, scale, vref, temp_coeff, crc32)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			offset = excluded.offset,
			scale = excluded.scale,
			vref = excluded.vref,
			temp_coeff = excluded.temp_coeff,
			crc32 = excluded.crc32
	`, p.Offset, p.Scale, p.VRef, p.TempCoeff, int64(p.Checksum()))
	if err != nil {
		return fmt.Errorf("saving calibration profile: %w", err)
	}
	return nil
}

// LoadProfile reads the stored profile and verifies its checksum. A
// mismatch returns sensors.ErrProfileChecksum; corrupt data is never
// handed to the caller.
func (s *Store) LoadProfile() (sensors.Profile, error) {
	var p sensors.Profile
	var crc int64
	err := s.db.QueryRow(`
		SELECT offset, scale, vref, temp_coeff, crc32 FROM calibration WHERE id = 1
	`).Scan(&p.Offset, &p.Scale, &p.VRef, &p.TempCoeff, &crc)
	if errors.Is(err, sql.ErrNoRows) {
		return sensors.Profile{}, sensors.ErrNoProfile
	}
	if err != nil {
		return sensors.Profile{}, fmt.Errorf("loading calibration profile: %w", err)
	}
	if uint32(crc) != p.Checksum() {
		return sensors.Profile{}, sensors.ErrProfileChecksum
	}
	return p, nil
}
