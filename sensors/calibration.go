package sensors

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"log/slog"
	"math"
)

// Profile is the analog front-end calibration: raw counts become volts via
// VRef, volts become calibrated volts via the affine offset/scale pair.
// TempCoeff is the chip's drift coefficient; it is carried in the stored
// layout but no compensation is applied yet.
type Profile struct {
	Offset    float64 `json:"offset"`
	Scale     float64 `json:"scale"`
	VRef      float64 `json:"vref"`
	TempCoeff float64 `json:"temp_coeff"`
}

// Checksum is the CRC32 (IEEE) of the packed field layout: the four floats
// in order, little-endian. The stored profile carries this as a trailing
// integrity field.
func (p Profile) Checksum() uint32 {
	buf := make([]byte, 0, 32)
	for _, f := range []float64{p.Offset, p.Scale, p.VRef, p.TempCoeff} {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
	}
	return crc32.ChecksumIEEE(buf)
}

// Apply converts a raw multi-sample average to calibrated volts.
func (p Profile) Apply(avgRaw float64, adcMax int) float64 {
	volts := avgRaw / float64(adcMax) * p.VRef
	return (volts - p.Offset) * p.Scale
}

// DefaultProfile is the documented fallback used when no profile is stored
// or the stored one fails its checksum.
func DefaultProfile(vrefNominal float64) Profile {
	return Profile{Offset: 0.0, Scale: 1.0, VRef: vrefNominal, TempCoeff: 0.0002}
}

// ProfileStore persists calibration profiles. Implementations verify the
// trailing checksum on load and return ErrProfileChecksum on mismatch.
type ProfileStore interface {
	SaveProfile(Profile) error
	LoadProfile() (Profile, error)
}

var (
	// ErrNoProfile means nothing has been stored yet.
	ErrNoProfile = errors.New("no calibration profile stored")
	// ErrProfileChecksum means the stored profile failed integrity
	// verification and must not be used.
	ErrProfileChecksum = errors.New("calibration profile checksum mismatch")
)

// LoadProfileOrDefault loads the stored profile, substituting the
// documented defaults when nothing is stored or the checksum fails.
// Corrupt data is never silently accepted: the mismatch is logged as a
// warning before the defaults take over.
func LoadProfileOrDefault(store ProfileStore, vrefNominal float64, log *slog.Logger) Profile {
	if store == nil {
		log.Warn("no profile store configured, using default calibration")
		return DefaultProfile(vrefNominal)
	}
	p, err := store.LoadProfile()
	switch {
	case err == nil:
		return p
	case errors.Is(err, ErrNoProfile):
		log.Info("no stored calibration profile, using defaults")
	case errors.Is(err, ErrProfileChecksum):
		log.Warn("stored calibration profile corrupt, using defaults", "error", err)
	default:
		log.Warn("loading calibration profile failed, using defaults", "error", err)
	}
	return DefaultProfile(vrefNominal)
}
