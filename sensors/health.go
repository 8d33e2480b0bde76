package sensors

import "time"

// Health tracks one physical channel. Valid flips false once the
// consecutive error count exceeds the configured maximum and is cleared
// only by an explicit re-initialization, never by a later good read.
type Health struct {
	Valid             bool
	ConsecutiveErrors int
	TotalReads        uint32
	TotalErrors       uint32
	LastGoodValue     float64
	LastGoodAt        time.Time
}

// success records a validated read.
func (h *Health) success(value float64, now time.Time) {
	h.LastGoodValue = value
	h.LastGoodAt = now
	h.ConsecutiveErrors = 0
}

// failure records a failed or out-of-range read and reports whether this
// failure crossed the invalidation threshold.
func (h *Health) failure(maxConsecutive int) bool {
	h.ConsecutiveErrors++
	h.TotalErrors++
	if h.Valid && h.ConsecutiveErrors > maxConsecutive {
		h.Valid = false
		return true
	}
	return false
}

// reset clears the channel for a fresh start after re-initialization.
func (h *Health) reset(valid bool) {
	h.Valid = valid
	h.ConsecutiveErrors = 0
}

// ErrorRate is the lifetime error percentage.
func (h *Health) ErrorRate() float64 {
	if h.TotalReads == 0 {
		return 0
	}
	return float64(h.TotalErrors) / float64(h.TotalReads) * 100
}

// ChannelHealth is the externally visible health of one channel.
type ChannelHealth struct {
	Name              string    `json:"name"`
	Valid             bool      `json:"valid"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	ErrorRate         float64   `json:"error_rate_pct"`
	LastGoodAt        time.Time `json:"last_good_at"`
}

// HealthReport covers every channel plus the air-quality warm-up state.
type HealthReport struct {
	Air        ChannelHealth `json:"air"`
	AirQuality ChannelHealth `json:"air_quality"`
	Soil       ChannelHealth `json:"soil"`
	WarmedUp   bool          `json:"warmed_up"`
}

// AnyInvalid reports whether any channel has been flagged failed.
func (r HealthReport) AnyInvalid() bool {
	return !r.Air.Valid || !r.AirQuality.Valid || !r.Soil.Valid
}

// InvalidChannels lists the names of failed channels.
func (r HealthReport) InvalidChannels() []string {
	var out []string
	for _, ch := range []ChannelHealth{r.Air, r.AirQuality, r.Soil} {
		if !ch.Valid {
			out = append(out, ch.Name)
		}
	}
	return out
}
