package hardware

import (
	"math/rand"
	"sync"
)

// Sim is a bench backend: plausible greenhouse values with a little jitter,
// so the full control loop can run on a dev machine without a board.
type Sim struct {
	mu   sync.Mutex
	fake *Fake
	rnd  *rand.Rand
}

// NewSim returns a seeded simulator.
func NewSim(seed int64) *Sim {
	s := &Sim{fake: NewFake(), rnd: rand.New(rand.NewSource(seed))}
	s.fake.SetSoil([]uint16{350, 215, 1500, 650, 40, 28, 110})
	return s
}

func (s *Sim) jitter(center, spread float64) float64 {
	return center + (s.rnd.Float64()*2-1)*spread
}

func (s *Sim) Set(id OutputID, on bool) error { return s.fake.Set(id, on) }

func (s *Sim) Read(id InputID) (bool, error) { return s.fake.Read(id) }

func (s *Sim) ReadRaw(channel int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// mid-scale with noise; calibrated downstream
	return 300 + s.rnd.Intn(40), nil
}

func (s *Sim) MaxValue() int { return 1023 }

func (s *Sim) ReadAir() (AirReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return AirReading{
		CO2:         s.jitter(650, 40),
		Temperature: s.jitter(21, 0.5),
		Humidity:    s.jitter(62, 2),
	}, nil
}

func (s *Sim) ReadSoilRegisters(start uint16, quantity int) ([]uint16, error) {
	return s.fake.ReadSoilRegisters(start, quantity)
}

// Backend exposes the simulator through the capability interfaces.
func (s *Sim) Backend() Backend {
	return Backend{
		Outputs: s,
		Inputs:  s,
		ADC:     s,
		Air:     airFunc(s.ReadAir),
		Soil:    soilFunc(s.ReadSoilRegisters),
	}
}
