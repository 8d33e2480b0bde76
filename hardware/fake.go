package hardware

import (
	"fmt"
	"sync"
)

// Fake is an in-memory backend for tests. Every capability is scriptable:
// readings can be set per channel and errors injected per call site.
type Fake struct {
	mu sync.Mutex

	outputs map[OutputID]bool
	inputs  map[InputID]bool
	adc     map[int]int
	adcMax  int
	air     AirReading
	soil    []uint16

	OutputErr map[OutputID]error
	InputErr  map[InputID]error
	ADCErr    map[int]error
	AirErr    error
	SoilErr   error

	// SetCalls records every Set in order, for asserting sequencing
	// (e.g. heaters dropped before the exhaust fan engages).
	SetCalls []SetCall
}

// SetCall is one recorded Outputs.Set invocation.
type SetCall struct {
	ID OutputID
	On bool
}

// NewFake returns a Fake with everything off and a 10-bit ADC.
func NewFake() *Fake {
	return &Fake{
		outputs:   make(map[OutputID]bool),
		inputs:    make(map[InputID]bool),
		adc:       make(map[int]int),
		adcMax:    1023,
		OutputErr: make(map[OutputID]error),
		InputErr:  make(map[InputID]error),
		ADCErr:    make(map[int]error),
	}
}

func (f *Fake) Set(id OutputID, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.OutputErr[id]; err != nil {
		return err
	}
	f.outputs[id] = on
	f.SetCalls = append(f.SetCalls, SetCall{ID: id, On: on})
	return nil
}

// Output reports the last level written to id.
func (f *Fake) Output(id OutputID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs[id]
}

func (f *Fake) Read(id InputID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.InputErr[id]; err != nil {
		return false, err
	}
	return f.inputs[id], nil
}

// SetInput scripts a digital input.
func (f *Fake) SetInput(id InputID, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs[id] = v
}

func (f *Fake) ReadRaw(channel int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ADCErr[channel]; err != nil {
		return 0, err
	}
	v, ok := f.adc[channel]
	if !ok {
		return 0, fmt.Errorf("fake adc: channel %d not scripted", channel)
	}
	return v, nil
}

func (f *Fake) MaxValue() int { return f.adcMax }

// SetRaw scripts an ADC channel.
func (f *Fake) SetRaw(channel, raw int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adc[channel] = raw
}

func (f *Fake) ReadAir() (AirReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AirErr != nil {
		return AirReading{}, f.AirErr
	}
	return f.air, nil
}

// SetAir scripts the air sensor.
func (f *Fake) SetAir(r AirReading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.air = r
}

func (f *Fake) ReadSoilRegisters(start uint16, quantity int) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SoilErr != nil {
		return nil, f.SoilErr
	}
	if len(f.soil) < quantity {
		return nil, fmt.Errorf("fake soil: %d registers scripted, want %d", len(f.soil), quantity)
	}
	out := make([]uint16, quantity)
	copy(out, f.soil[:quantity])
	return out, nil
}

// SetSoil scripts the soil probe registers.
func (f *Fake) SetSoil(regs []uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.soil = regs
}

// Backend exposes the fake through the capability interfaces.
func (f *Fake) Backend() Backend {
	return Backend{
		Outputs: f,
		Inputs:  f,
		ADC:     f,
		Air:     airFunc(f.ReadAir),
		Soil:    soilFunc(f.ReadSoilRegisters),
	}
}

type airFunc func() (AirReading, error)

func (fn airFunc) Read() (AirReading, error) { return fn() }

type soilFunc func(uint16, int) ([]uint16, error)

func (fn soilFunc) ReadRegisters(start uint16, quantity int) ([]uint16, error) {
	return fn(start, quantity)
}
