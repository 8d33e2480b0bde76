package hardware

// TransmitGuard owns the RS485 driver-enable line for the duration of the
// transmit phase of a bus transaction. The line is asserted before the
// guarded body runs and released on every exit path, including errors, so
// the transceiver can never be left stuck in transmit mode holding the bus.
type TransmitGuard struct {
	out  Outputs
	line OutputID
}

// NewTransmitGuard returns a guard driving line through out.
func NewTransmitGuard(out Outputs, line OutputID) *TransmitGuard {
	return &TransmitGuard{out: out, line: line}
}

// During runs fn with the transceiver in transmit mode.
func (g *TransmitGuard) During(fn func() error) error {
	if err := g.out.Set(g.line, true); err != nil {
		return err
	}
	defer g.out.Set(g.line, false)
	return fn()
}

// SoilTransport is the raw request/response interface to the soil probe.
// Implementations own framing and timing but not bus direction.
type SoilTransport interface {
	WriteRequest(start uint16, quantity int) error
	ReadResponse(quantity int) ([]uint16, error)
}

// GuardedSoilBus adapts a SoilTransport to the SoilBus interface, holding
// the transmit guard exactly over the request write. The probe answers only
// once the line has dropped back to receive.
type GuardedSoilBus struct {
	transport SoilTransport
	guard     *TransmitGuard
}

// NewGuardedSoilBus wraps transport with guard.
func NewGuardedSoilBus(transport SoilTransport, guard *TransmitGuard) *GuardedSoilBus {
	return &GuardedSoilBus{transport: transport, guard: guard}
}

// ReadRegisters performs one request/response transaction.
func (b *GuardedSoilBus) ReadRegisters(start uint16, quantity int) ([]uint16, error) {
	err := b.guard.During(func() error {
		return b.transport.WriteRequest(start, quantity)
	})
	if err != nil {
		return nil, err
	}
	return b.transport.ReadResponse(quantity)
}
