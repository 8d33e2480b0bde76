package hardware

import (
	"encoding/binary"
	"fmt"
	"io"
)

const fnReadHolding = 0x03

// serialSoilTransport frames Modbus RTU read-holding-register transactions
// over an already-opened serial port. Direction control is not its job; the
// transmit guard owns the DE/RE line.
type serialSoilTransport struct {
	port  io.ReadWriter
	slave byte
}

func newSerialSoilTransport(port io.ReadWriter, slave byte) *serialSoilTransport {
	return &serialSoilTransport{port: port, slave: slave}
}

func (t *serialSoilTransport) WriteRequest(start uint16, quantity int) error {
	frame := make([]byte, 8)
	frame[0] = t.slave
	frame[1] = fnReadHolding
	binary.BigEndian.PutUint16(frame[2:], start)
	binary.BigEndian.PutUint16(frame[4:], uint16(quantity))
	binary.LittleEndian.PutUint16(frame[6:], crc16(frame[:6]))
	_, err := t.port.Write(frame)
	return err
}

func (t *serialSoilTransport) ReadResponse(quantity int) ([]uint16, error) {
	// slave + function + byte count + data + crc
	n := 5 + 2*quantity
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.port, buf); err != nil {
		return nil, fmt.Errorf("soil response: %w", err)
	}
	if buf[0] != t.slave || buf[1] != fnReadHolding {
		return nil, fmt.Errorf("soil response: unexpected header %02x %02x", buf[0], buf[1])
	}
	if int(buf[2]) != 2*quantity {
		return nil, fmt.Errorf("soil response: byte count %d, want %d", buf[2], 2*quantity)
	}
	if crc16(buf[:n-2]) != binary.LittleEndian.Uint16(buf[n-2:]) {
		return nil, fmt.Errorf("soil response: crc mismatch")
	}
	regs := make([]uint16, quantity)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(buf[3+2*i:])
	}
	return regs, nil
}

// crc16 is the Modbus RTU CRC (poly 0xA001, init 0xFFFF).
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
