// Package matrix drives one of the two LED driver chips on the panel. Each
// chip sits behind its own SPI chip-select line and owns 28x8 bytes of
// display memory; this package speaks its command set over a periph.io
// connection and knows nothing about logical pixels.
package matrix

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"periph.io/x/conn/v3"

	appLog "unicornhat/internal/log"
)

// Command bytes understood by the driver chip.
const (
	cmdSoftReset        = 0xCC
	cmdGlobalBrightness = 0x37
	cmdComPinCtrl       = 0x41
	cmdRowPinCtrl       = 0x42
	cmdWriteDisplay     = 0x80
	cmdSystemCtrl       = 0x35
	cmdScrollCtrl       = 0x20
)

// System control payloads.
const (
	systemOff = 0x00
	systemOn  = 0x03
)

// Display memory geometry of one chip.
const (
	MemCols = 28
	MemRows = 8

	// MemSize is the number of display-memory bytes sent per update.
	MemSize = MemCols * MemRows

	// FrameSize is the length of one display write on the wire: command,
	// filler byte and the display memory.
	FrameSize = 2 + MemSize
)

// MaxLevel is the largest value of the 6-bit global brightness register.
const MaxLevel = 63

// defaultLevel is programmed during initialization.
const defaultLevel = 0x01

// ErrHalted is returned by every write after Shutdown.
var ErrHalted = errors.New("matrix: driver is shut down")

// ErrTransport matches any *TransportError via errors.Is.
var ErrTransport = errors.New("matrix: transport failure")

// TransportError reports a failed bus write. Op names the command step that
// was being sent.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("matrix: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransport) match.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Driver is the handle for one initialized chip.
type Driver struct {
	mu sync.Mutex

	c      conn.Conn
	offset int // start of this chip's slice in the shared physical buffer

	level  byte
	halted bool

	// tx is reused for every display write.
	tx [FrameSize]byte
}

// New initializes the chip behind c and returns a ready Driver. offset is
// where this chip's MemSize bytes start inside the buffer later passed to
// WriteDisplay.
//
// The init sequence is: soft reset, minimal brightness, scroll off, output
// off, clear display memory, enable all COM and ROW pins, output on. The
// first failed write aborts the sequence; a half-initialized chip is never
// returned.
func New(c conn.Conn, offset int) (*Driver, error) {
	if c == nil {
		return nil, errors.New("matrix: nil connection")
	}
	if offset < 0 {
		return nil, fmt.Errorf("matrix: negative offset %d", offset)
	}
	d := &Driver{c: c, offset: offset}

	steps := []struct {
		op string
		w  []byte
	}{
		{"soft reset", []byte{cmdSoftReset}},
		{"set brightness", []byte{cmdGlobalBrightness, defaultLevel}},
		{"disable scroll", []byte{cmdScrollCtrl, 0x00}},
		{"disable output", []byte{cmdSystemCtrl, systemOff}},
		{"clear display", d.frame(make([]byte, MemSize))},
		{"enable com pins", []byte{cmdComPinCtrl, 0xFF}},
		{"enable row pins", []byte{cmdRowPinCtrl, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"enable output", []byte{cmdSystemCtrl, systemOn}},
	}
	for _, s := range steps {
		if err := d.write(s.op, s.w); err != nil {
			return nil, err
		}
	}
	d.level = defaultLevel
	return d, nil
}

// String implements fmt.Stringer.
func (d *Driver) String() string {
	return fmt.Sprintf("matrix{%s@%d}", d.c, d.offset)
}

// Level returns the last brightness register value written.
func (d *Driver) Level() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

// LevelFor converts a fractional brightness to a register value. Values
// outside [0, 1] are clamped; NaN maps to 0.
func LevelFor(v float64) byte {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 1:
		return MaxLevel
	}
	return byte(MaxLevel * v)
}

// SetBrightness programs the global brightness from a fraction in [0, 1].
func (d *Driver) SetBrightness(v float64) error {
	return d.SetLevel(LevelFor(v))
}

// SetLevel programs a raw brightness register value, clamped to MaxLevel.
func (d *Driver) SetLevel(level byte) error {
	if level > MaxLevel {
		level = MaxLevel
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	if err := d.write("set brightness", []byte{cmdGlobalBrightness, level}); err != nil {
		return err
	}
	d.level = level
	return nil
}

// WriteDisplay sends this chip's slice of the shared physical buffer.
func (d *Driver) WriteDisplay(buf []byte) error {
	if len(buf) < d.offset+MemSize {
		return fmt.Errorf("matrix: buffer of %d bytes too short for offset %d", len(buf), d.offset)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	d.tx[0] = cmdWriteDisplay
	d.tx[1] = 0x00
	copy(d.tx[2:], buf[d.offset:d.offset+MemSize])
	return d.write("write display", d.tx[:])
}

// Shutdown turns the COM and ROW outputs off and then disables the chip so
// the half goes dark rather than holding the last image. The driver is
// halted after the first call whether or not the writes succeed; later calls
// do nothing.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return nil
	}
	d.halted = true

	if err := d.write("disable com pins", []byte{cmdComPinCtrl, 0x00}); err != nil {
		return err
	}
	if err := d.write("disable row pins", []byte{cmdRowPinCtrl, 0x00, 0x00, 0x00, 0x00}); err != nil {
		return err
	}
	return d.write("disable output", []byte{cmdSystemCtrl, systemOff})
}

// Halted reports whether Shutdown has been called.
func (d *Driver) Halted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.halted
}

// frame prefixes mem with the display-write header.
func (d *Driver) frame(mem []byte) []byte {
	return append([]byte{cmdWriteDisplay, 0x00}, mem...)
}

func (d *Driver) write(op string, w []byte) error {
	if err := d.c.Tx(w, nil); err != nil {
		return &TransportError{Op: op, Err: err}
	}
	appLog.Debug("spi tx", "offset", d.offset, "op", op, "bytes", len(w))
	return nil
}
