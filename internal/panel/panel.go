// Package panel presents the two LED driver chips as one 17x7 RGB display.
//
// It owns the logical framebuffer and the physical buffer, translates one
// into the other through the fixed wiring table on Show, and hands each half
// of the physical buffer to its chip. Pixel writes never touch the bus; only
// Show, SetBrightness and Shutdown do.
//
// A Panel must be shut down when no longer needed, otherwise the chips keep
// displaying the last frame. The usual pattern is:
//
//	p, err := panel.Open(nil)
//	if err != nil { ... }
//	defer p.Close()
package panel

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"unicornhat/internal/convert"
	appLog "unicornhat/internal/log"
	"unicornhat/internal/matrix"
	"unicornhat/internal/model"
)

// Panel geometry in unrotated logical pixels.
const (
	Width     = 17
	Height    = 7
	NumPixels = Width * Height

	// BufferSize is the size of the physical buffer shared by both chips.
	BufferSize = 2 * matrix.MemSize
)

// Bus defaults: both chips on SPI0, chip-selects 0 and 1.
const (
	DefaultLeftPort  = "SPI0.0"
	DefaultRightPort = "SPI0.1"
	DefaultSpeedHz   = 600_000
)

// ErrOutOfBounds matches every *BoundsError via errors.Is.
var ErrOutOfBounds = errors.New("panel: coordinate out of bounds")

// BoundsError is returned for pixel coordinates outside the current bounds.
// It is a caller bug, unrelated to bus failures.
type BoundsError struct {
	X, Y   int
	Bounds image.Rectangle
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("panel: pixel (%d,%d) outside %v", e.X, e.Y, e.Bounds)
}

func (e *BoundsError) Is(target error) bool { return target == ErrOutOfBounds }

// Rotation of the logical surface, in degrees clockwise.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Valid reports whether r is one of the four supported rotations.
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

// Opts selects the SPI ports used by Open.
type Opts struct {
	LeftPort  string // default DefaultLeftPort
	RightPort string // default DefaultRightPort
	SpeedHz   int    // default DefaultSpeedHz
}

var _ display.Drawer = (*Panel)(nil)

// Panel is the handle for the whole display. All methods are safe for
// concurrent use.
type Panel struct {
	mu sync.Mutex

	left  *matrix.Driver
	right *matrix.Driver
	ports []spi.PortCloser // nil when built from existing connections

	// disp is indexed x*Height + y in unrotated coordinates.
	disp [NumPixels]model.RGB
	buf  [BufferSize]byte

	rotation Rotation
	halted   bool
}

// Open opens both SPI ports through the periph.io registry, connects them in
// mode 0 and initializes both chips. host.Init must have been called. On
// failure nothing stays open and no chip is left enabled.
func Open(opts *Opts) (*Panel, error) {
	o := Opts{}
	if opts != nil {
		o = *opts
	}
	if o.LeftPort == "" {
		o.LeftPort = DefaultLeftPort
	}
	if o.RightPort == "" {
		o.RightPort = DefaultRightPort
	}
	if o.SpeedHz <= 0 {
		o.SpeedHz = DefaultSpeedHz
	}

	var ports []spi.PortCloser
	closeAll := func() {
		for _, port := range ports {
			_ = port.Close()
		}
	}

	conns := make([]conn.Conn, 0, 2)
	for _, name := range []string{o.LeftPort, o.RightPort} {
		port, err := spireg.Open(name)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("panel: failed to open SPI port %q: %w", name, err)
		}
		ports = append(ports, port)

		c, err := port.Connect(physic.Frequency(o.SpeedHz)*physic.Hertz, spi.Mode0, 8)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("panel: failed to connect SPI port %q: %w", name, err)
		}
		conns = append(conns, c)
	}

	p, err := New(conns[0], conns[1])
	if err != nil {
		closeAll()
		return nil, err
	}
	p.ports = ports
	appLog.Info("panel opened", "left", o.LeftPort, "right", o.RightPort, "speed_hz", o.SpeedHz)
	return p, nil
}

// New initializes the left chip on left and the right chip on right. If the
// right chip fails, the left one is shut down before the error is returned.
func New(left, right conn.Conn) (*Panel, error) {
	l, err := matrix.New(left, 0)
	if err != nil {
		return nil, fmt.Errorf("panel: left: %w", err)
	}
	r, err := matrix.New(right, matrix.MemSize)
	if err != nil {
		if serr := l.Shutdown(); serr != nil {
			appLog.Error("left matrix shutdown after failed init", serr)
		}
		return nil, fmt.Errorf("panel: right: %w", err)
	}
	return &Panel{left: l, right: r}, nil
}

// String implements conn.Resource.
func (p *Panel) String() string {
	return fmt.Sprintf("panel{%s, %s}", p.left, p.right)
}

// ColorModel implements display.Drawer.
func (p *Panel) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer. The shape follows the rotation: 17x7 at
// 0 and 180 degrees, 7x17 at 90 and 270.
func (p *Panel) Bounds() image.Rectangle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bounds()
}

func (p *Panel) bounds() image.Rectangle {
	if p.rotation == Rotate90 || p.rotation == Rotate270 {
		return image.Rect(0, 0, Height, Width)
	}
	return image.Rect(0, 0, Width, Height)
}

// Rotation returns the current rotation.
func (p *Panel) Rotation() Rotation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotation
}

// SetRotation changes how logical coordinates map onto the panel. Pixels
// already in the framebuffer stay where they physically are.
func (p *Panel) SetRotation(r Rotation) error {
	if !r.Valid() {
		return fmt.Errorf("panel: rotation must be one of 0, 90, 180, 270, got %d", r)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rotation = r
	return nil
}

// index converts logical coordinates to a framebuffer index.
func (p *Panel) index(x, y int) (int, error) {
	b := p.bounds()
	if !(image.Point{X: x, Y: y}).In(b) {
		return 0, &BoundsError{X: x, Y: y, Bounds: b}
	}
	switch p.rotation {
	case Rotate90:
		x, y = Width-1-y, x
	case Rotate180:
		x, y = Width-1-x, Height-1-y
	case Rotate270:
		x, y = y, Height-1-x
	}
	return x*Height + y, nil
}

// SetPixel sets one framebuffer pixel. Nothing is sent until Show.
func (p *Panel) SetPixel(x, y int, c model.RGB) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, err := p.index(x, y)
	if err != nil {
		return err
	}
	p.disp[i] = c
	return nil
}

// Pixel returns one framebuffer pixel.
func (p *Panel) Pixel(x, y int) (model.RGB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, err := p.index(x, y)
	if err != nil {
		return model.RGB{}, err
	}
	return p.disp[i], nil
}

// SetAll fills the framebuffer with c.
func (p *Panel) SetAll(c model.RGB) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.disp {
		p.disp[i] = c
	}
}

// Clear fills the framebuffer with black.
func (p *Panel) Clear() {
	p.SetAll(model.Black)
}

// Image returns a copy of the framebuffer in logical (rotated) coordinates.
func (p *Panel) Image() *image.NRGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.bounds()
	img := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i, _ := p.index(x, y)
			c := p.disp[i]
			img.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xFF})
		}
	}
	return img
}

// Draw implements display.Drawer: it copies src into the part of dst that
// overlaps the panel and shows the result.
func (p *Panel) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := dst.Intersect(p.bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i, _ := p.index(x, y)
			p.disp[i] = convert.RGB(src.At(sp.X+x-dst.Min.X, sp.Y+y-dst.Min.Y))
		}
	}
	return p.show()
}

// Brightness returns the current global brightness as a fraction.
func (p *Panel) Brightness() float64 {
	return float64(p.left.Level()) / matrix.MaxLevel
}

// SetBrightness programs both chips. Values outside [0, 1] are clamped. If
// the right chip fails, the left one is restored to its previous level so
// the two halves never stay mismatched.
func (p *Panel) SetBrightness(v float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.halted {
		return matrix.ErrHalted
	}
	prev := p.left.Level()
	if err := p.left.SetBrightness(v); err != nil {
		return fmt.Errorf("panel: left: %w", err)
	}
	if err := p.right.SetBrightness(v); err != nil {
		if rerr := p.left.SetLevel(prev); rerr != nil {
			appLog.Error("brightness rollback failed", rerr, "level", prev)
		}
		return fmt.Errorf("panel: right: %w", err)
	}
	return nil
}

// Show writes the framebuffer to both chips, left first. Each pixel's
// channels go to the three physical offsets the wiring table gives for it;
// physical bytes no pixel owns stay zero.
func (p *Panel) Show() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.show()
}

func (p *Panel) show() error {
	if p.halted {
		return matrix.ErrHalted
	}
	for i, c := range p.disp {
		o := lut[i]
		p.buf[o[0]] = c.R
		p.buf[o[1]] = c.G
		p.buf[o[2]] = c.B
	}
	if err := p.left.WriteDisplay(p.buf[:]); err != nil {
		return fmt.Errorf("panel: left: %w", err)
	}
	if err := p.right.WriteDisplay(p.buf[:]); err != nil {
		return fmt.Errorf("panel: right: %w", err)
	}
	return nil
}

// Shutdown blanks both chips and releases the SPI ports. The right chip is
// shut down even when the left one fails. Calls after the first do nothing.
func (p *Panel) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.halted {
		return nil
	}
	p.halted = true

	var errs []error
	if err := p.left.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("panel: left: %w", err))
	}
	if err := p.right.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("panel: right: %w", err))
	}
	for _, port := range p.ports {
		if err := port.Close(); err != nil {
			errs = append(errs, fmt.Errorf("panel: close %s: %w", port, err))
		}
	}
	return errors.Join(errs...)
}

// Halt implements conn.Resource.
func (p *Panel) Halt() error {
	return p.Shutdown()
}

// Close shuts the panel down for use in defer. A failure is logged, not
// returned, since there is nothing left for the caller to do about it.
func (p *Panel) Close() error {
	if err := p.Shutdown(); err != nil {
		appLog.Error("panel shutdown failed", err)
	}
	return nil
}
