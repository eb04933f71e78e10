// Package anim renders the built-in effects onto the panel at a fixed frame
// rate.
package anim

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/lucasb-eyer/go-colorful"

	appLog "unicornhat/internal/log"
	"unicornhat/internal/model"
)

// Mode names accepted by ByName.
const (
	ModeManual  = "manual"
	ModeSolid   = "solid"
	ModeCycle   = "cycle"
	ModeRainbow = "rainbow"
)

// Canvas is what an effect draws on. *panel.Panel satisfies it.
type Canvas interface {
	Bounds() image.Rectangle
	SetPixel(x, y int, c model.RGB) error
	SetAll(c model.RGB)
	Show() error
}

// Effect computes one frame from the time elapsed since it started.
type Effect struct {
	Name   string
	Render func(c Canvas, elapsed time.Duration) error
}

// Solid fills the panel with one colour.
func Solid(col model.RGB) *Effect {
	return &Effect{
		Name: ModeSolid,
		Render: func(c Canvas, _ time.Duration) error {
			c.SetAll(col)
			return nil
		},
	}
}

// cyclePeriod is one full trip around the hue circle.
const cyclePeriod = 10 * time.Second

// Cycle sweeps the whole panel through the hue circle.
func Cycle() *Effect {
	return &Effect{
		Name: ModeCycle,
		Render: func(c Canvas, elapsed time.Duration) error {
			c.SetAll(hue(phase(elapsed)))
			return nil
		},
	}
}

// Rainbow spreads the hue circle across the columns and scrolls it.
func Rainbow() *Effect {
	return &Effect{
		Name: ModeRainbow,
		Render: func(c Canvas, elapsed time.Duration) error {
			b := c.Bounds()
			p := phase(elapsed)
			for x := b.Min.X; x < b.Max.X; x++ {
				col := hue(p + float64(x-b.Min.X)/float64(b.Dx()))
				for y := b.Min.Y; y < b.Max.Y; y++ {
					if err := c.SetPixel(x, y, col); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// ByName resolves a mode name. ModeManual yields a nil effect: nothing is
// rendered and external writers own the framebuffer.
func ByName(name string, col model.RGB) (*Effect, error) {
	switch name {
	case ModeManual:
		return nil, nil
	case ModeSolid:
		return Solid(col), nil
	case ModeCycle:
		return Cycle(), nil
	case ModeRainbow:
		return Rainbow(), nil
	}
	return nil, fmt.Errorf("anim: unknown mode %q", name)
}

// phase maps elapsed time onto [0, 1).
func phase(elapsed time.Duration) float64 {
	return math.Mod(float64(elapsed)/float64(cyclePeriod), 1)
}

// hue returns the fully saturated colour at position h (in turns).
func hue(h float64) model.RGB {
	h = math.Mod(h, 1)
	if h < 0 {
		h++
	}
	r, g, b := colorful.Hsv(h*360, 1, 1).RGB255()
	return model.RGB{R: r, G: g, B: b}
}

// MaxFPS bounds the render rate.
const MaxFPS = 1000

// Player drives the current effect.
type Player struct {
	canvas Canvas
	fps    int

	// step is held for a whole Step so SetEffect can wait out a frame of
	// the previous effect.
	step sync.Mutex

	mu     sync.Mutex
	effect *Effect
	start  time.Time
}

// NewPlayer returns a player in manual mode. fps is clamped to
// [1, MaxFPS]; zero or less selects 30.
func NewPlayer(c Canvas, fps int) *Player {
	switch {
	case fps <= 0:
		fps = 30
	case fps > MaxFPS:
		fps = MaxFPS
	}
	return &Player{canvas: c, fps: fps}
}

// SetEffect switches effects. A nil effect stops rendering. It returns
// after any frame of the previous effect has been shown, so a caller
// writing the framebuffer next is never overwritten by it.
func (p *Player) SetEffect(e *Effect) {
	p.step.Lock()
	defer p.step.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.effect = e
	p.start = time.Time{}
}

// Mode returns the current effect name.
func (p *Player) Mode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.effect == nil {
		return ModeManual
	}
	return p.effect.Name
}

// Step renders and shows one frame of the current effect at now. It does
// nothing in manual mode.
func (p *Player) Step(now time.Time) error {
	p.step.Lock()
	defer p.step.Unlock()

	p.mu.Lock()
	e := p.effect
	if e != nil && p.start.IsZero() {
		p.start = now
	}
	start := p.start
	p.mu.Unlock()

	if e == nil {
		return nil
	}
	if err := e.Render(p.canvas, now.Sub(start)); err != nil {
		return fmt.Errorf("anim: %s: %w", e.Name, err)
	}
	return p.canvas.Show()
}

// Run renders frames until ctx is done or a frame cannot be shown.
func (p *Player) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(p.fps))
	defer ticker.Stop()
	appLog.Info("render loop started", "fps", p.fps, "mode", p.Mode())

	for {
		select {
		case <-ctx.Done():
			appLog.Info("render loop stopped")
			return nil
		case now := <-ticker.C:
			if err := p.Step(now); err != nil {
				return err
			}
		}
	}
}
