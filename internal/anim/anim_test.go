package anim

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unicornhat/internal/model"
)

type fakeCanvas struct {
	mu      sync.Mutex
	w, h    int
	px      map[image.Point]model.RGB
	shows   int
	showErr error
}

func newCanvas(w, h int) *fakeCanvas {
	return &fakeCanvas{w: w, h: h, px: map[image.Point]model.RGB{}}
}

func (f *fakeCanvas) Bounds() image.Rectangle { return image.Rect(0, 0, f.w, f.h) }

func (f *fakeCanvas) SetPixel(x, y int, c model.RGB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !(image.Point{X: x, Y: y}).In(f.Bounds()) {
		return errors.New("out of bounds")
	}
	f.px[image.Point{X: x, Y: y}] = c
	return nil
}

func (f *fakeCanvas) SetAll(c model.RGB) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for x := 0; x < f.w; x++ {
		for y := 0; y < f.h; y++ {
			f.px[image.Point{X: x, Y: y}] = c
		}
	}
}

func (f *fakeCanvas) Show() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shows++
	return f.showErr
}

func (f *fakeCanvas) showCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shows
}

func TestSolid(t *testing.T) {
	c := newCanvas(3, 2)
	col := model.RGB{R: 5}
	require.NoError(t, Solid(col).Render(c, 0))
	assert.Len(t, c.px, 6)
	for _, got := range c.px {
		assert.Equal(t, col, got)
	}
}

func TestCycleStartsRed(t *testing.T) {
	c := newCanvas(2, 2)
	require.NoError(t, Cycle().Render(c, 0))
	assert.Equal(t, model.RGB{R: 255}, c.px[image.Point{}])

	require.NoError(t, Cycle().Render(c, cyclePeriod/3))
	assert.Equal(t, model.RGB{G: 255}, c.px[image.Point{}])
}

func TestRainbowVariesByColumn(t *testing.T) {
	c := newCanvas(17, 7)
	require.NoError(t, Rainbow().Render(c, 0))
	assert.Equal(t, c.px[image.Point{X: 4, Y: 0}], c.px[image.Point{X: 4, Y: 6}])
	assert.NotEqual(t, c.px[image.Point{X: 0, Y: 0}], c.px[image.Point{X: 8, Y: 0}])
	assert.Equal(t, model.RGB{R: 255}, c.px[image.Point{}])
}

func TestByName(t *testing.T) {
	e, err := ByName(ModeManual, model.Black)
	require.NoError(t, err)
	assert.Nil(t, e)

	for _, name := range []string{ModeSolid, ModeCycle, ModeRainbow} {
		e, err := ByName(name, model.White)
		require.NoError(t, err)
		assert.Equal(t, name, e.Name)
	}
	_, err = ByName("strobe", model.White)
	assert.Error(t, err)
}

func TestPlayerStep(t *testing.T) {
	c := newCanvas(2, 2)
	p := NewPlayer(c, 10)
	assert.Equal(t, ModeManual, p.Mode())

	require.NoError(t, p.Step(time.Now()))
	assert.Zero(t, c.showCount())

	p.SetEffect(Solid(model.White))
	assert.Equal(t, ModeSolid, p.Mode())
	require.NoError(t, p.Step(time.Now()))
	assert.Equal(t, 1, c.showCount())
	assert.Equal(t, model.White, c.px[image.Point{X: 1, Y: 1}])
}

func TestPlayerRunStopsOnCancel(t *testing.T) {
	c := newCanvas(2, 2)
	p := NewPlayer(c, 200)
	p.SetEffect(Cycle())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool { return c.showCount() > 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPlayerRunReturnsShowError(t *testing.T) {
	c := newCanvas(2, 2)
	c.showErr = errors.New("bus gone")
	p := NewPlayer(c, 200)
	p.SetEffect(Solid(model.White))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorIs(t, p.Run(ctx), c.showErr)
}

func TestSetEffectWaitsForRunningFrame(t *testing.T) {
	c := newCanvas(2, 2)
	p := NewPlayer(c, 10)

	started, release := make(chan struct{}), make(chan struct{})
	p.SetEffect(&Effect{
		Name: "slow",
		Render: func(c Canvas, _ time.Duration) error {
			close(started)
			<-release
			c.SetAll(model.White)
			return nil
		},
	})

	stepped := make(chan error, 1)
	go func() { stepped <- p.Step(time.Now()) }()
	<-started

	switched := make(chan struct{})
	go func() {
		p.SetEffect(nil)
		close(switched)
	}()

	assert.Never(t, func() bool {
		select {
		case <-switched:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-stepped)
	select {
	case <-switched:
	case <-time.After(time.Second):
		t.Fatal("SetEffect did not return after the frame finished")
	}

	// the old frame is fully shown before the switch, so a write made now
	// is the last word
	assert.Equal(t, 1, c.showCount())
	c.SetAll(model.Black)
	require.NoError(t, p.Step(time.Now()))
	assert.Equal(t, 1, c.showCount())
	assert.Equal(t, model.Black, c.px[image.Point{}])
}

func TestNewPlayerClampsFPS(t *testing.T) {
	c := newCanvas(1, 1)
	assert.Equal(t, 30, NewPlayer(c, 0).fps)
	assert.Equal(t, 60, NewPlayer(c, 60).fps)
	assert.Equal(t, MaxFPS, NewPlayer(c, 2_000_000_000).fps)
}
