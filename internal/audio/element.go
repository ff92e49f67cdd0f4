package audio

import (
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

// MediaElement is a playable media source that the engine can wrap.
type MediaElement interface {
	// Streamer returns the element's audio output.
	Streamer() beep.Streamer
	Format() beep.Format

	Play()
	Pause()
	Paused() bool
	Ended() bool

	CurrentTime() time.Duration
	Duration() time.Duration
	Seek(d time.Duration) error

	Volume() float64
	SetVolume(v float64)
}

// Element is a MediaElement backed by a beep.StreamSeeker.
type Element struct {
	mu sync.Mutex

	src    beep.StreamSeeker
	format beep.Format
	ctrl   *beep.Ctrl
	volume *effects.Volume

	level   float64
	ended   bool
	onEnded func()
}

// NewElement wraps src. The element starts paused at full volume.
func NewElement(src beep.StreamSeeker, format beep.Format) *Element {
	ctrl := &beep.Ctrl{Streamer: src, Paused: true}
	return &Element{
		src:    src,
		format: format,
		ctrl:   ctrl,
		volume: &effects.Volume{Streamer: ctrl, Base: 2},
		level:  1,
	}
}

// OnEnded sets a callback invoked once when the stream runs out.
// It is called from the rendering goroutine and must not block.
func (e *Element) OnEnded(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEnded = fn
}

func (e *Element) Streamer() beep.Streamer {
	return elementStream{e}
}

func (e *Element) Format() beep.Format {
	return e.format
}

func (e *Element) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		if err := e.src.Seek(0); err == nil {
			e.ended = false
		}
	}
	e.ctrl.Paused = false
}

func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctrl.Paused = true
}

func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctrl.Paused
}

func (e *Element) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

func (e *Element) CurrentTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format.SampleRate.D(e.src.Position())
}

func (e *Element) Duration() time.Duration {
	return e.format.SampleRate.D(e.src.Len())
}

// Seek moves the playback position, clamped to the stream bounds.
func (e *Element) Seek(d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.format.SampleRate.N(d)
	if pos < 0 {
		pos = 0
	}
	if n := e.src.Len(); pos > n {
		pos = n
	}
	if err := e.src.Seek(pos); err != nil {
		return err
	}
	e.ended = pos >= e.src.Len()
	return nil
}

func (e *Element) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

// SetVolume sets the element volume, clamped to [0, 1].
func (e *Element) SetVolume(v float64) {
	v = clamp01(v)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.level = v
	if v == 0 {
		e.volume.Silent = true
		return
	}
	e.volume.Silent = false
	e.volume.Volume = math.Log2(v)
}

func (e *Element) stream(samples [][2]float64) (int, bool) {
	e.mu.Lock()
	n := 0
	var notify func()
	if !e.ended {
		var ok bool
		n, ok = e.volume.Stream(samples)
		if !e.ctrl.Paused && (!ok || n < len(samples)) {
			e.ended = true
			e.ctrl.Paused = true
			notify = e.onEnded
		}
	}
	e.mu.Unlock()

	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	if notify != nil {
		notify()
	}
	return len(samples), true
}

// elementStream yields silence while the element is paused or ended.
type elementStream struct {
	e *Element
}

func (s elementStream) Stream(samples [][2]float64) (int, bool) {
	return s.e.stream(samples)
}

func (s elementStream) Err() error {
	return s.e.src.Err()
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
