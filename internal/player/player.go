// Package player owns the current track and its place in the audio chain.
//
// Transport calls (Play, Pause, Seek, ...) take effect immediately. The
// events they produce are queued and delivered from Run, on the caller's
// goroutine, to the event bus and the plugin hook. A plugin hook may
// therefore call back into the Player without deadlocking.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/dshills/neonplay/internal/audio"
	"github.com/dshills/neonplay/internal/event"
	"github.com/dshills/neonplay/internal/event/topic"
	"github.com/dshills/neonplay/internal/library"
)

// State is the transport state.
type State string

// Transport states.
const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// Event names a transport change.
type Event string

// Transport events.
const (
	EventPlay        Event = "play"
	EventPause       Event = "pause"
	EventStop        Event = "stop"
	EventSeek        Event = "seek"
	EventVolume      Event = "volumechange"
	EventTrackChange Event = "trackchange"
	EventEnded       Event = "ended"
)

// Topic returns the bus topic for ev.
func (ev Event) Topic() topic.Topic {
	switch ev {
	case EventPlay:
		return event.TopicPlayerPlay
	case EventPause:
		return event.TopicPlayerPause
	case EventStop:
		return event.TopicPlayerStop
	case EventSeek:
		return event.TopicPlayerSeek
	case EventVolume:
		return event.TopicPlayerVolume
	case EventTrackChange:
		return event.TopicPlayerTrackChange
	case EventEnded:
		return event.TopicPlayerEnded
	}
	return topic.Topic("player." + string(ev))
}

// HookFunc receives transport events from Run.
type HookFunc func(ctx context.Context, ev Event, data map[string]any)

var (
	// ErrNoTrack is returned by transport calls before a track is loaded.
	ErrNoTrack = errors.New("no track loaded")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("player closed")
)

type queued struct {
	ev   Event
	data map[string]any
	el   *audio.Element
}

// Player plays one track at a time through an audio.Engine.
type Player struct {
	mu      sync.Mutex
	engine  *audio.Engine
	element *audio.Element
	stream  io.Closer
	track   *library.Track
	state   State
	closed  bool

	opener Opener
	bus    *event.Bus
	hook   HookFunc
	events chan queued
	logger *slog.Logger
}

// Option configures a Player.
type Option func(*Player)

// WithEngine sets the audio engine. By default the player creates one.
func WithEngine(e *audio.Engine) Option {
	return func(p *Player) {
		if e != nil {
			p.engine = e
		}
	}
}

// WithBus publishes transport events on b.
func WithBus(b *event.Bus) Option {
	return func(p *Player) { p.bus = b }
}

// WithHook sets the function Run calls for every transport event.
func WithHook(h HookFunc) Option {
	return func(p *Player) { p.hook = h }
}

// WithOpener sets how Load opens track files.
func WithOpener(o Opener) Option {
	return func(p *Player) {
		if o != nil {
			p.opener = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithQueueSize sets how many events may wait for Run. Default 128.
func WithQueueSize(n int) Option {
	return func(p *Player) {
		if n > 0 {
			p.events = make(chan queued, n)
		}
	}
}

// New creates a stopped player with nothing loaded.
func New(opts ...Option) *Player {
	p := &Player{
		state:  StateStopped,
		opener: OpenFile,
		events: make(chan queued, 128),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.engine == nil {
		p.engine = audio.NewEngine(audio.WithLogger(p.logger))
	}
	return p
}

// Engine returns the audio engine.
func (p *Player) Engine() *audio.Engine {
	return p.engine
}

// Output returns the rendered audio, or nil before the first Load.
func (p *Player) Output() beep.Streamer {
	return p.engine.Output()
}

// Run delivers queued events until ctx is cancelled.
func (p *Player) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-p.events:
			p.deliver(ctx, q)
		}
	}
}

// Drain delivers the events queued so far and returns.
func (p *Player) Drain(ctx context.Context) {
	for {
		select {
		case q := <-p.events:
			p.deliver(ctx, q)
		default:
			return
		}
	}
}

func (p *Player) deliver(ctx context.Context, q queued) {
	if q.ev == EventEnded {
		var ok bool
		if q.data, ok = p.ended(q.el); !ok {
			return
		}
	}
	if p.bus != nil {
		if _, err := p.bus.Publish(q.ev.Topic(), q.data); err != nil {
			p.logger.Debug("player publish failed", "event", string(q.ev), "error", err)
		}
	}
	if p.hook != nil {
		p.hook(ctx, q.ev, q.data)
	}
}

func (p *Player) emit(ev Event, data map[string]any) {
	select {
	case p.events <- queued{ev: ev, data: data}:
	default:
		p.logger.Warn("player event dropped", "event", string(ev))
	}
}

// Load opens the track's file and makes it current, stopped at the start.
func (p *Player) Load(t library.Track) error {
	s, format, err := p.opener(t.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.Path, err)
	}
	if err := p.LoadStream(t, s, format); err != nil {
		s.Close()
		return err
	}
	p.mu.Lock()
	p.stream = s
	p.mu.Unlock()
	return nil
}

// LoadStream makes s the current track. The player does not close s.
func (p *Player) LoadStream(t library.Track, s beep.StreamSeeker, format beep.Format) error {
	el := audio.NewElement(s, format)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.element != nil {
		p.element.Pause()
	}
	prev := p.stream
	p.stream = nil

	if err := p.engine.AttachElement(el); err != nil {
		p.mu.Unlock()
		return err
	}
	// called with the audio context locked; only queue here
	el.OnEnded(func() {
		select {
		case p.events <- queued{ev: EventEnded, el: el}:
		default:
			p.logger.Warn("player event dropped", "event", string(EventEnded))
		}
	})

	if t.Duration == 0 {
		t.Duration = el.Duration()
	}
	p.element = el
	p.track = &t
	p.state = StateStopped
	p.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	p.emit(EventTrackChange, trackData(t))
	return nil
}

// ended marks the player stopped if el is still the current element.
func (p *Player) ended(el *audio.Element) (map[string]any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el == nil || p.element != el {
		return nil, false
	}
	p.state = StateStopped
	if p.track == nil {
		return nil, true
	}
	return trackData(*p.track), true
}

// Play starts or resumes playback.
func (p *Player) Play() error {
	p.mu.Lock()
	el, err := p.current()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	el.Play()
	p.state = StatePlaying
	pos := el.CurrentTime().Seconds()
	p.mu.Unlock()

	p.emit(EventPlay, map[string]any{"position": pos})
	return nil
}

// Pause pauses playback. Pausing a paused or stopped player is a no-op.
func (p *Player) Pause() error {
	p.mu.Lock()
	el, err := p.current()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if p.state != StatePlaying {
		p.mu.Unlock()
		return nil
	}
	el.Pause()
	p.state = StatePaused
	pos := el.CurrentTime().Seconds()
	p.mu.Unlock()

	p.emit(EventPause, map[string]any{"position": pos})
	return nil
}

// Stop pauses and rewinds to the start.
func (p *Player) Stop() error {
	p.mu.Lock()
	el, err := p.current()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	el.Pause()
	err = el.Seek(0)
	p.state = StateStopped
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.emit(EventStop, nil)
	return nil
}

// Seek moves to seconds from the start. Negative values seek to 0.
func (p *Player) Seek(seconds float64) error {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	p.mu.Lock()
	el, err := p.current()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	err = el.Seek(time.Duration(seconds * float64(time.Second)))
	pos := el.CurrentTime().Seconds()
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.emit(EventSeek, map[string]any{"position": pos})
	return nil
}

// Position returns the playback position in seconds.
func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.element == nil {
		return 0
	}
	return p.element.CurrentTime().Seconds()
}

// Duration returns the current track length in seconds.
func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.element == nil {
		return 0
	}
	return p.element.Duration().Seconds()
}

// Volume returns the output volume in [0, 1].
func (p *Player) Volume() float64 {
	return p.engine.Volume()
}

// SetVolume sets the output volume, clamped to [0, 1].
func (p *Player) SetVolume(v float64) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	p.engine.SetVolume(v)
	p.emit(EventVolume, map[string]any{"volume": p.engine.Volume()})
	return nil
}

// State returns the transport state.
func (p *Player) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.state)
}

// Track returns the current track.
func (p *Player) Track() (library.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil {
		return library.Track{}, false
	}
	return *p.track, true
}

// Close stops playback, releases the track and destroys the engine.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.element != nil {
		p.element.Pause()
	}
	stream := p.stream
	p.stream = nil
	p.element = nil
	p.track = nil
	p.state = StateStopped
	p.mu.Unlock()

	p.engine.Destroy()
	if stream != nil {
		return stream.Close()
	}
	return nil
}

func (p *Player) current() (*audio.Element, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.element == nil {
		return nil, ErrNoTrack
	}
	return p.element, nil
}

func trackData(t library.Track) map[string]any {
	return map[string]any{
		"id":       t.ID,
		"title":    t.Title,
		"artist":   t.Artist,
		"album":    t.Album,
		"path":     t.Path,
		"duration": t.Duration.Seconds(),
	}
}
