package audio

import (
	"log/slog"
	"sync"

	"github.com/gopxl/beep/v2"
)

// DefaultSampleRate is the rendering rate used when none is configured.
const DefaultSampleRate beep.SampleRate = 44100

// FilterQ is the quality factor of every equalizer band.
const FilterQ = 1.0

// Band is one equalizer band.
type Band struct {
	Frequency float64 `json:"frequency" lua:"frequency"` // Hz
	Gain      float64 `json:"gain" lua:"gain"`           // dB
}

// Engine builds and maintains the processing chain for one media element:
//
//	source -> filter[0] -> ... -> filter[n-1] -> gain -> analyser -> destination
//
// Methods called before the chain exists, or after Destroy, are no-ops
// apart from recording the requested equalizer bands and volume.
type Engine struct {
	mu sync.Mutex

	rate   beep.SampleRate
	logger *slog.Logger

	ctx      *Context
	element  MediaElement
	source   *SourceNode
	gain     *GainNode
	analyser *AnalyserNode
	filters  []*PeakingFilter

	bands  []Band
	volume float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithSampleRate sets the rendering sample rate.
func WithSampleRate(rate beep.SampleRate) Option {
	return func(e *Engine) {
		if rate > 0 {
			e.rate = rate
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine. No graph exists until AttachElement.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rate:   DefaultSampleRate,
		logger: slog.Default(),
		volume: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SampleRate returns the rendering sample rate.
func (e *Engine) SampleRate() beep.SampleRate {
	return e.rate
}

// AttachElement binds el as the chain's source. The context and terminal
// nodes are created on first use. A source bound to a different element
// is disconnected before the new source is created.
func (e *Engine) AttachElement(el MediaElement) error {
	if el == nil {
		return ErrNoElement
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureContext(); err != nil {
		return err
	}

	if e.source != nil && e.element != el {
		e.ctx.Disconnect(e.source)
		e.source = nil
	}

	src, err := e.ctx.CreateMediaElementSource(el)
	if err != nil {
		return err
	}
	e.source = src
	e.element = el

	if len(e.filters) != len(e.bands) {
		if err := e.buildFilters(); err != nil {
			return err
		}
	}
	return e.link()
}

// ensureContext creates the context, gain and analyser once.
func (e *Engine) ensureContext() error {
	if e.ctx != nil {
		return nil
	}

	ctx := NewContext(e.rate)
	gain, err := ctx.CreateGain()
	if err != nil {
		return err
	}
	analyser, err := ctx.CreateAnalyser()
	if err != nil {
		return err
	}
	if err := ctx.Connect(gain, analyser); err != nil {
		return err
	}
	if err := ctx.Connect(analyser, ctx.Destination()); err != nil {
		return err
	}
	gain.SetValue(e.volume)

	e.ctx = ctx
	e.gain = gain
	e.analyser = analyser
	e.logger.Debug("audio context created", "sample_rate", int(e.rate))
	return nil
}

// SetEqualizer replaces the filter chain with one peaking filter per band.
// An empty list links the source directly to the gain node.
func (e *Engine) SetEqualizer(bands []Band) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.bands = append([]Band(nil), bands...)
	if e.ctx == nil {
		return nil
	}
	if err := e.buildFilters(); err != nil {
		return err
	}
	return e.link()
}

// buildFilters removes every existing filter and creates new ones from
// the current bands. The source is disconnected first.
func (e *Engine) buildFilters() error {
	if e.source != nil {
		e.ctx.Disconnect(e.source)
	}
	for _, f := range e.filters {
		e.ctx.Remove(f)
	}
	e.filters = nil

	filters := make([]*PeakingFilter, 0, len(e.bands))
	for _, b := range e.bands {
		f, err := e.ctx.CreatePeakingFilter(b.Frequency, b.Gain, FilterQ)
		if err != nil {
			return err
		}
		filters = append(filters, f)
	}
	e.filters = filters
	return nil
}

// link connects source -> filters -> gain.
func (e *Engine) link() error {
	var prev Node
	if e.source != nil {
		prev = e.source
	}
	for _, f := range e.filters {
		if prev != nil {
			if err := e.ctx.Connect(prev, f); err != nil {
				return err
			}
		}
		prev = f
	}
	if prev != nil {
		return e.ctx.Connect(prev, e.gain)
	}
	return nil
}

// Equalizer returns the current bands.
func (e *Engine) Equalizer() []Band {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Band(nil), e.bands...)
}

// SetVolume sets the chain gain, clamped to [0, 1]. The new value applies
// from the next rendered buffer.
func (e *Engine) SetVolume(v float64) {
	v = clamp01(v)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.volume = v
	if e.gain == nil {
		return
	}
	e.ctx.mu.Lock()
	e.gain.SetValue(v)
	e.ctx.mu.Unlock()
}

// Volume returns the chain gain.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// Element returns the attached media element, or nil.
func (e *Engine) Element() MediaElement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.element
}

// Filters returns the number of filters in the chain.
func (e *Engine) Filters() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.filters)
}

// Chain returns the node names from the source to the destination.
// Without a source the walk starts at the first filter or the gain node.
func (e *Engine) Chain() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx == nil {
		return nil
	}
	var start Node = e.gain
	switch {
	case e.source != nil:
		start = e.source
	case len(e.filters) > 0:
		start = e.filters[0]
	}

	nodes := e.ctx.Walk(start)
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name()
	}
	return names
}

// Levels returns the analyser's latest levels.
func (e *Engine) Levels() Levels {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.analyser == nil {
		return Levels{}
	}
	return e.analyser.Levels()
}

// Output returns the streamer rendering the destination, or nil before
// AttachElement. Pass it to an audio sink.
func (e *Engine) Output() beep.Streamer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return nil
	}
	return output{ctx: e.ctx}
}

// Destroy disconnects every node in reverse build order and closes the
// context. Calling Destroy more than once is a no-op.
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx == nil {
		return
	}
	e.ctx.Close()
	e.ctx = nil
	e.element = nil
	e.source = nil
	e.gain = nil
	e.analyser = nil
	e.filters = nil
	e.logger.Debug("audio context closed")
}
