package audio

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

// Node is a vertex of the processing graph.
type Node interface {
	beep.Streamer

	// Name identifies the node kind in Chain output.
	Name() string
}

// inputNode is a node with an input that other nodes can connect to.
type inputNode interface {
	Node
	input() *port
}

// port is a node input. It yields silence while nothing is connected and
// pads short reads with silence, so the graph never stops pulling.
type port struct {
	in beep.Streamer
}

func (p *port) Stream(samples [][2]float64) (int, bool) {
	n := 0
	if p.in != nil {
		n, _ = p.in.Stream(samples)
	}
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (p *port) Err() error {
	return nil
}

// SourceNode reads from a media element.
type SourceNode struct {
	element  MediaElement
	streamer beep.Streamer
}

func newSourceNode(el MediaElement, rate beep.SampleRate) *SourceNode {
	var s beep.Streamer = el.Streamer()
	if from := el.Format().SampleRate; from != 0 && from != rate {
		s = beep.Resample(3, from, rate, s)
	}
	return &SourceNode{element: el, streamer: s}
}

// Element returns the media element this source wraps.
func (n *SourceNode) Element() MediaElement { return n.element }

func (n *SourceNode) Name() string { return "source" }

func (n *SourceNode) Stream(samples [][2]float64) (int, bool) {
	return n.streamer.Stream(samples)
}

func (n *SourceNode) Err() error { return n.streamer.Err() }

// PeakingFilter boosts or cuts a band around a center frequency.
type PeakingFilter struct {
	Frequency float64
	Gain      float64 // dB
	Q         float64

	in port
	eq beep.Streamer
}

const (
	// flatGain is the smallest |gain| in dB that gets a filter section.
	// The section's coefficients are undefined at exactly 0 dB.
	flatGain = 1e-3

	// maxFilterRatio caps center frequency and bandwidth as a fraction of
	// the sample rate, keeping the section stable below Nyquist.
	maxFilterRatio = 0.45
)

func newPeakingFilter(rate beep.SampleRate, frequency, gain, q float64) *PeakingFilter {
	f := &PeakingFilter{Frequency: frequency, Gain: gain, Q: q}
	if math.Abs(gain) < flatGain || math.IsNaN(gain) || !(frequency > 0) || !(q > 0) {
		f.eq = &f.in
		return f
	}
	limit := maxFilterRatio * float64(rate)
	f0 := min(frequency, limit)
	f.eq = effects.NewEqualizer(&f.in, rate, effects.MonoEqualizerSections{
		{F0: f0, Bf: min(f0/q, limit), GB: gain / 2, G0: 0, G: gain},
	})
	return f
}

func (f *PeakingFilter) Name() string { return "filter" }

// String describes the filter band.
func (f *PeakingFilter) String() string {
	return fmt.Sprintf("peaking(%gHz, %+.1fdB, Q=%g)", f.Frequency, f.Gain, f.Q)
}

func (f *PeakingFilter) Stream(samples [][2]float64) (int, bool) {
	return f.eq.Stream(samples)
}

func (f *PeakingFilter) Err() error { return nil }

func (f *PeakingFilter) input() *port { return &f.in }

// GainNode scales its input by a linear factor.
type GainNode struct {
	in    port
	gain  effects.Gain
	value float64
}

func newGainNode() *GainNode {
	g := &GainNode{value: 1}
	g.gain = effects.Gain{Streamer: &g.in, Gain: 0}
	return g
}

// Value returns the linear gain factor.
func (g *GainNode) Value() float64 { return g.value }

// SetValue sets the linear gain factor.
func (g *GainNode) SetValue(v float64) {
	g.value = v
	g.gain.Gain = v - 1
}

func (g *GainNode) Name() string { return "gain" }

func (g *GainNode) Stream(samples [][2]float64) (int, bool) {
	return g.gain.Stream(samples)
}

func (g *GainNode) Err() error { return nil }

func (g *GainNode) input() *port { return &g.in }

// Levels is a snapshot of signal levels, both in [0, 1] for unclipped audio.
type Levels struct {
	Peak float64 `json:"peak" lua:"peak"`
	RMS  float64 `json:"rms" lua:"rms"`
}

// AnalyserNode passes audio through and records its levels.
type AnalyserNode struct {
	in   port
	peak atomic.Uint64
	rms  atomic.Uint64
}

func newAnalyserNode() *AnalyserNode {
	return &AnalyserNode{}
}

func (a *AnalyserNode) Name() string { return "analyser" }

func (a *AnalyserNode) Stream(samples [][2]float64) (int, bool) {
	n, ok := a.in.Stream(samples)
	var peak, sum float64
	for _, s := range samples[:n] {
		for _, v := range s {
			abs := math.Abs(v)
			if abs > peak {
				peak = abs
			}
			sum += v * v
		}
	}
	rms := 0.0
	if n > 0 {
		rms = math.Sqrt(sum / float64(2*n))
	}
	a.peak.Store(math.Float64bits(peak))
	a.rms.Store(math.Float64bits(rms))
	return n, ok
}

func (a *AnalyserNode) Err() error { return nil }

func (a *AnalyserNode) input() *port { return &a.in }

// Levels returns the levels of the most recently processed buffer.
func (a *AnalyserNode) Levels() Levels {
	return Levels{
		Peak: math.Float64frombits(a.peak.Load()),
		RMS:  math.Float64frombits(a.rms.Load()),
	}
}

// Destination is the terminal node of a Context.
type Destination struct {
	in    port
	mixer beep.Mixer
}

func newDestination() *Destination {
	d := &Destination{}
	d.mixer.Add(&d.in)
	return d
}

func (d *Destination) Name() string { return "destination" }

func (d *Destination) Stream(samples [][2]float64) (int, bool) {
	return d.mixer.Stream(samples)
}

func (d *Destination) Err() error { return nil }

func (d *Destination) input() *port { return &d.in }
