package audio

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
)

// constStream is a finite StreamSeeker producing a constant sample value.
type constStream struct {
	value float64
	len   int
	pos   int
}

func (s *constStream) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= s.len {
		return 0, false
	}
	n := min(len(samples), s.len-s.pos)
	for i := 0; i < n; i++ {
		samples[i] = [2]float64{s.value, s.value}
	}
	s.pos += n
	return n, true
}

func (s *constStream) Err() error    { return nil }
func (s *constStream) Len() int      { return s.len }
func (s *constStream) Position() int { return s.pos }
func (s *constStream) Seek(p int) error {
	s.pos = p
	return nil
}

var testFormat = beep.Format{SampleRate: DefaultSampleRate, NumChannels: 2, Precision: 2}

func newTestElement(value float64, seconds int) *Element {
	return NewElement(&constStream{value: value, len: seconds * int(DefaultSampleRate)}, testFormat)
}

func chainString(e *Engine) string {
	return strings.Join(e.Chain(), " -> ")
}

func render(t *testing.T, s beep.Streamer, n int) [][2]float64 {
	t.Helper()
	if s == nil {
		t.Fatal("Output() = nil")
	}
	buf := make([][2]float64, n)
	got, ok := s.Stream(buf)
	if !ok || got != n {
		t.Fatalf("Stream() = %d, %v; want %d, true", got, ok, n)
	}
	return buf
}

func TestEngineAttachBuildsChain(t *testing.T) {
	e := NewEngine()
	if e.Output() != nil {
		t.Error("Output() before attach is not nil")
	}
	if e.Chain() != nil {
		t.Error("Chain() before attach is not nil")
	}

	if err := e.AttachElement(newTestElement(0.5, 1)); err != nil {
		t.Fatalf("AttachElement() error = %v", err)
	}
	if got, want := chainString(e), "source -> gain -> analyser -> destination"; got != want {
		t.Errorf("Chain() = %q, want %q", got, want)
	}
	if e.Filters() != 0 {
		t.Errorf("Filters() = %d, want 0", e.Filters())
	}
}

func TestEngineAttachNil(t *testing.T) {
	e := NewEngine()
	if err := e.AttachElement(nil); err != ErrNoElement {
		t.Errorf("AttachElement(nil) error = %v, want ErrNoElement", err)
	}
}

func TestEngineEqualizerScenario(t *testing.T) {
	e := NewEngine()
	if err := e.AttachElement(newTestElement(0.5, 1)); err != nil {
		t.Fatalf("AttachElement() error = %v", err)
	}

	if err := e.SetEqualizer([]Band{{Frequency: 1000, Gain: 6}}); err != nil {
		t.Fatalf("SetEqualizer() error = %v", err)
	}
	if e.Filters() != 1 {
		t.Fatalf("Filters() = %d, want 1", e.Filters())
	}
	if got, want := chainString(e), "source -> filter -> gain -> analyser -> destination"; got != want {
		t.Errorf("Chain() = %q, want %q", got, want)
	}

	if err := e.SetEqualizer([]Band{}); err != nil {
		t.Fatalf("SetEqualizer([]) error = %v", err)
	}
	if e.Filters() != 0 {
		t.Errorf("Filters() = %d, want 0", e.Filters())
	}
	if got, want := chainString(e), "source -> gain -> analyser -> destination"; got != want {
		t.Errorf("Chain() = %q, want %q", got, want)
	}
	if n := e.ctx.Connections(); n != 3 {
		t.Errorf("Connections() = %d, want 3 (no dangling filter edges)", n)
	}
}

func TestEngineEqualizerRebuild(t *testing.T) {
	e := NewEngine()
	if err := e.AttachElement(newTestElement(0.5, 1)); err != nil {
		t.Fatalf("AttachElement() error = %v", err)
	}

	bands := []Band{{60, 3}, {1000, -2}, {8000, 4}}
	if err := e.SetEqualizer(bands); err != nil {
		t.Fatalf("SetEqualizer() error = %v", err)
	}
	if err := e.SetEqualizer(bands[:2]); err != nil {
		t.Fatalf("SetEqualizer() error = %v", err)
	}
	if got, want := chainString(e), "source -> filter -> filter -> gain -> analyser -> destination"; got != want {
		t.Errorf("Chain() = %q, want %q", got, want)
	}
	// source->f0, f0->f1, f1->gain, gain->analyser, analyser->destination
	if n := e.ctx.Connections(); n != 5 {
		t.Errorf("Connections() = %d, want 5", n)
	}
	if got := e.Equalizer(); len(got) != 2 || got[1].Frequency != 1000 {
		t.Errorf("Equalizer() = %v", got)
	}
}

func TestEngineEqualizerBeforeAttach(t *testing.T) {
	e := NewEngine()
	if err := e.SetEqualizer([]Band{{Frequency: 250, Gain: 2}}); err != nil {
		t.Fatalf("SetEqualizer() error = %v", err)
	}
	if e.Filters() != 0 {
		t.Errorf("Filters() before attach = %d, want 0", e.Filters())
	}
	if err := e.AttachElement(newTestElement(0.5, 1)); err != nil {
		t.Fatalf("AttachElement() error = %v", err)
	}
	if e.Filters() != 1 {
		t.Errorf("Filters() after attach = %d, want 1", e.Filters())
	}
	if got, want := chainString(e), "source -> filter -> gain -> analyser -> destination"; got != want {
		t.Errorf("Chain() = %q, want %q", got, want)
	}
}

func TestEngineRebindElement(t *testing.T) {
	e := NewEngine()
	first := newTestElement(0.5, 1)
	second := newTestElement(0.25, 1)

	if err := e.AttachElement(first); err != nil {
		t.Fatalf("AttachElement(first) error = %v", err)
	}
	firstSource := e.source

	if err := e.AttachElement(second); err != nil {
		t.Fatalf("AttachElement(second) error = %v", err)
	}
	if e.source == firstSource {
		t.Fatal("source not rebound")
	}
	if _, ok := e.ctx.Output(firstSource); ok {
		t.Error("previous source still connected")
	}
	if e.Element() != second {
		t.Error("Element() is not the second element")
	}

	// Re-attaching a known element reuses its source node.
	if err := e.AttachElement(first); err != nil {
		t.Fatalf("AttachElement(first) again error = %v", err)
	}
	if e.source != firstSource {
		t.Error("known element got a second source node")
	}
}

func TestEngineVolume(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.5, 0.5},
		{-1, 0},
		{3, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		e := NewEngine()
		e.SetVolume(tt.in)
		if got := e.Volume(); got != tt.want {
			t.Errorf("SetVolume(%v): Volume() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEngineRendersGainAndLevels(t *testing.T) {
	e := NewEngine()
	el := newTestElement(0.5, 1)
	if err := e.AttachElement(el); err != nil {
		t.Fatalf("AttachElement() error = %v", err)
	}
	el.Play()
	e.SetVolume(0.5)

	buf := render(t, e.Output(), 512)
	for i, s := range buf {
		if math.Abs(s[0]-0.25) > 1e-9 || math.Abs(s[1]-0.25) > 1e-9 {
			t.Fatalf("sample %d = %v, want 0.25", i, s)
		}
	}
	lv := e.Levels()
	if math.Abs(lv.Peak-0.25) > 1e-9 || math.Abs(lv.RMS-0.25) > 1e-9 {
		t.Errorf("Levels() = %+v, want peak and rms 0.25", lv)
	}
}

func TestEnginePausedElementIsSilent(t *testing.T) {
	e := NewEngine()
	if err := e.AttachElement(newTestElement(0.5, 1)); err != nil {
		t.Fatalf("AttachElement() error = %v", err)
	}
	for _, s := range render(t, e.Output(), 128) {
		if s != [2]float64{} {
			t.Fatalf("paused element produced %v", s)
		}
	}
}

func TestEngineDestroy(t *testing.T) {
	e := NewEngine()
	if err := e.AttachElement(newTestElement(0.5, 1)); err != nil {
		t.Fatalf("AttachElement() error = %v", err)
	}
	if err := e.SetEqualizer([]Band{{1000, 6}}); err != nil {
		t.Fatalf("SetEqualizer() error = %v", err)
	}
	ctx := e.ctx
	out := e.Output()

	e.Destroy()
	e.Destroy()

	if !ctx.Closed() {
		t.Error("context not closed")
	}
	if n := ctx.Connections(); n != 0 {
		t.Errorf("Connections() after Destroy = %d, want 0", n)
	}
	if e.Filters() != 0 || e.Chain() != nil || e.Output() != nil {
		t.Error("engine still holds graph after Destroy")
	}
	// A closed context renders silence.
	for _, s := range render(t, out, 64) {
		if s != [2]float64{} {
			t.Fatalf("closed context produced %v", s)
		}
	}

	// Guarded calls are no-ops.
	e.SetVolume(0.3)
	if err := e.SetEqualizer(nil); err != nil {
		t.Errorf("SetEqualizer() after Destroy error = %v", err)
	}
	if lv := e.Levels(); lv != (Levels{}) {
		t.Errorf("Levels() after Destroy = %+v", lv)
	}
}

func TestElementEnded(t *testing.T) {
	el := NewElement(&constStream{value: 0.1, len: 100}, testFormat)
	ended := 0
	el.OnEnded(func() { ended++ })
	el.Play()

	buf := make([][2]float64, 64)
	el.Streamer().Stream(buf)
	if el.Ended() {
		t.Fatal("Ended() = true after partial read")
	}
	el.Streamer().Stream(buf)
	if !el.Ended() || ended != 1 {
		t.Fatalf("Ended() = %v, callbacks = %d", el.Ended(), ended)
	}
	if buf[63] != [2]float64{} {
		t.Errorf("tail after end = %v, want silence", buf[63])
	}
	el.Streamer().Stream(buf)
	if ended != 1 {
		t.Errorf("OnEnded called %d times", ended)
	}

	el.Play()
	if el.Ended() || el.CurrentTime() != 0 {
		t.Errorf("Play() after end did not restart: ended=%v pos=%v", el.Ended(), el.CurrentTime())
	}
}

func TestElementSeekAndVolume(t *testing.T) {
	el := newTestElement(1, 10)

	if err := el.Seek(3 * time.Second); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if got := el.CurrentTime(); got != 3*time.Second {
		t.Errorf("CurrentTime() = %v, want 3s", got)
	}
	if err := el.Seek(time.Hour); err != nil {
		t.Fatalf("Seek(past end) error = %v", err)
	}
	if !el.Ended() {
		t.Error("Ended() = false after seeking to end")
	}
	if el.Duration() != 10*time.Second {
		t.Errorf("Duration() = %v", el.Duration())
	}

	el.SetVolume(0.5)
	if el.Volume() != 0.5 {
		t.Errorf("Volume() = %v", el.Volume())
	}
	if err := el.Seek(0); err != nil {
		t.Fatalf("Seek(0) error = %v", err)
	}
	el.Play()
	buf := make([][2]float64, 8)
	el.Streamer().Stream(buf)
	if math.Abs(buf[0][0]-0.5) > 1e-9 {
		t.Errorf("sample at volume 0.5 = %v", buf[0][0])
	}

	el.SetVolume(0)
	el.Streamer().Stream(buf)
	if buf[0][0] != 0 {
		t.Errorf("sample at volume 0 = %v", buf[0][0])
	}
}

func finite(t *testing.T, buf [][2]float64) float64 {
	t.Helper()
	peak := 0.0
	for i, s := range buf {
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("sample %d = %v, want finite", i, s)
			}
			peak = max(peak, math.Abs(v))
		}
	}
	return peak
}

func TestEngineFlatBandPassesThrough(t *testing.T) {
	for _, gain := range []float64{0, 1e-6, -1e-6} {
		e := NewEngine()
		el := newTestElement(0.5, 1)
		if err := e.AttachElement(el); err != nil {
			t.Fatalf("AttachElement() error = %v", err)
		}
		el.Play()
		if err := e.SetEqualizer([]Band{{Frequency: 1000, Gain: gain}, {Frequency: 60, Gain: 3}}); err != nil {
			t.Fatalf("SetEqualizer() error = %v", err)
		}
		if e.Filters() != 2 {
			t.Errorf("Filters() = %d, want 2", e.Filters())
		}
		finite(t, render(t, e.Output(), 512))

		// A lone flat band leaves the signal untouched.
		if err := e.SetEqualizer([]Band{{Frequency: 1000, Gain: gain}}); err != nil {
			t.Fatalf("SetEqualizer() error = %v", err)
		}
		for i, s := range render(t, e.Output(), 512) {
			if s != [2]float64{0.5, 0.5} {
				t.Fatalf("gain %v: sample %d = %v, want 0.5", gain, i, s)
			}
		}
	}
}

func TestEngineFilterStableBelowNyquist(t *testing.T) {
	tests := []struct {
		rate beep.SampleRate
		band Band
	}{
		{22050, Band{Frequency: 20000, Gain: 6}},
		{22050, Band{Frequency: 11000, Gain: -12}},
		{8000, Band{Frequency: 16000, Gain: 12}},
		{44100, Band{Frequency: 20000, Gain: 6}},
	}
	for _, tt := range tests {
		e := NewEngine(WithSampleRate(tt.rate))
		format := beep.Format{SampleRate: tt.rate, NumChannels: 2, Precision: 2}
		el := NewElement(&constStream{value: 0.5, len: 10 * int(tt.rate)}, format)
		if err := e.AttachElement(el); err != nil {
			t.Fatalf("AttachElement() error = %v", err)
		}
		el.Play()
		if err := e.SetEqualizer([]Band{tt.band}); err != nil {
			t.Fatalf("SetEqualizer() error = %v", err)
		}

		peak := 0.0
		for i := 0; i < 20; i++ {
			peak = max(peak, finite(t, render(t, e.Output(), 1024)))
		}
		// +12 dB of boost on a 0.5 signal stays well under 4.
		if peak > 4 {
			t.Errorf("rate %d band %+v: peak %g, filter diverged", tt.rate, tt.band, peak)
		}
	}
}
