package player

import (
	"context"
	"time"

	"github.com/gopxl/beep/v2"
)

// Sink pulls audio from a streamer in real time and discards it. It
// drives the chain when no sound device is attached, so levels, end of
// track and plugin hooks behave as they would during playback.
type Sink struct {
	source func() beep.Streamer
	rate   beep.SampleRate
	period time.Duration
	buf    [][2]float64
}

// NewSink creates a sink that renders source every period.
func NewSink(source func() beep.Streamer, rate beep.SampleRate, period time.Duration) *Sink {
	if period <= 0 {
		period = 20 * time.Millisecond
	}
	return &Sink{
		source: source,
		rate:   rate,
		period: period,
		buf:    make([][2]float64, rate.N(period)),
	}
}

// Render pulls one period of audio. It returns false if nothing is
// attached yet.
func (s *Sink) Render() bool {
	st := s.source()
	if st == nil || len(s.buf) == 0 {
		return false
	}
	st.Stream(s.buf)
	return true
}

// Run renders until ctx is cancelled.
func (s *Sink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Render()
		}
	}
}
