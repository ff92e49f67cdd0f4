// Package audio builds the player's signal chain out of beep streamers.
//
// A Context holds a small pull graph of nodes. Each node with an input has
// a port that Connect points at another node; rendering the Destination
// pulls audio through whatever is connected. An Engine owns one Context
// and keeps it in the shape
//
//	source -> filter[0] -> ... -> filter[n-1] -> gain -> analyser -> destination
//
// where the source wraps a MediaElement, each filter is a peaking
// equalizer band, and the analyser records peak and RMS levels.
//
//	engine := audio.NewEngine(audio.WithSampleRate(48000))
//	if err := engine.AttachElement(audio.NewElement(streamer, format)); err != nil {
//	    return err
//	}
//	engine.SetEqualizer([]audio.Band{{Frequency: 1000, Gain: 6}})
//	speaker.Play(engine.Output())
package audio
