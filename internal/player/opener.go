package player

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned by OpenFile for unknown extensions.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Opener opens a track file for streaming. The returned streamer owns the
// file and closes it on Close.
type Opener func(path string) (beep.StreamSeekCloser, beep.Format, error)

// decoders by lower-case file extension
var decoders = map[string]struct {
	name   string
	decode func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)
}{
	".wav":  {"wav", decodeWAV},
	".wave": {"wav", decodeWAV},
	".mp3":  {"mp3", decodeMP3},
}

// OpenFile opens WAV and MP3 files. Other formats need an Opener from the
// front end.
func OpenFile(path string) (beep.StreamSeekCloser, beep.Format, error) {
	dec, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	s, format, err := dec.decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", dec.name, err)
	}
	return s, format, nil
}

func decodeWAV(f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
	return wav.Decode(f)
}

func decodeMP3(f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
	return mp3.Decode(f)
}
