package api

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/neonplay/internal/audio"
	plua "github.com/dshills/neonplay/internal/plugin/lua"
	"github.com/dshills/neonplay/internal/plugin/security"
)

// Equalizer limits.
const (
	MaxBands     = 31
	MinFrequency = 20.0
	MaxFrequency = 20000.0
	MaxBandGain  = 24.0
)

// DSP controls the audio signal chain.
type DSP struct {
	provider AudioProvider
}

// NewDSP builds the DSP surface from a dsp:audio grant.
func NewDSP(g security.Grant, plugin string, provider AudioProvider) (*DSP, error) {
	if err := checkGrant(g, plugin, security.PermissionDSPAudio); err != nil {
		return nil, err
	}
	return &DSP{provider: provider}, nil
}

// ValidateBands checks band count, frequency and gain ranges.
func ValidateBands(bands []audio.Band) error {
	if len(bands) > MaxBands {
		return fmt.Errorf("%w: %d bands, max %d", ErrInvalidBand, len(bands), MaxBands)
	}
	for i, b := range bands {
		if math.IsNaN(b.Frequency) || b.Frequency < MinFrequency || b.Frequency > MaxFrequency {
			return fmt.Errorf("%w: band %d frequency %v", ErrInvalidBand, i+1, b.Frequency)
		}
		if math.IsNaN(b.Gain) || math.Abs(b.Gain) > MaxBandGain {
			return fmt.Errorf("%w: band %d gain %v", ErrInvalidBand, i+1, b.Gain)
		}
	}
	return nil
}

// SetEqualizer replaces the filter bands. An empty list removes them.
func (d *DSP) SetEqualizer(bands []audio.Band) error {
	if err := ValidateBands(bands); err != nil {
		return err
	}
	if d.provider == nil {
		return ErrUnavailable
	}
	return d.provider.SetEqualizer(bands)
}

func (d *DSP) Equalizer() []audio.Band {
	if d.provider == nil {
		return nil
	}
	return d.provider.Equalizer()
}

// SetVolume sets the chain gain in [0, 1].
func (d *DSP) SetVolume(v float64) error {
	if d.provider == nil {
		return ErrUnavailable
	}
	d.provider.SetVolume(v)
	return nil
}

func (d *DSP) Volume() float64 {
	if d.provider == nil {
		return 0
	}
	return d.provider.Volume()
}

func (d *DSP) Levels() audio.Levels {
	if d.provider == nil {
		return audio.Levels{}
	}
	return d.provider.Levels()
}

func bandsFromTable(L *lua.LState, tbl *lua.LTable) []audio.Band {
	bands := make([]audio.Band, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		bt, ok := tbl.RawGetInt(i).(*lua.LTable)
		if !ok {
			L.ArgError(1, fmt.Sprintf("band %d is not a table", i))
			return nil
		}
		freq, fok := plua.NumberField(bt, "frequency")
		gain, gok := plua.NumberField(bt, "gain")
		if !fok || !gok {
			L.ArgError(1, fmt.Sprintf("band %d needs numeric frequency and gain", i))
			return nil
		}
		bands = append(bands, audio.Band{Frequency: freq, Gain: gain})
	}
	return bands
}

func (d *DSP) table(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		// set_equalizer({{frequency=, gain=}, ...}) -> true | nil, err
		"set_equalizer": func(L *lua.LState) int {
			bands := bandsFromTable(L, L.CheckTable(1))
			return pushOK(L, d.SetEqualizer(bands))
		},
		"equalizer": func(L *lua.LState) int {
			out := L.NewTable()
			for _, b := range d.Equalizer() {
				bt := L.NewTable()
				bt.RawSetString("frequency", lua.LNumber(b.Frequency))
				bt.RawSetString("gain", lua.LNumber(b.Gain))
				out.Append(bt)
			}
			L.Push(out)
			return 1
		},
		"set_volume": func(L *lua.LState) int {
			return pushOK(L, d.SetVolume(float64(L.CheckNumber(1))))
		},
		"volume": func(L *lua.LState) int {
			L.Push(lua.LNumber(d.Volume()))
			return 1
		},
		"levels": func(L *lua.LState) int {
			lv := d.Levels()
			out := L.NewTable()
			out.RawSetString("peak", lua.LNumber(lv.Peak))
			out.RawSetString("rms", lua.LNumber(lv.RMS))
			L.Push(out)
			return 1
		},
	})
	return tbl
}
