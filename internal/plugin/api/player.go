package api

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/neonplay/internal/library"
	plua "github.com/dshills/neonplay/internal/plugin/lua"
)

// Player controls playback.
type Player struct {
	provider PlayerProvider
}

func (p *Player) Play() error {
	if p.provider == nil {
		return ErrUnavailable
	}
	return p.provider.Play()
}

func (p *Player) Pause() error {
	if p.provider == nil {
		return ErrUnavailable
	}
	return p.provider.Pause()
}

func (p *Player) Stop() error {
	if p.provider == nil {
		return ErrUnavailable
	}
	return p.provider.Stop()
}

// Seek moves to seconds from the start of the track.
func (p *Player) Seek(seconds float64) error {
	if p.provider == nil {
		return ErrUnavailable
	}
	return p.provider.Seek(seconds)
}

func (p *Player) Position() float64 {
	if p.provider == nil {
		return 0
	}
	return p.provider.Position()
}

func (p *Player) Duration() float64 {
	if p.provider == nil {
		return 0
	}
	return p.provider.Duration()
}

func (p *Player) Volume() float64 {
	if p.provider == nil {
		return 0
	}
	return p.provider.Volume()
}

func (p *Player) SetVolume(v float64) error {
	if p.provider == nil {
		return ErrUnavailable
	}
	return p.provider.SetVolume(v)
}

// State returns "playing", "paused" or "stopped".
func (p *Player) State() string {
	if p.provider == nil {
		return "stopped"
	}
	return p.provider.State()
}

func (p *Player) Track() (library.Track, bool) {
	if p.provider == nil {
		return library.Track{}, false
	}
	return p.provider.Track()
}

func (p *Player) table(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		"play": func(L *lua.LState) int {
			return pushOK(L, p.Play())
		},
		"pause": func(L *lua.LState) int {
			return pushOK(L, p.Pause())
		},
		"stop": func(L *lua.LState) int {
			return pushOK(L, p.Stop())
		},
		"seek": func(L *lua.LState) int {
			return pushOK(L, p.Seek(float64(L.CheckNumber(1))))
		},
		"position": func(L *lua.LState) int {
			L.Push(lua.LNumber(p.Position()))
			return 1
		},
		"duration": func(L *lua.LState) int {
			L.Push(lua.LNumber(p.Duration()))
			return 1
		},
		"volume": func(L *lua.LState) int {
			L.Push(lua.LNumber(p.Volume()))
			return 1
		},
		"set_volume": func(L *lua.LState) int {
			return pushOK(L, p.SetVolume(float64(L.CheckNumber(1))))
		},
		"state": func(L *lua.LState) int {
			L.Push(lua.LString(p.State()))
			return 1
		},
		"track": func(L *lua.LState) int {
			t, ok := p.Track()
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(trackTable(L, t))
			return 1
		},
	})
	return tbl
}

func trackTable(L *lua.LState, t library.Track) lua.LValue {
	tbl, ok := plua.ToLua(L, t).(*lua.LTable)
	if !ok {
		return lua.LNil
	}
	tbl.RawSetString("duration", lua.LNumber(t.Seconds()))
	return tbl
}
