package api

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/neonplay/internal/library"
	plua "github.com/dshills/neonplay/internal/plugin/lua"
	"github.com/dshills/neonplay/internal/plugin/security"
)

// Library manages the user's track list.
type Library struct {
	provider LibraryProvider
}

// NewLibrary builds the library surface from a library:manage grant.
func NewLibrary(g security.Grant, plugin string, provider LibraryProvider) (*Library, error) {
	if err := checkGrant(g, plugin, security.PermissionLibraryManage); err != nil {
		return nil, err
	}
	return &Library{provider: provider}, nil
}

func (l *Library) List() []library.Track {
	if l.provider == nil {
		return nil
	}
	return l.provider.List()
}

func (l *Library) Search(query string) []library.Track {
	if l.provider == nil {
		return nil
	}
	return l.provider.Search(query)
}

func (l *Library) Add(t library.Track) (library.Track, error) {
	if l.provider == nil {
		return library.Track{}, ErrUnavailable
	}
	return l.provider.Add(t)
}

func (l *Library) Remove(id string) error {
	if l.provider == nil {
		return ErrUnavailable
	}
	return l.provider.Remove(id)
}

func tracksTable(L *lua.LState, tracks []library.Track) *lua.LTable {
	out := L.CreateTable(len(tracks), 0)
	for _, t := range tracks {
		out.Append(trackTable(L, t))
	}
	return out
}

func (l *Library) table(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		"list": func(L *lua.LState) int {
			L.Push(tracksTable(L, l.List()))
			return 1
		},
		"search": func(L *lua.LState) int {
			L.Push(tracksTable(L, l.Search(L.CheckString(1))))
			return 1
		},
		// add({path=, title=, artist=, album=, duration=}) -> track | nil, err
		"add": func(L *lua.LState) int {
			in := L.CheckTable(1)
			var t library.Track
			t.Path, _ = plua.StringField(in, "path")
			t.Title, _ = plua.StringField(in, "title")
			t.Artist, _ = plua.StringField(in, "artist")
			t.Album, _ = plua.StringField(in, "album")
			if secs, ok := plua.NumberField(in, "duration"); ok && secs > 0 {
				t.Duration = time.Duration(secs * float64(time.Second))
			}
			added, err := l.Add(t)
			if err != nil {
				return pushError(L, err)
			}
			L.Push(trackTable(L, added))
			return 1
		},
		"remove": func(L *lua.LState) int {
			return pushOK(L, l.Remove(L.CheckString(1)))
		},
	})
	return tbl
}
