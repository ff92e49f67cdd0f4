package api

import (
	"sync"

	lua "github.com/yuin/gopher-lua"

	plua "github.com/dshills/neonplay/internal/plugin/lua"
	"github.com/dshills/neonplay/internal/plugin/security"
	"github.com/dshills/neonplay/internal/ui"
)

// UI shows notifications. Overlay is nil without ui:overlay.
type UI struct {
	plugin   string
	provider UIProvider

	Overlay *Overlay
}

// Notify shows message at level ("info", "success", "warning", "error").
func (u *UI) Notify(message, level string) error {
	if u.provider == nil {
		return ErrUnavailable
	}
	return u.provider.Notify(u.plugin, message, ui.ParseLevel(level))
}

func (u *UI) table(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("notify", L.NewFunction(func(L *lua.LState) int {
		msg := L.CheckString(1)
		level := L.OptString(2, string(ui.LevelInfo))
		return pushOK(L, u.Notify(msg, level))
	}))
	if u.Overlay != nil {
		tbl.RawSetString("overlay", u.Overlay.table(L))
	}
	return tbl
}

// Overlay draws panels over the player.
type Overlay struct {
	plugin   string
	provider UIProvider

	mu  sync.Mutex
	ids map[string]bool
}

// NewOverlay builds the overlay surface from a ui:overlay grant.
func NewOverlay(g security.Grant, plugin string, provider UIProvider) (*Overlay, error) {
	if err := checkGrant(g, plugin, security.PermissionUIOverlay); err != nil {
		return nil, err
	}
	return &Overlay{plugin: plugin, provider: provider, ids: make(map[string]bool)}, nil
}

// Show displays o and returns its id.
func (o *Overlay) Show(ov ui.Overlay) (string, error) {
	if o.provider == nil {
		return "", ErrUnavailable
	}
	id, err := o.provider.ShowOverlay(o.plugin, ov)
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	o.ids[id] = true
	o.mu.Unlock()
	return id, nil
}

// Update changes the non-empty fields of an overlay.
func (o *Overlay) Update(id string, ov ui.Overlay) error {
	if o.provider == nil {
		return ErrUnavailable
	}
	return o.provider.UpdateOverlay(o.plugin, id, ov)
}

// Hide removes an overlay.
func (o *Overlay) Hide(id string) error {
	if o.provider == nil {
		return ErrUnavailable
	}
	o.mu.Lock()
	delete(o.ids, id)
	o.mu.Unlock()
	return o.provider.HideOverlay(o.plugin, id)
}

// Visible returns the number of overlays shown and not hidden.
func (o *Overlay) Visible() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ids)
}

func (o *Overlay) cleanup() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.ids))
	for id := range o.ids {
		ids = append(ids, id)
	}
	o.ids = make(map[string]bool)
	o.mu.Unlock()

	if o.provider == nil {
		return
	}
	for _, id := range ids {
		o.provider.HideOverlay(o.plugin, id)
	}
}

func overlayFromTable(tbl *lua.LTable) ui.Overlay {
	var ov ui.Overlay
	ov.Title, _ = plua.StringField(tbl, "title")
	ov.Content, _ = plua.StringField(tbl, "content")
	if pos, ok := plua.StringField(tbl, "position"); ok {
		ov.Position = ui.Position(pos)
	}
	return ov
}

func (o *Overlay) table(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		// show({title=, content=, position=}) -> id | nil, err
		"show": func(L *lua.LState) int {
			id, err := o.Show(overlayFromTable(L.CheckTable(1)))
			if err != nil {
				return pushError(L, err)
			}
			L.Push(lua.LString(id))
			return 1
		},
		"update": func(L *lua.LState) int {
			id := L.CheckString(1)
			return pushOK(L, o.Update(id, overlayFromTable(L.CheckTable(2))))
		},
		"hide": func(L *lua.LState) int {
			return pushOK(L, o.Hide(L.CheckString(1)))
		},
	})
	return tbl
}
