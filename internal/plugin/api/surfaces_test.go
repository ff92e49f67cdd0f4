package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/neonplay/internal/audio"
	"github.com/dshills/neonplay/internal/library"
	"github.com/dshills/neonplay/internal/plugin/security"
	"github.com/dshills/neonplay/internal/ui"
)

func TestConstructorsRejectBadGrants(t *testing.T) {
	c := security.NewChecker("owner", security.AllPermissions())
	dsp, _ := c.Grant(security.PermissionDSPAudio)
	net, _ := c.Grant(security.PermissionNetworkFetch)

	if _, err := NewDSP(security.Grant{}, "owner", nil); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("NewDSP(zero grant) error = %v", err)
	}
	if _, err := NewDSP(dsp, "thief", nil); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("NewDSP(other plugin) error = %v", err)
	}
	if _, err := NewDSP(net, "owner", nil); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("NewDSP(wrong permission) error = %v", err)
	}
	if _, err := NewNet(dsp, "owner", nil); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("NewNet(dsp grant) error = %v", err)
	}
	if _, err := NewFS(security.Grant{}, security.Grant{}, "owner", nil, ""); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("NewFS(no grants) error = %v", err)
	}
	if _, err := NewFS(dsp, security.Grant{}, "owner", nil, ""); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("NewFS(dsp as read) error = %v", err)
	}
	if _, err := NewLibrary(security.Grant{}, "owner", nil); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("NewLibrary(zero grant) error = %v", err)
	}
	if _, err := NewOverlay(security.Grant{}, "owner", nil); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("NewOverlay(zero grant) error = %v", err)
	}
	if _, err := NewDSP(dsp, "owner", nil); err != nil {
		t.Errorf("NewDSP(valid) error = %v", err)
	}
}

func TestValidateBands(t *testing.T) {
	tests := []struct {
		name    string
		bands   []audio.Band
		wantErr bool
	}{
		{"empty", nil, false},
		{"valid", []audio.Band{{Frequency: 60, Gain: 3}, {Frequency: 12000, Gain: -6}}, false},
		{"too low", []audio.Band{{Frequency: 5, Gain: 0}}, true},
		{"too high", []audio.Band{{Frequency: 30000, Gain: 0}}, true},
		{"gain", []audio.Band{{Frequency: 1000, Gain: 30}}, true},
		{"too many", make([]audio.Band, MaxBands+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBands(tt.bands)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBands() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidBand) {
				t.Errorf("error %v is not ErrInvalidBand", err)
			}
		})
	}
}

func TestDSPSurface(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("eq", []security.Permission{security.PermissionDSPAudio})
	defer pc.Release()

	bands := []audio.Band{{Frequency: 100, Gain: 4}, {Frequency: 8000, Gain: -2}}
	if err := pc.DSP.SetEqualizer(bands); err != nil {
		t.Fatalf("SetEqualizer() error = %v", err)
	}
	if got := h.engine.Equalizer(); len(got) != 2 || got[1].Gain != -2 {
		t.Errorf("engine Equalizer() = %v", got)
	}
	if err := pc.DSP.SetEqualizer([]audio.Band{{Frequency: 1, Gain: 0}}); err == nil {
		t.Error("SetEqualizer(invalid) error = nil")
	}
	if len(h.engine.Equalizer()) != 2 {
		t.Error("invalid bands replaced the equalizer")
	}

	s := newLuaState(t, pc, nil)
	err := s.DoString(context.Background(), `
		local mp = require("mp")
		assert(mp.dsp.set_equalizer({{frequency = 250, gain = 1.5}}))
		local eq = mp.dsp.equalizer()
		assert(#eq == 1 and eq[1].frequency == 250)
		local ok, err = mp.dsp.set_equalizer({{frequency = 250, gain = 99}})
		assert(ok == nil and err ~= nil)
		local lv = mp.dsp.levels()
		assert(lv.peak ~= nil and lv.rms ~= nil)
	`)
	if err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
}

func TestFSSurface(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("notes", []security.Permission{
		security.PermissionFileRead,
		security.PermissionFileWrite,
	})
	defer pc.Release()
	ctx := context.Background()

	if err := pc.FS.Write(ctx, "sub/a.txt", "hello"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(h.dataRoot, "notes", "sub", "a.txt"))
	if err != nil {
		t.Fatalf("relative write did not land in data dir: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("file = %q", data)
	}

	got, err := pc.FS.Read(ctx, "sub/a.txt")
	if err != nil || got != "hello" {
		t.Errorf("Read() = %q, %v", got, err)
	}
	names, err := pc.FS.List(ctx, ".")
	if err != nil || len(names) != 1 || names[0] != "sub/" {
		t.Errorf("List() = %v, %v", names, err)
	}
	if ok, err := pc.FS.Exists(ctx, "missing.txt"); err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v", ok, err)
	}

	s := newLuaState(t, pc, nil)
	err = s.DoString(ctx, `
		local mp = require("mp")
		assert(mp.fs.write("b.txt", "lua"))
		assert(mp.fs.read("b.txt") == "lua")
		assert(mp.fs.exists("b.txt"))
		local data, err = mp.fs.read("nope.txt")
		assert(data == nil and err ~= nil)
	`)
	if err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
}

func TestFSReadOnlyCannotWrite(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("reader", []security.Permission{security.PermissionFileRead})
	defer pc.Release()

	if pc.FS.CanWrite() || !pc.FS.CanRead() {
		t.Fatalf("CanRead/CanWrite = %v/%v", pc.FS.CanRead(), pc.FS.CanWrite())
	}
	err := pc.FS.Write(context.Background(), "x.txt", "data")
	if !security.IsPermissionError(err) {
		t.Errorf("Write() error = %v, want permission error", err)
	}
}

func TestNetSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.UserAgent(), "neonplay-plugin/") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("lyrics go here"))
	}))
	defer srv.Close()

	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("lyrics", []security.Permission{security.PermissionNetworkFetch})
	defer pc.Release()

	res, err := pc.Net.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Status != http.StatusOK || res.Body != "lyrics go here" || res.Truncated {
		t.Errorf("Fetch() = %+v", res)
	}
	if _, err := pc.Net.Fetch(context.Background(), "file:///etc/passwd"); err == nil {
		t.Error("Fetch(file://) error = nil")
	}

	s := newLuaState(t, pc, nil)
	err = s.DoString(context.Background(), `
		local mp = require("mp")
		local res = mp.net.fetch("`+srv.URL+`")
		assert(res.status == 200, "status")
		assert(res.body == "lyrics go here", "body")
		assert(res.content_type == "text/plain")
	`)
	if err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
}

func TestLibrarySurface(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("importer", []security.Permission{security.PermissionLibraryManage})
	defer pc.Release()

	tr, err := pc.Library.Add(library.Track{Path: "/music/song.wav", Artist: "Band"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if h.library.Len() != 1 {
		t.Errorf("library Len() = %d", h.library.Len())
	}

	s := newLuaState(t, pc, nil)
	err = s.DoString(context.Background(), `
		local mp = require("mp")
		local t = mp.library.add({path = "/music/other.wav", title = "Other", duration = 90})
		assert(t.id ~= nil and t.title == "Other")
		assert(#mp.library.list() == 2)
		assert(#mp.library.search("other") == 1)
		assert(mp.library.remove(t.id))
		local ok, err = mp.library.remove(t.id)
		assert(ok == nil and err ~= nil)
	`)
	if err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if err := pc.Library.Remove(tr.ID); err != nil {
		t.Errorf("Remove() error = %v", err)
	}
}

func TestOverlaySurface(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("hud", []security.Permission{security.PermissionUIOverlay})

	id, err := pc.UI.Overlay.Show(ui.Overlay{Title: "Now playing", Content: "..."})
	if err != nil {
		t.Fatalf("Show() error = %v", err)
	}
	if err := pc.UI.Overlay.Update(id, ui.Overlay{Content: "Song"}); err != nil {
		t.Errorf("Update() error = %v", err)
	}
	if len(h.ui.Overlays()) != 1 {
		t.Fatalf("Overlays() = %v", h.ui.Overlays())
	}

	pc.Release()
	if len(h.ui.Overlays()) != 0 {
		t.Errorf("overlays left after Release: %v", h.ui.Overlays())
	}
}

func TestNotify(t *testing.T) {
	h := newTestHost(t)
	pc := h.factory.CreatePluginContext("hud", nil)
	defer pc.Release()

	if err := pc.UI.Notify("hello", "warning"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	n := h.ui.Notifications()
	if len(n) != 1 || n[0].Plugin != "hud" || n[0].Level != ui.LevelWarning {
		t.Errorf("Notifications() = %+v", n)
	}
	if err := pc.UI.Notify("", "info"); err == nil {
		t.Error("Notify(\"\") error = nil")
	}
}

func TestUtils(t *testing.T) {
	var u Utils
	if got := u.Split("a,b,,c", ","); len(got) != 4 {
		t.Errorf("Split() = %v", got)
	}
	if got := u.Clamp(5, 0, 1); got != 1 {
		t.Errorf("Clamp() = %v", got)
	}
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{59.9, "0:59"},
		{61, "1:01"},
		{3725, "1:02:05"},
		{-3, "0:00"},
	}
	for _, tt := range tests {
		if got := u.FormatTime(tt.in); got != tt.want {
			t.Errorf("FormatTime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
