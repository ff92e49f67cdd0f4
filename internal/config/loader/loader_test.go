package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestTOMLLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[audio]\nsample_rate = 48000\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	m, err := NewTOMLLoader(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if v, ok := GetByPath(m, "audio.sample_rate"); !ok || v != int64(48000) {
		t.Errorf("audio.sample_rate = %v (%T)", v, v)
	}

	m, err = NewTOMLLoader(filepath.Join(dir, "missing.toml")).Load()
	if err != nil || m != nil {
		t.Errorf("Load(missing) = %v, %v; want nil, nil", m, err)
	}
}

func TestParseTOMLError(t *testing.T) {
	_, err := ParseTOML("bad.toml", []byte("a = 1\nb = \n"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("ParseTOML() error = %v, want *ParseError", err)
	}
	if pe.Path != "bad.toml" || pe.Line == 0 {
		t.Errorf("ParseError = %+v", pe)
	}
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"log":     map[string]any{"level": "info", "format": "auto"},
		"plugins": map[string]any{"paths": []any{"/a"}},
	}
	src := map[string]any{
		"log":     map[string]any{"level": "debug"},
		"plugins": map[string]any{"paths": []any{"/b", "/c"}},
		"audio":   map[string]any{"sample_rate": int64(48000)},
	}
	got := DeepMerge(dst, src)

	tests := []struct {
		path string
		want any
	}{
		{"log.level", "debug"},
		{"log.format", "auto"},
		{"audio.sample_rate", int64(48000)},
	}
	for _, tt := range tests {
		if v, ok := GetByPath(got, tt.path); !ok || v != tt.want {
			t.Errorf("%s = %v, want %v", tt.path, v, tt.want)
		}
	}
	if paths, _ := GetByPath(got, "plugins.paths"); len(paths.([]any)) != 2 {
		t.Errorf("plugins.paths = %v, lists must replace", paths)
	}
}

func TestClone(t *testing.T) {
	src := map[string]any{"a": map[string]any{"b": []any{"x"}}}
	c := Clone(src)
	c["a"].(map[string]any)["b"].([]any)[0] = "y"
	if src["a"].(map[string]any)["b"].([]any)[0] != "x" {
		t.Error("Clone() shares nested values")
	}
	if Clone(nil) != nil {
		t.Error("Clone(nil) != nil")
	}
}

func TestEnvLoader(t *testing.T) {
	vars := map[string]EnvVar{
		"APP_LEVEL": {Path: "log.level", Kind: String},
		"APP_RATE":  {Path: "audio.rate", Kind: Int},
		"APP_GAIN":  {Path: "audio.gain", Kind: Float},
		"APP_WATCH": {Path: "plugins.watch", Kind: Bool},
		"APP_PATHS": {Path: "plugins.paths", Kind: List},
		"APP_UNSET": {Path: "x.y", Kind: String},
	}
	sep := string(os.PathListSeparator)
	set := map[string]string{
		"APP_LEVEL": "debug",
		"APP_RATE":  " 48000 ",
		"APP_GAIN":  "0.5",
		"APP_WATCH": "on",
		"APP_PATHS": "/a" + sep + sep + "/b",
	}
	l := NewEnvLoader(vars).WithLookup(func(name string) (string, bool) {
		v, ok := set[name]
		return v, ok
	})

	m, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	tests := []struct {
		path string
		want any
	}{
		{"log.level", "debug"},
		{"audio.rate", int64(48000)},
		{"audio.gain", 0.5},
		{"plugins.watch", true},
	}
	for _, tt := range tests {
		if v, ok := GetByPath(m, tt.path); !ok || v != tt.want {
			t.Errorf("%s = %v (%T), want %v", tt.path, v, v, tt.want)
		}
	}
	if paths, _ := GetByPath(m, "plugins.paths"); len(paths.([]any)) != 2 {
		t.Errorf("plugins.paths = %v", paths)
	}
	if _, ok := GetByPath(m, "x.y"); ok {
		t.Error("unset variable present")
	}

	set["APP_RATE"] = "fast"
	if _, err := l.Load(); err == nil {
		t.Error("Load(bad int) error = nil")
	}
}

func TestLoadAll(t *testing.T) {
	m, err := LoadAll(
		MapLoader{"a": int64(1), "b": int64(1)},
		MapLoader{"b": int64(2)},
	)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if m["a"] != int64(1) || m["b"] != int64(2) {
		t.Errorf("LoadAll() = %v", m)
	}
}
