package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/neonplay/internal/settings"
)

const lyrics = `
local M = {
  metadata = { id = "lyrics", name = "Lyrics", version = "0.3.0", author = "test" },
}
function M.onLoad() end
return M
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// setupEnv points configuration at a temp dir and returns the plugin
// directory and settings path.
func setupEnv(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	plugins := filepath.Join(dir, "plugins")
	settingsPath := filepath.Join(dir, "settings.json")
	t.Setenv("NEONPLAY_PLUGIN_PATHS", plugins)
	t.Setenv("NEONPLAY_SETTINGS_PATH", settingsPath)
	t.Setenv("NEONPLAY_PLUGIN_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("NEONPLAY_WATCH", "false")
	return plugins, settingsPath
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", filepath.Join(t.TempDir(), "none.toml")}, args...)
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	for _, args := range [][]string{{"--version"}, {"version"}} {
		code, out, _ := runCLI(t, args...)
		if code != 0 || !strings.HasPrefix(out, "neonplay dev") {
			t.Errorf("run(%v) = %d, %q", args, code, out)
		}
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown command", []string{"dance"}, 2},
		{"missing argument", []string{"enable"}, 2},
		{"extra argument", []string{"list", "x"}, 2},
		{"unknown flag", []string{"--loud"}, 2},
		{"help", []string{"--help"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := runCLI(t, tt.args...); code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "lyrics.lua")
	writeFile(t, good, lyrics)
	bad := filepath.Join(dir, "bad.lua")
	writeFile(t, bad, "return 42")

	code, out, _ := runCLI(t, "validate", good)
	if code != 0 || out != "ok lyrics 0.3.0\n" {
		t.Errorf("validate(good) = %d, %q", code, out)
	}
	if code, _, errOut := runCLI(t, "validate", bad); code != 1 || !strings.HasPrefix(errOut, "Error:") {
		t.Errorf("validate(bad) = %d, %q", code, errOut)
	}
}

func TestEnableDisableList(t *testing.T) {
	plugins, settingsPath := setupEnv(t)
	writeFile(t, filepath.Join(plugins, "lyrics.lua"), lyrics)

	if code, out, errOut := runCLI(t, "enable", "lyrics"); code != 0 || out != "lyrics enabled\n" {
		t.Fatalf("enable = %d, %q, %q", code, out, errOut)
	}
	store, err := settings.Open(settingsPath)
	if err != nil {
		t.Fatalf("settings.Open() error = %v", err)
	}
	if enabled, ok := store.PluginEnabled("lyrics"); !ok || !enabled {
		t.Error("enable not persisted")
	}

	code, out, _ := runCLI(t, "list")
	if code != 0 {
		t.Fatalf("list exit code = %d", code)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "ID") {
		t.Fatalf("list output = %q", out)
	}
	if f := strings.Fields(lines[1]); f[0] != "lyrics" || f[1] != "0.3.0" || f[2] != "enabled" {
		t.Errorf("list row = %q", lines[1])
	}

	if code, out, _ := runCLI(t, "disable", "lyrics"); code != 0 || out != "lyrics disabled\n" {
		t.Fatalf("disable = %d, %q", code, out)
	}
	if code, _, _ := runCLI(t, "enable", "missing"); code != 1 {
		t.Errorf("enable(missing) exit code = %d, want 1", code)
	}
}
