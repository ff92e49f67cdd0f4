package lua

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"
)

func newTestState(t *testing.T, opts ...StateOption) *State {
	t.Helper()
	s, err := NewState(opts...)
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeScript(t *testing.T, name, code string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestStateDoString(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	if err := s.DoString(ctx, "x = 1 + 2"); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if got := s.L.GetGlobal("x"); got != lua.LNumber(3) {
		t.Errorf("x = %v, want 3", got)
	}

	if err := s.DoString(ctx, "error('boom')"); err == nil {
		t.Error("DoString(error) error = nil")
	}
	if err := s.DoString(ctx, "this is not lua"); err == nil {
		t.Error("DoString(syntax error) error = nil")
	}
}

func TestStateLoadModule(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	path := writeScript(t, "init.lua", `
return {
  metadata = { id = "demo", name = "Demo" },
  onLoad = function() return true end,
}`)
	mod, err := s.LoadModule(ctx, path)
	if err != nil {
		t.Fatalf("LoadModule() error = %v", err)
	}
	if id, ok := StringField(mod, "id"); ok {
		t.Errorf("StringField(mod, id) = %q, want missing", id)
	}
	meta, ok := TableField(mod, "metadata")
	if !ok {
		t.Fatal("metadata table missing")
	}
	if id, _ := StringField(meta, "id"); id != "demo" {
		t.Errorf("metadata.id = %q, want %q", id, "demo")
	}
	if _, ok := FunctionField(mod, "onLoad"); !ok {
		t.Error("onLoad missing")
	}
}

func TestStateLoadModuleNotTable(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	tests := []struct {
		name string
		code string
	}{
		{"nothing", "local x = 1"},
		{"string", "return 'hello'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScript(t, "init.lua", tt.code)
			if _, err := s.LoadModule(ctx, path); !errors.Is(err, ErrNotModule) {
				t.Errorf("LoadModule() error = %v, want ErrNotModule", err)
			}
		})
	}
}

func TestStateCall(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	if err := s.DoString(ctx, "function add(a, b) return a + b, 'done' end"); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	top := s.L.GetTop()

	ret, err := s.Call(ctx, s.L.GetGlobal("add"), lua.LNumber(2), lua.LNumber(5))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(ret) != 2 || ret[0] != lua.LNumber(7) || ret[1] != lua.LString("done") {
		t.Errorf("Call() = %v", ret)
	}
	if s.L.GetTop() != top {
		t.Errorf("stack top = %d, want %d", s.L.GetTop(), top)
	}

	if _, err := s.Call(ctx, lua.LString("nope")); !errors.Is(err, ErrNotFunction) {
		t.Errorf("Call(string) error = %v, want ErrNotFunction", err)
	}
}

func TestStateCallInterruptedByDeadline(t *testing.T) {
	s := newTestState(t)

	if err := s.DoString(context.Background(), "function spin() while true do end end"); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Call(ctx, s.L.GetGlobal("spin"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Call() error = %v, want DeadlineExceeded", err)
	}
	if !IsInterrupted(err) {
		t.Error("IsInterrupted() = false")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Call() took %v to interrupt", elapsed)
	}

	// The state remains usable after an interrupted call.
	if err := s.DoString(context.Background(), "y = 1"); err != nil {
		t.Errorf("DoString() after interrupt error = %v", err)
	}
}

func TestStateClosed(t *testing.T) {
	s, err := NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !s.IsClosed() {
		t.Error("IsClosed() = false")
	}
	if err := s.DoString(context.Background(), "x = 1"); !errors.Is(err, ErrStateClosed) {
		t.Errorf("DoString() error = %v, want ErrStateClosed", err)
	}
}

func TestStatePrint(t *testing.T) {
	var lines []string
	s := newTestState(t, WithPrintFunc(func(line string) { lines = append(lines, line) }))

	if err := s.DoString(context.Background(), `print("a", 1, true)`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if len(lines) != 1 || lines[0] != "a\t1\ttrue" {
		t.Errorf("print output = %q", lines)
	}
}

func TestStatePreload(t *testing.T) {
	s := newTestState(t)
	s.Preload("mp", func(L *lua.LState) int {
		mod := L.NewTable()
		mod.RawSetString("name", lua.LString("neonplay"))
		L.Push(mod)
		return 1
	})

	err := s.DoString(context.Background(), `
local mp = require("mp")
result = mp.name
again = require("mp") == mp`)
	if err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if got := s.L.GetGlobal("result"); got != lua.LString("neonplay") {
		t.Errorf("result = %v", got)
	}
	if got := s.L.GetGlobal("again"); got != lua.LTrue {
		t.Errorf("require returned a different table on second call")
	}
}

func TestStateCallRecoversStack(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	top := s.L.GetTop()

	if err := s.DoString(ctx, "function fail() error('bad') end"); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	_, err := s.Call(ctx, s.L.GetGlobal("fail"))
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Errorf("Call() error = %v, want error containing 'bad'", err)
	}
	if s.L.GetTop() != top {
		t.Errorf("stack top = %d, want %d", s.L.GetTop(), top)
	}
}
