package lua

import (
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// builtinModules can always be required.
var builtinModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
	"os":     true,
}

// removedGlobals are stripped from the base library.
var removedGlobals = []string{
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"module",
	"collectgarbage",
	"getfenv",
	"setfenv",
	"newproxy",
	"_printregs",
}

// Sandbox restricts what scripts running in a State can reach.
type Sandbox struct {
	L *lua.LState

	allowed map[string]bool
	print   func(string)
}

// NewSandbox creates a sandbox for L. If print is nil, print output is dropped.
func NewSandbox(L *lua.LState, print func(string)) *Sandbox {
	allowed := make(map[string]bool, len(builtinModules))
	for name := range builtinModules {
		allowed[name] = true
	}
	return &Sandbox{
		L:       L,
		allowed: allowed,
		print:   print,
	}
}

// Install applies the sandbox restrictions to the state.
func (s *Sandbox) Install() {
	for _, name := range removedGlobals {
		s.L.SetGlobal(name, lua.LNil)
	}

	s.installPrint()
	s.installOS()
	s.installRequire()
}

// AllowModule permits require(name). The module itself must be preloaded.
func (s *Sandbox) AllowModule(name string) {
	s.allowed[name] = true
}

// ModuleAllowed returns true if require(name) is permitted.
func (s *Sandbox) ModuleAllowed(name string) bool {
	return s.allowed[name]
}

func (s *Sandbox) installPrint() {
	s.L.SetGlobal("print", s.L.NewFunction(func(L *lua.LState) int {
		if s.print == nil {
			return 0
		}
		n := L.GetTop()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		s.print(strings.Join(parts, "\t"))
		return 0
	}))
}

// installOS provides the clock functions of the os library and nothing else.
func (s *Sandbox) installOS() {
	start := time.Now()
	osMod := s.L.NewTable()

	s.L.SetField(osMod, "time", s.L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	s.L.SetField(osMod, "clock", s.L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Since(start).Seconds()))
		return 1
	}))
	s.L.SetField(osMod, "date", s.L.NewFunction(func(L *lua.LState) int {
		layout := L.OptString(1, "%c")
		now := time.Now()
		if strings.HasPrefix(layout, "!") {
			now = now.UTC()
			layout = layout[1:]
		}
		L.Push(lua.LString(strftime(now, layout)))
		return 1
	}))

	s.L.SetGlobal("os", osMod)
	if loaded, ok := s.loadedTable(); ok {
		loaded.RawSetString("os", osMod)
	}
}

// installRequire replaces require with a version that only resolves
// allowed modules, and disables loading from disk.
func (s *Sandbox) installRequire() {
	if pkg, ok := s.L.GetGlobal("package").(*lua.LTable); ok {
		s.L.SetField(pkg, "path", lua.LString(""))
		s.L.SetField(pkg, "cpath", lua.LString(""))
	}

	original := s.L.GetGlobal("require")
	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !s.allowed[name] {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		if loaded, ok := s.loadedTable(); ok {
			if mod := loaded.RawGetString(name); mod != lua.LNil {
				L.Push(mod)
				return 1
			}
		}
		if original == lua.LNil {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(original)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		return 1
	}))
}

func (s *Sandbox) loadedTable() (*lua.LTable, bool) {
	pkg, ok := s.L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return nil, false
	}
	loaded, ok := s.L.GetField(pkg, "loaded").(*lua.LTable)
	return loaded, ok
}

// strftime formats t using the subset of C strftime verbs Lua scripts use.
func strftime(t time.Time, layout string) string {
	var b strings.Builder
	for i := 0; i < len(layout); i++ {
		c := layout[i]
		if c != '%' || i+1 == len(layout) {
			b.WriteByte(c)
			continue
		}
		i++
		switch layout[i] {
		case 'Y':
			b.WriteString(t.Format("2006"))
		case 'y':
			b.WriteString(t.Format("06"))
		case 'm':
			b.WriteString(t.Format("01"))
		case 'd':
			b.WriteString(t.Format("02"))
		case 'H':
			b.WriteString(t.Format("15"))
		case 'M':
			b.WriteString(t.Format("04"))
		case 'S':
			b.WriteString(t.Format("05"))
		case 'p':
			b.WriteString(t.Format("PM"))
		case 'a':
			b.WriteString(t.Format("Mon"))
		case 'A':
			b.WriteString(t.Format("Monday"))
		case 'b':
			b.WriteString(t.Format("Jan"))
		case 'B':
			b.WriteString(t.Format("January"))
		case 'c':
			b.WriteString(t.Format("Mon Jan  2 15:04:05 2006"))
		case 'x':
			b.WriteString(t.Format("01/02/06"))
		case 'X':
			b.WriteString(t.Format("15:04:05"))
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(layout[i])
		}
	}
	return b.String()
}
