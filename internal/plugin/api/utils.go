package api

import (
	"fmt"
	"math"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Utils holds small string and number helpers.
type Utils struct{}

// Split splits s on sep. An empty sep splits on whitespace.
func (Utils) Split(s, sep string) []string {
	if sep == "" {
		return strings.Fields(s)
	}
	return strings.Split(s, sep)
}

func (Utils) Trim(s string) string {
	return strings.TrimSpace(s)
}

func (Utils) Join(parts []string, sep string) string {
	return strings.Join(parts, sep)
}

// Clamp limits v to [lo, hi].
func (Utils) Clamp(v, lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// FormatTime renders seconds as m:ss, or h:mm:ss from one hour up.
func (Utils) FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func (u *Utils) table(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		"split": func(L *lua.LState) int {
			out := L.NewTable()
			for _, part := range u.Split(L.CheckString(1), L.OptString(2, "")) {
				out.Append(lua.LString(part))
			}
			L.Push(out)
			return 1
		},
		"trim": func(L *lua.LState) int {
			L.Push(lua.LString(u.Trim(L.CheckString(1))))
			return 1
		},
		"join": func(L *lua.LState) int {
			list := L.CheckTable(1)
			sep := L.OptString(2, "")
			var parts []string
			for i := 1; i <= list.Len(); i++ {
				parts = append(parts, lua.LVAsString(list.RawGetInt(i)))
			}
			L.Push(lua.LString(u.Join(parts, sep)))
			return 1
		},
		"clamp": func(L *lua.LState) int {
			v := float64(L.CheckNumber(1))
			lo := float64(L.CheckNumber(2))
			hi := float64(L.CheckNumber(3))
			L.Push(lua.LNumber(u.Clamp(v, lo, hi)))
			return 1
		},
		"format_time": func(L *lua.LState) int {
			L.Push(lua.LString(u.FormatTime(float64(L.CheckNumber(1)))))
			return 1
		},
	})
	return tbl
}
