package api

import (
	"log/slog"
	"sort"

	lua "github.com/yuin/gopher-lua"

	plua "github.com/dshills/neonplay/internal/plugin/lua"
)

// Log writes structured log lines tagged with the plugin id.
type Log struct {
	logger *slog.Logger
}

func (l *Log) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Log) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Log) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Log) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *Log) table(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		"debug": l.luaLog(l.Debug),
		"info":  l.luaLog(l.Info),
		"warn":  l.luaLog(l.Warn),
		"error": l.luaLog(l.Error),
	})
	return tbl
}

// log.<level>(message, fields?)
func (l *Log) luaLog(fn func(string, ...any)) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		fields := L.OptTable(2, nil)
		fn(msg, fieldArgs(fields)...)
		return 0
	}
}

func fieldArgs(tbl *lua.LTable) []any {
	if tbl == nil {
		return nil
	}
	m, ok := plua.ToGo(tbl).(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, m[k])
	}
	return args
}
