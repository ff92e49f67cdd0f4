package api

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/neonplay/internal/event/topic"
	plua "github.com/dshills/neonplay/internal/plugin/lua"
	"github.com/dshills/neonplay/internal/settings"
)

// Config reads and writes the plugin's own settings. Keys are relative to
// the plugin namespace "plugins.<id>.config".
type Config struct {
	pc       *PluginContext
	prefix   string
	provider ConfigProvider

	mu      sync.Mutex
	watches map[string]bool
}

func newConfig(pc *PluginContext, id string, provider ConfigProvider) *Config {
	return &Config{
		pc:       pc,
		prefix:   settings.PluginConfigPrefix(id),
		provider: provider,
		watches:  make(map[string]bool),
	}
}

// Namespace returns the settings path the plugin's keys live under.
func (c *Config) Namespace() string {
	return c.prefix
}

func (c *Config) key(key string) (string, error) {
	if !settings.ValidKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return c.prefix + "." + key, nil
}

// Get returns the value stored at key.
func (c *Config) Get(key string) (any, bool) {
	full, err := c.key(key)
	if err != nil || c.provider == nil {
		return nil, false
	}
	return c.provider.Get(full)
}

// Set stores value at key. A nil value deletes the key.
func (c *Config) Set(key string, value any) error {
	full, err := c.key(key)
	if err != nil {
		return err
	}
	if c.provider == nil {
		return ErrUnavailable
	}
	if value == nil {
		return c.provider.Delete(full)
	}
	return c.provider.Set(full, value)
}

// Keys returns the plugin's keys, sorted.
func (c *Config) Keys() []string {
	if c.provider == nil {
		return nil
	}
	full := c.provider.Keys(c.prefix)
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, strings.TrimPrefix(k, c.prefix+"."))
	}
	sort.Strings(keys)
	return keys
}

// Watch calls fn when a key matching pattern changes. pattern is relative
// and may use "*" and "**".
func (c *Config) Watch(pattern string, fn func(key string, old, new any)) (string, error) {
	if !topic.Topic(pattern).Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, pattern)
	}
	if c.provider == nil {
		return "", ErrUnavailable
	}
	id, err := c.provider.Watch(c.prefix+"."+pattern, func(key string, old, new any) {
		fn(strings.TrimPrefix(key, c.prefix+"."), old, new)
	})
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.watches[id] = true
	c.mu.Unlock()
	return id, nil
}

// Unwatch removes a watch made through this context.
func (c *Config) Unwatch(id string) bool {
	c.mu.Lock()
	owned := c.watches[id]
	delete(c.watches, id)
	c.mu.Unlock()
	if !owned || c.provider == nil {
		return false
	}
	return c.provider.Unwatch(id)
}

func (c *Config) cleanup() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.watches))
	for id := range c.watches {
		ids = append(ids, id)
	}
	c.watches = make(map[string]bool)
	c.mu.Unlock()

	if c.provider == nil {
		return
	}
	for _, id := range ids {
		c.provider.Unwatch(id)
	}
}

func (c *Config) table(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		// get(key, default?) -> value
		"get": func(L *lua.LState) int {
			key := L.CheckString(1)
			v, ok := c.Get(key)
			if !ok {
				L.Push(L.Get(2))
				return 1
			}
			L.Push(plua.ToLua(L, v))
			return 1
		},
		// set(key, value) -> true | nil, err
		"set": func(L *lua.LState) int {
			key := L.CheckString(1)
			return pushOK(L, c.Set(key, plua.ToGo(L.Get(2))))
		},
		"keys": func(L *lua.LState) int {
			L.Push(plua.ToLua(L, c.Keys()))
			return 1
		},
		// watch(pattern, fn(key, old, new)) -> id | nil, err
		"watch": func(L *lua.LState) int {
			pattern := L.CheckString(1)
			fn := L.CheckFunction(2)
			id, err := c.Watch(pattern, func(key string, old, new any) {
				c.pc.schedule("config.watch", fn, func(L *lua.LState) []lua.LValue {
					return []lua.LValue{lua.LString(key), plua.ToLua(L, old), plua.ToLua(L, new)}
				})
			})
			if err != nil {
				return pushError(L, err)
			}
			L.Push(lua.LString(id))
			return 1
		},
		"unwatch": func(L *lua.LState) int {
			L.Push(lua.LBool(c.Unwatch(L.CheckString(1))))
			return 1
		},
	})
	tbl.RawSetString("namespace", lua.LString(c.prefix))
	return tbl
}
