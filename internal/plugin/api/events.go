package api

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/neonplay/internal/event"
	"github.com/dshills/neonplay/internal/event/topic"
	plua "github.com/dshills/neonplay/internal/plugin/lua"
)

// Events subscribes to and publishes on the event bus. Events a plugin
// emits are always published under "plugin.<id>.".
type Events struct {
	pc       *PluginContext
	prefix   topic.Topic
	provider EventProvider

	mu   sync.Mutex
	subs map[string]bool
}

func newEvents(pc *PluginContext, id string, provider EventProvider) *Events {
	return &Events{
		pc:       pc,
		prefix:   topic.Topic("plugin." + id),
		provider: provider,
		subs:     make(map[string]bool),
	}
}

// Topic returns the topic name publishes to.
func (e *Events) Topic(name string) (topic.Topic, error) {
	t := topic.Topic(name)
	if !t.HasPrefix(e.prefix) {
		t = topic.Topic(string(e.prefix) + "." + name)
	}
	if name == "" || !t.Valid() || t.IsPattern() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEvent, name)
	}
	return t, nil
}

// On subscribes h to topics matching pattern.
func (e *Events) On(pattern string, h event.Handler) (string, error) {
	if e.provider == nil {
		return "", ErrUnavailable
	}
	id, err := e.provider.Subscribe(topic.Topic(pattern), h)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	e.subs[id] = true
	e.mu.Unlock()
	return id, nil
}

// Off removes a subscription made through this context.
func (e *Events) Off(id string) bool {
	e.mu.Lock()
	owned := e.subs[id]
	delete(e.subs, id)
	e.mu.Unlock()
	if !owned || e.provider == nil {
		return false
	}
	return e.provider.Unsubscribe(id)
}

// Emit publishes data under the plugin's namespace and returns the number
// of handlers that received it.
func (e *Events) Emit(name string, data any) (int, error) {
	t, err := e.Topic(name)
	if err != nil {
		return 0, err
	}
	if e.provider == nil {
		return 0, ErrUnavailable
	}
	return e.provider.Publish(t, data)
}

// Subscriptions returns the number of active subscriptions.
func (e *Events) Subscriptions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

func (e *Events) cleanup() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	e.subs = make(map[string]bool)
	e.mu.Unlock()

	if e.provider == nil {
		return
	}
	for _, id := range ids {
		e.provider.Unsubscribe(id)
	}
}

func (e *Events) table(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		// on(pattern, fn(topic, data)) -> id | nil, err
		"on": func(L *lua.LState) int {
			pattern := L.CheckString(1)
			fn := L.CheckFunction(2)
			id, err := e.On(pattern, func(ev event.Event) {
				e.pc.schedule("events.on "+pattern, fn, func(L *lua.LState) []lua.LValue {
					return []lua.LValue{lua.LString(ev.Topic), plua.ToLua(L, ev.Data)}
				})
			})
			if err != nil {
				return pushError(L, err)
			}
			L.Push(lua.LString(id))
			return 1
		},
		"off": func(L *lua.LState) int {
			L.Push(lua.LBool(e.Off(L.CheckString(1))))
			return 1
		},
		// emit(name, data?) -> count | nil, err
		"emit": func(L *lua.LState) int {
			name := L.CheckString(1)
			n, err := e.Emit(name, plua.ToGo(L.Get(2)))
			if err != nil {
				return pushError(L, err)
			}
			L.Push(lua.LNumber(n))
			return 1
		},
	})
	tbl.RawSetString("namespace", lua.LString(e.prefix))
	return tbl
}
