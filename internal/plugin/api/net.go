package api

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/neonplay/internal/plugin/hostcall"
	plua "github.com/dshills/neonplay/internal/plugin/lua"
	"github.com/dshills/neonplay/internal/plugin/security"
)

// Net fetches URLs through the host dispatcher.
type Net struct {
	plugin string
	caller Caller
}

// NewNet builds the network surface from a network:fetch grant.
func NewNet(g security.Grant, plugin string, caller Caller) (*Net, error) {
	if err := checkGrant(g, plugin, security.PermissionNetworkFetch); err != nil {
		return nil, err
	}
	return &Net{plugin: plugin, caller: caller}, nil
}

// Fetch performs an HTTP GET.
func (n *Net) Fetch(ctx context.Context, url string) (hostcall.FetchResult, error) {
	if n.caller == nil {
		return hostcall.FetchResult{}, ErrUnavailable
	}
	res, err := n.caller.Call(ctx, hostcall.NewRequest(n.plugin, hostcall.MethodNetFetch, map[string]any{"url": url}))
	if err != nil {
		return hostcall.FetchResult{}, err
	}
	fr, ok := res.(hostcall.FetchResult)
	if !ok {
		return hostcall.FetchResult{}, fmt.Errorf("net.fetch: unexpected result %T", res)
	}
	return fr, nil
}

func (n *Net) table(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	// fetch(url) -> {status, content_type, body, truncated} | nil, err
	tbl.RawSetString("fetch", L.NewFunction(func(L *lua.LState) int {
		res, err := n.Fetch(callContext(L), L.CheckString(1))
		if err != nil {
			return pushError(L, err)
		}
		L.Push(plua.ToLua(L, res))
		return 1
	}))
	return tbl
}
