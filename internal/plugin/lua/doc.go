// Package lua provides the sandboxed Lua runtime used by neonplay plugins.
//
// A State wraps a gopher-lua LState with only the safe standard libraries
// opened (base, table, string, math, a reduced os) and a require that
// resolves nothing but whitelisted and preloaded modules:
//
//	state, err := lua.NewState(lua.WithPrintFunc(func(s string) { logger.Info(s) }))
//	if err != nil {
//	    return err
//	}
//	defer state.Close()
//
//	mod, err := state.LoadModule(ctx, "init.lua")
//
// Calls into Lua take a context. The context is installed on the LState for
// the duration of the call, so a cancelled or expired context interrupts a
// running script rather than abandoning it.
//
// LState is not goroutine-safe. Code that touches a State from more than one
// goroutine runs its work through an Executor, which owns the State on a
// single goroutine.
//
// ToGo and ToLua convert values between the two runtimes.
package lua
