package api

import (
	"context"
	"fmt"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/neonplay/internal/plugin/hostcall"
	"github.com/dshills/neonplay/internal/plugin/security"
)

// FS reads and writes files through the host dispatcher. Relative paths
// resolve against the plugin's data directory when one is configured.
type FS struct {
	plugin  string
	caller  Caller
	dataDir string

	read, write bool
}

// NewFS builds the file surface. At least one of read and write must be a
// valid grant; the other may be the zero Grant.
func NewFS(read, write security.Grant, plugin string, caller Caller, dataDir string) (*FS, error) {
	fs := &FS{plugin: plugin, caller: caller, dataDir: dataDir}
	if read.Valid() {
		if err := checkGrant(read, plugin, security.PermissionFileRead); err != nil {
			return nil, err
		}
		fs.read = true
	}
	if write.Valid() {
		if err := checkGrant(write, plugin, security.PermissionFileWrite); err != nil {
			return nil, err
		}
		fs.write = true
	}
	if !fs.read && !fs.write {
		return nil, ErrInvalidGrant
	}
	return fs, nil
}

// CanRead returns true with filesystem:read.
func (f *FS) CanRead() bool { return f.read }

// CanWrite returns true with filesystem:write.
func (f *FS) CanWrite() bool { return f.write }

// Resolve returns the path a request for path would use.
func (f *FS) Resolve(path string) string {
	if f.dataDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(f.dataDir, path)
}

func (f *FS) call(ctx context.Context, method string, args map[string]any) (any, error) {
	if f.caller == nil {
		return nil, ErrUnavailable
	}
	if p, ok := args["path"].(string); ok {
		args["path"] = f.Resolve(p)
	}
	return f.caller.Call(ctx, hostcall.NewRequest(f.plugin, method, args))
}

func (f *FS) Read(ctx context.Context, path string) (string, error) {
	res, err := f.call(ctx, hostcall.MethodFSRead, map[string]any{"path": path})
	if err != nil {
		return "", err
	}
	s, _ := res.(string)
	return s, nil
}

func (f *FS) Write(ctx context.Context, path, data string) error {
	_, err := f.call(ctx, hostcall.MethodFSWrite, map[string]any{"path": path, "data": data})
	return err
}

// List returns the sorted entry names in dir; directories end in "/".
func (f *FS) List(ctx context.Context, dir string) ([]string, error) {
	res, err := f.call(ctx, hostcall.MethodFSList, map[string]any{"path": dir})
	if err != nil {
		return nil, err
	}
	names, ok := res.([]string)
	if !ok {
		return nil, fmt.Errorf("fs.list: unexpected result %T", res)
	}
	return names, nil
}

func (f *FS) Exists(ctx context.Context, path string) (bool, error) {
	res, err := f.call(ctx, hostcall.MethodFSExists, map[string]any{"path": path})
	if err != nil {
		return false, err
	}
	ok, _ := res.(bool)
	return ok, nil
}

func (f *FS) table(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	if f.read {
		L.SetFuncs(tbl, map[string]lua.LGFunction{
			"read": func(L *lua.LState) int {
				data, err := f.Read(callContext(L), L.CheckString(1))
				if err != nil {
					return pushError(L, err)
				}
				L.Push(lua.LString(data))
				return 1
			},
			"list": func(L *lua.LState) int {
				names, err := f.List(callContext(L), L.CheckString(1))
				if err != nil {
					return pushError(L, err)
				}
				out := L.CreateTable(len(names), 0)
				for _, n := range names {
					out.Append(lua.LString(n))
				}
				L.Push(out)
				return 1
			},
			"exists": func(L *lua.LState) int {
				ok, err := f.Exists(callContext(L), L.CheckString(1))
				if err != nil {
					return pushError(L, err)
				}
				L.Push(lua.LBool(ok))
				return 1
			},
		})
	}
	if f.write {
		tbl.RawSetString("write", L.NewFunction(func(L *lua.LState) int {
			path := L.CheckString(1)
			data := L.CheckString(2)
			return pushOK(L, f.Write(callContext(L), path, data))
		}))
	}
	return tbl
}
