package lua

import (
	"context"
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Default runtime sizes.
const (
	DefaultCallStackSize = 256
	DefaultRegistrySize  = 1024 * 16
)

// State is a sandboxed Lua runtime.
//
// A State is not goroutine-safe. See Executor.
type State struct {
	L *lua.LState

	sandbox *Sandbox

	callStackSize int
	registrySize  int
	print         func(string)

	closed bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithPrintFunc redirects Lua's print to fn.
func WithPrintFunc(fn func(string)) StateOption {
	return func(s *State) {
		s.print = fn
	}
}

// WithCallStackSize sets the maximum Lua call depth.
func WithCallStackSize(n int) StateOption {
	return func(s *State) {
		if n > 0 {
			s.callStackSize = n
		}
	}
}

// WithRegistrySize sets the initial size of the Lua registry.
func WithRegistrySize(n int) StateOption {
	return func(s *State) {
		if n > 0 {
			s.registrySize = n
		}
	}
}

// NewState creates a sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	s := &State{
		callStackSize: DefaultCallStackSize,
		registrySize:  DefaultRegistrySize,
	}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       s.callStackSize,
		RegistrySize:        s.registrySize,
		IncludeGoStackTrace: false,
	})
	s.L = L

	if err := openSafeLibraries(L); err != nil {
		L.Close()
		return nil, err
	}

	s.sandbox = NewSandbox(L, s.print)
	s.sandbox.Install()

	return s, nil
}

// openSafeLibraries opens the standard libraries plugins may use.
// io, os and debug are not opened; Sandbox installs a reduced os table.
func openSafeLibraries(L *lua.LState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("open libraries: %v", r)
		}
	}()

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	return nil
}

// Sandbox returns the sandbox installed on this state.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// Preload registers a module that scripts can load with require(name).
func (s *State) Preload(name string, loader lua.LGFunction) {
	if s.closed {
		return
	}
	s.L.PreloadModule(name, loader)
	s.sandbox.AllowModule(name)
}

// DoString executes a chunk of Lua code.
func (s *State) DoString(ctx context.Context, code string) error {
	if s.closed {
		return ErrStateClosed
	}
	fn, err := s.L.LoadString(code)
	if err != nil {
		return err
	}
	_, err = s.Call(ctx, fn)
	return err
}

// LoadModule executes the file at path and returns the table it returns.
func (s *State) LoadModule(ctx context.Context, path string) (*lua.LTable, error) {
	if s.closed {
		return nil, ErrStateClosed
	}

	fn, err := s.L.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	ret, err := s.Call(ctx, fn)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", path, err)
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNotModule)
	}
	tbl, ok := ret[0].(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%s: %w (got %s)", path, ErrNotModule, ret[0].Type())
	}
	return tbl, nil
}

// Call calls fn with args under ctx and returns its results.
//
// ctx is installed on the LState for the duration of the call; when it is
// cancelled the running script is interrupted and the returned error wraps
// ctx.Err().
func (s *State) Call(ctx context.Context, fn lua.LValue, args ...lua.LValue) (results []lua.LValue, err error) {
	if s.closed {
		return nil, ErrStateClosed
	}
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w (got %s)", ErrNotFunction, fn.Type())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	L := s.L
	L.SetContext(ctx)
	defer L.RemoveContext()

	top := L.GetTop()
	defer func() {
		if r := recover(); r != nil {
			L.SetTop(top)
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	L.Push(fn)
	for _, arg := range args {
		L.Push(arg)
	}

	if callErr := L.PCall(len(args), lua.MultRet, nil); callErr != nil {
		L.SetTop(top)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", ctxErr, callErr)
		}
		return nil, callErr
	}

	n := L.GetTop() - top
	results = make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = L.Get(top + i + 1)
	}
	L.SetTop(top)
	return results, nil
}

// CallField calls the function stored at tbl[name] with args.
// It returns ErrNotFunction if the field is missing or not a function.
func (s *State) CallField(ctx context.Context, tbl *lua.LTable, name string, args ...lua.LValue) ([]lua.LValue, error) {
	fn := tbl.RawGetString(name)
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFunction)
	}
	return s.Call(ctx, fn, args...)
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	return s.closed
}

// Close releases the Lua state. Further calls return ErrStateClosed.
func (s *State) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.L.Close()
	return nil
}

// IsInterrupted reports whether err came from a cancelled or expired context.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
