// Package hostcall implements the host side of the plugin capability channel.
//
// Every capability method that reaches outside the player (files, network)
// is sent to a single Dispatcher shared by all plugins. The Dispatcher
// checks each request against the calling plugin's security.Checker before
// routing it to a handler, and runs one request at a time.
package hostcall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/neonplay/internal/plugin/security"
)

// DefaultFetchTimeout bounds a single net.fetch request.
const DefaultFetchTimeout = 15 * time.Second

var (
	// ErrUnknownMethod is returned for requests to methods with no handler.
	ErrUnknownMethod = errors.New("unknown host method")

	// ErrUnknownPlugin is returned for requests from plugins with no checker.
	ErrUnknownPlugin = errors.New("plugin not registered with host")

	// ErrBadArgument is returned when a request argument is missing or malformed.
	ErrBadArgument = errors.New("bad argument")
)

// Request is a capability invocation from a plugin.
type Request struct {
	ID     uuid.UUID
	Plugin string
	Method string
	Args   map[string]any
}

// NewRequest creates a request with a fresh id.
func NewRequest(plugin, method string, args map[string]any) Request {
	return Request{
		ID:     uuid.New(),
		Plugin: plugin,
		Method: method,
		Args:   args,
	}
}

// Response answers a Request.
type Response struct {
	ID     uuid.UUID
	Result any
	Err    error
}

// Handler serves one host method. c is the calling plugin's checker.
type Handler func(ctx context.Context, c *security.Checker, args map[string]any) (any, error)

// Dispatcher routes plugin requests to host handlers.
type Dispatcher struct {
	// serializes request handling
	callMu sync.Mutex

	mu       sync.RWMutex
	handlers map[string]Handler
	checkers map[string]*security.Checker

	client *http.Client
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient sets the client used by net.fetch.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.client = c
		}
	}
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a dispatcher with the built-in fs.* and net.fetch handlers.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]Handler),
		checkers: make(map[string]*security.Checker),
		client:   &http.Client{Timeout: DefaultFetchTimeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.Handle(MethodFSRead, fsRead)
	d.Handle(MethodFSWrite, fsWrite)
	d.Handle(MethodFSList, fsList)
	d.Handle(MethodFSExists, fsExists)
	d.Handle(MethodNetFetch, d.netFetch)
	return d
}

// Handle registers h for method, replacing any existing handler.
func (d *Dispatcher) Handle(method string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = h
}

// Methods returns the registered method names, sorted.
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetChecker registers the checker used for requests from c.Plugin().
func (d *Dispatcher) SetChecker(c *security.Checker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkers[c.Plugin()] = c
}

// RemoveChecker forgets the checker for plugin. Later requests from it fail.
func (d *Dispatcher) RemoveChecker(plugin string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.checkers, plugin)
}

// Checker returns the checker registered for plugin.
func (d *Dispatcher) Checker(plugin string) (*security.Checker, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.checkers[plugin]
	return c, ok
}

// Dispatch handles req and returns its response.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	result, err := d.Call(ctx, req)
	return Response{ID: req.ID, Result: result, Err: err}
}

// Call handles req and returns its result.
func (d *Dispatcher) Call(ctx context.Context, req Request) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[req.Method]
	c, known := d.checkers[req.Plugin]
	d.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, req.Method)
	}
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, req.Plugin)
	}

	d.callMu.Lock()
	defer d.callMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := h(ctx, c, req.Args)
	if err != nil {
		level := slog.LevelDebug
		if security.IsPermissionError(err) || errors.Is(err, security.ErrRateLimited) {
			level = slog.LevelWarn
		}
		d.logger.Log(ctx, level, "host call failed",
			"plugin", req.Plugin,
			"method", req.Method,
			"request", req.ID,
			"error", err,
		)
		return nil, err
	}
	d.logger.Debug("host call",
		"plugin", req.Plugin,
		"method", req.Method,
		"request", req.ID,
		"duration", time.Since(start),
	)
	return result, nil
}

// stringArg returns args[key] as a non-empty string.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", ErrBadArgument, key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrBadArgument, key)
	}
	return s, nil
}
