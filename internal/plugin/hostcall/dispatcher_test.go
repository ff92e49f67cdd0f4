package hostcall

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/neonplay/internal/plugin/security"
)

func newTestDispatcher(t *testing.T, checkers ...*security.Checker) *Dispatcher {
	t.Helper()
	d := New()
	for _, c := range checkers {
		d.SetChecker(c)
	}
	return d
}

func TestDispatcherUnknownMethod(t *testing.T) {
	d := newTestDispatcher(t, security.NewChecker("p", nil))
	_, err := d.Call(context.Background(), NewRequest("p", "shell.exec", nil))
	if !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("Call() error = %v, want ErrUnknownMethod", err)
	}
}

func TestDispatcherUnknownPlugin(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Call(context.Background(), NewRequest("ghost", MethodFSExists, map[string]any{"path": "/"}))
	if !errors.Is(err, ErrUnknownPlugin) {
		t.Errorf("Call() error = %v, want ErrUnknownPlugin", err)
	}
}

func TestDispatcherMethods(t *testing.T) {
	d := newTestDispatcher(t)
	got := strings.Join(d.Methods(), ",")
	want := "fs.exists,fs.list,fs.read,fs.write,net.fetch"
	if got != want {
		t.Errorf("Methods() = %q, want %q", got, want)
	}
}

func TestDispatcherFS(t *testing.T) {
	root := t.TempDir()
	reader := security.NewChecker("reader", []security.Permission{security.PermissionFileRead},
		security.WithAllowedPaths(root))
	writer := security.NewChecker("writer", []security.Permission{security.PermissionFileRead, security.PermissionFileWrite},
		security.WithAllowedPaths(root))
	d := newTestDispatcher(t, reader, writer)
	ctx := context.Background()

	target := filepath.Join(root, "sub", "notes.txt")

	_, err := d.Call(ctx, NewRequest("reader", MethodFSWrite, map[string]any{"path": target, "data": "x"}))
	if !security.IsPermissionError(err) {
		t.Fatalf("fs.write without permission error = %v, want PermissionError", err)
	}

	n, err := d.Call(ctx, NewRequest("writer", MethodFSWrite, map[string]any{"path": target, "data": "hello"}))
	if err != nil {
		t.Fatalf("fs.write error = %v", err)
	}
	if n != 5 {
		t.Errorf("fs.write = %v, want 5", n)
	}

	got, err := d.Call(ctx, NewRequest("reader", MethodFSRead, map[string]any{"path": target}))
	if err != nil {
		t.Fatalf("fs.read error = %v", err)
	}
	if got != "hello" {
		t.Errorf("fs.read = %v, want hello", got)
	}

	exists, err := d.Call(ctx, NewRequest("reader", MethodFSExists, map[string]any{"path": target}))
	if err != nil || exists != true {
		t.Errorf("fs.exists = %v, %v", exists, err)
	}
	missing, err := d.Call(ctx, NewRequest("reader", MethodFSExists, map[string]any{"path": filepath.Join(root, "nope")}))
	if err != nil || missing != false {
		t.Errorf("fs.exists(missing) = %v, %v", missing, err)
	}

	list, err := d.Call(ctx, NewRequest("reader", MethodFSList, map[string]any{"path": root}))
	if err != nil {
		t.Fatalf("fs.list error = %v", err)
	}
	names, ok := list.([]string)
	if !ok || len(names) != 1 || names[0] != "sub/" {
		t.Errorf("fs.list = %#v", list)
	}

	outside := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(outside, []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Call(ctx, NewRequest("reader", MethodFSRead, map[string]any{"path": outside})); !security.IsPermissionError(err) {
		t.Errorf("fs.read outside allowed path error = %v, want PermissionError", err)
	}
}

func TestDispatcherBadArguments(t *testing.T) {
	d := newTestDispatcher(t, security.NewChecker("p", security.AllPermissions()))
	ctx := context.Background()

	tests := []struct {
		method string
		args   map[string]any
	}{
		{MethodFSRead, nil},
		{MethodFSRead, map[string]any{"path": 3}},
		{MethodFSWrite, map[string]any{"path": "/tmp/x"}},
		{MethodNetFetch, map[string]any{"url": "ftp://example.com/file"}},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if _, err := d.Call(ctx, NewRequest("p", tt.method, tt.args)); !errors.Is(err, ErrBadArgument) {
				t.Errorf("Call(%s, %v) error = %v, want ErrBadArgument", tt.method, tt.args, err)
			}
		})
	}
}

func TestDispatcherNetFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "lyrics for "+r.URL.Query().Get("track"))
	}))
	defer srv.Close()

	allowed := security.NewChecker("lyrics", []security.Permission{security.PermissionNetworkFetch},
		security.WithAllowedHosts("127.0.0.1"))
	denied := security.NewChecker("visualizer", []security.Permission{security.PermissionDSPAudio})
	d := newTestDispatcher(t, allowed, denied)
	ctx := context.Background()

	got, err := d.Call(ctx, NewRequest("lyrics", MethodNetFetch, map[string]any{"url": srv.URL + "/?track=intro"}))
	if err != nil {
		t.Fatalf("net.fetch error = %v", err)
	}
	res, ok := got.(FetchResult)
	if !ok {
		t.Fatalf("net.fetch result type = %T", got)
	}
	if res.Status != http.StatusOK || res.Body != "lyrics for intro" || res.Truncated {
		t.Errorf("net.fetch = %+v", res)
	}

	_, err = d.Call(ctx, NewRequest("visualizer", MethodNetFetch, map[string]any{"url": srv.URL}))
	var pe *security.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("net.fetch without permission error = %v", err)
	}
	if pe.Permission != security.PermissionNetworkFetch {
		t.Errorf("PermissionError.Permission = %q", pe.Permission)
	}
}

func TestDispatcherNetFetchRedirects(t *testing.T) {
	var secretHits atomic.Int32
	secret := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secretHits.Add(1)
		fmt.Fprint(w, "internal secret")
	}))
	defer secret.Close()
	secretURL := strings.Replace(secret.URL, "127.0.0.1", "localhost", 1)

	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "moved here")
	}))
	defer final.Close()

	hop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/outside":
			http.Redirect(w, r, secretURL, http.StatusFound)
		case "/scheme":
			http.Redirect(w, r, "file:///etc/passwd", http.StatusFound)
		default:
			http.Redirect(w, r, final.URL, http.StatusFound)
		}
	}))
	defer hop.Close()

	tests := []struct {
		name     string
		checker  *security.Checker
		url      string
		wantBody string
		wantErr  error
	}{
		{
			name: "allowed hop",
			checker: security.NewChecker("p", []security.Permission{security.PermissionNetworkFetch},
				security.WithAllowedHosts("127.0.0.1")),
			url:      hop.URL + "/inside",
			wantBody: "moved here",
		},
		{
			name: "hop outside allow list",
			checker: security.NewChecker("p", []security.Permission{security.PermissionNetworkFetch},
				security.WithAllowedHosts("127.0.0.1")),
			url: hop.URL + "/outside",
		},
		{
			name: "hop to blocked host",
			checker: security.NewChecker("p", []security.Permission{security.PermissionNetworkFetch},
				security.WithBlockedHosts("localhost")),
			url: hop.URL + "/outside",
		},
		{
			name:    "hop to unsupported scheme",
			checker: security.NewChecker("p", []security.Permission{security.PermissionNetworkFetch}),
			url:     hop.URL + "/scheme",
			wantErr: ErrBadArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(t, tt.checker)
			got, err := d.Call(context.Background(), NewRequest("p", MethodNetFetch, map[string]any{"url": tt.url}))
			if tt.wantBody != "" {
				if err != nil {
					t.Fatalf("net.fetch error = %v", err)
				}
				if res := got.(FetchResult); res.Body != tt.wantBody {
					t.Errorf("net.fetch body = %q, want %q", res.Body, tt.wantBody)
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("net.fetch error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if !security.IsPermissionError(err) {
				t.Fatalf("net.fetch error = %v, want permission error", err)
			}
		})
	}
	if n := secretHits.Load(); n != 0 {
		t.Errorf("redirect target reached %d times", n)
	}
}

func TestDispatcherNetFetchRedirectLimit(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, security.NewChecker("p", []security.Permission{security.PermissionNetworkFetch}))
	_, err := d.Call(context.Background(), NewRequest("p", MethodNetFetch, map[string]any{"url": srv.URL + "/"}))
	if err == nil || !strings.Contains(err.Error(), "redirects") {
		t.Errorf("net.fetch error = %v, want redirect limit", err)
	}
}

func TestDispatcherNetFetchTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("a", 100))
	}))
	defer srv.Close()

	c := security.NewChecker("p", []security.Permission{security.PermissionNetworkFetch},
		security.WithLimits(security.Limits{MaxFetchBytes: 10}))
	d := newTestDispatcher(t, c)

	got, err := d.Call(context.Background(), NewRequest("p", MethodNetFetch, map[string]any{"url": srv.URL}))
	if err != nil {
		t.Fatalf("net.fetch error = %v", err)
	}
	res := got.(FetchResult)
	if len(res.Body) != 10 || !res.Truncated {
		t.Errorf("net.fetch body len = %d truncated = %v", len(res.Body), res.Truncated)
	}
}

func TestDispatcherSerializesCalls(t *testing.T) {
	d := newTestDispatcher(t, security.NewChecker("a", nil), security.NewChecker("b", nil))

	var running, overlap int32
	d.Handle("test.slow", func(ctx context.Context, c *security.Checker, args map[string]any) (any, error) {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.StoreInt32(&overlap, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return c.Plugin(), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		plugin := "a"
		if i%2 == 1 {
			plugin = "b"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := d.Dispatch(context.Background(), NewRequest(plugin, "test.slow", nil))
			if resp.Err != nil || resp.Result != plugin {
				t.Errorf("Dispatch() = %+v", resp)
			}
		}()
	}
	wg.Wait()

	if overlap != 0 {
		t.Error("host calls overlapped")
	}
}

func TestDispatcherRemoveChecker(t *testing.T) {
	d := newTestDispatcher(t, security.NewChecker("p", nil))
	if _, ok := d.Checker("p"); !ok {
		t.Fatal("Checker(p) missing")
	}
	d.RemoveChecker("p")
	if _, err := d.Call(context.Background(), NewRequest("p", MethodFSExists, map[string]any{"path": "/"})); !errors.Is(err, ErrUnknownPlugin) {
		t.Errorf("Call() after RemoveChecker error = %v", err)
	}
}
