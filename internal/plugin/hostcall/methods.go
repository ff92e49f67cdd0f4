package hostcall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/dshills/neonplay/internal/plugin/security"
)

// Built-in host methods.
const (
	MethodFSRead   = "fs.read"
	MethodFSWrite  = "fs.write"
	MethodFSList   = "fs.list"
	MethodFSExists = "fs.exists"
	MethodNetFetch = "net.fetch"
)

// FetchResult is the result of net.fetch.
type FetchResult struct {
	Status      int    `lua:"status"`
	ContentType string `lua:"content_type"`
	Body        string `lua:"body"`
	Truncated   bool   `lua:"truncated"`
}

func fsRead(_ context.Context, c *security.Checker, args map[string]any) (any, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	if err := c.CheckFileRead(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func fsWrite(_ context.Context, c *security.Checker, args map[string]any) (any, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	data, ok := args["data"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: data must be a string", ErrBadArgument)
	}
	if err := c.CheckFileWrite(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return nil, err
	}
	return len(data), nil
}

func fsList(_ context.Context, c *security.Checker, args map[string]any) (any, error) {
	dir, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	if err := c.CheckFileRead(dir); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func fsExists(_ context.Context, c *security.Checker, args map[string]any) (any, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	if err := c.CheckFileRead(path); err != nil {
		return nil, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return nil, err
	}
}

func (d *Dispatcher) netFetch(ctx context.Context, c *security.Checker, args map[string]any) (any, error) {
	raw, err := stringArg(args, "url")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgument, err)
	}
	if err := checkScheme(u); err != nil {
		return nil, err
	}
	if err := c.CheckFetch(u.Host); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "neonplay-plugin/"+c.Plugin())

	resp, err := d.fetchClient(c).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	limit := c.MaxFetchBytes()
	if limit <= 0 {
		limit = security.DefaultLimits().MaxFetchBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Redacted(), err)
	}

	result := FetchResult{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if int64(len(body)) > limit {
		body = body[:limit]
		result.Truncated = true
	}
	result.Body = string(body)
	return result, nil
}

// maxRedirects matches the net/http default.
const maxRedirects = 10

func checkScheme(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrBadArgument, u.Scheme)
	}
	return nil
}

// fetchClient returns a copy of the dispatcher's client whose redirects
// are held to c's scheme and host rules.
func (d *Dispatcher) fetchClient(c *security.Checker) *http.Client {
	client := *d.client
	next := client.CheckRedirect
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if err := checkScheme(req.URL); err != nil {
			return err
		}
		if err := c.CheckFetchHost(req.URL.Host); err != nil {
			return err
		}
		if next != nil {
			return next(req, via)
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	return &client
}
