package security

import (
	"net"
	"path/filepath"
	"strings"
	"sync"
)

// Grant is proof that a Checker holds a permission.
// The zero value grants nothing.
type Grant struct {
	plugin     string
	permission Permission
}

// Plugin returns the id of the plugin the grant was issued to.
func (g Grant) Plugin() string {
	return g.plugin
}

// Permission returns the granted permission.
func (g Grant) Permission() Permission {
	return g.permission
}

// Valid returns true if the grant was issued by a Checker.
func (g Grant) Valid() bool {
	return g.permission != "" && g.plugin != ""
}

// Checker validates plugin operations against the plugin's permissions and
// host-side restrictions.
type Checker struct {
	mu sync.RWMutex

	plugin      string
	permissions map[Permission]bool

	// File system restrictions (normalized absolute paths)
	allowedPaths []string
	blockedPaths []string

	// Network restrictions (lowercased)
	allowedHosts []string
	blockedHosts []string

	fileOps  *RateLimiter
	fetches  *RateLimiter
	maxFetch int64
}

// NewChecker creates a checker for plugin holding perms.
// Unknown permissions are ignored; manifests are validated before this point.
func NewChecker(plugin string, perms []Permission, opts ...CheckerOption) *Checker {
	limits := DefaultLimits()
	c := &Checker{
		plugin:      plugin,
		permissions: make(map[Permission]bool, len(perms)),
	}
	for _, p := range perms {
		if p.IsValid() {
			c.permissions[p] = true
		}
	}
	c.applyLimits(limits)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithLimits sets the rate limits used by the checker.
func WithLimits(limits Limits) CheckerOption {
	return func(c *Checker) {
		c.applyLimits(limits)
	}
}

// WithAllowedPaths restricts file access to the given directories.
func WithAllowedPaths(paths ...string) CheckerOption {
	return func(c *Checker) {
		for _, p := range paths {
			c.allowedPaths = append(c.allowedPaths, normalizePath(p))
		}
	}
}

// WithBlockedPaths denies file access below the given directories.
func WithBlockedPaths(paths ...string) CheckerOption {
	return func(c *Checker) {
		for _, p := range paths {
			c.blockedPaths = append(c.blockedPaths, normalizePath(p))
		}
	}
}

// WithAllowedHosts restricts network fetches to the given hosts.
// A leading "*." matches any subdomain.
func WithAllowedHosts(hosts ...string) CheckerOption {
	return func(c *Checker) {
		for _, h := range hosts {
			c.allowedHosts = append(c.allowedHosts, strings.ToLower(h))
		}
	}
}

// WithBlockedHosts denies network fetches to the given hosts.
func WithBlockedHosts(hosts ...string) CheckerOption {
	return func(c *Checker) {
		for _, h := range hosts {
			c.blockedHosts = append(c.blockedHosts, strings.ToLower(h))
		}
	}
}

func (c *Checker) applyLimits(l Limits) {
	c.fileOps = NewRateLimiter(l.FileOpsPerSecond)
	c.fetches = NewRateLimiter(l.FetchesPerSecond)
	c.maxFetch = l.MaxFetchBytes
}

// Plugin returns the id of the plugin this checker belongs to.
func (c *Checker) Plugin() string {
	return c.plugin
}

// Has returns true if the permission is held.
func (c *Checker) Has(p Permission) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.permissions[p]
}

// Grant issues a Grant for p if the permission is held.
func (c *Checker) Grant(p Permission) (Grant, bool) {
	if !c.Has(p) {
		return Grant{}, false
	}
	return Grant{plugin: c.plugin, permission: p}, true
}

// Permissions returns the held permissions, sorted.
func (c *Checker) Permissions() []Permission {
	c.mu.RLock()
	defer c.mu.RUnlock()

	perms := make([]Permission, 0, len(c.permissions))
	for p := range c.permissions {
		perms = append(perms, p)
	}
	sortPermissions(perms)
	return perms
}

// MaxFetchBytes returns the response size cap for network fetches.
func (c *Checker) MaxFetchBytes() int64 {
	return c.maxFetch
}

// Check returns a *PermissionError if p is not held.
func (c *Checker) Check(p Permission, operation string) error {
	if !c.Has(p) {
		return c.deny(p, operation, "not granted")
	}
	return nil
}

// CheckFileRead checks if reading path is permitted.
func (c *Checker) CheckFileRead(path string) error {
	return c.checkFile(PermissionFileRead, path, "read file")
}

// CheckFileWrite checks if writing path is permitted.
func (c *Checker) CheckFileWrite(path string) error {
	return c.checkFile(PermissionFileWrite, path, "write file")
}

func (c *Checker) checkFile(p Permission, path, operation string) error {
	if err := c.Check(p, operation); err != nil {
		return err
	}
	if !c.fileOps.Allow() {
		return ErrRateLimited
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	abs := normalizePath(path)

	// Blocklist takes precedence
	for _, blocked := range c.blockedPaths {
		if isWithinPath(abs, blocked) {
			return c.deny(p, operation, "path is blocked")
		}
	}

	if len(c.allowedPaths) > 0 {
		for _, allowed := range c.allowedPaths {
			if isWithinPath(abs, allowed) {
				return nil
			}
		}
		return c.deny(p, operation, "path not in allowed list")
	}

	return nil
}

// CheckFetch checks if fetching from host is permitted.
// host may include a port.
func (c *Checker) CheckFetch(host string) error {
	const op = "network fetch"
	if err := c.Check(PermissionNetworkFetch, op); err != nil {
		return err
	}
	if !c.fetches.Allow() {
		return ErrRateLimited
	}
	return c.CheckFetchHost(host)
}

// CheckFetchHost checks host against the host lists without counting
// against the fetch rate limit. Redirect hops of an admitted fetch are
// checked with it.
func (c *Checker) CheckFetchHost(host string) error {
	const op = "network fetch"
	if err := c.Check(PermissionNetworkFetch, op); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	h := strings.ToLower(extractHost(host))
	for _, blocked := range c.blockedHosts {
		if matchHost(h, blocked) {
			return c.deny(PermissionNetworkFetch, op, "host is blocked")
		}
	}
	if len(c.allowedHosts) > 0 {
		for _, allowed := range c.allowedHosts {
			if matchHost(h, allowed) {
				return nil
			}
		}
		return c.deny(PermissionNetworkFetch, op, "host not in allowed list")
	}
	return nil
}

func (c *Checker) deny(p Permission, operation, reason string) *PermissionError {
	return &PermissionError{
		Plugin:     c.plugin,
		Permission: p,
		Operation:  operation,
		Reason:     reason,
	}
}

func normalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}

// isWithinPath checks if target is within or equal to base.
func isWithinPath(target, base string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func extractHost(hostPort string) string {
	if host, _, err := net.SplitHostPort(hostPort); err == nil {
		return host
	}
	if strings.HasPrefix(hostPort, "[") && strings.HasSuffix(hostPort, "]") {
		return hostPort[1 : len(hostPort)-1]
	}
	return hostPort
}

// matchHost matches host against pattern; "*.example.com" matches subdomains.
func matchHost(host, pattern string) bool {
	if host == pattern {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}
	return false
}
