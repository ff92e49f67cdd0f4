package config

import (
	"slices"

	"github.com/dshills/neonplay/internal/plugin/security"
)

// Limits returns the sandbox limits the plugin section describes.
func (p PluginsConfig) Limits() security.Limits {
	return security.Limits{
		HookTimeout:      p.HookTimeout.D(),
		FileOpsPerSecond: p.FileOpsPerSecond,
		FetchesPerSecond: p.FetchesPerSecond,
		MaxFetchBytes:    p.MaxFetchBytes,
	}
}

// CheckerOptions returns the options applied to every plugin's checker.
func (p PluginsConfig) CheckerOptions() []security.CheckerOption {
	opts := []security.CheckerOption{security.WithLimits(p.Limits())}
	if len(p.AllowedHosts) > 0 {
		opts = append(opts, security.WithAllowedHosts(p.AllowedHosts...))
	}
	if len(p.BlockedHosts) > 0 {
		opts = append(opts, security.WithBlockedHosts(p.BlockedHosts...))
	}
	// an allow list always admits the plugin data directory
	if len(p.AllowedPaths) > 0 {
		paths := slices.Clone(p.AllowedPaths)
		if p.DataDir != "" {
			paths = append(paths, p.DataDir)
		}
		opts = append(opts, security.WithAllowedPaths(paths...))
	}
	if len(p.BlockedPaths) > 0 {
		opts = append(opts, security.WithBlockedPaths(p.BlockedPaths...))
	}
	return opts
}
