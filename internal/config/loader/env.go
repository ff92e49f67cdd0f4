package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Kind is how an environment value is parsed.
type Kind int

// Value kinds.
const (
	String Kind = iota
	Int
	Float
	Bool
	// List splits on the OS path list separator.
	List
)

// EnvVar binds one environment variable to a configuration path.
type EnvVar struct {
	Path string
	Kind Kind
}

// EnvLoader reads a fixed set of environment variables.
type EnvLoader struct {
	vars   map[string]EnvVar
	lookup func(string) (string, bool)
}

// NewEnvLoader creates a loader for vars, keyed by variable name.
func NewEnvLoader(vars map[string]EnvVar) *EnvLoader {
	return &EnvLoader{vars: vars, lookup: os.LookupEnv}
}

// WithLookup replaces os.LookupEnv. It returns l.
func (l *EnvLoader) WithLookup(fn func(string) (string, bool)) *EnvLoader {
	l.lookup = fn
	return l
}

// Load returns the set variables as a nested map. An empty value counts
// as set.
func (l *EnvLoader) Load() (map[string]any, error) {
	out := make(map[string]any)
	for name, v := range l.vars {
		raw, ok := l.lookup(name)
		if !ok {
			continue
		}
		val, err := parseValue(raw, v.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		setByPath(out, v.Path, val)
	}
	return out, nil
}

func parseValue(s string, k Kind) (any, error) {
	s = strings.TrimSpace(s)
	switch k {
	case Int:
		return strconv.ParseInt(s, 10, 64)
	case Float:
		return strconv.ParseFloat(s, 64)
	case Bool:
		switch strings.ToLower(s) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off", "":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", s)
	case List:
		var items []any
		for _, p := range filepath.SplitList(s) {
			if p != "" {
				items = append(items, p)
			}
		}
		return items, nil
	default:
		return s, nil
	}
}

// setByPath sets a dotted path in m, creating intermediate maps.
func setByPath(m map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// GetByPath reads a dotted path from m.
func GetByPath(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = mm[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}
