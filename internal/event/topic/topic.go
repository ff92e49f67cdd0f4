// Package topic defines dot-separated event topics and wildcard patterns.
//
// A pattern segment "*" matches exactly one topic segment; "**" matches
// zero or more. "player.*" matches "player.play" but not
// "player.track.changed"; "plugin.**" matches both "plugin" and
// "plugin.lyrics.found".
package topic

import "strings"

// Topic is a hierarchical event name such as "player.track.changed".
type Topic string

// Wildcards and separator.
const (
	WildcardSingle = "*"
	WildcardMulti  = "**"
	Separator      = "."
)

func (t Topic) String() string {
	return string(t)
}

// Segments returns the topic split on the separator.
func (t Topic) Segments() []string {
	if t == "" {
		return nil
	}
	return strings.Split(string(t), Separator)
}

// HasPrefix returns true if t starts with the complete segments of prefix.
func (t Topic) HasPrefix(prefix Topic) bool {
	if prefix == "" {
		return true
	}
	s, p := string(t), string(prefix)
	if !strings.HasPrefix(s, p) {
		return false
	}
	return len(s) == len(p) || s[len(p)] == '.'
}

// IsPattern returns true if the topic contains a wildcard segment.
func (t Topic) IsPattern() bool {
	for _, seg := range t.Segments() {
		if seg == WildcardSingle || seg == WildcardMulti {
			return true
		}
	}
	return false
}

// Valid returns true if t is non-empty with no empty segments and no
// partial wildcards such as "play*".
func (t Topic) Valid() bool {
	if t == "" {
		return false
	}
	for _, seg := range t.Segments() {
		if seg == "" {
			return false
		}
		if strings.Contains(seg, "*") && seg != WildcardSingle && seg != WildcardMulti {
			return false
		}
	}
	return true
}

// Match reports whether topic t matches pattern.
func Match(pattern, t Topic) bool {
	return matchSegments(pattern.Segments(), t.Segments())
}

func matchSegments(pattern, segs []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case WildcardMulti:
			rest := pattern[1:]
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}
			return false
		case WildcardSingle:
			if len(segs) == 0 {
				return false
			}
		default:
			if len(segs) == 0 || segs[0] != pattern[0] {
				return false
			}
		}
		pattern, segs = pattern[1:], segs[1:]
	}
	return len(segs) == 0
}
