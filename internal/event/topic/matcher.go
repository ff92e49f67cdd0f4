package topic

import "sync"

// Matcher indexes patterns in a trie so a topic can be matched against
// many patterns at once. It is safe for concurrent use.
type Matcher struct {
	mu   sync.RWMutex
	root *node
}

type node struct {
	children map[string]*node
	patterns []Topic
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// NewMatcher creates an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{root: newNode()}
}

// Add indexes pattern. Adding a pattern twice has no effect.
func (m *Matcher) Add(pattern Topic) {
	if pattern == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.root
	for _, seg := range pattern.Segments() {
		child := n.children[seg]
		if child == nil {
			child = newNode()
			n.children[seg] = child
		}
		n = child
	}
	for _, p := range n.patterns {
		if p == pattern {
			return
		}
	}
	n.patterns = append(n.patterns, pattern)
}

// Remove drops pattern from the index.
func (m *Matcher) Remove(pattern Topic) {
	if pattern == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.root
	for _, seg := range pattern.Segments() {
		if n = n.children[seg]; n == nil {
			return
		}
	}
	for i, p := range n.patterns {
		if p == pattern {
			n.patterns = append(n.patterns[:i], n.patterns[i+1:]...)
			return
		}
	}
}

// Match returns every indexed pattern matching t, each at most once.
func (m *Matcher) Match(t Topic) []Topic {
	if t == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[Topic]bool)
	var out []Topic
	m.match(m.root, t.Segments(), &out, seen)
	return out
}

func (m *Matcher) match(n *node, segs []string, out *[]Topic, seen map[Topic]bool) {
	if len(segs) == 0 {
		for _, p := range n.patterns {
			if !seen[p] {
				seen[p] = true
				*out = append(*out, p)
			}
		}
		// a trailing ** also matches zero segments
		if child := n.children[WildcardMulti]; child != nil {
			m.match(child, segs, out, seen)
		}
		return
	}

	if child := n.children[segs[0]]; child != nil {
		m.match(child, segs[1:], out, seen)
	}
	if child := n.children[WildcardSingle]; child != nil {
		m.match(child, segs[1:], out, seen)
	}
	if child := n.children[WildcardMulti]; child != nil {
		for i := 0; i <= len(segs); i++ {
			m.match(child, segs[i:], out, seen)
		}
	}
}
