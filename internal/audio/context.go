package audio

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// Context owns a processing graph. Connections and rendering are
// serialized by the context lock, so a change to the graph takes effect
// from the next rendered buffer.
type Context struct {
	mu sync.Mutex

	rate  beep.SampleRate
	nodes []Node        // creation order
	edges map[Node]Node // output connections

	sources     map[MediaElement]*SourceNode
	destination *Destination
	closed      bool
}

// NewContext creates a context rendering at rate.
func NewContext(rate beep.SampleRate) *Context {
	c := &Context{
		rate:        rate,
		edges:       make(map[Node]Node),
		sources:     make(map[MediaElement]*SourceNode),
		destination: newDestination(),
	}
	return c
}

// SampleRate returns the rendering sample rate.
func (c *Context) SampleRate() beep.SampleRate {
	return c.rate
}

// Destination returns the terminal node.
func (c *Context) Destination() *Destination {
	return c.destination
}

// Closed returns true after Close.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CreateMediaElementSource returns the source node for el. An element is
// wrapped by at most one source node per context; later calls return it.
func (c *Context) CreateMediaElementSource(el MediaElement) (*SourceNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrContextClosed
	}
	if src, ok := c.sources[el]; ok {
		return src, nil
	}
	src := newSourceNode(el, c.rate)
	c.sources[el] = src
	c.nodes = append(c.nodes, src)
	return src, nil
}

// CreateGain creates a gain node with value 1.
func (c *Context) CreateGain() (*GainNode, error) {
	g := newGainNode()
	return g, c.add(g)
}

// CreateAnalyser creates an analyser node.
func (c *Context) CreateAnalyser() (*AnalyserNode, error) {
	a := newAnalyserNode()
	return a, c.add(a)
}

// CreatePeakingFilter creates a peaking filter node.
func (c *Context) CreatePeakingFilter(frequency, gain, q float64) (*PeakingFilter, error) {
	f := newPeakingFilter(c.rate, frequency, gain, q)
	return f, c.add(f)
}

func (c *Context) add(n Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	c.nodes = append(c.nodes, n)
	return nil
}

// Connect routes the output of src into dst, replacing any existing
// connection of src.
func (c *Context) Connect(src Node, dst Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrContextClosed
	}
	in, ok := dst.(inputNode)
	if !ok {
		return ErrNoInput
	}
	c.disconnectLocked(src)
	if prev := in.input().in; prev != nil {
		if n, ok := prev.(Node); ok {
			delete(c.edges, n)
		}
	}
	in.input().in = src
	c.edges[src] = dst
	return nil
}

// Disconnect removes the output connection of n.
func (c *Context) Disconnect(n Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked(n)
}

func (c *Context) disconnectLocked(n Node) {
	dst, ok := c.edges[n]
	if !ok {
		return
	}
	if in, ok := dst.(inputNode); ok && in.input().in == n {
		in.input().in = nil
	}
	delete(c.edges, n)
}

// Remove disconnects n, detaches anything feeding it, and forgets it.
func (c *Context) Remove(n Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disconnectLocked(n)
	if in, ok := n.(inputNode); ok {
		if prev, ok := in.input().in.(Node); ok {
			c.disconnectLocked(prev)
		}
	}
	for i, node := range c.nodes {
		if node == n {
			c.nodes = append(c.nodes[:i], c.nodes[i+1:]...)
			break
		}
	}
	if src, ok := n.(*SourceNode); ok {
		delete(c.sources, src.element)
	}
}

// Output returns the node n is connected to, if any.
func (c *Context) Output(n Node) (Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dst, ok := c.edges[n]
	return dst, ok
}

// Walk returns the nodes reached by following connections from n,
// starting with n itself.
func (c *Context) Walk(n Node) []Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	var path []Node
	seen := make(map[Node]bool)
	for n != nil && !seen[n] {
		seen[n] = true
		path = append(path, n)
		n = c.edges[n]
	}
	return path
}

// Connections returns the number of live connections.
func (c *Context) Connections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.edges)
}

// Render pulls one buffer through the graph into samples.
func (c *Context) Render(samples [][2]float64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		for i := range samples {
			samples[i] = [2]float64{}
		}
		return len(samples), true
	}
	return c.destination.Stream(samples)
}

// Close disconnects every node in reverse creation order and closes the
// context. Close is idempotent.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	for i := len(c.nodes) - 1; i >= 0; i-- {
		c.disconnectLocked(c.nodes[i])
	}
	c.nodes = nil
	c.sources = make(map[MediaElement]*SourceNode)
	c.closed = true
}

// output adapts a Context to beep.Streamer.
type output struct {
	ctx *Context
}

func (o output) Stream(samples [][2]float64) (int, bool) {
	return o.ctx.Render(samples)
}

func (o output) Err() error { return nil }
