package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers per key. fire runs once per key,
// delay after the last trigger for that key.
type Debouncer struct {
	delay time.Duration
	fire  func(key string)

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// NewDebouncer creates a debouncer. A non-positive delay uses 100ms.
func NewDebouncer(delay time.Duration, fire func(key string)) *Debouncer {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &Debouncer{
		delay:   delay,
		fire:    fire,
		pending: make(map[string]*time.Timer),
	}
}

// Trigger schedules key, pushing back a pending fire for the same key.
func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if t, ok := d.pending[key]; ok {
		t.Reset(d.delay)
		return
	}
	d.pending[key] = time.AfterFunc(d.delay, func() { d.run(key) })
}

func (d *Debouncer) run(key string) {
	d.mu.Lock()
	if _, ok := d.pending[key]; !ok || d.closed {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()
	d.fire(key)
}

// Flush fires every pending key now.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.pending))
	for key, t := range d.pending {
		t.Stop()
		keys = append(keys, key)
	}
	d.mu.Unlock()
	for _, key := range keys {
		d.run(key)
	}
}

// Pending returns the number of keys waiting to fire.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop cancels pending fires. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for key, t := range d.pending {
		t.Stop()
		delete(d.pending, key)
	}
}
