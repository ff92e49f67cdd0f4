package event

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/neonplay/internal/event/topic"
)

type subscription struct {
	id      string
	pattern topic.Topic
	handler Handler
	seq     uint64
}

// Bus routes events to subscribers by topic pattern.
type Bus struct {
	mu      sync.RWMutex
	matcher *topic.Matcher
	subs    map[string]*subscription
	byPat   map[topic.Topic][]*subscription
	seq     uint64
	closed  bool
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report handler panics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		matcher: topic.NewMatcher(),
		subs:    make(map[string]*subscription),
		byPat:   make(map[topic.Topic][]*subscription),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for every topic matching pattern and returns an
// id for Unsubscribe.
func (b *Bus) Subscribe(pattern topic.Topic, h Handler) (string, error) {
	if !pattern.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, pattern)
	}
	if h == nil {
		return "", ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrBusClosed
	}

	b.seq++
	sub := &subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		handler: h,
		seq:     b.seq,
	}
	b.subs[sub.id] = sub
	b.byPat[pattern] = append(b.byPat[pattern], sub)
	b.matcher.Add(pattern)
	return sub.id, nil
}

// Unsubscribe removes a subscription. It returns false if id is unknown.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return false
	}
	delete(b.subs, id)

	list := b.byPat[sub.pattern]
	for i, s := range list {
		if s == sub {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.byPat, sub.pattern)
		b.matcher.Remove(sub.pattern)
	} else {
		b.byPat[sub.pattern] = list
	}
	return true
}

// Publish delivers data on t to every matching subscriber in subscription
// order and returns the number of handlers invoked.
func (b *Bus) Publish(t topic.Topic, data any) (int, error) {
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTopic, t)
	}
	if t.IsPattern() {
		return 0, fmt.Errorf("%w: %q", ErrPatternPublish, t)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0, ErrBusClosed
	}
	var targets []*subscription
	for _, p := range b.matcher.Match(t) {
		targets = append(targets, b.byPat[p]...)
	}
	b.mu.RUnlock()

	sortBySeq(targets)

	ev := Event{Topic: t, Data: data, Time: b.now()}
	for _, sub := range targets {
		b.deliver(sub, ev)
	}
	return len(targets), nil
}

func (b *Bus) deliver(sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"topic", ev.Topic.String(),
				"pattern", sub.pattern.String(),
				"panic", r)
		}
	}()
	sub.handler(ev)
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close drops every subscription. Later calls fail with ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.subs = nil
	b.byPat = nil
	b.matcher = topic.NewMatcher()
}

// insertion sort; subscriber lists are short
func sortBySeq(subs []*subscription) {
	for i := 1; i < len(subs); i++ {
		for j := i; j > 0 && subs[j].seq < subs[j-1].seq; j-- {
			subs[j], subs[j-1] = subs[j-1], subs[j]
		}
	}
}
