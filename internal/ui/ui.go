// Package ui is the host side of the plugin UI surface.
//
// The player core has no renderer of its own. Headless records
// notifications and overlays, logs them, and publishes them on the event
// bus for whichever front end is attached.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/neonplay/internal/event"
	"github.com/dshills/neonplay/internal/event/topic"
)

// Level is a notification severity.
type Level string

// Notification levels.
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ParseLevel returns the level named s, defaulting to LevelInfo.
func ParseLevel(s string) Level {
	switch l := Level(s); l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return l
	case "warn":
		return LevelWarning
	}
	return LevelInfo
}

// Position places an overlay.
type Position string

// Overlay positions.
const (
	PositionTopLeft     Position = "top-left"
	PositionTopRight    Position = "top-right"
	PositionBottomLeft  Position = "bottom-left"
	PositionBottomRight Position = "bottom-right"
	PositionCenter      Position = "center"
)

var (
	// ErrEmptyMessage is returned for blank notifications.
	ErrEmptyMessage = errors.New("empty notification")

	// ErrOverlayNotFound is returned for unknown overlay ids or overlays
	// owned by another plugin.
	ErrOverlayNotFound = errors.New("overlay not found")

	// ErrTooManyOverlays is returned when a plugin exceeds its overlay limit.
	ErrTooManyOverlays = errors.New("too many overlays")
)

// MaxOverlaysPerPlugin bounds the overlays one plugin may show at once.
const MaxOverlaysPerPlugin = 8

// Notification is a message shown to the user.
type Notification struct {
	Plugin  string
	Message string
	Level   Level
	Time    time.Time
}

// Overlay is a small panel drawn over the player.
type Overlay struct {
	ID       string   `json:"id" lua:"id"`
	Plugin   string   `json:"plugin" lua:"-"`
	Title    string   `json:"title" lua:"title"`
	Content  string   `json:"content" lua:"content"`
	Position Position `json:"position" lua:"position"`
}

// OverlayEvent is published on event.TopicOverlay.
type OverlayEvent struct {
	Action  string // "show", "update" or "hide"
	Overlay Overlay
}

// Headless implements the UI surface without a display.
type Headless struct {
	mu       sync.RWMutex
	overlays map[string]Overlay
	history  []Notification
	limit    int

	bus    *event.Bus
	logger *slog.Logger
	now    func() time.Time
}

// Option configures Headless.
type Option func(*Headless)

// WithBus publishes notifications and overlay changes on b.
func WithBus(b *event.Bus) Option {
	return func(h *Headless) { h.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Headless) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHistory keeps the last n notifications.
func WithHistory(n int) Option {
	return func(h *Headless) { h.limit = n }
}

// NewHeadless creates a headless UI.
func NewHeadless(opts ...Option) *Headless {
	h := &Headless{
		overlays: make(map[string]Overlay),
		limit:    100,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Notify records and publishes a notification from plugin.
func (h *Headless) Notify(plugin, message string, level Level) error {
	if message == "" {
		return ErrEmptyMessage
	}
	n := Notification{Plugin: plugin, Message: message, Level: ParseLevel(string(level)), Time: h.now()}

	h.mu.Lock()
	h.history = append(h.history, n)
	if h.limit > 0 && len(h.history) > h.limit {
		h.history = h.history[len(h.history)-h.limit:]
	}
	h.mu.Unlock()

	logLevel := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		logLevel = slog.LevelWarn
	case LevelError:
		logLevel = slog.LevelError
	}
	h.logger.Log(context.Background(), logLevel, message, "plugin", plugin, "source", "notification")
	h.publish(event.TopicNotification, n)
	return nil
}

// Notifications returns the recorded notifications, oldest first.
func (h *Headless) Notifications() []Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Notification(nil), h.history...)
}

// ShowOverlay displays o for plugin and returns its id.
func (h *Headless) ShowOverlay(plugin string, o Overlay) (string, error) {
	h.mu.Lock()
	count := 0
	for _, existing := range h.overlays {
		if existing.Plugin == plugin {
			count++
		}
	}
	if count >= MaxOverlaysPerPlugin {
		h.mu.Unlock()
		return "", fmt.Errorf("%w: %s has %d", ErrTooManyOverlays, plugin, count)
	}
	o.ID = uuid.NewString()
	o.Plugin = plugin
	if o.Position == "" {
		o.Position = PositionTopRight
	}
	h.overlays[o.ID] = o
	h.mu.Unlock()

	h.publish(event.TopicOverlay, OverlayEvent{Action: "show", Overlay: o})
	return o.ID, nil
}

// UpdateOverlay replaces the title, content and position of an overlay
// owned by plugin. Empty fields keep their current value.
func (h *Headless) UpdateOverlay(plugin, id string, o Overlay) error {
	h.mu.Lock()
	cur, ok := h.overlays[id]
	if !ok || cur.Plugin != plugin {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOverlayNotFound, id)
	}
	if o.Title != "" {
		cur.Title = o.Title
	}
	if o.Content != "" {
		cur.Content = o.Content
	}
	if o.Position != "" {
		cur.Position = o.Position
	}
	h.overlays[id] = cur
	h.mu.Unlock()

	h.publish(event.TopicOverlay, OverlayEvent{Action: "update", Overlay: cur})
	return nil
}

// HideOverlay removes an overlay owned by plugin.
func (h *Headless) HideOverlay(plugin, id string) error {
	h.mu.Lock()
	cur, ok := h.overlays[id]
	if !ok || cur.Plugin != plugin {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOverlayNotFound, id)
	}
	delete(h.overlays, id)
	h.mu.Unlock()

	h.publish(event.TopicOverlay, OverlayEvent{Action: "hide", Overlay: cur})
	return nil
}

// Overlays returns the visible overlays sorted by plugin then id.
func (h *Headless) Overlays() []Overlay {
	h.mu.RLock()
	out := make([]Overlay, 0, len(h.overlays))
	for _, o := range h.overlays {
		out = append(out, o)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Plugin != out[j].Plugin {
			return out[i].Plugin < out[j].Plugin
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (h *Headless) publish(t topic.Topic, data any) {
	if h.bus == nil {
		return
	}
	if _, err := h.bus.Publish(t, data); err != nil {
		h.logger.Debug("ui publish failed", "topic", string(t), "error", err)
	}
}
