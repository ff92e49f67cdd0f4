// Package event provides the in-process publish/subscribe bus shared by the
// player, settings and plugins.
//
// Delivery is synchronous: Publish returns after every matching handler has
// run. Handlers that need to do slow work should hand it off themselves.
// A panicking handler is recovered and logged; the remaining handlers still
// receive the event.
package event

import (
	"time"

	"github.com/dshills/neonplay/internal/event/topic"
)

// Well-known topics published by the host.
const (
	TopicPlayerPlay        topic.Topic = "player.play"
	TopicPlayerPause       topic.Topic = "player.pause"
	TopicPlayerStop        topic.Topic = "player.stop"
	TopicPlayerSeek        topic.Topic = "player.seek"
	TopicPlayerVolume      topic.Topic = "player.volume"
	TopicPlayerTrackChange topic.Topic = "player.track.changed"
	TopicPlayerEnded       topic.Topic = "player.ended"
	TopicSettingsChanged   topic.Topic = "settings.changed"
	TopicPluginState       topic.Topic = "plugins.state"
	TopicNotification      topic.Topic = "ui.notification"
	TopicOverlay           topic.Topic = "ui.overlay"
)

// Event is a single published message.
type Event struct {
	Topic topic.Topic
	Data  any
	Time  time.Time
}

// Handler receives events.
type Handler func(Event)
