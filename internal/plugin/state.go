package plugin

// State is a registered plugin's lifecycle state. Of the four combinations
// of enabled and loaded, only three are reachable: a plugin is never loaded
// while disabled.
type State int

// Plugin states.
const (
	// StateUnregistered - the id is not in the registry.
	StateUnregistered State = iota

	// StateDisabled - registered, not enabled.
	StateDisabled

	// StateEnabled - enabled but not loaded, either because the registry is
	// not initialized yet or because loading failed.
	StateEnabled

	// StateLoaded - enabled and running.
	StateLoaded
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	case StateLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

func stateOf(enabled, loaded bool) State {
	switch {
	case loaded:
		return StateLoaded
	case enabled:
		return StateEnabled
	default:
		return StateDisabled
	}
}

// EventType is the kind of registry event.
type EventType int

const (
	// EventRegistered is emitted after a plugin is added.
	EventRegistered EventType = iota
	// EventUnregistered is emitted after a plugin is removed.
	EventUnregistered
	// EventEnabled is emitted when a plugin's enabled flag turns on.
	EventEnabled
	// EventDisabled is emitted when a plugin's enabled flag turns off.
	EventDisabled
	// EventLoaded is emitted after initialize and onLoad succeed.
	EventLoaded
	// EventUnloaded is emitted after a plugin is unloaded.
	EventUnloaded
	// EventError is emitted when a hook fails.
	EventError
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventUnregistered:
		return "unregistered"
	case EventEnabled:
		return "enabled"
	case EventDisabled:
		return "disabled"
	case EventLoaded:
		return "loaded"
	case EventUnloaded:
		return "unloaded"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// RegistryEvent reports a registry transition.
type RegistryEvent struct {
	Type   EventType
	Plugin string
	State  State
	Err    error
}
