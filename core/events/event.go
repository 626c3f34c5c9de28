package events

// Event represents a structured state change emitted by the orchestration
// core.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. webhooks,
// indexers, audit sinks).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while
// discarding all events. It is useful when a component wants to optionally
// expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Record is the wire-friendly representation of an event.
type Record struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Recorder converts an event into its attribute map form. Events that do not
// implement Recorder are forwarded with an empty attribute set.
type Recorder interface {
	Record() *Record
}
