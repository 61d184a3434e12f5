package scene

import "time"

// EventType names an adapter lifecycle event.
type EventType string

const (
	EventReady           EventType = "scene.ready"
	EventFailed          EventType = "scene.failed"
	EventEditsApplied    EventType = "edits.applied"
	EventTextureFailed   EventType = "texture.failed"
	EventVariantSelected EventType = "variant.selected"
	EventARRequested     EventType = "ar.requested"
	EventARGate          EventType = "ar.gate"
)

// Event is delivered to subscribers of an Adapter. Ready and Failed are
// reported exactly once per Load call.
type Event struct {
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation"`
	URL        string    `json:"url,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Applied    int       `json:"applied,omitempty"`
	Skipped    int       `json:"skipped,omitempty"`
	Variant    string    `json:"variant,omitempty"`
	Enabled    *bool     `json:"enabled,omitempty"`
	Time       time.Time `json:"time"`
	Err        error     `json:"-"`
}

// GateEvent builds an ar.gate event.
func GateEvent(enabled bool) Event {
	return Event{Type: EventARGate, Enabled: &enabled, Time: time.Now()}
}
