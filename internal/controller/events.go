package controller

// Event represents a controller lifecycle event.
// Minimal and stable: name + start attempt id and optional fields via
// key/values.
type Event struct {
	Name    string
	Attempt string
	Fields  map[string]any
}

// EventPublisher receives events from the controller. Implementations should
// be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
