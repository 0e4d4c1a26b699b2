package domain

import "time"

// EventType is a stable string constant identifying an event's schema.
// Constants live next to the aggregate that emits them.
type EventType string

// Event is the envelope crossing service boundaries. SchemaVersion versions
// the event payload shape, not the aggregate. Delivery is at-least-once, so
// consumers must deduplicate on ID.
type Event struct {
	ID            EventID           `json:"id"`
	Type          EventType         `json:"type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	SchemaVersion int               `json:"version"`
	OccurredAt    time.Time         `json:"timestamp"`
	UserID        string            `json:"user_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Payload       map[string]any    `json:"payload"`
}

// NewEvent builds an envelope with a fresh ID. Payload may be nil for events
// whose type alone carries the signal.
func NewEvent(eventType EventType, aggregateID, aggregateType string, now time.Time, payload map[string]any) Event {
	return Event{
		ID:            NewEventID(),
		Type:          eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		SchemaVersion: 1,
		OccurredAt:    now,
		Payload:       payload,
	}
}

// WithUser attributes the event to the acting user.
func (e Event) WithUser(userID string) Event {
	e.UserID = userID
	return e
}

// WithMeta attaches a metadata entry, copying the map so shared envelopes do
// not alias.
func (e Event) WithMeta(key, value string) Event {
	meta := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta[key] = value
	e.Metadata = meta
	return e
}

// Recorder is the transient event queue embedded by aggregate roots. It is
// never persisted: the unexported slice does not survive marshalling, and a
// rehydrated aggregate starts with an empty queue. Persistence and dispatch
// must therefore happen in the same unit of work.
type Recorder struct {
	pending []Event
}

// Record appends events to the uncommitted queue.
func (r *Recorder) Record(events ...Event) {
	r.pending = append(r.pending, events...)
}

// UncommittedEvents returns a copy of the queue without clearing it.
func (r *Recorder) UncommittedEvents() []Event {
	out := make([]Event, len(r.pending))
	copy(out, r.pending)
	return out
}

// MarkEventsCommitted clears the queue after successful dispatch.
func (r *Recorder) MarkEventsCommitted() {
	r.pending = nil
}
