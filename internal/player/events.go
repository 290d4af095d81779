package player

// EventType is the engine's report on one utterance.
type EventType string

const (
	EventStarted EventType = "started"
	EventEnded   EventType = "ended"
	EventFailed  EventType = "failed"
)

// Event is delivered by the speech engine for the utterance at
// QueuePos. The controller dispatches on (Type, QueuePos) and drops
// events whose position no longer matches the cursor.
type Event struct {
	Type     EventType `json:"type"`
	QueuePos int       `json:"queue_pos"`
}
