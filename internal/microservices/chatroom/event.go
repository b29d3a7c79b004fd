package chatroom

// Events published to the view layer after each state transition

type EventType string

const (
	EventMessageAppended EventType = "message_appended" // user or assistant message added to the log
	EventTypingStarted   EventType = "typing_started"   // first reply of a burst scheduled
	EventTypingStopped   EventType = "typing_stopped"   // reply queue drained
	EventLoadingOlder    EventType = "loading_older"    // older page requested
	EventWindowExpanded  EventType = "window_expanded"  // older page revealed
	EventPersistFailed   EventType = "persist_failed"   // store write failed, view is unsaved
)

type Event struct {
	Type    EventType
	RoomID  string
	Message *Message  // set for EventMessageAppended
	Window  []Message // set for EventWindowExpanded
	State   ViewState // state once the operation that produced the event finished
	Err     error     // set for EventPersistFailed
}

// Listener receives events in transition order, one event at a time.
// Listeners run outside the controller lock and may call its methods.
type Listener func(Event)
