package domain

// Stream event type tags.
const (
	EventTypeConnected  = "connected"
	EventTypeNewMessage = "new_message"
)

// StreamEvent is the payload pushed over a live-update connection.
// It is an ephemeral value: serialized once per broadcast, never retained.
type StreamEvent struct {
	Type     string   `json:"type"`
	ClientID string   `json:"clientId,omitempty"`
	Message  *Message `json:"message,omitempty"`
}

// NewMessageEvent builds the event emitted after a row is persisted.
func NewMessageEvent(msg *Message) StreamEvent {
	return StreamEvent{Type: EventTypeNewMessage, Message: msg}
}

// ConnectedEvent is the first frame sent on a fresh live-update connection.
func ConnectedEvent(clientID string) StreamEvent {
	return StreamEvent{Type: EventTypeConnected, ClientID: clientID}
}
