package storage

import "time"

// Event is one processed message: what the user said, what the bot decided
// and what it answered. Events are appended in processing order.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	ConversationID    string    `json:"conversation_id"`
	SenderID          string    `json:"sender_id"`
	Action            string    `json:"action"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response,omitempty"`
	Emoji             string    `json:"emoji,omitempty"`
	Tagged            bool      `json:"tagged,omitempty"`
}

// Recorder abstracts persistence of interaction events.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
