package domain

import (
	"encoding/json"
	"time"
)

// Conversation is the durable record of one support dialogue. It is created
// when an identifier is reserved, appended to on every turn and never deleted.
type Conversation struct {
	ConversationID string             `json:"conversation_id"`
	Locale         string             `json:"locale"`
	UserRef        string             `json:"user_ref,omitempty"`
	Status         ConversationStatus `json:"status"`
	Feedback       Feedback           `json:"feedback,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// TranscriptEvent is one immutable entry of a conversation's transcript.
// Seq is assigned by the store at append time; because appends only happen
// while the conversation lock is held, Seq order equals lock-acquisition
// order, which is the causal order of the dialogue.
type TranscriptEvent struct {
	Seq            int64           `json:"seq"`
	EventID        string          `json:"event_id"`
	ConversationID string          `json:"conversation_id"`
	Role           Role            `json:"role"`
	Type           EventType       `json:"type"`
	Ts             int64           `json:"ts"` // Unix milliseconds
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Ticket is the immutable human-handoff record produced by an escalation.
type Ticket struct {
	TicketID       string          `json:"ticket_id"`
	ConversationID string          `json:"conversation_id"`
	Summary        string          `json:"summary"`
	Reason         string          `json:"reason"`
	ContactEmail   string          `json:"contact_email,omitempty"`
	ContactPhone   string          `json:"contact_phone,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
