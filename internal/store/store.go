// Package store defines the persistence interface and its SQLite implementation.
package store

import (
	"context"
	"errors"

	"github.com/stihelp/orchestrator/internal/domain"
)

// ErrIDReserved is returned when a conversation id is already in the used-set.
var ErrIDReserved = errors.New("store: conversation id already reserved")

// Store is the durable side of the orchestrator. AppendEvent is atomic and
// durable before it returns; Conversation/GetEvents round-trip losslessly.
type Store interface {
	// Conversation id used-set. Reservation is durably recorded before
	// Reserve returns, so a crash right after never yields a duplicate.
	ReserveConversationID(ctx context.Context, conversationID string) error

	// Conversation record
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	UpdateConversationStatus(ctx context.Context, conversationID string, status domain.ConversationStatus) error
	UpdateConversationLocale(ctx context.Context, conversationID, locale string) error
	SetConversationFeedback(ctx context.Context, conversationID string, fb domain.Feedback) error
	TouchConversation(ctx context.Context, conversationID string) error

	// Transcript
	AppendEvent(ctx context.Context, event *domain.TranscriptEvent) error
	GetEvents(ctx context.Context, conversationID string, afterSeq int64, types []string, limit int) ([]domain.TranscriptEvent, error)

	// Tickets
	CreateTicket(ctx context.Context, ticket *domain.Ticket) error
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)

	// Lifecycle
	Close() error
}
