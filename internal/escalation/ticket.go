// Package escalation builds the immutable handoff record when a
// conversation is handed to human support. Message formatting and transport
// to the handoff channel live elsewhere; this package only owns the record.
package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/stihelp/orchestrator/internal/domain"
	"github.com/stihelp/orchestrator/internal/store"
)

// Escalation reasons recorded on tickets.
const (
	ReasonDiagnosticFailed = "diagnostic_failed"
	ReasonContentGuard     = "content_guard"
	ReasonUserRequested    = "user_requested"
)

// Service creates tickets against the durable store.
type Service struct {
	store store.Store
}

// New creates the escalation service.
func New(s store.Store) *Service {
	return &Service{store: s}
}

type handoffPayload struct {
	TranscriptRef string `json:"transcript_ref"`
	Locale        string `json:"locale"`
	Name          string `json:"name,omitempty"`
	Skill         string `json:"skill,omitempty"`
	Device        string `json:"device,omitempty"`
	Problem       string `json:"problem,omitempty"`
}

// CreateTicket builds the ticket for a conversation and marks it escalated.
// The ticket is immutable once stored. sess may be nil (escalation raised
// from outside a live session); the record then carries only what the
// conversation itself knows.
func (s *Service) CreateTicket(ctx context.Context, conversationID, reason string, sess *domain.Session) (string, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return "", fmt.Errorf("conversation %s not found", conversationID)
	}

	payload := handoffPayload{
		TranscriptRef: conversationID,
		Locale:        conv.Locale,
	}
	if sess != nil {
		payload.Name = sess.Name
		payload.Skill = string(sess.Skill)
		payload.Device = sess.Device
		payload.Problem = sess.Problem
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal handoff payload: %w", err)
	}

	ticket := &domain.Ticket{
		TicketID:       "tk_" + shortuuid.New(),
		ConversationID: conversationID,
		Summary:        buildSummary(sess, conversationID),
		Reason:         reason,
		Payload:        body,
		CreatedAt:      time.Now(),
	}
	if sess != nil {
		ticket.ContactEmail = sess.ContactEmail
		ticket.ContactPhone = sess.ContactPhone
	}

	if err := s.store.CreateTicket(ctx, ticket); err != nil {
		return "", fmt.Errorf("store ticket: %w", err)
	}
	if err := s.store.UpdateConversationStatus(ctx, conversationID, domain.ConversationStatusEscalated); err != nil {
		return "", fmt.Errorf("mark conversation escalated: %w", err)
	}

	return ticket.TicketID, nil
}

func buildSummary(sess *domain.Session, conversationID string) string {
	if sess == nil {
		return "Escalated conversation " + conversationID
	}
	var parts []string
	if sess.Problem != "" {
		parts = append(parts, sess.Problem)
	}
	if sess.Device != "" {
		parts = append(parts, "("+sess.Device+")")
	}
	if len(parts) == 0 {
		return "Escalated conversation " + conversationID
	}
	return strings.Join(parts, " ")
}
