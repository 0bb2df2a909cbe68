package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stihelp/orchestrator/internal/domain"
	"github.com/stihelp/orchestrator/internal/stage"
)

type botMessagePayload struct {
	Text    string          `json:"text"`
	Choices []domain.Choice `json:"choices,omitempty"`
	Stage   string          `json:"stage"`
}

// StartConversation reserves a conversation id, creates the durable record
// and a fresh session parked on language selection, and returns the greeting.
// The id is reserved up front so every later turn, including the first, is
// keyed and locked the same way.
func (s *Service) StartConversation(ctx context.Context, userRef string) (*domain.TurnResponse, error) {
	conversationID, err := s.registry.Reserve(ctx)
	if err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}

	now := time.Now()
	conv := &domain.Conversation{
		ConversationID: conversationID,
		Locale:         s.cfg.DefaultLocale,
		UserRef:        userRef,
		Status:         domain.ConversationStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	sess := &domain.Session{
		SessionID:      newSessionID(),
		ConversationID: conversationID,
		Stage:          stage.LanguageSelect,
		Locale:         s.cfg.DefaultLocale,
	}
	s.sessions.Create(sess)

	reply := stage.PromptFor(stage.LanguageSelect, sess.Locale)
	choices := stage.DefaultChoices(stage.LanguageSelect, sess.Locale)

	if _, err := s.events.Append(ctx, conversationID, domain.RoleBot, domain.EventTypeText, botMessagePayload{
		Text:    reply,
		Choices: choices,
		Stage:   stage.LanguageSelect,
	}); err != nil {
		return nil, fmt.Errorf("record greeting: %w", err)
	}

	resp := &domain.TurnResponse{
		SessionID:      sess.SessionID,
		ConversationID: conversationID,
		Stage:          stage.LanguageSelect,
		Reply:          reply,
		Choices:        choices,
	}
	sess.LastResponse = resp
	s.sessions.Put(sess)
	return resp, nil
}

// Reopen revives a closed or escalated conversation with a fresh session
// parked on intent selection. The transcript continues on the same record.
func (s *Service) Reopen(ctx context.Context, conversationID string) (*domain.TurnResponse, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	if err := s.store.UpdateConversationStatus(ctx, conversationID, domain.ConversationStatusOpen); err != nil {
		return nil, fmt.Errorf("reopen conversation: %w", err)
	}
	s.events.RecordSystemEvent(ctx, conversationID, domain.SystemEventReopened, nil)

	sess := &domain.Session{
		SessionID:      newSessionID(),
		ConversationID: conversationID,
		Stage:          stage.IntentSelect,
		Locale:         conv.Locale,
	}
	s.sessions.Create(sess)

	reply := stage.PromptFor(stage.IntentSelect, sess.Locale)
	choices := stage.DefaultChoices(stage.IntentSelect, sess.Locale)

	if _, err := s.events.Append(ctx, conversationID, domain.RoleBot, domain.EventTypeText, botMessagePayload{
		Text:    reply,
		Choices: choices,
		Stage:   stage.IntentSelect,
	}); err != nil {
		return nil, fmt.Errorf("record reopen greeting: %w", err)
	}

	resp := &domain.TurnResponse{
		SessionID:      sess.SessionID,
		ConversationID: conversationID,
		Stage:          stage.IntentSelect,
		Reply:          reply,
		Choices:        choices,
	}
	sess.LastResponse = resp
	s.sessions.Put(sess)
	return resp, nil
}
