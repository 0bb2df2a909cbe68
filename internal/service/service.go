// Package service is the orchestrator core: it owns the turn loop that takes
// one inbound event through locking, duplicate absorption, stage dispatch,
// output validation and transcript recording, and hands back exactly one
// response.
package service

import (
	"context"
	"errors"

	"github.com/stihelp/orchestrator/internal/coordinator"
	"github.com/stihelp/orchestrator/internal/dialogue"
	"github.com/stihelp/orchestrator/internal/domain"
	"github.com/stihelp/orchestrator/internal/escalation"
	"github.com/stihelp/orchestrator/internal/registry"
	"github.com/stihelp/orchestrator/internal/stage"
	"github.com/stihelp/orchestrator/internal/store"
	"github.com/stihelp/orchestrator/internal/validate"
)

var (
	// ErrSessionNotFound covers both an unknown session id and one expired
	// by inactivity. The client must start over; the durable conversation
	// is untouched.
	ErrSessionNotFound = errors.New("service: session not found or expired")

	// ErrConversationNotFound means the durable record does not exist.
	ErrConversationNotFound = errors.New("service: conversation not found")
)

// Config tunes the orchestrator service.
type Config struct {
	DefaultLocale string
}

// Service wires the turn loop's collaborators.
type Service struct {
	cfg        Config
	store      store.Store
	sessions   SessionStore
	registry   *registry.Registry
	coord      *coordinator.Coordinator
	validator  *validate.Validator
	dialogue   *dialogue.Registry
	escalation *escalation.Service
	events     *EventLog
}

// New creates the Service.
func New(cfg Config, st store.Store, sessions SessionStore, reg *registry.Registry, coord *coordinator.Coordinator, v *validate.Validator, dlg *dialogue.Registry, esc *escalation.Service, events *EventLog) *Service {
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = stage.LocaleEsAR
	}
	return &Service{
		cfg:        cfg,
		store:      st,
		sessions:   sessions,
		registry:   reg,
		coord:      coord,
		validator:  v,
		dialogue:   dlg,
		escalation: esc,
		events:     events,
	}
}

// Events returns a slice of a conversation's transcript. Pagination is by
// sequence number; types narrows by event type.
func (s *Service) Events(ctx context.Context, conversationID string, afterSeq int64, types []string, limit int) ([]domain.TranscriptEvent, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	return s.store.GetEvents(ctx, conversationID, afterSeq, types, limit)
}
