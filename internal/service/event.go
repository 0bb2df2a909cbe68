package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/stihelp/orchestrator/internal/domain"
	"github.com/stihelp/orchestrator/internal/store"
)

// EventLog appends transcript events. Turn-critical appends (user input, bot
// reply) propagate errors so the turn fails loudly; system annotations are
// best effort and only logged on failure.
type EventLog struct {
	store store.Store
}

// NewEventLog creates the event log.
func NewEventLog(s store.Store) *EventLog {
	return &EventLog{store: s}
}

func newEventID() string {
	return "ev_" + uuid.New().String()[:8]
}

// Append durably records one transcript event. The event's Seq is filled in
// by the store.
func (l *EventLog) Append(ctx context.Context, conversationID string, role domain.Role, typ domain.EventType, payload any) (*domain.TranscriptEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	event := &domain.TranscriptEvent{
		EventID:        newEventID(),
		ConversationID: conversationID,
		Role:           role,
		Type:           typ,
		Ts:             time.Now().UnixMilli(),
		Payload:        body,
	}
	if err := l.store.AppendEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

type systemEventPayload struct {
	Kind    domain.SystemEventKind `json:"kind"`
	Details any                    `json:"details,omitempty"`
}

// RecordSystemEvent implements governor.Recorder. System annotations never
// fail the turn they decorate.
func (l *EventLog) RecordSystemEvent(ctx context.Context, conversationID string, kind domain.SystemEventKind, payload any) {
	_, err := l.Append(ctx, conversationID, domain.RoleSystem, domain.EventTypeEvent, systemEventPayload{
		Kind:    kind,
		Details: payload,
	})
	if err != nil {
		log.Printf("WARN: failed to record %s event for conversation %s: %v", kind, conversationID, err)
	}
}
