package service

import (
	"context"
	"fmt"
	"log"

	"github.com/stihelp/orchestrator/internal/coordinator"
	"github.com/stihelp/orchestrator/internal/dialogue"
	"github.com/stihelp/orchestrator/internal/domain"
	"github.com/stihelp/orchestrator/internal/escalation"
	"github.com/stihelp/orchestrator/internal/stage"
)

type userEventPayload struct {
	Text     string `json:"text,omitempty"`
	ButtonID string `json:"button_id,omitempty"`
	Stage    string `json:"stage"`
}

// SubmitTurn processes one inbound event end to end under the conversation
// lock. requestID is the client's optional idempotency key: a retry with the
// same id replays the cached response without re-running anything.
func (s *Service) SubmitTurn(ctx context.Context, sessionID, requestID string, in domain.TurnInput) (*domain.TurnResponse, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	release, err := s.coord.Acquire(ctx, sess.ConversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	if requestID != "" {
		if resp, done := s.coord.Processed(requestID); done {
			return resp, nil
		}
	}

	fingerprint := coordinator.Fingerprint(sessionID, in)
	if s.coord.IsDuplicate(sess.ConversationID, fingerprint) && sess.LastResponse != nil {
		s.events.RecordSystemEvent(ctx, sess.ConversationID, domain.SystemEventDuplicateAbsorbed, map[string]string{
			"fingerprint": fingerprint,
		})
		return sess.LastResponse, nil
	}

	if err := s.recordUserEvent(ctx, sess, in); err != nil {
		return nil, fmt.Errorf("record user event: %w", err)
	}

	prevStage := sess.Stage
	prevLocale := sess.Locale

	handler, err := s.dialogue.Resolve(sess.Stage)
	if err != nil {
		return nil, err
	}
	res, err := handler(ctx, sess, in)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", prevStage, err)
	}

	reply, choices, targetStage := s.settleTurn(ctx, sess, res)

	if res.CreateTicket {
		reply = s.createTicket(ctx, sess, reply, targetStage)
	}

	if res.Reopened {
		if err := s.store.UpdateConversationStatus(ctx, sess.ConversationID, domain.ConversationStatusOpen); err != nil {
			log.Printf("WARN: failed to reopen conversation %s: %v", sess.ConversationID, err)
		}
		s.events.RecordSystemEvent(ctx, sess.ConversationID, domain.SystemEventReopened, nil)
	}

	if sess.Locale != prevLocale {
		if err := s.store.UpdateConversationLocale(ctx, sess.ConversationID, sess.Locale); err != nil {
			log.Printf("WARN: failed to persist locale for conversation %s: %v", sess.ConversationID, err)
		}
	}

	// Feedback is the gate into the terminal stage; record it and close the
	// durable record together.
	if prevStage == stage.Feedback && targetStage == stage.Closed {
		if err := s.store.SetConversationFeedback(ctx, sess.ConversationID, sess.Feedback); err != nil {
			log.Printf("WARN: failed to persist feedback for conversation %s: %v", sess.ConversationID, err)
		}
		if err := s.store.UpdateConversationStatus(ctx, sess.ConversationID, domain.ConversationStatusClosed); err != nil {
			log.Printf("WARN: failed to close conversation %s: %v", sess.ConversationID, err)
		}
	}

	if _, err := s.events.Append(ctx, sess.ConversationID, domain.RoleBot, domain.EventTypeText, botMessagePayload{
		Text:    reply,
		Choices: choices,
		Stage:   targetStage,
	}); err != nil {
		return nil, fmt.Errorf("record bot event: %w", err)
	}

	if targetStage != prevStage {
		s.events.RecordSystemEvent(ctx, sess.ConversationID, domain.SystemEventStageChanged, map[string]string{
			"from": prevStage,
			"to":   targetStage,
		})
	}

	if err := s.store.TouchConversation(ctx, sess.ConversationID); err != nil {
		log.Printf("WARN: failed to touch conversation %s: %v", sess.ConversationID, err)
	}

	sess.Stage = targetStage
	resp := &domain.TurnResponse{
		SessionID:      sess.SessionID,
		ConversationID: sess.ConversationID,
		Stage:          targetStage,
		Reply:          reply,
		Choices:        choices,
	}
	sess.LastResponse = resp
	s.sessions.Put(sess)
	s.coord.MarkProcessed(requestID, resp)
	return resp, nil
}

func (s *Service) recordUserEvent(ctx context.Context, sess *domain.Session, in domain.TurnInput) error {
	typ := domain.EventTypeText
	if in.IsButton() {
		typ = domain.EventTypeButton
	}
	_, err := s.events.Append(ctx, sess.ConversationID, domain.RoleUser, typ, userEventPayload{
		Text:     in.Text,
		ButtonID: in.ButtonID,
		Stage:    sess.Stage,
	})
	return err
}

// settleTurn converts the handler's result into the final reply, choice set
// and target stage. Model output goes through the validator; a governor
// fallback and a deterministic turn both resolve from the stage catalog.
func (s *Service) settleTurn(ctx context.Context, sess *domain.Session, res *dialogue.Result) (string, []domain.Choice, string) {
	targetStage := res.TargetStage

	if res.Raw != nil {
		target, err := stage.Get(targetStage)
		if err != nil {
			// Handlers only name catalog stages; treat a miss as a
			// fallback turn.
			log.Printf("WARN: handler targeted unknown stage %q", targetStage)
			return stage.Apology(sess.Locale), stage.DefaultChoices(sess.Stage, sess.Locale), sess.Stage
		}

		outcome := s.validator.Process(ctx, res.Raw, target, sess.Locale, sess.Skill)
		for _, note := range outcome.Notes {
			s.events.RecordSystemEvent(ctx, sess.ConversationID, note.Kind, note.Payload)
		}
		if outcome.RedirectEscalate {
			targetStage = stage.EscalateOffer
		}
		return outcome.Reply, outcome.Choices, targetStage
	}

	if res.Fallback {
		cause := ""
		if res.Cause != nil {
			cause = res.Cause.Error()
		}
		s.events.RecordSystemEvent(ctx, sess.ConversationID, domain.SystemEventFallbackUsed, map[string]string{
			"part":  "turn",
			"cause": cause,
		})
		// The failure cause never reaches the user; stay on the current
		// stage with its options so the turn remains answerable.
		return stage.Apology(sess.Locale), stage.DefaultChoices(sess.Stage, sess.Locale), sess.Stage
	}

	return res.Reply, stage.DefaultChoices(targetStage, sess.Locale), targetStage
}

// createTicket runs the escalation side effect and folds the confirmation
// into the reply. A ticket failure keeps the turn alive with an apology; the
// contact details are still on the session for a retry.
func (s *Service) createTicket(ctx context.Context, sess *domain.Session, reply, targetStage string) string {
	ticketID, err := s.escalation.CreateTicket(ctx, sess.ConversationID, escalation.ReasonUserRequested, sess)
	if err != nil {
		log.Printf("WARN: failed to create ticket for conversation %s: %v", sess.ConversationID, err)
		return stage.Apology(sess.Locale)
	}

	s.events.RecordSystemEvent(ctx, sess.ConversationID, domain.SystemEventTicketCreated, map[string]string{
		"ticket_id": ticketID,
	})
	return stage.TicketAck(sess.Locale) + ticketID + "\n\n" + stage.PromptFor(targetStage, sess.Locale)
}
