package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stihelp/orchestrator/internal/adapter/llm"
	"github.com/stihelp/orchestrator/internal/domain"
	"github.com/stihelp/orchestrator/internal/governor"
	"github.com/stihelp/orchestrator/internal/stage"
)

// promptKind selects the instruction block for a model-governed turn. The
// exact wording belongs to the prompt maintainers; what matters here is
// that it is fixed per (kind, locale) so transcript fingerprints are
// comparable across turns.
type promptKind string

const (
	problemAckPrompt      promptKind = "problem_ack"
	taskGuidePrompt       promptKind = "task_guide"
	diagnosticEntryPrompt promptKind = "diagnostic_entry"
	diagnosticMorePrompt  promptKind = "diagnostic_more"
	followupAnswerPrompt  promptKind = "followup_answer"
)

var promptInstructions = map[promptKind]string{
	problemAckPrompt:      "Acknowledge the described problem and ask which device it happens on. Respond as JSON {reply, choices?}.",
	taskGuidePrompt:       "Give short numbered guidance for the requested task, adjusted to the user's level. Respond as JSON {reply, choices?}.",
	diagnosticEntryPrompt: "Propose the two or three safest first checks for this problem and device. Respond as JSON {reply, choices?}.",
	diagnosticMorePrompt:  "The first checks did not resolve it. Propose the next safe checks. Respond as JSON {reply, choices?}.",
	followupAnswerPrompt:  "Answer the follow-up question in the context of the ongoing case. Respond as JSON {reply, choices?}.",
}

// buildRequest assembles the completion request from the session's captured
// attributes. The raw prompt never reaches the transcript; only its hash.
func buildRequest(sess *domain.Session, target string, kind promptKind, userText string) *llm.CompletionRequest {
	var sb strings.Builder
	sb.WriteString(promptInstructions[kind])
	sb.WriteString(fmt.Sprintf(" Locale: %s. Skill: %s.", sess.Locale, sess.Skill))
	if sess.Name != "" {
		sb.WriteString(" User name: " + sess.Name + ".")
	}
	if sess.Device != "" {
		sb.WriteString(" Device: " + sess.Device + ".")
	}
	if sess.Problem != "" {
		sb.WriteString(" Problem: " + sess.Problem + ".")
	}

	messages := []llm.Message{{Role: "system", Content: sb.String()}}
	if userText != "" {
		messages = append(messages, llm.Message{Role: "user", Content: userText})
	}

	return &llm.CompletionRequest{
		Locale:   sess.Locale,
		Stage:    target,
		Messages: messages,
	}
}

// modelTurn runs one governed completion call for the target stage. A
// governor refusal or call failure comes back as a fallback result, never
// as an error: the turn always completes deterministically.
func (r *Registry) modelTurn(ctx context.Context, sess *domain.Session, target string, kind promptKind, userText string) (*Result, error) {
	req := buildRequest(sess, target, kind, userText)

	raw, err := r.governor.GuardedCall(ctx, sess.ConversationID, target, governor.Fingerprint(req), func(callCtx context.Context) (json.RawMessage, error) {
		return r.client.Complete(callCtx, req)
	})
	if err != nil {
		return &Result{TargetStage: target, Fallback: true, Cause: err}, nil
	}
	return &Result{TargetStage: target, Raw: raw}, nil
}

func (r *Registry) handleProblemCapture(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return reprompt(sess), nil
	}
	sess.Problem = text
	return r.modelTurn(ctx, sess, stage.DeviceCapture, problemAckPrompt, text)
}

func (r *Registry) handleTaskCapture(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return reprompt(sess), nil
	}
	sess.Problem = text
	return r.modelTurn(ctx, sess, stage.FollowupQA, taskGuidePrompt, text)
}

func (r *Registry) handleDiagnostic(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	switch in.ButtonID {
	case stage.BtnSolved:
		return advance(sess, stage.Feedback), nil
	case stage.BtnTestsFail, stage.BtnEscalate:
		return advance(sess, stage.EscalateOffer), nil
	case stage.BtnTestsDone:
		return r.modelTurn(ctx, sess, stage.FollowupQA, diagnosticMorePrompt, "")
	}
	if strings.TrimSpace(in.Text) == "" {
		return reprompt(sess), nil
	}
	return r.modelTurn(ctx, sess, stage.Diagnostic, diagnosticMorePrompt, in.Text)
}

func (r *Registry) handleFollowupQA(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	switch in.ButtonID {
	case stage.BtnSolved:
		return advance(sess, stage.Feedback), nil
	case stage.BtnEscalate:
		return advance(sess, stage.EscalateOffer), nil
	}
	if strings.TrimSpace(in.Text) == "" {
		return reprompt(sess), nil
	}
	return r.modelTurn(ctx, sess, stage.FollowupQA, followupAnswerPrompt, in.Text)
}
