package dialogue

import (
	"context"
	"strings"

	"github.com/stihelp/orchestrator/internal/domain"
	"github.com/stihelp/orchestrator/internal/stage"
)

// reprompt keeps the session on its current stage and repeats its prompt.
// Used whenever the input does not match what the stage expects. Model
// stages carry no scripted prompt; the apology copy stands in there.
func reprompt(sess *domain.Session) *Result {
	reply := stage.PromptFor(sess.Stage, sess.Locale)
	if reply == "" {
		reply = stage.Apology(sess.Locale)
	}
	return &Result{
		Reply:       reply,
		TargetStage: sess.Stage,
	}
}

// advance moves to target with that stage's scripted prompt as the reply.
func advance(sess *domain.Session, target string) *Result {
	return &Result{
		Reply:       stage.PromptFor(target, sess.Locale),
		TargetStage: target,
	}
}

func (r *Registry) handleLanguageSelect(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	switch in.ButtonID {
	case stage.BtnLangEsAR:
		sess.Locale = stage.LocaleEsAR
	case stage.BtnLangEsES:
		sess.Locale = stage.LocaleEsES
	case stage.BtnLangEn:
		sess.Locale = stage.LocaleEn
	default:
		return reprompt(sess), nil
	}
	return advance(sess, stage.NameCapture), nil
}

func (r *Registry) handleNameCapture(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	if in.ButtonID == stage.BtnNoName {
		sess.Name = ""
		return advance(sess, stage.SkillLevel), nil
	}
	name := strings.TrimSpace(in.Text)
	if name == "" || in.IsButton() {
		return reprompt(sess), nil
	}
	sess.Name = clip(name, 80)

	res := advance(sess, stage.SkillLevel)
	res.Reply = stage.NameAck(sess.Locale, sess.Name) + res.Reply
	return res, nil
}

func (r *Registry) handleSkillLevel(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	switch in.ButtonID {
	case stage.BtnLevelBasic:
		sess.Skill = domain.SkillLevelBasic
	case stage.BtnLevelMedium:
		sess.Skill = domain.SkillLevelMedium
	case stage.BtnLevelAdvanced:
		sess.Skill = domain.SkillLevelAdvanced
	default:
		return reprompt(sess), nil
	}
	return advance(sess, stage.IntentSelect), nil
}

func (r *Registry) handleIntentSelect(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	switch in.ButtonID {
	case stage.BtnHelp:
		sess.Intent = domain.IntentProblem
		return advance(sess, stage.ProblemCapture), nil
	case stage.BtnTask:
		sess.Intent = domain.IntentTask
		return advance(sess, stage.TaskCapture), nil
	default:
		return reprompt(sess), nil
	}
}

func (r *Registry) handleDeviceCapture(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	device := strings.TrimSpace(in.Text)
	if device == "" {
		return reprompt(sess), nil
	}
	sess.Device = clip(device, 120)

	// Entering the diagnostic stage generates its first model content.
	return r.modelTurn(ctx, sess, stage.Diagnostic, diagnosticEntryPrompt, in.Text)
}

func (r *Registry) handleEscalateOffer(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	switch in.ButtonID {
	case stage.BtnYes:
		return advance(sess, stage.ContactEmail), nil
	case stage.BtnNo:
		return advance(sess, stage.Feedback), nil
	default:
		return reprompt(sess), nil
	}
}

func (r *Registry) handleContactEmail(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	email := strings.TrimSpace(in.Text)
	if email == "" || !strings.Contains(email, "@") || strings.ContainsAny(email, " \t") {
		return reprompt(sess), nil
	}
	sess.ContactEmail = email
	return advance(sess, stage.ContactPhone), nil
}

func (r *Registry) handleContactPhone(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	phone := strings.TrimSpace(in.Text)
	if phone == "" || !containsDigit(phone) {
		return reprompt(sess), nil
	}
	sess.ContactPhone = phone

	res := advance(sess, stage.Feedback)
	res.CreateTicket = true
	return res, nil
}

func (r *Registry) handleFeedback(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	switch in.ButtonID {
	case stage.BtnFeedbackGood:
		sess.Feedback = domain.FeedbackPositive
	case stage.BtnFeedbackBad:
		sess.Feedback = domain.FeedbackNegative
	default:
		return reprompt(sess), nil
	}
	return advance(sess, stage.Closed), nil
}

// handleClosed is the terminal stage. Stale submissions re-echo the closure
// instead of resetting the dialogue; only an explicit reopen signal leaves.
func (r *Registry) handleClosed(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error) {
	if in.ButtonID == stage.BtnReopen {
		res := advance(sess, stage.IntentSelect)
		res.Reopened = true
		return res, nil
	}
	return reprompt(sess), nil
}

// clip caps free-text input at max runes, never splitting a multibyte rune.
func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
