// Package dialogue holds the per-stage handlers. Deterministic handlers are
// small pure functions over the session; model-governed handlers go through
// the governor, and only through the governor.
package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stihelp/orchestrator/internal/adapter/llm"
	"github.com/stihelp/orchestrator/internal/domain"
	"github.com/stihelp/orchestrator/internal/governor"
	"github.com/stihelp/orchestrator/internal/stage"
)

// ErrNoHandler means the session is parked on a stage the table does not
// know, which indicates a corrupted session rather than bad user input.
var ErrNoHandler = errors.New("dialogue: no handler for stage")

// Result is what a handler hands back to the orchestrator. Raw carries the
// unvalidated completion document when the turn was model-governed; the
// orchestrator must run it through the validator before anything else
// touches it.
type Result struct {
	Reply       string
	TargetStage string

	// Model-governed outcome: exactly one of Raw / Fallback is meaningful.
	Raw      json.RawMessage
	Fallback bool
	Cause    error // governor classification behind a fallback

	// Side-effect requests for the orchestrator.
	CreateTicket bool
	Reopened     bool
}

// Handler processes one turn for its stage.
type Handler func(ctx context.Context, sess *domain.Session, in domain.TurnInput) (*Result, error)

// Registry resolves stages to handlers and owns the model-call plumbing.
type Registry struct {
	governor *governor.Governor
	client   llm.CompletionClient
	handlers map[string]Handler
}

// NewRegistry wires the handler table.
func NewRegistry(g *governor.Governor, client llm.CompletionClient) *Registry {
	r := &Registry{governor: g, client: client}
	r.handlers = map[string]Handler{
		stage.LanguageSelect: r.handleLanguageSelect,
		stage.NameCapture:    r.handleNameCapture,
		stage.SkillLevel:     r.handleSkillLevel,
		stage.IntentSelect:   r.handleIntentSelect,
		stage.ProblemCapture: r.handleProblemCapture,
		stage.TaskCapture:    r.handleTaskCapture,
		stage.DeviceCapture:  r.handleDeviceCapture,
		stage.Diagnostic:     r.handleDiagnostic,
		stage.FollowupQA:     r.handleFollowupQA,
		stage.EscalateOffer:  r.handleEscalateOffer,
		stage.ContactEmail:   r.handleContactEmail,
		stage.ContactPhone:   r.handleContactPhone,
		stage.Feedback:       r.handleFeedback,
		stage.Closed:         r.handleClosed,
	}
	return r
}

// Resolve returns the handler for a stage.
func (r *Registry) Resolve(stageName string) (Handler, error) {
	h, ok := r.handlers[stageName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, stageName)
	}
	return h, nil
}
