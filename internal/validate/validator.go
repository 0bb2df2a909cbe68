// Package validate makes untrusted completion output safe to store and
// display: schema checks, choice allow-listing and normalization,
// destructive-intent detection via the content guard, and text
// sanitization. One bad field never discards a whole turn; the valid part
// is kept and only the invalid part falls back.
package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/stihelp/orchestrator/internal/adapter/llm"
	"github.com/stihelp/orchestrator/internal/domain"
	"github.com/stihelp/orchestrator/internal/policy"
	"github.com/stihelp/orchestrator/internal/stage"
)

// ErrSchemaInvalid marks a completion document that failed validation.
var ErrSchemaInvalid = errors.New("validate: completion document failed schema")

// completionSchema is the contract every completion document must satisfy:
// a non-empty reply, and choices (when present) each carrying a stable
// token.
const completionSchema = `{
	"type": "object",
	"required": ["reply"],
	"properties": {
		"reply": {"type": "string", "minLength": 1},
		"choices": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["token", "label"],
				"properties": {
					"token": {"type": "string", "minLength": 1},
					"label": {"type": "string", "minLength": 1}
				}
			}
		}
	}
}`

// FailureKind classifies an unrecoverable or partially recovered turn for
// the system transcript. Never shown to the user.
const (
	FailureSchemaInvalid = "schema_invalid"
	FailureEmptyReply    = "empty_reply"
)

// Config tunes the validator.
type Config struct {
	MaxReplyLen        int
	MaxChoices         int
	AllowedLinkDomains []string
}

// Validator is safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
	guard  *policy.Engine
	cfg    Config
}

// New compiles the completion schema and wires the content guard.
func New(guard *policy.Engine, cfg Config) (*Validator, error) {
	if cfg.MaxChoices <= 0 {
		cfg.MaxChoices = 4
	}
	if cfg.MaxReplyLen <= 0 {
		cfg.MaxReplyLen = 1200
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("completion.schema.json", strings.NewReader(completionSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("completion.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{
		schema: schema,
		guard:  guard,
		cfg:    cfg,
	}, nil
}

// ValidateSchema checks the full document against the schema and decodes it.
func (v *Validator) ValidateSchema(raw json.RawMessage) (*llm.CompletionReply, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	if err := v.schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}

	var reply llm.CompletionReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	return &reply, nil
}

// Salvage recovers the valid parts of a document that failed full-schema
// validation: a usable reply, choices that individually carry a token, or
// both. Returns false when nothing is recoverable.
func (v *Validator) Salvage(raw json.RawMessage) (*llm.CompletionReply, bool) {
	var loose struct {
		Reply   json.RawMessage   `json:"reply"`
		Choices []json.RawMessage `json:"choices"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, false
	}

	out := &llm.CompletionReply{}

	var reply string
	if loose.Reply != nil && json.Unmarshal(loose.Reply, &reply) == nil {
		out.Reply = reply
	}

	for _, rawChoice := range loose.Choices {
		var ch llm.ChoiceOption
		if json.Unmarshal(rawChoice, &ch) != nil {
			continue
		}
		if ch.Token == "" {
			continue
		}
		out.Choices = append(out.Choices, ch)
	}

	if out.Reply == "" && len(out.Choices) == 0 {
		return nil, false
	}
	return out, true
}

// FilterChoices drops tokens outside the target stage's permitted set. When
// the stage expects choices and none survive, the stage's first two
// defaults are substituted.
func (v *Validator) FilterChoices(contract stage.Contract, proposed []llm.ChoiceOption) (kept []llm.ChoiceOption, dropped []string) {
	for _, ch := range proposed {
		if contract.Permits(ch.Token) {
			kept = append(kept, ch)
		} else {
			dropped = append(dropped, ch.Token)
		}
	}

	if len(kept) == 0 && contract.AllowChoices && len(proposed) > 0 {
		n := len(contract.Defaults)
		if n > 2 {
			n = 2
		}
		for _, token := range contract.Defaults[:n] {
			kept = append(kept, llm.ChoiceOption{Token: token})
		}
	}
	return kept, dropped
}

// NormalizeChoices deduplicates by token (first wins), caps the list,
// reassigns sequential ranks and backfills labels from the catalog or the
// token itself.
func (v *Validator) NormalizeChoices(proposed []llm.ChoiceOption, locale string) []domain.Choice {
	seen := make(map[string]bool)
	out := make([]domain.Choice, 0, v.cfg.MaxChoices)
	for _, ch := range proposed {
		if seen[ch.Token] {
			continue
		}
		seen[ch.Token] = true

		label := ch.Label
		if label == "" {
			label = stage.Label(ch.Token, locale)
		}
		out = append(out, domain.Choice{
			Token: ch.Token,
			Label: label,
			Rank:  len(out) + 1,
		})
		if len(out) == v.cfg.MaxChoices {
			break
		}
	}
	return out
}

// Note is a validation decision destined for the system transcript.
type Note struct {
	Kind    domain.SystemEventKind
	Payload any
}

// Outcome is the safe result of one model-governed turn.
type Outcome struct {
	Reply            string
	Choices          []domain.Choice
	UsedFallback     bool
	Salvaged         bool
	RedirectEscalate bool
	GuardDecision    string
	Notes            []Note
}

// Process runs the full pipeline over a raw completion document for the
// given target stage. Order matters: scrub first, then the content guard on
// the untruncated text, then truncation.
func (v *Validator) Process(ctx context.Context, raw json.RawMessage, target stage.Contract, locale string, skill domain.SkillLevel) *Outcome {
	out := &Outcome{GuardDecision: policy.DecisionAllow}

	reply, err := v.ValidateSchema(raw)
	if err != nil {
		salvaged, ok := v.Salvage(raw)
		if !ok {
			out.Reply = stage.Apology(locale)
			out.Choices = stage.DefaultChoices(target.Name, locale)
			out.UsedFallback = true
			out.Notes = append(out.Notes,
				Note{Kind: domain.SystemEventValidationFailed, Payload: map[string]string{"kind": FailureSchemaInvalid}},
				Note{Kind: domain.SystemEventFallbackUsed, Payload: map[string]string{"part": "turn"}})
			return out
		}
		reply = salvaged
		out.Salvaged = true
		out.Notes = append(out.Notes,
			Note{Kind: domain.SystemEventValidationFailed, Payload: map[string]string{"kind": FailureSchemaInvalid, "salvaged": "true"}})
	}

	text := v.scrub(reply.Reply)

	decision, guardErr := v.guard.Evaluate(ctx, policy.GuardInput{Text: text, SkillLevel: string(skill)})
	if guardErr != nil {
		// Guard failure is treated as a block: safe over available.
		decision = policy.DecisionBlock
		out.Notes = append(out.Notes,
			Note{Kind: domain.SystemEventValidationFailed, Payload: map[string]string{"kind": "guard_error"}})
	}
	out.GuardDecision = decision

	switch decision {
	case policy.DecisionBlock, policy.DecisionEscalate:
		out.Reply = stage.EscalationGuard(locale)
		out.Choices = stage.DefaultChoices(stage.EscalateOffer, locale)
		out.RedirectEscalate = true
		out.Notes = append(out.Notes,
			Note{Kind: domain.SystemEventContentBlocked, Payload: map[string]string{"decision": decision, "skill": string(skill)}})
		return out
	}

	text = v.truncate(text)
	if text == "" {
		text = stage.Apology(locale)
		out.UsedFallback = true
		out.Notes = append(out.Notes,
			Note{Kind: domain.SystemEventValidationFailed, Payload: map[string]string{"kind": FailureEmptyReply}},
			Note{Kind: domain.SystemEventFallbackUsed, Payload: map[string]string{"part": "reply"}})
	}
	out.Reply = text

	kept, droppedTokens := v.FilterChoices(target, reply.Choices)
	if len(droppedTokens) > 0 {
		out.Notes = append(out.Notes,
			Note{Kind: domain.SystemEventChoicesDropped, Payload: map[string]any{"tokens": droppedTokens}})
	}
	out.Choices = v.NormalizeChoices(kept, locale)

	// A model stage that proposed nothing still presents its defaults.
	if len(out.Choices) == 0 && target.AllowChoices {
		out.Choices = stage.DefaultChoices(target.Name, locale)
	}

	return out
}
