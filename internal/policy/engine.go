// Package policy evaluates untrusted dialogue text against the content
// guard: data-destructive instructions and physical-risk guidance are caught
// here, in rego, so support staff can tune the keyword families without a
// rebuild.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the content guard.
const (
	DecisionAllow    = "allow"
	DecisionBlock    = "block"    // destructive content for a non-advanced user
	DecisionEscalate = "escalate" // physical risk: redirect into escalation
)

// Engine is the prepared rego query for the content guard.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine compiles the policy content into an evaluable query.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.content_guard.decision"),
		rego.Module("content_guard.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// GuardInput is the document handed to the policy.
type GuardInput struct {
	Text       string `json:"text"`
	SkillLevel string `json:"skill_level"`
}

// Evaluate runs the content guard over one piece of text. The text must be
// sanitized but NOT yet truncated: truncation first would risk false
// negatives from mid-sentence cuts.
func (e *Engine) Evaluate(ctx context.Context, input GuardInput) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionAllow, nil
}

// DefaultPolicy is the shipped content guard. Keyword families cover disk
// formatting/partitioning, firmware and credential changes, and physical
// interventions, in the three supported locales.
const DefaultPolicy = `
package content_guard

import rego.v1

default decision := "allow"

decision := "escalate" if physical_match

decision := "block" if {
	not physical_match
	destructive_match
	input.skill_level != "advanced"
}

destructive_keywords := [
	"format the drive",
	"format the disk",
	"formatear el disco",
	"formatea el disco",
	"formatear la unidad",
	"diskpart",
	"fdisk",
	"mkfs",
	"repartition",
	"particionar",
	"reparticionar",
	"delete the partition",
	"eliminar la particion",
	"eliminar la partición",
	"wipe the drive",
	"borrar todo el disco",
	"factory reset",
	"restablecimiento de fabrica",
	"restablecimiento de fábrica",
	"flash the bios",
	"flashear la bios",
	"update the firmware",
	"actualizar el firmware",
	"bios password",
	"contraseña de bios",
	"reset the admin password",
	"restablecer la contraseña de administrador",
]

physical_keywords := [
	"open the case",
	"open up the laptop",
	"abrir el gabinete",
	"abrir la notebook",
	"abrir el equipo",
	"remove the battery",
	"quitar la bateria",
	"quitar la batería",
	"remove the drive",
	"quitar el disco",
	"disassemble",
	"desarmar el equipo",
	"unplug the ram",
	"quitar la memoria ram",
]

destructive_match if {
	some kw in destructive_keywords
	contains(lower(input.text), kw)
}

physical_match if {
	some kw in physical_keywords
	contains(lower(input.text), kw)
}
`
