package stage

import (
	"errors"
	"fmt"

	"github.com/stihelp/orchestrator/internal/domain"
)

// Type says whether a stage's content is scripted or produced by the
// completion service.
type Type string

const (
	TypeDeterministic Type = "deterministic"
	TypeModel         Type = "model"
)

// ErrNotFound is returned for a stage name absent from the table.
var ErrNotFound = errors.New("stage: contract not found")

// Contract describes one stage: its kind, the tokens it may ever present,
// the defaults substituted when filtering leaves nothing, and scripted
// prompt text per locale.
type Contract struct {
	Name         string
	Type         Type
	AllowChoices bool
	Permitted    []string
	Defaults     []string
	Prompt       map[string]string
}

// Permits reports whether the contract allows presenting the given token.
func (c Contract) Permits(token string) bool {
	for _, t := range c.Permitted {
		if t == token {
			return true
		}
	}
	return false
}

var table = map[string]Contract{
	LanguageSelect: {
		Name:         LanguageSelect,
		Type:         TypeDeterministic,
		AllowChoices: true,
		Permitted:    []string{BtnLangEsAR, BtnLangEsES, BtnLangEn},
		Defaults:     []string{BtnLangEsAR, BtnLangEsES, BtnLangEn},
		Prompt: map[string]string{
			LocaleEsAR: "¡Hola! Soy el asistente técnico. ¿En qué idioma preferís que hablemos?",
			LocaleEsES: "¡Hola! Soy el asistente técnico. ¿En qué idioma prefieres que hablemos?",
			LocaleEn:   "Hi! I'm the technical assistant. Which language would you like to use?",
		},
	},
	NameCapture: {
		Name: NameCapture,
		Type: TypeDeterministic,
		// Free-text stage. BTN_NO_NAME stays permitted so the widget's
		// skip affordance is still a legal input, but no choices are shown.
		AllowChoices: false,
		Permitted:    []string{BtnNoName},
		Prompt: map[string]string{
			LocaleEsAR: "¡Genial! ¿Cómo te llamás? Si preferís, podés seguir sin decirme tu nombre.",
			LocaleEsES: "¡Genial! ¿Cómo te llamas? Si lo prefieres, puedes continuar sin decirme tu nombre.",
			LocaleEn:   "Great! What's your name? You can also continue without telling me.",
		},
	},
	SkillLevel: {
		Name:         SkillLevel,
		Type:         TypeDeterministic,
		AllowChoices: true,
		Permitted:    []string{BtnLevelBasic, BtnLevelMedium, BtnLevelAdvanced},
		Defaults:     []string{BtnLevelBasic, BtnLevelMedium, BtnLevelAdvanced},
		Prompt: map[string]string{
			LocaleEsAR: "¿Cuánta experiencia tenés con tecnología? Esto me ayuda a ajustar las explicaciones.",
			LocaleEsES: "¿Cuánta experiencia tienes con tecnología? Esto me ayuda a ajustar las explicaciones.",
			LocaleEn:   "How experienced are you with technology? This helps me calibrate my explanations.",
		},
	},
	IntentSelect: {
		Name:         IntentSelect,
		Type:         TypeDeterministic,
		AllowChoices: true,
		Permitted:    []string{BtnHelp, BtnTask},
		Defaults:     []string{BtnHelp, BtnTask},
		Prompt: map[string]string{
			LocaleEsAR: "Contame, ¿qué necesitás hoy?",
			LocaleEsES: "Cuéntame, ¿qué necesitas hoy?",
			LocaleEn:   "Tell me, what do you need today?",
		},
	},
	ProblemCapture: {
		Name:         ProblemCapture,
		Type:         TypeModel,
		AllowChoices: true,
		Permitted:    []string{BtnEscalate},
		Defaults:     []string{BtnEscalate},
		Prompt: map[string]string{
			LocaleEsAR: "Describime el problema con tus palabras.",
			LocaleEsES: "Descríbeme el problema con tus palabras.",
			LocaleEn:   "Describe the problem in your own words.",
		},
	},
	TaskCapture: {
		Name:         TaskCapture,
		Type:         TypeModel,
		AllowChoices: true,
		Permitted:    []string{BtnEscalate},
		Defaults:     []string{BtnEscalate},
		Prompt: map[string]string{
			LocaleEsAR: "Contame qué querés lograr y con qué equipo.",
			LocaleEsES: "Cuéntame qué quieres lograr y con qué equipo.",
			LocaleEn:   "Tell me what you want to accomplish and on which device.",
		},
	},
	DeviceCapture: {
		Name:         DeviceCapture,
		Type:         TypeDeterministic,
		AllowChoices: false,
		Prompt: map[string]string{
			LocaleEsAR: "¿Con qué equipo estamos trabajando? Marca y modelo si los conocés.",
			LocaleEsES: "¿Con qué equipo estamos trabajando? Marca y modelo si los conoces.",
			LocaleEn:   "Which device are we working with? Make and model if you know them.",
		},
	},
	Diagnostic: {
		Name:         Diagnostic,
		Type:         TypeModel,
		AllowChoices: true,
		Permitted:    []string{BtnTestsDone, BtnTestsFail, BtnSolved, BtnEscalate},
		Defaults:     []string{BtnTestsDone, BtnTestsFail, BtnSolved},
	},
	FollowupQA: {
		Name:         FollowupQA,
		Type:         TypeModel,
		AllowChoices: true,
		Permitted:    []string{BtnSolved, BtnEscalate},
		Defaults:     []string{BtnSolved, BtnEscalate},
	},
	EscalateOffer: {
		Name:         EscalateOffer,
		Type:         TypeDeterministic,
		AllowChoices: true,
		Permitted:    []string{BtnYes, BtnNo},
		Defaults:     []string{BtnYes, BtnNo},
		Prompt: map[string]string{
			LocaleEsAR: "¿Querés que un técnico humano siga el caso desde acá?",
			LocaleEsES: "¿Quieres que un técnico humano continúe el caso desde aquí?",
			LocaleEn:   "Would you like a human technician to take it from here?",
		},
	},
	ContactEmail: {
		Name:         ContactEmail,
		Type:         TypeDeterministic,
		AllowChoices: false,
		Prompt: map[string]string{
			LocaleEsAR: "Perfecto. ¿A qué correo te contactamos?",
			LocaleEsES: "Perfecto. ¿A qué correo te contactamos?",
			LocaleEn:   "Great. What e-mail address should we use to reach you?",
		},
	},
	ContactPhone: {
		Name:         ContactPhone,
		Type:         TypeDeterministic,
		AllowChoices: false,
		Prompt: map[string]string{
			LocaleEsAR: "¿Y un teléfono, por si el correo no llega?",
			LocaleEsES: "¿Y un teléfono, por si el correo no llega?",
			LocaleEn:   "And a phone number, in case the e-mail bounces?",
		},
	},
	Feedback: {
		Name:         Feedback,
		Type:         TypeDeterministic,
		AllowChoices: true,
		Permitted:    []string{BtnFeedbackGood, BtnFeedbackBad},
		Defaults:     []string{BtnFeedbackGood, BtnFeedbackBad},
		Prompt: map[string]string{
			LocaleEsAR: "Antes de cerrar, ¿te sirvió la asistencia?",
			LocaleEsES: "Antes de cerrar, ¿te ha servido la asistencia?",
			LocaleEn:   "Before we close, did this help?",
		},
	},
	Closed: {
		Name:         Closed,
		Type:         TypeDeterministic,
		AllowChoices: true,
		Permitted:    []string{BtnReopen},
		Defaults:     []string{BtnReopen},
		Prompt: map[string]string{
			LocaleEsAR: "La conversación quedó cerrada. Si necesitás algo más, podés retomarla.",
			LocaleEsES: "La conversación ha quedado cerrada. Si necesitas algo más, puedes retomarla.",
			LocaleEn:   "This conversation is closed. If you need anything else, you can reopen it.",
		},
	},
}

// Get looks up the contract for a stage name.
func Get(name string) (Contract, error) {
	c, ok := table[name]
	if !ok {
		return Contract{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return c, nil
}

// Names returns every stage name in the table.
func Names() []string {
	out := make([]string, 0, len(table))
	for n := range table {
		out = append(out, n)
	}
	return out
}

// PromptFor returns the scripted prompt for a stage in the given locale,
// falling back to es-AR when the locale has no entry.
func PromptFor(name, locale string) string {
	c, ok := table[name]
	if !ok || c.Prompt == nil {
		return ""
	}
	if p, ok := c.Prompt[NormalizeLocale(locale)]; ok {
		return p
	}
	return c.Prompt[LocaleEsAR]
}

// DefaultChoices materializes a stage's default choice list for a locale,
// ranked 1..n. Stages that show no choices get an empty (non-nil) slice.
func DefaultChoices(name, locale string) []domain.Choice {
	c, ok := table[name]
	if !ok || !c.AllowChoices {
		return []domain.Choice{}
	}
	out := make([]domain.Choice, 0, len(c.Defaults))
	for i, token := range c.Defaults {
		out = append(out, domain.Choice{Token: token, Label: Label(token, locale), Rank: i + 1})
	}
	return out
}
