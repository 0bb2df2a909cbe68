// Package stage holds the static contract table: one entry per dialogue
// stage, naming its kind (scripted or model-governed), the choice tokens it
// may ever present, its default choices and its prompt text per locale.
package stage

// Stage names. Every target a handler can produce resolves against this set.
const (
	LanguageSelect = "language_select"
	NameCapture    = "name_capture"
	SkillLevel     = "skill_level"
	IntentSelect   = "intent_select"
	ProblemCapture = "problem_capture"
	TaskCapture    = "task_capture"
	DeviceCapture  = "device_capture"
	Diagnostic     = "diagnostic"
	FollowupQA     = "followup_qa"
	EscalateOffer  = "escalate_offer"
	ContactEmail   = "contact_email"
	ContactPhone   = "contact_phone"
	Feedback       = "feedback"
	Closed         = "closed"
)

// Button tokens (global catalog). Per-stage permitted sets are subsets.
const (
	BtnLangEsAR      = "BTN_LANG_ES_AR"
	BtnLangEsES      = "BTN_LANG_ES_ES"
	BtnLangEn        = "BTN_LANG_EN"
	BtnNoName        = "BTN_NO_NAME"
	BtnLevelBasic    = "BTN_LEVEL_BASIC"
	BtnLevelMedium   = "BTN_LEVEL_MEDIUM"
	BtnLevelAdvanced = "BTN_LEVEL_ADVANCED"
	BtnHelp          = "BTN_HELP"
	BtnTask          = "BTN_TASK"
	BtnTestsDone     = "BTN_TESTS_DONE"
	BtnTestsFail     = "BTN_TESTS_FAIL"
	BtnSolved        = "BTN_SOLVED"
	BtnEscalate      = "BTN_ESCALATE"
	BtnYes           = "BTN_YES"
	BtnNo            = "BTN_NO"
	BtnFeedbackGood  = "BTN_FEEDBACK_GOOD"
	BtnFeedbackBad   = "BTN_FEEDBACK_BAD"
	BtnReopen        = "BTN_REOPEN"
)

// Supported locales. es-AR is the default, matching the deployed widget.
const (
	LocaleEsAR = "es-AR"
	LocaleEsES = "es-ES"
	LocaleEn   = "en"
)

// Locales lists the supported locale codes.
func Locales() []string {
	return []string{LocaleEsAR, LocaleEsES, LocaleEn}
}

// NormalizeLocale maps an arbitrary locale string onto a supported one.
func NormalizeLocale(locale string) string {
	switch locale {
	case LocaleEsAR, LocaleEsES, LocaleEn:
		return locale
	case "es":
		return LocaleEsES
	default:
		return LocaleEsAR
	}
}

var labels = map[string]map[string]string{
	BtnLangEsAR:      {LocaleEsAR: "Español (Argentina)", LocaleEsES: "Español (Argentina)", LocaleEn: "Spanish (Argentina)"},
	BtnLangEsES:      {LocaleEsAR: "Español (España)", LocaleEsES: "Español (España)", LocaleEn: "Spanish (Spain)"},
	BtnLangEn:        {LocaleEsAR: "Inglés", LocaleEsES: "Inglés", LocaleEn: "English"},
	BtnNoName:        {LocaleEsAR: "Prefiero no decirlo", LocaleEsES: "Prefiero no decirlo", LocaleEn: "I'd rather not say"},
	BtnLevelBasic:    {LocaleEsAR: "Básico", LocaleEsES: "Básico", LocaleEn: "Basic"},
	BtnLevelMedium:   {LocaleEsAR: "Intermedio", LocaleEsES: "Intermedio", LocaleEn: "Intermediate"},
	BtnLevelAdvanced: {LocaleEsAR: "Avanzado", LocaleEsES: "Avanzado", LocaleEn: "Advanced"},
	BtnHelp:          {LocaleEsAR: "Tengo un problema", LocaleEsES: "Tengo un problema", LocaleEn: "I have a problem"},
	BtnTask:          {LocaleEsAR: "Quiero hacer algo", LocaleEsES: "Quiero hacer algo", LocaleEn: "I want to do something"},
	BtnTestsDone:     {LocaleEsAR: "Ya probé todo", LocaleEsES: "Ya lo he probado todo", LocaleEn: "I tried everything"},
	BtnTestsFail:     {LocaleEsAR: "No funcionó", LocaleEsES: "No ha funcionado", LocaleEn: "It didn't work"},
	BtnSolved:        {LocaleEsAR: "¡Se solucionó!", LocaleEsES: "¡Solucionado!", LocaleEn: "It's solved!"},
	BtnEscalate:      {LocaleEsAR: "Hablar con una persona", LocaleEsES: "Hablar con una persona", LocaleEn: "Talk to a human"},
	BtnYes:           {LocaleEsAR: "Sí", LocaleEsES: "Sí", LocaleEn: "Yes"},
	BtnNo:            {LocaleEsAR: "No", LocaleEsES: "No", LocaleEn: "No"},
	BtnFeedbackGood:  {LocaleEsAR: "Me sirvió", LocaleEsES: "Me ha servido", LocaleEn: "It helped"},
	BtnFeedbackBad:   {LocaleEsAR: "No me sirvió", LocaleEsES: "No me ha servido", LocaleEn: "It didn't help"},
	BtnReopen:        {LocaleEsAR: "Retomar la conversación", LocaleEsES: "Retomar la conversación", LocaleEn: "Reopen the conversation"},
}

// Label resolves a token's label for a locale. Unknown tokens fall back to
// the token itself so a backfilled choice is still renderable.
func Label(token, locale string) string {
	byLocale, ok := labels[token]
	if !ok {
		return token
	}
	if l, ok := byLocale[NormalizeLocale(locale)]; ok {
		return l
	}
	return token
}

// InCatalog reports whether a token belongs to the global catalog.
func InCatalog(token string) bool {
	_, ok := labels[token]
	return ok
}

// Catalog returns all known tokens.
func Catalog() []string {
	out := make([]string, 0, len(labels))
	for t := range labels {
		out = append(out, t)
	}
	return out
}
