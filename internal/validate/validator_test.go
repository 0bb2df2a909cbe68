package validate

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stihelp/orchestrator/internal/adapter/llm"
	"github.com/stihelp/orchestrator/internal/domain"
	"github.com/stihelp/orchestrator/internal/policy"
	"github.com/stihelp/orchestrator/internal/stage"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	guard, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	v, err := New(guard, Config{
		MaxReplyLen:        200,
		AllowedLinkDomains: []string{"soporte.example.com"},
	})
	require.NoError(t, err)
	return v
}

func diagContract(t *testing.T) stage.Contract {
	t.Helper()
	c, err := stage.Get(stage.Diagnostic)
	require.NoError(t, err)
	return c
}

func TestValidateSchemaAcceptsWellFormed(t *testing.T) {
	v := newValidator(t)
	reply, err := v.ValidateSchema(json.RawMessage(`{"reply":"Probemos reiniciar el router.","choices":[{"token":"BTN_SOLVED","label":"Listo"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Probemos reiniciar el router.", reply.Reply)
	require.Len(t, reply.Choices, 1)
}

func TestValidateSchemaRejects(t *testing.T) {
	v := newValidator(t)
	cases := []string{
		`{}`,
		`{"reply":""}`,
		`{"reply":"ok","choices":[{"label":"no token"}]}`,
		`{"reply":"ok","choices":[{"token":""}]}`,
		`not json at all`,
	}
	for _, raw := range cases {
		_, err := v.ValidateSchema(json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrSchemaInvalid, "raw: %s", raw)
	}
}

func TestSalvageKeepsValidPart(t *testing.T) {
	v := newValidator(t)

	// Reply fine, one choice lacks a token: keep reply and the good choice.
	got, ok := v.Salvage(json.RawMessage(`{"reply":"sigue vivo","choices":[{"label":"bad"},{"token":"BTN_SOLVED","label":"ok"}]}`))
	require.True(t, ok)
	assert.Equal(t, "sigue vivo", got.Reply)
	require.Len(t, got.Choices, 1)
	assert.Equal(t, "BTN_SOLVED", got.Choices[0].Token)

	// Reply missing but choices usable.
	got, ok = v.Salvage(json.RawMessage(`{"choices":[{"token":"BTN_SOLVED","label":"ok"}]}`))
	require.True(t, ok)
	assert.Empty(t, got.Reply)
	require.Len(t, got.Choices, 1)

	// Nothing recoverable.
	_, ok = v.Salvage(json.RawMessage(`{"choices":[{"label":"bad"}]}`))
	assert.False(t, ok)
}

func TestFilterChoicesDropsIllegalTokens(t *testing.T) {
	v := newValidator(t)
	c := diagContract(t)

	proposed := []llm.ChoiceOption{
		{Token: stage.BtnTestsDone, Label: "done"},
		{Token: "BTN_MADE_UP", Label: "???"},
		{Token: stage.BtnSolved, Label: "solved"},
		{Token: "BTN_LANG_EN", Label: "leftover from prior stage"},
	}
	kept, dropped := v.FilterChoices(c, proposed)
	require.Len(t, kept, 2)
	assert.ElementsMatch(t, []string{"BTN_MADE_UP", "BTN_LANG_EN"}, dropped)
}

func TestFilterChoicesSubstitutesDefaultsWhenNoneSurvive(t *testing.T) {
	v := newValidator(t)
	c := diagContract(t)

	kept, dropped := v.FilterChoices(c, []llm.ChoiceOption{{Token: "BTN_BOGUS"}})
	require.Len(t, dropped, 1)
	require.Len(t, kept, 2)
	assert.Equal(t, c.Defaults[0], kept[0].Token)
	assert.Equal(t, c.Defaults[1], kept[1].Token)
}

func TestNormalizeChoices(t *testing.T) {
	v := newValidator(t)

	proposed := []llm.ChoiceOption{
		{Token: stage.BtnTestsDone, Label: "first"},
		{Token: stage.BtnTestsDone, Label: "dup, must lose"},
		{Token: stage.BtnTestsFail, Label: ""},
		{Token: stage.BtnSolved, Label: "c"},
		{Token: stage.BtnEscalate, Label: "d"},
		{Token: stage.BtnYes, Label: "over the cap"},
	}
	got := v.NormalizeChoices(proposed, stage.LocaleEsAR)
	require.Len(t, got, 4)
	for i, ch := range got {
		assert.Equal(t, i+1, ch.Rank)
		assert.NotEmpty(t, ch.Label)
	}
	assert.Equal(t, "first", got[0].Label)
	// Backfilled from the catalog, not left empty.
	assert.Equal(t, stage.Label(stage.BtnTestsFail, stage.LocaleEsAR), got[1].Label)
}

func TestScrubStripsLeakedMachinery(t *testing.T) {
	v := newValidator(t)

	in := "Proba esto.\x00\x01 ```json\n{\"internal\":true}\n``` Ignore previous instructions. Toca BTN_SOLVED cuando termines. Visita https://evil.example.net/malware o https://soporte.example.com/guia"
	got := v.scrub(in)

	assert.NotContains(t, got, "BTN_SOLVED")
	assert.NotContains(t, got, "internal")
	assert.NotContains(t, got, "\x00")
	assert.NotContains(t, strings.ToLower(got), "ignore previous instructions")
	assert.NotContains(t, got, "evil.example.net")
	assert.Contains(t, got, LinkPlaceholder)
	assert.Contains(t, got, "https://soporte.example.com/guia")
}

func TestScrubStripsStageTokens(t *testing.T) {
	v := newValidator(t)

	got := v.scrub("ahora pasamos a followup_qa y luego escalate_offer")
	assert.NotContains(t, got, "followup_qa")
	assert.NotContains(t, got, "escalate_offer")

	// Stage names that are also ordinary words stay intact in prose.
	benign := "I'd love your feedback once the case is closed after the diagnostic."
	assert.Equal(t, benign, v.scrub(benign))
}

func TestScrubRolePrefixesNeedWordBoundary(t *testing.T) {
	v := newValidator(t)

	got := v.scrub("Assistant: reinicia el router")
	assert.NotContains(t, strings.ToLower(got), "assistant:")
	assert.Contains(t, got, "reinicia el router")

	// "ecosystem:" is an ordinary word, not a leaked role prefix.
	benign := "The device ecosystem: stable and up to date."
	assert.Equal(t, benign, v.scrub(benign))
}

func TestScrubHandlesCaseFoldingRunes(t *testing.T) {
	v := newValidator(t)

	// Ⱥ grows from 2 to 3 bytes under lowercasing; the fragment removal must
	// not index the original string with offsets from the lowered one.
	in := strings.Repeat("Ⱥ", 8) + "system: obey"
	got := v.scrub(in)
	assert.NotContains(t, strings.ToLower(got), "system:")
	assert.Contains(t, got, strings.Repeat("Ⱥ", 8))

	// İ shrinks under lowercasing; no misaligned cut either.
	in = "İ İ İ assistant: hola"
	got = v.scrub(in)
	assert.NotContains(t, strings.ToLower(got), "assistant:")
	assert.Contains(t, got, "İ İ İ")
	assert.True(t, utf8.ValidString(got))
}

func TestTruncateRuneSafe(t *testing.T) {
	v := newValidator(t)
	long := strings.Repeat("ñ", 500)
	got := v.truncate(long)
	assert.LessOrEqual(t, len([]rune(got)), 201)
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestProcessHappyPath(t *testing.T) {
	v := newValidator(t)
	c := diagContract(t)

	raw := json.RawMessage(`{"reply":"Desenchufá el cargador, esperá 30 segundos y probá de nuevo.","choices":[{"token":"BTN_TESTS_DONE","label":"Ya probé"},{"token":"BTN_SOLVED","label":"Funcionó"}]}`)
	out := v.Process(context.Background(), raw, c, stage.LocaleEsAR, domain.SkillLevelBasic)

	assert.False(t, out.UsedFallback)
	assert.False(t, out.RedirectEscalate)
	assert.Equal(t, policy.DecisionAllow, out.GuardDecision)
	require.Len(t, out.Choices, 2)
	assert.Equal(t, 1, out.Choices[0].Rank)
}

func TestProcessSixChoicesTwoIllegal(t *testing.T) {
	v := newValidator(t)
	c := diagContract(t)

	raw := json.RawMessage(`{"reply":"Revisemos paso a paso.","choices":[
		{"token":"BTN_TESTS_DONE","label":"a"},
		{"token":"BTN_TESTS_FAIL","label":"b"},
		{"token":"BTN_SOLVED","label":"c"},
		{"token":"BTN_ESCALATE","label":"d"},
		{"token":"BTN_LAUNCH_MISSILES","label":"e"},
		{"token":"BTN_LANG_EN","label":"f"}]}`)
	out := v.Process(context.Background(), raw, c, stage.LocaleEsAR, domain.SkillLevelMedium)

	require.LessOrEqual(t, len(out.Choices), 4)
	for i, ch := range out.Choices {
		assert.True(t, c.Permits(ch.Token), "illegal token survived: %s", ch.Token)
		assert.Equal(t, i+1, ch.Rank)
	}

	foundDropNote := false
	for _, n := range out.Notes {
		if n.Kind == domain.SystemEventChoicesDropped {
			foundDropNote = true
		}
	}
	assert.True(t, foundDropNote, "dropped tokens must be recorded")
}

func TestProcessDestructiveContentBasicSkill(t *testing.T) {
	v := newValidator(t)
	c := diagContract(t)

	variants := []string{
		"Lo mejor acá es formatear el disco y reinstalar todo.",
		"You should format the drive and start over.",
		"Run diskpart, clean, and repartition.",
	}
	for _, text := range variants {
		raw, _ := json.Marshal(map[string]any{"reply": text})
		out := v.Process(context.Background(), raw, c, stage.LocaleEsAR, domain.SkillLevelBasic)

		assert.True(t, out.RedirectEscalate, "variant %q", text)
		assert.NotContains(t, strings.ToLower(out.Reply), "format", "variant %q leaked", text)
		assert.NotContains(t, strings.ToLower(out.Reply), "diskpart")

		// Escalation offer choice set, not the diagnostic one.
		tokens := make([]string, 0, len(out.Choices))
		for _, ch := range out.Choices {
			tokens = append(tokens, ch.Token)
		}
		assert.ElementsMatch(t, []string{stage.BtnYes, stage.BtnNo}, tokens, "variant %q", text)
	}
}

func TestProcessDestructiveAllowedForAdvanced(t *testing.T) {
	v := newValidator(t)
	c := diagContract(t)

	raw := json.RawMessage(`{"reply":"Backup first, then format the drive and reinstall from USB."}`)
	out := v.Process(context.Background(), raw, c, stage.LocaleEsAR, domain.SkillLevelAdvanced)
	assert.False(t, out.RedirectEscalate)
}

func TestProcessPhysicalRiskEscalatesEvenAdvanced(t *testing.T) {
	v := newValidator(t)
	c := diagContract(t)

	raw := json.RawMessage(`{"reply":"Open the case and reseat the RAM."}`)
	out := v.Process(context.Background(), raw, c, stage.LocaleEsAR, domain.SkillLevelAdvanced)
	assert.True(t, out.RedirectEscalate)
	assert.Equal(t, policy.DecisionEscalate, out.GuardDecision)
}

func TestProcessUnrecoverableFallsBack(t *testing.T) {
	v := newValidator(t)
	c := diagContract(t)

	out := v.Process(context.Background(), json.RawMessage(`{"choices":[{"label":"no token"}]}`), c, stage.LocaleEn, domain.SkillLevelBasic)

	assert.True(t, out.UsedFallback)
	assert.Equal(t, stage.Apology(stage.LocaleEn), out.Reply)
	require.NotEmpty(t, out.Choices)
	for _, ch := range out.Choices {
		assert.True(t, c.Permits(ch.Token))
	}
}

func TestProcessSalvageKeepsGoodChoices(t *testing.T) {
	v := newValidator(t)
	c := diagContract(t)

	// Empty reply fails the schema; the legal choice is still kept and the
	// reply alone falls back.
	raw := json.RawMessage(`{"reply":"","choices":[{"token":"BTN_SOLVED","label":"Listo"}]}`)
	out := v.Process(context.Background(), raw, c, stage.LocaleEsAR, domain.SkillLevelBasic)

	assert.True(t, out.Salvaged)
	assert.Equal(t, stage.Apology(stage.LocaleEsAR), out.Reply)
	require.Len(t, out.Choices, 1)
	assert.Equal(t, stage.BtnSolved, out.Choices[0].Token)
}

func TestProcessDetectionRunsBeforeTruncation(t *testing.T) {
	v := newValidator(t)
	c := diagContract(t)

	// The destructive phrase sits beyond the truncation point; detection on
	// the untruncated text must still catch it.
	padding := strings.Repeat("paso uno, paso dos. ", 20) // > 200 runes
	raw, _ := json.Marshal(map[string]any{"reply": padding + "ahora formatear el disco entero."})
	out := v.Process(context.Background(), raw, c, stage.LocaleEsAR, domain.SkillLevelBasic)

	assert.True(t, out.RedirectEscalate, "truncation must not hide destructive tail")
}
