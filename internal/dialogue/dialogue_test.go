package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stihelp/orchestrator/internal/adapter/llm"
	"github.com/stihelp/orchestrator/internal/domain"
	"github.com/stihelp/orchestrator/internal/governor"
	"github.com/stihelp/orchestrator/internal/stage"
)

type nopRecorder struct{}

func (nopRecorder) RecordSystemEvent(ctx context.Context, conversationID string, kind domain.SystemEventKind, payload any) {
}

func newTestRegistry(client *llm.MockClient) *Registry {
	g := governor.New(governor.Config{
		Window:            time.Minute,
		MaxCallsPerWindow: 100,
		FailureThreshold:  3,
		CooldownBase:      time.Second,
		CooldownMax:       time.Minute,
		CallTimeout:       time.Second,
		GlobalRate:        1000,
		GlobalBurst:       1000,
	}, nopRecorder{})
	return NewRegistry(g, client)
}

func newSession(stageName string) *domain.Session {
	return &domain.Session{
		SessionID:      "sess-1",
		ConversationID: "AB1234",
		Stage:          stageName,
		Locale:         stage.LocaleEsAR,
		Skill:          domain.SkillLevelBasic,
	}
}

func dispatch(t *testing.T, r *Registry, sess *domain.Session, in domain.TurnInput) *Result {
	t.Helper()
	h, err := r.Resolve(sess.Stage)
	require.NoError(t, err)
	res, err := h(context.Background(), sess, in)
	require.NoError(t, err)
	return res
}

func TestResolveUnknownStage(t *testing.T) {
	r := newTestRegistry(llm.NewMockClient())
	_, err := r.Resolve("no_such_stage")
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestDeterministicTransitions(t *testing.T) {
	cases := []struct {
		name   string
		from   string
		in     domain.TurnInput
		target string
	}{
		{"language select", stage.LanguageSelect, domain.TurnInput{ButtonID: stage.BtnLangEn}, stage.NameCapture},
		{"skip name", stage.NameCapture, domain.TurnInput{ButtonID: stage.BtnNoName}, stage.SkillLevel},
		{"typed name", stage.NameCapture, domain.TurnInput{Text: "Marta"}, stage.SkillLevel},
		{"skill basic", stage.SkillLevel, domain.TurnInput{ButtonID: stage.BtnLevelBasic}, stage.IntentSelect},
		{"intent problem", stage.IntentSelect, domain.TurnInput{ButtonID: stage.BtnHelp}, stage.ProblemCapture},
		{"intent task", stage.IntentSelect, domain.TurnInput{ButtonID: stage.BtnTask}, stage.TaskCapture},
		{"escalation accepted", stage.EscalateOffer, domain.TurnInput{ButtonID: stage.BtnYes}, stage.ContactEmail},
		{"escalation declined", stage.EscalateOffer, domain.TurnInput{ButtonID: stage.BtnNo}, stage.Feedback},
		{"email captured", stage.ContactEmail, domain.TurnInput{Text: "ana@example.com"}, stage.ContactPhone},
		{"feedback closes", stage.Feedback, domain.TurnInput{ButtonID: stage.BtnFeedbackGood}, stage.Closed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRegistry(llm.NewMockClient())
			sess := newSession(tc.from)
			res := dispatch(t, r, sess, tc.in)
			assert.Equal(t, tc.target, res.TargetStage)
			assert.False(t, res.Fallback)
			assert.NotEmpty(t, res.Reply)
		})
	}
}

func TestUnexpectedInputReprompts(t *testing.T) {
	cases := []struct {
		name string
		from string
		in   domain.TurnInput
	}{
		{"wrong button at language select", stage.LanguageSelect, domain.TurnInput{ButtonID: stage.BtnSolved}},
		{"free text at skill level", stage.SkillLevel, domain.TurnInput{Text: "soy experto"}},
		{"empty text at problem capture", stage.ProblemCapture, domain.TurnInput{Text: "   "}},
		{"email without at sign", stage.ContactEmail, domain.TurnInput{Text: "not-an-email"}},
		{"phone without digits", stage.ContactPhone, domain.TurnInput{Text: "call me maybe"}},
		{"text at closed", stage.Closed, domain.TurnInput{Text: "hola de nuevo"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRegistry(llm.NewMockClient())
			sess := newSession(tc.from)
			res := dispatch(t, r, sess, tc.in)
			assert.Equal(t, tc.from, res.TargetStage)
			assert.Equal(t, stage.PromptFor(tc.from, sess.Locale), res.Reply)
		})
	}
}

func TestLanguageSelectSetsLocale(t *testing.T) {
	r := newTestRegistry(llm.NewMockClient())
	sess := newSession(stage.LanguageSelect)
	dispatch(t, r, sess, domain.TurnInput{ButtonID: stage.BtnLangEsES})
	assert.Equal(t, stage.LocaleEsES, sess.Locale)
}

func TestNameCaptureTrimsAndCaps(t *testing.T) {
	r := newTestRegistry(llm.NewMockClient())
	sess := newSession(stage.NameCapture)
	res := dispatch(t, r, sess, domain.TurnInput{Text: "  Julia  "})
	assert.Equal(t, "Julia", sess.Name)
	assert.Contains(t, res.Reply, "Julia")
}

func TestNameCaptureClipsOnRuneBoundary(t *testing.T) {
	r := newTestRegistry(llm.NewMockClient())
	sess := newSession(stage.NameCapture)

	dispatch(t, r, sess, domain.TurnInput{Text: strings.Repeat("ñ", 100)})

	assert.Equal(t, 80, len([]rune(sess.Name)))
	assert.True(t, utf8.ValidString(sess.Name))
}

func TestDeviceCaptureClipsOnRuneBoundary(t *testing.T) {
	client := llm.NewMockClient().Enqueue(`{"reply":"ok"}`)
	r := newTestRegistry(client)
	sess := newSession(stage.DeviceCapture)

	dispatch(t, r, sess, domain.TurnInput{Text: strings.Repeat("é", 150)})

	assert.Equal(t, 120, len([]rune(sess.Device)))
	assert.True(t, utf8.ValidString(sess.Device))
}

func TestProblemCaptureRunsModelTurn(t *testing.T) {
	client := llm.NewMockClient().Enqueue(`{"reply":"Entiendo. En qué equipo pasa?"}`)
	r := newTestRegistry(client)
	sess := newSession(stage.ProblemCapture)
	sess.Name = "Marta"

	res := dispatch(t, r, sess, domain.TurnInput{Text: "no tengo internet"})

	assert.Equal(t, stage.DeviceCapture, res.TargetStage)
	assert.False(t, res.Fallback)
	assert.NotNil(t, res.Raw)
	assert.Equal(t, "no tengo internet", sess.Problem)
	require.Equal(t, 1, client.Calls())
	assert.Equal(t, stage.DeviceCapture, client.LastRequest().Stage)
	// The captured name travels with the prompt context.
	assert.Contains(t, client.LastRequest().Messages[0].Content, "Marta")
}

func TestDeviceCaptureEntersDiagnostic(t *testing.T) {
	client := llm.NewMockClient().Enqueue(`{"reply":"Probá reiniciar el router."}`)
	r := newTestRegistry(client)
	sess := newSession(stage.DeviceCapture)
	sess.Problem = "sin internet"

	res := dispatch(t, r, sess, domain.TurnInput{Text: "notebook Lenovo"})

	assert.Equal(t, stage.Diagnostic, res.TargetStage)
	assert.NotNil(t, res.Raw)
	assert.Equal(t, "notebook Lenovo", sess.Device)
	assert.Equal(t, stage.Diagnostic, client.LastRequest().Stage)
}

func TestDiagnosticButtons(t *testing.T) {
	t.Run("solved goes to feedback", func(t *testing.T) {
		r := newTestRegistry(llm.NewMockClient())
		sess := newSession(stage.Diagnostic)
		res := dispatch(t, r, sess, domain.TurnInput{ButtonID: stage.BtnSolved})
		assert.Equal(t, stage.Feedback, res.TargetStage)
		assert.Nil(t, res.Raw)
	})

	t.Run("tests failed offers escalation", func(t *testing.T) {
		r := newTestRegistry(llm.NewMockClient())
		sess := newSession(stage.Diagnostic)
		res := dispatch(t, r, sess, domain.TurnInput{ButtonID: stage.BtnTestsFail})
		assert.Equal(t, stage.EscalateOffer, res.TargetStage)
	})

	t.Run("tests done asks the model for more", func(t *testing.T) {
		client := llm.NewMockClient().Enqueue(`{"reply":"Sigamos con esto."}`)
		r := newTestRegistry(client)
		sess := newSession(stage.Diagnostic)
		res := dispatch(t, r, sess, domain.TurnInput{ButtonID: stage.BtnTestsDone})
		assert.Equal(t, stage.FollowupQA, res.TargetStage)
		assert.NotNil(t, res.Raw)
	})

	t.Run("free text stays on diagnostic", func(t *testing.T) {
		client := llm.NewMockClient().Enqueue(`{"reply":"Probemos otra cosa."}`)
		r := newTestRegistry(client)
		sess := newSession(stage.Diagnostic)
		res := dispatch(t, r, sess, domain.TurnInput{Text: "lo probé y nada"})
		assert.Equal(t, stage.Diagnostic, res.TargetStage)
		assert.Equal(t, 1, client.Calls())
	})
}

func TestFollowupQAButtons(t *testing.T) {
	r := newTestRegistry(llm.NewMockClient())

	sess := newSession(stage.FollowupQA)
	res := dispatch(t, r, sess, domain.TurnInput{ButtonID: stage.BtnSolved})
	assert.Equal(t, stage.Feedback, res.TargetStage)

	sess = newSession(stage.FollowupQA)
	res = dispatch(t, r, sess, domain.TurnInput{ButtonID: stage.BtnEscalate})
	assert.Equal(t, stage.EscalateOffer, res.TargetStage)
}

func TestModelFailureBecomesFallbackResult(t *testing.T) {
	client := llm.NewMockClient().EnqueueError(errors.New("upstream down"))
	r := newTestRegistry(client)
	sess := newSession(stage.ProblemCapture)

	res := dispatch(t, r, sess, domain.TurnInput{Text: "la pantalla parpadea"})

	assert.True(t, res.Fallback)
	assert.Error(t, res.Cause)
	assert.Nil(t, res.Raw)
	// The turn still lands on the stage the flow intended.
	assert.Equal(t, stage.DeviceCapture, res.TargetStage)
}

func TestContactPhoneRequestsTicket(t *testing.T) {
	r := newTestRegistry(llm.NewMockClient())
	sess := newSession(stage.ContactPhone)

	res := dispatch(t, r, sess, domain.TurnInput{Text: "+54 11 5555-0000"})

	assert.True(t, res.CreateTicket)
	assert.Equal(t, stage.Feedback, res.TargetStage)
	assert.Equal(t, "+54 11 5555-0000", sess.ContactPhone)
}

func TestClosedReopens(t *testing.T) {
	r := newTestRegistry(llm.NewMockClient())
	sess := newSession(stage.Closed)

	res := dispatch(t, r, sess, domain.TurnInput{ButtonID: stage.BtnReopen})

	assert.True(t, res.Reopened)
	assert.Equal(t, stage.IntentSelect, res.TargetStage)
}
