// Package governor wraps every external completion call with rate limiting,
// failure cooldown, a bounded timeout and forensic event emission. Nothing
// else in the repo is allowed to reach the completion service directly.
package governor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/stihelp/orchestrator/internal/domain"
)

var (
	// ErrRateExceeded is returned when the per-conversation window or the
	// global limiter refuses the call. The call function is never run.
	ErrRateExceeded = errors.New("governor: rate exceeded")

	// ErrCooldown is returned while a conversation is cooling down after
	// repeated failures. The call function is never run.
	ErrCooldown = errors.New("governor: in cooldown")

	// ErrTimeout is returned when the call outlives its budget. The
	// in-flight call is abandoned and its eventual result discarded.
	ErrTimeout = errors.New("governor: completion call timed out")
)

// Recorder receives the governor's forensic events. Implemented by the
// orchestrator service, which appends them to the conversation transcript.
type Recorder interface {
	RecordSystemEvent(ctx context.Context, conversationID string, kind domain.SystemEventKind, payload any)
}

// Config tunes the governor.
type Config struct {
	Window            time.Duration // sliding window size
	MaxCallsPerWindow int           // per-conversation cap inside the window
	FailureThreshold  int           // consecutive failures before cooldown
	CooldownBase      time.Duration // first cooldown period
	CooldownMax       time.Duration // exponential growth ceiling
	CallTimeout       time.Duration // per-call budget
	GlobalRate        rate.Limit    // calls/sec across all conversations
	GlobalBurst       int
}

type convState struct {
	calls         []time.Time
	failures      int
	cooldownUntil time.Time
}

// Governor tracks per-conversation call budgets and failure cooldowns.
type Governor struct {
	cfg      Config
	recorder Recorder
	global   *rate.Limiter

	mu    sync.Mutex
	state map[string]*convState

	now func() time.Time
}

// New creates a Governor.
func New(cfg Config, recorder Recorder) *Governor {
	return &Governor{
		cfg:      cfg,
		recorder: recorder,
		global:   rate.NewLimiter(cfg.GlobalRate, cfg.GlobalBurst),
		state:    make(map[string]*convState),
		now:      time.Now,
	}
}

type callStartedPayload struct {
	RequestID   string `json:"request_id"`
	Stage       string `json:"stage"`
	Fingerprint string `json:"fingerprint"`
}

type callDonePayload struct {
	RequestID string `json:"request_id"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// GuardedCall runs call under the governor's protections. On ErrRateExceeded,
// ErrCooldown or ErrTimeout the caller falls through to the deterministic
// fallback; the classification is already on the transcript by then.
func (g *Governor) GuardedCall(ctx context.Context, conversationID, stage, fingerprint string, call func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	if err := g.admit(ctx, conversationID); err != nil {
		return nil, err
	}

	requestID := "mc_" + uuid.New().String()[:8]
	start := g.now()

	g.recorder.RecordSystemEvent(ctx, conversationID, domain.SystemEventModelCallStarted, callStartedPayload{
		RequestID:   requestID,
		Stage:       stage,
		Fingerprint: fingerprint,
	})

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	raw, err := call(callCtx)
	latencyMs := g.now().Sub(start).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = ErrTimeout
		}
		g.noteFailure(conversationID)
		g.recorder.RecordSystemEvent(ctx, conversationID, domain.SystemEventModelCallDone, callDonePayload{
			RequestID: requestID,
			LatencyMs: latencyMs,
			Error:     err.Error(),
		})
		return nil, err
	}

	g.noteSuccess(conversationID)
	g.recorder.RecordSystemEvent(ctx, conversationID, domain.SystemEventModelCallDone, callDonePayload{
		RequestID: requestID,
		LatencyMs: latencyMs,
	})
	return raw, nil
}

// admit checks cooldown and both rate budgets, emitting the skip event when
// the call is refused.
func (g *Governor) admit(ctx context.Context, conversationID string) error {
	now := g.now()

	g.mu.Lock()
	st, ok := g.state[conversationID]
	if !ok {
		st = &convState{}
		g.state[conversationID] = st
	}

	if now.Before(st.cooldownUntil) {
		remaining := st.cooldownUntil.Sub(now)
		g.mu.Unlock()
		g.recorder.RecordSystemEvent(ctx, conversationID, domain.SystemEventCooldownSkip, map[string]any{
			"remaining_ms": remaining.Milliseconds(),
		})
		return ErrCooldown
	}
	if !st.cooldownUntil.IsZero() && !now.Before(st.cooldownUntil) {
		// Cooldown expired: clear it.
		st.cooldownUntil = time.Time{}
		st.failures = 0
	}

	// Prune the sliding window, then check the per-conversation cap.
	cutoff := now.Add(-g.cfg.Window)
	kept := st.calls[:0]
	for _, t := range st.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	st.calls = kept

	if len(st.calls) >= g.cfg.MaxCallsPerWindow {
		g.mu.Unlock()
		g.recorder.RecordSystemEvent(ctx, conversationID, domain.SystemEventRateLimited, map[string]any{
			"window_ms": g.cfg.Window.Milliseconds(),
			"max_calls": g.cfg.MaxCallsPerWindow,
		})
		return ErrRateExceeded
	}

	st.calls = append(st.calls, now)
	g.mu.Unlock()

	if !g.global.Allow() {
		g.recorder.RecordSystemEvent(ctx, conversationID, domain.SystemEventRateLimited, map[string]any{
			"scope": "global",
		})
		return ErrRateExceeded
	}
	return nil
}

func (g *Governor) noteFailure(conversationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state[conversationID]
	if st == nil {
		return
	}
	st.failures++
	if st.failures >= g.cfg.FailureThreshold {
		cooldown := g.cfg.CooldownBase << (st.failures - g.cfg.FailureThreshold)
		if cooldown > g.cfg.CooldownMax || cooldown <= 0 {
			cooldown = g.cfg.CooldownMax
		}
		st.cooldownUntil = g.now().Add(cooldown)
		log.Printf("WARN: conversation %s entering completion cooldown for %s after %d consecutive failures",
			conversationID, cooldown, st.failures)
	}
}

func (g *Governor) noteSuccess(conversationID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if st := g.state[conversationID]; st != nil {
		st.failures = 0
		st.cooldownUntil = time.Time{}
	}
}

// Fingerprint hashes a completion request's content. Transcripts carry this
// hash, never the raw prompt.
func Fingerprint(req any) string {
	body, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
