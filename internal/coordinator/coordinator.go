// Package coordinator serializes turns per conversation and absorbs
// repeated submissions: a FIFO lock per conversation id, a short trailing
// window for double-submit detection, and a capped idempotency cache keyed
// by explicit request ids.
package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/stihelp/orchestrator/internal/domain"
)

// ErrLockTimeout should not occur under correct FIFO queuing; observing it
// means a lock leaked, and the conversation is stuck until cleared.
var ErrLockTimeout = errors.New("coordinator: conversation lock timeout")

type dupEntry struct {
	fingerprint string
	at          time.Time
}

// Coordinator owns the per-conversation exclusion and the replay caches.
// Distinct conversations never block each other.
type Coordinator struct {
	lockTimeout  time.Duration
	dupWindow    time.Duration
	maxProcessed int

	mu        sync.Mutex
	locks     map[string]*semaphore.Weighted
	recent    map[string]dupEntry
	processed map[string]*domain.TurnResponse
	order     []string
}

// New creates a Coordinator. lockTimeout bounds how long a turn may wait in
// the queue; dupWindow is the trailing double-submit window; maxProcessed
// caps the idempotency cache (oldest evicted).
func New(lockTimeout, dupWindow time.Duration, maxProcessed int) *Coordinator {
	return &Coordinator{
		lockTimeout:  lockTimeout,
		dupWindow:    dupWindow,
		maxProcessed: maxProcessed,
		locks:        make(map[string]*semaphore.Weighted),
		recent:       make(map[string]dupEntry),
		processed:    make(map[string]*domain.TurnResponse),
	}
}

func (c *Coordinator) lockFor(conversationID string) *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()
	sem, ok := c.locks[conversationID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		c.locks[conversationID] = sem
	}
	return sem
}

// Acquire blocks until no other in-flight turn holds the conversation's
// lock, then returns the release function. Waiters are served in FIFO
// order, so transcript appends happen in acquisition order.
func (c *Coordinator) Acquire(ctx context.Context, conversationID string) (func(), error) {
	sem := c.lockFor(conversationID)

	acquireCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()

	if err := sem.Acquire(acquireCtx, 1); err != nil {
		if errors.Is(acquireCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}

// IsDuplicate reports whether an identical inbound event was seen for this
// conversation within the trailing window, and records the current one.
// Callers hold the conversation lock.
func (c *Coordinator) IsDuplicate(conversationID, fingerprint string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.recent[conversationID]
	c.recent[conversationID] = dupEntry{fingerprint: fingerprint, at: now}
	if !ok {
		return false
	}
	if now.Sub(prev.at) > c.dupWindow {
		return false
	}
	return prev.fingerprint == fingerprint
}

// Processed returns the cached outcome for an explicit request id, if any.
func (c *Coordinator) Processed(requestID string) (*domain.TurnResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.processed[requestID]
	return resp, ok
}

// MarkProcessed caches the outcome of a request id so a retry replays it
// without re-running side effects. The set is capped; the oldest entry is
// evicted first.
func (c *Coordinator) MarkProcessed(requestID string, resp *domain.TurnResponse) {
	if requestID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.processed[requestID]; !exists {
		c.order = append(c.order, requestID)
	}
	c.processed[requestID] = resp

	for len(c.order) > c.maxProcessed {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.processed, oldest)
	}
}

// Fingerprint hashes an inbound event to its identity for duplicate
// detection. Content hash only, never the raw text.
func Fingerprint(sessionID string, in domain.TurnInput) string {
	h := sha256.New()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(in.Text))
	h.Write([]byte{0})
	h.Write([]byte(in.ButtonID))
	return hex.EncodeToString(h.Sum(nil))
}
