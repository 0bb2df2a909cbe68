// Package registry issues collision-free, human-readable conversation
// identifiers (two letters + four digits) backed by the store's durable
// used-set.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/stihelp/orchestrator/internal/store"
)

// ErrSpaceExhausted is fatal: the id space could not yield a fresh id within
// the retry budget. Reservation halts and operators must intervene.
var ErrSpaceExhausted = errors.New("registry: conversation id space exhausted")

const (
	letters     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxAttempts = 40
)

// Registry reserves conversation ids against the durable used-set. The
// store's write transaction is the cross-process exclusion, so concurrent
// reservations from different processes cannot hand out the same id.
type Registry struct {
	store store.Store
}

// New creates a Registry on top of the given store.
func New(s store.Store) *Registry {
	return &Registry{store: s}
}

// Reserve returns a fresh identifier. The reservation is durably recorded
// before the id is returned; a crash immediately after never yields a
// duplicate on retry. Fails with ErrSpaceExhausted after a bounded number
// of collision retries.
func (r *Registry) Reserve(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id := generate()
		err := r.store.ReserveConversationID(ctx, id)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, store.ErrIDReserved) {
			continue
		}
		return "", fmt.Errorf("reserve conversation id: %w", err)
	}
	return "", ErrSpaceExhausted
}

func generate() string {
	return fmt.Sprintf("%c%c%04d",
		letters[rand.IntN(len(letters))],
		letters[rand.IntN(len(letters))],
		rand.IntN(10000))
}
