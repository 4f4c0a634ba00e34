package inflight

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultWindow is how long a (account, product) pair stays blocked after a
// request starts. Long enough to absorb a double-tap, short enough not to
// lock out a genuine follow-up request.
const DefaultWindow = 2 * time.Second

// ErrDuplicateRequest is returned when an identical request is already in
// flight. The caller should back off and retry, no side effect happened.
var ErrDuplicateRequest = errors.New("duplicate request in flight")

// Guard de-duplicates near-simultaneous identical client requests. It is an
// optimization only: the transaction id check in the ledger remains the
// durable idempotency guarantee.
type Guard struct {
	store  Store
	window time.Duration
}

// NewGuard creates a guard over the given marker store.
func NewGuard(store Store, window time.Duration) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Guard{store: store, window: window}
}

func guardKey(accountID, productID string) string {
	return fmt.Sprintf("gen:%s:%s", accountID, productID)
}

// Acquire registers the request marker. Returns ErrDuplicateRequest when the
// same account+product pair is already in flight within the window.
func (g *Guard) Acquire(ctx context.Context, accountID, productID string) error {
	ok, err := g.store.Acquire(ctx, guardKey(accountID, productID), g.window)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateRequest
	}
	return nil
}

// Release drops the marker once the request has settled.
func (g *Guard) Release(ctx context.Context, accountID, productID string) {
	_ = g.store.Release(ctx, guardKey(accountID, productID))
}
