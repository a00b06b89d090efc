package petpost

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

// Tracker keeps track of which items have been shown in the current posting cycle. A
// cycle is simply the set of records with posted=false, it ends when that set empties
// and a reset opens the next one.
type Tracker struct {
	store ItemStore
}

// NewTracker creates a new cycle tracker reading and writing the given store
func NewTracker(store ItemStore) *Tracker {
	return &Tracker{store: store}
}

// ListUnposted returns the keys of all items not yet shown this cycle. An empty result
// means the cycle is exhausted, not that anything went wrong.
func (t *Tracker) ListUnposted(ctx context.Context) ([]ItemRef, error) {
	refs, err := t.store.ListUnposted(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
	}
	return refs, nil
}

// PickNext selects uniformly at random from the given items
func (t *Tracker) PickNext(refs []ItemRef) (ItemRef, error) {
	if len(refs) == 0 {
		return ItemRef{}, ErrEmptySelection
	}
	return refs[rand.IntN(len(refs))], nil
}

// ResetCycle flips every posted record back to unposted and returns how many were reset.
// Each flip is an independent conditional update so a crash partway leaves a smaller
// next cycle rather than corruption, and resetting an already reset record is a no-op.
func (t *Tracker) ResetCycle(ctx context.Context) (int, error) {
	posted, err := t.store.ListPosted(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
	}

	wg := &sync.WaitGroup{}
	reset := atomic.Int32{}
	failed := atomic.Int32{}

	for _, ref := range posted {
		wg.Add(1)
		go func(ref ItemRef) {
			defer wg.Done()

			if err := t.store.SetPosted(ctx, ref, false); err != nil {
				slog.Error("error resetting item", "item", ref, "error", err)
				failed.Add(1)
			} else {
				reset.Add(1)
			}
		}(ref)
	}
	wg.Wait()

	slog.Info("cycle reset", "reset", reset.Load(), "failed", failed.Load())
	return int(reset.Load()), nil
}

// MarkPosted flips exactly the given record to posted, called once the publish of that
// item has been accepted by the channel
func (t *Tracker) MarkPosted(ctx context.Context, ref ItemRef) error {
	if err := t.store.SetPosted(ctx, ref, true); err != nil {
		return fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
	}
	return nil
}

// SelectNext runs our select-or-reset protocol: list the unposted items, resetting the
// cycle and relisting if there are none, then pick one at random. If the pick empties
// the cycle we reset it immediately so the next run doesn't start with an empty scan.
// Callers are expected to hold the cycle lock and to mark the returned item posted only
// after it has actually been published.
func (t *Tracker) SelectNext(ctx context.Context) (ItemRef, error) {
	refs, err := t.ListUnposted(ctx)
	if err != nil {
		return ItemRef{}, err
	}

	if len(refs) == 0 {
		if _, err := t.ResetCycle(ctx); err != nil {
			return ItemRef{}, err
		}
		refs, err = t.ListUnposted(ctx)
		if err != nil {
			return ItemRef{}, err
		}
		if len(refs) == 0 {
			return ItemRef{}, ErrNoContent
		}
	}

	chosen, err := t.PickNext(refs)
	if err != nil {
		return ItemRef{}, err
	}

	// that was the last unposted item, prime the next cycle before it gets marked
	if len(refs) <= 1 {
		if _, err := t.ResetCycle(ctx); err != nil {
			slog.Error("error priming next cycle", "error", err)
		}
	}

	return chosen, nil
}
