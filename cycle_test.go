package petpost_test

import (
	"context"
	"testing"

	"github.com/nyaruka/petpost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addItem(t *testing.T, b *petpost.MockBackend, id, submitter string, posted bool) petpost.ItemRef {
	t.Helper()

	item := &petpost.Item{ItemID: id, SubmitterID: submitter, Posted: posted}
	require.NoError(t, b.PutItem(context.Background(), item))
	return item.Ref()
}

func TestPickNext(t *testing.T) {
	backend := petpost.NewMockBackend()
	tracker := petpost.NewTracker(backend)

	_, err := tracker.PickNext(nil)
	assert.ErrorIs(t, err, petpost.ErrEmptySelection)

	refs := []petpost.ItemRef{
		addItem(t, backend, "1.jpg", "u1", false),
		addItem(t, backend, "2.jpg", "u1", false),
		addItem(t, backend, "3.jpg", "u2", false),
	}

	// every pick must come from the input set, and over many trials each item should be
	// picked about a third of the time
	counts := make(map[petpost.ItemRef]int)
	for i := 0; i < 3000; i++ {
		picked, err := tracker.PickNext(refs)
		require.NoError(t, err)
		counts[picked]++
	}

	assert.Len(t, counts, 3)
	for _, ref := range refs {
		assert.Greater(t, counts[ref], 800, "item %s picked too rarely", ref)
		assert.Less(t, counts[ref], 1200, "item %s picked too often", ref)
	}
}

func TestResetCycle(t *testing.T) {
	ctx := context.Background()
	backend := petpost.NewMockBackend()
	tracker := petpost.NewTracker(backend)

	addItem(t, backend, "1.jpg", "u1", true)
	addItem(t, backend, "2.jpg", "u1", true)
	addItem(t, backend, "3.jpg", "u2", false)

	reset, err := tracker.ResetCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, reset)

	unposted, err := tracker.ListUnposted(ctx)
	assert.NoError(t, err)
	assert.Len(t, unposted, 3)

	// resetting again is a no-op
	reset, err = tracker.ResetCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, reset)

	unposted, err = tracker.ListUnposted(ctx)
	assert.NoError(t, err)
	assert.Len(t, unposted, 3)
}

func TestSelectNextResetsExhaustedCycle(t *testing.T) {
	ctx := context.Background()
	backend := petpost.NewMockBackend()
	tracker := petpost.NewTracker(backend)

	// one record, already shown this cycle
	ref := addItem(t, backend, "a", "u1", true)

	chosen, err := tracker.SelectNext(ctx)
	assert.NoError(t, err)
	assert.Equal(t, ref, chosen)

	// marking after a successful publish leaves it posted again
	assert.NoError(t, tracker.MarkPosted(ctx, chosen))

	item, err := backend.GetItem(ctx, ref)
	assert.NoError(t, err)
	assert.True(t, item.Posted)

	// one reset flip (true->false), one proactive reset that found nothing to flip, and
	// the final mark (false->true)
	assert.Equal(t, []bool{false, true}, backend.PostedSets())
}

func TestSelectNextPrimesNextCycle(t *testing.T) {
	ctx := context.Background()
	backend := petpost.NewMockBackend()
	tracker := petpost.NewTracker(backend)

	addItem(t, backend, "1.jpg", "u1", true)
	addItem(t, backend, "2.jpg", "u1", true)
	last := addItem(t, backend, "3.jpg", "u2", false)

	// only one unposted item left, selecting it should flip the others back before the
	// mark so the next run doesn't start from an empty scan
	chosen, err := tracker.SelectNext(ctx)
	assert.NoError(t, err)
	assert.Equal(t, last, chosen)

	unposted, err := tracker.ListUnposted(ctx)
	assert.NoError(t, err)
	assert.Len(t, unposted, 3)

	assert.NoError(t, tracker.MarkPosted(ctx, chosen))

	unposted, err = tracker.ListUnposted(ctx)
	assert.NoError(t, err)
	assert.Len(t, unposted, 2)
}

func TestSelectNextEmptyStore(t *testing.T) {
	ctx := context.Background()
	backend := petpost.NewMockBackend()
	tracker := petpost.NewTracker(backend)

	_, err := tracker.SelectNext(ctx)
	assert.ErrorIs(t, err, petpost.ErrNoContent)
}

func TestListUnpostedStoreError(t *testing.T) {
	ctx := context.Background()
	backend := petpost.NewMockBackend()
	backend.ErrorOnList = assert.AnError
	tracker := petpost.NewTracker(backend)

	_, err := tracker.ListUnposted(ctx)
	assert.ErrorIs(t, err, petpost.ErrStoreUnavailable)

	_, err = tracker.SelectNext(ctx)
	assert.ErrorIs(t, err, petpost.ErrStoreUnavailable)
}
