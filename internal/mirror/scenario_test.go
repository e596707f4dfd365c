package mirror

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinview/twinview/internal/kvtest"
)

// TestScenario_TwinBucketLifecycle walks the full dashboard flow: a
// missing bucket, its creation, writes becoming visible through their
// echo, an update, and a delete.
func TestScenario_TwinBucketLifecycle(t *testing.T) {
	ctx := context.Background()
	store := kvtest.NewStore()

	m, err := New(store, "twin", "")
	require.NoError(t, err)
	defer m.Stop()

	// Bucket absent: recoverable, not an error.
	require.NoError(t, m.Init(ctx))
	assert.False(t, m.Exists())
	assert.NoError(t, m.Err())

	// Create and re-init to start observing.
	require.NoError(t, m.CreateBucket(ctx, "digital twin state"))
	assert.True(t, m.Exists())

	require.NoError(t, m.Init(ctx))
	require.Equal(t, StateReady, m.State())
	assert.Empty(t, m.Entries())

	// First write.
	rev, err := m.Put(ctx, "loc.temp", 72.5)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev)

	require.Eventually(t, func() bool {
		e, ok := m.Get("loc.temp")
		return ok && e.Revision == 1
	}, waitFor, tick)
	e, _ := m.Get("loc.temp")
	assert.Equal(t, "loc.temp", e.Key)
	assert.Equal(t, 72.5, e.Value)

	// Update replaces the value at a higher revision.
	rev, err = m.Put(ctx, "loc.temp", 73.0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rev)

	require.Eventually(t, func() bool {
		e, ok := m.Get("loc.temp")
		return ok && e.Revision == 2
	}, waitFor, tick)
	e, _ = m.Get("loc.temp")
	assert.Equal(t, 73.0, e.Value)

	// Delete removes the key.
	_, err = m.Delete(ctx, "loc.temp")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := m.Get("loc.temp")
		return !ok
	}, waitFor, tick)

	// History survives the delete, ascending by revision.
	history, err := m.GetHistory(ctx, "loc.temp")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].Revision, history[i-1].Revision)
	}
}
