package litekv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinview/twinview/internal/kv"
)

// Test helper to open an ephemeral store.
func makeStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Test helper to open a store with a bucket.
func makeBucket(t *testing.T, name string) (*Store, kv.Bucket) {
	t.Helper()
	s := makeStore(t)
	b, err := s.CreateBucket(context.Background(), name, "test bucket")
	require.NoError(t, err)
	return s, b
}

func TestBucket_MissingIsNotFound(t *testing.T) {
	s := makeStore(t)

	_, err := s.Bucket(context.Background(), "nope")
	assert.ErrorIs(t, err, kv.ErrBucketNotFound)
}

func TestCreateBucket_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := makeStore(t)

	_, err := s.CreateBucket(ctx, "twin", "first")
	require.NoError(t, err)
	_, err = s.CreateBucket(ctx, "twin", "second call is a no-op")
	require.NoError(t, err)

	b, err := s.Bucket(ctx, "twin")
	require.NoError(t, err)
	assert.Equal(t, "twin", b.Name())
}

func TestPut_AssignsIncreasingRevisions(t *testing.T) {
	ctx := context.Background()
	_, b := makeBucket(t, "twin")

	r1, err := b.Put(ctx, "loc.temp", []byte("72.5"))
	require.NoError(t, err)
	r2, err := b.Put(ctx, "loc.temp", []byte("73.0"))
	require.NoError(t, err)
	r3, err := b.Put(ctx, "loc.hum", []byte("41"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), r1)
	assert.Equal(t, uint64(2), r2)
	assert.Equal(t, uint64(3), r3)
}

func TestGet_ReturnsLatestLiveValue(t *testing.T) {
	ctx := context.Background()
	_, b := makeBucket(t, "twin")

	_, err := b.Put(ctx, "loc.temp", []byte("72.5"))
	require.NoError(t, err)
	rev, err := b.Put(ctx, "loc.temp", []byte("73.0"))
	require.NoError(t, err)

	e, err := b.Get(ctx, "loc.temp")
	require.NoError(t, err)
	assert.Equal(t, rev, e.Revision)
	assert.Equal(t, 73.0, e.Value)
	assert.Equal(t, kv.OpPut, e.Operation)
}

func TestGet_DeletedKeyIsNotFound(t *testing.T) {
	ctx := context.Background()
	_, b := makeBucket(t, "twin")

	_, err := b.Put(ctx, "loc.temp", []byte("72.5"))
	require.NoError(t, err)
	_, err = b.Delete(ctx, "loc.temp")
	require.NoError(t, err)

	_, err = b.Get(ctx, "loc.temp")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestGet_UnknownKeyIsNotFound(t *testing.T) {
	_, b := makeBucket(t, "twin")

	_, err := b.Get(context.Background(), "never.written")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestList_LatestLiveEntriesMatchingFilter(t *testing.T) {
	ctx := context.Background()
	_, b := makeBucket(t, "twin")

	_, err := b.Put(ctx, "LOC_01.temp", []byte("72.5"))
	require.NoError(t, err)
	_, err = b.Put(ctx, "LOC_01.temp", []byte("73.0"))
	require.NoError(t, err)
	_, err = b.Put(ctx, "LOC_02.temp", []byte("68"))
	require.NoError(t, err)
	_, err = b.Put(ctx, "LOC_01.gone", []byte("1"))
	require.NoError(t, err)
	_, err = b.Delete(ctx, "LOC_01.gone")
	require.NoError(t, err)

	entries, err := b.List(ctx, "LOC_01.>")
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "LOC_01.temp", entries[0].Key)
	assert.Equal(t, 73.0, entries[0].Value)
	assert.Equal(t, uint64(2), entries[0].Revision)
}

func TestHistory_AscendingWithTombstones(t *testing.T) {
	ctx := context.Background()
	_, b := makeBucket(t, "twin")

	_, err := b.Put(ctx, "loc.temp", []byte("72.5"))
	require.NoError(t, err)
	_, err = b.Put(ctx, "loc.temp", []byte("73.0"))
	require.NoError(t, err)
	_, err = b.Delete(ctx, "loc.temp")
	require.NoError(t, err)

	history, err := b.History(ctx, "loc.temp")
	require.NoError(t, err)

	require.Len(t, history, 3)
	assert.Equal(t, []kv.Operation{kv.OpPut, kv.OpPut, kv.OpDelete},
		[]kv.Operation{history[0].Operation, history[1].Operation, history[2].Operation})
	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].Revision, history[i-1].Revision)
	}
}

func TestPurge_TruncatesHistory(t *testing.T) {
	ctx := context.Background()
	_, b := makeBucket(t, "twin")
	lb := b.(*Bucket)

	_, err := b.Put(ctx, "loc.temp", []byte("72.5"))
	require.NoError(t, err)
	_, err = b.Put(ctx, "loc.temp", []byte("73.0"))
	require.NoError(t, err)

	_, err = lb.Purge(ctx, "loc.temp")
	require.NoError(t, err)

	history, err := b.History(ctx, "loc.temp")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, kv.OpPurge, history[0].Operation)

	_, err = b.Get(ctx, "loc.temp")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestWatch_DeliversCommittedWrites(t *testing.T) {
	ctx := context.Background()
	_, b := makeBucket(t, "twin")

	w, err := b.Watch(ctx, "loc.>")
	require.NoError(t, err)
	defer w.Stop()

	rev, err := b.Put(ctx, "loc.temp", []byte("72.5"))
	require.NoError(t, err)
	_, err = b.Put(ctx, "other.temp", []byte("1"))
	require.NoError(t, err)
	_, err = b.Delete(ctx, "loc.temp")
	require.NoError(t, err)

	var got []kv.Entry
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case e := <-w.Updates():
			got = append(got, e)
		case <-timeout:
			t.Fatalf("timed out, received %d events", len(got))
		}
	}

	assert.Equal(t, "loc.temp", got[0].Key)
	assert.Equal(t, rev, got[0].Revision)
	assert.Equal(t, kv.OpPut, got[0].Operation)
	assert.Equal(t, kv.OpDelete, got[1].Operation)
}

func TestWatch_StopIsIdempotentAndCloses(t *testing.T) {
	_, b := makeBucket(t, "twin")

	w, err := b.Watch(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Updates()
	assert.False(t, ok)
}

func TestWatch_ContextCancelStops(t *testing.T) {
	_, b := makeBucket(t, "twin")

	ctx, cancel := context.WithCancel(context.Background())
	w, err := b.Watch(ctx, "")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-w.Updates():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not close on context cancel")
	}
}

func TestClose_ShutsDownWatchers(t *testing.T) {
	s, b := makeBucket(t, "twin")

	w, err := b.Watch(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, s.Close())

	_, ok := <-w.Updates()
	assert.False(t, ok)
}
