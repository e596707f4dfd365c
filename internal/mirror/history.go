package mirror

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/twinview/twinview/internal/kv"
)

// Fetcher retrieves the full revision sequence of a single key.
//
// It is stateless and on-demand: every call opens the bucket and reads
// history fresh, and nothing it returns touches a live mirror map. Widgets
// use it for the history drawer and for restore.
type Fetcher struct {
	Store  kv.Store
	Logger *slog.Logger
}

// Fetch returns every retained revision of the key, ascending by
// revision. For a deleted key the sequence ends with the tombstone.
//
// Returns a NOT_FOUND mirror error if the bucket does not exist.
func (f *Fetcher) Fetch(ctx context.Context, bucketName, key string) ([]kv.Entry, error) {
	key = kv.CanonicalKey(key)
	if err := kv.ValidateKey(key); err != nil {
		return nil, newValidationError(bucketName, key, err)
	}

	bucket, err := f.Store.Bucket(ctx, bucketName)
	if errors.Is(err, kv.ErrBucketNotFound) {
		return nil, newNotFoundError(bucketName)
	}
	if err != nil {
		return nil, newTransportError(bucketName, key, "bucket lookup failed", err)
	}

	history, err := bucket.History(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return []kv.Entry{}, nil
		}
		return nil, newTransportError(bucketName, key, "history read failed", err)
	}

	// Backends are expected to return ascending revisions; enforce it so
	// callers can rely on the ordering regardless.
	sort.Slice(history, func(i, j int) bool {
		return history[i].Revision < history[j].Revision
	})

	if history == nil {
		history = []kv.Entry{}
	}
	return history, nil
}
