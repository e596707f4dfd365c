package kv

import (
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key has no live value in a bucket.
// A key whose latest operation is a delete or purge is not found.
var ErrKeyNotFound = errors.New("key not found")

// ErrBucketNotFound is returned when a bucket does not exist.
// Callers treat this as a recoverable condition (offer bucket creation),
// not as a failure.
var ErrBucketNotFound = errors.New("bucket not found")

// Operation identifies the kind of write that produced an entry.
type Operation string

const (
	// OpPut records a value for a key.
	OpPut Operation = "PUT"
	// OpDelete removes a key, leaving its prior history intact.
	OpDelete Operation = "DEL"
	// OpPurge removes a key and truncates its history to the purge marker.
	OpPurge Operation = "PURGE"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpPut, OpDelete, OpPurge:
		return true
	}
	return false
}

// Entry is one revision of one key.
//
// Revision is strictly increasing per key within a bucket; two entries for
// the same key always have distinct revisions, and the later write has the
// larger one. Value holds the decoded form (see Decode): a JSON structure
// when the stored bytes parse as JSON, otherwise the raw text.
type Entry struct {
	Key       string
	Value     any
	Raw       []byte
	Revision  uint64
	Operation Operation
	Created   time.Time
}

// Live reports whether the entry represents a present value,
// i.e. its operation is a put rather than a tombstone.
func (e Entry) Live() bool {
	return e.Operation == OpPut
}
