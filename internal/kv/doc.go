// Package kv defines the data model and backend contract shared by every
// key-value component in twinview.
//
// A backend is a Store of named Buckets. Each bucket is a revisioned key
// space: every write (put, delete, purge) is assigned a revision that is
// strictly increasing per key, and retained history can be read back per
// key in revision order. Live change delivery happens through Watchers,
// which stream Entry values for keys matching a wildcard filter.
//
// Three implementations exist:
//   - natskv: JetStream KV over a NATS connection (production)
//   - litekv: embedded SQLite store (local mode, integration tests)
//   - kvtest: scripted in-memory fake (unit tests)
//
// The mirror package consumes these interfaces and never imports a
// concrete backend.
package kv
