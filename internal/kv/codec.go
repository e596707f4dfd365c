package kv

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Values are stored as UTF-8 text. On write, strings pass through verbatim
// and everything else is JSON-encoded, so numbers and booleans take their
// canonical textual form ("72.5", "true") and structures become JSON
// documents. On read the inverse is attempted: bytes that parse as JSON
// decode to the corresponding structure or primitive, anything else is
// surfaced as the raw text.

// Encode serializes a value for storage.
//
// Returns an error for values with no JSON representation (channels,
// functions, NaN, cycles); no bytes are produced in that case, so callers
// can reject the write before touching the network.
func Encode(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("nil value")
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("value not encodable: %w", err)
	}
	return data, nil
}

// Decode interprets stored bytes.
//
// JSON documents decode to map[string]any / []any / float64 / bool / nil
// per encoding/json defaults; non-JSON bytes fall back to the raw text.
// Decode never fails.
func Decode(raw []byte) any {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return string(raw)
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return string(raw)
	}
	return v
}

// KeySeparator separates segments of a hierarchical key.
const KeySeparator = "."

// CanonicalKey returns the NFC-normalized form of a key.
// Keys typed in different Unicode compositions must address the same
// entry, so normalization happens before any match, read, or write.
func CanonicalKey(key string) string {
	return norm.NFC.String(key)
}

// ValidateKey checks that a key is well formed: non-empty, no whitespace,
// and no empty segments (leading, trailing, or doubled separators).
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return fmt.Errorf("key %q contains whitespace", key)
	}
	for _, segment := range strings.Split(key, KeySeparator) {
		if segment == "" {
			return fmt.Errorf("key %q has an empty segment", key)
		}
		if segment == "*" || segment == ">" {
			return fmt.Errorf("key %q contains a wildcard token", key)
		}
	}
	return nil
}
