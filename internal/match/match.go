// Package match implements wildcard filters over hierarchical keys.
//
// A filter is evaluated segment-by-segment against a concrete key.
// Two wildcard tokens exist:
//   - "*" matches exactly one segment
//   - ">" matches one or more trailing segments and must be the last token
//
// Filters scope snapshot enumeration and watch streams; the mirror also
// re-validates incoming watch events against its filter in case the
// backend does not filter server-side.
package match

import "strings"

// MatchAll is the filter that matches every key.
const MatchAll = ">"

// separator between key and filter segments.
const separator = "."

// Match reports whether key matches filter.
//
// An empty filter matches every key. An empty key matches nothing.
func Match(filter, key string) bool {
	if key == "" {
		return false
	}
	if filter == "" || filter == MatchAll {
		return true
	}

	ftoks := strings.Split(filter, separator)
	ktoks := strings.Split(key, separator)

	for i, tok := range ftoks {
		if tok == ">" {
			// ">" must consume at least one remaining key segment.
			return i < len(ktoks)
		}
		if i >= len(ktoks) {
			return false
		}
		if tok != "*" && tok != ktoks[i] {
			return false
		}
	}

	return len(ftoks) == len(ktoks)
}

// Valid reports whether filter is well formed: no empty segments, and ">"
// only in the final position. "*" may appear in any position.
func Valid(filter string) bool {
	if filter == "" {
		return true
	}
	toks := strings.Split(filter, separator)
	for i, tok := range toks {
		if tok == "" {
			return false
		}
		if tok == ">" && i != len(toks)-1 {
			return false
		}
	}
	return true
}
