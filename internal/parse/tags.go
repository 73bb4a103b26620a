// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package parse turns untrusted completion text into typed values. Parsers
// never fail: segments that cannot be used are returned in Rejected so the
// caller can log them and carry on with what was valid.
package parse

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdiddy/paper-reader/pkg/types"
)

// MaxTagLen bounds a single label. Longer segments are prose, not tags.
const MaxTagLen = 64

// Result is the outcome of parsing a tag list.
type Result struct {
	Items    []types.RawTag
	Rejected []string
}

// Malformed reports whether nothing usable was parsed from a non-empty
// response.
func (r Result) Malformed() bool {
	return len(r.Items) == 0 && len(r.Rejected) > 0
}

// Keys returns the keys of the parsed items in order.
func (r Result) Keys() []string {
	keys := make([]string, len(r.Items))
	for i, it := range r.Items {
		keys[i] = it.Key
	}
	return keys
}

var (
	bulletRe   = regexp.MustCompile(`^(?:[-*•+]|\d+[.)])\s+`)
	labelRe    = regexp.MustCompile(`(?i)^(?:tags?|labels?|canonical(?: tags?)?)\s*:\s*`)
	separators = func(r rune) bool { return r == ',' || r == '\n' || r == ';' }
)

// TagList parses a comma- or newline-separated list. Items are deduplicated
// on their slug key, keeping the first spelling. When limit is positive at
// most limit items are kept and the rest are rejected.
func TagList(response string, limit int) Result {
	var res Result
	seen := make(map[string]bool)
	for _, seg := range strings.FieldsFunc(response, separators) {
		display := cleanSegment(seg)
		if display == "" {
			continue
		}
		if utf8.RuneCountInString(display) > MaxTagLen {
			res.Rejected = append(res.Rejected, display)
			continue
		}
		if !strings.ContainsFunc(display, isAlnum) {
			res.Rejected = append(res.Rejected, display)
			continue
		}
		key := types.Slugify(display)
		if seen[key] {
			continue
		}
		if limit > 0 && len(res.Items) >= limit {
			res.Rejected = append(res.Rejected, display)
			continue
		}
		seen[key] = true
		res.Items = append(res.Items, types.RawTag{Key: key, Display: display})
	}
	return res
}

// Restrict keeps only items whose key is in allowed. Everything else moves
// to Rejected.
func Restrict(r Result, allowed map[string]bool) Result {
	out := Result{Rejected: append([]string(nil), r.Rejected...)}
	for _, it := range r.Items {
		if allowed[it.Key] {
			out.Items = append(out.Items, it)
			continue
		}
		out.Rejected = append(out.Rejected, it.Display)
	}
	return out
}

// cleanSegment strips list decoration, quoting and trailing punctuation.
func cleanSegment(seg string) string {
	s := strings.TrimSpace(seg)
	s = labelRe.ReplaceAllString(s, "")
	s = bulletRe.ReplaceAllString(s, "")
	s = strings.Trim(s, "\"'`*_ \t")
	s = strings.TrimRight(s, ".")
	return strings.TrimSpace(s)
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
