package generator

import (
	"strings"
	"unicode"
)

const ellipsis = "..."

// Truncate shortens s to at most max characters. It prefers cutting after
// the last sentence terminator found in the final 20% of the allowed span
// and otherwise hard-cuts and appends an ellipsis.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	window := runes[:max]
	minCut := max - max/5
	for i := len(window) - 1; i >= minCut-1 && i >= 0; i-- {
		if isSentenceEnd(window, i) {
			return strings.TrimSpace(string(window[:i+1]))
		}
	}
	if max <= len(ellipsis) {
		return string(runes[:max])
	}
	cut := strings.TrimRightFunc(string(runes[:max-len(ellipsis)]), unicode.IsSpace)
	return cut + ellipsis
}

func isSentenceEnd(r []rune, i int) bool {
	switch r[i] {
	case '.', '!', '?', '\n':
	default:
		return false
	}
	// A terminator counts when followed by whitespace or at the slice end of
	// a naturally ending sentence; "3.5" or "e.g" mid-token do not.
	if i+1 < len(r) {
		return unicode.IsSpace(r[i+1])
	}
	return true
}

// normalizeTags trims, prefixes, de-duplicates and caps tags.
func normalizeTags(in []string, prefix string, max int) []string {
	if max <= 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, t := range in {
		t = strings.TrimSpace(t)
		t = strings.TrimLeft(t, "#@")
		t = strings.Join(strings.Fields(t), "")
		t = strings.TrimRight(t, ".,;:!?")
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, prefix+t)
		if len(out) == max {
			break
		}
	}
	return out
}

// SmartExcerpt cuts s to roughly max characters, preferring the last
// sentence boundary anywhere in the window, then the last word boundary.
func SmartExcerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return string(runes[:max])
	}
	window := runes[:max]
	for i := len(window) - 1; i >= max/3; i-- {
		if isSentenceEnd(window, i) {
			return strings.TrimSpace(string(window[:i+1]))
		}
	}
	cut := string(window[:max-len(ellipsis)])
	if sp := strings.LastIndexByte(cut, ' '); sp > len(cut)/2 {
		cut = cut[:sp]
	}
	return strings.TrimSpace(cut) + ellipsis
}
