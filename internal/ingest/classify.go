package ingest

import "strings"

// cueTokens are cheap signals that a message might be a call. The
// classifier is intentionally permissive: it must never reject a
// message the parser would go on to accept, so any ambiguous text
// passes through.
var cueTokens = []string{
	"x", "cap", "entry", "peak", "bonded", "ca:", "$",
	"🎉", "🔥", "🌕", "⚡", "🚀", "🌙", "💹", "↗️",
}

// looksLikeCall is a cheap pre-filter run before the full parser. It
// trades precision for speed: false positives just cost a wasted parse
// attempt, but a false negative would silently drop a real call.
func looksLikeCall(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, token := range cueTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
