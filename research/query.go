package research

import (
	"regexp"
	"strings"
)

var (
	reTicketRef  = regexp.MustCompile(`(?i)\bticket\s*#?\d+\b|#\d+\b`)
	reLongID     = regexp.MustCompile(`\b[0-9a-fA-F-]{16,}\b|\b\d{8,}\b`)
	reEmail      = regexp.MustCompile(`\S+@\S+`)
	reURL        = regexp.MustCompile(`https?://\S+`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

const maxQueryLen = 120

// BuildQuery turns a root-cause statement into a search query: drop
// ticket-specific identifiers, keep the technical phrasing, and cap the
// length. Returns "" when nothing searchable remains.
func BuildQuery(rootCause string) string {
	q := reURL.ReplaceAllString(rootCause, " ")
	q = reEmail.ReplaceAllString(q, " ")

	// Only the first sentence carries the diagnosis; the rest is usually
	// ticket-specific narrative.
	if idx := strings.IndexAny(q, ".\n"); idx > 20 {
		q = q[:idx]
	}

	q = reTicketRef.ReplaceAllString(q, " ")
	q = reLongID.ReplaceAllString(q, " ")
	q = reWhitespace.ReplaceAllString(q, " ")
	q = strings.TrimSpace(q)

	if len(q) > maxQueryLen {
		cut := q[:maxQueryLen]
		if idx := strings.LastIndex(cut, " "); idx > 0 {
			cut = cut[:idx]
		}
		q = cut
	}
	// A couple of leftover words is noise, not a query.
	if len(strings.Fields(q)) < 2 {
		return ""
	}
	return q
}
