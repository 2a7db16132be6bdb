package zendesk

import "strings"

const commentSeparator = "\n---\n"

// PublicComments filters a comment thread down to customer-visible entries.
func PublicComments(comments []Comment) []Comment {
	var out []Comment
	for _, c := range comments {
		if c.Public {
			out = append(out, c)
		}
	}
	return out
}

// Conversation joins the public comment bodies into a single transcript.
// Returns "" when the thread has no public comments.
func Conversation(comments []Comment) string {
	var bodies []string
	for _, c := range PublicComments(comments) {
		body := strings.TrimSpace(c.Body)
		if body != "" {
			bodies = append(bodies, body)
		}
	}
	return strings.Join(bodies, commentSeparator)
}

// StructuredConversation renders the full thread with speaker labels,
// using the ticket requester to tell customer comments from agent ones.
// Internal notes are included and marked so the analyzers can weigh them.
func StructuredConversation(t *Ticket, comments []Comment) string {
	var parts []string
	for _, c := range comments {
		body := strings.TrimSpace(c.Body)
		if body == "" {
			continue
		}
		var label string
		switch {
		case t != nil && c.AuthorID == t.RequesterID:
			label = "[CUSTOMER]"
		case c.Public:
			label = "[AGENT]"
		default:
			label = "[AGENT - INTERNAL]"
		}
		parts = append(parts, label+"\n"+body)
	}
	return strings.Join(parts, commentSeparator)
}
