package zendesk

import (
	"strings"
	"testing"
)

func TestConversationFiltersPrivateComments(t *testing.T) {
	comments := []Comment{
		{Body: "my pipeline failed", Public: true},
		{Body: "internal note: looks like a schema drift", Public: false},
		{Body: "we are looking into it", Public: true},
	}

	got := Conversation(comments)
	want := "my pipeline failed\n---\nwe are looking into it"
	if got != want {
		t.Errorf("Conversation() = %q, want %q", got, want)
	}
	if strings.Contains(got, "internal note") {
		t.Error("private comment leaked into conversation")
	}
}

func TestConversationEmpty(t *testing.T) {
	if got := Conversation(nil); got != "" {
		t.Errorf("Conversation(nil) = %q, want empty", got)
	}
	if got := Conversation([]Comment{{Body: "hidden", Public: false}}); got != "" {
		t.Errorf("Conversation(private only) = %q, want empty", got)
	}
}

func TestStructuredConversationLabels(t *testing.T) {
	ticket := &Ticket{RequesterID: 100}
	comments := []Comment{
		{AuthorID: 100, Body: "loads are delayed", Public: true},
		{AuthorID: 200, Body: "checking your pipeline now", Public: true},
		{AuthorID: 200, Body: "root cause is a quota limit", Public: false},
	}

	got := StructuredConversation(ticket, comments)
	for _, want := range []string{
		"[CUSTOMER]\nloads are delayed",
		"[AGENT]\nchecking your pipeline now",
		"[AGENT - INTERNAL]\nroot cause is a quota limit",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("StructuredConversation missing %q in:\n%s", want, got)
		}
	}
}

func TestStructuredConversationSkipsBlankBodies(t *testing.T) {
	got := StructuredConversation(nil, []Comment{{Body: "   "}, {Body: "real", Public: true}})
	if got != "[AGENT]\nreal" {
		t.Errorf("StructuredConversation() = %q", got)
	}
}
