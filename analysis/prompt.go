package analysis

import (
	"fmt"
	"strings"

	"ticket-triage/research"
)

// maxConversationChars bounds how much ticket text goes into a prompt so a
// pathological thread cannot blow the model's context window.
const maxConversationChars = 24000

const conversationFormatDoc = `CONVERSATION FORMAT:
- [CUSTOMER]: Messages from the customer who reported the issue
- [AGENT]: Public responses from support agents
- [AGENT - INTERNAL]: Internal notes (engineering discussions, root cause analysis)`

// BuildTriagePrompt assembles the first-phase prompt: summarize the issue,
// identify the root cause and themes, and decide whether a test case is
// warranted. metadata is optional pre-formatted ticket field context.
func BuildTriagePrompt(conversation, metadata string, jsonMode bool) string {
	var b strings.Builder
	b.WriteString("You are analyzing a customer support ticket for a data pipeline product.\n\n")
	if metadata != "" {
		b.WriteString(metadata)
		b.WriteString("\n\n")
	}
	b.WriteString(conversationFormatDoc)
	b.WriteString("\n\nTicket conversation:\n---\n")
	b.WriteString(truncateRunes(conversation, maxConversationChars))
	b.WriteString("\n---\n\n")
	b.WriteString(`Extract the following:

1. Issue Description: A clear, concise description of the customer's actual problem.
2. Root Cause: The specific technical root cause established in the thread. If the conversation never identifies one, write "Root cause not identified". Do not guess.
3. Issue Theme: A concise, descriptive theme (2-4 words) matching this specific issue. Avoid generic themes.
4. Root Cause Theme: A concise theme (2-4 words) derived directly from the root cause. If the root cause is not identified, use "Root Cause Not Identified".
5. Test Case Needed: "Yes" only when ALL of the following hold:
   - The root cause is clear and specific (this is required; a vague or unidentified root cause means "No")
   - The issue is not a user mistake or a product limitation (user config errors, misunderstandings, missing features, documented constraints all mean "No")
   - The issue requires a code or logic fix and could recur
   - The issue can be validated through testing
   Both functional and non-functional issues (performance, scalability, security) qualify if the root cause is clear.
`)
	if jsonMode {
		b.WriteString("\nRespond with a single JSON object, no other text:\n")
		b.WriteString(triageSchemaDoc)
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(`
Format output EXACTLY as follows:
Issue Description:
<your issue description>

Root Cause:
<your root cause, or "Root cause not identified">

Issue Theme:
<theme>

Root Cause Theme:
<theme>

Test Case Needed:
<Yes or No>
<brief reason>
`)
	return b.String()
}

// BuildTestCasePrompt assembles the synthesis prompt from a completed triage
// and optional research snippets gathered for the root cause.
func BuildTestCasePrompt(tr *TriageResult, snippets []research.Snippet, jsonMode bool) string {
	var b strings.Builder
	b.WriteString("You are a QA engineer creating a regression test case from a completed ticket analysis.\n\n")
	b.WriteString("TICKET ANALYSIS:\n")
	fmt.Fprintf(&b, "Issue Description: %s\n", tr.IssueDescription)
	fmt.Fprintf(&b, "Root Cause: %s\n", tr.RootCause)
	fmt.Fprintf(&b, "Issue Theme: %s\n", tr.IssueTheme)
	fmt.Fprintf(&b, "Root Cause Theme: %s\n", tr.RootCauseTheme)

	if len(snippets) > 0 {
		b.WriteString("\nRELATED REFERENCES (external search results, use only if relevant):\n")
		for _, sn := range snippets {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", sn.Source, sn.Title, truncateRunes(sn.Excerpt, 300))
		}
	}

	b.WriteString(`
REQUIREMENTS:
- The test case must be GENERIC and reusable: validate the pattern or class of issue, not the specific instance from the ticket. Use placeholders like "any column" or "the table" instead of names from the ticket.
- If the root cause is external (source system load, network failures, third-party outages), the test case must validate how the system DETECTS, HANDLES, and COMMUNICATES the failure (error messages, retries, timeouts, graceful degradation), never how it prevents the external failure itself.
- Regression Test Needed: "Yes" if this test should join the permanent regression suite, "No" if a one-off validation suffices, "N/A" if it cannot be determined from the analysis.
`)
	if jsonMode {
		b.WriteString("\nRespond with a single JSON object, no other text:\n")
		b.WriteString(testCaseSchemaDoc)
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(`
Format output EXACTLY as follows:
Regression Test Needed:
<Yes, No, or N/A>
<brief reason>

Test Case Title:
<short imperative title>

Test Case Description:
<what the test verifies and why it prevents recurrence>

Test Case Steps:
1. <step>
2. <step>
`)
	return b.String()
}

// BuildPriorityPrompt assembles the planning-analysis prompt used to extract
// priority signals from a ticket.
func BuildPriorityPrompt(conversation, metadata string) string {
	var b strings.Builder
	b.WriteString("You are analyzing a support ticket to help with planning prioritization.\n\n")
	if metadata != "" {
		b.WriteString(metadata)
		b.WriteString("\n\n")
	}
	b.WriteString(conversationFormatDoc)
	b.WriteString("\n\nTicket conversation:\n---\n")
	b.WriteString(truncateRunes(conversation, maxConversationChars))
	b.WriteString("\n---\n\n")
	b.WriteString(`Analyze this ticket and extract:

1. Clear Description: A concise summary of the customer's actual problem, understandable by non-technical stakeholders. 2-4 sentences.
2. AI Theme: A short recurring theme for this class of issue.
3. Product Area: Exactly one of: `)
	b.WriteString(strings.Join(ProductAreas, ", "))
	b.WriteString(`.
4. Is Blocker: "Yes" or "No" on the first line, then details if Yes.
5. Is Churn Risk: "Yes" or "No" on the first line, then details if Yes.
6. Is Escalation: "Yes" or "No" on the first line, then details if Yes.
7. Is Revenue Impact: "Yes" or "No" on the first line, then details if Yes.
8. Priority Score: Critical, High, Medium, or Low on the first line, then justification.

Format output EXACTLY as follows:
Clear Description:
<summary>

AI Theme:
<theme>

Product Area:
<one of the listed areas>

Is Blocker:
<Yes or No>
<details>

Is Churn Risk:
<Yes or No>
<details>

Is Escalation:
<Yes or No>
<details>

Is Revenue Impact:
<Yes or No>
<details>

Priority Score:
<Critical, High, Medium, or Low>
<justification>
`)
	return b.String()
}

// truncateRunes shortens s to at most n runes, appending a marker when cut.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "\n[... truncated ...]"
}
