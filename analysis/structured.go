package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// triageSchemaDoc documents the JSON shape the triage prompt requests when
// structured output is enabled.
const triageSchemaDoc = `{
  "issue_description": "one or two sentences describing the customer-facing problem",
  "root_cause": "technical root cause, or 'Root cause not identified' if the thread never establishes one",
  "issue_theme": "short recurring theme for the symptom",
  "root_cause_theme": "short recurring theme for the cause",
  "test_case_needed": true,
  "test_case_needed_reason": "one sentence explaining the decision"
}`

// testCaseSchemaDoc documents the JSON shape the synthesis prompt requests
// when structured output is enabled.
const testCaseSchemaDoc = `{
  "regression_test_needed": true,
  "regression_test_needed_reason": "one sentence, or 'N/A' if it cannot be determined",
  "test_case_title": "short imperative title",
  "test_case_description": "what the test verifies and why it prevents recurrence",
  "test_case_steps": ["step 1", "step 2"]
}`

type triageJSON struct {
	IssueDescription     string `json:"issue_description"`
	RootCause            string `json:"root_cause"`
	IssueTheme           string `json:"issue_theme"`
	RootCauseTheme       string `json:"root_cause_theme"`
	TestCaseNeeded       bool   `json:"test_case_needed"`
	TestCaseNeededReason string `json:"test_case_needed_reason"`
}

type testCaseJSON struct {
	RegressionTestNeeded *bool    `json:"regression_test_needed"`
	RegressionReason     string   `json:"regression_test_needed_reason"`
	Title                string   `json:"test_case_title"`
	Description          string   `json:"test_case_description"`
	Steps                []string `json:"test_case_steps"`
}

// ParseTriageJSON parses a structured triage response, applying local
// deterministic repairs (code-block extraction, trailing commas, truncated
// output) before giving up.
func ParseTriageJSON(raw string) (*TriageResult, error) {
	obj, err := repairJSON(raw)
	if err != nil {
		return nil, err
	}
	var t triageJSON
	if err := json.Unmarshal([]byte(obj), &t); err != nil {
		return nil, fmt.Errorf("unmarshal triage: %w", err)
	}
	if t.IssueDescription == "" && t.RootCause == "" {
		return nil, fmt.Errorf("triage JSON missing issue_description and root_cause")
	}
	return &TriageResult{
		IssueDescription:     t.IssueDescription,
		RootCause:            t.RootCause,
		IssueTheme:           t.IssueTheme,
		RootCauseTheme:       t.RootCauseTheme,
		TestCaseNeeded:       t.TestCaseNeeded,
		TestCaseNeededReason: t.TestCaseNeededReason,
	}, nil
}

// ParseTestCaseJSON parses a structured synthesis response.
func ParseTestCaseJSON(raw string) (*TestCaseResult, error) {
	obj, err := repairJSON(raw)
	if err != nil {
		return nil, err
	}
	var t testCaseJSON
	if err := json.Unmarshal([]byte(obj), &t); err != nil {
		return nil, fmt.Errorf("unmarshal test case: %w", err)
	}
	if t.Title == "" && t.Description == "" && len(t.Steps) == 0 {
		return nil, fmt.Errorf("test case JSON has no content")
	}
	steps := make([]string, 0, len(t.Steps))
	for _, s := range t.Steps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		steps = nil
	}
	return &TestCaseResult{
		RegressionTestNeeded: t.RegressionTestNeeded,
		RegressionReason:     t.RegressionReason,
		Title:                t.Title,
		Description:          t.Description,
		Steps:                steps,
	}, nil
}

// repairJSON extracts a JSON object from raw model output, applying local
// fixes in order: code-block extraction, trailing-comma removal, closing
// truncated strings and brackets, then a balanced-object scan over the full
// text.
func repairJSON(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("empty input")
	}

	candidate := extractJSONBlock(raw)
	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}

	fixed := fixTrailingComma(candidate)
	fixed = fixUnterminatedString(fixed)
	if json.Valid([]byte(fixed)) {
		return fixed, nil
	}

	if obj := extractJSONObject(raw); obj != "" && obj != candidate {
		obj = fixUnterminatedString(fixTrailingComma(obj))
		if json.Valid([]byte(obj)) {
			return obj, nil
		}
	}

	return "", fmt.Errorf("no parseable JSON object after local fixes")
}

var reJSONBlock = regexp.MustCompile("(?s)```json\\s*\\n?(.*?)```")
var reCodeBlock = regexp.MustCompile("(?s)```\\s*\\n?(.*?)```")

// extractJSONBlock extracts JSON from ```json ... ``` code blocks. If no
// code block is found, returns the input trimmed.
func extractJSONBlock(raw string) string {
	if matches := reJSONBlock.FindStringSubmatch(raw); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	if matches := reCodeBlock.FindStringSubmatch(raw); len(matches) > 1 {
		candidate := strings.TrimSpace(matches[1])
		if len(candidate) > 0 && candidate[0] == '{' {
			return candidate
		}
	}
	return strings.TrimSpace(raw)
}

// extractJSONObject finds the first balanced { ... } object in the text.
func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		if escaped {
			escaped = false
			continue
		}
		c := raw[i]
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if c == '{' {
			depth++
		} else if c == '}' {
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	// Unbalanced: truncated output, return from start to end
	return raw[start:]
}

// fixTrailingComma removes trailing commas before } and ], respecting string
// boundaries so commas inside strings are untouched.
func fixTrailingComma(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}
		if c == '\\' && inString {
			escaped = true
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = !inString
			b.WriteByte(c)
			continue
		}
		if inString {
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// fixUnterminatedString closes unterminated strings and unbalanced brackets
// at the end of truncated JSON output.
func fixUnterminatedString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	inString := false
	escaped := false
	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		if r == '\\' && inString {
			escaped = true
			continue
		}
		if r == '"' {
			inString = !inString
		}
	}
	if inString {
		s += `"`
	}
	return balanceBrackets(s)
}

// balanceBrackets appends missing } and ] to close unbalanced JSON.
func balanceBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
