package analysis

import (
	"regexp"
	"sort"
	"strings"
)

const triageOverrideNote = "Root cause not identified; deferring test case until diagnosis is complete."

// Section headers produced by the triage prompt.
var triageHeaders = []string{
	"Issue Description",
	"Root Cause",
	"Issue Theme",
	"Root Cause Theme",
	"Test Case Needed",
}

// Section headers produced by the synthesis prompt. Older model snapshots
// sometimes shorten the regression header or drop the "Test Case" prefix, so
// the aliases stay recognized. The solution/scenario headers are parsed only
// as boundaries; their bodies are not stored.
var testCaseHeaders = []string{
	"Regression Test Needed",
	"Regression Needed",
	"Regression Test",
	"Test Case Title",
	"Test Case Description",
	"Test Case Steps",
	"Title",
	"Description",
	"Steps",
	"Recommended Solution Approach",
	"Additional Test Scenarios",
}

var priorityHeaders = []string{
	"Clear Description",
	"AI Theme",
	"Product Area",
	"Is Blocker",
	"Is Churn Risk",
	"Is Escalation",
	"Is Revenue Impact",
	"Priority Score",
}

// ParseSections splits a model response into header->body pairs. Headers are
// matched case-insensitively at the start of a line, tolerating markdown
// emphasis and list markers around them. A header seen twice keeps its first
// body. Returns ErrUnparseable when no recognized header appears.
func ParseSections(raw string, headers []string) (map[string]string, error) {
	// Longest-first so "Root Cause Theme" wins over "Root Cause".
	ordered := make([]string, len(headers))
	copy(ordered, headers)
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	sections := make(map[string]string)
	var current string
	var body []string

	flush := func() {
		if current == "" {
			return
		}
		if _, seen := sections[current]; !seen {
			sections[current] = strings.TrimSpace(strings.Join(body, "\n"))
		}
		current, body = "", nil
	}

	for _, line := range strings.Split(raw, "\n") {
		if header, rest, ok := matchHeader(line, ordered); ok {
			flush()
			current = header
			if rest != "" {
				body = append(body, rest)
			}
			continue
		}
		if current != "" {
			body = append(body, line)
		}
	}
	flush()

	if len(sections) == 0 {
		return nil, ErrUnparseable
	}
	return sections, nil
}

// matchHeader reports whether line opens one of the given sections, returning
// the canonical header and any value that follows the colon on the same line.
func matchHeader(line string, headers []string) (string, string, bool) {
	trimmed := strings.TrimLeft(strings.TrimSpace(line), "#*_`>- ")
	for _, h := range headers {
		if len(trimmed) < len(h) || !strings.EqualFold(trimmed[:len(h)], h) {
			continue
		}
		rest := strings.TrimLeft(trimmed[len(h):], "*_` ")
		if !strings.HasPrefix(rest, ":") {
			continue
		}
		rest = strings.TrimSpace(strings.Trim(rest[1:], "*_`"))
		return h, strings.TrimSpace(rest), true
	}
	return "", "", false
}

// ParseTriage parses a phase-one response into a TriageResult. A missing
// section yields an empty field rather than an error; only a response with no
// recognizable sections at all fails.
func ParseTriage(raw string) (*TriageResult, error) {
	sections, err := ParseSections(raw, triageHeaders)
	if err != nil {
		return nil, err
	}
	needed := sections["Test Case Needed"]
	return &TriageResult{
		IssueDescription:     sections["Issue Description"],
		RootCause:            sections["Root Cause"],
		IssueTheme:           sections["Issue Theme"],
		RootCauseTheme:       sections["Root Cause Theme"],
		TestCaseNeeded:       isYes(needed),
		TestCaseNeededReason: needed,
	}, nil
}

// ParseTestCase parses a synthesis response into a TestCaseResult.
func ParseTestCase(raw string) (*TestCaseResult, error) {
	sections, err := ParseSections(raw, testCaseHeaders)
	if err != nil {
		return nil, err
	}
	regression := sections["Regression Test Needed"]
	if regression == "" {
		for _, alias := range []string{"Regression Needed", "Regression Test"} {
			if v := sections[alias]; v != "" {
				regression = v
				break
			}
		}
	}
	return &TestCaseResult{
		RegressionTestNeeded: parseYesNoUnknown(regression),
		RegressionReason:     regression,
		Title:                firstLine(firstNonEmpty(sections, "Test Case Title", "Title")),
		Description:          firstNonEmpty(sections, "Test Case Description", "Description"),
		Steps:                splitSteps(firstNonEmpty(sections, "Test Case Steps", "Steps")),
	}, nil
}

func firstNonEmpty(sections map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := sections[k]; v != "" {
			return v
		}
	}
	return ""
}

// ParsePriority parses a planning-analysis response into a PriorityResult.
func ParsePriority(raw string) (*PriorityResult, error) {
	sections, err := ParseSections(raw, priorityHeaders)
	if err != nil {
		return nil, err
	}

	r := &PriorityResult{
		ClearDescription: sections["Clear Description"],
		AITheme:          firstLine(sections["AI Theme"]),
		ProductArea:      normalizeProductArea(sections["Product Area"]),
	}

	var details []string
	signal := func(name string) bool {
		yes, d := parseSignal(sections[name])
		if yes && d != "" {
			details = append(details, d)
		}
		return yes
	}
	r.IsBlocker = signal("Is Blocker")
	r.IsChurnRisk = signal("Is Churn Risk")
	r.IsEscalation = signal("Is Escalation")
	r.IsRevenueImpact = signal("Is Revenue Impact")
	r.SignalDetails = strings.Join(details, " | ")
	r.PriorityScore = parsePriorityScore(sections["Priority Score"])
	return r, nil
}

// RootCauseUnidentified reports whether a root cause string indicates the
// model could not determine the underlying issue. Prefix matches stay
// prefix-only so a real cause that merely mentions "unknown" is not flagged.
func RootCauseUnidentified(rootCause string) bool {
	rc := strings.ToLower(strings.TrimSpace(rootCause))
	if rc == "" {
		return true
	}
	for _, marker := range []string{
		"root cause not identified",
		"root cause could not be identified",
		"unable to determine",
		"not identified",
	} {
		if strings.Contains(rc, marker) {
			return true
		}
	}
	for _, prefix := range []string{"unknown", "unclear", "n/a"} {
		if strings.HasPrefix(rc, prefix) {
			return true
		}
	}
	return false
}

func isYes(s string) bool {
	return strings.HasPrefix(strings.ToUpper(firstLine(s)), "YES")
}

// parseYesNoUnknown maps a regression answer to true/false, or nil when the
// model declined to answer.
func parseYesNoUnknown(s string) *bool {
	first := strings.ToUpper(firstLine(s))
	if first == "" || strings.HasPrefix(first, "N/A") || strings.HasPrefix(first, "NOT APPLICABLE") {
		return nil
	}
	yes := strings.HasPrefix(first, "YES")
	return &yes
}

func parseSignal(s string) (bool, string) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return false, ""
	}
	yes := strings.HasPrefix(strings.ToUpper(strings.TrimSpace(lines[0])), "YES")
	return yes, strings.TrimSpace(strings.Join(lines[1:], "\n"))
}

func normalizeProductArea(s string) string {
	s = firstLine(s)
	for _, area := range ProductAreas {
		if strings.EqualFold(s, area) {
			return area
		}
	}
	lower := strings.ToLower(s)
	for _, area := range ProductAreas {
		al := strings.ToLower(area)
		if lower != "" && (strings.Contains(lower, al) || strings.Contains(al, lower)) {
			return area
		}
	}
	return "Other"
}

func parsePriorityScore(s string) string {
	first := strings.ToLower(firstLine(s))
	switch {
	case strings.Contains(first, "critical"):
		return "Critical"
	case strings.Contains(first, "high"):
		return "High"
	case strings.Contains(first, "low"):
		return "Low"
	default:
		return "Medium"
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

var reStepPrefix = regexp.MustCompile(`(?i)^(?:step\s*\d+[:.)]?|\d+[.)]|[-•*])\s*`)

// splitSteps turns a bulleted or numbered step list into clean step strings.
func splitSteps(s string) []string {
	var steps []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(reStepPrefix.ReplaceAllString(line, ""))
		if line != "" {
			steps = append(steps, line)
		}
	}
	return steps
}
