package analysis

import (
	"strings"
	"testing"
)

func TestParseTriageJSON(t *testing.T) {
	raw := `{
  "issue_description": "Sync stalls on wide tables",
  "root_cause": "Missing index on staging table",
  "issue_theme": "Sync Stall",
  "root_cause_theme": "Missing Index",
  "test_case_needed": true,
  "test_case_needed_reason": "Clear cause, testable fix"
}`
	tr, err := ParseTriageJSON(raw)
	if err != nil {
		t.Fatalf("ParseTriageJSON: %v", err)
	}
	if tr.RootCause != "Missing index on staging table" || !tr.TestCaseNeeded {
		t.Errorf("unexpected result: %+v", tr)
	}
}

func TestParseTriageJSONCodeBlock(t *testing.T) {
	raw := "Here is the analysis:\n```json\n{\"issue_description\": \"x\", \"root_cause\": \"y\", \"test_case_needed\": false}\n```\nLet me know if you need more."
	tr, err := ParseTriageJSON(raw)
	if err != nil {
		t.Fatalf("ParseTriageJSON: %v", err)
	}
	if tr.IssueDescription != "x" || tr.RootCause != "y" || tr.TestCaseNeeded {
		t.Errorf("unexpected result: %+v", tr)
	}
}

func TestParseTriageJSONTrailingComma(t *testing.T) {
	raw := `{"issue_description": "x", "root_cause": "y",}`
	if _, err := ParseTriageJSON(raw); err != nil {
		t.Fatalf("trailing comma should be repaired: %v", err)
	}
}

func TestParseTriageJSONTruncated(t *testing.T) {
	raw := `{"issue_description": "pipeline drops rows", "root_cause": "buffer overflo`
	tr, err := ParseTriageJSON(raw)
	if err != nil {
		t.Fatalf("truncated output should be repaired: %v", err)
	}
	if !strings.HasPrefix(tr.RootCause, "buffer overflo") {
		t.Errorf("root cause = %q", tr.RootCause)
	}
}

func TestParseTriageJSONEmptyObject(t *testing.T) {
	if _, err := ParseTriageJSON(`{}`); err == nil {
		t.Fatal("expected error for object with no content")
	}
}

func TestParseTriageJSONNotJSON(t *testing.T) {
	if _, err := ParseTriageJSON("Issue Description:\nplain sections"); err == nil {
		t.Fatal("expected error for non-JSON input")
	}
}

func TestParseTestCaseJSON(t *testing.T) {
	raw := `{
  "regression_test_needed": true,
  "regression_test_needed_reason": "Fix must stay covered",
  "test_case_title": "Verify wide table sync",
  "test_case_description": "Checks staging index usage",
  "test_case_steps": ["Create a wide table", "  ", "Run a sync"]
}`
	tc, err := ParseTestCaseJSON(raw)
	if err != nil {
		t.Fatalf("ParseTestCaseJSON: %v", err)
	}
	if tc.RegressionTestNeeded == nil || !*tc.RegressionTestNeeded {
		t.Error("expected regression needed true")
	}
	if len(tc.Steps) != 2 {
		t.Errorf("blank steps should be dropped, got %v", tc.Steps)
	}
}

func TestParseTestCaseJSONNullRegression(t *testing.T) {
	raw := `{"regression_test_needed": null, "test_case_title": "T", "test_case_description": "D", "test_case_steps": []}`
	tc, err := ParseTestCaseJSON(raw)
	if err != nil {
		t.Fatalf("ParseTestCaseJSON: %v", err)
	}
	if tc.RegressionTestNeeded != nil {
		t.Error("null regression should stay unknown")
	}
	if tc.Steps != nil {
		t.Errorf("empty steps should be nil, got %v", tc.Steps)
	}
}

func TestExtractJSONObjectEmbedded(t *testing.T) {
	raw := `Sure! The result is {"a": {"b": "}"}} as requested.`
	got := extractJSONObject(raw)
	if got != `{"a": {"b": "}"}}` {
		t.Errorf("extractJSONObject = %q", got)
	}
}

func TestFixTrailingCommaInsideString(t *testing.T) {
	in := `{"a": "one, }", "b": 2,}`
	got := fixTrailingComma(in)
	if got != `{"a": "one, }", "b": 2}` {
		t.Errorf("fixTrailingComma = %q", got)
	}
}

func TestBalanceBrackets(t *testing.T) {
	got := balanceBrackets(`{"a": [1, 2`)
	if got != `{"a": [1, 2]}` {
		t.Errorf("balanceBrackets = %q", got)
	}
}
