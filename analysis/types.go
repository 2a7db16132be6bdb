// Package analysis runs the multi-phase LLM pipeline that turns a support
// ticket conversation into a stored triage summary and, when warranted, a
// regression test case.
package analysis

import "errors"

// ErrUnparseable is returned when a model response contains none of the
// section headers the parser recognizes.
var ErrUnparseable = errors.New("analysis: response contains no recognized sections")

// TriageResult is the outcome of the first analysis phase.
type TriageResult struct {
	IssueDescription     string
	RootCause            string
	IssueTheme           string
	RootCauseTheme       string
	TestCaseNeeded       bool
	TestCaseNeededReason string
}

// TestCaseResult is the outcome of the synthesis phase. RegressionTestNeeded
// is nil when the model declined to answer (N/A or missing).
type TestCaseResult struct {
	RegressionTestNeeded *bool
	RegressionReason     string
	Title                string
	Description          string
	Steps                []string
}

// PriorityResult captures the planning signals extracted from a ticket.
type PriorityResult struct {
	ClearDescription string
	AITheme          string
	ProductArea      string
	IsBlocker        bool
	IsChurnRisk      bool
	IsEscalation     bool
	IsRevenueImpact  bool
	SignalDetails    string
	PriorityScore    string
}

// ProductAreas is the closed set of product areas a ticket can map to.
// Unrecognized model output falls back to "Other".
var ProductAreas = []string{
	"Connectors",
	"Pipelines",
	"Destinations",
	"Transforms",
	"Activation",
	"Platform",
	"Performance",
	"Other",
}
