// Package research runs the bounded plan, act and observe loop that
// investigates a workspace and ends with a quality-gated report.
package research

import (
	"context"

	"corawiki/internal/report"
)

// Stage labels a Step.
type Stage string

const (
	StagePlan   Stage = "PLAN"
	StageUpdate Stage = "UPDATE"
	StageFinal  Stage = "FINAL"
)

// State is the controller's position in the run.
type State string

const (
	StatePlanning   State = "PLANNING"
	StateExploring  State = "EXPLORING"
	StateFinalizing State = "FINALIZING"
	StateAccepted   State = "ACCEPTED"
	StateForced     State = "FORCED"
)

// Step is one recorded agent action. Steps are appended in order and never
// mutated.
type Step struct {
	Iteration int      `json:"iteration"`
	Stage     Stage    `json:"stage"`
	Action    string   `json:"action"`
	Input     string   `json:"input,omitempty"`
	Evidence  []string `json:"evidence"`
	Output    string   `json:"output"`
}

// Result is the immutable outcome of a run.
type Result struct {
	RunID           string            `json:"runId"`
	Query           string            `json:"query"`
	Plan            string            `json:"plan"`
	Updates         []string          `json:"updates"`
	Steps           []Step            `json:"steps"`
	FinalConclusion string            `json:"finalConclusion"`
	DebugLogPath    string            `json:"debugLogPath,omitempty"`
	Report          *report.Candidate `json:"report,omitempty"`
	Accepted        bool              `json:"accepted"`
	FinalState      State             `json:"finalState"`
}

// Options configures one run. Zero values select defaults.
type Options struct {
	MaxSteps       int
	MaxTotalTokens int

	PythonEnabled bool
	PythonPath    string
	ExtensionPath string
	// OnPythonFailure decides "skip" or "retry" after a python tool failure.
	OnPythonFailure func(ctx context.Context, tool, failure string) string

	// OnProgress receives human-readable status at each stage transition.
	OnProgress func(msg string)

	// DebugLogDir, when set, receives a markdown transcript of the run.
	DebugLogDir string

	Thresholds  *report.Thresholds
	ReadLines   int
	Concurrency int
}

const (
	DefaultMaxSteps       = 8
	DefaultMaxTotalTokens = 120000
)

func (o Options) withDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.MaxTotalTokens <= 0 {
		o.MaxTotalTokens = DefaultMaxTotalTokens
	}
	if o.Thresholds == nil {
		t := report.DefaultThresholds()
		o.Thresholds = &t
	}
	return o
}
