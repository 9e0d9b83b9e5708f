package inspect

import (
	"context"
	"strings"
	"sync"

	"corawiki/internal/pytool"
)

// Recovery decisions returned by a RecoveryFunc.
const (
	DecisionSkip  = "skip"
	DecisionRetry = "retry"
)

// RecoveryFunc is consulted when a python-backed tool fails at runtime. It
// returns DecisionSkip or DecisionRetry; anything else is treated as retry.
type RecoveryFunc func(ctx context.Context, tool, failure string) string

// PythonBridge routes python-backed tools to a pytool.Runner and keeps the
// per-run recovery memo: the callback fires at most once per tool kind, and a
// skip decision short-circuits every later call of that kind.
type PythonBridge struct {
	Enabled   bool
	Runner    pytool.Runner
	OnFailure RecoveryFunc

	mu        sync.Mutex
	decisions map[string]string
}

// NewPythonBridge returns a bridge for one run.
func NewPythonBridge(enabled bool, runner pytool.Runner, onFailure RecoveryFunc) *PythonBridge {
	return &PythonBridge{Enabled: enabled, Runner: runner, OnFailure: onFailure}
}

// Decision returns the memoized decision for a tool kind, if any.
func (b *PythonBridge) Decision(tool string) (string, bool) {
	if b == nil {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.decisions[tool]
	return d, ok
}

// Call runs a python-backed tool. It never returns a Go error; failures are
// reported through the marker-carrying Result.
func (b *PythonBridge) Call(ctx context.Context, tool string, args any, workspace string) pytool.Result {
	if b == nil || !b.Enabled || b.Runner == nil {
		return pytool.Result{Error: pytool.MarkerUnavailable + ": python tooling is disabled for this run"}
	}
	if d, ok := b.Decision(tool); ok && d == DecisionSkip {
		return skipped(tool, "")
	}

	res := b.Runner.Run(ctx, tool, args, workspace)
	if res.OK || res.IsUnavailable() || b.OnFailure == nil {
		return res
	}

	b.mu.Lock()
	d, decided := b.decisions[tool]
	if !decided {
		d = DecisionRetry
		if strings.EqualFold(strings.TrimSpace(b.OnFailure(ctx, tool, res.Error)), DecisionSkip) {
			d = DecisionSkip
		}
		if b.decisions == nil {
			b.decisions = map[string]string{}
		}
		b.decisions[tool] = d
	}
	b.mu.Unlock()

	switch {
	case d == DecisionSkip:
		return skipped(tool, res.Error)
	case !decided:
		// One retry right after the callback elected it; later failures of
		// the same kind are returned as-is.
		return b.Runner.Run(ctx, tool, args, workspace)
	default:
		return res
	}
}

func skipped(tool, cause string) pytool.Result {
	msg := pytool.MarkerSkipped + ": " + tool + " skipped for the rest of this run"
	if cause != "" {
		msg += " (" + cause + ")"
	}
	return pytool.Result{Error: msg}
}
