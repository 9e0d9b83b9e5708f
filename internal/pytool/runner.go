// Package pytool runs the companion Python tool runner as a subprocess.
//
// The runner reads one JSON request from stdin and writes one JSON reply to
// stdout. Every failure mode is reported as a Result with OK=false and an
// error string carrying one of the marker prefixes below; nothing here
// returns a Go error.
package pytool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// MarkerUnavailable prefixes errors where the runner could not be started.
	MarkerUnavailable = "python_tool_unavailable"
	// MarkerFailed prefixes errors raised after the runner started.
	MarkerFailed = "python_tool_failed"
	// MarkerSkipped marks calls suppressed by a cached skip decision.
	MarkerSkipped = "python_tool_skipped"

	// RunnerDir and RunnerScript locate the runner under the extension root.
	RunnerDir    = "corawiki-pytools"
	RunnerScript = "runner.py"

	DefaultInterpreter = "python3"
	DefaultTimeout     = 60 * time.Second
)

// Tool kinds understood by the runner.
const (
	ToolExtractImportGraph = "extract_import_graph"
	ToolAnalyzeComplexity  = "analyze_complexity"
)

// Result mirrors the runner's stdout contract.
type Result struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func unavailable(format string, args ...any) Result {
	return Result{OK: false, Error: MarkerUnavailable + ": " + fmt.Sprintf(format, args...)}
}

func failed(format string, args ...any) Result {
	return Result{OK: false, Error: MarkerFailed + ": " + fmt.Sprintf(format, args...)}
}

// IsUnavailable reports whether r failed because the runner could not start.
func (r Result) IsUnavailable() bool {
	return !r.OK && strings.HasPrefix(r.Error, MarkerUnavailable)
}

type request struct {
	Tool          string `json:"tool"`
	Args          any    `json:"args"`
	WorkspacePath string `json:"workspacePath"`
}

// ScriptPath returns the runner location under extensionPath.
func ScriptPath(extensionPath string) string {
	return filepath.Join(extensionPath, RunnerDir, RunnerScript)
}

func locate(extensionPath, interpreterPath string) (script, interp string, res *Result) {
	if strings.TrimSpace(extensionPath) == "" {
		r := unavailable("extension path is empty")
		return "", "", &r
	}
	script = ScriptPath(extensionPath)
	if info, err := os.Stat(script); err != nil || info.IsDir() {
		r := unavailable("runner script not found at %s", script)
		return "", "", &r
	}
	interp = strings.TrimSpace(interpreterPath)
	if interp == "" {
		interp = DefaultInterpreter
	}
	return script, interp, nil
}

// Run executes one runner tool. The reply is decoded from the last non-empty
// stdout line so stray prints before it do not break decoding.
func Run(ctx context.Context, extensionPath, interpreterPath, toolName string, args any, workspacePath string) Result {
	script, interp, res := locate(extensionPath, interpreterPath)
	if res != nil {
		return *res
	}
	payload, err := json.Marshal(request{Tool: toolName, Args: args, WorkspacePath: workspacePath})
	if err != nil {
		return failed("encode request: %v", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, interp, script)
	cmd.Dir = filepath.Dir(script)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return unavailable("interpreter %q failed to start: %v", interp, err)
	}
	waitErr := cmd.Wait()

	out, decodeErr := decodeLastLine(stdout.Bytes())
	if decodeErr == nil {
		if !out.OK && out.Error == "" {
			out.Error = "runner reported failure without message"
		}
		if !out.OK && !strings.HasPrefix(out.Error, MarkerFailed) {
			out.Error = MarkerFailed + ": " + out.Error
		}
		return out
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return failed("runner exited with code %d: %s", exitErr.ExitCode(), tail(stderr.String(), 400))
		}
		return failed("runner: %v", waitErr)
	}
	return failed("decode runner output: %v", decodeErr)
}

// CheckAvailable is a lightweight liveness probe: the same path checks as Run,
// then `<interpreter> --version`.
func CheckAvailable(ctx context.Context, extensionPath, interpreterPath string) Result {
	_, interp, res := locate(extensionPath, interpreterPath)
	if res != nil {
		return *res
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, interp, "--version").CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return failed("interpreter %q exited with code %d", interp, exitErr.ExitCode())
		}
		return unavailable("interpreter %q failed to start: %v", interp, err)
	}
	version, _ := json.Marshal(strings.TrimSpace(string(out)))
	return Result{OK: true, Result: version}
}

func decodeLastLine(stdout []byte) (Result, error) {
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var r Result
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return Result{}, err
		}
		return r, nil
	}
	return Result{}, errors.New("empty output")
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
