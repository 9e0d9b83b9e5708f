package pytool

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// installRunner writes a shell script in place of runner.py so tests can use
// /bin/sh as the interpreter.
func installRunner(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	ext := t.TempDir()
	dir := filepath.Join(ext, RunnerDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, RunnerScript), []byte(body), 0o755))
	return ext
}

func TestRun_EmptyHostPath(t *testing.T) {
	r := Run(context.Background(), "", "", ToolExtractImportGraph, FileArgs{}, t.TempDir())
	assert.False(t, r.OK)
	assert.True(t, r.IsUnavailable())
	assert.Contains(t, r.Error, "extension path is empty")
}

func TestRun_MissingScript(t *testing.T) {
	r := Run(context.Background(), t.TempDir(), "", ToolExtractImportGraph, FileArgs{}, t.TempDir())
	assert.True(t, r.IsUnavailable())
	assert.Contains(t, r.Error, "runner script not found")
}

func TestRun_InterpreterFailsToStart(t *testing.T) {
	ext := installRunner(t, "")
	r := Run(context.Background(), ext, filepath.Join(t.TempDir(), "no-such-python"), ToolExtractImportGraph, FileArgs{}, t.TempDir())
	assert.True(t, r.IsUnavailable())
	assert.Contains(t, r.Error, "failed to start")
}

func TestRun_DecodesSuccess(t *testing.T) {
	ext := installRunner(t, `read payload
echo "warming up"
echo '{"ok": true, "result": [{"filePath": "a.py", "imports": ["os"], "localDeps": [], "externalDeps": ["os"]}]}'
`)
	r := Run(context.Background(), ext, "sh", ToolExtractImportGraph, FileArgs{FilePaths: []string{"a.py"}}, t.TempDir())
	require.True(t, r.OK, r.Error)
	var entries []ImportGraphEntry
	require.NoError(t, json.Unmarshal(r.Result, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"os"}, entries[0].ExternalDeps)
}

func TestRun_ReportedFailureIsMarked(t *testing.T) {
	ext := installRunner(t, `echo '{"ok": false, "error": "unknown tool: x"}'`)
	r := Run(context.Background(), ext, "sh", "x", nil, t.TempDir())
	assert.False(t, r.OK)
	assert.True(t, strings.HasPrefix(r.Error, MarkerFailed), r.Error)
	assert.False(t, r.IsUnavailable())
}

func TestRun_NonZeroExitWithoutJSON(t *testing.T) {
	ext := installRunner(t, "echo boom >&2\nexit 3\n")
	r := Run(context.Background(), ext, "sh", ToolAnalyzeComplexity, FileArgs{}, t.TempDir())
	assert.False(t, r.OK)
	assert.Contains(t, r.Error, "code 3")
	assert.Contains(t, r.Error, "boom")
}

func TestCheckAvailable(t *testing.T) {
	assert.True(t, CheckAvailable(context.Background(), "", "").IsUnavailable())

	ext := installRunner(t, "")
	r := CheckAvailable(context.Background(), ext, filepath.Join(t.TempDir(), "missing"))
	assert.True(t, r.IsUnavailable())

	r = ExecRunner{ExtensionPath: ext, InterpreterPath: "sh"}.CheckAvailable(context.Background())
	// sh --version is not portable; either outcome must be a structured Result.
	if !r.OK {
		assert.NotEmpty(t, r.Error)
	}
}
