package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"corawiki/internal/pytool"
	"corawiki/internal/safeio"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const sampleTS = `import { readFile } from "fs";

export function greet(name: string): string {
  return "hello " + name;
}

class Greeter {
  greet() {
    return greet("x");
  }
}
`

type workspace struct {
	root  string
	exec  *Executor
	guard *Guard
	known *Discovered
}

func newWorkspace(t *testing.T, files map[string]string, opts ...ExecutorOption) *workspace {
	t.Helper()
	dir := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	fs, err := safeio.NewSafeFS(dir)
	require.NoError(t, err)
	exec := NewExecutor(fs, opts...)
	return &workspace{
		root:  fs.Root(),
		exec:  exec,
		guard: NewGuard(exec, nil),
		known: NewDiscovered(fs.Root()),
	}
}

func TestDecodeCall(t *testing.T) {
	c, err := DecodeCall("read_full_code", json.RawMessage(`{"filePath":"src/a.ts","maxLines":10}`))
	require.NoError(t, err)
	assert.Equal(t, ReadFullCode{FilePath: "src/a.ts", MaxLines: 10}, c)

	c, err = DecodeCall("list_dir", nil)
	require.NoError(t, err)
	assert.Equal(t, []Target{{Path: ".", Dir: true}}, c.Targets())

	_, err = DecodeCall("rm_rf", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = DecodeCall("read_skeleton", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrBadArgs)

	_, err = DecodeCall("extract_import_graph", json.RawMessage(`{"filePaths":"oops"}`))
	assert.ErrorIs(t, err, ErrBadArgs)
}

func TestDiscovered_RootSeededAndAncestorContainment(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "ws")
	d := NewDiscovered(root)
	assert.True(t, d.HasDir(root))

	file := filepath.Join(root, "src", "pkg", "a.go")
	d.AddFile(file)
	assert.True(t, d.HasFile(file))
	assert.True(t, d.HasDir(filepath.Join(root, "src")))
	assert.True(t, d.HasDir(filepath.Join(root, "src", "pkg")))
	assert.False(t, d.HasDir(filepath.Join(root, "lib")))
	assert.False(t, d.HasFile(filepath.Join(root, "src", "pkg", "b.go")))
	assert.False(t, d.HasDir(file))

	files, dirs := d.Len()
	assert.Equal(t, 1, files)
	assert.Equal(t, 1, dirs)
}

func TestGuard_BlocksUntilParentListed(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"src/sample.ts": sampleTS})
	ctx := context.Background()
	read := ReadFullCode{FilePath: "src/sample.ts"}

	out := ws.guard.Execute(ctx, read, ws.known)
	assert.True(t, out.Blocked)
	assert.Contains(t, out.Context, BlockedMarker)
	assert.Contains(t, out.Context, "已知目录 (1): .")
	assert.Empty(t, out.Evidence)

	// The parent is unknown too until the root is listed.
	out = ws.guard.Execute(ctx, ListDir{TargetPath: "src"}, ws.known)
	assert.True(t, out.Blocked)

	out = ws.guard.Execute(ctx, ListDir{TargetPath: "."}, ws.known)
	require.False(t, out.Blocked)
	assert.Contains(t, out.Context, "[dir]  src/")

	out = ws.guard.Execute(ctx, ListDir{TargetPath: "src"}, ws.known)
	require.False(t, out.Blocked)
	assert.Contains(t, out.Context, "[file] src/sample.ts")

	out = ws.guard.Execute(ctx, read, ws.known)
	require.False(t, out.Blocked, out.Context)
	assert.NotEmpty(t, out.Evidence)
	assert.Equal(t, []string{"src/sample.ts"}, out.ReadPaths)

	skel := ws.guard.Execute(ctx, ReadSkeleton{FilePath: "src/sample.ts"}, ws.known)
	require.False(t, skel.Blocked)
	assert.NotEmpty(t, skel.Evidence)
}

func TestGuard_RejectsEscape(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.txt": "a"})
	out := ws.guard.Execute(context.Background(), ReadFullCode{FilePath: "../../etc/passwd"}, ws.known)
	assert.True(t, out.Blocked)
	assert.True(t, strings.HasPrefix(out.Context, BlockedMarker))
}

func TestGuard_ExecuteBatchKeepsRequestOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
	ws := newWorkspace(t, map[string]string{
		"src/sample.ts": sampleTS,
		"README.md":     "# demo\n",
		"package.json":  `{"name":"demo","main":"src/sample.ts"}`,
	})
	calls := []Call{
		ListDir{TargetPath: "."},
		ReadFullCode{FilePath: "src/sample.ts"},
		SummarizeDirectory{TargetPath: "."},
		DiscoverEntrypoints{},
	}
	outs := ws.guard.ExecuteBatch(context.Background(), calls, ws.known)
	require.Len(t, outs, len(calls))
	for i, c := range calls {
		assert.Equal(t, c.Tool(), outs[i].Tool)
	}
	// Checked against the set as it stood before the batch.
	assert.True(t, outs[1].Blocked)
	assert.False(t, outs[0].Blocked)
	assert.Contains(t, outs[2].Context, "文件数=3")

	sample := filepath.Join(ws.root, "src", "sample.ts")
	assert.True(t, ws.known.HasFile(sample), "entrypoint discovery surfaces package main")
	assert.True(t, ws.known.HasFile(filepath.Join(ws.root, "README.md")))
	assert.True(t, ws.known.HasDir(filepath.Join(ws.root, "src")))

	again := ws.guard.ExecuteBatch(context.Background(), calls[1:2], ws.known)
	assert.False(t, again[0].Blocked)
}

func TestReadFullCode_TruncatesWithMarker(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 500; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	ws := newWorkspace(t, map[string]string{"big.txt": b.String()})
	out := ws.exec.Execute(context.Background(), ReadFullCode{FilePath: "big.txt"})
	require.False(t, out.Failed, out.Context)
	assert.Contains(t, out.Context, "[omitted 100 lines]")
	assert.Contains(t, out.Context, "  400| line 400")
	assert.NotContains(t, out.Context, "line 401")
	assert.Equal(t, []string{"big.txt:1-400"}, out.Evidence)

	out = ws.exec.Execute(context.Background(), ReadFullCode{FilePath: "big.txt", StartLine: 491, MaxLines: 5})
	assert.Contains(t, out.Context, "[omitted 490 lines]")
	assert.Contains(t, out.Context, "[omitted 5 lines]")
	assert.Equal(t, []string{"big.txt:491-495"}, out.Evidence)

	out = ws.exec.Execute(context.Background(), ReadFullCode{FilePath: "big.txt", StartLine: 900})
	assert.True(t, out.Failed)
	assert.Contains(t, out.Context, "tool_error: read_full_code")
}

func TestReadFullCode_SeesRewrites(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.txt": "one\n"})
	out := ws.exec.Execute(context.Background(), ReadFullCode{FilePath: "a.txt"})
	assert.Contains(t, out.Context, "one")

	require.NoError(t, os.WriteFile(filepath.Join(ws.root, "a.txt"), []byte("two lines\nhere\n"), 0o644))
	out = ws.exec.Execute(context.Background(), ReadFullCode{FilePath: "a.txt"})
	assert.Contains(t, out.Context, "two lines")
}

func TestOutline_TreeSitterTypeScript(t *testing.T) {
	syms := Outline(context.Background(), ".ts", []byte(sampleTS))
	require.NotEmpty(t, syms)
	assert.Equal(t, Symbol{Line: 1, Kind: "import", Signature: `import { readFile } from "fs";`}, syms[0])

	var sigs []string
	for _, s := range syms {
		sigs = append(sigs, fmt.Sprintf("%d %s", s.Line, strings.TrimSpace(s.Signature)))
	}
	joined := strings.Join(sigs, "\n")
	assert.Contains(t, joined, "3 function greet(name: string): string")
	assert.Contains(t, joined, "7 class Greeter")
	assert.Contains(t, joined, "8 greet()")
}

func TestOutline_GoAndPython(t *testing.T) {
	goSrc := "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(1)\n}\n"
	syms := Outline(context.Background(), ".go", []byte(goSrc))
	require.Len(t, syms, 2)
	assert.Equal(t, "import", syms[0].Kind)
	assert.Equal(t, 5, syms[1].Line)
	assert.Equal(t, "func main()", syms[1].Signature)

	pySrc := "import os\n\nclass A:\n    def run(self):\n        return 1\n"
	syms = Outline(context.Background(), ".py", []byte(pySrc))
	require.Len(t, syms, 3)
	assert.Equal(t, "class", syms[1].Kind)
	assert.Equal(t, 4, syms[2].Line)
	assert.Equal(t, "def", syms[2].Kind)
}

func TestOutline_LineFallback(t *testing.T) {
	src := "# comment\nmodule Billing\n  def charge(amount)\n  end\nend\n"
	syms := Outline(context.Background(), ".rb", []byte(src))
	require.Len(t, syms, 2)
	assert.Equal(t, 2, syms[0].Line)
	assert.Equal(t, "module", syms[0].Kind)
	assert.Equal(t, "def", syms[1].Kind)
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	results []pytool.Result
}

func (f *fakeRunner) Run(ctx context.Context, tool string, args any, ws string) pytool.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return pytool.Result{Error: pytool.MarkerFailed + ": boom"}
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r
}

func (f *fakeRunner) CheckAvailable(ctx context.Context) pytool.Result { return pytool.Result{OK: true} }

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPythonBridge_SkipDecisionIsCached(t *testing.T) {
	runner := &fakeRunner{}
	var asked int
	bridge := NewPythonBridge(true, runner, func(ctx context.Context, tool, failure string) string {
		asked++
		assert.Contains(t, failure, pytool.MarkerFailed)
		return "skip"
	})
	ws := newWorkspace(t, map[string]string{"src/sample.ts": sampleTS}, WithPython(bridge))
	ws.known.AddFile(filepath.Join(ws.root, "src", "sample.ts"))

	call := ExtractImportGraph{FilePaths: []string{"src/sample.ts"}}
	first := ws.guard.Execute(context.Background(), call, ws.known)
	second := ws.guard.Execute(context.Background(), call, ws.known)

	assert.Equal(t, 1, asked)
	assert.Contains(t, first.Context, pytool.MarkerSkipped)
	assert.Contains(t, second.Context, pytool.MarkerSkipped)
	assert.Equal(t, 1, runner.count(), "a cached skip never reaches the runner")

	d, ok := bridge.Decision(pytool.ToolExtractImportGraph)
	assert.True(t, ok)
	assert.Equal(t, DecisionSkip, d)
}

func TestPythonBridge_RetryOnce(t *testing.T) {
	entries := `[{"filePath":"%s","imports":["fs"],"localDeps":[],"externalDeps":["fs"]}]`
	ws := newWorkspace(t, map[string]string{"src/sample.ts": sampleTS})
	abs := filepath.Join(ws.root, "src", "sample.ts")
	raw, _ := json.Marshal(abs)
	runner := &fakeRunner{results: []pytool.Result{
		{Error: pytool.MarkerFailed + ": transient"},
		{OK: true, Result: json.RawMessage(fmt.Sprintf(entries, strings.Trim(string(raw), `"`)))},
	}}
	var asked int
	bridge := NewPythonBridge(true, runner, func(context.Context, string, string) string {
		asked++
		return "retry"
	})
	ws.exec.python = bridge
	ws.known.AddFile(abs)

	out := ws.guard.Execute(context.Background(), ExtractImportGraph{FilePaths: []string{"src/sample.ts"}}, ws.known)
	require.False(t, out.Failed, out.Context)
	assert.Contains(t, out.Context, "external: fs")
	assert.Equal(t, []string{"src/sample.ts:1"}, out.Evidence)
	assert.Equal(t, 1, asked)
	assert.Equal(t, 2, runner.count())

	// Later failures are reported without consulting the callback again.
	out = ws.guard.Execute(context.Background(), ExtractImportGraph{FilePaths: []string{"src/sample.ts"}}, ws.known)
	assert.True(t, out.Failed)
	assert.Contains(t, out.Context, pytool.MarkerFailed)
	assert.Equal(t, 1, asked)
}

func TestPythonBridge_DisabledIsUnavailable(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.py": "import os\n"})
	ws.known.AddFile(filepath.Join(ws.root, "a.py"))
	out := ws.guard.Execute(context.Background(), AnalyzeComplexity{FilePaths: []string{"a.py"}}, ws.known)
	assert.True(t, out.Failed)
	assert.True(t, strings.HasPrefix(out.Context, pytool.MarkerUnavailable))
}

func TestCatalog(t *testing.T) {
	assert.Len(t, Catalog(false), 5)
	assert.Len(t, Catalog(true), 7)
	assert.NotEmpty(t, Describe(ToolReadSkeleton))
	assert.Empty(t, Describe("nope"))
}
