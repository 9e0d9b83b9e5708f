package inspect

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"corawiki/internal/safeio"
)

// Outcome is the result of one tool call: the context fragment shown to the
// model, evidence citations, and the paths the call surfaced.
type Outcome struct {
	Tool     string
	Context  string
	Evidence []string

	// Absolute paths to merge into the discovered sets.
	SurfacedFiles []string
	SurfacedDirs  []string

	// Workspace-relative files whose contents were read.
	ReadPaths []string
	Blocked   bool
	Failed    bool
}

const (
	DefaultReadLines = 400
	maxReadLines     = 2000
	maxReadBytes     = 2 << 20
	defaultCacheSize = 256
)

type cachedFile struct {
	modTime   time.Time
	size      int64
	data      []byte
	truncated bool
}

// Executor runs inspection tools against one workspace. It does not consult
// the discovered sets; Guard does that.
type Executor struct {
	fs        *safeio.SafeFS
	python    *PythonBridge
	cache     *lru.Cache[string, cachedFile]
	readLines int
	logger    *zap.Logger
}

type ExecutorOption func(*Executor)

func WithPython(b *PythonBridge) ExecutorOption {
	return func(e *Executor) { e.python = b }
}

func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithReadLines sets the default read_full_code line budget.
func WithReadLines(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.readLines = min(n, maxReadLines)
		}
	}
}

func NewExecutor(fs *safeio.SafeFS, opts ...ExecutorOption) *Executor {
	cache, _ := lru.New[string, cachedFile](defaultCacheSize)
	e := &Executor{fs: fs, cache: cache, readLines: DefaultReadLines, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) FS() *safeio.SafeFS { return e.fs }

// Python returns the bridge used for python-backed tools, possibly nil.
func (e *Executor) Python() *PythonBridge { return e.python }

// Execute runs one call. Tool errors are folded into a failed Outcome so the
// research loop can continue.
func (e *Executor) Execute(ctx context.Context, call Call) Outcome {
	var (
		out Outcome
		err error
	)
	switch c := call.(type) {
	case ListDir:
		out, err = e.listDir(c)
	case SummarizeDirectory:
		out, err = e.summarizeDirectory(c)
	case DiscoverEntrypoints:
		out, err = e.discoverEntrypoints(c)
	case ReadSkeleton:
		out, err = e.readSkeleton(ctx, c)
	case ReadFullCode:
		out, err = e.readFullCode(c)
	case ExtractImportGraph:
		out, err = e.extractImportGraph(ctx, c)
	case AnalyzeComplexity:
		out, err = e.analyzeComplexity(ctx, c)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownTool, call)
	}
	tool := "unknown"
	if call != nil {
		tool = call.Tool()
	}
	if err != nil {
		e.logger.Debug("tool failed", zap.String("tool", tool), zap.Error(err))
		return Outcome{Tool: tool, Context: fmt.Sprintf("tool_error: %s: %v", tool, err), Failed: true}
	}
	out.Tool = tool
	return out
}

// load reads a file through the LRU cache. Entries are reused while size and
// mtime are unchanged.
func (e *Executor) load(abs string) (cachedFile, error) {
	info, err := e.fs.Stat(abs)
	if err != nil {
		return cachedFile{}, err
	}
	if info.IsDir() {
		return cachedFile{}, safeio.ErrIsDir
	}
	if c, ok := e.cache.Get(abs); ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		return c, nil
	}
	f, err := e.fs.Open(abs)
	if err != nil {
		return cachedFile{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxReadBytes+1))
	if err != nil {
		return cachedFile{}, err
	}
	c := cachedFile{modTime: info.ModTime(), size: info.Size(), data: data}
	if len(data) > maxReadBytes {
		c.data, c.truncated = data[:maxReadBytes], true
	}
	e.cache.Add(abs, c)
	return c, nil
}

func isBinary(data []byte) bool {
	n := min(len(data), 8000)
	return bytes.IndexByte(data[:n], 0) >= 0
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	s := strings.TrimSuffix(string(data), "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func lineRef(rel string, start, end int) string {
	if end <= start {
		return fmt.Sprintf("%s:%d", rel, start)
	}
	return fmt.Sprintf("%s:%d-%d", rel, start, end)
}
