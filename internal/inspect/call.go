package inspect

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Tool names exposed to the model.
const (
	ToolListDir             = "list_dir"
	ToolSummarizeDirectory  = "summarize_directory"
	ToolDiscoverEntrypoints = "discover_entrypoints"
	ToolReadSkeleton        = "read_skeleton"
	ToolReadFullCode        = "read_full_code"
	ToolExtractImportGraph  = "extract_import_graph"
	ToolAnalyzeComplexity   = "analyze_complexity"
)

var (
	ErrUnknownTool = errors.New("inspect: unknown tool")
	ErrBadArgs     = errors.New("inspect: invalid tool arguments")
)

// Target is a path a call wants to inspect.
type Target struct {
	Path string
	Dir  bool
}

// Call is one typed tool invocation. The set of implementations is closed;
// Executor.Execute switches over all of them.
type Call interface {
	Tool() string
	// Targets lists the paths the Discovery Guard must approve.
	Targets() []Target
}

type ListDir struct {
	TargetPath string `json:"targetPath"`
}

type SummarizeDirectory struct {
	TargetPath string `json:"targetPath"`
}

type DiscoverEntrypoints struct {
	MaxResults int `json:"maxResults,omitempty"`
}

type ReadSkeleton struct {
	FilePath string `json:"filePath"`
}

type ReadFullCode struct {
	FilePath  string `json:"filePath"`
	StartLine int    `json:"startLine,omitempty"`
	MaxLines  int    `json:"maxLines,omitempty"`
}

type ExtractImportGraph struct {
	FilePaths []string `json:"filePaths"`
	// WorkspacePath is accepted for compatibility; the run root is always used.
	WorkspacePath string `json:"workspacePath,omitempty"`
}

type AnalyzeComplexity struct {
	FilePaths []string `json:"filePaths"`
}

func (ListDir) Tool() string             { return ToolListDir }
func (SummarizeDirectory) Tool() string  { return ToolSummarizeDirectory }
func (DiscoverEntrypoints) Tool() string { return ToolDiscoverEntrypoints }
func (ReadSkeleton) Tool() string        { return ToolReadSkeleton }
func (ReadFullCode) Tool() string        { return ToolReadFullCode }
func (ExtractImportGraph) Tool() string  { return ToolExtractImportGraph }
func (AnalyzeComplexity) Tool() string   { return ToolAnalyzeComplexity }

func (c ListDir) Targets() []Target            { return []Target{{Path: orRoot(c.TargetPath), Dir: true}} }
func (c SummarizeDirectory) Targets() []Target { return []Target{{Path: orRoot(c.TargetPath), Dir: true}} }
func (DiscoverEntrypoints) Targets() []Target  { return nil }
func (c ReadSkeleton) Targets() []Target       { return []Target{{Path: c.FilePath}} }
func (c ReadFullCode) Targets() []Target       { return []Target{{Path: c.FilePath}} }
func (c ExtractImportGraph) Targets() []Target { return fileTargets(c.FilePaths) }
func (c AnalyzeComplexity) Targets() []Target  { return fileTargets(c.FilePaths) }

func orRoot(p string) string {
	if strings.TrimSpace(p) == "" {
		return "."
	}
	return p
}

func fileTargets(paths []string) []Target {
	out := make([]Target, 0, len(paths))
	for _, p := range paths {
		out = append(out, Target{Path: p})
	}
	return out
}

// DecodeCall maps a model-issued tool name and JSON arguments to a typed Call.
func DecodeCall(name string, args json.RawMessage) (Call, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	switch strings.TrimSpace(name) {
	case ToolListDir:
		var c ListDir
		return c, decodeArgs(args, &c)
	case ToolSummarizeDirectory:
		var c SummarizeDirectory
		return c, decodeArgs(args, &c)
	case ToolDiscoverEntrypoints:
		var c DiscoverEntrypoints
		return c, decodeArgs(args, &c)
	case ToolReadSkeleton:
		var c ReadSkeleton
		if err := decodeArgs(args, &c); err != nil {
			return nil, err
		}
		if strings.TrimSpace(c.FilePath) == "" {
			return nil, fmt.Errorf("%w: %s requires filePath", ErrBadArgs, name)
		}
		return c, nil
	case ToolReadFullCode:
		var c ReadFullCode
		if err := decodeArgs(args, &c); err != nil {
			return nil, err
		}
		if strings.TrimSpace(c.FilePath) == "" {
			return nil, fmt.Errorf("%w: %s requires filePath", ErrBadArgs, name)
		}
		return c, nil
	case ToolExtractImportGraph:
		var c ExtractImportGraph
		if err := decodeArgs(args, &c); err != nil {
			return nil, err
		}
		if len(c.FilePaths) == 0 {
			return nil, fmt.Errorf("%w: %s requires filePaths", ErrBadArgs, name)
		}
		return c, nil
	case ToolAnalyzeComplexity:
		var c AnalyzeComplexity
		if err := decodeArgs(args, &c); err != nil {
			return nil, err
		}
		if len(c.FilePaths) == 0 {
			return nil, fmt.Errorf("%w: %s requires filePaths", ErrBadArgs, name)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
}

func decodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	return nil
}

// IsReadCode reports whether a tool name reads file contents.
func IsReadCode(tool string) bool {
	return tool == ToolReadSkeleton || tool == ToolReadFullCode
}

// IsPythonBacked reports whether a tool delegates to the subprocess runner.
func IsPythonBacked(tool string) bool {
	return tool == ToolExtractImportGraph || tool == ToolAnalyzeComplexity
}
