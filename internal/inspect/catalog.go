package inspect

import "corawiki/internal/llm"

// --------------------- tool catalog ---------------------

var (
	listDirSpec = llm.ToolSpec{
		Name:        ToolListDir,
		Description: "List the immediate children of a discovered directory. Children become discoverable.",
		Params: []llm.ParamSpec{
			{Name: "targetPath", Type: "string", Description: "workspace-relative directory; \".\" is the root"},
		},
	}
	summarizeDirectorySpec = llm.ToolSpec{
		Name:        ToolSummarizeDirectory,
		Description: "Aggregate statistics for a discovered directory: file counts, extensions, largest files, subdirectories.",
		Params: []llm.ParamSpec{
			{Name: "targetPath", Type: "string", Description: "workspace-relative directory; \".\" is the root"},
		},
	}
	discoverEntrypointsSpec = llm.ToolSpec{
		Name:        ToolDiscoverEntrypoints,
		Description: "Scan the workspace for likely entry files (manifests, main files, top-level docs). Results become discoverable.",
		Params: []llm.ParamSpec{
			{Name: "maxResults", Type: "integer", Description: "maximum candidates to return (default 20)"},
		},
	}
	readSkeletonSpec = llm.ToolSpec{
		Name:        ToolReadSkeleton,
		Description: "Outline a discovered file: imports, types, functions and methods with line numbers.",
		Params: []llm.ParamSpec{
			{Name: "filePath", Type: "string", Description: "workspace-relative file path", Required: true},
		},
	}
	readFullCodeSpec = llm.ToolSpec{
		Name:        ToolReadFullCode,
		Description: "Read a discovered file with line numbers. Long files are truncated with an [omitted N lines] marker.",
		Params: []llm.ParamSpec{
			{Name: "filePath", Type: "string", Description: "workspace-relative file path", Required: true},
			{Name: "startLine", Type: "integer", Description: "1-based first line (default 1)"},
			{Name: "maxLines", Type: "integer", Description: "line budget (default 400)"},
		},
	}
	extractImportGraphSpec = llm.ToolSpec{
		Name:        ToolExtractImportGraph,
		Description: "Extract imports of discovered files, split into local and external dependencies.",
		Params: []llm.ParamSpec{
			{Name: "filePaths", Type: "array", Description: "workspace-relative file paths", Required: true},
		},
	}
	analyzeComplexitySpec = llm.ToolSpec{
		Name:        ToolAnalyzeComplexity,
		Description: "Per-function cyclomatic complexity of discovered Python files.",
		Params: []llm.ParamSpec{
			{Name: "filePaths", Type: "array", Description: "workspace-relative file paths", Required: true},
		},
	}
)

// Catalog returns the tool specs offered to the model. Python-backed tools
// are listed only when subprocess tooling is enabled.
func Catalog(python bool) []llm.ToolSpec {
	out := []llm.ToolSpec{
		listDirSpec,
		summarizeDirectorySpec,
		discoverEntrypointsSpec,
		readSkeletonSpec,
		readFullCodeSpec,
	}
	if python {
		out = append(out, extractImportGraphSpec, analyzeComplexitySpec)
	}
	return out
}

// Describe returns the catalog description of a tool, or "" if unknown.
func Describe(tool string) string {
	for _, s := range Catalog(true) {
		if s.Name == tool {
			return s.Description
		}
	}
	return ""
}
