package pytool

import "context"

// ImportGraphEntry is one file of an extract_import_graph result.
type ImportGraphEntry struct {
	FilePath     string   `json:"filePath"`
	Imports      []string `json:"imports"`
	LocalDeps    []string `json:"localDeps"`
	ExternalDeps []string `json:"externalDeps"`
	Error        string   `json:"error,omitempty"`
}

// ComplexityBlock is one function-level complexity measurement.
type ComplexityBlock struct {
	Name       string `json:"name"`
	Complexity int    `json:"complexity"`
	Line       int    `json:"line"`
}

// ComplexityEntry is one file of an analyze_complexity result.
type ComplexityEntry struct {
	FilePath             string            `json:"filePath"`
	Complexity           []ComplexityBlock `json:"complexity"`
	MaintainabilityIndex *float64          `json:"maintainability_index"`
	Note                 string            `json:"note,omitempty"`
	Error                string            `json:"error,omitempty"`
}

// FileArgs is the argument object shared by the runner's file-based tools.
type FileArgs struct {
	FilePaths []string `json:"filePaths"`
}

// Runner abstracts subprocess execution so callers can be tested without a
// Python interpreter.
type Runner interface {
	Run(ctx context.Context, toolName string, args any, workspacePath string) Result
	CheckAvailable(ctx context.Context) Result
}

// ExecRunner binds Run/CheckAvailable to an installation.
type ExecRunner struct {
	ExtensionPath   string
	InterpreterPath string
}

func (e ExecRunner) Run(ctx context.Context, toolName string, args any, workspacePath string) Result {
	return Run(ctx, e.ExtensionPath, e.InterpreterPath, toolName, args, workspacePath)
}

func (e ExecRunner) CheckAvailable(ctx context.Context) Result {
	return CheckAvailable(ctx, e.ExtensionPath, e.InterpreterPath)
}
