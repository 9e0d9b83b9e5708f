package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"corawiki/internal/pytool"
)

// absPaths maps workspace-relative paths to absolute ones. The runner resolves
// paths against its own working directory, so it is always given absolute
// paths.
func (e *Executor) absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := e.fs.Clean(p)
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	return out, nil
}

func (e *Executor) pythonOutcome(res pytool.Result) Outcome {
	e.logger.Debug("python tool not ok", zap.String("error", res.Error))
	return Outcome{Context: res.Error, Failed: true}
}

// --------------------- extract_import_graph ---------------------

func (e *Executor) extractImportGraph(ctx context.Context, c ExtractImportGraph) (Outcome, error) {
	paths, err := e.absPaths(c.FilePaths)
	if err != nil {
		return Outcome{}, err
	}
	res := e.python.Call(ctx, pytool.ToolExtractImportGraph, pytool.FileArgs{FilePaths: paths}, e.fs.Root())
	if !res.OK {
		return e.pythonOutcome(res), nil
	}
	var entries []pytool.ImportGraphEntry
	if err := json.Unmarshal(res.Result, &entries); err != nil {
		return Outcome{}, fmt.Errorf("%s: decode result: %w", pytool.MarkerFailed, err)
	}

	var out Outcome
	var b strings.Builder
	fmt.Fprintf(&b, "导入图 (%d 个文件)\n", len(entries))
	for _, ent := range entries {
		rel := e.fs.Rel(ent.FilePath)
		if ent.Error != "" {
			fmt.Fprintf(&b, "%s: error: %s\n", rel, ent.Error)
			continue
		}
		fmt.Fprintf(&b, "%s\n", rel)
		fmt.Fprintf(&b, "  local:    %s\n", joinOrDash(ent.LocalDeps))
		fmt.Fprintf(&b, "  external: %s\n", joinOrDash(ent.ExternalDeps))
		out.Evidence = append(out.Evidence, rel+":1")
	}
	out.Context = b.String()
	return out, nil
}

// --------------------- analyze_complexity ---------------------

const complexityBlocksPerFile = 10

func (e *Executor) analyzeComplexity(ctx context.Context, c AnalyzeComplexity) (Outcome, error) {
	paths, err := e.absPaths(c.FilePaths)
	if err != nil {
		return Outcome{}, err
	}
	res := e.python.Call(ctx, pytool.ToolAnalyzeComplexity, pytool.FileArgs{FilePaths: paths}, e.fs.Root())
	if !res.OK {
		return e.pythonOutcome(res), nil
	}
	var entries []pytool.ComplexityEntry
	if err := json.Unmarshal(res.Result, &entries); err != nil {
		return Outcome{}, fmt.Errorf("%s: decode result: %w", pytool.MarkerFailed, err)
	}

	var out Outcome
	var b strings.Builder
	fmt.Fprintf(&b, "复杂度 (%d 个文件)\n", len(entries))
	for _, ent := range entries {
		rel := e.fs.Rel(ent.FilePath)
		switch {
		case ent.Error != "":
			fmt.Fprintf(&b, "%s: error: %s\n", rel, ent.Error)
			continue
		case len(ent.Complexity) == 0:
			fmt.Fprintf(&b, "%s: %s\n", rel, firstNonEmpty(ent.Note, "no blocks"))
			continue
		}
		mi := "n/a"
		if ent.MaintainabilityIndex != nil {
			mi = fmt.Sprintf("%.2f", *ent.MaintainabilityIndex)
		}
		fmt.Fprintf(&b, "%s (maintainability=%s)\n", rel, mi)
		blocks := append([]pytool.ComplexityBlock(nil), ent.Complexity...)
		sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Complexity > blocks[j].Complexity })
		if len(blocks) > complexityBlocksPerFile {
			blocks = blocks[:complexityBlocksPerFile]
		}
		for _, blk := range blocks {
			line := max(blk.Line, 1)
			fmt.Fprintf(&b, "  L%-5d %-30s cc=%d\n", line, blk.Name, blk.Complexity)
			out.Evidence = append(out.Evidence, lineRef(rel, line, line))
		}
		if ent.Note != "" {
			fmt.Fprintf(&b, "  note: %s\n", ent.Note)
		}
	}
	out.Context = b.String()
	return out, nil
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
