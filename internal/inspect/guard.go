package inspect

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BlockedMarker prefixes the context of every call rejected by the guard.
const BlockedMarker = "path_guard_blocked"

const maxKnownListed = 40

// Guard only lets path-taking calls through when their targets were
// surfaced earlier in the same run.
type Guard struct {
	exec   *Executor
	logger *zap.Logger

	// Concurrency caps parallel calls in a batch; <= 0 means unlimited.
	Concurrency int
}

func NewGuard(exec *Executor, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{exec: exec, logger: logger}
}

func (g *Guard) Executor() *Executor { return g.exec }

// Check returns a blocked Outcome and false when any target of call is not
// known to d.
func (g *Guard) Check(call Call, d *Discovered) (Outcome, bool) {
	fs := g.exec.FS()
	for _, t := range call.Targets() {
		abs, err := fs.Clean(t.Path)
		if err != nil {
			return g.blocked(call, t.Path, err.Error(), d), false
		}
		known := d.HasFile(abs)
		if t.Dir {
			known = d.HasDir(abs)
		}
		if !known {
			return g.blocked(call, fs.Rel(abs), "", d), false
		}
	}
	return Outcome{}, true
}

func (g *Guard) blocked(call Call, target, detail string, d *Discovered) Outcome {
	fs := g.exec.FS()
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s 的目标 %s 尚未被发现", BlockedMarker, call.Tool(), target)
	if detail != "" {
		fmt.Fprintf(&b, " (%s)", detail)
	}
	b.WriteString("。请先用 list_dir / summarize_directory / discover_entrypoints 发现路径，再读取或分析。\n")
	writeKnown(&b, "已知目录", d.Dirs(), fs.Rel)
	writeKnown(&b, "已知文件", d.Files(), fs.Rel)
	g.logger.Debug("path guard blocked", zap.String("tool", call.Tool()), zap.String("target", target))
	return Outcome{Tool: call.Tool(), Context: b.String(), Blocked: true}
}

func writeKnown(b *strings.Builder, label string, paths []string, rel func(string) string) {
	fmt.Fprintf(b, "%s (%d): ", label, len(paths))
	if len(paths) == 0 {
		b.WriteString("-\n")
		return
	}
	n := min(len(paths), maxKnownListed)
	parts := make([]string, 0, n)
	for _, p := range paths[:n] {
		parts = append(parts, rel(p))
	}
	b.WriteString(strings.Join(parts, ", "))
	if len(paths) > n {
		fmt.Fprintf(b, ", ... (+%d)", len(paths)-n)
	}
	b.WriteString("\n")
}

// Execute checks, runs and merges a single call.
func (g *Guard) Execute(ctx context.Context, call Call, d *Discovered) Outcome {
	if out, ok := g.Check(call, d); !ok {
		return out
	}
	out := g.exec.Execute(ctx, call)
	d.Merge(out)
	return out
}

// ExecuteBatch checks every call against d as it stands before the batch,
// runs the admitted calls concurrently and merges their surfaced paths into d
// in request order. The returned outcomes are in request order.
func (g *Guard) ExecuteBatch(ctx context.Context, calls []Call, d *Discovered) []Outcome {
	outcomes := make([]Outcome, len(calls))
	admitted := make([]bool, len(calls))
	for i, call := range calls {
		out, ok := g.Check(call, d)
		if !ok {
			outcomes[i] = out
			continue
		}
		admitted[i] = true
	}

	var eg errgroup.Group
	if g.Concurrency > 0 {
		eg.SetLimit(g.Concurrency)
	}
	for i, call := range calls {
		if !admitted[i] {
			continue
		}
		eg.Go(func() error {
			outcomes[i] = g.exec.Execute(ctx, call)
			return nil
		})
	}
	_ = eg.Wait()

	for i := range outcomes {
		if admitted[i] {
			d.Merge(outcomes[i])
		}
	}
	return outcomes
}
