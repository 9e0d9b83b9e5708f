package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"corawiki/internal/artifact"
)

const (
	transcriptArtifact = "transcript.md"
	resultArtifact     = "result.json"
)

// transcript accumulates the markdown debug log of one run. Each stage gets
// a "## " header; model turns are kept verbatim.
type transcript struct {
	buf bytes.Buffer
}

func newTranscript(runID, query, root string, started time.Time) *transcript {
	t := &transcript{}
	fmt.Fprintf(&t.buf, "# CoraWiki research %s\n\n", runID)
	fmt.Fprintf(&t.buf, "- workspace: %s\n- started: %s\n\n", root, started.Format(time.RFC3339))
	t.section("查询", query)
	return t
}

func (t *transcript) section(title, body string) {
	fmt.Fprintf(&t.buf, "## %s\n\n", title)
	body = strings.TrimRight(body, "\n")
	if body == "" {
		body = "(empty)"
	}
	t.buf.WriteString(body)
	t.buf.WriteString("\n\n")
}

func (t *transcript) fenced(title, lang, body string) {
	t.section(title, "```"+lang+"\n"+strings.TrimRight(body, "\n")+"\n```")
}

func (t *transcript) decision(iteration int, raw string) {
	t.fenced(fmt.Sprintf("第 %d 轮 决策", iteration), "json", raw)
}

func (t *transcript) toolResults(iteration int, steps []Step) {
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "### %s %s\n\n", s.Action, s.Input)
		b.WriteString(strings.TrimRight(s.Output, "\n"))
		b.WriteString("\n\n")
	}
	t.section(fmt.Sprintf("第 %d 轮 工具结果", iteration), b.String())
}

func (t *transcript) Bytes() []byte { return t.buf.Bytes() }

// persist writes the transcript to dir (when set) and, with a store, both the
// transcript and the JSON result under the run id. Failures are logged only;
// a run never fails on its debug output.
func (r *run) persist(ctx context.Context, res *Result) {
	if dir := strings.TrimSpace(r.opts.DebugLogDir); dir != "" {
		path := filepath.Join(dir, fmt.Sprintf("corawiki-research-%s.md", r.id))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			r.logger.Warn("debug log dir", zap.String("dir", dir), zap.Error(err))
		} else if err := os.WriteFile(path, r.transcript.Bytes(), 0o644); err != nil {
			r.logger.Warn("write debug log", zap.String("path", path), zap.Error(err))
		} else {
			res.DebugLogPath = path
		}
	}

	store := r.agent.store
	if store == nil {
		return
	}
	if err := store.Put(ctx, r.id, transcriptArtifact, r.transcript.Bytes()); err != nil {
		r.logger.Warn("store transcript", zap.String("run_id", r.id), zap.Error(err))
	}
	raw, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		r.logger.Warn("encode result", zap.Error(err))
		return
	}
	if err := store.Put(ctx, r.id, resultArtifact, raw); err != nil {
		r.logger.Warn("store result", zap.String("run_id", r.id), zap.Error(err))
	}
	if res.DebugLogPath == "" {
		if u, err := store.GetURL(ctx, r.id, transcriptArtifact); err == nil && u != "" {
			res.DebugLogPath = u
		}
	}
}

// LoadResult reads a persisted result back from a store.
func LoadResult(ctx context.Context, store artifact.Store, runID string) (*Result, error) {
	raw, err := store.Get(ctx, runID, resultArtifact)
	if err != nil {
		return nil, err
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("research: decode result %s: %w", runID, err)
	}
	return &res, nil
}
