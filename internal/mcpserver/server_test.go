package mcpserver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"corawiki/internal/artifact"
	"corawiki/internal/research"
)

type fakeResearcher struct {
	gotQuery string
	gotRoot  string
	gotOpts  research.Options
	err      error
}

func (f *fakeResearcher) Run(_ context.Context, query, root string, opts research.Options) (*research.Result, error) {
	f.gotQuery, f.gotRoot, f.gotOpts = query, root, opts
	if f.err != nil {
		return nil, f.err
	}
	return &research.Result{RunID: "r1", FinalConclusion: "# 研究结论: x", FinalState: research.StateAccepted}, nil
}

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestResearchTool_Definition(t *testing.T) {
	def := NewResearchTool(&fakeResearcher{}, research.Options{}, nil).Definition()
	if def.Name != "research_workspace" {
		t.Fatalf("name = %q", def.Name)
	}
	for _, p := range []string{"query", "workspace", "max_steps"} {
		if _, ok := def.InputSchema.Properties[p]; !ok {
			t.Errorf("missing %q parameter", p)
		}
	}
	if len(def.InputSchema.Required) != 2 {
		t.Errorf("required = %v", def.InputSchema.Required)
	}
}

func TestResearchTool_Handle(t *testing.T) {
	fake := &fakeResearcher{}
	tool := NewResearchTool(fake, research.Options{MaxSteps: 8, MaxTotalTokens: 1000}, nil)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"query": "how does it boot", "workspace": "/tmp/ws", "max_steps": float64(3),
	}))
	if err != nil || res.IsError {
		t.Fatalf("unexpected failure: %v %s", err, resultText(res))
	}
	if fake.gotOpts.MaxSteps != 3 || fake.gotOpts.MaxTotalTokens != 1000 {
		t.Errorf("opts = %+v", fake.gotOpts)
	}
	if fake.gotOpts.OnProgress == nil {
		t.Error("progress sink not installed")
	}
	text := resultText(res)
	if !strings.Contains(text, "研究结论") || !strings.Contains(text, "run: r1") {
		t.Errorf("text = %s", text)
	}
}

func TestResearchTool_Errors(t *testing.T) {
	tool := NewResearchTool(&fakeResearcher{err: errors.New("quota")}, research.Options{}, nil)
	res, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{"query": "q"}))
	if !res.IsError {
		t.Error("missing workspace should be a tool error")
	}
	res, _ = tool.Handle(context.Background(), makeReq(map[string]interface{}{"query": "q", "workspace": "/w"}))
	if !res.IsError || !strings.Contains(resultText(res), "quota") {
		t.Errorf("model failure should surface: %s", resultText(res))
	}
}

func TestResultTool_ReadsStore(t *testing.T) {
	store := artifact.NewMemoryStore()
	ctx := context.Background()
	if err := store.Put(ctx, "r1", "result.json", []byte(`{"runId":"r1","finalConclusion":"done"}`)); err != nil {
		t.Fatal(err)
	}
	tool := NewResultTool(store)
	res, _ := tool.Handle(ctx, makeReq(map[string]interface{}{"run_id": "r1"}))
	if got := resultText(res); got != "done" {
		t.Errorf("got %q", got)
	}
	res, _ = tool.Handle(ctx, makeReq(map[string]interface{}{"run_id": "missing"}))
	if !res.IsError {
		t.Error("unknown run should be a tool error")
	}
}

func TestNew_RegistersTools(t *testing.T) {
	if s := New(&fakeResearcher{}, research.Options{}, artifact.NewMemoryStore(), nil); s == nil {
		t.Fatal("nil server")
	}
}
