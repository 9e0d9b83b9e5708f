// Package mcpserver exposes the research agent as MCP tools over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"corawiki/internal/artifact"
	"corawiki/internal/research"
)

const Version = "0.1.0"

// Researcher is the part of research.Agent the tools need.
type Researcher interface {
	Run(ctx context.Context, query, workspaceRoot string, opts research.Options) (*research.Result, error)
}

// New builds an MCP server publishing research_workspace and, when a store
// is given, get_research_result.
func New(agent Researcher, base research.Options, store artifact.Store, logger *zap.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"corawiki",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Call research_workspace with a question and an absolute workspace path. "+
			"The agent explores the code tree and returns a markdown architecture report."),
	)

	rt := NewResearchTool(agent, base, logger)
	s.AddTool(rt.Definition(), rt.Handle)
	if store != nil {
		gt := NewResultTool(store)
		s.AddTool(gt.Definition(), gt.Handle)
	}
	return s
}

// ResearchTool handles the research_workspace MCP tool.
type ResearchTool struct {
	agent  Researcher
	base   research.Options
	logger *zap.Logger
}

func NewResearchTool(agent Researcher, base research.Options, logger *zap.Logger) *ResearchTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchTool{agent: agent, base: base, logger: logger}
}

func (t *ResearchTool) Definition() mcp.Tool {
	return mcp.NewTool("research_workspace",
		mcp.WithDescription(
			"Investigate a local code workspace for a natural-language question and return a "+
				"quality-checked architecture report with findings, flows, diagrams, risks and references.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question to research"),
		),
		mcp.WithString("workspace",
			mcp.Required(),
			mcp.Description("Absolute path of the workspace root"),
		),
		mcp.WithNumber("max_steps",
			mcp.Description("Iteration budget (default from configuration)"),
		),
	)
}

func (t *ResearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	workspace := strings.TrimSpace(req.GetString("workspace", ""))
	if query == "" || workspace == "" {
		return mcp.NewToolResultError("query and workspace are required"), nil
	}
	opts := t.base
	if n := intArg(req, "max_steps", 0); n > 0 {
		opts.MaxSteps = n
	}
	// stdio carries the protocol; progress goes to the log instead.
	opts.OnProgress = func(msg string) { t.logger.Debug("research progress", zap.String("msg", msg)) }

	res, err := t.agent.Run(ctx, query, workspace, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("research failed: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(res.FinalConclusion)
	fmt.Fprintf(&sb, "\n\n---\nrun: %s · state: %s · steps: %d", res.RunID, res.FinalState, len(res.Steps))
	if res.DebugLogPath != "" {
		fmt.Fprintf(&sb, " · log: %s", res.DebugLogPath)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// ResultTool handles get_research_result, reading a persisted run back.
type ResultTool struct {
	store artifact.Store
}

func NewResultTool(store artifact.Store) *ResultTool {
	return &ResultTool{store: store}
}

func (t *ResultTool) Definition() mcp.Tool {
	return mcp.NewTool("get_research_result",
		mcp.WithDescription("Fetch the final conclusion of a previous research run by its run id."),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run id printed by research_workspace"),
		),
	)
}

func (t *ResultTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := strings.TrimSpace(req.GetString("run_id", ""))
	if runID == "" {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	res, err := research.LoadResult(ctx, t.store, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load run %s: %v", runID, err)), nil
	}
	return mcp.NewToolResultText(res.FinalConclusion), nil
}

// intArg reads a JSON number argument; JSON numbers decode as float64.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}
