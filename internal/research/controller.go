package research

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"corawiki/internal/artifact"
	"corawiki/internal/inspect"
	"corawiki/internal/llm"
	"corawiki/internal/pytool"
	"corawiki/internal/report"
	"corawiki/internal/safeio"
)

const (
	prerunTag      = "【预分析-降级】"
	actionPrerun   = "fallback_prerun"
	actionPlan     = "plan"
	actionGate     = "quality_gate"
	actionFinal    = "final_report"
	actionForced   = "forced_final"
	actionMalform  = "malformed_reply"
	forcedAttempts = 2
)

const defaultPlan = "先通过目录摘要和入口发现建立全局视图，再阅读关键源文件的骨架与实现，最后基于证据给出报告。"

var ErrEmptyQuery = errors.New("research: query is required")

// Agent runs research loops. One Agent may serve many sequential or
// concurrent runs; all per-run state lives in run.
type Agent struct {
	client llm.Client
	store  artifact.Store
	runner pytool.Runner
	logger *zap.Logger
}

type AgentOption func(*Agent)

// WithStore persists transcripts and results under each run id.
func WithStore(s artifact.Store) AgentOption {
	return func(a *Agent) { a.store = s }
}

// WithRunner replaces the subprocess python runner built from Options.
func WithRunner(r pytool.Runner) AgentOption {
	return func(a *Agent) { a.runner = r }
}

func WithLogger(l *zap.Logger) AgentOption {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAgent(client llm.Client, opts ...AgentOption) *Agent {
	a := &Agent{client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// run is the mutable state of one invocation. It is owned by the goroutine
// calling Agent.Run; tool batches only touch it after they complete.
type run struct {
	agent  *Agent
	opts   Options
	id     string
	query  string
	logger *zap.Logger

	fs         *safeio.SafeFS
	guard      *inspect.Guard
	discovered *inspect.Discovered
	gate       report.Gate
	catalog    []llm.ToolSpec
	base       []llm.Message
	transcript *transcript

	state     State
	iteration int
	tokens    int
	plan      string
	steps     []Step
	updates   []string

	evidence     []string
	seenEvidence map[string]bool
	unknowns     []string
	seenUnknown  map[string]bool
	readPaths    []string

	observations []Observation
	lastTools    []string
	rejection    string

	final      *report.Candidate
	conclusion string
}

// Run investigates workspaceRoot for query. Model client errors and context
// cancellation are returned as errors; every other failure degrades into the
// transcript and a Result is always produced.
func (a *Agent) Run(ctx context.Context, query, workspaceRoot string, opts Options) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	fs, err := safeio.NewSafeFS(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("research: workspace: %w", err)
	}
	opts = opts.withDefaults()

	r := a.newRun(fs, query, opts)
	r.logger.Info("research run start",
		zap.String("workspace", fs.Root()),
		zap.Int("max_steps", opts.MaxSteps),
		zap.Int("max_tokens", opts.MaxTotalTokens),
		zap.Bool("python", opts.PythonEnabled))

	if !opts.PythonEnabled {
		r.prerun(ctx)
	}

	for r.iteration = 1; ; r.iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.iteration >= opts.MaxSteps || r.tokens >= opts.MaxTotalTokens {
			break
		}
		accepted, err := r.iterate(ctx)
		if err != nil {
			return nil, err
		}
		if accepted {
			return r.result(ctx), nil
		}
	}
	if err := r.forceFinal(ctx); err != nil {
		return nil, err
	}
	return r.result(ctx), nil
}

func (a *Agent) newRun(fs *safeio.SafeFS, query string, opts Options) *run {
	id := uuid.NewString()
	logger := a.logger.With(zap.String("run_id", id))

	runner := a.runner
	if runner == nil {
		runner = pytool.ExecRunner{ExtensionPath: opts.ExtensionPath, InterpreterPath: opts.PythonPath}
	}
	bridge := inspect.NewPythonBridge(opts.PythonEnabled, runner, opts.OnPythonFailure)
	exec := inspect.NewExecutor(fs,
		inspect.WithPython(bridge),
		inspect.WithLogger(logger),
		inspect.WithReadLines(opts.ReadLines))
	guard := inspect.NewGuard(exec, logger)
	guard.Concurrency = opts.Concurrency

	return &run{
		agent:        a,
		opts:         opts,
		id:           id,
		query:        query,
		logger:       logger,
		fs:           fs,
		guard:        guard,
		discovered:   inspect.NewDiscovered(fs.Root()),
		gate:         report.NewGate(*opts.Thresholds),
		catalog:      inspect.Catalog(opts.PythonEnabled),
		base:         BuildBaseMessages(query, filepath.Base(fs.Root())),
		transcript:   newTranscript(id, query, fs.Root(), time.Now()),
		state:        StatePlanning,
		seenEvidence: map[string]bool{},
		seenUnknown:  map[string]bool{},
	}
}

// prerun gives the model a baseline view when python tooling is off.
func (r *run) prerun(ctx context.Context) {
	r.progress("python 工具未启用，执行本地预分析 (目录摘要 + 入口发现)")
	calls := []inspect.Call{
		inspect.SummarizeDirectory{TargetPath: "."},
		inspect.DiscoverEntrypoints{},
	}
	outs := r.guard.ExecuteBatch(ctx, calls, r.discovered)

	var b strings.Builder
	b.WriteString(prerunTag + "\n")
	var evidence []string
	for _, out := range outs {
		b.WriteString(out.Context)
		b.WriteString("\n\n")
		evidence = append(evidence, out.Evidence...)
		r.addEvidence(out.Evidence)
		r.observations = append(r.observations, Observation{Tool: prerunTag + " " + out.Tool, Context: out.Context})
	}
	output := strings.TrimRight(b.String(), "\n")
	r.steps = append(r.steps, Step{
		Iteration: 0,
		Stage:     StagePlan,
		Action:    actionPrerun,
		Input:     inspect.ToolSummarizeDirectory + "(.), " + inspect.ToolDiscoverEntrypoints + "()",
		Evidence:  evidence,
		Output:    output,
	})
	r.transcript.section("预分析-降级", output)
}

// iterate runs one model call and folds its turn into the run. It reports
// true once a report passed the gate.
func (r *run) iterate(ctx context.Context) (bool, error) {
	if r.iteration > 1 {
		r.state = StateExploring
	}
	rejection := r.rejection
	r.rejection = ""
	msgs := BuildContextMessages(ContextInput{
		Query:            r.query,
		Base:             r.base,
		Unknowns:         r.unknowns,
		Evidence:         r.evidence,
		Iteration:        r.iteration,
		MaxSteps:         r.opts.MaxSteps,
		CumulativeTokens: r.tokens,
		MaxTotalTokens:   r.opts.MaxTotalTokens,
		Catalog:          r.catalog,
		LastRoundTools:   r.lastTools,
		Observations:     r.observations,
		Rejection:        rejection,
	})

	resp, err := r.agent.client.Complete(ctx, msgs, r.catalog)
	if err != nil {
		return false, err
	}
	r.charge(msgs, resp)
	r.transcript.decision(r.iteration, resp.Raw)

	if r.iteration == 1 {
		r.recordPlan(resp.Turn)
	}
	r.logger.Info("research iteration",
		zap.Int("iteration", r.iteration),
		zap.String("state", string(r.state)),
		zap.String("turn", llm.KindOf(resp.Turn)),
		zap.Int("tokens", r.tokens))

	switch t := resp.Turn.(type) {
	case llm.ToolCalls:
		r.runTools(ctx, t)
		return false, nil
	case llm.FinalReport:
		return r.review(t), nil
	case llm.Malformed:
		r.rejection = "上一轮回复无法解析 (" + t.Reason + ")，请严格按 OUTPUT_FORMAT 输出一个 JSON 对象"
		r.appendStep(StageUpdate, actionMalform, "", nil, "malformed: "+t.Reason)
		r.lastTools = nil
		r.observations = nil
		return false, nil
	default:
		return false, fmt.Errorf("research: unexpected turn %T", resp.Turn)
	}
}

func (r *run) recordPlan(turn llm.Turn) {
	plan := ""
	if tc, ok := turn.(llm.ToolCalls); ok {
		plan = strings.TrimSpace(tc.Thought)
	}
	if fr, ok := turn.(llm.FinalReport); ok {
		plan = strings.TrimSpace(fr.Thought)
	}
	if plan == "" {
		plan = defaultPlan
	}
	r.plan = plan
	r.appendStep(StagePlan, actionPlan, r.query, nil, plan)
	r.progress("计划: " + firstLine(plan))
}

// runTools decodes the requested calls, runs the valid ones as one guarded
// batch and records a step per request in request order.
func (r *run) runTools(ctx context.Context, t llm.ToolCalls) {
	r.addUnknowns(t.Unknowns)
	if len(t.Calls) == 0 {
		r.rejection = "tool_calls 为空；请请求至少一个工具，或直接给出 final_report"
		r.lastTools = nil
		r.observations = nil
		return
	}

	outs := make([]inspect.Outcome, len(t.Calls))
	var batch []inspect.Call
	var slots []int
	names := make([]string, 0, len(t.Calls))
	for i, tc := range t.Calls {
		names = append(names, tc.Name)
		call, err := inspect.DecodeCall(tc.Name, tc.Arguments)
		if err != nil {
			outs[i] = inspect.Outcome{Tool: tc.Name, Context: fmt.Sprintf("tool_error: %s: %v", tc.Name, err), Failed: true}
			continue
		}
		batch = append(batch, call)
		slots = append(slots, i)
	}
	r.progress(fmt.Sprintf("第 %d 轮: 执行 %d 个工具调用 (%s)", r.iteration, len(t.Calls), strings.Join(names, ", ")))

	for j, out := range r.guard.ExecuteBatch(ctx, batch, r.discovered) {
		outs[slots[j]] = out
	}

	start := len(r.steps)
	r.observations = r.observations[:0]
	for i, out := range outs {
		input := string(t.Calls[i].Arguments)
		r.appendStep(StageUpdate, t.Calls[i].Name, input, out.Evidence, out.Context)
		r.addEvidence(out.Evidence)
		r.readPaths = append(r.readPaths, out.ReadPaths...)
		r.observations = append(r.observations, Observation{Tool: t.Calls[i].Name, Input: input, Context: out.Context})
		if out.Blocked || out.Failed {
			r.logger.Debug("tool outcome",
				zap.String("tool", out.Tool),
				zap.Bool("blocked", out.Blocked),
				zap.Bool("failed", out.Failed))
		}
	}
	r.lastTools = names
	r.transcript.toolResults(r.iteration, r.steps[start:])
}

// review gates a proposed report. A rejection keeps the loop exploring with
// the reason carried into the next context.
func (r *run) review(t llm.FinalReport) bool {
	r.state = StateFinalizing
	r.progress(fmt.Sprintf("第 %d 轮: 校验最终报告", r.iteration))
	r.lastTools = nil
	r.observations = nil

	cand, err := report.Parse(t.Report)
	if err != nil {
		r.reject("unparseable_report", "final_report 无法解析: "+err.Error())
		return false
	}
	if cand.NeedsMoreEvidence() {
		r.addUnknowns(cand.Unknowns)
		r.reject(report.StatusNeedMoreEvidence, "模型标记 need_more_evidence，请继续阅读 unknowns 中列出的文件")
		return false
	}
	r.prepare(cand)
	v := r.gate.Check(cand)
	if !v.OK {
		r.reject(v.Code, v.Reason)
		return false
	}
	r.transcript.section("质量门", "通过")
	r.finish(cand, StateAccepted, actionFinal)
	return true
}

func (r *run) reject(code, reason string) {
	r.state = StateExploring
	r.rejection = reason
	out := fmt.Sprintf("rejected (%s): %s", code, reason)
	r.appendStep(StageUpdate, actionGate, "", nil, out)
	r.transcript.section("质量门", out)
	r.progress("最终报告未通过质量门: " + reason)
	r.logger.Info("quality gate rejected", zap.Int("iteration", r.iteration), zap.String("code", code))
}

// prepare applies the evidence invariant and the normalizers so the gate
// sees the report as it would be returned.
func (r *run) prepare(c *report.Candidate) {
	c.Unknowns = distinct(append(c.Unknowns, r.unknowns...))
	if n := report.FilterEvidence(c, r.allowEvidence); n > 0 {
		r.logger.Debug("dropped undiscovered evidence", zap.Int("count", n))
	}
	refs := append([]string(nil), c.References...)
	for _, ev := range report.CollectEvidence(c) {
		p, _ := report.SplitRef(ev)
		refs = append(refs, p)
	}
	c.References = report.NormalizeReferencesWith(refs, r.fs.Root(), r.opts.Thresholds.NoiseAllowance)
	c.Diagrams = report.EnsureMinimumDiagrams(c.Diagrams, r.opts.Thresholds.MinDiagrams, c.CriticalFlows...)
}

// allowEvidence admits discovered files and existing P1 documents.
func (r *run) allowEvidence(rel string) bool {
	abs, err := r.fs.Clean(rel)
	if err != nil {
		return false
	}
	if r.discovered.HasFile(abs) {
		return true
	}
	if report.Classify(rel) != report.P1 {
		return false
	}
	info, err := r.fs.Stat(rel)
	return err == nil && !info.IsDir()
}

// forceFinal demands a report with no tools. The result is logged against
// the gate but never sent back for another round.
func (r *run) forceFinal(ctx context.Context) error {
	r.state = StateFinalizing
	r.progress(fmt.Sprintf("预算耗尽 (轮次 %d/%d, token≈%d/%d)，强制生成最终报告",
		r.iteration, r.opts.MaxSteps, r.tokens, r.opts.MaxTotalTokens))
	r.logger.Info("forced finalization", zap.Int("iteration", r.iteration), zap.Int("tokens", r.tokens))
	if len(r.steps) == 0 {
		r.plan = defaultPlan
		r.appendStep(StagePlan, actionPlan, r.query, nil, defaultPlan)
	}

	read := distinct(r.readPaths)
	r.transcript.section("强制总结 证据", fmt.Sprintf("read_code 步骤: %d\n已读文件: %d", GetReadCodeCountFromSteps(r.steps), len(read)))
	msgs := BuildForcedFinalMessages(r.query, r.unknowns, r.referencePaths(), read)
	var cand *report.Candidate
	for attempt := 1; attempt <= forcedAttempts && cand == nil; attempt++ {
		resp, err := r.agent.client.Complete(ctx, msgs, nil)
		if err != nil {
			return err
		}
		r.charge(msgs, resp)
		r.transcript.fenced(fmt.Sprintf("强制总结 (第 %d 次)", attempt), "json", resp.Raw)
		if fr, ok := resp.Turn.(llm.FinalReport); ok {
			if c, err := report.Parse(fr.Report); err == nil {
				cand = c
				break
			}
		}
		msgs = append(msgs,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Raw},
			llm.Message{Role: llm.RoleUser, Content: `上一次回复不是合法的最终报告。不要调用工具，只输出 {"action":"final","final_report":{...}}。`})
	}
	if cand == nil {
		r.logger.Warn("forced final unparseable; synthesizing report")
		cand = r.synthesize()
	}

	r.prepare(cand)
	if v := r.gate.Check(cand); !v.OK {
		r.logger.Info("forced report below quality gate", zap.String("code", v.Code))
		r.transcript.section("质量门", "强制总结未达标 (不再重试): "+v.Reason)
		cand.Unknowns = append(cand.Unknowns, "质量门未通过，结论可能不完整: "+v.Reason)
	}
	r.finish(cand, StateForced, actionForced)
	return nil
}

// synthesize builds a caveated report from run state when the model never
// produced one.
func (r *run) synthesize() *report.Candidate {
	c := &report.Candidate{
		Status:   report.StatusNeedMoreEvidence,
		Unknowns: append(append([]string(nil), r.unknowns...), "模型未能在预算内给出可解析的最终报告"),
	}
	c.References = r.referencePaths()
	for _, p := range distinct(r.readPaths) {
		c.ModuleSummaries = append(c.ModuleSummaries, report.ModuleSummary{Module: p, Summary: "已阅读，尚未形成结论"})
	}
	return c
}

func (r *run) finish(c *report.Candidate, state State, action string) {
	r.state = state
	conclusion := report.Render(r.query, c)
	r.appendStep(StageFinal, action, "", report.CollectEvidence(c), conclusion)
	r.transcript.section("最终结论", conclusion)
	r.final = c
	r.conclusion = conclusion
	r.progress(fmt.Sprintf("研究完成 (%s)", state))
}

func (r *run) result(ctx context.Context) *Result {
	plan := r.plan
	if plan == "" {
		plan = defaultPlan
	}
	res := &Result{
		RunID:           r.id,
		Query:           r.query,
		Plan:            plan,
		Updates:         append([]string(nil), r.updates...),
		Steps:           append([]Step(nil), r.steps...),
		FinalConclusion: r.conclusion,
		Report:          r.final,
		Accepted:        r.state == StateAccepted,
		FinalState:      r.state,
	}
	r.persist(ctx, res)
	r.logger.Info("research run done",
		zap.String("state", string(r.state)),
		zap.Int("steps", len(res.Steps)),
		zap.Int("tokens", r.tokens))
	return res
}

// charge adds provider usage, or an estimate when the provider reports none.
func (r *run) charge(msgs []llm.Message, resp *llm.Response) {
	if resp.TotalTokens > 0 {
		r.tokens += resp.TotalTokens
		return
	}
	r.tokens += llm.EstimateMessages(msgs) + llm.CountTokens(resp.Raw)
}

func (r *run) appendStep(stage Stage, action, input string, evidence []string, output string) {
	r.steps = append(r.steps, Step{
		Iteration: r.iteration,
		Stage:     stage,
		Action:    action,
		Input:     input,
		Evidence:  append([]string{}, evidence...),
		Output:    output,
	})
}

func (r *run) progress(msg string) {
	r.updates = append(r.updates, msg)
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(msg)
	}
}

func (r *run) addEvidence(ev []string) {
	for _, e := range ev {
		e = strings.TrimSpace(e)
		if e == "" || r.seenEvidence[e] {
			continue
		}
		r.seenEvidence[e] = true
		r.evidence = append(r.evidence, e)
	}
}

func (r *run) addUnknowns(items []string) {
	for _, u := range items {
		u = strings.TrimSpace(u)
		if u == "" || r.seenUnknown[u] {
			continue
		}
		r.seenUnknown[u] = true
		r.unknowns = append(r.unknowns, u)
	}
}

// referencePaths reduces accumulated evidence to distinct paths.
func (r *run) referencePaths() []string {
	paths := make([]string, 0, len(r.evidence))
	for _, e := range r.evidence {
		p, _ := report.SplitRef(e)
		paths = append(paths, p)
	}
	return distinct(paths)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
