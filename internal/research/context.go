package research

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"corawiki/internal/inspect"
	"corawiki/internal/llm"
)

const (
	maxContextEvidence   = 40
	maxObservationChars  = 6000
	maxObservationsChars = 24000
)

// Observation is one tool result carried into the next iteration.
type Observation struct {
	Tool    string
	Input   string
	Context string
}

// ContextInput is everything BuildContextMessages needs for one model call.
type ContextInput struct {
	Query string
	// Base is sent verbatim on iteration 1 and omitted afterwards.
	Base     []llm.Message
	Unknowns []string
	Evidence []string

	Iteration        int
	MaxSteps         int
	CumulativeTokens int
	MaxTotalTokens   int

	Catalog []llm.ToolSpec
	// LastRoundTools are the tool names the model called in the previous
	// iteration, in request order.
	LastRoundTools []string
	Observations   []Observation
	// Rejection is the quality gate's reason for refusing the last report.
	Rejection string
}

// BuildContextMessages assembles the bounded message list for one iteration.
func BuildContextMessages(in ContextInput) []llm.Message {
	var out []llm.Message
	if in.Iteration <= 1 {
		out = append(out, in.Base...)
	}
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: runMetadata(in)})
	if state := runState(in); state != "" {
		out = append(out, llm.Message{Role: llm.RoleUser, Content: state})
	}
	return out
}

func runMetadata(in ContextInput) string {
	remaining := max(in.MaxSteps-in.Iteration, 0)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "当前轮次=%d/%d\n", in.Iteration, in.MaxSteps)
	fmt.Fprintf(&buf, "剩余轮次=%d\n", remaining)
	fmt.Fprintf(&buf, "累计token≈%d/%d\n\n", in.CumulativeTokens, in.MaxTotalTokens)

	writeSection(&buf, "TOOLS", FormatCatalog(in.Catalog))
	if len(in.LastRoundTools) > 0 {
		var lines []string
		seen := map[string]bool{}
		for _, name := range in.LastRoundTools {
			if seen[name] {
				continue
			}
			seen[name] = true
			lines = append(lines, name+"="+inspect.Describe(name))
		}
		writeSection(&buf, "ALREADY_CALLED", "上一轮已调用:\n"+formatList(lines))
	}
	writeSection(&buf, "HINTS", formatList(hints(in, remaining)))
	if in.Iteration > 1 {
		writeSection(&buf, "OUTPUT_FORMAT", envelopeFormat)
	}
	return strings.TrimSpace(buf.String())
}

func hints(in ContextInput, remaining int) []string {
	var out []string
	if in.Iteration <= 2 && len(in.LastRoundTools) == 0 {
		out = append(out, "先调用 discover_entrypoints 或 summarize_directory 建立全局视图，再决定阅读哪些文件。")
	}
	if onlyListDir(in.LastRoundTools) {
		out = append(out, "上一轮只调用了 list_dir，本轮不要再调用 list_dir；请改用 read_skeleton 或 read_full_code 阅读已发现的文件。")
	}
	if in.Rejection != "" {
		out = append(out, "上一次提交的最终报告被质量门拒绝: "+in.Rejection+"。请补充证据后再提交。")
	}
	if remaining <= 1 {
		out = append(out, "这是最后一次探索机会；如果证据已足够，请直接给出 final_report。")
	}
	if in.MaxTotalTokens > 0 && in.CumulativeTokens*5 >= in.MaxTotalTokens*4 {
		out = append(out, "token 预算即将耗尽，请尽快收敛。")
	}
	return out
}

func onlyListDir(names []string) bool {
	if len(names) == 0 {
		return false
	}
	for _, n := range names {
		if n != inspect.ToolListDir {
			return false
		}
	}
	return true
}

func runState(in ContextInput) string {
	var buf bytes.Buffer
	if in.Iteration > 1 {
		writeSection(&buf, "QUERY", in.Query)
	}
	ev := in.Evidence
	if len(ev) > maxContextEvidence {
		ev = ev[len(ev)-maxContextEvidence:]
		writeSection(&buf, "EVIDENCE", fmt.Sprintf("(最近 %d 条，共 %d 条)\n%s", maxContextEvidence, len(in.Evidence), formatList(ev)))
	} else {
		writeSection(&buf, "EVIDENCE", formatList(ev))
	}
	writeSection(&buf, "UNKNOWNS", formatList(in.Unknowns))
	writeSection(&buf, "OBSERVATIONS", formatObservations(in.Observations))
	if in.Rejection != "" {
		writeSection(&buf, "REJECTION", in.Rejection)
	}
	return strings.TrimSpace(buf.String())
}

func formatObservations(obs []Observation) string {
	var buf strings.Builder
	for _, o := range obs {
		if buf.Len() >= maxObservationsChars {
			buf.WriteString("... (更多工具结果已省略)\n")
			break
		}
		fmt.Fprintf(&buf, "### %s %s\n", o.Tool, o.Input)
		buf.WriteString(truncate(o.Context, maxObservationChars))
		buf.WriteString("\n")
	}
	return strings.TrimRight(buf.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return strings.TrimRight(s, "\n")
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n... [truncated %d bytes]", len(s)-cut)
}
