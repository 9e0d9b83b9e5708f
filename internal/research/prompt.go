package research

import (
	"bytes"
	"fmt"
	"strings"

	"corawiki/internal/llm"
)

const envelopeFormat = `Reply with exactly one JSON object and nothing else.
To inspect the workspace:
{"action":"tool_calls","thought":"<why>","unknowns":["<open question>"],"tool_calls":[{"name":"<tool>","arguments":{...}}]}
To finish:
{"action":"final","final_report":<REPORT>}`

const reportFormat = `REPORT = {
  "architectureFindings": [{"title": "", "judgement": "", "evidence": ["path:line"]}],
  "criticalFlows": [{"name": "", "steps": [""], "evidence": ["path:line-line"]}],
  "references": ["path"],
  "diagrams": ["flowchart TD\n  A --> B"],
  "risks": [{"risk": "", "impact": "", "evidence": ["path:line"]}],
  "unknowns": [""],
  "moduleSummaries": [{"module": "", "summary": ""}],
  "status": "ok | need_more_evidence"
}`

var researchRules = []string{
	"只能对已经被 list_dir / summarize_directory / discover_entrypoints 发现的路径调用 read_skeleton、read_full_code 或分析工具；未发现的路径会返回 path_guard_blocked。",
	"先广度后深度：先建立目录与入口的全局视图，再阅读关键文件。",
	"同一轮可以并行请求多个工具调用。",
	"每条 architectureFindings 必须引用 evidence (path:line 或 path:line-line)，且只能引用本次实际看到的文件。",
	"不同 finding 的 judgement 不能重复；至少 3 条 finding、1 条带证据的 criticalFlow、5 条 references (以源码为主)、2 个 mermaid 图、1 条 risk、1 条 unknown、1 条 moduleSummary。",
	"证据不足时不要编造，返回 status=need_more_evidence 并在 unknowns 中写明缺口。",
}

func writeSection(buf *bytes.Buffer, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	buf.WriteString("[")
	buf.WriteString(title)
	buf.WriteString("]\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}

func formatList(items []string) string {
	var buf strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fmt.Fprintf(&buf, "- %s\n", item)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// FormatCatalog renders tools as name=description pairs.
func FormatCatalog(tools []llm.ToolSpec) string {
	var buf strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&buf, "%s=%s\n", t.Name, t.Description)
		for _, p := range t.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&buf, "  - %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
		}
	}
	return strings.TrimRight(buf.String(), "\n")
}

// BuildBaseMessages returns the system and user messages sent on the first
// iteration only.
func BuildBaseMessages(query, workspaceName string) []llm.Message {
	var sys bytes.Buffer
	writeSection(&sys, "PURPOSE", "你是 CoraWiki 工作区研究代理。针对用户的问题调查一个陌生代码库，最终给出有证据支撑的架构报告。")
	writeSection(&sys, "RULES", formatList(researchRules))
	writeSection(&sys, "OUTPUT_FORMAT", envelopeFormat+"\n"+reportFormat)
	writeSection(&sys, "LANGUAGE", "使用与用户问题相同的语言书写报告内容。")

	var user bytes.Buffer
	writeSection(&user, "QUERY", query)
	writeSection(&user, "WORKSPACE", workspaceName+" (根目录已可访问，路径使用相对路径，\".\" 表示根目录)")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: strings.TrimSpace(sys.String())},
		{Role: llm.RoleUser, Content: strings.TrimSpace(user.String())},
	}
}
