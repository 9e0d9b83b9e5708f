package report

import (
	"fmt"
	"strings"
)

// Render formats an accepted or forced report as the markdown conclusion
// returned to the caller.
func Render(query string, c *Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# 研究结论: %s\n\n", oneLine(query))
	if c == nil {
		b.WriteString("(no report)\n")
		return b.String()
	}
	if c.NeedsMoreEvidence() {
		b.WriteString("> 证据不足 (need_more_evidence)：以下结论置信度有限，需要进一步阅读代码确认。\n\n")
	}

	if len(c.ModuleSummaries) > 0 {
		b.WriteString("## 模块摘要\n\n")
		for _, m := range c.ModuleSummaries {
			if m.Module != "" {
				fmt.Fprintf(&b, "- **%s**: %s\n", m.Module, m.Summary)
			} else {
				fmt.Fprintf(&b, "- %s\n", m.Summary)
			}
		}
		b.WriteString("\n")
	}

	if len(c.ArchitectureFindings) > 0 {
		b.WriteString("## 架构发现\n\n")
		for i, f := range c.ArchitectureFindings {
			fmt.Fprintf(&b, "### %d. %s\n\n", i+1, firstNonEmpty(f.Title, f.Judgement))
			if f.Judgement != "" && f.Judgement != f.Title {
				fmt.Fprintf(&b, "%s\n\n", f.Judgement)
			}
			writeEvidence(&b, f.Evidence)
		}
	}

	if len(c.CriticalFlows) > 0 {
		b.WriteString("## 关键流程\n\n")
		for _, f := range c.CriticalFlows {
			fmt.Fprintf(&b, "### %s\n\n", firstNonEmpty(f.Name, "flow"))
			for i, s := range f.Steps {
				fmt.Fprintf(&b, "%d. %s\n", i+1, s)
			}
			if len(f.Steps) > 0 {
				b.WriteString("\n")
			}
			writeEvidence(&b, f.Evidence)
		}
	}

	if len(c.Diagrams) > 0 {
		b.WriteString("## 图\n\n")
		for _, d := range c.Diagrams {
			fmt.Fprintf(&b, "```mermaid\n%s\n```\n\n", strings.TrimSpace(d))
		}
	}

	if len(c.Risks) > 0 {
		b.WriteString("## 风险\n\n")
		for _, r := range c.Risks {
			line := "- **" + r.Risk + "**"
			if r.Impact != "" {
				line += ": " + r.Impact
			}
			if len(r.Evidence) > 0 {
				line += " (" + codeList(r.Evidence) + ")"
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	if len(c.Unknowns) > 0 {
		b.WriteString("## 未知项\n\n")
		for _, u := range c.Unknowns {
			fmt.Fprintf(&b, "- %s\n", u)
		}
		b.WriteString("\n")
	}

	if len(c.References) > 0 {
		b.WriteString("## 参考\n\n")
		for _, r := range c.References {
			fmt.Fprintf(&b, "- `%s` (%s)\n", r, Classify(r))
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeEvidence(b *strings.Builder, ev []string) {
	if len(ev) == 0 {
		return
	}
	fmt.Fprintf(b, "证据: %s\n\n", codeList(ev))
}

func codeList(items []string) string {
	parts := make([]string, 0, len(items))
	for _, s := range items {
		parts = append(parts, "`"+s+"`")
	}
	return strings.Join(parts, ", ")
}
