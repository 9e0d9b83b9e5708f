package report

import (
	"fmt"
	"strings"
)

// Thresholds configures the quality gate.
type Thresholds struct {
	MinFindings        int     `yaml:"min_findings"`
	MinFlows           int     `yaml:"min_flows"`
	MinReferences      int     `yaml:"min_references"`
	MaxP2Ratio         float64 `yaml:"max_p2_ratio"`
	MinDiagrams        int     `yaml:"min_diagrams"`
	MinRisks           int     `yaml:"min_risks"`
	MinUnknowns        int     `yaml:"min_unknowns"`
	MinModuleSummaries int     `yaml:"min_module_summaries"`
	NoiseAllowance     int     `yaml:"noise_allowance"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinFindings:        3,
		MinFlows:           1,
		MinReferences:      5,
		MaxP2Ratio:         0.5,
		MinDiagrams:        2,
		MinRisks:           1,
		MinUnknowns:        1,
		MinModuleSummaries: 1,
		NoiseAllowance:     1,
	}
}

// Verdict codes, one per gate rule.
const (
	CodeDuplicateJudgement     = "duplicate_judgement"
	CodeInsufficientFindings   = "insufficient_findings"
	CodeFindingWithoutEvidence = "finding_without_evidence"
	CodeInsufficientFlows      = "insufficient_flows"
	CodeInsufficientReferences = "insufficient_references"
	CodeP2Ratio                = "p2_ratio"
	CodeInsufficientDiagrams   = "insufficient_diagrams"
	CodeInsufficientRisks      = "insufficient_risks"
	CodeMissingUnknowns        = "missing_unknowns"
	CodeMissingModuleSummaries = "missing_module_summaries"
)

// Verdict is the gate's answer. Reason names the first violated rule.
type Verdict struct {
	OK     bool
	Code   string
	Reason string
}

func pass() Verdict { return Verdict{OK: true} }

func fail(code, format string, args ...any) Verdict {
	return Verdict{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Gate validates candidates. References and diagrams are expected to be
// normalized already.
type Gate struct {
	Thresholds Thresholds
}

func NewGate(t Thresholds) Gate { return Gate{Thresholds: t} }

// Check fails closed on the first violated rule.
func (g Gate) Check(c *Candidate) Verdict {
	t := g.Thresholds
	if c == nil {
		return fail(CodeInsufficientFindings, "没有可校验的最终报告")
	}

	judgements := map[string]int{}
	for i, f := range c.ArchitectureFindings {
		key := normalizeText(f.Judgement)
		if key == "" {
			continue
		}
		if j, dup := judgements[key]; dup {
			return fail(CodeDuplicateJudgement,
				"architectureFindings 第 %d 条与第 %d 条的判断重复 (duplicate judgement)，请合并重复结论并补充新的发现", i+1, j+1)
		}
		judgements[key] = i
	}
	if n := distinctFindings(c.ArchitectureFindings); n < t.MinFindings {
		return fail(CodeInsufficientFindings, "architectureFindings 不足: %d < %d", n, t.MinFindings)
	}
	for i, f := range c.ArchitectureFindings {
		if len(nonEmpty(f.Evidence)) == 0 {
			return fail(CodeFindingWithoutEvidence, "architectureFindings 第 %d 条 (%s) 缺少证据", i+1, f.Title)
		}
	}

	flows := 0
	for _, f := range c.CriticalFlows {
		if len(nonEmpty(f.Evidence)) > 0 {
			flows++
		}
	}
	if flows < t.MinFlows {
		return fail(CodeInsufficientFlows, "带证据的 criticalFlows 不足: %d < %d", flows, t.MinFlows)
	}

	if n := len(c.References); n < t.MinReferences {
		return fail(CodeInsufficientReferences, "references 不足: %d < %d", n, t.MinReferences)
	}
	if ratio := TierRatio(c.References, P2); ratio > t.MaxP2Ratio {
		return fail(CodeP2Ratio, "P2 辅助文档在 references 中占比 %.0f%% 超过上限 %.0f%%，请以源码证据为主", ratio*100, t.MaxP2Ratio*100)
	}

	valid := 0
	for _, d := range c.Diagrams {
		if IsValidDiagram(d) {
			valid++
		}
	}
	if valid < t.MinDiagrams {
		return fail(CodeInsufficientDiagrams, "有效 diagrams 不足: %d < %d", valid, t.MinDiagrams)
	}

	if n := len(c.Risks); n < t.MinRisks {
		return fail(CodeInsufficientRisks, "risks 不足: %d < %d", n, t.MinRisks)
	}
	if n := len(nonEmpty(c.Unknowns)); n < t.MinUnknowns {
		return fail(CodeMissingUnknowns, "unknowns 不足: %d < %d，请记录仍未确认的问题", n, t.MinUnknowns)
	}
	if n := len(c.ModuleSummaries); n < t.MinModuleSummaries {
		return fail(CodeMissingModuleSummaries, "moduleSummaries 为空")
	}
	return pass()
}

func distinctFindings(fs []Finding) int {
	seen := map[string]bool{}
	for _, f := range fs {
		key := normalizeText(f.Title) + "\x00" + normalizeText(f.Judgement)
		if key == "\x00" {
			continue
		}
		seen[key] = true
	}
	return len(seen)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func nonEmpty(items []string) []string {
	var out []string
	for _, s := range items {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
