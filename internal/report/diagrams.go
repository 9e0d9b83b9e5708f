package report

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	diagramDirective = regexp.MustCompile(`^(flowchart|graph|sequenceDiagram|classDiagram|stateDiagram(-v2)?|erDiagram|journey|gantt|pie|mindmap|timeline|gitGraph|C4Context|C4Container|quadrantChart|block-beta|architecture-beta)\b`)
	fencedBlock      = regexp.MustCompile("(?s)```[ \\t]*(?:mermaid)?[ \\t]*\\r?\\n(.*?)```")
)

var fallbackDiagrams = []string{
	"flowchart TD\n    Q[Query] --> E[Entry points]\n    E --> M[Core modules]\n    M --> O[Outputs]",
	"flowchart LR\n    C[Caller] --> A[Application layer]\n    A --> D[Domain logic]\n    D --> S[(Storage and external services)]",
}

// IsValidDiagram reports whether text is diagram source: its first
// meaningful line is a known directive and at least one more line follows.
func IsValidDiagram(text string) bool {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "%%") {
			continue
		}
		lines = append(lines, l)
	}
	return len(lines) >= 2 && diagramDirective.MatchString(lines[0])
}

// NormalizeMermaidDiagrams extracts fenced blocks from free text and keeps
// only entries that are diagram syntax, deduped.
func NormalizeMermaidDiagrams(raw []string) []string {
	var out []string
	seen := map[string]bool{}
	keep := func(d string) {
		d = strings.TrimSpace(d)
		if !IsValidDiagram(d) || seen[d] {
			return
		}
		seen[d] = true
		out = append(out, d)
	}
	for _, r := range raw {
		blocks := fencedBlock.FindAllStringSubmatch(r, -1)
		if len(blocks) == 0 {
			keep(r)
			continue
		}
		for _, b := range blocks {
			keep(b[1])
		}
	}
	return out
}

// EnsureMinimumDiagrams normalizes diagrams and tops them up to want, first
// from the given flows, then from fixed skeletons, then from numbered
// placeholders until want is reached.
func EnsureMinimumDiagrams(diagrams []string, want int, flows ...Flow) []string {
	out := NormalizeMermaidDiagrams(diagrams)
	seen := map[string]bool{}
	for _, d := range out {
		seen[d] = true
	}
	add := func(d string) {
		if len(out) >= want || d == "" || seen[d] {
			return
		}
		seen[d] = true
		out = append(out, d)
	}
	for _, f := range flows {
		add(DiagramFromFlow(f))
	}
	for _, d := range fallbackDiagrams {
		add(d)
	}
	for i := 1; len(out) < want; i++ {
		add(fmt.Sprintf("flowchart TD\n    %%%% view %d\n    Q[Query] --> V%d[Unconfirmed area %d]", i, i, i))
	}
	return out
}

// DiagramFromFlow renders a critical flow as a top-down flowchart. It
// returns "" for flows without steps.
func DiagramFromFlow(f Flow) string {
	var steps []string
	for _, s := range f.Steps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	if name := strings.TrimSpace(f.Name); name != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", oneLine(name))
	}
	for i, s := range steps {
		label := strings.ReplaceAll(oneLine(s), `"`, "'")
		if i == 0 {
			fmt.Fprintf(&b, "    s0[\"%s\"]\n", label)
			continue
		}
		fmt.Fprintf(&b, "    s%d --> s%d[\"%s\"]\n", i-1, i, label)
	}
	return strings.TrimRight(b.String(), "\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
