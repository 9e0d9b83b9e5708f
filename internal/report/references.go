package report

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Tier ranks a reference by how authoritative it is.
type Tier int

const (
	// P0 is source code.
	P0 Tier = iota
	// P1 is build and package manifests, configuration and top-level docs.
	P1
	// P2 is auxiliary documentation and everything else.
	P2
)

func (t Tier) String() string {
	switch t {
	case P0:
		return "P0"
	case P1:
		return "P1"
	default:
		return "P2"
	}
}

var sourceExts = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
	".py": true, ".rs": true, ".java": true, ".kt": true, ".kts": true, ".scala": true, ".swift": true,
	".c": true, ".h": true, ".cc": true, ".cpp": true, ".hpp": true, ".cs": true, ".rb": true,
	".php": true, ".vue": true, ".svelte": true, ".m": true, ".lua": true, ".sh": true, ".dart": true,
}

var configExts = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".cfg": true,
	".gradle": true, ".xml": true, ".lock": true, ".mod": true, ".sum": true, ".proto": true,
}

var manifestBases = map[string]bool{
	"makefile": true, "dockerfile": true, "gemfile": true, "procfile": true, "justfile": true,
	"requirements.txt": true, "cmakelists.txt": true,
}

var docExts = map[string]bool{".md": true, ".mdx": true, ".rst": true, ".txt": true, ".adoc": true}

var (
	lineSuffix = regexp.MustCompile(`^(.*?)(:\d+(?:-\d+)?)?$`)
	noiseDoc   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(^|/)(ep|jira|ticket|issue|task|bug)[-_]?\d+`),
		regexp.MustCompile(`(?i)(^|/)(scratch|drafts?|tmp|temp|wip)(/|[-_.])`),
		regexp.MustCompile(`(?i)(^|/)(notes?|todo)[-_.]`),
	}
)

// SplitRef separates "path:12-20" into its path and ":12-20".
func SplitRef(ref string) (string, string) {
	m := lineSuffix.FindStringSubmatch(ref)
	if m == nil {
		return ref, ""
	}
	return m[1], m[2]
}

// Classify assigns a tier from the reference path alone.
func Classify(ref string) Tier {
	p, _ := SplitRef(ref)
	p = strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "./")
	base := strings.ToLower(path.Base(p))
	ext := strings.ToLower(path.Ext(base))
	topLevel := !strings.Contains(p, "/")
	switch {
	case sourceExts[ext]:
		return P0
	case manifestBases[base], configExts[ext]:
		return P1
	case docExts[ext] && topLevel:
		return P1
	}
	return P2
}

// IsNoise reports whether a reference is a low-signal document such as a
// ticket-numbered or scratch note.
func IsNoise(ref string) bool {
	if Classify(ref) != P2 {
		return false
	}
	p, _ := SplitRef(ref)
	p = filepath.ToSlash(p)
	for _, re := range noiseDoc {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

// NormalizeReferences applies NormalizeReferencesWith with the default noise
// allowance.
func NormalizeReferences(raw []string, root string) []string {
	return NormalizeReferencesWith(raw, root, DefaultThresholds().NoiseAllowance)
}

// NormalizeReferencesWith cleans, dedupes and tier-sorts references. Each
// file is kept once, under its first citation, so line ranges of one file
// count as a single reference. Entries
// that do not exist under root are dropped, as are noise documents beyond
// noiseAllowance. An empty root skips the existence check.
func NormalizeReferencesWith(raw []string, root string, noiseAllowance int) []string {
	type ref struct {
		text string
		tier Tier
	}
	var refs []ref
	seen := map[string]bool{}
	noise := 0
	for _, r := range raw {
		text, ok := cleanRef(r, root)
		if !ok {
			continue
		}
		p, _ := SplitRef(text)
		if seen[p] {
			continue
		}
		if root != "" {
			if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(p))); err != nil {
				continue
			}
		}
		if IsNoise(text) {
			if noise >= noiseAllowance {
				continue
			}
			noise++
		}
		seen[p] = true
		refs = append(refs, ref{text: text, tier: Classify(text)})
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].tier < refs[j].tier })
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.text)
	}
	return out
}

// cleanRef strips decoration and makes the path workspace-relative.
func cleanRef(r, root string) (string, bool) {
	r = strings.TrimSpace(strings.Trim(strings.TrimSpace(r), "`'\""))
	r = strings.TrimPrefix(r, "file://")
	if r == "" {
		return "", false
	}
	p, suffix := SplitRef(r)
	p = filepath.Clean(filepath.FromSlash(p))
	if filepath.IsAbs(p) {
		if root == "" {
			return "", false
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return "", false
		}
		p = rel
	}
	p = filepath.ToSlash(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p + suffix, true
}

// TierRatio returns the share of refs classified at tier t.
func TierRatio(refs []string, t Tier) float64 {
	if len(refs) == 0 {
		return 0
	}
	n := 0
	for _, r := range refs {
		if Classify(r) == t {
			n++
		}
	}
	return float64(n) / float64(len(refs))
}
