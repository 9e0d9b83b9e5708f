package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"corawiki/internal/scan"
)

const (
	maxListEntries     = 200
	summaryMaxEntries  = 5000
	entryScanMaxDepth  = 5
	entryScanMaxVisits = 20000
	defaultEntryLimit  = 20
	maxSkeletonSymbols = 200
	skeletonEvidence   = 12
	skeletonPreview    = 40
)

// --------------------- list_dir ---------------------

func (e *Executor) listDir(c ListDir) (Outcome, error) {
	abs, err := e.fs.Clean(orRoot(c.TargetPath))
	if err != nil {
		return Outcome{}, err
	}
	entries, err := e.fs.ReadDir(abs)
	if err != nil {
		return Outcome{}, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	var out Outcome
	var b strings.Builder
	fmt.Fprintf(&b, "目录 %s (%d 项)\n", e.fs.Rel(abs), len(entries))
	for i, ent := range entries {
		if i >= maxListEntries {
			fmt.Fprintf(&b, "... %d more entries omitted\n", len(entries)-i)
			break
		}
		childAbs := filepath.Join(abs, ent.Name())
		childRel := e.fs.Rel(childAbs)
		isDir := ent.IsDir()
		if ent.Type()&fs.ModeSymlink != 0 {
			info, err := e.fs.Stat(childAbs)
			if err != nil {
				fmt.Fprintf(&b, "[link] %s (outside workspace or broken)\n", childRel)
				continue
			}
			isDir = info.IsDir()
		}
		if isDir {
			if scan.IsIgnoredDir(ent.Name()) {
				fmt.Fprintf(&b, "[dir]  %s/ (ignored)\n", childRel)
				continue
			}
			out.SurfacedDirs = append(out.SurfacedDirs, childAbs)
			fmt.Fprintf(&b, "[dir]  %s/\n", childRel)
			continue
		}
		size := ""
		if info, err := ent.Info(); err == nil {
			size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
		}
		out.SurfacedFiles = append(out.SurfacedFiles, childAbs)
		fmt.Fprintf(&b, "[file] %s%s\n", childRel, size)
	}
	out.Context = b.String()
	return out, nil
}

// --------------------- summarize_directory ---------------------

type sizedPath struct {
	rel  string
	size int64
}

func (e *Executor) summarizeDirectory(c SummarizeDirectory) (Outcome, error) {
	abs, err := e.fs.Clean(orRoot(c.TargetPath))
	if err != nil {
		return Outcome{}, err
	}
	info, err := e.fs.Stat(abs)
	if err != nil {
		return Outcome{}, err
	}
	if !info.IsDir() {
		return Outcome{}, fmt.Errorf("%s is not a directory", e.fs.Rel(abs))
	}

	var (
		files, dirs int
		total       int64
		exts        = map[string]int{}
		subdirs     = map[string]int{}
		largest     []sizedPath
		out         Outcome
	)
	base := e.fs.Rel(abs)
	walkErr := scan.Walk(abs, scan.Options{MaxEntries: summaryMaxEntries}, func(v scan.FileVisit) {
		top := strings.SplitN(v.Path, "/", 2)[0]
		if v.IsDir {
			dirs++
			if v.Depth == 1 {
				if _, ok := subdirs[top]; !ok {
					subdirs[top] = 0
				}
				out.SurfacedDirs = append(out.SurfacedDirs, v.AbsPath)
			}
			return
		}
		files++
		total += v.Size
		ext := v.Ext
		if ext == "" {
			ext = "(none)"
		}
		exts[ext]++
		if v.Depth > 1 {
			subdirs[top]++
		}
		largest = append(largest, sizedPath{rel: path.Join(base, v.Path), size: v.Size})
	})

	var b strings.Builder
	fmt.Fprintf(&b, "目录摘要 %s\n", base)
	fmt.Fprintf(&b, "文件数=%d 目录数=%d 总大小=%s", files, dirs, humanize.Bytes(uint64(total)))
	if walkErr != nil {
		fmt.Fprintf(&b, " (扫描在 %d 项处截断)", summaryMaxEntries)
	}
	b.WriteString("\n")

	if len(exts) > 0 {
		b.WriteString("扩展名分布: ")
		b.WriteString(strings.Join(topCounts(exts, 12), ", "))
		b.WriteString("\n")
	}
	if len(subdirs) > 0 {
		b.WriteString("子目录: ")
		names := make([]string, 0, len(subdirs))
		for name := range subdirs {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s (%d files)", path.Join(base, name), subdirs[name]))
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("\n")
	}
	sort.SliceStable(largest, func(i, j int) bool { return largest[i].size > largest[j].size })
	if len(largest) > 5 {
		largest = largest[:5]
	}
	if len(largest) > 0 {
		b.WriteString("最大文件:\n")
		for _, l := range largest {
			fmt.Fprintf(&b, "  %s (%s)\n", l.rel, humanize.Bytes(uint64(l.size)))
		}
	}
	out.Context = b.String()
	return out, nil
}

func topCounts(m map[string]int, limit int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return out
}

// --------------------- discover_entrypoints ---------------------

var manifestNames = map[string]bool{
	"package.json": true, "go.mod": true, "cargo.toml": true, "pyproject.toml": true,
	"setup.py": true, "setup.cfg": true, "requirements.txt": true, "pom.xml": true,
	"build.gradle": true, "build.gradle.kts": true, "composer.json": true, "gemfile": true,
	"makefile": true, "dockerfile": true, "docker-compose.yml": true, "tsconfig.json": true,
	"cmakelists.txt": true, "deno.json": true,
}

var mainNames = map[string]bool{
	"main.go": true, "main.py": true, "__main__.py": true, "app.py": true, "manage.py": true,
	"cli.py": true, "main.ts": true, "main.js": true, "index.ts": true, "index.js": true,
	"app.ts": true, "app.js": true, "server.ts": true, "server.js": true, "server.go": true,
	"extension.ts": true, "main.rs": true, "lib.rs": true, "program.cs": true, "main.java": true,
	"index.tsx": true, "main.tsx": true,
}

var entryDirs = map[string]bool{"src": true, "cmd": true, "app": true, "bin": true, "server": true, "lib": true}

type entryCandidate struct {
	rel   string
	abs   string
	kind  string
	score int
	depth int
}

func entryScore(rel string, depth int) (int, string) {
	name := strings.ToLower(path.Base(rel))
	switch {
	case manifestNames[name]:
		if depth == 1 {
			return 3, "manifest"
		}
		return 1, "manifest"
	case mainNames[name]:
		score := 4
		parts := strings.Split(rel, "/")
		if len(parts) > 1 && entryDirs[strings.ToLower(parts[0])] {
			score++
		}
		if depth > 3 {
			score--
		}
		return score, "main"
	case depth == 1 && strings.HasPrefix(name, "readme"):
		return 2, "doc"
	}
	return 0, ""
}

func (e *Executor) discoverEntrypoints(c DiscoverEntrypoints) (Outcome, error) {
	limit := c.MaxResults
	if limit <= 0 {
		limit = defaultEntryLimit
	}
	limit = min(limit, 100)

	root := e.fs.Root()
	var cands []entryCandidate
	walkErr := scan.Walk(root, scan.Options{MaxDepth: entryScanMaxDepth, MaxEntries: entryScanMaxVisits}, func(v scan.FileVisit) {
		if v.IsDir {
			return
		}
		if score, kind := entryScore(v.Path, v.Depth); score > 0 {
			cands = append(cands, entryCandidate{rel: v.Path, abs: v.AbsPath, kind: kind, score: score, depth: v.Depth})
		}
	})
	cands = append(cands, e.packageMainCandidates()...)

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		return a.rel < b.rel
	})

	var out Outcome
	seen := map[string]bool{}
	dirSeen := map[string]bool{}
	var b strings.Builder
	for _, cand := range cands {
		if seen[cand.rel] || len(seen) >= limit {
			continue
		}
		seen[cand.rel] = true
		fmt.Fprintf(&b, "  [%s] %s (score %d)\n", cand.kind, cand.rel, cand.score)
		out.SurfacedFiles = append(out.SurfacedFiles, cand.abs)
		out.Evidence = append(out.Evidence, cand.rel+":1")
		for dir := filepath.Dir(cand.abs); dir != root && !dirSeen[dir] && len(dir) > len(root); dir = filepath.Dir(dir) {
			dirSeen[dir] = true
			out.SurfacedDirs = append(out.SurfacedDirs, dir)
		}
	}
	header := fmt.Sprintf("入口候选 (%d)\n", len(seen))
	if len(seen) == 0 {
		header = "入口候选 (0): 未找到清单或主入口文件，请先用 list_dir 浏览根目录\n"
	}
	if walkErr != nil {
		header += "(扫描已截断)\n"
	}
	out.Context = header + b.String()
	return out, nil
}

// packageMainCandidates promotes the files named by package.json "main" and
// "bin" at the root.
func (e *Executor) packageMainCandidates() []entryCandidate {
	data, err := e.fs.ReadFile("package.json")
	if err != nil {
		return nil
	}
	var pkg struct {
		Main string          `json:"main"`
		Bin  json.RawMessage `json:"bin"`
	}
	if json.Unmarshal(data, &pkg) != nil {
		return nil
	}
	targets := []string{pkg.Main}
	var binStr string
	var binMap map[string]string
	if json.Unmarshal(pkg.Bin, &binStr) == nil {
		targets = append(targets, binStr)
	} else if json.Unmarshal(pkg.Bin, &binMap) == nil {
		for _, v := range binMap {
			targets = append(targets, v)
		}
	}
	var out []entryCandidate
	for _, t := range targets {
		if strings.TrimSpace(t) == "" {
			continue
		}
		abs, err := e.fs.Clean(t)
		if err != nil {
			continue
		}
		if info, err := e.fs.Stat(abs); err != nil || info.IsDir() {
			continue
		}
		rel := e.fs.Rel(abs)
		out = append(out, entryCandidate{rel: rel, abs: abs, kind: "main", score: 6, depth: strings.Count(rel, "/") + 1})
	}
	return out
}

// --------------------- read_skeleton ---------------------

func (e *Executor) readSkeleton(ctx context.Context, c ReadSkeleton) (Outcome, error) {
	abs, err := e.fs.Clean(c.FilePath)
	if err != nil {
		return Outcome{}, err
	}
	f, err := e.load(abs)
	if err != nil {
		return Outcome{}, err
	}
	rel := e.fs.Rel(abs)
	out := Outcome{ReadPaths: []string{rel}}
	if isBinary(f.data) {
		out.Context = fmt.Sprintf("%s: binary file (%s), skeleton not available\n", rel, humanize.Bytes(uint64(f.size)))
		return out, nil
	}
	lines := splitLines(f.data)
	syms := Outline(ctx, filepath.Ext(abs), f.data)

	var b strings.Builder
	fmt.Fprintf(&b, "骨架 %s (%d 行, %d 个符号)\n", rel, len(lines), len(syms))
	if len(syms) == 0 {
		n := min(len(lines), skeletonPreview)
		fmt.Fprintf(&b, "(no declarations recognized; first %d lines)\n", n)
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "%5d| %s\n", i+1, lines[i])
		}
		out.Evidence = []string{lineRef(rel, 1, max(n, 1))}
		out.Context = b.String()
		return out, nil
	}
	if len(syms) > maxSkeletonSymbols {
		fmt.Fprintf(&b, "(showing first %d symbols)\n", maxSkeletonSymbols)
		syms = syms[:maxSkeletonSymbols]
	}
	b.WriteString(formatSymbols(syms))
	seen := map[int]bool{}
	for _, s := range syms {
		if len(out.Evidence) >= skeletonEvidence {
			break
		}
		if seen[s.Line] {
			continue
		}
		seen[s.Line] = true
		out.Evidence = append(out.Evidence, lineRef(rel, s.Line, s.Line))
	}
	out.Context = b.String()
	return out, nil
}

// --------------------- read_full_code ---------------------

func (e *Executor) readFullCode(c ReadFullCode) (Outcome, error) {
	abs, err := e.fs.Clean(c.FilePath)
	if err != nil {
		return Outcome{}, err
	}
	f, err := e.load(abs)
	if err != nil {
		return Outcome{}, err
	}
	rel := e.fs.Rel(abs)
	out := Outcome{ReadPaths: []string{rel}}
	if isBinary(f.data) {
		out.Context = fmt.Sprintf("%s: binary file (%s), content not shown\n", rel, humanize.Bytes(uint64(f.size)))
		return out, nil
	}
	lines := splitLines(f.data)
	total := len(lines)
	if total == 0 {
		out.Context = fmt.Sprintf("文件 %s (空文件)\n", rel)
		out.Evidence = []string{lineRef(rel, 1, 1)}
		return out, nil
	}
	start := max(c.StartLine, 1)
	if start > total {
		return Outcome{}, fmt.Errorf("startLine %d beyond end of %s (%d lines)", start, rel, total)
	}
	budget := c.MaxLines
	if budget <= 0 {
		budget = e.readLines
	}
	budget = min(budget, maxReadLines)
	end := min(total, start+budget-1)

	var b strings.Builder
	fmt.Fprintf(&b, "文件 %s (共 %d 行)\n", rel, total)
	if start > 1 {
		fmt.Fprintf(&b, "[omitted %d lines]\n", start-1)
	}
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%5d| %s\n", i, lines[i-1])
	}
	if end < total {
		fmt.Fprintf(&b, "[omitted %d lines]\n", total-end)
	}
	if f.truncated {
		fmt.Fprintf(&b, "[file truncated at %s]\n", humanize.Bytes(maxReadBytes))
	}
	out.Context = b.String()
	out.Evidence = []string{lineRef(rel, start, end)}
	return out, nil
}
