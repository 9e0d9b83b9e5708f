package scan

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrLimitReached is returned by Walk when MaxEntries stopped the traversal early.
var ErrLimitReached = errors.New("scan: entry limit reached")

// defaultIgnoreDirs are VCS, dependency and build output directories that never
// carry first-party source.
var defaultIgnoreDirs = map[string]struct{}{
	".git": {}, ".hg": {}, ".svn": {},
	"node_modules": {}, "vendor": {}, "bower_components": {},
	"dist": {}, "build": {}, "out": {}, "target": {},
	".next": {}, ".cache": {}, "__pycache__": {}, ".venv": {}, "venv": {},
	".idea": {}, ".vscode-test": {},
}

// FileVisit carries per-entry metadata to user callbacks.
type FileVisit struct {
	// Root-relative path using forward slashes (e.g., "src/app.go").
	Path string
	// Absolute filesystem path.
	AbsPath string
	// True when the entry is a directory.
	IsDir bool
	// Lowercased extension (e.g., ".go", ".md"); empty for dirs or no-ext files.
	Ext string
	// File size in bytes; 0 for dirs or when stat fails.
	Size int64
	// Depth below the root; direct children have depth 1.
	Depth int
}

// VisitFunc is invoked for every visited entry.
type VisitFunc func(f FileVisit)

// Options bound a walk.
type Options struct {
	// MaxDepth limits recursion; 0 means unlimited.
	MaxDepth int
	// MaxEntries stops the walk after this many visits; 0 means unlimited.
	MaxEntries int
	// IgnoreDirs adds directory names to the default ignore list.
	IgnoreDirs []string
}

// IsIgnoredDir reports whether a directory name is skipped by default.
func IsIgnoredDir(name string) bool {
	_, ok := defaultIgnoreDirs[name]
	return ok
}

// Walk traverses root depth-first in lexical order and calls fn for every
// entry except the root itself. Unreadable entries are skipped.
func Walk(root string, opts Options, fn VisitFunc) error {
	extra := make(map[string]struct{}, len(opts.IgnoreDirs))
	for _, d := range opts.IgnoreDirs {
		if d = strings.TrimSpace(d); d != "" {
			extra[d] = struct{}{}
		}
	}
	visited := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		depth := strings.Count(rel, "/") + 1

		if d.IsDir() {
			name := d.Name()
			if _, skip := extra[name]; skip || IsIgnoredDir(name) {
				return filepath.SkipDir
			}
		}
		if opts.MaxEntries > 0 && visited >= opts.MaxEntries {
			return ErrLimitReached
		}
		visited++

		fv := FileVisit{Path: rel, AbsPath: path, IsDir: d.IsDir(), Depth: depth}
		if !d.IsDir() {
			fv.Ext = strings.ToLower(filepath.Ext(rel))
			if fi, e := os.Stat(path); e == nil {
				fv.Size = fi.Size()
			}
		}
		if fn != nil {
			fn(fv)
		}
		if d.IsDir() && opts.MaxDepth > 0 && depth >= opts.MaxDepth {
			return filepath.SkipDir
		}
		return nil
	})
	return err
}
