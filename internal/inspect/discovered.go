package inspect

import (
	"path/filepath"
	"sort"

	"corawiki/internal/safeio"
)

// Discovered is the per-run set of paths surfaced by listing and discovery
// tools. It only grows. The root is always a known directory.
//
// Discovered is not safe for concurrent mutation; concurrent readers are fine
// while no writer is active.
type Discovered struct {
	root  string
	files map[string]struct{}
	dirs  map[string]struct{}
}

// NewDiscovered seeds a set with the absolute workspace root.
func NewDiscovered(root string) *Discovered {
	root = filepath.Clean(root)
	return &Discovered{
		root:  root,
		files: map[string]struct{}{},
		dirs:  map[string]struct{}{root: {}},
	}
}

func (d *Discovered) Root() string { return d.root }

// AddFile records an absolute file path.
func (d *Discovered) AddFile(abs string) {
	if abs == "" {
		return
	}
	d.files[filepath.Clean(abs)] = struct{}{}
}

// AddDir records an absolute directory path.
func (d *Discovered) AddDir(abs string) {
	if abs == "" {
		return
	}
	d.dirs[filepath.Clean(abs)] = struct{}{}
}

// HasFile reports exact membership in the file set.
func (d *Discovered) HasFile(abs string) bool {
	_, ok := d.files[filepath.Clean(abs)]
	return ok
}

// HasDir reports whether abs is a known directory or an ancestor of any known
// path.
func (d *Discovered) HasDir(abs string) bool {
	abs = filepath.Clean(abs)
	if _, ok := d.dirs[abs]; ok {
		return true
	}
	for p := range d.dirs {
		if safeio.HasPathPrefix(p, abs) {
			return true
		}
	}
	for p := range d.files {
		if p != abs && safeio.HasPathPrefix(p, abs) {
			return true
		}
	}
	return false
}

// Merge folds surfaced paths from an Outcome into the set.
func (d *Discovered) Merge(o Outcome) {
	for _, f := range o.SurfacedFiles {
		d.AddFile(f)
	}
	for _, dir := range o.SurfacedDirs {
		d.AddDir(dir)
	}
}

// Files returns the known files in sorted order.
func (d *Discovered) Files() []string { return sortedKeys(d.files) }

// Dirs returns the known directories in sorted order.
func (d *Discovered) Dirs() []string { return sortedKeys(d.dirs) }

// Len returns the number of known files and directories.
func (d *Discovered) Len() (files, dirs int) { return len(d.files), len(d.dirs) }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
