package scan

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"testing"
)

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestWalk_SkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.txt", "root file")
	write(t, root, "dir1/b.go", "package dir1")
	write(t, root, "dir1/vendor/skip.txt", "ignored vendor")
	write(t, root, "node_modules/x.js", "ignored nm")
	write(t, root, "custom/y.txt", "ignored by option")

	var files []string
	err := Walk(root, Options{IgnoreDirs: []string{"custom"}}, func(fv FileVisit) {
		if !fv.IsDir {
			files = append(files, fv.Path)
		}
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	sort.Strings(files)
	want := []string{"a.txt", "dir1/b.go"}
	if !slices.Equal(files, want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
}

func TestWalk_MaxDepth(t *testing.T) {
	root := t.TempDir()
	write(t, root, "top.txt", "x")
	write(t, root, "l1/mid.txt", "x")
	write(t, root, "l1/l2/deep.txt", "x")

	var got []string
	if err := Walk(root, Options{MaxDepth: 1}, func(fv FileVisit) { got = append(got, fv.Path) }); err != nil {
		t.Fatalf("walk: %v", err)
	}
	sort.Strings(got)
	if !slices.Equal(got, []string{"l1", "top.txt"}) {
		t.Fatalf("unexpected entries at depth 1: %v", got)
	}
}

func TestWalk_MaxEntries(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"a.txt", "b.txt", "c.txt"} {
		write(t, root, n, "x")
	}
	count := 0
	err := Walk(root, Options{MaxEntries: 2}, func(FileVisit) { count++ })
	if !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
	if count != 2 {
		t.Fatalf("visited %d entries, want 2", count)
	}
}

func TestWalk_ExtAndSize(t *testing.T) {
	root := t.TempDir()
	write(t, root, "Main.GO", "package main\n")
	var fv FileVisit
	_ = Walk(root, Options{}, func(v FileVisit) { fv = v })
	if fv.Ext != ".go" {
		t.Fatalf("ext = %q", fv.Ext)
	}
	if fv.Size != int64(len("package main\n")) {
		t.Fatalf("size = %d", fv.Size)
	}
	if fv.Depth != 1 {
		t.Fatalf("depth = %d", fv.Depth)
	}
}
