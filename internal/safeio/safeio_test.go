package safeio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSafeFSAllowsAbsoluteUnderRoot(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewSafeFS(dir)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	p := filepath.Join(fs.Root(), "a.txt")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := fs.ReadFile(p); err != nil {
		t.Fatalf("ReadFile absolute: %v", err)
	}
	if _, err := fs.ReadFile("a.txt"); err != nil {
		t.Fatalf("ReadFile relative: %v", err)
	}
}

func TestSafeFSRejectsTraversal(t *testing.T) {
	fs, err := NewSafeFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	if _, err := fs.Clean("../etc/passwd"); !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("expected ErrOutsideRoot, got %v", err)
	}
	if _, err := fs.Clean("/etc/passwd"); !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("expected ErrOutsideRoot for absolute path, got %v", err)
	}
}

func TestSafeFSRejectsSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	root := t.TempDir()
	if err := os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}
	fs, err := NewSafeFS(root)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	if _, err := fs.ReadFile("link.txt"); !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("expected symlink escape to be rejected, got %v", err)
	}
}

func TestSafeFSCleanAndRel(t *testing.T) {
	fs, err := NewSafeFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	abs, err := fs.Clean("./src/../src/app.ts")
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if want := filepath.Join(fs.Root(), "src", "app.ts"); abs != want {
		t.Fatalf("Clean = %s, want %s", abs, want)
	}
	if rel := fs.Rel(abs); rel != "src/app.ts" {
		t.Fatalf("Rel = %s", rel)
	}
	if rel := fs.Rel(fs.Root()); rel != "." {
		t.Fatalf("Rel(root) = %s", rel)
	}
}

func TestSafeFSReadDirOnFile(t *testing.T) {
	fs, err := NewSafeFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	if err := os.WriteFile(filepath.Join(fs.Root(), "f.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := fs.ReadDir("f.txt"); !errors.Is(err, ErrNotDir) {
		t.Fatalf("expected ErrNotDir, got %v", err)
	}
	if _, err := fs.ReadFile("."); !errors.Is(err, ErrIsDir) {
		t.Fatalf("expected ErrIsDir, got %v", err)
	}
}
