package safeio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	ErrOutsideRoot = errors.New("safeio: path outside workspace root")
	ErrEmptyPath   = errors.New("safeio: empty path")
	ErrIsDir       = errors.New("safeio: path is a directory")
	ErrNotDir      = errors.New("safeio: path is not a directory")
)

// SafeFS provides read-only helpers that resolve paths relative to a fixed root.
// Each research run owns its own instance; there is no shared default.
type SafeFS struct {
	absRoot string // absolute root with symlinks resolved
}

// NewSafeFS locks all future operations to the given root directory.
// The root path is resolved to an absolute, symlink-free directory.
func NewSafeFS(root string) (*SafeFS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("safeio: root is not a directory")
	}
	return &SafeFS{absRoot: abs}, nil
}

// Root returns the absolute root directory bound to this SafeFS.
func (s *SafeFS) Root() string {
	if s == nil {
		return ""
	}
	return s.absRoot
}

// Clean maps a root-relative or absolute path to a cleaned absolute path
// without touching the disk. Paths escaping the root are rejected.
func (s *SafeFS) Clean(userPath string) (string, error) {
	if s == nil {
		return "", errors.New("safeio: filesystem not configured")
	}
	userPath = strings.TrimSpace(userPath)
	if userPath == "" {
		return "", ErrEmptyPath
	}
	clean := filepath.Clean(filepath.FromSlash(userPath))
	if clean == "." {
		return s.absRoot, nil
	}
	var joined string
	if isAbsPath(clean) {
		joined = clean
	} else {
		joined = filepath.Join(s.absRoot, clean)
	}
	if !hasPathPrefix(joined, s.absRoot) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, userPath)
	}
	return joined, nil
}

// Rel returns the slash-separated path of abs relative to the root.
// The root itself is reported as ".".
func (s *SafeFS) Rel(abs string) string {
	if s == nil {
		return filepath.ToSlash(abs)
	}
	rel, err := filepath.Rel(s.absRoot, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// ReadFile reads a file relative to the root.
func (s *SafeFS) ReadFile(userPath string) ([]byte, error) {
	p, err := s.resolve(userPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrIsDir
	}
	return os.ReadFile(p)
}

// Open opens a file relative to the root for reading.
func (s *SafeFS) Open(userPath string) (*os.File, error) {
	p, err := s.resolve(userPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrIsDir
	}
	return os.Open(p)
}

// Stat returns metadata for a file or directory under the root.
func (s *SafeFS) Stat(userPath string) (fs.FileInfo, error) {
	p, err := s.resolve(userPath)
	if err != nil {
		return nil, err
	}
	return os.Stat(p)
}

// ReadDir lists entries for a directory relative to the root.
func (s *SafeFS) ReadDir(userPath string) ([]fs.DirEntry, error) {
	dir, err := s.resolve(userPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrNotDir
	}
	return os.ReadDir(dir)
}

func (s *SafeFS) resolve(userPath string) (string, error) {
	joined, err := s.Clean(userPath)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", err
	}
	if !hasPathPrefix(resolved, s.absRoot) {
		return "", fmt.Errorf("%w: resolved %s", ErrOutsideRoot, resolved)
	}
	return resolved, nil
}

func isAbsPath(p string) bool {
	return filepath.IsAbs(p) || (runtime.GOOS == "windows" && filepath.VolumeName(p) != "")
}

func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
		root = strings.ToLower(root)
	}
	if len(root) == 0 {
		return true
	}
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	if !strings.HasSuffix(path, sep) {
		path += sep
	}
	return strings.HasPrefix(path, root)
}

// HasPathPrefix reports whether path equals root or lies beneath it.
func HasPathPrefix(path, root string) bool {
	return hasPathPrefix(path, root)
}
