package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiskStore persists artifacts under a local root directory by runID/path.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) *DiskStore {
	return &DiskStore{root: strings.TrimSpace(root)}
}

func (s *DiskStore) Put(_ context.Context, runID, path string, content []byte) error {
	full, err := s.pathFor(runID, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, content, 0o644)
}

func (s *DiskStore) Get(_ context.Context, runID, path string) ([]byte, error) {
	full, err := s.pathFor(runID, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// GetURL returns a file:// URL for an existing artifact.
func (s *DiskStore) GetURL(_ context.Context, runID, path string) (string, error) {
	full, err := s.pathFor(runID, path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(full); err != nil {
		return "", ErrNotFound
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func (s *DiskStore) List(_ context.Context, runID string) ([]string, error) {
	runID, err := checkRunID(runID)
	if err != nil {
		return nil, err
	}
	if s.root == "" {
		return nil, fmt.Errorf("artifact: disk root is required")
	}
	runRoot := filepath.Join(s.root, runID)
	paths := make([]string, 0, 8)
	walkErr := filepath.WalkDir(runRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(runRoot, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, walkErr
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *DiskStore) pathFor(runID, path string) (string, error) {
	if s == nil || s.root == "" {
		return "", fmt.Errorf("artifact: disk root is required")
	}
	runID, path, err := checkKey(runID, path)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, runID, filepath.FromSlash(path)), nil
}
