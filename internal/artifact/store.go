// Package artifact persists run outputs (debug transcripts, result JSON) by
// run id and relative path.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store defines operations for persisting run artifacts.
type Store interface {
	Put(ctx context.Context, runID, path string, content []byte) error
	Get(ctx context.Context, runID, path string) ([]byte, error)
	GetURL(ctx context.Context, runID, path string) (string, error)
	List(ctx context.Context, runID string) ([]string, error)
}

var (
	ErrNotFound      = errors.New("artifact not found")
	ErrNotConfigured = errors.New("artifact: no store configured")
)

// checkKey trims and validates a run id and artifact path.
func checkKey(runID, path string) (string, string, error) {
	runID = strings.TrimSpace(runID)
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if runID == "" {
		return "", "", fmt.Errorf("artifact: run_id is required")
	}
	if path == "" {
		return "", "", fmt.Errorf("artifact: path is required")
	}
	if strings.Contains(runID, "..") || strings.ContainsAny(runID, `/\`) {
		return "", "", fmt.Errorf("artifact: invalid run_id: %s", runID)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return "", "", fmt.Errorf("artifact: invalid path: %s", path)
		}
	}
	return runID, path, nil
}

func checkRunID(runID string) (string, error) {
	runID, _, err := checkKey(runID, "_")
	return runID, err
}

func objectKey(runID, path string) string {
	return runID + "/" + path
}
