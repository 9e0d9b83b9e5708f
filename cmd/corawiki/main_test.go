package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"corawiki/internal/config"
)

func TestBaseOptionsFromConfig(t *testing.T) {
	logger = zap.NewNop()
	c := config.Default()
	c.Research.MaxSteps = 5
	c.Python.Enabled = true
	c.Python.OnFailure = "skip"
	c.Quality.MinReferences = 9
	cfg = &c

	opts := baseOptions()
	if opts.MaxSteps != 5 || !opts.PythonEnabled || opts.PythonPath != "python3" {
		t.Fatalf("opts = %+v", opts)
	}
	if opts.Thresholds == nil || opts.Thresholds.MinReferences != 9 {
		t.Fatalf("thresholds = %+v", opts.Thresholds)
	}
	if got := opts.OnPythonFailure(context.Background(), "extract_import_graph", "boom"); got != "skip" {
		t.Fatalf("decision = %q", got)
	}

	c.Quality.MinReferences = 1
	if opts.Thresholds.MinReferences != 9 {
		t.Fatal("options must not alias the config thresholds")
	}
}

func TestRecoveryForEmptyIsNil(t *testing.T) {
	if recoveryFor("  ") != nil {
		t.Fatal("expected no callback")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	c := config.Default()
	cfg = &c
	if _, err := newClient(context.Background()); err == nil {
		t.Fatal("expected missing key error")
	}
}
