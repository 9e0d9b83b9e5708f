package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var researchFlags struct {
	workspace string
	query     string
	maxSteps  int
	maxTokens int
	python    bool
	pyPath    string
	extPath   string
	debugDir  string
	onFailure string
	asJSON    bool
}

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Run one research loop over a workspace",
	Example: `  corawiki research --workspace . --query "analyze sample.ts's responsibility"
  corawiki research -w ./svc -q "how are requests authenticated" --python --debug-dir .corawiki`,
	RunE: runResearch,
}

func init() {
	f := researchCmd.Flags()
	f.StringVarP(&researchFlags.workspace, "workspace", "w", ".", "workspace root")
	f.StringVarP(&researchFlags.query, "query", "q", "", "question to research")
	f.IntVar(&researchFlags.maxSteps, "max-steps", 0, "iteration budget (0 = config)")
	f.IntVar(&researchFlags.maxTokens, "max-tokens", 0, "cumulative token budget (0 = config)")
	f.BoolVar(&researchFlags.python, "python", false, "enable python-backed tools")
	f.StringVar(&researchFlags.pyPath, "python-path", "", "python interpreter")
	f.StringVar(&researchFlags.extPath, "extension-path", "", "installation root holding corawiki-pytools/")
	f.StringVar(&researchFlags.debugDir, "debug-dir", "", "write the markdown transcript here")
	f.StringVar(&researchFlags.onFailure, "on-python-failure", "", "skip or retry after a python tool failure")
	f.BoolVar(&researchFlags.asJSON, "json", false, "print the full result as JSON")
	_ = researchCmd.MarkFlagRequired("query")
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	root, err := filepath.Abs(researchFlags.workspace)
	if err != nil {
		return err
	}

	opts := baseOptions()
	if researchFlags.maxSteps > 0 {
		opts.MaxSteps = researchFlags.maxSteps
	}
	if researchFlags.maxTokens > 0 {
		opts.MaxTotalTokens = researchFlags.maxTokens
	}
	if cmd.Flags().Changed("python") {
		opts.PythonEnabled = researchFlags.python
	}
	if researchFlags.pyPath != "" {
		opts.PythonPath = researchFlags.pyPath
	}
	if researchFlags.extPath != "" {
		opts.ExtensionPath = researchFlags.extPath
	}
	if researchFlags.debugDir != "" {
		opts.DebugLogDir = researchFlags.debugDir
	}
	if researchFlags.onFailure != "" {
		switch researchFlags.onFailure {
		case "skip", "retry":
		default:
			return fmt.Errorf("--on-python-failure must be skip or retry")
		}
		opts.OnPythonFailure = recoveryFor(researchFlags.onFailure)
	}
	stderr := cmd.ErrOrStderr()
	opts.OnProgress = func(msg string) { fmt.Fprintln(stderr, "·", msg) }

	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	store, err := openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	res, err := newAgent(client, store).Run(ctx, researchFlags.query, root, opts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if researchFlags.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(out, res.FinalConclusion)
	if res.DebugLogPath != "" {
		fmt.Fprintf(stderr, "debug log: %s\n", res.DebugLogPath)
	}
	return nil
}
