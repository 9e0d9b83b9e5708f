package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"corawiki/internal/pytool"
)

var checkPythonCmd = &cobra.Command{
	Use:   "check-python",
	Short: "Probe the python tool runner installation",
	RunE: func(cmd *cobra.Command, args []string) error {
		r := pytool.ExecRunner{ExtensionPath: cfg.Python.ExtensionPath, InterpreterPath: cfg.Python.Interpreter}
		res := r.CheckAvailable(cmd.Context())
		if !res.OK {
			return fmt.Errorf("python tooling unavailable: %s", res.Error)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "python tooling ok (%s)\n", pytool.ScriptPath(cfg.Python.ExtensionPath))
		return nil
	},
}
