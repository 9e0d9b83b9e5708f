package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"corawiki/internal/artifact"
	"corawiki/internal/mcpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve research_workspace over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()
		store, err := openStore()
		if err != nil {
			return err
		}
		var st artifact.Store
		if store != nil {
			defer store.Close()
			st = store
		}
		s := mcpserver.New(newAgent(client, store), baseOptions(), st, logger)
		logger.Info("mcp server listening on stdio")
		return server.ServeStdio(s)
	},
}
