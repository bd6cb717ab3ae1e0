// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package main

import (
	"github.com/spf13/cobra"

	client_mcp "github.com/intelliconvo/client/mcp"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve stored sessions as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup("intelliconvo-mcp")
			if err != nil {
				return err
			}
			defer logger.Sync()
			return client_mcp.Run(restClient(cfg, logger), logger, cfg.Version)
		},
	}
}
