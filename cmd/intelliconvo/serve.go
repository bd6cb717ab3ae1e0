// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	conversation_api "github.com/intelliconvo/api/conversation-api"
)

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversation server (REST, websocket hub, analysis)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup("conversation-api")
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Port = port
			}
			ctx, stop := signalContext()
			defer stop()

			app, err := conversation_api.NewAppRunner(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				app.Close(closeCtx)
			}()
			if err := app.Init(ctx); err != nil {
				return err
			}
			return app.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override PORT")
	return cmd
}
