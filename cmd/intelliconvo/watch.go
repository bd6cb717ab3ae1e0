// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	client_coordinator "github.com/intelliconvo/client/coordinator"
)

func watchCmd() *cobra.Command {
	var sessionID int64

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a session live as other participants add to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID <= 0 {
				return fmt.Errorf("--session is required")
			}
			cfg, logger, err := setup("intelliconvo-watch")
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx, stop := signalContext()
			defer stop()

			live, err := openSession(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer live.Close()

			dispose := printChanges(cmd.OutOrStdout(), live.coordinator)
			defer dispose()
			if err := live.coordinator.JoinSession(ctx, sessionID); err != nil {
				return err
			}
			for _, m := range live.coordinator.View().Messages {
				fmt.Fprintln(cmd.OutOrStdout(), describe(client_coordinator.Change{Kind: client_coordinator.ChangeMessage, Message: &m}))
			}
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().Int64Var(&sessionID, "session", 0, "session id to follow")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		sessionID int64
		format    string
		topics    bool
		output    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render a stored session as text, markdown or json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID <= 0 {
				return fmt.Errorf("--session is required")
			}
			cfg, logger, err := setup("intelliconvo-export")
			if err != nil {
				return err
			}
			defer logger.Sync()

			snap, err := restClient(cfg, logger).Snapshot(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			opts := client_coordinator.DefaultExportOptions()
			opts.Format = client_coordinator.ExportFormat(format)
			opts.IncludeTopics = topics
			out, err := opts.Render(client_coordinator.View{
				Session:     snap.Session,
				Messages:    snap.Messages,
				Topics:      snap.Topics,
				ActionItems: snap.ActionItems,
				Summary:     snap.Session.Summary,
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd, output, out)
		},
	}

	cmd.Flags().Int64Var(&sessionID, "session", 0, "session id")
	cmd.Flags().StringVar(&format, "format", "markdown", "text, markdown or json")
	cmd.Flags().BoolVar(&topics, "topics", false, "include detected topics")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
