// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	client_conversation "github.com/intelliconvo/client/conversation"
	"github.com/intelliconvo/config"
	"github.com/intelliconvo/pkg/commons"
)

var logLevel string

func main() {
	rootCmd := &cobra.Command{
		Use:          "intelliconvo",
		Short:        "Conversation capture, sync and analysis",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(mcpCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the application config and a logger for one command run.
func setup(name string) (*config.AppConfig, commons.Logger, error) {
	v, err := config.InitConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.GetApplicationConfig(v)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger, err := commons.NewApplicationLogger(
		commons.Name(name),
		commons.Level(level),
		commons.Path(cfg.LogPath),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func restClient(cfg *config.AppConfig, logger commons.Logger) *client_conversation.Client {
	return client_conversation.New(cfg.Client.ServerURL, logger,
		client_conversation.WithTimeout(cfg.Analysis.Timeout+cfg.Client.ReconnectDelay),
		client_conversation.WithRetry(2, cfg.Client.ReconnectDelay),
	)
}
