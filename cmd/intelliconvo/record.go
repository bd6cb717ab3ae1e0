// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	client_capture "github.com/intelliconvo/client/capture"
	client_coordinator "github.com/intelliconvo/client/coordinator"
	client_device "github.com/intelliconvo/client/device"
	"github.com/intelliconvo/config"
	"github.com/intelliconvo/pkg/clock"
	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/protocol"
)

const (
	toneDeviceID = "tone"
	fileDeviceID = "file"
)

func recordCmd() *cobra.Command {
	var (
		title    string
		wavPath  string
		tone     float64
		saveTo   string
		exportTo string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture audio into a new session; stdin lines become transcript messages",
		Long: "Lines typed on stdin are added as your messages; prefix a line with '>' " +
			"to add it as the other party. '!text' adds an action item and '?text' asks the assistant.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup("intelliconvo-record")
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx, stop := signalContext()
			defer stop()

			registry, deviceID := inputDevices(cfg, logger, wavPath, tone)
			engine := client_capture.NewEngine(captureConfig(cfg), registry, clock.New(), logger)
			defer engine.Close()

			live, err := openSession(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer live.Close()
			live.coordinator.AttachRecorder(engine)
			dispose := printChanges(cmd.OutOrStdout(), live.coordinator)
			defer dispose()

			if _, err := live.coordinator.StartSession(ctx, title); err != nil {
				logger.Warnf("session not created yet, messages stay local: %v", err)
			}
			if err := engine.Start(ctx, deviceID); err != nil {
				return err
			}

			readTranscript(ctx, live.coordinator, logger)

			rec, err := engine.Stop()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "recorded %s\n", rec.Duration.Round(time.Millisecond))
			if saveTo != "" && len(rec.Audio) > 0 {
				if err := os.WriteFile(saveTo, rec.Audio, 0o644); err != nil {
					return err
				}
			}
			live.coordinator.Wait()
			if exportTo != "" {
				opts := client_coordinator.DefaultExportOptions()
				opts.Format = client_coordinator.ExportFormat(format)
				out, err := live.coordinator.Export(opts)
				if err != nil {
					return err
				}
				return writeOutput(cmd, exportTo, out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "session title, defaults to the current date")
	cmd.Flags().StringVar(&wavPath, "wav", "", "capture from a wav file instead of the synthetic input")
	cmd.Flags().Float64Var(&tone, "tone", 440, "frequency of the synthetic input in Hz")
	cmd.Flags().StringVar(&saveTo, "save", "", "write the finalized recording to this wav file")
	cmd.Flags().StringVar(&exportTo, "export", "", "export the session to this file on exit")
	cmd.Flags().StringVar(&format, "format", "markdown", "export format: text, markdown or json")
	return cmd
}

func captureConfig(cfg *config.AppConfig) client_capture.Config {
	c := client_capture.DefaultConfig()
	c.ChunkInterval = cfg.Client.ChunkInterval
	c.FrameInterval = cfg.Client.FrameInterval
	c.Encoding = client_capture.Encoding(cfg.Client.Encoding)
	return c
}

// inputDevices registers the synthetic tone and, when given, a wav file and
// returns the id to record from.
func inputDevices(cfg *config.AppConfig, logger commons.Logger, wavPath string, tone float64) (*client_device.Registry, string) {
	registry := client_device.NewRegistry(logger)
	format := client_device.Format{SampleRate: cfg.Client.SampleRate, Channels: 1}
	registry.Add(client_device.DeviceInfo{DeviceID: toneDeviceID, Label: fmt.Sprintf("Tone %.0f Hz", tone), Kind: client_device.KindInput},
		client_device.Tone(format, tone, 0.3))
	if wavPath == "" {
		return registry, toneDeviceID
	}
	registry.Add(client_device.DeviceInfo{DeviceID: fileDeviceID, Label: wavPath, Kind: client_device.KindInput},
		client_device.WAVFile(wavPath))
	return registry, fileDeviceID
}

// readTranscript feeds stdin into the coordinator until EOF or ctx is done.
func readTranscript(ctx context.Context, c *client_coordinator.Coordinator, logger commons.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := handleLine(ctx, c, strings.TrimSpace(line)); err != nil {
				logger.Warnf("%v", err)
			}
		}
	}
}

func handleLine(ctx context.Context, c *client_coordinator.Coordinator, line string) error {
	if line == "" {
		return nil
	}
	switch line[0] {
	case '>':
		_, err := c.AddMessage(ctx, strings.TrimSpace(line[1:]), protocol.SpeakerOther, nil)
		return err
	case '!':
		_, err := c.AddActionItem(ctx, strings.TrimSpace(line[1:]), nil)
		return err
	case '?':
		answer, err := c.Whisper(ctx, strings.TrimSpace(line[1:]))
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "assistant: "+answer)
		return nil
	}
	_, err := c.AddMessage(ctx, line, protocol.SpeakerSelf, nil)
	return err
}
