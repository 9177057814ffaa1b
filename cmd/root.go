// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Bucks County Community Church

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/config"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/logger"
)

var (
	// Config and logging flags
	configPath string
	logLevel   string
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "avctl",
	Short: "AV booth automation for the SQ mixer, Kramer switcher and cameras",
	Long: `avctl - Drive the AV booth hardware from MIDI triggers.

The listener connects to the Allen & Heath SQ mixer, waits for MIDI Note-On
messages (SoftKeys) and runs the preset assigned to each note: SQ scene
recalls and NRPN control changes, Kramer Protocol 3000 routing, and VISCA
camera power.

The one-shot commands (kramer, sq, camera, preset) send a single command
and print the result, for testing hardware from the booth.

The configuration file is taken from --config, then the MIDI_PRESET_FILE
environment variable, then ./listener_config.yaml. Files ending in .toml
are read as TOML.

For MQTT authentication, the password is read from the AVCTL_MQTT_PASSWORD
environment variable, or prompted interactively if not set. It is never
stored in the configuration file.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default $MIDI_PRESET_FILE or listener_config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Append logs to this file instead of stderr (overrides config)")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads the configuration named by the flags
func loadConfig() (*config.Config, error) {
	path := config.ResolvePath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, nil
}

// newLogger builds the logger from flags, falling back to the config's log
// section. The returned closer releases the log file, if any.
func newLogger(cfg *config.Config) (*logger.Log, io.Closer, error) {
	level, file := logLevel, logFile
	if cfg != nil {
		if level == "" {
			level = cfg.Settings.Log.Level
		}
		if file == "" {
			file = cfg.Settings.Log.File
		}
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	if file != "" {
		f, err := os.OpenFile(file, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out, closer = f, f
	}

	log, err := logger.New(level, out)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return log, closer, nil
}
