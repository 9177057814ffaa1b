// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Bucks County Community Church

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/config"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/events"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/listener"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/sqmidi"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/visca"
)

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "List or run the configured presets",
}

var presetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List presets and their actions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		printPresets(os.Stdout, cfg.Presets)
		return nil
	},
}

var presetRunCmd = &cobra.Command{
	Use:   "run KEY",
	Short: "Run one preset now, as if its note had been pressed",
	Long: `Connect to the devices, run every action of the preset named KEY (a note
name such as C3, or a note number) and print each command's outcome.

The switcher is skipped when it is not configured or cannot be reached.

Exit codes:
  0 - Every command succeeded
  1 - At least one command failed or was invalid
  2 - Configuration or connection error`,
	Args: cobra.ExactArgs(1),
	RunE: runPreset,
}

func init() {
	rootCmd.AddCommand(presetCmd)
	presetCmd.AddCommand(presetListCmd, presetRunCmd)
}

// printPresets writes every preset with its actions, in note order
func printPresets(w io.Writer, presets config.Presets) {
	if len(presets) == 0 {
		fmt.Fprintln(w, "(no presets)")
		return
	}
	for _, key := range presets.Names() {
		p := presets[key]
		label := key
		if n, err := sqmidi.ParseNote(key); err == nil && sqmidi.NoteName(n) != key {
			label = fmt.Sprintf("%s (%s)", key, sqmidi.NoteName(n))
		}
		fmt.Fprintf(w, "%s: %d action(s)\n", label, p.Len())
		for _, group := range []struct {
			device  string
			actions []config.Action
		}{
			{listener.DeviceSQ, p.SQ},
			{listener.DeviceKramer, p.Kramer},
			{listener.DeviceCameras, p.Cameras},
		} {
			for _, a := range group.actions {
				fmt.Fprintf(w, "  %-8s %s\n", group.device, a)
			}
		}
	}
}

func runPreset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	log, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	key := args[0]
	p, ok := cfg.Presets[key]
	if !ok {
		if n, err := sqmidi.ParseNote(key); err == nil {
			key, p, ok = cfg.Presets.Lookup(n)
		}
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "Configuration error: no preset %q\n", args[0])
		os.Exit(2)
	}

	st := cfg.Settings
	execCfg, err := listener.NewExecutorConfig(st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	sink := events.SinkFunc(func(e events.Event) {
		if e.Kind == events.KindCommand || e.Kind == events.KindError {
			fmt.Println(events.FormatEvent(e))
		}
	})
	exec := listener.NewExecutor(execCfg, log, events.NewMulti(sink), nil)

	var dev listener.Devices
	if len(p.SQ) > 0 {
		link, err := openSQ(ctx, st.SQ, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
		defer link.Close()
		dev.SQ = link
	}
	if len(p.Kramer) > 0 && st.Kramer.Enabled() {
		client, _, err := openKramer(ctx, st.Kramer, log)
		if err != nil {
			log.WithError(err).Warn("switcher unreachable, skipping its actions")
		} else {
			defer client.Close()
			dev.Kramer = client
		}
	}
	if list := st.Cameras.List(); len(p.Cameras) > 0 && len(list) > 0 {
		c := visca.NewController(list, log.Module("visca"))
		if st.Cameras.Timeout > 0 {
			c.Timeout = st.Cameras.Timeout.Std()
		}
		if st.Cameras.Between > 0 {
			c.Between = st.Cameras.Between.Std()
		}
		dev.Cameras = c
	}

	fmt.Printf("avctl - preset %s\n", key)
	rep := exec.Run(ctx, dev, key, p)
	fmt.Println(rep)
	if !rep.OK() {
		os.Exit(1)
	}
	return nil
}
