// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Bucks County Community Church

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/config"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/transport"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/visca"
)

var (
	cameraFlags deviceFlags
	cameraAddr  int
)

var cameraCmd = &cobra.Command{
	Use:   "camera on|off",
	Short: "Power the VISCA cameras on or off",
	Long: `Send VISCA power on or off to every configured camera (config.Cameras),
one after another, or to a single camera given with --host.

With --serial the command goes out over an RS-232 VISCA chain instead;
--addr picks the camera on the chain (1-7).

Exit codes:
  0 - Every camera accepted the command
  1 - At least one camera failed
  2 - Configuration or connection error`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runCamera,
}

func init() {
	rootCmd.AddCommand(cameraCmd)
	cameraFlags.register(cameraCmd, true)
	cameraCmd.Flags().IntVar(&cameraAddr, "addr", 1, "Camera address on a serial chain (1-7)")
}

func runCamera(cmd *cobra.Command, args []string) error {
	on, err := config.ParseBool(args[0])
	if err != nil {
		return fmt.Errorf("expected on or off, got %q", args[0])
	}

	cfg, err := tryConfig(!cameraFlags.isSet())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	log, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	var settings config.Cameras
	if cfg != nil {
		settings = cfg.Settings.Cameras
	}

	fmt.Printf("avctl - VISCA camera power %s\n", onOff(on))

	if cameraFlags.serial != "" {
		baud := cameraFlags.baud
		if baud == 0 {
			baud = 9600
		}
		conn, err := transport.OpenSerial(cameraFlags.serial, baud)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
		defer conn.Close()
		fmt.Printf("Serial: %s @ %d baud, address %d\n", cameraFlags.serial, baud, cameraAddr)

		replies, err := visca.PowerSerial(conn, cameraAddr, on, settings.Timeout.Std())
		for _, r := range replies {
			fmt.Printf("Reply: %s\n", r)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			conn.Close()
			os.Exit(1)
		}
		return nil
	}

	cams := settings.List()
	if cameraFlags.host != "" {
		cams = []visca.Camera{{Host: cameraFlags.host, Port: cameraFlags.port}}
	}
	if len(cams) == 0 {
		fmt.Fprintln(os.Stderr, "Configuration error: no cameras configured; set config.Cameras.hosts or use --host")
		os.Exit(2)
	}

	ctl := visca.NewController(cams, log.Module("visca"))
	if settings.Timeout > 0 {
		ctl.Timeout = settings.Timeout.Std()
	}
	if settings.Between > 0 {
		ctl.Between = settings.Between.Std()
	}

	results := ctl.PowerAll(cmd.Context(), on)
	fmt.Print(visca.Summary(results))
	for _, r := range results {
		if !r.OK() {
			os.Exit(1)
		}
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
