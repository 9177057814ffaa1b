// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Bucks County Community Church

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/proto3k"
)

var (
	kramerFlags   deviceFlags
	kramerDest    int
	kramerLayer   int
	kramerNoReply bool
)

var kramerCmd = &cobra.Command{
	Use:   "kramer",
	Short: "Send one Protocol 3000 command to the Kramer switcher",
	Long: `Connect to the Kramer video matrix switcher, perform the "#" handshake,
send one command and wait for its correlated reply.

The switcher address comes from the configuration file (config.Kramer) or
from --host/--port, or --serial for RS-232.

Exit codes:
  0 - Command succeeded
  1 - Command failed, timed out or was rejected
  2 - Connection error`,
}

var kramerHandshakeCmd = &cobra.Command{
	Use:   "handshake",
	Short: "Check the link with the \"#\" handshake",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Dial already performs the handshake
		return runKramer(cmd.Context(), nil)
	},
}

var kramerRouteCmd = &cobra.Command{
	Use:   "route SRC",
	Short: "Route input SRC to an output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad source %q", args[0])
		}
		c, err := proto3k.NewRoute(kramerLayer, kramerDest, src)
		if err != nil {
			return err
		}
		return runKramer(cmd.Context(), &c)
	},
}

var kramerVMuteCmd = &cobra.Command{
	Use:   "vmute FLAG",
	Short: "Set video mute on an output (0/enable, 1/disable, 2/blank)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flag, err := proto3k.ParseMuteFlag(args[0])
		if err != nil {
			return err
		}
		c, err := proto3k.NewVideoMute(kramerDest, flag)
		if err != nil {
			return err
		}
		return runKramer(cmd.Context(), &c)
	},
}

var kramerSendCmd = &cobra.Command{
	Use:   "send VERB [PARAM...]",
	Short: "Send an arbitrary Protocol 3000 command",
	Long: `Send "#VERB PARAM,PARAM\r" and wait for the reply tagged VERB.

Queries such as "NAME?" are matched on the bare verb. Use --no-reply for
commands the device does not answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := proto3k.NewRaw(args[0], kramerNoReply, args[1:]...)
		if err != nil {
			return err
		}
		return runKramer(cmd.Context(), &c)
	},
}

func init() {
	rootCmd.AddCommand(kramerCmd)
	kramerFlags.register(kramerCmd, true)

	kramerRouteCmd.Flags().IntVar(&kramerDest, "dest", 1, "Output number")
	kramerRouteCmd.Flags().IntVar(&kramerLayer, "layer", proto3k.LayerVideo, "Layer (1 video, 5 USB)")
	kramerVMuteCmd.Flags().IntVar(&kramerDest, "dest", 1, "Output number")
	kramerSendCmd.Flags().BoolVar(&kramerNoReply, "no-reply", false, "Do not wait for a reply")

	kramerCmd.AddCommand(kramerHandshakeCmd, kramerRouteCmd, kramerVMuteCmd, kramerSendCmd)
}

func runKramer(ctx context.Context, c *proto3k.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := tryConfig(!kramerFlags.isSet())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	log, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	target := kramerTarget(cfg, &kramerFlags)
	start := time.Now()
	client, connInfo, err := openKramer(ctx, target, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	fmt.Printf("avctl - Kramer Protocol 3000\n")
	fmt.Printf("Connection: %s\n", connInfo)

	if c == nil {
		fmt.Printf("Handshake: OK, rtt=%v\n", time.Since(start).Round(time.Millisecond))
		return nil
	}

	res := client.Do(ctx, *c)
	printResult(os.Stdout, res)
	if !res.OK() {
		client.Close()
		os.Exit(1)
	}
	return nil
}

// printResult writes one correlator outcome in human-readable form
func printResult(w io.Writer, res proto3k.Result) {
	fmt.Fprintf(w, "Command:  %s\n", res.Command.Name)
	fmt.Fprintf(w, "Payload:  %q\n", res.Command.Payload)
	fmt.Fprintf(w, "Status:   %s", strings.ToUpper(res.Status.String()))
	if res.Attempts > 0 {
		fmt.Fprintf(w, " (%d read(s))", res.Attempts)
	}
	fmt.Fprintln(w)
	if res.Response != "" {
		fmt.Fprintf(w, "Response: %q\n", res.Response)
	}
	for _, line := range res.Ignored {
		fmt.Fprintf(w, "Ignored:  %q\n", line)
	}
	if res.Summary != "" {
		for _, line := range strings.Split(strings.TrimRight(res.Summary, "\n"), "\n") {
			fmt.Fprintf(w, "  %s\n", strings.TrimSpace(line))
		}
	}
	if res.Err != nil {
		fmt.Fprintf(w, "Error:    %v\n", res.Err)
	}
}
