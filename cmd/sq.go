// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Bucks County Community Church

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/config"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/sqmidi"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/transport"
)

var (
	sqFlags     deviceFlags
	sqChannel   int
	sqBanking   string
	sqDryRun    bool
	sqListenCh  int
	sqShowNoise bool
)

var sqCmd = &cobra.Command{
	Use:   "sq",
	Short: "Send one MIDI message to the Allen & Heath SQ mixer",
	Long: `Build an SQ MIDI message (scene recall or NRPN control change) and send it
to the mixer's MIDI-over-TCP port.

Targets are named by source and destination, e.g. IP1 LR, IP3 AUX2,
FXRTN1 MTX4, or LR LR for the main fader. Run "avctl sq pairs CONTROL" for the
full list.

With --dry-run the message bytes are printed and nothing is sent.

Exit codes:
  0 - Message sent
  1 - Message could not be built
  2 - Connection error`,
}

var sqSceneCmd = &cobra.Command{
	Use:   "scene N",
	Short: "Recall scene N (1-based)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendSQ(cmd.Context(), func(s config.SQ) (sqmidi.Message, error) {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return sqmidi.Message{}, fmt.Errorf("bad scene %q", args[0])
			}
			banking, err := sqBankingFor(s)
			if err != nil {
				return sqmidi.Message{}, err
			}
			return sqmidi.NewRecallScene(s.MIDIChannel, n, banking)
		})
	},
}

var sqMuteCmd = &cobra.Command{
	Use:   "mute FROM TO on|off",
	Short: "Mute or unmute a send",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendSQ(cmd.Context(), func(s config.SQ) (sqmidi.Message, error) {
			on, err := config.ParseBool(args[2])
			if err != nil {
				return sqmidi.Message{}, err
			}
			return sqmidi.NewSetMute(s.MIDIChannel, args[0], args[1], on)
		})
	},
}

var sqFaderCmd = &cobra.Command{
	Use:   "fader FROM TO DB",
	Short: "Set a fader or send level in dB",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendSQ(cmd.Context(), func(s config.SQ) (sqmidi.Message, error) {
			db, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return sqmidi.Message{}, fmt.Errorf("bad level %q", args[2])
			}
			taper, err := s.TaperTable()
			if err != nil {
				return sqmidi.Message{}, err
			}
			return sqmidi.NewSetFaderLevel(s.MIDIChannel, args[0], args[1], taper.Level(db))
		})
	},
}

var sqPanCmd = &cobra.Command{
	Use:   "pan FROM TO PAN",
	Short: "Set pan, -100 (left) to 100 (right)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendSQ(cmd.Context(), func(s config.SQ) (sqmidi.Message, error) {
			pan, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return sqmidi.Message{}, fmt.Errorf("bad pan %q", args[2])
			}
			return sqmidi.NewSetPan(s.MIDIChannel, args[0], args[1], sqmidi.PanToValue(pan))
		})
	},
}

var sqAssignCmd = &cobra.Command{
	Use:   "assign FROM TO on|off",
	Short: "Assign or unassign a source to a bus",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendSQ(cmd.Context(), func(s config.SQ) (sqmidi.Message, error) {
			on, err := config.ParseBool(args[2])
			if err != nil {
				return sqmidi.Message{}, err
			}
			return sqmidi.NewSetAssign(s.MIDIChannel, args[0], args[1], on)
		})
	},
}

var sqPairsCmd = &cobra.Command{
	Use:   "pairs [CONTROL]",
	Short: "List every addressable source/destination pair and its NRPN address",
	Long: `List the source/destination pairs defined for CONTROL (mute, fader, pan
or assign; default mute) with their NRPN address.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		control := sqmidi.ControlMute
		if len(args) == 1 {
			c, err := sqmidi.ParseControl(args[0])
			if err != nil {
				return err
			}
			control = c
		}
		for _, p := range sqmidi.Pairs(control) {
			addr, err := sqmidi.Address(control, p.From, p.To)
			if err != nil {
				return err
			}
			fmt.Printf("%-8s %-8s %5d\n", p.From, p.To, addr)
		}
		return nil
	},
}

var sqMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print Note-Ons received from the mixer",
	Long: `Continuously display MIDI Note-On messages sent by the mixer (SoftKeys),
with the note name and the preset each one would trigger.

Press Ctrl+C to exit.`,
	Args: cobra.NoArgs,
	RunE: runSQMonitor,
}

func init() {
	rootCmd.AddCommand(sqCmd)
	sqFlags.register(sqCmd, false)
	sqCmd.PersistentFlags().IntVar(&sqChannel, "channel", 0, "SQ MIDI channel 1-16 (overrides config)")
	sqCmd.PersistentFlags().StringVar(&sqBanking, "banking", "", "Scene banking: fixed or paged128 (overrides config)")
	sqCmd.PersistentFlags().BoolVarP(&sqDryRun, "dry-run", "n", false, "Print the message bytes without connecting")

	sqMonitorCmd.Flags().IntVar(&sqListenCh, "listen-channel", 0, "MIDI channel carrying trigger notes (default from config)")
	sqMonitorCmd.Flags().BoolVar(&sqShowNoise, "raw", false, "Also print every received byte")

	sqCmd.AddCommand(sqSceneCmd, sqMuteCmd, sqFaderCmd, sqPanCmd, sqAssignCmd, sqPairsCmd, sqMonitorCmd)
}

func sqBankingFor(s config.SQ) (sqmidi.SceneBanking, error) {
	if sqBanking != "" {
		return sqmidi.ParseSceneBanking(sqBanking)
	}
	return s.Banking()
}

// sqSettings merges the flags over the configured mixer
func sqSettings(needAddress bool) (*config.Config, config.SQ, error) {
	cfg, err := tryConfig(needAddress && !sqFlags.isSet())
	if err != nil {
		return nil, config.SQ{}, err
	}
	s := sqTarget(cfg, &sqFlags)
	if sqChannel != 0 {
		s.MIDIChannel = sqChannel
	}
	if s.MIDIChannel == 0 {
		s.MIDIChannel = config.DefaultChannel
	}
	return cfg, s, nil
}

func sendSQ(ctx context.Context, build func(config.SQ) (sqmidi.Message, error)) error {
	cfg, s, err := sqSettings(!sqDryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	msg, err := build(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if sqDryRun {
		fmt.Printf("%s\n%s\n", msg.Name, msg.Hex())
		return nil
	}

	log, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	link, err := openSQ(ctx, s, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer link.Close()

	fmt.Printf("avctl - SQ MIDI\n")
	fmt.Printf("Connection: %s (MIDI channel %d)\n", link, s.MIDIChannel)
	if err := link.Send(ctx, msg); err != nil {
		fmt.Fprintf(os.Stderr, "Send error: %v\n", err)
		link.Close()
		os.Exit(2)
	}
	fmt.Printf("Sent %s: %s\n", msg.Name, msg.Hex())
	return nil
}

func runSQMonitor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, s, err := sqSettings(true)
	if err != nil {
		return err
	}
	log, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	channel := sqListenCh
	var presets config.Presets
	if cfg != nil {
		presets = cfg.Presets
		if channel == 0 {
			channel = cfg.Settings.MIDIListener.Channel
		}
	}
	if channel == 0 {
		channel = config.DefaultChannel
	}

	link, err := openSQ(ctx, s, log)
	if err != nil {
		return err
	}
	defer link.Close()

	fmt.Printf("avctl - SQ MIDI Monitor\n")
	fmt.Printf("Connection: %s, listening on channel %d\n", link, channel)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	for {
		if ctx.Err() != nil {
			return nil
		}
		data, err := link.Receive()
		if err != nil {
			if err == transport.ErrClosed {
				log.Info("Connection closed")
				return nil
			}
			return err
		}
		if len(data) == 0 {
			continue
		}
		now := time.Now().Format("15:04:05.000")
		if sqShowNoise {
			fmt.Printf("[%s] RAW % X\n", now, data)
		}
		for _, n := range sqmidi.ScanNoteOns(data, channel) {
			line := fmt.Sprintf("[%s] %s", now, n)
			if key, _, ok := presets.Lookup(n.Note); ok {
				line += fmt.Sprintf(" -> preset %s", key)
			} else {
				line += " (no preset)"
			}
			fmt.Println(line)
		}
	}
}
