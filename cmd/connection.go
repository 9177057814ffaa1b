// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Bucks County Community Church

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/config"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/listener"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/logger"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/proto3k"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/sqmidi"
)

// EnvMQTTPassword names the environment variable holding the broker password
const EnvMQTTPassword = "AVCTL_MQTT_PASSWORD"

// deviceFlags override the configured address of a device. Serial, when
// set, wins over host.
type deviceFlags struct {
	host   string
	port   int
	serial string
	baud   int
}

func (f *deviceFlags) register(c *cobra.Command, serial bool) {
	c.PersistentFlags().StringVar(&f.host, "host", "", "Device IP or hostname (overrides config)")
	c.PersistentFlags().IntVar(&f.port, "port", 0, "Device TCP port (overrides config)")
	if serial {
		c.PersistentFlags().StringVarP(&f.serial, "serial", "s", "", "Serial port device, e.g. /dev/ttyUSB0")
		c.PersistentFlags().IntVarP(&f.baud, "baud", "b", 0, "Baud rate (serial only)")
	}
}

// isSet reports whether the flags name a device on their own
func (f *deviceFlags) isSet() bool {
	return f.host != "" || f.serial != ""
}

// tryConfig loads the configuration when one exists. Device commands work
// without a file as long as the flags say where to connect.
func tryConfig(needed bool) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil && needed {
		return nil, err
	}
	if err != nil {
		return nil, nil
	}
	return cfg, nil
}

// kramerTarget merges the flags over the configured switcher
func kramerTarget(cfg *config.Config, f *deviceFlags) config.Kramer {
	k := config.Kramer{Port: proto3k.DefaultPort, Baud: 115200}
	if cfg != nil {
		k = cfg.Settings.Kramer
	}
	if f.host != "" {
		k.IP, k.Serial = f.host, ""
	}
	if f.serial != "" {
		k.Serial = f.serial
	}
	if f.port != 0 {
		k.Port = f.port
	}
	if f.baud != 0 {
		k.Baud = f.baud
	}
	return k
}

// openKramer connects to the switcher and performs the handshake
func openKramer(ctx context.Context, k config.Kramer, log *logger.Log) (*proto3k.Client, string, error) {
	klog := log.Module("kramer")
	opts := k.Options()
	if k.Serial != "" {
		c, err := proto3k.OpenSerial(ctx, k.Serial, k.Baud, opts, klog)
		if err != nil {
			return nil, "", err
		}
		return c, fmt.Sprintf("Serial: %s @ %d baud", k.Serial, k.Baud), nil
	}
	if k.IP == "" {
		return nil, "", fmt.Errorf("no switcher address: set config.Kramer.ip or use --host / --serial")
	}
	c, err := proto3k.Dial(ctx, k.IP, k.Port, opts, klog)
	if err != nil {
		return nil, "", err
	}
	return c, fmt.Sprintf("TCP: %s", c), nil
}

// sqTarget merges the flags over the configured mixer
func sqTarget(cfg *config.Config, f *deviceFlags) config.SQ {
	s := config.SQ{Port: sqmidi.DefaultPort, MIDIChannel: config.DefaultChannel}
	if cfg != nil {
		s = cfg.Settings.SQ
	}
	if f.host != "" {
		s.IP = f.host
	}
	if f.port != 0 {
		s.Port = f.port
	}
	return s
}

// openSQ connects to the mixer's MIDI port
func openSQ(ctx context.Context, s config.SQ, log *logger.Log) (*sqmidi.Link, error) {
	if s.IP == "" {
		return nil, fmt.Errorf("no mixer address: set config.SQ.ip or use --host")
	}
	return sqmidi.Dial(ctx, s.IP, s.Port, log.Module("sq"))
}

// dialers builds the supervisor's connection functions from settings
func dialers(s config.Settings, log *logger.Log) listener.Dialers {
	d := listener.Dialers{
		SQ: func(ctx context.Context) (listener.SQLink, error) {
			link, err := openSQ(ctx, s.SQ, log)
			if err != nil {
				return nil, err
			}
			return link, nil
		},
	}
	if s.Kramer.Enabled() {
		d.Kramer = func(ctx context.Context) (listener.KramerClient, error) {
			c, _, err := openKramer(ctx, s.Kramer, log)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	return d
}

// GetPassword retrieves the MQTT password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(EnvMQTTPassword); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "MQTT password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// isTerminal reports whether stdout is an interactive terminal
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
