// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

// Package proto3k implements a client for Kramer Protocol 3000.
//
// Protocol 3000 is a line-oriented ASCII protocol spoken by Kramer video
// matrix switchers over TCP (port 5000) or RS-232. Commands have the form
// "#VERB params\r" and replies have the form "~NN@VERB params\r\n". The
// device also emits unsolicited notifications and late echoes on the same
// stream, so the Client correlates every command with its own reply
// instead of trusting the next line it reads.
package proto3k

import "time"

// DefaultPort is the Protocol 3000 TCP port
const DefaultPort = 5000

// Route layers
const (
	LayerVideo = 1
	LayerUSB   = 5
)

// MuteFlag is the VMUTE argument
type MuteFlag int

// Video mute values
const (
	MuteEnable  MuteFlag = 0 // video output enabled
	MuteDisable MuteFlag = 1 // video output muted
	MuteBlank   MuteFlag = 2 // output blanked
)

func (f MuteFlag) String() string {
	switch f {
	case MuteEnable:
		return "enable"
	case MuteDisable:
		return "disable"
	case MuteBlank:
		return "blank"
	default:
		return "unknown"
	}
}

// Valid reports whether f is a known VMUTE flag
func (f MuteFlag) Valid() bool {
	return f >= MuteEnable && f <= MuteBlank
}

// Response tags
const (
	TagRoute     = "ROUTE"
	TagVideoMute = "VMUTE"
)

// Correlator defaults
const (
	DefaultRetryBudget    = 10
	DefaultAttemptTimeout = 500 * time.Millisecond
	DefaultDrainTimeout   = 20 * time.Millisecond
	DefaultSteadyTimeout  = 500 * time.Millisecond
	DefaultSettleDelay    = 500 * time.Millisecond
	DefaultConnectTimeout = 2 * time.Second
)
