// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

// Package sqmidi speaks MIDI to an Allen & Heath SQ mixer over its TCP MIDI
// port.
//
// Mixer parameters are addressed with 14-bit NRPN numbers looked up from a
// static table of (control, source, destination) triples. Values are 14-bit
// as well; fader levels follow the mixer's audio taper and pan positions are
// linear. Scene recall uses Bank Select followed by Program Change.
//
// The SQ also sends MIDI back on the same socket. SoftKeys configured as
// MIDI Note On are used as triggers; ScanNoteOns extracts them.
package sqmidi

import (
	"errors"
	"time"
)

// DefaultPort is the SQ TCP MIDI port
const DefaultPort = 51325

// 14-bit limits
const (
	MaxValue   = 16383
	MaxAddress = 16383
)

// MIDI status nibbles
const (
	statusNoteOn        = 0x90
	statusControlChange = 0xB0
	statusProgramChange = 0xC0
)

// NRPN controller numbers
const (
	ccNRPNMSB      = 99
	ccNRPNLSB      = 98
	ccDataEntryMSB = 6
	ccDataEntryLSB = 38
	ccBankMSB      = 0
	ccBankLSB      = 32
)

// Link timing
const (
	DefaultConnectTimeout = 2 * time.Second
	DefaultReadTimeout    = 500 * time.Millisecond
	// PartDelay separates the MIDI messages of one logical command
	PartDelay = 5 * time.Millisecond
)

// Errors
var (
	ErrUnknownControl = errors.New("unknown control")
	ErrUnknownPair    = errors.New("unknown channel pair")
	ErrAddressRange   = errors.New("NRPN address out of range")
	ErrChannelRange   = errors.New("MIDI channel must be 1-16")
	ErrSceneRange     = errors.New("scene out of range")
	ErrValueRange     = errors.New("NRPN value out of range")
)
