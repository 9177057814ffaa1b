// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package sqmidi

import (
	"encoding/hex"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
)

// Message is one logical SQ command: the MIDI messages sent back to back
// to perform it
type Message struct {
	Name  string
	Parts []midi.Message
}

// Bytes concatenates all parts into one wire buffer
func (m Message) Bytes() []byte {
	var out []byte
	for _, p := range m.Parts {
		out = append(out, p...)
	}
	return out
}

// Hex renders the parts as space-separated hex groups
func (m Message) Hex() string {
	groups := make([]string, len(m.Parts))
	for i, p := range m.Parts {
		groups[i] = hex.EncodeToString(p)
	}
	return strings.Join(groups, " ")
}

func (m Message) String() string {
	return fmt.Sprintf("%s [%s]", m.Name, m.Hex())
}

func channelIndex(channel int) (uint8, error) {
	if channel < 1 || channel > 16 {
		return 0, fmt.Errorf("%w: %d", ErrChannelRange, channel)
	}
	return uint8(channel - 1), nil
}

// NewNRPN builds the four Control Change messages that set an NRPN:
// CC99 address MSB, CC98 address LSB, CC6 value MSB, CC38 value LSB.
// The value LSB is sent last; the mixer applies the change on it.
func NewNRPN(channel int, address, value int) (Message, error) {
	ch, err := channelIndex(channel)
	if err != nil {
		return Message{}, err
	}
	if address < 0 || address > MaxAddress {
		return Message{}, fmt.Errorf("%w: %d", ErrAddressRange, address)
	}
	if value < 0 || value > MaxValue {
		return Message{}, fmt.Errorf("%w: %d", ErrValueRange, value)
	}

	return Message{
		Name: fmt.Sprintf("NRPN (addr=%d value=%d)", address, value),
		Parts: []midi.Message{
			midi.ControlChange(ch, ccNRPNMSB, uint8(address>>7&0x7F)),
			midi.ControlChange(ch, ccNRPNLSB, uint8(address&0x7F)),
			midi.ControlChange(ch, ccDataEntryMSB, uint8(value>>7&0x7F)),
			midi.ControlChange(ch, ccDataEntryLSB, uint8(value&0x7F)),
		},
	}, nil
}

func newControl(channel int, control Control, from, to string, value int, desc string) (Message, error) {
	if _, err := channelIndex(channel); err != nil {
		return Message{}, err
	}
	addr, err := Address(control, from, to)
	if err != nil {
		return Message{}, err
	}
	m, err := NewNRPN(channel, int(addr), value)
	if err != nil {
		return Message{}, err
	}
	m.Name = fmt.Sprintf("Set%s (%s->%s -> %s)", control, strings.ToUpper(from), strings.ToUpper(to), desc)
	return m, nil
}

func onOff(on bool) (int, string) {
	if on {
		return 1, "ON"
	}
	return 0, "OFF"
}

// NewSetMute mutes (on) or unmutes the crosspoint or master
func NewSetMute(channel int, from, to string, on bool) (Message, error) {
	v, desc := onOff(on)
	return newControl(channel, ControlMute, from, to, v, desc)
}

// NewSetFaderLevel sets a 14-bit level; out of range levels are clamped.
// Use DBToFaderLevel to convert from dB.
func NewSetFaderLevel(channel int, from, to string, level int) (Message, error) {
	level = clamp(level, 0, MaxValue)
	return newControl(channel, ControlFader, from, to, level, fmt.Sprint(level))
}

// NewSetPan sets a 14-bit pan value; out of range values are clamped.
// Use PanToValue to convert from -100..100.
func NewSetPan(channel int, from, to string, value int) (Message, error) {
	value = clamp(value, 0, MaxValue)
	return newControl(channel, ControlPan, from, to, value, fmt.Sprint(value))
}

// NewSetAssign assigns (on) or unassigns the source to the bus
func NewSetAssign(channel int, from, to string, on bool) (Message, error) {
	v, desc := onOff(on)
	return newControl(channel, ControlAssign, from, to, v, desc)
}

// SceneBanking is the scene to Bank Select/Program Change convention
type SceneBanking int

// Banking conventions
const (
	// BankingFixed keeps bank 0 and maps scenes 1..99 to programs 0..98
	BankingFixed SceneBanking = iota
	// BankingPaged128 pages 300 scenes across bank LSB 0..2, 128 per bank
	BankingPaged128
)

func (b SceneBanking) String() string {
	switch b {
	case BankingFixed:
		return "fixed"
	case BankingPaged128:
		return "paged128"
	default:
		return fmt.Sprintf("SceneBanking(%d)", int(b))
	}
}

// MaxScene returns the highest recallable scene
func (b SceneBanking) MaxScene() int {
	if b == BankingPaged128 {
		return 300
	}
	return 99
}

// ParseSceneBanking parses "fixed" or "paged128". Empty means fixed.
func ParseSceneBanking(s string) (SceneBanking, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed":
		return BankingFixed, nil
	case "paged128", "paged":
		return BankingPaged128, nil
	}
	return 0, fmt.Errorf("unknown scene banking %q (want fixed or paged128)", s)
}

// NewRecallScene builds Bank Select MSB (CC0), Bank Select LSB (CC32) and
// Program Change for a 1-based scene number
func NewRecallScene(channel, scene int, banking SceneBanking) (Message, error) {
	ch, err := channelIndex(channel)
	if err != nil {
		return Message{}, err
	}

	var bankLSB, program int
	switch banking {
	case BankingFixed:
		if scene < 1 || scene > BankingFixed.MaxScene() {
			return Message{}, fmt.Errorf("%w: %d (fixed banking allows 1-%d)", ErrSceneRange, scene, BankingFixed.MaxScene())
		}
		program = scene - 1
	case BankingPaged128:
		if scene < 1 || scene > BankingPaged128.MaxScene() {
			return Message{}, fmt.Errorf("%w: %d (paged banking allows 1-%d)", ErrSceneRange, scene, BankingPaged128.MaxScene())
		}
		bankLSB = (scene - 1) / 128
		program = (scene - 1) % 128
	default:
		return Message{}, fmt.Errorf("%w: banking %v", ErrSceneRange, banking)
	}

	return Message{
		Name: fmt.Sprintf("RecallScene (%d)", scene),
		Parts: []midi.Message{
			midi.ControlChange(ch, ccBankMSB, 0),
			midi.ControlChange(ch, ccBankLSB, uint8(bankLSB)),
			midi.ProgramChange(ch, uint8(program)),
		},
	}, nil
}
