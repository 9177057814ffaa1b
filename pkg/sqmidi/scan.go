// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package sqmidi

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// NoteOn is a Note On with non-zero velocity received from the mixer
type NoteOn struct {
	Channel  int // 1-16
	Note     uint8
	Velocity uint8
}

// Name returns the note name, e.g. "C3"
func (n NoteOn) Name() string {
	return NoteName(n.Note)
}

func (n NoteOn) String() string {
	return fmt.Sprintf("Note On ch=%d note=%d (0x%02X, %s) vel=%d", n.Channel, n.Note, n.Note, n.Name(), n.Velocity)
}

// ScanNoteOns extracts Note On messages for channel (1-16) from a raw
// receive buffer.
//
// Bytes are walked one at a time. A matching status byte followed by two
// data bytes consumes all three; a Note On with velocity 0 (Note Off) is
// consumed but not reported. Everything else, including running status and
// other channels, is skipped byte by byte. A message split across reads is
// dropped.
func ScanNoteOns(data []byte, channel int) []NoteOn {
	if channel < 1 || channel > 16 {
		return nil
	}
	status := byte(statusNoteOn | (channel - 1))

	var out []NoteOn
	for i := 0; i < len(data); {
		if data[i] != status || i+2 >= len(data) {
			i++
			continue
		}

		var ch, key, vel uint8
		if midi.Message(data[i:i+3]).GetNoteStart(&ch, &key, &vel) {
			out = append(out, NoteOn{Channel: int(ch) + 1, Note: key, Velocity: vel})
		}
		i += 3
	}
	return out
}
