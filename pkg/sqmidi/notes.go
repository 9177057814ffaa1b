// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package sqmidi

import (
	"fmt"
	"strconv"
	"strings"
)

// Middle C is C4 = 60, so note 0 is C-1. SQ SoftKeys start around C3 (48).
var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns the scientific pitch name of a MIDI note ("C3", "C#3")
func NoteName(note uint8) string {
	if note > 127 {
		return ""
	}
	return noteNames[note%12] + strconv.Itoa(int(note)/12-1)
}

// ParseNote accepts a note name ("C3", "c#3", "Db3") or a number (0-127)
func ParseNote(s string) (uint8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty note")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 127 {
			return 0, fmt.Errorf("note %d outside 0-127", n)
		}
		return uint8(n), nil
	}

	u := strings.ToUpper(s)
	pc := strings.IndexByte("C D EF G A B", u[0])
	if pc < 0 {
		return 0, fmt.Errorf("bad note name %q", s)
	}
	rest := u[1:]
	switch {
	case strings.HasPrefix(rest, "#"):
		pc++
		rest = rest[1:]
	case strings.HasPrefix(rest, "B") && len(rest) > 1:
		pc--
		rest = rest[1:]
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("bad note name %q", s)
	}
	n := (octave+1)*12 + pc
	if n < 0 || n > 127 {
		return 0, fmt.Errorf("note %q outside 0-127", s)
	}
	return uint8(n), nil
}
