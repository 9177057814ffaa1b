// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package sqmidi

import (
	"errors"
	"testing"
)

func TestAddress(t *testing.T) {
	tests := []struct {
		name    string
		control Control
		from    string
		to      string
		want    uint16
	}{
		{"IP1 to LR mute", ControlMute, "IP1", "LR", 0},
		{"IP48 to LR mute", ControlMute, "IP48", "LR", 47},
		{"FXRTN1 to LR mute", ControlMute, "FXRTN1", "LR", 48},
		{"FXRTN8 to LR mute", ControlMute, "FXRTN8", "LR", 55},
		{"IP1 to AUX1 fader", ControlFader, "IP1", "AUX1", 8192 + 128},
		{"IP2 to GRP1 assign", ControlAssign, "IP2", "GRP1", 12288 + 1664 + 1},
		{"IP1 to FXSND4 pan", ControlPan, "IP1", "FXSND4", 10240 + 3584},
		{"IP1 to MTX12 mute", ControlMute, "IP1", "MTX12", 5120},
		{"LR master", ControlMute, "LR", "LR", 2424},
		{"AUX1 master", ControlFader, "AUX1", "AUX1", 8192 + 2504},
		{"AUX12 master", ControlMute, "AUX12", "AUX12", 2515},
		{"GRP1 master", ControlMute, "GRP1", "GRP1", 2516},
		{"FXSND4 master", ControlMute, "FXSND4", "FXSND4", 2531},
		{"FXRTN8 master", ControlMute, "FXRTN8", "FXRTN8", 2539},
		{"MTX12 master", ControlMute, "MTX12", "MTX12", 2551},
		{"case insensitive", ControlMute, "ip1", "aux1", 128},
		{"IP1 to MTX3 assign", ControlAssign, "IP1", "MTX3", 12288 + 3968},
		{"FXRTN8 to MTX3 assign", ControlAssign, "FXRTN8", "MTX3", 16311},
		{"IP1 to MTX12 fader", ControlFader, "IP1", "MTX12", 8192 + 5120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Address(tt.control, tt.from, tt.to)
			if err != nil {
				t.Fatalf("Address() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Address(%v, %s, %s) = %d, want %d", tt.control, tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestAddress_Errors(t *testing.T) {
	tests := []struct {
		name    string
		control Control
		from    string
		to      string
		want    error
	}{
		{"unknown source", ControlMute, "IP49", "LR", ErrUnknownPair},
		{"unknown bus", ControlMute, "IP1", "AUX13", ErrUnknownPair},
		{"input master", ControlMute, "IP1", "IP1", ErrUnknownPair},
		{"unknown control", Control(42), "IP1", "LR", ErrUnknownControl},
		{"assign past address space", ControlAssign, "IP1", "MTX4", ErrUnknownPair},
		{"assign past address space range", ControlAssign, "FXRTN8", "MTX12", ErrAddressRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Address(tt.control, tt.from, tt.to); !errors.Is(err, tt.want) {
				t.Errorf("Address() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAddress_AllPairsInRange(t *testing.T) {
	// 41 buses x (48 inputs + 8 FX returns) crosspoints, plus 49 masters.
	// Assign stops at MTX3: MTX4-12 would pass the 14-bit space.
	full := 41*56 + 49
	tests := []struct {
		control Control
		want    int
	}{
		{ControlMute, full},
		{ControlFader, full},
		{ControlPan, full},
		{ControlAssign, full - 9*56},
	}

	for _, tt := range tests {
		t.Run(tt.control.String(), func(t *testing.T) {
			pairs := Pairs(tt.control)
			if len(pairs) != tt.want {
				t.Errorf("len(Pairs(%v)) = %d, want %d", tt.control, len(pairs), tt.want)
			}

			seen := make(map[uint16]Pair)
			for _, p := range pairs {
				a, err := Address(tt.control, p.From, p.To)
				if err != nil {
					t.Fatalf("Address(%v, %v) error = %v", tt.control, p, err)
				}
				if a > MaxAddress {
					t.Errorf("Address(%v, %v) = %d out of range", tt.control, p, a)
				}
				if prev, dup := seen[a]; dup {
					t.Errorf("Address(%v, %v) = %d collides with %v", tt.control, p, a, prev)
				}
				seen[a] = p

				again, _ := Address(tt.control, p.From, p.To)
				if again != a {
					t.Errorf("Address(%v, %v) not deterministic: %d then %d", tt.control, p, a, again)
				}
			}
		})
	}

	if got := Pairs(Control(42)); got != nil {
		t.Errorf("Pairs(Control(42)) = %d pairs, want nil", len(got))
	}
}

func TestParseControl(t *testing.T) {
	tests := []struct {
		in   string
		want Control
	}{
		{"Mute", ControlMute},
		{"fader", ControlFader},
		{"PAN", ControlPan},
		{"assign", ControlAssign},
	}
	for _, tt := range tests {
		got, err := ParseControl(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseControl(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}

	if _, err := ParseControl("gain"); !errors.Is(err, ErrUnknownControl) {
		t.Errorf("ParseControl(gain) error = %v, want ErrUnknownControl", err)
	}
}
