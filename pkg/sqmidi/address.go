// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package sqmidi

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Control is the parameter family of an NRPN address
type Control int

// Controls
const (
	ControlMute Control = iota
	ControlFader
	ControlPan
	ControlAssign
)

// Base addresses per control (MSB 0x00, 0x40, 0x50, 0x60)
var controlBase = map[Control]int{
	ControlMute:   0,
	ControlFader:  8192,
	ControlPan:    10240,
	ControlAssign: 12288,
}

func (c Control) String() string {
	switch c {
	case ControlMute:
		return "Mute"
	case ControlFader:
		return "Fader"
	case ControlPan:
		return "Pan"
	case ControlAssign:
		return "Assign"
	default:
		return fmt.Sprintf("Control(%d)", int(c))
	}
}

// ParseControl parses a control name, case-insensitively
func ParseControl(s string) (Control, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mute":
		return ControlMute, nil
	case "fader", "level":
		return ControlFader, nil
	case "pan":
		return ControlPan, nil
	case "assign":
		return ControlAssign, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownControl, s)
}

// Pair is a (source, destination) channel pair. Masters use the bus name
// on both sides.
type Pair struct {
	From string
	To   string
}

func (p Pair) String() string {
	return p.From + "->" + p.To
}

// Routing table layout
const (
	numInputs    = 48
	numFXReturns = 8
	numAux       = 12
	numGroups    = 12
	numFXSends   = 4
	numMatrix    = 12
	busStride    = 128
	fxReturnBase = 48
)

var (
	tableOnce sync.Once
	table     map[Pair]int
	pairList  []Pair
)

// busNames returns the destination buses in address order
func busNames() []string {
	buses := []string{"LR"}
	buses = appendNumbered(buses, "AUX", numAux)
	buses = appendNumbered(buses, "GRP", numGroups)
	buses = appendNumbered(buses, "FXSND", numFXSends)
	buses = appendNumbered(buses, "MTX", numMatrix)
	return buses
}

func appendNumbered(dst []string, prefix string, n int) []string {
	for i := 1; i <= n; i++ {
		dst = append(dst, fmt.Sprintf("%s%d", prefix, i))
	}
	return dst
}

func buildTable() {
	t := make(map[Pair]int)

	for b, bus := range busNames() {
		base := b * busStride
		for i := 1; i <= numInputs; i++ {
			t[Pair{fmt.Sprintf("IP%d", i), bus}] = base + i - 1
		}
		for i := 1; i <= numFXReturns; i++ {
			t[Pair{fmt.Sprintf("FXRTN%d", i), bus}] = base + fxReturnBase + i - 1
		}
	}

	// Masters
	t[Pair{"LR", "LR"}] = 2424
	masters := []struct {
		prefix string
		count  int
		base   int
	}{
		{"AUX", numAux, 2503},
		{"GRP", numGroups, 2515},
		{"FXSND", numFXSends, 2527},
		{"FXRTN", numFXReturns, 2531},
		{"MTX", numMatrix, 2539},
	}
	for _, m := range masters {
		for i := 1; i <= m.count; i++ {
			name := fmt.Sprintf("%s%d", m.prefix, i)
			t[Pair{name, name}] = m.base + i
		}
	}

	pairs := make([]Pair, 0, len(t))
	for p := range t {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if t[pairs[i]] != t[pairs[j]] {
			return t[pairs[i]] < t[pairs[j]]
		}
		return pairs[i].String() < pairs[j].String()
	})

	table = t
	pairList = pairs
}

// Offset returns the channel-pair offset without a control base
func Offset(from, to string) (int, error) {
	tableOnce.Do(buildTable)
	p := Pair{strings.ToUpper(strings.TrimSpace(from)), strings.ToUpper(strings.TrimSpace(to))}
	off, ok := table[p]
	if !ok {
		return 0, fmt.Errorf("%w: (%s, %s)", ErrUnknownPair, from, to)
	}
	return off, nil
}

// Address resolves the 14-bit NRPN address of control on the pair
// (from, to). Channel names are case-insensitive ("ip1", "LR", "Aux3").
// A pair whose address would pass MaxAddress (Assign to MTX4 and up) is
// not defined for that control.
func Address(control Control, from, to string) (uint16, error) {
	base, ok := controlBase[control]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownControl, control)
	}
	off, err := Offset(from, to)
	if err != nil {
		return 0, err
	}
	addr := base + off
	if addr < 0 || addr > MaxAddress {
		return 0, fmt.Errorf("%w: %s (%s, %s) = %d: %w", ErrUnknownPair, control, from, to, addr, ErrAddressRange)
	}
	return uint16(addr), nil
}

// Pairs returns every channel pair defined for control, ordered by offset
func Pairs(control Control) []Pair {
	tableOnce.Do(buildTable)
	base, ok := controlBase[control]
	if !ok {
		return nil
	}
	out := make([]Pair, 0, len(pairList))
	for _, p := range pairList {
		if base+table[p] <= MaxAddress {
			out = append(out, p)
		}
	}
	return out
}
