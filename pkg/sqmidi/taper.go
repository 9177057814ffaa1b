// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package sqmidi

import (
	"fmt"
	"math"
	"sort"
)

// TaperPoint is one anchor of the fader taper
type TaperPoint struct {
	DB    float64
	Level int
}

// TaperTable maps dB to 14-bit fader levels by piecewise linear
// interpolation. Anchors are sorted by DB and Level, both strictly
// increasing.
type TaperTable []TaperPoint

// DefaultTaper is the SQ fader law, read off the mixer's VA/VF table
var DefaultTaper = TaperTable{
	{-80, 5698},
	{-60, 8073},
	{-40, 10447},
	{-35, 11041},
	{-30, 11634},
	{-25, 12228},
	{-20, 12822},
	{-15, 13415},
	{-10, 14009},
	{-5, 14602},
	{0, 15196}, // unity
	{5, 15790},
	{10, 16383},
}

// NewTaperTable validates points and returns them as a table
func NewTaperTable(points []TaperPoint) (TaperTable, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("taper needs at least 2 points, got %d", len(points))
	}
	t := make(TaperTable, len(points))
	copy(t, points)
	for i, p := range t {
		if p.Level < 0 || p.Level > MaxValue {
			return nil, fmt.Errorf("taper point %d: level %d outside 0-%d", i, p.Level, MaxValue)
		}
		if math.IsNaN(p.DB) || math.IsInf(p.DB, 0) {
			return nil, fmt.Errorf("taper point %d: dB must be finite", i)
		}
		if i == 0 {
			continue
		}
		if p.DB <= t[i-1].DB || p.Level <= t[i-1].Level {
			return nil, fmt.Errorf("taper point %d (%v dB, %d) does not increase", i, p.DB, p.Level)
		}
	}
	return t, nil
}

// Level converts db to a 14-bit fader level.
//
// At or above the top anchor the top level is returned; at or below the
// bottom anchor the fader is fully closed (0, -inf).
func (t TaperTable) Level(db float64) int {
	if len(t) == 0 || math.IsNaN(db) {
		return 0
	}
	top := t[len(t)-1]
	if db >= top.DB {
		return top.Level
	}
	if db <= t[0].DB {
		return 0
	}

	// first anchor with DB >= db; always in 1..len-1 here
	i := sort.Search(len(t), func(i int) bool { return t[i].DB >= db })
	lo, hi := t[i-1], t[i]

	level := float64(lo.Level) + (db-lo.DB)*float64(hi.Level-lo.Level)/(hi.DB-lo.DB)
	return clamp(int(math.Round(level)), 0, MaxValue)
}

// DBToFaderLevel converts db using DefaultTaper
func DBToFaderLevel(db float64) int {
	return DefaultTaper.Level(db)
}

// PanToValue maps a pan position in -100 (hard left) .. +100 (hard right)
// to 0..16383. Centre is 8192.
func PanToValue(pan float64) int {
	if math.IsNaN(pan) {
		pan = 0
	}
	pan = math.Max(-100, math.Min(100, pan))
	return clamp(int(math.Round((pan+100)/200*MaxValue)), 0, MaxValue)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
