// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package listener

import (
	"fmt"
	"sync"
	"time"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/proto3k"
)

// Counters is a point-in-time copy of the listener statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Triggers
	Triggers   uint64 // Note-Ons and manual triggers received
	Unassigned uint64 // triggers with no preset
	Presets    uint64 // presets executed

	// Commands
	Commands   uint64
	Success    uint64
	Timeouts   uint64
	SendErrors uint64
	Rejected   uint64
	Invalid    uint64 // actions that could not be resolved

	Reconnects uint64

	// Rates (calculated)
	TriggerRate float64 // triggers/min
	ErrorRate   float64 // errors/min
}

// Errors returns the number of failed or invalid commands
func (c Counters) Errors() uint64 {
	return c.Timeouts + c.SendErrors + c.Rejected + c.Invalid
}

// String returns a formatted statistics summary
func (c Counters) String() string {
	var successPercent float64
	if c.Commands > 0 {
		successPercent = float64(c.Success) * 100.0 / float64(c.Commands)
	}

	elapsed := c.LastUpdateTime.Sub(c.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Triggers:        %8d\n", c.Triggers)
	if c.Unassigned > 0 {
		result += fmt.Sprintf("  Unassigned:       %5d\n", c.Unassigned)
	}
	result += fmt.Sprintf("Presets Run:     %8d\n", c.Presets)
	result += fmt.Sprintf("Commands:        %8d (%.1f%% ok)\n", c.Commands, successPercent)
	if c.Timeouts > 0 {
		result += fmt.Sprintf("  Timeouts:         %5d\n", c.Timeouts)
	}
	if c.SendErrors > 0 {
		result += fmt.Sprintf("  Send Errors:      %5d\n", c.SendErrors)
	}
	if c.Rejected > 0 {
		result += fmt.Sprintf("  Rejected:         %5d\n", c.Rejected)
	}
	if c.Invalid > 0 {
		result += fmt.Sprintf("  Invalid:          %5d\n", c.Invalid)
	}
	if c.Reconnects > 0 {
		result += fmt.Sprintf("Reconnects:      %8d\n", c.Reconnects)
	}
	result += fmt.Sprintf("Trigger Rate:    %8.1f /min\n", c.TriggerRate)
	result += fmt.Sprintf("Error Rate:      %8.1f /min\n", c.ErrorRate)
	result += "================================\n"

	return result
}

// Stats tracks trigger and command outcomes. It is safe for concurrent use.
type Stats struct {
	mu sync.Mutex
	c  Counters
}

// NewStats creates a new statistics tracker
func NewStats() *Stats {
	s := &Stats{}
	s.Reset()
	return s
}

// RecordTrigger counts one trigger; assigned is false when no preset matched
func (s *Stats) RecordTrigger(assigned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Triggers++
	if !assigned {
		s.c.Unassigned++
	}
	s.c.LastUpdateTime = time.Now()
}

// RecordPreset counts one executed preset
func (s *Stats) RecordPreset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Presets++
	s.c.LastUpdateTime = time.Now()
}

// RecordCommand counts one command by outcome
func (s *Stats) RecordCommand(status proto3k.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Commands++
	switch status {
	case proto3k.StatusSuccess:
		s.c.Success++
	case proto3k.StatusTimeout:
		s.c.Timeouts++
	case proto3k.StatusSendError:
		s.c.SendErrors++
	case proto3k.StatusRejected:
		s.c.Rejected++
	}
	s.c.LastUpdateTime = time.Now()
}

// RecordInvalid counts an action that failed to resolve
func (s *Stats) RecordInvalid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Invalid++
	s.c.LastUpdateTime = time.Now()
}

// RecordReconnect counts a lost connection
func (s *Stats) RecordReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Reconnects++
	s.c.LastUpdateTime = time.Now()
}

// Snapshot returns the counters with rates calculated
func (s *Stats) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.c
	now := time.Now()
	c.LastUpdateTime = now
	if minutes := now.Sub(c.StartTime).Minutes(); minutes > 0 {
		c.TriggerRate = float64(c.Triggers) / minutes
		c.ErrorRate = float64(c.Errors()) / minutes
	}
	return c
}

// String returns a formatted statistics summary
func (s *Stats) String() string {
	return s.Snapshot().String()
}

// Reset resets all statistics counters
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.c = Counters{StartTime: now, LastUpdateTime: now}
}
