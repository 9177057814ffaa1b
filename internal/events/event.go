// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

// Package events carries what the listener does (state changes, triggers,
// device commands) to its observers: the terminal UI, MQTT, WebSocket
// clients and the journal.
package events

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Kind classifies an event
type Kind string

// Event kinds
const (
	KindState   Kind = "state"
	KindTrigger Kind = "trigger"
	KindCommand Kind = "command"
	KindPreset  Kind = "preset"
	KindError   Kind = "error"
)

// Event is one observable occurrence
type Event struct {
	Time    time.Time `json:"time" cbor:"1,keyasint"`
	Kind    Kind      `json:"kind" cbor:"2,keyasint"`
	Device  string    `json:"device,omitempty" cbor:"3,keyasint,omitempty"`
	Preset  string    `json:"preset,omitempty" cbor:"4,keyasint,omitempty"`
	Command string    `json:"command,omitempty" cbor:"5,keyasint,omitempty"`
	Status  string    `json:"status,omitempty" cbor:"6,keyasint,omitempty"`
	Detail  string    `json:"detail,omitempty" cbor:"7,keyasint,omitempty"`
}

// FormatEvent renders e on one line
func FormatEvent(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-7s", e.Time.Format("15:04:05.000"), e.Kind)
	if e.Device != "" {
		fmt.Fprintf(&b, " [%s]", e.Device)
	}
	if e.Preset != "" {
		fmt.Fprintf(&b, " preset=%s", e.Preset)
	}
	if e.Command != "" {
		fmt.Fprintf(&b, " %s", e.Command)
	}
	if e.Status != "" {
		fmt.Fprintf(&b, " -> %s", e.Status)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", strings.ReplaceAll(strings.TrimSpace(e.Detail), "\n", " | "))
	}
	return b.String()
}

// Sink receives events. Publish must not block the caller for long.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Event)

// Publish calls f
func (f SinkFunc) Publish(e Event) { f(e) }

// Discard drops every event
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans events out to several sinks in order
type Multi struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewMulti creates a fan-out over sinks; nil sinks are skipped
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		m.Add(s)
	}
	return m
}

// Add appends a sink
func (m *Multi) Add(s Sink) {
	if s == nil {
		return
	}
	m.mu.Lock()
	m.sinks = append(m.sinks, s)
	m.mu.Unlock()
}

// Publish stamps e with the current time if unset and delivers it to
// every sink
func (m *Multi) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks {
		s.Publish(e)
	}
}

// Chan is a Sink feeding a buffered channel. When the reader falls behind
// events are dropped rather than stalling the publisher.
type Chan struct {
	C       chan Event
	mu      sync.Mutex
	dropped uint64
}

// NewChan creates a channel sink with room for size events
func NewChan(size int) *Chan {
	return &Chan{C: make(chan Event, size)}
}

// Publish queues e or drops it when full
func (c *Chan) Publish(e Event) {
	select {
	case c.C <- e:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
	}
}

// Dropped returns how many events did not fit
func (c *Chan) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
