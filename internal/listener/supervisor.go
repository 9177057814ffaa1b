// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package listener

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/config"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/events"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/logger"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/sqmidi"
)

// State is the supervisor's connection state
type State int32

// Supervisor states
const (
	StateDisconnected State = iota
	StateConnecting
	StateListening
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateBackoff:
		return "backoff"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// SQLink is an open mixer session: outbound MIDI plus the inbound stream
// carrying the trigger notes. *sqmidi.Link implements it.
type SQLink interface {
	SQSender
	Receive() ([]byte, error)
	Close() error
	String() string
}

// Dialers open the device connections for one session
type Dialers struct {
	SQ func(ctx context.Context) (SQLink, error)
	// Kramer is nil when no switcher is configured
	Kramer func(ctx context.Context) (KramerClient, error)
}

// PresetStore holds the active presets and is swapped on config reload
type PresetStore struct {
	p atomic.Pointer[config.Presets]
}

// NewPresetStore creates a store holding p
func NewPresetStore(p config.Presets) *PresetStore {
	s := &PresetStore{}
	s.Store(p)
	return s
}

// Load returns the current presets
func (s *PresetStore) Load() config.Presets {
	if p := s.p.Load(); p != nil {
		return *p
	}
	return nil
}

// Store replaces the presets
func (s *PresetStore) Store(p config.Presets) {
	s.p.Store(&p)
}

// Trigger asks the supervisor to run a preset outside of MIDI, by preset
// key (Name) or as if a note was played (Note, when Name is empty)
type Trigger struct {
	Name   string
	Note   uint8
	Source string
}

const triggerQueue = 16

// Supervisor keeps the mixer and switcher connected, listens for trigger
// notes and runs presets one at a time
type Supervisor struct {
	Channel int           // MIDI channel carrying trigger notes
	Backoff time.Duration // wait before reconnecting

	presets  *PresetStore
	exec     *Executor
	dial     Dialers
	cameras  CameraPower
	stats    *Stats
	sink     events.Sink
	log      *logger.Log
	triggers chan Trigger
	state    atomic.Int32
}

// NewSupervisor creates a supervisor. cameras may be nil.
func NewSupervisor(dial Dialers, exec *Executor, presets *PresetStore, cameras CameraPower, log *logger.Log) *Supervisor {
	return &Supervisor{
		Channel:  config.DefaultChannel,
		Backoff:  config.DefaultReconnectBackoff.Std(),
		presets:  presets,
		exec:     exec,
		dial:     dial,
		cameras:  cameras,
		stats:    exec.stats,
		sink:     exec.sink,
		log:      log.Module("listener"),
		triggers: make(chan Trigger, triggerQueue),
	}
}

// State returns the current state
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Stats returns the live statistics
func (s *Supervisor) Stats() *Stats {
	return s.stats
}

// Presets returns the preset store
func (s *Supervisor) Presets() *PresetStore {
	return s.presets
}

func (s *Supervisor) setState(st State, detail string) {
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	s.log.Debugf("state -> %s", st)
	s.sink.Publish(events.Event{Kind: events.KindState, Status: st.String(), Detail: detail})
}

// Trigger queues a manual trigger. It returns false if the queue is full.
// Triggers are only serviced while listening.
func (s *Supervisor) Trigger(t Trigger) bool {
	select {
	case s.triggers <- t:
		return true
	default:
		s.log.Warnf("trigger queue full, dropping %+v", t)
		return false
	}
}

// Run connects and listens until ctx is cancelled, reconnecting after
// every failure. It returns nil on cancellation.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateDisconnected, "stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(StateConnecting, "")
		sq, kr, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Errorf("--- SQ MIXER CONNECTION FAILED --- %v", err)
			s.sink.Publish(events.Event{Kind: events.KindError, Device: DeviceSQ, Detail: err.Error()})
		} else {
			err = s.listen(ctx, sq, kr)
			sq.Close()
			if kr != nil {
				kr.Close()
			}
			if ctx.Err() != nil {
				return nil
			}
			s.stats.RecordReconnect()
			s.log.Errorf("connection lost: %v", err)
			s.sink.Publish(events.Event{Kind: events.KindError, Detail: fmt.Sprintf("connection lost: %v", err)})
		}

		s.setState(StateBackoff, fmt.Sprintf("retrying in %s", s.Backoff))
		s.log.Infof("retrying in %s...", s.Backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.Backoff):
		}
		s.setState(StateDisconnected, "")
	}
}

// connect dials the mixer, then the switcher. A switcher failure leaves
// the session in SQ-only mode.
func (s *Supervisor) connect(ctx context.Context) (SQLink, KramerClient, error) {
	sq, err := s.dial.SQ(ctx)
	if err != nil {
		return nil, nil, err
	}
	s.log.Infof("connected to SQ mixer at %s", sq)

	if s.dial.Kramer == nil {
		return sq, nil, nil
	}
	kr, err := s.dial.Kramer(ctx)
	if err != nil {
		if ctx.Err() != nil {
			sq.Close()
			return nil, nil, ctx.Err()
		}
		s.log.Warnf("--- KRAMER CONNECTION FAILED --- %v", err)
		s.log.Warn("running in SQ-only mode, Kramer commands will be skipped")
		s.sink.Publish(events.Event{Kind: events.KindError, Device: DeviceKramer, Detail: "SQ-only mode: " + err.Error()})
		return sq, nil, nil
	}
	s.log.Infof("connected to Kramer at %s", kr)
	return sq, kr, nil
}

// listen polls the mixer for trigger notes and services manual triggers
// between polls
func (s *Supervisor) listen(ctx context.Context, sq SQLink, kr KramerClient) error {
	dev := Devices{SQ: sq, Kramer: kr, Cameras: s.cameras}

	mode := "all systems connected"
	if kr == nil && s.dial.Kramer != nil {
		mode = "SQ-only mode"
	}
	s.setState(StateListening, mode)
	s.log.Infof("--- %s, listening for MIDI on channel %d ---", mode, s.Channel)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-s.triggers:
			if err := s.handleTrigger(ctx, dev, t); err != nil {
				return err
			}
			continue
		default:
		}

		data, err := sq.Receive()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}
		s.log.Tracef("received % X", data)

		for _, n := range sqmidi.ScanNoteOns(data, s.Channel) {
			if err := s.handleNote(ctx, dev, n.Note, "midi"); err != nil {
				return err
			}
		}
	}
}

func (s *Supervisor) handleTrigger(ctx context.Context, dev Devices, t Trigger) error {
	if t.Name == "" {
		return s.handleNote(ctx, dev, t.Note, t.Source)
	}
	p, ok := s.presets.Load()[t.Name]
	s.stats.RecordTrigger(ok)
	s.sink.Publish(events.Event{Kind: events.KindTrigger, Preset: t.Name, Detail: t.Source})
	if !ok {
		s.log.Warnf("[%s] no preset named %q", t.Source, t.Name)
		return nil
	}
	s.log.Infof("[%s] trigger preset %s", t.Source, t.Name)
	return s.exec.Run(ctx, dev, t.Name, p).TransportErr
}

func (s *Supervisor) handleNote(ctx context.Context, dev Devices, note uint8, source string) error {
	key, p, ok := s.presets.Load().Lookup(note)
	s.stats.RecordTrigger(ok)

	ev := events.Event{Kind: events.KindTrigger, Detail: fmt.Sprintf("%s note %d (%s)", source, note, sqmidi.NoteName(note))}
	if ok {
		ev.Preset = key
	}
	s.sink.Publish(ev)

	if !ok {
		s.log.Infof("[MIDI IN] note %d (%q) has no preset assigned", note, sqmidi.NoteName(note))
		return nil
	}
	s.log.Infof("[MIDI IN] note on: note=%d (0x%X) preset=%s", note, note, key)
	return s.exec.Run(ctx, dev, key, p).TransportErr
}

// ParseTrigger reads a trigger from text: a note number (0-127) plays the
// note, anything else names a preset
func ParseTrigger(s, source string) Trigger {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 127 {
		return Trigger{Note: uint8(n), Source: source}
	}
	return Trigger{Name: s, Source: source}
}
