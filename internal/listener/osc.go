// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/hypebeast/go-osc/osc"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/logger"
)

// OSC addresses
const (
	OSCPreset = "/preset" // string argument: preset key
	OSCNote   = "/note"   // int argument: MIDI note number
)

// OSCSource feeds triggers from OSC messages into a Supervisor
type OSCSource struct {
	trigger func(Trigger) bool
	log     *logger.Log
	conn    net.PacketConn
}

// NewOSCSource creates a source delivering to trigger
func NewOSCSource(trigger func(Trigger) bool, log *logger.Log) *OSCSource {
	return &OSCSource{trigger: trigger, log: log.Module("osc")}
}

// Listen binds addr ("0.0.0.0:9000"). Call Serve afterwards.
func (o *OSCSource) Listen(addr string) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("osc listen %s: %w", addr, err)
	}
	o.conn = conn
	return nil
}

// Addr returns the bound address
func (o *OSCSource) Addr() net.Addr {
	if o.conn == nil {
		return nil
	}
	return o.conn.LocalAddr()
}

// Serve dispatches messages until ctx is cancelled
func (o *OSCSource) Serve(ctx context.Context) error {
	if o.conn == nil {
		return errors.New("osc: Listen not called")
	}

	d := osc.NewStandardDispatcher()
	d.AddMsgHandler(OSCPreset, o.handlePreset)
	d.AddMsgHandler(OSCNote, o.handleNote)
	server := &osc.Server{Dispatcher: d}

	go func() {
		<-ctx.Done()
		o.conn.Close()
	}()

	o.log.Infof("listening for OSC triggers on %s", o.conn.LocalAddr())
	err := server.Serve(o.conn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (o *OSCSource) handlePreset(msg *osc.Message) {
	if len(msg.Arguments) == 0 {
		o.log.Warnf("%s without a preset name", msg.Address)
		return
	}
	name := fmt.Sprint(msg.Arguments[0])
	o.log.Debugf("%s %q", msg.Address, name)
	o.trigger(Trigger{Name: name, Source: "osc"})
}

func (o *OSCSource) handleNote(msg *osc.Message) {
	if len(msg.Arguments) == 0 {
		o.log.Warnf("%s without a note number", msg.Address)
		return
	}
	n, ok := oscInt(msg.Arguments[0])
	if !ok || n < 0 || n > 127 {
		o.log.Warnf("%s: bad note %v", msg.Address, msg.Arguments[0])
		return
	}
	o.log.Debugf("%s %d", msg.Address, n)
	o.trigger(Trigger{Note: uint8(n), Source: "osc"})
}

func oscInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float32:
		return int(x), true
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(x)
		return n, err == nil
	default:
		return 0, false
	}
}
