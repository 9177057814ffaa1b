// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

// Package visca drives PTZ camera power over VISCA, either VISCA-over-TCP
// (one connection per camera) or an RS-232 daisy chain.
//
// Packets are framed 8x ... FF where x is the camera address (1-7).
// Replies are 9y 4z FF (ACK), 9y 5z FF (completion) or 9y 6z ee FF (error),
// y being the camera address + 8 and z the command socket.
package visca

import (
	"errors"
	"fmt"
	"time"
)

// DefaultPort is the camera TCP control port
const DefaultPort = 5678

// Timing
const (
	DefaultTimeout = 500 * time.Millisecond
	DefaultBetween = 2 * time.Second
)

const terminator = 0xFF

// Power command (CAM_Power)
const (
	powerOn  = 0x02
	powerOff = 0x03
)

// Errors
var (
	ErrAddress  = errors.New("camera address must be 1-7")
	ErrBadReply = errors.New("malformed VISCA reply")
	ErrCamera   = errors.New("camera reported an error")
)

// Power encodes CAM_Power on or off for the camera at addr
func Power(addr int, on bool) ([]byte, error) {
	if addr < 1 || addr > 7 {
		return nil, fmt.Errorf("%w: %d", ErrAddress, addr)
	}
	state := byte(powerOff)
	if on {
		state = powerOn
	}
	return []byte{0x80 | byte(addr), 0x01, 0x04, 0x00, state, terminator}, nil
}

// ReplyKind classifies a reply packet
type ReplyKind int

// Reply kinds
const (
	ReplyAck ReplyKind = iota
	ReplyCompletion
	ReplyError
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyAck:
		return "ack"
	case ReplyCompletion:
		return "completion"
	case ReplyError:
		return "error"
	default:
		return fmt.Sprintf("ReplyKind(%d)", int(k))
	}
}

// Reply is one parsed reply packet
type Reply struct {
	Kind   ReplyKind
	Addr   int  // replying camera
	Socket int  // command socket
	Code   byte // error code, ReplyError only
}

func (r Reply) String() string {
	if r.Kind == ReplyError {
		return fmt.Sprintf("camera %d: error 0x%02X (%s)", r.Addr, r.Code, errorText(r.Code))
	}
	return fmt.Sprintf("camera %d: %s (socket %d)", r.Addr, r.Kind, r.Socket)
}

// Err returns ErrCamera for error replies
func (r Reply) Err() error {
	if r.Kind != ReplyError {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCamera, r)
}

func errorText(code byte) string {
	switch code {
	case 0x01:
		return "message length"
	case 0x02:
		return "syntax"
	case 0x03:
		return "command buffer full"
	case 0x04:
		return "command cancelled"
	case 0x05:
		return "no socket"
	case 0x41:
		return "not executable"
	default:
		return "unknown"
	}
}

// ParseReply parses the first packet in b and returns it with the number
// of bytes consumed
func ParseReply(b []byte) (Reply, int, error) {
	end := -1
	for i, c := range b {
		if c == terminator {
			end = i
			break
		}
	}
	if end < 0 {
		return Reply{}, 0, fmt.Errorf("%w: no terminator in % X", ErrBadReply, b)
	}
	pkt := b[:end+1]
	// High nibble is address+8 (0x9-0xF), low nibble is always zero
	hi := pkt[0] >> 4
	if len(pkt) < 3 || hi < 0x9 || pkt[0]&0x0F != 0 {
		return Reply{}, end + 1, fmt.Errorf("%w: % X", ErrBadReply, pkt)
	}

	r := Reply{
		Addr:   int(hi) - 8,
		Socket: int(pkt[1] & 0x0F),
	}
	switch pkt[1] & 0xF0 {
	case 0x40:
		r.Kind = ReplyAck
	case 0x50:
		r.Kind = ReplyCompletion
	case 0x60:
		if len(pkt) < 4 {
			return Reply{}, end + 1, fmt.Errorf("%w: short error % X", ErrBadReply, pkt)
		}
		r.Kind = ReplyError
		r.Code = pkt[2]
	default:
		return Reply{}, end + 1, fmt.Errorf("%w: % X", ErrBadReply, pkt)
	}
	return r, end + 1, nil
}

// ParseReplies parses every complete packet in b. Malformed packets are
// skipped; the first parse error is returned alongside the good replies.
func ParseReplies(b []byte) ([]Reply, error) {
	var (
		out      []Reply
		firstErr error
	)
	for len(b) > 0 {
		r, n, err := ParseReply(b)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if n == 0 {
			break
		}
		if err == nil {
			out = append(out, r)
		}
		b = b[n:]
	}
	return out, firstErr
}
