// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package proto3k

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command errors
var (
	ErrInvalidArgument = errors.New("invalid command argument")
	ErrHandshake       = errors.New("handshake failed")
	ErrRejected        = errors.New("response rejected")
)

// ParseMuteFlag accepts a VMUTE flag as a number (0-2) or a name
// (enable, disable, blank)
func ParseMuteFlag(s string) (MuteFlag, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if f := MuteFlag(n); f.Valid() {
			return f, nil
		}
		return 0, fmt.Errorf("%w: vmute flag %d", ErrInvalidArgument, n)
	}
	for f := MuteEnable; f <= MuteBlank; f++ {
		if f.String() == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: vmute flag %q", ErrInvalidArgument, s)
}

// Kind identifies the command variant
type Kind int

// Command kinds
const (
	KindHandshake Kind = iota
	KindRoute
	KindVideoMute
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "Handshake"
	case KindRoute:
		return "Route"
	case KindVideoMute:
		return "VideoMute"
	case KindRaw:
		return "Raw"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Command is one outbound request. It is immutable once built.
type Command struct {
	Kind    Kind
	Name    string
	Payload []byte
	// Tag is the response tag this command correlates on.
	// Empty means fire and forget (except for the handshake, which accepts
	// any well-formed reply).
	Tag string

	layer, dest, src int
	flag             MuteFlag
}

// Command builder functions return Commands ready for Client.Do.

// NewHandshake creates the "#" link check. Any parsed reply is accepted;
// its parameters must be "OK".
func NewHandshake() Command {
	return Command{
		Kind:    KindHandshake,
		Name:    "Handshake",
		Payload: []byte("#\r"),
	}
}

// NewRoute creates a ROUTE command switching src to dest on layer.
func NewRoute(layer, dest, src int) (Command, error) {
	if layer < 0 || dest < 0 || src < 0 {
		return Command{}, fmt.Errorf("%w: route layer=%d dest=%d src=%d", ErrInvalidArgument, layer, dest, src)
	}
	return Command{
		Kind:    KindRoute,
		Name:    fmt.Sprintf("Route (layer=%d dest=%d src=%d)", layer, dest, src),
		Payload: []byte(fmt.Sprintf("#ROUTE %d,%d,%d\r", layer, dest, src)),
		Tag:     TagRoute,
		layer:   layer,
		dest:    dest,
		src:     src,
	}, nil
}

// NewVideoMute creates a VMUTE command for output dest.
func NewVideoMute(dest int, flag MuteFlag) (Command, error) {
	if dest < 0 {
		return Command{}, fmt.Errorf("%w: vmute dest=%d", ErrInvalidArgument, dest)
	}
	if !flag.Valid() {
		return Command{}, fmt.Errorf("%w: vmute flag=%d", ErrInvalidArgument, int(flag))
	}
	return Command{
		Kind:    KindVideoMute,
		Name:    fmt.Sprintf("VideoMute (dest=%d %s)", dest, flag),
		Payload: []byte(fmt.Sprintf("#VMUTE %d,%d\r", dest, int(flag))),
		Tag:     TagVideoMute,
		dest:    dest,
		flag:    flag,
	}, nil
}

// NewRaw creates an arbitrary "#VERB p1,p2\r" command correlating on VERB.
// Use fireAndForget for verbs the device does not answer.
func NewRaw(verb string, fireAndForget bool, params ...string) (Command, error) {
	verb = strings.TrimSpace(verb)
	if verb == "" || strings.ContainsAny(verb, " \r\n,#~@") {
		return Command{}, fmt.Errorf("%w: verb %q", ErrInvalidArgument, verb)
	}
	for _, p := range params {
		if strings.ContainsAny(p, "\r\n") {
			return Command{}, fmt.Errorf("%w: parameter %q", ErrInvalidArgument, p)
		}
	}

	wire := "#" + verb
	if len(params) > 0 {
		wire += " " + strings.Join(params, ",")
	}

	// Queries ("VERB?") are answered with the bare verb
	tag := strings.ToUpper(strings.TrimSuffix(verb, "?"))
	if fireAndForget {
		tag = ""
	}

	return Command{
		Kind:    KindRaw,
		Name:    strings.TrimPrefix(wire, "#"),
		Payload: []byte(wire + "\r"),
		Tag:     tag,
	}, nil
}

// ExpectsResponse reports whether Do must correlate a reply
func (c Command) ExpectsResponse() bool {
	return c.Kind == KindHandshake || c.Tag != ""
}

// Matches reports whether r is the reply to c
func (c Command) Matches(r Response) bool {
	if c.Kind == KindHandshake {
		return true
	}
	return strings.EqualFold(r.Tag, c.Tag)
}

// Handle interprets a matched reply and returns a printable summary
func (c Command) Handle(r Response) (string, error) {
	switch c.Kind {
	case KindHandshake:
		if r.Params != "OK" {
			return "", fmt.Errorf("%w: device %s answered %q", ErrHandshake, r.Device, r.Params)
		}
		return fmt.Sprintf("Response from device %s: Handshake OK", r.Device), nil

	case KindRoute:
		if r.IsError() {
			return "", fmt.Errorf("%w: device %s: ROUTE %s", ErrRejected, r.Device, r.Params)
		}
		fields := r.Fields()
		if len(fields) < 3 {
			return "", fmt.Errorf("%w: device %s: ROUTE params %q", ErrRejected, r.Device, r.Params)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Response from device %s: %s:\n", r.Device, r.Tag)
		fmt.Fprintf(&b, "  layer = %s\n", fields[0])
		fmt.Fprintf(&b, "  dest  = %s\n", fields[1])
		fmt.Fprintf(&b, "  src   = %s", fields[2])
		return b.String(), nil

	case KindVideoMute:
		if r.IsError() {
			return "", fmt.Errorf("%w: device %s: VMUTE %s", ErrRejected, r.Device, r.Params)
		}
		fields := r.Fields()
		if len(fields) < 2 {
			return "", fmt.Errorf("%w: device %s: VMUTE params %q", ErrRejected, r.Device, r.Params)
		}
		flag := fields[1]
		if n, err := strconv.Atoi(flag); err == nil {
			flag = MuteFlag(n).String()
		}
		return fmt.Sprintf("Response from device %s: %s: dest = %s, flag = %s", r.Device, r.Tag, fields[0], flag), nil

	default:
		if r.IsError() {
			return "", fmt.Errorf("%w: device %s: %s %s", ErrRejected, r.Device, r.Tag, r.Params)
		}
		return fmt.Sprintf("Response from device %s: %s %s", r.Device, r.Tag, r.Params), nil
	}
}

// Route returns the layer, destination and source of a Route command
func (c Command) Route() (layer, dest, src int) {
	return c.layer, c.dest, c.src
}

// VideoMute returns the destination and flag of a VideoMute command
func (c Command) VideoMute() (dest int, flag MuteFlag) {
	return c.dest, c.flag
}
