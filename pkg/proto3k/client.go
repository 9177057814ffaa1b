// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package proto3k

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/transport"
	"github.com/sirupsen/logrus"
)

// Correlation errors
var (
	ErrSend       = errors.New("send failed")
	ErrNoResponse = errors.New("no matching response")
)

// LineConn is the transport a Client drives. *transport.Conn implements it.
type LineConn interface {
	Send(p []byte) error
	ReadLine(timeout time.Duration) (string, error)
	Drain(timeout time.Duration) (int, error)
	SetReadTimeout(d time.Duration)
	Close() error
	String() string
}

// Status is the outcome of one Do call
type Status int

// Outcomes
const (
	StatusSuccess Status = iota
	StatusSendError
	StatusTimeout
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSendError:
		return "send-error"
	case StatusTimeout:
		return "timeout"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result reports what happened to one command
type Result struct {
	Command  Command
	Status   Status
	Summary  string   // handler output on success
	Response string   // raw matched line
	Attempts int      // match-loop reads performed
	Ignored  []string // noise and stale lines skipped while matching
	Err      error
}

// OK reports whether the command succeeded
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Options tunes the correlator
type Options struct {
	RetryBudget    int
	AttemptTimeout time.Duration
	DrainTimeout   time.Duration
	SteadyTimeout  time.Duration
	SettleDelay    time.Duration // zero disables pacing
	ConnectTimeout time.Duration
}

// DefaultOptions returns the timings used against real hardware
func DefaultOptions() Options {
	return Options{
		RetryBudget:    DefaultRetryBudget,
		AttemptTimeout: DefaultAttemptTimeout,
		DrainTimeout:   DefaultDrainTimeout,
		SteadyTimeout:  DefaultSteadyTimeout,
		SettleDelay:    DefaultSettleDelay,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RetryBudget <= 0 {
		o.RetryBudget = d.RetryBudget
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = d.AttemptTimeout
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = d.DrainTimeout
	}
	if o.SteadyTimeout <= 0 {
		o.SteadyTimeout = d.SteadyTimeout
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	return o
}

// Client sends commands over one connection and correlates their replies.
// Requests are serialized; a second Do waits for the first to finish.
type Client struct {
	conn LineConn
	opts Options
	log  logrus.FieldLogger
	mu   sync.Mutex
}

// NewClient wraps an open connection. A nil logger discards output.
func NewClient(conn LineConn, opts Options, log logrus.FieldLogger) *Client {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Client{
		conn: conn,
		opts: opts.withDefaults(),
		log:  log.WithField("device", conn.String()),
	}
}

// Dial connects to a Protocol 3000 device over TCP and performs the
// handshake. A failed handshake closes the socket and is reported as a
// connection failure.
func Dial(ctx context.Context, host string, port int, opts Options, log logrus.FieldLogger) (*Client, error) {
	opts = opts.withDefaults()
	conn, err := transport.Dial(ctx, host, port, opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	return establish(ctx, conn, opts, log)
}

// OpenSerial opens a Protocol 3000 device on an RS-232 port and performs the
// handshake.
func OpenSerial(ctx context.Context, portName string, baudRate int, opts Options, log logrus.FieldLogger) (*Client, error) {
	conn, err := transport.OpenSerial(portName, baudRate)
	if err != nil {
		return nil, err
	}
	return establish(ctx, conn, opts, log)
}

func establish(ctx context.Context, conn *transport.Conn, opts Options, log logrus.FieldLogger) (*Client, error) {
	conn.SetReadTimeout(opts.withDefaults().SteadyTimeout)
	c := NewClient(conn, opts, log)
	if err := c.Handshake(ctx); err != nil {
		conn.Close()
		return nil, &transport.ConnectError{Addr: conn.String(), Err: err}
	}
	return c, nil
}

// Handshake sends "#" and requires an OK reply
func (c *Client) Handshake(ctx context.Context) error {
	res := c.Do(ctx, NewHandshake())
	if res.OK() {
		return nil
	}
	if errors.Is(res.Err, ErrHandshake) {
		return res.Err
	}
	return fmt.Errorf("%w: %w", ErrHandshake, res.Err)
}

// String returns the device address
func (c *Client) String() string {
	return c.conn.String()
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do transmits cmd and waits for its reply.
//
// Stale input is drained first, then the payload is written and lines are
// read until one carries the expected tag or the retry budget runs out.
// Unparseable lines and replies to other commands are skipped. Whatever the
// outcome, the steady-state read timeout is restored and the settle delay
// observed before Do returns.
func (c *Client) Do(ctx context.Context, cmd Command) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := Result{Command: cmd}
	defer c.settle(ctx)

	log := c.log.WithField("command", cmd.Name)

	if n, err := c.conn.Drain(c.opts.DrainTimeout); n > 0 || err != nil {
		log.WithError(err).Debugf("drained %d stale bytes", n)
	}

	if err := c.conn.Send(cmd.Payload); err != nil {
		res.Status = StatusSendError
		res.Err = fmt.Errorf("%w: %s: %w", ErrSend, cmd.Name, err)
		log.WithError(err).Errorf("send failed: %q", cmd.Payload)
		return res
	}
	log.Debugf("sent (len=%d): %q", len(cmd.Payload), cmd.Payload)

	if !cmd.ExpectsResponse() {
		if line, _ := c.conn.ReadLine(c.opts.DrainTimeout); line != "" {
			log.Debugf("reply to fire-and-forget command: %q", line)
			res.Response = line
		}
		res.Status = StatusSuccess
		return res
	}

	for attempt := 1; attempt <= c.opts.RetryBudget; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Status = StatusTimeout
			res.Err = fmt.Errorf("%w: %s: %w", ErrNoResponse, cmd.Name, err)
			return res
		}

		line, err := c.conn.ReadLine(c.opts.AttemptTimeout)
		res.Attempts = attempt

		if line == "" {
			res.Status = StatusTimeout
			if err != nil {
				res.Err = fmt.Errorf("%w: %s: %w", ErrNoResponse, cmd.Name, err)
			} else {
				res.Err = fmt.Errorf("%w: %s after %v", ErrNoResponse, cmd.Name, c.opts.AttemptTimeout)
			}
			log.Warnf("no response (attempt %d/%d)", attempt, c.opts.RetryBudget)
			return res
		}

		resp, ok := ParseResponse(line)
		if !ok {
			log.Debugf("skipping unparsed line: %q", line)
			res.Ignored = append(res.Ignored, line)
			continue
		}

		if !cmd.Matches(resp) {
			log.Infof("ignoring stale response %s (waiting for %s): %q", resp.Tag, cmd.Tag, strings.TrimSpace(line))
			res.Ignored = append(res.Ignored, line)
			continue
		}

		res.Response = line
		summary, herr := cmd.Handle(resp)
		if herr != nil {
			res.Status = StatusRejected
			res.Err = herr
			log.WithError(herr).Warnf("response rejected: %q", strings.TrimSpace(line))
			return res
		}

		res.Status = StatusSuccess
		res.Summary = summary
		log.Info(summary)
		return res
	}

	res.Status = StatusTimeout
	res.Err = fmt.Errorf("%w: %s after %d attempts", ErrNoResponse, cmd.Name, c.opts.RetryBudget)
	log.Warnf("no matching response after %d attempts", c.opts.RetryBudget)
	return res
}

// settle restores the listening timeout and paces the next command
func (c *Client) settle(ctx context.Context) {
	c.conn.SetReadTimeout(c.opts.SteadyTimeout)
	if c.opts.SettleDelay <= 0 {
		return
	}
	t := time.NewTimer(c.opts.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
