// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

// Package transport provides the byte-stream connection shared by the AV
// device drivers.
//
// A Conn wraps either a TCP socket or an RS-232 serial port and adds the
// primitives the control protocols need: bounded line reads, draining of
// stale input, a steady-state receive timeout for listening loops, and an
// idempotent Close.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Default timeouts
const (
	DefaultConnectTimeout = 2 * time.Second
	DefaultReadTimeout    = 500 * time.Millisecond
	DefaultWriteTimeout   = 2 * time.Second
)

const readChunkSize = 1024

// ErrClosed is returned when the peer closed the stream or the Conn was closed locally
var ErrClosed = errors.New("connection closed")

// ConnectError reports a failure to establish a connection
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// SendError reports a failed or short write
type SendError struct {
	Addr    string
	Written int
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s failed after %d bytes: %v", e.Addr, e.Written, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// stream is the byte stream under a Conn. serial.Port satisfies it directly;
// TCP sockets are adapted by netStream.
type stream interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// netStream maps relative read timeouts onto socket deadlines
type netStream struct {
	net.Conn
}

func (n netStream) SetReadTimeout(t time.Duration) error {
	return n.SetReadDeadline(time.Now().Add(t))
}

func (n netStream) Write(p []byte) (int, error) {
	n.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	return n.Conn.Write(p)
}

// Conn is one live session to one device.
// A Conn is not safe for concurrent use; callers serialize access.
type Conn struct {
	s           stream
	addr        string
	readTimeout time.Duration
	pending     []byte
	chunk       []byte

	closeOnce sync.Once
	closeErr  error
	mu        sync.Mutex
	closed    bool
}

func newConn(s stream, addr string) *Conn {
	return &Conn{
		s:           s,
		addr:        addr,
		readTimeout: DefaultReadTimeout,
		chunk:       make([]byte, readChunkSize),
	}
}

// Dial opens a TCP connection bounded by connectTimeout.
// Any failure is reported as a *ConnectError.
func Dial(ctx context.Context, host string, port int, connectTimeout time.Duration) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if host == "" {
		return nil, &ConnectError{Addr: addr, Err: errors.New("no host configured")}
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	dialer := net.Dialer{Timeout: connectTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if nc != nil {
			nc.Close()
		}
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	return newConn(netStream{nc}, addr), nil
}

// NewConn wraps an already connected socket
func NewConn(nc net.Conn) *Conn {
	return newConn(netStream{nc}, nc.RemoteAddr().String())
}

// OpenSerial opens an RS-232 port at 8N1
func OpenSerial(portName string, baudRate int) (*Conn, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, &ConnectError{Addr: portName, Err: err}
	}

	return newConn(port, fmt.Sprintf("%s@%d", portName, baudRate)), nil
}

// String returns the remote address or serial port description
func (c *Conn) String() string {
	return c.addr
}

// SetReadTimeout sets the steady-state timeout used by Receive
func (c *Conn) SetReadTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultReadTimeout
	}
	c.readTimeout = d
}

// ReadTimeout returns the steady-state receive timeout
func (c *Conn) ReadTimeout() time.Duration {
	return c.readTimeout
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fill performs one bounded read into the pending buffer.
// A timeout is not an error: it returns 0, nil.
func (c *Conn) fill(timeout time.Duration) (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}
	if err := c.s.SetReadTimeout(timeout); err != nil {
		return 0, fmt.Errorf("set read timeout: %w", err)
	}

	n, err := c.s.Read(c.chunk)
	if n > 0 {
		c.pending = append(c.pending, c.chunk[:n]...)
	}
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return n, nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return n, ErrClosed
		}
		return n, err
	}
	return n, nil
}

// ReadLine returns the next newline-terminated line, including the newline.
// If timeout elapses first it returns whatever was accumulated (possibly
// empty) with a nil error. A closed peer yields ErrClosed.
func (c *Conn) ReadLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if i := bytes.IndexByte(c.pending, '\n'); i >= 0 {
			line := string(c.pending[:i+1])
			c.pending = c.pending[i+1:]
			return line, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return c.takePending(), nil
		}

		n, err := c.fill(remaining)
		if err != nil {
			return c.takePending(), err
		}
		if n == 0 && time.Until(deadline) <= 0 {
			return c.takePending(), nil
		}
	}
}

func (c *Conn) takePending() string {
	s := string(c.pending)
	c.pending = c.pending[:0]
	return s
}

// Drain discards pending input and anything that arrives within timeout.
// Finding nothing to read is the common case and not an error.
func (c *Conn) Drain(timeout time.Duration) (int, error) {
	discarded := len(c.pending)
	c.pending = c.pending[:0]

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return discarded, nil
		}
		n, err := c.fill(remaining)
		discarded += n
		c.pending = c.pending[:0]
		if err != nil {
			return discarded, err
		}
		if n == 0 {
			return discarded, nil
		}
	}
}

// Receive waits up to the steady-state read timeout for inbound bytes.
// It returns nil, nil on timeout.
func (c *Conn) Receive() ([]byte, error) {
	if len(c.pending) == 0 {
		if _, err := c.fill(c.readTimeout); err != nil && len(c.pending) == 0 {
			return nil, err
		}
	}
	if len(c.pending) == 0 {
		return nil, nil
	}
	data := make([]byte, len(c.pending))
	copy(data, c.pending)
	c.pending = c.pending[:0]
	return data, nil
}

// Send writes the full payload
func (c *Conn) Send(p []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	written := 0
	for written < len(p) {
		n, err := c.s.Write(p[written:])
		written += n
		if err != nil {
			return &SendError{Addr: c.addr, Written: written, Err: err}
		}
		if n == 0 {
			return &SendError{Addr: c.addr, Written: written, Err: io.ErrShortWrite}
		}
	}
	return nil
}

// Close releases the underlying stream. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.closeErr = c.s.Close()
	})
	return c.closeErr
}
