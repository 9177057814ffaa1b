// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package sqmidi

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/transport"
	"github.com/sirupsen/logrus"
)

// Conn is the byte transport a Link drives. *transport.Conn implements it.
type Conn interface {
	Send(p []byte) error
	Receive() ([]byte, error)
	Close() error
	String() string
}

// Link is an open MIDI session with the mixer. The mixer never answers
// commands; anything received is unsolicited MIDI (SoftKeys, scene
// changes, meters).
type Link struct {
	conn      Conn
	partDelay time.Duration
	log       logrus.FieldLogger
}

// NewLink wraps an open connection. A nil logger discards output.
func NewLink(conn Conn, log logrus.FieldLogger) *Link {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Link{
		conn:      conn,
		partDelay: PartDelay,
		log:       log.WithField("device", conn.String()),
	}
}

// Dial connects to the mixer's MIDI port
func Dial(ctx context.Context, host string, port int, log logrus.FieldLogger) (*Link, error) {
	if port == 0 {
		port = DefaultPort
	}
	conn, err := transport.Dial(ctx, host, port, DefaultConnectTimeout)
	if err != nil {
		return nil, err
	}
	conn.SetReadTimeout(DefaultReadTimeout)
	return NewLink(conn, log), nil
}

// SetPartDelay changes the pause between the parts of one message
func (l *Link) SetPartDelay(d time.Duration) {
	l.partDelay = d
}

// Send writes every part of m, pausing between parts so the mixer is not
// flooded. A failed write aborts the rest of the message.
func (l *Link) Send(ctx context.Context, m Message) error {
	for i, part := range m.Parts {
		if i > 0 && l.partDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.partDelay):
			}
		}
		if err := l.conn.Send(part); err != nil {
			l.log.WithError(err).Errorf("send failed: %s (part %d/%d)", m.Name, i+1, len(m.Parts))
			return fmt.Errorf("%s: %w", m.Name, err)
		}
	}
	l.log.Infof("sent %s (%d messages): %s", m.Name, len(m.Parts), m.Hex())
	return nil
}

// Receive waits up to the read timeout for incoming MIDI. A quiet socket
// returns nil, nil.
func (l *Link) Receive() ([]byte, error) {
	return l.conn.Receive()
}

// String returns the mixer address
func (l *Link) String() string {
	return l.conn.String()
}

// Close closes the connection
func (l *Link) Close() error {
	return l.conn.Close()
}
