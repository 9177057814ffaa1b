// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

// Package journal records events to an append-only file of concatenated
// CBOR items, one per event, and reads them back
package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/events"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
}

// Writer appends events to a journal file. It is an events.Sink.
type Writer struct {
	mu      sync.Mutex
	f       *os.File
	enc     *cbor.Encoder
	count   int
	lastErr error
}

// Create opens path for appending, creating it if needed
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Writer{f: f, enc: encMode.NewEncoder(f)}, nil
}

// Publish appends e. Write errors are kept and reported by Err.
func (w *Writer) Publish(e events.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return
	}
	if err := w.enc.Encode(e); err != nil {
		w.lastErr = err
		return
	}
	w.count++
}

// Count returns how many events were written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Err returns the most recent write error
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Close flushes and closes the file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// Reader iterates over a journal
type Reader struct {
	dec *cbor.Decoder
	c   io.Closer
}

// Open opens a journal file for reading
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Reader{dec: cbor.NewDecoder(f), c: f}, nil
}

// NewReader reads a journal from r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next event, or io.EOF at the end. A truncated final
// record, left by a crash mid-write, also ends the journal.
func (r *Reader) Next() (events.Event, error) {
	var e events.Event
	err := r.dec.Decode(&e)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return e, io.EOF
	}
	return e, err
}

// ReadAll returns every remaining event
func (r *Reader) ReadAll() ([]events.Event, error) {
	var out []events.Event
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

// Close closes the underlying file, if any
func (r *Reader) Close() error {
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}
