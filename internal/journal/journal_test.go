// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/events"
)

func TestWriterReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avctl.journal")

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ts := time.Date(2025, 4, 6, 9, 30, 0, 123456789, time.UTC)
	want := []events.Event{
		{Time: ts, Kind: events.KindState, Detail: "listening"},
		{Time: ts.Add(time.Second), Kind: events.KindTrigger, Preset: "C3", Detail: "note 48"},
		{Time: ts.Add(2 * time.Second), Kind: events.KindCommand, Device: "kramer", Command: "Route", Status: "timeout"},
	}
	for _, e := range want {
		w.Publish(e)
	}
	if w.Count() != 3 || w.Err() != nil {
		t.Fatalf("Count() = %d, Err() = %v", w.Count(), w.Err())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Appending reopens the same file
	w, _ = Create(path)
	w.Publish(events.Event{Time: ts.Add(3 * time.Second), Kind: events.KindState, Detail: "stopped"})
	w.Close()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()

	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("read %d events, want 4", len(got))
	}
	for i, e := range want {
		if !got[i].Time.Equal(e.Time) || got[i].Kind != e.Kind || got[i].Preset != e.Preset ||
			got[i].Device != e.Device || got[i].Status != e.Status || got[i].Detail != e.Detail {
			t.Errorf("event %d = %+v, want %+v", i, got[i], e)
		}
	}
	if got[3].Detail != "stopped" {
		t.Errorf("appended event = %+v", got[3])
	}
}

func TestReader_TruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j")
	w, _ := Create(path)
	w.Publish(events.Event{Time: time.Now(), Kind: events.KindState, Detail: "one"})
	w.Publish(events.Event{Time: time.Now(), Kind: events.KindState, Detail: "two"})
	w.Close()

	data, _ := os.ReadFile(path)
	if err := os.WriteFile(path, data[:len(data)-3], 0o644); err != nil {
		t.Fatal(err)
	}

	r, _ := Open(path)
	defer r.Close()
	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(got) != 1 || got[0].Detail != "one" {
		t.Errorf("ReadAll() = %+v, want only the first event", got)
	}
}

func TestWriter_PublishAfterClose(t *testing.T) {
	w, _ := Create(filepath.Join(t.TempDir(), "j"))
	w.Close()
	w.Publish(events.Event{Kind: events.KindState})
	if w.Count() != 0 {
		t.Errorf("Count() = %d after close, want 0", w.Count())
	}
}
