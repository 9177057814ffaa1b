// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Bucks County Community Church

package cmd

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/config"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/events"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/journal"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/proto3k"
)

// ============================================================================
// Uptime Formatting
// ============================================================================

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "0 seconds"},
		{"sub-second", 400 * time.Millisecond, "0 seconds"},
		{"one second", time.Second, "1 second"},
		{"seconds", 42 * time.Second, "42 seconds"},
		{"minute and second", 61 * time.Second, "1 minute and 1 second"},
		{"hours only", 2 * time.Hour, "2 hours"},
		{"three parts", time.Hour + 5*time.Minute + 2*time.Second, "1 hour, 5 minutes, and 2 seconds"},
		{"days", 49*time.Hour + time.Second, "2 days, 1 hour, and 1 second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatUptime(tt.d); got != tt.want {
				t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

// ============================================================================
// Result Output
// ============================================================================

func TestPrintResult(t *testing.T) {
	route, err := proto3k.NewRoute(proto3k.LayerVideo, 1, 3)
	if err != nil {
		t.Fatalf("NewRoute() error = %v", err)
	}

	tests := []struct {
		name    string
		res     proto3k.Result
		want    []string
		notWant []string
	}{
		{
			name: "success",
			res: proto3k.Result{
				Command:  route,
				Status:   proto3k.StatusSuccess,
				Summary:  "Routed input 3 to output 1\n",
				Response: "~01@ROUTE 1,1,3\r\n",
				Attempts: 1,
			},
			want:    []string{"Status:   SUCCESS (1 read(s))", "Response:", "Routed input 3 to output 1"},
			notWant: []string{"Error:"},
		},
		{
			name: "timeout with noise",
			res: proto3k.Result{
				Command:  route,
				Status:   proto3k.StatusTimeout,
				Attempts: 10,
				Ignored:  []string{"~01@VMUTE 1,0\r\n"},
				Err:      proto3k.ErrNoResponse,
			},
			want:    []string{"Status:   TIMEOUT (10 read(s))", "Ignored:", "VMUTE", "Error:"},
			notWant: []string{"Response:"},
		},
		{
			name: "send error",
			res: proto3k.Result{
				Command: route,
				Status:  proto3k.StatusSendError,
				Err:     errors.New("broken pipe"),
			},
			want:    []string{"SEND-ERROR", "broken pipe"},
			notWant: []string{"read(s)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printResult(&buf, tt.res)
			out := buf.String()
			if !strings.Contains(out, "Command:  "+route.Name) {
				t.Errorf("printResult() missing command name:\n%s", out)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("printResult() missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("printResult() unexpectedly contains %q:\n%s", w, out)
				}
			}
		})
	}
}

// ============================================================================
// Preset Listing
// ============================================================================

func TestPrintPresets(t *testing.T) {
	presets := config.Presets{
		"60": {SQ: []config.Action{{Command: "RecallScene", Args: []string{"2"}}}},
		"C3": {
			SQ:      []config.Action{{Command: "SetMute", Args: []string{"IP1", "LR", "true"}}},
			Kramer:  []config.Action{{Command: "Route", Args: []string{"3"}}},
			Cameras: []config.Action{{Command: "PowerOn"}},
		},
	}

	var buf bytes.Buffer
	printPresets(&buf, presets)
	out := buf.String()

	for _, w := range []string{
		"C3: 3 action(s)",
		"60 (C4): 1 action(s)",
		"sq       SetMute(IP1, LR, true)",
		"kramer   Route(3)",
		"cameras  PowerOn",
	} {
		if !strings.Contains(out, w) {
			t.Errorf("printPresets() missing %q:\n%s", w, out)
		}
	}
	// C3 (48) sorts before C4 (60)
	if strings.Index(out, "C3:") > strings.Index(out, "60 (C4)") {
		t.Errorf("printPresets() not in note order:\n%s", out)
	}

	buf.Reset()
	printPresets(&buf, nil)
	if got := buf.String(); got != "(no presets)\n" {
		t.Errorf("printPresets(nil) = %q", got)
	}
}

// ============================================================================
// Journal Output
// ============================================================================

func TestPrintJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")
	w, err := journal.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	at := time.Date(2025, 3, 9, 10, 15, 0, 0, time.Local)
	w.Publish(events.Event{Time: at, Kind: events.KindState, Status: "listening"})
	w.Publish(events.Event{Time: at, Kind: events.KindCommand, Device: "sq", Preset: "C3", Command: "RecallScene 2", Status: "success"})
	w.Publish(events.Event{Time: at, Kind: events.KindCommand, Device: "kramer", Preset: "C3", Command: "Route", Status: "timeout"})
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	tests := []struct {
		name   string
		kind   events.Kind
		asJSON bool
		wantN  int
		want   string
	}{
		{"all", "", false, 3, "2025-03-09 10:15:00.000 state"},
		{"commands only", events.KindCommand, false, 2, "[kramer] preset=C3 Route -> timeout"},
		{"json", events.KindState, true, 1, `"status":"listening"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := journal.Open(path)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer r.Close()

			var buf bytes.Buffer
			n, err := printJournal(&buf, r, tt.kind, tt.asJSON)
			if err != nil {
				t.Fatalf("printJournal() error = %v", err)
			}
			if n != tt.wantN {
				t.Errorf("printJournal() = %d events, want %d", n, tt.wantN)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("printJournal() output missing %q:\n%s", tt.want, buf.String())
			}
		})
	}
}
