// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package listener

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/logger"
)

func TestOSCSource(t *testing.T) {
	var (
		mu  sync.Mutex
		got []Trigger
	)
	src := NewOSCSource(func(tr Trigger) bool {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, tr)
		return true
	}, logger.Nop())

	if err := src.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Serve(ctx) }()

	addr := src.Addr().(*net.UDPAddr)
	client := osc.NewClient("127.0.0.1", addr.Port)

	send := func(m *osc.Message) {
		if err := client.Send(m); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	send(osc.NewMessage(OSCPreset, "intro"))
	send(osc.NewMessage(OSCNote, int32(48)))
	send(osc.NewMessage(OSCNote, int32(300))) // out of range, ignored
	send(osc.NewMessage("/other", "x"))

	waitFor(t, "two triggers", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	var preset, note bool
	for _, tr := range got {
		if tr.Name == "intro" && tr.Source == "osc" {
			preset = true
		}
		if tr.Name == "" && tr.Note == 48 {
			note = true
		}
	}
	if !preset || !note {
		t.Errorf("triggers = %+v", got)
	}
}

func TestOSCSource_ServeWithoutListen(t *testing.T) {
	src := NewOSCSource(func(Trigger) bool { return true }, logger.Nop())
	if err := src.Serve(context.Background()); err == nil {
		t.Error("Serve() before Listen() succeeded")
	}
}
