// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/logger"
)

// ============================================================
// Event and simple sinks
// ============================================================

func TestFormatEvent(t *testing.T) {
	e := Event{
		Time:    time.Date(2025, 3, 2, 10, 15, 30, 0, time.UTC),
		Kind:    KindCommand,
		Device:  "kramer",
		Preset:  "C3",
		Command: "Route (layer=1 dest=1 src=3)",
		Status:  "success",
		Detail:  "layer = 1\n  src = 3",
	}
	got := FormatEvent(e)
	want := "10:15:30.000 command [kramer] preset=C3 Route (layer=1 dest=1 src=3) -> success: layer = 1 |   src = 3"
	if got != want {
		t.Errorf("FormatEvent() = %q, want %q", got, want)
	}
}

func TestMulti(t *testing.T) {
	var a, b []Event
	m := NewMulti(
		SinkFunc(func(e Event) { a = append(a, e) }),
		nil,
		SinkFunc(func(e Event) { b = append(b, e) }),
	)

	m.Publish(Event{Kind: KindTrigger})

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("delivered %d/%d, want 1/1", len(a), len(b))
	}
	if a[0].Time.IsZero() {
		t.Error("Multi did not stamp the event time")
	}
}

func TestChan_DropsWhenFull(t *testing.T) {
	c := NewChan(2)
	for i := 0; i < 5; i++ {
		c.Publish(Event{Kind: KindState})
	}
	if len(c.C) != 2 {
		t.Errorf("queued %d, want 2", len(c.C))
	}
	if c.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", c.Dropped())
	}
}

// ============================================================
// MQTT
// ============================================================

type doneToken struct {
	err  error
	done chan struct{}
}

func newDoneToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records publishes; the embedded interface covers the rest
type fakeClient struct {
	mqtt.Client
	mu   sync.Mutex
	pubs []published
	err  error
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, published{topic, qos, payload.([]byte)})
	return newDoneToken(f.err)
}

func (f *fakeClient) IsConnected() bool { return false }

func TestMQTTSink_Publish(t *testing.T) {
	client := &fakeClient{}
	sink := NewMQTTSink(context.Background(), client, "church/av/", 1, logger.Nop())

	sink.Publish(Event{Kind: KindPreset, Preset: "C3", Status: "success"})

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.pubs) != 1 {
		t.Fatalf("published %d messages, want 1", len(client.pubs))
	}
	p := client.pubs[0]
	if p.topic != "church/av/preset" {
		t.Errorf("topic = %q, want church/av/preset", p.topic)
	}
	if p.qos != 1 {
		t.Errorf("qos = %d, want 1", p.qos)
	}

	var got Event
	if err := json.Unmarshal(p.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.Preset != "C3" || got.Kind != KindPreset {
		t.Errorf("payload = %+v", got)
	}
}

func TestMQTTSink_PublishErrorIsLogged(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	sink := NewMQTTSink(context.Background(), client, "av", 0, logger.Nop())

	// Must not panic or block
	sink.Publish(Event{Kind: KindError})
	sink.Stop()
}

// ============================================================
// WebSocket hub
// ============================================================

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(logger.Nop())
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Clients() != 1 {
		t.Fatalf("Clients() = %d, want 1", hub.Clients())
	}

	hub.Publish(Event{Kind: KindTrigger, Detail: "C3"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if mt != websocket.TextMessage {
		t.Errorf("message type = %d, want text", mt)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("bad JSON %q: %v", data, err)
	}
	if got.Kind != KindTrigger || got.Detail != "C3" {
		t.Errorf("received %+v", got)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Clients() != 0 {
		t.Errorf("Clients() after close = %d, want 0", hub.Clients())
	}
}
