// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package visca

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/transport"
)

func TestPower(t *testing.T) {
	tests := []struct {
		name    string
		addr    int
		on      bool
		want    []byte
		wantErr bool
	}{
		{"on cam 1", 1, true, []byte{0x81, 0x01, 0x04, 0x00, 0x02, 0xFF}, false},
		{"off cam 1", 1, false, []byte{0x81, 0x01, 0x04, 0x00, 0x03, 0xFF}, false},
		{"on cam 7", 7, true, []byte{0x87, 0x01, 0x04, 0x00, 0x02, 0xFF}, false},
		{"address 0", 0, true, nil, true},
		{"address 8", 8, true, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Power(tt.addr, tt.on)
			if tt.wantErr {
				if !errors.Is(err, ErrAddress) {
					t.Errorf("Power() error = %v, want ErrAddress", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Power() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Power() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    Reply
		wantN   int
		wantErr bool
	}{
		{"ack", []byte{0x90, 0x41, 0xFF}, Reply{Kind: ReplyAck, Addr: 1, Socket: 1}, 3, false},
		{"completion", []byte{0x90, 0x51, 0xFF}, Reply{Kind: ReplyCompletion, Addr: 1, Socket: 1}, 3, false},
		{"syntax error", []byte{0x90, 0x60, 0x02, 0xFF}, Reply{Kind: ReplyError, Addr: 1, Code: 0x02}, 4, false},
		{"not executable cam 2", []byte{0xA0, 0x61, 0x41, 0xFF}, Reply{Kind: ReplyError, Addr: 2, Socket: 1, Code: 0x41}, 4, false},
		{"ack cam 7", []byte{0xF0, 0x42, 0xFF}, Reply{Kind: ReplyAck, Addr: 7, Socket: 2}, 3, false},
		{"low nibble set", []byte{0x91, 0x41, 0xFF}, Reply{}, 3, true},
		{"no terminator", []byte{0x90, 0x41}, Reply{}, 0, true},
		{"not a reply", []byte{0x81, 0x01, 0xFF}, Reply{}, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := ParseReply(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrBadReply) {
					t.Errorf("ParseReply() error = %v, want ErrBadReply", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseReply() error = %v", err)
			}
			if got != tt.want || n != tt.wantN {
				t.Errorf("ParseReply() = %+v, %d; want %+v, %d", got, n, tt.want, tt.wantN)
			}
		})
	}
}

func TestParseReplies(t *testing.T) {
	got, err := ParseReplies([]byte{0x90, 0x41, 0xFF, 0x90, 0x51, 0xFF})
	if err != nil {
		t.Fatalf("ParseReplies() error = %v", err)
	}
	if len(got) != 2 || got[0].Kind != ReplyAck || got[1].Kind != ReplyCompletion {
		t.Errorf("ParseReplies() = %+v, want ack then completion", got)
	}

	if !errors.Is((Reply{Kind: ReplyError, Addr: 1, Code: 0x41}).Err(), ErrCamera) {
		t.Error("error reply Err() is not ErrCamera")
	}
}

func TestParseReplies_SkipsGarbage(t *testing.T) {
	got, err := ParseReplies([]byte{0x12, 0x34, 0xFF, 0xB0, 0x51, 0xFF, 0x90})
	if !errors.Is(err, ErrBadReply) {
		t.Errorf("ParseReplies() error = %v, want ErrBadReply", err)
	}
	if len(got) != 1 || got[0] != (Reply{Kind: ReplyCompletion, Addr: 3, Socket: 1}) {
		t.Errorf("ParseReplies() = %+v, want one completion from camera 3", got)
	}
}

// fakeChain answers the next command on an RS-232 style link with reply,
// split into the given writes
func fakeChain(t *testing.T, writes ...[]byte) (*transport.Conn, <-chan []byte) {
	t.Helper()

	client, camera := net.Pipe()
	conn := transport.NewConn(client)
	t.Cleanup(func() {
		conn.Close()
		camera.Close()
	})

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 6)
		if _, err := io.ReadFull(camera, buf); err != nil {
			return
		}
		got <- buf
		for i, w := range writes {
			if i > 0 {
				time.Sleep(20 * time.Millisecond)
			}
			if _, err := camera.Write(w); err != nil {
				return
			}
		}
	}()
	return conn, got
}

func TestPowerSerial(t *testing.T) {
	tests := []struct {
		name      string
		addr      int
		writes    [][]byte
		wantErr   error
		wantAddrs []int
	}{
		{
			name:      "ack and completion",
			addr:      1,
			writes:    [][]byte{{0x90, 0x41, 0xFF, 0x90, 0x51, 0xFF}},
			wantAddrs: []int{1, 1},
		},
		{
			name:      "error from camera 2 on the chain",
			addr:      2,
			writes:    [][]byte{{0xA0, 0x41, 0xFF, 0xA0, 0x61, 0x41, 0xFF}},
			wantErr:   ErrCamera,
			wantAddrs: []int{2, 2},
		},
		{
			name:      "reply split across reads",
			addr:      3,
			writes:    [][]byte{{0xB0, 0x41}, {0xFF}},
			wantAddrs: []int{3},
		},
		{
			name:    "garbage reply",
			addr:    1,
			writes:  [][]byte{{0x01, 0x02, 0xFF}},
			wantErr: ErrBadReply,
		},
		{
			name: "silent camera",
			addr: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, sent := fakeChain(t, tt.writes...)

			replies, err := PowerSerial(conn, tt.addr, true, 200*time.Millisecond)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("PowerSerial() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("PowerSerial() error = %v", err)
			}

			if len(replies) != len(tt.wantAddrs) {
				t.Fatalf("PowerSerial() = %+v, want %d replies", replies, len(tt.wantAddrs))
			}
			for i, r := range replies {
				if r.Addr != tt.wantAddrs[i] {
					t.Errorf("replies[%d].Addr = %d, want %d", i, r.Addr, tt.wantAddrs[i])
				}
			}

			want, _ := Power(tt.addr, true)
			select {
			case b := <-sent:
				if !bytes.Equal(b, want) {
					t.Errorf("chain received % X, want % X", b, want)
				}
			case <-time.After(time.Second):
				t.Error("chain received nothing")
			}
		})
	}
}

// fakeCamera accepts one connection, records the command and answers with reply
func fakeCamera(t *testing.T, reply []byte) (Camera, <-chan []byte) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	got := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 6)
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _ := c.Read(buf)
		got <- buf[:n]
		if reply != nil {
			c.Write(reply)
		}
		time.Sleep(100 * time.Millisecond)
	}()

	return Camera{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}, got
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestController_PowerAll(t *testing.T) {
	cam1, got1 := fakeCamera(t, []byte{0x90, 0x41, 0xFF, 0x90, 0x51, 0xFF})
	dead := Camera{Host: "127.0.0.1", Port: closedPort(t)}
	cam3, got3 := fakeCamera(t, nil)

	c := NewController([]Camera{cam1, dead, cam3}, nil)
	c.Between = 10 * time.Millisecond

	results := c.PowerAll(context.Background(), true)
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}

	if !results[0].OK() || len(results[0].Replies) != 2 {
		t.Errorf("camera 1 result = %+v, want ok with 2 replies", results[0])
	}
	if results[1].OK() {
		t.Error("unreachable camera reported ok")
	}
	if !results[2].OK() {
		t.Errorf("silent camera result = %v, want ok", results[2].Err)
	}

	want := []byte{0x81, 0x01, 0x04, 0x00, 0x02, 0xFF}
	for i, ch := range []<-chan []byte{got1, got3} {
		select {
		case b := <-ch:
			if !bytes.Equal(b, want) {
				t.Errorf("camera %d received % X, want % X", i, b, want)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("camera %d received nothing", i)
		}
	}
}

func TestController_PowerAll_ErrorReply(t *testing.T) {
	cam, _ := fakeCamera(t, []byte{0x90, 0x61, 0x41, 0xFF})
	c := NewController([]Camera{cam}, nil)

	results := c.PowerAll(context.Background(), false)
	if !errors.Is(results[0].Err, ErrCamera) {
		t.Errorf("Err = %v, want ErrCamera", results[0].Err)
	}
}

func TestController_PowerAll_Cancelled(t *testing.T) {
	cam, _ := fakeCamera(t, nil)
	c := NewController([]Camera{cam, {Host: "127.0.0.1", Port: 1}}, nil)
	c.Between = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	results := c.PowerAll(ctx, true)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if !errors.Is(results[1].Err, context.Canceled) {
		t.Errorf("second camera Err = %v, want context.Canceled", results[1].Err)
	}
}
