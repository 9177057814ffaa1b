// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// loopback starts a one-shot TCP server and returns a Conn dialed to it
// together with the server side of the socket.
func loopback(t *testing.T) (*Conn, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	addr := ln.Addr().(*net.TCPAddr)
	conn, err := Dial(context.Background(), "127.0.0.1", addr.Port, time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	server, ok := <-accepted
	if !ok {
		t.Fatal("server did not accept")
	}
	t.Cleanup(func() { server.Close() })

	return conn, server
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = Dial(context.Background(), "127.0.0.1", port, 500*time.Millisecond)
	if err == nil {
		t.Fatal("Dial() to closed port succeeded")
	}
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Errorf("Dial() error = %T, want *ConnectError", err)
	}
}

func TestDial_NoHost(t *testing.T) {
	_, err := Dial(context.Background(), "", 5000, time.Second)
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Errorf("Dial(\"\") error = %v, want *ConnectError", err)
	}
}

func TestReadLine(t *testing.T) {
	conn, server := loopback(t)

	server.Write([]byte("~01@ROUTE 1,1,3\r\n~01@VMUTE 1,0\r\n"))

	line, err := conn.ReadLine(time.Second)
	if err != nil {
		t.Fatalf("ReadLine() error = %v", err)
	}
	if line != "~01@ROUTE 1,1,3\r\n" {
		t.Errorf("ReadLine() = %q, want %q", line, "~01@ROUTE 1,1,3\r\n")
	}

	line, err = conn.ReadLine(time.Second)
	if err != nil {
		t.Fatalf("second ReadLine() error = %v", err)
	}
	if line != "~01@VMUTE 1,0\r\n" {
		t.Errorf("second ReadLine() = %q", line)
	}
}

func TestReadLine_TimeoutReturnsPartial(t *testing.T) {
	conn, server := loopback(t)

	server.Write([]byte("~01@ROU"))

	line, err := conn.ReadLine(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("ReadLine() error = %v, want nil on timeout", err)
	}
	if line != "~01@ROU" {
		t.Errorf("ReadLine() = %q, want partial %q", line, "~01@ROU")
	}
}

func TestReadLine_TimeoutEmpty(t *testing.T) {
	conn, _ := loopback(t)

	start := time.Now()
	line, err := conn.ReadLine(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("ReadLine() error = %v", err)
	}
	if line != "" {
		t.Errorf("ReadLine() = %q, want empty", line)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("ReadLine() took %v, timeout not honoured", elapsed)
	}
}

func TestReadLine_PeerClosed(t *testing.T) {
	conn, server := loopback(t)
	server.Close()

	_, err := conn.ReadLine(time.Second)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("ReadLine() error = %v, want ErrClosed", err)
	}
}

func TestDrain(t *testing.T) {
	conn, server := loopback(t)

	server.Write([]byte("~01@ROUTE 1,1,2\r\nstale"))
	time.Sleep(50 * time.Millisecond)

	n, err := conn.Drain(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if n != len("~01@ROUTE 1,1,2\r\nstale") {
		t.Errorf("Drain() = %d bytes, want %d", n, len("~01@ROUTE 1,1,2\r\nstale"))
	}

	server.Write([]byte("fresh\n"))
	line, _ := conn.ReadLine(time.Second)
	if line != "fresh\n" {
		t.Errorf("ReadLine() after Drain = %q, want %q", line, "fresh\n")
	}
}

func TestDrain_NothingQueued(t *testing.T) {
	conn, _ := loopback(t)

	n, err := conn.Drain(20 * time.Millisecond)
	if err != nil {
		t.Errorf("Drain() error = %v, want nil", err)
	}
	if n != 0 {
		t.Errorf("Drain() = %d, want 0", n)
	}
}

func TestReceive(t *testing.T) {
	conn, server := loopback(t)
	conn.SetReadTimeout(100 * time.Millisecond)

	data, err := conn.Receive()
	if err != nil || data != nil {
		t.Fatalf("Receive() on idle socket = %v, %v; want nil, nil", data, err)
	}

	server.Write([]byte{0x90, 0x30, 0x7F})
	data, err = conn.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(data) != 3 || data[0] != 0x90 || data[1] != 0x30 || data[2] != 0x7F {
		t.Errorf("Receive() = % X, want 90 30 7F", data)
	}
}

func TestSend(t *testing.T) {
	conn, server := loopback(t)

	if err := conn.Send([]byte("#ROUTE 1,1,3\r")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	buf := make([]byte, 32)
	server.SetReadDeadline(time.Now().Add(time.Second))
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("server Read failed: %v", err)
	}
	if string(buf[:n]) != "#ROUTE 1,1,3\r" {
		t.Errorf("server received %q", buf[:n])
	}
}

func TestClose_Idempotent(t *testing.T) {
	conn, _ := loopback(t)

	if err := conn.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	conn.Close()
	conn.Close()

	if err := conn.Send([]byte("#\r")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close = %v, want ErrClosed", err)
	}
	if _, err := conn.ReadLine(10 * time.Millisecond); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadLine() after Close = %v, want ErrClosed", err)
	}
}
