package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestConnReadBlock(t *testing.T) {
	client, server := net.Pipe()
	conn := NewConn(client, DefaultConfig())
	defer conn.Close()

	go func() {
		server.Write([]byte("Event: Newchannel\r\nChannel: PJSIP/1001-00000001\r\n\r\n"))
		server.Close()
	}()

	lines, err := conn.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if len(lines) != 2 || lines[0] != "Event: Newchannel" {
		t.Errorf("lines = %v", lines)
	}

	if _, err := conn.ReadBlock(); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("after peer close err = %v, want ErrConnectionClosed", err)
	}
}

func TestConnSend(t *testing.T) {
	client, server := net.Pipe()
	conn := NewConn(client, DefaultConfig())
	defer conn.Close()

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := server.Read(buf)
		received <- buf[:n]
	}()

	frame := []byte("Action: Ping\r\nActionID: 42\r\n\r\n")
	if err := conn.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(frame) {
			t.Errorf("peer received %q, want %q", got, frame)
		}
	case <-time.After(time.Second):
		t.Fatal("peer never received the frame")
	}
}

func TestConnClose(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conn := NewConn(client, DefaultConfig())

	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case <-conn.Done():
	default:
		t.Error("Done not closed after Close")
	}

	if err := conn.Send([]byte("Action: Ping\r\n\r\n")); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Send after close err = %v, want ErrConnectionClosed", err)
	}
	if _, err := conn.ReadBlock(); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("ReadBlock after close err = %v, want ErrConnectionClosed", err)
	}
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			received <- ""
			return
		}
		defer c.Close()
		c.Write([]byte("Asterisk Call Manager/5.0.2\r\n"))
		c.Write([]byte("Response: Success\r\nActionID: 1\r\n\r\n"))
		buf := make([]byte, 256)
		n, _ := c.Read(buf)
		received <- string(buf[:n])
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, ln.Addr().String(), DefaultConfig())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	banner, err := conn.ReadBanner()
	if err != nil {
		t.Fatalf("ReadBanner: %v", err)
	}
	if banner != "Asterisk Call Manager/5.0.2" {
		t.Errorf("banner = %q", banner)
	}

	lines, err := conn.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if len(lines) != 2 || lines[0] != "Response: Success" {
		t.Errorf("lines = %v", lines)
	}

	if err := conn.Send([]byte("Action: Logoff\r\n\r\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case got := <-received:
		if got != "Action: Logoff\r\n\r\n" {
			t.Errorf("server received %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("server never received the action")
	}
}
