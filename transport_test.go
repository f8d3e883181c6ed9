package mcpwire_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mcpwire/mcpwire"
)

func pipePair() (*mcpwire.PipeTransport, *mcpwire.PipeTransport) {
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	client := mcpwire.NewPipeTransport(clientReader, clientWriter)
	server := mcpwire.NewPipeTransport(serverReader, serverWriter)
	return client, server
}

func TestPipeTransportBidirectionalFlow(t *testing.T) {
	client, server := pipePair()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		line, err := server.ReceiveLine(ctx)
		if err != nil {
			return
		}
		_ = server.SendLine(ctx, "echo: "+line)
	}()

	if err := client.SendLine(ctx, `{"jsonrpc":"2.0","method":"ping"}`); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	line, err := client.ReceiveLine(ctx)
	if err != nil {
		t.Fatalf("failed to receive: %v", err)
	}
	if line != `echo: {"jsonrpc":"2.0","method":"ping"}` {
		t.Errorf("unexpected line: %s", line)
	}
}

func TestPipeTransportSendRejectsEmbeddedNewline(t *testing.T) {
	client, server := pipePair()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.SendLine(ctx, "one\ntwo"); err == nil {
		t.Fatal("expected error for embedded newline")
	}
}

func TestPipeTransportReadTimeoutKeepsStreamUsable(t *testing.T) {
	client, server := pipePair()
	defer client.Close()
	defer server.Close()

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()

	_, err := client.ReceiveLine(shortCtx)
	if !errors.Is(err, mcpwire.ErrReadTimeout) {
		t.Fatalf("expected ErrReadTimeout, got %v", err)
	}

	// The stream must survive a deadline; the next receive sees the line.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		_ = server.SendLine(ctx, "late line")
	}()

	line, err := client.ReceiveLine(ctx)
	if err != nil {
		t.Fatalf("failed to receive after timeout: %v", err)
	}
	if line != "late line" {
		t.Errorf("unexpected line: %s", line)
	}
}

func TestPipeTransportEOFOnPeerClose(t *testing.T) {
	client, server := pipePair()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server.Close()

	_, err := client.ReceiveLine(ctx)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestPipeTransportCloseUnblocksReceive(t *testing.T) {
	client, server := pipePair()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan error, 1)
	go func() {
		_, err := client.ReceiveLine(ctx)
		received <- err
	}()

	time.Sleep(50 * time.Millisecond)
	client.Close()

	select {
	case err := <-received:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not unblock on close")
	}
}

func TestPipeTransportLargeLine(t *testing.T) {
	client, server := pipePair()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Larger than bufio.Scanner's default token limit; the transport must not
	// truncate or fail.
	payload := strings.Repeat("x", 128*1024)

	go func() {
		_ = server.SendLine(ctx, payload)
	}()

	line, err := client.ReceiveLine(ctx)
	if err != nil {
		t.Fatalf("failed to receive large line: %v", err)
	}
	if len(line) != len(payload) {
		t.Errorf("expected %d bytes, got %d", len(payload), len(line))
	}
}
