package mcpwire_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mcpwire/mcpwire"
)

func TestEncodeMessage(t *testing.T) {
	msg := mcpwire.JSONRPCMessage{
		JSONRPC: mcpwire.JSONRPCVersion,
		ID:      mcpwire.MustString("1"),
		Method:  mcpwire.MethodResourcesList,
		Params:  json.RawMessage(`{"cursor":""}`),
	}

	line, err := mcpwire.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("failed to encode message: %v", err)
	}
	if !bytes.HasSuffix(line, []byte("\n")) {
		t.Error("expected encoded message to end with newline")
	}
	if bytes.Count(line, []byte("\n")) != 1 {
		t.Errorf("expected exactly one newline, got %d", bytes.Count(line, []byte("\n")))
	}

	decoded, err := mcpwire.DecodeMessage(line)
	if err != nil {
		t.Fatalf("failed to decode encoded message: %v", err)
	}
	if decoded.Method != msg.Method {
		t.Errorf("expected method %s, got %s", msg.Method, decoded.Method)
	}
	if decoded.ID != msg.ID {
		t.Errorf("expected ID %s, got %s", msg.ID, decoded.ID)
	}
}

func TestEncodeMessageEscapesPayloadNewlines(t *testing.T) {
	msg := mcpwire.JSONRPCMessage{
		JSONRPC: mcpwire.JSONRPCVersion,
		ID:      mcpwire.MustString("1"),
		Method:  "test",
		Params:  json.RawMessage("{\"text\":\"line one\\nline two\"}"),
	}

	// JSON escapes the newline inside the string value, so this must succeed and
	// still produce a single-line frame.
	line, err := mcpwire.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("failed to encode message: %v", err)
	}
	if bytes.Count(line, []byte("\n")) != 1 {
		t.Error("expected payload newline to be escaped in the frame")
	}
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{
			name: "valid request",
			line: `{"jsonrpc":"2.0","id":"1","method":"resources/list"}`,
		},
		{
			name: "valid response with numeric id",
			line: `{"jsonrpc":"2.0","id":42,"result":{}}`,
		},
		{
			name: "trailing whitespace tolerated",
			line: `{"jsonrpc":"2.0","id":"1","method":"ping"}` + " \t\r",
		},
		{
			name:    "empty line",
			line:    "",
			wantErr: mcpwire.ErrEmptyMessage,
		},
		{
			name:    "whitespace only",
			line:    "   \t",
			wantErr: mcpwire.ErrEmptyMessage,
		},
		{
			name:    "malformed json",
			line:    `{"jsonrpc":"2.0",`,
			wantErr: mcpwire.ErrParse,
		},
		{
			name:    "not json at all",
			line:    "hello world",
			wantErr: mcpwire.ErrParse,
		},
		{
			name:    "missing version",
			line:    `{"id":"1","method":"ping"}`,
			wantErr: mcpwire.ErrParse,
		},
		{
			name:    "wrong version",
			line:    `{"jsonrpc":"1.0","id":"1","method":"ping"}`,
			wantErr: mcpwire.ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mcpwire.DecodeMessage([]byte(tt.line))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
