package mcpwire_test

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/mcpwire/mcpwire"
)

func TestCursorRoundTrip(t *testing.T) {
	encoded := mcpwire.EncodeCursor(25, 25, 500)

	cursor, err := mcpwire.DecodeCursor(encoded)
	if err != nil {
		t.Fatalf("failed to decode cursor: %v", err)
	}
	if cursor.Offset != 25 {
		t.Errorf("expected offset 25, got %d", cursor.Offset)
	}
	if cursor.Limit != 25 {
		t.Errorf("expected limit 25, got %d", cursor.Limit)
	}
	if cursor.Total != 500 {
		t.Errorf("expected total 500, got %d", cursor.Total)
	}
}

func TestCursorIsOpaqueBase64(t *testing.T) {
	encoded := mcpwire.EncodeCursor(0, 50, 100)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("cursor is not valid base64: %v", err)
	}
	if !strings.Contains(string(decoded), `"version":"1.0"`) {
		t.Errorf("expected version field in cursor payload, got %s", decoded)
	}
}

func TestDecodeCursorInvalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{
			name:   "empty string",
			cursor: "",
		},
		{
			name:   "not base64",
			cursor: "not-base64!!",
		},
		{
			name:   "base64 but not json",
			cursor: base64.StdEncoding.EncodeToString([]byte("hello")),
		},
		{
			name:   "missing fields",
			cursor: base64.StdEncoding.EncodeToString([]byte(`{"offset":10}`)),
		},
		{
			name:   "wrong version",
			cursor: base64.StdEncoding.EncodeToString([]byte(`{"offset":0,"limit":10,"total":50,"version":"2.0"}`)),
		},
		{
			name:   "negative offset",
			cursor: base64.StdEncoding.EncodeToString([]byte(`{"offset":-1,"limit":10,"total":50,"version":"1.0"}`)),
		},
		{
			name:   "zero limit",
			cursor: base64.StdEncoding.EncodeToString([]byte(`{"offset":0,"limit":0,"total":50,"version":"1.0"}`)),
		},
		{
			name:   "negative total",
			cursor: base64.StdEncoding.EncodeToString([]byte(`{"offset":0,"limit":10,"total":-5,"version":"1.0"}`)),
		},
		{
			name:   "oversized",
			cursor: strings.Repeat("A", 2048),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mcpwire.DecodeCursor(tt.cursor)
			if !errors.Is(err, mcpwire.ErrInvalidCursor) {
				t.Fatalf("expected ErrInvalidCursor, got %v", err)
			}
		})
	}
}
