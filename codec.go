package mcpwire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeMessage serializes a message to a single line of UTF-8 text terminated by one
// newline, ready for transmission. The encoded form never contains an embedded newline;
// exactly one message per line is the framing invariant the rest of the system depends on.
func EncodeMessage(msg JSONRPCMessage) ([]byte, error) {
	msg.JSONRPC = JSONRPCVersion

	msgBs, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	if bytes.ContainsRune(msgBs, '\n') {
		return nil, fmt.Errorf("message contains embedded newline")
	}

	// Append newline to maintain message framing protocol
	return append(msgBs, '\n'), nil
}

// DecodeMessage parses a single received line into a message. Trailing whitespace,
// including the line terminator, is tolerated. An empty line fails with ErrEmptyMessage;
// malformed JSON or a missing protocol-version discriminator fails with ErrParse.
func DecodeMessage(line []byte) (JSONRPCMessage, error) {
	line = bytes.TrimRight(line, " \t\r\n")
	if len(line) == 0 {
		return JSONRPCMessage{}, ErrEmptyMessage
	}

	var msg JSONRPCMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return JSONRPCMessage{}, fmt.Errorf("%w: %s", ErrParse, err)
	}

	if msg.JSONRPC != JSONRPCVersion {
		return JSONRPCMessage{}, fmt.Errorf("%w: invalid jsonrpc version %q", ErrParse, msg.JSONRPC)
	}

	return msg, nil
}
