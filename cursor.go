package mcpwire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// cursorVersion tags the cursor format so foreign or stale tokens are rejected
// instead of misread.
const cursorVersion = "1.0"

// maxCursorLength bounds accepted cursor strings. Anything longer is garbage.
const maxCursorLength = 1024

// Cursor carries the pagination position between requests. It is self-describing:
// Limit and Total travel alongside Offset so the server holds no cursor state and
// needs no expiry bookkeeping. Callers must treat the encoded form as opaque and
// pass it back verbatim.
type Cursor struct {
	Offset  int    `json:"offset"`
	Limit   int    `json:"limit"`
	Total   int    `json:"total"`
	Version string `json:"version"`
}

// EncodeCursor serializes an offset/limit/total triple, plus the version tag, into an
// opaque transport-safe string. The encoded form carries no structural delimiters of
// the outer protocol.
func EncodeCursor(offset, limit, total int) string {
	c := Cursor{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		Version: cursorVersion,
	}
	// Cursor has no unmarshalable fields, so this cannot fail.
	bs, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(bs)
}

// DecodeCursor reverses EncodeCursor. It fails with ErrInvalidCursor if the string
// cannot be base64-decoded, does not parse as the expected structure, misses required
// fields, or carries values outside the valid range. A decoded cursor always reproduces
// the exact offset/limit/total triple it was encoded from.
func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, fmt.Errorf("%w: empty cursor", ErrInvalidCursor)
	}
	if len(s) > maxCursorLength {
		return Cursor{}, fmt.Errorf("%w: cursor exceeds %d bytes", ErrInvalidCursor, maxCursorLength)
	}

	bs, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %s", ErrInvalidCursor, err)
	}

	// Decode through pointers so absent fields are distinguishable from zero values.
	var raw struct {
		Offset  *int    `json:"offset"`
		Limit   *int    `json:"limit"`
		Total   *int    `json:"total"`
		Version *string `json:"version"`
	}
	if err := json.Unmarshal(bs, &raw); err != nil {
		return Cursor{}, fmt.Errorf("%w: %s", ErrInvalidCursor, err)
	}
	if raw.Offset == nil || raw.Limit == nil || raw.Total == nil || raw.Version == nil {
		return Cursor{}, fmt.Errorf("%w: missing required fields", ErrInvalidCursor)
	}
	if *raw.Version != cursorVersion {
		return Cursor{}, fmt.Errorf("%w: unsupported version %q", ErrInvalidCursor, *raw.Version)
	}
	if *raw.Offset < 0 || *raw.Limit <= 0 || *raw.Total < 0 {
		return Cursor{}, fmt.Errorf("%w: values out of range", ErrInvalidCursor)
	}

	return Cursor{
		Offset:  *raw.Offset,
		Limit:   *raw.Limit,
		Total:   *raw.Total,
		Version: *raw.Version,
	}, nil
}
