package ioutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseBody bounds how much of an upstream response is decoded
const MaxResponseBody = 4 << 20

// ReadLimited reads up to limit bytes from r for error messages and logs.
// A read failure is described in the result instead of being dropped.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return string(body)
}

// DecodeJSON decodes at most limit bytes of r into v. A body cut off by
// the limit fails to decode rather than decoding partially.
func DecodeJSON(r io.Reader, limit int64, v any) error {
	if err := json.NewDecoder(io.LimitReader(r, limit)).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
