package ports

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"gastos/internal/core"
)

// EncodeCursor wraps a row offset into an opaque continuation token.
func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte("o:" + strconv.Itoa(offset)))
}

// DecodeCursor reverses EncodeCursor; the empty cursor is the first page.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || len(raw) < 3 || string(raw[:2]) != "o:" {
		return 0, fmt.Errorf("%w: malformed cursor", core.ErrInvalidInput)
	}
	n, err := strconv.Atoi(string(raw[2:]))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: malformed cursor", core.ErrInvalidInput)
	}
	return n, nil
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}
