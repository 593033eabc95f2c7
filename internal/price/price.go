// Package price normalizes locale-formatted price text.
package price

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmpty is returned by Parse when no numeric characters remain.
var ErrEmpty = errors.New("no numeric characters")

// Sanitize keeps ASCII digits, '.' and ',' in order and maps ',' to '.'.
// Multiple separators are left in place; Parse rejects them.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case ch >= '0' && ch <= '9', ch == '.':
			b.WriteByte(ch)
		case ch == ',':
			b.WriteByte('.')
		}
	}
	return b.String()
}

// Parse sanitizes raw and parses it as a float64.
func Parse(raw string) (float64, error) {
	s := Sanitize(raw)
	if s == "" {
		return 0, fmt.Errorf("parse price %q: %w", raw, ErrEmpty)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return v, nil
}
