package types

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// maxHeaderKeyLen bounds client-supplied correlation and idempotency keys.
const maxHeaderKeyLen = 128

// ErrInvalidIdempotencyKey is returned for keys that are too long or not printable ASCII.
var ErrInvalidIdempotencyKey = errors.New("idempotency key must be at most 128 printable ASCII characters")

// CorrelationID ties together the log lines of one request or job run.
type CorrelationID string

func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// CorrelationIDFromHeader keeps a usable client-supplied ID and mints a new
// one for anything empty, oversized or non-printable.
func CorrelationIDFromHeader(raw string) CorrelationID {
	raw = strings.TrimSpace(raw)
	if !validHeaderKey(raw) {
		return NewCorrelationID()
	}
	return CorrelationID(raw)
}

func (c CorrelationID) String() string { return string(c) }

// IdempotencyKey identifies retries of the same purchase or refund. The zero
// value means the caller did not ask for idempotency.
type IdempotencyKey string

// ParseIdempotencyKey trims raw and validates it. An empty header yields the zero key.
func ParseIdempotencyKey(raw string) (IdempotencyKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if !validHeaderKey(raw) {
		return "", ErrInvalidIdempotencyKey
	}
	return IdempotencyKey(raw), nil
}

func (k IdempotencyKey) String() string { return string(k) }

func validHeaderKey(s string) bool {
	if s == "" || len(s) > maxHeaderKeyLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
