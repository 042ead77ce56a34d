// Package tokenstore implements the QR token store collaborator:
// a key-value store keyed by opaque 256-bit tokens with
// atomic put-if-absent, get, and invalidate, used by the two-party
// in-person saga.
package tokenstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Binding is the payload bound to an issued QR token.
type Binding struct {
	SubjectID     string
	ProtocolRunID string
	Slot          int // 1 or 2
	IssuedAt      time.Time
}

// Store is the token store contract. PutIfAbsent is the only mutation
// that creates a binding; Invalidate is the saga's compensation
// primitive.
type Store interface {
	// PutIfAbsent atomically creates the token→binding mapping unless
	// one already exists, returning false without error if the token
	// was already present (idempotent issuance).
	PutIfAbsent(ctx context.Context, token string, b Binding, ttl time.Duration) (created bool, err error)
	Get(ctx context.Context, token string) (Binding, bool, error)
	Invalidate(ctx context.Context, token string) error
}

// NewToken generates a cryptographically independent 256-bit opaque
// token, hex-encoded.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
