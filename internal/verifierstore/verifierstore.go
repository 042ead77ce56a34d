// Package verifierstore holds VerifierRecord rows keyed by verifier
// subject id, separate from the per-subject event journal: credentials, authorization status, and the
// successful_confirmations counter incremented by the two-party saga.
package verifierstore

import (
	"context"

	"verifyengine/internal/model"
)

// Store is the verifier-record contract. IncrementConfirmations is the
// only concurrent-write path and must be
// atomic under concurrent two-party saga completions for the same
// verifier.
type Store interface {
	Get(ctx context.Context, subjectID string) (model.VerifierRecord, bool, error)
	Put(ctx context.Context, v model.VerifierRecord) error
	IncrementConfirmations(ctx context.Context, subjectID string, delta int) (int, error)
}
