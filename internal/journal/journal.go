package journal

import (
	"context"

	"verifyengine/internal/model"
)

// Store is the event log and snapshot cache contract of 
// Implementations must provide read-your-write within a subject and
// durability once Append returns; cross-subject ordering is not
// required.
type Store interface {
	// Append writes an event for subjectID, assigning the next
	// sequence number. If expectedLastSeq >= 0, the append fails with
	// model.ConflictError when the subject's current last seq does not
	// match (optimistic concurrency).
	Append(ctx context.Context, subjectID string, class model.SubjectClass, event model.VerificationEvent, expectedLastSeq int64) (int64, error)

	// ReadJournal returns events for subjectID with seq > fromSeq,
	// ordered ascending.
	ReadJournal(ctx context.Context, subjectID string, fromSeq int64) ([]model.VerificationEvent, error)

	// Snapshot returns the cached snapshot for subjectID, rebuilding by
	// folding the journal if stale or missing.
	Snapshot(ctx context.Context, subjectID string, class model.SubjectClass) (model.SubjectSnapshot, error)

	// Invalidate marks the cached snapshot for subjectID stale.
	Invalidate(subjectID string)
}
