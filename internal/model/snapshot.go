package model

import "time"

// ProtocolState is the child protocol's finite state set.
type ProtocolState string

const (
	ProtocolPending      ProtocolState = "pending"
	ProtocolWaiting      ProtocolState = "waiting"
	ProtocolAwaitingReview ProtocolState = "awaiting_review"
	ProtocolCompleted    ProtocolState = "completed"
	ProtocolFailed       ProtocolState = "failed"
	ProtocolCancelled    ProtocolState = "cancelled"
	ProtocolCompensating ProtocolState = "compensating"
)

// ProtocolRun tracks one execution of a child verification protocol.
type ProtocolRun struct {
	ID        string
	Method    VerificationMethod
	State     ProtocolState
	StartedAt time.Time
	Deadline  time.Time
	Params    map[string]any

	// FailureReason is populated only for State == ProtocolFailed where
	// the failure is a stuck saga compensation
	// (FailureReasonCompensationIncomplete): the run is retained here
	// instead of being cleared from ActiveProtocols, so it stays
	// queryable as the "method not completed" state it actually is.
	FailureReason string
}

// FailureReasonCompensationIncomplete marks a method_failed event whose
// saga compensation could not complete after exhausting retries. It is
// the one failure reason that leaves the method's ProtocolRun in
// ActiveProtocols rather than clearing it, since the method is stuck
// rather than cleanly resolved.
const FailureReasonCompensationIncomplete = "compensation_incomplete"

// SubjectSnapshot is the derived, cached view of a subject's
// verification state: it must always equal the fold of the journal
// through the scoring model.
type SubjectSnapshot struct {
	SubjectID        string
	Class            SubjectClass
	Score            int
	Level            Level
	Completions      map[VerificationMethod][]MethodCompletion
	ActiveProtocols  map[VerificationMethod]ProtocolRun
	LastSeq          int64
	UpdatedAt        time.Time
}

// NewSnapshot returns an empty snapshot for a newly-seen subject.
func NewSnapshot(subjectID string, class SubjectClass) SubjectSnapshot {
	return SubjectSnapshot{
		SubjectID:       subjectID,
		Class:           class,
		Level:           Unverified,
		Completions:     make(map[VerificationMethod][]MethodCompletion),
		ActiveProtocols: make(map[VerificationMethod]ProtocolRun),
	}
}

// LiveCompletions returns the non-revoked, non-expired completions of a
// method as of now.
func (s SubjectSnapshot) LiveCompletions(m VerificationMethod, now time.Time) []MethodCompletion {
	var out []MethodCompletion
	for _, c := range s.Completions[m] {
		if c.Live(now) {
			out = append(out, c)
		}
	}
	return out
}

// CompletedCounts returns, for every method with at least one live
// completion, the live completion count (the CompletedMethods query,
// ).
func (s SubjectSnapshot) CompletedCounts(now time.Time) map[VerificationMethod]int {
	out := make(map[VerificationMethod]int)
	for m, cs := range s.Completions {
		n := 0
		for _, c := range cs {
			if c.Live(now) {
				n++
			}
		}
		if n > 0 {
			out[m] = n
		}
	}
	return out
}
