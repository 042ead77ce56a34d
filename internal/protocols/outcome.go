// Package protocols implements the child verification protocols:
// one Temporal child workflow per method family, each a
// self-contained finite state machine with its own timeouts, signals,
// and (for the two-party saga) compensation.
package protocols

import "verifyengine/internal/model"

// Outcome is the terminal result every protocol workflow returns to
// its parent orchestrator. Exactly one of Completed or the failure
// fields is meaningful.
type Outcome struct {
	Completed     bool
	EvidenceRef   []byte
	FailureReason string
}

// Failure reasons surfaced in Outcome.FailureReason.
const (
	FailureExhausted            = "exhausted"
	FailureExpired              = "expired"
	FailureTimeout              = "timeout"
	FailureUnauthorizedVerifier = "unauthorized_verifier"
	// FailureCompensationIncomplete is model.FailureReasonCompensationIncomplete
	// by another name: the orchestrator's fold matches on that exact
	// string to decide whether a failed method stays queryable as
	// "stuck" in ActiveProtocols, so the two must never diverge.
	FailureCompensationIncomplete = model.FailureReasonCompensationIncomplete
	FailureRejected               = "rejected"
	FailureCancelled              = "cancelled"
)

// Signal names accepted by the protocol workflows, forwarded by the
// per-subject orchestrator.
const (
	SignalCodeEntered          = "code_entered"
	SignalVerifierConfirmation = "verifier_confirmation"
	SignalReviewDecision       = "review_decision"
	SignalAttestation          = "attestation"
	SignalCancel               = "cancel"
)

// CodeChallengeParams starts the Code-Challenge protocol.
type CodeChallengeParams struct {
	SubjectID     string
	Method        model.VerificationMethod
	Target        string // email address or phone number
	CodeTTL       int64  // seconds; 0 selects the default (30 minutes)
	MaxAttempts   int    // 0 selects the default (5)
}

// CodeEnteredSignal carries the caller's guess at the delivered code.
type CodeEnteredSignal struct {
	Code string
}

// TwoPartyParams starts the Two-Party In-Person Saga.
type TwoPartyParams struct {
	SubjectID     string
	ProtocolRunID string
	TokenTTLHours int64 // 0 selects the default (72h)
}

// VerifierConfirmationSignal is the in-person confirmation a verifier
// submits via their issued QR token.
type VerifierConfirmationSignal struct {
	Token      string
	VerifierID string
	Evidence   map[string]any
}

// HumanReviewParams starts the Human-Review protocol.
type HumanReviewParams struct {
	SubjectID    string
	Method       model.VerificationMethod
	DocumentRef  []byte
	DeadlineDays int64 // 0 selects the default (30 days)
}

// ReviewDecisionSignal carries the human reviewer's verdict.
type ReviewDecisionSignal struct {
	Approved bool
	Reason   string
}

// AttestationParams starts the Attestation/Reference Intake protocol.
type AttestationParams struct {
	SubjectID     string
	Method        model.VerificationMethod
	SequenceIndex int
}

// AttestationSignal carries the attestor's statement.
type AttestationSignal struct {
	AttestorSubjectID string
	Text              string
}
