package model

import "fmt"

// Caller errors: rejected synchronously, no journal write.
type (
	// MethodNotApplicableError means the method does not apply to the
	// subject's class.
	MethodNotApplicableError struct {
		Method VerificationMethod
		Class  SubjectClass
	}

	// AlreadyActiveError means a protocol run for the method is already
	// in flight for the subject.
	AlreadyActiveError struct {
		Method VerificationMethod
	}

	// AlreadyMaxedError means the method already has MaxMultiplier live
	// completions.
	AlreadyMaxedError struct {
		Method VerificationMethod
	}

	// NothingToRevokeError means Revoke was called for a method with no
	// live completion and no active run.
	NothingToRevokeError struct {
		Method VerificationMethod
	}

	// ActorNotAuthorizedError means the actor issuing a command is not
	// permitted to perform it.
	ActorNotAuthorizedError struct {
		ActorID string
		Reason  string
	}
)

func (e MethodNotApplicableError) Error() string {
	return fmt.Sprintf("method %q is not applicable to subject class %q", e.Method, e.Class)
}

func (e AlreadyActiveError) Error() string {
	return fmt.Sprintf("method %q already has an active protocol run", e.Method)
}

func (e AlreadyMaxedError) Error() string {
	return fmt.Sprintf("method %q is already at its maximum multiplier", e.Method)
}

func (e NothingToRevokeError) Error() string {
	return fmt.Sprintf("method %q has nothing to revoke", e.Method)
}

func (e ActorNotAuthorizedError) Error() string {
	return fmt.Sprintf("actor %q not authorized: %s", e.ActorID, e.Reason)
}

// DenialReason is the closed set of verifier-authorization denial codes.
type DenialReason string

const (
	DenialNotAVerifier           DenialReason = "not_a_verifier"
	DenialBelowMinimumLevel      DenialReason = "below_minimum_level"
	DenialRevoked                DenialReason = "revoked"
	DenialCredentialExpired      DenialReason = "credential_expired"
	DenialMethodNotSupported     DenialReason = "method_not_supported"
	DenialPendingAuthorization   DenialReason = "pending_authorization" // a supplemental feature
)

// VerifierDeniedError is the caller-facing shape of an authz Denial.
type VerifierDeniedError struct {
	VerifierID string
	Reason     DenialReason
}

func (e VerifierDeniedError) Error() string {
	return fmt.Sprintf("verifier %q denied: %s", e.VerifierID, e.Reason)
}

// Infrastructure errors: retried internally; surfaced only when retries
// are exhausted.
type (
	// ConflictError signals an optimistic-concurrency mismatch on append.
	ConflictError struct {
		SubjectID   string
		ExpectedSeq int64
		ActualSeq   int64
	}

	// StorageError wraps a retryable storage failure.
	StorageError struct {
		Op  string
		Err error
	}

	// TemporarilyUnavailableError is surfaced to the caller once retries
	// are exhausted.
	TemporarilyUnavailableError struct {
		Op string
	}
)

func (e ConflictError) Error() string {
	return fmt.Sprintf("append conflict for subject %q: expected seq %d, have %d", e.SubjectID, e.ExpectedSeq, e.ActualSeq)
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }

func (e TemporarilyUnavailableError) Error() string {
	return fmt.Sprintf("%s temporarily unavailable, retry", e.Op)
}

// Token store errors.
type (
	TokenUnknownError struct{ Token string }
	TokenExpiredError struct{ Token string }
)

func (e TokenUnknownError) Error() string { return fmt.Sprintf("token %q unknown", redact(e.Token)) }
func (e TokenExpiredError) Error() string { return fmt.Sprintf("token %q expired", redact(e.Token)) }

func redact(tok string) string {
	if len(tok) <= 8 {
		return tok
	}
	return tok[:8] + "…"
}
