package model

import "time"

// EventKind enumerates the journal's closed set of event kinds.
type EventKind string

const (
	EventMethodStarted              EventKind = "method_started"
	EventMethodCompleted            EventKind = "method_completed"
	EventMethodFailed               EventKind = "method_failed"
	EventMethodRevoked              EventKind = "method_revoked"
	EventMethodExpired              EventKind = "method_expired"
	EventLevelChanged               EventKind = "level_changed"
	EventVerifierConfirmed          EventKind = "verifier_confirmed"
	EventVerifierConfirmationRevoked EventKind = "verifier_confirmation_revoked"
	EventAttestationReceived        EventKind = "attestation_received"
	EventSnapshotRebuilt            EventKind = "snapshot_rebuilt"
)

// VerificationEvent is one append-only journal element. seq is
// monotonic and gap-free per subject.
type VerificationEvent struct {
	Seq           int64
	At            time.Time
	Kind          EventKind
	Method        VerificationMethod
	ActorSubject  string
	Data          map[string]any
	ProtocolRunID string
	CommandID     string
}
