package orchestrator

import (
	"verifyengine/internal/model"
)

// OrchestratorInput starts (or restarts, across continue-as-new) a
// subject's orchestrator workflow. All durable state is rehydrated
// from the journal, not carried in this input, with one exception:
// Commands. The command-idempotency cache lives only in workflow
// memory (journal events carry no reliable back-pointer to the
// command that produced them, and most rejections never touch the
// journal at all), so it has to ride through continue-as-new in the
// input itself or a command replayed just after a checkpoint would be
// treated as new.
type OrchestratorInput struct {
	SubjectID string
	Class     model.SubjectClass
	Commands  []commandCacheEntry
}

// Signal names the gateway uses to reach a running orchestrator.
const (
	SignalStartMethod     = "start_method"
	SignalCodeEntered     = "code_entered"
	SignalVerifierConfirm = "verifier_confirm"
	SignalCommunityAttest = "community_attest"
	SignalRevoke          = "revoke"
	SignalCancelMethod    = "cancel_method"
)

// Query names the gateway uses for synchronous reads.
const (
	QueryScore            = "score"
	QueryLevel            = "level"
	QueryCompletedMethods = "completed_methods"
	QueryNextLevel        = "next_level"
	QueryMethodStatus     = "method_status"
	QueryCommandResult    = "command_result"
)

// StartMethodCommand is the StartMethod signal.
type StartMethodCommand struct {
	CommandID string
	Method    model.VerificationMethod
	Params    map[string]any
}

// StartMethodResult is returned by the StartMethod query-after-signal
// idiom: the gateway signals, then queries command_result(command_id)
// to learn the outcome (see Gateway.StartMethod).
type StartMethodResult struct {
	ProtocolRunID string
	Rejected      string // one of model's caller-error reasons, empty on success
}

// CodeEnteredCommand is the code_entered signal, routed to
// the subject's active Code-Challenge run for the given method.
type CodeEnteredCommand struct {
	CommandID string
	Method    model.VerificationMethod
	Code      string
}

// CodeEnteredResult is the accepted/rejected outcome.
type CodeEnteredResult struct {
	Accepted bool
	Rejected string
}

// VerifierConfirmCommand is the VerifierConfirm signal,
// already resolved from a raw token to a method/run by the gateway's
// token-store lookup.
type VerifierConfirmCommand struct {
	CommandID     string
	Method        model.VerificationMethod
	ProtocolRunID string
	VerifierID    string
	Token         string
	Evidence      map[string]any
}

// VerifierConfirmResult is the accepted/rejected outcome.
type VerifierConfirmResult struct {
	Accepted bool
	Rejected string
}

// CommunityAttestCommand is the CommunityAttest signal.
type CommunityAttestCommand struct {
	CommandID  string
	AttestorID string
	Text       string
}

// CommunityAttestResult is the accepted/rejected outcome.
type CommunityAttestResult struct {
	Accepted bool
	Rejected string
}

// RevokeCommand is the Revoke signal.
type RevokeCommand struct {
	CommandID string
	Method    model.VerificationMethod
	Reason    string
	ActorID   string
}

// RevokeResult carries the subject's level after revocation.
type RevokeResult struct {
	NewLevel model.Level
	Rejected string
}

// CancelMethodCommand is the CancelMethod signal.
type CancelMethodCommand struct {
	CommandID string
	Method    model.VerificationMethod
}

// MethodStatusResult answers Query.Method.
type MethodStatusResult struct {
	CompletedCount int
	ActiveState    string
	LastExpiry     *int64 // unix seconds, nil if no live completion expires
}

// commandRecord is the cached reply for a replayed command_id.
type commandRecord struct {
	StartMethod     *StartMethodResult
	CodeEntered     *CodeEnteredResult
	VerifierConfirm *VerifierConfirmResult
	CommunityAttest *CommunityAttestResult
	Revoke          *RevokeResult
}

// commandCacheEntry is one (command_id, outcome) pair as carried
// through OrchestratorInput.Commands across continue-as-new.
type commandCacheEntry struct {
	CommandID string
	Record    commandRecord
}
