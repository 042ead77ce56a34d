package protocols

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"verifyengine/internal/authz"
	"verifyengine/internal/collaborators"
	"verifyengine/internal/journal"
	"verifyengine/internal/metrics"
	"verifyengine/internal/model"
	"verifyengine/internal/tokenstore"
	"verifyengine/internal/verifierstore"
)

// Activities bundles the side-effecting operations the protocol
// workflows delegate to: code generation and delivery, QR token
// issuance, verifier authorization lookups, journal writes, and
// notification dispatch. Registered on the worker the same way the
// order-resolution activities are, one method per activity.
type Activities struct {
	Journal   journal.Store
	Verifiers verifierstore.Store
	Tokens    tokenstore.Store
	Notifier  collaborators.Notifier
	Codes     collaborators.CodeDelivery
	Reviews   collaborators.ReviewQueue
	Metrics   *metrics.Metrics
}

// Challenge is the result of generating a code challenge: Code is
// delivered to the subject, Salt and Hash are retained by the
// workflow for verification and never leave the process boundary in
// any caller-visible response.
type Challenge struct {
	Code string
	Salt string
	Hash string
}

// GenerateChallenge mints a random 6-digit code and its salted hash.
// Randomness must happen in an activity, never directly in workflow
// code, to keep workflow execution deterministic.
func (a *Activities) GenerateChallenge(ctx context.Context) (Challenge, error) {
	code, err := randomDigits(6)
	if err != nil {
		return Challenge{}, fmt.Errorf("generate code: %w", err)
	}
	salt, err := randomHex(16)
	if err != nil {
		return Challenge{}, fmt.Errorf("generate salt: %w", err)
	}
	return Challenge{Code: code, Salt: salt, Hash: hashCode(code, salt)}, nil
}

// DeliverCode sends the generated code to the target email/phone.
func (a *Activities) DeliverCode(ctx context.Context, target, code string, ttl time.Duration) error {
	return a.Codes.Send(ctx, target, code, ttl)
}

// TokenPair is the pair of QR tokens issued for the two-party saga,
// one per verifier slot.
type TokenPair struct {
	Slot1 string
	Slot2 string
}

// IssueQRTokens generates and persists the two slot tokens of the
// two-party saga.
func (a *Activities) IssueQRTokens(ctx context.Context, subjectID, protocolRunID string, ttl time.Duration) (TokenPair, error) {
	tok1, err := tokenstore.NewToken()
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate token: %w", err)
	}
	tok2, err := tokenstore.NewToken()
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate token: %w", err)
	}
	now := time.Now().UTC()
	if _, err := a.Tokens.PutIfAbsent(ctx, tok1, tokenstore.Binding{SubjectID: subjectID, ProtocolRunID: protocolRunID, Slot: 1, IssuedAt: now}, ttl); err != nil {
		return TokenPair{}, fmt.Errorf("bind token slot 1: %w", err)
	}
	if _, err := a.Tokens.PutIfAbsent(ctx, tok2, tokenstore.Binding{SubjectID: subjectID, ProtocolRunID: protocolRunID, Slot: 2, IssuedAt: now}, ttl); err != nil {
		return TokenPair{}, fmt.Errorf("bind token slot 2: %w", err)
	}
	return TokenPair{Slot1: tok1, Slot2: tok2}, nil
}

// LookupToken resolves a signalled token to its binding.
func (a *Activities) LookupToken(ctx context.Context, token string) (tokenstore.Binding, bool, error) {
	return a.Tokens.Get(ctx, token)
}

// InvalidateTokens is the compensation for IssueQRTokens.
func (a *Activities) InvalidateTokens(ctx context.Context, tokens []string) error {
	for _, t := range tokens {
		if err := a.Tokens.Invalidate(ctx, t); err != nil {
			return fmt.Errorf("invalidate token: %w", err)
		}
	}
	return nil
}

// ValidateVerifier runs the verifier authorization policy for a
// candidate verifier against a target method.
//
// model.Individual is hardcoded here rather than threaded through as a
// parameter: VerifierRecord/verifierstore.Store carry no class field
// of their own, so there is no stored value to pass. A Business- or
// Organization-class verifier who has completed class-specific methods
// will have those completions folded out of their own score under this
// wrong class, which can wrongly deny them under the minimum-level
// rule. Fixing this needs a model change — a stored verifier class,
// either recorded at verifier registration or looked up from the
// verifier's own Subject.Class where verifiers double as subjects —
// not a parameter threaded through this call.
func (a *Activities) ValidateVerifier(ctx context.Context, verifierID string, targetMethod model.VerificationMethod) (authz.Decision, error) {
	record, ok, err := a.Verifiers.Get(ctx, verifierID)
	if err != nil {
		return authz.Decision{}, fmt.Errorf("load verifier record: %w", err)
	}
	if !ok {
		return authz.Decision{Reason: model.DenialNotAVerifier}, nil
	}
	snap, err := a.Journal.Snapshot(ctx, verifierID, model.Individual)
	if err != nil {
		return authz.Decision{}, fmt.Errorf("load verifier snapshot: %w", err)
	}
	return authz.Authorize(record, snap, targetMethod, time.Now().UTC()), nil
}

// ValidateAttestor checks the one authorization rule attestation
// imposes on an attestor: their own snapshot level must be at least
// Minimal. Unlike ValidateVerifier this does not consult the
// VerifierRecord store — attestation does not require the attestor to
// be a registered verifier, only to have reached a minimal level
// themselves. The same model.Individual hardcoding and class gap
// documented on ValidateVerifier applies here too.
func (a *Activities) ValidateAttestor(ctx context.Context, attestorID string) (bool, error) {
	snap, err := a.Journal.Snapshot(ctx, attestorID, model.Individual)
	if err != nil {
		return false, fmt.Errorf("load attestor snapshot: %w", err)
	}
	return snap.Level.Rank() >= model.Minimal.Rank(), nil
}

// RecordVerifierConfirmation appends verifier_confirmed to the target
// subject's journal and increments the verifier's confirmation count.
// evidence carries whatever the verifier's client submitted alongside
// the confirmation (e.g. device_fingerprint, location_lat/lon); it is
// stored verbatim on the event for fraud review and never scored.
func (a *Activities) RecordVerifierConfirmation(ctx context.Context, subjectID string, class model.SubjectClass, method model.VerificationMethod, verifierID, protocolRunID string, evidence map[string]any, expectedLastSeq int64) (int64, error) {
	seq, err := a.Journal.Append(ctx, subjectID, class, model.VerificationEvent{
		At:            time.Now().UTC(),
		Kind:          model.EventVerifierConfirmed,
		Method:        method,
		ActorSubject:  verifierID,
		ProtocolRunID: protocolRunID,
		Data:          evidence,
	}, expectedLastSeq)
	if err != nil {
		return 0, fmt.Errorf("append verifier_confirmed: %w", err)
	}
	if _, err := a.Verifiers.IncrementConfirmations(ctx, verifierID, 1); err != nil {
		return 0, fmt.Errorf("increment verifier confirmations: %w", err)
	}
	return seq, nil
}

// RevokeVerifierConfirmation is the compensation for
// RecordVerifierConfirmation.
func (a *Activities) RevokeVerifierConfirmation(ctx context.Context, subjectID string, class model.SubjectClass, method model.VerificationMethod, verifierID, protocolRunID, reason string, expectedLastSeq int64) (int64, error) {
	seq, err := a.Journal.Append(ctx, subjectID, class, model.VerificationEvent{
		At:            time.Now().UTC(),
		Kind:          model.EventVerifierConfirmationRevoked,
		Method:        method,
		ActorSubject:  verifierID,
		ProtocolRunID: protocolRunID,
		Data:          map[string]any{"reason": reason},
	}, expectedLastSeq)
	if err != nil {
		return 0, fmt.Errorf("append verifier_confirmation_revoked: %w", err)
	}
	if _, err := a.Verifiers.IncrementConfirmations(ctx, verifierID, -1); err != nil {
		return 0, fmt.Errorf("decrement verifier confirmations: %w", err)
	}
	return seq, nil
}

// RevokeConfirmations compensates both confirmation slots of a failed
// two-party saga at once. The two revocations target independent
// verifier records and append to the same subject journal with
// expectedLastSeq -1 (no conflict check), so running them concurrently
// is safe and lets one slow/retrying revocation not block the other —
// the saga's compensation deadline is shared across both.
func (a *Activities) RevokeConfirmations(ctx context.Context, subjectID string, class model.SubjectClass, protocolRunID string, verifierIDs []string, reason string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, verifierID := range verifierIDs {
		verifierID := verifierID
		g.Go(func() error {
			_, err := a.RevokeVerifierConfirmation(gctx, subjectID, class, model.TwoPartyInPerson, verifierID, protocolRunID, "saga_compensation", -1)
			return err
		})
	}
	err := g.Wait()
	if err == nil {
		a.Metrics.SagaCompensated(reason)
	}
	return err
}

// RecordAttestation appends attestation_received to the target
// subject's journal.
func (a *Activities) RecordAttestation(ctx context.Context, subjectID string, class model.SubjectClass, method model.VerificationMethod, attestorID, text, protocolRunID string, expectedLastSeq int64) (int64, error) {
	seq, err := a.Journal.Append(ctx, subjectID, class, model.VerificationEvent{
		At:            time.Now().UTC(),
		Kind:          model.EventAttestationReceived,
		Method:        method,
		ActorSubject:  attestorID,
		ProtocolRunID: protocolRunID,
		Data:          map[string]any{"text": text},
	}, expectedLastSeq)
	if err != nil {
		return 0, fmt.Errorf("append attestation_received: %w", err)
	}
	return seq, nil
}

// EnqueueReview submits a document review task.
func (a *Activities) EnqueueReview(ctx context.Context, task collaborators.ReviewTask) (string, error) {
	return a.Reviews.Enqueue(ctx, task)
}

// Notify dispatches a notification about a subject's verification
// state.
func (a *Activities) Notify(ctx context.Context, subjectID string, kind collaborators.NotificationKind, payload map[string]any) error {
	return a.Notifier.Deliver(ctx, subjectID, kind, payload)
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
