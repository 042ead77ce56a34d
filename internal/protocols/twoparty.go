package protocols

import (
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"verifyengine/internal/model"
)

const (
	defaultTokenTTL = 72 * time.Hour
	sagaDeadline    = 72 * time.Hour
)

// sagaStep identifies a completed forward step, in the order
// compensation must reverse them.
type sagaStep int

const (
	stepTokensIssued sagaStep = iota
	stepConfirmationsRecorded
)

// confirmationState tracks the two verifier slots as they fill.
type confirmationState struct {
	verifierID string
	evidence   map[string]any
	recorded   bool
}

// TwoPartySagaInput carries everything the saga needs beyond
// TwoPartyParams: the subject's class (for journal appends) and the
// last-seen journal seq to use as the optimistic-concurrency baseline.
type TwoPartySagaInput struct {
	TwoPartyParams
	SubjectClass    model.SubjectClass
	ExpectedLastSeq int64
}

// TwoPartyInPerson implements the two-party in-person saga, the hardest protocol in the system: three forward steps —
// issue tokens, collect confirmations, validate and record. Issuing
// tokens and recording confirmations each have a compensation, run in
// reverse order on failure; collecting confirmations has none.
func TwoPartyInPerson(ctx workflow.Context, in TwoPartySagaInput) (Outcome, error) {
	logger := workflow.GetLogger(ctx)

	ttl := defaultTokenTTL
	if in.TokenTTLHours > 0 {
		ttl = time.Duration(in.TokenTTLHours) * time.Hour
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    60 * time.Second,
			MaximumAttempts:    10,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	completedSteps := []sagaStep{}
	var issuedTokens TokenPair
	slots := map[int]*confirmationState{1: {}, 2: {}}
	recordedVerifiers := map[string]bool{} // verifierID -> recorded, for compensation

	// compensate reverses completedSteps in order. Each compensating
	// activity carries the same ActivityOptions retry policy as the
	// forward steps (10 attempts, 1s initial backoff doubling to a 60s
	// cap); a compensation that still fails after Temporal exhausts
	// those retries surfaces here as compensation_incomplete.
	compensate := func(reason string) Outcome {
		for i := len(completedSteps) - 1; i >= 0; i-- {
			switch completedSteps[i] {
			case stepConfirmationsRecorded:
				verifierIDs := make([]string, 0, len(recordedVerifiers))
				for verifierID := range recordedVerifiers {
					verifierIDs = append(verifierIDs, verifierID)
				}
				if err := workflow.ExecuteActivity(ctx, "RevokeConfirmations", in.SubjectID, in.SubjectClass, in.ProtocolRunID, verifierIDs, reason).Get(ctx, nil); err != nil {
					logger.Error("compensation exhausted: revoke confirmations", "error", err)
					return Outcome{FailureReason: FailureCompensationIncomplete}
				}
			case stepTokensIssued:
				tokens := []string{issuedTokens.Slot1, issuedTokens.Slot2}
				if err := workflow.ExecuteActivity(ctx, "InvalidateTokens", tokens).Get(ctx, nil); err != nil {
					logger.Error("compensation exhausted: invalidate tokens", "error", err)
					return Outcome{FailureReason: FailureCompensationIncomplete}
				}
			}
		}
		return Outcome{FailureReason: reason}
	}

	// Step 1: issue QR tokens.
	if err := workflow.ExecuteActivity(ctx, "IssueQRTokens", in.SubjectID, in.ProtocolRunID, ttl).Get(ctx, &issuedTokens); err != nil {
		logger.Error("issue QR tokens failed", "error", err)
		return Outcome{FailureReason: FailureTimeout}, nil
	}
	completedSteps = append(completedSteps, stepTokensIssued)

	tokenSlot := map[string]int{issuedTokens.Slot1: 1, issuedTokens.Slot2: 2}
	deadline := workflow.Now(ctx).Add(sagaDeadline)

	confCh := workflow.GetSignalChannel(ctx, SignalVerifierConfirmation)
	cancelCh := workflow.GetSignalChannel(ctx, SignalCancel)

	distinctVerifiers := map[string]bool{}

	// Step 2: collect confirmations from distinct verifiers.
	for len(distinctVerifiers) < 2 {
		remaining := deadline.Sub(workflow.Now(ctx))
		if remaining <= 0 {
			return compensate(FailureTimeout), nil
		}
		timerCtx, cancelTimer := workflow.WithCancel(ctx)
		timer := workflow.NewTimer(timerCtx, remaining)

		var sig VerifierConfirmationSignal
		outcome := struct{ got, timedOut, cancelled bool }{}

		selector := workflow.NewSelector(ctx)
		selector.AddFuture(timer, func(f workflow.Future) {
			if f.Get(ctx, nil) == nil {
				outcome.timedOut = true
			}
		})
		selector.AddReceive(confCh, func(c workflow.ReceiveChannel, more bool) {
			c.Receive(ctx, &sig)
			outcome.got = true
		})
		selector.AddReceive(cancelCh, func(c workflow.ReceiveChannel, more bool) {
			c.Receive(ctx, nil)
			outcome.cancelled = true
		})
		selector.Select(ctx)
		cancelTimer()

		if outcome.cancelled {
			return compensate(FailureCancelled), nil
		}
		if outcome.timedOut {
			return compensate(FailureTimeout), nil
		}
		if !outcome.got {
			continue
		}

		slot, known := tokenSlot[sig.Token]
		if !known {
			// Unknown or already-invalidated token: ignored, not an error
			// signal to the caller — the RPC layer surfaces TokenUnknown
			// before ever reaching here for tokens this saga never issued.
			continue
		}

		if slots[slot].recorded && slots[slot].verifierID == sig.VerifierID {
			// Duplicate confirmation with an identical token: idempotent,
			// no state change.
			continue
		}

		slots[slot] = &confirmationState{verifierID: sig.VerifierID, evidence: sig.Evidence, recorded: true}

		// Same verifier confirming both slots counts as a single
		// confirmation.
		distinctVerifiers[sig.VerifierID] = true
	}

	// Step 3: validate each distinct verifier.
	verifierIDs := make([]string, 0, 2)
	for v := range distinctVerifiers {
		verifierIDs = append(verifierIDs, v)
	}
	for _, verifierID := range verifierIDs {
		var decision model.DenialReason
		var authorized bool
		authorized, decision = execValidateVerifier(ctx, verifierID, model.TwoPartyInPerson)
		if !authorized {
			logger.Info("verifier denied", "verifier", verifierID, "reason", decision)
			return compensate(FailureUnauthorizedVerifier), nil
		}
	}

	evidenceByVerifier := map[string]map[string]any{}
	for _, slot := range slots {
		if slot.recorded {
			evidenceByVerifier[slot.verifierID] = slot.evidence
		}
	}

	// Step 4: record confirmations.
	lastSeq := in.ExpectedLastSeq
	for _, verifierID := range verifierIDs {
		seq, err := execRecordConfirmation(ctx, in, verifierID, evidenceByVerifier[verifierID], lastSeq)
		if err != nil {
			logger.Error("record confirmation failed", "verifier", verifierID, "error", err)
			return compensate(FailureTimeout), nil
		}
		lastSeq = seq
		recordedVerifiers[verifierID] = true
	}
	completedSteps = append(completedSteps, stepConfirmationsRecorded)

	// Step 5: award completion.
	return Outcome{Completed: true, EvidenceRef: []byte(strings.Join(verifierIDs, ","))}, nil
}

func execValidateVerifier(ctx workflow.Context, verifierID string, method model.VerificationMethod) (authorized bool, reason model.DenialReason) {
	var decision struct {
		Authorized bool
		Reason     model.DenialReason
	}
	if err := workflow.ExecuteActivity(ctx, "ValidateVerifier", verifierID, method).Get(ctx, &decision); err != nil {
		return false, model.DenialNotAVerifier
	}
	return decision.Authorized, decision.Reason
}

func execRecordConfirmation(ctx workflow.Context, in TwoPartySagaInput, verifierID string, evidence map[string]any, expectedLastSeq int64) (int64, error) {
	var seq int64
	err := workflow.ExecuteActivity(ctx, "RecordVerifierConfirmation", in.SubjectID, in.SubjectClass, model.TwoPartyInPerson, verifierID, in.ProtocolRunID, evidence, expectedLastSeq).Get(ctx, &seq)
	return seq, err
}

