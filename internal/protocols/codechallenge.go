package protocols

import (
	"crypto/subtle"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"golang.org/x/crypto/pbkdf2"
	"crypto/sha256"
	"encoding/hex"
)

const (
	defaultCodeTTL     = 30 * time.Minute
	defaultMaxAttempts = 5
)

// hashCode derives a salted hash of a code the same way for both code
// generation (Activities.GenerateChallenge) and comparison
// (CodeChallenge's workflow function) so the two agree byte-for-byte.
func hashCode(code, saltHex string) string {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		salt = []byte(saltHex)
	}
	derived := pbkdf2.Key([]byte(code), salt, 4096, sha256.Size, sha256.New)
	return hex.EncodeToString(derived)
}

// codeMatches compares a caller-supplied code against the stored hash
// in constant time.
func codeMatches(code, saltHex, wantHash string) bool {
	got := hashCode(code, saltHex)
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantHash)) == 1
}

// CodeChallenge implements the Code-Challenge protocol for Email and Phone: Pending → Waiting → (Completed | Failed
// | Cancelled).
func CodeChallenge(ctx workflow.Context, params CodeChallengeParams) (Outcome, error) {
	logger := workflow.GetLogger(ctx)

	ttl := defaultCodeTTL
	if params.CodeTTL > 0 {
		ttl = time.Duration(params.CodeTTL) * time.Second
	}
	maxAttempts := defaultMaxAttempts
	if params.MaxAttempts > 0 {
		maxAttempts = params.MaxAttempts
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

	var challenge Challenge
	if err := workflow.ExecuteActivity(ctx, "GenerateChallenge").Get(ctx, &challenge); err != nil {
		logger.Error("generate challenge failed", "error", err)
		return Outcome{}, err
	}

	// Idempotent re-delivery on duplicate start is suppressed by the
	// orchestrator, which never spawns a second run for an already
	// active method; delivery here happens exactly once
	// per run.
	if err := workflow.ExecuteActivity(ctx, "DeliverCode", params.Target, challenge.Code, ttl).Get(ctx, nil); err != nil {
		logger.Error("deliver code failed", "error", err)
		return Outcome{FailureReason: FailureExhausted}, nil
	}

	deadline := workflow.Now(ctx).Add(ttl)
	attemptsLeft := maxAttempts

	sigCh := workflow.GetSignalChannel(ctx, SignalCodeEntered)
	cancelCh := workflow.GetSignalChannel(ctx, SignalCancel)

	for {
		remaining := deadline.Sub(workflow.Now(ctx))
		if remaining <= 0 {
			return Outcome{FailureReason: FailureExpired}, nil
		}
		timerCtx, cancelTimer := workflow.WithCancel(ctx)
		timer := workflow.NewTimer(timerCtx, remaining)

		var attempt CodeEnteredSignal
		outcome := struct {
			got      bool
			timedOut bool
			cancelled bool
		}{}

		selector := workflow.NewSelector(ctx)
		selector.AddFuture(timer, func(f workflow.Future) {
			if f.Get(ctx, nil) == nil {
				outcome.timedOut = true
			}
		})
		selector.AddReceive(sigCh, func(c workflow.ReceiveChannel, more bool) {
			c.Receive(ctx, &attempt)
			outcome.got = true
		})
		selector.AddReceive(cancelCh, func(c workflow.ReceiveChannel, more bool) {
			c.Receive(ctx, nil)
			outcome.cancelled = true
		})
		selector.Select(ctx)
		cancelTimer()

		switch {
		case outcome.cancelled:
			return Outcome{FailureReason: FailureCancelled}, nil
		case outcome.timedOut:
			return Outcome{FailureReason: FailureExpired}, nil
		case !outcome.got:
			continue
		}

		if codeMatches(attempt.Code, challenge.Salt, challenge.Hash) {
			return Outcome{Completed: true, EvidenceRef: []byte(params.Target)}, nil
		}

		attemptsLeft--
		if attemptsLeft <= 0 {
			return Outcome{FailureReason: FailureExhausted}, nil
		}
	}
}
