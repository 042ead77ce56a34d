package protocols

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"verifyengine/internal/model"
)

// AttestationInput extends AttestationParams with the journal
// bookkeeping the activity needs.
type AttestationInput struct {
	AttestationParams
	SubjectClass    model.SubjectClass
	ProtocolRunID   string
	ExpectedLastSeq int64
}

// Attestation implements the Attestation/Reference Intake protocol
//: Pending → AwaitingAttestation → Completed. The
// multiplier check (is this the N-th attestation and N ≤
// max_multiplier) is enforced by the orchestrator before this protocol
// is even started, not here.
func Attestation(ctx workflow.Context, in AttestationInput) (Outcome, error) {
	logger := workflow.GetLogger(ctx)

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

	sigCh := workflow.GetSignalChannel(ctx, SignalAttestation)
	cancelCh := workflow.GetSignalChannel(ctx, SignalCancel)

	var sig AttestationSignal
	outcome := struct{ got, cancelled bool }{}

	selector := workflow.NewSelector(ctx)
	selector.AddReceive(sigCh, func(c workflow.ReceiveChannel, more bool) {
		c.Receive(ctx, &sig)
		outcome.got = true
	})
	selector.AddReceive(cancelCh, func(c workflow.ReceiveChannel, more bool) {
		c.Receive(ctx, nil)
		outcome.cancelled = true
	})
	selector.Select(ctx)

	if outcome.cancelled {
		return Outcome{FailureReason: FailureCancelled}, nil
	}

	var authorized bool
	if err := workflow.ExecuteActivity(ctx, "ValidateAttestor", sig.AttestorSubjectID).Get(ctx, &authorized); err != nil {
		logger.Error("validate attestor failed", "error", err)
		return Outcome{FailureReason: FailureRejected}, nil
	}
	if !authorized {
		return Outcome{FailureReason: FailureRejected}, nil
	}

	var seq int64
	err := workflow.ExecuteActivity(ctx, "RecordAttestation", in.SubjectID, in.SubjectClass, in.Method, sig.AttestorSubjectID, sig.Text, in.ProtocolRunID, in.ExpectedLastSeq).Get(ctx, &seq)
	if err != nil {
		logger.Error("record attestation failed", "error", err)
		return Outcome{FailureReason: FailureRejected}, nil
	}

	return Outcome{Completed: true, EvidenceRef: []byte(sig.AttestorSubjectID)}, nil
}
