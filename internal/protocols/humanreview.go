package protocols

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"verifyengine/internal/collaborators"
)

const defaultReviewDeadline = 30 * 24 * time.Hour

// HumanReview implements the Human-Review protocol
// for GovernmentID and the other document-backed methods: Pending →
// Uploading → AwaitingReview → (Completed | Failed | Cancelled).
func HumanReview(ctx workflow.Context, params HumanReviewParams) (Outcome, error) {
	logger := workflow.GetLogger(ctx)

	deadline := defaultReviewDeadline
	if params.DeadlineDays > 0 {
		deadline = time.Duration(params.DeadlineDays) * 24 * time.Hour
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

	task := collaborators.ReviewTask{
		SubjectID:   params.SubjectID,
		Method:      string(params.Method),
		EvidenceRef: params.DocumentRef,
		SubmittedAt: workflow.Now(ctx),
	}
	var reviewID string
	if err := workflow.ExecuteActivity(ctx, "EnqueueReview", task).Get(ctx, &reviewID); err != nil {
		logger.Error("enqueue review failed", "error", err)
		return Outcome{FailureReason: FailureRejected}, nil
	}

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	defer cancelTimer()
	timer := workflow.NewTimer(timerCtx, deadline)

	decisionCh := workflow.GetSignalChannel(ctx, SignalReviewDecision)
	cancelCh := workflow.GetSignalChannel(ctx, SignalCancel)

	var decision ReviewDecisionSignal
	outcome := struct{ decided, timedOut, cancelled bool }{}

	selector := workflow.NewSelector(ctx)
	selector.AddFuture(timer, func(f workflow.Future) {
		if f.Get(ctx, nil) == nil {
			outcome.timedOut = true
		}
	})
	selector.AddReceive(decisionCh, func(c workflow.ReceiveChannel, more bool) {
		c.Receive(ctx, &decision)
		outcome.decided = true
	})
	selector.AddReceive(cancelCh, func(c workflow.ReceiveChannel, more bool) {
		c.Receive(ctx, nil)
		outcome.cancelled = true
	})
	selector.Select(ctx)

	switch {
	case outcome.cancelled:
		return Outcome{FailureReason: FailureCancelled}, nil
	case outcome.timedOut:
		return Outcome{FailureReason: FailureExpired}, nil
	case decision.Approved:
		return Outcome{Completed: true, EvidenceRef: params.DocumentRef}, nil
	default:
		return Outcome{FailureReason: FailureRejected}, nil
	}
}
