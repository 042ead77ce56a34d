package orchestrator

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"verifyengine/internal/collaborators"
	"verifyengine/internal/model"
)

// checkpointEventThreshold is the default compaction trigger
// (every N events, default 1000). Compaction here means
// continue-as-new: the orchestrator only does this at a quiescent
// point (no active child protocols), so Temporal's own crash-recovery
// replay — which transparently reattaches in-flight child workflow
// futures — is the only rehydration path that ever needs to run; a
// continue-as-new boundary never leaves an orphaned child behind.
const checkpointEventThreshold = 1000

type activeRun struct {
	RunID      string
	WorkflowID string
	Future     workflow.ChildWorkflowFuture
}

// SubjectOrchestrator is the per-subject outer workflow. It runs
// indefinitely: created on first command to a subject
// id, rehydrates its snapshot from the journal on every start
// (including after continue-as-new), and returns only via
// continue-as-new, on cancellation of its context, or when that initial
// snapshot load fails.
func SubjectOrchestrator(ctx workflow.Context, input OrchestratorInput) error {
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

	var snap model.SubjectSnapshot
	if err := workflow.ExecuteActivity(ctx, "LoadSnapshot", input.SubjectID, input.Class).Get(ctx, &snap); err != nil {
		logger.Error("rehydrate snapshot failed", "error", err)
		return err
	}

	cache := newCommandCache(commandCacheCap, input.Commands)
	active := map[model.VerificationMethod]*activeRun{}
	eventsSinceCheckpoint := 0

	// append1 is the orchestrator's one path for mutating the journal:
	// append the event, reload the recomputed snapshot, and — if the
	// level crossed a threshold — append level_changed and dispatch the
	// notification, in that order.
	append1 := func(event model.VerificationEvent) error {
		oldLevel := snap.Level
		event.At = workflow.Now(ctx)
		newSnap, err := appendAndSnapshot(ctx, input, event, snap.LastSeq)
		if err != nil {
			return err
		}
		snap = newSnap
		eventsSinceCheckpoint++

		if snap.Level == oldLevel {
			return nil
		}
		levelSnap, err := appendAndSnapshot(ctx, input, model.VerificationEvent{
			Kind: model.EventLevelChanged,
			Data: map[string]any{"old_level": string(oldLevel), "new_level": string(snap.Level), "score": snap.Score},
		}, snap.LastSeq)
		if err != nil {
			logger.Error("append level_changed failed", "error", err)
			return err
		}
		snap = levelSnap
		eventsSinceCheckpoint++

		if err := notifyLevelChanged(ctx, input.SubjectID, oldLevel, snap.Level, snap.Score); err != nil {
			logger.Warn("level-changed notification failed", "error", err)
		}
		return nil
	}

	registerQueries(ctx, &snap, cache)

	startCh := workflow.GetSignalChannel(ctx, SignalStartMethod)
	codeCh := workflow.GetSignalChannel(ctx, SignalCodeEntered)
	confirmCh := workflow.GetSignalChannel(ctx, SignalVerifierConfirm)
	attestCh := workflow.GetSignalChannel(ctx, SignalCommunityAttest)
	revokeCh := workflow.GetSignalChannel(ctx, SignalRevoke)
	cancelCh := workflow.GetSignalChannel(ctx, SignalCancelMethod)

	for {
		selector := workflow.NewSelector(ctx)

		selector.AddReceive(ctx.Done(), func(c workflow.ReceiveChannel, more bool) {})

		selector.AddReceive(startCh, func(c workflow.ReceiveChannel, more bool) {
			var cmd StartMethodCommand
			c.Receive(ctx, &cmd)
			handleStartMethod(ctx, input, &snap, active, cache, append1, cmd)
		})
		selector.AddReceive(codeCh, func(c workflow.ReceiveChannel, more bool) {
			var cmd CodeEnteredCommand
			c.Receive(ctx, &cmd)
			handleCodeEntered(ctx, active, cache, cmd)
		})
		selector.AddReceive(confirmCh, func(c workflow.ReceiveChannel, more bool) {
			var cmd VerifierConfirmCommand
			c.Receive(ctx, &cmd)
			handleVerifierConfirm(ctx, active, cache, cmd)
		})
		selector.AddReceive(attestCh, func(c workflow.ReceiveChannel, more bool) {
			var cmd CommunityAttestCommand
			c.Receive(ctx, &cmd)
			handleCommunityAttest(ctx, input, &snap, active, cache, append1, cmd)
		})
		selector.AddReceive(revokeCh, func(c workflow.ReceiveChannel, more bool) {
			var cmd RevokeCommand
			c.Receive(ctx, &cmd)
			handleRevoke(ctx, input, &snap, active, cache, append1, cmd)
		})
		selector.AddReceive(cancelCh, func(c workflow.ReceiveChannel, more bool) {
			var cmd CancelMethodCommand
			c.Receive(ctx, &cmd)
			handleCancelMethod(ctx, active, cmd)
		})

		for method, run := range active {
			method, run := method, run
			selector.AddFuture(run.Future, func(f workflow.Future) {
				handleChildOutcome(ctx, input, &snap, active, append1, method, f)
			})
		}

		var expiryMethod model.VerificationMethod
		if at, method, ok := nextExpiry(snap); ok {
			timer := workflow.NewTimer(ctx, at.Sub(workflow.Now(ctx)))
			expiryMethod = method
			selector.AddFuture(timer, func(f workflow.Future) {
				_ = f.Get(ctx, nil)
				handleExpiry(ctx, &snap, append1, expiryMethod)
			})
		}

		selector.Select(ctx)

		if ctx.Err() != nil {
			logger.Info("orchestrator cancelled", "subject", input.SubjectID)
			return ctx.Err()
		}

		if eventsSinceCheckpoint >= checkpointEventThreshold && len(active) == 0 {
			logger.Info("checkpointing via continue-as-new", "events", eventsSinceCheckpoint)
			input.Commands = cache.snapshot()
			return workflow.NewContinueAsNewError(ctx, SubjectOrchestrator, input)
		}
	}
}

func childWorkflowID(subjectID string, method model.VerificationMethod, runID string) string {
	return fmt.Sprintf("%s:%s:%s", subjectID, method, runID)
}

func newRunID(ctx workflow.Context) string {
	var id string
	_ = workflow.SideEffect(ctx, func(ctx workflow.Context) interface{} {
		return workflow.GetInfo(ctx).WorkflowExecution.RunID + "-" + fmt.Sprint(workflow.Now(ctx).UnixNano())
	}).Get(&id)
	return id
}

func appendAndSnapshot(ctx workflow.Context, input OrchestratorInput, event model.VerificationEvent, expectedLastSeq int64) (model.SubjectSnapshot, error) {
	var snap model.SubjectSnapshot
	err := workflow.ExecuteActivity(ctx, "AppendAndSnapshot", input.SubjectID, input.Class, event, expectedLastSeq).Get(ctx, &snap)
	return snap, err
}

func notifyLevelChanged(ctx workflow.Context, subjectID string, oldLevel, newLevel model.Level, score int) error {
	return workflow.ExecuteActivity(ctx, "NotifySubject", subjectID, collaborators.NotifyLevelChanged, map[string]any{
		"old_level": string(oldLevel), "new_level": string(newLevel), "score": score,
	}).Get(ctx, nil)
}

// nextExpiry finds the earliest still-live completion's expiry across
// all methods. Only the earliest per method matters at any moment.
func nextExpiry(snap model.SubjectSnapshot) (time.Time, model.VerificationMethod, bool) {
	var best time.Time
	var bestMethod model.VerificationMethod
	found := false
	for method, completions := range snap.Completions {
		for _, c := range completions {
			if c.IsRevoked() || c.ExpiresAt == nil {
				continue
			}
			if !found || c.ExpiresAt.Before(best) {
				best = *c.ExpiresAt
				bestMethod = method
				found = true
			}
		}
	}
	return best, bestMethod, found
}

// methodStatus answers Query.Method from the derived snapshot alone,
// not from the orchestrator's live child-future map: ActiveProtocols
// is what stays populated for a stuck compensation-incomplete run even
// after its child workflow future has resolved and been removed from
// that live map, so it is the only source that can answer "stuck" per
// spec.md's Failed(compensation_incomplete) requirement.
func methodStatus(snap model.SubjectSnapshot, method model.VerificationMethod) MethodStatusResult {
	now := snap.UpdatedAt
	result := MethodStatusResult{CompletedCount: len(snap.LiveCompletions(method, now))}
	if run, ok := snap.ActiveProtocols[method]; ok {
		result.ActiveState = string(run.State)
	}
	var lastExpiry *time.Time
	for _, c := range snap.LiveCompletions(method, now) {
		if c.ExpiresAt == nil {
			continue
		}
		if lastExpiry == nil || c.ExpiresAt.After(*lastExpiry) {
			lastExpiry = c.ExpiresAt
		}
	}
	if lastExpiry != nil {
		unix := lastExpiry.Unix()
		result.LastExpiry = &unix
	}
	return result
}
