package orchestrator

import (
	"go.temporal.io/sdk/workflow"

	"verifyengine/internal/authz"
	"verifyengine/internal/collaborators"
	"verifyengine/internal/model"
	"verifyengine/internal/protocols"
	"verifyengine/internal/scoring"
)

func registerQueries(ctx workflow.Context, snap *model.SubjectSnapshot, cache *commandCache) {
	_ = workflow.SetQueryHandler(ctx, QueryScore, func() (int, error) {
		return snap.Score, nil
	})
	_ = workflow.SetQueryHandler(ctx, QueryLevel, func() (model.Level, error) {
		return snap.Level, nil
	})
	_ = workflow.SetQueryHandler(ctx, QueryCompletedMethods, func() (map[model.VerificationMethod]int, error) {
		return snap.CompletedCounts(snap.UpdatedAt), nil
	})
	_ = workflow.SetQueryHandler(ctx, QueryNextLevel, func() (scoring.NextLevelResult, error) {
		return scoring.NextLevel(snap.Score, snap.Class, snap.CompletedCounts(snap.UpdatedAt)), nil
	})
	_ = workflow.SetQueryHandler(ctx, QueryMethodStatus, func(method model.VerificationMethod) (MethodStatusResult, error) {
		return methodStatus(*snap, method), nil
	})
	_ = workflow.SetQueryHandler(ctx, QueryCommandResult, func(commandID string) (commandRecord, error) {
		rec, _ := cache.get(commandID)
		return rec, nil
	})
}

// spawnProtocol dispatches to the right child workflow for method,
// generates its run id, executes it, appends method_started, and
// registers it in active. Centralizes the method→protocol mapping
// used by both StartMethod and CommunityAttest.
func spawnProtocol(ctx workflow.Context, input OrchestratorInput, snap *model.SubjectSnapshot, active map[model.VerificationMethod]*activeRun, append1 func(model.VerificationEvent) error, method model.VerificationMethod, params map[string]any, commandID string) (string, error) {
	runID := newRunID(ctx)
	wfID := childWorkflowID(input.SubjectID, method, runID)
	childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID: wfID,
	})

	var future workflow.ChildWorkflowFuture
	switch {
	case method == model.Email || method == model.Phone:
		target, _ := params["target"].(string)
		future = workflow.ExecuteChildWorkflow(childCtx, protocols.CodeChallenge, protocols.CodeChallengeParams{
			SubjectID: input.SubjectID,
			Method:    method,
			Target:    target,
		})

	case method == model.TwoPartyInPerson:
		future = workflow.ExecuteChildWorkflow(childCtx, protocols.TwoPartyInPerson, protocols.TwoPartySagaInput{
			TwoPartyParams:  protocols.TwoPartyParams{SubjectID: input.SubjectID, ProtocolRunID: runID},
			SubjectClass:    input.Class,
			ExpectedLastSeq: snap.LastSeq,
		})

	case model.Scores[method].RequiresHumanReview:
		docRef, _ := params["document_ref"].([]byte)
		future = workflow.ExecuteChildWorkflow(childCtx, protocols.HumanReview, protocols.HumanReviewParams{
			SubjectID:   input.SubjectID,
			Method:      method,
			DocumentRef: docRef,
		})

	default:
		liveCount := len(snap.LiveCompletions(method, snap.UpdatedAt))
		future = workflow.ExecuteChildWorkflow(childCtx, protocols.Attestation, protocols.AttestationInput{
			AttestationParams: protocols.AttestationParams{SubjectID: input.SubjectID, Method: method, SequenceIndex: liveCount + 1},
			SubjectClass:      input.Class,
			ProtocolRunID:     runID,
			ExpectedLastSeq:   snap.LastSeq,
		})
	}

	active[method] = &activeRun{RunID: runID, WorkflowID: wfID, Future: future}

	if err := append1(model.VerificationEvent{
		Kind:          model.EventMethodStarted,
		Method:        method,
		ProtocolRunID: runID,
		CommandID:     commandID,
		Data:          map[string]any{"run_id": runID, "params": params},
	}); err != nil {
		delete(active, method)
		return "", err
	}
	return runID, nil
}

func handleStartMethod(ctx workflow.Context, input OrchestratorInput, snap *model.SubjectSnapshot, active map[model.VerificationMethod]*activeRun, cache *commandCache, append1 func(model.VerificationEvent) error, cmd StartMethodCommand) {
	if rec, ok := cache.get(cmd.CommandID); ok && rec.StartMethod != nil {
		return
	}

	if !scoring.Applicable(cmd.Method, snap.Class) {
		cache.set(cmd.CommandID, commandRecord{StartMethod: &StartMethodResult{Rejected: "method_not_applicable"}})
		return
	}
	if _, active := active[cmd.Method]; active {
		cache.set(cmd.CommandID, commandRecord{StartMethod: &StartMethodResult{Rejected: "already_active"}})
		return
	}
	if len(snap.LiveCompletions(cmd.Method, snap.UpdatedAt)) >= model.Scores[cmd.Method].MaxMultiplier {
		cache.set(cmd.CommandID, commandRecord{StartMethod: &StartMethodResult{Rejected: "already_maxed"}})
		return
	}

	runID, err := spawnProtocol(ctx, input, snap, active, append1, cmd.Method, cmd.Params, cmd.CommandID)
	if err != nil {
		cache.set(cmd.CommandID, commandRecord{StartMethod: &StartMethodResult{Rejected: "temporarily_unavailable"}})
		return
	}
	cache.set(cmd.CommandID, commandRecord{StartMethod: &StartMethodResult{ProtocolRunID: runID}})
}

func handleCodeEntered(ctx workflow.Context, active map[model.VerificationMethod]*activeRun, cache *commandCache, cmd CodeEnteredCommand) {
	if rec, ok := cache.get(cmd.CommandID); ok && rec.CodeEntered != nil {
		return
	}

	run, ok := active[cmd.Method]
	if !ok {
		cache.set(cmd.CommandID, commandRecord{CodeEntered: &CodeEnteredResult{Rejected: "no_matching_active_run"}})
		return
	}

	err := workflow.SignalExternalWorkflow(ctx, run.WorkflowID, "", protocols.SignalCodeEntered, protocols.CodeEnteredSignal{
		Code: cmd.Code,
	}).Get(ctx, nil)
	if err != nil {
		cache.set(cmd.CommandID, commandRecord{CodeEntered: &CodeEnteredResult{Rejected: "temporarily_unavailable"}})
		return
	}
	cache.set(cmd.CommandID, commandRecord{CodeEntered: &CodeEnteredResult{Accepted: true}})
}

func handleVerifierConfirm(ctx workflow.Context, active map[model.VerificationMethod]*activeRun, cache *commandCache, cmd VerifierConfirmCommand) {
	if rec, ok := cache.get(cmd.CommandID); ok && rec.VerifierConfirm != nil {
		return
	}

	run, ok := active[cmd.Method]
	if !ok || run.RunID != cmd.ProtocolRunID {
		cache.set(cmd.CommandID, commandRecord{VerifierConfirm: &VerifierConfirmResult{Rejected: "no_matching_active_run"}})
		return
	}

	err := workflow.SignalExternalWorkflow(ctx, run.WorkflowID, "", protocols.SignalVerifierConfirmation, protocols.VerifierConfirmationSignal{
		Token: cmd.Token, VerifierID: cmd.VerifierID, Evidence: cmd.Evidence,
	}).Get(ctx, nil)
	if err != nil {
		cache.set(cmd.CommandID, commandRecord{VerifierConfirm: &VerifierConfirmResult{Rejected: "temporarily_unavailable"}})
		return
	}
	cache.set(cmd.CommandID, commandRecord{VerifierConfirm: &VerifierConfirmResult{Accepted: true}})
}

func handleCommunityAttest(ctx workflow.Context, input OrchestratorInput, snap *model.SubjectSnapshot, active map[model.VerificationMethod]*activeRun, cache *commandCache, append1 func(model.VerificationEvent) error, cmd CommunityAttestCommand) {
	if rec, ok := cache.get(cmd.CommandID); ok && rec.CommunityAttest != nil {
		return
	}

	method := model.CommunityAttestation
	if len(snap.LiveCompletions(method, snap.UpdatedAt)) >= model.Scores[method].MaxMultiplier {
		cache.set(cmd.CommandID, commandRecord{CommunityAttest: &CommunityAttestResult{Rejected: "already_maxed"}})
		return
	}

	run, ok := active[method]
	if !ok {
		if _, err := spawnProtocol(ctx, input, snap, active, append1, method, nil, cmd.CommandID); err != nil {
			cache.set(cmd.CommandID, commandRecord{CommunityAttest: &CommunityAttestResult{Rejected: "temporarily_unavailable"}})
			return
		}
		run = active[method]
	}

	err := workflow.SignalExternalWorkflow(ctx, run.WorkflowID, "", protocols.SignalAttestation, protocols.AttestationSignal{
		AttestorSubjectID: cmd.AttestorID, Text: cmd.Text,
	}).Get(ctx, nil)
	if err != nil {
		cache.set(cmd.CommandID, commandRecord{CommunityAttest: &CommunityAttestResult{Rejected: "temporarily_unavailable"}})
		return
	}
	cache.set(cmd.CommandID, commandRecord{CommunityAttest: &CommunityAttestResult{Accepted: true}})
}

func handleRevoke(ctx workflow.Context, input OrchestratorInput, snap *model.SubjectSnapshot, active map[model.VerificationMethod]*activeRun, cache *commandCache, append1 func(model.VerificationEvent) error, cmd RevokeCommand) {
	if rec, ok := cache.get(cmd.CommandID); ok && rec.Revoke != nil {
		return
	}

	live := snap.LiveCompletions(cmd.Method, snap.UpdatedAt)
	run, hasActive := active[cmd.Method]
	if len(live) == 0 && !hasActive {
		cache.set(cmd.CommandID, commandRecord{Revoke: &RevokeResult{Rejected: "nothing_to_revoke"}})
		return
	}

	// the design decision: self-revocation is always allowed; a
	// different actor must clear the same verifier authorization check
	// that would let them attest this method (moderation/fraud response
	// by an authorized verifier, not an open door).
	if cmd.ActorID != input.SubjectID {
		var decision authz.Decision
		if err := workflow.ExecuteActivity(ctx, "ValidateVerifier", cmd.ActorID, cmd.Method).Get(ctx, &decision); err != nil || !decision.Authorized {
			cache.set(cmd.CommandID, commandRecord{Revoke: &RevokeResult{Rejected: "actor_not_authorized"}})
			return
		}
	}

	if hasActive {
		_ = workflow.SignalExternalWorkflow(ctx, run.WorkflowID, "", protocols.SignalCancel, nil).Get(ctx, nil)
	}

	if len(live) > 0 {
		// Most recently completed live instance; repeated Revoke calls
		// work through a multiplier method's instances one at a time.
		target := live[len(live)-1]
		if err := append1(model.VerificationEvent{
			Kind:         model.EventMethodRevoked,
			Method:       cmd.Method,
			ActorSubject: cmd.ActorID,
			CommandID:    cmd.CommandID,
			Data:         map[string]any{"sequence_index": target.SequenceIndex, "reason": cmd.Reason},
		}); err != nil {
			cache.set(cmd.CommandID, commandRecord{Revoke: &RevokeResult{Rejected: "temporarily_unavailable"}})
			return
		}
	}

	cache.set(cmd.CommandID, commandRecord{Revoke: &RevokeResult{NewLevel: snap.Level}})
}

func handleCancelMethod(ctx workflow.Context, active map[model.VerificationMethod]*activeRun, cmd CancelMethodCommand) {
	run, ok := active[cmd.Method]
	if !ok {
		return
	}
	_ = workflow.SignalExternalWorkflow(ctx, run.WorkflowID, "", protocols.SignalCancel, nil).Get(ctx, nil)
}

func handleChildOutcome(ctx workflow.Context, input OrchestratorInput, snap *model.SubjectSnapshot, active map[model.VerificationMethod]*activeRun, append1 func(model.VerificationEvent) error, method model.VerificationMethod, f workflow.Future) {
	run := active[method]
	delete(active, method)

	var outcome protocols.Outcome
	if err := f.Get(ctx, &outcome); err != nil {
		_ = append1(model.VerificationEvent{
			Kind: model.EventMethodFailed, Method: method,
			Data: map[string]any{"reason": err.Error()},
		})
		return
	}

	if outcome.Completed {
		liveCount := len(snap.LiveCompletions(method, snap.UpdatedAt))
		_ = append1(model.VerificationEvent{
			Kind:          model.EventMethodCompleted,
			Method:        method,
			ProtocolRunID: run.RunID,
			Data:          map[string]any{"sequence_index": liveCount + 1, "evidence_ref": outcome.EvidenceRef},
		})
		return
	}

	_ = append1(model.VerificationEvent{
		Kind:          model.EventMethodFailed,
		Method:        method,
		ProtocolRunID: run.RunID,
		Data:          map[string]any{"reason": outcome.FailureReason},
	})

	if outcome.FailureReason == protocols.FailureCompensationIncomplete {
		_ = workflow.ExecuteActivity(ctx, "NotifySubject", input.SubjectID, collaborators.NotifyCompensationFailed,
			map[string]any{"method": string(method)}).Get(ctx, nil)
	}
}

func handleExpiry(ctx workflow.Context, snap *model.SubjectSnapshot, append1 func(model.VerificationEvent) error, method model.VerificationMethod) {
	now := workflow.Now(ctx)
	var target *model.MethodCompletion
	for i := range snap.Completions[method] {
		c := &snap.Completions[method][i]
		if c.IsRevoked() || c.ExpiresAt == nil || c.ExpiresAt.After(now) {
			continue
		}
		if target == nil || c.ExpiresAt.Before(*target.ExpiresAt) {
			target = c
		}
	}
	if target == nil {
		return
	}
	_ = append1(model.VerificationEvent{
		Kind:   model.EventMethodExpired,
		Method: method,
		Data:   map[string]any{"sequence_index": target.SequenceIndex},
	})
}
