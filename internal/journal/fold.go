// Package journal implements the event log and derived snapshot cache:
// an append-only verification-event journal, plus a cache over it that
// must always equal the journal's fold through the scoring model.
package journal

import (
	"time"

	"verifyengine/internal/model"
	"verifyengine/internal/scoring"
)

// Fold replays a subject's journal through the scoring model to produce
// its current snapshot. It is pure and deterministic: the same events in
// the same order always produce the same snapshot.
func Fold(subjectID string, class model.SubjectClass, events []model.VerificationEvent) model.SubjectSnapshot {
	snap := model.NewSnapshot(subjectID, class)

	for _, ev := range events {
		applyEvent(&snap, ev)
		snap.LastSeq = ev.Seq
		snap.UpdatedAt = ev.At
	}

	snap.Score = scoring.Score(snap.Completions, snap.Class, snap.UpdatedAt)
	snap.Level = scoring.Level(snap.Score)
	return snap
}

func applyEvent(snap *model.SubjectSnapshot, ev model.VerificationEvent) {
	switch ev.Kind {
	case model.EventMethodStarted:
		run := model.ProtocolRun{
			ID:        stringField(ev.Data, "run_id"),
			Method:    ev.Method,
			State:     model.ProtocolPending,
			StartedAt: ev.At,
			Params:    mapField(ev.Data, "params"),
		}
		if d, ok := ev.Data["deadline"].(time.Time); ok {
			run.Deadline = d
		}
		snap.ActiveProtocols[ev.Method] = run

	case model.EventMethodCompleted:
		delete(snap.ActiveProtocols, ev.Method)
		seqIdx := len(snap.Completions[ev.Method]) + 1
		if v, ok := ev.Data["sequence_index"].(int); ok && v > 0 {
			seqIdx = v
		}
		var evidence []byte
		if b, ok := ev.Data["evidence_ref"].([]byte); ok {
			evidence = b
		}
		completedAt := ev.At
		if t, ok := ev.Data["completed_at"].(time.Time); ok {
			completedAt = t
		}
		decayDays := model.Scores[ev.Method].DecayDays
		completion := model.MethodCompletion{
			Method:        ev.Method,
			SequenceIndex: seqIdx,
			CompletedAt:   completedAt,
			EvidenceRef:   evidence,
			ExpiresAt:     model.ExpiresAtFor(completedAt, decayDays),
		}
		snap.Completions[ev.Method] = append(snap.Completions[ev.Method], completion)

	case model.EventMethodFailed:
		reason := stringField(ev.Data, "reason")
		if reason != model.FailureReasonCompensationIncomplete {
			delete(snap.ActiveProtocols, ev.Method)
		} else {
			// Stuck, not resolved: the only "stuck" state per the
			// compensation-failure rule, so it stays queryable as an
			// active, failed run rather than vanishing once
			// compensation gives up.
			run := snap.ActiveProtocols[ev.Method]
			run.Method = ev.Method
			run.State = model.ProtocolFailed
			run.FailureReason = reason
			snap.ActiveProtocols[ev.Method] = run
		}

	case model.EventMethodRevoked:
		idx := intField(ev.Data, "sequence_index")
		reason := stringField(ev.Data, "reason")
		cs := snap.Completions[ev.Method]
		for i := range cs {
			if cs[i].SequenceIndex == idx && !cs[i].IsRevoked() {
				at := ev.At
				cs[i].RevokedAt = &at
				cs[i].RevocationReason = reason
				break
			}
		}
		delete(snap.ActiveProtocols, ev.Method)

	case model.EventMethodExpired:
		// Expiry is time-derived: LiveCompletions/Score already exclude
		// a completion once `now` passes its ExpiresAt. The event exists
		// for the audit trail and to drive the orchestrator's
		// level-changed notification, not to mutate the completion.

	case model.EventVerifierConfirmed, model.EventVerifierConfirmationRevoked,
		model.EventAttestationReceived, model.EventLevelChanged, model.EventSnapshotRebuilt:
		// Informational / derived-field events: they do not themselves
		// mutate Completions or ActiveProtocols.
	}
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func mapField(data map[string]any, key string) map[string]any {
	if v, ok := data[key].(map[string]any); ok {
		return v
	}
	return nil
}
