// Package orchestrator implements the per-subject outer state machine:
// the long-running workflow that owns a subject's
// snapshot, spawns and cancels child verification protocols, consumes
// their outcomes, and answers the command/query surface the gateway
// forwards to it.
package orchestrator

import (
	"context"
	"fmt"

	"verifyengine/internal/collaborators"
	"verifyengine/internal/journal"
	"verifyengine/internal/metrics"
	"verifyengine/internal/model"
)

// Activities bundles the orchestrator's own side-effecting operations:
// journal mutation/read and notification dispatch. The child protocols
// have their own Activities (internal/protocols) for their
// method-specific collaborators.
type Activities struct {
	Journal  journal.Store
	Notifier collaborators.Notifier
	Metrics  *metrics.Metrics
}

// AppendAndSnapshot appends one event and returns the freshly re-folded
// snapshot in a single round trip, since every orchestrator-driven
// journal mutation immediately needs the recomputed score and level.
func (a *Activities) AppendAndSnapshot(ctx context.Context, subjectID string, class model.SubjectClass, event model.VerificationEvent, expectedLastSeq int64) (model.SubjectSnapshot, error) {
	if _, err := a.Journal.Append(ctx, subjectID, class, event, expectedLastSeq); err != nil {
		return model.SubjectSnapshot{}, fmt.Errorf("append %s: %w", event.Kind, err)
	}
	snap, err := a.Journal.Snapshot(ctx, subjectID, class)
	if err != nil {
		return model.SubjectSnapshot{}, fmt.Errorf("reload snapshot: %w", err)
	}
	if event.Kind == model.EventLevelChanged {
		a.Metrics.LevelChanged(string(snap.Level))
	}
	return snap, nil
}

// LoadSnapshot rehydrates a subject's snapshot from the journal, used
// on orchestrator start and after continue-as-new.
func (a *Activities) LoadSnapshot(ctx context.Context, subjectID string, class model.SubjectClass) (model.SubjectSnapshot, error) {
	return a.Journal.Snapshot(ctx, subjectID, class)
}

// NotifySubject dispatches a notification about a subject's
// verification state. The orchestrator never blocks a state transition
// on this succeeding. Named distinctly from
// protocols.Activities.Notify since both are registered on the same
// worker and Temporal derives activity type names from method names.
func (a *Activities) NotifySubject(ctx context.Context, subjectID string, kind collaborators.NotificationKind, payload map[string]any) error {
	return a.Notifier.Deliver(ctx, subjectID, kind, payload)
}
