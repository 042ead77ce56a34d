// Package collaborators defines the external-system collaborator
// contracts: notification delivery, code delivery, and
// the document review queue. Each is a side-effecting call the engine
// treats as retryable and at-least-once; the bounded exponential
// backoff policy (initial 1s, factor 2, cap 60s, max 10
// attempts) is applied where these are invoked as Temporal activities,
// not inside the collaborators themselves — see the workflow.ActivityOptions
// each workflow in the protocols package sets.
package collaborators

import (
	"context"
	"time"
)

// NotificationKind distinguishes the few notification shapes the engine
// emits; payload carries the rest.
type NotificationKind string

const (
	NotifyLevelChanged       NotificationKind = "level_changed"
	NotifyMethodCompleted    NotificationKind = "method_completed"
	NotifyMethodFailed       NotificationKind = "method_failed"
	NotifyVerifierConfirmed  NotificationKind = "verifier_confirmed"
	NotifyCompensationFailed NotificationKind = "compensation_failed"
)

// Notifier delivers notifications about a subject's verification state.
// Delivery is at-least-once; the engine never blocks a state transition
// on delivery succeeding.
type Notifier interface {
	Deliver(ctx context.Context, subjectID string, kind NotificationKind, payload map[string]any) error
}

// CodeDelivery sends a one-time code to an email address or phone
// number for the Code-Challenge protocol.
type CodeDelivery interface {
	Send(ctx context.Context, target string, code string, ttl time.Duration) error
}

// ReviewTask is the document handed to a human reviewer by the
// Human-Review protocol.
type ReviewTask struct {
	SubjectID  string
	Method     string
	EvidenceRef []byte
	SubmittedAt time.Time
}

// ReviewQueue submits document review tasks to a human-staffed queue.
// The engine awaits the resulting decision via a workflow signal, not
// by polling this interface.
type ReviewQueue interface {
	Enqueue(ctx context.Context, task ReviewTask) (reviewID string, err error)
}
