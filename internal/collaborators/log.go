package collaborators

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// LogNotifier is a minimal Notifier that logs deliveries. Choosing a
// real notification transport is a spec Non-goal; this stands in for
// whatever push/email/SMS gateway a deployment wires in its place.
type LogNotifier struct{}

func (LogNotifier) Deliver(ctx context.Context, subjectID string, kind NotificationKind, payload map[string]any) error {
	log.Printf("[notify] subject=%s kind=%s payload=%v", subjectID, kind, payload)
	return nil
}

// LogCodeDelivery is a minimal CodeDelivery that logs the code instead
// of sending it over email/SMS. Transport choice is a spec Non-goal.
type LogCodeDelivery struct{}

func (LogCodeDelivery) Send(ctx context.Context, target string, code string, ttl time.Duration) error {
	log.Printf("[code-delivery] target=%s code=%s ttl=%s", target, code, ttl)
	return nil
}

// LogReviewQueue is a minimal ReviewQueue that logs the submitted task
// and mints a review ID; a real deployment would enqueue into whatever
// human-review tooling it runs.
type LogReviewQueue struct{}

func (LogReviewQueue) Enqueue(ctx context.Context, task ReviewTask) (string, error) {
	reviewID := uuid.NewString()
	log.Printf("[review-queue] review_id=%s subject=%s method=%s submitted_at=%s", reviewID, task.SubjectID, task.Method, task.SubmittedAt)
	return reviewID, nil
}
