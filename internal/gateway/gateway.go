// Package gateway implements the command/query gateway:
// the single entry point external callers use to reach a subject's
// orchestrator workflow, translating request/response HTTP-shaped calls
// into the orchestrator's signal+query idiom. It owns no durable state
// of its own beyond the token store lookup needed to resolve a verifier's
// QR token into a subject/run pair, and the verifier record lookup
// needed to fast-fail an obviously-denied confirmation before it ever
// reaches the target subject's orchestrator.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	workflowservice "go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"verifyengine/internal/authz"
	"verifyengine/internal/metrics"
	"verifyengine/internal/model"
	"verifyengine/internal/orchestrator"
	"verifyengine/internal/tokenstore"
	"verifyengine/internal/verifierstore"
)

// TemporalClient is the slice of client.Client the gateway actually
// calls. A real *client.Client satisfies it structurally; tests supply
// a small fake instead of standing up a Temporal server.
type TemporalClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error)
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
}

// Gateway forwards commands to per-subject orchestrator workflows,
// creating one on first use. It never holds a lock across subjects:
// Temporal's own idempotent-attach ExecuteWorkflow semantics (starting a
// workflow with a deterministic ID and the default
// WorkflowExecutionErrorWhenAlreadyStarted=false) already give
// concurrent callers of the same subject a single winning execution,
// without an in-process mutex. This deliberately differs from a
// reject-duplicate start policy, which would be appropriate for a
// one-shot workflow but not for a subject's long-lived orchestrator
// that many callers attach to over its lifetime.
type Gateway struct {
	Client    TemporalClient
	TaskQueue string
	Tokens    tokenstore.Store
	Verifiers verifierstore.Store
	Metrics   *metrics.Metrics

	// PollInterval and PollTimeout govern the command_result poll loop
	// started after every signal. Defaults apply when zero.
	PollInterval time.Duration
	PollTimeout  time.Duration
}

const (
	defaultPollInterval = 150 * time.Millisecond
	defaultPollTimeout  = 10 * time.Second
)

func orchestratorWorkflowID(subjectID string) string {
	return "subject-orchestrator-" + subjectID
}

// ensureOrchestrator attaches to a subject's orchestrator workflow,
// starting one if none is running yet. class is only used on the first
// start; later calls ignore it since the orchestrator rehydrates its
// own class from the journal.
func (g *Gateway) ensureOrchestrator(ctx context.Context, subjectID string, class model.SubjectClass) (client.WorkflowRun, error) {
	opts := client.StartWorkflowOptions{
		ID:        orchestratorWorkflowID(subjectID),
		TaskQueue: g.TaskQueue,
	}
	run, err := g.Client.ExecuteWorkflow(ctx, opts, orchestrator.SubjectOrchestrator, orchestrator.OrchestratorInput{
		SubjectID: subjectID,
		Class:     class,
	})
	if err == nil {
		g.Metrics.OrchestratorAttached()
	}
	return run, err
}

// orchestratorExists reports whether subjectID already has a started
// orchestrator workflow, without starting one as a side effect —
// unlike ensureOrchestrator, which idempotently attaches-or-starts.
// DescribeWorkflowExecution's serviceerror.NotFound is the documented
// signal for "no such workflow"; any other error is a real failure.
func (g *Gateway) orchestratorExists(ctx context.Context, subjectID string) (bool, error) {
	_, err := g.Client.DescribeWorkflowExecution(ctx, orchestratorWorkflowID(subjectID), "")
	if err == nil {
		return true, nil
	}
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, err
}

// verifierPreflight is the gateway-side check the command/query surface
// owes a verifier confirmation before it ever reaches the two-party
// saga: the verifier must have their own orchestrator (some
// verification history of their own) and must not be obviously denied
// by the authorization policy. This mirrors protocols.Activities's
// ValidateVerifier, but reads the verifier's level off their
// orchestrator's query handler instead of the journal directly, since
// the gateway has no journal access of its own. It is a fast-fail, not
// the authoritative check — TwoPartyInPerson still calls
// ValidateVerifier once the confirmation is inside the saga, so a
// denial that only becomes true between this check and that one (e.g.
// a credential revoked mid-flight) is still caught there.
func (g *Gateway) verifierPreflight(ctx context.Context, verifierID string) (model.DenialReason, error) {
	exists, err := g.orchestratorExists(ctx, verifierID)
	if err != nil {
		return "", fmt.Errorf("check verifier orchestrator: %w", err)
	}
	if !exists {
		return model.DenialNotAVerifier, nil
	}

	record, ok, err := g.Verifiers.Get(ctx, verifierID)
	if err != nil {
		return "", fmt.Errorf("load verifier record: %w", err)
	}
	if !ok {
		return model.DenialNotAVerifier, nil
	}

	var level model.Level
	qr, err := g.Client.QueryWorkflow(ctx, orchestratorWorkflowID(verifierID), "", orchestrator.QueryLevel)
	if err != nil {
		return "", fmt.Errorf("query verifier level: %w", err)
	}
	if err := qr.Get(&level); err != nil {
		return "", fmt.Errorf("decode verifier level: %w", err)
	}

	decision := authz.Authorize(record, model.SubjectSnapshot{Level: level}, model.TwoPartyInPerson, time.Now().UTC())
	if !decision.Authorized {
		return decision.Reason, nil
	}
	return "", nil
}

// commandResult mirrors orchestrator.commandRecord's exported fields.
// It is a separate type because commandRecord itself is unexported —
// Temporal's query codec only matches on field name and JSON-visible
// shape, not on shared Go type identity, so this round-trips correctly.
type commandResult struct {
	StartMethod     *orchestrator.StartMethodResult
	CodeEntered     *orchestrator.CodeEnteredResult
	VerifierConfirm *orchestrator.VerifierConfirmResult
	CommunityAttest *orchestrator.CommunityAttestResult
	Revoke          *orchestrator.RevokeResult
}

// awaitCommand polls the orchestrator's command_result query until
// extract returns a non-nil result or the poll timeout elapses. The
// orchestrator answers this query from its commands map synchronously
// as soon as the signal is processed, so most calls resolve within one or two poll ticks.
func awaitCommand[T any](ctx context.Context, g *Gateway, run client.WorkflowRun, commandID string, extract func(commandResult) *T) (*T, error) {
	interval := g.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := g.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		qr, err := g.Client.QueryWorkflow(ctx, run.GetID(), run.GetRunID(), orchestrator.QueryCommandResult, commandID)
		if err != nil {
			return nil, fmt.Errorf("query command_result: %w", err)
		}
		var res commandResult
		if err := qr.Get(&res); err != nil {
			return nil, fmt.Errorf("decode command_result: %w", err)
		}
		if v := extract(res); v != nil {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for command %s to resolve", commandID)
		case <-ticker.C:
		}
	}
}

func newCommandID() string { return uuid.NewString() }

// StartMethod begins a verification method for subject.
func (g *Gateway) StartMethod(ctx context.Context, subjectID string, class model.SubjectClass, method model.VerificationMethod, params map[string]any) (*orchestrator.StartMethodResult, error) {
	run, err := g.ensureOrchestrator(ctx, subjectID, class)
	if err != nil {
		return nil, err
	}
	commandID := newCommandID()
	cmd := orchestrator.StartMethodCommand{CommandID: commandID, Method: method, Params: params}
	if err := g.Client.SignalWorkflow(ctx, run.GetID(), run.GetRunID(), orchestrator.SignalStartMethod, cmd); err != nil {
		return nil, fmt.Errorf("signal start_method: %w", err)
	}
	res, err := awaitCommand(ctx, g, run, commandID, func(r commandResult) *orchestrator.StartMethodResult { return r.StartMethod })
	if err == nil {
		outcome := "started"
		if res.Rejected != "" {
			outcome = res.Rejected
		}
		g.Metrics.CommandProcessed("start_method", outcome)
	}
	return res, err
}

// CodeEntered relays a caller's code guess into their active
// Code-Challenge run.
func (g *Gateway) CodeEntered(ctx context.Context, subjectID string, class model.SubjectClass, method model.VerificationMethod, code string) (*orchestrator.CodeEnteredResult, error) {
	run, err := g.ensureOrchestrator(ctx, subjectID, class)
	if err != nil {
		return nil, err
	}
	commandID := newCommandID()
	cmd := orchestrator.CodeEnteredCommand{CommandID: commandID, Method: method, Code: code}
	if err := g.Client.SignalWorkflow(ctx, run.GetID(), run.GetRunID(), orchestrator.SignalCodeEntered, cmd); err != nil {
		return nil, fmt.Errorf("signal code_entered: %w", err)
	}
	res, err := awaitCommand(ctx, g, run, commandID, func(r commandResult) *orchestrator.CodeEnteredResult { return r.CodeEntered })
	if err == nil {
		g.Metrics.CommandProcessed("code_entered", acceptedOutcome(res.Accepted, res.Rejected))
	}
	return res, err
}

// VerifierConfirm resolves a verifier's scanned QR token to its bound
// subject and run, runs the gateway-side verifier preflight, then
// forwards the confirmation. TwoPartyInPerson is the only protocol that
// issues QR tokens, so the method is fixed rather than carried in the
// token binding.
func (g *Gateway) VerifierConfirm(ctx context.Context, token, verifierID string, evidence map[string]any) (*orchestrator.VerifierConfirmResult, error) {
	binding, ok, err := g.Tokens.Get(ctx, token)
	if err != nil {
		var expired model.TokenExpiredError
		if errors.As(err, &expired) {
			g.Metrics.CommandProcessed("verifier_confirm", "token_expired")
			return &orchestrator.VerifierConfirmResult{Rejected: "token_expired"}, nil
		}
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	if !ok {
		g.Metrics.CommandProcessed("verifier_confirm", "token_not_found")
		return &orchestrator.VerifierConfirmResult{Rejected: "token_not_found"}, nil
	}

	if reason, err := g.verifierPreflight(ctx, verifierID); err != nil {
		return nil, err
	} else if reason != "" {
		g.Metrics.CommandProcessed("verifier_confirm", string(reason))
		return &orchestrator.VerifierConfirmResult{Rejected: string(reason)}, nil
	}

	// The orchestrator for binding.SubjectID already exists by the time
	// a verifier is confirming (StartMethod created it); Individual
	// here is a placeholder ensureOrchestrator ignores on attach.
	run, err := g.ensureOrchestrator(ctx, binding.SubjectID, model.Individual)
	if err != nil {
		return nil, err
	}
	commandID := newCommandID()
	cmd := orchestrator.VerifierConfirmCommand{
		CommandID: commandID, Method: model.TwoPartyInPerson, ProtocolRunID: binding.ProtocolRunID,
		VerifierID: verifierID, Token: token, Evidence: evidence,
	}
	if err := g.Client.SignalWorkflow(ctx, run.GetID(), run.GetRunID(), orchestrator.SignalVerifierConfirm, cmd); err != nil {
		return nil, fmt.Errorf("signal verifier_confirm: %w", err)
	}
	res, err := awaitCommand(ctx, g, run, commandID, func(r commandResult) *orchestrator.VerifierConfirmResult { return r.VerifierConfirm })
	if err == nil {
		g.Metrics.CommandProcessed("verifier_confirm", acceptedOutcome(res.Accepted, res.Rejected))
	}
	return res, err
}

// CommunityAttest submits an attestor's statement about subject.
func (g *Gateway) CommunityAttest(ctx context.Context, subjectID string, class model.SubjectClass, attestorID, text string) (*orchestrator.CommunityAttestResult, error) {
	run, err := g.ensureOrchestrator(ctx, subjectID, class)
	if err != nil {
		return nil, err
	}
	commandID := newCommandID()
	cmd := orchestrator.CommunityAttestCommand{CommandID: commandID, AttestorID: attestorID, Text: text}
	if err := g.Client.SignalWorkflow(ctx, run.GetID(), run.GetRunID(), orchestrator.SignalCommunityAttest, cmd); err != nil {
		return nil, fmt.Errorf("signal community_attest: %w", err)
	}
	res, err := awaitCommand(ctx, g, run, commandID, func(r commandResult) *orchestrator.CommunityAttestResult { return r.CommunityAttest })
	if err == nil {
		g.Metrics.CommandProcessed("community_attest", acceptedOutcome(res.Accepted, res.Rejected))
	}
	return res, err
}

// Revoke withdraws a completed method, either by the subject themself or
// by an authorized verifier acting on their behalf.
func (g *Gateway) Revoke(ctx context.Context, subjectID string, class model.SubjectClass, method model.VerificationMethod, actorID, reason string) (*orchestrator.RevokeResult, error) {
	run, err := g.ensureOrchestrator(ctx, subjectID, class)
	if err != nil {
		return nil, err
	}
	commandID := newCommandID()
	cmd := orchestrator.RevokeCommand{CommandID: commandID, Method: method, Reason: reason, ActorID: actorID}
	if err := g.Client.SignalWorkflow(ctx, run.GetID(), run.GetRunID(), orchestrator.SignalRevoke, cmd); err != nil {
		return nil, fmt.Errorf("signal revoke: %w", err)
	}
	res, err := awaitCommand(ctx, g, run, commandID, func(r commandResult) *orchestrator.RevokeResult { return r.Revoke })
	if err == nil {
		outcome := "revoked"
		if res.Rejected != "" {
			outcome = res.Rejected
		}
		g.Metrics.CommandProcessed("revoke", outcome)
	}
	return res, err
}

// acceptedOutcome labels a command_result's outcome for the
// CommandProcessed metric, favoring the specific rejection reason when
// present over the generic "accepted"/"rejected" split.
func acceptedOutcome(accepted bool, rejected string) string {
	if rejected != "" {
		return rejected
	}
	if accepted {
		return "accepted"
	}
	return "rejected"
}

// CancelMethod cancels a subject's in-flight protocol run for method.
// Fire-and-forget: the CancelMethod command carries no reply.
func (g *Gateway) CancelMethod(ctx context.Context, subjectID string, class model.SubjectClass, method model.VerificationMethod) error {
	run, err := g.ensureOrchestrator(ctx, subjectID, class)
	if err != nil {
		return err
	}
	cmd := orchestrator.CancelMethodCommand{Method: method}
	if err := g.Client.SignalWorkflow(ctx, run.GetID(), run.GetRunID(), orchestrator.SignalCancelMethod, cmd); err != nil {
		return fmt.Errorf("signal cancel_method: %w", err)
	}
	return nil
}
