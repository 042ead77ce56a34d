package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"verifyengine/internal/collaborators"
	"verifyengine/internal/journal"
	"verifyengine/internal/model"
	"verifyengine/internal/protocols"
	"verifyengine/internal/tokenstore"
	"verifyengine/internal/verifierstore"
)

type OrchestratorTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env          *testsuite.TestWorkflowEnvironment
	journalStore *journal.MemoryStore
	orchActs     *Activities
	protoActs    *protocols.Activities
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.journalStore = journal.NewMemoryStore()

	s.orchActs = &Activities{Journal: s.journalStore, Notifier: collaborators.LogNotifier{}}
	s.protoActs = &protocols.Activities{
		Journal:   s.journalStore,
		Verifiers: verifierstore.NewMemoryStore(),
		Tokens:    tokenstore.NewMemoryStore(),
		Notifier:  collaborators.LogNotifier{},
		Codes:     collaborators.LogCodeDelivery{},
		Reviews:   collaborators.LogReviewQueue{},
	}

	s.env.RegisterActivity(s.orchActs.AppendAndSnapshot)
	s.env.RegisterActivity(s.orchActs.LoadSnapshot)
	s.env.RegisterActivity(s.orchActs.NotifySubject)
	s.env.RegisterActivity(s.protoActs.GenerateChallenge)
	s.env.RegisterActivity(s.protoActs.DeliverCode)
	s.env.RegisterActivity(s.protoActs.ValidateVerifier)
	s.env.RegisterActivity(s.protoActs.ValidateAttestor)
	s.env.RegisterActivity(s.protoActs.RecordAttestation)

	s.env.RegisterWorkflow(protocols.CodeChallenge)
	s.env.RegisterWorkflow(protocols.Attestation)
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func (s *OrchestratorTestSuite) snapshot(subjectID string) model.SubjectSnapshot {
	snap, err := s.journalStore.Snapshot(context.Background(), subjectID, model.Individual)
	require.NoError(s.T(), err)
	return snap
}

// seedAtMinimalLevel gives a subject two PersonalReference completions
// (50 points each) so their own score reaches the 100-point Minimal
// threshold, qualifying them to attest under the minimum-level rule.
func (s *OrchestratorTestSuite) seedAtMinimalLevel(id string) {
	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		_, err := s.journalStore.Append(ctx, id, model.Individual, model.VerificationEvent{
			Kind: model.EventMethodCompleted, Method: model.PersonalReference, Data: map[string]any{"sequence_index": i},
		}, -1)
		require.NoError(s.T(), err)
	}
}

// TestEmailCompletionRaisesScore drives a StartMethod(Email) command
// through a real Code-Challenge child, captures the generated code via
// the activity-completed listener, and replays it through CodeEntered.
func (s *OrchestratorTestSuite) TestEmailCompletionRaisesScore() {
	subjectID := "subject-email-1"

	var code string
	s.env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, err error) {
		if info.ActivityType.Name == "GenerateChallenge" {
			var c protocols.Challenge
			if result != nil && result.Get(&c) == nil {
				code = c.Code
			}
		}
	})

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalStartMethod, StartMethodCommand{
			CommandID: "cmd-1", Method: model.Email, Params: map[string]any{"target": "person@example.org"},
		})
	}, time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalCodeEntered, CodeEnteredCommand{
			CommandID: "cmd-2", Method: model.Email, Code: code,
		})
	}, 3*time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.env.CancelWorkflow()
	}, 6*time.Second)

	s.env.ExecuteWorkflow(SubjectOrchestrator, OrchestratorInput{SubjectID: subjectID, Class: model.Individual})

	require.True(s.T(), s.env.IsWorkflowCompleted())

	snap := s.snapshot(subjectID)
	require.Equal(s.T(), 30, snap.Score)
	require.Len(s.T(), snap.LiveCompletions(model.Email, snap.UpdatedAt), 1)
}

// TestEmailPlusTwoAttestationsReachMinimal covers a baseline scenario:
// a subject with no government-issued document
// reaches Minimal (100 points) through email (30) plus two community
// attestations (40 each) from attestors who have each independently
// reached Minimal themselves.
func (s *OrchestratorTestSuite) TestEmailPlusTwoAttestationsReachMinimal() {
	subjectID := "subject-homeless-1"
	s.seedAtMinimalLevel("attestor-1")
	s.seedAtMinimalLevel("attestor-2")

	var code string
	s.env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, err error) {
		if info.ActivityType.Name == "GenerateChallenge" {
			var c protocols.Challenge
			if result != nil && result.Get(&c) == nil {
				code = c.Code
			}
		}
	})

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalStartMethod, StartMethodCommand{
			CommandID: "cmd-1", Method: model.Email, Params: map[string]any{"target": "person@example.org"},
		})
	}, time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalCodeEntered, CodeEnteredCommand{
			CommandID: "cmd-2", Method: model.Email, Code: code,
		})
	}, 3*time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalCommunityAttest, CommunityAttestCommand{
			CommandID: "cmd-3", AttestorID: "attestor-1", Text: "I vouch for them",
		})
	}, 5*time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalCommunityAttest, CommunityAttestCommand{
			CommandID: "cmd-4", AttestorID: "attestor-2", Text: "can confirm",
		})
	}, 8*time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.env.CancelWorkflow()
	}, 14*time.Second)

	s.env.ExecuteWorkflow(SubjectOrchestrator, OrchestratorInput{SubjectID: subjectID, Class: model.Individual})

	require.True(s.T(), s.env.IsWorkflowCompleted())

	snap := s.snapshot(subjectID)
	require.Equal(s.T(), 110, snap.Score) // 30 + 40 + 40
	require.Equal(s.T(), model.Minimal, snap.Level)

	sawLevelChanged := false
	events, err := s.journalStore.ReadJournal(context.Background(), subjectID, -1)
	require.NoError(s.T(), err)
	for _, ev := range events {
		if ev.Kind == model.EventLevelChanged {
			sawLevelChanged = true
		}
	}
	require.True(s.T(), sawLevelChanged)
}

// TestDuplicateStartMethodCommandIsIdempotent checks that replaying the
// same command id does not spawn a second child protocol run.
func (s *OrchestratorTestSuite) TestDuplicateStartMethodCommandIsIdempotent() {
	subjectID := "subject-idempotent-1"
	var starts int
	s.env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, err error) {
		if info.ActivityType.Name == "GenerateChallenge" {
			starts++
		}
	})

	cmd := StartMethodCommand{CommandID: "cmd-dup", Method: model.Email, Params: map[string]any{"target": "person@example.org"}}
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalStartMethod, cmd)
	}, time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalStartMethod, cmd)
	}, 2*time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.env.CancelWorkflow()
	}, 5*time.Second)

	s.env.ExecuteWorkflow(SubjectOrchestrator, OrchestratorInput{SubjectID: subjectID, Class: model.Individual})

	require.True(s.T(), s.env.IsWorkflowCompleted())
	require.Equal(s.T(), 1, starts)
}

// TestRevokeByUnauthorizedActorIsRejected checks that an actor other
// than the subject must clear the verifier authorization check before
// a completed method can be revoked on their behalf.
func (s *OrchestratorTestSuite) TestRevokeByUnauthorizedActorIsRejected() {
	subjectID := "subject-revoke-1"
	ctx := context.Background()
	_, err := s.journalStore.Append(ctx, subjectID, model.Individual, model.VerificationEvent{
		Kind: model.EventMethodCompleted, Method: model.Email, At: time.Now().UTC(), Data: map[string]any{"sequence_index": 1},
	}, -1)
	require.NoError(s.T(), err)

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalRevoke, RevokeCommand{
			CommandID: "cmd-revoke-1", Method: model.Email, Reason: "fraud", ActorID: "stranger-1",
		})
	}, time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.env.CancelWorkflow()
	}, 5*time.Second)

	s.env.ExecuteWorkflow(SubjectOrchestrator, OrchestratorInput{SubjectID: subjectID, Class: model.Individual})

	require.True(s.T(), s.env.IsWorkflowCompleted())

	snap := s.snapshot(subjectID)
	require.Len(s.T(), snap.LiveCompletions(model.Email, snap.UpdatedAt), 1) // not revoked
}
