package protocols

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"verifyengine/internal/model"
)

type TwoPartyTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env  *testsuite.TestWorkflowEnvironment
	acts *Activities
}

func (s *TwoPartyTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.acts = newTestActivities()
	s.env.RegisterActivity(s.acts.IssueQRTokens)
	s.env.RegisterActivity(s.acts.LookupToken)
	s.env.RegisterActivity(s.acts.InvalidateTokens)
	s.env.RegisterActivity(s.acts.ValidateVerifier)
	s.env.RegisterActivity(s.acts.RecordVerifierConfirmation)
	s.env.RegisterActivity(s.acts.RevokeVerifierConfirmation)
	s.env.RegisterActivity(s.acts.RevokeConfirmations)

	require.NoError(s.T(), s.acts.Verifiers.Put(context.Background(), model.VerifierRecord{
		SubjectID: "verifier-a", Authorized: true, Credentials: map[model.CredentialKind]bool{model.CommunityLeader: true},
	}))
	// A community leader needs Standard level (250) to be authorized:
	// TwoPartyInPerson 150 + GovernmentID 100.
	for _, m := range []model.VerificationMethod{model.TwoPartyInPerson, model.GovernmentID} {
		_, err := s.acts.Journal.Append(context.Background(), "verifier-a", model.Individual, model.VerificationEvent{
			Kind: model.EventMethodCompleted, Method: m, Data: map[string]any{"sequence_index": 1},
		}, -1)
		require.NoError(s.T(), err)
	}
	require.NoError(s.T(), s.acts.Verifiers.Put(context.Background(), model.VerifierRecord{
		SubjectID: "verifier-b", Authorized: true, Credentials: map[model.CredentialKind]bool{model.NotaryPublic: true},
	}))
}

func TestTwoPartyTestSuite(t *testing.T) {
	suite.Run(t, new(TwoPartyTestSuite))
}

func (s *TwoPartyTestSuite) input() TwoPartySagaInput {
	return TwoPartySagaInput{
		TwoPartyParams: TwoPartyParams{SubjectID: "subject-1", ProtocolRunID: "run-1"},
		SubjectClass:   model.Individual,
	}
}

func (s *TwoPartyTestSuite) TestTwoDistinctVerifiersCompletes() {
	var pair TokenPair
	s.env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, err error) {
		if info.ActivityType.Name == "IssueQRTokens" {
			var p TokenPair
			if result != nil && result.Get(&p) == nil {
				pair = p
			}
		}
	})

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{Token: pair.Slot1, VerifierID: "verifier-a"})
	}, time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{Token: pair.Slot2, VerifierID: "verifier-b"})
	}, 2*time.Second)

	s.env.ExecuteWorkflow(TwoPartyInPerson, s.input())

	require.True(s.T(), s.env.IsWorkflowCompleted())
	require.NoError(s.T(), s.env.GetWorkflowError())

	var outcome Outcome
	require.NoError(s.T(), s.env.GetWorkflowResult(&outcome))
	require.True(s.T(), outcome.Completed)
}

func (s *TwoPartyTestSuite) TestSameVerifierBothSlotsStaysAwaitingSecond() {
	var pair TokenPair
	s.env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, err error) {
		if info.ActivityType.Name == "IssueQRTokens" {
			var p TokenPair
			if result != nil && result.Get(&p) == nil {
				pair = p
			}
		}
	})

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{Token: pair.Slot1, VerifierID: "verifier-a"})
	}, time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{Token: pair.Slot2, VerifierID: "verifier-a"})
	}, 2*time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{Token: pair.Slot2, VerifierID: "verifier-b"})
	}, 3*time.Second)

	s.env.ExecuteWorkflow(TwoPartyInPerson, s.input())

	require.True(s.T(), s.env.IsWorkflowCompleted())
	require.NoError(s.T(), s.env.GetWorkflowError())

	var outcome Outcome
	require.NoError(s.T(), s.env.GetWorkflowResult(&outcome))
	require.True(s.T(), outcome.Completed)
}

func (s *TwoPartyTestSuite) TestUnauthorizedVerifierCompensates() {
	var pair TokenPair
	s.env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, err error) {
		if info.ActivityType.Name == "IssueQRTokens" {
			var p TokenPair
			if result != nil && result.Get(&p) == nil {
				pair = p
			}
		}
	})

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{Token: pair.Slot1, VerifierID: "unknown-verifier"})
	}, time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{Token: pair.Slot2, VerifierID: "verifier-b"})
	}, 2*time.Second)

	s.env.ExecuteWorkflow(TwoPartyInPerson, s.input())

	require.True(s.T(), s.env.IsWorkflowCompleted())
	require.NoError(s.T(), s.env.GetWorkflowError())

	var outcome Outcome
	require.NoError(s.T(), s.env.GetWorkflowResult(&outcome))
	require.False(s.T(), outcome.Completed)
	require.Equal(s.T(), FailureUnauthorizedVerifier, outcome.FailureReason)
}
