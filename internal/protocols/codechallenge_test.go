package protocols

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"
)

type CodeChallengeTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
	acts *Activities
}

func (s *CodeChallengeTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.acts = newTestActivities()
	s.env.RegisterActivity(s.acts.GenerateChallenge)
	s.env.RegisterActivity(s.acts.DeliverCode)
}

func TestCodeChallengeTestSuite(t *testing.T) {
	suite.Run(t, new(CodeChallengeTestSuite))
}

func (s *CodeChallengeTestSuite) TestCorrectCodeCompletes() {
	var deliveredCode string
	s.env.SetOnActivityCompletedListener(func(activityInfo *activity.Info, result converter.EncodedValue, err error) {
		if activityInfo.ActivityType.Name == "GenerateChallenge" {
			var c Challenge
			if result != nil && result.Get(&c) == nil {
				deliveredCode = c.Code
			}
		}
	})

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(SignalCodeEntered, CodeEnteredSignal{Code: deliveredCode})
	}, time.Second)

	s.env.ExecuteWorkflow(CodeChallenge, CodeChallengeParams{
		SubjectID: "subject-1",
		Method:    "email",
		Target:    "person@example.com",
	})

	require.True(s.T(), s.env.IsWorkflowCompleted())
	require.NoError(s.T(), s.env.GetWorkflowError())

	var outcome Outcome
	require.NoError(s.T(), s.env.GetWorkflowResult(&outcome))
	require.True(s.T(), outcome.Completed)
}

func (s *CodeChallengeTestSuite) TestWrongCodeExhaustsAttempts() {
	s.env.RegisterDelayedCallback(func() {
		for i := 0; i < defaultMaxAttempts; i++ {
			s.env.SignalWorkflow(SignalCodeEntered, CodeEnteredSignal{Code: "000000"})
		}
	}, time.Second)

	s.env.ExecuteWorkflow(CodeChallenge, CodeChallengeParams{
		SubjectID: "subject-1",
		Method:    "email",
		Target:    "person@example.com",
	})

	require.True(s.T(), s.env.IsWorkflowCompleted())
	require.NoError(s.T(), s.env.GetWorkflowError())

	var outcome Outcome
	require.NoError(s.T(), s.env.GetWorkflowResult(&outcome))
	require.False(s.T(), outcome.Completed)
	require.Equal(s.T(), FailureExhausted, outcome.FailureReason)
}

func (s *CodeChallengeTestSuite) TestExpiryFailsProtocol() {
	s.env.ExecuteWorkflow(CodeChallenge, CodeChallengeParams{
		SubjectID: "subject-1",
		Method:    "email",
		Target:    "person@example.com",
		CodeTTL:   60,
	})

	require.True(s.T(), s.env.IsWorkflowCompleted())
	require.NoError(s.T(), s.env.GetWorkflowError())

	var outcome Outcome
	require.NoError(s.T(), s.env.GetWorkflowResult(&outcome))
	require.False(s.T(), outcome.Completed)
	require.Equal(s.T(), FailureExpired, outcome.FailureReason)
}
