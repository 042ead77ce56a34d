package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifyengine/internal/model"
)

var fixedNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func completion(method model.VerificationMethod, completedAt time.Time, decayDays int) model.MethodCompletion {
	return model.MethodCompletion{
		Method:      method,
		CompletedAt: completedAt,
		ExpiresAt:   model.ExpiresAtFor(completedAt, decayDays),
	}
}

func TestScore_TwoPartyBaseline(t *testing.T) {
	// A bare TwoPartyInPerson completion nets exactly 150 points for
	// an Individual.
	completions := map[model.VerificationMethod][]model.MethodCompletion{
		model.TwoPartyInPerson: {completion(model.TwoPartyInPerson, fixedNow, 0)},
	}
	score := Score(completions, model.Individual, fixedNow)
	assert.Equal(t, 150, score)
	assert.Equal(t, model.Minimal, Level(score))
}

func TestScore_EmailPhoneBelowMinimal(t *testing.T) {
	// Scenario 2: Email + Phone alone stay below the Minimal threshold.
	completions := map[model.VerificationMethod][]model.MethodCompletion{
		model.Email: {completion(model.Email, fixedNow, 365)},
		model.Phone: {completion(model.Phone, fixedNow, 365)},
	}
	score := Score(completions, model.Individual, fixedNow)
	assert.Equal(t, 60, score)
	assert.Equal(t, model.Unverified, Level(score))
}

func TestScore_MaxMultiplierCapsContribution(t *testing.T) {
	// Extra completions beyond max_multiplier do not add score, even
	// though they may be recorded.
	var cs []model.MethodCompletion
	for i := 0; i < 5; i++ {
		cs = append(cs, completion(model.PersonalReference, fixedNow, 0))
	}
	completions := map[model.VerificationMethod][]model.MethodCompletion{
		model.PersonalReference: cs,
	}
	score := Score(completions, model.Individual, fixedNow)
	assert.Equal(t, 3*50, score) // capped at max_multiplier=3
}

func TestScore_NonApplicableMethodContributesZero(t *testing.T) {
	completions := map[model.VerificationMethod][]model.MethodCompletion{
		model.BusinessLicense: {completion(model.BusinessLicense, fixedNow, 0)},
	}
	score := Score(completions, model.Individual, fixedNow)
	assert.Equal(t, 0, score)
}

func TestLevel_BoundaryIsInclusiveOfHigherLevel(t *testing.T) {
	// Score exactly at a threshold yields the higher level.
	assert.Equal(t, model.Minimal, Level(100))
	assert.Equal(t, model.Standard, Level(250))
	assert.Equal(t, model.Enhanced, Level(400))
	assert.Equal(t, model.Complete, Level(600))
	assert.Equal(t, model.Standard, Level(249+1))
	assert.Equal(t, model.Unverified, Level(99))
}

func TestLevel_Monotonic(t *testing.T) {
	prev := Level(0)
	for s := 0; s <= 700; s += 7 {
		cur := Level(s)
		assert.GreaterOrEqual(t, cur.Rank(), prev.Rank())
		prev = cur
	}
}

func TestCompletion_ExpiryBoundaryInclusive(t *testing.T) {
	// At t = expires_at the completion is still valid; at
	// t = expires_at + 1ns it is expired.
	c := completion(model.Email, fixedNow, 365)
	require.NotNil(t, c.ExpiresAt)
	assert.False(t, c.IsExpired(*c.ExpiresAt))
	assert.True(t, c.IsExpired(c.ExpiresAt.Add(time.Nanosecond)))
}

func TestNextLevel_SuggestsPathsCoveringGap(t *testing.T) {
	res := NextLevel(60, model.Individual, map[model.VerificationMethod]int{
		model.Email: 1,
		model.Phone: 1,
	})
	assert.Equal(t, model.Minimal, res.TargetLevel)
	assert.Equal(t, 40, res.PointsNeeded)
	require.NotEmpty(t, res.SuggestedPaths)
	for _, p := range res.SuggestedPaths {
		assert.GreaterOrEqual(t, p.TotalPoints, res.PointsNeeded)
	}
	// ascending by points then effort
	for i := 1; i < len(res.SuggestedPaths); i++ {
		prev, cur := res.SuggestedPaths[i-1], res.SuggestedPaths[i]
		assert.True(t, prev.TotalPoints < cur.TotalPoints || (prev.TotalPoints == cur.TotalPoints && prev.Effort <= cur.Effort))
	}
	assert.LessOrEqual(t, len(res.SuggestedPaths), 5)
}

func TestNextLevel_AtCompleteHasNoTarget(t *testing.T) {
	res := NextLevel(900, model.Individual, nil)
	assert.Equal(t, model.Complete, res.CurrentLevel)
	assert.Equal(t, model.Complete, res.TargetLevel)
	assert.Equal(t, 0, res.PointsNeeded)
}

func TestApplicableAndMaxMultiplier(t *testing.T) {
	assert.True(t, Applicable(model.TwoPartyInPerson, model.Individual))
	assert.False(t, Applicable(model.TwoPartyInPerson, model.Business))
	assert.Equal(t, 3, MaxMultiplier(model.PersonalReference))
}
