package protocols

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifyengine/internal/collaborators"
	"verifyengine/internal/journal"
	"verifyengine/internal/model"
	"verifyengine/internal/tokenstore"
	"verifyengine/internal/verifierstore"
)

func newTestActivities() *Activities {
	return &Activities{
		Journal:   journal.NewMemoryStore(),
		Verifiers: verifierstore.NewMemoryStore(),
		Tokens:    tokenstore.NewMemoryStore(),
		Notifier:  collaborators.LogNotifier{},
		Codes:     collaborators.LogCodeDelivery{},
		Reviews:   collaborators.LogReviewQueue{},
	}
}

func TestGenerateChallenge_HashMatchesOwnCode(t *testing.T) {
	a := newTestActivities()
	c, err := a.GenerateChallenge(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Code, 6)
	assert.True(t, codeMatches(c.Code, c.Salt, c.Hash))
	assert.False(t, codeMatches("000000", c.Salt, c.Hash))
}

func TestIssueQRTokens_BindsDistinctSlots(t *testing.T) {
	a := newTestActivities()
	pair, err := a.IssueQRTokens(context.Background(), "subject-1", "run-1", time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, pair.Slot1, pair.Slot2)

	b1, ok, err := a.LookupToken(context.Background(), pair.Slot1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, b1.Slot)

	b2, ok, err := a.LookupToken(context.Background(), pair.Slot2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, b2.Slot)
}

func TestInvalidateTokens_RemovesBindings(t *testing.T) {
	a := newTestActivities()
	pair, err := a.IssueQRTokens(context.Background(), "subject-1", "run-1", time.Hour)
	require.NoError(t, err)

	require.NoError(t, a.InvalidateTokens(context.Background(), []string{pair.Slot1, pair.Slot2}))

	_, ok, err := a.LookupToken(context.Background(), pair.Slot1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateVerifier_UnknownVerifierDenied(t *testing.T) {
	a := newTestActivities()
	d, err := a.ValidateVerifier(context.Background(), "nobody", model.TwoPartyInPerson)
	require.NoError(t, err)
	assert.False(t, d.Authorized)
	assert.Equal(t, model.DenialNotAVerifier, d.Reason)
}

func TestRecordAndRevokeVerifierConfirmation_RoundTrips(t *testing.T) {
	a := newTestActivities()
	ctx := context.Background()

	require.NoError(t, a.Verifiers.Put(ctx, model.VerifierRecord{SubjectID: "v1", Authorized: true}))

	seq, err := a.RecordVerifierConfirmation(ctx, "target-1", model.Individual, model.TwoPartyInPerson, "v1", "run-1", map[string]any{"device_fingerprint": "abc123"}, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	rec, ok, err := a.Verifiers.Get(ctx, "v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, rec.SuccessfulConfirmations)

	_, err = a.RevokeVerifierConfirmation(ctx, "target-1", model.Individual, model.TwoPartyInPerson, "v1", "run-1", "compensation", seq)
	require.NoError(t, err)

	rec, _, err = a.Verifiers.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.SuccessfulConfirmations)
}
