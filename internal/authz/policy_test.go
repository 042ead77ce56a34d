package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"verifyengine/internal/model"
)

var now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func standardSnapshot() model.SubjectSnapshot {
	s := model.NewSnapshot("verifier-1", model.Individual)
	s.Score = 250
	s.Level = model.Standard
	return s
}

func TestAuthorize_RevokedDeniedFirst(t *testing.T) {
	revokedAt := now
	v := model.VerifierRecord{SubjectID: "v1", Authorized: true, RevokedAt: &revokedAt}
	d := Authorize(v, standardSnapshot(), model.TwoPartyInPerson, now)
	assert.False(t, d.Authorized)
	assert.Equal(t, model.DenialRevoked, d.Reason)
}

func TestAuthorize_PendingAuthorizationDenied(t *testing.T) {
	v := model.VerifierRecord{SubjectID: "v1", Authorized: false, Credentials: map[model.CredentialKind]bool{model.NotaryPublic: true}}
	d := Authorize(v, standardSnapshot(), model.TwoPartyInPerson, now)
	assert.False(t, d.Authorized)
	assert.Equal(t, model.DenialPendingAuthorization, d.Reason)
}

func TestAuthorize_BelowMinimumLevelDenied(t *testing.T) {
	v := model.VerifierRecord{SubjectID: "v1", Authorized: true}
	unverified := model.NewSnapshot("v1", model.Individual)
	d := Authorize(v, unverified, model.TwoPartyInPerson, now)
	assert.False(t, d.Authorized)
	assert.Equal(t, model.DenialBelowMinimumLevel, d.Reason)
}

func TestAuthorize_AutoQualifyingCredentialBypassesLevel(t *testing.T) {
	v := model.VerifierRecord{SubjectID: "v1", Authorized: true, Credentials: map[model.CredentialKind]bool{model.NotaryPublic: true}}
	unverified := model.NewSnapshot("v1", model.Individual)
	d := Authorize(v, unverified, model.TwoPartyInPerson, now)
	assert.True(t, d.Authorized)
}

func TestAuthorize_TwoPartyRequiresQualifyingCredential(t *testing.T) {
	v := model.VerifierRecord{SubjectID: "v1", Authorized: true}
	d := Authorize(v, standardSnapshot(), model.TwoPartyInPerson, now)
	assert.False(t, d.Authorized)
	assert.Equal(t, model.DenialNotAVerifier, d.Reason)
}

func TestAuthorize_CommunityLeaderQualifiesForTwoParty(t *testing.T) {
	v := model.VerifierRecord{SubjectID: "v1", Authorized: true, Credentials: map[model.CredentialKind]bool{model.CommunityLeader: true}}
	d := Authorize(v, standardSnapshot(), model.TwoPartyInPerson, now)
	assert.True(t, d.Authorized)
}

func TestAuthorize_TrustedVerifierIsSynthetic(t *testing.T) {
	v := model.VerifierRecord{SubjectID: "v1", Authorized: true, SuccessfulConfirmations: 50}
	d := Authorize(v, standardSnapshot(), model.TwoPartyInPerson, now)
	assert.True(t, d.Authorized)

	v.SuccessfulConfirmations = 49
	d = Authorize(v, standardSnapshot(), model.TwoPartyInPerson, now)
	assert.False(t, d.Authorized)
}

func TestAuthorize_CommunityAttestationAllowsMinimalLevel(t *testing.T) {
	v := model.VerifierRecord{SubjectID: "v1", Authorized: true}
	minimal := model.NewSnapshot("v1", model.Individual)
	minimal.Score = 100
	minimal.Level = model.Minimal
	d := Authorize(v, minimal, model.CommunityAttestation, now)
	assert.True(t, d.Authorized)
}

func TestAuthorize_EmailMethodOnlyNeedsStandardLevel(t *testing.T) {
	v := model.VerifierRecord{SubjectID: "v1", Authorized: true}
	d := Authorize(v, standardSnapshot(), model.Email, now)
	assert.True(t, d.Authorized)
}
