// Package authz implements the verifier authorization policy:
// a pure function over a VerifierRecord and the
// verifier's own snapshot, with no I/O of its own.
package authz

import (
	"time"

	"verifyengine/internal/model"
)

// Decision is the outcome of Authorize: exactly one of Authorization or
// Denial is populated.
type Decision struct {
	Authorized    bool
	Reason        model.DenialReason
	Credentials   map[model.CredentialKind]bool
	Confirmations int
}

// MinimumLevelForVerifying is the verification level a subject must
// reach before they may verify others, absent an auto-qualifying
// credential.
var MinimumLevelForVerifying = model.Standard

// minimumLevelOverride lowers the bar for specific target methods.
// CommunityAttestation is fixed at Minimal, which otherwise conflicts
// with rule 2's general Standard floor — resolved in favor of the
// lower, method-specific floor (see the design notes).
var minimumLevelOverride = map[model.VerificationMethod]model.Level{
	model.CommunityAttestation: model.Minimal,
}

func minimumLevelFor(method model.VerificationMethod) model.Level {
	if lvl, ok := minimumLevelOverride[method]; ok {
		return lvl
	}
	return MinimumLevelForVerifying
}

// Authorize evaluates the rule table in order; the first
// matching rule wins. verifierSnapshot is the verifier's own
// SubjectSnapshot (used for the minimum-level check), not the target
// subject's.
func Authorize(verifier model.VerifierRecord, verifierSnapshot model.SubjectSnapshot, targetMethod model.VerificationMethod, now time.Time) Decision {
	// Rule 1: revoked verifiers are denied outright.
	if verifier.RevokedAt != nil {
		return Decision{Reason: model.DenialRevoked}
	}

	// a supplemental feature: a verifier profile can exist, even hold
	// credentials, and still be pending explicit authorization — denied
	// before the minimum-level/method checks, since an unapproved
	// verifier should never reach those.
	if !verifier.Authorized {
		return Decision{Reason: model.DenialPendingAuthorization}
	}

	// Rule 2: below the method's minimum level and no auto-qualifying
	// professional credential.
	if verifierSnapshot.Level.Rank() < minimumLevelFor(targetMethod).Rank() && !verifier.HasAnyAutoQualifying() {
		return Decision{Reason: model.DenialBelowMinimumLevel}
	}

	// Rule 3: TwoPartyInPerson requires one of the in-person-qualifying
	// credentials.
	if targetMethod == model.TwoPartyInPerson && !verifier.HasAnyTwoPartyCredential() {
		return Decision{Reason: model.DenialNotAVerifier}
	}

	// Rule 4 (synthetic TrustedVerifier) is folded into HasCredential /
	// HasAnyTwoPartyCredential above: a verifier with ≥50 successful
	// confirmations automatically qualifies for TwoPartyInPerson even
	// without an explicit credential grant.

	// Rule 5: otherwise authorized.
	return Decision{
		Authorized:    true,
		Credentials:   verifier.Credentials,
		Confirmations: verifier.SuccessfulConfirmations,
	}
}
