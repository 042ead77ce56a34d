package model

import "time"

// CredentialKind is the closed set of credentials that can authorize a
// subject to verify others.
type CredentialKind string

const (
	NotaryPublic          CredentialKind = "notary_public"
	Attorney              CredentialKind = "attorney"
	CommunityLeader       CredentialKind = "community_leader"
	VerifiedBusinessOwner CredentialKind = "verified_business_owner"
	OrganizationDirector  CredentialKind = "organization_director"
	GovernmentOfficial    CredentialKind = "government_official"
	TrustedVerifier       CredentialKind = "trusted_verifier" // synthetic, see authz rule 4
)

// AutoQualifyingCredentials are the professional credentials that
// bypass the minimum-level check, matching the reference
// AUTO_VERIFIER_CREDENTIALS set.
var AutoQualifyingCredentials = map[CredentialKind]bool{
	NotaryPublic:       true,
	Attorney:           true,
	GovernmentOfficial: true,
}

// TwoPartyCredentials are the credentials that qualify a verifier for the
// TwoPartyInPerson method specifically.
var TwoPartyCredentials = map[CredentialKind]bool{
	NotaryPublic:          true,
	Attorney:              true,
	CommunityLeader:       true,
	VerifiedBusinessOwner: true,
	OrganizationDirector:  true,
	GovernmentOfficial:    true,
	TrustedVerifier:       true,
}

// TrustedVerifierThreshold is the number of successful confirmations that
// synthetically grants the TrustedVerifier credential.
const TrustedVerifierThreshold = 50

// VerifierRecord is the separate, verifier-id-keyed store of credential
// and standing information for subjects who may verify others.
type VerifierRecord struct {
	SubjectID              string
	Credentials            map[CredentialKind]bool
	Authorized             bool
	RevokedAt              *time.Time
	RevocationReason       string
	SuccessfulConfirmations int

	// AutoQualifiedReason records why the synthetic TrustedVerifier
	// credential fired, for audit traceability.
	AutoQualifiedReason string
}

// HasCredential reports whether the verifier holds a credential,
// accounting for the synthetic TrustedVerifier credential (rule 4).
func (v VerifierRecord) HasCredential(c CredentialKind) bool {
	if c == TrustedVerifier {
		return v.SuccessfulConfirmations >= TrustedVerifierThreshold
	}
	return v.Credentials[c]
}

// HasAnyAutoQualifying reports whether the verifier holds a credential
// that bypasses the minimum-level check.
func (v VerifierRecord) HasAnyAutoQualifying() bool {
	for c := range AutoQualifyingCredentials {
		if v.Credentials[c] {
			return true
		}
	}
	return false
}

// HasAnyTwoPartyCredential reports whether the verifier holds any
// credential that qualifies them for TwoPartyInPerson confirmations.
func (v VerifierRecord) HasAnyTwoPartyCredential() bool {
	for c := range TwoPartyCredentials {
		if v.HasCredential(c) {
			return true
		}
	}
	return false
}
