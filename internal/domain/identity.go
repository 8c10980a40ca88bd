package domain

import "context"

// Credential is the caller's bearer token, forwarded verbatim to the
// identity service.
type Credential string

type VerificationResult int

const (
	VerificationUnavailable VerificationResult = iota
	VerificationFound
	VerificationNotFound
	VerificationUnauthorized
)

func (r VerificationResult) String() string {
	switch r {
	case VerificationFound:
		return "found"
	case VerificationNotFound:
		return "not_found"
	case VerificationUnauthorized:
		return "unauthorized"
	default:
		return "unavailable"
	}
}

// IdentityVerifier answers whether an owner exists and the credential may act
// for it. The returned error only carries the cause of an Unavailable result.
type IdentityVerifier interface {
	Exists(ctx context.Context, ownerID int64, cred Credential) (VerificationResult, error)
}
