package auth

import "context"

// CredentialStore looks up and manages the per-initiator CHAP secrets this
// target authenticates incoming sessions against. Initiator names are IQNs
// and are matched exactly (case-sensitive), per RFC 3720 §3.2.6.
type CredentialStore interface {
	// Lookup returns the secret registered for initiatorName. found is
	// false (with a nil error) when no secret is registered, which is a
	// distinct, non-error outcome the caller uses to select the dummy-hash
	// timing-safe path in Verify.
	Lookup(ctx context.Context, initiatorName string) (secret string, found bool, err error)

	// SetSecret registers or replaces the secret for initiatorName. Per
	// RFC 1994, secrets shorter than 12 bytes are considered weak; this
	// target rejects them outright rather than merely warning.
	SetSecret(ctx context.Context, initiatorName, secret string) error

	// DeleteSecret removes any secret registered for initiatorName. It is
	// not an error to delete a name that has no secret.
	DeleteSecret(ctx context.Context, initiatorName string) error
}

// ErrSecretTooShort is returned by SetSecret when the secret does not meet
// the RFC 1994 minimum length.
type ErrSecretTooShort struct {
	Length int
}

func (e *ErrSecretTooShort) Error() string {
	return "auth: CHAP secret too short (minimum 12 bytes)"
}

const minSecretLength = 12

func validateSecret(secret string) error {
	if len(secret) < minSecretLength {
		return &ErrSecretTooShort{Length: len(secret)}
	}
	return nil
}
