// Package auth implements CHAP authentication for the login security
// negotiation phase (RFC 1994, as adapted by RFC 3720 §11.1). The target
// always plays the CHAP authenticator role: it issues the challenge and
// verifies the initiator's response against a per-initiator secret.
package auth

import (
	"crypto/md5" //nolint:gosec // MD5 is mandated by the CHAP protocol itself (RFC 1994), not a design choice
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// ChallengeLength is the number of random bytes this target sends as the
// CHAP_C value. RFC 1994 permits 1-16 octets for MD5; 16 maximizes entropy.
const ChallengeLength = 16

// Challenge is a single CHAP authenticator exchange: an identifier byte and
// a random challenge value, both generated fresh per login attempt and
// never reused even across retries on the same connection.
type Challenge struct {
	Identifier byte
	Value      []byte
}

// NewChallenge generates a fresh CHAP identifier and challenge value.
func NewChallenge() (*Challenge, error) {
	var idBuf [1]byte
	if _, err := rand.Read(idBuf[:]); err != nil {
		return nil, fmt.Errorf("auth: generating CHAP identifier: %w", err)
	}

	value := make([]byte, ChallengeLength)
	if _, err := rand.Read(value); err != nil {
		return nil, fmt.Errorf("auth: generating CHAP challenge: %w", err)
	}

	return &Challenge{Identifier: idBuf[0], Value: value}, nil
}

// ComputeResponse computes the CHAP_R an initiator in possession of secret
// would send for this challenge: MD5(identifier || secret || challenge).
// Exposed so iscsictl and tests can produce valid responses without
// reimplementing the hash construction.
func (c *Challenge) ComputeResponse(secret string) []byte {
	return computeMD5Response(c.Identifier, secret, c.Value)
}

func computeMD5Response(identifier byte, secret string, challenge []byte) []byte {
	h := md5.New() //nolint:gosec // see package doc
	h.Write([]byte{identifier})
	h.Write([]byte(secret))
	h.Write(challenge)
	return h.Sum(nil)
}

// dummySecret is hashed in place of a real lookup whenever the initiator
// name is unknown, so that CHAP verification takes the same amount of work
// whether or not the account exists. Without this, an attacker could
// enumerate valid initiator names by timing the authentication failure.
const dummySecret = "iscsid-unknown-initiator-constant-time-padding"

// Verify reports whether response is the correct CHAP_R for the given
// challenge under secret. found indicates whether secret is a real,
// looked-up secret (true) or the constant dummy stand-in used when the
// initiator has no registered secret (false); Verify always does the full
// MD5 computation and constant-time comparison in both cases, and always
// returns false when found is false, so the code path and timing are
// identical regardless of whether the account exists.
func Verify(c *Challenge, secret string, found bool, response []byte) bool {
	useSecret := secret
	if !found {
		useSecret = dummySecret
	}

	expected := computeMD5Response(c.Identifier, useSecret, c.Value)
	match := subtle.ConstantTimeCompare(expected, response) == 1
	return match && found
}
