package adminapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the admin API's JWT payload. The admin surface has no
// per-operator identity model (unlike the teacher's multi-user/role
// system) -- a token simply asserts "this bearer may operate this
// target" -- so Claims carries nothing beyond the registered claims plus
// the issuing target name, useful when one operator token is accidentally
// pointed at the wrong daemon.
type Claims struct {
	jwt.RegisteredClaims
	TargetName string `json:"target_name,omitempty"`
}

var (
	ErrInvalidToken = errors.New("adminapi: invalid token")
	ErrExpiredToken = errors.New("adminapi: token has expired")
)

// TokenIssuer signs and validates the admin API's bearer tokens.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	targetName string
	ttl        time.Duration
}

// NewTokenIssuer builds a TokenIssuer from an HMAC secret. ttl of zero
// defaults to 12 hours, long enough for an operator session without
// requiring a refresh flow this single-capability API has no use for.
func NewTokenIssuer(secret []byte, targetName string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenIssuer{secret: secret, issuer: "iscsid-adminapi", targetName: targetName, ttl: ttl}
}

// Issue mints a bearer token valid for ttl from now.
func (ti *TokenIssuer) Issue() (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
		TargetName: ti.targetName,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("adminapi: sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a bearer token, returning its claims.
func (ti *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// extractBearerToken extracts the token from a Bearer Authorization header.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// bearerAuth validates every request's Authorization header against
// issuer, rejecting anything that isn't a current, correctly-signed token.
func bearerAuth(issuer *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				unauthorized(w, "Authorization header required")
				return
			}
			if _, err := issuer.Validate(tokenString); err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
