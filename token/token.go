// Package token issues and validates the stateless credentials the engine
// hands out: purpose-scoped HS256 tokens for email verification and
// password reset, and the derived session identity whose validity is tied
// to the account's current password hash.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose scopes a token to exactly one workflow. A token issued for one
// purpose never validates for another.
type Purpose string

const (
	// PurposeVerifyEmail scopes tokens sent in account activation mails.
	PurposeVerifyEmail Purpose = "verify-email"
	// PurposeResetPassword scopes tokens sent in password reset mails.
	PurposeResetPassword Purpose = "reset-password"
)

var (
	// ErrExpired marks a structurally valid token past its deadline.
	ErrExpired = errors.New("token expired")
	// ErrBadSignature marks a token whose signature does not verify.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrWrongPurpose marks a valid token presented to the wrong workflow.
	ErrWrongPurpose = errors.New("token purpose mismatch")
	// ErrMalformed marks input that is not a token at all.
	ErrMalformed = errors.New("token malformed")
)

// Config for the token service.
type Config struct {
	Secret []byte
	Issuer string
}

// Service signs and verifies purpose tokens with a single HS256 key.
// Safe for concurrent use.
type Service struct {
	secret []byte
	issuer string
}

type purposeClaims struct {
	Action string `json:"action"`
	jwt.RegisteredClaims
}

// New validates the signing key and returns a Service.
func New(cfg Config) (*Service, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	return &Service{
		secret: append([]byte(nil), cfg.Secret...),
		issuer: cfg.Issuer,
	}, nil
}

// Issue signs a token for subjectID scoped to purpose. A zero or negative
// ttl produces an already-expired token, which every validator rejects;
// that degenerate case is deliberate so misconfiguration fails closed.
func (s *Service) Issue(subjectID string, purpose Purpose, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", errors.New("empty subject")
	}

	now := time.Now()
	claims := purposeClaims{
		Action: string(purpose),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate checks signature, registered claims, and purpose, returning the
// subject id. Errors discriminate the failure so callers can audit the
// reason while still presenting a uniform rejection upstream.
func (s *Service) Validate(tokenStr string, purpose Purpose) (string, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		options = append(options, jwt.WithIssuer(s.issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &purposeClaims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrBadSignature
		default:
			return "", ErrMalformed
		}
	}

	claims, ok := parsed.Claims.(*purposeClaims)
	if !ok || !parsed.Valid {
		return "", ErrMalformed
	}
	if claims.Action != string(purpose) {
		return "", ErrWrongPurpose
	}
	if claims.Subject == "" {
		return "", ErrMalformed
	}

	return claims.Subject, nil
}

// identityHashLen is how much of the password hash tail is folded into the
// session identity. Enough to change on every rehash, short enough to keep
// the identity compact.
const identityHashLen = 15

// Identity derives the session identity for a user: the user id joined
// with the tail of the current password hash. No server-side state backs
// it; rotating the password rotates the identity, which is what invalidates
// every outstanding session on a password change.
func Identity(userID, passwordHash string) string {
	tail := passwordHash
	if len(tail) > identityHashLen {
		tail = tail[len(tail)-identityHashLen:]
	}
	return userID + "|" + tail
}

// ParseIdentity splits an identity into user id and hash tail.
func ParseIdentity(identity string) (userID, hashTail string, err error) {
	idx := strings.LastIndexByte(identity, '|')
	if idx <= 0 || idx == len(identity)-1 {
		return "", "", ErrMalformed
	}
	return identity[:idx], identity[idx+1:], nil
}
