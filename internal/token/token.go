// Package token issues and verifies the signed links used by approval emails.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes what a token may be used for.
type Kind string

const (
	KindApproval     Kind = "approval"
	KindModification Kind = "modification"
)

// Claims is the payload bound into every token.
type Claims struct {
	PendingApprovalID string `json:"pending_approval_id"`
	AnalysisID        string `json:"analysis_id,omitempty"`
	AdminIdentity     string `json:"admin_identity"`
	Kind              Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an issuer. validity is the lifetime of issued tokens.
func NewIssuer(secret string, validity time.Duration, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if validity <= 0 {
		return nil, errors.New("token validity must be positive")
	}
	i := &Issuer{
		secret:   []byte(secret),
		validity: validity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Validity returns the configured token lifetime.
func (i *Issuer) Validity() time.Duration {
	return i.validity
}

// Issue signs a token of the given kind. IssuedAt and ExpiresAt are filled
// from the clock unless already set.
func (i *Issuer) Issue(claims Claims) (string, error) {
	if claims.PendingApprovalID == "" {
		return "", errors.New("pending approval id is required")
	}
	if claims.Kind != KindApproval && claims.Kind != KindModification {
		return "", fmt.Errorf("unknown token kind %q", claims.Kind)
	}
	now := i.now()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(claims.IssuedAt.Add(i.validity))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks a token's shape, signature, kind and expiry.
//
// Every failure is a *VerificationError. For ReasonExpired the decoded
// claims are returned alongside the error, since the signature was valid.
func (i *Issuer) Verify(raw string, kind Kind) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, newVerificationError(ReasonMalformed, errors.New("empty token"))
	}
	if strings.Count(raw, ".") != 2 {
		return nil, newVerificationError(ReasonMalformed, errors.New("token must have 3 segments"))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, newVerificationError(ReasonBadSignature, err)
		default:
			return nil, newVerificationError(ReasonMalformed, err)
		}
	}

	if claims.PendingApprovalID == "" {
		return nil, newVerificationError(ReasonMalformed, errors.New("missing pending approval id"))
	}
	if claims.Kind != kind {
		return nil, newVerificationError(ReasonWrongType, fmt.Errorf("expected %s token, got %q", kind, claims.Kind))
	}
	if claims.ExpiresAt == nil {
		return nil, newVerificationError(ReasonMalformed, errors.New("missing expiry"))
	}
	if i.now().After(claims.ExpiresAt.Time) {
		return claims, newVerificationError(ReasonExpired, fmt.Errorf("expired at %s", claims.ExpiresAt.Time.Format(time.RFC3339)))
	}
	return claims, nil
}
