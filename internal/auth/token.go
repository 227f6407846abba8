package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// roleClaim accepts the roles claim as either a single string or an
// array of strings, normalizing to a slice. Identity providers disagree
// on the shape and the engine must tolerate both.
type roleClaim []string

func (r *roleClaim) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*r = nil
			return nil
		}
		*r = roleClaim{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("roles claim must be a string or array of strings")
	}
	*r = roleClaim(many)
	return nil
}

type accessClaims struct {
	jwt.RegisteredClaims
	Roles     roleClaim      `json:"roles,omitempty"`
	Tenant    string         `json:"tenant,omitempty"`
	StepUp    bool           `json:"stepUp,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
	TokenType string         `json:"type"`
}

// TokenService validates signed identity assertions and, in dev mode,
// mints them. Production deployments only ever call ValidateToken — the
// identity provider that issues tokens is an external collaborator.
type TokenService struct {
	signingKey  []byte
	issuer      string
	expiryHours int
}

func NewTokenService(signingKey, issuer string, expiryHours int) *TokenService {
	return &TokenService{
		signingKey:  []byte(signingKey),
		issuer:      issuer,
		expiryHours: expiryHours,
	}
}

// CreateAccessToken creates a signed access token carrying the
// principal's claims. Used by the dev-mode issuer and tests.
func (s *TokenService) CreateAccessToken(principal *Principal) (string, error) {
	now := time.Now()

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   principal.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.expiryHours) * time.Hour)),
		},
		Roles:     roleClaim(principal.Roles),
		Tenant:    principal.Tenant,
		StepUp:    principal.StepUp,
		Attrs:     principal.Attributes,
		TokenType: "access",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

// ValidateToken verifies integrity, expiry, and issuer, then extracts
// the Principal. It never inspects role or tenant contents — absence of
// those claims is the policy layer's concern, not an auth failure.
func (s *TokenService) ValidateToken(tokenString string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return &Principal{
		Subject:    claims.Subject,
		Roles:      []string(claims.Roles),
		Tenant:     claims.Tenant,
		StepUp:     claims.StepUp,
		Attributes: claims.Attrs,
		TokenType:  claims.TokenType,
	}, nil
}
