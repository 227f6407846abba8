package auth

import "errors"

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrUnauthorized = errors.New("unauthorized")
)

// Principal represents the verified identity and claims for one request.
// It is produced once from a validated token and immutable thereafter.
//
// Missing claims are not errors: a Principal without roles or tenant is
// still valid, it just resolves to a filter that matches almost nothing.
type Principal struct {
	Subject    string         `json:"subject"`
	Roles      []string       `json:"roles"`
	Tenant     string         `json:"tenant,omitempty"`
	StepUp     bool           `json:"step_up,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	TokenType  string         `json:"token_type"` // "access" or "refresh"
}

// Service defines the token validation interface.
type Service interface {
	// ValidateToken verifies a signed token and extracts the Principal.
	ValidateToken(tokenString string) (*Principal, error)
}
