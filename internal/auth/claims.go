package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// ActorKind distinguishes customer tokens from back-office admin tokens;
// admin capabilities are enforced server-side via internal/rbac, never by
// trusting a claim alone.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	ActorKind string    `json:"actor_kind"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
