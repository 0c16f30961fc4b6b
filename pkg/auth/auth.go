// Package auth provides credential providers and the pipeline middleware
// that authenticates requests by the token carried in their envelope.
package auth

import (
	"context"
	"time"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
)

// AuthProvider authenticates credentials and validates the tokens it issued.
type AuthProvider interface {
	// Authenticate exchanges credentials for a token.
	Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error)

	// Validate resolves a token to the principal it was issued for.
	Validate(ctx context.Context, token string) (*UserInfo, error)

	// Revoke invalidates a token.
	Revoke(ctx context.Context, token string) error

	// Type returns the authentication type identifier, e.g. "bearer".
	Type() string
}

// AuthRequest carries credentials for Authenticate. The shape of
// Credentials depends on Type:
//
//	basic:  {"username": "...", "password": "..."}
//	bearer: {"token": "..."}
type AuthRequest struct {
	Type        string            `json:"type"`
	Credentials map[string]any    `json:"credentials"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Scopes      []string          `json:"scopes,omitempty"`
}

// AuthResult is returned by a successful Authenticate.
type AuthResult struct {
	AccessToken string    `json:"accessToken"`
	ExpiresIn   int64     `json:"expiresIn"`
	TokenType   string    `json:"tokenType"`
	Scopes      []string  `json:"scopes,omitempty"`
	UserInfo    *UserInfo `json:"userInfo"`
	IssuedAt    time.Time `json:"issuedAt"`
}

// UserInfo describes an authenticated principal.
type UserInfo struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	Roles      []string       `json:"roles,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Reasons attached to unauthorized errors under the "reason" metadata key.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonTokenExpired       = "token_expired"
	ReasonTokenInvalid       = "token_invalid"
	ReasonTokenRevoked       = "token_revoked"
	ReasonAuthRequired       = "authentication_required"
	ReasonNoProvider         = "no_provider"
)

// NewAuthError returns an unauthorized error tagged with reason.
func NewAuthError(reason, message string) sdkerrors.TypedError {
	return sdkerrors.Unauthorized(message).WithMetadata("reason", reason)
}

// ReasonOf returns the reason attached by NewAuthError, or "".
func ReasonOf(err error) string {
	te, ok := sdkerrors.AsTypedError(err)
	if !ok {
		return ""
	}
	reason, _ := te.Metadata()["reason"].(string)
	return reason
}

type userInfoKey struct{}

// ContextWithUserInfo stores the authenticated principal in ctx.
func ContextWithUserInfo(ctx context.Context, user *UserInfo) context.Context {
	return context.WithValue(ctx, userInfoKey{}, user)
}

// UserInfoFromContext returns the principal stored by the auth middleware.
func UserInfoFromContext(ctx context.Context) (*UserInfo, bool) {
	user, ok := ctx.Value(userInfoKey{}).(*UserInfo)
	return user, ok && user != nil
}
