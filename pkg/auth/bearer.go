package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// BearerTokenProvider issues opaque bearer tokens in exchange for basic
// credentials and validates them from memory.
type BearerTokenProvider struct {
	mu          sync.RWMutex
	tokens      map[string]*tokenInfo
	tokenExpiry time.Duration
	tokenLength int
	checkUser   CredentialCheck
	validate    TokenValidationCallback
	now         func() time.Time
}

type tokenInfo struct {
	user      *UserInfo
	issuedAt  time.Time
	expiresAt time.Time
	revoked   bool
	scopes    []string
}

// CredentialCheck verifies a username and password and returns the
// principal. Returning an error rejects the login.
type CredentialCheck func(ctx context.Context, username, password string) (*UserInfo, error)

// TokenValidationCallback replaces in-memory validation, e.g. for JWTs.
type TokenValidationCallback func(ctx context.Context, token string) (*UserInfo, error)

// BearerTokenConfig configures the bearer token provider
type BearerTokenConfig struct {
	// TokenExpiry defines access token lifetime (default: 1 hour)
	TokenExpiry time.Duration

	// TokenLength in bytes (default: 32)
	TokenLength int

	// CheckCredentials verifies basic credentials. When nil any non-empty
	// username and password pair is accepted.
	CheckCredentials CredentialCheck

	ValidationCallback TokenValidationCallback
}

// NewBearerTokenProvider creates a new bearer token authentication provider.
func NewBearerTokenProvider(config *BearerTokenConfig) *BearerTokenProvider {
	if config == nil {
		config = &BearerTokenConfig{}
	}
	p := &BearerTokenProvider{
		tokens:      make(map[string]*tokenInfo),
		tokenExpiry: config.TokenExpiry,
		tokenLength: config.TokenLength,
		checkUser:   config.CheckCredentials,
		validate:    config.ValidationCallback,
		now:         time.Now,
	}
	if p.tokenExpiry == 0 {
		p.tokenExpiry = time.Hour
	}
	if p.tokenLength == 0 {
		p.tokenLength = 32
	}
	return p
}

// Type returns the authentication type identifier.
func (p *BearerTokenProvider) Type() string {
	return "bearer"
}

// Authenticate issues a token for "basic" credentials or re-validates an
// existing token for "bearer" credentials.
func (p *BearerTokenProvider) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResult, error) {
	if req == nil {
		return nil, NewAuthError(ReasonInvalidCredentials, "missing credentials")
	}

	switch req.Type {
	case "basic":
		username, _ := req.Credentials["username"].(string)
		password, _ := req.Credentials["password"].(string)
		if username == "" || password == "" {
			return nil, NewAuthError(ReasonInvalidCredentials, "username and password required")
		}

		user := &UserInfo{ID: "user-" + username, Username: username, Roles: []string{"user"}}
		if p.checkUser != nil {
			checked, err := p.checkUser(ctx, username, password)
			if err != nil {
				return nil, NewAuthError(ReasonInvalidCredentials, "invalid username or password").WithCause(err)
			}
			user = checked
		}

		token, err := p.generateToken()
		if err != nil {
			return nil, err
		}
		now := p.now()
		p.mu.Lock()
		p.tokens[token] = &tokenInfo{
			user:      user,
			issuedAt:  now,
			expiresAt: now.Add(p.tokenExpiry),
			scopes:    req.Scopes,
		}
		p.mu.Unlock()

		return &AuthResult{
			AccessToken: token,
			ExpiresIn:   int64(p.tokenExpiry.Seconds()),
			TokenType:   "Bearer",
			Scopes:      req.Scopes,
			UserInfo:    user,
			IssuedAt:    now,
		}, nil

	case "bearer":
		token, _ := req.Credentials["token"].(string)
		user, err := p.Validate(ctx, token)
		if err != nil {
			return nil, err
		}
		p.mu.RLock()
		info := p.tokens[token]
		p.mu.RUnlock()

		result := &AuthResult{AccessToken: token, TokenType: "Bearer", UserInfo: user}
		if info != nil {
			result.ExpiresIn = int64(info.expiresAt.Sub(p.now()).Seconds())
			result.Scopes = info.scopes
			result.IssuedAt = info.issuedAt
		}
		return result, nil
	}

	return nil, NewAuthError(ReasonInvalidCredentials, fmt.Sprintf("unsupported authentication type %q", req.Type))
}

// Validate verifies a bearer token and returns user information.
func (p *BearerTokenProvider) Validate(ctx context.Context, token string) (*UserInfo, error) {
	if token == "" {
		return nil, NewAuthError(ReasonAuthRequired, "token required")
	}
	if p.validate != nil {
		return p.validate(ctx, token)
	}

	p.mu.RLock()
	info, exists := p.tokens[token]
	p.mu.RUnlock()

	switch {
	case !exists:
		return nil, NewAuthError(ReasonTokenInvalid, "token not found")
	case info.revoked:
		return nil, NewAuthError(ReasonTokenRevoked, "token has been revoked")
	case p.now().After(info.expiresAt):
		return nil, NewAuthError(ReasonTokenExpired, "token has expired")
	}
	return info.user, nil
}

// Revoke invalidates a token.
func (p *BearerTokenProvider) Revoke(_ context.Context, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, exists := p.tokens[token]
	if !exists {
		return NewAuthError(ReasonTokenInvalid, "token not found")
	}
	info.revoked = true
	return nil
}

// CleanupExpired drops expired and revoked tokens.
func (p *BearerTokenProvider) CleanupExpired() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	removed := 0
	for token, info := range p.tokens {
		if info.revoked || now.After(info.expiresAt) {
			delete(p.tokens, token)
			removed++
		}
	}
	return removed
}

func (p *BearerTokenProvider) generateToken() (string, error) {
	buf := make([]byte, p.tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", NewAuthError(ReasonTokenInvalid, "failed to generate token").WithCause(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
