package transport

import (
	"context"
	"sync"

	"github.com/ajitpratap0/session-sdk-go/pkg/auth"
)

// Authenticator implements Login and Logout against an auth.AuthProvider
// and remembers the issued token. Transports embed it.
type Authenticator struct {
	mu       sync.RWMutex
	provider auth.AuthProvider
	token    string
}

// NewAuthenticator creates an Authenticator. A nil provider makes Login
// fail with an unauthorized error.
func NewAuthenticator(provider auth.AuthProvider) *Authenticator {
	return &Authenticator{provider: provider}
}

// Login authenticates creds and stores the resulting token.
func (a *Authenticator) Login(ctx context.Context, creds *auth.AuthRequest) (*auth.AuthResult, error) {
	if a.provider == nil {
		return nil, auth.NewAuthError(auth.ReasonNoProvider, "transport has no authentication provider")
	}
	result, err := a.provider.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.token = result.AccessToken
	a.mu.Unlock()
	return result, nil
}

// Logout revokes and forgets the stored token. Logging out without a
// token is a no-op.
func (a *Authenticator) Logout(ctx context.Context) error {
	a.mu.Lock()
	token := a.token
	a.token = ""
	a.mu.Unlock()

	if token == "" || a.provider == nil {
		return nil
	}
	return a.provider.Revoke(ctx, token)
}

// Token returns the stored token.
func (a *Authenticator) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}
