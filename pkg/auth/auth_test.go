package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/middleware"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

func basicLogin(t *testing.T, p AuthProvider, user string) *AuthResult {
	t.Helper()
	res, err := p.Authenticate(context.Background(), &AuthRequest{
		Type:        "basic",
		Credentials: map[string]any{"username": user, "password": "secret"},
	})
	require.NoError(t, err)
	return res
}

func TestBearerTokenLifecycle(t *testing.T) {
	p := NewBearerTokenProvider(nil)
	res := basicLogin(t, p, "alice")

	assert.Equal(t, "Bearer", res.TokenType)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, "alice", res.UserInfo.Username)

	user, err := p.Validate(context.Background(), res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-alice", user.ID)

	again, err := p.Authenticate(context.Background(), &AuthRequest{
		Type:        "bearer",
		Credentials: map[string]any{"token": res.AccessToken},
	})
	require.NoError(t, err)
	assert.Equal(t, res.AccessToken, again.AccessToken)

	require.NoError(t, p.Revoke(context.Background(), res.AccessToken))
	_, err = p.Validate(context.Background(), res.AccessToken)
	require.Error(t, err)
	assert.Equal(t, ReasonTokenRevoked, ReasonOf(err))
	assert.True(t, sdkerrors.IsCode(err, sdkerrors.CodeUnauthorized))

	assert.Equal(t, 1, p.CleanupExpired())
}

func TestBearerTokenExpiry(t *testing.T) {
	p := NewBearerTokenProvider(&BearerTokenConfig{TokenExpiry: time.Minute})
	now := time.Now()
	p.now = func() time.Time { return now }

	res := basicLogin(t, p, "bob")
	p.now = func() time.Time { return now.Add(2 * time.Minute) }

	_, err := p.Validate(context.Background(), res.AccessToken)
	assert.Equal(t, ReasonTokenExpired, ReasonOf(err))
}

func TestBearerRejectsBadCredentials(t *testing.T) {
	p := NewBearerTokenProvider(&BearerTokenConfig{
		CheckCredentials: func(_ context.Context, user, pass string) (*UserInfo, error) {
			if pass != "letmein" {
				return nil, fmt.Errorf("wrong password")
			}
			return &UserInfo{ID: "u-" + user, Username: user}, nil
		},
	})

	_, err := p.Authenticate(context.Background(), &AuthRequest{Type: "basic", Credentials: map[string]any{"username": "a"}})
	assert.Equal(t, ReasonInvalidCredentials, ReasonOf(err))

	_, err = p.Authenticate(context.Background(), &AuthRequest{Type: "basic", Credentials: map[string]any{"username": "a", "password": "nope"}})
	assert.Equal(t, ReasonInvalidCredentials, ReasonOf(err))

	res, err := p.Authenticate(context.Background(), &AuthRequest{Type: "basic", Credentials: map[string]any{"username": "a", "password": "letmein"}})
	require.NoError(t, err)
	assert.Equal(t, "u-a", res.UserInfo.ID)

	_, err = p.Authenticate(context.Background(), &AuthRequest{Type: "oauth2"})
	assert.Error(t, err)

	_, err = p.Validate(context.Background(), "")
	assert.Equal(t, ReasonAuthRequired, ReasonOf(err))
}

func authedRequest(msgType, token string) *protocol.Request {
	ctx := protocol.NewContext()
	ctx.Source = "client-1"
	if token != "" {
		ctx.Auth = &protocol.AuthInfo{Token: token}
	}
	return protocol.NewRequest(msgType, nil, ctx)
}

func TestMiddlewareStampsActor(t *testing.T) {
	p := NewBearerTokenProvider(nil)
	token := basicLogin(t, p, "carol").AccessToken

	pipe := middleware.New()
	pipe.Use(Middleware(Config{Provider: p, Required: true}))

	var actor string
	var fromCtx *UserInfo
	resp := pipe.ProcessRequest(context.Background(), authedRequest("orders.list", token),
		func(ctx context.Context, req *protocol.Request) (any, error) {
			actor = req.Context.Auth.Actor
			fromCtx, _ = UserInfoFromContext(ctx)
			return "ok", nil
		})

	require.True(t, resp.Success)
	assert.Equal(t, "user-carol", actor)
	require.NotNil(t, fromCtx)
	assert.Equal(t, "carol", fromCtx.Username)
}

func TestMiddlewareRejects(t *testing.T) {
	p := NewBearerTokenProvider(nil)
	pipe := middleware.New()
	pipe.Use(Middleware(Config{Provider: p, Required: true, ExemptTypes: []string{"public.info"}}))

	called := 0
	handler := func(context.Context, *protocol.Request) (any, error) { called++; return nil, nil }

	missing := pipe.ProcessRequest(context.Background(), authedRequest("orders.list", ""), handler)
	require.False(t, missing.Success)
	assert.Equal(t, sdkerrors.CodeUnauthorized, missing.Error.Code)

	bogus := pipe.ProcessRequest(context.Background(), authedRequest("orders.list", "bogus"), handler)
	require.False(t, bogus.Success)
	assert.Equal(t, sdkerrors.CodeUnauthorized, bogus.Error.Code)
	assert.Equal(t, 0, called)

	assert.True(t, pipe.ProcessRequest(context.Background(), authedRequest("public.info", ""), handler).Success)
	assert.True(t, pipe.ProcessRequest(context.Background(), authedRequest(protocol.TypeRegister, ""), handler).Success)
	assert.Equal(t, 2, called)
}

func TestMiddlewareOptional(t *testing.T) {
	pipe := middleware.New()
	pipe.Use(Middleware(Config{Provider: NewBearerTokenProvider(nil)}))

	resp := pipe.ProcessRequest(context.Background(), authedRequest("orders.list", ""),
		func(context.Context, *protocol.Request) (any, error) { return "anon", nil })
	assert.True(t, resp.Success)
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 60, BurstSize: 2})
	now := time.Now()
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, wait := l.Allow("a")
	assert.False(t, ok)
	assert.InDelta(t, float64(time.Second), float64(wait), float64(10*time.Millisecond))

	ok, _ = l.Allow("b")
	assert.True(t, ok, "keys have independent buckets")

	now = now.Add(time.Second)
	ok, _ = l.Allow("a")
	assert.True(t, ok, "bucket refills over time")
}

func TestRateLimitMiddleware(t *testing.T) {
	pipe := middleware.New()
	pipe.Use(RateLimit(NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1})))
	handler := func(context.Context, *protocol.Request) (any, error) { return nil, nil }

	first := pipe.ProcessRequest(context.Background(), authedRequest("x", ""), handler)
	second := pipe.ProcessRequest(context.Background(), authedRequest("x", ""), handler)

	assert.True(t, first.Success)
	require.False(t, second.Success)
	assert.Equal(t, sdkerrors.CodeRateLimited, second.Error.Code)
	assert.True(t, sdkerrors.FromErrorObject(second.Error).Retryable())
}
