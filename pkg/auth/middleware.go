package auth

import (
	"context"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/middleware"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

// Config configures the authentication middleware.
type Config struct {
	Provider AuthProvider

	// Required rejects requests without a token. When false, anonymous
	// requests pass through and only presented tokens are validated.
	Required bool

	// ExemptTypes are never authenticated.
	ExemptTypes []string

	// CheckSystemTypes also authenticates reserved "$" types. By default
	// they are exempt so sessions can register before logging in.
	CheckSystemTypes bool
}

// Middleware validates the token in context.auth.token with cfg.Provider.
// On success the principal's ID is written to context.auth.actor and the
// UserInfo is stored in the Go context for handlers.
func Middleware(cfg Config) middleware.RequestMiddleware {
	exempt := make(map[string]struct{}, len(cfg.ExemptTypes))
	for _, t := range cfg.ExemptTypes {
		exempt[t] = struct{}{}
	}

	return func(ctx context.Context, req *protocol.Request, next middleware.RequestNext) (*protocol.Response, error) {
		if _, ok := exempt[req.Type]; ok {
			return next(ctx, req)
		}
		if !cfg.CheckSystemTypes && protocol.IsSystemType(req.Type) {
			return next(ctx, req)
		}

		token := req.Context.Token()
		if token == "" {
			if cfg.Required {
				return nil, NewAuthError(ReasonAuthRequired, "authentication required")
			}
			return next(ctx, req)
		}
		if cfg.Provider == nil {
			return nil, NewAuthError(ReasonNoProvider, "no authentication provider configured")
		}

		user, err := cfg.Provider.Validate(ctx, token)
		if err != nil {
			if _, typed := sdkerrors.AsTypedError(err); !typed {
				err = NewAuthError(ReasonTokenInvalid, err.Error()).WithCause(err)
			}
			return nil, err
		}

		authed := *req
		authed.Context = req.Context.Clone()
		authed.Context.Auth.Actor = user.ID
		return next(ContextWithUserInfo(ctx, user), &authed)
	}
}
