package middleware

import (
	"context"
	"fmt"
	"time"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

// Validator checks the payload of a message.
type Validator interface {
	Validate(ctx context.Context, msgType string, payload any) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, msgType string, payload any) error

func (f ValidatorFunc) Validate(ctx context.Context, msgType string, payload any) error {
	return f(ctx, msgType, payload)
}

// Validation rejects requests whose payload fails v with a validation_error
// response. The handler is not called for rejected requests.
func Validation(v Validator) RequestMiddleware {
	return func(ctx context.Context, req *protocol.Request, next RequestNext) (*protocol.Response, error) {
		if err := v.Validate(ctx, req.Type, req.Payload); err != nil {
			return protocol.NewErrorResponse(sdkerrors.ToErrorObject(asValidation(err)), req.Context.Reply()), nil
		}
		return next(ctx, req)
	}
}

// EventValidation drops events whose payload fails v.
func EventValidation(v Validator, logger logging.Logger) EventMiddleware {
	log := logging.Component(logger, "validation")
	return func(ctx context.Context, ev *protocol.Event, next EventNext) error {
		if err := v.Validate(ctx, ev.Type, ev.Payload); err != nil {
			log.WithContext(ctx).WithError(err).Debug("dropping invalid event", logging.String("type", ev.Type))
			return nil
		}
		return next(ctx, ev)
	}
}

func asValidation(err error) sdkerrors.TypedError {
	if te, ok := sdkerrors.AsTypedError(err); ok {
		return te
	}
	return sdkerrors.ValidationError(err.Error()).WithCause(err)
}

// RequiredFields returns a Validator that requires the listed top-level
// payload fields per message type. Types without an entry pass.
func RequiredFields(fields map[string][]string) Validator {
	return ValidatorFunc(func(_ context.Context, msgType string, payload any) error {
		required, ok := fields[msgType]
		if !ok || len(required) == 0 {
			return nil
		}
		obj, err := protocol.Decode[map[string]any](payload)
		if err != nil {
			return sdkerrors.InvalidPayload(msgType, err)
		}
		for _, field := range required {
			if v, ok := obj[field]; !ok || v == nil {
				return sdkerrors.MissingField(msgType, field)
			}
		}
		return nil
	})
}

// Logging logs every request with its outcome and duration.
func Logging(logger logging.Logger) RequestMiddleware {
	log := logging.Component(logger, "requests")
	return func(ctx context.Context, req *protocol.Request, next RequestNext) (*protocol.Response, error) {
		start := time.Now()
		l := log.WithContext(ctx).WithFields(
			logging.String("type", req.Type),
			logging.String("source", req.Context.Source),
		)
		l.Debug("request started")

		resp, err := next(ctx, req)
		duration := time.Since(start)

		switch {
		case err != nil:
			l.WithError(err).Warn("request failed", logging.Duration("duration", duration))
		case resp != nil && !resp.Success && resp.Error != nil:
			l.Info("request rejected",
				logging.String("error_code", resp.Error.Code),
				logging.Duration("duration", duration),
			)
		default:
			l.Info("request completed", logging.Duration("duration", duration))
		}
		return resp, err
	}
}

// EventLogging logs every event passing through the chain.
func EventLogging(logger logging.Logger) EventMiddleware {
	log := logging.Component(logger, "events")
	return func(ctx context.Context, ev *protocol.Event, next EventNext) error {
		err := next(ctx, ev)
		l := log.WithContext(ctx).WithFields(
			logging.String("type", ev.Type),
			logging.String("source", ev.Context.Source),
		)
		if err != nil {
			l.WithError(err).Warn("event handling failed")
		} else {
			l.Debug("event handled")
		}
		return err
	}
}

// Timeout bounds the rest of the chain to d. Handlers that ignore their
// context keep running in the background, but the caller receives a
// timeout error once d elapses.
func Timeout(d time.Duration) RequestMiddleware {
	type result struct {
		resp *protocol.Response
		err  error
	}
	return func(ctx context.Context, req *protocol.Request, next RequestNext) (*protocol.Response, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		done := make(chan result, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- result{err: sdkerrors.Unexpected(fmt.Errorf("panic: %v", r))}
				}
			}()
			resp, err := next(ctx, req)
			done <- result{resp, err}
		}()

		select {
		case r := <-done:
			return r.resp, r.err
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, sdkerrors.Timeout(req.Type, d)
			}
			return nil, sdkerrors.Cancelled(req.Type)
		}
	}
}
