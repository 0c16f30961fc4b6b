package errors

import (
	"fmt"
	"time"
)

// ValidationError reports a request that failed validation.
func ValidationError(reason string) TypedError {
	return builtin(CodeValidation, map[string]any{"reason": reason})
}

// MissingField reports a required payload field that is absent.
func MissingField(messageType, field string) TypedError {
	err := builtin(CodeValidation, map[string]any{"reason": fmt.Sprintf("missing required field %q", field)})
	err.metadata = map[string]any{"type": messageType, "field": field}
	return err
}

// InvalidPayload reports a payload that could not be decoded for messageType.
func InvalidPayload(messageType string, cause error) TypedError {
	reason := "malformed"
	if cause != nil {
		reason = cause.Error()
	}
	err := builtin(CodeInvalidPayload, map[string]any{"type": messageType, "reason": reason})
	err.cause = cause
	return err
}

// HandlerNotFound reports a request type without a registered handler.
func HandlerNotFound(messageType string) TypedError {
	err := builtin(CodeHandlerNotFound, map[string]any{"type": messageType})
	err.metadata = map[string]any{"type": messageType}
	return err
}

// ClientNotFound reports an operation addressed to an unknown client.
func ClientNotFound(clientID string) TypedError {
	err := builtin(CodeClientNotFound, map[string]any{"clientId": clientID})
	err.metadata = map[string]any{"clientId": clientID}
	return err
}

// SubscriptionNotFound reports an unknown subscription identifier.
func SubscriptionNotFound(subscriptionID string) TypedError {
	return builtin(CodeSubscriptionNotFound, map[string]any{"subscriptionId": subscriptionID})
}

// NotConnected reports an operation attempted without a live connection.
func NotConnected(operation string) TypedError {
	return builtin(CodeNotConnected, map[string]any{"operation": operation})
}

// ConnectionFailed reports a failed connection attempt.
func ConnectionFailed(target string, cause error) TypedError {
	err := builtin(CodeConnectionFailed, map[string]any{"target": target})
	err.cause = cause
	if cause != nil {
		err.details = cause.Error()
	}
	return err
}

// ConnectionLost reports a connection that dropped after it was established.
func ConnectionLost(reason string, cause error) TypedError {
	err := builtin(CodeConnectionLost, map[string]any{"reason": reason})
	err.cause = cause
	return err
}

// Timeout reports an operation that did not complete in time.
func Timeout(operation string, timeout time.Duration) TypedError {
	err := builtin(CodeTimeout, map[string]any{"operation": operation})
	if timeout > 0 {
		err.details = fmt.Sprintf("no result after %s", timeout)
		err.metadata = map[string]any{"timeoutMs": timeout.Milliseconds()}
	}
	return err
}

// Cancelled reports an operation abandoned because its context was cancelled.
func Cancelled(operation string) TypedError {
	return builtin(CodeCancelled, map[string]any{"operation": operation})
}

// TransportError reports a transport-level failure.
func TransportError(operation string, cause error) TypedError {
	err := builtin(CodeTransport, map[string]any{"operation": operation})
	err.cause = cause
	if cause != nil {
		err.details = cause.Error()
	}
	return err
}

// Unauthorized reports missing or rejected credentials.
func Unauthorized(reason string) TypedError {
	return builtin(CodeUnauthorized, map[string]any{"reason": reason})
}

// RateLimited reports a caller that exceeded its request budget.
func RateLimited(key string, retryAfter time.Duration) TypedError {
	err := builtin(CodeRateLimited, map[string]any{"key": key})
	err.metadata = map[string]any{"retryAfterMs": retryAfter.Milliseconds()}
	return err
}

// MaxClientsReached reports a registration refused by a full server.
func MaxClientsReached(max int) TypedError {
	return builtin(CodeMaxClients, map[string]any{"max": max})
}

// CircuitOpen reports a call rejected by an open circuit breaker.
func CircuitOpen(operation string) TypedError {
	return builtin(CodeCircuitOpen, map[string]any{"operation": operation})
}

// RegistrationFailed reports a failed $register handshake.
func RegistrationFailed(reason string, cause error) TypedError {
	err := builtin(CodeRegistrationFailed, map[string]any{"reason": reason})
	err.cause = cause
	return err
}

// TypeMutated reports middleware that changed the type of the message it
// was processing.
func TypeMutated(from, to string) TypedError {
	return builtin(CodeTypeMutated, map[string]any{"from": from, "to": to})
}

// Unexpected wraps an error that carries no code of its own.
func Unexpected(cause error) TypedError {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	err := builtin(CodeUnexpected, map[string]any{"reason": reason})
	err.cause = cause
	return err
}
