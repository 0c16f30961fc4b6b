package errors

// Built-in error codes.
const (
	CodeValidation           = "validation_error"
	CodeInvalidPayload       = "invalid_payload"
	CodeHandlerNotFound      = "handler_not_found"
	CodeClientNotFound       = "client_not_found"
	CodeSubscriptionNotFound = "subscription_not_found"
	CodeNotConnected         = "not_connected"
	CodeConnectionFailed     = "connection_error"
	CodeConnectionLost       = "connection_lost"
	CodeTimeout              = "timeout"
	CodeCancelled            = "cancelled"
	CodeTransport            = "transport_error"
	CodeUnauthorized         = "unauthorized"
	CodeRateLimited          = "rate_limited"
	CodeMaxClients           = "max_clients_reached"
	CodeCircuitOpen          = "circuit_open"
	CodeRegistrationFailed   = "registration_failed"
	CodeTypeMutated          = "type_mutated"
	CodeUnexpected           = "unexpected_error"
)

// Definition describes a registered error code. MessageTemplate may contain
// {name} placeholders filled from the params passed to Registry.Create.
type Definition struct {
	Code            string
	MessageTemplate string
	Type            Type
	Severity        Severity
	Retryable       bool
	Metadata        map[string]any
}

var builtinDefinitions = []Definition{
	{CodeValidation, "Validation failed: {reason}", TypeValidation, SeverityWarning, false, nil},
	{CodeInvalidPayload, "Invalid payload for {type}: {reason}", TypeValidation, SeverityWarning, false, nil},
	{CodeHandlerNotFound, "No handler registered for {type}", TypeBusiness, SeverityWarning, false, nil},
	{CodeClientNotFound, "Client {clientId} is not registered", TypeBusiness, SeverityWarning, false, nil},
	{CodeSubscriptionNotFound, "Subscription {subscriptionId} not found", TypeBusiness, SeverityWarning, false, nil},
	{CodeNotConnected, "Not connected: cannot {operation}", TypeTransport, SeverityError, true, nil},
	{CodeConnectionFailed, "Failed to connect to {target}", TypeTransport, SeverityError, true, nil},
	{CodeConnectionLost, "Connection lost: {reason}", TypeTransport, SeverityError, true, nil},
	{CodeTimeout, "Operation {operation} timed out", TypeTransport, SeverityError, true, nil},
	{CodeCancelled, "Operation {operation} was cancelled", TypeSystem, SeverityInfo, false, nil},
	{CodeTransport, "Transport error during {operation}", TypeTransport, SeverityError, true, nil},
	{CodeUnauthorized, "Unauthorized: {reason}", TypeBusiness, SeverityWarning, false, nil},
	{CodeRateLimited, "Rate limit exceeded for {key}", TypeBusiness, SeverityWarning, true, nil},
	{CodeMaxClients, "Server is full ({max} clients)", TypeSystem, SeverityWarning, true, nil},
	{CodeCircuitOpen, "Circuit breaker open for {operation}", TypeTransport, SeverityWarning, true, nil},
	{CodeRegistrationFailed, "Registration failed: {reason}", TypeSystem, SeverityError, true, nil},
	{CodeTypeMutated, "Message type changed from {from} to {to} during processing", TypeSystem, SeverityError, false, nil},
	{CodeUnexpected, "Unexpected error: {reason}", TypeUnexpected, SeverityError, false, nil},
}

var builtins = func() map[string]Definition {
	m := make(map[string]Definition, len(builtinDefinitions))
	for _, def := range builtinDefinitions {
		m[def.Code] = def
	}
	return m
}()

// Builtin returns a copy of the built-in definitions.
func Builtin() []Definition {
	out := make([]Definition, len(builtinDefinitions))
	copy(out, builtinDefinitions)
	return out
}
