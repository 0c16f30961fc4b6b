// Package protocol defines the envelopes exchanged between sessions and
// servers and the payloads of the reserved system messages.
//
// # Envelopes
//
// Every message carries a Context with a unique identifier and a millisecond
// timestamp. Requests expect exactly one Response; events are fire and
// forget:
//
//	Request  { type, payload, context }
//	Response { success, data?, error?, context }
//	Event    { type, payload, context }
//
// Payloads are opaque to the runtime. Use Decode to turn a payload received
// from any transport (a Go value in process, a generic map after JSON) into a
// concrete type.
//
// # Reserved types
//
// Message types starting with "$" are reserved for the runtime itself:
//
//   - $register, $unregister: session registration with a server
//   - $ping, $serverInfo: diagnostics
//   - $subscribe, $unsubscribe: server-side subscription bookkeeping
//   - $heartbeat: liveness signal from a session
//   - $broadcast: ask the server to fan an event out to every client
//   - $connected, $disconnected, $error: server-to-client notifications
package protocol
