// Package transport provides the TCP transport layer of the deck client.
//
// The transport layer handles:
//   - The persistent TCP connection to the deck (default port 9993)
//   - A dedicated read loop decoding CRLF-framed messages
//   - Atomic writes (no interleaving between concurrent senders)
//   - Connection state management
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   Text Messages (pkg/wire)     │
//	├────────────────────────────────┤
//	│      CRLF Line Framing         │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// Reconnection is never automatic inside the transport: on socket error or
// EOF the connection transitions to Disconnected and reports the failure
// through the Handler. Whether and when to redial is the caller's policy
// (see pkg/redial).
package transport
