// Package wire implements the text wire format of the deck-control protocol.
//
// The protocol is line oriented: every line is terminated by CRLF and a
// message begins with a 3-digit status code followed by free text. A status
// line whose text ends with a colon opens a multi-line block whose payload
// lines follow until an empty line.
//
// # Message Classification
//
// Messages are classified purely from the status code:
//   - Failure: synchronous error responses (100-199 by default)
//   - Success: synchronous acknowledgements (200-299 by default)
//   - Notification: unsolicited asynchronous status pushes (500-599 by default)
//
// The code ranges vary between firmware revisions and are therefore carried
// as configuration (CodeRanges) rather than hardcoded. Codes outside all
// configured ranges classify conservatively as notifications so that newer
// firmware cannot break framing.
//
// Correlating a Success or Failure message with the command that caused it is
// the dispatcher's job; the codec only frames and classifies.
package wire
