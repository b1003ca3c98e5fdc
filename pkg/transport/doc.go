// Package transport provides the TCP transport for the Asterisk Manager
// Interface.
//
// The transport layer handles:
//   - Plain TCP or TLS connections to the manager port
//   - The one-line greeting banner sent before the first block
//   - CRLF block framing ("Key: Value" lines terminated by a blank line)
//   - Serialized writes so concurrent senders never interleave frames
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   Manager messages (text)      │
//	├────────────────────────────────┤
//	│   CRLF block framing           │
//	├────────────────────────────────┤
//	│   TLS (optional, tlsenable)    │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Framing
//
// The switch terminates lines with CRLF; bare LF is tolerated on the read
// side. A blank line ends a block. The greeting banner ("Asterisk Call
// Manager/<version>") is a single line with no terminating blank line and
// must be consumed with ReadBanner before the first ReadBlock.
//
// Reads and writes are bounded: lines longer than MaxLineBytes and blocks
// with more than MaxBlockLines lines are rejected rather than buffered
// without limit.
package transport
