// Package wire implements the Asterisk Manager Interface message model.
//
// AMI is a line-oriented text protocol. A message is a block of
// "Key: Value" header lines terminated by an empty line, with CRLF line
// endings throughout:
//
//	Event: Newchannel
//	Uniqueid: 1700000000.1
//	Channel: SIP/1001-00000001
//	Context: from-internal
//	<blank line>
//
// Blocks are classified by their headers: a block carrying an Event key is
// an unsolicited event, a block carrying a Response key answers a
// previously sent action, and anything else is Unknown (callers log and
// drop those). Header keys are case-insensitive; the first occurrence wins
// for lookups, but repeated keys (variable lists and the like) are
// preserved in order for iteration.
//
// Outbound requests are Actions. They always start with an "Action:" line
// and carry an ActionID header so the response can be correlated back to
// its caller:
//
//	Action: Login
//	ActionID: 6ba7b810-9dad-11d1-80b4-00c04fd430c8
//	Username: dashboard
//	Secret: secret
//	<blank line>
package wire
