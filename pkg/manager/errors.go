package manager

import "errors"

// Client errors.
var (
	// ErrActionTimeout indicates no matching response arrived within the
	// action timeout.
	ErrActionTimeout = errors.New("manager: action timeout")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("manager: client closed")

	// ErrLoginFailed indicates the switch rejected the credentials.
	ErrLoginFailed = errors.New("manager: login failed")
)
