package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/capture"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/connection"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/transport"
)

// Service errors.
var (
	// ErrAlreadyStarted is returned by Start when the service is running.
	ErrAlreadyStarted = errors.New("service already started")

	// ErrNotStarted is returned by Stop when the service is not running.
	ErrNotStarted = errors.New("service not started")

	// ErrNotConnected is returned for actions while the manager link is
	// down.
	ErrNotConnected = errors.New("not connected to the manager")

	// ErrInvalidConfig indicates a Config that cannot be used.
	ErrInvalidConfig = errors.New("invalid service configuration")
)

// DialFunc opens a framed manager connection. Production uses the TCP/TLS
// dialer; tests substitute net.Pipe-backed connections.
type DialFunc func(ctx context.Context) (*transport.Conn, error)

// Config configures the connector service.
type Config struct {
	// Address is the manager endpoint as "host:port".
	Address string

	// Username and Secret authenticate the manager session.
	Username string
	Secret   string

	// UseMD5 selects challenge-response login instead of sending the
	// secret in clear text.
	UseMD5 bool

	// TLS enables manager-over-TLS when non-nil.
	TLS *tls.Config

	ConnectTimeout time.Duration
	ActionTimeout  time.Duration

	// Backoff paces reconnection attempts. The zero value selects the
	// supervisor's fixed default delay.
	Backoff connection.BackoffConfig

	// AutoReconnect re-establishes the session after connection loss.
	AutoReconnect bool

	// KeepAlive configures liveness probing. A zero PingInterval
	// disables it.
	KeepAlive KeepAliveConfig

	Logger zerolog.Logger

	// Capture journals protocol activity when non-nil.
	Capture capture.Logger

	// Metrics registers Prometheus collectors when non-nil.
	Metrics prometheus.Registerer

	// Dialer overrides how the manager connection is opened. Nil uses
	// the TCP/TLS dialer with Address and TLS.
	Dialer DialFunc
}

// DefaultConfig returns a config for a local Asterisk with sensible
// timeouts, automatic reconnection, and keepalive enabled.
func DefaultConfig() Config {
	return Config{
		Address:        "127.0.0.1:5038",
		ConnectTimeout: transport.DefaultConnectTimeout,
		AutoReconnect:  true,
		KeepAlive:      DefaultKeepAliveConfig(),
		Logger:         zerolog.Nop(),
	}
}

// Validate checks that the config can produce a working service.
func (c Config) Validate() error {
	if c.Address == "" && c.Dialer == nil {
		return fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}
	if c.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidConfig)
	}
	if c.Secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}
	return nil
}
