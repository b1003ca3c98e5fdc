package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Supervisor errors.
var (
	ErrSupervisorClosed = errors.New("connection: supervisor closed")
	ErrAlreadyConnected = errors.New("connection: already connected")
	ErrNotConnected     = errors.New("connection: not connected")
)

// Supervisor defaults.
const (
	// DefaultRetryDelay is the fixed delay between reconnection attempts
	// when no backoff is configured.
	DefaultRetryDelay = 2 * time.Second

	// DefaultAttemptTimeout bounds a single reconnection attempt.
	DefaultAttemptTimeout = 30 * time.Second
)

// State represents the manager link state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an established connection that has not
	// authenticated yet.
	StateConnected

	// StateReady indicates an authenticated connection receiving events.
	StateReady
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// DialFunc establishes the transport connection and consumes the greeting
// banner.
type DialFunc func(ctx context.Context) error

// LoginFunc authenticates an established connection.
type LoginFunc func(ctx context.Context) error

// Config configures a Supervisor.
type Config struct {
	// Dial establishes the transport connection. Required.
	Dial DialFunc

	// Login authenticates after Dial succeeds. Optional; when nil the
	// link goes straight to StateReady.
	Login LoginFunc

	// Backoff controls the delay between reconnection attempts. The zero
	// value means a fixed DefaultRetryDelay.
	Backoff BackoffConfig

	// AttemptTimeout bounds a single reconnection attempt. Zero means
	// DefaultAttemptTimeout.
	AttemptTimeout time.Duration

	// AutoReconnect enables automatic reconnection on connection loss.
	AutoReconnect bool
}

// Supervisor manages the manager link lifecycle with automatic
// reconnection.
type Supervisor struct {
	mu sync.RWMutex

	// Current state
	state  State
	closed bool

	// Backoff calculator
	backoff *Backoff

	// Connection stages
	dialFn  DialFunc
	loginFn LoginFunc

	// Auto-reconnect enabled
	autoReconnect  bool
	attemptTimeout time.Duration

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Wait group for the retry goroutine
	wg sync.WaitGroup

	// Channel to signal that a retry should start
	retryCh chan struct{}

	// Callbacks
	onStateChange  func(oldState, newState State)
	onReady        func()
	onDisconnected func()
	onRetry        func(attempt int, delay time.Duration)
}

// NewSupervisor creates a new link supervisor.
func NewSupervisor(cfg Config) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())

	var backoff *Backoff
	if cfg.Backoff == (BackoffConfig{}) {
		backoff = NewFixedBackoff(DefaultRetryDelay)
	} else {
		backoff = NewBackoffWithConfig(cfg.Backoff)
	}

	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}

	return &Supervisor{
		state:          StateDisconnected,
		backoff:        backoff,
		dialFn:         cfg.Dial,
		loginFn:        cfg.Login,
		autoReconnect:  cfg.AutoReconnect,
		attemptTimeout: attemptTimeout,
		ctx:            ctx,
		cancel:         cancel,
		retryCh:        make(chan struct{}, 1),
	}
}

// State returns the current link state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsReady returns true if the link is authenticated and receiving events.
func (s *Supervisor) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateReady
}

// IsConnected returns true if the transport connection is established.
func (s *Supervisor) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateConnected || s.state == StateReady
}

// SetAutoReconnect enables or disables automatic reconnection.
func (s *Supervisor) SetAutoReconnect(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoReconnect = enabled
}

// Connect runs one full connection attempt: dial, then login.
// Returns ErrAlreadyConnected when the link is already up.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSupervisorClosed
	}
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.mu.Unlock()

	return s.connect(ctx)
}

// connect performs the staged connection attempt.
func (s *Supervisor) connect(ctx context.Context) error {
	s.setState(StateConnecting)

	if err := s.dialFn(ctx); err != nil {
		s.setState(StateDisconnected)
		return err
	}
	s.setState(StateConnected)

	if s.loginFn != nil {
		if err := s.loginFn(ctx); err != nil {
			// Authentication failure does not reset backoff.
			s.setState(StateDisconnected)
			return err
		}
	}

	s.setState(StateReady)
	s.backoff.Reset()

	s.mu.RLock()
	ready := s.onReady
	s.mu.RUnlock()
	if ready != nil {
		ready()
	}

	return nil
}

// Disconnect tears down the link. When auto-reconnect is enabled the
// supervisor schedules a new attempt.
func (s *Supervisor) Disconnect() {
	s.transitionDown(true)
}

// NotifyConnectionLost reports a dead link detected by the read loop or
// keepalive. The read loop never reconnects on its own; the supervisor owns
// that decision.
func (s *Supervisor) NotifyConnectionLost() {
	s.transitionDown(true)
}

// StartRetryLoop starts the background reconnection loop.
// Must be called once before automatic reconnection will work.
func (s *Supervisor) StartRetryLoop() {
	s.wg.Add(1)
	go s.retryLoop()
}

// Close shuts down the supervisor and stops reconnection.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.transitionDown(false)
	s.wg.Wait()
}

// RetryAttempts returns the number of reconnection attempts since the last
// successful login.
func (s *Supervisor) RetryAttempts() int {
	return s.backoff.Attempts()
}

// OnStateChange sets a callback for state changes.
func (s *Supervisor) OnStateChange(fn func(oldState, newState State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = fn
}

// OnReady sets a callback invoked after login succeeds.
func (s *Supervisor) OnReady(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReady = fn
}

// OnDisconnected sets a callback invoked when the link goes down. This is
// where callers clear connection-scoped state.
func (s *Supervisor) OnDisconnected(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnected = fn
}

// OnRetry sets a callback for reconnection attempts.
func (s *Supervisor) OnRetry(fn func(attempt int, delay time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRetry = fn
}

// setState transitions to newState and fires the state change callback.
func (s *Supervisor) setState(newState State) {
	s.mu.Lock()
	oldState := s.state
	if oldState == newState {
		s.mu.Unlock()
		return
	}
	s.state = newState
	cb := s.onStateChange
	s.mu.Unlock()

	if cb != nil {
		cb(oldState, newState)
	}
}

// transitionDown drops the link to StateDisconnected and optionally
// schedules a retry.
func (s *Supervisor) transitionDown(allowReconnect bool) {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	oldState := s.state
	s.state = StateDisconnected
	retry := allowReconnect && s.autoReconnect && !s.closed
	stateCb := s.onStateChange
	discCb := s.onDisconnected
	s.mu.Unlock()

	if stateCb != nil {
		stateCb(oldState, StateDisconnected)
	}
	if discCb != nil {
		discCb()
	}

	if retry {
		s.triggerRetry()
	}
}

// triggerRetry signals that reconnection should be attempted.
func (s *Supervisor) triggerRetry() {
	select {
	case s.retryCh <- struct{}{}:
	default:
		// Already pending
	}
}

// retryLoop runs in a goroutine and handles reconnection attempts.
func (s *Supervisor) retryLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.retryCh:
			s.retry()
		}
	}
}

// retry performs reconnection attempts with backoff until one succeeds or
// the supervisor is closed.
func (s *Supervisor) retry() {
	for {
		s.mu.RLock()
		state := s.state
		closed := s.closed
		retryCb := s.onRetry
		s.mu.RUnlock()

		if closed || state == StateReady {
			return
		}

		delay := s.backoff.Next()
		attempt := s.backoff.Attempts()

		if retryCb != nil {
			retryCb(attempt, delay)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}

		s.mu.RLock()
		state = s.state
		closed = s.closed
		s.mu.RUnlock()
		if closed || state != StateDisconnected {
			return
		}

		ctx, cancel := context.WithTimeout(s.ctx, s.attemptTimeout)
		err := s.connect(ctx)
		cancel()

		if err == nil {
			return
		}
		// Failed - continue looping with the next backoff delay
	}
}
