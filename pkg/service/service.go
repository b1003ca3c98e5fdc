package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/calls"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/capture"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/connection"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/manager"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/transport"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/version"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/wire"
)

const (
	// logoffTimeout bounds the best-effort Logoff during Stop.
	logoffTimeout = 2 * time.Second

	// initialStatusTimeout bounds each bulk status request after login.
	initialStatusTimeout = 15 * time.Second
)

// Service ties the transport, action correlator, event dispatcher, call
// tracker, and connection supervisor into one supervised manager session.
//
// Lifecycle: New, Start, Stop. After Stop the service can be started
// again; a fresh supervisor is built per run.
type Service struct {
	config Config
	logger zerolog.Logger

	dispatcher *manager.Dispatcher
	tracker    *calls.Tracker
	queueStats *QueueStatsCollector
	metrics    *serviceMetrics

	mu         sync.Mutex
	started    bool
	runCtx     context.Context
	runStop    context.CancelFunc
	supervisor *connection.Supervisor

	// Per-connection state, swapped atomically under mu.
	conn       *transport.Conn
	client     *manager.Client
	keepalive  *KeepAlive
	connID     string
	managerVer version.ManagerVersion

	cbMu            sync.RWMutex
	onCallStarted   []func(calls.Call)
	onCallEnded     []func(calls.Call)
	onDeviceState   []func(calls.Device)
	onStateChangeFn []func(oldState, newState connection.State)
}

// New builds a service from config. The dispatcher, tracker, and queue
// statistics collector are wired immediately; no connection is made until
// Start.
func New(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger.With().Str("component", "service").Logger()

	dispatcher := manager.NewDispatcher(cfg.Logger)
	tracker := calls.NewTracker(cfg.Logger)
	dispatcher.SetBuiltin(tracker.HandleEvent)

	queueStats := NewQueueStatsCollector(cfg.Logger)
	queueStats.Install(dispatcher)

	s := &Service{
		config:     cfg,
		logger:     logger,
		dispatcher: dispatcher,
		tracker:    tracker,
		queueStats: queueStats,
	}

	if cfg.Metrics != nil {
		s.metrics = newServiceMetrics(cfg.Metrics)
		dispatcher.RegisterCatchAll(func(msg *wire.Message) error {
			if msg.Kind() == wire.KindEvent {
				s.metrics.eventsDispatched.WithLabelValues(msg.Name()).Inc()
			}
			return nil
		})
		dispatcher.OnHandlerPanic(func(string) {
			s.metrics.handlerPanics.Inc()
		})
	}

	tracker.OnCallStarted(func(call calls.Call) {
		if s.metrics != nil {
			s.metrics.activeCalls.Set(float64(tracker.CallCount()))
		}
		s.fanOutCallStarted(call)
	})
	tracker.OnCallEnded(func(call calls.Call) {
		if s.metrics != nil {
			s.metrics.activeCalls.Set(float64(tracker.CallCount()))
		}
		s.fanOutCallEnded(call)
	})
	tracker.OnDeviceState(func(device calls.Device) {
		if s.metrics != nil {
			s.metrics.trackedDevices.Set(float64(tracker.DeviceCount()))
		}
		s.fanOutDeviceState(device)
	})

	return s, nil
}

// Start connects to the manager and begins the supervised session. A
// failed first connection is returned as an error; later losses are
// handled by the supervisor according to AutoReconnect.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.runCtx, s.runStop = context.WithCancel(context.Background())

	sup := connection.NewSupervisor(connection.Config{
		Dial:          s.dial,
		Login:         s.login,
		Backoff:       s.config.Backoff,
		AutoReconnect: s.config.AutoReconnect,
	})
	s.supervisor = sup
	s.mu.Unlock()

	sup.OnStateChange(s.handleStateChange)
	sup.OnReady(s.onReady)
	sup.OnDisconnected(s.teardown)
	sup.OnRetry(func(attempt int, delay time.Duration) {
		if s.metrics != nil {
			s.metrics.reconnects.Inc()
		}
		s.logger.Info().
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Scheduling reconnect")
	})
	sup.StartRetryLoop()

	if err := sup.Connect(ctx); err != nil {
		sup.Close()
		s.mu.Lock()
		s.started = false
		s.supervisor = nil
		stop := s.runStop
		s.mu.Unlock()
		stop()
		return fmt.Errorf("connecting to manager: %w", err)
	}

	s.logger.Info().Str("address", s.config.Address).Msg("Service started")
	return nil
}

// Stop logs off, closes the connection, and ends the session. Safe to
// call once per Start.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	sup := s.supervisor
	s.supervisor = nil
	client := s.client
	stop := s.runStop
	s.mu.Unlock()

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), logoffTimeout)
		if err := client.Logoff(ctx); err != nil {
			s.logger.Debug().Err(err).Msg("Logoff failed")
		}
		cancel()
	}
	if sup != nil {
		sup.Close()
	}
	if stop != nil {
		stop()
	}

	s.logger.Info().Msg("Service stopped")
	return nil
}

// dial opens the manager connection, validates the greeting, and starts
// the read loop. Called by the supervisor with the attempt context.
func (s *Service) dial(ctx context.Context) error {
	conn, err := s.openConn(ctx)
	if err != nil {
		return err
	}

	connID := uuid.NewString()
	if s.config.Capture != nil {
		conn.SetCapture(s.config.Capture, connID)
	}

	banner, err := conn.ReadBanner()
	if err != nil {
		conn.Close()
		return fmt.Errorf("reading greeting: %w", err)
	}
	ver, err := version.ParseBanner(banner)
	if err != nil {
		conn.Close()
		return fmt.Errorf("unexpected greeting %q: %w", banner, err)
	}

	client := manager.NewClient(conn, s.dispatcher)
	if s.config.ActionTimeout > 0 {
		client.SetTimeout(s.config.ActionTimeout)
	}
	client.SetCapture(s.config.Capture, connID)
	s.tracker.SetCapture(s.config.Capture, connID)

	s.mu.Lock()
	s.conn = conn
	s.client = client
	s.connID = connID
	s.managerVer = ver
	s.mu.Unlock()

	// The read loop must run before login so the login response can be
	// correlated.
	go s.listen(conn, client)

	s.logger.Info().
		Str("remote", conn.RemoteAddr().String()).
		Str("manager_version", ver.String()).
		Msg("Connected to manager")
	return nil
}

func (s *Service) openConn(ctx context.Context) (*transport.Conn, error) {
	if s.config.Dialer != nil {
		return s.config.Dialer(ctx)
	}
	tcfg := transport.DefaultConfig()
	if s.config.ConnectTimeout > 0 {
		tcfg.ConnectTimeout = s.config.ConnectTimeout
	}
	tcfg.TLS = s.config.TLS
	return transport.Dial(ctx, s.config.Address, tcfg)
}

// login authenticates the freshly dialed connection. On failure the
// connection is torn down here: the supervisor treats a login error as a
// failed attempt without firing the disconnect callback.
func (s *Service) login(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	var err error
	if s.config.UseMD5 {
		err = client.LoginMD5(ctx, s.config.Username, s.config.Secret)
	} else {
		err = client.Login(ctx, s.config.Username, s.config.Secret)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("username", s.config.Username).Msg("Manager login failed")
		s.teardown()
		return err
	}

	s.logger.Info().Str("username", s.config.Username).Msg("Logged in to manager")
	return nil
}

// listen reads blocks off one connection until it dies. Each connection
// gets its own listener; the conn argument pins which connection a late
// error belongs to.
func (s *Service) listen(conn *transport.Conn, client *manager.Client) {
	for {
		lines, err := conn.ReadBlock()
		if err != nil {
			if errors.Is(err, transport.ErrConnectionClosed) {
				s.logger.Debug().Msg("Manager connection closed")
			} else {
				s.logger.Warn().Err(err).Msg("Manager read failed")
			}
			s.reportLost(conn)
			return
		}

		msg, err := wire.ParseBlock(lines)
		if err != nil {
			// The stream realigns on the next blank line; drop
			// this block and keep reading.
			s.logger.Warn().Err(err).Msg("Dropping undecodable block")
			if s.metrics != nil {
				s.metrics.decodeErrors.Inc()
			}
			s.captureError(capture.LayerWire, err, "parse block")
			continue
		}
		client.HandleMessage(msg)
	}
}

// reportLost notifies the supervisor about a dead connection, unless a
// newer connection has already replaced it.
func (s *Service) reportLost(conn *transport.Conn) {
	s.mu.Lock()
	current := s.conn == conn
	sup := s.supervisor
	s.mu.Unlock()
	if current && sup != nil {
		sup.NotifyConnectionLost()
	}
}

// teardown releases the per-connection state. Fired by the supervisor on
// disconnect and called directly when login fails. Idempotent.
func (s *Service) teardown() {
	s.mu.Lock()
	conn, client, ka := s.conn, s.client, s.keepalive
	s.conn, s.client, s.keepalive = nil, nil, nil
	s.mu.Unlock()

	if ka != nil {
		ka.Stop()
	}
	if client != nil {
		client.FailPending(transport.ErrConnectionClosed)
		client.Close()
	}
	if conn != nil {
		conn.Close()
	}
	s.tracker.Clear()
	s.queueStats.Clear()
}

// onReady runs after a successful login: start the keepalive for this
// connection and request the bulk state snapshot.
func (s *Service) onReady() {
	s.mu.Lock()
	client := s.client
	conn := s.conn
	ctx := s.runCtx
	var ka *KeepAlive
	if client != nil && s.config.KeepAlive.PingInterval > 0 {
		ka = NewKeepAlive(s.config.KeepAlive,
			client.Ping,
			func() {
				s.logger.Warn().Msg("Keepalive declared the manager link dead")
				s.reportLost(conn)
			})
		s.keepalive = ka
	}
	s.mu.Unlock()

	if client == nil {
		return
	}
	if ka != nil {
		ka.Start(ctx)
	}
	go s.requestInitialStatus(ctx, client)
}

// requestInitialStatus primes the tracker and queue statistics after
// (re)connect. Best effort: older switches reject the list actions.
func (s *Service) requestInitialStatus(ctx context.Context, client *manager.Client) {
	requests := []struct {
		name string
		send func(context.Context) (*wire.Message, error)
	}{
		{"QueueStatus", client.QueueStatus},
		{"ExtensionStateList", client.ExtensionStateList},
		{"DeviceStateList", client.DeviceStateList},
	}
	for _, req := range requests {
		rctx, cancel := context.WithTimeout(ctx, initialStatusTimeout)
		resp, err := req.send(rctx)
		cancel()
		if err != nil {
			s.logger.Debug().Err(err).Str("action", req.name).Msg("Initial status request failed")
			continue
		}
		if !resp.Success() {
			s.logger.Debug().
				Str("action", req.name).
				Str("message", resp.Get(wire.KeyMessage)).
				Msg("Initial status request rejected")
		}
	}
}

func (s *Service) handleStateChange(oldState, newState connection.State) {
	s.logger.Info().
		Str("from", oldState.String()).
		Str("to", newState.String()).
		Msg("Connection state changed")

	if s.metrics != nil {
		s.metrics.connectionState.Set(float64(newState))
	}
	if s.config.Capture != nil {
		s.config.Capture.Log(capture.Record{
			Timestamp:    time.Now(),
			ConnectionID: s.currentConnID(),
			Direction:    capture.DirectionIn,
			Layer:        capture.LayerService,
			Category:     capture.CategoryState,
			StateChange: &capture.StateChangeRecord{
				Entity:   "connection",
				OldState: oldState.String(),
				NewState: newState.String(),
			},
		})
	}

	s.cbMu.RLock()
	fns := s.onStateChangeFn
	s.cbMu.RUnlock()
	for _, fn := range fns {
		fn(oldState, newState)
	}
}

func (s *Service) captureError(layer capture.Layer, err error, context string) {
	if s.config.Capture == nil {
		return
	}
	s.config.Capture.Log(capture.Record{
		Timestamp:    time.Now(),
		ConnectionID: s.currentConnID(),
		Direction:    capture.DirectionIn,
		Layer:        layer,
		Category:     capture.CategoryError,
		Error: &capture.ErrorRecord{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	})
}

func (s *Service) currentConnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

func (s *Service) currentClient() *manager.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// SendAction issues an arbitrary manager action and waits for its
// response.
func (s *Service) SendAction(ctx context.Context, name string, params map[string]string) (*wire.Message, error) {
	client := s.currentClient()
	if client == nil {
		return nil, ErrNotConnected
	}
	if s.metrics != nil {
		s.metrics.actionsSent.Inc()
	}
	resp, err := client.Send(ctx, buildAction(name, params))
	if err != nil {
		if errors.Is(err, manager.ErrActionTimeout) && s.metrics != nil {
			s.metrics.actionTimeouts.Inc()
		}
		return nil, err
	}
	return resp, nil
}

func buildAction(name string, params map[string]string) *wire.Action {
	action := wire.NewAction(name)
	for key, value := range params {
		action.Set(key, value)
	}
	return action
}

// RegisterEventHandler subscribes a handler to one event name.
func (s *Service) RegisterEventHandler(event string, handler manager.EventHandler) {
	s.dispatcher.Register(event, handler)
}

// OnAnyEvent subscribes a handler to every event regardless of name.
func (s *Service) OnAnyEvent(handler manager.EventHandler) {
	s.dispatcher.RegisterCatchAll(handler)
}

// OnCallStarted adds a listener for new tracked calls.
func (s *Service) OnCallStarted(fn func(calls.Call)) {
	s.cbMu.Lock()
	s.onCallStarted = append(s.onCallStarted, fn)
	s.cbMu.Unlock()
}

// OnCallEnded adds a listener for ended calls.
func (s *Service) OnCallEnded(fn func(calls.Call)) {
	s.cbMu.Lock()
	s.onCallEnded = append(s.onCallEnded, fn)
	s.cbMu.Unlock()
}

// OnDeviceState adds a listener for device state changes.
func (s *Service) OnDeviceState(fn func(calls.Device)) {
	s.cbMu.Lock()
	s.onDeviceState = append(s.onDeviceState, fn)
	s.cbMu.Unlock()
}

// OnConnectionState adds a listener for connection state transitions.
func (s *Service) OnConnectionState(fn func(oldState, newState connection.State)) {
	s.cbMu.Lock()
	s.onStateChangeFn = append(s.onStateChangeFn, fn)
	s.cbMu.Unlock()
}

func (s *Service) fanOutCallStarted(call calls.Call) {
	s.cbMu.RLock()
	fns := s.onCallStarted
	s.cbMu.RUnlock()
	for _, fn := range fns {
		fn(call)
	}
}

func (s *Service) fanOutCallEnded(call calls.Call) {
	s.cbMu.RLock()
	fns := s.onCallEnded
	s.cbMu.RUnlock()
	for _, fn := range fns {
		fn(call)
	}
}

func (s *Service) fanOutDeviceState(device calls.Device) {
	s.cbMu.RLock()
	fns := s.onDeviceState
	s.cbMu.RUnlock()
	for _, fn := range fns {
		fn(device)
	}
}

// State returns the connection state.
func (s *Service) State() connection.State {
	s.mu.Lock()
	sup := s.supervisor
	s.mu.Unlock()
	if sup == nil {
		return connection.StateDisconnected
	}
	return sup.State()
}

// IsConnected reports whether the session is authenticated and receiving
// events.
func (s *Service) IsConnected() bool {
	return s.State() == connection.StateReady
}

// ManagerVersion returns the version announced in the greeting of the
// current (or last) connection.
func (s *Service) ManagerVersion() version.ManagerVersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.managerVer
}

// Tracker exposes the live call and device state.
func (s *Service) Tracker() *calls.Tracker {
	return s.tracker
}

// ActiveCalls returns the currently tracked calls.
func (s *Service) ActiveCalls() []calls.Call {
	return s.tracker.ActiveCalls()
}

// DeviceStates returns the last known state of every tracked device.
func (s *Service) DeviceStates() map[string]calls.Device {
	return s.tracker.DeviceStates()
}

// QueueStats returns the live per-queue statistics.
func (s *Service) QueueStats() map[string]QueueStats {
	return s.queueStats.Stats()
}

// KeepAliveStats returns probe statistics for the current connection.
// The zero value is returned while disconnected or with keepalive off.
func (s *Service) KeepAliveStats() KeepAliveStats {
	s.mu.Lock()
	ka := s.keepalive
	s.mu.Unlock()
	if ka == nil {
		return KeepAliveStats{}
	}
	return ka.Stats()
}

// Reconnect drops the current connection. With AutoReconnect the
// supervisor re-establishes the session on its own; otherwise a new
// connection is made here.
func (s *Service) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	sup := s.supervisor
	s.mu.Unlock()
	if sup == nil {
		return ErrNotStarted
	}

	sup.Disconnect()
	if s.config.AutoReconnect {
		return nil
	}
	if err := sup.Connect(ctx); err != nil && !errors.Is(err, connection.ErrAlreadyConnected) {
		return err
	}
	return nil
}

// EnsureConnected starts a connection attempt when the link is fully
// down. The health monitor uses this to recover from a state the retry
// loop cannot reach, such as a failed manual reconnect.
func (s *Service) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	sup := s.supervisor
	s.mu.Unlock()
	if sup == nil {
		return ErrNotStarted
	}
	if sup.State() != connection.StateDisconnected {
		return nil
	}
	if err := sup.Connect(ctx); err != nil && !errors.Is(err, connection.ErrAlreadyConnected) {
		return err
	}
	return nil
}

// RunHealthMonitor periodically verifies the link and nudges a stuck
// disconnected session back up. Blocks until ctx is done.
func (s *Service) RunHealthMonitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.EnsureConnected(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Health check reconnect failed")
			}
		}
	}
}

// RunQueueStatsPoll refreshes queue statistics on a fixed interval by
// issuing QueueStatus per queue. The queues function supplies the current
// Asterisk queue names; with none known a single unfiltered QueueStatus
// is sent. Blocks until ctx is done.
func (s *Service) RunQueueStatsPoll(ctx context.Context, interval time.Duration, queues func() []string) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pollQueueStats(ctx, queues())
		}
	}
}

func (s *Service) pollQueueStats(ctx context.Context, queues []string) {
	if !s.IsConnected() {
		return
	}
	if len(queues) == 0 {
		if _, err := s.SendAction(ctx, "QueueStatus", nil); err != nil {
			s.logger.Debug().Err(err).Msg("Queue statistics poll failed")
		}
		return
	}
	for _, queue := range queues {
		if _, err := s.SendAction(ctx, "QueueStatus", map[string]string{"Queue": queue}); err != nil {
			s.logger.Debug().Err(err).Str("queue", queue).Msg("Queue statistics poll failed")
			return
		}
	}
}
