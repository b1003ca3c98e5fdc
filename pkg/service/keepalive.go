package service

import (
	"context"
	"sync"
	"time"
)

// Keepalive defaults.
const (
	DefaultPingInterval = 30 * time.Second
	DefaultPingTimeout  = 5 * time.Second
	DefaultMaxMissed    = 3
)

// KeepAliveConfig configures periodic liveness probing of the manager
// link. The manager has no unsolicited pong; the Ping action's own
// response is the liveness signal.
type KeepAliveConfig struct {
	// PingInterval is the time between probes. Zero disables keepalive.
	PingInterval time.Duration

	// PingTimeout bounds one ping round trip.
	PingTimeout time.Duration

	// MaxMissed is the number of consecutive failed probes after which
	// the link is declared dead.
	MaxMissed int
}

// DefaultKeepAliveConfig returns the standard probe timing.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval: DefaultPingInterval,
		PingTimeout:  DefaultPingTimeout,
		MaxMissed:    DefaultMaxMissed,
	}
}

// DetectionDelay returns the worst-case time between a link dying
// silently and the dead callback firing.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return time.Duration(c.MaxMissed)*c.PingInterval + c.PingTimeout
}

// PingFunc probes the link once. Returning nil counts as a pong.
type PingFunc func(ctx context.Context) error

// KeepAliveStats describes recent probe activity.
type KeepAliveStats struct {
	LastPing time.Time
	LastPong time.Time
	Missed   int
	Pings    uint64
}

// KeepAlive probes one manager connection. Created per connection; Stop
// when the connection goes away.
type KeepAlive struct {
	config KeepAliveConfig
	ping   PingFunc
	onDead func()

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	missed   int
	pings    uint64
	lastPing time.Time
	lastPong time.Time
}

// NewKeepAlive builds a keepalive with zero config fields filled from the
// defaults. PingInterval stays as given; zero means Start is a no-op.
func NewKeepAlive(config KeepAliveConfig, ping PingFunc, onDead func()) *KeepAlive {
	if config.PingTimeout <= 0 {
		config.PingTimeout = DefaultPingTimeout
	}
	if config.MaxMissed <= 0 {
		config.MaxMissed = DefaultMaxMissed
	}
	return &KeepAlive{
		config: config,
		ping:   ping,
		onDead: onDead,
	}
}

// Start launches the probe loop. No-op when already running or disabled.
func (k *KeepAlive) Start(ctx context.Context) {
	k.mu.Lock()
	if k.running || k.config.PingInterval <= 0 {
		k.mu.Unlock()
		return
	}
	k.running = true
	k.stopCh = make(chan struct{})
	stop := k.stopCh
	k.mu.Unlock()

	go k.loop(ctx, stop)
}

// Stop ends the probe loop. Idempotent.
func (k *KeepAlive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.running {
		return
	}
	k.running = false
	close(k.stopCh)
}

// Stats returns a snapshot of probe activity.
func (k *KeepAlive) Stats() KeepAliveStats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return KeepAliveStats{
		LastPing: k.lastPing,
		LastPong: k.lastPong,
		Missed:   k.missed,
		Pings:    k.pings,
	}
}

func (k *KeepAlive) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(k.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if !k.probe(ctx) {
				return
			}
		}
	}
}

// probe sends one ping. Returns false once the miss budget is exhausted,
// after firing the dead callback.
func (k *KeepAlive) probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, k.config.PingTimeout)
	err := k.ping(pctx)
	cancel()

	now := time.Now()
	k.mu.Lock()
	k.pings++
	k.lastPing = now
	if err == nil {
		k.missed = 0
		k.lastPong = now
		k.mu.Unlock()
		return true
	}
	k.missed++
	missed := k.missed
	k.mu.Unlock()

	if missed < k.config.MaxMissed {
		return true
	}
	if k.onDead != nil {
		k.onDead()
	}
	return false
}
