package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepAliveConfigDetectionDelay(t *testing.T) {
	cfg := KeepAliveConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  5 * time.Second,
		MaxMissed:    3,
	}
	assert.Equal(t, 95*time.Second, cfg.DetectionDelay())
}

func TestKeepAliveHealthyLink(t *testing.T) {
	var pings atomic.Int64
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval: 5 * time.Millisecond,
		PingTimeout:  50 * time.Millisecond,
		MaxMissed:    3,
	}, func(context.Context) error {
		pings.Add(1)
		return nil
	}, func() {
		t.Error("dead callback fired on a healthy link")
	})

	ka.Start(context.Background())
	defer ka.Stop()

	require.Eventually(t, func() bool {
		return pings.Load() >= 3
	}, time.Second, time.Millisecond)

	stats := ka.Stats()
	assert.Zero(t, stats.Missed)
	assert.False(t, stats.LastPong.IsZero())
}

func TestKeepAliveDeclaresDeadAfterMaxMissed(t *testing.T) {
	var pings atomic.Int64
	dead := make(chan struct{})
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval: 5 * time.Millisecond,
		PingTimeout:  50 * time.Millisecond,
		MaxMissed:    3,
	}, func(context.Context) error {
		pings.Add(1)
		return errors.New("no pong")
	}, func() {
		close(dead)
	})

	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-dead:
	case <-time.After(time.Second):
		t.Fatal("dead callback never fired")
	}

	// The loop stops at the declaration; no further probes.
	probed := pings.Load()
	assert.Equal(t, int64(3), probed)
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, probed, pings.Load())
}

func TestKeepAliveRecoversAfterMiss(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	var pings atomic.Int64
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval: 5 * time.Millisecond,
		PingTimeout:  50 * time.Millisecond,
		MaxMissed:    5,
	}, func(context.Context) error {
		pings.Add(1)
		if fail.Load() {
			return errors.New("no pong")
		}
		return nil
	}, func() {
		t.Error("dead callback fired despite recovery")
	})

	ka.Start(context.Background())
	defer ka.Stop()

	require.Eventually(t, func() bool {
		return ka.Stats().Missed >= 2
	}, time.Second, time.Millisecond)

	fail.Store(false)
	require.Eventually(t, func() bool {
		return ka.Stats().Missed == 0
	}, time.Second, time.Millisecond)
}

func TestKeepAliveStop(t *testing.T) {
	var pings atomic.Int64
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval: 5 * time.Millisecond,
		PingTimeout:  50 * time.Millisecond,
		MaxMissed:    3,
	}, func(context.Context) error {
		pings.Add(1)
		return nil
	}, nil)

	ka.Start(context.Background())
	require.Eventually(t, func() bool {
		return pings.Load() >= 1
	}, time.Second, time.Millisecond)

	ka.Stop()
	ka.Stop() // idempotent

	probed := pings.Load()
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, probed, pings.Load())
}

func TestKeepAliveDisabled(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{}, func(context.Context) error {
		t.Error("ping sent with keepalive disabled")
		return nil
	}, nil)

	ka.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, ka.Stats().Pings)
}

func TestKeepAliveContextCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var pings atomic.Int64
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval: 5 * time.Millisecond,
		PingTimeout:  50 * time.Millisecond,
		MaxMissed:    3,
	}, func(context.Context) error {
		pings.Add(1)
		return nil
	}, nil)

	ka.Start(ctx)
	require.Eventually(t, func() bool {
		return pings.Load() >= 1
	}, time.Second, time.Millisecond)

	cancel()
	time.Sleep(10 * time.Millisecond)
	probed := pings.Load()
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, probed, pings.Load())
}
