package dashboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Pusher periodically pushes a state snapshot to the dashboard.
type Pusher struct {
	client   *Client
	interval time.Duration
	source   func() any
	logger   zerolog.Logger
}

// NewPusher returns a pusher that calls source for fresh data on every
// interval. A non-positive interval falls back to 30 seconds.
func NewPusher(client *Client, interval time.Duration, source func() any) *Pusher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Pusher{
		client:   client,
		interval: interval,
		source:   source,
		logger:   client.logger,
	}
}

// Run registers the connector, pushes once immediately, then pushes per
// interval until ctx is done. Failures are logged, never fatal: the next
// tick retries with fresh data.
func (p *Pusher) Run(ctx context.Context) error {
	if err := p.client.Register(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("Dashboard registration failed")
	}
	p.push(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.push(ctx)
		}
	}
}

func (p *Pusher) push(ctx context.Context) {
	if err := p.client.PushUpdate(ctx, p.source()); err != nil {
		p.logger.Warn().Err(err).Msg("Dashboard push failed")
		return
	}
	p.logger.Debug().Msg("Dashboard push succeeded")
}
