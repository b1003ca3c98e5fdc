package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// loader is the database surface the syncer reads. *Client implements it.
type loader interface {
	Agents(ctx context.Context) ([]Agent, error)
	Queues(ctx context.Context) ([]Queue, error)
	Members(ctx context.Context) ([]Member, error)
	CallStats(ctx context.Context, window time.Duration) (CallStats, error)
}

// Syncer periodically copies the FreePBX configuration into a Store.
type Syncer struct {
	client loader
	store  *Store
	logger zerolog.Logger
}

// NewSyncer creates a syncer that loads from client into store.
func NewSyncer(client *Client, store *Store, logger zerolog.Logger) *Syncer {
	return &Syncer{
		client: client,
		store:  store,
		logger: logger.With().Str("component", "directory-sync").Logger(),
	}
}

// Sync performs one full load. Each section updates independently, so a
// failing query leaves the previous data for that section in place rather
// than wiping it.
func (s *Syncer) Sync(ctx context.Context) error {
	var errs []error

	if agents, err := s.client.Agents(ctx); err != nil {
		errs = append(errs, fmt.Errorf("agents: %w", err))
	} else {
		s.store.SetAgents(agents)
	}

	if queues, err := s.client.Queues(ctx); err != nil {
		errs = append(errs, fmt.Errorf("queues: %w", err))
	} else {
		s.store.SetQueues(queues)
	}

	if members, err := s.client.Members(ctx); err != nil {
		errs = append(errs, fmt.Errorf("members: %w", err))
	} else {
		s.store.SetMembers(members)
	}

	if stats, err := s.client.CallStats(ctx, statsWindow); err != nil {
		errs = append(errs, fmt.Errorf("call stats: %w", err))
	} else {
		s.store.SetCallStats(stats)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.logger.Debug().
		Int("agents", s.store.AgentCount()).
		Int("queues", s.store.QueueCount()).
		Msg("Directory synced")
	return nil
}

// Run syncs immediately and then on every interval tick until the context
// is cancelled. Sync failures are logged and retried on the next tick.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	if err := s.Sync(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Initial directory sync failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Directory sync failed")
			}
		}
	}
}
