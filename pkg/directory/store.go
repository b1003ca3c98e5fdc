package directory

import (
	"sync"
	"time"
)

// Store holds the most recent directory snapshot. All accessors return
// copies, so callers never see a sync in progress.
type Store struct {
	mu       sync.RWMutex
	agents   []Agent
	queues   []Queue
	members  []Member
	stats    CallStats
	syncedAt time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// SetAgents replaces the agent list.
func (s *Store) SetAgents(agents []Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = agents
	s.syncedAt = time.Now()
}

// SetQueues replaces the queue list.
func (s *Store) SetQueues(queues []Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues = queues
	s.syncedAt = time.Now()
}

// SetMembers replaces the queue member list.
func (s *Store) SetMembers(members []Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = members
	s.syncedAt = time.Now()
}

// SetCallStats replaces the aggregate call statistics.
func (s *Store) SetCallStats(stats CallStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	s.syncedAt = time.Now()
}

// Agents returns a copy of the agent list.
func (s *Store) Agents() []Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Agent, len(s.agents))
	copy(out, s.agents)
	return out
}

// AgentByExtension looks up an agent by extension number.
func (s *Store) AgentByExtension(extension string) (Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.Extension == extension {
			return a, true
		}
	}
	return Agent{}, false
}

// Queues returns a copy of the queue list.
func (s *Store) Queues() []Queue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Queue, len(s.queues))
	copy(out, s.queues)
	return out
}

// QueueExtensions returns the extensions of all known queues, the names
// Asterisk uses in QueueStatus.
func (s *Store) QueueExtensions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.queues))
	for _, q := range s.queues {
		out = append(out, q.Extension)
	}
	return out
}

// Members returns a copy of the queue member list.
func (s *Store) Members() []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Member, len(s.members))
	copy(out, s.members)
	return out
}

// MembersOf returns the members assigned to a queue ID.
func (s *Store) MembersOf(queueID string) []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Member
	for _, m := range s.members {
		if m.QueueID == queueID {
			out = append(out, m)
		}
	}
	return out
}

// CallStats returns the aggregate call statistics.
func (s *Store) CallStats() CallStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// LastSync returns when any part of the store was last replaced. Zero
// means no sync has completed yet.
func (s *Store) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncedAt
}

// AgentCount returns the number of agents.
func (s *Store) AgentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}

// QueueCount returns the number of queues.
func (s *Store) QueueCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queues)
}
