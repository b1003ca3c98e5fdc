package service

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/manager"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/wire"
)

// QueueStats is the live statistics of one queue, assembled from the
// QueueParams and QueueEntry events of a QueueStatus cycle.
type QueueStats struct {
	// Queue is the queue name as the switch knows it, normally the
	// queue extension.
	Queue string

	// Waiting is the number of callers currently in the queue.
	Waiting int

	// LongestWait is the wait in seconds of the caller who has waited
	// longest in the current cycle.
	LongestWait int

	// AvgWait is the switch-reported average hold time in seconds.
	AvgWait int

	// AvgTalk is the switch-reported average talk time in seconds.
	AvgTalk int

	// Completed and Abandoned count calls since the queue statistics
	// were last reset on the switch.
	Completed int
	Abandoned int

	// ServiceLevel is the service level performance percentage.
	ServiceLevel float64

	UpdatedAt time.Time
}

// QueueStatsCollector folds queue snapshot events into per-queue
// statistics. QueueParams carries the aggregates; QueueEntry carries one
// waiting caller each, from which the longest wait is derived.
type QueueStatsCollector struct {
	logger zerolog.Logger

	mu    sync.RWMutex
	stats map[string]QueueStats
}

// NewQueueStatsCollector returns an empty collector.
func NewQueueStatsCollector(logger zerolog.Logger) *QueueStatsCollector {
	return &QueueStatsCollector{
		logger: logger.With().Str("component", "queue-stats").Logger(),
		stats:  make(map[string]QueueStats),
	}
}

// Install registers the collector's event handlers on the dispatcher.
func (c *QueueStatsCollector) Install(dispatcher *manager.Dispatcher) {
	dispatcher.Register("QueueParams", c.handleParams)
	dispatcher.Register("QueueEntry", c.handleEntry)
}

// Stats returns a copy of the current per-queue statistics, keyed by
// queue name.
func (c *QueueStatsCollector) Stats() map[string]QueueStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]QueueStats, len(c.stats))
	for name, qs := range c.stats {
		out[name] = qs
	}
	return out
}

// Queue returns the statistics for one queue.
func (c *QueueStatsCollector) Queue(name string) (QueueStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	qs, ok := c.stats[name]
	return qs, ok
}

// Clear drops all statistics. Called on connection loss; the next
// QueueStatus cycle rebuilds them.
func (c *QueueStatsCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = make(map[string]QueueStats)
}

// handleParams starts a new statistics cycle for the queue. QueueParams
// precedes the entry events of the same cycle, so the longest wait resets
// here and grows as entries arrive.
func (c *QueueStatsCollector) handleParams(msg *wire.Message) error {
	name := msg.Get("Queue")
	if name == "" {
		return nil
	}

	qs := QueueStats{
		Queue:        name,
		Waiting:      atoi(msg.Get("Calls")),
		AvgWait:      atoi(msg.Get("Holdtime")),
		AvgTalk:      atoi(msg.Get("TalkTime")),
		Completed:    atoi(msg.Get("Completed")),
		Abandoned:    atoi(msg.Get("Abandoned")),
		ServiceLevel: atof(msg.Get("ServicelevelPerf")),
		UpdatedAt:    time.Now(),
	}

	c.mu.Lock()
	c.stats[name] = qs
	c.mu.Unlock()

	c.logger.Debug().
		Str("queue", name).
		Int("waiting", qs.Waiting).
		Int("completed", qs.Completed).
		Msg("Queue statistics updated")
	return nil
}

// handleEntry folds one waiting caller into the queue's longest wait.
func (c *QueueStatsCollector) handleEntry(msg *wire.Message) error {
	name := msg.Get("Queue")
	if name == "" {
		return nil
	}
	wait := atoi(msg.Get("Wait"))

	c.mu.Lock()
	qs, ok := c.stats[name]
	if !ok {
		qs = QueueStats{Queue: name}
	}
	if wait > qs.LongestWait {
		qs.LongestWait = wait
	}
	qs.UpdatedAt = time.Now()
	c.stats[name] = qs
	c.mu.Unlock()
	return nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func atof(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
