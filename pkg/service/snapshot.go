package service

import (
	"time"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/calls"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/directory"
)

// Agent presence statuses derived from device state.
const (
	StatusAvailable = "available"
	StatusBusy      = "busy"
	StatusAway      = "away"
	StatusOffline   = "offline"
)

// statusFromDeviceState maps a switch device state to a presence status.
// Unknown states read as offline.
func statusFromDeviceState(state string) string {
	switch state {
	case "NOT_INUSE":
		return StatusAvailable
	case "INUSE", "RINGING", "RINGINUSE", "ONHOLD", "BUSY":
		return StatusBusy
	case "UNAVAILABLE":
		return StatusAway
	default:
		return StatusOffline
	}
}

// CallSummary is the call embedded in an agent's status.
type CallSummary struct {
	UniqueID    string `json:"uniqueid"`
	PhoneNumber string `json:"phoneNumber"`
	Direction   string `json:"direction"`
	Duration    int    `json:"duration"`
	State       string `json:"state"`
}

// AgentStatus is one agent's directory record joined with live state.
type AgentStatus struct {
	ID               string       `json:"id"`
	Extension        string       `json:"extension"`
	Name             string       `json:"name"`
	Email            string       `json:"email"`
	Status           string       `json:"status"`
	DeviceState      string       `json:"deviceState"`
	Department       string       `json:"department"`
	DepartmentID     string       `json:"departmentId"`
	Departments      []string     `json:"departments"`
	CurrentCall      *CallSummary `json:"currentCall"`
	LastStatusChange time.Time    `json:"lastStatusChange"`
}

// QueueStatus is one queue's directory record joined with live state.
type QueueStatus struct {
	ID              string  `json:"id"`
	Extension       string  `json:"extension"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Strategy        string  `json:"strategy"`
	Timeout         int     `json:"timeout"`
	Retry           int     `json:"retry"`
	WrapupTime      int     `json:"wrapuptime"`
	Status          string  `json:"status"`
	TotalAgents     int     `json:"totalAgents"`
	AgentsAvailable int     `json:"agentsAvailable"`
	AgentsOnCall    int     `json:"agentsOnCall"`
	AgentsBusy      int     `json:"agentsBusy"`
	WaitingCalls    int     `json:"waitingCalls"`
	LongestWait     int     `json:"longestWait"`
	AverageWait     int     `json:"averageWait"`
	TotalCalls      int     `json:"totalCalls"`
	AnsweredCalls   int     `json:"answeredCalls"`
	AbandonedCalls  int     `json:"abandonedCalls"`
	ServiceLevel    float64 `json:"serviceLevel"`
}

// CallStatus is one live call enriched with directory data.
type CallStatus struct {
	ID        string    `json:"id"`
	UniqueID  string    `json:"uniqueid"`
	Channel   string    `json:"channel"`
	Direction string    `json:"direction"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	AgentID   string    `json:"agentId"`
	AgentName string    `json:"agentName"`
	Extension string    `json:"extension"`
	Duration  int       `json:"duration"`
	State     string    `json:"state"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"startTime"`
	Context   string    `json:"context"`
}

// AgentCounts groups agents by presence status.
type AgentCounts struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Busy      int `json:"busy"`
	Offline   int `json:"offline"`
	Away      int `json:"away"`
}

// CallCounts summarizes call activity: live counts plus the answered and
// abandoned totals from the call history window.
type CallCounts struct {
	Active    int `json:"active"`
	Waiting   int `json:"waiting"`
	Answered  int `json:"answered"`
	Abandoned int `json:"abandoned"`
}

// QueueCounts summarizes queue load.
type QueueCounts struct {
	Total           int     `json:"total"`
	AverageWaitTime float64 `json:"averageWaitTime"`
	LongestWaitTime int     `json:"longestWaitTime"`
}

// StatsSummary is the overall statistics rollup.
type StatsSummary struct {
	Agents    AgentCounts `json:"agents"`
	Calls     CallCounts  `json:"calls"`
	Queues    QueueCounts `json:"queues"`
	Timestamp time.Time   `json:"timestamp"`
}

// Snapshot is the full dashboard state: every agent, queue, and call at
// one instant.
type Snapshot struct {
	Agents    []AgentStatus `json:"agents"`
	Queues    []QueueStatus `json:"queues"`
	Calls     []CallStatus  `json:"calls"`
	Timestamp time.Time     `json:"timestamp"`
}

// SnapshotBuilder joins the directory with live call, device, and queue
// state into dashboard views. Safe for concurrent use; every method reads
// consistent copies from its sources.
type SnapshotBuilder struct {
	tracker *calls.Tracker
	store   *directory.Store
	stats   *QueueStatsCollector
	now     func() time.Time
}

// SnapshotBuilder returns a builder over this service's live state and
// the given directory.
func (s *Service) SnapshotBuilder(store *directory.Store) *SnapshotBuilder {
	return &SnapshotBuilder{
		tracker: s.tracker,
		store:   store,
		stats:   s.queueStats,
		now:     time.Now,
	}
}

// Snapshot builds the full dashboard state.
func (b *SnapshotBuilder) Snapshot() Snapshot {
	return Snapshot{
		Agents:    b.Agents(),
		Queues:    b.Queues(),
		Calls:     b.Calls(),
		Timestamp: b.now().UTC(),
	}
}

// deviceState looks up the live state of an agent device. Device events
// key by device name, extension hint events by bare extension; both are
// tried.
func (b *SnapshotBuilder) deviceState(device, extension string) (calls.Device, bool) {
	if d, ok := b.tracker.DeviceState(device); ok {
		return d, true
	}
	return b.tracker.DeviceState(extension)
}

// Agents returns every directory agent with live status attached.
func (b *SnapshotBuilder) Agents() []AgentStatus {
	now := b.now().UTC()
	agents := b.store.Agents()
	out := make([]AgentStatus, 0, len(agents))

	for _, agent := range agents {
		state := "UNKNOWN"
		lastChange := now
		if device, ok := b.deviceState(agent.DeviceName(), agent.Extension); ok {
			state = device.State
			lastChange = device.UpdatedAt.UTC()
		}
		status := statusFromDeviceState(state)

		var current *CallSummary
		if call, ok := b.tracker.CallForExtension(agent.Extension); ok {
			current = &CallSummary{
				UniqueID:    call.UniqueID,
				PhoneNumber: call.CallerID,
				Direction:   string(call.Direction),
				Duration:    int(call.Duration(now).Seconds()),
				State:       call.State,
			}
			status = StatusBusy
		}

		out = append(out, AgentStatus{
			ID:               agent.ID,
			Extension:        agent.Extension,
			Name:             agent.Name,
			Email:            agent.Email,
			Status:           status,
			DeviceState:      state,
			Department:       agent.Department,
			DepartmentID:     agent.DepartmentID,
			Departments:      []string{agent.DepartmentID},
			CurrentCall:      current,
			LastStatusChange: lastChange,
		})
	}
	return out
}

// Queues returns every directory queue with live statistics and member
// availability attached.
func (b *SnapshotBuilder) Queues() []QueueStatus {
	liveStats := b.stats.Stats()
	queues := b.store.Queues()
	out := make([]QueueStatus, 0, len(queues))

	for _, queue := range queues {
		members := b.store.MembersOf(queue.ID)
		available, busy := 0, 0
		for _, member := range members {
			state := "UNKNOWN"
			if device, ok := b.deviceState(member.Interface, member.Extension); ok {
				state = device.State
			}
			switch statusFromDeviceState(state) {
			case StatusAvailable:
				available++
			case StatusBusy:
				busy++
			}
		}

		live := liveStats[queue.Extension]

		out = append(out, QueueStatus{
			ID:              queue.ID,
			Extension:       queue.Extension,
			Name:            queue.Name,
			Description:     queue.Description,
			Strategy:        queue.Strategy,
			Timeout:         queue.Timeout,
			Retry:           queue.Retry,
			WrapupTime:      queue.WrapupTime,
			Status:          "open",
			TotalAgents:     len(members),
			AgentsAvailable: available,
			AgentsOnCall:    busy,
			AgentsBusy:      busy,
			WaitingCalls:    live.Waiting,
			LongestWait:     live.LongestWait,
			AverageWait:     live.AvgWait,
			TotalCalls:      queue.TotalCalls,
			AnsweredCalls:   queue.AnsweredCalls,
			AbandonedCalls:  queue.AbandonedCalls,
			ServiceLevel:    queue.ServiceLevel,
		})
	}
	return out
}

// Calls returns every live call enriched with the owning agent's name.
func (b *SnapshotBuilder) Calls() []CallStatus {
	now := b.now().UTC()
	active := b.tracker.ActiveCalls()
	out := make([]CallStatus, 0, len(active))

	for _, call := range active {
		name := "Extension " + call.Extension
		if agent, ok := b.store.AgentByExtension(call.Extension); ok {
			name = agent.Name
		}

		from := call.Extension
		if call.Direction == calls.DirectionInbound {
			from = call.CallerID
		}
		to := call.Extension
		if call.Direction == calls.DirectionOutbound {
			to = call.Destination
		}

		out = append(out, CallStatus{
			ID:        call.UniqueID,
			UniqueID:  call.UniqueID,
			Channel:   call.Channel,
			Direction: string(call.Direction),
			From:      from,
			To:        to,
			AgentID:   directory.AgentID(call.Extension),
			AgentName: name,
			Extension: call.Extension,
			Duration:  int(call.Duration(now).Seconds()),
			State:     call.State,
			Status:    "active",
			StartTime: call.StartedAt.UTC(),
			Context:   call.Context,
		})
	}
	return out
}

// Stats returns the overall rollup. Answered and abandoned totals come
// from the call history window in the directory.
func (b *SnapshotBuilder) Stats() StatsSummary {
	agents := b.Agents()
	counts := AgentCounts{Total: len(agents)}
	for _, agent := range agents {
		switch agent.Status {
		case StatusAvailable:
			counts.Available++
		case StatusBusy:
			counts.Busy++
		case StatusAway:
			counts.Away++
		default:
			counts.Offline++
		}
	}

	liveStats := b.stats.Stats()
	waiting, longest := 0, 0
	avgSum := 0.0
	for _, qs := range liveStats {
		waiting += qs.Waiting
		avgSum += float64(qs.AvgWait)
		if qs.LongestWait > longest {
			longest = qs.LongestWait
		}
	}
	avgWait := 0.0
	if len(liveStats) > 0 {
		avgWait = avgSum / float64(len(liveStats))
	}

	history := b.store.CallStats()

	return StatsSummary{
		Agents: counts,
		Calls: CallCounts{
			Active:    b.tracker.CallCount(),
			Waiting:   waiting,
			Answered:  history.AnsweredCalls,
			Abandoned: history.FailedCalls,
		},
		Queues: QueueCounts{
			Total:           b.store.QueueCount(),
			AverageWaitTime: avgWait,
			LongestWaitTime: longest,
		},
		Timestamp: b.now().UTC(),
	}
}
