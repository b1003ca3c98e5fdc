package directory

import (
	"strings"
	"time"
)

// Agent is an extension configured in FreePBX, joined with its SIP device
// entry.
type Agent struct {
	ID           string
	Extension    string
	Name         string
	Email        string
	DeviceTech   string
	Department   string
	DepartmentID string
}

// DeviceName returns the Asterisk device identifier for the agent's
// endpoint, e.g. "SIP/1001" or "PJSIP/1001".
func (a Agent) DeviceName() string {
	tech := a.DeviceTech
	if tech == "" {
		tech = "SIP"
	}
	return strings.ToUpper(tech) + "/" + a.Extension
}

// Queue is a call queue from queues_config with its queues_details
// keyword/data pairs resolved, enriched with 24h CDR statistics.
type Queue struct {
	ID          string
	Extension   string
	Name        string
	Description string
	Strategy    string
	Timeout     int
	Retry       int
	WrapupTime  int

	TotalCalls     int
	AnsweredCalls  int
	AbandonedCalls int
	ServiceLevel   float64
}

// Member is a static queue member assignment. Only SIP and PJSIP
// interfaces are loaded.
type Member struct {
	QueueID   string
	AgentID   string
	Extension string
	Interface string
	Penalty   int
	Paused    bool
}

// CallStats is an aggregate CDR rollup over a time window.
type CallStats struct {
	TotalCalls    int
	AnsweredCalls int
	FailedCalls   int
	AvgDuration   float64
	AvgWaitTime   float64
	Window        time.Duration
	UpdatedAt     time.Time
}

// AgentID builds the stable agent identifier used across the dashboard
// payloads.
func AgentID(extension string) string {
	return "agent_" + extension
}

// QueueID builds the stable queue identifier used across the dashboard
// payloads.
func QueueID(extension string) string {
	return "queue_" + extension
}

// departmentID converts a department display name into a stable ID.
func departmentID(department string) string {
	if department == "" {
		return "default"
	}
	return strings.ReplaceAll(strings.ToLower(department), " ", "_")
}

// extensionFromInterface extracts the extension from a member interface,
// "SIP/1001" giving "1001".
func extensionFromInterface(iface string) string {
	if i := strings.LastIndex(iface, "/"); i >= 0 {
		return iface[i+1:]
	}
	return iface
}
