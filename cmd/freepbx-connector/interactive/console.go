// Package interactive provides the operator console for the connector:
// a readline loop for inspecting live state and sending raw manager
// actions against the running service.
package interactive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/directory"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/service"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/version"
)

// actionTimeout bounds one console-issued manager action.
const actionTimeout = 10 * time.Second

// Console handles interactive mode for freepbx-connector.
type Console struct {
	svc   *service.Service
	store *directory.Store
	rl    *readline.Instance
}

// New creates the console. The caller should route log output through
// Stdout so messages do not corrupt the prompt.
func New(svc *service.Service, store *directory.Store) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "connector> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{svc: svc, store: store, rl: rl}, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the command loop. It calls cancel when the operator quits.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			// EOF: treat like quit.
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "status", "st":
			c.cmdStatus()

		case "calls", "c":
			c.cmdCalls()

		case "devices", "d":
			c.cmdDevices()

		case "agents", "a":
			c.cmdAgents()

		case "queues", "q":
			c.cmdQueues()

		case "send":
			c.cmdSend(ctx, args)

		case "reconnect":
			c.cmdReconnect(ctx)

		case "quit", "exit":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Connector Commands:
  Live State:
    status             - Connection, keepalive, and sync status
    calls              - Active calls
    devices            - Device states
    agents             - Directory agents
    queues             - Queues with live statistics

  Manager:
    send <action> [key=value ...] - Send a raw manager action
                         e.g. send QueueStatus Queue=600
    reconnect          - Drop the manager connection and reconnect

  General:
    help               - Show this help
    quit               - Exit the connector`)
}

func (c *Console) cmdStatus() {
	out := c.rl.Stdout()

	fmt.Fprintf(out, "Connection:   %s\n", c.svc.State())
	if v := c.svc.ManagerVersion(); v != (version.ManagerVersion{}) {
		fmt.Fprintf(out, "Manager:      Asterisk Call Manager/%s\n", v)
	}

	ka := c.svc.KeepAliveStats()
	if ka.Pings > 0 {
		fmt.Fprintf(out, "Keepalive:    %d pings, %d missed, last pong %s\n",
			ka.Pings, ka.Missed, ago(ka.LastPong))
	}

	fmt.Fprintf(out, "Active calls: %d\n", len(c.svc.ActiveCalls()))
	fmt.Fprintf(out, "Devices:      %d\n", len(c.svc.DeviceStates()))

	fmt.Fprintf(out, "Directory:    %d agents, %d queues",
		c.store.AgentCount(), c.store.QueueCount())
	if last := c.store.LastSync(); !last.IsZero() {
		fmt.Fprintf(out, ", synced %s", ago(last))
	}
	fmt.Fprintln(out)
}

func (c *Console) cmdCalls() {
	out := c.rl.Stdout()
	active := c.svc.ActiveCalls()
	if len(active) == 0 {
		fmt.Fprintln(out, "No active calls")
		return
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].StartedAt.Before(active[j].StartedAt)
	})

	now := time.Now()
	fmt.Fprintf(out, "%-14s %-26s %-9s %-8s %-9s %s\n",
		"UNIQUEID", "CHANNEL", "DIRECTION", "STATE", "DURATION", "FROM -> TO")
	for _, call := range active {
		fmt.Fprintf(out, "%-14s %-26s %-9s %-8s %-9s %s -> %s\n",
			call.UniqueID, call.Channel, call.Direction, call.State,
			call.Duration(now).Round(time.Second), call.CallerID, call.Destination)
	}
}

func (c *Console) cmdDevices() {
	out := c.rl.Stdout()
	devices := c.svc.DeviceStates()
	if len(devices) == 0 {
		fmt.Fprintln(out, "No device states")
		return
	}

	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "%-24s %-12s %s\n", "DEVICE", "STATE", "UPDATED")
	for _, name := range names {
		device := devices[name]
		fmt.Fprintf(out, "%-24s %-12s %s\n", device.Name, device.State, ago(device.UpdatedAt))
	}
}

func (c *Console) cmdAgents() {
	out := c.rl.Stdout()
	agents := c.store.Agents()
	if len(agents) == 0 {
		fmt.Fprintln(out, "No agents (directory not synced yet?)")
		return
	}

	fmt.Fprintf(out, "%-10s %-24s %-16s %s\n", "EXTENSION", "NAME", "DEPARTMENT", "EMAIL")
	for _, agent := range agents {
		fmt.Fprintf(out, "%-10s %-24s %-16s %s\n",
			agent.Extension, agent.Name, agent.Department, agent.Email)
	}
}

func (c *Console) cmdQueues() {
	out := c.rl.Stdout()
	queues := c.store.Queues()
	if len(queues) == 0 {
		fmt.Fprintln(out, "No queues (directory not synced yet?)")
		return
	}

	live := c.svc.QueueStats()
	fmt.Fprintf(out, "%-10s %-20s %-9s %-8s %-10s %-10s %s\n",
		"EXTENSION", "NAME", "STRATEGY", "WAITING", "COMPLETED", "ABANDONED", "SERVICE")
	for _, queue := range queues {
		stats := live[queue.Extension]
		fmt.Fprintf(out, "%-10s %-20s %-9s %-8d %-10d %-10d %.1f%%\n",
			queue.Extension, queue.Name, queue.Strategy,
			stats.Waiting, stats.Completed, stats.Abandoned, stats.ServiceLevel)
	}
}

func (c *Console) cmdSend(ctx context.Context, args []string) {
	out := c.rl.Stdout()
	if len(args) == 0 {
		fmt.Fprintln(out, "Usage: send <action> [key=value ...]")
		return
	}

	action := args[0]
	params, err := parseParams(args[1:])
	if err != nil {
		fmt.Fprintf(out, "%v\n", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	resp, err := c.svc.SendAction(sendCtx, action, params)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	for _, header := range resp.Headers() {
		fmt.Fprintf(out, "%s: %s\n", header.Key, header.Value)
	}
}

func (c *Console) cmdReconnect(ctx context.Context) {
	out := c.rl.Stdout()

	reconnectCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	if err := c.svc.Reconnect(reconnectCtx); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(out, "Reconnect requested")
}

// parseParams turns "key=value" arguments into action parameters.
func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("bad parameter %q, expected key=value", arg)
		}
		params[key] = value
	}
	return params, nil
}

// ago formats a timestamp as a rounded time-since string.
func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}
