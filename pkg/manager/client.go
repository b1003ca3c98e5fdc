package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/capture"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/wire"
)

// DefaultActionTimeout is how long Send waits for a matching response.
const DefaultActionTimeout = 10 * time.Second

// expiredTokenTTL is how long a timed-out token is remembered so its late
// response can be told apart from genuinely unsolicited responses.
const expiredTokenTTL = 5 * time.Minute

// Sender is the interface for writing encoded action frames to the switch.
type Sender interface {
	Send(data []byte) error
}

// pendingResult carries a fulfilled response or a failure to a waiting
// Send call.
type pendingResult struct {
	msg *wire.Message
	err error
}

// Client correlates outgoing actions with their responses while unrelated
// events stream over the same connection. A Client is bound to one
// connection; create a fresh one after reconnecting.
type Client struct {
	mu sync.RWMutex

	sender  Sender
	timeout time.Duration

	// Pending actions awaiting responses, keyed by correlation token.
	pending map[string]chan pendingResult

	// Tokens that timed out and may still see a late response.
	expired map[string]time.Time

	pendingMu sync.Mutex

	dispatcher *Dispatcher

	capture capture.Logger
	connID  string

	closed bool
}

// NewClient creates a client over sender. Messages that are not responses
// to pending actions are handed to dispatcher.
func NewClient(sender Sender, dispatcher *Dispatcher) *Client {
	return &Client{
		sender:     sender,
		timeout:    DefaultActionTimeout,
		pending:    make(map[string]chan pendingResult),
		expired:    make(map[string]time.Time),
		dispatcher: dispatcher,
	}
}

// SetTimeout sets the per-action response timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeout > 0 {
		c.timeout = timeout
	}
}

// SetCapture attaches a capture logger recording classified traffic.
func (c *Client) SetCapture(logger capture.Logger, connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capture = logger
	c.connID = connID
}

// Dispatcher returns the dispatcher this client forwards events to.
func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Send issues an action and waits for the matching response.
//
// Safe for concurrent use. The action gets a fresh correlation token unless
// the caller set one. Events and unrelated responses arriving while waiting
// are routed to the dispatcher, never returned here.
func (c *Client) Send(ctx context.Context, action *wire.Action) (*wire.Message, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrClientClosed
	}
	timeout := c.timeout
	c.mu.RUnlock()

	token := action.ActionID()
	if token == "" {
		token = uuid.NewString()
		action.SetActionID(token)
	}

	resultCh := make(chan pendingResult, 1)

	c.pendingMu.Lock()
	c.pending[token] = resultCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, token)
		c.pendingMu.Unlock()
	}()

	data, err := action.Encode()
	if err != nil {
		return nil, err
	}
	if err := c.sender.Send(data); err != nil {
		return nil, err
	}

	c.captureMessage(capture.DirectionOut, "action", action.Name(), token, len(action.Fields()))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		c.markExpired(token)
		return nil, fmt.Errorf("%w: %s after %s", ErrActionTimeout, action.Name(), timeout)
	case result := <-resultCh:
		if result.err != nil {
			return nil, result.err
		}
		return result.msg, nil
	}
}

// HandleMessage routes one classified inbound message. The listener calls
// this for every block read off the connection.
func (c *Client) HandleMessage(msg *wire.Message) {
	c.captureMessage(capture.DirectionIn, msg.Kind().String(), msg.Name(), msg.ActionID(), msg.Len())

	if msg.Kind() == wire.KindResponse {
		token := msg.ActionID()

		c.pendingMu.Lock()
		ch, exists := c.pending[token]
		if exists {
			delete(c.pending, token)
			c.pendingMu.Unlock()
			ch <- pendingResult{msg: msg}
			return
		}
		if _, timedOut := c.expired[token]; timedOut {
			delete(c.expired, token)
			c.pendingMu.Unlock()
			// Late response for a timed-out action: discard.
			return
		}
		c.pendingMu.Unlock()
		// Unmatched response: fall through to the dispatcher so it is
		// not silently dropped.
	}

	c.dispatcher.Dispatch(msg)
}

// FailPending fails every in-flight action with err. The supervisor calls
// this on connection loss so callers do not wait out their timeouts.
func (c *Client) FailPending(err error) {
	c.pendingMu.Lock()
	for token, ch := range c.pending {
		delete(c.pending, token)
		ch <- pendingResult{err: err}
	}
	c.pendingMu.Unlock()
}

// Close fails outstanding actions and rejects further sends.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.FailPending(ErrClientClosed)
	return nil
}

// markExpired remembers a timed-out token and prunes stale entries.
func (c *Client) markExpired(token string) {
	now := time.Now()
	c.pendingMu.Lock()
	for t, at := range c.expired {
		if now.Sub(at) > expiredTokenTTL {
			delete(c.expired, t)
		}
	}
	c.expired[token] = now
	c.pendingMu.Unlock()
}

func (c *Client) captureMessage(direction capture.Direction, kind, name, actionID string, headers int) {
	c.mu.RLock()
	logger := c.capture
	connID := c.connID
	c.mu.RUnlock()
	if logger == nil {
		return
	}

	logger.Log(capture.Record{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        capture.LayerWire,
		Category:     capture.CategoryMessage,
		Message: &capture.MessageRecord{
			Kind:     kind,
			Name:     name,
			ActionID: actionID,
			Headers:  headers,
		},
	})
}
