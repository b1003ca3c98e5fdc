package manager

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/wire"
)

// SendAction builds an action from a name and parameter map and sends it.
// Parameters are emitted in sorted key order so encoded frames are stable.
func (c *Client) SendAction(ctx context.Context, name string, params map[string]string) (*wire.Message, error) {
	action := wire.NewAction(name)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		action.Set(k, params[k])
	}

	return c.Send(ctx, action)
}

// Login authenticates with a plaintext secret.
func (c *Client) Login(ctx context.Context, username, secret string) error {
	action := wire.NewAction("Login").
		Set("Username", username).
		Set("Secret", secret)

	resp, err := c.Send(ctx, action)
	if err != nil {
		return err
	}
	if !resp.Success() {
		return loginError(resp)
	}
	return nil
}

// LoginMD5 authenticates with a challenge/response exchange so the secret
// never crosses the wire in the clear.
func (c *Client) LoginMD5(ctx context.Context, username, secret string) error {
	challenge, err := c.Challenge(ctx)
	if err != nil {
		return err
	}

	sum := md5.Sum([]byte(challenge + secret))

	action := wire.NewAction("Login").
		Set("AuthType", "MD5").
		Set("Username", username).
		Set("Key", hex.EncodeToString(sum[:]))

	resp, err := c.Send(ctx, action)
	if err != nil {
		return err
	}
	if !resp.Success() {
		return loginError(resp)
	}
	return nil
}

// Challenge requests an MD5 challenge string from the switch.
func (c *Client) Challenge(ctx context.Context) (string, error) {
	resp, err := c.Send(ctx, wire.NewAction("Challenge").Set("AuthType", "MD5"))
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", fmt.Errorf("challenge rejected: %s", resp.Get(wire.KeyMessage))
	}
	challenge := resp.Get("Challenge")
	if challenge == "" {
		return "", errors.New("challenge response missing Challenge header")
	}
	return challenge, nil
}

// Logoff announces a clean shutdown. The switch answers with a goodbye
// response rather than Success, so any response counts.
func (c *Client) Logoff(ctx context.Context) error {
	_, err := c.Send(ctx, wire.NewAction("Logoff"))
	return err
}

// Ping checks link liveness.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Send(ctx, wire.NewAction("Ping"))
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("ping rejected: %s", resp.Get(wire.KeyMessage))
	}
	return nil
}

// QueueStatus asks for the full queue snapshot. The queue parameter and
// member events follow through the dispatcher until the completion event.
func (c *Client) QueueStatus(ctx context.Context) (*wire.Message, error) {
	return c.Send(ctx, wire.NewAction("QueueStatus"))
}

// ExtensionStateList asks for the hint state of every known extension.
func (c *Client) ExtensionStateList(ctx context.Context) (*wire.Message, error) {
	return c.Send(ctx, wire.NewAction("ExtensionStateList"))
}

// DeviceStateList asks for the state of every known device.
func (c *Client) DeviceStateList(ctx context.Context) (*wire.Message, error) {
	return c.Send(ctx, wire.NewAction("DeviceStateList"))
}

func loginError(resp *wire.Message) error {
	if msg := resp.Get(wire.KeyMessage); msg != "" {
		return fmt.Errorf("%w: %s", ErrLoginFailed, msg)
	}
	return ErrLoginFailed
}
