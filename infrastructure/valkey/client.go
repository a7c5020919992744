package valkey

import (
	"context"
	"fmt"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

// DefaultConnectTimeout bounds the initial ping.
const DefaultConnectTimeout = 5 * time.Second

type Config struct {
	Address        string
	Password       string
	DB             int
	ConnectTimeout time.Duration
}

// Client wraps the valkey-go client. Create it with Dial and Close it when done.
type Client struct {
	inner   valkeylib.Client
	address string
}

// Dial connects and pings; a server that does not answer within the connect
// timeout is reported as an error so the caller can fall back.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client for %s: %w", cfg.Address, err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := inner.Do(pingCtx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey at %s (timeout: %v): %w", cfg.Address, timeout, err)
	}

	return &Client{inner: inner, address: cfg.Address}, nil
}

// Inner returns the underlying valkey-go client.
func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

func (c *Client) Address() string {
	return c.address
}

func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// Publish sends message on channel.
func (c *Client) Publish(ctx context.Context, channel, message string) error {
	return c.inner.Do(ctx, c.inner.B().Publish().Channel(channel).Message(message).Build()).Error()
}

// Subscribe blocks delivering channel messages to fn until ctx ends or the
// connection drops.
func (c *Client) Subscribe(ctx context.Context, channel string, fn func(message string)) error {
	return c.inner.Receive(ctx, c.inner.B().Subscribe().Channel(channel).Build(), func(msg valkeylib.PubSubMessage) {
		fn(msg.Message)
	})
}

// IsNil checks if an error returned by the client represents a Valkey NIL response.
func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}
