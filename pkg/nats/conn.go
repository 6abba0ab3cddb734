package nats

import (
	"fmt"
	"sync"

	"plant-diagnostics-web/pkg/channel"

	"github.com/nats-io/nats.go"
)

// Conn adapts a NATS connection to the channel.Conn contract. Built-in
// reconnection is disabled: the reconnect policy lives in pkg/channel, not
// in the driver.
type Conn struct {
	nc *nats.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

var _ channel.Conn = (*Conn)(nil)

// NewDialer returns a channel.Dialer for the given NATS URL.
func NewDialer(url string) channel.Dialer {
	return func() (channel.Conn, error) {
		return Dial(url)
	}
}

// Dial opens a single connection attempt. No retries here; the caller's
// retry policy decides when to try again.
func Dial(url string) (*Conn, error) {
	c := &Conn{closed: make(chan struct{})}

	nc, err := nats.Connect(url,
		nats.NoReconnect(),
		nats.ClosedHandler(func(*nats.Conn) {
			c.markClosed()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	c.nc = nc
	return c, nil
}

func (c *Conn) Subscribe(subject string, handler func(data []byte)) (channel.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return subscription{sub: sub}, nil
}

func (c *Conn) Publish(subject string, data []byte) error {
	if err := c.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

func (c *Conn) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
	c.markClosed()
}

func (c *Conn) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

type subscription struct {
	sub *nats.Subscription
}

func (s subscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
