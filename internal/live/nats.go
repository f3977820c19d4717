package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/appetiteclub/appetite-client/pkg/event"
	"github.com/nats-io/nats.go"
)

// NATSDialer reads queue events straight from the broker for deployments
// that expose it. The server side reconnection is disabled: the Manager owns
// the retry policy.
type NATSDialer struct {
	Subject string
	// Outbound is where Write publishes. Defaults to Subject + ".cliente".
	Outbound string
	Timeout  time.Duration
	Name     string
}

func (d *NATSDialer) Dial(ctx context.Context, target string, onTransport func()) (Conn, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse nats url: %w", err)
	}
	token := u.Query().Get("token")
	u.RawQuery = ""

	subject := d.Subject
	if subject == "" {
		subject = event.OrdersTopic
	}
	outbound := d.Outbound
	if outbound == "" {
		outbound = subject + ".cliente"
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	name := d.Name
	if name == "" {
		name = "appetite-kds"
	}

	c := &natsConn{
		subject: outbound,
		msgs:    make(chan *nats.Msg, 256),
		done:    make(chan struct{}),
	}

	nc, err := nats.Connect(u.String(),
		nats.Name(name),
		nats.Token(token),
		nats.Timeout(timeout),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.shutdown(err)
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.shutdown(io.EOF)
		}),
	)
	if err != nil {
		return nil, natsDialError(err)
	}
	if onTransport != nil {
		onTransport()
	}

	if err := ctx.Err(); err != nil {
		nc.Close()
		return nil, err
	}

	sub, err := nc.ChanSubscribe(subject, c.msgs)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	if err := nc.FlushTimeout(timeout); err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: %v", ErrAuthTimeout, err)
	}
	if err := nc.LastError(); err != nil {
		nc.Close()
		return nil, natsDialError(err)
	}

	c.nc = nc
	c.sub = sub
	return c, nil
}

// natsDialError maps connect and subscribe failures onto the Manager's
// sentinels. Permission violations only surface as text on the connection.
func natsDialError(err error) error {
	switch {
	case errors.Is(err, nats.ErrAuthorization), errors.Is(err, nats.ErrAuthExpired):
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	case strings.Contains(strings.ToLower(err.Error()), nats.PERMISSIONS_ERR):
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	case errors.Is(err, nats.ErrTimeout):
		return fmt.Errorf("%w: %v", ErrAuthTimeout, err)
	}
	return fmt.Errorf("failed to connect to NATS: %w", err)
}

type natsConn struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	msgs    chan *nats.Msg

	once sync.Once
	done chan struct{}
	err  error
}

func (c *natsConn) Read() ([]byte, error) {
	select {
	case msg := <-c.msgs:
		return msg.Data, nil
	case <-c.done:
		return nil, c.err
	}
}

func (c *natsConn) Write(data []byte) error {
	return c.nc.Publish(c.subject, data)
}

func (c *natsConn) Close() error {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	c.nc.Close()
	c.shutdown(io.EOF)
	return nil
}

func (c *natsConn) shutdown(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}
