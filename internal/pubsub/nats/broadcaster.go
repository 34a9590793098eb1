package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"

	"referralstats/internal/config"
	"referralstats/internal/pubsub"
)

var _ pubsub.Broadcaster = (*Client)(nil)

// MessageHandler processes one inbound message. A returned error is logged, the message is not redelivered.
type MessageHandler func(ctx context.Context, data []byte) error

type Client struct {
	nc     *nats.Conn
	log    logger.Logger
	prefix string
}

func Connect(cfg *config.NATSConfig, log logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("nats config is required")
	}

	url := cfg.URL
	if url == "" {
		return nil, errors.New("nats url is required")
	}

	opts := []nats.Option{
		nats.Name("referral-stats"),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1), // endless reconnected
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected, error=%v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("NATS reconnected, url=%s", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Infof("Connected to NATS successfully, url=%s", url)

	return &Client{
		nc:     nc,
		log:    log,
		prefix: cfg.BroadcastPrefix,
	}, nil
}

// subject example: "referrer.0xabc" -> "<prefix>.referrer.0xabc"
func (c *Client) fullSubject(subject string) string {
	if c.prefix == "" {
		return subject
	}
	return c.prefix + "." + subject
}

func (c *Client) Publish(_ context.Context, subject string, data interface{}) error {
	if c.nc == nil {
		return errors.New("nats connection is not initialized")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", subject, err)
	}

	if err = c.nc.Publish(c.fullSubject(subject), payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe delivers raw messages of subject to handler. With a queue group the
// subject is load-balanced, which is only correct for a single consumer of ordered events.
func (c *Client) Subscribe(ctx context.Context, subject, queue string, handler MessageHandler) (*nats.Subscription, error) {
	if c.nc == nil {
		return nil, errors.New("nats connection is not initialized")
	}

	cb := func(msg *nats.Msg) {
		if err := handler(ctx, msg.Data); err != nil {
			c.log.Errorf("Failed to handle message on %s, error=%v", msg.Subject, err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if queue != "" {
		sub, err = c.nc.QueueSubscribe(subject, queue, cb)
	} else {
		sub, err = c.nc.Subscribe(subject, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	return sub, nil
}

// Flush waits until the server processed everything published so far.
func (c *Client) Flush() error {
	if c.nc == nil {
		return nil
	}
	return c.nc.Flush()
}

func (c *Client) Health(_ context.Context) error {
	if !c.Ready() {
		return fmt.Errorf("nats is not connected, status=%s", c.Status())
	}
	return nil
}

func (c *Client) Ready() bool {
	if c.nc == nil {
		return false
	}
	return c.nc.Status() == nats.CONNECTED
}

func (c *Client) Status() nats.Status {
	if c.nc == nil {
		return nats.DISCONNECTED
	}
	return c.nc.Status()
}

func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}

	// check not close this conn
	if c.nc.Status() == nats.CLOSED {
		return nil
	}

	if err := c.nc.Drain(); err != nil {
		c.log.Errorf("Failed to drain connection to NATS, error=%v", err)
		c.nc.Close()
		return fmt.Errorf("failed to drain connection to NATS: %w", err)
	}

	c.nc.Close()
	c.log.Infof("NATS connection closed gracefully")
	return nil
}
