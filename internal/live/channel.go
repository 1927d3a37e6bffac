// Package live keeps a push connection to the ledger backend open and hands
// each message to the handler registered for its action.
package live

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"
)

const (
	// Path is where the backend serves transaction events
	Path = "/ws/transactions"

	// ActionNewTransaction is pushed whenever a transaction is recorded
	ActionNewTransaction = "new_transaction"

	DefaultRetryDelay = 3 * time.Second
)

// Event is one decoded push message
type Event struct {
	Action string
	// UserID is empty when the backend did not scope the event
	UserID string
	Raw    json.RawMessage
}

type frame struct {
	Action string          `json:"action"`
	UserID json.RawMessage `json:"user_id"`
}

// Decode parses a push message. Only the action is required.
func Decode(msg []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Event{}, fmt.Errorf("decode live message: %w", err)
	}
	if strings.TrimSpace(f.Action) == "" {
		return Event{}, errors.New("decode live message: missing action")
	}
	ev := Event{Action: f.Action, Raw: json.RawMessage(msg)}
	if raw := bytes.TrimSpace(f.UserID); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		ev.UserID = strings.Trim(string(raw), `"`)
	}
	return ev, nil
}

// Channel is one identity's live connection. It redials after a fixed delay
// whenever the connection fails or drops, until Close.
type Channel struct {
	config *websocket.Config
	userID string
	reg    *Registry
	retry  time.Duration
	logger zerolog.Logger

	connected atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

type Option func(*Channel)

func WithRetryDelay(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.retry = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// Endpoint joins Path onto a ws(s) base URL
func Endpoint(base string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse live URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("live URL must be ws(s), got %q", base)
	}
	u.Path = path.Join("/", u.Path, Path)
	return u, nil
}

// Open starts the channel for userID in the background. Events scoped to a
// different user are dropped.
func Open(base, userID string, reg *Registry, opts ...Option) (*Channel, error) {
	u, err := Endpoint(base)
	if err != nil {
		return nil, err
	}
	origin := "http://" + u.Host
	if u.Scheme == "wss" {
		origin = "https://" + u.Host
	}
	cfg, err := websocket.NewConfig(u.String(), origin)
	if err != nil {
		return nil, fmt.Errorf("live config: %w", err)
	}

	c := &Channel{
		config: cfg,
		userID: userID,
		reg:    reg,
		retry:  DefaultRetryDelay,
		logger: zerolog.Nop(),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With().Str("user_id", userID).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
	return c, nil
}

// Connected reports whether a connection is currently up
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Close tears the connection down and waits for the loop to exit
func (c *Channel) Close() {
	c.cancel()
	<-c.done
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.config.DialContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Dur("retry_in", c.retry).Msg("live channel dial failed")
			if !waitRetry(ctx, c.retry) {
				return
			}
			continue
		}

		c.connected.Store(true)
		c.logger.Info().Str("url", c.config.Location.String()).Msg("live channel connected")
		c.consume(ctx, conn)
		c.connected.Store(false)

		if !waitRetry(ctx, c.retry) {
			return
		}
	}
}

func (c *Channel) consume(ctx context.Context, conn *websocket.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	for {
		var msg []byte
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn().Err(err).Dur("retry_in", c.retry).Msg("live channel dropped")
			}
			return
		}

		ev, err := Decode(msg)
		if err != nil {
			c.logger.Warn().Err(err).Msg("skipping live message")
			continue
		}
		if ev.UserID != "" && ev.UserID != c.userID {
			continue
		}
		if !c.reg.Dispatch(ctx, ev) {
			c.logger.Debug().Str("action", ev.Action).Msg("ignoring live action")
			continue
		}
		c.logger.Debug().Str("action", ev.Action).Msg("live event handled")
	}
}

func waitRetry(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
