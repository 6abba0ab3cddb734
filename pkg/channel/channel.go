package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"plant-diagnostics-web/internal/pkg/logger"
	"plant-diagnostics-web/pkg/predict"
)

// ErrNotConnected is returned by Publish while no connection is up.
// Submissions are rejected immediately rather than queued.
var ErrNotConnected = errors.New("channel: not connected")

// ErrRetriesExhausted is returned by Run when a bounded RetryPolicy runs out.
var ErrRetriesExhausted = errors.New("channel: retry attempts exhausted")

// State of the connection machine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Handlers receive decoded messages from the four subscriptions. Each is
// optional and runs on its own subscription's delivery path; a handler for
// one subject never blocks another subject.
type Handlers struct {
	OnResult func(predict.ResultEnvelope)
	OnStatus func(predict.StatusUpdate)
	OnError  func(predict.ErrorMessage)
	OnFeed   func(predict.FeedEntry)

	// OnStateChange observes the connection machine, for diagnostics.
	OnStateChange func(State)
}

// Channel owns the pub/sub connection lifecycle: connect, subscribe,
// detect failure, retry on a fixed delay. One Channel per process.
type Channel struct {
	dial      Dialer
	scope     string
	policy    RetryPolicy
	heartbeat time.Duration
	handlers  Handlers
	logger    logger.ILogger

	mu    sync.RWMutex
	state State
	conn  Conn

	// after is swapped in tests to control retry timing.
	after func(time.Duration) <-chan time.Time
}

// New builds a channel for the given identity scope. Run must be called
// before the channel delivers or accepts anything.
func New(dial Dialer, scope string, policy RetryPolicy, heartbeat time.Duration, handlers Handlers, log logger.ILogger) *Channel {
	if policy.Delay <= 0 {
		policy.Delay = DefaultRetryPolicy().Delay
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Channel{
		dial:      dial,
		scope:     scope,
		policy:    policy,
		heartbeat: heartbeat,
		handlers:  handlers,
		logger:    log,
		state:     StateDisconnected,
		after:     time.After,
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Publish sends a payload while connected. While disconnected the send is
// rejected immediately; nothing is queued for later.
func (c *Channel) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn, state := c.conn, c.state
	c.mu.RUnlock()
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

// Run drives the connection machine until ctx is cancelled. It only
// returns early when a bounded RetryPolicy is exhausted.
func (c *Channel) Run(ctx context.Context) error {
	failures := 0
	for {
		c.setState(StateConnecting)
		conn, err := c.dial()
		if err != nil {
			c.setState(StateDisconnected)
			failures++
			c.logger.Warn("Channel", "Connection attempt failed", map[string]interface{}{
				"error": err.Error(), "attempt": failures,
			})
			if c.policy.MaxAttempts > 0 && failures >= c.policy.MaxAttempts {
				return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, failures, err)
			}
			if !c.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		subs, err := c.subscribeAll(conn)
		if err != nil {
			conn.Close()
			c.setState(StateDisconnected)
			failures++
			c.logger.Warn("Channel", "Subscription setup failed", map[string]interface{}{"error": err.Error()})
			if c.policy.MaxAttempts > 0 && failures >= c.policy.MaxAttempts {
				return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, failures, err)
			}
			if !c.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		failures = 0
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)
		c.logger.Info("Channel", "Connected", map[string]interface{}{"scope": c.scope})

		lost := c.serve(ctx, conn)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.setState(StateDisconnected)
		if !lost {
			return ctx.Err()
		}
		c.logger.Warn("Channel", "Connection lost, scheduling retry", map[string]interface{}{
			"delay": c.policy.Delay.String(),
		})
		if !c.sleep(ctx) {
			return ctx.Err()
		}
	}
}

// serve blocks while a connection is healthy, sending heartbeats on a fixed
// interval. Returns true when the connection was lost, false on ctx cancel.
func (c *Channel) serve(ctx context.Context, conn Conn) bool {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-conn.Closed():
			return true
		case <-ticker.C:
			// Best-effort keep-alive; a failed send carries no meaning.
			payload, _ := json.Marshal(map[string]string{"client_id": c.scope})
			_ = conn.Publish(SubjectHeartbeat, payload)
		}
	}
}

func (c *Channel) subscribeAll(conn Conn) ([]Subscription, error) {
	var subs []Subscription
	add := func(subject string, handler func([]byte)) error {
		s, err := conn.Subscribe(subject, handler)
		if err != nil {
			for _, prev := range subs {
				_ = prev.Unsubscribe()
			}
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		subs = append(subs, s)
		return nil
	}

	if err := add(ResultsSubject(c.scope), c.onResult); err != nil {
		return nil, err
	}
	if err := add(StatusSubject(c.scope), c.onStatus); err != nil {
		return nil, err
	}
	if err := add(ErrorsSubject(c.scope), c.onError); err != nil {
		return nil, err
	}
	if err := add(SubjectFeed, c.onFeed); err != nil {
		return nil, err
	}
	return subs, nil
}

func (c *Channel) onResult(data []byte) {
	if c.handlers.OnResult == nil {
		return
	}
	var env predict.ResultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Error("Channel", "Malformed result message", map[string]interface{}{"error": err.Error()})
		return
	}
	c.handlers.OnResult(env)
}

func (c *Channel) onStatus(data []byte) {
	if c.handlers.OnStatus == nil {
		return
	}
	var update predict.StatusUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		c.logger.Error("Channel", "Malformed status message", map[string]interface{}{"error": err.Error()})
		return
	}
	c.handlers.OnStatus(update)
}

func (c *Channel) onError(data []byte) {
	if c.handlers.OnError == nil {
		return
	}
	var msg predict.ErrorMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Error("Channel", "Malformed error message", map[string]interface{}{"error": err.Error()})
		return
	}
	c.handlers.OnError(msg)
}

func (c *Channel) onFeed(data []byte) {
	if c.handlers.OnFeed == nil {
		return
	}
	var entry predict.FeedEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Error("Channel", "Malformed feed message", map[string]interface{}{"error": err.Error()})
		return
	}
	c.handlers.OnFeed(entry)
}

func (c *Channel) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.after(c.policy.Delay):
		return true
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.handlers.OnStateChange != nil {
		c.handlers.OnStateChange(s)
	}
}
