// Package hydraclient is the Go client for a hydra node. A Client owns a
// single websocket connection which it establishes in the background and
// re-establishes after failures; callers wait for readiness with Ready and
// then issue request/response calls over the shared connection.
package hydraclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hydra/internal/constants"
	"hydra/internal/retry"
	"hydra/pkg/circuitbreaker"
	"hydra/pkg/wire"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("client is closed")
	// ErrNotConnected is returned for calls made before the connection is
	// open. Use Ready to wait for the connection.
	ErrNotConnected = errors.New("client is not connected")
	// ErrConnectionLost is returned for calls whose connection dropped
	// before the response arrived. The client keeps reconnecting, so a
	// later retry may succeed.
	ErrConnectionLost = errors.New("connection lost")
)

// Config configures a Client. URL is required; everything else has
// defaults.
type Config struct {
	// URL is the websocket endpoint, e.g. "ws://localhost:9797/ws".
	URL string

	// ConnectTimeout bounds a single dial attempt. Defaults to 30s.
	ConnectTimeout time.Duration

	// RequestTimeout bounds a single call when the caller's context has no
	// deadline. Defaults to 15s.
	RequestTimeout time.Duration

	// Backoff controls the delay between reconnect attempts. Zero value
	// means DefaultBackoffConfig.
	Backoff retry.BackoffConfig

	// BreakerFailures is the consecutive dial failure count that opens the
	// circuit breaker. Defaults to 5.
	BreakerFailures uint32

	// Logger defaults to the standard logrus logger.
	Logger *logrus.Logger
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = constants.DefaultConnectTimeoutSec * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = constants.DefaultRequestTimeoutSec * time.Second
	}
	if c.Backoff.MaxAttempts == 0 {
		c.Backoff = retry.DefaultBackoffConfig()
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// Client is a connection-owning handle to a hydra node. It is safe for
// concurrent use.
type Client struct {
	cfg     Config
	logger  *logrus.Logger
	state   *stateVar
	breaker *circuitbreaker.CircuitBreaker
	backoff *retry.Backoff

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan *wire.Response

	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Client and starts connecting in the background. The
// returned handle is not yet usable for calls; wait with Ready.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	c := &Client{
		cfg:     cfg,
		logger:  cfg.Logger,
		state:   newStateVar(StateDisconnected),
		breaker: circuitbreaker.New("hydra-dial", cfg.BreakerFailures, cfg.ConnectTimeout, cfg.Logger),
		backoff: retry.NewBackoff(cfg.Backoff),
		pending: make(map[string]chan *wire.Response),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

// State reports the current connection state.
func (c *Client) State() ConnectionState {
	return c.state.Get()
}

// WaitFor blocks until pred holds for the connection state and returns the
// state that satisfied it, or the context error.
func (c *Client) WaitFor(ctx context.Context, pred func(ConnectionState) bool) (ConnectionState, error) {
	return c.state.Wait(ctx, pred)
}

// Ready blocks until the connection is open. It returns nil as soon as the
// client is usable, ErrClosed if the client was closed first, or the
// context error. Calling Ready again after it has returned is cheap and
// safe.
func (c *Client) Ready(ctx context.Context) error {
	s, err := c.state.Wait(ctx, func(s ConnectionState) bool {
		return s == StateOpen || s == StateClosed
	})
	if err != nil {
		return err
	}
	if s == StateClosed {
		return ErrClosed
	}
	return nil
}

// Close shuts the client down, fails any in-flight calls with ErrClosed
// and stops reconnecting. Close is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	<-c.done
	return nil
}

// FetchIngressLogs requests one page of captured ingress logs.
func (c *Client) FetchIngressLogs(ctx context.Context, req *wire.FetchIngressLogsRequest) (*wire.FetchIngressLogsResponse, error) {
	resp, err := c.call(ctx, &wire.Request{
		Op:               wire.OpFetchIngressLogs,
		FetchIngressLogs: req,
	})
	if err != nil {
		return nil, err
	}
	if resp.FetchIngressLogs == nil {
		return nil, fmt.Errorf("missing fetch_ingress_logs payload in response")
	}
	return resp.FetchIngressLogs, nil
}

// ExchangeBasis sends the local frontier and returns the node's merged
// frontier.
func (c *Client) ExchangeBasis(ctx context.Context, events []wire.BasisEvent) ([]wire.BasisEvent, error) {
	resp, err := c.call(ctx, &wire.Request{
		Op:            wire.OpExchangeBasis,
		ExchangeBasis: &wire.ExchangeBasisRequest{Events: events},
	})
	if err != nil {
		return nil, err
	}
	if resp.ExchangeBasis == nil {
		return nil, fmt.Errorf("missing exchange_basis payload in response")
	}
	return resp.ExchangeBasis.Events, nil
}

func (c *Client) call(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	req.ID = uuid.NewString()
	data, err := wire.Serialize(req)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	ch := make(chan *wire.Response, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.unregister(req.ID)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			// The reply channel is closed when the connection drops.
			// Distinguish a reconnectable drop from a closed client.
			select {
			case <-c.closed:
				return nil, ErrClosed
			default:
			}
			return nil, ErrConnectionLost
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("node error: %s", *resp.Error)
		}
		return resp, nil
	case <-c.closed:
		c.unregister(req.ID)
		return nil, ErrClosed
	case <-ctx.Done():
		c.unregister(req.ID)
		return nil, ctx.Err()
	}
}

func (c *Client) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// run is the connection supervisor: dial, serve the read loop until the
// connection drops, then back off and dial again. It exits only when the
// client is closed.
func (c *Client) run() {
	defer close(c.done)
	defer c.state.Set(StateClosed)

	attempt := 0
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		c.state.Set(StateConnecting)
		conn, err := c.dial()
		if err != nil {
			c.state.Set(StateFailed)
			c.logger.WithError(err).WithField("url", c.cfg.URL).Warn("Connection attempt failed")
			attempt++
			select {
			case <-c.closed:
				return
			case <-time.After(c.backoff.NextDelay(attempt)):
			}
			continue
		}
		attempt = 0

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.state.Set(StateOpen)
		c.logger.WithField("url", c.cfg.URL).Info("Connected to hydra node")

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.failPending()

		select {
		case <-c.closed:
			conn.Close(websocket.StatusNormalClosure, "client closing")
			return
		default:
			conn.Close(websocket.StatusGoingAway, "reconnecting")
			c.state.Set(StateDisconnected)
			c.logger.WithField("url", c.cfg.URL).Warn("Connection lost, reconnecting")
		}
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := c.breaker.Execute(context.Background(), func(ctx context.Context) error {
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()

		ws, _, err := websocket.Dial(dialCtx, c.cfg.URL, nil)
		if err != nil {
			return err
		}
		// Fetch pages can carry full captured bodies, far beyond the
		// library's default frame cap.
		ws.SetReadLimit(constants.WireReadLimitBytes)
		conn = ws
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// readLoop delivers responses to their waiting callers. It returns when
// the connection fails or the client is closed.
func (c *Client) readLoop(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		msg, err := wire.Parse(data)
		if err != nil {
			c.logger.WithError(err).Warn("Discarding unparseable message")
			continue
		}
		resp, ok := msg.(*wire.Response)
		if !ok {
			c.logger.Warn("Discarding unexpected request from node")
			continue
		}

		c.mu.Lock()
		ch, found := c.pending[resp.RequestID]
		if found {
			delete(c.pending, resp.RequestID)
		}
		c.mu.Unlock()
		if found {
			ch <- resp
		}
	}
}

// failPending closes the reply channel of every in-flight call so waiters
// fail fast instead of hanging across a reconnect.
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}
