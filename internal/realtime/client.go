// Package realtime maintains the persistent WebSocket connection to the
// tracker backend and fans decoded events out to the shared store and the
// query cache.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/domain"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/metrics"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/platform/correlation"
	"github.com/ToastWithCheddar/finance-tracker-sub003/internal/platform/retry"
)

const (
	defaultReconnectDelay  = 5 * time.Second
	defaultMaxDialAttempts = 6
	maxDialBackoff         = 60 * time.Second
	closeWriteTimeout      = 3 * time.Second
)

var errClientClosed = errors.New("realtime client closed")

// EnvelopeHandler receives each decoded envelope synchronously from the
// read loop. Dispatch must complete its store mutations and cache
// invalidations before returning.
type EnvelopeHandler interface {
	Dispatch(ctx context.Context, env domain.Envelope)
}

// StatusSink receives connection state transitions. The transport is the
// only writer.
type StatusSink interface {
	SetConnectionState(state domain.ConnectionState)
}

type Options struct {
	// URL is the websocket endpoint without the token query parameter.
	URL string
	// Token is the opaque access credential appended as ?token=.
	Token string
	// ReconnectDelay is the wait before the first redial after an unclean
	// close, and the initial backoff between dial attempts. Zero means the
	// 5-second default.
	ReconnectDelay time.Duration
	// MaxDialAttempts bounds each reconnect cycle. Zero means the default.
	MaxDialAttempts int
	Dialer          *websocket.Dialer
	Clock           clockwork.Clock
}

// Client owns at most one live socket at a time. The Run loop is a single
// goroutine, so a reconnect dial can never start while a socket reference
// is still held, and no two message handlers ever run concurrently.
type Client struct {
	endpoint        string
	handler         EnvelopeHandler
	status          StatusSink
	dialer          *websocket.Dialer
	clock           clockwork.Clock
	reconnectDelay  time.Duration
	maxDialAttempts int
	parseLog        *rate.Limiter

	mu      sync.Mutex
	conn    *websocket.Conn
	closing bool

	closed chan struct{}
	done   chan struct{}
}

func NewClient(opts Options, handler EnvelopeHandler, status StatusSink) (*Client, error) {
	endpoint, err := buildEndpoint(opts.URL, opts.Token)
	if err != nil {
		return nil, err
	}

	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.MaxDialAttempts <= 0 {
		opts.MaxDialAttempts = defaultMaxDialAttempts
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Client{
		endpoint:        endpoint,
		handler:         handler,
		status:          status,
		dialer:          opts.Dialer,
		clock:           opts.Clock,
		reconnectDelay:  opts.ReconnectDelay,
		maxDialAttempts: opts.MaxDialAttempts,
		parseLog:        rate.NewLimiter(rate.Every(time.Second), 5),
		closed:          make(chan struct{}),
		done:            make(chan struct{}),
	}, nil
}

func buildEndpoint(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid realtime URL: %w", err)
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run connects and reads until the context is cancelled or Close is called.
// After an unclean close it waits ReconnectDelay, then starts one bounded
// reconnect cycle; if the cycle exhausts its attempts the client stays
// disconnected until restarted.
func (c *Client) Run(ctx context.Context) {
	defer close(c.done)
	defer c.status.SetConnectionState(domain.StateDisconnected)

	reconnecting := false
	for {
		if reconnecting {
			if !c.waitReconnectDelay(ctx) {
				return
			}
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.status.SetConnectionState(domain.StateDisconnected)
			if ctx.Err() != nil || c.isClosing() {
				return
			}
			slog.Error("Realtime connection failed, staying disconnected until restart", "error", err)
			return
		}

		if !c.adopt(conn) {
			return
		}
		c.status.SetConnectionState(domain.StateConnected)
		slog.Info("Realtime connection established")

		readErr := c.readLoop(ctx, conn)

		c.release(conn)
		c.status.SetConnectionState(domain.StateDisconnected)

		if ctx.Err() != nil || c.isClosing() {
			return
		}

		slog.Warn("Realtime connection dropped, scheduling reconnect",
			"error", readErr,
			"delay_seconds", c.reconnectDelay.Seconds(),
		)
		metrics.RealtimeReconnectsTotal.Inc()
		reconnecting = true
	}
}

// Done is closed once the Run loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close performs a clean shutdown: the socket is closed with a
// normal-closure code, any pending reconnect timer is cancelled, and the
// client never reconnects afterwards. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	conn := c.conn
	c.conn = nil
	close(c.closed)
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(closeWriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			slog.Debug("Failed to send close frame", "error", err)
		}
		_ = conn.Close()
	}
}

func (c *Client) waitReconnectDelay(ctx context.Context) bool {
	timer := c.clock.NewTimer(c.reconnectDelay)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return true
	case <-ctx.Done():
		return false
	case <-c.closed:
		return false
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	c.status.SetConnectionState(domain.StateConnecting)

	p := retry.Policy{
		MaxAttempts:    c.maxDialAttempts,
		InitialBackoff: c.reconnectDelay,
		MaxBackoff:     maxDialBackoff,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Realtime dial failed, retrying",
				"attempt", attempt,
				"backoff_seconds", backoff.Seconds(),
				"error", err,
			)
		},
	}

	return retry.Do(ctx, p, c.classifyDialError, func() (*websocket.Conn, error) {
		if c.isClosing() {
			return nil, errClientClosed
		}

		conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return nil, fmt.Errorf("websocket dial: %w", err)
		}
		return conn, nil
	})
}

func (c *Client) classifyDialError(err error) retry.Action {
	if errors.Is(err, errClientClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	return retry.Retry
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			metrics.RealtimeParseFailuresTotal.Inc()
			if c.parseLog.Allow() {
				slog.Warn("Dropping malformed realtime frame", "error", err)
			}
			continue
		}
		if env.Type == "" {
			metrics.RealtimeParseFailuresTotal.Inc()
			if c.parseLog.Allow() {
				slog.Warn("Dropping realtime frame without an event type")
			}
			continue
		}

		evCtx := correlation.WithID(ctx, correlation.NewID())
		c.handler.Dispatch(evCtx, env)
	}
}

// adopt stores the freshly dialed socket unless Close raced the dial, in
// which case the socket is discarded to keep the single-socket invariant.
func (c *Client) adopt(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		_ = conn.Close()
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) release(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *Client) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}
