// Package signal is the websocket client of the chat relay.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceChat/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrNotConnected = errors.New("not connected to relay")
	ErrClosed       = errors.New("connection closed")
)

const (
	defaultWriteWait    = 10 * time.Second
	defaultPingPeriod   = 54 * time.Second
	defaultReadLimit    = 64 * 1024
	defaultSendBuffer   = 32
	defaultReconnectMin = 500 * time.Millisecond
	defaultReconnectMax = 30 * time.Second

	// More reconnects than this per minute and the client waits the full
	// maximum delay between dials.
	reconnectBurst = 5
)

type Options struct {
	URL          string
	Codec        Codec
	Header       http.Header
	PingPeriod   time.Duration
	WriteWait    time.Duration
	ReadLimit    int64
	SendBuffer   int
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

func (o *Options) defaults() {
	if o.Codec == nil {
		o.Codec = JSONCodec{}
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = defaultPingPeriod
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = defaultReconnectMin
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = max(defaultReconnectMax, o.ReconnectMin)
	}
}

// Client keeps one relay connection alive and implements core.Signaler.
// Handlers run on the read goroutine, in arrival order.
type Client struct {
	opts   Options
	dialer *websocket.Dialer
	storm  *windowLimiter

	mu       sync.RWMutex
	handlers map[string][]core.Handler
	conn     *wsConn
}

func NewClient(opts Options) *Client {
	opts.defaults()
	return &Client{
		opts:     opts,
		dialer:   &websocket.Dialer{HandshakeTimeout: opts.WriteWait, Proxy: http.ProxyFromEnvironment},
		storm:    newWindowLimiter(reconnectBurst, time.Minute),
		handlers: make(map[string][]core.Handler),
	}
}

func (c *Client) On(event string, h core.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Send queues one message. It never blocks: a full queue is ErrBackpressure.
func (c *Client) Send(event string, args ...any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := c.opts.Codec.Encode(event, args)
	if err != nil {
		return err
	}
	return conn.TrySend(data)
}

// Connected reports whether a relay connection is currently up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Run dials the relay and redials with capped exponential delay until ctx
// is done. It raises connected on the first session, reconnected on later
// ones and disconnected whenever a session ends.
func (c *Client) Run(ctx context.Context) error {
	delay := c.opts.ReconnectMin
	sessions := 0
	for {
		ws, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Str("module", "signal").Str("url", c.opts.URL).Dur("retry_in", delay).Err(err).Msg("relay dial failed")
			if !sleep(ctx, delay) {
				return nil
			}
			delay = min(delay*2, c.opts.ReconnectMax)
			continue
		}

		sessions++
		delay = c.opts.ReconnectMin
		conn := newWsConn(ws, c.opts.SendBuffer)
		c.setConn(conn)
		log.Info().Str("module", "signal").Str("url", c.opts.URL).Str("codec", c.opts.Codec.Name()).Int("session", sessions).Msg("connected to relay")
		if sessions == 1 {
			c.dispatch(core.EventConnected, noArgs{})
		} else {
			c.dispatch(core.EventReconnected, noArgs{})
		}

		c.serve(ctx, conn)

		c.setConn(nil)
		if ctx.Err() != nil {
			return nil
		}
		c.dispatch(core.EventDisconnected, noArgs{})
		if !c.storm.Allow() {
			delay = c.opts.ReconnectMax
			log.Warn().Str("module", "signal").Dur("retry_in", delay).Msg("relay connection flapping")
		}
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (c *Client) setConn(conn *wsConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Client) dispatch(event string, args core.Args) {
	c.mu.RLock()
	hs := c.handlers[event]
	c.mu.RUnlock()
	if len(hs) == 0 {
		log.Debug().Str("module", "signal").Str("event", event).Msg("no handler for event")
		return
	}
	for _, h := range hs {
		h(args)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type wsConn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWsConn(ws *websocket.Conn, buffer int) *wsConn {
	return &wsConn{ws: ws, send: make(chan []byte, buffer)}
}

func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
}
