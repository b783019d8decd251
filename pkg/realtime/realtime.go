// Package realtime is the WebSocket client for the backend's /api/ws
// channel.
//
// Every message is a JSON envelope {"type": ..., "payload": ...}. The client
// sends generate_transcript and edit_transcript requests and dispatches
// inbound messages (transcript_generated, transcript_edited, error) to the
// handlers registered with [Client.On]. Sends are fire-and-forget: the
// protocol carries no request IDs, so responses are matched by type only.
//
// When the connection drops without [Client.Close] having been called, the
// client reconnects with capped exponential backoff. After the last attempt
// fails it logs, calls the give-up hook and stays disconnected.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/podwright/internal/observe"
	"github.com/MrWong99/podwright/pkg/podcast"
)

// Message types used on the channel.
const (
	TypeGenerateTranscript  = "generate_transcript"
	TypeEditTranscript      = "edit_transcript"
	TypeTranscriptGenerated = "transcript_generated"
	TypeTranscriptEdited    = "transcript_edited"
	TypeError               = "error"
)

// Default reconnection parameters.
const (
	defaultMaxAttempts = 5
	defaultDelay       = 1 * time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultDialTimeout = 10 * time.Second
	defaultReadLimit   = 8 << 20
)

// Messages delivered to error handlers for failures detected locally.
const (
	msgUndecodable     = "Error processing server response"
	msgConnectionError = "Connection error occurred"
)

var (
	// ErrNotConnected is returned by [Client.Send] while no connection is
	// open.
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrClosed is returned after [Client.Close].
	ErrClosed = errors.New("realtime: client closed")
)

// ServerError is an error message received on the channel.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "realtime: server error: " + e.Message }

// Envelope is the wire format of every message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EditResult is the payload of a transcript_edited message.
type EditResult struct {
	Success    bool     `json:"success"`
	Transcript string   `json:"transcript"`
	Characters []string `json:"characters,omitempty"`
}

// Handler receives the raw payload of one inbound message.
type Handler func(payload json.RawMessage)

type subscription struct {
	id uint64
	fn Handler
}

// Client is a reconnecting WebSocket client. It is safe for concurrent use.
type Client struct {
	url         string
	origin      string
	maxAttempts int
	delay       time.Duration
	maxDelay    time.Duration
	dialTimeout time.Duration
	readLimit   int64
	onGiveUp    func(error)
	onReconnect func()
	metrics     *observe.Metrics
	log         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	conn     *websocket.Conn
	closed   bool
	handlers map[string][]subscription
	nextID   uint64

	// awaitMu serialises request/response helpers, which cannot tell two
	// concurrent responses of the same type apart.
	awaitMu sync.Mutex
}

// Option configures a [Client].
type Option func(*Client)

// WithOrigin sets the Origin header sent on the handshake. The backend
// rejects origins outside its CORS list.
func WithOrigin(origin string) Option {
	return func(c *Client) { c.origin = origin }
}

// WithMaxReconnectAttempts bounds reconnection attempts after a drop.
// Default: 5.
func WithMaxReconnectAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// WithReconnectDelay sets the initial delay before the first reconnection
// attempt and the cap the doubling delay never exceeds. Defaults: 1s, 30s.
func WithReconnectDelay(initial, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.delay = initial
		c.maxDelay = maxDelay
	}
}

// WithDialTimeout bounds each handshake. Default: 10s.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithReadLimit sets the maximum inbound message size. Default: 8 MiB.
func WithReadLimit(n int64) Option {
	return func(c *Client) { c.readLimit = n }
}

// WithOnGiveUp registers a callback invoked once reconnection has been
// abandoned. It receives the last dial error and must not call
// [Client.Close].
func WithOnGiveUp(fn func(error)) Option {
	return func(c *Client) { c.onGiveUp = fn }
}

// WithOnReconnect registers a callback invoked after every successful
// reconnection.
func WithOnReconnect(fn func()) Option {
	return func(c *Client) { c.onReconnect = fn }
}

// WithMetrics records message and reconnect metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client for url (e.g. "ws://localhost:8000/api/ws"). No
// connection is made until [Client.Connect].
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		maxAttempts: defaultMaxAttempts,
		delay:       defaultDelay,
		maxDelay:    defaultMaxDelay,
		dialTimeout: defaultDialTimeout,
		readLimit:   defaultReadLimit,
		handlers:    make(map[string][]subscription),
	}
	for _, o := range opts {
		o(c)
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.delay <= 0 {
		c.delay = defaultDelay
	}
	if c.maxDelay < c.delay {
		c.maxDelay = c.delay
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Connect opens the connection. A failed initial connect is returned to
// the caller and does not start the reconnect loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	if !c.adopt(conn) {
		return ErrClosed
	}
	c.log.Info("realtime connected", "url", c.url)
	return nil
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// On registers fn for inbound messages of type msgType and returns a
// function that removes the registration. Handlers run on the read
// goroutine and must not block.
func (c *Client) On(msgType string, fn Handler) (unsubscribe func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[msgType] = append(c.handlers[msgType], subscription{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			subs := c.handlers[msgType]
			for i, s := range subs {
				if s.id == id {
					c.handlers[msgType] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(c.handlers[msgType]) == 0 {
				delete(c.handlers, msgType)
			}
		})
	}
}

// Send writes one message. It does not wait for a response.
func (c *Client) Send(ctx context.Context, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime: encode %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return fmt.Errorf("realtime: encode %s: %w", msgType, err)
	}

	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("realtime: send %s: %w", msgType, err)
	}
	c.metrics.RecordRealtimeMessage(ctx, "out", msgType)
	return nil
}

// GenerateTranscript requests a transcript for concept. The result arrives
// as a transcript_generated or error message.
func (c *Client) GenerateTranscript(ctx context.Context, concept podcast.Concept) error {
	return c.Send(ctx, TypeGenerateTranscript, concept)
}

// EditTranscript submits text for normalisation. The result arrives as a
// transcript_edited or error message.
func (c *Client) EditTranscript(ctx context.Context, text string) error {
	return c.Send(ctx, TypeEditTranscript, struct {
		Transcript string `json:"transcript"`
	}{text})
}

// AwaitTranscript sends a generate request and blocks until the matching
// transcript_generated or error message arrives, or ctx is done. Concurrent
// calls are serialised.
func (c *Client) AwaitTranscript(ctx context.Context, concept podcast.Concept) (string, error) {
	c.awaitMu.Lock()
	defer c.awaitMu.Unlock()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	deliver := func(r result) {
		select {
		case done <- r:
		default:
		}
	}

	offOK := c.On(TypeTranscriptGenerated, func(p json.RawMessage) {
		var text string
		if err := json.Unmarshal(p, &text); err != nil {
			deliver(result{err: fmt.Errorf("realtime: decode transcript: %w", err)})
			return
		}
		deliver(result{text: text})
	})
	defer offOK()
	offErr := c.On(TypeError, func(p json.RawMessage) {
		deliver(result{err: &ServerError{Message: PayloadText(p)}})
	})
	defer offErr()

	if err := c.GenerateTranscript(ctx, concept); err != nil {
		return "", err
	}
	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.ctx.Done():
		return "", ErrClosed
	}
}

// PayloadText renders a payload for display: JSON strings are unquoted,
// anything else is returned as raw JSON.
func PayloadText(p json.RawMessage) string {
	var s string
	if json.Unmarshal(p, &s) == nil {
		return s
	}
	return string(p)
}

// Close stops reconnection and closes the connection. It is safe to call
// more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "client closed"); err != nil {
			c.log.Debug("realtime close handshake failed", "err", err)
		}
	}
	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	if c.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
	}
	opts := &websocket.DialOptions{}
	if c.origin != "" {
		opts.HTTPHeader = http.Header{"Origin": []string{c.origin}}
	}
	conn, _, err := websocket.Dial(ctx, c.url, opts)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(c.readLimit)
	return conn, nil
}

// adopt installs conn as the current connection and starts its reader. It
// returns false, closing conn, if the client was closed meanwhile.
func (c *Client) adopt(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.CloseNow()
		return false
	}
	c.conn = conn
	c.wg.Add(1)
	c.mu.Unlock()

	go c.readLoop(conn)
	return true
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			c.lost(conn, err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			c.log.Warn("undecodable realtime message", "err", err, "bytes", len(data))
			c.metrics.RecordRealtimeMessage(c.ctx, "in", "undecodable")
			c.dispatch(TypeError, quote(msgUndecodable))
			continue
		}
		c.metrics.RecordRealtimeMessage(c.ctx, "in", env.Type)
		c.dispatch(env.Type, env.Payload)
	}
}

// lost handles a read failure on conn. Unless the client is closing, it
// notifies error handlers and starts reconnecting.
func (c *Client) lost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.wg.Add(1)
	c.mu.Unlock()

	conn.CloseNow()
	c.log.Warn("realtime connection lost", "err", err, "close_status", websocket.CloseStatus(err))
	c.dispatch(TypeError, quote(msgConnectionError))
	go c.reconnect()
}

// reconnect dials with exponential backoff, waiting before every attempt.
func (c *Client) reconnect() {
	defer c.wg.Done()

	delay := c.delay
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}

		c.log.Info("attempting realtime reconnection",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"delay", delay,
		)
		conn, err := c.dial(c.ctx)
		if err == nil {
			if !c.adopt(conn) {
				return
			}
			c.metrics.RecordReconnect(c.ctx, "ok")
			c.log.Info("realtime reconnection successful", "attempt", attempt)
			if c.onReconnect != nil {
				c.onReconnect()
			}
			return
		}
		if c.ctx.Err() != nil {
			return
		}

		lastErr = err
		c.metrics.RecordReconnect(c.ctx, "failed")
		c.log.Warn("realtime reconnection attempt failed", "attempt", attempt, "err", err)

		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}

	c.metrics.RecordReconnect(c.ctx, "gave_up")
	c.log.Error("realtime reconnection failed after max attempts", "max_attempts", c.maxAttempts)
	if c.onGiveUp != nil {
		c.onGiveUp(lastErr)
	}
}

func (c *Client) dispatch(msgType string, payload json.RawMessage) {
	c.mu.Lock()
	subs := append([]subscription(nil), c.handlers[msgType]...)
	c.mu.Unlock()
	for _, s := range subs {
		s.fn(payload)
	}
}

func quote(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
