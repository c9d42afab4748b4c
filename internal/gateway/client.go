// Package gateway consumes the chat gateway's message stream and feeds each
// frame through classification and dispatch.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lunabot/internal/api"
	"lunabot/internal/classify"
	"lunabot/internal/dispatch"
	"lunabot/internal/domain"
	"lunabot/internal/metrics"
	"lunabot/internal/router"
)

const (
	DefaultPath           = "/ws"
	DefaultConnectTimeout = 5 * time.Second
	DefaultReconnectDelay = 3 * time.Second
)

var (
	ErrAlreadyRunning = errors.New("gateway: receive loop already running")
	ErrStarted        = errors.New("gateway: routers cannot be included after start")
)

// Config configures a Client.
type Config struct {
	Host           string // host:port of the gateway, no scheme
	Path           string // stream path, default /ws
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration

	// API serves replies and queries. Built from Host when nil.
	API *api.Client
	// State is injected into handlers by its dynamic type, e.g. *AppState.
	// The client applies no locking around it; handlers that mutate it
	// concurrently must synchronize themselves.
	State any

	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Client is the transport state machine:
// Disconnected → Connecting → Connected → (Closing) → Disconnected.
// It reconnects after a fixed delay, without a retry cap, until Close.
type Client struct {
	url            string
	connectTimeout time.Duration
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	api            *api.Client
	chats          *api.ChatService
	appState       any
	logger         *slog.Logger

	mu         sync.Mutex
	routers    []*router.Router
	dispatcher *dispatch.Dispatcher
	running    bool
	cancel     context.CancelFunc

	state     atomic.Int32
	closeOnce sync.Once
	closed    chan struct{}
}

func New(cfg Config) *Client {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{}
	}
	if cfg.API == nil {
		cfg.API = api.New(api.Config{BaseURL: "http://" + cfg.Host, Logger: cfg.Logger})
	}

	return &Client{
		url:            "ws://" + cfg.Host + cfg.Path,
		connectTimeout: cfg.ConnectTimeout,
		reconnectDelay: cfg.ReconnectDelay,
		dialer:         cfg.Dialer,
		api:            cfg.API,
		chats:          api.NewChatService(cfg.API),
		appState:       cfg.State,
		logger:         cfg.Logger.With("component", "gateway"),
		closed:         make(chan struct{}),
	}
}

// Include adds routers. It must be called before Start: the handler
// registry is frozen when the receive loop begins.
func (c *Client) Include(routers ...*router.Router) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dispatcher != nil {
		return ErrStarted
	}
	c.routers = append(c.routers, routers...)
	return nil
}

// State returns the current transport state.
func (c *Client) State() State { return State(c.state.Load()) }

// API returns the REST client used for replies and queries.
func (c *Client) API() *api.Client { return c.api }

// URL returns the stream URL the client connects to.
func (c *Client) URL() string { return c.url }

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// setState moves the client to s. Closing is left only for Disconnected,
// and a closed client never re-enters Connecting or Connected.
func (c *Client) setState(s State) {
	for {
		prev := State(c.state.Load())
		if prev == s {
			return
		}
		if s != StateDisconnected && (prev == StateClosing || (s != StateClosing && c.isClosed())) {
			return
		}
		if c.state.CompareAndSwap(int32(prev), int32(s)) {
			metrics.ConnectionState.Set(float64(s))
			c.logger.Debug("state changed", "from", prev, "to", s)
			return
		}
	}
}

// Start runs the receive loop until Close is called or ctx is done. It
// returns nil after Close and ctx.Err() after cancellation. Connection
// failures never surface here; they only trigger a reconnect.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isClosed() {
		c.mu.Unlock()
		return nil
	}
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	if c.dispatcher == nil {
		reg := router.Build(c.routers...)
		c.dispatcher = dispatch.New(reg, c.logger)
		c.logger.Info("handler registry frozen", "handlers", reg.Len())
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
		c.setState(StateDisconnected)
	}()

	// Handlers outlive Close; they only inherit ctx values.
	handlerCtx := context.WithoutCancel(ctx)

	for loopCtx.Err() == nil {
		c.setState(StateConnecting)
		conn, err := c.connect(loopCtx)
		if err != nil {
			if loopCtx.Err() != nil {
				break
			}
			metrics.ConnectFailures.Inc()
			c.setState(StateDisconnected)
			c.logger.Warn("connect failed, retrying", "url", c.url, "retry_in", c.reconnectDelay, "err", err)
			if !c.wait(loopCtx) {
				break
			}
			continue
		}

		session := uuid.NewString()
		log := c.logger.With("session", session)
		c.setState(StateConnected)
		log.Info("connected", "url", c.url)

		// Unblocks ReadMessage when the loop is cancelled.
		stop := context.AfterFunc(loopCtx, func() { conn.Close() })
		err = c.receive(handlerCtx, conn, log)
		stop()
		conn.Close()
		metrics.Disconnects.Inc()

		if loopCtx.Err() != nil {
			log.Info("connection closed")
			break
		}
		c.setState(StateDisconnected)
		log.Warn("disconnected, reconnecting", "retry_in", c.reconnectDelay, "err", err)
		if !c.wait(loopCtx) {
			break
		}
	}

	if c.isClosed() {
		return nil
	}
	return ctx.Err()
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	metrics.ConnectAttempts.Inc()
	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	return conn, nil
}

// wait sleeps for the reconnect delay. It returns false if ctx ended first.
func (c *Client) wait(ctx context.Context) bool {
	t := time.NewTimer(c.reconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// receive reads frames one at a time and processes each before requesting
// the next. It returns the error that ended the connection.
func (c *Client) receive(ctx context.Context, conn *websocket.Conn, log *slog.Logger) error {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.process(ctx, frame, log)
	}
}

func (c *Client) process(ctx context.Context, frame []byte, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			metrics.FramesTotal.WithLabelValues("panic").Inc()
			log.Error("frame processing panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	res, err := classify.Classify(frame, c.api)
	if err != nil {
		metrics.FramesTotal.WithLabelValues("decode_error").Inc()
		log.Error("frame processing failed", "err", err, "size", len(frame))
		return
	}

	container := c.container(res)
	c.dispatcher.Dispatch(ctx, domain.EventChat, container)
	c.dispatcher.Dispatch(ctx, res.Event, container)
	metrics.FramesTotal.WithLabelValues("ok").Inc()
}

func (c *Client) container(res classify.Result) *dispatch.Container {
	cont := dispatch.NewContainer()
	cont.Provide(res.Chat)
	cont.Provide(c.chats)
	cont.Provide(c.api)
	cont.Provide(c.logger)
	cont.Provide(c.appState)
	if res.Feed != nil {
		cont.Provide(res.Feed)
		dispatch.ProvideAs[domain.FeedEvent](cont, res.Feed)
	}
	return cont
}

// Close stops the receive loop and releases the connection. It is
// idempotent and safe from any state. Handlers already running are not
// awaited; use Drain for that.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.running {
			c.setState(StateClosing)
			c.cancel()
		}
		c.mu.Unlock()
		c.api.Close()
	})
	return nil
}

// Drain waits until handlers spawned so far have finished or ctx is done.
func (c *Client) Drain(ctx context.Context) error {
	c.mu.Lock()
	d := c.dispatcher
	c.mu.Unlock()
	if d == nil {
		return nil
	}
	return d.Wait(ctx)
}
