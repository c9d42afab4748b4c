package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunabot/internal/domain"
	"lunabot/internal/router"
	"lunabot/internal/simulator"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type harness struct {
	sim    *simulator.Server
	srv    *httptest.Server
	client *Client
	done   chan error
	cancel context.CancelFunc
}

func newSimulator(t *testing.T) (*simulator.Server, *httptest.Server) {
	t.Helper()
	sim, err := simulator.New(simulator.Config{Logger: quiet})
	require.NoError(t, err)
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(func() {
		srv.Close()
		sim.Close()
	})
	return sim, srv
}

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func start(t *testing.T, state any, routers ...*router.Router) *harness {
	t.Helper()
	return startWithDelay(t, 50*time.Millisecond, state, routers...)
}

func startWithDelay(t *testing.T, reconnectDelay time.Duration, state any, routers ...*router.Router) *harness {
	t.Helper()
	sim, srv := newSimulator(t)

	c := New(Config{
		Host:           hostOf(srv),
		ConnectTimeout: 500 * time.Millisecond,
		ReconnectDelay: reconnectDelay,
		State:          state,
		Logger:         quiet,
	})
	require.NoError(t, c.Include(routers...))

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{sim: sim, srv: srv, client: c, done: make(chan error, 1), cancel: cancel}
	go func() { h.done <- c.Start(ctx) }()
	t.Cleanup(func() {
		c.Close()
		cancel()
		<-h.done
	})

	h.awaitConnected(t)
	return h
}

func (h *harness) awaitConnected(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.sim.Clients() == 1 && h.client.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func (h *harness) push(t *testing.T, rec domain.RawChatLog) {
	t.Helper()
	n, err := h.sim.Push(rec)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func textRecord(logID int64, message string) domain.RawChatLog {
	return domain.RawChatLog{
		LogID:              logID,
		ChatID:             1001,
		UserID:             42,
		Message:            message,
		Attachment:         "{}",
		Type:               int(domain.MessageTypeText),
		SendAt:             1700000000,
		CryptoUserNickname: "gopher",
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler")
	}
	var zero T
	return zero
}

func TestClient_DispatchesChatThenSpecificEvent(t *testing.T) {
	chats := make(chan *domain.ChatContext, 1)
	messages := make(chan *domain.ChatContext, 1)
	r := router.New().
		MustOn(domain.EventChat, func(_ context.Context, c *domain.ChatContext) error {
			chats <- c
			return nil
		}).
		MustOn(domain.EventMessage, func(_ context.Context, c *domain.ChatContext) error {
			messages <- c
			return nil
		})

	h := start(t, nil, r)
	h.push(t, textRecord(1, "hello"))

	chat := receive(t, chats)
	assert.Equal(t, "hello", chat.Message.Content)
	assert.Equal(t, int64(1001), chat.Channel.ID)
	assert.Equal(t, "gopher", chat.Sender.Nickname)

	msg := receive(t, messages)
	assert.Same(t, chat, msg)
}

func TestClient_FeedEventInjection(t *testing.T) {
	joined := make(chan domain.UserJoined, 1)
	generic := make(chan domain.FeedEvent, 1)
	messages := make(chan struct{}, 1)
	r := router.New().
		MustOn(domain.EventUserJoined, func(_ context.Context, ev domain.UserJoined, _ *domain.ChatContext) error {
			joined <- ev
			return nil
		}).
		MustOn(domain.EventUserJoined, func(_ context.Context, ev domain.FeedEvent) error {
			generic <- ev
			return nil
		}).
		MustOn(domain.EventMessage, func(context.Context) error {
			messages <- struct{}{}
			return nil
		})

	h := start(t, nil, r)
	rec := textRecord(2, `{"feedType":4,"members":[{"userId":7,"nickName":"newbie"}]}`)
	rec.Type = int(domain.MessageTypeFeed)
	h.push(t, rec)

	ev := receive(t, joined)
	assert.Equal(t, []domain.FeedEventUser{{ID: 7, Nickname: "newbie"}}, ev.JoinedUsers)
	assert.Equal(t, int64(1700000000), ev.Timestamp)
	assert.Equal(t, domain.EventUserJoined, receive(t, generic).EventName())

	select {
	case <-messages:
		t.Fatal("feed frame must not dispatch as message")
	case <-time.After(50 * time.Millisecond):
	}
}

type counter struct{ n atomic.Int64 }

func TestClient_InjectsAppStateAndReplies(t *testing.T) {
	state := &counter{}
	r := router.New().MustOn(domain.EventMessage, func(ctx context.Context, s *counter, c *domain.ChatContext) error {
		n := s.n.Add(1)
		return c.Reply(ctx, "count", n)
	})

	h := start(t, state, r)
	h.push(t, textRecord(1, "a"))
	h.push(t, textRecord(2, "b"))

	require.Eventually(t, func() bool { return len(h.sim.Replies()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), state.n.Load())
	for _, reply := range h.sim.Replies() {
		assert.Equal(t, int64(1001), reply.ChatID)
		assert.True(t, strings.HasPrefix(reply.Message, "count "))
	}
}

func TestClient_SkipsHandlersWithMissingTypes(t *testing.T) {
	ran := make(chan struct{}, 1)
	skipped := make(chan struct{}, 1)
	r := router.New().
		MustOn(domain.EventMessage, func(context.Context, *counter) error {
			skipped <- struct{}{}
			return nil
		}).
		MustOn(domain.EventMessage, func(context.Context, *domain.ChatContext) error {
			ran <- struct{}{}
			return nil
		})

	h := start(t, nil, r)
	h.push(t, textRecord(1, "x"))

	receive(t, ran)
	select {
	case <-skipped:
		t.Fatal("handler with unavailable parameter must not run")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClient_SurvivesBadFramesAndFailingHandlers(t *testing.T) {
	got := make(chan string, 4)
	r := router.New().
		MustOn(domain.EventMessage, func(context.Context, *domain.ChatContext) error {
			return errors.New("boom")
		}).
		MustOn(domain.EventMessage, func(context.Context, *domain.ChatContext) error {
			panic("kaboom")
		}).
		MustOn(domain.EventMessage, func(_ context.Context, c *domain.ChatContext) error {
			got <- c.Message.Content
			return nil
		})

	h := start(t, nil, r)
	require.Equal(t, 1, h.sim.PushRaw([]byte("not json")))
	h.push(t, textRecord(1, "first"))
	h.push(t, textRecord(2, "second"))

	assert.ElementsMatch(t, []string{"first", "second"}, []string{receive(t, got), receive(t, got)})
	assert.Equal(t, StateConnected, h.client.State())
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	const delay = 200 * time.Millisecond
	got := make(chan string, 2)
	r := router.New().MustOn(domain.EventMessage, func(_ context.Context, c *domain.ChatContext) error {
		got <- c.Message.Content
		return nil
	})

	h := startWithDelay(t, delay, nil, r)
	h.push(t, textRecord(1, "before"))
	assert.Equal(t, "before", receive(t, got))

	dropped := time.Now()
	h.sim.DropClients()
	require.Eventually(t, func() bool {
		return h.client.State() == StateDisconnected
	}, time.Second, 5*time.Millisecond)

	h.awaitConnected(t)
	assert.GreaterOrEqual(t, time.Since(dropped), delay)

	h.push(t, textRecord(2, "after"))
	assert.Equal(t, "after", receive(t, got))
}

func TestClient_RetriesUntilGatewayIsUp(t *testing.T) {
	sim, err := simulator.New(simulator.Config{Logger: quiet})
	require.NoError(t, err)
	defer sim.Close()

	// The listener is bound but nothing serves it yet.
	srv := httptest.NewUnstartedServer(sim.Handler())
	defer srv.Close()

	c := New(Config{
		Host:           srv.Listener.Addr().String(),
		ConnectTimeout: 100 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
		Logger:         quiet,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	time.Sleep(300 * time.Millisecond)
	assert.NotEqual(t, StateConnected, c.State())

	srv.Start()
	require.Eventually(t, func() bool { return c.State() == StateConnected }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, <-done)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_StartTwice(t *testing.T) {
	h := start(t, nil)
	assert.ErrorIs(t, h.client.Start(context.Background()), ErrAlreadyRunning)
}

func TestClient_IncludeAfterStart(t *testing.T) {
	h := start(t, nil)
	assert.ErrorIs(t, h.client.Include(router.New()), ErrStarted)
}

func TestClient_CloseStopsLoop(t *testing.T) {
	h := start(t, nil)

	require.NoError(t, h.client.Close())
	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Close")
	}
	assert.Equal(t, StateDisconnected, h.client.State())
	assert.NoError(t, h.client.Close())

	// A closed client never reconnects.
	assert.NoError(t, h.client.Start(context.Background()))
	assert.Equal(t, 0, h.sim.Clients())
}

func TestClient_CloseBeforeStart(t *testing.T) {
	c := New(Config{Host: "127.0.0.1:1", Logger: quiet})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_ContextCancel(t *testing.T) {
	h := start(t, nil)
	h.cancel()
	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, context.Canceled)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestClient_CloseDoesNotCancelHandlers(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	finished := make(chan error, 1)
	r := router.New().MustOn(domain.EventMessage, func(ctx context.Context) error {
		started <- struct{}{}
		<-release
		finished <- ctx.Err()
		return nil
	})

	h := start(t, nil, r)
	h.push(t, textRecord(1, "slow"))
	receive(t, started)

	require.NoError(t, h.client.Close())

	drainCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.client.Drain(drainCtx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, receive(t, finished))
	assert.NoError(t, h.client.Drain(context.Background()))
}

func TestClient_URL(t *testing.T) {
	c := New(Config{Host: "gw:5612", Logger: quiet})
	assert.Equal(t, "ws://gw:5612/ws", c.URL())
	c = New(Config{Host: "gw:5612", Path: "/stream", Logger: quiet})
	assert.Equal(t, "ws://gw:5612/stream", c.URL())
}

func TestClient_ClosingIsLeftOnlyForDisconnected(t *testing.T) {
	c := New(Config{Host: "127.0.0.1:1", Logger: quiet})

	c.setState(StateConnected)
	c.setState(StateClosing)
	c.setState(StateConnected)
	c.setState(StateConnecting)
	assert.Equal(t, StateClosing, c.State())

	c.setState(StateDisconnected)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_ClosedClientStaysDown(t *testing.T) {
	c := New(Config{Host: "127.0.0.1:1", Logger: quiet})
	c.setState(StateConnected)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					c.setState(StateConnecting)
					c.setState(StateConnected)
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Close())
	c.setState(StateDisconnected)
	time.Sleep(10 * time.Millisecond)
	close(stop)
	wg.Wait()

	assert.Equal(t, StateDisconnected, c.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "unknown", State(9).String())
}
