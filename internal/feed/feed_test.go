package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/a-re/ledgerx-go/internal/schema"
)

// scriptedClient plays back frames and then fails with a given error.
type scriptedClient struct {
	connectErr error
	frames     [][]byte
	failWith   error

	mu        sync.Mutex
	connected bool
	messages  chan TimestampedMessage
	errs      chan error
}

func (c *scriptedClient) Connect(ctx context.Context) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.messages = make(chan TimestampedMessage, len(c.frames))
	c.errs = make(chan error, 1)
	for _, frame := range c.frames {
		c.messages <- TimestampedMessage{Data: frame, ReceivedAt: time.Now()}
	}
	if c.failWith != nil {
		// Delivered after the buffered frames drain; pump prefers Errors()
		// only once Messages() blocks.
		go func() {
			for len(c.messages) > 0 {
				time.Sleep(time.Millisecond)
			}
			c.errs <- c.failWith
		}()
	}
	return nil
}

func (c *scriptedClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *scriptedClient) Messages() <-chan TimestampedMessage { return c.messages }
func (c *scriptedClient) Errors() <-chan error                { return c.errs }

func (c *scriptedClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nextEvent(t *testing.T, events <-chan schema.Event) schema.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return nil
	}
}

func TestFeedDeliversDecodedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &scriptedClient{
		frames: [][]byte{
			[]byte(`{"type":"book_top","contract_id":1,"clock":5,"bid":1400,"ask":1600}`),
			[]byte(`this is not json`),
			[]byte(`{"type":"collateral_balance_update","collateral":{"available_balances":{"USD":100}}}`),
		},
	}
	f := New(Config{URL: "wss://example.test/ws"},
		WithLogger(testLogger()),
		withClientFactory(func(ClientConfig, *slog.Logger) Client { return c }))

	done := make(chan error, 1)
	go func() { done <- f.Start(ctx) }()

	if _, ok := nextEvent(t, f.Events()).(schema.WebsocketStarting); !ok {
		t.Fatal("first event should be WebsocketStarting")
	}
	top, ok := nextEvent(t, f.Events()).(schema.BookTop)
	if !ok || top.ContractID != 1 || top.Bid != 1400 {
		t.Fatalf("got %+v, want the decoded book top", top)
	}
	// The undecodable frame is skipped, not fatal.
	if _, ok := nextEvent(t, f.Events()).(schema.CollateralBalance); !ok {
		t.Fatal("expected the balance update after the bad frame")
	}

	f.Stop()
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Start returned %v", err)
	}
}

func TestFeedReconnectsAfterDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streamErr := errors.New("connection reset")
	clients := []*scriptedClient{
		{frames: [][]byte{[]byte(`{"type":"heartbeat","ticks":1,"run_id":"8f2a9d34-1111-2222-3333-444455556666","timestamp":1}`)}, failWith: streamErr},
		{frames: [][]byte{[]byte(`{"type":"heartbeat","ticks":1,"run_id":"8f2a9d34-1111-2222-3333-444455556666","timestamp":2}`)}},
	}
	var dials int
	var mu sync.Mutex
	factory := func(ClientConfig, *slog.Logger) Client {
		mu.Lock()
		defer mu.Unlock()
		c := clients[min(dials, len(clients)-1)]
		dials++
		return c
	}

	f := New(Config{
		URL:               "wss://example.test/ws",
		ReconnectBaseWait: time.Millisecond,
	}, WithLogger(testLogger()), withClientFactory(factory))

	done := make(chan error, 1)
	go func() { done <- f.Start(ctx) }()

	// First connection: start marker, one heartbeat, then the failure.
	if _, ok := nextEvent(t, f.Events()).(schema.WebsocketStarting); !ok {
		t.Fatal("want WebsocketStarting for the first connection")
	}
	if _, ok := nextEvent(t, f.Events()).(schema.Heartbeat); !ok {
		t.Fatal("want the first heartbeat")
	}
	werr, ok := nextEvent(t, f.Events()).(schema.WebsocketError)
	if !ok || !errors.Is(werr.Err, streamErr) {
		t.Fatalf("got %+v, want WebsocketError wrapping the stream failure", werr)
	}

	// Second connection announces itself the same way, so the consumer knows
	// to resync.
	if _, ok := nextEvent(t, f.Events()).(schema.WebsocketStarting); !ok {
		t.Fatal("want WebsocketStarting for the reconnect")
	}
	if _, ok := nextEvent(t, f.Events()).(schema.Heartbeat); !ok {
		t.Fatal("want the heartbeat from the second connection")
	}

	mu.Lock()
	if dials < 2 {
		t.Errorf("dials = %d, want a fresh client per connection", dials)
	}
	mu.Unlock()

	f.Stop()
	cancel()
	<-done
}

func TestFeedRetriesFailedConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectErr := errors.New("dial tcp: refused")
	good := &scriptedClient{
		frames: [][]byte{[]byte(`{"type":"websocket_starting"}`)},
	}
	var dials int
	var mu sync.Mutex
	factory := func(ClientConfig, *slog.Logger) Client {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 1 {
			return &scriptedClient{connectErr: connectErr}
		}
		return good
	}

	f := New(Config{
		URL:               "wss://example.test/ws",
		ReconnectBaseWait: time.Millisecond,
	}, WithLogger(testLogger()), withClientFactory(factory))

	done := make(chan error, 1)
	go func() { done <- f.Start(ctx) }()

	werr, ok := nextEvent(t, f.Events()).(schema.WebsocketError)
	if !ok || !errors.Is(werr.Err, connectErr) {
		t.Fatalf("got %+v, want the connect failure surfaced", werr)
	}
	if _, ok := nextEvent(t, f.Events()).(schema.WebsocketStarting); !ok {
		t.Fatal("want WebsocketStarting once the retry succeeds")
	}

	f.Stop()
	cancel()
	<-done
}
