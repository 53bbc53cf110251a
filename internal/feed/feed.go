package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/a-re/ledgerx-go/internal/schema"
)

// Config configures the managed feed.
type Config struct {
	URL    string
	Token  string
	Client ClientConfig

	// ReconnectBaseWait and ReconnectMaxWait bound the exponential backoff
	// between connection attempts.
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration

	// EventBufferSize sizes the decoded event channel.
	EventBufferSize int
}

func (c *Config) applyDefaults() {
	if c.ReconnectBaseWait == 0 {
		c.ReconnectBaseWait = time.Second
	}
	if c.ReconnectMaxWait == 0 {
		c.ReconnectMaxWait = time.Minute
	}
	if c.EventBufferSize == 0 {
		c.EventBufferSize = 1000
	}
}

// Feed owns the stream connection for the life of the process: it dials,
// decodes every frame exactly once, and reconnects with exponential backoff.
// A WebsocketStarting event is injected after every successful (re)connect
// and a WebsocketError before every reconnect cycle, so the consumer knows
// when its view went stale and when a resync can begin.
type Feed interface {
	// Start runs the connect/read/reconnect loop until ctx is done.
	Start(ctx context.Context) error

	// Stop closes the current connection and ends the loop.
	Stop()

	// Events returns the decoded event stream.
	Events() <-chan schema.Event
}

type feed struct {
	cfg    Config
	logger *slog.Logger

	newClient func(ClientConfig, *slog.Logger) Client

	events chan schema.Event

	mu     sync.Mutex
	cur    Client
	closed bool
}

// Option configures a Feed.
type Option func(*feed)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *feed) { f.logger = logger }
}

// withClientFactory swaps the connection constructor (tests).
func withClientFactory(fn func(ClientConfig, *slog.Logger) Client) Option {
	return func(f *feed) { f.newClient = fn }
}

// New creates a managed feed.
func New(cfg Config, opts ...Option) Feed {
	cfg.applyDefaults()
	f := &feed{
		cfg:       cfg,
		logger:    slog.Default(),
		newClient: NewClient,
		events:    make(chan schema.Event, cfg.EventBufferSize),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *feed) Events() <-chan schema.Event {
	return f.events
}

func (f *feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.cur != nil {
		f.cur.Close()
	}
}

// Start runs the feed until the context is cancelled or Stop is called.
func (f *feed) Start(ctx context.Context) error {
	defer close(f.events)

	wait := f.cfg.ReconnectBaseWait
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return nil
		}
		clientCfg := f.cfg.Client
		clientCfg.URL = f.cfg.URL
		clientCfg.Token = f.cfg.Token
		c := f.newClient(clientCfg, f.logger)
		f.cur = c
		f.mu.Unlock()

		if err := c.Connect(ctx); err != nil {
			f.logger.Warn("stream connect failed", "error", err, "retry_in", wait)
			if !f.emit(ctx, schema.WebsocketError{Err: err}) {
				return ctx.Err()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait = min(wait*2, f.cfg.ReconnectMaxWait)
			continue
		}

		wait = f.cfg.ReconnectBaseWait
		if !f.emit(ctx, schema.WebsocketStarting{}) {
			c.Close()
			return ctx.Err()
		}

		err := f.pump(ctx, c)
		c.Close()

		f.mu.Lock()
		closed := f.closed
		f.mu.Unlock()
		if closed || ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("stream disconnected, reconnecting", "error", err)
		if !f.emit(ctx, schema.WebsocketError{Err: err}) {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// pump decodes frames off one connection until it fails.
func (f *feed) pump(ctx context.Context, c Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-c.Errors():
			return err

		case msg, ok := <-c.Messages():
			if !ok {
				return ErrNotConnected
			}
			ev, err := schema.Decode(msg.Data)
			if err != nil {
				f.logger.Warn("undecodable frame", "error", err)
				continue
			}
			if !f.emit(ctx, ev) {
				return ctx.Err()
			}
		}
	}
}

// emit delivers one event in order, blocking until the consumer takes it.
func (f *feed) emit(ctx context.Context, ev schema.Event) bool {
	select {
	case f.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
