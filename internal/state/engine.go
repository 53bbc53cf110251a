// Package state reconstructs a consistent view of venue market and account
// state from the event stream plus the REST snapshot API.
//
// The Engine owns every mutable structure: per-contract clocked books, the
// trader's open orders, positions and cost basis, and account balances. All
// mutation happens under one mutex; the lock is released around every
// suspending snapshot fetch, and the append-vs-apply decision for the global
// action queue is always made before suspending.
package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/a-re/ledgerx-go/internal/api"
	"github.com/a-re/ledgerx-go/internal/model"
	"github.com/a-re/ledgerx-go/internal/schema"
)

// clockLoading is the sentinel contract clock marking a book reload in
// progress. It blocks concurrent reloads and new-event application.
const clockLoading int64 = -2

// SnapshotClient is the pull side of reconciliation: every call is a
// suspending round trip whose retries live in the client itself. The engine
// treats failure as "temporarily unavailable" and retries on a later sweep.
type SnapshotClient interface {
	ListContracts(ctx context.Context, opts api.ListContractsOptions) ([]model.Contract, error)
	GetContract(ctx context.Context, contractID int64) (model.Contract, error)
	GetBookStates(ctx context.Context, contractID int64) (model.BookSnapshot, error)
	ListOpenOrders(ctx context.Context) ([]api.OpenOrder, error)
	ListTradedContracts(ctx context.Context) ([]model.Contract, error)
	ListAllPositions(ctx context.Context) ([]api.PositionRecord, error)
	ListPositionTrades(ctx context.Context, positionID int64) ([]model.PositionTrade, error)
	ListGlobalTrades(ctx context.Context, opts api.ListGlobalTradesOptions, handle func([]api.GlobalTrade) error) error
}

// IndicatorSink receives auxiliary indicator ticks forwarded off the stream.
type IndicatorSink interface {
	UpdateBitvol(asset, value, at string)
	UpdateSpot(asset, price, at string)
}

// Config holds engine tuning knobs.
type Config struct {
	// SkipExpired ignores expired contracts for positions and book loads.
	SkipExpired bool

	// ExpiryPreemptive treats contracts expiring within this window as
	// already expired, so no last-second state is acted on.
	ExpiryPreemptive time.Duration

	// BasisDelayTicks is how many heartbeats a basis recomputation waits
	// before its first attempt, tolerating the eventually-consistent
	// upstream trade history.
	BasisDelayTicks int

	// BasisMaxRetries bounds recomputation reissues on size disagreement.
	BasisMaxRetries int

	// MaxReloadsPerTick bounds staleness-sweep work per heartbeat.
	MaxReloadsPerTick int

	// TaskBatchTimeout bounds how long one heartbeat waits for its batch of
	// fired delayed tasks; slow tasks spill to the next tick.
	TaskBatchTimeout time.Duration

	// LateHeartbeat skips heavy reconciliation when the heartbeat itself
	// arrived later than this after its nominal time.
	LateHeartbeat time.Duration

	// BulkLoadParallel bounds concurrent per-contract book loads during a
	// full market bootstrap.
	BulkLoadParallel int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SkipExpired:       true,
		ExpiryPreemptive:  15 * time.Second,
		BasisDelayTicks:   3,
		BasisMaxRetries:   5,
		MaxReloadsPerTick: 100,
		TaskBatchTimeout:  50 * time.Millisecond,
		LateHeartbeat:     2 * time.Second,
		BulkLoadParallel:  32,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.ExpiryPreemptive == 0 {
		c.ExpiryPreemptive = d.ExpiryPreemptive
	}
	if c.BasisDelayTicks == 0 {
		c.BasisDelayTicks = d.BasisDelayTicks
	}
	if c.BasisMaxRetries == 0 {
		c.BasisMaxRetries = d.BasisMaxRetries
	}
	if c.MaxReloadsPerTick == 0 {
		c.MaxReloadsPerTick = d.MaxReloadsPerTick
	}
	if c.TaskBatchTimeout == 0 {
		c.TaskBatchTimeout = d.TaskBatchTimeout
	}
	if c.LateHeartbeat == 0 {
		c.LateHeartbeat = d.LateHeartbeat
	}
	if c.BulkLoadParallel == 0 {
		c.BulkLoadParallel = d.BulkLoadParallel
	}
}

// delayedTask is one unit of deferred work, fired after Remaining heartbeats.
type delayedTask struct {
	name      string
	remaining int
	run       func(ctx context.Context)
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	Active         bool
	Mpid           string
	Contracts      int
	ExpiredCount   int
	TrackedBooks   int
	OpenOwnOrders  int
	EverMine       int
	Positions      int
	PendingBasis   int
	QueueDepth     int
	QueueOpen      bool
	PendingTasks   int
	TopMismatches  int64
	StaleIgnored   int64
	GapReloads     int64
	SweepReloads   int64
	HandleCounts   map[schema.Kind]int64
	LastHeartbeat  int64 // ticks, 0 before the first
}

// Engine is the reconciliation core.
type Engine struct {
	cfg        Config
	client     SnapshotClient
	indicators IndicatorSink
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex

	active        bool
	bootstrapping bool

	// Contract catalogue. Contracts are never deleted; expiry is one-way.
	contracts  map[int64]*model.Contract
	expired    map[int64]bool
	traded     map[int64]bool
	labelToID  map[string]int64
	putCallMap map[int64]int64
	expDates   []string
	expStrikes map[string]map[string][]int64
	nextDay    map[string]int64 // asset -> contract id
	lastScan   time.Time        // last next-day catalogue rescan

	// Books.
	books           map[int64]map[string]model.BookEntry
	lastDeleteClock map[int64]int64
	tops            map[int64]model.BookTop
	clocks          map[int64]int64 // absent = UNLOADED, clockLoading = LOADING
	needsReload     map[int64]bool
	staleBooks      map[int64]int64 // staleness debounce set from the last sweep

	// Own-order identity. everMine is append-only for process lifetime.
	mpid        string
	cid         int64
	myOrders    map[string]bool
	everMine    map[string]bool
	myCancelled map[string]bool
	stash       map[int64][]schema.ActionReport

	// Positions, balances, trades.
	positions     map[int64]*model.Position
	toUpdateBasis map[int64]bool
	basisRetries  map[int64]int
	balances      model.Balances
	lastTrade     map[int64]model.LastTrade
	costsToClose  map[int64]model.CostToClose

	// Heartbeat and deferred work.
	lastHeartbeat *schema.Heartbeat
	tasks         []*delayedTask

	// Global resync window.
	queueOpen bool
	queue     []schema.Event

	// Counters.
	handleCounts  map[schema.Kind]int64
	topMismatches int64
	staleIgnored  int64
	gapReloads    int64
	sweepReloads  int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithIndicators sets the auxiliary indicator cache.
func WithIndicators(sink IndicatorSink) Option {
	return func(e *Engine) { e.indicators = sink }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given snapshot client.
func New(cfg Config, client SnapshotClient, opts ...Option) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		cfg:    cfg,
		client: client,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.clearLocked()
	return e
}

// clearLocked resets all market state. The last observed trades survive a
// clear, matching how a resync must not forget the tape.
func (e *Engine) clearLocked() {
	e.logger.Info("clearing market state")
	e.contracts = make(map[int64]*model.Contract)
	e.expired = make(map[int64]bool)
	e.traded = make(map[int64]bool)
	e.labelToID = make(map[string]int64)
	e.putCallMap = make(map[int64]int64)
	e.expDates = nil
	e.expStrikes = make(map[string]map[string][]int64)
	e.nextDay = make(map[string]int64)

	e.books = make(map[int64]map[string]model.BookEntry)
	e.lastDeleteClock = make(map[int64]int64)
	e.tops = make(map[int64]model.BookTop)
	e.clocks = make(map[int64]int64)
	e.needsReload = make(map[int64]bool)
	e.staleBooks = make(map[int64]int64)

	e.mpid = ""
	e.cid = 0
	e.myOrders = make(map[string]bool)
	e.everMine = make(map[string]bool)
	e.myCancelled = make(map[string]bool)
	e.stash = make(map[int64][]schema.ActionReport)

	e.positions = make(map[int64]*model.Position)
	e.toUpdateBasis = make(map[int64]bool)
	e.basisRetries = make(map[int64]int)
	e.balances = make(model.Balances)
	if e.lastTrade == nil {
		e.lastTrade = make(map[int64]model.LastTrade)
	}
	e.costsToClose = make(map[int64]model.CostToClose)

	e.lastHeartbeat = nil
	e.tasks = nil
	if e.handleCounts == nil {
		e.handleCounts = make(map[schema.Kind]int64)
	}
}

// Active reports whether the engine considers its view live.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Deactivate clears the active flag; loops exit at their next check.
func (e *Engine) Deactivate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = false
}

// Stats returns current engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	counts := make(map[schema.Kind]int64, len(e.handleCounts))
	for k, v := range e.handleCounts {
		counts[k] = v
	}

	var lastTicks int64
	if e.lastHeartbeat != nil {
		lastTicks = e.lastHeartbeat.Ticks
	}

	return Stats{
		Active:        e.active,
		Mpid:          e.mpid,
		Contracts:     len(e.contracts),
		ExpiredCount:  len(e.expired),
		TrackedBooks:  len(e.books),
		OpenOwnOrders: len(e.myOrders),
		EverMine:      len(e.everMine),
		Positions:     len(e.positions),
		PendingBasis:  len(e.toUpdateBasis),
		QueueDepth:    len(e.queue),
		QueueOpen:     e.queueOpen,
		PendingTasks:  len(e.tasks),
		TopMismatches: e.topMismatches,
		StaleIgnored:  e.staleIgnored,
		GapReloads:    e.gapReloads,
		SweepReloads:  e.sweepReloads,
		HandleCounts:  counts,
		LastHeartbeat: lastTicks,
	}
}
