package state

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/a-re/ledgerx-go/internal/api"
	"github.com/a-re/ledgerx-go/internal/model"
)

// reloadBooksLocked fetches a fresh book snapshot for one contract. The
// contract clock is parked at the loading sentinel for the duration, so
// concurrent reloads coalesce and incoming events route to the queue or the
// own-order stash. On failure the contract reverts to unloaded and is picked
// up by a later sweep.
func (e *Engine) reloadBooksLocked(ctx context.Context, contractID int64) error {
	if e.clocks[contractID] == clockLoading {
		return nil
	}
	e.clocks[contractID] = clockLoading
	delete(e.needsReload, contractID)

	e.mu.Unlock()
	snap, err := e.client.GetBookStates(ctx, contractID)
	e.mu.Lock()

	if e.clocks[contractID] != clockLoading {
		// The view was reset while we were away; this snapshot belongs to
		// the old world.
		return nil
	}
	if err != nil {
		delete(e.clocks, contractID)
		return fmt.Errorf("book snapshot for contract %d: %w", contractID, err)
	}
	e.mergeSnapshotLocked(snap)
	return nil
}

// reloadBooks is the lock-taking form used by bulk-load workers.
func (e *Engine) reloadBooks(ctx context.Context, contractID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reloadBooksLocked(ctx, contractID)
}

// LoadMarket bootstraps or rebuilds the entire view from snapshots.
func (e *Engine) LoadMarket(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadMarketLocked(ctx)
}

// loadMarketLocked bootstraps the whole view: contracts, own open orders,
// positions, balances-adjacent caches, then every live book in bounded
// parallel. The global action queue is open for the duration and drained at
// the end, so stream events observed mid-load land after the snapshots they
// postdate.
func (e *Engine) loadMarketLocked(ctx context.Context) error {
	e.logger.Info("loading market")
	e.bootstrapping = true
	defer func() { e.bootstrapping = false }()

	e.clearLocked()
	opener := e.openQueueLocked()

	e.mu.Unlock()
	contracts, err := e.client.ListContracts(ctx, api.ListContractsOptions{})
	e.mu.Lock()
	if err != nil {
		return fmt.Errorf("list contracts: %w", err)
	}
	for _, c := range contracts {
		e.addContractLocked(c)
	}
	e.logger.Info("contracts loaded",
		"contracts", len(e.contracts), "expired", len(e.expired))

	e.mu.Unlock()
	open, err := e.client.ListOpenOrders(ctx)
	e.mu.Lock()
	if err != nil {
		return fmt.Errorf("list open orders: %w", err)
	}
	for _, o := range open {
		if e.mpid == "" && o.Mpid != "" {
			e.mpid = o.Mpid
			e.cid = o.Cid
		}
		e.myOrders[o.Mid] = true
		e.everMine[o.Mid] = true
	}

	e.mu.Unlock()
	traded, tradedErr := e.client.ListTradedContracts(ctx)
	e.mu.Lock()
	if tradedErr != nil {
		// Non-fatal: the traded set only prioritizes sweeps.
		e.logger.Warn("list traded contracts failed", "error", tradedErr)
	}
	for _, c := range traded {
		e.addContractLocked(c)
		if !e.expired[c.ID] {
			e.traded[c.ID] = true
		}
	}

	if err := e.refreshAllPositionsLocked(ctx); err != nil {
		return fmt.Errorf("load positions: %w", err)
	}

	e.seedLastTradesLocked(ctx)

	if err := e.bulkLoadBooksLocked(ctx); err != nil {
		return err
	}

	for contractID := range e.toUpdateBasis {
		e.scheduleBasisUpdateLocked(contractID, e.cfg.BasisDelayTicks)
	}

	if opener {
		if err := e.drainQueueLocked(ctx); err != nil {
			return fmt.Errorf("drain bootstrap queue: %w", err)
		}
	}
	e.active = true
	e.logger.Info("market loaded",
		"books", len(e.books), "open_orders", len(e.myOrders),
		"positions", len(e.positions), "mpid", e.mpid)
	return nil
}

// lastTradeSeedWindow bounds how far back the tape seed reaches at
// bootstrap; anything older has no bearing on a live view.
const lastTradeSeedWindow = 24 * time.Hour

// seedLastTradesLocked primes the newest-trade-per-contract table from the
// recent global tape so queries are answerable before the stream delivers a
// fresh cross. Failure is non-fatal: the table fills in from the stream.
func (e *Engine) seedLastTradesLocked(ctx context.Context) {
	since := e.now().Add(-lastTradeSeedWindow)
	newest := make(map[int64]model.LastTrade)

	e.mu.Unlock()
	err := e.client.ListGlobalTrades(ctx, api.ListGlobalTradesOptions{After: since},
		func(page []api.GlobalTrade) error {
			for _, t := range page {
				if held, ok := newest[t.ContractID]; ok && held.Timestamp >= t.Timestamp {
					continue
				}
				newest[t.ContractID] = model.LastTrade{
					ContractID:  t.ContractID,
					FilledPrice: t.FilledPrice,
					FilledSize:  t.FilledSize,
					IsAsk:       t.Side == "ask",
					Timestamp:   t.Timestamp,
				}
			}
			return nil
		})
	e.mu.Lock()
	if err != nil {
		e.logger.Warn("global trade tape seed failed", "error", err)
		return
	}
	for contractID, t := range newest {
		if held, ok := e.lastTrade[contractID]; ok && held.Timestamp >= t.Timestamp {
			continue
		}
		e.lastTrade[contractID] = t
	}
	e.logger.Info("last trades seeded", "contracts", len(newest))
}

// bulkLoadBooksLocked loads every non-expired contract's book with a bounded
// worker pool. The engine lock is released while the pool runs; each worker
// takes it per contract.
func (e *Engine) bulkLoadBooksLocked(ctx context.Context) error {
	ids := make([]int64, 0, len(e.contracts))
	for id := range e.contracts {
		if !e.expired[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	e.mu.Unlock()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BulkLoadParallel)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := e.reloadBooks(gctx, id); err != nil {
				// Individual books retry on the sweep; only a dead context
				// aborts the bootstrap.
				e.logger.Warn("bulk book load failed", "contract_id", id, "error", err)
			}
			return gctx.Err()
		})
	}
	err := g.Wait()
	e.mu.Lock()
	if err != nil {
		return fmt.Errorf("bulk book load: %w", err)
	}
	return nil
}

// sweepLocked is the per-heartbeat staleness pass. A book is a candidate
// when its stored top's clock is ahead of the contract clock, or when it was
// flagged for reload; a candidate becomes a reload only when it was already
// a candidate at the same clock on the previous sweep, so a book that is
// merely catching up is left alone. Work is bounded per tick.
func (e *Engine) sweepLocked(ctx context.Context) error {
	budget := e.cfg.MaxReloadsPerTick

	// Positions missing basis are re-examined first; they are few and the
	// money is wrong until they settle.
	for contractID := range e.toUpdateBasis {
		if budget == 0 {
			break
		}
		if !e.hasScheduledTaskLocked(basisTaskName(contractID)) {
			e.scheduleBasisUpdateLocked(contractID, e.cfg.BasisDelayTicks)
			budget--
		}
	}

	candidates := make(map[int64]int64)
	var reload []int64
	for id := range e.contracts {
		if len(candidates) >= budget {
			break
		}
		if e.expired[id] {
			continue
		}
		clock, loaded := e.clocks[id]
		if loaded && clock == clockLoading {
			continue
		}
		stale := false
		switch {
		case e.needsReload[id]:
			stale = true
		case !loaded:
			// Unloaded books only matter once something referenced them.
			if e.traded[id] || len(e.stash[id]) > 0 {
				stale = true
			}
		default:
			if top, ok := e.tops[id]; ok && top.Clock > clock {
				stale = true
			}
		}
		if !stale {
			continue
		}
		candidates[id] = clock
		if prev, seen := e.staleBooks[id]; e.needsReload[id] || !loaded || (seen && prev == clock) {
			reload = append(reload, id)
		}
	}
	e.staleBooks = candidates

	if len(reload) == 0 {
		return nil
	}
	e.sweepReloads += int64(len(reload))
	e.logger.Info("reloading stale books", "count", len(reload))

	opener := e.openQueueLocked()
	for _, id := range reload {
		if err := e.reloadBooksLocked(ctx, id); err != nil {
			e.logger.Warn("stale book reload failed", "contract_id", id, "error", err)
		}
	}
	if opener {
		return e.drainQueueLocked(ctx)
	}
	return nil
}
