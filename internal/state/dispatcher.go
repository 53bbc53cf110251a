package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/a-re/ledgerx-go/internal/schema"
)

// ErrIrregularHeartbeat is returned from Apply when heartbeat ticks do not
// advance by exactly one. The view cannot be trusted past this point; the
// caller is expected to tear down and restart.
var ErrIrregularHeartbeat = errors.New("state: heartbeat ticks did not advance by one")

// marketReloadTask names the deferred rebuild scheduled when a stream restart
// lands in the middle of a bootstrap. Deduplicated by name.
const marketReloadTask = "market-reload"

// Apply feeds one stream event into the engine. It reports whether the event
// mutated state; false means the event was queued, stale, buffered, or
// irrelevant. A non-nil error is a hard fault.
func (e *Engine) Apply(ctx context.Context, ev schema.Event) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyLocked(ctx, ev, false)
}

// applyLocked routes one event. While the global action queue is open, every
// event except a stream restart is appended instead of applied; force
// bypasses the queue during the drain.
func (e *Engine) applyLocked(ctx context.Context, ev schema.Event, force bool) (bool, error) {
	if e.queueOpen && !force && ev.Kind() != schema.KindWebsocketStarting {
		e.queue = append(e.queue, ev)
		return false, nil
	}
	e.handleCounts[ev.Kind()]++

	switch ev := ev.(type) {
	case schema.Heartbeat:
		return e.handleHeartbeatLocked(ctx, ev)
	case schema.ActionReport:
		return e.handleOrderLocked(ctx, ev)
	case schema.BookTop:
		return e.handleBookTopLocked(ctx, ev)
	case schema.OpenPositions:
		return e.handleOpenPositionsLocked(ctx, ev)
	case schema.CollateralBalance:
		e.balances = ev.Collateral
		return true, nil
	case schema.ContractAdded:
		e.addContractLocked(ev.Contract)
		return true, nil
	case schema.ContractRemoved:
		e.removeContractLocked(ev.Contract.ID)
		return true, nil
	case schema.TradeBusted:
		e.logger.Warn("trade busted",
			"contract_id", ev.ContractID, "trade_id", ev.TradeID)
		return false, nil
	case schema.WebsocketStarting:
		// The stream restarted under us. Anything queued belongs to the
		// previous connection and is discarded with the rest of the view.
		e.queue = nil
		if e.bootstrapping {
			// The load already in flight is stale. It finishes against the
			// still-open queue, and a scheduled rebuild replaces it.
			e.logger.Warn("stream restart during bootstrap, scheduling rebuild")
			if !e.hasScheduledTaskLocked(marketReloadTask) {
				e.scheduleTaskLocked(marketReloadTask, 1, func(ctx context.Context) {
					if err := e.LoadMarket(ctx); err != nil {
						e.logger.Error("market reload after restart failed", "error", err)
					}
				})
			}
			return false, nil
		}
		e.queueOpen = false
		if err := e.loadMarketLocked(ctx); err != nil {
			return false, fmt.Errorf("reload after stream restart: %w", err)
		}
		return true, nil
	case schema.WebsocketError:
		e.logger.Error("stream error", "error", ev.Err)
		e.active = false
		return false, nil
	case schema.Bitvol:
		if e.indicators != nil {
			e.indicators.UpdateBitvol(ev.Asset, ev.Value, ev.Time)
		}
		return true, nil
	case schema.Brave:
		if e.indicators != nil {
			e.indicators.UpdateSpot(ev.Asset, ev.Price, ev.Time)
		}
		return true, nil
	case schema.Unknown:
		e.logger.Debug("unhandled message type", "type", ev.Type)
		return false, nil
	default:
		e.logger.Warn("unroutable event", "kind", ev.Kind())
		return false, nil
	}
}

// openQueueLocked opens the global action queue if it is not already open,
// reporting whether this caller became the opener. Only the opener drains.
func (e *Engine) openQueueLocked() bool {
	if e.queueOpen {
		return false
	}
	e.queueOpen = true
	e.queue = nil
	return true
}

// drainQueueLocked replays everything queued during a resync window in
// arrival order, then closes the queue. The queue stays marked open during
// the drain so replayed heartbeats skip their heavy work.
func (e *Engine) drainQueueLocked(ctx context.Context) error {
	defer func() {
		e.queueOpen = false
		e.queue = nil
	}()
	for len(e.queue) > 0 {
		ev := e.queue[0]
		e.queue = e.queue[1:]
		if _, err := e.applyLocked(ctx, ev, true); err != nil {
			return err
		}
	}
	return nil
}
