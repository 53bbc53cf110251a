package state

import (
	"context"

	"github.com/a-re/ledgerx-go/internal/model"
	"github.com/a-re/ledgerx-go/internal/schema"
)

// noteOwnOrderLocked decides whether an action report describes the trader's
// own order. The first mpid-tagged report bootstraps the trader identity;
// every own mid is remembered for process lifetime so the untagged duplicate
// of the same report is still recognized.
func (e *Engine) noteOwnOrderLocked(order schema.ActionReport) bool {
	if order.Mpid != "" {
		if e.mpid == "" {
			e.mpid = order.Mpid
			e.cid = order.Cid
			e.logger.Info("learned trader identity", "mpid", e.mpid, "cid", e.cid)
		}
		if order.Mpid == e.mpid {
			e.everMine[order.Mid] = true
			return true
		}
		return false
	}
	return e.everMine[order.Mid]
}

// resolveStashLocked runs the out-of-order buffer protocol for a contract
// whose buffer is non-empty. It may rewrite order (consuming the buffered
// mpid-tagged copy), swallow the event into the buffer, or flush the buffer
// and force a reload. The second result is false when the caller should stop
// processing this event.
func (e *Engine) resolveStashLocked(ctx context.Context, order schema.ActionReport) (schema.ActionReport, bool, error) {
	buf := e.stash[order.ContractID]
	first, last := buf[0], buf[len(buf)-1]

	switch {
	case order.Clock < first.Clock:
		// The live stream is still replaying events below the buffered
		// range. Let normal gating apply them.
		return order, true, nil

	case order.Clock == first.Clock:
		if order.StatusType == first.StatusType && order.Mid == first.Mid {
			// The stream caught up to the buffered event. Use the buffered
			// copy, which carries the mpid.
			e.logger.Info("consuming stashed own order",
				"contract_id", order.ContractID, "clock", order.Clock, "mid", order.Mid)
			e.stash[order.ContractID] = buf[1:]
			if len(buf) == 1 {
				delete(e.stash, order.ContractID)
			}
			return first, true, nil
		}
		return order, false, e.flushStashLocked(ctx, order.ContractID)

	case order.Clock == last.Clock+1:
		e.stash[order.ContractID] = append(buf, order)
		return order, false, nil

	default:
		// The buffer itself is out of order relative to the stream.
		return order, false, e.flushStashLocked(ctx, order.ContractID)
	}
}

// flushStashLocked replays everything buffered for a contract through the
// dispatcher and then forces a book reload. Replayed events gate normally,
// so stale entries fall out and the snapshot settles the rest.
func (e *Engine) flushStashLocked(ctx context.Context, contractID int64) error {
	buf := e.stash[contractID]
	delete(e.stash, contractID)
	e.logger.Warn("flushing out-of-order stash and reloading",
		"contract_id", contractID, "buffered", len(buf))
	for _, b := range buf {
		if _, err := e.applyLocked(ctx, b, true); err != nil {
			return err
		}
	}
	return e.reloadBooksLocked(ctx, contractID)
}

// handleOrderLocked applies one action report through the per-contract clock
// gate.
func (e *Engine) handleOrderLocked(ctx context.Context, order schema.ActionReport) (bool, error) {
	if order.ContractID == 0 || order.Mid == "" {
		e.logger.Debug("discarding malformed action report", "mid", order.Mid)
		return false, nil
	}

	contract, err := e.retrieveContractLocked(ctx, order.ContractID)
	if err != nil {
		e.logger.Warn("action report for unfetchable contract",
			"contract_id", order.ContractID, "error", err)
		return false, nil
	}
	// The lock was released for the fetch; reread everything below.

	mine := e.noteOwnOrderLocked(order)

	if e.expired[order.ContractID] {
		if mine && order.IsRemoval() {
			delete(e.myOrders, order.Mid)
			e.myCancelled[order.Mid] = true
		}
		return false, nil
	}

	if mine && len(e.stash[order.ContractID]) > 0 {
		var proceed bool
		order, proceed, err = e.resolveStashLocked(ctx, order)
		if err != nil || !proceed {
			return false, err
		}
	}

	clock, loaded := e.clocks[order.ContractID]
	if loaded && clock == clockLoading {
		// A snapshot fetch is in flight. Own orders are buffered so their
		// identity is not lost; everything else is settled by the snapshot.
		if mine && order.Mpid != "" {
			e.stash[order.ContractID] = append(e.stash[order.ContractID], order)
		}
		return false, nil
	}

	if loaded && order.Clock <= clock {
		if mine && order.Mpid == "" {
			e.logger.Debug("skipping untagged duplicate of own order",
				"contract_id", order.ContractID, "clock", order.Clock, "mid", order.Mid)
		}
		e.staleIgnored++
		return false, nil
	}

	if !loaded || order.Clock > clock+1 {
		if mine && order.Mpid != "" {
			// Start buffering rather than reloading past our own order; the
			// snapshot would anonymize it.
			e.logger.Info("stashing out-of-order own order",
				"contract_id", order.ContractID, "clock", order.Clock,
				"contract_clock", clock, "mid", order.Mid)
			e.stash[order.ContractID] = append(e.stash[order.ContractID], order)
			return false, nil
		}
		e.gapReloads++
		e.logger.Info("clock gap, reloading book",
			"contract_id", order.ContractID, "clock", order.Clock, "contract_clock", clock)
		if err := e.reloadBooksLocked(ctx, order.ContractID); err != nil {
			e.logger.Warn("book reload failed",
				"contract_id", order.ContractID, "error", err)
			return false, nil
		}
		clock = e.clocks[order.ContractID]
		if order.Clock != clock+1 {
			// The snapshot already covers this event.
			return false, nil
		}
	}

	e.clocks[order.ContractID] = order.Clock
	e.applyOrderStatusLocked(order, contract, mine)
	e.refreshTopLocked(order.ContractID)
	return true, nil
}

// applyOrderStatusLocked mutates the book and own-order state for an
// in-sequence action report.
func (e *Engine) applyOrderStatusLocked(order schema.ActionReport, contract *model.Contract, mine bool) {
	switch {
	case order.StatusType == schema.StatusInserted:
		if entry, ok := entryFromOrder(order); ok {
			e.insertEntryLocked(entry)
		}
		if mine && order.Mpid != "" {
			e.myOrders[order.Mid] = true
		}

	case order.StatusType == schema.StatusCross:
		if mine && order.Mpid != "" {
			e.applyOwnFillLocked(order, contract)
		}
		e.lastTrade[order.ContractID] = model.LastTrade{
			ContractID:  order.ContractID,
			FilledPrice: order.FilledPrice,
			FilledSize:  order.FilledSize,
			IsAsk:       order.IsAsk,
			Mine:        mine,
			Timestamp:   order.UpdatedTime,
		}
		e.replaceExistingLocked(order)
		if entry, ok := entryFromOrder(order); ok {
			e.insertEntryLocked(entry)
			if mine && order.Mpid != "" {
				e.myOrders[order.Mid] = true
			}
		} else if mine {
			delete(e.myOrders, order.Mid)
		}

	case order.StatusType == schema.StatusNotFilled:
		e.logger.Debug("market order not filled",
			"contract_id", order.ContractID, "mid", order.Mid)
		if mine {
			delete(e.myOrders, order.Mid)
		}

	case order.StatusType == schema.StatusCancelReplace:
		e.removeEntryLocked(order.ContractID, order.Mid, order.Clock)
		if entry, ok := entryFromOrder(order); ok {
			e.insertEntryLocked(entry)
		}

	case order.IsRemoval():
		e.removeEntryLocked(order.ContractID, order.Mid, order.Clock)
		if mine {
			delete(e.myOrders, order.Mid)
			e.myCancelled[order.Mid] = true
			if order.StatusType >= schema.StatusRejectFloor &&
				order.StatusType != schema.StatusExpired {
				e.logger.Warn("own order rejected",
					"contract_id", order.ContractID, "mid", order.Mid,
					"status_type", order.StatusType, "status_reason", order.StatusReason)
			}
		}

	case order.StatusType == schema.StatusAck:
		e.logger.Debug("order acknowledged",
			"contract_id", order.ContractID, "mid", order.Mid)

	default:
		e.logger.Warn("unhandled action report status",
			"contract_id", order.ContractID, "mid", order.Mid,
			"status_type", order.StatusType)
	}
}
