package state

import (
	"context"

	"github.com/a-re/ledgerx-go/internal/model"
	"github.com/a-re/ledgerx-go/internal/schema"
)

// insertEntryLocked stores one resting order. Re-insertion of a known mid is
// logged and overwritten, never double-counted.
func (e *Engine) insertEntryLocked(entry model.BookEntry) {
	book, ok := e.books[entry.ContractID]
	if !ok {
		book = make(map[string]model.BookEntry)
		e.books[entry.ContractID] = book
	}
	if old, ok := book[entry.Mid]; ok && old.Clock != entry.Clock {
		e.logger.Warn("reinserting existing book order",
			"contract_id", entry.ContractID, "mid", entry.Mid,
			"old_clock", old.Clock, "clock", entry.Clock)
	}
	book[entry.Mid] = entry
}

// removeEntryLocked drops a resting order and records the removal clock so
// the synthetic top still advances past a deletion.
func (e *Engine) removeEntryLocked(contractID int64, mid string, clock int64) {
	if book, ok := e.books[contractID]; ok {
		delete(book, mid)
	}
	if clock > e.lastDeleteClock[contractID] {
		e.lastDeleteClock[contractID] = clock
	}
}

// entryFromOrder builds the resting form of an insert-type action report.
// Cross reports carry the surviving size in inserted_size; a zero inserted
// size on a cross means the order traded away entirely.
func entryFromOrder(order schema.ActionReport) (model.BookEntry, bool) {
	price, size := order.Price, order.Size
	if order.StatusType == schema.StatusCross {
		price, size = order.InsertedPrice, order.InsertedSize
		if size == 0 {
			return model.BookEntry{}, false
		}
	}
	if size <= 0 {
		return model.BookEntry{}, false
	}
	return model.BookEntry{
		Mid:        order.Mid,
		ContractID: order.ContractID,
		Price:      price,
		Size:       size,
		IsAsk:      order.IsAsk,
		Clock:      order.Clock,
	}, true
}

// replaceExistingLocked applies a fill to the stored copy of a resting
// order: decrement by filled size, remove at zero. A negative remainder or a
// zero remainder without the full-fill reason means our copy disagreed with
// the venue, so the book is flagged for reload.
func (e *Engine) replaceExistingLocked(order schema.ActionReport) {
	book := e.books[order.ContractID]
	stored, ok := book[order.Mid]
	if !ok {
		// Crossed against an order we never saw rest (market order or a
		// pre-snapshot resident). Nothing to decrement.
		return
	}

	remaining := stored.Size - order.FilledSize
	switch {
	case remaining < 0:
		e.logger.Warn("fill exceeds resting size, flagging reload",
			"contract_id", order.ContractID, "mid", order.Mid,
			"resting", stored.Size, "filled", order.FilledSize)
		e.removeEntryLocked(order.ContractID, order.Mid, order.Clock)
		e.needsReload[order.ContractID] = true
	case remaining == 0:
		if order.StatusReason != schema.ReasonFullFill {
			e.logger.Warn("resting order emptied without full-fill reason, flagging reload",
				"contract_id", order.ContractID, "mid", order.Mid,
				"status_reason", order.StatusReason)
			e.needsReload[order.ContractID] = true
		}
		e.removeEntryLocked(order.ContractID, order.Mid, order.Clock)
	default:
		stored.Size = remaining
		stored.Clock = order.Clock
		book[order.Mid] = stored
	}
}

// syntheticTopLocked scans a book for its best bid and ask. The clock is the
// maximum over all entries and the last removal, so a freshly emptied book
// still reports how current it is. The second result is false when the book
// has never been loaded.
func (e *Engine) syntheticTopLocked(contractID int64, excludeMine bool) (model.BookTop, bool) {
	book, ok := e.books[contractID]
	if !ok {
		return model.BookTop{}, false
	}
	top := model.BookTop{
		ContractID: contractID,
		Clock:      e.lastDeleteClock[contractID],
		Synthetic:  true,
	}
	for mid, entry := range book {
		if entry.Clock > top.Clock {
			top.Clock = entry.Clock
		}
		if excludeMine && e.everMine[mid] {
			continue
		}
		if entry.IsAsk {
			if top.Ask == 0 || entry.Price < top.Ask {
				top.Ask = entry.Price
			}
		} else {
			if entry.Price > top.Bid {
				top.Bid = entry.Price
			}
		}
	}
	return top, true
}

// checkBookTopLocked cross-validates a top-of-book against the stored one
// under same-or-zero-or-absent equivalence. The higher clock wins the stored
// slot; an equal-clock price mismatch keeps the stored value and is only
// counted and logged, because neither source is more authoritative.
func (e *Engine) checkBookTopLocked(top model.BookTop) bool {
	stored, ok := e.tops[top.ContractID]
	if !ok || top.Clock > stored.Clock {
		e.tops[top.ContractID] = top
		return true
	}
	if top.Clock < stored.Clock {
		return true
	}
	if model.SameOrAbsent(top.Bid, stored.Bid) && model.SameOrAbsent(top.Ask, stored.Ask) {
		return true
	}
	e.topMismatches++
	e.logger.Warn("book top mismatch at equal clock",
		"contract_id", top.ContractID, "clock", top.Clock,
		"bid", top.Bid, "ask", top.Ask,
		"stored_bid", stored.Bid, "stored_ask", stored.Ask,
		"stored_synthetic", stored.Synthetic)
	return false
}

// refreshTopLocked recomputes the synthetic top after a book mutation and
// runs it through cross-validation.
func (e *Engine) refreshTopLocked(contractID int64) {
	if top, ok := e.syntheticTopLocked(contractID, false); ok {
		e.checkBookTopLocked(top)
	}
}

// handleBookTopLocked applies a stream-delivered top update. A top for an
// unknown contract fetches the contract and kicks off a book load; the
// update itself is dropped, since the snapshot supersedes it.
func (e *Engine) handleBookTopLocked(ctx context.Context, ev schema.BookTop) (bool, error) {
	if ev.ContractID == 0 {
		return false, nil
	}
	if _, known := e.contracts[ev.ContractID]; !known {
		if _, err := e.retrieveContractLocked(ctx, ev.ContractID); err != nil {
			e.logger.Warn("book top for unfetchable contract",
				"contract_id", ev.ContractID, "error", err)
			return false, nil
		}
		if e.expired[ev.ContractID] {
			return false, nil
		}
		if err := e.reloadBooksLocked(ctx, ev.ContractID); err != nil {
			e.logger.Warn("book load after first top failed",
				"contract_id", ev.ContractID, "error", err)
		}
		return false, nil
	}
	return e.checkBookTopLocked(model.BookTop{
		ContractID: ev.ContractID,
		Bid:        ev.Bid,
		Ask:        ev.Ask,
		Clock:      ev.Clock,
	}), nil
}

// mergeSnapshotLocked replaces a contract's book with a fetched snapshot.
// The contract clock becomes the snapshot's synthetic top clock. If the
// snapshot disagrees with a same-clock stored top the book is flagged so the
// next sweep fetches again.
func (e *Engine) mergeSnapshotLocked(snap model.BookSnapshot) {
	book := make(map[string]model.BookEntry, len(snap.Entries))
	for _, entry := range snap.Entries {
		if entry.Size <= 0 {
			continue
		}
		book[entry.Mid] = entry
	}
	e.books[snap.ContractID] = book

	top, _ := e.syntheticTopLocked(snap.ContractID, false)
	e.clocks[snap.ContractID] = top.Clock
	if !e.checkBookTopLocked(top) {
		e.needsReload[snap.ContractID] = true
	} else {
		delete(e.needsReload, snap.ContractID)
	}
}
