package state

import (
	"sort"

	"github.com/a-re/ledgerx-go/internal/model"
)

// BookTop returns the current cross-validated top for a contract.
func (e *Engine) BookTop(contractID int64) (model.BookTop, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	top, ok := e.tops[contractID]
	return top, ok
}

// SyntheticTop recomputes the top from the tracked book, optionally
// excluding the trader's own resting orders.
func (e *Engine) SyntheticTop(contractID int64, excludeMine bool) (model.BookTop, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syntheticTopLocked(contractID, excludeMine)
}

// EstimatedTop returns the freshest view of a contract's top, picking
// whichever of the cross-validated stored top and the synthetic book scan
// carries the higher clock.
func (e *Engine) EstimatedTop(contractID int64) (model.BookTop, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stored, haveStored := e.tops[contractID]
	synth, haveSynth := e.syntheticTopLocked(contractID, false)
	switch {
	case haveStored && haveSynth:
		if synth.Clock > stored.Clock {
			return synth, true
		}
		return stored, true
	case haveStored:
		return stored, true
	case haveSynth:
		return synth, true
	}
	return model.BookTop{}, false
}

// NextBestBook returns the best price on one side of a book ignoring the
// trader's own orders, for quoting without self-reference.
func (e *Engine) NextBestBook(contractID int64, isAsk bool) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	top, ok := e.syntheticTopLocked(contractID, true)
	if !ok {
		return 0, false
	}
	if isAsk {
		return top.Ask, top.Ask > 0
	}
	return top.Bid, top.Bid > 0
}

// BookBottom returns the worst resting price on one side of a book.
func (e *Engine) BookBottom(contractID int64, isAsk bool) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	book, ok := e.books[contractID]
	if !ok {
		return 0, false
	}
	var worst int64
	for _, entry := range book {
		if entry.IsAsk != isAsk {
			continue
		}
		if worst == 0 || (isAsk && entry.Price > worst) || (!isAsk && entry.Price < worst) {
			worst = entry.Price
		}
	}
	return worst, worst > 0
}

// BookEntries returns a copy of the tracked book for a contract, sorted by
// price then mid for deterministic iteration.
func (e *Engine) BookEntries(contractID int64) []model.BookEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	book, ok := e.books[contractID]
	if !ok {
		return nil
	}
	out := make([]model.BookEntry, 0, len(book))
	for _, entry := range book {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].Mid < out[j].Mid
	})
	return out
}

// ContractClock returns the reconciliation clock for a contract. The second
// result is false while the book is unloaded or loading.
func (e *Engine) ContractClock(contractID int64) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	clock, ok := e.clocks[contractID]
	if !ok || clock == clockLoading {
		return 0, false
	}
	return clock, true
}

// Position returns a copy of the trader's position in a contract.
func (e *Engine) Position(contractID int64) (model.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[contractID]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all tracked positions.
func (e *Engine) Positions() []model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractID < out[j].ContractID })
	return out
}

// LastTrade returns the most recent observed trade on a contract.
func (e *Engine) LastTrade(contractID int64) (model.LastTrade, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.lastTrade[contractID]
	return t, ok
}

// MyOrders returns the mids of the trader's currently resting orders.
func (e *Engine) MyOrders() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.myOrders))
	for mid := range e.myOrders {
		out = append(out, mid)
	}
	sort.Strings(out)
	return out
}

// IsMine reports whether an order mid has ever been recognized as the
// trader's own.
func (e *Engine) IsMine(mid string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.everMine[mid]
}

// Mpid returns the trader identity learned from the stream, empty until the
// first own tagged report or open-order snapshot.
func (e *Engine) Mpid() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mpid
}

// Balance returns one raw balance cell, such as
// ("available_balances", "USD").
func (e *Engine) Balance(class, asset string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[class][asset]
}

// HaveAvailable reports whether at least units of an asset are available,
// converting through the asset's venue divisor.
func (e *Engine) HaveAvailable(asset string, units int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	conv, ok := model.AssetUnits[asset]
	if !ok {
		return false
	}
	return e.balances["available_balances"][asset] >= units*conv
}

// CostToClose values flattening the position in one contract against its
// current top. All dollar fields are truncated to whole dollars.
func (e *Engine) CostToClose(contractID int64) (model.CostToClose, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.costToCloseLocked(contractID)
}

func (e *Engine) costToCloseLocked(contractID int64) (model.CostToClose, bool) {
	pos, ok := e.positions[contractID]
	if !ok || pos.Size == 0 {
		return model.CostToClose{}, false
	}
	contract, ok := e.contracts[contractID]
	if !ok {
		return model.CostToClose{}, false
	}
	top, ok := e.tops[contractID]
	if !ok {
		return model.CostToClose{}, false
	}

	multiplier := contract.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	mid := top.Mid()
	// The closing fee is quoted once at the mid and added into the signed
	// valuation: basis already carries fees as costs, so the venue nets
	// them out here rather than charging them twice.
	fee := model.Fee(mid, pos.Size)
	// Signed dollars of unwinding at the given price. A long sells and
	// receives, a short buys and pays.
	value := func(price int64) int64 {
		return (fee + pos.Size*price/multiplier) / model.ConvUSD
	}

	crossing := top.Bid
	if pos.Size < 0 {
		crossing = top.Ask
	}

	ctc := model.CostToClose{
		ContractID: contractID,
		Size:       pos.Size,
		Bid:        top.Bid,
		Ask:        top.Ask,
		Fee:        fee / model.ConvUSD,
		Cost:       value(mid),
		HasBasis:   pos.HasBasis,
	}
	low, high := value(top.Bid), value(top.Ask)
	if low > high {
		low, high = high, low
	}
	ctc.Low, ctc.High = low, high
	if pos.HasBasis {
		ctc.Basis = pos.Basis / model.ConvUSD
		ctc.Net = value(crossing) - ctc.Basis
	}
	e.costsToClose[contractID] = ctc
	return ctc, true
}

// NetCostToCloseAll sums the basis-adjusted unwind value across every
// position with a live top, in whole dollars. The second result is the
// number of positions that could not be valued.
func (e *Engine) NetCostToCloseAll() (total int64, unvalued int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for contractID, pos := range e.positions {
		if pos.Size == 0 {
			continue
		}
		ctc, ok := e.costToCloseLocked(contractID)
		if !ok || !ctc.HasBasis {
			unvalued++
			continue
		}
		total += ctc.Net
	}
	return total, unvalued
}
