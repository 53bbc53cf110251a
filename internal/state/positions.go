package state

import (
	"context"
	"fmt"

	"github.com/a-re/ledgerx-go/internal/model"
	"github.com/a-re/ledgerx-go/internal/schema"
)

// applyOwnFillLocked updates the trader's position for one of their own
// fills. Size moves immediately; basis is adjusted in place only when it is
// already authoritative, otherwise a delayed recomputation is scheduled
// against the venue's eventually-consistent trade history.
func (e *Engine) applyOwnFillLocked(order schema.ActionReport, contract *model.Contract) {
	pos, ok := e.positions[order.ContractID]
	if !ok {
		pos = &model.Position{ContractID: order.ContractID}
		e.positions[order.ContractID] = pos
	}

	if order.IsAsk {
		pos.Size -= order.FilledSize
	} else {
		pos.Size += order.FilledSize
	}

	if pos.HasBasis {
		multiplier := contract.Multiplier
		if multiplier <= 0 {
			multiplier = 1
		}
		premium := order.FilledSize * order.FilledPrice / multiplier
		fee := model.Fee(order.FilledPrice, order.FilledSize)
		if order.IsAsk {
			pos.Basis += fee - premium
		} else {
			pos.Basis += fee + premium
		}
	} else {
		e.markBasisStaleLocked(order.ContractID)
	}

	e.logger.Info("own fill",
		"contract_id", order.ContractID, "mid", order.Mid,
		"filled_price", order.FilledPrice, "filled_size", order.FilledSize,
		"is_ask", order.IsAsk, "size", pos.Size)
}

// handleOpenPositionsLocked reconciles a pushed positions snapshot. Pushed
// sizes win; basis survives only when the push agrees with what we hold.
func (e *Engine) handleOpenPositionsLocked(ctx context.Context, ev schema.OpenPositions) (bool, error) {
	changed := false
	for _, row := range ev.Positions {
		if _, err := e.retrieveContractLocked(ctx, row.ContractID); err != nil {
			e.logger.Warn("position for unfetchable contract",
				"contract_id", row.ContractID, "error", err)
			continue
		}

		pos, ok := e.positions[row.ContractID]
		if !ok {
			if row.Size == 0 && row.ExercisedSize == 0 {
				continue
			}
			e.positions[row.ContractID] = &model.Position{
				ContractID:    row.ContractID,
				Size:          row.Size,
				ExercisedSize: row.ExercisedSize,
			}
			e.markBasisStaleLocked(row.ContractID)
			changed = true
			continue
		}

		if pos.Size != row.Size || pos.ExercisedSize != row.ExercisedSize {
			e.logger.Info("position updated by push",
				"contract_id", row.ContractID,
				"size", row.Size, "held_size", pos.Size,
				"exercised", row.ExercisedSize)
			pos.Size = row.Size
			pos.ExercisedSize = row.ExercisedSize
			pos.HasBasis = false
			changed = true
		}
		if !pos.HasBasis {
			e.markBasisStaleLocked(row.ContractID)
		}
	}
	return changed, nil
}

// markBasisStaleLocked flags a contract's basis for recomputation and
// schedules the delayed task if none is pending.
func (e *Engine) markBasisStaleLocked(contractID int64) {
	e.toUpdateBasis[contractID] = true
	if !e.hasScheduledTaskLocked(basisTaskName(contractID)) {
		e.scheduleBasisUpdateLocked(contractID, e.cfg.BasisDelayTicks)
	}
}

func basisTaskName(contractID int64) string {
	return fmt.Sprintf("basis:%d", contractID)
}

// scheduleBasisUpdateLocked queues a basis recomputation to fire after the
// given number of heartbeats.
func (e *Engine) scheduleBasisUpdateLocked(contractID int64, delayTicks int) {
	name := basisTaskName(contractID)
	if e.hasScheduledTaskLocked(name) {
		return
	}
	e.scheduleTaskLocked(name, delayTicks, func(ctx context.Context) {
		e.recomputeBasis(ctx, contractID)
	})
}

// refreshAllPositionsLocked replaces the position table from the REST
// snapshot. Basis carries over only for rows whose size and exercised size
// are unchanged.
func (e *Engine) refreshAllPositionsLocked(ctx context.Context) error {
	e.mu.Unlock()
	records, err := e.client.ListAllPositions(ctx)
	e.mu.Lock()
	if err != nil {
		return err
	}

	fresh := make(map[int64]*model.Position, len(records))
	for _, rec := range records {
		e.addContractLocked(rec.Contract)
		if e.cfg.SkipExpired && e.expired[rec.Contract.ID] {
			continue
		}
		p := rec.Position
		p.ContractID = rec.Contract.ID
		if old, ok := e.positions[p.ContractID]; ok && old.HasBasis &&
			old.Size == p.Size && old.ExercisedSize == p.ExercisedSize {
			p.Basis = old.Basis
			p.HasBasis = true
		}
		fresh[p.ContractID] = &p
		if !p.HasBasis && (p.Size != 0 || p.ExercisedSize != 0) {
			e.toUpdateBasis[p.ContractID] = true
		}
	}
	e.positions = fresh
	return nil
}

// recomputeBasis rebuilds one position's basis from the venue's trade
// history. The history is eventually consistent: when the rebuilt size
// disagrees with the live position, the task is reissued after a further
// delay, up to the retry bound.
func (e *Engine) recomputeBasis(ctx context.Context, contractID int64) {
	e.mu.Lock()
	pos, ok := e.positions[contractID]
	if ok && pos.PositionID == 0 {
		// A position created by a live fill has no venue id until the
		// positions endpoint is consulted again.
		if err := e.refreshAllPositionsLocked(ctx); err != nil {
			e.logger.Warn("positions refresh for basis recompute failed",
				"contract_id", contractID, "error", err)
		}
		pos, ok = e.positions[contractID]
	}
	if !ok || pos.PositionID == 0 {
		if ok {
			e.retryBasisLocked(contractID, "position id unknown")
		} else {
			delete(e.toUpdateBasis, contractID)
			delete(e.basisRetries, contractID)
		}
		e.mu.Unlock()
		return
	}
	positionID := pos.PositionID
	liveSize := pos.Size
	e.mu.Unlock()

	trades, err := e.client.ListPositionTrades(ctx, positionID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.logger.Warn("position trade history fetch failed",
			"contract_id", contractID, "error", err)
		e.retryBasisLocked(contractID, "fetch failed")
		return
	}

	size, basis := replayTrades(trades)

	pos, ok = e.positions[contractID]
	if !ok {
		delete(e.toUpdateBasis, contractID)
		delete(e.basisRetries, contractID)
		return
	}
	if size != pos.Size {
		// The history has not caught up to the fills we already saw, or a
		// fill happened while we were fetching.
		if liveSize != pos.Size {
			e.retryBasisLocked(contractID, "position moved during recompute")
			return
		}
		e.retryBasisLocked(contractID, "trade history behind live size")
		return
	}

	pos.Basis = basis
	pos.HasBasis = true
	delete(e.toUpdateBasis, contractID)
	delete(e.basisRetries, contractID)
	e.logger.Info("basis recomputed",
		"contract_id", contractID, "size", size, "basis", basis)
}

// retryBasisLocked reissues a recomputation after a further delay, bounded
// by the retry limit. Past the limit the stale flag persists and only a
// future positions push restarts the cycle.
func (e *Engine) retryBasisLocked(contractID int64, reason string) {
	e.basisRetries[contractID]++
	if e.basisRetries[contractID] > e.cfg.BasisMaxRetries {
		e.logger.Warn("basis recomputation giving up",
			"contract_id", contractID, "reason", reason,
			"attempts", e.basisRetries[contractID])
		delete(e.basisRetries, contractID)
		return
	}
	e.logger.Info("basis recomputation deferred",
		"contract_id", contractID, "reason", reason,
		"attempt", e.basisRetries[contractID])
	e.scheduleBasisUpdateLocked(contractID, e.cfg.BasisDelayTicks)
}

// replayTrades folds a position's trade history into a net size and basis.
// Basis accumulates fee minus rebate plus signed premium, and resets to zero
// whenever the running size crosses or touches zero, so a flat book carries
// no phantom cost.
func replayTrades(trades []model.PositionTrade) (size, basis int64) {
	for _, t := range trades {
		prev := size
		if t.Side == "ask" {
			size -= t.FilledSize
			basis += t.Fee - t.Rebate - t.Premium
		} else {
			size += t.FilledSize
			basis += t.Fee - t.Rebate + t.Premium
		}
		if size == 0 || (prev > 0 && size < 0) || (prev < 0 && size > 0) {
			basis = 0
		}
	}
	return size, basis
}
