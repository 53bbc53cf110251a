package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/a-re/ledgerx-go/internal/schema"
)

// handleHeartbeatLocked advances the heartbeat monitor. A tick that does not
// advance by exactly one is a hard fault: the stream dropped or duplicated
// frames and every clocked structure is suspect. A run id change means the
// venue restarted, which invalidates the whole view.
func (e *Engine) handleHeartbeatLocked(ctx context.Context, hb schema.Heartbeat) (bool, error) {
	if e.lastHeartbeat != nil {
		last := *e.lastHeartbeat
		if hb.RunID != last.RunID {
			e.logger.Warn("heartbeat run id changed, reloading market",
				"run_id", hb.RunID, "previous", last.RunID)
			if err := e.loadMarketLocked(ctx); err != nil {
				return false, fmt.Errorf("reload after run id change: %w", err)
			}
			// Recorded after the rebuild: the clear wipes the old run's
			// heartbeat and this one is the new baseline, unless a newer one
			// was queued and drained during the load.
			if e.lastHeartbeat == nil {
				e.lastHeartbeat = &hb
			}
			return true, nil
		}
		if hb.Ticks != last.Ticks+1 {
			return false, fmt.Errorf("%w: ticks %d after %d",
				ErrIrregularHeartbeat, hb.Ticks, last.Ticks)
		}
	}
	e.lastHeartbeat = &hb

	if e.queueOpen {
		// Replayed or mid-resync heartbeat: ordering was checked, heavy
		// work belongs to the opener.
		return true, nil
	}

	lag := e.now().Sub(time.Unix(0, hb.Timestamp))
	if lag > e.cfg.LateHeartbeat {
		e.logger.Warn("late heartbeat, skipping reconciliation",
			"ticks", hb.Ticks, "lag", lag)
		return true, nil
	}

	if err := e.runDueTasksLocked(ctx); err != nil {
		return false, err
	}
	if err := e.sweepLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// scheduleTaskLocked queues deferred work to fire after delayTicks
// heartbeats.
func (e *Engine) scheduleTaskLocked(name string, delayTicks int, run func(ctx context.Context)) {
	if delayTicks < 1 {
		delayTicks = 1
	}
	e.tasks = append(e.tasks, &delayedTask{name: name, remaining: delayTicks, run: run})
}

func (e *Engine) hasScheduledTaskLocked(name string) bool {
	for _, t := range e.tasks {
		if t.name == name {
			return true
		}
	}
	return false
}

// runDueTasksLocked decrements every pending task and fires the due ones
// concurrently, waiting at most the batch timeout. Tasks take the engine
// lock themselves, so the lock is released for the wait; a task slower than
// the window simply completes on its own later.
func (e *Engine) runDueTasksLocked(ctx context.Context) error {
	var due []*delayedTask
	keep := e.tasks[:0]
	for _, t := range e.tasks {
		t.remaining--
		if t.remaining <= 0 {
			due = append(due, t)
		} else {
			keep = append(keep, t)
		}
	}
	e.tasks = keep
	if len(due) == 0 {
		return nil
	}

	e.mu.Unlock()
	defer e.mu.Lock()

	var wg sync.WaitGroup
	for _, t := range due {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.run(ctx)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.cfg.TaskBatchTimeout):
		e.logger.Debug("task batch still running past timeout", "fired", len(due))
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
