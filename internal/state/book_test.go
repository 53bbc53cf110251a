package state

import (
	"context"
	"testing"

	"github.com/a-re/ledgerx-go/internal/model"
	"github.com/a-re/ledgerx-go/internal/schema"
)

// loadBook seeds a contract and its book snapshot, registers the contract
// with the engine, and loads it.
func loadBook(t *testing.T, e *Engine, client *fakeClient, c model.Contract, entries ...model.BookEntry) {
	t.Helper()
	client.mu.Lock()
	client.contracts = append(client.contracts, c)
	client.snapshots[c.ID] = model.BookSnapshot{ContractID: c.ID, Entries: entries}
	client.mu.Unlock()
	if _, err := e.Apply(context.Background(), schema.ContractAdded{Contract: c}); err != nil {
		t.Fatalf("contract add failed: %v", err)
	}
	if err := e.reloadBooks(context.Background(), c.ID); err != nil {
		t.Fatalf("book load failed: %v", err)
	}
}

func setSnapshot(client *fakeClient, contractID int64, entries ...model.BookEntry) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.snapshots[contractID] = model.BookSnapshot{ContractID: contractID, Entries: entries}
}

func insertReport(contractID, clock int64, mid string, price, size int64, isAsk bool) schema.ActionReport {
	return schema.ActionReport{
		ContractID: contractID,
		Clock:      clock,
		Mid:        mid,
		StatusType: schema.StatusInserted,
		Price:      price,
		Size:       size,
		IsAsk:      isAsk,
	}
}

func TestClockGate(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	e := newTestEngine(t, client)
	loadBook(t, e, client, testContract(100, "C100"),
		entry("o1", 100, 1500, 2, 10, false))

	t.Run("next clock applies", func(t *testing.T) {
		handled, err := e.Apply(ctx, insertReport(100, 11, "o2", 1600, 1, true))
		if err != nil || !handled {
			t.Fatalf("Apply = %v, %v, want handled", handled, err)
		}
		if clock, _ := e.ContractClock(100); clock != 11 {
			t.Errorf("clock = %d, want 11", clock)
		}
	})

	t.Run("stale clock ignored", func(t *testing.T) {
		handled, err := e.Apply(ctx, insertReport(100, 11, "o2x", 1650, 1, true))
		if err != nil || handled {
			t.Fatalf("Apply = %v, %v, want ignored", handled, err)
		}
		if clock, _ := e.ContractClock(100); clock != 11 {
			t.Errorf("clock = %d, want 11 unchanged", clock)
		}
		if got := e.Stats().StaleIgnored; got != 1 {
			t.Errorf("StaleIgnored = %d, want 1", got)
		}
		if top, _ := e.BookTop(100); top.Ask != 1600 {
			t.Errorf("stale insert leaked into the book: ask %d", top.Ask)
		}
	})

	t.Run("gap reloads and applies when snapshot is behind the event", func(t *testing.T) {
		// The fresh snapshot is at clock 12; the incoming event at 13 is the
		// next one after it and must apply on top.
		setSnapshot(client, 100,
			entry("o1", 100, 1500, 2, 10, false),
			entry("o2", 100, 1600, 1, 11, true),
			entry("o3", 100, 1550, 1, 12, false))
		handled, err := e.Apply(ctx, insertReport(100, 13, "o4", 1575, 1, false))
		if err != nil || !handled {
			t.Fatalf("Apply = %v, %v, want handled after reload", handled, err)
		}
		if clock, _ := e.ContractClock(100); clock != 13 {
			t.Errorf("clock = %d, want 13", clock)
		}
		if got := e.Stats().GapReloads; got != 1 {
			t.Errorf("GapReloads = %d, want 1", got)
		}
		if got := client.loadsFor(100); got != 2 {
			t.Errorf("book loads = %d, want 2", got)
		}
		if top, _ := e.BookTop(100); top.Bid != 1575 {
			t.Errorf("top bid = %d, want 1575", top.Bid)
		}
	})

	t.Run("gap event already covered by the snapshot is dropped", func(t *testing.T) {
		// The snapshot has advanced past the event; applying it on top would
		// double-count.
		setSnapshot(client, 100,
			entry("o5", 100, 1580, 1, 16, false))
		handled, err := e.Apply(ctx, insertReport(100, 15, "o5", 1580, 1, false))
		if err != nil || handled {
			t.Fatalf("Apply = %v, %v, want dropped", handled, err)
		}
		if clock, _ := e.ContractClock(100); clock != 16 {
			t.Errorf("clock = %d, want 16 from the snapshot", clock)
		}
		entries := e.BookEntries(100)
		if len(entries) != 1 || entries[0].Mid != "o5" {
			t.Errorf("book = %+v, want only o5 from the snapshot", entries)
		}
	})
}

func TestRemovalAdvancesClock(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	e := newTestEngine(t, client)
	loadBook(t, e, client, testContract(100, "C100"),
		entry("o1", 100, 1500, 2, 10, false))

	handled, err := e.Apply(ctx, schema.ActionReport{
		ContractID: 100,
		Clock:      11,
		Mid:        "o1",
		StatusType: schema.StatusCancelled,
	})
	if err != nil || !handled {
		t.Fatalf("Apply = %v, %v, want handled", handled, err)
	}

	if entries := e.BookEntries(100); len(entries) != 0 {
		t.Errorf("book not empty after cancel: %+v", entries)
	}
	top, ok := e.SyntheticTop(100, false)
	if !ok || top.Clock != 11 {
		t.Errorf("synthetic top clock = %d/%v, want 11 from the removal", top.Clock, ok)
	}
	if top.Bid != 0 || top.Ask != 0 {
		t.Errorf("synthetic top = %d/%d, want empty", top.Bid, top.Ask)
	}
}

func TestCrossDecrementsResting(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	e := newTestEngine(t, client)
	loadBook(t, e, client, testContract(100, "C100"),
		entry("o1", 100, 1600, 5, 10, true))

	// Partial fill: two of five traded, three rest on.
	handled, err := e.Apply(ctx, schema.ActionReport{
		ContractID:    100,
		Clock:         11,
		Mid:           "o1",
		StatusType:    schema.StatusCross,
		IsAsk:         true,
		FilledPrice:   1600,
		FilledSize:    2,
		InsertedPrice: 1600,
		InsertedSize:  3,
	})
	if err != nil || !handled {
		t.Fatalf("Apply = %v, %v, want handled", handled, err)
	}
	entries := e.BookEntries(100)
	if len(entries) != 1 || entries[0].Size != 3 {
		t.Fatalf("book = %+v, want o1 resting size 3", entries)
	}

	last, ok := e.LastTrade(100)
	if !ok || last.FilledPrice != 1600 || last.FilledSize != 2 {
		t.Errorf("LastTrade = %+v, %v", last, ok)
	}

	// Full fill with the matching reason: clean removal, no reload flag.
	handled, err = e.Apply(ctx, schema.ActionReport{
		ContractID:   100,
		Clock:        12,
		Mid:          "o1",
		StatusType:   schema.StatusCross,
		IsAsk:        true,
		FilledPrice:  1600,
		FilledSize:   3,
		StatusReason: schema.ReasonFullFill,
	})
	if err != nil || !handled {
		t.Fatalf("Apply = %v, %v, want handled", handled, err)
	}
	if entries := e.BookEntries(100); len(entries) != 0 {
		t.Errorf("book not empty after full fill: %+v", entries)
	}
	e.mu.Lock()
	flagged := e.needsReload[100]
	e.mu.Unlock()
	if flagged {
		t.Error("clean full fill should not flag a reload")
	}
}

func TestEmptiedWithoutFullFillFlagsReload(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	e := newTestEngine(t, client)
	loadBook(t, e, client, testContract(100, "C100"),
		entry("o1", 100, 1600, 2, 10, true))

	if _, err := e.Apply(ctx, schema.ActionReport{
		ContractID:  100,
		Clock:       11,
		Mid:         "o1",
		StatusType:  schema.StatusCross,
		IsAsk:       true,
		FilledPrice: 1600,
		FilledSize:  2,
	}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	e.mu.Lock()
	flagged := e.needsReload[100]
	e.mu.Unlock()
	if !flagged {
		t.Error("emptied order without the full-fill reason should flag a reload")
	}
}

func TestBookTopCrossValidation(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	e := newTestEngine(t, client)
	loadBook(t, e, client, testContract(100, "C100"),
		entry("o1", 100, 1500, 2, 10, false))

	t.Run("higher clock replaces", func(t *testing.T) {
		if _, err := e.Apply(ctx, schema.BookTop{ContractID: 100, Clock: 12, Bid: 1400, Ask: 1700}); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		top, _ := e.BookTop(100)
		if top.Clock != 12 || top.Bid != 1400 || top.Ask != 1700 {
			t.Errorf("top = %+v, want clock 12 bid 1400 ask 1700", top)
		}
	})

	t.Run("lower clock keeps stored", func(t *testing.T) {
		if _, err := e.Apply(ctx, schema.BookTop{ContractID: 100, Clock: 11, Bid: 1350, Ask: 1750}); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		top, _ := e.BookTop(100)
		if top.Clock != 12 || top.Bid != 1400 {
			t.Errorf("top = %+v, stale update must not replace", top)
		}
	})

	t.Run("equal clock agreement passes", func(t *testing.T) {
		if _, err := e.Apply(ctx, schema.BookTop{ContractID: 100, Clock: 12, Bid: 1400, Ask: 1700}); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if got := e.Stats().TopMismatches; got != 0 {
			t.Errorf("TopMismatches = %d, want 0", got)
		}
	})

	t.Run("equal clock disagreement counts and keeps stored", func(t *testing.T) {
		if _, err := e.Apply(ctx, schema.BookTop{ContractID: 100, Clock: 12, Bid: 1450, Ask: 1700}); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if got := e.Stats().TopMismatches; got != 1 {
			t.Errorf("TopMismatches = %d, want 1", got)
		}
		top, _ := e.BookTop(100)
		if top.Bid != 1400 {
			t.Errorf("top bid = %d, stored value must survive a same-clock dispute", top.Bid)
		}
	})
}

func TestEstimatedTopPrefersHigherClock(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	e := newTestEngine(t, client)
	loadBook(t, e, client, testContract(100, "C100"),
		entry("o1", 100, 1500, 2, 10, false))

	// A pushed top ahead of the tracked book wins the estimate.
	if _, err := e.Apply(ctx, schema.BookTop{ContractID: 100, Clock: 12, Bid: 1520, Ask: 1700}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	top, ok := e.EstimatedTop(100)
	if !ok || top.Clock != 12 || top.Bid != 1520 {
		t.Errorf("EstimatedTop = %+v, %v, want the pushed top", top, ok)
	}

	// Once the book catches up past it, the synthetic scan wins.
	e.mu.Lock()
	e.clocks[100] = 12
	e.mu.Unlock()
	if _, err := e.Apply(ctx, insertReport(100, 13, "o2", 1530, 1, false)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	top, _ = e.EstimatedTop(100)
	if top.Clock != 13 || top.Bid != 1530 {
		t.Errorf("EstimatedTop = %+v, want the fresher synthetic scan", top)
	}
}

func TestNextBestBookExcludesOwn(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	e := newTestEngine(t, client)
	loadBook(t, e, client, testContract(100, "C100"),
		entry("other", 100, 1400, 1, 9, false))

	// Our own order becomes the best bid.
	if _, err := e.Apply(ctx, schema.ActionReport{
		ContractID: 100,
		Clock:      10,
		Mid:        "mine",
		StatusType: schema.StatusInserted,
		Price:      1500,
		Size:       1,
		Mpid:       "MYFIRM",
		Cid:        9001,
	}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	top, _ := e.SyntheticTop(100, false)
	if top.Bid != 1500 {
		t.Fatalf("top bid = %d, want 1500 including own order", top.Bid)
	}
	best, ok := e.NextBestBook(100, false)
	if !ok || best != 1400 {
		t.Errorf("NextBestBook = %d/%v, want 1400 excluding own order", best, ok)
	}
}

func TestBookTopForUnknownContractLoadsBook(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	client.contracts = []model.Contract{testContract(99, "C99")}
	client.snapshots[99] = model.BookSnapshot{
		ContractID: 99,
		Entries:    []model.BookEntry{entry("o1", 99, 1500, 2, 10, false)},
	}
	e := newTestEngine(t, client)

	// First sight of the contract is a pushed top. The top itself is
	// dropped; the contract is fetched and its book loaded instead.
	handled, err := e.Apply(ctx, schema.BookTop{ContractID: 99, Clock: 12, Bid: 1500, Ask: 1600})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if handled {
		t.Error("a top for an unknown contract must not apply directly")
	}
	if _, ok := e.Contract(99); !ok {
		t.Fatal("contract not fetched")
	}
	if got := client.loadsFor(99); got != 1 {
		t.Errorf("book loads = %d, want 1", got)
	}
	if clock, ok := e.ContractClock(99); !ok || clock != 10 {
		t.Errorf("clock = %d/%v, want 10 from the snapshot", clock, ok)
	}

	// A later top for the now-known contract goes through cross-validation.
	if _, err := e.Apply(ctx, schema.BookTop{ContractID: 99, Clock: 13, Bid: 1500, Ask: 1600}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := client.loadsFor(99); got != 1 {
		t.Errorf("book loads = %d, a known contract must not reload", got)
	}
}
