package state

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/a-re/ledgerx-go/internal/api"
	"github.com/a-re/ledgerx-go/internal/model"
)

// nextDayRescanInterval throttles catalogue refetches when no live day-ahead
// swap is known for an asset.
const nextDayRescanInterval = 10 * time.Minute

// addContractLocked registers a contract and its derived indexes. Re-adding
// an already known contract is a no-op.
func (e *Engine) addContractLocked(c model.Contract) {
	if _, ok := e.contracts[c.ID]; ok {
		return
	}
	contract := c
	e.contracts[c.ID] = &contract
	e.labelToID[c.Label] = c.ID

	if contract.IsExpired(e.now(), e.cfg.ExpiryPreemptive) {
		e.expired[c.ID] = true
		if e.cfg.SkipExpired {
			return
		}
	}

	if c.DerivativeType == model.DerivDayAheadSwap && c.IsNextDay {
		e.nextDay[c.UnderlyingAsset] = c.ID
	}

	if c.DerivativeType == model.DerivOption {
		e.indexOptionLocked(&contract)
	}
}

// indexOptionLocked maintains the expiry date index, the strike ladder, and
// the put/call twin map for one option contract.
func (e *Engine) indexOptionLocked(c *model.Contract) {
	date := c.DateExpires.Time().Format("2006-01-02")
	if _, ok := e.expStrikes[date]; !ok {
		e.expStrikes[date] = make(map[string][]int64)
		e.expDates = append(e.expDates, date)
		sort.Strings(e.expDates)
	}
	ladder := e.expStrikes[date]
	ladder[c.UnderlyingAsset] = insertSorted(ladder[c.UnderlyingAsset], c.StrikePrice)

	// The twin differs only in the Put/Call token of the label. Whichever
	// side registers second links both directions.
	twinLabel := putCallTwinLabel(c.Label, c.IsCall)
	if twinID, ok := e.labelToID[twinLabel]; ok {
		e.putCallMap[c.ID] = twinID
		e.putCallMap[twinID] = c.ID
	}
}

func putCallTwinLabel(label string, isCall bool) string {
	if isCall {
		return strings.Replace(label, "Call", "Put", 1)
	}
	return strings.Replace(label, "Put", "Call", 1)
}

func insertSorted(s []int64, v int64) []int64 {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	if i < len(s) && s[i] == v {
		return s
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// removeContractLocked marks a contract expired. Its identity and any
// position survive; books are dropped.
func (e *Engine) removeContractLocked(contractID int64) {
	e.expired[contractID] = true
	delete(e.books, contractID)
	delete(e.tops, contractID)
	delete(e.clocks, contractID)
	delete(e.stash, contractID)
	for asset, id := range e.nextDay {
		if id == contractID {
			delete(e.nextDay, asset)
		}
	}
}

// retrieveContractLocked fetches an unknown contract by id. The lock is
// released for the fetch; callers must re-read any state they cached.
func (e *Engine) retrieveContractLocked(ctx context.Context, contractID int64) (*model.Contract, error) {
	if c, ok := e.contracts[contractID]; ok {
		return c, nil
	}
	e.logger.Info("retrieving unknown contract", "contract_id", contractID)

	e.mu.Unlock()
	c, err := e.client.GetContract(ctx, contractID)
	e.mu.Lock()
	if err != nil {
		return nil, err
	}
	e.addContractLocked(c)
	return e.contracts[contractID], nil
}

// Contract returns a copy of a known contract.
func (e *Engine) Contract(contractID int64) (model.Contract, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contracts[contractID]
	if !ok {
		return model.Contract{}, false
	}
	return *c, true
}

// ContractByLabel resolves a listing label to its contract.
func (e *Engine) ContractByLabel(label string) (model.Contract, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.labelToID[label]
	if !ok {
		return model.Contract{}, false
	}
	return *e.contracts[id], true
}

// PutCallTwin returns the opposite-side option sharing expiry and strike.
func (e *Engine) PutCallTwin(contractID int64) (model.Contract, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	twinID, ok := e.putCallMap[contractID]
	if !ok {
		return model.Contract{}, false
	}
	return *e.contracts[twinID], true
}

// ExpirationDates returns the sorted option expiry dates currently listed.
func (e *Engine) ExpirationDates() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.expDates))
	copy(out, e.expDates)
	return out
}

// Strikes returns the sorted strike ladder for an expiry date and asset.
func (e *Engine) Strikes(date, asset string) []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ladder, ok := e.expStrikes[date]
	if !ok {
		return nil
	}
	out := make([]int64, len(ladder[asset]))
	copy(out, ladder[asset])
	return out
}

// IsExpired reports whether a contract has been marked expired.
func (e *Engine) IsExpired(contractID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expired[contractID]
}

// NextDaySwap returns the live day-ahead swap contract for an asset,
// refetching the catalogue at most once per rescan interval when the cached
// one has rolled off.
func (e *Engine) NextDaySwap(ctx context.Context, asset string) (model.Contract, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id, ok := e.nextDay[asset]; ok {
		c := e.contracts[id]
		if !c.IsExpired(e.now(), e.cfg.ExpiryPreemptive) && c.IsLive(e.now()) {
			return *c, true
		}
		delete(e.nextDay, asset)
		e.expired[id] = true
	}

	// The new day's swap may simply not have been announced to us yet.
	for id, c := range e.contracts {
		if c.DerivativeType == model.DerivDayAheadSwap && c.UnderlyingAsset == asset &&
			c.IsNextDay && !e.expired[id] &&
			!c.IsExpired(e.now(), e.cfg.ExpiryPreemptive) && c.IsLive(e.now()) {
			e.nextDay[asset] = id
			return *c, true
		}
	}

	if e.now().Sub(e.lastScan) < nextDayRescanInterval {
		return model.Contract{}, false
	}
	e.lastScan = e.now()

	e.mu.Unlock()
	contracts, err := e.client.ListContracts(ctx, api.ListContractsOptions{
		DerivativeType: model.DerivDayAheadSwap,
		ActiveOnly:     true,
	})
	e.mu.Lock()
	if err != nil {
		e.logger.Warn("day-ahead swap rescan failed", "asset", asset, "error", err)
		return model.Contract{}, false
	}
	for _, c := range contracts {
		e.addContractLocked(c)
	}
	if id, ok := e.nextDay[asset]; ok {
		return *e.contracts[id], true
	}
	return model.Contract{}, false
}
