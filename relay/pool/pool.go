// Package pool arbitrates which pooled account serves a request. Selection is
// weighted random over the enabled, unlocked candidates; locks are advisory
// flags favoring availability over strict exclusion, so when every candidate
// is busy the pool degrades to intentional re-use instead of failing.
package pool

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"claude-relay/common/config"
	"claude-relay/common/logger"
	"claude-relay/model"
	"claude-relay/monitor"
)

// ErrNoAccount is returned when no enabled account exists for the provider
// after exclusions; callers surface it as "no available credential".
var ErrNoAccount = errors.New("no available credential")

// Storage is the credential-storage collaborator. The pool never deletes
// accounts; deletion happens behind this interface and shows up at the next
// cache refresh.
type Storage interface {
	ListEnabled(provider string) ([]*model.Account, error)
	IncrementCounters(id int, delta model.CounterDelta) error
	RecordError(id int, message string) error
	ResetErrorCount(id int) error
}

// DBStorage adapts the model package to the Storage interface.
type DBStorage struct{}

func (DBStorage) ListEnabled(provider string) ([]*model.Account, error) {
	return model.ListEnabledAccounts(provider)
}

func (DBStorage) IncrementCounters(id int, delta model.CounterDelta) error {
	return model.IncrementAccountCounters(id, delta)
}

func (DBStorage) RecordError(id int, message string) error {
	return model.RecordAccountError(id, message)
}

func (DBStorage) ResetErrorCount(id int) error {
	return model.ResetAccountErrorCount(id)
}

// Pool selects, locks, and meters accounts. One Pool instance is shared by
// every in-flight request.
type Pool struct {
	storage Storage

	cache *gocache.Cache
	sf    singleflight.Group

	mu       sync.Mutex
	locks    map[int]time.Time
	counters map[int]model.CounterDelta

	stopFlush chan struct{}
	flushDone chan struct{}
}

// New builds a pool over the given storage collaborator and starts the
// background counter flusher.
func New(storage Storage) *Pool {
	p := &Pool{
		storage:   storage,
		cache:     gocache.New(config.AccountCacheTTL, config.AccountCacheTTL*2),
		locks:     make(map[int]time.Time),
		counters:  make(map[int]model.CounterDelta),
		stopFlush: make(chan struct{}),
		flushDone: make(chan struct{}),
	}
	go p.flushLoop()
	return p
}

// Select picks one enabled account for the provider, excluding the given ids,
// and locks it. Weighted sampling: prefix sums over weight, one uniform draw,
// binary search. When every candidate is locked the pool warns and samples
// the locked set instead of failing.
func (p *Pool) Select(provider string, excluding map[int]bool) (*model.Account, error) {
	accounts, err := p.accounts(provider)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var unlocked, candidates []*model.Account
	now := time.Now()
	for _, a := range accounts {
		if excluding[a.Id] {
			continue
		}
		candidates = append(candidates, a)
		if lockedAt, ok := p.locks[a.Id]; !ok || now.Sub(lockedAt) > config.AccountLockTimeout {
			unlocked = append(unlocked, a)
		}
	}
	if len(candidates) == 0 {
		return nil, errors.WithStack(ErrNoAccount)
	}

	sample := unlocked
	if len(sample) == 0 {
		logger.Logger.Warn("all accounts locked, sampling locked set",
			zap.String("provider", provider), zap.Int("candidates", len(candidates)))
		sample = candidates
	}

	chosen := weightedPick(sample)
	p.locks[chosen.Id] = now
	return chosen, nil
}

// weightedPick draws one account proportionally to weight. Non-positive
// weights count as 1 so misconfigured rows stay reachable.
func weightedPick(accounts []*model.Account) *model.Account {
	prefix := make([]int, len(accounts))
	total := 0
	for i, a := range accounts {
		w := a.Weight
		if w <= 0 {
			w = 1
		}
		total += w
		prefix[i] = total
	}
	r := rand.IntN(total)
	idx := sort.SearchInts(prefix, r+1)
	return accounts[idx]
}

// Release unlocks an account after its request finishes. The lock timeout is
// only a backstop for callers that never get here.
func (p *Pool) Release(id int) {
	p.mu.Lock()
	delete(p.locks, id)
	p.mu.Unlock()
}

// RecordRequest notes that an attempt started on the account. Buffered, not
// written through.
func (p *Pool) RecordRequest(id int) {
	p.bump(id, model.CounterDelta{Requests: 1})
}

// RecordSuccess notes a completed request and clears the rolling error state.
func (p *Pool) RecordSuccess(id int) {
	p.bump(id, model.CounterDelta{Successes: 1})
	if err := p.storage.ResetErrorCount(id); err != nil {
		logger.Logger.Warn("reset error count", zap.Int("account", id), zap.Error(err))
	}
}

// RecordFailure notes a failed request and writes the error message through
// immediately; only the numeric counters are batched.
func (p *Pool) RecordFailure(id int, message string) {
	p.bump(id, model.CounterDelta{Failures: 1})
	if err := p.storage.RecordError(id, message); err != nil {
		logger.Logger.Warn("record account error", zap.Int("account", id), zap.Error(err))
	}
}

func (p *Pool) bump(id int, delta model.CounterDelta) {
	p.mu.Lock()
	cur := p.counters[id]
	cur.Requests += delta.Requests
	cur.Successes += delta.Successes
	cur.Failures += delta.Failures
	p.counters[id] = cur
	p.mu.Unlock()
}

// ForceRefresh drops the cached snapshot so the next Select re-reads storage.
func (p *Pool) ForceRefresh(provider string) {
	p.cache.Delete(provider)
}

// accounts serves from the TTL cache, deduplicating concurrent refreshes of
// the same provider through singleflight.
func (p *Pool) accounts(provider string) ([]*model.Account, error) {
	if cached, ok := p.cache.Get(provider); ok {
		return cached.([]*model.Account), nil
	}
	v, err, _ := p.sf.Do(provider, func() (any, error) {
		accounts, err := p.storage.ListEnabled(provider)
		if err != nil {
			return nil, errors.Wrapf(err, "refresh accounts for provider %q", provider)
		}
		p.cache.SetDefault(provider, accounts)
		monitor.SetEnabledAccounts(provider, len(accounts))
		return accounts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.Account), nil
}

func (p *Pool) flushLoop() {
	defer close(p.flushDone)
	ticker := time.NewTicker(config.CounterFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.flush()
		case <-p.stopFlush:
			p.flush()
			return
		}
	}
}

// flush swaps out the buffered counters and writes them in one pass. A write
// failure re-buffers the delta so it is retried on the next tick.
func (p *Pool) flush() {
	p.mu.Lock()
	pending := p.counters
	p.counters = make(map[int]model.CounterDelta)
	p.mu.Unlock()

	for id, delta := range pending {
		if err := p.storage.IncrementCounters(id, delta); err != nil {
			logger.Logger.Warn("flush account counters", zap.Int("account", id), zap.Error(err))
			p.bump(id, delta)
		}
	}
}

// Shutdown stops the flusher and performs the final counter flush.
func (p *Pool) Shutdown(ctx context.Context) error {
	close(p.stopFlush)
	select {
	case <-p.flushDone:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for final counter flush")
	}
}
