package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"stakingRewards/internal/model"
	"stakingRewards/internal/storage"
)

// Store keeps pools in memory. Each pool has its own lock, so units of work on
// different pools run in parallel.
type Store struct {
	mu    sync.RWMutex
	pools map[model.PoolID]*entry
}

type entry struct {
	mu      sync.Mutex
	pool    model.Pool
	stakers map[common.Address]model.StakerAccount
}

func NewStore() *Store {
	return &Store{pools: make(map[model.PoolID]*entry)}
}

// CreatePool stores a new pool.
func (s *Store) CreatePool(ctx context.Context, pool model.Pool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pools[pool.ID]; ok {
		return storage.ErrPoolExists
	}
	s.pools[pool.ID] = &entry{pool: pool, stakers: make(map[common.Address]model.StakerAccount)}
	return nil
}

// Update runs fn with exclusive access to the pool. Writes are buffered and only
// applied when fn returns nil.
func (s *Store) Update(ctx context.Context, poolID model.PoolID, fn func(tx storage.Tx) error) error {
	return s.run(ctx, poolID, false, fn)
}

// View runs fn against the pool without allowing writes.
func (s *Store) View(ctx context.Context, poolID model.PoolID, fn func(tx storage.Tx) error) error {
	return s.run(ctx, poolID, true, fn)
}

func (s *Store) run(ctx context.Context, poolID model.PoolID, readOnly bool, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	e, ok := s.pools[poolID]
	s.mu.RUnlock()
	if !ok {
		return storage.ErrPoolNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx := &memTx{
		entry:    e,
		readOnly: readOnly,
		pool:     e.pool,
		puts:     make(map[common.Address]model.StakerAccount),
		deletes:  make(map[common.Address]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if readOnly {
		return nil
	}

	e.pool = tx.pool
	for addr := range tx.deletes {
		delete(e.stakers, addr)
	}
	for addr, account := range tx.puts {
		e.stakers[addr] = account
	}
	return nil
}

// Snapshot returns every pool and staker account, ordered for stable output.
func (s *Store) Snapshot() ([]model.Pool, []model.StakerAccount) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.Pool, 0, len(s.pools))
	stakers := make([]model.StakerAccount, 0)
	for _, e := range s.pools {
		e.mu.Lock()
		pools = append(pools, e.pool)
		for _, account := range e.stakers {
			stakers = append(stakers, account)
		}
		e.mu.Unlock()
	}

	sort.Slice(pools, func(i, j int) bool {
		return pools[i].ID.String() < pools[j].ID.String()
	})
	sort.Slice(stakers, func(i, j int) bool {
		if stakers[i].PoolID != stakers[j].PoolID {
			return stakers[i].PoolID.String() < stakers[j].PoolID.String()
		}
		return stakers[i].Staker.Hex() < stakers[j].Staker.Hex()
	})
	return pools, stakers
}

// Restore replaces the store contents. Stakers of unknown pools are dropped.
func (s *Store) Restore(pools []model.Pool, stakers []model.StakerAccount) {
	next := make(map[model.PoolID]*entry, len(pools))
	for _, pool := range pools {
		next[pool.ID] = &entry{pool: pool, stakers: make(map[common.Address]model.StakerAccount)}
	}
	for _, account := range stakers {
		if e, ok := next[account.PoolID]; ok {
			e.stakers[account.Staker] = account
		}
	}

	s.mu.Lock()
	s.pools = next
	s.mu.Unlock()
}

type memTx struct {
	entry    *entry
	readOnly bool
	pool     model.Pool
	puts     map[common.Address]model.StakerAccount
	deletes  map[common.Address]struct{}
}

func (t *memTx) Pool() model.Pool {
	return t.pool
}

func (t *memTx) Staker(staker common.Address) (model.StakerAccount, bool, error) {
	if account, ok := t.puts[staker]; ok {
		return account, true, nil
	}
	if _, ok := t.deletes[staker]; ok {
		return model.NewStakerAccount(t.pool.ID, staker), false, nil
	}
	if account, ok := t.entry.stakers[staker]; ok {
		return account, true, nil
	}
	return model.NewStakerAccount(t.pool.ID, staker), false, nil
}

func (t *memTx) PutPool(pool model.Pool) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	t.pool = pool
	return nil
}

func (t *memTx) PutStaker(account model.StakerAccount) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	delete(t.deletes, account.Staker)
	t.puts[account.Staker] = account
	return nil
}

func (t *memTx) DeleteStaker(staker common.Address) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	delete(t.puts, staker)
	t.deletes[staker] = struct{}{}
	return nil
}
