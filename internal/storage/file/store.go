package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stakingRewards/internal/custody"
	"stakingRewards/internal/model"
	"stakingRewards/internal/storage"
	"stakingRewards/internal/storage/memory"
)

// Store keeps the ledger and custody balances in memory and persists both as one
// JSON snapshot after every committed unit of work. A unit whose snapshot cannot
// be written is rolled back.
type Store struct {
	path string
	mu   sync.Mutex
	mem  *memory.Store
	bank *custody.Bank
}

// Open loads the snapshot at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		mem:  memory.NewStore(),
		bank: custody.NewBank(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	s.mem.Restore(snap.Pools, snap.Stakers)
	s.bank.Restore(snap.Balances)
	return s, nil
}

// Bank returns the custody bank persisted with the ledger.
func (s *Store) Bank() *custody.Bank {
	return s.bank
}

func (s *Store) CreatePool(ctx context.Context, pool model.Pool) error {
	return s.commit(func() error {
		return s.mem.CreatePool(ctx, pool)
	})
}

func (s *Store) Update(ctx context.Context, poolID model.PoolID, fn func(tx storage.Tx) error) error {
	return s.commit(func() error {
		return s.mem.Update(ctx, poolID, fn)
	})
}

func (s *Store) View(ctx context.Context, poolID model.PoolID, fn func(tx storage.Tx) error) error {
	return s.mem.View(ctx, poolID, fn)
}

// Credit funds a custody account and persists the new balance.
func (s *Store) Credit(asset common.Address, account model.AccountID, amount uint64) error {
	return s.commit(func() error {
		return s.bank.Credit(asset, account, amount)
	})
}

// Snapshot returns the current ledger and custody state.
func (s *Store) Snapshot() model.Snapshot {
	pools, stakers := s.mem.Snapshot()
	return model.Snapshot{
		Pools:    pools,
		Stakers:  stakers,
		Balances: s.bank.Snapshot(),
	}
}

func (s *Store) commit(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.Snapshot()
	if err := fn(); err != nil {
		s.bank.Restore(before.Balances)
		return err
	}
	if err := s.save(s.Snapshot()); err != nil {
		s.mem.Restore(before.Pools, before.Stakers)
		s.bank.Restore(before.Balances)
		return err
	}
	return nil
}

func (s *Store) save(snap model.Snapshot) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	snap.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
