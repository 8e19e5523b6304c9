package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"stakingRewards/internal/model"
)

var (
	ErrPoolNotFound = errors.New("pool not found")
	ErrPoolExists   = errors.New("pool already exists")
	ErrReadOnly     = errors.New("read-only transaction")
)

// Store persists pools and staker accounts. Update must serialize every unit of
// work against the same pool and apply none of its writes when fn fails.
type Store interface {
	CreatePool(ctx context.Context, pool model.Pool) error
	Update(ctx context.Context, poolID model.PoolID, fn func(tx Tx) error) error
	View(ctx context.Context, poolID model.PoolID, fn func(tx Tx) error) error
}

// Tx is a unit of work scoped to one pool.
type Tx interface {
	Pool() model.Pool
	// Staker returns the staker's account, or a fresh empty account if none exists.
	Staker(staker common.Address) (model.StakerAccount, bool, error)
	PutPool(pool model.Pool) error
	PutStaker(account model.StakerAccount) error
	DeleteStaker(staker common.Address) error
}
