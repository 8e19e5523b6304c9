package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakingRewards/internal/model"
	"stakingRewards/internal/storage"
)

var staker = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestCreatePoolTwice(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	pool := model.Pool{ID: uuid.New(), RewardRate: 5}

	require.NoError(t, store.CreatePool(ctx, pool))
	require.ErrorIs(t, store.CreatePool(ctx, pool), storage.ErrPoolExists)
}

func TestUpdateUnknownPool(t *testing.T) {
	store := NewStore()
	err := store.Update(context.Background(), uuid.New(), func(tx storage.Tx) error { return nil })
	require.ErrorIs(t, err, storage.ErrPoolNotFound)
}

func TestUpdateDiscardsWritesOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	pool := model.Pool{ID: uuid.New()}
	require.NoError(t, store.CreatePool(ctx, pool))

	boom := errors.New("boom")
	err := store.Update(ctx, pool.ID, func(tx storage.Tx) error {
		p := tx.Pool()
		p.TotalSupply = 10
		require.NoError(t, tx.PutPool(p))
		require.NoError(t, tx.PutStaker(model.StakerAccount{PoolID: pool.ID, Staker: staker, Amount: 10}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	pools, stakers := store.Snapshot()
	require.Len(t, pools, 1)
	assert.Equal(t, uint64(0), pools[0].TotalSupply)
	assert.Empty(t, stakers)
}

func TestUpdateCommitsAndDeletes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	pool := model.Pool{ID: uuid.New()}
	require.NoError(t, store.CreatePool(ctx, pool))

	require.NoError(t, store.Update(ctx, pool.ID, func(tx storage.Tx) error {
		account, found, err := tx.Staker(staker)
		require.NoError(t, err)
		assert.False(t, found)
		account.Amount = 3
		return tx.PutStaker(account)
	}))

	require.NoError(t, store.View(ctx, pool.ID, func(tx storage.Tx) error {
		account, found, err := tx.Staker(staker)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, uint64(3), account.Amount)
		assert.ErrorIs(t, tx.PutStaker(account), storage.ErrReadOnly)
		return nil
	}))

	require.NoError(t, store.Update(ctx, pool.ID, func(tx storage.Tx) error {
		return tx.DeleteStaker(staker)
	}))
	_, stakers := store.Snapshot()
	assert.Empty(t, stakers)
}

func TestUpdateSerializesPool(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	pool := model.Pool{ID: uuid.New()}
	require.NoError(t, store.CreatePool(ctx, pool))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(ctx, pool.ID, func(tx storage.Tx) error {
				p := tx.Pool()
				p.TotalSupply++
				return tx.PutPool(p)
			})
		}()
	}
	wg.Wait()

	pools, _ := store.Snapshot()
	assert.Equal(t, uint64(50), pools[0].TotalSupply)
}

func TestRestore(t *testing.T) {
	store := NewStore()
	pool := model.Pool{ID: uuid.New(), TotalSupply: 4}
	orphan := model.StakerAccount{PoolID: uuid.New(), Staker: staker, Amount: 1}
	account := model.StakerAccount{PoolID: pool.ID, Staker: staker, Amount: 4}

	store.Restore([]model.Pool{pool}, []model.StakerAccount{account, orphan})

	pools, stakers := store.Snapshot()
	assert.Equal(t, []model.Pool{pool}, pools)
	assert.Equal(t, []model.StakerAccount{account}, stakers)
}
