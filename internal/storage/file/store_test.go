package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakingRewards/internal/model"
	"stakingRewards/internal/storage"
)

var (
	token  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	staker = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func TestOpenMissing(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	snap := store.Snapshot()
	assert.Empty(t, snap.Pools)
	assert.Empty(t, snap.Balances)
}

func TestPersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "state.json")
	store, err := Open(path)
	require.NoError(t, err)

	pool := model.Pool{ID: uuid.New(), StakingToken: token, RewardRate: 5, UpdatedAt: 10, FinishAt: 20}
	require.NoError(t, store.CreatePool(ctx, pool))
	require.NoError(t, store.Credit(token, model.StakerCustody(staker), 77))
	require.NoError(t, store.Update(ctx, pool.ID, func(tx storage.Tx) error {
		p := tx.Pool()
		p.TotalSupply = 7
		if err := tx.PutPool(p); err != nil {
			return err
		}
		return tx.PutStaker(model.StakerAccount{PoolID: pool.ID, Staker: staker, Amount: 7})
	}))

	reloaded, err := Open(path)
	require.NoError(t, err)
	snap := reloaded.Snapshot()
	require.Len(t, snap.Pools, 1)
	assert.Equal(t, uint64(7), snap.Pools[0].TotalSupply)
	assert.Equal(t, uint64(5), snap.Pools[0].RewardRate)
	require.Len(t, snap.Stakers, 1)
	assert.Equal(t, staker, snap.Stakers[0].Staker)
	assert.Equal(t, uint64(77), reloaded.Bank().Balance(token, model.StakerCustody(staker)))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestRollbackWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store, err := Open(path)
	require.NoError(t, err)

	pool := model.Pool{ID: uuid.New()}
	require.NoError(t, store.CreatePool(ctx, pool))

	// A directory in place of the tmp file makes the write fail.
	require.NoError(t, os.Mkdir(path+".tmp", 0o755))

	err = store.Update(ctx, pool.ID, func(tx storage.Tx) error {
		p := tx.Pool()
		p.TotalSupply = 9
		return tx.PutPool(p)
	})
	require.Error(t, err)
	assert.Equal(t, uint64(0), store.Snapshot().Pools[0].TotalSupply)

	err = store.Credit(token, "vault", 5)
	require.Error(t, err)
	assert.Equal(t, uint64(0), store.Bank().Balance(token, "vault"))
}

func TestOpenCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path)
	require.Error(t, err)
}
