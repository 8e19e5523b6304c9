package rewards

import (
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakingRewards/internal/model"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type transferCall struct {
	asset    common.Address
	from, to model.AccountID
	amount   uint64
}

type recorder struct {
	calls []transferCall
	err   error
}

func (r *recorder) transfer(asset common.Address, from, to model.AccountID, amount uint64) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, transferCall{asset: asset, from: from, to: to, amount: amount})
	return nil
}

func newPool(t *testing.T, rate uint64, now uint64) model.Pool {
	t.Helper()
	pool, err := Initialize(PoolParams{
		ID:           uuid.New(),
		Owner:        common.HexToAddress("0x9999999999999999999999999999999999999999"),
		StakingToken: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		RewardsToken: common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		RewardRate:   rate,
		Duration:     86400,
	}, now)
	require.NoError(t, err)
	return pool
}

func TestInitialize(t *testing.T) {
	pool := newPool(t, 10, 1_700_000_000)

	assert.Equal(t, uint64(0), pool.TotalSupply)
	assert.Equal(t, uint64(0), pool.RewardPerTokenStored)
	assert.Equal(t, uint64(1_700_000_000), pool.UpdatedAt)
	assert.Equal(t, uint64(1_700_086_400), pool.FinishAt)
	assert.Equal(t, uint64(10), pool.RewardRate)

	_, err := Initialize(PoolParams{Duration: math.MaxUint64}, 1)
	require.ErrorIs(t, err, ErrMath)
}

func TestResyncZeroSupply(t *testing.T) {
	pool := newPool(t, 100, 0)
	pool.RewardPerTokenStored = 42

	next, err := Resync(pool, 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), next.RewardPerTokenStored)
	assert.Equal(t, uint64(500), next.UpdatedAt)
}

func TestResyncAccrues(t *testing.T) {
	pool := newPool(t, 100, 0)
	pool.TotalSupply = 1000

	next, err := Resync(pool, 10)
	require.NoError(t, err)
	// 100/s * 10s * 1e9 / 1000
	assert.Equal(t, uint64(1_000_000_000), next.RewardPerTokenStored)
	assert.Equal(t, uint64(10), next.UpdatedAt)
}

func TestResyncRoundsDown(t *testing.T) {
	pool := newPool(t, 1, 0)
	pool.TotalSupply = 3

	next, err := Resync(pool, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(333_333_333), next.RewardPerTokenStored)
}

func TestResyncOverflow(t *testing.T) {
	tests := []struct {
		name   string
		rate   uint64
		now    uint64
		stored uint64
	}{
		{name: "rate times elapsed", rate: math.MaxUint64 / 2, now: 3},
		{name: "reward added times scale", rate: math.MaxUint64 / Scale, now: 2},
		{name: "accumulator addition", rate: 1, now: 1, stored: math.MaxUint64 - 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := newPool(t, tt.rate, 0)
			pool.TotalSupply = 1
			pool.RewardPerTokenStored = tt.stored

			next, err := Resync(pool, tt.now)
			require.ErrorIs(t, err, ErrMath)
			assert.Equal(t, KindMath, KindOf(err))
			assert.Equal(t, pool, next)
		})
	}
}

func TestResyncRejectsClockRegression(t *testing.T) {
	pool := newPool(t, 1, 100)

	next, err := Resync(pool, 99)
	require.ErrorIs(t, err, ErrInvariant)
	assert.Equal(t, pool, next)
}

func TestResyncMonotonic(t *testing.T) {
	pool := newPool(t, 7, 0)
	pool.TotalSupply = 13

	prev := pool
	for now := uint64(1); now < 50; now += 3 {
		next, err := Resync(prev, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, next.RewardPerTokenStored, prev.RewardPerTokenStored)
		assert.GreaterOrEqual(t, next.UpdatedAt, prev.UpdatedAt)
		prev = next
	}
}

func TestSettle(t *testing.T) {
	staker := model.StakerAccount{Staker: alice, Amount: 1000, RewardPerTokenPaid: 0, Rewards: 5}

	settled, err := Settle(staker, 1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1005), settled.Rewards)
	assert.Equal(t, uint64(1_000_000_000), settled.RewardPerTokenPaid)

	again, err := Settle(settled, settled.RewardPerTokenPaid)
	require.NoError(t, err)
	assert.Equal(t, settled, again)
}

func TestSettleNegativeDelta(t *testing.T) {
	staker := model.StakerAccount{Staker: alice, Amount: 1, RewardPerTokenPaid: 10}

	next, err := Settle(staker, 9)
	require.ErrorIs(t, err, ErrInvariant)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, staker, next)
}

func TestSettleOverflow(t *testing.T) {
	staker := model.StakerAccount{Staker: alice, Amount: math.MaxUint64, Rewards: 1}

	_, err := Settle(staker, 2*Scale)
	require.ErrorIs(t, err, ErrMath)

	staker = model.StakerAccount{Staker: alice, Amount: Scale, Rewards: math.MaxUint64}
	_, err = Settle(staker, 1)
	require.ErrorIs(t, err, ErrMath)
}

func TestSoleStakerEarnsWholeStream(t *testing.T) {
	rec := &recorder{}
	pool := newPool(t, 100, 0)

	tr, err := Stake(pool, model.NewStakerAccount(pool.ID, alice), 1000, 0, rec.transfer)
	require.NoError(t, err)

	earned, err := Earned(tr.Pool, tr.Staker, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), earned)

	pool, err = Resync(tr.Pool, 10)
	require.NoError(t, err)
	staker, err := Settle(tr.Staker, pool.RewardPerTokenStored)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), staker.Rewards)
}

func TestStake(t *testing.T) {
	rec := &recorder{}
	pool := newPool(t, 100, 0)

	tr, err := Stake(pool, model.NewStakerAccount(pool.ID, alice), 500, 5, rec.transfer)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), tr.Staker.Amount)
	assert.Equal(t, uint64(500), tr.Pool.TotalSupply)
	assert.Equal(t, uint64(5), tr.Pool.UpdatedAt)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, transferCall{
		asset:  pool.StakingToken,
		from:   model.StakerCustody(alice),
		to:     pool.StakeVault(),
		amount: 500,
	}, rec.calls[0])
}

func TestStakeZero(t *testing.T) {
	rec := &recorder{}
	pool := newPool(t, 100, 0)

	_, err := Stake(pool, model.NewStakerAccount(pool.ID, alice), 0, 1, rec.transfer)
	require.ErrorIs(t, err, ErrAmountIsZero)
	assert.Equal(t, "AmountIsZero", CodeOf(err))
	assert.Empty(t, rec.calls)
}

func TestStakeTransferFailure(t *testing.T) {
	custodyErr := errors.New("insufficient funds")
	rec := &recorder{err: custodyErr}
	pool := newPool(t, 100, 0)

	tr, err := Stake(pool, model.NewStakerAccount(pool.ID, alice), 10, 1, rec.transfer)
	require.ErrorIs(t, err, custodyErr)
	assert.Equal(t, KindUnknown, KindOf(err))
	assert.Equal(t, Transition{}, tr)
}

func TestStakeOverflow(t *testing.T) {
	tests := []struct {
		name        string
		totalSupply uint64
		staked      uint64
	}{
		{name: "total supply", totalSupply: math.MaxUint64},
		{name: "staker amount", totalSupply: math.MaxUint64, staked: math.MaxUint64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			pool := newPool(t, 0, 0)
			pool.TotalSupply = tt.totalSupply
			staker := model.NewStakerAccount(pool.ID, alice)
			staker.Amount = tt.staked

			tr, err := Stake(pool, staker, 1, 1, rec.transfer)
			require.ErrorIs(t, err, ErrMath)
			assert.Equal(t, "MathError", CodeOf(err))
			assert.Equal(t, Transition{}, tr)
			assert.Empty(t, rec.calls)
		})
	}
}

func TestWithdrawInsufficient(t *testing.T) {
	rec := &recorder{}
	pool := newPool(t, 100, 0)
	tr, err := Stake(pool, model.NewStakerAccount(pool.ID, alice), 100, 0, rec.transfer)
	require.NoError(t, err)

	_, err = Withdraw(tr.Pool, tr.Staker, 101, 5, rec.transfer)
	require.ErrorIs(t, err, ErrInsufficientStakedAmount)
	assert.Len(t, rec.calls, 1)

	_, err = Withdraw(tr.Pool, tr.Staker, 0, 5, rec.transfer)
	require.ErrorIs(t, err, ErrAmountIsZero)
}

func TestWithdrawThenClaim(t *testing.T) {
	rec := &recorder{}
	pool := newPool(t, 10, 0)

	tr, err := Stake(pool, model.NewStakerAccount(pool.ID, alice), 500, 0, rec.transfer)
	require.NoError(t, err)

	tr, err = Withdraw(tr.Pool, tr.Staker, 500, 20, rec.transfer)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tr.Staker.Amount)
	assert.Equal(t, uint64(0), tr.Pool.TotalSupply)
	assert.Equal(t, uint64(200), tr.Staker.Rewards)
	assert.False(t, tr.Staker.Closed())

	tr, err = Claim(tr.Pool, tr.Staker, 30, rec.transfer)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), tr.Claimed)
	assert.Equal(t, uint64(0), tr.Staker.Rewards)
	assert.True(t, tr.Staker.Closed())

	last := rec.calls[len(rec.calls)-1]
	assert.Equal(t, pool.RewardsToken, last.asset)
	assert.Equal(t, pool.RewardVault(), last.from)
	assert.Equal(t, uint64(200), last.amount)

	_, err = Claim(tr.Pool, tr.Staker, 40, rec.transfer)
	require.ErrorIs(t, err, ErrNoRewards)
}

func TestProportionalFairness(t *testing.T) {
	rec := &recorder{}
	pool := newPool(t, 1000, 0)

	tr, err := Stake(pool, model.NewStakerAccount(pool.ID, alice), 300, 0, rec.transfer)
	require.NoError(t, err)
	a := tr.Staker
	tr, err = Stake(tr.Pool, model.NewStakerAccount(pool.ID, bob), 100, 0, rec.transfer)
	require.NoError(t, err)
	b := tr.Staker

	earnedA, err := Earned(tr.Pool, a, 97)
	require.NoError(t, err)
	earnedB, err := Earned(tr.Pool, b, 97)
	require.NoError(t, err)

	assert.InDelta(t, float64(3*earnedB), float64(earnedA), 3)
	assert.LessOrEqual(t, earnedA+earnedB, uint64(1000*97))
}

func TestConservation(t *testing.T) {
	rec := &recorder{}
	pool := newPool(t, 17, 0)
	stakers := map[common.Address]model.StakerAccount{
		alice: model.NewStakerAccount(pool.ID, alice),
		bob:   model.NewStakerAccount(pool.ID, bob),
	}

	steps := []struct {
		who      common.Address
		withdraw bool
		amount   uint64
	}{
		{alice, false, 40}, {bob, false, 7}, {alice, true, 15},
		{bob, false, 90}, {bob, true, 97}, {alice, false, 1}, {alice, true, 26},
	}
	for i, step := range steps {
		now := uint64(i * 11)
		var tr Transition
		var err error
		if step.withdraw {
			tr, err = Withdraw(pool, stakers[step.who], step.amount, now, rec.transfer)
		} else {
			tr, err = Stake(pool, stakers[step.who], step.amount, now, rec.transfer)
		}
		require.NoError(t, err)
		pool = tr.Pool
		stakers[step.who] = tr.Staker

		var sum uint64
		for _, s := range stakers {
			sum += s.Amount
			assert.LessOrEqual(t, s.RewardPerTokenPaid, pool.RewardPerTokenStored)
		}
		assert.Equal(t, sum, pool.TotalSupply)
	}
}

func TestAccrualContinuesPastFinish(t *testing.T) {
	rec := &recorder{}
	pool := newPool(t, 1, 0)
	pool.Duration = 10
	pool.FinishAt = 10

	tr, err := Stake(pool, model.NewStakerAccount(pool.ID, alice), 1, 0, rec.transfer)
	require.NoError(t, err)

	// finish_at is not consulted: accrual is uncapped.
	earned, err := Earned(tr.Pool, tr.Staker, 25)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), earned)
}
