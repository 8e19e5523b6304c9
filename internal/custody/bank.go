package custody

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"stakingRewards/internal/model"
)

var (
	ErrInsufficientFunds = errors.New("insufficient custodial balance")
	ErrBalanceOverflow   = errors.New("custodial balance overflow")
)

type balanceKey struct {
	account model.AccountID
	asset   common.Address
}

// Bank is an in-memory token custodian. Transfers are atomic: a failed transfer
// leaves every balance unchanged.
type Bank struct {
	mu       sync.Mutex
	balances map[balanceKey]uint64
}

func NewBank() *Bank {
	return &Bank{balances: make(map[balanceKey]uint64)}
}

// Transfer moves amount of asset from one account to another.
func (b *Bank) Transfer(ctx context.Context, asset common.Address, from, to model.AccountID, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	src := balanceKey{account: from, asset: asset}
	dst := balanceKey{account: to, asset: asset}
	if b.balances[src] < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientFunds, from, b.balances[src], asset.Hex(), amount)
	}
	if from == to {
		return nil
	}
	if b.balances[dst]+amount < b.balances[dst] {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, to)
	}

	b.balances[src] -= amount
	b.balances[dst] += amount
	return nil
}

// Credit adds amount of asset to an account.
func (b *Bank) Credit(asset common.Address, account model.AccountID, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := balanceKey{account: account, asset: asset}
	if b.balances[key]+amount < b.balances[key] {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, account)
	}
	b.balances[key] += amount
	return nil
}

// Balance returns the amount of asset held by an account.
func (b *Bank) Balance(asset common.Address, account model.AccountID) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[balanceKey{account: account, asset: asset}]
}

// Snapshot returns every non-zero balance.
func (b *Bank) Snapshot() []model.Balance {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.Balance, 0, len(b.balances))
	for key, amount := range b.balances {
		if amount == 0 {
			continue
		}
		out = append(out, model.Balance{Account: key.account, Asset: key.asset, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Account != out[j].Account {
			return out[i].Account < out[j].Account
		}
		return out[i].Asset.Hex() < out[j].Asset.Hex()
	})
	return out
}

// Restore replaces every balance.
func (b *Bank) Restore(balances []model.Balance) {
	next := make(map[balanceKey]uint64, len(balances))
	for _, bal := range balances {
		next[balanceKey{account: bal.Account, asset: bal.Asset}] = bal.Amount
	}
	b.mu.Lock()
	b.balances = next
	b.mu.Unlock()
}
