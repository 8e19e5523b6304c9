package model

import "github.com/ethereum/go-ethereum/common"

// StakerAccount is the per-depositor record of a pool.
type StakerAccount struct {
	PoolID             PoolID         `json:"pool_id"`
	Staker             common.Address `json:"staker"`
	Amount             uint64         `json:"amount,string"`
	RewardPerTokenPaid uint64         `json:"reward_per_token_paid,string"`
	Rewards            uint64         `json:"rewards,string"`
}

// NewStakerAccount returns the empty record a staker starts from.
func NewStakerAccount(poolID PoolID, staker common.Address) StakerAccount {
	return StakerAccount{PoolID: poolID, Staker: staker}
}

// Closed reports whether the account holds neither stake nor pending rewards.
func (s StakerAccount) Closed() bool {
	return s.Amount == 0 && s.Rewards == 0
}
