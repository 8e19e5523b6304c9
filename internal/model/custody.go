package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AccountID names a custodial holding location.
type AccountID string

// StakerCustody is the personal holding of a staker.
func StakerCustody(staker common.Address) AccountID {
	return AccountID(staker.Hex())
}

// VaultAccount is a pooled holding owned by a staking pool.
func VaultAccount(poolID PoolID, name string) AccountID {
	return AccountID(fmt.Sprintf("pool/%s/%s", poolID, name))
}

// Balance is a custodial balance of one asset.
type Balance struct {
	Account AccountID      `json:"account"`
	Asset   common.Address `json:"asset"`
	Amount  uint64         `json:"amount,string"`
}
