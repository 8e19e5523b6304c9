package model

import "github.com/ethereum/go-ethereum/common"

// Operation names a ledger state transition.
type Operation string

const (
	OpInitialize Operation = "initialize"
	OpStake      Operation = "stake"
	OpWithdraw   Operation = "withdraw"
	OpClaim      Operation = "claim_rewards"
)

// OperationRecord is the journal entry written for a committed operation.
type OperationRecord struct {
	Seq            uint64         `json:"seq"`
	Operation      Operation      `json:"operation"`
	PoolID         PoolID         `json:"pool_id"`
	Staker         common.Address `json:"staker"`
	Amount         uint64         `json:"amount,string"`
	Timestamp      uint64         `json:"timestamp"`
	RewardPerToken uint64         `json:"reward_per_token,string"`
	TotalSupply    uint64         `json:"total_supply,string"`
	StakerAmount   uint64         `json:"staker_amount,string"`
	StakerRewards  uint64         `json:"staker_rewards,string"`
	IngestedAt     string         `json:"ingested_at"`
}
