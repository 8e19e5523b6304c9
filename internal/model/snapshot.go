package model

// Snapshot is the persisted form of a ledger and its custody balances.
type Snapshot struct {
	Pools     []Pool          `json:"pools"`
	Stakers   []StakerAccount `json:"stakers"`
	Balances  []Balance       `json:"balances"`
	UpdatedAt string          `json:"updated_at"`
}
