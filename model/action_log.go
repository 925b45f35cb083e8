package model

import (
	"time"

	"gorm.io/datatypes"
)

// Action kinds recorded in the journal.
const (
	ActionCreateWaifu   = "create_waifu"
	ActionTrainAttacker = "train_attacker"
	ActionWithdraw      = "withdraw"
)

// ActionLog is the append-only journal of accepted actions. Replaying it in Seq
// order reproduces the ledger state.
type ActionLog struct {
	Seq       uint64         `gorm:"primaryKey;autoIncrement" json:"seq"`
	Kind      string         `gorm:"size:32;not null" json:"kind"`
	Caller    string         `gorm:"index:idx_action_caller;size:42;not null" json:"caller"`
	Params    datatypes.JSON `json:"params"`
	Payment   string         `gorm:"size:80;not null;default:'0'" json:"payment"`
	Now       uint64         `gorm:"not null" json:"now"`
	WaifuID   *uint64        `gorm:"index:idx_action_waifu" json:"waifu_id"`
	TraceID   string         `gorm:"size:36" json:"trace_id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
