package model

import "time"

// TreasuryID is the primary key of the singleton treasury row.
const TreasuryID = 1

// TreasuryState holds the treasury balance in wei as a base-10 string.
type TreasuryState struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Balance   string    `gorm:"size:80;not null;default:'0'" json:"balance"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Payout records a withdrawal disbursed to the administrator.
type Payout struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	To        string    `gorm:"size:42;not null" json:"to"`
	Amount    string    `gorm:"size:80;not null" json:"amount"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
