package model

import (
	"time"

	"gorm.io/datatypes"
)

// Waifu is the persisted projection of an arena record. ID is assigned by the
// ledger (dense, from 0), never by the database.
type Waifu struct {
	ID                  uint64         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Owner               string         `gorm:"index:idx_waifu_owner;size:42;not null" json:"owner"`
	Role                uint8          `gorm:"not null" json:"role"`
	Tier                uint8          `gorm:"not null" json:"tier"`
	Personality         uint8          `gorm:"not null" json:"personality"`
	Attack              uint64         `json:"attack"`
	Defense             uint64         `json:"defense"`
	Speed               uint64         `json:"speed"`
	HP                  uint64         `json:"hp"`
	Stamina             uint64         `json:"stamina"`
	Exp                 uint64         `json:"exp"`
	Skills              datatypes.JSON `json:"skills"`
	Traits              datatypes.JSON `json:"traits"`
	Cooldowns           datatypes.JSON `json:"cooldowns"`
	Modifiers           datatypes.JSON `json:"modifiers"`
	QuestProgress       datatypes.JSON `json:"quest_progress"`
	Items               datatypes.JSON `json:"items"`
	IsFused             bool           `gorm:"default:false" json:"is_fused"`
	LastBattleTimestamp uint64         `json:"last_battle_timestamp"`
	TrainingCount       uint64         `json:"training_count"`
	RoleSynergyBonus    datatypes.JSON `json:"role_synergy_bonus"`
	PersonalityBoost    uint64         `json:"personality_boost"`
	BattleHistory       datatypes.JSON `json:"battle_history"`
	ItemTypeBoosts      datatypes.JSON `json:"item_type_boosts"`
	LastRestTimestamp   uint64         `json:"last_rest_timestamp"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
