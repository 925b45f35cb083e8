package arena

import "github.com/kasuganosora/waifuarena/identity"

// Role is a waifu's combat role. Immutable after creation.
type Role uint8

const (
	RoleAttacker Role = iota
	RoleDefender
	RoleSupport
	RoleTank
	RoleSpecial
	roleCount
)

func (r Role) Valid() bool { return r < roleCount }

func (r Role) String() string {
	switch r {
	case RoleAttacker:
		return "attacker"
	case RoleDefender:
		return "defender"
	case RoleSupport:
		return "support"
	case RoleTank:
		return "tank"
	case RoleSpecial:
		return "special"
	}
	return "unknown"
}

// Personality is fixed at creation. PersonalityMysterious carries a creation surcharge.
type Personality uint8

const (
	PersonalityAggressive Personality = iota
	PersonalityCalm
	PersonalityCheerful
	PersonalityShy
	PersonalityMysterious
	personalityCount
)

func (p Personality) Valid() bool { return p < personalityCount }

func (p Personality) String() string {
	switch p {
	case PersonalityAggressive:
		return "aggressive"
	case PersonalityCalm:
		return "calm"
	case PersonalityCheerful:
		return "cheerful"
	case PersonalityShy:
		return "shy"
	case PersonalityMysterious:
		return "mysterious"
	}
	return "unknown"
}

// MaxTier is the highest tier a waifu can be created at.
const MaxTier uint8 = 9

// Fixed array sizes of the record.
const (
	SlotCount         = 3 // skills, traits, cooldowns, modifiers
	ClassCount        = 5 // questProgress, roleSynergyBonus, battleHistory
	ItemCategoryCount = 4 // itemTypeBoosts
)

// Stats are the core combat attributes.
type Stats struct {
	Attack  uint64
	Defense uint64
	Speed   uint64
	HP      uint64
	Stamina uint64
	Exp     uint64
}

// BaseStats returns the floor stats of a freshly created waifu of the given tier.
func BaseStats(tier uint8) Stats {
	t := uint64(tier)
	return Stats{
		Attack:  10 + 5*t,
		Defense: 10 + 5*t,
		Speed:   10 + 2*t,
		HP:      100 + 20*t,
		Stamina: 100,
	}
}

// Waifu is the ledger record. Field order is the positional layout external
// decoders rely on; do not reorder.
type Waifu struct {
	ID                  uint64                    `json:"id"`
	Owner               identity.Address          `json:"owner"`
	Role                Role                      `json:"role"`
	Tier                uint8                     `json:"tier"`
	Personality         Personality               `json:"personality"`
	Attack              uint64                    `json:"attack"`
	Defense             uint64                    `json:"defense"`
	Speed               uint64                    `json:"speed"`
	HP                  uint64                    `json:"hp"`
	Stamina             uint64                    `json:"stamina"`
	Exp                 uint64                    `json:"exp"`
	Skills              [SlotCount]uint64         `json:"skills"`
	Traits              [SlotCount]uint64         `json:"traits"`
	Cooldowns           [SlotCount]uint64         `json:"cooldowns"`
	Modifiers           [SlotCount]uint64         `json:"modifiers"`
	QuestProgress       [ClassCount]uint64        `json:"quest_progress"`
	Items               []uint64                  `json:"items"`
	IsFused             bool                      `json:"is_fused"`
	LastBattleTimestamp uint64                    `json:"last_battle_timestamp"`
	TrainingCount       uint64                    `json:"training_count"`
	RoleSynergyBonus    [ClassCount]uint64        `json:"role_synergy_bonus"`
	PersonalityBoost    uint64                    `json:"personality_boost"`
	BattleHistory       [ClassCount]uint64        `json:"battle_history"`
	ItemTypeBoosts      [ItemCategoryCount]uint64 `json:"item_type_boosts"`
	LastRestTimestamp   uint64                    `json:"last_rest_timestamp"`
}

// Genesis carries the inputs of a creation.
type Genesis struct {
	Owner       identity.Address
	Role        Role
	Tier        uint8
	Personality Personality
	Stats       Stats
	Now         uint64
}

// NewWaifu builds the initial record for id. Arrays are zeroed and every
// cooldown starts at the creation time.
func NewWaifu(id uint64, g Genesis) *Waifu {
	w := &Waifu{
		ID:          id,
		Owner:       g.Owner,
		Role:        g.Role,
		Tier:        g.Tier,
		Personality: g.Personality,
		Attack:      g.Stats.Attack,
		Defense:     g.Stats.Defense,
		Speed:       g.Stats.Speed,
		HP:          g.Stats.HP,
		Stamina:     g.Stats.Stamina,
		Exp:         g.Stats.Exp,
		Items:       []uint64{},
	}
	for i := range w.Cooldowns {
		w.Cooldowns[i] = g.Now
	}
	return w
}

// Clone returns a deep copy. Items is never nil in the copy.
func (w *Waifu) Clone() *Waifu {
	c := *w
	c.Items = make([]uint64, len(w.Items))
	copy(c.Items, w.Items)
	return &c
}

// AppendItem adds an item id to the end of the items sequence.
func (w *Waifu) AppendItem(itemID uint64) {
	w.Items = append(w.Items, itemID)
}

// ItemAt returns the item at index i.
func (w *Waifu) ItemAt(i int) (uint64, bool) {
	if i < 0 || i >= len(w.Items) {
		return 0, false
	}
	return w.Items[i], true
}

// ItemCount returns the length of the items sequence.
func (w *Waifu) ItemCount() int { return len(w.Items) }

// Tuple returns the record as a positional list in field order.
func (w *Waifu) Tuple() []any {
	items := w.Items
	if items == nil {
		items = []uint64{}
	}
	return []any{
		w.ID,
		w.Owner,
		uint8(w.Role),
		w.Tier,
		uint8(w.Personality),
		w.Attack,
		w.Defense,
		w.Speed,
		w.HP,
		w.Stamina,
		w.Exp,
		w.Skills,
		w.Traits,
		w.Cooldowns,
		w.Modifiers,
		w.QuestProgress,
		items,
		w.IsFused,
		w.LastBattleTimestamp,
		w.TrainingCount,
		w.RoleSynergyBonus,
		w.PersonalityBoost,
		w.BattleHistory,
		w.ItemTypeBoosts,
		w.LastRestTimestamp,
	}
}
