package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/kasuganosora/waifuarena/game/arena"
	"github.com/kasuganosora/waifuarena/identity"
	"github.com/kasuganosora/waifuarena/model"
	"gorm.io/datatypes"
)

func jsonColumn(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// toRecord flattens an arena record into its table row.
func toRecord(w *arena.Waifu) (*model.Waifu, error) {
	rec := &model.Waifu{
		ID:                  w.ID,
		Owner:               w.Owner.Hex(),
		Role:                uint8(w.Role),
		Tier:                w.Tier,
		Personality:         uint8(w.Personality),
		Attack:              w.Attack,
		Defense:             w.Defense,
		Speed:               w.Speed,
		HP:                  w.HP,
		Stamina:             w.Stamina,
		Exp:                 w.Exp,
		IsFused:             w.IsFused,
		LastBattleTimestamp: w.LastBattleTimestamp,
		TrainingCount:       w.TrainingCount,
		PersonalityBoost:    w.PersonalityBoost,
		LastRestTimestamp:   w.LastRestTimestamp,
	}
	items := w.Items
	if items == nil {
		items = []uint64{}
	}
	cols := []struct {
		dst *datatypes.JSON
		src any
	}{
		{&rec.Skills, w.Skills},
		{&rec.Traits, w.Traits},
		{&rec.Cooldowns, w.Cooldowns},
		{&rec.Modifiers, w.Modifiers},
		{&rec.QuestProgress, w.QuestProgress},
		{&rec.Items, items},
		{&rec.RoleSynergyBonus, w.RoleSynergyBonus},
		{&rec.BattleHistory, w.BattleHistory},
		{&rec.ItemTypeBoosts, w.ItemTypeBoosts},
	}
	for _, c := range cols {
		j, err := jsonColumn(c.src)
		if err != nil {
			return nil, fmt.Errorf("ledger: encode waifu %d: %w", w.ID, err)
		}
		*c.dst = j
	}
	return rec, nil
}

// fromRecord rebuilds the arena record from its table row. Fixed-size arrays
// reject rows whose JSON has the wrong length.
func fromRecord(rec *model.Waifu) (*arena.Waifu, error) {
	owner, err := identity.ParseAddress(rec.Owner)
	if err != nil {
		return nil, fmt.Errorf("ledger: waifu %d owner: %w", rec.ID, err)
	}
	w := &arena.Waifu{
		ID:                  rec.ID,
		Owner:               owner,
		Role:                arena.Role(rec.Role),
		Tier:                rec.Tier,
		Personality:         arena.Personality(rec.Personality),
		Attack:              rec.Attack,
		Defense:             rec.Defense,
		Speed:               rec.Speed,
		HP:                  rec.HP,
		Stamina:             rec.Stamina,
		Exp:                 rec.Exp,
		IsFused:             rec.IsFused,
		LastBattleTimestamp: rec.LastBattleTimestamp,
		TrainingCount:       rec.TrainingCount,
		PersonalityBoost:    rec.PersonalityBoost,
		LastRestTimestamp:   rec.LastRestTimestamp,
	}

	arrays := []struct {
		name string
		src  datatypes.JSON
		dst  []uint64
	}{
		{"skills", rec.Skills, w.Skills[:]},
		{"traits", rec.Traits, w.Traits[:]},
		{"cooldowns", rec.Cooldowns, w.Cooldowns[:]},
		{"modifiers", rec.Modifiers, w.Modifiers[:]},
		{"quest_progress", rec.QuestProgress, w.QuestProgress[:]},
		{"role_synergy_bonus", rec.RoleSynergyBonus, w.RoleSynergyBonus[:]},
		{"battle_history", rec.BattleHistory, w.BattleHistory[:]},
		{"item_type_boosts", rec.ItemTypeBoosts, w.ItemTypeBoosts[:]},
	}
	for _, a := range arrays {
		var vals []uint64
		if len(a.src) > 0 {
			if err := json.Unmarshal(a.src, &vals); err != nil {
				return nil, fmt.Errorf("ledger: waifu %d %s: %w", rec.ID, a.name, err)
			}
		}
		if len(vals) != len(a.dst) {
			return nil, fmt.Errorf("ledger: waifu %d %s: want %d entries, got %d", rec.ID, a.name, len(a.dst), len(vals))
		}
		copy(a.dst, vals)
	}

	w.Items = []uint64{}
	if len(rec.Items) > 0 {
		if err := json.Unmarshal(rec.Items, &w.Items); err != nil {
			return nil, fmt.Errorf("ledger: waifu %d items: %w", rec.ID, err)
		}
		if w.Items == nil {
			w.Items = []uint64{}
		}
	}
	return w, nil
}
