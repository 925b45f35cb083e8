package ledger

import (
	"testing"

	"github.com/kasuganosora/waifuarena/game/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestRecord_RoundTrip(t *testing.T) {
	w := arena.NewWaifu(4, arena.Genesis{
		Owner: alice, Role: arena.RoleSpecial, Tier: 9, Personality: arena.PersonalityMysterious,
		Stats: arena.BaseStats(9), Now: 77,
	})
	w.AppendItem(11)
	w.AppendItem(12)
	w.QuestProgress[4] = 3
	w.ItemTypeBoosts[3] = 8
	w.IsFused = true

	rec, err := toRecord(w)
	require.NoError(t, err)
	assert.Equal(t, alice.Hex(), rec.Owner)
	assert.JSONEq(t, `[77,77,77]`, string(rec.Cooldowns))
	assert.JSONEq(t, `[11,12]`, string(rec.Items))

	back, err := fromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, w, back)
}

func TestRecord_EmptyItems(t *testing.T) {
	w := arena.NewWaifu(0, arena.Genesis{Owner: bob, Stats: arena.BaseStats(0)})
	w.Items = nil

	rec, err := toRecord(w)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(rec.Items))

	rec.Items = datatypes.JSON(`null`)
	back, err := fromRecord(rec)
	require.NoError(t, err)
	assert.NotNil(t, back.Items)
	assert.Equal(t, 0, back.ItemCount())
}

func TestRecord_WrongArrayLength(t *testing.T) {
	w := arena.NewWaifu(0, arena.Genesis{Owner: bob, Stats: arena.BaseStats(0)})
	rec, err := toRecord(w)
	require.NoError(t, err)

	rec.Skills = datatypes.JSON(`[1,2]`)
	_, err = fromRecord(rec)
	assert.ErrorContains(t, err, "skills")
}

func TestRecord_BadOwner(t *testing.T) {
	w := arena.NewWaifu(0, arena.Genesis{Owner: bob, Stats: arena.BaseStats(0)})
	rec, err := toRecord(w)
	require.NoError(t, err)

	rec.Owner = "not-an-address"
	_, err = fromRecord(rec)
	assert.Error(t, err)
}
