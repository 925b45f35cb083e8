package arena

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ether(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := ParseEther(s)
	require.NoError(t, err)
	return v
}

func TestCreationCost_Formula(t *testing.T) {
	cases := []struct {
		tier        uint8
		role        Role
		personality Personality
		want        string
	}{
		{0, RoleAttacker, PersonalityAggressive, "0.12"},
		{1, RoleAttacker, PersonalityAggressive, "0.22"},
		{0, RoleSpecial, PersonalityAggressive, "0.15"},
		{0, RoleAttacker, PersonalityMysterious, "0.15"},
		{2, RoleSpecial, PersonalityMysterious, "0.38"},
		{MaxTier, RoleTank, PersonalityShy, "1.02"},
	}
	for _, tc := range cases {
		got, err := CreationCost(tc.tier, tc.role, tc.personality)
		require.NoError(t, err)
		assert.Equal(t, 0, ether(t, tc.want).Cmp(got),
			"tier=%d role=%s personality=%s: got %s", tc.tier, tc.role, tc.personality, FormatEther(got))
	}
}

func TestCreationCost_MatchesExpressionForAllInputs(t *testing.T) {
	for tier := 0; tier <= int(MaxTier); tier++ {
		for r := 0; r < int(roleCount); r++ {
			for p := 0; p < int(personalityCount); p++ {
				want := new(big.Int).Mul(milliEther(100), big.NewInt(int64(tier+1)))
				if r == int(RoleSpecial) {
					want.Add(want, milliEther(50))
				} else {
					want.Add(want, milliEther(20))
				}
				if p == int(PersonalityMysterious) {
					want.Add(want, milliEther(30))
				}
				a, err := CreationCost(uint8(tier), Role(r), Personality(p))
				require.NoError(t, err)
				b, err := CreationCost(uint8(tier), Role(r), Personality(p))
				require.NoError(t, err)
				assert.Equal(t, 0, want.Cmp(a))
				assert.Equal(t, a.Bytes(), b.Bytes())
			}
		}
	}
}

func TestCreationCost_ReturnsFreshValue(t *testing.T) {
	a, _ := CreationCost(0, RoleAttacker, PersonalityAggressive)
	a.SetInt64(1)
	b, _ := CreationCost(0, RoleAttacker, PersonalityAggressive)
	assert.Equal(t, 0, ether(t, "0.12").Cmp(b))
}

func TestTrainingCost_ReturnsFreshValue(t *testing.T) {
	a, err := TrainingCost(TrainingAttacker)
	require.NoError(t, err)
	a.Add(a, big.NewInt(1))
	b, err := TrainingCost(TrainingAttacker)
	require.NoError(t, err)
	assert.Equal(t, 0, ether(t, "0.02").Cmp(b))

	c, _ := CreationCost(1, RoleAttacker, PersonalityAggressive)
	assert.Equal(t, 0, ether(t, "0.22").Cmp(c))
}

func TestCreationCost_OutOfRange(t *testing.T) {
	_, err := CreationCost(MaxTier+1, RoleAttacker, PersonalityAggressive)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = CreationCost(255, RoleAttacker, PersonalityAggressive)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = CreationCost(0, Role(5), PersonalityAggressive)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = CreationCost(0, RoleAttacker, Personality(9))
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestTrainingCost(t *testing.T) {
	got, err := TrainingCost(TrainingAttacker)
	require.NoError(t, err)
	assert.Equal(t, 0, ether(t, "0.02").Cmp(got))

	_, err = TrainingCost(TrainingKind(7))
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestCheckPayment_Direction(t *testing.T) {
	cost := ether(t, "0.22")

	err := checkPayment(cost, ether(t, "0.21"))
	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "insufficient", pe.Direction())
	assert.ErrorIs(t, err, ErrIncorrectPayment)

	err = checkPayment(cost, ether(t, "0.23"))
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "excess", pe.Direction())

	err = checkPayment(cost, nil)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, int64(0), pe.Received.Int64())

	assert.NoError(t, checkPayment(cost, ether(t, "0.22")))
}

func TestParseEther(t *testing.T) {
	v, err := ParseEther("0.22")
	require.NoError(t, err)
	assert.Equal(t, "220000000000000000", v.String())

	v, err = ParseEther("1")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", v.String())

	v, err = ParseEther(".5")
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", v.String())

	for _, bad := range []string{"", ".", " . ", "-1", "abc", "1.2.3", "0.0000000000000000001"} {
		_, err := ParseEther(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseWei(t *testing.T) {
	v, err := ParseWei("20000000000000000")
	require.NoError(t, err)
	assert.Equal(t, 0, milliEther(20).Cmp(v))

	_, err = ParseWei("-5")
	assert.Error(t, err)
	_, err = ParseWei("1e18")
	assert.Error(t, err)
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "0.22", FormatEther(ether(t, "0.22")))
	assert.Equal(t, "3", FormatEther(ether(t, "3")))
	assert.Equal(t, "0.000000000000000001", FormatEther(big.NewInt(1)))
	assert.Equal(t, "0", FormatEther(nil))
}
