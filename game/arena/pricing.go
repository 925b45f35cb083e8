package arena

import "math/big"

// TrainingKind names a paid training action.
type TrainingKind uint8

const (
	TrainingAttacker TrainingKind = iota
)

func (k TrainingKind) String() string {
	if k == TrainingAttacker {
		return "attacker"
	}
	return "unknown"
}

// Price table, in thousandths of an ether.
const (
	unitPriceMilli             = 100
	standardRoleFeeMilli       = 20
	specialRoleFeeMilli        = 50
	specialPersonalityFeeMilli = 30
	attackerTrainingFeeMilli   = 20
)

// ValidateCreation checks the creation parameters against their ranges.
func ValidateCreation(role Role, tier uint8, personality Personality) error {
	if !role.Valid() {
		return invalidParam("role %d out of range [0,%d)", role, roleCount)
	}
	if tier > MaxTier {
		return invalidParam("tier %d exceeds max %d", tier, MaxTier)
	}
	if !personality.Valid() {
		return invalidParam("personality %d out of range [0,%d)", personality, personalityCount)
	}
	return nil
}

// CreationCost returns the exact payment required to create a waifu:
// 0.1 ether per tier step (tier+1) plus the role fee plus the personality fee.
func CreationCost(tier uint8, role Role, personality Personality) (*big.Int, error) {
	if err := ValidateCreation(role, tier, personality); err != nil {
		return nil, err
	}
	cost := new(big.Int).Mul(milliEther(unitPriceMilli), big.NewInt(int64(tier)+1))
	if role == RoleSpecial {
		cost.Add(cost, milliEther(specialRoleFeeMilli))
	} else {
		cost.Add(cost, milliEther(standardRoleFeeMilli))
	}
	if personality == PersonalityMysterious {
		cost.Add(cost, milliEther(specialPersonalityFeeMilli))
	}
	return cost, nil
}

// TrainingCost returns the fixed fee for a training kind.
func TrainingCost(kind TrainingKind) (*big.Int, error) {
	switch kind {
	case TrainingAttacker:
		return milliEther(attackerTrainingFeeMilli), nil
	}
	return nil, invalidParam("training kind %d", kind)
}

func checkPayment(expected, received *big.Int) error {
	if received == nil {
		received = new(big.Int)
	}
	if expected.Cmp(received) != 0 {
		return &PaymentError{
			Expected: new(big.Int).Set(expected),
			Received: new(big.Int).Set(received),
		}
	}
	return nil
}
