package arena

import (
	"fmt"
	"math/big"

	"github.com/kasuganosora/waifuarena/identity"
)

// Training effect constants.
const (
	TrainAttackGain uint64 = 5 // plus the waifu's tier
	TrainSpeedGain  uint64 = 1 // attackers only
	TrainExpGain    uint64 = 10
)

// Machine is the transition function over a Store and a Treasury.
// Each call either commits one mutation or returns a rejection with no side effects.
// It never reads a clock: now is the host ledger's transaction time in unix seconds.
type Machine struct {
	store    Store
	treasury Treasury
	admin    identity.Address
}

// NewMachine binds a machine to its state and administrator.
func NewMachine(store Store, treasury Treasury, admin identity.Address) *Machine {
	return &Machine{store: store, treasury: treasury, admin: admin}
}

// Owner returns the administrator identity.
func (m *Machine) Owner() identity.Address { return m.admin }

// Count returns the number of created waifus.
func (m *Machine) Count() (uint64, error) { return m.store.Count() }

// Waifu returns a copy of the record with the given id.
func (m *Machine) Waifu(id uint64) (*Waifu, error) { return m.store.Get(id) }

// Balance returns the treasury balance.
func (m *Machine) Balance() (*big.Int, error) { return m.treasury.Balance() }

// CreateWaifu creates a waifu owned by caller. payment must equal CreationCost exactly.
// The new id equals the count before the call.
func (m *Machine) CreateWaifu(caller identity.Address, role Role, tier uint8, personality Personality, payment *big.Int, now uint64) (uint64, error) {
	if err := ValidateCreation(role, tier, personality); err != nil {
		return 0, err
	}
	cost, err := CreationCost(tier, role, personality)
	if err != nil {
		return 0, err
	}
	if err := checkPayment(cost, payment); err != nil {
		return 0, err
	}

	id, err := m.store.Create(Genesis{
		Owner:       caller,
		Role:        role,
		Tier:        tier,
		Personality: personality,
		Stats:       BaseStats(tier),
		Now:         now,
	})
	if err != nil {
		return 0, fmt.Errorf("arena: create: %w", err)
	}
	if err := m.treasury.Credit(payment); err != nil {
		return 0, fmt.Errorf("arena: credit: %w", err)
	}
	return id, nil
}

// TrainAttacker runs a paid attacker training session. Checks run in order:
// existence, ownership, cooldown, payment. Fused waifus can still train.
func (m *Machine) TrainAttacker(caller identity.Address, id uint64, payment *big.Int, now uint64) (*Waifu, error) {
	w, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if w.Owner != caller {
		return nil, ErrNotOwner
	}
	if !IsEligible(w, ClassTraining, now) {
		return nil, &CooldownError{Class: ClassTraining, EligibleAt: EligibleAt(w, ClassTraining)}
	}
	cost, err := TrainingCost(TrainingAttacker)
	if err != nil {
		return nil, err
	}
	if err := checkPayment(cost, payment); err != nil {
		return nil, err
	}

	err = m.store.Update(id, func(w *Waifu) error {
		applyAttackerTraining(w, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("arena: train: %w", err)
	}
	if err := m.treasury.Credit(payment); err != nil {
		return nil, fmt.Errorf("arena: credit: %w", err)
	}
	return m.store.Get(id)
}

func applyAttackerTraining(w *Waifu, now uint64) {
	w.Attack += TrainAttackGain + uint64(w.Tier)
	if w.Role == RoleAttacker {
		w.Speed += TrainSpeedGain
	}
	w.Exp += TrainExpGain
	w.TrainingCount++
	w.Cooldowns[classIndex(ClassTraining)] = NextCooldown(w, ClassTraining, now)
}

// Withdraw pays the whole treasury balance to the administrator and zeroes it.
// If the payout fails nothing changes. A zero balance withdraws nothing and succeeds.
func (m *Machine) Withdraw(caller identity.Address, payout Payout) (*big.Int, error) {
	if caller != m.admin || m.admin.IsZero() {
		return nil, ErrNotAuthorized
	}
	balance, err := m.treasury.Balance()
	if err != nil {
		return nil, fmt.Errorf("arena: balance: %w", err)
	}
	if balance.Sign() == 0 {
		return balance, nil
	}
	if err := payout.Transfer(m.admin, balance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := m.treasury.Reset(); err != nil {
		return nil, fmt.Errorf("arena: reset: %w", err)
	}
	return balance, nil
}
