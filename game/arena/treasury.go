package arena

import (
	"math/big"

	"github.com/kasuganosora/waifuarena/identity"
)

// Treasury holds accumulated payments.
type Treasury interface {
	Balance() (*big.Int, error)
	Credit(amount *big.Int) error
	// Reset sets the balance to zero after a successful payout.
	Reset() error
}

// Payout moves funds to an external account. A failed Transfer must have no effect.
type Payout interface {
	Transfer(to identity.Address, amount *big.Int) error
}

// MemTreasury is an in-process Treasury.
type MemTreasury struct {
	balance *big.Int
}

func NewMemTreasury() *MemTreasury {
	return &MemTreasury{balance: new(big.Int)}
}

func (t *MemTreasury) Balance() (*big.Int, error) {
	return new(big.Int).Set(t.balance), nil
}

func (t *MemTreasury) Credit(amount *big.Int) error {
	if amount.Sign() < 0 {
		return invalidParam("negative credit %s", amount)
	}
	t.balance = new(big.Int).Add(t.balance, amount)
	return nil
}

func (t *MemTreasury) Reset() error {
	t.balance = new(big.Int)
	return nil
}

// PayoutTally is a Payout that only records totals. Used for re-execution,
// where the disbursement has already happened.
type PayoutTally struct {
	Count int
	Total *big.Int
}

func NewPayoutTally() *PayoutTally {
	return &PayoutTally{Total: new(big.Int)}
}

func (p *PayoutTally) Transfer(_ identity.Address, amount *big.Int) error {
	p.Count++
	p.Total = new(big.Int).Add(p.Total, amount)
	return nil
}
