package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/kasuganosora/waifuarena/game/arena"
	"github.com/kasuganosora/waifuarena/identity"
	"github.com/kasuganosora/waifuarena/model"
	"gorm.io/gorm"
)

// gormStore is an arena.Store over the waifus table. Bound to a transaction
// by the Service for mutations, or to the plain handle for reads.
type gormStore struct {
	tx *gorm.DB
}

func newStore(tx *gorm.DB) *gormStore { return &gormStore{tx: tx} }

func (s *gormStore) Count() (uint64, error) {
	var n int64
	if err := s.tx.Model(&model.Waifu{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("ledger: count waifus: %w", err)
	}
	return uint64(n), nil
}

func (s *gormStore) Get(id uint64) (*arena.Waifu, error) {
	var rec model.Waifu
	err := s.tx.Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, arena.ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: load waifu %d: %w", id, err)
	}
	return fromRecord(&rec)
}

func (s *gormStore) Create(g arena.Genesis) (uint64, error) {
	id, err := s.Count()
	if err != nil {
		return 0, err
	}
	rec, err := toRecord(arena.NewWaifu(id, g))
	if err != nil {
		return 0, err
	}
	if err := s.tx.Create(rec).Error; err != nil {
		return 0, fmt.Errorf("ledger: insert waifu %d: %w", id, err)
	}
	return id, nil
}

func (s *gormStore) Update(id uint64, mutate func(w *arena.Waifu) error) error {
	w, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := mutate(w); err != nil {
		return err
	}
	w.ID = id
	rec, err := toRecord(w)
	if err != nil {
		return err
	}
	// Where instead of Save: id 0 is a valid key and Save would insert it.
	res := s.tx.Model(&model.Waifu{}).
		Where("id = ?", id).
		Select("*").
		Omit("id", "created_at").
		Updates(rec)
	if res.Error != nil {
		return fmt.Errorf("ledger: update waifu %d: %w", id, res.Error)
	}
	return nil
}

// ListByOwner returns the owner's waifus in id order.
func (s *gormStore) ListByOwner(owner identity.Address) ([]*arena.Waifu, error) {
	var recs []model.Waifu
	if err := s.tx.Where("owner = ?", owner.Hex()).Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("ledger: list waifus: %w", err)
	}
	return decodeAll(recs)
}

// All returns every waifu in id order.
func (s *gormStore) All() ([]*arena.Waifu, error) {
	var recs []model.Waifu
	if err := s.tx.Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("ledger: list waifus: %w", err)
	}
	return decodeAll(recs)
}

func decodeAll(recs []model.Waifu) ([]*arena.Waifu, error) {
	out := make([]*arena.Waifu, 0, len(recs))
	for i := range recs {
		w, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// gormTreasury is an arena.Treasury over the singleton treasury row.
type gormTreasury struct {
	tx *gorm.DB
}

func newTreasury(tx *gorm.DB) *gormTreasury { return &gormTreasury{tx: tx} }

// ensureTreasury creates the singleton row if it does not exist yet.
func ensureTreasury(db *gorm.DB) error {
	st := model.TreasuryState{ID: model.TreasuryID, Balance: "0"}
	return db.Where("id = ?", model.TreasuryID).FirstOrCreate(&st).Error
}

func (t *gormTreasury) Balance() (*big.Int, error) {
	var st model.TreasuryState
	if err := t.tx.Where("id = ?", model.TreasuryID).Take(&st).Error; err != nil {
		return nil, fmt.Errorf("ledger: load treasury: %w", err)
	}
	b, err := arena.ParseWei(st.Balance)
	if err != nil {
		return nil, fmt.Errorf("ledger: treasury balance %q: %w", st.Balance, err)
	}
	return b, nil
}

func (t *gormTreasury) Credit(amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: negative credit %s", arena.ErrInvalidParameter, amount)
	}
	b, err := t.Balance()
	if err != nil {
		return err
	}
	return t.set(b.Add(b, amount))
}

func (t *gormTreasury) Reset() error {
	return t.set(new(big.Int))
}

func (t *gormTreasury) set(v *big.Int) error {
	err := t.tx.Model(&model.TreasuryState{}).
		Where("id = ?", model.TreasuryID).
		Update("balance", v.String()).Error
	if err != nil {
		return fmt.Errorf("ledger: store treasury: %w", err)
	}
	return nil
}

// payoutRecorder disburses by writing a payout row in the same transaction,
// so a rolled back withdrawal leaves no payout behind.
type payoutRecorder struct {
	tx *gorm.DB
}

func (p payoutRecorder) Transfer(to identity.Address, amount *big.Int) error {
	return p.tx.Create(&model.Payout{To: to.Hex(), Amount: amount.String()}).Error
}
