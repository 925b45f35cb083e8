package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/kasuganosora/waifuarena/game/arena"
	"github.com/kasuganosora/waifuarena/identity"
	"github.com/kasuganosora/waifuarena/model"
	"gorm.io/gorm"
)

// Report is the outcome of a journal replay.
type Report struct {
	Actions    int      `json:"actions"`
	Waifus     uint64   `json:"waifus"`
	Treasury   string   `json:"treasury"`
	Payouts    int      `json:"payouts"`
	Mismatches []string `json:"mismatches"`
}

// OK reports whether the replayed state matched the persisted state.
func (r *Report) OK() bool { return len(r.Mismatches) == 0 }

func (r *Report) mismatch(format string, args ...any) {
	r.Mismatches = append(r.Mismatches, fmt.Sprintf(format, args...))
}

// Verify re-executes the journal on empty in-memory state and compares the
// result with the persisted waifus, treasury and payouts. Actions are blocked
// while it runs.
func (svc *Service) Verify(ctx context.Context) (*Report, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	db := svc.db.WithContext(ctx)
	store := arena.NewMemStore()
	treasury := arena.NewMemTreasury()
	tally := arena.NewPayoutTally()
	m := arena.NewMachine(store, treasury, svc.admin)
	report := &Report{Mismatches: []string{}}

	var batch []model.ActionLog
	// FindInBatches walks the journal in primary key (seq) order.
	err := db.FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
		for i := range batch {
			report.Actions++
			if err := replayOne(m, tally, &batch[i]); err != nil {
				report.mismatch("seq %d (%s): %v", batch[i].Seq, batch[i].Kind, err)
			}
		}
		return nil
	}).Error
	if err != nil {
		return nil, fmt.Errorf("ledger: read journal: %w", err)
	}

	persisted, err := newStore(db).All()
	if err != nil {
		return nil, err
	}
	replayed := store.All()
	report.Waifus = uint64(len(persisted))
	if len(persisted) != len(replayed) {
		report.mismatch("waifu count: persisted %d, replayed %d", len(persisted), len(replayed))
	}
	for i := 0; i < len(persisted) && i < len(replayed); i++ {
		if !sameTuple(persisted[i], replayed[i]) {
			report.mismatch("waifu %d differs from replay", persisted[i].ID)
		}
	}

	balance, err := newTreasury(db).Balance()
	if err != nil {
		return nil, err
	}
	report.Treasury = balance.String()
	want, _ := treasury.Balance()
	if balance.Cmp(want) != 0 {
		report.mismatch("treasury: persisted %s, replayed %s", balance, want)
	}

	var payouts []model.Payout
	if err := db.Find(&payouts).Error; err != nil {
		return nil, fmt.Errorf("ledger: read payouts: %w", err)
	}
	report.Payouts = len(payouts)
	paid := new(big.Int)
	for _, p := range payouts {
		v, err := arena.ParseWei(p.Amount)
		if err != nil {
			report.mismatch("payout %d amount %q: %v", p.ID, p.Amount, err)
			continue
		}
		paid.Add(paid, v)
	}
	if len(payouts) != tally.Count || paid.Cmp(tally.Total) != 0 {
		report.mismatch("payouts: persisted %d totalling %s, replayed %d totalling %s",
			len(payouts), paid, tally.Count, tally.Total)
	}
	return report, nil
}

func replayOne(m *arena.Machine, tally *arena.PayoutTally, e *model.ActionLog) error {
	caller, err := identity.ParseAddress(e.Caller)
	if err != nil {
		return err
	}
	payment, err := arena.ParseWei(e.Payment)
	if err != nil {
		return err
	}

	switch e.Kind {
	case model.ActionCreateWaifu:
		var p struct {
			Role        uint8 `json:"role"`
			Tier        uint8 `json:"tier"`
			Personality uint8 `json:"personality"`
		}
		if err := json.Unmarshal(e.Params, &p); err != nil {
			return err
		}
		id, err := m.CreateWaifu(caller, arena.Role(p.Role), p.Tier, arena.Personality(p.Personality), payment, e.Now)
		if err != nil {
			return err
		}
		if e.WaifuID == nil || *e.WaifuID != id {
			return fmt.Errorf("journal id %v, replay assigned %d", e.WaifuID, id)
		}
	case model.ActionTrainAttacker:
		if e.WaifuID == nil {
			return fmt.Errorf("missing waifu id")
		}
		if _, err := m.TrainAttacker(caller, *e.WaifuID, payment, e.Now); err != nil {
			return err
		}
	case model.ActionWithdraw:
		if _, err := m.Withdraw(caller, tally); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown action kind")
	}
	return nil
}

// sameTuple compares the positional encodings, which is what external
// decoders observe.
func sameTuple(a, b *arena.Waifu) bool {
	ja, errA := json.Marshal(a.Tuple())
	jb, errB := json.Marshal(b.Tuple())
	return errA == nil && errB == nil && string(ja) == string(jb)
}
