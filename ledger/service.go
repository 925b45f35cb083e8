package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/kasuganosora/waifuarena/cache"
	"github.com/kasuganosora/waifuarena/game/arena"
	"github.com/kasuganosora/waifuarena/identity"
	"github.com/kasuganosora/waifuarena/metrics"
	"github.com/kasuganosora/waifuarena/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateRequest asks for a new waifu paid with Value wei.
type CreateRequest struct {
	Caller      identity.Address
	Role        arena.Role
	Tier        uint8
	Personality arena.Personality
	Value       *big.Int
	TraceID     string
}

// TrainRequest asks for one attacker training session.
type TrainRequest struct {
	Caller  identity.Address
	WaifuID uint64
	Value   *big.Int
	TraceID string
}

// WithdrawRequest asks to pay the treasury out to the administrator.
type WithdrawRequest struct {
	Caller  identity.Address
	TraceID string
}

// Service hosts the arena state machine over the database. Actions are applied
// one at a time; each runs in its own transaction together with its journal
// entry, so a rejected or failed action leaves no trace.
type Service struct {
	db      *gorm.DB
	admin   identity.Address
	ps      cache.PubSub
	metrics *metrics.Metrics
	logger  *zap.Logger

	clock  func() time.Time
	payout func(tx *gorm.DB) arena.Payout

	mu      sync.Mutex
	lastNow uint64
}

// New creates a Service. ps and m may be nil.
func New(db *gorm.DB, admin identity.Address, ps cache.PubSub, m *metrics.Metrics, logger *zap.Logger) (*Service, error) {
	if err := ensureTreasury(db); err != nil {
		return nil, fmt.Errorf("ledger: init treasury: %w", err)
	}
	svc := &Service{
		db:      db,
		admin:   admin,
		ps:      ps,
		metrics: m,
		logger:  logger,
		clock:   time.Now,
		payout:  func(tx *gorm.DB) arena.Payout { return payoutRecorder{tx: tx} },
	}

	var last struct{ Now uint64 }
	if err := db.Model(&model.ActionLog{}).Select("COALESCE(MAX(now), 0) AS now").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("ledger: load journal head: %w", err)
	}
	svc.lastNow = last.Now

	if admin.IsZero() {
		logger.Warn("no administrator configured, withdrawals are disabled")
	}
	svc.refreshGauges()
	return svc, nil
}

// SetClock replaces the wall clock used to stamp actions.
func (svc *Service) SetClock(clock func() time.Time) {
	svc.mu.Lock()
	svc.clock = clock
	svc.mu.Unlock()
}

// tick returns the ledger time for the next action, never earlier than the
// last committed one. Must be called with mu held.
func (svc *Service) tick() uint64 {
	var now uint64
	if sec := svc.clock().Unix(); sec > 0 {
		now = uint64(sec)
	}
	if now < svc.lastNow {
		now = svc.lastNow
	}
	return now
}

// Owner returns the administrator identity.
func (svc *Service) Owner() identity.Address { return svc.admin }

// Count returns the number of waifus.
func (svc *Service) Count(ctx context.Context) (uint64, error) {
	return newStore(svc.db.WithContext(ctx)).Count()
}

// Waifu returns the record with the given id.
func (svc *Service) Waifu(ctx context.Context, id uint64) (*arena.Waifu, error) {
	return newStore(svc.db.WithContext(ctx)).Get(id)
}

// ListByOwner returns the owner's waifus in id order.
func (svc *Service) ListByOwner(ctx context.Context, owner identity.Address) ([]*arena.Waifu, error) {
	return newStore(svc.db.WithContext(ctx)).ListByOwner(owner)
}

// Treasury returns the current balance in wei.
func (svc *Service) Treasury(ctx context.Context) (*big.Int, error) {
	return newTreasury(svc.db.WithContext(ctx)).Balance()
}

// Quote returns the creation price for the given parameters.
func (svc *Service) Quote(role arena.Role, tier uint8, personality arena.Personality) (*big.Int, error) {
	if err := arena.ValidateCreation(role, tier, personality); err != nil {
		return nil, err
	}
	return arena.CreationCost(tier, role, personality)
}

// CreateWaifu runs a creation and returns the new record.
func (svc *Service) CreateWaifu(ctx context.Context, req CreateRequest) (*arena.Waifu, error) {
	params := map[string]any{
		"role":        uint8(req.Role),
		"tier":        req.Tier,
		"personality": uint8(req.Personality),
	}
	var created *arena.Waifu
	err := svc.execute(ctx, model.ActionCreateWaifu, req.Caller, req.TraceID, req.Value, params,
		func(m *arena.Machine, tx *gorm.DB, now uint64) (*actionResult, error) {
			id, err := m.CreateWaifu(req.Caller, req.Role, req.Tier, req.Personality, req.Value, now)
			if err != nil {
				return nil, err
			}
			if created, err = m.Waifu(id); err != nil {
				return nil, err
			}
			return &actionResult{waifuID: &id, amount: req.Value, waifu: created}, nil
		})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// TrainAttacker runs one attacker training session and returns the updated record.
func (svc *Service) TrainAttacker(ctx context.Context, req TrainRequest) (*arena.Waifu, error) {
	var trained *arena.Waifu
	err := svc.execute(ctx, model.ActionTrainAttacker, req.Caller, req.TraceID, req.Value, map[string]any{"waifu_id": req.WaifuID},
		func(m *arena.Machine, tx *gorm.DB, now uint64) (*actionResult, error) {
			w, err := m.TrainAttacker(req.Caller, req.WaifuID, req.Value, now)
			if err != nil {
				return nil, err
			}
			trained = w
			id := req.WaifuID
			return &actionResult{waifuID: &id, amount: req.Value, waifu: w}, nil
		})
	if err != nil {
		return nil, err
	}
	return trained, nil
}

// Withdraw pays the treasury out to the administrator and returns the amount.
func (svc *Service) Withdraw(ctx context.Context, req WithdrawRequest) (*big.Int, error) {
	var amount *big.Int
	err := svc.execute(ctx, model.ActionWithdraw, req.Caller, req.TraceID, nil, nil,
		func(m *arena.Machine, tx *gorm.DB, now uint64) (*actionResult, error) {
			paid, err := m.Withdraw(req.Caller, svc.payout(tx))
			if err != nil {
				return nil, err
			}
			amount = paid
			return &actionResult{amount: paid, params: map[string]any{"amount": paid.String()}}, nil
		})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

type actionResult struct {
	waifuID *uint64
	amount  *big.Int
	waifu   *arena.Waifu
	params  map[string]any // overrides the request params in the journal
}

type actionFn func(m *arena.Machine, tx *gorm.DB, now uint64) (*actionResult, error)

// execute runs fn inside a transaction under the action lock. On success the
// journal entry is written in the same transaction and the event is published
// after commit.
func (svc *Service) execute(ctx context.Context, kind string, caller identity.Address, traceID string,
	payment *big.Int, params map[string]any, fn actionFn) error {
	start := time.Now()

	svc.mu.Lock()
	now := svc.tick()
	var (
		entry    *model.ActionLog
		res      *actionResult
		count    uint64
		treasury *big.Int
	)
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := arena.NewMachine(newStore(tx), newTreasury(tx), svc.admin)
		var err error
		if res, err = fn(m, tx, now); err != nil {
			return err
		}
		if res.params != nil {
			params = res.params
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		paid := "0"
		if payment != nil {
			paid = payment.String()
		}
		entry = &model.ActionLog{
			Kind:    kind,
			Caller:  caller.Hex(),
			Params:  datatypes.JSON(raw),
			Payment: paid,
			Now:     now,
			WaifuID: res.waifuID,
			TraceID: traceID,
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("ledger: append journal: %w", err)
		}
		if count, err = m.Count(); err != nil {
			return err
		}
		treasury, err = m.Balance()
		return err
	})
	if err == nil {
		svc.lastNow = now
	}
	svc.mu.Unlock()

	result := arena.KindOf(err)
	if svc.metrics != nil {
		svc.metrics.ObserveAction(kind, result, time.Since(start))
	}
	fields := []zap.Field{
		zap.String("action", kind),
		zap.String("caller", caller.Hex()),
		zap.String("trace_id", traceID),
		zap.Uint64("now", now),
	}
	switch {
	case err == nil:
	case arena.IsRejection(err):
		svc.logger.Debug("action rejected", append(fields, zap.String("result", result), zap.Error(err))...)
		return err
	default:
		svc.logger.Error("action failed", append(fields, zap.Error(err))...)
		return err
	}

	if res.waifuID != nil {
		fields = append(fields, zap.Uint64("waifu_id", *res.waifuID))
	}
	svc.logger.Info("action committed", append(fields, zap.Uint64("seq", entry.Seq))...)
	if svc.metrics != nil {
		svc.metrics.SetWaifus(count)
		svc.metrics.SetTreasury(treasury)
	}

	amount := "0"
	if res.amount != nil {
		amount = res.amount.String()
	}
	svc.publish(ctx, &Event{
		Seq:     entry.Seq,
		Kind:    kind,
		Caller:  entry.Caller,
		WaifuID: res.waifuID,
		Amount:  amount,
		Now:     now,
		Waifu:   res.waifu,
	})
	return nil
}

func (svc *Service) refreshGauges() {
	if svc.metrics == nil {
		return
	}
	if n, err := newStore(svc.db).Count(); err == nil {
		svc.metrics.SetWaifus(n)
	}
	if b, err := newTreasury(svc.db).Balance(); err == nil {
		svc.metrics.SetTreasury(b)
	}
}
