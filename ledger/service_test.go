package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/kasuganosora/waifuarena/cache"
	"github.com/kasuganosora/waifuarena/game/arena"
	"github.com/kasuganosora/waifuarena/identity"
	"github.com/kasuganosora/waifuarena/metrics"
	"github.com/kasuganosora/waifuarena/model"
	"github.com/kasuganosora/waifuarena/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	admin = identity.MustParseAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	alice = identity.MustParseAddress("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
	bob   = identity.MustParseAddress("0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB")
)

func nop() *zap.Logger { return zap.NewNop() }

type fakeClock struct {
	mu  sync.Mutex
	sec int64
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.sec, 0)
}

func (c *fakeClock) Set(sec int64) {
	c.mu.Lock()
	c.sec = sec
	c.mu.Unlock()
}

type harness struct {
	svc     *Service
	db      *gorm.DB
	ps      cache.PubSub
	metrics *metrics.Metrics
	clock   *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)
	_, ps := testutil.SetupTestCache(t)
	m, err := metrics.New()
	require.NoError(t, err)
	svc, err := New(db, admin, ps, m, nop())
	require.NoError(t, err)
	clock := &fakeClock{sec: 1000}
	svc.SetClock(clock.Now)
	return &harness{svc: svc, db: db, ps: ps, metrics: m, clock: clock}
}

func ether(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := arena.ParseEther(s)
	require.NoError(t, err)
	return v
}

func (h *harness) create(t *testing.T, caller identity.Address) *arena.Waifu {
	t.Helper()
	w, err := h.svc.CreateWaifu(context.Background(), CreateRequest{
		Caller: caller, Role: arena.RoleAttacker, Tier: 1, Personality: arena.PersonalityAggressive,
		Value: ether(t, "0.22"),
	})
	require.NoError(t, err)
	return w
}

func journal(t *testing.T, db *gorm.DB) []model.ActionLog {
	t.Helper()
	var logs []model.ActionLog
	require.NoError(t, db.Order("seq").Find(&logs).Error)
	return logs
}

func TestCreateWaifu_PersistsAndJournals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	w, err := h.svc.CreateWaifu(ctx, CreateRequest{
		Caller: alice, Role: arena.RoleAttacker, Tier: 1, Personality: arena.PersonalityAggressive,
		Value: ether(t, "0.22"), TraceID: "trace-1",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), w.ID)
	assert.Equal(t, alice, w.Owner)
	base := arena.BaseStats(1)
	assert.Equal(t, base.Attack, w.Attack)
	assert.Equal(t, base.Speed, w.Speed)
	assert.Equal(t, base.HP, w.HP)
	assert.Equal(t, [arena.SlotCount]uint64{1000, 1000, 1000}, w.Cooldowns)

	n, err := h.svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	bal, err := h.svc.Treasury(ctx)
	require.NoError(t, err)
	assert.Equal(t, "220000000000000000", bal.String())

	got, err := h.svc.Waifu(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, w, got)

	logs := journal(t, h.db)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionCreateWaifu, logs[0].Kind)
	assert.Equal(t, alice.Hex(), logs[0].Caller)
	assert.Equal(t, "220000000000000000", logs[0].Payment)
	assert.Equal(t, uint64(1000), logs[0].Now)
	assert.Equal(t, "trace-1", logs[0].TraceID)
	require.NotNil(t, logs[0].WaifuID)
	assert.Equal(t, uint64(0), *logs[0].WaifuID)
	assert.JSONEq(t, `{"role":0,"tier":1,"personality":0}`, string(logs[0].Params))
}

func TestCreateWaifu_RejectedLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateWaifu(ctx, CreateRequest{
		Caller: alice, Role: arena.RoleAttacker, Tier: 1, Personality: arena.PersonalityAggressive,
		Value: ether(t, "0.12"),
	})
	assert.ErrorIs(t, err, arena.ErrIncorrectPayment)

	_, err = h.svc.CreateWaifu(ctx, CreateRequest{
		Caller: alice, Role: arena.Role(9), Tier: 0, Value: ether(t, "0.12"),
	})
	assert.ErrorIs(t, err, arena.ErrInvalidParameter)

	n, _ := h.svc.Count(ctx)
	assert.Equal(t, uint64(0), n)
	bal, _ := h.svc.Treasury(ctx)
	assert.Equal(t, 0, bal.Sign())
	assert.Empty(t, journal(t, h.db))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.ActionsTotal.WithLabelValues(model.ActionCreateWaifu, arena.KindIncorrectPayment)))
}

func TestCreateWaifu_SequentialIDs(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		w := h.create(t, alice)
		assert.Equal(t, uint64(i), w.ID)
	}
	bobs := h.create(t, bob)
	assert.Equal(t, uint64(3), bobs.ID)

	mine, err := h.svc.ListByOwner(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	for i, w := range mine {
		assert.Equal(t, uint64(i), w.ID)
	}
	assert.Equal(t, 4.0, promtest.ToFloat64(h.metrics.Waifus))
}

func TestWaifu_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Waifu(context.Background(), 0)
	assert.ErrorIs(t, err, arena.ErrEntityNotFound)
}

func TestTrainAttacker_Scenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, alice)

	w, err := h.svc.TrainAttacker(ctx, TrainRequest{Caller: alice, WaifuID: 0, Value: ether(t, "0.02")})
	require.NoError(t, err)
	assert.Equal(t, uint64(15+5+1), w.Attack)
	assert.Equal(t, uint64(12+1), w.Speed)
	assert.Equal(t, uint64(10), w.Exp)
	assert.Equal(t, uint64(1), w.TrainingCount)
	assert.Equal(t, uint64(1000+arena.TrainingCooldown), w.Cooldowns[arena.ClassTraining])

	_, err = h.svc.TrainAttacker(ctx, TrainRequest{Caller: alice, WaifuID: 0, Value: ether(t, "0.02")})
	var cd *arena.CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, uint64(1000+arena.TrainingCooldown), cd.EligibleAt)

	h.clock.Set(1000 + int64(arena.TrainingCooldown))
	w, err = h.svc.TrainAttacker(ctx, TrainRequest{Caller: alice, WaifuID: 0, Value: ether(t, "0.02")})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), w.TrainingCount)
	assert.Equal(t, uint64(27), w.Attack)

	bal, _ := h.svc.Treasury(ctx)
	assert.Equal(t, 0, ether(t, "0.26").Cmp(bal))
	assert.Len(t, journal(t, h.db), 3)
}

func TestTrainAttacker_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, alice)

	_, err := h.svc.TrainAttacker(ctx, TrainRequest{Caller: bob, WaifuID: 0, Value: ether(t, "0.02")})
	assert.ErrorIs(t, err, arena.ErrNotOwner)

	_, err = h.svc.TrainAttacker(ctx, TrainRequest{Caller: alice, WaifuID: 7, Value: ether(t, "0.02")})
	assert.ErrorIs(t, err, arena.ErrEntityNotFound)

	_, err = h.svc.TrainAttacker(ctx, TrainRequest{Caller: alice, WaifuID: 0, Value: ether(t, "0.03")})
	assert.ErrorIs(t, err, arena.ErrIncorrectPayment)

	w, _ := h.svc.Waifu(ctx, 0)
	assert.Equal(t, uint64(0), w.TrainingCount)
	assert.Len(t, journal(t, h.db), 1)
}

func TestWithdraw_PaysAdministrator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, alice)

	_, err := h.svc.Withdraw(ctx, WithdrawRequest{Caller: alice})
	assert.ErrorIs(t, err, arena.ErrNotAuthorized)

	amount, err := h.svc.Withdraw(ctx, WithdrawRequest{Caller: admin})
	require.NoError(t, err)
	assert.Equal(t, "220000000000000000", amount.String())

	bal, _ := h.svc.Treasury(ctx)
	assert.Equal(t, 0, bal.Sign())

	var payouts []model.Payout
	require.NoError(t, h.db.Find(&payouts).Error)
	require.Len(t, payouts, 1)
	assert.Equal(t, admin.Hex(), payouts[0].To)
	assert.Equal(t, "220000000000000000", payouts[0].Amount)

	logs := journal(t, h.db)
	require.Len(t, logs, 2)
	assert.JSONEq(t, `{"amount":"220000000000000000"}`, string(logs[1].Params))
}

func TestWithdraw_ZeroBalance(t *testing.T) {
	h := newHarness(t)
	amount, err := h.svc.Withdraw(context.Background(), WithdrawRequest{Caller: admin})
	require.NoError(t, err)
	assert.Equal(t, 0, amount.Sign())

	var n int64
	h.db.Model(&model.Payout{}).Count(&n)
	assert.Equal(t, int64(0), n)
}

func TestWithdraw_TransferFailedRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, alice)

	h.svc.payout = func(*gorm.DB) arena.Payout { return failingPayout{} }
	_, err := h.svc.Withdraw(ctx, WithdrawRequest{Caller: admin})
	assert.ErrorIs(t, err, arena.ErrTransferFailed)

	bal, _ := h.svc.Treasury(ctx)
	assert.Equal(t, "220000000000000000", bal.String())
	assert.Len(t, journal(t, h.db), 1)
}

func TestWithdraw_NoAdministrator(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, err := New(db, identity.Zero, nil, nil, nop())
	require.NoError(t, err)

	_, err = svc.Withdraw(context.Background(), WithdrawRequest{Caller: identity.Zero})
	assert.ErrorIs(t, err, arena.ErrNotAuthorized)
}

type failingPayout struct{}

func (failingPayout) Transfer(identity.Address, *big.Int) error {
	return errors.New("recipient rejected funds")
}

func TestLedgerTime_Monotonic(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(5000)
	h.create(t, alice)
	h.clock.Set(100) // wall clock stepped back
	h.create(t, alice)

	logs := journal(t, h.db)
	require.Len(t, logs, 2)
	assert.Equal(t, uint64(5000), logs[1].Now)
}

func TestNew_ResumesJournalHead(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(5000)
	h.create(t, alice)

	svc, err := New(h.db, admin, nil, nil, nop())
	require.NoError(t, err)
	svc.SetClock(func() time.Time { return time.Unix(10, 0) })

	w, err := svc.CreateWaifu(context.Background(), CreateRequest{
		Caller: alice, Role: arena.RoleTank, Tier: 0, Personality: arena.PersonalityShy,
		Value: ether(t, "0.12"),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), w.ID)
	assert.Equal(t, uint64(5000), w.Cooldowns[0])
}

func TestEvents_PublishedAfterCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ch, cancel, err := h.ps.Subscribe(ctx, EventsChannel)
	require.NoError(t, err)
	defer cancel()

	h.create(t, alice)

	select {
	case msg := <-ch:
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, uint64(1), ev.Seq)
		assert.Equal(t, model.ActionCreateWaifu, ev.Kind)
		require.NotNil(t, ev.WaifuID)
		assert.Equal(t, uint64(0), *ev.WaifuID)
		assert.Equal(t, "220000000000000000", ev.Amount)
		require.NotNil(t, ev.Waifu)
		assert.Equal(t, alice, ev.Waifu.Owner)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	_, err = h.svc.TrainAttacker(ctx, TrainRequest{Caller: bob, WaifuID: 0, Value: ether(t, "0.02")})
	require.Error(t, err)
	select {
	case msg := <-ch:
		t.Fatalf("rejected action published %s", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQuote(t *testing.T) {
	h := newHarness(t)
	q, err := h.svc.Quote(arena.RoleSpecial, 2, arena.PersonalityMysterious)
	require.NoError(t, err)
	assert.Equal(t, 0, ether(t, "0.38").Cmp(q))

	_, err = h.svc.Quote(arena.RoleAttacker, arena.MaxTier+1, arena.PersonalityCalm)
	assert.ErrorIs(t, err, arena.ErrInvalidParameter)
}
