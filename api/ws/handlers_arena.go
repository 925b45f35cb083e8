package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kasuganosora/waifuarena/audit"
	"github.com/kasuganosora/waifuarena/game/arena"
	"github.com/kasuganosora/waifuarena/ledger"
	"github.com/kasuganosora/waifuarena/model"
	"go.uber.org/zap"
)

// ArenaHandlers serves arena actions over WebSocket.
type ArenaHandlers struct {
	ledger *ledger.Service
	audit  *audit.Service
	logger *zap.Logger
}

// NewArenaHandlers creates ArenaHandlers. auditSvc may be nil.
func NewArenaHandlers(l *ledger.Service, auditSvc *audit.Service, logger *zap.Logger) *ArenaHandlers {
	return &ArenaHandlers{ledger: l, audit: auditSvc, logger: logger}
}

// RegisterHandlers registers all arena message handlers on the router.
func (h *ArenaHandlers) RegisterHandlers(r *Router) {
	r.OnMutation("create_waifu", h.HandleCreate)
	r.OnMutation("train_attacker", h.HandleTrain)
	r.OnMutation("withdraw", h.HandleWithdraw)
	r.On("get_waifu", h.HandleGet)
	r.On("treasury", h.HandleTreasury)
}

func decodePayload(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: missing payload", arena.ErrInvalidParameter)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", arena.ErrInvalidParameter, err)
	}
	return nil
}

func (h *ArenaHandlers) record(ctx context.Context, s *Session, action string, waifuID *uint64,
	req interface{}, err error, start time.Time) {
	if h.audit == nil {
		return
	}
	entry := audit.AuditEntry{
		TraceID:    TraceIDFromCtx(ctx),
		Caller:     s.Caller.Hex(),
		WaifuID:    waifuID,
		Action:     action,
		Result:     arena.KindOf(err),
		Request:    req,
		IP:         s.IP,
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)
}

type createPayload struct {
	Role        *uint8 `json:"role"`
	Tier        *uint8 `json:"tier"`
	Personality *uint8 `json:"personality"`
	Value       string `json:"value"` // wei
}

// HandleCreate processes "create_waifu" and replies "waifu_created".
func (h *ArenaHandlers) HandleCreate(ctx context.Context, s *Session, seq uint64, payload json.RawMessage) error {
	start := time.Now()
	var req createPayload
	err := decodePayload(payload, &req)
	var w *arena.Waifu
	if err == nil {
		w, err = h.create(ctx, s, req)
	}
	if err != nil {
		h.record(ctx, s, model.ActionCreateWaifu, nil, req, err, start)
		return err
	}
	h.record(ctx, s, model.ActionCreateWaifu, &w.ID, req, nil, start)
	s.Reply(seq, "waifu_created", map[string]interface{}{"id": w.ID, "waifu": w})
	return nil
}

func (h *ArenaHandlers) create(ctx context.Context, s *Session, req createPayload) (*arena.Waifu, error) {
	if req.Role == nil || req.Tier == nil || req.Personality == nil {
		return nil, fmt.Errorf("%w: role, tier and personality are required", arena.ErrInvalidParameter)
	}
	value, err := arena.ParseWei(req.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: value: %v", arena.ErrInvalidParameter, err)
	}
	return h.ledger.CreateWaifu(ctx, ledger.CreateRequest{
		Caller:      s.Caller,
		Role:        arena.Role(*req.Role),
		Tier:        *req.Tier,
		Personality: arena.Personality(*req.Personality),
		Value:       value,
		TraceID:     TraceIDFromCtx(ctx),
	})
}

type trainPayload struct {
	WaifuID uint64 `json:"waifu_id"`
	Value   string `json:"value"` // wei
}

// HandleTrain processes "train_attacker" and replies "waifu_trained".
func (h *ArenaHandlers) HandleTrain(ctx context.Context, s *Session, seq uint64, payload json.RawMessage) error {
	start := time.Now()
	var req trainPayload
	if err := decodePayload(payload, &req); err != nil {
		h.record(ctx, s, model.ActionTrainAttacker, nil, nil, err, start)
		return err
	}
	value, err := arena.ParseWei(req.Value)
	if err != nil {
		err = fmt.Errorf("%w: value: %v", arena.ErrInvalidParameter, err)
		h.record(ctx, s, model.ActionTrainAttacker, &req.WaifuID, req, err, start)
		return err
	}
	w, err := h.ledger.TrainAttacker(ctx, ledger.TrainRequest{
		Caller:  s.Caller,
		WaifuID: req.WaifuID,
		Value:   value,
		TraceID: TraceIDFromCtx(ctx),
	})
	h.record(ctx, s, model.ActionTrainAttacker, &req.WaifuID, req, err, start)
	if err != nil {
		return err
	}
	s.Reply(seq, "waifu_trained", map[string]interface{}{"waifu": w})
	return nil
}

// HandleWithdraw processes "withdraw" and replies "withdrawn".
func (h *ArenaHandlers) HandleWithdraw(ctx context.Context, s *Session, seq uint64, _ json.RawMessage) error {
	start := time.Now()
	amount, err := h.ledger.Withdraw(ctx, ledger.WithdrawRequest{
		Caller:  s.Caller,
		TraceID: TraceIDFromCtx(ctx),
	})
	h.record(ctx, s, model.ActionWithdraw, nil, nil, err, start)
	if err != nil {
		return err
	}
	s.Reply(seq, "withdrawn", map[string]string{
		"amount":       amount.String(),
		"amount_ether": arena.FormatEther(amount),
	})
	return nil
}

type getPayload struct {
	ID uint64 `json:"id"`
}

// HandleGet processes "get_waifu" and replies "waifu".
func (h *ArenaHandlers) HandleGet(ctx context.Context, s *Session, seq uint64, payload json.RawMessage) error {
	var req getPayload
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	w, err := h.ledger.Waifu(ctx, req.ID)
	if err != nil {
		return err
	}
	s.Reply(seq, "waifu", w)
	return nil
}

// HandleTreasury processes "treasury" and replies with the balance.
func (h *ArenaHandlers) HandleTreasury(ctx context.Context, s *Session, seq uint64, _ json.RawMessage) error {
	bal, err := h.ledger.Treasury(ctx)
	if err != nil {
		return err
	}
	s.Reply(seq, "treasury", map[string]string{
		"balance":       bal.String(),
		"balance_ether": arena.FormatEther(bal),
	})
	return nil
}
