package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/waifuarena/audit"
	"github.com/kasuganosora/waifuarena/game/arena"
	"github.com/kasuganosora/waifuarena/identity"
	"github.com/kasuganosora/waifuarena/ledger"
	mw "github.com/kasuganosora/waifuarena/middleware"
	"github.com/kasuganosora/waifuarena/model"
	"go.uber.org/zap"
)

// WaifuHandler serves the arena actions and reads.
type WaifuHandler struct {
	ledger *ledger.Service
	audit  *audit.Service
	logger *zap.Logger
}

// NewWaifuHandler creates a WaifuHandler. auditSvc may be nil.
func NewWaifuHandler(l *ledger.Service, auditSvc *audit.Service, logger *zap.Logger) *WaifuHandler {
	return &WaifuHandler{ledger: l, audit: auditSvc, logger: logger}
}

// record audits one action attempt.
func (h *WaifuHandler) record(c *gin.Context, action string, caller identity.Address, waifuID *uint64,
	req, resp interface{}, err error, start time.Time) {
	if h.audit == nil {
		return
	}
	entry := audit.AuditEntry{
		TraceID:    mw.GetTraceID(c),
		Caller:     caller.Hex(),
		WaifuID:    waifuID,
		Action:     action,
		Result:     arena.KindOf(err),
		Request:    req,
		Response:   resp,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func mustCaller(c *gin.Context) (identity.Address, bool) {
	caller, ok := mw.GetCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	}
	return caller, ok
}

type createWaifuRequest struct {
	Role        *uint8 `json:"role"        binding:"required"`
	Tier        *uint8 `json:"tier"        binding:"required"`
	Personality *uint8 `json:"personality" binding:"required"`
	Value       string `json:"value"       binding:"required"` // wei
}

// Create handles POST /api/waifus.
func (h *WaifuHandler) Create(c *gin.Context) {
	start := time.Now()
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req createWaifuRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp := badRequest(c, err.Error())
		h.record(c, model.ActionCreateWaifu, caller, nil, nil, resp, arena.ErrInvalidParameter, start)
		return
	}
	value, err := arena.ParseWei(req.Value)
	if err != nil {
		resp := badRequest(c, "value: "+err.Error())
		h.record(c, model.ActionCreateWaifu, caller, nil, req, resp, arena.ErrInvalidParameter, start)
		return
	}

	w, err := h.ledger.CreateWaifu(c.Request.Context(), ledger.CreateRequest{
		Caller:      caller,
		Role:        arena.Role(*req.Role),
		Tier:        *req.Tier,
		Personality: arena.Personality(*req.Personality),
		Value:       value,
		TraceID:     mw.GetTraceID(c),
	})
	if err != nil {
		resp := writeError(c, err)
		h.record(c, model.ActionCreateWaifu, caller, nil, req, resp, err, start)
		return
	}
	resp := gin.H{"id": w.ID, "waifu": w}
	c.JSON(http.StatusCreated, resp)
	h.record(c, model.ActionCreateWaifu, caller, &w.ID, req, gin.H{"id": w.ID}, nil, start)
}

type trainRequest struct {
	Value string `json:"value" binding:"required"` // wei
}

// Train handles POST /api/waifus/:id/train.
func (h *WaifuHandler) Train(c *gin.Context) {
	start := time.Now()
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		resp := badRequest(c, "invalid id")
		h.record(c, model.ActionTrainAttacker, caller, nil, nil, resp, arena.ErrInvalidParameter, start)
		return
	}

	var req trainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp := badRequest(c, err.Error())
		h.record(c, model.ActionTrainAttacker, caller, &id, nil, resp, arena.ErrInvalidParameter, start)
		return
	}
	value, err := arena.ParseWei(req.Value)
	if err != nil {
		resp := badRequest(c, "value: "+err.Error())
		h.record(c, model.ActionTrainAttacker, caller, &id, req, resp, arena.ErrInvalidParameter, start)
		return
	}

	w, err := h.ledger.TrainAttacker(c.Request.Context(), ledger.TrainRequest{
		Caller:  caller,
		WaifuID: id,
		Value:   value,
		TraceID: mw.GetTraceID(c),
	})
	if err != nil {
		resp := writeError(c, err)
		h.record(c, model.ActionTrainAttacker, caller, &id, req, resp, err, start)
		return
	}
	c.JSON(http.StatusOK, gin.H{"waifu": w})
	h.record(c, model.ActionTrainAttacker, caller, &id, req, gin.H{"training_count": w.TrainingCount}, nil, start)
}

// Withdraw handles POST /api/withdraw.
func (h *WaifuHandler) Withdraw(c *gin.Context) {
	start := time.Now()
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	amount, err := h.ledger.Withdraw(c.Request.Context(), ledger.WithdrawRequest{
		Caller:  caller,
		TraceID: mw.GetTraceID(c),
	})
	if err != nil {
		resp := writeError(c, err)
		h.record(c, model.ActionWithdraw, caller, nil, nil, resp, err, start)
		return
	}
	resp := gin.H{"amount": amount.String(), "amount_ether": arena.FormatEther(amount)}
	c.JSON(http.StatusOK, resp)
	h.record(c, model.ActionWithdraw, caller, nil, nil, resp, nil, start)
}

// Get handles GET /api/waifus/:id. ?format=tuple returns the positional form.
func (h *WaifuHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		badRequest(c, "invalid id")
		return
	}
	w, err := h.ledger.Waifu(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("format") == "tuple" {
		c.JSON(http.StatusOK, w.Tuple())
		return
	}
	c.JSON(http.StatusOK, w)
}

// Count handles GET /api/waifus/count.
func (h *WaifuHandler) Count(c *gin.Context) {
	n, err := h.ledger.Count(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// List handles GET /api/waifus?owner=0x...
func (h *WaifuHandler) List(c *gin.Context) {
	owner, err := identity.ParseAddress(c.Query("owner"))
	if err != nil {
		badRequest(c, "owner: "+err.Error())
		return
	}
	waifus, err := h.ledger.ListByOwner(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"waifus": waifus, "count": len(waifus)})
}

// Owner handles GET /api/owner.
func (h *WaifuHandler) Owner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"owner": h.ledger.Owner()})
}

// Treasury handles GET /api/treasury.
func (h *WaifuHandler) Treasury(c *gin.Context) {
	bal, err := h.ledger.Treasury(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": bal.String(), "balance_ether": arena.FormatEther(bal)})
}

func queryUint8(c *gin.Context, key string) (uint8, bool) {
	v, err := strconv.ParseUint(c.Query(key), 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

// Quote handles GET /api/quote?role=&tier=&personality=.
func (h *WaifuHandler) Quote(c *gin.Context) {
	role, ok1 := queryUint8(c, "role")
	tier, ok2 := queryUint8(c, "tier")
	personality, ok3 := queryUint8(c, "personality")
	if !ok1 || !ok2 || !ok3 {
		badRequest(c, "role, tier and personality must be small integers")
		return
	}
	cost, err := h.ledger.Quote(arena.Role(role), tier, arena.Personality(personality))
	if err != nil {
		writeError(c, err)
		return
	}
	training, _ := arena.TrainingCost(arena.TrainingAttacker)
	c.JSON(http.StatusOK, gin.H{
		"create":            cost.String(),
		"create_ether":      arena.FormatEther(cost),
		"train_attacker":    training.String(),
		"training_cooldown": arena.TrainingCooldown,
	})
}
