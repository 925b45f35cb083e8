package ledger

import (
	"context"
	"encoding/json"

	"github.com/kasuganosora/waifuarena/game/arena"
	"go.uber.org/zap"
)

// EventsChannel is the pub/sub channel committed actions are announced on.
const EventsChannel = "arena.events"

// Event describes one committed action.
type Event struct {
	Seq     uint64       `json:"seq"`
	Kind    string       `json:"kind"`
	Caller  string       `json:"caller"`
	WaifuID *uint64      `json:"waifu_id,omitempty"`
	Amount  string       `json:"amount"` // payment in wei, or the withdrawn amount
	Now     uint64       `json:"now"`
	Waifu   *arena.Waifu `json:"waifu,omitempty"`
}

func (svc *Service) publish(ctx context.Context, ev *Event) {
	if svc.ps == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		svc.logger.Error("encode event", zap.Uint64("seq", ev.Seq), zap.Error(err))
		return
	}
	if err := svc.ps.Publish(ctx, EventsChannel, string(payload)); err != nil {
		svc.logger.Warn("publish event", zap.Uint64("seq", ev.Seq), zap.Error(err))
	}
}
