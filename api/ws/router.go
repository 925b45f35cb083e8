package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/kasuganosora/waifuarena/game/arena"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded WS message payload. Replies are sent on the
// session; a returned error is answered with an "error" packet.
type HandlerFunc func(ctx context.Context, s *Session, seq uint64, payload json.RawMessage) error

type route struct {
	fn       HandlerFunc
	mutating bool
}

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]route
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]route),
		logger:   logger,
	}
}

// On registers a read-only HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = route{fn: fn}
}

// OnMutation registers a HandlerFunc that changes ledger state. Such packets
// must carry a non-zero seq.
func (r *Router) OnMutation(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = route{fn: fn, mutating: true}
}

type errorPayload struct {
	Request string `json:"request"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
}

// Dispatch decodes raw bytes, validates seq, and invokes the appropriate handler.
func (r *Router) Dispatch(s *Session, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet",
			zap.String("caller", s.Caller.Hex()),
			zap.Error(err))
		s.Reply(0, "error", errorPayload{Error: "malformed packet", Kind: arena.KindInvalidParameter})
		return
	}

	rt, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.String("caller", s.Caller.Hex()))
		s.Reply(pkt.Seq, "error", errorPayload{Request: pkt.Type, Error: "unknown type", Kind: arena.KindInvalidParameter})
		return
	}
	if rt.mutating && pkt.Seq == 0 {
		s.Reply(0, "error", errorPayload{Request: pkt.Type, Error: "seq required", Kind: arena.KindInvalidParameter})
		return
	}

	// Monotonic seq check (anti-replay). Seq == 0 means no seq tracking.
	if pkt.Seq != 0 && pkt.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.String("caller", s.Caller.Hex()),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		s.Reply(pkt.Seq, "error", errorPayload{Request: pkt.Type, Error: "replayed seq", Kind: arena.KindInvalidParameter})
		return
	}
	if pkt.Seq != 0 {
		s.LastSeq = pkt.Seq
	}

	// Assign a trace ID for this message dispatch.
	s.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, s.TraceID)

	if err := rt.fn(ctx, s, pkt.Seq, pkt.Payload); err != nil {
		kind := arena.KindOf(err)
		msg := err.Error()
		if kind == arena.KindInternal {
			r.logger.Error("handler error",
				zap.String("type", pkt.Type),
				zap.String("caller", s.Caller.Hex()),
				zap.String("trace_id", s.TraceID),
				zap.Error(err))
			msg = "internal error"
		}
		s.Reply(pkt.Seq, "error", errorPayload{Request: pkt.Type, Error: msg, Kind: kind})
	}
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
