package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kasuganosora/waifuarena/game/arena"
	"github.com/kasuganosora/waifuarena/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var alice = identity.MustParseAddress("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")

func nop() *zap.Logger { return zap.NewNop() }

// newSession creates a connectionless Session for testing.
func newSession() *Session {
	return NewSession(alice, "127.0.0.1", nil, nop())
}

func makePacket(t *testing.T, seq uint64, msgType string, payload interface{}) []byte {
	t.Helper()
	p, _ := json.Marshal(payload)
	pkt := Packet{Seq: seq, Type: msgType, Payload: p}
	b, err := json.Marshal(pkt)
	require.NoError(t, err)
	return b
}

// nextPacket pops the next queued reply.
func nextPacket(t *testing.T, s *Session) Packet {
	t.Helper()
	select {
	case data := <-s.SendChan:
		var pkt Packet
		require.NoError(t, json.Unmarshal(data, &pkt))
		return pkt
	default:
		t.Fatal("no packet queued")
		return Packet{}
	}
}

func noop(_ context.Context, _ *Session, _ uint64, _ json.RawMessage) error { return nil }

func TestRouter_On_Dispatch_Basic(t *testing.T) {
	r := NewRouter(nop())
	called := false
	r.On("ping", func(ctx context.Context, s *Session, seq uint64, payload json.RawMessage) error {
		called = true
		assert.NotEmpty(t, TraceIDFromCtx(ctx))
		return nil
	})

	s := newSession()
	r.Dispatch(s, makePacket(t, 1, "ping", nil))
	assert.True(t, called)
}

func TestRouter_Dispatch_MalformedJSON(t *testing.T) {
	r := NewRouter(nop())
	s := newSession()
	r.Dispatch(s, []byte("not json"))

	pkt := nextPacket(t, s)
	assert.Equal(t, "error", pkt.Type)
}

func TestRouter_Dispatch_UnknownType(t *testing.T) {
	r := NewRouter(nop())
	called := false
	r.On("known", func(_ context.Context, _ *Session, _ uint64, _ json.RawMessage) error {
		called = true
		return nil
	})
	s := newSession()
	r.Dispatch(s, makePacket(t, 1, "unknown", nil))
	assert.False(t, called)
	assert.Equal(t, "error", nextPacket(t, s).Type)
}

func TestRouter_Dispatch_AntiReplay_RejectsOldSeq(t *testing.T) {
	r := NewRouter(nop())
	var callCount int
	r.On("msg", func(_ context.Context, _ *Session, _ uint64, _ json.RawMessage) error {
		callCount++
		return nil
	})
	s := newSession()

	r.Dispatch(s, makePacket(t, 5, "msg", nil))
	assert.Equal(t, 1, callCount)

	// Same seq=5 → rejected (replay)
	r.Dispatch(s, makePacket(t, 5, "msg", nil))
	assert.Equal(t, 1, callCount)

	// Lower seq → rejected
	r.Dispatch(s, makePacket(t, 3, "msg", nil))
	assert.Equal(t, 1, callCount)

	r.Dispatch(s, makePacket(t, 6, "msg", nil))
	assert.Equal(t, 2, callCount)
	assert.Equal(t, uint64(6), s.LastSeq)
}

func TestRouter_Dispatch_ZeroSeqSkipsTracking(t *testing.T) {
	r := NewRouter(nop())
	var callCount int
	r.On("msg", func(_ context.Context, _ *Session, _ uint64, _ json.RawMessage) error {
		callCount++
		return nil
	})
	s := newSession()
	r.Dispatch(s, makePacket(t, 0, "msg", nil))
	r.Dispatch(s, makePacket(t, 0, "msg", nil))
	assert.Equal(t, 2, callCount)
	assert.Zero(t, s.LastSeq)
}

func TestRouter_Mutation_RequiresSeq(t *testing.T) {
	r := NewRouter(nop())
	called := false
	r.OnMutation("create", func(_ context.Context, _ *Session, _ uint64, _ json.RawMessage) error {
		called = true
		return nil
	})
	s := newSession()
	r.Dispatch(s, makePacket(t, 0, "create", nil))
	assert.False(t, called)
	assert.Equal(t, "error", nextPacket(t, s).Type)

	r.Dispatch(s, makePacket(t, 1, "create", nil))
	assert.True(t, called)
}

func TestRouter_HandlerError_Reply(t *testing.T) {
	r := NewRouter(nop())
	r.On("reject", func(_ context.Context, _ *Session, _ uint64, _ json.RawMessage) error {
		return arena.ErrNotOwner
	})
	r.On("boom", func(_ context.Context, _ *Session, _ uint64, _ json.RawMessage) error {
		return errors.New("db is gone")
	})
	s := newSession()

	r.Dispatch(s, makePacket(t, 1, "reject", nil))
	pkt := nextPacket(t, s)
	assert.Equal(t, uint64(1), pkt.Seq)
	var body errorPayload
	require.NoError(t, json.Unmarshal(pkt.Payload, &body))
	assert.Equal(t, arena.KindNotOwner, body.Kind)
	assert.Equal(t, "reject", body.Request)

	r.Dispatch(s, makePacket(t, 2, "boom", nil))
	require.NoError(t, json.Unmarshal(nextPacket(t, s).Payload, &body))
	assert.Equal(t, arena.KindInternal, body.Kind)
	assert.Equal(t, "internal error", body.Error)
}

func TestSession_CloseIdempotent(t *testing.T) {
	s := newSession()
	s.Close()
	s.Close()
	assert.True(t, s.IsClosed())

	s.Send(&Packet{Type: "x"})
	assert.Len(t, s.SendChan, 0)
}

func TestRouter_Noop(t *testing.T) {
	r := NewRouter(nop())
	r.On("noop", noop)
	s := newSession()
	r.Dispatch(s, makePacket(t, 1, "noop", nil))
	assert.Len(t, s.SendChan, 0)
}
