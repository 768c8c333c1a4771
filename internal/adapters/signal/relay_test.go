package signal_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikworkspace/anyshare/internal/adapters/signal"
	"github.com/nikworkspace/anyshare/internal/app"
	"github.com/nikworkspace/anyshare/internal/domain"
	"github.com/nikworkspace/anyshare/internal/registry"
	"github.com/nikworkspace/anyshare/internal/roomcode"
	"github.com/nikworkspace/anyshare/internal/storage"
	"github.com/nikworkspace/anyshare/internal/token"
)

type relayFixture struct {
	srv    *httptest.Server
	reg    *registry.Registry
	tokens *token.Service
	lc     *app.Lifecycle
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New(storage.NewMemoryStore())
	tokens := token.NewService("test-secret-test-secret-test-secret")
	lc := app.NewLifecycle(reg, roomcode.NewGenerator(), tokens, 5*time.Minute, 2, "ws://localhost/ws/signal")
	relay := signal.NewRelay(reg, tokens, lc, 65536, 54*time.Second)

	r := gin.New()
	r.GET("/ws/signal", func(c *gin.Context) {
		relay.HandleSignal(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &relayFixture{srv: srv, reg: reg, tokens: tokens, lc: lc}
}

// pairedSession creates a full session with two joined peers and returns
// both join results.
func (f *relayFixture) pairedSession(t *testing.T) (*app.JoinResult, *app.JoinResult) {
	t.Helper()
	ctx := context.Background()
	created, err := f.lc.CreateSession(ctx, "MOBILE", "test")
	require.NoError(t, err)
	a, err := f.lc.JoinSession(ctx, created.RoomCode, "MOBILE", "test")
	require.NoError(t, err)
	b, err := f.lc.JoinSession(ctx, created.RoomCode, "DESKTOP", "test")
	require.NoError(t, err)
	return a, b
}

func (f *relayFixture) dial(t *testing.T, tok string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/signal"
	if tok != "" {
		u += "?token=" + tok
	}
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// waitBound blocks until the peer has a live connection handle, so tests
// do not race the server-side bind that happens after the upgrade.
func (f *relayFixture) waitBound(t *testing.T, sid domain.SessionID, pid domain.PeerID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		bound := false
		err := f.reg.View(context.Background(), sid, func(s *domain.Session) error {
			if p, ok := s.Peers[pid]; ok {
				bound = p.Connected()
			}
			return nil
		})
		require.NoError(t, err)
		if bound {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("peer %s never bound", pid)
}

func readSignal(t *testing.T, ws *websocket.Conn) domain.SignalMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg domain.SignalMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestHandshakeMissingToken(t *testing.T) {
	f := newRelayFixture(t)

	ws := f.dial(t, "")
	msg := readSignal(t, ws)
	assert.Equal(t, domain.MsgError, msg.Type)
	assert.Equal(t, "MISSING_TOKEN", msg.Code)
}

func TestHandshakeInvalidToken(t *testing.T) {
	f := newRelayFixture(t)

	ws := f.dial(t, "not-a-jwt")
	msg := readSignal(t, ws)
	assert.Equal(t, domain.MsgError, msg.Type)
	assert.Equal(t, "INVALID_TOKEN", msg.Code)
}

func TestHandshakeUnknownSession(t *testing.T) {
	f := newRelayFixture(t)

	// token is genuine but names a session that never existed
	tok, err := f.tokens.Issue("peer-ghost", "no-such-session", "SENDER", time.Now().Add(time.Minute))
	require.NoError(t, err)

	ws := f.dial(t, tok)
	msg := readSignal(t, ws)
	assert.Equal(t, "SESSION_NOT_FOUND", msg.Code)
}

func TestHandshakeExpiredSession(t *testing.T) {
	f := newRelayFixture(t)
	a, _ := f.pairedSession(t)

	// run the session past its deadline while the token is still valid
	err := f.reg.Update(context.Background(), a.SessionID, func(s *domain.Session) error {
		s.ExpiresAt = time.Now().Add(-time.Minute)
		return nil
	})
	require.NoError(t, err)

	ws := f.dial(t, a.Token)
	msg := readSignal(t, ws)
	assert.Equal(t, "SESSION_NOT_FOUND", msg.Code)

	// binding retired the session; it is gone, not just rejected
	err = f.reg.View(context.Background(), a.SessionID, func(*domain.Session) error { return nil })
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestHandshakeUnknownPeer(t *testing.T) {
	f := newRelayFixture(t)
	a, _ := f.pairedSession(t)

	tok, err := f.tokens.Issue("peer-ghost", a.SessionID, "SENDER", time.Now().Add(time.Minute))
	require.NoError(t, err)

	ws := f.dial(t, tok)
	msg := readSignal(t, ws)
	assert.Equal(t, "PEER_NOT_FOUND", msg.Code)
}

func TestTargetedOfferRelay(t *testing.T) {
	f := newRelayFixture(t)
	a, b := f.pairedSession(t)

	wsA := f.dial(t, a.Token)
	f.waitBound(t, a.SessionID, a.PeerID)
	wsB := f.dial(t, b.Token)

	// the already-connected peer hears about the newcomer
	joined := readSignal(t, wsA)
	assert.Equal(t, domain.MsgPeerJoined, joined.Type)
	assert.Equal(t, b.PeerID, joined.SenderID)

	// client-supplied sender and timestamp must be overwritten on relay
	err := wsA.WriteJSON(domain.SignalMessage{
		Type:     domain.MsgOffer,
		SenderID: "peer-spoofed",
		TargetID: b.PeerID,
		Payload:  json.RawMessage(`{"sdp":"v=0 offer"}`),
	})
	require.NoError(t, err)

	offer := readSignal(t, wsB)
	assert.Equal(t, domain.MsgOffer, offer.Type)
	assert.Equal(t, a.PeerID, offer.SenderID)
	assert.Equal(t, a.SessionID, offer.SessionID)
	assert.JSONEq(t, `{"sdp":"v=0 offer"}`, string(offer.Payload))
	assert.False(t, offer.Timestamp.IsZero())
}

func TestUnknownMessageType(t *testing.T) {
	f := newRelayFixture(t)
	a, _ := f.pairedSession(t)

	wsA := f.dial(t, a.Token)
	f.waitBound(t, a.SessionID, a.PeerID)

	require.NoError(t, wsA.WriteJSON(domain.SignalMessage{Type: "TELEPORT"}))

	msg := readSignal(t, wsA)
	assert.Equal(t, domain.MsgError, msg.Type)
	assert.Equal(t, "UNKNOWN_MESSAGE_TYPE", msg.Code)
}

func TestInvalidJSONFrame(t *testing.T) {
	f := newRelayFixture(t)
	a, _ := f.pairedSession(t)

	wsA := f.dial(t, a.Token)
	f.waitBound(t, a.SessionID, a.PeerID)

	require.NoError(t, wsA.WriteMessage(websocket.TextMessage, []byte("{broken")))

	msg := readSignal(t, wsA)
	assert.Equal(t, "INVALID_MESSAGE", msg.Code)
}

func TestPeerDisconnectedBroadcast(t *testing.T) {
	f := newRelayFixture(t)
	a, b := f.pairedSession(t)

	wsA := f.dial(t, a.Token)
	f.waitBound(t, a.SessionID, a.PeerID)
	wsB := f.dial(t, b.Token)
	f.waitBound(t, b.SessionID, b.PeerID)

	readSignal(t, wsA) // PEER_JOINED for b

	wsA.Close()

	msg := readSignal(t, wsB)
	assert.Equal(t, domain.MsgPeerDisconnected, msg.Type)
	assert.Equal(t, a.PeerID, msg.SenderID)
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	f := newRelayFixture(t)
	a, b := f.pairedSession(t)

	wsA1 := f.dial(t, a.Token)
	f.waitBound(t, a.SessionID, a.PeerID)
	wsB := f.dial(t, b.Token)
	f.waitBound(t, b.SessionID, b.PeerID)

	readSignal(t, wsA1) // PEER_JOINED for b

	// reconnect with the same token replaces the handle
	wsA2 := f.dial(t, a.Token)
	joined := readSignal(t, wsB)
	assert.Equal(t, domain.MsgPeerJoined, joined.Type)
	assert.Equal(t, a.PeerID, joined.SenderID)

	// tearing down the stale connection must not announce a disconnect
	wsA1.Close()
	require.NoError(t, wsB.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var stray domain.SignalMessage
	err := wsB.ReadJSON(&stray)
	require.Error(t, err, "unexpected frame after superseded close: %+v", stray)

	// the fresh connection is the live route for targeted messages
	err = wsB.WriteJSON(domain.SignalMessage{
		Type:     domain.MsgAnswer,
		TargetID: a.PeerID,
		Payload:  json.RawMessage(`{"sdp":"v=0 answer"}`),
	})
	require.NoError(t, err)

	answer := readSignal(t, wsA2)
	assert.Equal(t, domain.MsgAnswer, answer.Type)
	assert.Equal(t, b.PeerID, answer.SenderID)
}
