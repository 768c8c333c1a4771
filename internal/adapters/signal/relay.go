// Package signal is the websocket relay: it binds authenticated connections
// to peers and forwards signaling frames between peers of one session. It
// never creates peers; a peer must already exist from a join.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nikworkspace/anyshare/internal/domain"
	"github.com/nikworkspace/anyshare/internal/metrics"
	"github.com/nikworkspace/anyshare/internal/registry"
	"github.com/nikworkspace/anyshare/internal/token"
)

var errPeerNotFound = errors.New("peer not found in session")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionExpirer retires a session found overdue while binding a
// connection, through the same path the lazy lookups use.
type SessionExpirer interface {
	Expire(ctx context.Context, id domain.SessionID)
}

type Relay struct {
	Registry *registry.Registry
	Tokens   *token.Service
	Expirer  SessionExpirer

	ReadLimit  int64
	PingPeriod time.Duration
}

func NewRelay(reg *registry.Registry, tokens *token.Service, expirer SessionExpirer, readLimit int64, pingPeriod time.Duration) *Relay {
	return &Relay{
		Registry:   reg,
		Tokens:     tokens,
		Expirer:    expirer,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
	}
}

// HandleSignal upgrades the connection, authenticates it with the token
// query parameter and binds it to its peer. Each handshake failure sends a
// coded ERROR frame and closes; the steps are fail-fast in order.
func (rl *Relay) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	raw := c.Query("token")
	if raw == "" {
		rejectWS(ws, "MISSING_TOKEN", "authentication token is required")
		return
	}
	claims, err := rl.Tokens.Verify(raw)
	if err != nil {
		rejectWS(ws, "INVALID_TOKEN", "invalid or expired token")
		return
	}
	if claims.Kind != token.KindSignaling {
		// an identity token reused here is still just an invalid token
		rejectWS(ws, "INVALID_TOKEN", "invalid or expired token")
		return
	}

	sid := domain.SessionID(claims.SessionID)
	pid := claims.PeerID()

	conn := newWSConn(ws)
	var peer *domain.Peer
	err = rl.Registry.View(ctx, sid, func(s *domain.Session) error {
		if s.Expired(time.Now()) {
			return domain.ErrSessionExpired
		}
		p, ok := s.Peers[pid]
		if !ok {
			return errPeerNotFound
		}
		// supersedes any previous handle; the old connection is not
		// forcibly closed, its own teardown sees it was replaced
		p.Attach(conn)
		peer = p
		return nil
	})
	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		// an overdue session found here is retired right away instead of
		// waiting for the sweeper
		rl.Expirer.Expire(ctx, sid)
		rejectWS(ws, "SESSION_NOT_FOUND", "session does not exist or has expired")
		return
	case errors.Is(err, domain.ErrSessionNotFound):
		rejectWS(ws, "SESSION_NOT_FOUND", "session does not exist or has expired")
		return
	case errors.Is(err, errPeerNotFound):
		rejectWS(ws, "PEER_NOT_FOUND", "peer not found in session")
		return
	case err != nil:
		log.Error().Err(err).Str("module", "signal").Str("session_id", string(sid)).Msg("bind failed")
		rejectWS(ws, "CONNECTION_ERROR", "failed to establish connection")
		return
	}

	metrics.RelayConnections.Inc()
	log.Info().Str("module", "signal").
		Str("session_id", string(sid)).
		Str("peer_id", string(pid)).
		Str("role", claims.Role).
		Msg("peer connection bound")

	payload, _ := json.Marshal(peer.DeviceType)
	rl.broadcast(ctx, sid, pid, domain.SignalMessage{
		Type:      domain.MsgPeerJoined,
		SessionID: sid,
		SenderID:  pid,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})

	connCtx, cancel := context.WithCancel(ctx)
	go conn.writePump(connCtx, rl.PingPeriod)
	go rl.readPump(connCtx, cancel, conn, peer, sid, pid)
}

func (rl *Relay) readPump(ctx context.Context, cancel context.CancelFunc, conn *wsConn, peer *domain.Peer, sid domain.SessionID, pid domain.PeerID) {
	reason := "connection closed"
	defer func() {
		cancel()
		superseded := !peer.Detach(conn)
		conn.Close()
		metrics.RelayConnections.Dec()
		log.Info().Str("module", "signal").
			Str("session_id", string(sid)).
			Str("peer_id", string(pid)).
			Bool("superseded", superseded).
			Msg("peer connection closed")
		if superseded {
			// a reconnect already replaced this handle; the peer is
			// still live, so no disconnect notification
			return
		}
		rl.broadcast(context.Background(), sid, pid, domain.SignalMessage{
			Type:      domain.MsgPeerDisconnected,
			SessionID: sid,
			SenderID:  pid,
			Message:   reason,
			Timestamp: time.Now().UTC(),
		})
	}()

	pongWait := rl.PingPeriod * 10 / 9
	conn.ws.SetReadLimit(rl.ReadLimit)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Text != "" {
				reason = closeErr.Text
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("peer_id", string(pid)).Msg("readPump read error")
			}
			return
		}
		rl.handleMessage(ctx, conn, sid, pid, data)
	}
}

// rejectWS is for pre-bind failures: the pumps are not running yet, so the
// error frame is written to the socket directly.
func rejectWS(ws *websocket.Conn, code, message string) {
	frame, _ := json.Marshal(domain.SignalMessage{
		Type:      domain.MsgError,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.TextMessage, frame)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(writeWait))
	_ = ws.Close()
	log.Warn().Str("module", "signal").Str("code", code).Msg("connection rejected")
}
