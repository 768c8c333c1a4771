package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nikworkspace/anyshare/internal/domain"
	"github.com/nikworkspace/anyshare/internal/metrics"
)

// handleMessage routes one frame from a bound connection. SenderID,
// SessionID and Timestamp are stamped server-side; whatever the client put
// there is discarded. Routing failures after this point are best-effort:
// logged and dropped, never surfaced to the sender.
func (rl *Relay) handleMessage(ctx context.Context, conn *wsConn, sid domain.SessionID, pid domain.PeerID, data []byte) {
	var msg domain.SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer_id", string(pid)).Msg("bad json frame")
		rl.sendError(conn, "INVALID_MESSAGE", "message is not valid JSON")
		return
	}
	if msg.Type == "" {
		rl.sendError(conn, "INVALID_MESSAGE", "message type is required")
		return
	}
	if !msg.Type.Signaling() {
		rl.sendError(conn, "UNKNOWN_MESSAGE_TYPE", "unknown message type: "+string(msg.Type))
		return
	}

	msg.SenderID = pid
	msg.SessionID = sid
	msg.Timestamp = time.Now().UTC()

	if msg.TargetID != "" {
		rl.sendTo(ctx, sid, msg.TargetID, msg)
	} else {
		rl.broadcast(ctx, sid, pid, msg)
	}
	metrics.MessagesRelayed.WithLabelValues(string(msg.Type)).Inc()
}

// sendTo delivers to a single peer. A missing or offline target is dropped
// silently: signaling is fire-and-forget once a connection is established.
func (rl *Relay) sendTo(ctx context.Context, sid domain.SessionID, target domain.PeerID, msg domain.SignalMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal frame")
		return
	}
	err = rl.Registry.View(ctx, sid, func(s *domain.Session) error {
		p, ok := s.Peers[target]
		if !ok {
			log.Warn().Str("module", "signal").Str("target_id", string(target)).Msg("target peer not found, dropping")
			metrics.MessagesDropped.Inc()
			return nil
		}
		conn, ok := p.Conn()
		if !ok {
			log.Warn().Str("module", "signal").Str("target_id", string(target)).Msg("target peer offline, dropping")
			metrics.MessagesDropped.Inc()
			return nil
		}
		if err := conn.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("target_id", string(target)).Msg("send failed, dropping")
			metrics.MessagesDropped.Inc()
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("session_id", string(sid)).Msg("route: session gone")
	}
}

// broadcast fans out to every other peer of the session with a live
// connection handle.
func (rl *Relay) broadcast(ctx context.Context, sid domain.SessionID, from domain.PeerID, msg domain.SignalMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal frame")
		return
	}
	err = rl.Registry.View(ctx, sid, func(s *domain.Session) error {
		for id, p := range s.Peers {
			if id == from {
				continue
			}
			conn, ok := p.Conn()
			if !ok {
				continue
			}
			if err := conn.TrySend(frame); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("peer_id", string(id)).Msg("broadcast send failed")
				metrics.MessagesDropped.Inc()
			}
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("session_id", string(sid)).Msg("broadcast: session gone")
	}
}

// sendError reports a routing problem to the offending sender only.
func (rl *Relay) sendError(conn *wsConn, code, message string) {
	frame, err := json.Marshal(domain.SignalMessage{
		Type:      domain.MsgError,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("code", code).Msg("error frame dropped")
	}
}
