// Package app implements the session lifecycle: room-code based creation,
// peer admission with positional role assignment, token-gated closure and
// lazy expiry over the registry.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nikworkspace/anyshare/internal/domain"
	"github.com/nikworkspace/anyshare/internal/metrics"
	"github.com/nikworkspace/anyshare/internal/registry"
	"github.com/nikworkspace/anyshare/internal/roomcode"
	"github.com/nikworkspace/anyshare/internal/token"
)

// createAttempts bounds room-code regeneration on collision with an active
// session. With ~150k possible codes hitting this limit means the registry
// is effectively full.
const createAttempts = 5

var errNotExpired = errors.New("not expired")

type Lifecycle struct {
	Registry *registry.Registry
	Codes    *roomcode.Generator
	Tokens   *token.Service

	TTL      time.Duration
	MaxPeers int
	RelayURL string

	now func() time.Time
}

func NewLifecycle(reg *registry.Registry, codes *roomcode.Generator, tokens *token.Service, ttl time.Duration, maxPeers int, relayURL string) *Lifecycle {
	return &Lifecycle{
		Registry: reg,
		Codes:    codes,
		Tokens:   tokens,
		TTL:      ttl,
		MaxPeers: maxPeers,
		RelayURL: relayURL,
		now:      time.Now,
	}
}

type CreateResult struct {
	SessionID domain.SessionID
	RoomCode  domain.RoomCode
	RelayURL  string
	QRPayload string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type SessionInfo struct {
	SessionID      domain.SessionID
	Status         domain.SessionStatus
	PeersConnected int
	MaxPeers       int
	CanJoin        bool
	ExpiresAt      time.Time
}

type JoinResult struct {
	SessionID domain.SessionID
	PeerID    domain.PeerID
	Role      domain.Role
	Token     string
	RelayURL  string
	ExpiresAt time.Time
}

// CreateSession allocates a new WAITING session with a unique room code.
// The creator joins like any other peer, via JoinSession.
func (l *Lifecycle) CreateSession(ctx context.Context, deviceType, userAgent string) (*CreateResult, error) {
	for i := 0; i < createAttempts; i++ {
		code, err := l.Codes.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		s := domain.NewSession(code, l.now(), l.TTL, l.MaxPeers)
		if err := l.Registry.Put(ctx, s); err != nil {
			if errors.Is(err, registry.ErrRoomCodeTaken) {
				log.Warn().Str("module", "app.lifecycle").Str("room_code", string(code)).Msg("room code collision, regenerating")
				continue
			}
			return nil, err
		}

		metrics.SessionsCreated.Inc()
		log.Info().Str("module", "app.lifecycle").
			Str("session_id", string(s.ID)).
			Str("room_code", string(code)).
			Str("device_type", deviceType).
			Str("user_agent", userAgent).
			Time("expires_at", s.ExpiresAt).
			Msg("session created")

		return &CreateResult{
			SessionID: s.ID,
			RoomCode:  s.RoomCode,
			RelayURL:  l.RelayURL,
			QRPayload: qrPayload(s, l.RelayURL),
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
		}, nil
	}
	return nil, fmt.Errorf("room code space exhausted after %d attempts", createAttempts)
}

// GetSessionInfo resolves a room code to a point-in-time snapshot. An
// expired session is evicted here and reported as SessionExpired; the next
// lookup of the same code sees SessionNotFound.
func (l *Lifecycle) GetSessionInfo(ctx context.Context, code domain.RoomCode) (*SessionInfo, error) {
	var info SessionInfo
	var expiredID domain.SessionID
	err := l.Registry.ViewByCode(ctx, code, func(s *domain.Session) error {
		now := l.now()
		if s.Expired(now) {
			expiredID = s.ID
			return domain.ErrSessionExpired
		}
		info = SessionInfo{
			SessionID:      s.ID,
			Status:         s.Status,
			PeersConnected: s.PeerCount(),
			MaxPeers:       s.MaxPeers,
			CanJoin:        s.CanJoin(now),
			ExpiresAt:      s.ExpiresAt,
		}
		return nil
	})
	if expiredID != "" {
		l.Expire(ctx, expiredID)
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// JoinSession admits a peer into the session behind code. The whole
// check-then-admit sequence runs under the session's own lock, so racing
// joins can never overshoot MaxPeers. The first peer ever admitted is the
// SENDER; everyone after is a RECEIVER.
func (l *Lifecycle) JoinSession(ctx context.Context, code domain.RoomCode, deviceType, userAgent string) (*JoinResult, error) {
	var res JoinResult
	var expiredID domain.SessionID
	err := l.Registry.UpdateByCode(ctx, code, func(s *domain.Session) error {
		now := l.now()
		if s.Expired(now) {
			expiredID = s.ID
			return domain.ErrSessionExpired
		}
		if s.PeerCount() >= s.MaxPeers {
			return domain.ErrSessionFull
		}
		if s.Status != domain.StatusWaiting {
			return domain.ErrInvalidSessionState
		}

		role := domain.RoleReceiver
		if s.PeerCount() == 0 {
			role = domain.RoleSender
		}
		p := domain.NewPeer(s.ID, role, deviceType, userAgent, now)

		signed, err := l.Tokens.Issue(p.ID, s.ID, role, s.ExpiresAt)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}

		s.Peers[p.ID] = p
		if s.PeerCount() == s.MaxPeers {
			s.Status = domain.StatusConnected
			log.Info().Str("module", "app.lifecycle").Str("session_id", string(s.ID)).Msg("all peers joined, session connected")
		}

		res = JoinResult{
			SessionID: s.ID,
			PeerID:    p.ID,
			Role:      role,
			Token:     signed,
			RelayURL:  l.RelayURL,
			ExpiresAt: s.ExpiresAt,
		}
		return nil
	})
	if expiredID != "" {
		l.Expire(ctx, expiredID)
	}
	if err != nil {
		return nil, err
	}

	metrics.SessionsJoined.Inc()
	log.Info().Str("module", "app.lifecycle").
		Str("session_id", string(res.SessionID)).
		Str("peer_id", string(res.PeerID)).
		Str("role", string(res.Role)).
		Str("device_type", deviceType).
		Msg("peer joined")
	return &res, nil
}

// CloseSession closes the session named by id. Any member may close, not
// just the creator; the bearer token must name this session and a peer that
// is still a member of it.
func (l *Lifecycle) CloseSession(ctx context.Context, id domain.SessionID, rawToken string) error {
	claims, err := l.Tokens.Verify(rawToken)
	if err != nil {
		return domain.ErrInvalidToken
	}
	if domain.SessionID(claims.SessionID) != id {
		log.Warn().Str("module", "app.lifecycle").
			Str("session_id", string(id)).
			Str("token_session_id", claims.SessionID).
			Msg("close rejected, token names another session")
		return domain.ErrUnauthorized
	}

	err = l.Registry.Update(ctx, id, func(s *domain.Session) error {
		if _, member := s.Peers[claims.PeerID()]; !member {
			return domain.ErrUnauthorized
		}
		s.Status = domain.StatusClosed
		return nil
	})
	if err != nil {
		return err
	}

	l.Registry.Evict(id)
	metrics.SessionsClosed.Inc()
	log.Info().Str("module", "app.lifecycle").
		Str("session_id", string(id)).
		Str("peer_id", string(claims.PeerID())).
		Msg("session closed")
	return nil
}

// Expire transitions an overdue session to EXPIRED, mirrors that to the
// store and evicts it. Re-checks under the session lock so it cannot race
// an in-flight join on the same session; calling it on a live or already
// retired session is a no-op. Shared by the lazy lookup paths, the janitor
// and the relay bind.
func (l *Lifecycle) Expire(ctx context.Context, id domain.SessionID) {
	err := l.Registry.Update(ctx, id, func(s *domain.Session) error {
		if !s.Expired(l.now()) || s.Status.Terminal() {
			return errNotExpired
		}
		s.Status = domain.StatusExpired
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNotExpired) && !errors.Is(err, domain.ErrSessionNotFound) {
			log.Error().Err(err).Str("module", "app.lifecycle").Str("session_id", string(id)).Msg("expire failed")
		}
		return
	}
	l.Registry.Evict(id)
	metrics.SessionsExpired.Inc()
	log.Info().Str("module", "app.lifecycle").Str("session_id", string(id)).Msg("session expired")
}

func qrPayload(s *domain.Session, relayURL string) string {
	b, _ := json.Marshal(struct {
		SessionID string `json:"sessionId"`
		RoomCode  string `json:"roomCode"`
		RelayURL  string `json:"relayUrl"`
		ExpiresAt string `json:"expiresAt"`
	}{
		SessionID: string(s.ID),
		RoomCode:  string(s.RoomCode),
		RelayURL:  relayURL,
		ExpiresAt: s.ExpiresAt.Format(time.RFC3339),
	})
	return string(b)
}
