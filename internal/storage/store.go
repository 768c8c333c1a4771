// Package storage is the durable side of the session registry. The registry
// is a write-through cache over a Store: every lifecycle transition is
// mirrored here, and a cache miss (e.g. first reference after a restart)
// loads back through it.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/nikworkspace/anyshare/internal/domain"
)

var ErrNotFound = errors.New("storage: session not found")

type Store interface {
	Save(ctx context.Context, s *domain.Session) error
	FindByID(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	FindByRoomCode(ctx context.Context, code domain.RoomCode) (*domain.Session, error)
}

// sessionRecord is the persisted shape of a session. Connection handles are
// runtime state and are not stored.
type sessionRecord struct {
	SessionID string       `dynamodbav:"session_id" json:"session_id"`
	RoomCode  string       `dynamodbav:"room_code" json:"room_code"`
	Status    string       `dynamodbav:"status" json:"status"`
	CreatedAt time.Time    `dynamodbav:"created_at" json:"created_at"`
	ExpiresAt time.Time    `dynamodbav:"expires_at" json:"expires_at"`
	TTL       int64        `dynamodbav:"ttl" json:"ttl"`
	MaxPeers  int          `dynamodbav:"max_peers" json:"max_peers"`
	Peers     []peerRecord `dynamodbav:"peers" json:"peers"`
}

type peerRecord struct {
	PeerID     string    `dynamodbav:"peer_id" json:"peer_id"`
	Role       string    `dynamodbav:"role" json:"role"`
	DeviceType string    `dynamodbav:"device_type" json:"device_type"`
	UserAgent  string    `dynamodbav:"user_agent" json:"user_agent"`
	JoinedAt   time.Time `dynamodbav:"joined_at" json:"joined_at"`
}

func toRecord(s *domain.Session) sessionRecord {
	rec := sessionRecord{
		SessionID: string(s.ID),
		RoomCode:  string(s.RoomCode),
		Status:    string(s.Status),
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		TTL:       s.ExpiresAt.Unix(),
		MaxPeers:  s.MaxPeers,
		Peers:     make([]peerRecord, 0, len(s.Peers)),
	}
	for _, p := range s.Peers {
		rec.Peers = append(rec.Peers, peerRecord{
			PeerID:     string(p.ID),
			Role:       string(p.Role),
			DeviceType: p.DeviceType,
			UserAgent:  p.UserAgent,
			JoinedAt:   p.JoinedAt,
		})
	}
	return rec
}

func fromRecord(rec sessionRecord) *domain.Session {
	s := &domain.Session{
		ID:        domain.SessionID(rec.SessionID),
		RoomCode:  domain.RoomCode(rec.RoomCode),
		Status:    domain.SessionStatus(rec.Status),
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
		MaxPeers:  rec.MaxPeers,
		Peers:     make(map[domain.PeerID]*domain.Peer, len(rec.Peers)),
	}
	for _, pr := range rec.Peers {
		p := &domain.Peer{
			ID:         domain.PeerID(pr.PeerID),
			SessionID:  s.ID,
			Role:       domain.Role(pr.Role),
			DeviceType: pr.DeviceType,
			UserAgent:  pr.UserAgent,
			JoinedAt:   pr.JoinedAt,
		}
		s.Peers[p.ID] = p
	}
	return s
}
