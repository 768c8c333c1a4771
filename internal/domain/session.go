// Package domain contains the entities of the pairing core, just meta-data
// and state. No transport or persistence logic here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type (
	SessionID string
	RoomCode  string
)

type SessionStatus string

const (
	StatusWaiting   SessionStatus = "WAITING"
	StatusConnected SessionStatus = "CONNECTED"
	StatusExpired   SessionStatus = "EXPIRED"
	StatusClosed    SessionStatus = "CLOSED"
)

// Terminal reports whether the status admits no further transitions.
// Terminal sessions are evicted from the registry, never resurrected.
func (s SessionStatus) Terminal() bool {
	return s == StatusExpired || s == StatusClosed
}

// Session is one short-lived pairing between at most MaxPeers peers.
// ExpiresAt is fixed at creation and never extended.
type Session struct {
	ID        SessionID
	RoomCode  RoomCode
	Status    SessionStatus
	CreatedAt time.Time
	ExpiresAt time.Time
	MaxPeers  int
	Peers     map[PeerID]*Peer
}

func NewSession(code RoomCode, now time.Time, ttl time.Duration, maxPeers int) *Session {
	return &Session{
		ID:        SessionID(uuid.NewString()),
		RoomCode:  code,
		Status:    StatusWaiting,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		MaxPeers:  maxPeers,
		Peers:     make(map[PeerID]*Peer),
	}
}

// Clone copies the session and its membership map. Peers stay shared by
// pointer: the clone guards the scalar fields and the map itself, which is
// all a membership or status mutation can touch.
func (s *Session) Clone() *Session {
	c := *s
	c.Peers = make(map[PeerID]*Peer, len(s.Peers))
	for id, p := range s.Peers {
		c.Peers[id] = p
	}
	return &c
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *Session) PeerCount() int {
	return len(s.Peers)
}

func (s *Session) CanJoin(now time.Time) bool {
	return s.Status == StatusWaiting && len(s.Peers) < s.MaxPeers && !s.Expired(now)
}
