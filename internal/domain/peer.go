package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type PeerID string

type Role string

const (
	RoleSender   Role = "SENDER"
	RoleReceiver Role = "RECEIVER"
)

// SignalConn is the live duplex connection bound to a peer.
// Owned by the adapter; the peer never closes it.
type SignalConn interface {
	TrySend(data []byte) error
	Close()
}

// Peer is one participant device within a session. The connection handle is
// a weak back-reference: detaching it leaves the peer intact so the same
// still-valid token can rebind on reconnect.
type Peer struct {
	ID         PeerID
	SessionID  SessionID
	Role       Role
	DeviceType string
	UserAgent  string
	JoinedAt   time.Time

	mu   sync.Mutex
	conn SignalConn
}

func NewPeer(sessionID SessionID, role Role, deviceType, userAgent string, now time.Time) *Peer {
	return &Peer{
		ID:         PeerID("peer-" + uuid.NewString()[:8]),
		SessionID:  sessionID,
		Role:       role,
		DeviceType: deviceType,
		UserAgent:  userAgent,
		JoinedAt:   now,
	}
}

// Attach binds conn as the peer's live connection, superseding any previous
// handle, and returns the superseded handle (nil if there was none).
func (p *Peer) Attach(conn SignalConn) SignalConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.conn
	p.conn = conn
	return prev
}

// Detach clears the handle only if conn is still the bound one, so a
// reconnect that already superseded it is not torn down by the old
// connection's cleanup.
func (p *Peer) Detach(conn SignalConn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != conn {
		return false
	}
	p.conn = nil
	return true
}

// Conn returns the live connection handle, if any.
func (p *Peer) Conn() (SignalConn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn, p.conn != nil
}

func (p *Peer) Connected() bool {
	_, ok := p.Conn()
	return ok
}
