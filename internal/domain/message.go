package domain

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	MsgOffer            MessageType = "OFFER"
	MsgAnswer           MessageType = "ANSWER"
	MsgICECandidate     MessageType = "ICE_CANDIDATE"
	MsgPeerJoined       MessageType = "PEER_JOINED"
	MsgPeerDisconnected MessageType = "PEER_DISCONNECTED"
	MsgError            MessageType = "ERROR"
)

// Signaling reports whether the type is one clients may send for relaying.
// PEER_JOINED, PEER_DISCONNECTED and ERROR are server-originated only.
func (t MessageType) Signaling() bool {
	switch t {
	case MsgOffer, MsgAnswer, MsgICECandidate:
		return true
	case MsgPeerJoined, MsgPeerDisconnected, MsgError:
		return false
	}
	return false
}

// SignalMessage is one logical frame on the relay. Payload is opaque to the
// server and passed through untouched. SenderID, SessionID and Timestamp are
// always overwritten server-side; client-supplied values are never trusted.
type SignalMessage struct {
	Type      MessageType     `json:"type"`
	SessionID SessionID       `json:"sessionId,omitempty"`
	SenderID  PeerID          `json:"senderId,omitempty"`
	TargetID  PeerID          `json:"targetId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitzero"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
}
