// Package token issues and verifies the signed access tokens that scope a
// peer to one session and one role on the signaling relay.
//
// Token validity is independent of registry state: a structurally valid,
// unexpired token can still be rejected downstream if the session or peer it
// names no longer exists. The token proves identity, not current membership.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nikworkspace/anyshare/internal/domain"
)

// KindSignaling distinguishes relay access tokens from any identity tokens
// issued elsewhere; the relay rejects everything else.
const KindSignaling = "SIGNALING"

type Claims struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	Kind      string `json:"kind"`
	jwt.RegisteredClaims
}

// Service signs and verifies tokens with a symmetric key held only here.
type Service struct {
	secret []byte
}

func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// Issue produces a signed SIGNALING token for (peerID, sessionID, role),
// expiring together with the session.
func (s *Service) Issue(peerID domain.PeerID, sessionID domain.SessionID, role domain.Role, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: string(sessionID),
		Role:      string(role),
		Kind:      KindSignaling,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(peerID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry. Every structural or cryptographic
// failure collapses to ErrInvalidToken; callers get no finer distinction.
func (s *Service) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

func (c *Claims) PeerID() domain.PeerID {
	return domain.PeerID(c.Subject)
}
