// Package http exposes the session lifecycle as a small REST surface and
// maps the core's flat error kinds onto HTTP statuses with stable string
// codes.
package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/nikworkspace/anyshare/internal/app"
	"github.com/nikworkspace/anyshare/internal/domain"
)

type SessionHandlers struct {
	Lifecycle *app.Lifecycle
}

func NewSessionHandlers(lc *app.Lifecycle) *SessionHandlers {
	return &SessionHandlers{Lifecycle: lc}
}

type deviceRequest struct {
	DeviceType string `json:"deviceType"`
	UserAgent  string `json:"userAgent"`
}

type createResponse struct {
	SessionID string `json:"sessionId"`
	RoomCode  string `json:"roomCode"`
	WsURL     string `json:"wsUrl"`
	QRCode    string `json:"qrCode"`
	CreatedAt string `json:"createdAt"`
	ExpiresAt string `json:"expiresAt"`
}

type infoResponse struct {
	SessionID      string `json:"sessionId"`
	Status         string `json:"status"`
	PeersConnected int    `json:"peersConnected"`
	MaxPeers       int    `json:"maxPeers"`
	CanJoin        bool   `json:"canJoin"`
	ExpiresAt      string `json:"expiresAt"`
}

type joinResponse struct {
	SessionID string `json:"sessionId"`
	PeerID    string `json:"peerId"`
	Role      string `json:"role"`
	Token     string `json:"token"`
	WsURL     string `json:"wsUrl"`
	ExpiresAt string `json:"expiresAt"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *SessionHandlers) Create(c *gin.Context) {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ErrMalformedRequest)
		return
	}

	res, err := h.Lifecycle.CreateSession(c.Request.Context(), req.DeviceType, req.UserAgent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createResponse{
		SessionID: string(res.SessionID),
		RoomCode:  string(res.RoomCode),
		WsURL:     res.RelayURL,
		QRCode:    res.QRPayload,
		CreatedAt: res.CreatedAt.Format(time.RFC3339),
		ExpiresAt: res.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *SessionHandlers) Info(c *gin.Context) {
	code := domain.RoomCode(c.Param("id"))
	info, err := h.Lifecycle.GetSessionInfo(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, infoResponse{
		SessionID:      string(info.SessionID),
		Status:         string(info.Status),
		PeersConnected: info.PeersConnected,
		MaxPeers:       info.MaxPeers,
		CanJoin:        info.CanJoin,
		ExpiresAt:      info.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *SessionHandlers) Join(c *gin.Context) {
	code := domain.RoomCode(c.Param("id"))
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.ErrMalformedRequest)
		return
	}

	res, err := h.Lifecycle.JoinSession(c.Request.Context(), code, req.DeviceType, req.UserAgent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, joinResponse{
		SessionID: string(res.SessionID),
		PeerID:    string(res.PeerID),
		Role:      string(res.Role),
		Token:     res.Token,
		WsURL:     res.RelayURL,
		ExpiresAt: res.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *SessionHandlers) Close(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))
	raw := bearerToken(c)
	if raw == "" {
		writeError(c, domain.ErrInvalidToken)
		return
	}
	if err := h.Lifecycle.CloseSession(c.Request.Context(), id, raw); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimPrefix(auth, prefix)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, errorResponse{"SESSION_NOT_FOUND", "session does not exist or has expired"})
	case errors.Is(err, domain.ErrSessionExpired):
		c.JSON(http.StatusGone, errorResponse{"SESSION_EXPIRED", "session has expired"})
	case errors.Is(err, domain.ErrSessionFull):
		c.JSON(http.StatusConflict, errorResponse{"SESSION_FULL", "session is already full"})
	case errors.Is(err, domain.ErrInvalidSessionState):
		c.JSON(http.StatusForbidden, errorResponse{"INVALID_SESSION_STATE", "session is no longer accepting connections"})
	case errors.Is(err, domain.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, errorResponse{"INVALID_TOKEN", "invalid or expired token"})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, errorResponse{"UNAUTHORIZED", "not authorized for this session"})
	case errors.Is(err, domain.ErrMalformedRequest):
		c.JSON(http.StatusBadRequest, errorResponse{"MALFORMED_REQUEST", "request body is malformed"})
	default:
		// full detail stays server-side only
		log.Error().Err(err).Str("module", "adapters.http").Msg("internal error")
		c.JSON(http.StatusInternalServerError, errorResponse{"INTERNAL_ERROR", "internal server error"})
	}
}
