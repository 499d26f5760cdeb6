package httpapi

import (
	"errors"
	"net/http"
	"time"

	"softphone-dialer/internal/auth"
	"softphone-dialer/internal/dialer"
	"softphone-dialer/internal/rbac"
	"softphone-dialer/internal/reporting"
	"softphone-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth   *auth.Manager
	Dialer *dialer.Controller
	// Demo is set only when the simulated line is in use.
	Demo    DemoLine
	Reports *reporting.Service

	// AgentID is the agent the dialer serves; PasswordHash is their bcrypt hash.
	AgentID      string
	PasswordHash string

	// Now is the clock used for token issuance. Defaults to time.Now.
	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type loginRequest struct {
	AgentID  string `json:"agent_id"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login issues a token pair for the dialer's agent.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AgentID == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_id, password required"})
		return
	}
	if req.AgentID != h.AgentID || auth.CheckPassword(h.PasswordHash, req.Password) != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.AgentID, rbac.RoleAgent)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Refresh trades a refresh token for a new pair with the same identity.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), claims.AgentID, claims.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Me echoes the caller's identity.
func (h Handlers) Me(c *gin.Context) {
	agentID, _ := auth.AgentID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "role": role, "line": h.AgentID})
}

// statusFor maps dialer errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dialer.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dialer.ErrMissingNumber), errors.Is(err, dialer.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dialer.ErrSessionActive),
		errors.Is(err, dialer.ErrNoSession),
		errors.Is(err, dialer.ErrBlocked),
		errors.Is(err, dialer.ErrNotBlocked),
		errors.Is(err, dialer.ErrNothingToDial),
		errors.Is(err, dialer.ErrSelectionBusy),
		errors.Is(err, dialer.ErrNoOutcome),
		errors.Is(err, dialer.ErrLineBusy):
		return http.StatusConflict
	case errors.Is(err, dialer.ErrDirectory), errors.Is(err, dialer.ErrSignaling):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.From(c.Request.Context()).Warn("dialer command failed", "path", c.FullPath(), "err", err)
	}
	if status == http.StatusInternalServerError {
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
