package httpapi

import (
	"errors"
	"net/http"

	"softphone-dialer/internal/telephony"

	"github.com/gin-gonic/gin"
)

// DemoLine drives the simulated line in demo mode.
type DemoLine interface {
	Ring(number string) error
	RemoteHangup() error
	Fail(message string, temporary bool)
}

var _ DemoLine = (*telephony.DemoClient)(nil)

type failRequest struct {
	Message   string `json:"message"`
	Temporary bool   `json:"temporary"`
}

func lineStatus(err error) int {
	switch {
	case errors.Is(err, telephony.ErrCallActive), errors.Is(err, telephony.ErrNoActiveCall):
		return http.StatusConflict
	case errors.Is(err, telephony.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DemoRing simulates an inbound call.
func (h Handlers) DemoRing(c *gin.Context) {
	if h.Demo == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "demo line not enabled"})
		return
	}
	var req numberRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Number == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "number required"})
		return
	}
	if err := h.Demo.Ring(req.Number); err != nil {
		c.AbortWithStatusJSON(lineStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

// DemoRemoteHangup simulates the remote party ending the call.
func (h Handlers) DemoRemoteHangup(c *gin.Context) {
	if h.Demo == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "demo line not enabled"})
		return
	}
	if err := h.Demo.RemoteHangup(); err != nil {
		c.AbortWithStatusJSON(lineStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

// DemoFail injects a line error.
func (h Handlers) DemoFail(c *gin.Context) {
	if h.Demo == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "demo line not enabled"})
		return
	}
	var req failRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "message required"})
		return
	}
	h.Demo.Fail(req.Message, req.Temporary)
	c.Status(http.StatusAccepted)
}
