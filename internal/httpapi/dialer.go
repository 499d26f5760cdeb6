package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"softphone-dialer/internal/calls"
	"softphone-dialer/internal/reporting"

	"github.com/gin-gonic/gin"
)

// --- Dialer ---

type numberRequest struct {
	Number string `json:"number"`
}

type digitsRequest struct {
	Digits string `json:"digits"`
}

type filterRequest struct {
	Filter string `json:"filter"`
}

type outcomeRequest struct {
	Note string `json:"note"`
}

func (h Handlers) ready(c *gin.Context) bool {
	if h.Dialer == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dialer not configured"})
		return false
	}
	return true
}

func (h Handlers) GetState(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	c.JSON(http.StatusOK, h.Dialer.Snapshot())
}

func (h Handlers) GetQueue(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	c.JSON(http.StatusOK, h.Dialer.Snapshot().Queue)
}

// RefreshQueue re-reads the queue. ?force=true refreshes even while a call
// is in progress.
func (h Handlers) RefreshQueue(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	force, _ := strconv.ParseBool(c.Query("force"))
	if err := h.Dialer.RefreshQueue(c.Request.Context(), force); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Dialer.Snapshot().Queue)
}

func (h Handlers) SetFilter(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	h.Dialer.SetFilter(req.Filter)
	c.JSON(http.StatusOK, h.Dialer.Snapshot().Queue)
}

func (h Handlers) RemoveCall(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	if err := h.Dialer.RemoveCall(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) ScheduleCall(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	rec, err := h.Dialer.ScheduleCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h Handlers) SelectCall(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	if err := h.Dialer.SelectCall(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": h.Dialer.Snapshot().Selected})
}

func (h Handlers) DeselectCall(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	if err := h.Dialer.DeselectCall(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": ""})
}

// PlaceCall dials a queued record. The answer arrives asynchronously on the
// event stream, so success is 202 with the session as it stands.
func (h Handlers) PlaceCall(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	if err := h.Dialer.PlaceCall(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.Dialer.Snapshot().Session)
}

func (h Handlers) PlaceCallByNumber(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	var req numberRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Number == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "number required"})
		return
	}
	rec, err := h.Dialer.PlaceCallByNumber(c.Request.Context(), req.Number)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, rec)
}

func (h Handlers) PlaceCallForRecord(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	var ref calls.Ref
	if err := c.ShouldBindJSON(&ref); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	rec, err := h.Dialer.PlaceCallForRecord(c.Request.Context(), ref)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, rec)
}

func (h Handlers) HangUp(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	if err := h.Dialer.HangUp(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.Dialer.Snapshot().Session)
}

// Transfer hands the call over. An empty body transfers to the configured
// external phone.
func (h Handlers) Transfer(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	var req numberRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	if err := h.Dialer.Transfer(c.Request.Context(), req.Number); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.Dialer.Snapshot().Session)
}

func (h Handlers) SendDigits(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	var req digitsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Digits == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "digits required"})
		return
	}
	if err := h.Dialer.SendDigit(c.Request.Context(), req.Digits); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) Resolve(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	if err := h.Dialer.Resolve(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Dialer.Snapshot().Session)
}

func (h Handlers) StartAutoDial(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	if err := h.Dialer.StartAutoDial(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Dialer.Snapshot().AutoDial)
}

func (h Handlers) StopAutoDial(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	if err := h.Dialer.StopAutoDial(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Dialer.Snapshot().AutoDial)
}

// LogOutcome stores the summary of the last completed call with the agent's note.
func (h Handlers) LogOutcome(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	var req outcomeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	o, err := h.Dialer.LogCallOutcome(c.Request.Context(), req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// Report summarizes the line agent's activity. from/to are RFC3339 and
// default to the last 24 hours.
func (h Handlers) Report(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	to := h.now()
	from := to.Add(-24 * time.Hour)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
	}
	out, err := h.Reports.Activity(c.Request.Context(), reporting.ActivityRequest{
		AgentID: h.AgentID,
		Range:   reporting.TimeRange{From: from, To: to},
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
