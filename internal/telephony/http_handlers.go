package telephony

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"outreach-platform/internal/calls"
	"outreach-platform/pkg/logger"
)

// EventWriter is the part of the calls repository the webhook writes through.
type EventWriter interface {
	ApplyTerminalEvent(ctx context.Context, ev calls.TerminalEvent, now time.Time) (calls.Session, error)
}

// StatusCallbackHandler converts Twilio status callbacks to terminal events
// and records them on the call session. No disposition logic runs here; the
// agent disposes the call separately.
type StatusCallbackHandler struct {
	Sessions EventWriter

	// AuthToken enables X-Twilio-Signature validation when set. PublicURL is
	// the scheme and host Twilio is configured to call.
	AuthToken string
	PublicURL string

	// Region is used to normalize numbers without a country prefix.
	Region string

	Now func() time.Time
}

func (h StatusCallbackHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call sessions not configured"})
		return
	}

	form, err := ParseStatusCallback(c.Request, h.Region)
	if err != nil {
		log.Warn("twilio status callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if h.AuthToken != "" && !ValidSignature(c.Request, h.AuthToken, h.PublicURL) {
		log.Warn("twilio signature rejected", "call_sid", form.CallSid)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}

	ev, err := form.ToTerminalEvent(h.Now())
	if err != nil {
		log.Warn("twilio status callback rejected", "call_sid", form.CallSid, "status", form.CallStatus, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	s, err := h.Sessions.ApplyTerminalEvent(c.Request.Context(), ev, h.Now())
	switch {
	case err == nil:
	case errors.Is(err, calls.ErrSessionNotFound):
		log.Warn("status callback for unknown call", "call_sid", form.CallSid, "session_id", form.SessionID)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
		return
	case errors.Is(err, calls.ErrInvalidEvent):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
		return
	default:
		log.Error("record call status failed", "call_sid", form.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "record failed"})
		return
	}

	log.Info("call status recorded", "session_id", s.ID, "call_sid", s.CallSid, "status", s.Status, "duration", s.DurationSeconds)
	c.Status(http.StatusNoContent)
}
