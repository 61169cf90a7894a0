package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// callbackEvent is one per-call lifecycle event. The call platform posts
// cloud-event envelopes; older deliveries still use eventType.
type callbackEvent struct {
	Type      string `json:"type"`
	EventType string `json:"eventType"`
	Data      struct {
		CallConnectionID string `json:"callConnectionId"`
	} `json:"data"`
}

func (e *callbackEvent) kind() string {
	if e.Type != "" {
		return e.Type
	}
	return e.EventType
}

// CallCallbacks receives mid-call events for one session. The platform
// retries non-200 responses aggressively, so this always acknowledges and
// processes in the background.
func (h *Handler) CallCallbacks(c *gin.Context) {
	contextID := c.Param("contextId")
	callerID := c.Query("callerId")

	var events []callbackEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		h.logger.Warn("malformed callback payload",
			zap.String("context_id", contextID),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"message": "ignored"})
		return
	}

	go func() {
		for _, event := range events {
			h.logger.Debug("callback event",
				zap.String("context_id", contextID),
				zap.String("caller_id", callerID),
				zap.String("event_type", event.kind()))
			h.calls.HandleCallbackEvent(contextID, event.kind())
		}
	}()

	c.JSON(http.StatusOK, gin.H{"message": "callbacks accepted"})
}
