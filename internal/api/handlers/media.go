package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sotradis/voice-agent/pkg/errors"
)

var mediaUpgrader = websocket.Upgrader{
	ReadBufferSize:   4096,
	WriteBufferSize:  4096,
	HandshakeTimeout: 10 * time.Second,
	// the call platform connects from its own infrastructure
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MediaWebSocket upgrades the call platform's media connection and hands it
// to the session. Blocks until the call ends.
func (h *Handler) MediaWebSocket(c *gin.Context) {
	contextID := c.Query("contextId")
	if contextID == "" {
		errors.BadRequest(c, "contextId is required")
		return
	}

	conn, err := mediaUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("media upgrade failed",
			zap.String("context_id", contextID),
			zap.Error(err))
		return
	}

	if err := h.calls.AttachMedia(contextID, conn); err != nil {
		h.logger.Warn("media session ended with error",
			zap.String("context_id", contextID),
			zap.Error(err))
	}
}
