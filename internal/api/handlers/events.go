package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sotradis/voice-agent/pkg/errors"
)

const (
	eventTypeSubscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"
	eventTypeIncomingCall           = "Microsoft.Communication.IncomingCall"

	incomingEventTTL = 10 * time.Minute
)

// eventGridEvent is one entry of the Event Grid array envelope.
type eventGridEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	Subject   string          `json:"subject"`
	Data      json.RawMessage `json:"data"`
}

type subscriptionValidationData struct {
	ValidationCode string `json:"validationCode"`
}

type incomingCallData struct {
	IncomingCallContext string `json:"incomingCallContext"`
	CorrelationID       string `json:"correlationId"`
	From                struct {
		RawID       string `json:"rawId"`
		PhoneNumber *struct {
			Value string `json:"value"`
		} `json:"phoneNumber"`
	} `json:"from"`
}

func (d *incomingCallData) callerID() string {
	if d.From.PhoneNumber != nil && d.From.PhoneNumber.Value != "" {
		return d.From.PhoneNumber.Value
	}
	return d.From.RawID
}

// IncomingCallEvents receives the Event Grid subscription feed. Validation
// handshakes are echoed back; incoming-call events get answered.
func (h *Handler) IncomingCallEvents(c *gin.Context) {
	var events []eventGridEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		errors.BadRequest(c, "invalid event envelope")
		return
	}

	for _, event := range events {
		switch event.EventType {
		case eventTypeSubscriptionValidation:
			var data subscriptionValidationData
			if err := json.Unmarshal(event.Data, &data); err != nil {
				errors.BadRequest(c, "invalid validation event")
				return
			}
			c.JSON(http.StatusOK, gin.H{"validationResponse": data.ValidationCode})
			return

		case eventTypeIncomingCall:
			if h.seenEvent(c.Request.Context(), event.ID) {
				h.logger.Info("duplicate incoming call event skipped", zap.String("event_id", event.ID))
				continue
			}
			var data incomingCallData
			if err := json.Unmarshal(event.Data, &data); err != nil {
				errors.BadRequest(c, "invalid incoming call event")
				return
			}

			contextID, err := h.calls.HandleIncomingCall(c.Request.Context(), data.IncomingCallContext, data.callerID())
			if err != nil {
				h.logger.Error("incoming call answer failed",
					zap.String("caller_id", data.callerID()),
					zap.Error(err))
				errors.InternalError(c, err, h.logger)
				return
			}
			h.logger.Info("incoming call accepted",
				zap.String("context_id", contextID),
				zap.String("correlation_id", data.CorrelationID))

		default:
			h.logger.Debug("ignoring event", zap.String("event_type", event.EventType))
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "events processed"})
}

// seenEvent deduplicates Event Grid redeliveries. Without redis every event
// is treated as new.
func (h *Handler) seenEvent(ctx context.Context, eventID string) bool {
	if h.redisClient == nil || eventID == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	fresh, err := h.redisClient.SetNX(ctx, "events:incoming:"+eventID, 1, incomingEventTTL).Result()
	if err != nil {
		h.logger.Debug("event dedup unavailable", zap.Error(err))
		return false
	}
	return !fresh
}
