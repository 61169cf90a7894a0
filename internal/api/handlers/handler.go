package handlers

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sotradis/voice-agent/pkg/ai"
	"github.com/sotradis/voice-agent/pkg/env"
	"github.com/sotradis/voice-agent/pkg/logger"
	"github.com/sotradis/voice-agent/pkg/sqldb"
)

// CallController is the slice of the call manager the HTTP layer drives.
type CallController interface {
	HandleIncomingCall(ctx context.Context, incomingCallContext, callerID string) (string, error)
	HandleCallbackEvent(contextID, eventType string)
	AttachMedia(contextID string, socket *websocket.Conn) error
	ActiveSessions() int
}

type Handler struct {
	cfg         *env.Config
	redisClient *redis.Client
	db          *sqldb.Client
	aiManager   *ai.Manager
	calls       CallController
	logger      *zap.Logger
}

func NewHandler(
	cfg *env.Config,
	redisClient *redis.Client,
	db *sqldb.Client,
	aiManager *ai.Manager,
	calls CallController,
) *Handler {
	return &Handler{
		cfg:         cfg,
		redisClient: redisClient,
		db:          db,
		aiManager:   aiManager,
		calls:       calls,
		logger:      logger.Named("http"),
	}
}
