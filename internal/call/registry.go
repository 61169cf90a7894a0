package call

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Registry tracks live sessions under two keys: the context id minted when a
// call is answered, and the call connection id the platform assigns.
type Registry struct {
	mu           sync.RWMutex
	byContext    map[string]*Session
	byConnection map[string]*Session
	logger       *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		byContext:    make(map[string]*Session),
		byConnection: make(map[string]*Session),
		logger:       logger,
	}
}

func (r *Registry) Create(contextID, callerID string) *Session {
	sess := NewSession(contextID, callerID)
	r.mu.Lock()
	r.byContext[contextID] = sess
	r.mu.Unlock()

	r.logger.Info("session created",
		zap.String("context_id", contextID),
		zap.String("caller_id", callerID))
	return sess
}

// AttachConnection indexes the session under its platform connection id.
func (r *Registry) AttachConnection(contextID, callConnectionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byContext[contextID]
	if !ok {
		return nil, false
	}
	sess.setCallConnectionID(callConnectionID)
	r.byConnection[callConnectionID] = sess
	return sess, true
}

func (r *Registry) FindByContext(contextID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byContext[contextID]
	return sess, ok
}

func (r *Registry) FindByConnection(callConnectionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byConnection[callConnectionID]
	return sess, ok
}

// Remove drops the session from both indexes. Removing an unknown or
// already-removed session is a no-op.
func (r *Registry) Remove(contextID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byContext[contextID]
	if !ok {
		return nil, false
	}
	delete(r.byContext, contextID)
	if id := sess.CallConnectionID(); id != "" {
		delete(r.byConnection, id)
	}
	return sess, true
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byContext)
}

// CloseAll disconnects every live session, used on server shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.byContext))
	for _, sess := range r.byContext {
		sessions = append(sessions, sess)
	}
	r.byContext = make(map[string]*Session)
	r.byConnection = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		if !sess.MarkDisconnected() {
			continue
		}
		socket, conv := sess.detachMedia()
		if conv != nil {
			conv.Close()
		}
		if socket != nil {
			socket.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, reason))
			socket.Close()
		}
		r.logger.Info("session closed",
			zap.String("context_id", sess.ContextID),
			zap.String("reason", reason))
	}
}
