package call

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sotradis/voice-agent/internal/rag"
	"github.com/sotradis/voice-agent/pkg/realtime"
)

// State is the lifecycle phase of one phone call.
type State string

const (
	StateRinging      State = "ringing"
	StateAnswered     State = "answered"
	StateConnected    State = "connected"
	StateStreaming    State = "streaming"
	StateDisconnected State = "disconnected"
)

// Session is one live phone call: the media socket from the call platform,
// the speech-AI conversation and the per-call retrieval state.
type Session struct {
	ContextID string
	CallerID  string
	StartedAt time.Time

	mu               sync.Mutex
	state            State
	callConnectionID string
	socket           *websocket.Conn
	conversation     realtime.Conversation
	bridge           *AudioBridge
	greeted          bool

	history      *rag.History
	utteranceSeq uint64

	// pipelineMu gates retrieval to one in-flight question per call.
	pipelineMu sync.Mutex
}

// nextUtteranceSeq numbers finalized transcripts in arrival order.
func (s *Session) nextUtteranceSeq() uint64 {
	return atomic.AddUint64(&s.utteranceSeq, 1)
}

func NewSession(contextID, callerID string) *Session {
	return &Session{
		ContextID: contextID,
		CallerID:  callerID,
		StartedAt: time.Now(),
		state:     StateRinging,
		history:   rag.NewHistory(rag.DefaultHistoryCapacity),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session forward. A disconnected session stays
// disconnected.
func (s *Session) Transition(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return
	}
	s.state = to
}

// MarkDisconnected reports whether this call performed the transition, so
// teardown runs exactly once however many disconnect signals arrive.
func (s *Session) MarkDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return false
	}
	s.state = StateDisconnected
	return true
}

func (s *Session) CallConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callConnectionID
}

func (s *Session) setCallConnectionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callConnectionID = id
}

func (s *Session) History() *rag.History { return s.history }

// Conversation returns the live speech-AI session, or nil when no media is
// attached.
func (s *Session) Conversation() realtime.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation
}

func (s *Session) attachMedia(socket *websocket.Conn, conv realtime.Conversation, bridge *AudioBridge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.socket = socket
	s.conversation = conv
	s.bridge = bridge
}

// detachMedia clears and returns the media endpoints so teardown can close
// them outside the lock.
func (s *Session) detachMedia() (*websocket.Conn, realtime.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	socket, conv := s.socket, s.conversation
	s.socket, s.conversation = nil, nil
	if s.bridge != nil {
		s.bridge.DetachSocket()
	}
	return socket, conv
}

// greetOnce reports whether the greeting is still owed. The scripted opening
// line must be spoken exactly once per call.
func (s *Session) greetOnce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.greeted {
		return false
	}
	s.greeted = true
	return true
}
