package call

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sotradis/voice-agent/internal/rag"
	"github.com/sotradis/voice-agent/pkg/acs"
	"github.com/sotradis/voice-agent/pkg/env"
	"github.com/sotradis/voice-agent/pkg/realtime"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	dialTimeout  = 5 * time.Second
)

// Telephony is the slice of the call-automation REST client the manager
// drives. *acs.Client satisfies it.
type Telephony interface {
	AnswerCall(req acs.AnswerCallRequest) (*acs.AnswerCallResponse, error)
	GetCallProperties(callConnectionID string) (*acs.CallProperties, error)
	Hangup(callConnectionID string) error
}

// RealtimeDialer opens a speech-AI conversation for one call. Injected so
// tests can substitute a fake conversation.
type RealtimeDialer func(ctx context.Context, cb realtime.Callbacks) (realtime.Conversation, error)

// Manager owns the call lifecycle end to end: answering inbound calls,
// reacting to platform callbacks, bridging media and driving retrieval.
type Manager struct {
	cfg      *env.Config
	acs      Telephony
	gen      rag.Generator
	db       rag.Executor
	registry *Registry
	dial     RealtimeDialer
	logger   *zap.Logger
	draining atomic.Bool
}

func NewManager(cfg *env.Config, telephony Telephony, gen rag.Generator, db rag.Executor, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		acs:      telephony,
		gen:      gen,
		db:       db,
		registry: NewRegistry(logger),
		logger:   logger,
	}
	m.dial = m.dialRealtime
	return m
}

func (m *Manager) Registry() *Registry { return m.registry }

func (m *Manager) ActiveSessions() int { return m.registry.ActiveCount() }

// HandleIncomingCall answers an inbound call and registers its session. The
// returned context id keys the callback URL and the media transport URL.
func (m *Manager) HandleIncomingCall(ctx context.Context, incomingCallContext, callerID string) (string, error) {
	if m.draining.Load() {
		return "", fmt.Errorf("shutting down, not accepting calls")
	}

	contextID := uuid.NewString()
	sess := m.registry.Create(contextID, callerID)

	resp, err := m.acs.AnswerCall(acs.AnswerCallRequest{
		IncomingCallContext: incomingCallContext,
		CallbackURI:         m.cfg.CallbackURL(contextID, callerID),
		MediaStreaming:      acs.DefaultMediaStreaming(m.cfg.MediaTransportURL(contextID), m.cfg.MediaSampleRate),
	})
	if err != nil {
		m.registry.Remove(contextID)
		return "", fmt.Errorf("answer incoming call: %w", err)
	}

	// Shutdown may have emptied the registry while the answer request was
	// in flight; release the call instead of leaving it connected.
	if _, ok := m.registry.AttachConnection(contextID, resp.CallConnectionID); !ok {
		if err := m.acs.Hangup(resp.CallConnectionID); err != nil {
			m.logger.Warn("release of drained call failed", zap.Error(err))
		}
		return "", fmt.Errorf("shutting down, call %s released", contextID)
	}
	sess.Transition(StateAnswered)

	m.logger.Info("incoming call answered",
		zap.String("context_id", contextID),
		zap.String("caller_id", callerID),
		zap.String("call_connection_id", resp.CallConnectionID))
	return contextID, nil
}

// HandleCallbackEvent processes one per-call lifecycle event from the call
// platform. Unknown event types are logged and ignored.
func (m *Manager) HandleCallbackEvent(contextID, eventType string) {
	sess, ok := m.registry.FindByContext(contextID)
	if !ok {
		m.logger.Warn("callback for unknown session",
			zap.String("context_id", contextID),
			zap.String("event_type", eventType))
		return
	}

	switch eventType {
	case "Microsoft.Communication.CallConnected":
		sess.Transition(StateConnected)
		if props, err := m.acs.GetCallProperties(sess.CallConnectionID()); err != nil {
			m.logger.Warn("call properties fetch failed", zap.Error(err))
		} else {
			m.logger.Info("call connected",
				zap.String("context_id", contextID),
				zap.String("correlation_id", props.CorrelationID),
				zap.String("state", props.State))
		}

	case "Microsoft.Communication.CallDisconnected":
		m.Teardown(contextID, "call disconnected")

	case "Microsoft.Communication.MediaStreamingStarted":
		sess.Transition(StateStreaming)
		m.logger.Info("media streaming started", zap.String("context_id", contextID))

	case "Microsoft.Communication.MediaStreamingStopped":
		m.logger.Info("media streaming stopped", zap.String("context_id", contextID))

	case "Microsoft.Communication.MediaStreamingFailed":
		m.logger.Error("media streaming failed", zap.String("context_id", contextID))

	default:
		m.logger.Debug("unhandled callback event",
			zap.String("context_id", contextID),
			zap.String("event_type", eventType))
	}
}

// Teardown disconnects one session. Safe to call from the platform callback,
// the media read pump and the speech-AI close handler at once; only the
// first caller does the work.
func (m *Manager) Teardown(contextID, reason string) {
	sess, ok := m.registry.FindByContext(contextID)
	if !ok {
		return
	}
	if !sess.MarkDisconnected() {
		return
	}

	socket, conv := sess.detachMedia()
	if conv != nil {
		conv.Close()
	}
	if socket != nil {
		socket.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
		socket.Close()
	}
	if id := sess.CallConnectionID(); id != "" {
		if err := m.acs.Hangup(id); err != nil {
			m.logger.Debug("hangup failed", zap.String("context_id", contextID), zap.Error(err))
		}
	}
	m.registry.Remove(contextID)

	m.logger.Info("session torn down",
		zap.String("context_id", contextID),
		zap.String("reason", reason),
		zap.Duration("duration", time.Since(sess.StartedAt)))
}

// Shutdown stops accepting new calls, then disconnects every live session.
func (m *Manager) Shutdown() {
	m.draining.Store(true)
	m.registry.CloseAll("server shutting down")
}

// mediaFrame is one inbound message on the call platform's media websocket.
type mediaFrame struct {
	Kind      string `json:"kind"`
	AudioData *struct {
		Data   string `json:"data"`
		Silent bool   `json:"silent"`
	} `json:"audioData"`
}

// AttachMedia binds an upgraded media websocket to its session, opens the
// speech-AI conversation and pumps caller audio until the socket closes.
// Blocks for the lifetime of the connection.
func (m *Manager) AttachMedia(contextID string, socket *websocket.Conn) error {
	sess, ok := m.registry.FindByContext(contextID)
	if !ok {
		socket.Close()
		return fmt.Errorf("no session for context %s", contextID)
	}

	bridge := NewAudioBridge(socket, nil, m.logger)

	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	ready := make(chan struct{})
	conv, err := m.dial(dialCtx, m.callbacks(sess, bridge, ready))
	if err != nil {
		socket.Close()
		m.Teardown(contextID, "speech service unavailable")
		return fmt.Errorf("dial realtime: %w", err)
	}

	bridge.SetConversation(conv)
	sess.attachMedia(socket, conv, bridge)

	// The call may have disconnected while the dial was in flight, with
	// teardown finding nothing to close. Release both endpoints here.
	if sess.State() == StateDisconnected {
		staleSocket, staleConv := sess.detachMedia()
		if staleConv != nil {
			staleConv.Close()
		}
		if staleSocket != nil {
			staleSocket.Close()
		}
		return fmt.Errorf("call %s ended during media setup", contextID)
	}
	go m.greetWhenReady(sess, conv, ready)

	m.logger.Info("media socket attached", zap.String("context_id", contextID))
	m.readMedia(sess, socket, bridge)
	m.Teardown(contextID, "media socket closed")
	return nil
}

// readMedia is the media socket read pump with the usual ping keepalive.
func (m *Manager) readMedia(sess *Session, socket *websocket.Conn, bridge *AudioBridge) {
	socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Warn("media socket read failed",
					zap.String("context_id", sess.ContextID),
					zap.Error(err))
			}
			return
		}
		socket.SetReadDeadline(time.Now().Add(pongWait))

		var frame mediaFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			m.logger.Debug("malformed media frame", zap.Error(err))
			continue
		}
		if frame.Kind == "AudioData" && frame.AudioData != nil && !frame.AudioData.Silent {
			bridge.ForwardInbound(frame.AudioData.Data)
		}
	}
}

// greetWhenReady speaks the scripted opening line once the speech service
// confirms the session.
func (m *Manager) greetWhenReady(sess *Session, conv realtime.Conversation, ready <-chan struct{}) {
	select {
	case <-ready:
	case <-time.After(pongWait):
		m.logger.Warn("speech session never confirmed, skipping greeting",
			zap.String("context_id", sess.ContextID))
		return
	}
	if !sess.greetOnce() {
		return
	}
	if err := conv.SendGreeting(m.cfg.AgentGreeting); err != nil {
		m.logger.Warn("greeting failed", zap.String("context_id", sess.ContextID), zap.Error(err))
	}
}

// callbacks wires the speech-AI event stream to the bridge and retrieval.
func (m *Manager) callbacks(sess *Session, bridge *AudioBridge, ready chan<- struct{}) realtime.Callbacks {
	var created sync.Once
	return realtime.Callbacks{
		OnSessionCreated: func() {
			created.Do(func() { close(ready) })
		},
		OnAudioDelta:    bridge.ForwardOutbound,
		OnSpeechStarted: bridge.Interrupt,
		OnTranscriptionCompleted: func(text string) {
			m.handleUtterance(sess, text)
		},
		OnTranscriptDone: func(text string) {
			m.logger.Debug("assistant said",
				zap.String("context_id", sess.ContextID),
				zap.String("transcript", text))
		},
		OnError: func(err error) {
			m.logger.Error("speech service error",
				zap.String("context_id", sess.ContextID),
				zap.Error(err))
		},
		OnClosed: func(err error) {
			if err != nil {
				m.logger.Warn("speech session closed",
					zap.String("context_id", sess.ContextID),
					zap.Error(err))
			}
			m.Teardown(sess.ContextID, "speech session closed")
		},
	}
}

// handleUtterance grounds one transcribed caller question. Questions that
// arrive while retrieval is in flight are dropped, not queued.
func (m *Manager) handleUtterance(sess *Session, question string) {
	if question == "" {
		return
	}
	seq := sess.nextUtteranceSeq()
	if !sess.pipelineMu.TryLock() {
		m.logger.Warn("retrieval busy, dropping utterance",
			zap.String("context_id", sess.ContextID),
			zap.Uint64("utterance_seq", seq),
			zap.String("question", question))
		return
	}

	go func() {
		defer sess.pipelineMu.Unlock()

		pipeline := rag.NewPipeline(m.gen, m.db, sess.History(), m.logger)
		answer := pipeline.Answer(context.Background(), question)

		m.logger.Info("question grounded",
			zap.String("context_id", sess.ContextID),
			zap.Uint64("utterance_seq", seq),
			zap.String("question", question),
			zap.String("source", answer.Source))

		conv := sess.Conversation()
		if conv == nil {
			return
		}
		if err := conv.InjectContext("system", answer.Context); err != nil {
			m.logger.Warn("context injection failed", zap.Error(err))
			return
		}
		if err := conv.RequestResponse(); err != nil {
			m.logger.Warn("response request failed", zap.Error(err))
		}
	}()
}

func (m *Manager) dialRealtime(ctx context.Context, cb realtime.Callbacks) (realtime.Conversation, error) {
	return realtime.Dial(ctx, realtime.Config{
		Endpoint:     m.cfg.RealtimeEndpoint,
		APIKey:       m.cfg.RealtimeAPIKey,
		Model:        m.cfg.RealtimeModel,
		Voice:        m.cfg.RealtimeVoice,
		Instructions: m.cfg.AgentInstructions,
	}, cb, m.logger)
}
