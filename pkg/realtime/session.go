package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config describes one conversational speech-AI session.
type Config struct {
	Endpoint     string
	APIKey       string
	Model        string
	Voice        string
	Instructions string
}

// Callbacks receive the session's typed server event stream. Nil callbacks
// are skipped.
type Callbacks struct {
	OnSessionCreated         func()
	OnAudioDelta             func(audioB64 string)
	OnSpeechStarted          func()
	OnTranscriptDelta        func(text string)
	OnTranscriptDone         func(text string)
	OnTranscriptionCompleted func(text string)
	OnResponseDone           func()
	OnError                  func(err error)
	OnClosed                 func(err error)
}

// Conversation is the session surface the call manager drives. *Session
// implements it; tests substitute their own.
type Conversation interface {
	AppendAudio(audioB64 string) error
	InjectContext(role, text string) error
	RequestResponse() error
	SendGreeting(text string) error
	Close() error
}

// Session is one live websocket connection to the speech-AI service. It is
// owned by exactly one call session and torn down with it.
type Session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	cb      Callbacks
	logger  *zap.Logger
}

// Dial connects, sends the session configuration and starts the event pump.
func Dial(ctx context.Context, cfg Config, cb Callbacks, logger *zap.Logger) (*Session, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	url := cfg.Endpoint
	if cfg.Model != "" {
		url += "?model=" + cfg.Model
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime dial failed (%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime dial failed: %w", err)
	}

	s := &Session{conn: conn, cb: cb, logger: logger}

	if err := s.configure(cfg); err != nil {
		conn.Close()
		return nil, err
	}

	go s.readPump()
	return s, nil
}

// configure sends the initial session.update: persona instructions, voice,
// pcm16 both ways, server-side VAD and input transcription.
func (s *Session) configure(cfg Config) error {
	return s.writeJSON(map[string]interface{}{
		"type": "session.update",
		"session": map[string]interface{}{
			"modalities":          []string{"audio", "text"},
			"instructions":        cfg.Instructions,
			"voice":               cfg.Voice,
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			"turn_detection": map[string]interface{}{
				"type": "server_vad",
			},
			"input_audio_transcription": map[string]interface{}{
				"model": "whisper-1",
			},
		},
	})
}

// AppendAudio forwards one inbound caller audio frame.
func (s *Session) AppendAudio(audioB64 string) error {
	return s.writeJSON(map[string]interface{}{
		"type":  "input_audio_buffer.append",
		"audio": audioB64,
	})
}

// InjectContext adds a conversation item (grounding text, usually role
// "system") without triggering a response.
func (s *Session) InjectContext(role, text string) error {
	return s.writeJSON(map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]interface{}{
			"type": "message",
			"role": role,
			"content": []map[string]interface{}{
				{"type": "input_text", "text": text},
			},
		},
	})
}

// RequestResponse asks the service to produce the next spoken answer.
func (s *Session) RequestResponse() error {
	return s.writeJSON(map[string]interface{}{
		"type": "response.create",
	})
}

// SendGreeting injects the scripted opening line and asks for it to be
// spoken.
func (s *Session) SendGreeting(text string) error {
	if err := s.InjectContext("user", text); err != nil {
		return err
	}
	return s.RequestResponse()
}

func (s *Session) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"))
	return s.conn.Close()
}

// writeJSON serializes writes; gorilla connections allow one writer at a
// time.
func (s *Session) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}
