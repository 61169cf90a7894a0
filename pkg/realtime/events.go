package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// serverEvent is the envelope of every event the service emits; fields are
// populated per event type.
type serverEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Error      *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *Session) readPump() {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("realtime session read error", zap.Error(err))
			}
			if s.cb.OnClosed != nil {
				s.cb.OnClosed(err)
			}
			return
		}

		var event serverEvent
		if err := json.Unmarshal(message, &event); err != nil {
			s.logger.Warn("failed to parse realtime event", zap.Error(err))
			continue
		}

		s.dispatch(event)
	}
}

func (s *Session) dispatch(event serverEvent) {
	switch event.Type {
	case "session.created":
		if s.cb.OnSessionCreated != nil {
			s.cb.OnSessionCreated()
		}
	case "response.audio.delta":
		if s.cb.OnAudioDelta != nil {
			s.cb.OnAudioDelta(event.Delta)
		}
	case "input_audio_buffer.speech_started":
		if s.cb.OnSpeechStarted != nil {
			s.cb.OnSpeechStarted()
		}
	case "response.audio_transcript.delta":
		if s.cb.OnTranscriptDelta != nil {
			s.cb.OnTranscriptDelta(event.Delta)
		}
	case "response.audio_transcript.done":
		if s.cb.OnTranscriptDone != nil {
			s.cb.OnTranscriptDone(event.Transcript)
		}
	case "conversation.item.input_audio_transcription.completed":
		if s.cb.OnTranscriptionCompleted != nil {
			s.cb.OnTranscriptionCompleted(event.Transcript)
		}
	case "response.done":
		if s.cb.OnResponseDone != nil {
			s.cb.OnResponseDone()
		}
	case "error":
		if s.cb.OnError != nil && event.Error != nil {
			s.cb.OnError(fmt.Errorf("realtime service error %s: %s", event.Error.Code, event.Error.Message))
		}
	default:
		s.logger.Debug("unhandled realtime event", zap.String("type", event.Type))
	}
}
