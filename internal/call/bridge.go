package call

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sotradis/voice-agent/pkg/realtime"
)

// mediaSocket is the outbound side of the call platform's media websocket.
// *websocket.Conn satisfies it; tests substitute their own.
type mediaSocket interface {
	WriteJSON(v interface{}) error
}

type audioDataFrame struct {
	Kind      string           `json:"kind"`
	AudioData audioDataPayload `json:"audioData"`
}

type audioDataPayload struct {
	Data string `json:"data"`
}

type stopAudioFrame struct {
	Kind      string   `json:"kind"`
	StopAudio struct{} `json:"stopAudio"`
}

// AudioBridge shuttles base64 PCM frames between the caller's media socket
// and the speech-AI conversation. Frames are best-effort: a failed or
// detached endpoint drops the frame rather than failing the call.
type AudioBridge struct {
	mu     sync.Mutex
	socket mediaSocket
	conv   realtime.Conversation
	logger *zap.Logger
}

func NewAudioBridge(socket mediaSocket, conv realtime.Conversation, logger *zap.Logger) *AudioBridge {
	return &AudioBridge{socket: socket, conv: conv, logger: logger}
}

// SetConversation binds the speech-AI side once it is dialed.
func (b *AudioBridge) SetConversation(conv realtime.Conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conv = conv
}

// ForwardInbound pushes caller audio to the speech-AI session.
func (b *AudioBridge) ForwardInbound(audioB64 string) {
	b.mu.Lock()
	conv := b.conv
	b.mu.Unlock()

	if conv == nil {
		return
	}
	if err := conv.AppendAudio(audioB64); err != nil {
		b.logger.Debug("dropped inbound audio frame", zap.Error(err))
	}
}

// ForwardOutbound pushes synthesized audio back to the caller.
func (b *AudioBridge) ForwardOutbound(audioB64 string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.socket == nil {
		b.logger.Warn("dropped outbound audio frame, media socket closed")
		return
	}
	frame := audioDataFrame{Kind: "AudioData", AudioData: audioDataPayload{Data: audioB64}}
	if err := b.socket.WriteJSON(frame); err != nil {
		b.logger.Warn("dropped outbound audio frame", zap.Error(err))
	}
}

// Interrupt tells the call platform to stop playing queued audio. Sent when
// the caller starts speaking over the assistant.
func (b *AudioBridge) Interrupt() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.socket == nil {
		return
	}
	if err := b.socket.WriteJSON(stopAudioFrame{Kind: "StopAudio"}); err != nil {
		b.logger.Warn("stop audio frame failed", zap.Error(err))
	}
}

// DetachSocket stops outbound forwarding; later frames are dropped.
func (b *AudioBridge) DetachSocket() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.socket = nil
}
