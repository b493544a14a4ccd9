package conversation

import (
	"context"
	"strings"
	"time"

	"memoir-ai-api/internal/domain/entity"
	apperrors "memoir-ai-api/pkg/errors"
	"memoir-ai-api/pkg/metrics"
)

// SpeechTranscriber 将音频片段转写为文本
type SpeechTranscriber interface {
	TranscribeURL(ctx context.Context, audioURL string) (string, error)
}

// VoiceTransport 实时语音通道的服务端落点：把定稿消息交给语音处理器追加并持久化
type VoiceTransport struct {
	mediator *Mediator
	speech   SpeechTranscriber
	now      func() time.Time
}

// NewVoiceTransport speech 为 nil 时不支持音频片段
func NewVoiceTransport(mediator *Mediator, speech SpeechTranscriber) *VoiceTransport {
	return &VoiceTransport{mediator: mediator, speech: speech, now: time.Now}
}

// AppendFinalMessage 追加一条定稿消息
func (t *VoiceTransport) AppendFinalMessage(ctx context.Context, sessionID string, role entity.Role, content string) (*entity.ConversationSession, error) {
	if !role.Valid() {
		return nil, apperrors.ErrValidationFailed.WithDetail("role must be user or assistant")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.ErrValidationFailed.WithDetail("content is required")
	}

	vh, err := t.mediator.VoiceHandler(sessionID)
	if err != nil {
		return nil, err
	}
	session, err := vh.AppendMessage(ctx, role, content, t.now())
	if err != nil {
		return nil, err
	}
	metrics.ConversationMessagesTotal.WithLabelValues(string(entity.MediumVoice), string(role)).Inc()
	return session, nil
}

// AppendAudioClip 转写音频片段并作为用户消息追加
func (t *VoiceTransport) AppendAudioClip(ctx context.Context, sessionID, audioURL string) (*entity.ConversationSession, error) {
	if t.speech == nil {
		return nil, apperrors.ErrUnsupportedOperation.WithDetail("speech transcription is not configured")
	}
	if strings.TrimSpace(audioURL) == "" {
		return nil, apperrors.ErrValidationFailed.WithDetail("url is required")
	}
	if _, err := t.mediator.VoiceHandler(sessionID); err != nil {
		return nil, err
	}

	text, err := t.speech.TranscribeURL(ctx, audioURL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeSpeechError, "speech transcription failed")
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.ErrValidationFailed.WithDetail("transcript is empty")
	}
	return t.AppendFinalMessage(ctx, sessionID, entity.RoleUser, text)
}
