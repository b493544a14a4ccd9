package dto

import (
	"time"

	"memoir-ai-api/internal/application/convstate"
	"memoir-ai-api/internal/domain/entity"
)

// StartConversationRequest 开始对话请求；user_id 来自认证信息
type StartConversationRequest struct {
	Medium           entity.ConversationMedium   `json:"medium" binding:"omitempty,oneof=text voice self"`
	BookID           string                      `json:"book_id"`
	ChapterID        string                      `json:"chapter_id,omitempty"`
	ConversationType entity.ConversationType     `json:"conversation_type"`
	Context          *entity.ConversationContext `json:"context,omitempty"`
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Message string                      `json:"message"`
	Context *entity.ConversationContext `json:"context,omitempty"`
}

// ConversationResponse 会话响应
type ConversationResponse struct {
	SessionID          string                       `json:"session_id"`
	UserID             string                       `json:"user_id"`
	BookID             string                       `json:"book_id"`
	ChapterID          string                       `json:"chapter_id,omitempty"`
	ConversationType   entity.ConversationType      `json:"conversation_type"`
	ConversationMedium entity.ConversationMedium    `json:"conversation_medium"`
	Messages           []entity.ConversationMessage `json:"messages"`
	Context            *entity.ConversationContext  `json:"context,omitempty"`
	Goals              []string                     `json:"goals"`
	Active             bool                         `json:"active"`
	CreatedAt          string                       `json:"created_at"`
	UpdatedAt          string                       `json:"updated_at"`
}

// ConversationListResponse 会话列表响应，列表项不带消息正文
type ConversationListResponse struct {
	Conversations []*ConversationResponse `json:"conversations"`
}

// ToConversationResponse 实体转响应
func ToConversationResponse(s *entity.ConversationSession, active bool) *ConversationResponse {
	if s == nil {
		return nil
	}
	messages := s.Messages
	if messages == nil {
		messages = []entity.ConversationMessage{}
	}
	goals := s.Goals
	if goals == nil {
		goals = []string{}
	}
	return &ConversationResponse{
		SessionID:          s.SessionID,
		UserID:             s.UserID,
		BookID:             s.BookID,
		ChapterID:          s.ChapterID,
		ConversationType:   s.ConversationType,
		ConversationMedium: s.ConversationMedium,
		Messages:           messages,
		Context:            s.Context,
		Goals:              goals,
		Active:             active,
		CreatedAt:          s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ContextCacheRequest 写入上下文缓存
type ContextCacheRequest struct {
	BookID    string                      `json:"book_id"`
	ChapterID string                      `json:"chapter_id,omitempty"`
	Context   *entity.ConversationContext `json:"context"`
}

// ContextCacheResponse 上下文缓存查询结果，未命中时 context 为空
type ContextCacheResponse struct {
	BookID    string                      `json:"book_id"`
	ChapterID string                      `json:"chapter_id,omitempty"`
	Hit       bool                        `json:"hit"`
	Context   *entity.ConversationContext `json:"context,omitempty"`
}

// CheckQuestionRequest 问题查重请求
type CheckQuestionRequest struct {
	BookID           string                  `json:"book_id"`
	ConversationType entity.ConversationType `json:"conversation_type"`
	QuestionText     string                  `json:"question_text"`
}

// UpdateQualityRequest 回答质量评分
type UpdateQualityRequest struct {
	Rating int `json:"rating"`
}

// VoiceClientFrame 语音通道客户端帧
type VoiceClientFrame struct {
	Type    string      `json:"type"`
	Role    entity.Role `json:"role,omitempty"`
	Content string      `json:"content,omitempty"`
	URL     string      `json:"url,omitempty"`
}

// VoiceServerFrame 语音通道服务端帧
type VoiceServerFrame struct {
	Type    string           `json:"type"`
	State   *convstate.State `json:"state,omitempty"`
	Code    string           `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
}

// 语音通道帧类型
const (
	VoiceFrameConnecting       = "connecting"
	VoiceFrameConnected        = "connected"
	VoiceFrameSpeaking         = "speaking"
	VoiceFrameListening        = "listening"
	VoiceFramePermissionDenied = "permission_denied"
	VoiceFrameMessage          = "message"
	VoiceFrameAudioClip        = "audio_clip"
	VoiceFrameEnd              = "end"

	VoiceFrameState = "state"
	VoiceFrameError = "error"
)
