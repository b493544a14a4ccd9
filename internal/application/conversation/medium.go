package conversation

import (
	"context"

	"memoir-ai-api/internal/domain/entity"
)

// StartParams 开始对话参数
type StartParams struct {
	UserID           string                      `json:"user_id"`
	BookID           string                      `json:"book_id"`
	ChapterID        string                      `json:"chapter_id,omitempty"`
	ConversationType entity.ConversationType     `json:"conversation_type"`
	Context          *entity.ConversationContext `json:"context"`
}

// SendParams 发送消息参数
type SendParams struct {
	Session *entity.ConversationSession `json:"session"`
	Message string                      `json:"message"`
	UserID  string                      `json:"user_id"`
	Context *entity.ConversationContext `json:"context"`
}

// Handler 单一媒介的对话实现
type Handler interface {
	Start(ctx context.Context, params StartParams) (*entity.ConversationSession, error)
	SendMessage(ctx context.Context, params SendParams) (*entity.ConversationSession, error)
	// End 释放媒介资源，可重复调用
	End(ctx context.Context) error
	IsSupported() bool
}

// sessionRestorer 恢复会话时需要重新持有会话状态的处理器
type sessionRestorer interface {
	Restore(session *entity.ConversationSession)
}

// HandlerFactory 为一个会话创建（或复用）处理器
type HandlerFactory func() Handler

// HandlerFactories 媒介到处理器工厂的映射
type HandlerFactories map[entity.ConversationMedium]HandlerFactory

// Shared 返回始终复用同一实例的工厂，用于无会话状态的处理器
func Shared(h Handler) HandlerFactory {
	return func() Handler { return h }
}
