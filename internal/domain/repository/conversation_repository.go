// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"memoir-ai-api/internal/domain/entity"
)

// ConversationFilter 会话列表过滤条件，空字段不参与过滤
type ConversationFilter struct {
	UserID             string
	BookID             string
	ChapterID          string
	ConversationType   entity.ConversationType
	ConversationMedium entity.ConversationMedium
}

// ConversationRepository 会话持久化（chat_histories）
type ConversationRepository interface {
	Create(ctx context.Context, session *entity.ConversationSession) error
	GetByID(ctx context.Context, sessionID string) (*entity.ConversationSession, error)
	Update(ctx context.Context, session *entity.ConversationSession) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context, filter ConversationFilter, pagination Pagination) (*PagedResult[*entity.ConversationSession], error)
}
