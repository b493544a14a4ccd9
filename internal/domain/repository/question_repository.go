package repository

import (
	"context"

	"memoir-ai-api/internal/domain/entity"
)

// QuestionScope 问题查重范围
type QuestionScope struct {
	UserID           string
	BookID           string
	ConversationType entity.ConversationType
}

// QuestionRepository 问题追踪持久层
type QuestionRepository interface {
	Create(ctx context.Context, q *entity.ConversationQuestion) error
	GetByID(ctx context.Context, id string) (*entity.ConversationQuestion, error)
	// FindByHash 精确指纹匹配
	FindByHash(ctx context.Context, scope QuestionScope, hash string) ([]*entity.ConversationQuestion, error)
	// FindByKeywordOverlap 任一关键词重叠，按创建时间倒序
	FindByKeywordOverlap(ctx context.Context, scope QuestionScope, keywords []string, limit int) ([]*entity.ConversationQuestion, error)
	UpdateResponseQuality(ctx context.Context, id string, rating int) error
	ListByBook(ctx context.Context, userID, bookID string) ([]*entity.ConversationQuestion, error)
	// DeleteBySession 随会话删除级联清理
	DeleteBySession(ctx context.Context, sessionID string) error
}
