package repository

import (
	"context"
	"time"

	"memoir-ai-api/internal/domain/entity"
)

// ContextCacheRepository 上下文缓存持久层
type ContextCacheRepository interface {
	// GetValid 返回未过期的条目，不存在时返回 (nil, nil)
	GetValid(ctx context.Context, userID, bookID, chapterID string, now time.Time) (*entity.CachedContext, error)
	// Upsert 按 (user_id, book_id, chapter_id) 写入或覆盖
	Upsert(ctx context.Context, entry *entity.CachedContext) error
	Delete(ctx context.Context, userID, bookID, chapterID string) error
}
