package entity

import (
	"time"
)

// CachedContext 持久层上下文缓存条目，(user_id, book_id, chapter_id) 唯一
type CachedContext struct {
	UserID    string               `json:"user_id" gorm:"type:varchar(64);primaryKey"`
	BookID    string               `json:"book_id" gorm:"type:varchar(64);primaryKey"`
	ChapterID string               `json:"chapter_id" gorm:"type:varchar(64);primaryKey"`
	Context   *ConversationContext `json:"context" gorm:"serializer:json;type:jsonb;not null"`
	ExpiresAt time.Time            `json:"expires_at" gorm:"index;not null"`
	CreatedAt time.Time            `json:"created_at"`
}

func (CachedContext) TableName() string {
	return "conversation_context_cache"
}

// Expired 到达 ExpiresAt 即视为不存在
func (c *CachedContext) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ContextCacheKey 组合缓存键 userId:bookId[:chapterId]
func ContextCacheKey(userID, bookID, chapterID string) string {
	key := userID + ":" + bookID
	if chapterID != "" {
		key += ":" + chapterID
	}
	return key
}
