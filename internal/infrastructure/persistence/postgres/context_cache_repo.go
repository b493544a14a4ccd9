package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"memoir-ai-api/internal/domain/entity"
)

type ContextCacheRepository struct {
	client *Client
}

func NewContextCacheRepository(client *Client) *ContextCacheRepository {
	return &ContextCacheRepository{client: client}
}

// GetValid 过期条目在查询时过滤，不做主动清理
func (r *ContextCacheRepository) GetValid(ctx context.Context, userID, bookID, chapterID string, now time.Time) (*entity.CachedContext, error) {
	ctx, span := tracer.Start(ctx, "postgres.ContextCacheRepository.GetValid")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var entry entity.CachedContext
	err := db.Where("user_id = ? AND book_id = ? AND chapter_id = ? AND expires_at > ?", userID, bookID, chapterID, now).
		Order("created_at DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(span, "get cached context", err)
	}
	return &entry, nil
}

func (r *ContextCacheRepository) Upsert(ctx context.Context, entry *entity.CachedContext) error {
	ctx, span := tracer.Start(ctx, "postgres.ContextCacheRepository.Upsert")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}, {Name: "chapter_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"context", "expires_at", "created_at"}),
	}).Create(entry).Error
	if err != nil {
		return dbError(span, "upsert cached context", err)
	}
	return nil
}

func (r *ContextCacheRepository) Delete(ctx context.Context, userID, bookID, chapterID string) error {
	ctx, span := tracer.Start(ctx, "postgres.ContextCacheRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("user_id = ? AND book_id = ? AND chapter_id = ?", userID, bookID, chapterID).
		Delete(&entity.CachedContext{}).Error; err != nil {
		return dbError(span, "delete cached context", err)
	}
	return nil
}
