// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/domain/repository"
)

type ConversationSessionRepository struct {
	client *Client
}

func NewConversationSessionRepository(client *Client) *ConversationSessionRepository {
	return &ConversationSessionRepository{client: client}
}

func (r *ConversationSessionRepository) Create(ctx context.Context, session *entity.ConversationSession) error {
	ctx, span := tracer.Start(ctx, "postgres.ConversationSessionRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(session).Error; err != nil {
		return dbError(span, "create conversation session", err)
	}
	return nil
}

func (r *ConversationSessionRepository) GetByID(ctx context.Context, sessionID string) (*entity.ConversationSession, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationSessionRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var session entity.ConversationSession
	if err := db.First(&session, "session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(span, "get conversation session", err)
	}
	return &session, nil
}

// Update 覆盖写入会话并刷新 updated_at
func (r *ConversationSessionRepository) Update(ctx context.Context, session *entity.ConversationSession) error {
	ctx, span := tracer.Start(ctx, "postgres.ConversationSessionRepository.Update")
	defer span.End()

	session.UpdatedAt = time.Now().UTC()
	db := getDB(ctx, r.client.db)
	if err := db.Save(session).Error; err != nil {
		return dbError(span, "update conversation session", err)
	}
	return nil
}

func (r *ConversationSessionRepository) Delete(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "postgres.ConversationSessionRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.ConversationSession{}, "session_id = ?", sessionID).Error; err != nil {
		return dbError(span, "delete conversation session", err)
	}
	return nil
}

func (r *ConversationSessionRepository) List(ctx context.Context, filter repository.ConversationFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.ConversationSession], error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationSessionRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.ConversationSession{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.BookID != "" {
		query = query.Where("book_id = ?", filter.BookID)
	}
	if filter.ChapterID != "" {
		query = query.Where("chapter_id = ?", filter.ChapterID)
	}
	if filter.ConversationType != "" {
		query = query.Where("conversation_type = ?", filter.ConversationType)
	}
	if filter.ConversationMedium != "" {
		query = query.Where("conversation_medium = ?", filter.ConversationMedium)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, dbError(span, "count conversation sessions", err)
	}

	var sessions []*entity.ConversationSession
	if err := query.Order("updated_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&sessions).Error; err != nil {
		return nil, dbError(span, "list conversation sessions", err)
	}

	return repository.NewPagedResult(sessions, total, pagination), nil
}
