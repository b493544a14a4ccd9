package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/domain/repository"
	apperrors "memoir-ai-api/pkg/errors"
)

type ConversationQuestionRepository struct {
	client *Client
}

func NewConversationQuestionRepository(client *Client) *ConversationQuestionRepository {
	return &ConversationQuestionRepository{client: client}
}

func (r *ConversationQuestionRepository) Create(ctx context.Context, q *entity.ConversationQuestion) error {
	ctx, span := tracer.Start(ctx, "postgres.ConversationQuestionRepository.Create")
	defer span.End()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(q).Error; err != nil {
		return dbError(span, "create conversation question", err)
	}
	return nil
}

func (r *ConversationQuestionRepository) GetByID(ctx context.Context, id string) (*entity.ConversationQuestion, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationQuestionRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var q entity.ConversationQuestion
	if err := db.First(&q, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(span, "get conversation question", err)
	}
	return &q, nil
}

func (r *ConversationQuestionRepository) scoped(ctx context.Context, scope repository.QuestionScope) *gorm.DB {
	return getDB(ctx, r.client.db).Model(&entity.ConversationQuestion{}).
		Where("user_id = ? AND book_id = ? AND conversation_type = ?", scope.UserID, scope.BookID, scope.ConversationType)
}

func (r *ConversationQuestionRepository) FindByHash(ctx context.Context, scope repository.QuestionScope, hash string) ([]*entity.ConversationQuestion, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationQuestionRepository.FindByHash")
	defer span.End()

	var questions []*entity.ConversationQuestion
	if err := r.scoped(ctx, scope).
		Where("question_hash = ?", hash).
		Order("created_at DESC").
		Find(&questions).Error; err != nil {
		return nil, dbError(span, "find questions by hash", err)
	}
	return questions, nil
}

// FindByKeywordOverlap PostgreSQL 下使用数组 && 运算，其他方言在内存中求交
func (r *ConversationQuestionRepository) FindByKeywordOverlap(ctx context.Context, scope repository.QuestionScope, keywords []string, limit int) ([]*entity.ConversationQuestion, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationQuestionRepository.FindByKeywordOverlap")
	defer span.End()

	if len(keywords) == 0 {
		return nil, nil
	}

	query := r.scoped(ctx, scope).Order("created_at DESC")
	if r.client.isPostgres() {
		var questions []*entity.ConversationQuestion
		if err := query.Where("semantic_keywords && ?", pq.Array(keywords)).
			Limit(limit).
			Find(&questions).Error; err != nil {
			return nil, dbError(span, "find questions by keyword overlap", err)
		}
		return questions, nil
	}

	var candidates []*entity.ConversationQuestion
	if err := query.Find(&candidates).Error; err != nil {
		return nil, dbError(span, "find questions by keyword overlap", err)
	}
	wanted := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		wanted[kw] = struct{}{}
	}
	var matched []*entity.ConversationQuestion
	for _, q := range candidates {
		for _, kw := range q.SemanticKeywords {
			if _, ok := wanted[kw]; ok {
				matched = append(matched, q)
				break
			}
		}
		if limit > 0 && len(matched) == limit {
			break
		}
	}
	return matched, nil
}

func (r *ConversationQuestionRepository) UpdateResponseQuality(ctx context.Context, id string, rating int) error {
	ctx, span := tracer.Start(ctx, "postgres.ConversationQuestionRepository.UpdateResponseQuality")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.ConversationQuestion{}).
		Where("id = ?", id).
		Updates(map[string]any{"response_quality": rating, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return dbError(span, "update response quality", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrQuestionNotFound.WithDetail(id)
	}
	return nil
}

func (r *ConversationQuestionRepository) ListByBook(ctx context.Context, userID, bookID string) ([]*entity.ConversationQuestion, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationQuestionRepository.ListByBook")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var questions []*entity.ConversationQuestion
	if err := db.Where("user_id = ? AND book_id = ?", userID, bookID).
		Order("created_at DESC").
		Find(&questions).Error; err != nil {
		return nil, dbError(span, "list questions by book", err)
	}
	return questions, nil
}

func (r *ConversationQuestionRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "postgres.ConversationQuestionRepository.DeleteBySession")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("session_id = ?", sessionID).Delete(&entity.ConversationQuestion{}).Error; err != nil {
		return dbError(span, "delete questions by session", err)
	}
	return nil
}
