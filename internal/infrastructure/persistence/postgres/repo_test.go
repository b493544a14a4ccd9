package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/domain/repository"
	apperrors "memoir-ai-api/pkg/errors"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	client := NewClientFromDB(db)
	require.NoError(t, client.AutoMigrate(context.Background()))
	return client
}

func newSession(id, userID, bookID string, medium entity.ConversationMedium) *entity.ConversationSession {
	ctx := &entity.ConversationContext{BookProfile: &entity.BookProfile{Title: "My Life"}}
	return entity.NewConversationSession(id, userID, bookID, "", entity.ConversationTypeInterview, medium, ctx, []string{"goal"})
}

func TestConversationSessionRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationSessionRepository(newTestClient(t))

	s := newSession("s1", "u1", "b1", entity.MediumText)
	s.AppendMessage(entity.RoleAssistant, "Where did you grow up?", time.Now())
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.MediumText, got.ConversationMedium)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Where did you grow up?", got.Messages[0].Content)
	assert.Equal(t, "My Life", got.Context.BookProfile.Title)
	assert.Equal(t, []string{"goal"}, got.Goals)

	got.AppendMessage(entity.RoleUser, "In a small town.", time.Now())
	require.NoError(t, repo.Update(ctx, got))

	reloaded, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, reloaded.Messages, 2)
	assert.False(t, reloaded.UpdatedAt.Before(reloaded.CreatedAt))

	require.NoError(t, repo.Delete(ctx, "s1"))
	missing, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestConversationSessionRepository_ListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationSessionRepository(newTestClient(t))

	require.NoError(t, repo.Create(ctx, newSession("s1", "u1", "b1", entity.MediumText)))
	require.NoError(t, repo.Create(ctx, newSession("s2", "u1", "b1", entity.MediumSelf)))
	require.NoError(t, repo.Create(ctx, newSession("s3", "u2", "b1", entity.MediumText)))

	time.Sleep(5 * time.Millisecond)
	s1, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, s1))

	page, err := repo.List(ctx, repository.ConversationFilter{UserID: "u1"}, repository.NewPagination(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "s1", page.Items[0].SessionID)

	page, err = repo.List(ctx, repository.ConversationFilter{UserID: "u1", ConversationMedium: entity.MediumSelf}, repository.NewPagination(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "s2", page.Items[0].SessionID)
}

func TestContextCacheRepository_UpsertAndExpiry(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	repo := NewContextCacheRepository(client)
	now := time.Now().UTC()

	entry := &entity.CachedContext{
		UserID:    "u1",
		BookID:    "b1",
		Context:   &entity.ConversationContext{LifeThemes: []string{"first"}},
		ExpiresAt: now.Add(30 * time.Minute),
		CreatedAt: now,
	}
	require.NoError(t, repo.Upsert(ctx, entry))

	replaced := &entity.CachedContext{
		UserID:    "u1",
		BookID:    "b1",
		Context:   &entity.ConversationContext{LifeThemes: []string{"second"}},
		ExpiresAt: now.Add(30 * time.Minute),
		CreatedAt: now,
	}
	require.NoError(t, repo.Upsert(ctx, replaced))

	var count int64
	require.NoError(t, client.DB().Model(&entity.CachedContext{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	got, err := repo.GetValid(ctx, "u1", "b1", "", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"second"}, got.Context.LifeThemes)

	chaptered, err := repo.GetValid(ctx, "u1", "b1", "c1", now)
	require.NoError(t, err)
	assert.Nil(t, chaptered)

	expired, err := repo.GetValid(ctx, "u1", "b1", "", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, expired)

	require.NoError(t, repo.Delete(ctx, "u1", "b1", ""))
	gone, err := repo.GetValid(ctx, "u1", "b1", "", now)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestConversationQuestionRepository_Queries(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	repo := NewConversationQuestionRepository(client)
	scope := repository.QuestionScope{UserID: "u1", BookID: "b1", ConversationType: entity.ConversationTypeInterview}

	q1 := &entity.ConversationQuestion{
		UserID: "u1", BookID: "b1", SessionID: "s1", ConversationType: entity.ConversationTypeInterview,
		QuestionText: "What was your childhood home like?", QuestionHash: "h1",
		SemanticKeywords: entity.Keywords{"childhood", "home"},
	}
	q2 := &entity.ConversationQuestion{
		UserID: "u1", BookID: "b1", SessionID: "s2", ConversationType: entity.ConversationTypeInterview,
		QuestionText: "Who visited your home most often?", QuestionHash: "h2",
		SemanticKeywords: entity.Keywords{"visited", "home", "often"},
	}
	other := &entity.ConversationQuestion{
		UserID: "u1", BookID: "b1", ConversationType: entity.ConversationTypeReflection,
		QuestionText: "What was your childhood home like?", QuestionHash: "h1",
		SemanticKeywords: entity.Keywords{"childhood", "home"},
	}
	require.NoError(t, repo.Create(ctx, q1))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, repo.Create(ctx, q2))
	require.NoError(t, repo.Create(ctx, other))
	assert.NotEmpty(t, q1.ID)

	byHash, err := repo.FindByHash(ctx, scope, "h1")
	require.NoError(t, err)
	require.Len(t, byHash, 1)
	assert.Equal(t, q1.ID, byHash[0].ID)

	overlap, err := repo.FindByKeywordOverlap(ctx, scope, []string{"home"}, 5)
	require.NoError(t, err)
	require.Len(t, overlap, 2)
	assert.Equal(t, q2.ID, overlap[0].ID)
	assert.Equal(t, entity.Keywords{"visited", "home", "often"}, overlap[0].SemanticKeywords)

	limited, err := repo.FindByKeywordOverlap(ctx, scope, []string{"home"}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, repo.UpdateResponseQuality(ctx, q1.ID, 4))
	rated, err := repo.GetByID(ctx, q1.ID)
	require.NoError(t, err)
	require.NotNil(t, rated.ResponseQuality)
	assert.Equal(t, 4, *rated.ResponseQuality)

	err = repo.UpdateResponseQuality(ctx, "missing", 3)
	assert.True(t, errors.Is(err, apperrors.ErrQuestionNotFound))

	all, err := repo.ListByBook(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTxManager_CascadesSessionDeletion(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	sessions := NewConversationSessionRepository(client)
	questions := NewConversationQuestionRepository(client)
	tx := NewTxManager(client)

	require.NoError(t, sessions.Create(ctx, newSession("s1", "u1", "b1", entity.MediumText)))
	require.NoError(t, questions.Create(ctx, &entity.ConversationQuestion{
		UserID: "u1", BookID: "b1", SessionID: "s1", ConversationType: entity.ConversationTypeInterview,
		QuestionText: "Why?", QuestionHash: "h",
	}))

	boom := errors.New("boom")
	err := tx.WithTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, questions.DeleteBySession(txCtx, "s1"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	remaining, err := questions.ListByBook(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	require.NoError(t, tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := questions.DeleteBySession(txCtx, "s1"); err != nil {
			return err
		}
		return sessions.Delete(txCtx, "s1")
	}))
	remaining, err = questions.ListByBook(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDBError_WrapsAsDatabaseError(t *testing.T) {
	_, span := tracer.Start(context.Background(), "postgres.test")
	defer span.End()

	cause := errors.New("connection reset")
	err := dbError(span, "update conversation session", cause)

	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to update conversation session")
}
