package question

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/infrastructure/persistence/postgres"
	apperrors "memoir-ai-api/pkg/errors"
)

func newTestService(t *testing.T) *Service {
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

	client := postgres.NewClientFromDB(db)
	require.NoError(t, client.AutoMigrate(context.Background()))
	return NewService(postgres.NewConversationQuestionRepository(client))
}

func save(t *testing.T, s *Service, convType entity.ConversationType, text string) *entity.ConversationQuestion {
	t.Helper()
	q, err := s.SaveQuestion(context.Background(), SaveParams{
		UserID: "u1", BookID: "b1", SessionID: "s1",
		ConversationType: convType, QuestionText: text,
	})
	require.NoError(t, err)
	return q
}

func TestService_SaveQuestion(t *testing.T) {
	s := newTestService(t)

	q := save(t, s, entity.ConversationTypeInterview, "  Where did you grow up?  ")
	assert.NotEmpty(t, q.ID)
	assert.Equal(t, "Where did you grow up?", q.QuestionText)
	assert.Equal(t, Analyze("Where did you grow up?").Hash, q.QuestionHash)
	assert.Equal(t, entity.QuestionTypeDirect, q.QuestionType)
	assert.Nil(t, q.ResponseQuality)

	_, err := s.SaveQuestion(context.Background(), SaveParams{UserID: "u1", BookID: "b1"})
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
}

func TestService_CheckQuestionDuplicate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	check, err := s.CheckQuestionDuplicate(ctx, "u1", "b1", entity.ConversationTypeInterview, "What was your first car?")
	require.NoError(t, err)
	assert.False(t, check.IsDuplicate)
	assert.Equal(t, 0.1, check.Confidence)
	assert.Empty(t, check.SimilarQuestions)

	save(t, s, entity.ConversationTypeInterview, "What was your first car?")
	save(t, s, entity.ConversationTypeInterview, "Where did your first road trip go?")

	check, err = s.CheckQuestionDuplicate(ctx, "u1", "b1", entity.ConversationTypeInterview, "what was your FIRST car")
	require.NoError(t, err)
	assert.True(t, check.IsDuplicate)
	assert.Equal(t, 0.9, check.Confidence)
	assert.Len(t, check.SimilarQuestions, 2)

	other, err := s.CheckQuestionDuplicate(ctx, "u1", "b1", entity.ConversationTypeReflection, "What was your first car?")
	require.NoError(t, err)
	assert.False(t, other.IsDuplicate, "scope includes the conversation type")

	_, err = s.CheckQuestionDuplicate(ctx, "u1", "b1", entity.ConversationTypeInterview, " ")
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
}

func TestService_CheckQuestionDuplicateIsIdempotent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	save(t, s, entity.ConversationTypeInterview, "What games did you play as a child?")

	for _, text := range []string{"What games did you play as a child?", "Where was your school?"} {
		first, err := s.CheckQuestionDuplicate(ctx, "u1", "b1", entity.ConversationTypeInterview, text)
		require.NoError(t, err)
		second, err := s.CheckQuestionDuplicate(ctx, "u1", "b1", entity.ConversationTypeInterview, text)
		require.NoError(t, err)
		assert.Equal(t, first.IsDuplicate, second.IsDuplicate, text)
	}
}

func TestService_GetQuestionStats(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	empty, err := s.GetQuestionStats(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Nil(t, empty.AverageQuality)
	assert.Len(t, empty.ByType, 3)

	a := save(t, s, entity.ConversationTypeInterview, "Where did you grow up?")
	b := save(t, s, entity.ConversationTypeInterview, "Who was your best friend?")
	save(t, s, entity.ConversationTypeBrainstorming, "Which stories belong in chapter two?")

	require.NoError(t, s.UpdateResponseQuality(ctx, a.ID, 4))
	require.NoError(t, s.UpdateResponseQuality(ctx, b.ID, 5))

	stats, err := s.GetQuestionStats(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 2, stats.ByType[entity.ConversationTypeInterview])
	assert.EqualValues(t, 0, stats.ByType[entity.ConversationTypeReflection])
	assert.EqualValues(t, 1, stats.ByType[entity.ConversationTypeBrainstorming])
	assert.EqualValues(t, 2, stats.RatedCount)
	require.NotNil(t, stats.AverageQuality)
	assert.InDelta(t, 4.5, *stats.AverageQuality, 1e-9)
}

func TestService_UpdateResponseQuality(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	q := save(t, s, entity.ConversationTypeReflection, "What did that year teach you?")

	assert.ErrorIs(t, s.UpdateResponseQuality(ctx, q.ID, 0), apperrors.ErrValidationFailed)
	assert.ErrorIs(t, s.UpdateResponseQuality(ctx, q.ID, 6), apperrors.ErrValidationFailed)
	assert.ErrorIs(t, s.UpdateResponseQuality(ctx, "missing", 3), apperrors.ErrQuestionNotFound)
	assert.NoError(t, s.UpdateResponseQuality(ctx, q.ID, 1))
}

func TestService_TrackAssistantResponse(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	req := entity.QuestionTrackingRequest{
		UserID: "u1", BookID: "b1", SessionID: "s1",
		ConversationType: entity.ConversationTypeInterview,
		ResponseText:     "What a lovely memory. Who else was at the lake that day? Take your time.",
	}

	first, err := s.TrackAssistantResponse(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Extracted)
	assert.Equal(t, "Who else was at the lake that day?", first.Primary)
	require.NotNil(t, first.Saved)
	assert.False(t, first.IsDuplicate)

	second, err := s.TrackAssistantResponse(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.IsDuplicate)
	assert.Nil(t, second.Saved)

	none, err := s.TrackAssistantResponse(ctx, entity.QuestionTrackingRequest{
		UserID: "u1", BookID: "b1", ConversationType: entity.ConversationTypeInterview,
		ResponseText: "Thank you for sharing.",
	})
	require.NoError(t, err)
	assert.Zero(t, none.Extracted)

	stats, err := s.GetQuestionStats(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Total)
}
