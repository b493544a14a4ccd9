package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoir-ai-api/internal/config"
	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/pkg/logger"
)

func TestMessage_PayloadAndScope(t *testing.T) {
	req := entity.QuestionTrackingRequest{
		UserID: "u1", BookID: "b1", SessionID: "s1",
		ConversationType: entity.ConversationTypeInterview,
		ResponseText:     "Where did you grow up?",
	}
	msg, err := NewMessage(MessageTypeQuestionTracking, req)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	ctx := logger.WithContext(context.Background(), logger.RequestIDKey, "req-9")
	msg.WithScope(req.UserID, req.BookID, req.SessionID).WithTraceFrom(ctx)
	assert.Equal(t, "req-9", msg.RequestID)
	assert.Empty(t, msg.TraceID)

	var got entity.QuestionTrackingRequest
	require.NoError(t, msg.DecodePayload(&got))
	assert.Equal(t, req, got)

	logCtx := msg.LogContext(context.Background())
	assert.Equal(t, "s1", logCtx.Value(logger.SessionIDKey))
	assert.Equal(t, "req-9", logCtx.Value(logger.RequestIDKey))
	assert.Nil(t, logCtx.Value(logger.TraceIDKey))
}

func TestBackoff(t *testing.T) {
	b := BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 5*time.Second, b.Delay(3))
	assert.Equal(t, 5*time.Second, b.Delay(10))
	assert.Equal(t, time.Second, b.Delay(-1))
}

func TestBackoffFromConfig(t *testing.T) {
	assert.Equal(t, DefaultBackoffConfig(), BackoffFromConfig(config.BackoffConfig{}))

	b := BackoffFromConfig(config.BackoffConfig{Initial: 2 * time.Second, Max: time.Minute, Multiplier: 3})
	assert.Equal(t, 2*time.Second, b.Initial)
	assert.Equal(t, 3.0, b.Multiplier)
}

func TestStream_DLQ(t *testing.T) {
	assert.Equal(t, "dlq:stream:question:track", StreamQuestionTracking.DLQStream())
}

type trackerFunc func(ctx context.Context, req entity.QuestionTrackingRequest) error

func (f trackerFunc) Track(ctx context.Context, req entity.QuestionTrackingRequest) error {
	return f(ctx, req)
}

func TestQuestionTrackingHandler(t *testing.T) {
	var got []entity.QuestionTrackingRequest
	failing := errors.New("db down")
	var next error
	h := QuestionTrackingHandler(trackerFunc(func(_ context.Context, req entity.QuestionTrackingRequest) error {
		got = append(got, req)
		return next
	}))

	req := entity.QuestionTrackingRequest{UserID: "u1", BookID: "b1", ResponseText: "What was your school like?"}
	msg, err := NewMessage(MessageTypeQuestionTracking, req)
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), msg))
	require.Len(t, got, 1)
	assert.Equal(t, req, got[0])

	// 执行失败需要返回错误以便重投递
	next = failing
	assert.ErrorIs(t, h(context.Background(), msg), failing)

	// 损坏的 payload 不重试
	bad := &Message{ID: "m2", Type: MessageTypeQuestionTracking, Payload: []byte("not json")}
	assert.NoError(t, h(context.Background(), bad))
	assert.Len(t, got, 2)
}
