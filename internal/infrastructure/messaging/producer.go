package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/pkg/metrics"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		metrics.RedisStreamProcessed.WithLabelValues(string(stream), "publish_failed").Inc()
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	metrics.RedisStreamProcessed.WithLabelValues(string(stream), "published").Inc()
	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishQuestionTracking 投递一次助手回复的问题追踪任务
func (p *Producer) PublishQuestionTracking(ctx context.Context, req entity.QuestionTrackingRequest) (string, error) {
	msg, err := NewMessage(MessageTypeQuestionTracking, req)
	if err != nil {
		return "", err
	}
	msg.WithScope(req.UserID, req.BookID, req.SessionID).WithTraceFrom(ctx)
	return p.Publish(ctx, StreamQuestionTracking, msg)
}

// QuestionTrackingPublisher 把问题追踪转交给 job-worker 异步执行
type QuestionTrackingPublisher struct {
	producer *Producer
}

// NewQuestionTrackingPublisher 创建问题追踪投递器
func NewQuestionTrackingPublisher(producer *Producer) *QuestionTrackingPublisher {
	return &QuestionTrackingPublisher{producer: producer}
}

// Track 仅负责投递，失败由调用方吞掉
func (p *QuestionTrackingPublisher) Track(ctx context.Context, req entity.QuestionTrackingRequest) error {
	_, err := p.producer.PublishQuestionTracking(ctx, req)
	return err
}
