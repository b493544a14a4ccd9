// Package messaging 基于 Redis Streams 的异步任务队列
package messaging

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"memoir-ai-api/internal/config"
	"memoir-ai-api/pkg/logger"
)

// Message 流中的一条任务；会话与追踪字段用于消费端恢复日志上下文
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	UserID    string          `json:"user_id,omitempty"`
	BookID    string          `json:"book_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	TraceID   string          `json:"trace_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewMessage 序列化 payload 并分配消息 ID
func NewMessage(msgType string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// WithScope 标记任务所属的用户、书籍与会话
func (m *Message) WithScope(userID, bookID, sessionID string) *Message {
	m.UserID, m.BookID, m.SessionID = userID, bookID, sessionID
	return m
}

// WithTraceFrom 从发送方 context 带上请求 ID 与 trace ID
func (m *Message) WithTraceFrom(ctx context.Context) *Message {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		m.RequestID = reqID
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.HasTraceID() {
		m.TraceID = sc.TraceID().String()
	}
	return m
}

// LogContext 把消息携带的字段写回日志上下文
func (m *Message) LogContext(ctx context.Context) context.Context {
	fields := []struct {
		key   logger.ContextKey
		value string
	}{
		{logger.UserIDKey, m.UserID},
		{logger.BookIDKey, m.BookID},
		{logger.SessionIDKey, m.SessionID},
		{logger.RequestIDKey, m.RequestID},
		{logger.TraceIDKey, m.TraceID},
	}
	for _, f := range fields {
		if f.value != "" {
			ctx = logger.WithContext(ctx, f.key, f.value)
		}
	}
	return ctx
}

func (m *Message) DecodePayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Stream 流名称
type Stream string

const StreamQuestionTracking Stream = "stream:question:track"

// DLQStream 超过重试上限的消息转入的死信流
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组名称
type ConsumerGroup string

const ConsumerGroupQuestionTracker ConsumerGroup = "cg-question-tracker"

const MessageTypeQuestionTracking = "question_tracking"

// BackoffConfig 失败重投的指数退避参数
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2}
}

// BackoffFromConfig 缺省或非法项取默认值
func BackoffFromConfig(cfg config.BackoffConfig) BackoffConfig {
	b := DefaultBackoffConfig()
	if cfg.Initial > 0 {
		b.Initial = cfg.Initial
	}
	if cfg.Max > 0 {
		b.Max = cfg.Max
	}
	if cfg.Multiplier > 1 {
		b.Multiplier = cfg.Multiplier
	}
	return b
}

// Delay 第 retry 次重投前的等待时间，retry 从 0 开始，不超过 Max
func (c BackoffConfig) Delay(retry int) time.Duration {
	d := float64(c.Initial) * math.Pow(c.Multiplier, float64(max(retry, 0)))
	if d >= float64(c.Max) {
		return c.Max
	}
	return time.Duration(d)
}
