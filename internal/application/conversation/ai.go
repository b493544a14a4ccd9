package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"memoir-ai-api/internal/config"
	"memoir-ai-api/internal/domain/entity"
	llmctx "memoir-ai-api/internal/domain/service"
	apperrors "memoir-ai-api/pkg/errors"
	"memoir-ai-api/pkg/logger"
)

// FallbackMessage AI 重试耗尽后返回给用户的固定回复
const FallbackMessage = "I'm sorry, I'm having trouble responding right now. Could you tell me a bit more while I catch up?"

const openingKickoff = "Please begin our conversation."

// ChatModelFactory 应用层对 LLM ChatModel 的最小依赖（port）
type ChatModelFactory interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}

// AIResponder 调用 LLM 生成助手回复：单次硬超时、指数退避重试、最终降级为兜底文案
type AIResponder struct {
	models      ChatModelFactory
	provider    string
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewAIResponder 创建 AIResponder
func NewAIResponder(models ChatModelFactory, cfg *config.Config) *AIResponder {
	cc := cfg.Conversation
	r := &AIResponder{
		models:      models,
		provider:    cc.LLMProvider,
		timeout:     cc.AITimeout,
		maxAttempts: cc.AIMaxAttempts,
		baseDelay:   cc.AIRetryBaseDelay,
		sleep:       sleepContext,
	}
	if r.provider == "" {
		r.provider = cfg.LLM.DefaultProvider
	}
	if r.timeout <= 0 {
		r.timeout = 30 * time.Second
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 3
	}
	if r.baseDelay <= 0 {
		r.baseDelay = time.Second
	}
	return r
}

// Reply 生成一条助手回复；degraded 为 true 表示返回的是兜底文案
func (r *AIResponder) Reply(ctx context.Context, workflow, systemPrompt string, history []entity.ConversationMessage) (content string, degraded bool) {
	msgs := buildMessages(systemPrompt, history)
	ctx = llmctx.WithWorkflowProvider(ctx, workflow, r.provider)

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		out, err := r.generate(ctx, msgs)
		if err == nil {
			return out, false
		}
		lastErr = err
		logger.Warn(ctx, "ai reply attempt failed",
			"workflow", workflow,
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"error", err.Error(),
		)
		if attempt == r.maxAttempts {
			break
		}
		if err := r.sleep(ctx, r.baseDelay<<(attempt-1)); err != nil {
			lastErr = err
			break
		}
	}

	logger.Error(ctx, "ai reply degraded to fallback", lastErr, "workflow", workflow)
	return FallbackMessage, true
}

func (r *AIResponder) generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	chatModel, err := r.models.Get(ctx, r.provider)
	if err != nil {
		return "", apperrors.ErrAIServiceFailed.WithError(err)
	}

	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "conversation",
		Type:      r.provider,
		Component: components.ComponentOfChatModel,
	})
	out, err := chatModel.Generate(ctx, msgs)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperrors.ErrTimeout.WithError(err)
		}
		return "", apperrors.ErrAIServiceFailed.WithError(err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", apperrors.ErrAIServiceFailed.WithDetail("empty response")
	}
	return strings.TrimSpace(out.Content), nil
}

func buildMessages(systemPrompt string, history []entity.ConversationMessage) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, schema.SystemMessage(systemPrompt))
	if len(history) == 0 {
		return append(msgs, schema.UserMessage(openingKickoff))
	}
	for _, m := range history {
		switch m.Role {
		case entity.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		default:
			msgs = append(msgs, schema.UserMessage(m.Content))
		}
	}
	return msgs
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
