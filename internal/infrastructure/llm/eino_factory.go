// Package llm 按配置创建 Eino ChatModel
package llm

import (
	"context"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"memoir-ai-api/internal/config"
	apperrors "memoir-ai-api/pkg/errors"
)

// EinoFactory 按 provider 名惰性创建 ChatModel，同名 provider 复用同一实例
type EinoFactory struct {
	cfg config.LLMConfig

	mu     sync.Mutex
	models map[string]model.BaseChatModel
}

func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		cfg:    cfg.LLM,
		models: make(map[string]model.BaseChatModel),
	}
}

// Get 返回 provider 对应的 ChatModel；name 为空时取 default_provider
// 未配置或缺少 api key 时返回 AI 服务错误，由调用方降级为兜底回复
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	if name == "" {
		name = f.cfg.DefaultProvider
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok := f.models[name]; ok {
		return m, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, apperrors.New(apperrors.CodeAIServiceFailed, "llm provider not configured").WithDetail(name)
	}
	if pc.APIKey == "" {
		return nil, apperrors.New(apperrors.CodeAIServiceFailed, "llm provider has no api key").WithDetail(name)
	}

	m, err := newOpenAIChatModel(ctx, pc)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAIServiceFailed, "failed to create chat model").WithDetail(name)
	}
	f.models[name] = m
	return m, nil
}

// 兼容 OpenAI 协议的服务均通过 base_url 接入
func newOpenAIChatModel(ctx context.Context, pc config.ProviderConfig) (model.BaseChatModel, error) {
	cmc := &openai.ChatModelConfig{
		APIKey:  pc.APIKey,
		BaseURL: pc.BaseURL,
		Model:   pc.Model,
		Timeout: pc.Timeout,
	}
	if pc.MaxTokens > 0 {
		maxTokens := pc.MaxTokens
		cmc.MaxTokens = &maxTokens
	}
	if pc.Temperature > 0 {
		temperature := float32(pc.Temperature)
		cmc.Temperature = &temperature
	}
	return openai.NewChatModel(ctx, cmc)
}
