//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"memoir-ai-api/internal/application/contextcache"
	"memoir-ai-api/internal/application/conversation"
	"memoir-ai-api/internal/application/question"
	"memoir-ai-api/internal/config"
	"memoir-ai-api/internal/domain/repository"
	"memoir-ai-api/internal/infrastructure/llm"
	"memoir-ai-api/internal/infrastructure/persistence/postgres"
	"memoir-ai-api/internal/infrastructure/persistence/redis"
	"memoir-ai-api/internal/interfaces/http/handler"
	"memoir-ai-api/internal/interfaces/http/middleware"
	"memoir-ai-api/internal/interfaces/http/router"
)

// InitializeApp 初始化 API 网关
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		ConversationSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializePostgresOnly 仅初始化 PostgreSQL 数据层（用于 bootstrap）
func InitializePostgresOnly(ctx context.Context, cfg *config.Config) (*PostgresOnlyDataLayer, func(), error) {
	wire.Build(
		ProvidePostgresClient,
		wire.Struct(new(PostgresOnlyDataLayer), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化 job-worker
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RepoSet,
		ProvideRedisClient,
		question.NewService,
		ProvideQuestionConsumer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewConversationSessionRepository,
	postgres.NewContextCacheRepository,
	postgres.NewConversationQuestionRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.ConversationRepository), new(*postgres.ConversationSessionRepository)),
	wire.Bind(new(repository.ContextCacheRepository), new(*postgres.ContextCacheRepository)),
	wire.Bind(new(repository.QuestionRepository), new(*postgres.ConversationQuestionRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewRateLimiter,
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
)

// ConversationSet 对话编排提供者集合
var ConversationSet = wire.NewSet(
	llm.NewEinoFactory,
	wire.Bind(new(conversation.ChatModelFactory), new(*llm.EinoFactory)),
	conversation.NewStrategyRegistry,
	conversation.NewAIResponder,
	question.NewService,
	ProvideQuestionTracker,
	conversation.NewTextHandler,
	conversation.NewSelfHandler,
	ProvideHandlerFactories,
	conversation.NewMediator,
	ProvideSpeechTranscriber,
	conversation.NewVoiceTransport,
	contextcache.NewService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewConversationHandler,
	handler.NewContextCacheHandler,
	handler.NewQuestionHandler,
	ProvideVoiceHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
