package wire

import (
	"fmt"
	"os"

	"memoir-ai-api/internal/application/contextcache"
	"memoir-ai-api/internal/application/conversation"
	"memoir-ai-api/internal/application/question"
	"memoir-ai-api/internal/config"
	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/domain/repository"
	"memoir-ai-api/internal/infrastructure/messaging"
	"memoir-ai-api/internal/infrastructure/persistence/postgres"
	"memoir-ai-api/internal/infrastructure/persistence/redis"
	"memoir-ai-api/internal/infrastructure/speech"
	"memoir-ai-api/internal/interfaces/http/handler"
	"memoir-ai-api/internal/interfaces/http/router"
)

// App API 网关依赖容器；关闭时需先 Cleanup 中介再停止缓存清理
type App struct {
	Router   *router.Router
	Mediator *conversation.Mediator
	Contexts *contextcache.Service
}

// PostgresOnlyDataLayer 仅包含 PostgreSQL 的数据层（用于 bootstrap）
type PostgresOnlyDataLayer struct {
	PgClient *postgres.Client
}

// Worker job-worker 依赖容器
type Worker struct {
	Consumer  *messaging.Consumer
	Questions *question.Service
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	return messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
}

// ProvideQuestionTracker 按开关选择问题追踪方式：关闭、进程内或投递到 job-worker
func ProvideQuestionTracker(cfg *config.Config, svc *question.Service, producer *messaging.Producer) conversation.QuestionTracker {
	qt := cfg.Features.QuestionTracking
	if !qt.Enabled {
		return nil
	}
	if qt.Async {
		return messaging.NewQuestionTrackingPublisher(producer)
	}
	return svc
}

// ProvideHandlerFactories 文字与自述处理器无会话状态可共享，语音处理器每会话一个
func ProvideHandlerFactories(
	cfg *config.Config,
	repo repository.ConversationRepository,
	strategies *conversation.StrategyRegistry,
	text *conversation.TextHandler,
	self *conversation.SelfHandler,
) conversation.HandlerFactories {
	voiceEnabled := cfg.Features.Voice.Enabled
	return conversation.HandlerFactories{
		entity.MediumText: conversation.Shared(text),
		entity.MediumSelf: conversation.Shared(self),
		entity.MediumVoice: func() conversation.Handler {
			return conversation.NewVoiceHandler(repo, strategies, voiceEnabled)
		},
	}
}

// ProvideSpeechTranscriber 未配置 AssemblyAI 时返回 nil 接口
func ProvideSpeechTranscriber(cfg *config.Config) conversation.SpeechTranscriber {
	t := speech.NewAssemblyAITranscriber(cfg)
	if t == nil {
		return nil
	}
	return t
}

// ProvideHealthHandler 提供健康检查处理器
func ProvideHealthHandler(pg *postgres.Client, rc *redis.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(pg, rc)
}

// ProvideVoiceHandler 语音通道沿用 CORS 的来源白名单，转写上限与 AssemblyAI 一致
func ProvideVoiceHandler(
	cfg *config.Config,
	mediator *conversation.Mediator,
	transport *conversation.VoiceTransport,
	repo repository.ConversationRepository,
) *handler.VoiceHandler {
	return handler.NewVoiceHandler(mediator, transport, repo, cfg.Security.CORS.AllowedOrigins, handler.VoiceTimeouts{
		ClipTimeout: cfg.Speech.AssemblyAI.Timeout,
	})
}

// ProvideQuestionConsumer 订阅问题追踪流，交给问题服务处理
func ProvideQuestionConsumer(cfg *config.Config, redisClient *redis.Client, svc *question.Service) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	name := rs.ConsumerName
	if name == "" {
		name = hostnameConsumerName()
	}
	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:       messaging.StreamQuestionTracking,
		Group:        messaging.ConsumerGroupQuestionTracker,
		ConsumerName: name,
		BlockTimeout: rs.BlockTimeout,
		RetryLimit:   rs.RetryLimit,
		Backoff:      messaging.BackoffFromConfig(rs.RetryBackoff),
	})
	consumer.RegisterHandler(messaging.MessageTypeQuestionTracking, messaging.QuestionTrackingHandler(svc))
	return consumer
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
