// Package contextcache 两级对话上下文缓存：进程内存层 + 持久层
package contextcache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"memoir-ai-api/internal/config"
	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/domain/repository"
	"memoir-ai-api/pkg/logger"
	"memoir-ai-api/pkg/metrics"
)

var cacheTracer = otel.Tracer("contextcache")

const (
	defaultTTL           = 30 * time.Minute
	defaultSweepInterval = 5 * time.Minute
)

type memoryEntry struct {
	context   *entity.ConversationContext
	expiresAt time.Time
}

// Service 上下文缓存服务。内存层未命中时回源持久层并回填，持久层不做主动清理
type Service struct {
	repo          repository.ContextCacheRepository
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu     sync.Mutex
	memory map[string]memoryEntry
	group  singleflight.Group

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewService 创建上下文缓存服务，需要调用 Start 才会启动后台清理
func NewService(repo repository.ContextCacheRepository, cfg *config.Config) *Service {
	ttl := cfg.Conversation.ContextCacheTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	interval := cfg.Conversation.CacheSweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Service{
		repo:          repo,
		ttl:           ttl,
		sweepInterval: interval,
		now:           time.Now,
		memory:        make(map[string]memoryEntry),
	}
}

// GetContext 先查内存层再查持久层，均未命中返回 nil
func (s *Service) GetContext(ctx context.Context, userID, bookID, chapterID string) *entity.ConversationContext {
	key := entity.ContextCacheKey(userID, bookID, chapterID)
	ctx, span := cacheTracer.Start(ctx, "contextcache.GetContext",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	now := s.now()
	if cc := s.memoryGet(key, now); cc != nil {
		metrics.ContextCacheLookups.WithLabelValues("memory", "hit").Inc()
		span.SetAttributes(attribute.String("cache.tier", "memory"))
		return cc
	}
	metrics.ContextCacheLookups.WithLabelValues("memory", "miss").Inc()

	v, _, shared := s.group.Do(key, func() (interface{}, error) {
		row, err := s.repo.GetValid(ctx, userID, bookID, chapterID, now)
		if err != nil {
			logger.Warn(ctx, "context cache persisted lookup failed", "cache_key", key, "error", err.Error())
			return nil, nil
		}
		if row == nil || row.Context == nil || row.Expired(now) {
			return nil, nil
		}
		s.memorySet(key, row.Context, row.ExpiresAt)
		return row.Context, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))

	cc, _ := v.(*entity.ConversationContext)
	if cc == nil {
		metrics.ContextCacheLookups.WithLabelValues("persisted", "miss").Inc()
		return nil
	}
	metrics.ContextCacheLookups.WithLabelValues("persisted", "hit").Inc()
	span.SetAttributes(attribute.String("cache.tier", "persisted"))
	return cc.Clone()
}

// SetContext 无条件写入两级缓存，过期时间重新计算
func (s *Service) SetContext(ctx context.Context, userID, bookID string, cc *entity.ConversationContext, chapterID string) error {
	key := entity.ContextCacheKey(userID, bookID, chapterID)
	ctx, span := cacheTracer.Start(ctx, "contextcache.SetContext",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	now := s.now()
	expiresAt := now.Add(s.ttl)
	s.memorySet(key, cc, expiresAt)

	err := s.repo.Upsert(ctx, &entity.CachedContext{
		UserID:    userID,
		BookID:    bookID,
		ChapterID: chapterID,
		Context:   cc.Clone(),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// InvalidateContext 删除两级缓存中的精确键
func (s *Service) InvalidateContext(ctx context.Context, userID, bookID, chapterID string) error {
	key := entity.ContextCacheKey(userID, bookID, chapterID)
	ctx, span := cacheTracer.Start(ctx, "contextcache.InvalidateContext",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	s.mu.Lock()
	delete(s.memory, key)
	s.mu.Unlock()

	if err := s.repo.Delete(ctx, userID, bookID, chapterID); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Sweep 清除内存层中所有已过期条目，返回清除数量
func (s *Service) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, e := range s.memory {
		if !now.Before(e.expiresAt) {
			delete(s.memory, key)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.ContextCacheEvicted.Add(float64(evicted))
	}
	return evicted
}

// Start 启动后台清理，重复调用无效
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					logger.Debug(ctx, "context cache swept", "evicted", n)
				}
			}
		}
	}()
	logger.Info(ctx, "context cache sweeper started", "interval", s.sweepInterval.String())
}

// Stop 停止后台清理并等待其退出
func (s *Service) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.mu.Unlock()
	if stop == nil {
		return
	}
	s.stopOnce.Do(func() { close(stop) })
	<-done
}

// Len 内存层条目数（含尚未清理的过期条目）
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.memory)
}

func (s *Service) memoryGet(key string, now time.Time) *entity.ConversationContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.memory[key]
	if !ok || !now.Before(e.expiresAt) {
		return nil
	}
	return e.context.Clone()
}

func (s *Service) memorySet(key string, cc *entity.ConversationContext, expiresAt time.Time) {
	s.mu.Lock()
	s.memory[key] = memoryEntry{context: cc.Clone(), expiresAt: expiresAt}
	s.mu.Unlock()
}
