package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"memoir-ai-api/internal/domain/entity"
	apperrors "memoir-ai-api/pkg/errors"
	"memoir-ai-api/pkg/logger"
	"memoir-ai-api/pkg/metrics"
)

type activeEntry struct {
	handler Handler
	medium  entity.ConversationMedium
}

// Mediator 对话统一入口：按媒介选择处理器并维护活跃会话表
type Mediator struct {
	strategies *StrategyRegistry
	factories  HandlerFactories

	mu     sync.Mutex
	active map[string]activeEntry
}

// NewMediator 创建调度中心
func NewMediator(strategies *StrategyRegistry, factories HandlerFactories) *Mediator {
	return &Mediator{
		strategies: strategies,
		factories:  factories,
		active:     make(map[string]activeEntry),
	}
}

// resolve 为媒介创建处理器，媒介未知或不可用时返回 ErrUnsupportedMedium
func (m *Mediator) resolve(medium entity.ConversationMedium) (Handler, error) {
	factory, ok := m.factories[medium]
	if !ok {
		return nil, apperrors.ErrUnsupportedMedium.WithDetail(string(medium))
	}
	h := factory()
	if !h.IsSupported() {
		return nil, apperrors.ErrUnsupportedMedium.WithDetail(fmt.Sprintf("%s is disabled", medium))
	}
	return h, nil
}

// StartConversation 校验参数、委托处理器开始对话并登记为活跃会话
func (m *Mediator) StartConversation(ctx context.Context, medium entity.ConversationMedium, params StartParams) (*entity.ConversationSession, error) {
	if res := m.ValidateStartParams(params); !res.IsValid {
		return nil, apperrors.ErrValidationFailed.WithDetail(strings.Join(res.Errors, "; "))
	}
	handler, err := m.resolve(medium)
	if err != nil {
		return nil, err
	}

	session, err := handler.Start(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s conversation: %w", medium, err)
	}

	m.register(session.SessionID, activeEntry{handler: handler, medium: medium})
	metrics.ConversationStartedTotal.WithLabelValues(string(medium), string(params.ConversationType)).Inc()
	logger.Info(ctx, "conversation started",
		"session_id", session.SessionID,
		"medium", medium,
		"conversation_type", params.ConversationType,
	)
	return session, nil
}

// SendMessage 路由到会话的活跃处理器，未登记时返回 ErrNoActiveHandler
func (m *Mediator) SendMessage(ctx context.Context, session *entity.ConversationSession, params SendParams) (*entity.ConversationSession, error) {
	params.Session = session
	if res := m.ValidateSendParams(params); !res.IsValid {
		return nil, apperrors.ErrValidationFailed.WithDetail(strings.Join(res.Errors, "; "))
	}

	entry, ok := m.lookup(session.SessionID)
	if !ok {
		return nil, apperrors.ErrNoActiveHandler.WithDetail(session.SessionID)
	}
	updated, err := entry.handler.SendMessage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s message: %w", entry.medium, err)
	}
	return updated, nil
}

// EndConversation 会话不活跃时为空操作；处理器结束失败只记日志，登记项总会被移除
func (m *Mediator) EndConversation(ctx context.Context, sessionID string) {
	m.mu.Lock()
	entry, ok := m.active[sessionID]
	if ok {
		delete(m.active, sessionID)
		metrics.ConversationActive.Set(float64(len(m.active)))
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := entry.handler.End(ctx); err != nil {
		logger.Error(ctx, "failed to end conversation handler", err, "session_id", sessionID, "medium", entry.medium)
	}
}

// ResumeConversation 把已有会话重新登记为活跃，不会再次调用 Start
func (m *Mediator) ResumeConversation(ctx context.Context, session *entity.ConversationSession) error {
	if session == nil || session.SessionID == "" {
		return apperrors.ErrValidationFailed.WithDetail("session is required")
	}
	if _, ok := m.lookup(session.SessionID); ok {
		return nil
	}

	handler, err := m.resolve(session.ConversationMedium)
	if err != nil {
		return err
	}
	if r, ok := handler.(sessionRestorer); ok {
		r.Restore(session)
	}
	m.register(session.SessionID, activeEntry{handler: handler, medium: session.ConversationMedium})
	logger.Info(ctx, "conversation resumed", "session_id", session.SessionID, "medium", session.ConversationMedium)
	return nil
}

// Cleanup 并发结束所有活跃会话，单个失败不影响其他会话
func (m *Mediator) Cleanup(ctx context.Context) {
	m.mu.Lock()
	entries := m.active
	m.active = make(map[string]activeEntry)
	metrics.ConversationActive.Set(0)
	m.mu.Unlock()

	var g errgroup.Group
	for id, entry := range entries {
		g.Go(func() error {
			if err := entry.handler.End(ctx); err != nil {
				logger.Error(ctx, "failed to end conversation during cleanup", err, "session_id", id, "medium", entry.medium)
			}
			return nil
		})
	}
	_ = g.Wait()
	logger.Info(ctx, "conversation mediator cleaned up", "ended", len(entries))
}

// IsActive 会话是否已登记
func (m *Mediator) IsActive(sessionID string) bool {
	_, ok := m.lookup(sessionID)
	return ok
}

// ActiveCount 活跃会话数
func (m *Mediator) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// VoiceHandler 返回语音会话的处理器，供实时通道写回消息
func (m *Mediator) VoiceHandler(sessionID string) (*VoiceHandler, error) {
	entry, ok := m.lookup(sessionID)
	if !ok {
		return nil, apperrors.ErrNoActiveHandler.WithDetail(sessionID)
	}
	vh, ok := entry.handler.(*VoiceHandler)
	if !ok {
		return nil, apperrors.ErrUnsupportedMedium.WithDetail(fmt.Sprintf("session %s uses the %s medium", sessionID, entry.medium))
	}
	return vh, nil
}

func (m *Mediator) register(sessionID string, entry activeEntry) {
	m.mu.Lock()
	m.active[sessionID] = entry
	metrics.ConversationActive.Set(float64(len(m.active)))
	m.mu.Unlock()
}

func (m *Mediator) lookup(sessionID string) (activeEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.active[sessionID]
	return entry, ok
}
