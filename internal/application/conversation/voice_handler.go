package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/domain/repository"
	apperrors "memoir-ai-api/pkg/errors"
)

// VoiceHandler 实时语音对话。轮次由外部实时通道驱动，处理器只持有会话外壳，
// 最终消息的持久化由通道负责
type VoiceHandler struct {
	repo       repository.ConversationRepository
	strategies *StrategyRegistry
	enabled    bool

	mu      sync.Mutex
	current *entity.ConversationSession
}

// NewVoiceHandler 每个语音会话一个实例
func NewVoiceHandler(repo repository.ConversationRepository, strategies *StrategyRegistry, enabled bool) *VoiceHandler {
	return &VoiceHandler{repo: repo, strategies: strategies, enabled: enabled}
}

func (h *VoiceHandler) Start(ctx context.Context, params StartParams) (*entity.ConversationSession, error) {
	strategy, err := h.strategies.Get(params.ConversationType)
	if err != nil {
		return nil, err
	}
	session := entity.NewConversationSession(
		uuid.NewString(),
		params.UserID, params.BookID, params.ChapterID,
		params.ConversationType, entity.MediumVoice,
		params.Context, strategy.Goals(),
	)
	if err := h.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.current = session.Clone()
	h.mu.Unlock()
	return session, nil
}

// SendMessage 语音消息只能经由实时通道推送
func (h *VoiceHandler) SendMessage(context.Context, SendParams) (*entity.ConversationSession, error) {
	return nil, apperrors.ErrUnsupportedOperation.WithDetail("voice messages are delivered through the live voice transport")
}

// End 只清除会话引用
func (h *VoiceHandler) End(context.Context) error {
	h.mu.Lock()
	h.current = nil
	h.mu.Unlock()
	return nil
}

func (h *VoiceHandler) IsSupported() bool {
	return h.enabled
}

// GetCurrentSession 返回当前会话副本，未开始或已结束时为 nil
func (h *VoiceHandler) GetCurrentSession() *entity.ConversationSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current.Clone()
}

// UpdateCurrentSession 由实时通道写回最终消息状态
func (h *VoiceHandler) UpdateCurrentSession(session *entity.ConversationSession) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return apperrors.ErrNoActiveHandler.WithDetail("voice session has ended")
	}
	if session == nil || session.SessionID != h.current.SessionID {
		return apperrors.ErrInvalidParam.WithDetail("session id does not match the active voice session")
	}
	h.current = session.Clone()
	return nil
}

// AppendMessage 在锁内追加一条消息并持久化，落库失败时内存状态不变；
// 并发追加按加锁顺序写入，不会互相覆盖
func (h *VoiceHandler) AppendMessage(ctx context.Context, role entity.Role, content string, at time.Time) (*entity.ConversationSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return nil, apperrors.ErrNoActiveHandler.WithDetail("voice session has ended")
	}
	next := h.current.Clone()
	next.AppendMessage(role, content, at)
	if err := h.repo.Update(ctx, next); err != nil {
		return nil, err
	}
	h.current = next
	return next.Clone(), nil
}

// Restore 恢复会话时重新持有会话状态
func (h *VoiceHandler) Restore(session *entity.ConversationSession) {
	h.mu.Lock()
	h.current = session.Clone()
	h.mu.Unlock()
}
