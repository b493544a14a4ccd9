package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/domain/repository"
	"memoir-ai-api/pkg/metrics"
)

// selfGoals 自述模式固定目标，不依赖对话类型
var selfGoals = []string{
	"Write freely about the memories that matter most to you",
	"Notice the feelings that come up as you remember",
	"Capture details you want future readers to know",
}

// SelfHandler 自述（日记式）对话：不调用 AI，只追加用户消息
type SelfHandler struct {
	repo repository.ConversationRepository
	now  func() time.Time
}

func NewSelfHandler(repo repository.ConversationRepository) *SelfHandler {
	return &SelfHandler{repo: repo, now: time.Now}
}

func (h *SelfHandler) Start(ctx context.Context, params StartParams) (*entity.ConversationSession, error) {
	session := entity.NewConversationSession(
		uuid.NewString(),
		params.UserID, params.BookID, params.ChapterID,
		params.ConversationType, entity.MediumSelf,
		params.Context, selfGoals,
	)
	if err := h.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (h *SelfHandler) SendMessage(ctx context.Context, params SendParams) (*entity.ConversationSession, error) {
	session := params.Session.Clone()
	session.AppendMessage(entity.RoleUser, params.Message, h.now())
	if err := h.repo.Update(ctx, session); err != nil {
		return nil, err
	}
	metrics.ConversationMessagesTotal.WithLabelValues(string(entity.MediumSelf), string(entity.RoleUser)).Inc()
	return session, nil
}

func (h *SelfHandler) End(context.Context) error {
	return nil
}

func (h *SelfHandler) IsSupported() bool {
	return true
}
