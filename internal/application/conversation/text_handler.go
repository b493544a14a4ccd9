package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"memoir-ai-api/internal/config"
	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/domain/repository"
	llmctx "memoir-ai-api/internal/domain/service"
	"memoir-ai-api/pkg/logger"
	"memoir-ai-api/pkg/metrics"
)

// TextHandler 同步文字对话：每一轮都由 AI 生成助手回复
type TextHandler struct {
	repo          repository.ConversationRepository
	strategies    *StrategyRegistry
	ai            *AIResponder
	tracker       QuestionTracker
	historyWindow int
	now           func() time.Time
}

// NewTextHandler 创建文字对话处理器，tracker 可为 nil
func NewTextHandler(
	repo repository.ConversationRepository,
	strategies *StrategyRegistry,
	ai *AIResponder,
	tracker QuestionTracker,
	cfg *config.Config,
) *TextHandler {
	window := cfg.Conversation.HistoryWindow
	if window <= 0 {
		window = 10
	}
	return &TextHandler{
		repo:          repo,
		strategies:    strategies,
		ai:            ai,
		tracker:       tracker,
		historyWindow: window,
		now:           time.Now,
	}
}

func (h *TextHandler) Start(ctx context.Context, params StartParams) (*entity.ConversationSession, error) {
	strategy, err := h.strategies.Get(params.ConversationType)
	if err != nil {
		return nil, err
	}

	session := entity.NewConversationSession(
		uuid.NewString(),
		params.UserID, params.BookID, params.ChapterID,
		params.ConversationType, entity.MediumText,
		params.Context, strategy.Goals(),
	)
	ctx = logger.WithSession(ctx, session.SessionID)

	prompt, err := strategy.OpeningPrompt(ctx, session.Context)
	if err != nil {
		return nil, fmt.Errorf("build opening prompt: %w", err)
	}
	content, degraded := h.ai.Reply(ctx, llmctx.WorkflowConversationOpening, prompt, nil)
	h.appendAssistant(session, content, degraded)

	if err := h.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	if !degraded {
		h.track(ctx, session, content)
	}
	return session, nil
}

func (h *TextHandler) SendMessage(ctx context.Context, params SendParams) (*entity.ConversationSession, error) {
	session := params.Session.Clone()
	ctx = logger.WithSession(ctx, session.SessionID)

	strategy, err := h.strategies.Get(session.ConversationType)
	if err != nil {
		return nil, err
	}
	if session.Context == nil {
		session.Context = params.Context.Clone()
	}

	session.AppendMessage(entity.RoleUser, params.Message, h.now())
	metrics.ConversationMessagesTotal.WithLabelValues(string(entity.MediumText), string(entity.RoleUser)).Inc()

	history := session.RecentMessages(h.historyWindow)
	prompt, err := strategy.FollowupPrompt(ctx, session.Context, history)
	if err != nil {
		return nil, fmt.Errorf("build followup prompt: %w", err)
	}
	content, degraded := h.ai.Reply(ctx, llmctx.WorkflowConversationFollowup, prompt, history)
	h.appendAssistant(session, content, degraded)

	if err := h.repo.Update(ctx, session); err != nil {
		return nil, err
	}
	if !degraded {
		h.track(ctx, session, content)
	}
	return session, nil
}

func (h *TextHandler) End(context.Context) error {
	return nil
}

func (h *TextHandler) IsSupported() bool {
	return true
}

func (h *TextHandler) appendAssistant(session *entity.ConversationSession, content string, degraded bool) {
	session.AppendMessage(entity.RoleAssistant, content, h.now())
	metrics.ConversationMessagesTotal.WithLabelValues(string(entity.MediumText), string(entity.RoleAssistant)).Inc()
	if degraded {
		metrics.ConversationAIFallbackTotal.WithLabelValues(string(entity.MediumText)).Inc()
	}
}

func (h *TextHandler) track(ctx context.Context, session *entity.ConversationSession, response string) {
	trackBestEffort(ctx, h.tracker, entity.QuestionTrackingRequest{
		UserID:           session.UserID,
		BookID:           session.BookID,
		ChapterID:        session.ChapterID,
		SessionID:        session.SessionID,
		ConversationType: session.ConversationType,
		ResponseText:     response,
	})
}
