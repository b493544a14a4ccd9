package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"memoir-ai-api/internal/application/contextcache"
	"memoir-ai-api/internal/application/conversation"
	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/domain/repository"
	"memoir-ai-api/internal/interfaces/http/dto"
	"memoir-ai-api/pkg/logger"
)

// ConversationHandler 对话会话接口
type ConversationHandler struct {
	mediator     *conversation.Mediator
	txMgr        repository.Transactor
	sessionRepo  repository.ConversationRepository
	questionRepo repository.QuestionRepository
	contexts     *contextcache.Service
}

// NewConversationHandler 创建对话处理器
func NewConversationHandler(
	mediator *conversation.Mediator,
	txMgr repository.Transactor,
	sessionRepo repository.ConversationRepository,
	questionRepo repository.QuestionRepository,
	contexts *contextcache.Service,
) *ConversationHandler {
	return &ConversationHandler{
		mediator:     mediator,
		txMgr:        txMgr,
		sessionRepo:  sessionRepo,
		questionRepo: questionRepo,
		contexts:     contexts,
	}
}

// StartConversation 开始对话
// @Summary 开始对话
// @Tags Conversations
// @Accept json
// @Produce json
// @Param body body dto.StartConversationRequest true "开始对话请求"
// @Success 201 {object} dto.Response[dto.ConversationResponse]
// @Router /v1/conversations [post]
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	ctx := c.Request.Context()
	userID := requireUser(c)
	if userID == "" {
		return
	}

	var req dto.StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Medium == "" {
		req.Medium = entity.MediumText
	}

	// 未携带上下文时回落到缓存；携带时写回缓存供后续会话复用
	cc := req.Context
	if cc == nil {
		cc = h.contexts.GetContext(ctx, userID, req.BookID, req.ChapterID)
	} else if req.BookID != "" {
		if err := h.contexts.SetContext(ctx, userID, req.BookID, cc, req.ChapterID); err != nil {
			logger.Warn(ctx, "failed to cache conversation context", "error", err.Error(), "book_id", req.BookID)
		}
	}

	params := conversation.StartParams{
		UserID:           userID,
		BookID:           req.BookID,
		ChapterID:        req.ChapterID,
		ConversationType: req.ConversationType,
		Context:          cc,
	}
	if res := h.mediator.ValidateStartParams(params); !res.IsValid {
		dto.ValidationFailed(c, "validation failed", res.Errors)
		return
	}

	session, err := h.mediator.StartConversation(ctx, req.Medium, params)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Created(c, dto.ToConversationResponse(session, true))
}

// ListConversations 会话列表
// @Summary 会话列表
// @Tags Conversations
// @Produce json
// @Param book_id query string false "书籍 ID"
// @Param chapter_id query string false "章节 ID"
// @Param conversation_type query string false "对话类型"
// @Param medium query string false "媒介"
// @Success 200 {object} dto.Response[dto.ConversationListResponse]
// @Router /v1/conversations [get]
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	userID := requireUser(c)
	if userID == "" {
		return
	}

	page := dto.BindPage(c)
	filter := repository.ConversationFilter{
		UserID:             userID,
		BookID:             c.Query("book_id"),
		ChapterID:          c.Query("chapter_id"),
		ConversationType:   entity.ConversationType(c.Query("conversation_type")),
		ConversationMedium: entity.ConversationMedium(c.Query("medium")),
	}
	result, err := h.sessionRepo.List(ctx, filter, repository.NewPagination(page.Page, page.PageSize))
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]*dto.ConversationResponse, 0, len(result.Items))
	for _, s := range result.Items {
		items = append(items, dto.ToConversationResponse(s, h.mediator.IsActive(s.SessionID)))
	}
	dto.SuccessWithPage(c, &dto.ConversationListResponse{Conversations: items},
		dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}

// GetConversation 会话详情
// @Summary 会话详情
// @Tags Conversations
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.ConversationResponse]
// @Router /v1/conversations/{sid} [get]
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	ctx := c.Request.Context()
	userID := requireUser(c)
	if userID == "" {
		return
	}
	session := loadOwnedSession(ctx, c, h.sessionRepo, userID, dto.BindSessionID(c))
	if session == nil {
		return
	}
	dto.Success(c, dto.ToConversationResponse(session, h.mediator.IsActive(session.SessionID)))
}

// DeleteConversation 删除会话及其追踪的问题
// @Summary 删除会话
// @Tags Conversations
// @Param sid path string true "会话 ID"
// @Success 204
// @Router /v1/conversations/{sid} [delete]
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	ctx := c.Request.Context()
	userID := requireUser(c)
	if userID == "" {
		return
	}
	session := loadOwnedSession(ctx, c, h.sessionRepo, userID, dto.BindSessionID(c))
	if session == nil {
		return
	}

	h.mediator.EndConversation(ctx, session.SessionID)
	err := h.txMgr.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := h.questionRepo.DeleteBySession(txCtx, session.SessionID); err != nil {
			return err
		}
		return h.sessionRepo.Delete(txCtx, session.SessionID)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	dto.NoContent(c)
}

// SendMessage 发送消息
// @Summary 发送消息
// @Tags Conversations
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Param body body dto.SendMessageRequest true "消息"
// @Success 200 {object} dto.Response[dto.ConversationResponse]
// @Router /v1/conversations/{sid}/messages [post]
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	userID := requireUser(c)
	if userID == "" {
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	session := loadOwnedSession(ctx, c, h.sessionRepo, userID, dto.BindSessionID(c))
	if session == nil {
		return
	}

	cc := req.Context
	if cc == nil {
		cc = session.Context
	}
	if cc == nil {
		cc = h.contexts.GetContext(ctx, userID, session.BookID, session.ChapterID)
	}

	params := conversation.SendParams{Session: session, Message: req.Message, UserID: userID, Context: cc}
	if res := h.mediator.ValidateSendParams(params); !res.IsValid {
		dto.ValidationFailed(c, "validation failed", res.Errors)
		return
	}

	updated, err := h.mediator.SendMessage(ctx, session, params)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.ToConversationResponse(updated, true))
}

// ResumeConversation 恢复会话为活跃
// @Summary 恢复会话
// @Tags Conversations
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.ConversationResponse]
// @Router /v1/conversations/{sid}/resume [post]
func (h *ConversationHandler) ResumeConversation(c *gin.Context) {
	ctx := c.Request.Context()
	userID := requireUser(c)
	if userID == "" {
		return
	}
	session := loadOwnedSession(ctx, c, h.sessionRepo, userID, dto.BindSessionID(c))
	if session == nil {
		return
	}
	if err := h.mediator.ResumeConversation(ctx, session); err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.ToConversationResponse(session, true))
}

// EndConversation 结束会话，会话不活跃时为空操作
// @Summary 结束会话
// @Tags Conversations
// @Param sid path string true "会话 ID"
// @Success 204
// @Router /v1/conversations/{sid}/end [post]
func (h *ConversationHandler) EndConversation(c *gin.Context) {
	ctx := c.Request.Context()
	userID := requireUser(c)
	if userID == "" {
		return
	}
	session := loadOwnedSession(ctx, c, h.sessionRepo, userID, dto.BindSessionID(c))
	if session == nil {
		return
	}
	h.mediator.EndConversation(ctx, session.SessionID)
	dto.NoContent(c)
}
