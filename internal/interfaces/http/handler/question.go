package handler

import (
	"github.com/gin-gonic/gin"

	"memoir-ai-api/internal/application/question"
	"memoir-ai-api/internal/domain/repository"
	"memoir-ai-api/internal/interfaces/http/dto"
	apperrors "memoir-ai-api/pkg/errors"
)

// QuestionHandler 问题追踪接口
type QuestionHandler struct {
	questions *question.Service
	repo      repository.QuestionRepository
}

// NewQuestionHandler 创建问题追踪处理器
func NewQuestionHandler(questions *question.Service, repo repository.QuestionRepository) *QuestionHandler {
	return &QuestionHandler{questions: questions, repo: repo}
}

// CheckDuplicate 问题查重
// @Summary 问题查重
// @Tags Questions
// @Accept json
// @Produce json
// @Param body body dto.CheckQuestionRequest true "待检查问题"
// @Success 200 {object} dto.Response[question.DuplicateCheck]
// @Router /v1/questions/check [post]
func (h *QuestionHandler) CheckDuplicate(c *gin.Context) {
	userID := requireUser(c)
	if userID == "" {
		return
	}
	var req dto.CheckQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.BookID == "" {
		dto.ValidationFailed(c, "validation failed", []string{"book_id is required"})
		return
	}

	check, err := h.questions.CheckQuestionDuplicate(c.Request.Context(), userID, req.BookID, req.ConversationType, req.QuestionText)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, check)
}

// UpdateQuality 为问题引出的回答评分
// @Summary 回答质量评分
// @Tags Questions
// @Accept json
// @Param qid path string true "问题 ID"
// @Param body body dto.UpdateQualityRequest true "评分"
// @Success 204
// @Router /v1/questions/{qid}/quality [put]
func (h *QuestionHandler) UpdateQuality(c *gin.Context) {
	ctx := c.Request.Context()
	userID := requireUser(c)
	if userID == "" {
		return
	}
	var req dto.UpdateQualityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	qid := dto.BindQuestionID(c)
	q, err := h.repo.GetByID(ctx, qid)
	if err != nil {
		respondError(c, err)
		return
	}
	if q == nil {
		respondError(c, apperrors.ErrQuestionNotFound.WithDetail(qid))
		return
	}
	if q.UserID != userID {
		respondError(c, apperrors.ErrPermissionDenied.WithDetail("question belongs to another user"))
		return
	}

	if err := h.questions.UpdateResponseQuality(ctx, qid, req.Rating); err != nil {
		respondError(c, err)
		return
	}
	dto.NoContent(c)
}

// GetStats 书籍维度的问题统计
// @Summary 问题统计
// @Tags Questions
// @Produce json
// @Param bid path string true "书籍 ID"
// @Success 200 {object} dto.Response[entity.QuestionStats]
// @Router /v1/books/{bid}/questions/stats [get]
func (h *QuestionHandler) GetStats(c *gin.Context) {
	userID := requireUser(c)
	if userID == "" {
		return
	}
	stats, err := h.questions.GetQuestionStats(c.Request.Context(), userID, dto.BindBookID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, stats)
}
