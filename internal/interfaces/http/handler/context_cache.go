package handler

import (
	"github.com/gin-gonic/gin"

	"memoir-ai-api/internal/application/contextcache"
	"memoir-ai-api/internal/interfaces/http/dto"
)

// ContextCacheHandler 对话上下文缓存接口
type ContextCacheHandler struct {
	contexts *contextcache.Service
}

// NewContextCacheHandler 创建上下文缓存处理器
func NewContextCacheHandler(contexts *contextcache.Service) *ContextCacheHandler {
	return &ContextCacheHandler{contexts: contexts}
}

// GetContext 查询缓存的上下文
// @Summary 查询上下文缓存
// @Tags ContextCache
// @Produce json
// @Param book_id query string true "书籍 ID"
// @Param chapter_id query string false "章节 ID"
// @Success 200 {object} dto.Response[dto.ContextCacheResponse]
// @Router /v1/context-cache [get]
func (h *ContextCacheHandler) GetContext(c *gin.Context) {
	userID := requireUser(c)
	if userID == "" {
		return
	}
	bookID, chapterID := c.Query("book_id"), c.Query("chapter_id")
	if bookID == "" {
		dto.ValidationFailed(c, "validation failed", []string{"book_id is required"})
		return
	}

	cc := h.contexts.GetContext(c.Request.Context(), userID, bookID, chapterID)
	dto.Success(c, &dto.ContextCacheResponse{
		BookID:    bookID,
		ChapterID: chapterID,
		Hit:       cc != nil,
		Context:   cc,
	})
}

// SetContext 写入上下文缓存
// @Summary 写入上下文缓存
// @Tags ContextCache
// @Accept json
// @Param body body dto.ContextCacheRequest true "上下文"
// @Success 204
// @Router /v1/context-cache [put]
func (h *ContextCacheHandler) SetContext(c *gin.Context) {
	userID := requireUser(c)
	if userID == "" {
		return
	}
	var req dto.ContextCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	var errs []string
	if req.BookID == "" {
		errs = append(errs, "book_id is required")
	}
	if req.Context == nil {
		errs = append(errs, "context is required")
	}
	if len(errs) > 0 {
		dto.ValidationFailed(c, "validation failed", errs)
		return
	}

	if err := h.contexts.SetContext(c.Request.Context(), userID, req.BookID, req.Context, req.ChapterID); err != nil {
		respondError(c, err)
		return
	}
	dto.NoContent(c)
}

// InvalidateContext 使缓存失效
// @Summary 清除上下文缓存
// @Tags ContextCache
// @Param book_id query string true "书籍 ID"
// @Param chapter_id query string false "章节 ID"
// @Success 204
// @Router /v1/context-cache [delete]
func (h *ContextCacheHandler) InvalidateContext(c *gin.Context) {
	userID := requireUser(c)
	if userID == "" {
		return
	}
	bookID := c.Query("book_id")
	if bookID == "" {
		dto.ValidationFailed(c, "validation failed", []string{"book_id is required"})
		return
	}
	if err := h.contexts.InvalidateContext(c.Request.Context(), userID, bookID, c.Query("chapter_id")); err != nil {
		respondError(c, err)
		return
	}
	dto.NoContent(c)
}
