// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/domain/repository"
	"memoir-ai-api/internal/interfaces/http/dto"
	"memoir-ai-api/internal/interfaces/http/middleware"
	apperrors "memoir-ai-api/pkg/errors"
	"memoir-ai-api/pkg/logger"
)

// respondError 把应用错误映射为 HTTP 响应
func respondError(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)
	switch appErr.Code {
	case apperrors.CodeValidationFailed:
		dto.ValidationFailed(c, appErr.Message, splitDetail(appErr.Detail))
		return
	case apperrors.CodeUnknown, apperrors.CodeInternalError, apperrors.CodeDatabaseError, apperrors.CodeCacheError, apperrors.CodeQueueError:
		logger.Error(c.Request.Context(), "request failed", err, "path", c.FullPath())
		dto.InternalError(c, "internal server error")
		return
	}

	var detail *dto.ErrorDetail
	if appErr.Detail != "" || appErr.Hint != "" {
		detail = &dto.ErrorDetail{ErrorCode: string(appErr.Code), Details: appErr.Detail, Hint: appErr.Hint}
	}
	dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, detail)
}

func splitDetail(detail string) []string {
	if detail == "" {
		return []string{}
	}
	parts := strings.Split(detail, "; ")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// requireUser 返回调用者，未认证时写 401 并返回空串
func requireUser(c *gin.Context) string {
	userID := middleware.GetUserIDFromGin(c)
	if userID == "" {
		dto.Unauthorized(c, "authentication required")
	}
	return userID
}

// loadOwnedSession 读取会话并校验归属，失败时已写响应
func loadOwnedSession(ctx context.Context, c *gin.Context, repo repository.ConversationRepository, userID, sessionID string) *entity.ConversationSession {
	session, err := repo.GetByID(ctx, sessionID)
	if err != nil {
		respondError(c, err)
		return nil
	}
	if session == nil {
		respondError(c, apperrors.ErrSessionNotFound.WithDetail(sessionID))
		return nil
	}
	if session.UserID != userID {
		respondError(c, apperrors.ErrPermissionDenied.WithDetail("session belongs to another user"))
		return nil
	}
	return session
}
