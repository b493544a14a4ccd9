// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"memoir-ai-api/pkg/logger"
	"memoir-ai-api/pkg/utils"
)

const (
	// UserIDHeader 认证关闭时（本地开发）用于指定调用者
	UserIDHeader = "X-User-ID"

	ginUserIDKey = "user_id"
)

// AuthConfig 认证配置
type AuthConfig struct {
	Secret    string
	Issuer    string
	SkipPaths []string
	Enabled   bool
}

// Auth 校验 Bearer Token 并注入 user_id
func Auth(cfg AuthConfig) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		for _, p := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, p) {
				c.Next()
				return
			}
		}

		if !cfg.Enabled {
			if uid := strings.TrimSpace(c.GetHeader(UserIDHeader)); uid != "" {
				setUserID(c, uid)
			}
			c.Next()
			return
		}

		token := bearerToken(c)
		if token == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		claims, err := jwtManager.ParseToken(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, utils.ErrExpiredToken) {
				msg = "token expired"
			}
			abortUnauthorized(c, msg)
			return
		}
		if claims.Type != "access" {
			abortUnauthorized(c, "invalid token type")
			return
		}

		setUserID(c, claims.Subject())
		c.Next()
	}
}

// bearerToken 浏览器 WebSocket 无法设置请求头，允许通过 access_token 查询参数传递
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("access_token")
}

func setUserID(c *gin.Context, userID string) {
	c.Set(ginUserIDKey, userID)
	ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, userID)
	c.Request = c.Request.WithContext(ctx)
}

// GetUserIDFromGin 当前调用者，未认证时为空
func GetUserIDFromGin(c *gin.Context) string {
	return c.GetString(ginUserIDKey)
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":     401,
		"message":  msg,
		"trace_id": c.GetString("trace_id"),
	})
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
