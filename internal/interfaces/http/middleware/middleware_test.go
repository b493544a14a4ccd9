package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoir-ai-api/pkg/logger"
	"memoir-ai-api/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubLimiter struct {
	allowed   bool
	remaining int
	err       error
	keys      []string
}

func (l *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, int, error) {
	l.keys = append(l.keys, key)
	return l.allowed, l.remaining, l.err
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAuth_DisabledUsesUserHeader(t *testing.T) {
	engine := gin.New()
	engine.Use(Auth(AuthConfig{Enabled: false}))
	engine.GET("/v1/me", func(c *gin.Context) { c.String(http.StatusOK, GetUserIDFromGin(c)) })

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set(UserIDHeader, "u1")
	w := serve(engine, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())
}

func TestAuth_AcceptsAccessTokenQueryForVoice(t *testing.T) {
	jm := utils.NewJWTManager("secret", "memoir")
	access, err := jm.GenerateToken("u7", "access", time.Minute)
	require.NoError(t, err)
	refresh, err := jm.GenerateToken("u7", "refresh", time.Minute)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(Auth(AuthConfig{Enabled: true, Secret: "secret", Issuer: "memoir"}))
	engine.GET("/v1/conversations/:sid/voice", func(c *gin.Context) { c.String(http.StatusOK, GetUserIDFromGin(c)) })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/v1/conversations/s1/voice?access_token="+access, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u7", w.Body.String())

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/v1/conversations/s1/voice?access_token="+refresh, nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/v1/conversations/s1/voice", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimit(t *testing.T) {
	limiter := &stubLimiter{allowed: true, remaining: 4}
	engine := gin.New()
	engine.Use(RateLimit(RateLimitConfig{Enabled: true, RequestsPerMinute: 5}, limiter))
	engine.POST("/v1/conversations/:sid/messages", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(engine, httptest.NewRequest(http.MethodPost, "/v1/conversations/s1/messages", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	require.Len(t, limiter.keys, 1)
	assert.Contains(t, limiter.keys[0], "POST:/v1/conversations/:sid/messages")

	limiter.allowed = false
	w = serve(engine, httptest.NewRequest(http.MethodPost, "/v1/conversations/s1/messages", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// 限流器不可用时放行
	limiter.err = errors.New("redis down")
	w = serve(engine, httptest.NewRequest(http.MethodPost, "/v1/conversations/s1/messages", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConversationContext_TagsSessionAndBook(t *testing.T) {
	engine := gin.New()
	v1 := engine.Group("/v1")
	v1.Use(ConversationContext())

	var sid, bid any
	record := func(c *gin.Context) {
		sid = c.Request.Context().Value(logger.SessionIDKey)
		bid = c.Request.Context().Value(logger.BookIDKey)
		c.Status(http.StatusNoContent)
	}
	v1.GET("/conversations/:sid", record)
	v1.GET("/context-cache", record)

	serve(engine, httptest.NewRequest(http.MethodGet, "/v1/conversations/s9", nil))
	assert.Equal(t, "s9", sid)
	assert.Nil(t, bid)

	serve(engine, httptest.NewRequest(http.MethodGet, "/v1/context-cache?book_id=b3", nil))
	assert.Nil(t, sid)
	assert.Equal(t, "b3", bid)
}

func TestRequestID_PropagatesHeader(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := serve(engine, req)
	assert.Equal(t, "req-42", w.Body.String())
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}
