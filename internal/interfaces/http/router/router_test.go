package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"memoir-ai-api/internal/application/contextcache"
	"memoir-ai-api/internal/application/conversation"
	"memoir-ai-api/internal/application/question"
	"memoir-ai-api/internal/config"
	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/infrastructure/persistence/postgres"
	"memoir-ai-api/internal/interfaces/http/dto"
	"memoir-ai-api/internal/interfaces/http/handler"
	"memoir-ai-api/internal/interfaces/http/middleware"
)

type echoModel struct{}

func (echoModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage("What do you remember most about that?", nil), nil
}

func (echoModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

type echoFactory struct{}

func (echoFactory) Get(context.Context, string) (model.BaseChatModel, error) {
	return echoModel{}, nil
}

type testServer struct {
	engine   *gin.Engine
	mediator *conversation.Mediator
}

// slowSpeech 模拟耗时的音频转写
type slowSpeech struct {
	delay time.Duration
	text  string
}

func (s slowSpeech) TranscribeURL(ctx context.Context, _ string) (string, error) {
	select {
	case <-time.After(s.delay):
		return s.text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newVoiceTestServer(t, nil, handler.VoiceTimeouts{})
}

func newVoiceTestServer(t *testing.T, speech conversation.SpeechTranscriber, timeouts handler.VoiceTimeouts) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	client := postgres.NewClientFromDB(db)
	require.NoError(t, client.AutoMigrate(context.Background()))

	cfg := &config.Config{
		Conversation: config.ConversationConfig{AITimeout: time.Second, AIMaxAttempts: 1, HistoryWindow: 10},
	}
	cfg.Features.Voice.Enabled = true

	sessions := postgres.NewConversationSessionRepository(client)
	questions := postgres.NewConversationQuestionRepository(client)
	contexts := contextcache.NewService(postgres.NewContextCacheRepository(client), cfg)

	strategies, err := conversation.NewStrategyRegistry()
	require.NoError(t, err)
	ai := conversation.NewAIResponder(echoFactory{}, cfg)
	text := conversation.NewTextHandler(sessions, strategies, ai, nil, cfg)
	self := conversation.NewSelfHandler(sessions)
	mediator := conversation.NewMediator(strategies, conversation.HandlerFactories{
		entity.MediumText: conversation.Shared(text),
		entity.MediumSelf: conversation.Shared(self),
		entity.MediumVoice: func() conversation.Handler {
			return conversation.NewVoiceHandler(sessions, strategies, true)
		},
	})
	transport := conversation.NewVoiceTransport(mediator, speech)

	r := New(cfg, &Handlers{
		Health:       handler.NewHealthHandler(client, nil),
		Conversation: handler.NewConversationHandler(mediator, postgres.NewTxManager(client), sessions, questions, contexts),
		ContextCache: handler.NewContextCacheHandler(contexts),
		Question:     handler.NewQuestionHandler(question.NewService(questions), questions),
		Voice:        handler.NewVoiceHandler(mediator, transport, sessions, nil, timeouts),
	}, nil)
	return &testServer{engine: r.Engine(), mediator: mediator}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp dto.Response[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func memoirContext() *entity.ConversationContext {
	return &entity.ConversationContext{
		UserProfile: &entity.UserProfile{Name: "Walter", BirthYear: 1952, Hometown: "Tacoma"},
		BookProfile: &entity.BookProfile{Title: "Saltwater Years"},
	}
}

func startBody(medium entity.ConversationMedium, cc *entity.ConversationContext) dto.StartConversationRequest {
	return dto.StartConversationRequest{
		Medium:           medium,
		BookID:           "book-1",
		ConversationType: entity.ConversationTypeInterview,
		Context:          cc,
	}
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/live", "", nil).Code)

	w := s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":{"status":"disabled"}`)
}

func TestConversation_RequiresUser(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/v1/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestConversation_StartValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/conversations", "u1", dto.StartConversationRequest{Medium: entity.MediumText})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.ElementsMatch(t, []string{
		"book_id is required",
		"conversation_type is required",
		"context is required",
	}, resp.Errors)
}

func TestConversation_StartUnsupportedMedium(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/v1/conversations", "u1", startBody("carrier-pigeon", memoirContext()))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "oneof")
	assert.Zero(t, s.mediator.ActiveCount())

	// 未填媒介时按文字对话处理
	w = s.do(t, http.MethodPost, "/v1/conversations", "u1", startBody("", memoirContext()))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, entity.MediumText, decodeData[dto.ConversationResponse](t, w).ConversationMedium)
}

func TestConversation_TextLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/conversations", "u1", startBody(entity.MediumText, memoirContext()))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := decodeData[dto.ConversationResponse](t, w)
	require.NotEmpty(t, started.SessionID)
	require.Len(t, started.Messages, 1)
	assert.Equal(t, entity.RoleAssistant, started.Messages[0].Role)
	assert.True(t, started.Active)

	path := "/v1/conversations/" + started.SessionID

	w = s.do(t, http.MethodPost, path+"/messages", "u1", dto.SendMessageRequest{Message: "We lived by the docks."})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sent := decodeData[dto.ConversationResponse](t, w)
	require.Len(t, sent.Messages, 3)
	assert.Equal(t, "We lived by the docks.", sent.Messages[1].Content)

	// 其他用户既不能读取也不能发送
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, path, "u2", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, path+"/messages", "u2", dto.SendMessageRequest{Message: "hi"}).Code)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, path+"/end", "u1", nil).Code)
	assert.False(t, s.mediator.IsActive(started.SessionID))

	w = s.do(t, http.MethodPost, path+"/messages", "u1", dto.SendMessageRequest{Message: "Still there?"})
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, path+"/resume", "u1", nil).Code)
	w = s.do(t, http.MethodPost, path+"/messages", "u1", dto.SendMessageRequest{Message: "Still there?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeData[dto.ConversationResponse](t, w).Messages, 5)

	w = s.do(t, http.MethodGet, path, "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeData[dto.ConversationResponse](t, w).Messages, 5)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, "u1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, "u1", nil).Code)
	assert.False(t, s.mediator.IsActive(started.SessionID))
}

func TestConversation_ListFiltersByCaller(t *testing.T) {
	s := newTestServer(t)

	for _, user := range []string{"u1", "u1", "u2"} {
		w := s.do(t, http.MethodPost, "/v1/conversations", user, startBody(entity.MediumSelf, memoirContext()))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do(t, http.MethodGet, "/v1/conversations?medium=self", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeData[dto.ConversationListResponse](t, w)
	require.Len(t, list.Conversations, 2)
	for _, c := range list.Conversations {
		assert.Equal(t, "u1", c.UserID)
	}
}

func TestConversation_StartUsesCachedContext(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/conversations", "u1", startBody(entity.MediumSelf, nil))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodPut, "/v1/context-cache", "u1", dto.ContextCacheRequest{BookID: "book-1", Context: memoirContext()})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodPost, "/v1/conversations", "u1", startBody(entity.MediumSelf, nil))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := decodeData[dto.ConversationResponse](t, w)
	require.NotNil(t, started.Context)
	assert.Equal(t, "Walter", started.Context.UserProfile.Name)
}

func TestContextCacheRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/context-cache?book_id=book-1", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeData[dto.ContextCacheResponse](t, w).Hit)

	w = s.do(t, http.MethodPut, "/v1/context-cache", "u1", dto.ContextCacheRequest{BookID: "book-1", ChapterID: "ch-2", Context: memoirContext()})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/v1/context-cache?book_id=book-1&chapter_id=ch-2", "u1", nil)
	got := decodeData[dto.ContextCacheResponse](t, w)
	require.True(t, got.Hit)
	assert.Equal(t, "Saltwater Years", got.Context.BookProfile.Title)

	// 章节级条目与书籍级条目互不影响
	w = s.do(t, http.MethodGet, "/v1/context-cache?book_id=book-1", "u1", nil)
	assert.False(t, decodeData[dto.ContextCacheResponse](t, w).Hit)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/v1/context-cache?book_id=book-1&chapter_id=ch-2", "u1", nil).Code)
	w = s.do(t, http.MethodGet, "/v1/context-cache?book_id=book-1&chapter_id=ch-2", "u1", nil)
	assert.False(t, decodeData[dto.ContextCacheResponse](t, w).Hit)

	w = s.do(t, http.MethodPut, "/v1/context-cache", "u1", dto.ContextCacheRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestQuestionRoutes(t *testing.T) {
	s := newTestServer(t)

	check := dto.CheckQuestionRequest{
		BookID:           "book-1",
		ConversationType: entity.ConversationTypeInterview,
		QuestionText:     "What was your first job?",
	}
	w := s.do(t, http.MethodPost, "/v1/questions/check", "u1", check)
	require.Equal(t, http.StatusOK, w.Code)
	result := decodeData[question.DuplicateCheck](t, w)
	assert.False(t, result.IsDuplicate)

	check.QuestionText = "   "
	assert.Equal(t, http.StatusUnprocessableEntity, s.do(t, http.MethodPost, "/v1/questions/check", "u1", check).Code)

	w = s.do(t, http.MethodPut, "/v1/questions/missing/quality", "u1", dto.UpdateQualityRequest{Rating: 4})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/books/book-1/questions/stats", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeData[entity.QuestionStats](t, w)
	assert.Zero(t, stats.Total)
	assert.Len(t, stats.ByType, len(entity.ConversationTypes))
}

func TestVoiceChannel(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/conversations", "u1", startBody(entity.MediumVoice, memoirContext()))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := decodeData[dto.ConversationResponse](t, w)

	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/conversations/" + started.SessionID + "/voice"
	header := http.Header{}
	header.Set(middleware.UserIDHeader, "u1")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	read := func() dto.VoiceServerFrame {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var f dto.VoiceServerFrame
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}

	initial := read()
	require.Equal(t, dto.VoiceFrameState, initial.Type)
	require.NotNil(t, initial.State.CurrentSession)
	assert.Equal(t, started.SessionID, initial.State.CurrentSession.SessionID)

	require.NoError(t, conn.WriteJSON(dto.VoiceClientFrame{Type: dto.VoiceFrameConnecting}))
	assert.True(t, read().State.IsConnecting)

	require.NoError(t, conn.WriteJSON(dto.VoiceClientFrame{Type: dto.VoiceFrameMessage, Role: entity.RoleUser, Content: "My father built boats."}))
	assert.True(t, read().State.IsLoading)
	after := read()
	require.Equal(t, dto.VoiceFrameState, after.Type)
	assert.False(t, after.State.IsLoading)
	require.Len(t, after.State.CurrentSession.Messages, 1)
	assert.Equal(t, "My father built boats.", after.State.CurrentSession.Messages[0].Content)

	// 未配置转写时音频片段被拒绝
	require.NoError(t, conn.WriteJSON(dto.VoiceClientFrame{Type: dto.VoiceFrameAudioClip, URL: "https://example.com/a.mp3"}))
	assert.True(t, read().State.IsLoading)
	errFrame := read()
	require.Equal(t, dto.VoiceFrameError, errFrame.Type)
	assert.Equal(t, "4102", errFrame.Code)
	withErr := read()
	require.NotNil(t, withErr.State.Error)

	require.NoError(t, conn.WriteJSON(dto.VoiceClientFrame{Type: dto.VoiceFramePermissionDenied}))
	denied := read()
	require.NotNil(t, denied.State.Error)
	assert.Contains(t, denied.State.Error.Hint, "microphone")

	require.NoError(t, conn.WriteJSON(dto.VoiceClientFrame{Type: dto.VoiceFrameEnd}))
	read()
	assert.Eventually(t, func() bool { return !s.mediator.IsActive(started.SessionID) }, time.Second, 10*time.Millisecond)

	w = s.do(t, http.MethodGet, "/v1/conversations/"+started.SessionID, "u1", nil)
	assert.Len(t, decodeData[dto.ConversationResponse](t, w).Messages, 1)
}

func TestVoiceChannel_SurvivesTranscriptionLongerThanPongWait(t *testing.T) {
	s := newVoiceTestServer(t, slowSpeech{delay: 600 * time.Millisecond, text: "We sailed every summer."},
		handler.VoiceTimeouts{PongWait: 200 * time.Millisecond, ClipTimeout: 2 * time.Second})

	w := s.do(t, http.MethodPost, "/v1/conversations", "u1", startBody(entity.MediumVoice, memoirContext()))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := decodeData[dto.ConversationResponse](t, w)

	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/conversations/" + started.SessionID + "/voice"
	header := http.Header{}
	header.Set(middleware.UserIDHeader, "u1")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	read := func() dto.VoiceServerFrame {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var f dto.VoiceServerFrame
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}
	require.Equal(t, dto.VoiceFrameState, read().Type)

	require.NoError(t, conn.WriteJSON(dto.VoiceClientFrame{Type: dto.VoiceFrameAudioClip, URL: "https://example.com/a.mp3"}))
	assert.True(t, read().State.IsLoading)
	after := read()
	require.Equal(t, dto.VoiceFrameState, after.Type)
	assert.False(t, after.State.IsLoading)
	require.Len(t, after.State.CurrentSession.Messages, 1)
	assert.Equal(t, "We sailed every summer.", after.State.CurrentSession.Messages[0].Content)

	// 转写结束后连接仍可继续收发
	require.NoError(t, conn.WriteJSON(dto.VoiceClientFrame{Type: dto.VoiceFrameSpeaking}))
	assert.True(t, read().State.IsSpeaking)
}

func TestVoiceChannel_RejectsTextSession(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/v1/conversations", "u1", startBody(entity.MediumSelf, memoirContext()))
	started := decodeData[dto.ConversationResponse](t, w)

	w = s.do(t, http.MethodGet, "/v1/conversations/"+started.SessionID+"/voice", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
