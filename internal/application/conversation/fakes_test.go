package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"memoir-ai-api/internal/config"
	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/domain/repository"
)

type memoryRepo struct {
	mu       sync.Mutex
	sessions map[string]*entity.ConversationSession
	failNext error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sessions: make(map[string]*entity.ConversationSession)}
}

func (r *memoryRepo) takeFailure() error {
	err := r.failNext
	r.failNext = nil
	return err
}

func (r *memoryRepo) Create(_ context.Context, s *entity.ConversationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	r.sessions[s.SessionID] = s.Clone()
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*entity.ConversationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id].Clone(), nil
}

func (r *memoryRepo) Update(_ context.Context, s *entity.ConversationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	r.sessions[s.SessionID] = s.Clone()
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memoryRepo) List(context.Context, repository.ConversationFilter, repository.Pagination) (*repository.PagedResult[*entity.ConversationSession], error) {
	return nil, errors.New("not implemented")
}

// scriptedModel 依次返回预设结果，脚本耗尽后重复最后一项
type scriptedModel struct {
	mu      sync.Mutex
	replies []scriptedReply
	calls   int
	inputs  [][]*schema.Message
}

type scriptedReply struct {
	content string
	err     error
	block   bool
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	idx := m.calls
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	r := m.replies[idx]
	m.calls++
	m.inputs = append(m.inputs, input)
	m.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return schema.AssistantMessage(r.content, nil), nil
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (m *scriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *scriptedModel) LastInput() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs[len(m.inputs)-1]
}

type staticFactory struct {
	model model.BaseChatModel
}

func (f staticFactory) Get(context.Context, string) (model.BaseChatModel, error) {
	return f.model, nil
}

type recordingTracker struct {
	calls chan entity.QuestionTrackingRequest
	err   error
}

func newRecordingTracker(err error) *recordingTracker {
	return &recordingTracker{calls: make(chan entity.QuestionTrackingRequest, 16), err: err}
}

func (t *recordingTracker) Track(_ context.Context, req entity.QuestionTrackingRequest) error {
	t.calls <- req
	return t.err
}

func testConfig() *config.Config {
	return &config.Config{
		Conversation: config.ConversationConfig{
			AITimeout:        time.Second,
			AIMaxAttempts:    3,
			AIRetryBaseDelay: time.Second,
			HistoryWindow:    10,
		},
	}
}

type harness struct {
	repo     *memoryRepo
	model    *scriptedModel
	tracker  *recordingTracker
	sleeps   []time.Duration
	mediator *Mediator
	ai       *AIResponder
}

func newHarness(t *testing.T, replies ...scriptedReply) *harness {
	t.Helper()
	if len(replies) == 0 {
		replies = []scriptedReply{{content: "Tell me about the house you grew up in?"}}
	}
	h := &harness{
		repo:    newMemoryRepo(),
		model:   &scriptedModel{replies: replies},
		tracker: newRecordingTracker(nil),
	}
	strategies, err := NewStrategyRegistry()
	require.NoError(t, err)

	cfg := testConfig()
	h.ai = NewAIResponder(staticFactory{model: h.model}, cfg)
	h.ai.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}

	text := NewTextHandler(h.repo, strategies, h.ai, h.tracker, cfg)
	self := NewSelfHandler(h.repo)
	h.mediator = NewMediator(strategies, HandlerFactories{
		entity.MediumText: Shared(text),
		entity.MediumSelf: Shared(self),
		entity.MediumVoice: func() Handler {
			return NewVoiceHandler(h.repo, strategies, true)
		},
	})
	return h
}

func sampleContext() *entity.ConversationContext {
	return &entity.ConversationContext{
		UserProfile:    &entity.UserProfile{Name: "Margaret", BirthYear: 1948, Hometown: "Duluth"},
		BookProfile:    &entity.BookProfile{Title: "Lake Effect", Description: "A life on the shore of Lake Superior"},
		CurrentChapter: &entity.ChapterSummary{ID: "c1", Title: "Early Winters"},
		LifeThemes:     []string{"resilience", "family"},
	}
}

func startParams(convType entity.ConversationType) StartParams {
	return StartParams{
		UserID:           "u1",
		BookID:           "b1",
		ConversationType: convType,
		Context:          sampleContext(),
	}
}

func timeoutChan() <-chan time.Time {
	return time.After(2 * time.Second)
}

func sendParams(msg string) SendParams {
	return SendParams{Message: msg, UserID: "u1", Context: sampleContext()}
}
