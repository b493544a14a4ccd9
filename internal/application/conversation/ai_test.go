package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoir-ai-api/internal/domain/entity"
)

func TestAIResponder_RetriesThenFallsBack(t *testing.T) {
	h := newHarness(t, scriptedReply{err: errors.New("upstream 503")})

	content, degraded := h.ai.Reply(context.Background(), "test", "system", nil)

	assert.True(t, degraded)
	assert.Equal(t, FallbackMessage, content)
	assert.Equal(t, 3, h.model.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleeps)
}

func TestAIResponder_RecoversOnSecondAttempt(t *testing.T) {
	h := newHarness(t,
		scriptedReply{err: errors.New("rate limited")},
		scriptedReply{content: "  What was your first job?  "},
	)

	content, degraded := h.ai.Reply(context.Background(), "test", "system", nil)

	assert.False(t, degraded)
	assert.Equal(t, "What was your first job?", content)
	assert.Equal(t, 2, h.model.Calls())
	assert.Equal(t, []time.Duration{time.Second}, h.sleeps)
}

func TestAIResponder_EmptyResponseIsRetried(t *testing.T) {
	h := newHarness(t,
		scriptedReply{content: "   "},
		scriptedReply{content: "Who taught you to swim?"},
	)

	content, degraded := h.ai.Reply(context.Background(), "test", "system", nil)

	assert.False(t, degraded)
	assert.Equal(t, "Who taught you to swim?", content)
	assert.Equal(t, 2, h.model.Calls())
}

func TestAIResponder_TimeoutCountsAsFailure(t *testing.T) {
	h := newHarness(t, scriptedReply{block: true})
	h.ai.timeout = 20 * time.Millisecond

	content, degraded := h.ai.Reply(context.Background(), "test", "system", nil)

	assert.True(t, degraded)
	assert.Equal(t, FallbackMessage, content)
	assert.Equal(t, 3, h.model.Calls())
}

func TestAIResponder_StopsWhenContextCancelledDuringBackoff(t *testing.T) {
	h := newHarness(t, scriptedReply{err: errors.New("boom")})
	h.ai.sleep = sleepContext
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, degraded := h.ai.Reply(ctx, "test", "system", nil)

	assert.True(t, degraded)
	assert.Equal(t, 1, h.model.Calls())
}

func TestTextHandler_FallbackIsPersistedAndNotTracked(t *testing.T) {
	h := newHarness(t, scriptedReply{err: errors.New("down")})
	ctx := context.Background()

	session, err := h.mediator.StartConversation(ctx, entity.MediumText, startParams(entity.ConversationTypeInterview))
	require.NoError(t, err)
	require.Len(t, session.Messages, 1)
	assert.Equal(t, FallbackMessage, session.Messages[0].Content)

	select {
	case <-h.tracker.calls:
		t.Fatal("fallback replies must not be tracked")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages("sys", nil)
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, openingKickoff, msgs[1].Content)

	msgs = buildMessages("sys", []entity.ConversationMessage{
		{Role: entity.RoleAssistant, Content: "q"},
		{Role: entity.RoleUser, Content: "a"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, schema.Assistant, msgs[1].Role)
	assert.Equal(t, schema.User, msgs[2].Role)
}
