package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationSession_AppendMessageKeepsTimestampsNonDecreasing(t *testing.T) {
	s := NewConversationSession("s1", "u1", "b1", "", ConversationTypeInterview, MediumText, nil, nil)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	s.AppendMessage(RoleUser, "hello", base)
	msg := s.AppendMessage(RoleAssistant, "hi", base.Add(-time.Minute))

	assert.Equal(t, "2026-03-01T10:00:00.000Z", msg.Timestamp)
	require.Len(t, s.Messages, 2)
	assert.LessOrEqual(t, s.Messages[0].Timestamp, s.Messages[1].Timestamp)
}

func TestConversationSession_CloneIsDeep(t *testing.T) {
	ctx := &ConversationContext{
		UserProfile: &UserProfile{Name: "Ada", Interests: []string{"sailing"}},
		LifeThemes:  []string{"family"},
	}
	s := NewConversationSession("s1", "u1", "b1", "c1", ConversationTypeReflection, MediumSelf, ctx, []string{"g1"})
	s.AppendMessage(RoleUser, "entry", time.Now())

	cp := s.Clone()
	cp.Messages[0].Content = "changed"
	cp.Goals[0] = "changed"
	cp.Context.UserProfile.Interests[0] = "changed"

	assert.Equal(t, "entry", s.Messages[0].Content)
	assert.Equal(t, "g1", s.Goals[0])
	assert.Equal(t, "sailing", s.Context.UserProfile.Interests[0])
}

func TestNewConversationSession_CopiesContext(t *testing.T) {
	ctx := &ConversationContext{LifeThemes: []string{"resilience"}}
	s := NewConversationSession("s1", "u1", "b1", "", ConversationTypeInterview, MediumVoice, ctx, nil)

	ctx.LifeThemes[0] = "mutated"
	assert.Equal(t, "resilience", s.Context.LifeThemes[0])
}

func TestRecentMessages(t *testing.T) {
	s := NewConversationSession("s1", "u1", "b1", "", ConversationTypeInterview, MediumText, nil, nil)
	for i := 0; i < 12; i++ {
		s.AppendMessage(RoleUser, "m", time.Now())
	}
	assert.Len(t, s.RecentMessages(10), 10)
	assert.Len(t, s.RecentMessages(0), 12)
}

func TestContextCacheKey(t *testing.T) {
	assert.Equal(t, "u1:b1", ContextCacheKey("u1", "b1", ""))
	assert.Equal(t, "u1:b1:c1", ContextCacheKey("u1", "b1", "c1"))
}

func TestCachedContext_Expired(t *testing.T) {
	now := time.Now()
	c := &CachedContext{ExpiresAt: now}
	assert.True(t, c.Expired(now))
	assert.False(t, c.Expired(now.Add(-time.Second)))
}
