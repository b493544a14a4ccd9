// Package entity 定义领域实体
package entity

import (
	"time"
)

// TimestampLayout 消息时间戳格式（UTC，毫秒精度）
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// ConversationType 对话类型
type ConversationType string

const (
	ConversationTypeInterview     ConversationType = "interview"
	ConversationTypeReflection    ConversationType = "reflection"
	ConversationTypeBrainstorming ConversationType = "brainstorming"
)

// ConversationTypes 统计口径使用的固定类型集合
var ConversationTypes = []ConversationType{
	ConversationTypeInterview,
	ConversationTypeReflection,
	ConversationTypeBrainstorming,
}

// ConversationMedium 对话媒介
type ConversationMedium string

const (
	MediumText  ConversationMedium = "text"
	MediumVoice ConversationMedium = "voice"
	MediumSelf  ConversationMedium = "self"
)

// Valid 是否为已知媒介
func (m ConversationMedium) Valid() bool {
	switch m {
	case MediumText, MediumVoice, MediumSelf:
		return true
	}
	return false
}

// ConversationMessage 会话消息
type ConversationMessage struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ConversationSession 会话，持久化到 chat_histories
type ConversationSession struct {
	SessionID          string                `json:"session_id" gorm:"column:session_id;type:varchar(64);primaryKey"`
	UserID             string                `json:"user_id" gorm:"type:varchar(64);index;not null"`
	BookID             string                `json:"book_id" gorm:"type:varchar(64);index;not null"`
	ChapterID          string                `json:"chapter_id,omitempty" gorm:"type:varchar(64);index;not null;default:''"`
	ConversationType   ConversationType      `json:"conversation_type" gorm:"type:varchar(32);not null"`
	ConversationMedium ConversationMedium    `json:"conversation_medium" gorm:"type:varchar(16);not null"`
	Messages           []ConversationMessage `json:"messages" gorm:"serializer:json;type:jsonb"`
	Context            *ConversationContext  `json:"context,omitempty" gorm:"serializer:json;type:jsonb"`
	Goals              []string              `json:"goals" gorm:"serializer:json;type:jsonb"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

func (ConversationSession) TableName() string {
	return "chat_histories"
}

// NewConversationSession 创建会话外壳，context 以副本形式保存
func NewConversationSession(sessionID, userID, bookID, chapterID string, convType ConversationType, medium ConversationMedium, ctx *ConversationContext, goals []string) *ConversationSession {
	now := time.Now().UTC()
	return &ConversationSession{
		SessionID:          sessionID,
		UserID:             userID,
		BookID:             bookID,
		ChapterID:          chapterID,
		ConversationType:   convType,
		ConversationMedium: medium,
		Messages:           []ConversationMessage{},
		Context:            ctx.Clone(),
		Goals:              append([]string(nil), goals...),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// AppendMessage 追加消息，时间戳不早于上一条消息
func (s *ConversationSession) AppendMessage(role Role, content string, at time.Time) ConversationMessage {
	ts := at.UTC().Format(TimestampLayout)
	if n := len(s.Messages); n > 0 {
		if prev := s.Messages[n-1].Timestamp; ts < prev {
			ts = prev
		}
	}
	msg := ConversationMessage{Role: role, Content: content, Timestamp: ts}
	s.Messages = append(s.Messages, msg)
	return msg
}

// RecentMessages 返回最近 n 条消息
func (s *ConversationSession) RecentMessages(n int) []ConversationMessage {
	if n <= 0 || len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// Clone 深拷贝会话
func (s *ConversationSession) Clone() *ConversationSession {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = append([]ConversationMessage(nil), s.Messages...)
	cp.Goals = append([]string(nil), s.Goals...)
	cp.Context = s.Context.Clone()
	return &cp
}
