package entity

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// QuestionType 问题形态
type QuestionType string

const (
	QuestionTypeDirect   QuestionType = "direct"
	QuestionTypeFollowup QuestionType = "followup"
	QuestionTypeImplied  QuestionType = "implied"
)

// QuestionSentiment 问题语气
type QuestionSentiment string

const (
	SentimentPositive QuestionSentiment = "positive"
	SentimentProbing  QuestionSentiment = "probing"
	SentimentNeutral  QuestionSentiment = "neutral"
)

// Keywords 语义关键词，PostgreSQL 下存为 text[]
type Keywords []string

// Value 实现 driver.Valuer
func (k Keywords) Value() (driver.Value, error) {
	return pq.StringArray(k).Value()
}

// Scan 实现 sql.Scanner
func (k *Keywords) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*k = Keywords(arr)
	return nil
}

// GormDataType 通用类型名
func (Keywords) GormDataType() string {
	return "text[]"
}

// GormDBDataType 按方言返回列类型，非 PostgreSQL 方言退化为 text
func (Keywords) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// ConversationQuestion 从助手回复中提取并指纹化的问题
type ConversationQuestion struct {
	ID               string            `json:"id" gorm:"type:varchar(64);primaryKey"`
	UserID           string            `json:"user_id" gorm:"type:varchar(64);index:idx_question_scope;not null"`
	BookID           string            `json:"book_id" gorm:"type:varchar(64);index:idx_question_scope;not null"`
	ChapterID        string            `json:"chapter_id,omitempty" gorm:"type:varchar(64);not null;default:''"`
	SessionID        string            `json:"session_id,omitempty" gorm:"type:varchar(64);index;not null;default:''"`
	ConversationType ConversationType  `json:"conversation_type" gorm:"type:varchar(32);index:idx_question_scope;not null"`
	QuestionText     string            `json:"question_text" gorm:"type:text;not null"`
	QuestionHash     string            `json:"question_hash" gorm:"type:varchar(64);index;not null"`
	SemanticKeywords Keywords          `json:"semantic_keywords"`
	QuestionType     QuestionType      `json:"question_type" gorm:"type:varchar(16)"`
	Sentiment        QuestionSentiment `json:"sentiment" gorm:"type:varchar(16)"`
	ResponseQuality  *int              `json:"response_quality,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (ConversationQuestion) TableName() string {
	return "conversation_questions"
}

// QuestionStats 问题统计
type QuestionStats struct {
	Total          int64                      `json:"total"`
	ByType         map[ConversationType]int64 `json:"by_type"`
	RatedCount     int64                      `json:"rated_count"`
	AverageQuality *float64                   `json:"average_quality,omitempty"`
}

// QuestionTrackingRequest 对一次助手回复执行问题追踪的请求
type QuestionTrackingRequest struct {
	UserID           string           `json:"user_id"`
	BookID           string           `json:"book_id"`
	ChapterID        string           `json:"chapter_id,omitempty"`
	SessionID        string           `json:"session_id,omitempty"`
	ConversationType ConversationType `json:"conversation_type"`
	ResponseText     string           `json:"response_text"`
}
