// Package question 助手回复中的问题抽取、指纹查重与统计
package question

import (
	"context"
	"fmt"
	"strings"

	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/domain/repository"
	apperrors "memoir-ai-api/pkg/errors"
	"memoir-ai-api/pkg/logger"
	"memoir-ai-api/pkg/metrics"
)

const (
	similarQuestionLimit = 5

	duplicateConfidence = 0.9
	uniqueConfidence    = 0.1
)

// DuplicateCheck 查重结果，Confidence 为粗粒度信号
type DuplicateCheck struct {
	IsDuplicate      bool                           `json:"is_duplicate"`
	SimilarQuestions []*entity.ConversationQuestion `json:"similar_questions,omitempty"`
	Confidence       float64                        `json:"confidence"`
}

// SaveParams 保存问题参数
type SaveParams struct {
	UserID           string
	BookID           string
	ChapterID        string
	SessionID        string
	ConversationType entity.ConversationType
	QuestionText     string
}

// TrackingSummary 一次回复追踪的结果
type TrackingSummary struct {
	Extracted   int                          `json:"extracted"`
	Primary     string                       `json:"primary_question,omitempty"`
	IsDuplicate bool                         `json:"is_duplicate"`
	Saved       *entity.ConversationQuestion `json:"saved,omitempty"`
}

// Service 问题追踪服务
type Service struct {
	repo repository.QuestionRepository
}

// NewService 创建问题追踪服务
func NewService(repo repository.QuestionRepository) *Service {
	return &Service{repo: repo}
}

// ExtractQuestionsFromText 抽取失败时返回空结果
func (s *Service) ExtractQuestionsFromText(ctx context.Context, responseText string) (ex Extraction) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error(ctx, "question extraction panicked", fmt.Errorf("%v", rec))
			ex = Extraction{Questions: []string{}}
		}
	}()
	return Extract(responseText)
}

// AnalyzeQuestion 计算指纹与分类
func (s *Service) AnalyzeQuestion(text string) Analysis {
	return Analyze(text)
}

// CheckQuestionDuplicate 在 (user, book, conversation type) 范围内按指纹精确查重
func (s *Service) CheckQuestionDuplicate(ctx context.Context, userID, bookID string, convType entity.ConversationType, questionText string) (*DuplicateCheck, error) {
	if strings.TrimSpace(questionText) == "" {
		return nil, apperrors.ErrValidationFailed.WithDetail("question_text is required")
	}
	scope := repository.QuestionScope{UserID: userID, BookID: bookID, ConversationType: convType}
	a := Analyze(questionText)

	matches, err := s.repo.FindByHash(ctx, scope, a.Hash)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &DuplicateCheck{Confidence: uniqueConfidence}, nil
	}

	similar, err := s.repo.FindByKeywordOverlap(ctx, scope, a.Keywords, similarQuestionLimit)
	if err != nil {
		return nil, err
	}
	return &DuplicateCheck{IsDuplicate: true, SimilarQuestions: similar, Confidence: duplicateConfidence}, nil
}

// SaveQuestion 分析后无条件写入，是否先查重由调用方决定
func (s *Service) SaveQuestion(ctx context.Context, p SaveParams) (*entity.ConversationQuestion, error) {
	text := strings.TrimSpace(p.QuestionText)
	if text == "" {
		return nil, apperrors.ErrValidationFailed.WithDetail("question_text is required")
	}
	a := Analyze(text)
	q := &entity.ConversationQuestion{
		UserID:           p.UserID,
		BookID:           p.BookID,
		ChapterID:        p.ChapterID,
		SessionID:        p.SessionID,
		ConversationType: p.ConversationType,
		QuestionText:     text,
		QuestionHash:     a.Hash,
		SemanticKeywords: entity.Keywords(a.Keywords),
		QuestionType:     a.Type,
		Sentiment:        a.Sentiment,
	}
	if err := s.repo.Create(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// GetQuestionStats 统计总数、按对话类型计数与已评分问题的平均质量
func (s *Service) GetQuestionStats(ctx context.Context, userID, bookID string) (*entity.QuestionStats, error) {
	rows, err := s.repo.ListByBook(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}

	stats := &entity.QuestionStats{ByType: make(map[entity.ConversationType]int64, len(entity.ConversationTypes))}
	for _, t := range entity.ConversationTypes {
		stats.ByType[t] = 0
	}
	var sum int64
	for _, q := range rows {
		stats.Total++
		if _, ok := stats.ByType[q.ConversationType]; ok {
			stats.ByType[q.ConversationType]++
		}
		if q.ResponseQuality != nil {
			stats.RatedCount++
			sum += int64(*q.ResponseQuality)
		}
	}
	if stats.RatedCount > 0 {
		avg := float64(sum) / float64(stats.RatedCount)
		stats.AverageQuality = &avg
	}
	return stats, nil
}

// UpdateResponseQuality 评分范围 1..5
func (s *Service) UpdateResponseQuality(ctx context.Context, questionID string, rating int) error {
	if rating < 1 || rating > 5 {
		return apperrors.ErrValidationFailed.WithDetail("rating must be between 1 and 5")
	}
	if strings.TrimSpace(questionID) == "" {
		return apperrors.ErrValidationFailed.WithDetail("question id is required")
	}
	return s.repo.UpdateResponseQuality(ctx, questionID, rating)
}

// TrackAssistantResponse 抽取主问题，不重复时才保存
func (s *Service) TrackAssistantResponse(ctx context.Context, req entity.QuestionTrackingRequest) (*TrackingSummary, error) {
	ex := s.ExtractQuestionsFromText(ctx, req.ResponseText)
	summary := &TrackingSummary{Extracted: len(ex.Questions), Primary: ex.PrimaryQuestion}
	if ex.PrimaryQuestion == "" {
		metrics.QuestionTrackedTotal.WithLabelValues("none").Inc()
		return summary, nil
	}

	check, err := s.CheckQuestionDuplicate(ctx, req.UserID, req.BookID, req.ConversationType, ex.PrimaryQuestion)
	if err != nil {
		metrics.QuestionTrackedTotal.WithLabelValues("error").Inc()
		return summary, err
	}
	if check.IsDuplicate {
		summary.IsDuplicate = true
		metrics.QuestionTrackedTotal.WithLabelValues("duplicate").Inc()
		logger.Debug(ctx, "duplicate question skipped", "session_id", req.SessionID, "similar", len(check.SimilarQuestions))
		return summary, nil
	}

	saved, err := s.SaveQuestion(ctx, SaveParams{
		UserID:           req.UserID,
		BookID:           req.BookID,
		ChapterID:        req.ChapterID,
		SessionID:        req.SessionID,
		ConversationType: req.ConversationType,
		QuestionText:     ex.PrimaryQuestion,
	})
	if err != nil {
		metrics.QuestionTrackedTotal.WithLabelValues("error").Inc()
		return summary, err
	}
	summary.Saved = saved
	metrics.QuestionTrackedTotal.WithLabelValues("saved").Inc()
	return summary, nil
}

// Track 供对话处理器同步调用
func (s *Service) Track(ctx context.Context, req entity.QuestionTrackingRequest) error {
	_, err := s.TrackAssistantResponse(ctx, req)
	return err
}
