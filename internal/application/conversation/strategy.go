// Package conversation 编排多轮对话：策略、媒介处理器与调度中心
package conversation

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"memoir-ai-api/internal/domain/entity"
	apperrors "memoir-ai-api/pkg/errors"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// Strategy 按对话类型给出目标与系统提示词，不做 I/O
type Strategy interface {
	Type() entity.ConversationType
	Goals() []string
	OpeningPrompt(ctx context.Context, cc *entity.ConversationContext) (string, error)
	FollowupPrompt(ctx context.Context, cc *entity.ConversationContext, history []entity.ConversationMessage) (string, error)
}

type templateStrategy struct {
	convType entity.ConversationType
	goals    []string
	opening  einoprompt.ChatTemplate
	followup einoprompt.ChatTemplate
}

func (s *templateStrategy) Type() entity.ConversationType {
	return s.convType
}

func (s *templateStrategy) Goals() []string {
	return append([]string(nil), s.goals...)
}

func (s *templateStrategy) OpeningPrompt(ctx context.Context, cc *entity.ConversationContext) (string, error) {
	return renderSystem(ctx, s.opening, map[string]any{
		"context": renderContext(cc),
		"goals":   renderGoals(s.goals),
	})
}

func (s *templateStrategy) FollowupPrompt(ctx context.Context, cc *entity.ConversationContext, history []entity.ConversationMessage) (string, error) {
	return renderSystem(ctx, s.followup, map[string]any{
		"context":           renderContext(cc),
		"goals":             renderGoals(s.goals),
		"turns":             strconv.Itoa(len(history)),
		"last_user_message": lastUserMessage(history),
	})
}

// StrategyRegistry 对话类型到策略的映射
type StrategyRegistry struct {
	strategies map[entity.ConversationType]Strategy
}

// NewStrategyRegistry 注册内置的三种对话策略
func NewStrategyRegistry() (*StrategyRegistry, error) {
	r := &StrategyRegistry{strategies: make(map[entity.ConversationType]Strategy)}
	defs := []struct {
		convType entity.ConversationType
		goals    []string
	}{
		{entity.ConversationTypeInterview, []string{
			"Uncover meaningful memories and the stories behind them",
			"Explore the people who shaped the author's life",
			"Capture vivid sensory details and emotions",
			"Connect personal experiences to the book's larger themes",
		}},
		{entity.ConversationTypeReflection, []string{
			"Identify turning points and what they taught the author",
			"Examine how past experiences shaped present values",
			"Articulate lessons worth passing on to readers",
		}},
		{entity.ConversationTypeBrainstorming, []string{
			"Generate candidate stories and anecdotes for the book",
			"Find fresh angles on familiar memories",
			"Decide which ideas deserve a chapter of their own",
		}},
	}
	for _, d := range defs {
		s, err := newTemplateStrategy(d.convType, d.goals)
		if err != nil {
			return nil, err
		}
		r.strategies[d.convType] = s
	}
	return r, nil
}

func newTemplateStrategy(convType entity.ConversationType, goals []string) (*templateStrategy, error) {
	opening, err := loadTemplate(string(convType) + "_opening")
	if err != nil {
		return nil, err
	}
	followup, err := loadTemplate(string(convType) + "_followup")
	if err != nil {
		return nil, err
	}
	return &templateStrategy{convType: convType, goals: goals, opening: opening, followup: followup}, nil
}

// Get 返回类型对应的策略，未注册时返回 ErrUnknownConversationType
func (r *StrategyRegistry) Get(convType entity.ConversationType) (Strategy, error) {
	s, ok := r.strategies[convType]
	if !ok {
		return nil, apperrors.ErrUnknownConversationType.WithDetail(string(convType))
	}
	return s, nil
}

// Supports 是否为已注册类型
func (r *StrategyRegistry) Supports(convType entity.ConversationType) bool {
	_, ok := r.strategies[convType]
	return ok
}

// Types 已注册类型（有序）
func (r *StrategyRegistry) Types() []entity.ConversationType {
	out := make([]entity.ConversationType, 0, len(r.strategies))
	for t := range r.strategies {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GenerateConversationGoals 返回类型对应的目标列表
func (r *StrategyRegistry) GenerateConversationGoals(convType entity.ConversationType) ([]string, error) {
	s, err := r.Get(convType)
	if err != nil {
		return nil, err
	}
	return s.Goals(), nil
}

func loadTemplate(name string) (einoprompt.ChatTemplate, error) {
	b, err := templatesFS.ReadFile("templates/" + name + ".txt")
	if err != nil {
		return nil, fmt.Errorf("read prompt template %s: %w", name, err)
	}
	return einoprompt.FromMessages(schema.FString, schema.SystemMessage(string(b))), nil
}

func renderSystem(ctx context.Context, tpl einoprompt.ChatTemplate, vars map[string]any) (string, error) {
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("format prompt: empty result")
	}
	return msgs[0].Content, nil
}

func renderGoals(goals []string) string {
	var b strings.Builder
	for i, g := range goals {
		fmt.Fprintf(&b, "%d. %s\n", i+1, g)
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderContext 把上下文快照渲染成提示词片段
func renderContext(cc *entity.ConversationContext) string {
	if cc == nil {
		return "- (no profile information yet)"
	}
	var lines []string
	if up := cc.UserProfile; up != nil {
		line := "- Author: " + fallback(up.Name, "unknown")
		if up.BirthYear > 0 {
			line += fmt.Sprintf(", born %d", up.BirthYear)
		}
		if up.Hometown != "" {
			line += ", from " + up.Hometown
		}
		if up.Occupation != "" {
			line += ", " + up.Occupation
		}
		lines = append(lines, line)
		if len(up.Interests) > 0 {
			lines = append(lines, "- Interests: "+strings.Join(up.Interests, ", "))
		}
	}
	if bp := cc.BookProfile; bp != nil {
		line := "- Book: " + fallback(bp.Title, "untitled")
		if bp.Description != "" {
			line += ". " + bp.Description
		}
		lines = append(lines, line)
		if bp.Tone != "" {
			lines = append(lines, "- Desired tone: "+bp.Tone)
		}
	}
	if ch := cc.CurrentChapter; ch != nil {
		line := "- Current chapter: " + fallback(ch.Title, ch.ID)
		if ch.Summary != "" {
			line += ". " + ch.Summary
		}
		lines = append(lines, line)
	}
	if len(cc.RecentChapters) > 0 {
		titles := make([]string, 0, len(cc.RecentChapters))
		for _, ch := range cc.RecentChapters {
			titles = append(titles, fallback(ch.Title, ch.ID))
		}
		lines = append(lines, "- Recent chapters: "+strings.Join(titles, "; "))
	}
	if len(cc.LifeThemes) > 0 {
		lines = append(lines, "- Life themes: "+strings.Join(cc.LifeThemes, ", "))
	}
	if len(lines) == 0 {
		return "- (no profile information yet)"
	}
	return strings.Join(lines, "\n")
}

func lastUserMessage(history []entity.ConversationMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == entity.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
