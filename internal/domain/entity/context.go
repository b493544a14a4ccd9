package entity

// UserProfile 用户画像
type UserProfile struct {
	Name       string   `json:"name,omitempty"`
	BirthYear  int      `json:"birth_year,omitempty"`
	Hometown   string   `json:"hometown,omitempty"`
	Occupation string   `json:"occupation,omitempty"`
	Interests  []string `json:"interests,omitempty"`
}

// BookProfile 书籍画像
type BookProfile struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Tone        string `json:"tone,omitempty"`
	Audience    string `json:"audience,omitempty"`
}

// ChapterSummary 章节摘要
type ChapterSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// ConversationContext 由上游画像数据组装的对话上下文快照
type ConversationContext struct {
	UserProfile    *UserProfile     `json:"user_profile,omitempty"`
	BookProfile    *BookProfile     `json:"book_profile,omitempty"`
	CurrentChapter *ChapterSummary  `json:"current_chapter,omitempty"`
	RecentChapters []ChapterSummary `json:"recent_chapters,omitempty"`
	LifeThemes     []string         `json:"life_themes,omitempty"`
}

// Clone 深拷贝，会话和缓存只持有副本
func (c *ConversationContext) Clone() *ConversationContext {
	if c == nil {
		return nil
	}
	cp := &ConversationContext{
		RecentChapters: append([]ChapterSummary(nil), c.RecentChapters...),
		LifeThemes:     append([]string(nil), c.LifeThemes...),
	}
	if c.UserProfile != nil {
		up := *c.UserProfile
		up.Interests = append([]string(nil), c.UserProfile.Interests...)
		cp.UserProfile = &up
	}
	if c.BookProfile != nil {
		bp := *c.BookProfile
		cp.BookProfile = &bp
	}
	if c.CurrentChapter != nil {
		ch := *c.CurrentChapter
		cp.CurrentChapter = &ch
	}
	return cp
}
