// Package convstate 对话界面状态的纯函数 reducer
package convstate

import (
	"memoir-ai-api/internal/domain/entity"
	apperrors "memoir-ai-api/pkg/errors"
)

// ActionType 动作类型
type ActionType string

const (
	ActionSetLoading        ActionType = "SET_LOADING"
	ActionSetTyping         ActionType = "SET_TYPING"
	ActionSetSpeaking       ActionType = "SET_SPEAKING"
	ActionSetConnecting     ActionType = "SET_CONNECTING"
	ActionSetError          ActionType = "SET_ERROR"
	ActionClearError        ActionType = "CLEAR_ERROR"
	ActionSetCurrentSession ActionType = "SET_CURRENT_SESSION"
	ActionSetHistory        ActionType = "SET_HISTORY"
	ActionAddToHistory      ActionType = "ADD_TO_HISTORY"
	ActionUpdateSession     ActionType = "UPDATE_SESSION"
	ActionSetContext        ActionType = "SET_CONTEXT"
	ActionSetDraft          ActionType = "SET_DRAFT"
	ActionClearDraft        ActionType = "CLEAR_DRAFT"
	ActionReset             ActionType = "RESET"
)

// Error 状态中携带的错误
type Error struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Hint    string              `json:"hint,omitempty"`
}

// State 对话界面状态，reducer 不修改旧值
type State struct {
	IsLoading      bool                          `json:"is_loading"`
	IsTyping       bool                          `json:"is_typing"`
	IsSpeaking     bool                          `json:"is_speaking"`
	IsConnecting   bool                          `json:"is_connecting"`
	Error          *Error                        `json:"error,omitempty"`
	CurrentSession *entity.ConversationSession   `json:"current_session,omitempty"`
	History        []*entity.ConversationSession `json:"history"`
	Context        *entity.ConversationContext   `json:"context,omitempty"`
	Drafts         map[string]string             `json:"drafts"`
}

// Action 带标签的动作
type Action struct {
	Type      ActionType
	Flag      bool
	Error     *Error
	Session   *entity.ConversationSession
	Sessions  []*entity.ConversationSession
	Context   *entity.ConversationContext
	SessionID string
	Draft     string
}

// InitialState 初始状态
func InitialState() State {
	return State{
		History: []*entity.ConversationSession{},
		Drafts:  map[string]string{},
	}
}

// Reduce 返回新状态；未触及的子结构保持引用不变
func Reduce(state State, action Action) State {
	next := state
	switch action.Type {
	case ActionSetLoading:
		next.IsLoading = action.Flag
	case ActionSetTyping:
		next.IsTyping = action.Flag
	case ActionSetSpeaking:
		next.IsSpeaking = action.Flag
	case ActionSetConnecting:
		next.IsConnecting = action.Flag
	case ActionSetError:
		next.Error = action.Error
	case ActionClearError:
		next.Error = nil
	case ActionSetCurrentSession:
		next.CurrentSession = action.Session
	case ActionSetHistory:
		next.History = append([]*entity.ConversationSession{}, action.Sessions...)
	case ActionAddToHistory:
		if action.Session == nil {
			return next
		}
		h := make([]*entity.ConversationSession, 0, len(state.History)+1)
		h = append(h, action.Session)
		next.History = append(h, state.History...)
	case ActionUpdateSession:
		next = updateSession(state, action.Session)
	case ActionSetContext:
		next.Context = action.Context
	case ActionSetDraft:
		next.Drafts = copyDrafts(state.Drafts)
		next.Drafts[action.SessionID] = action.Draft
	case ActionClearDraft:
		if _, ok := state.Drafts[action.SessionID]; !ok {
			return next
		}
		next.Drafts = copyDrafts(state.Drafts)
		delete(next.Drafts, action.SessionID)
	case ActionReset:
		return InitialState()
	}
	return next
}

// updateSession 只替换 id 匹配的历史项；当前会话仅在 id 匹配时替换
func updateSession(state State, updated *entity.ConversationSession) State {
	next := state
	if updated == nil {
		return next
	}
	for i, s := range state.History {
		if s != nil && s.SessionID == updated.SessionID {
			h := append([]*entity.ConversationSession{}, state.History...)
			h[i] = updated
			next.History = h
			break
		}
	}
	if state.CurrentSession != nil && state.CurrentSession.SessionID == updated.SessionID {
		next.CurrentSession = updated
	}
	return next
}

func copyDrafts(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
