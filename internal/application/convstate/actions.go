package convstate

import (
	"errors"

	"memoir-ai-api/internal/domain/entity"
	apperrors "memoir-ai-api/pkg/errors"
)

func SetLoading(v bool) Action    { return Action{Type: ActionSetLoading, Flag: v} }
func SetTyping(v bool) Action     { return Action{Type: ActionSetTyping, Flag: v} }
func SetSpeaking(v bool) Action   { return Action{Type: ActionSetSpeaking, Flag: v} }
func SetConnecting(v bool) Action { return Action{Type: ActionSetConnecting, Flag: v} }
func ClearError() Action          { return Action{Type: ActionClearError} }
func Reset() Action               { return Action{Type: ActionReset} }

func SetError(e *Error) Action {
	return Action{Type: ActionSetError, Error: e}
}

// SetErrorFrom 把任意错误转换为状态错误
func SetErrorFrom(err error) Action {
	if err == nil {
		return ClearError()
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return SetError(&Error{Code: appErr.Code, Message: appErr.Summary(), Hint: appErr.Hint})
	}
	return SetError(&Error{Code: apperrors.CodeInternalError, Message: err.Error()})
}

func SetCurrentSession(s *entity.ConversationSession) Action {
	return Action{Type: ActionSetCurrentSession, Session: s}
}

func SetHistory(sessions []*entity.ConversationSession) Action {
	return Action{Type: ActionSetHistory, Sessions: sessions}
}

func AddToHistory(s *entity.ConversationSession) Action {
	return Action{Type: ActionAddToHistory, Session: s}
}

func UpdateSession(s *entity.ConversationSession) Action {
	return Action{Type: ActionUpdateSession, Session: s}
}

func SetContext(cc *entity.ConversationContext) Action {
	return Action{Type: ActionSetContext, Context: cc}
}

func SetDraft(sessionID, draft string) Action {
	return Action{Type: ActionSetDraft, SessionID: sessionID, Draft: draft}
}

func ClearDraft(sessionID string) Action {
	return Action{Type: ActionClearDraft, SessionID: sessionID}
}
