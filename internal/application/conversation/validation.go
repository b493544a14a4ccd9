package conversation

import (
	"fmt"
	"strings"
)

// ValidationResult 字段级校验结果，不以错误形式抛出
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

func newValidationResult(errs []string) ValidationResult {
	if errs == nil {
		errs = []string{}
	}
	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// ValidateStartParams 校验开始对话参数
func (m *Mediator) ValidateStartParams(p StartParams) ValidationResult {
	var errs []string
	if strings.TrimSpace(p.UserID) == "" {
		errs = append(errs, "user_id is required")
	}
	if strings.TrimSpace(p.BookID) == "" {
		errs = append(errs, "book_id is required")
	}
	switch {
	case p.ConversationType == "":
		errs = append(errs, "conversation_type is required")
	case !m.strategies.Supports(p.ConversationType):
		errs = append(errs, fmt.Sprintf("unsupported conversation_type: %s", p.ConversationType))
	}
	if p.Context == nil {
		errs = append(errs, "context is required")
	}
	return newValidationResult(errs)
}

// ValidateSendParams 校验发送消息参数
func (m *Mediator) ValidateSendParams(p SendParams) ValidationResult {
	var errs []string
	if p.Session == nil {
		errs = append(errs, "session is required")
	} else if !m.strategies.Supports(p.Session.ConversationType) {
		errs = append(errs, fmt.Sprintf("unsupported conversation_type: %s", p.Session.ConversationType))
	}
	if strings.TrimSpace(p.Message) == "" {
		errs = append(errs, "message is required")
	}
	if strings.TrimSpace(p.UserID) == "" {
		errs = append(errs, "user_id is required")
	} else if p.Session != nil && p.Session.UserID != p.UserID {
		errs = append(errs, "user_id does not match the session owner")
	}
	if p.Context == nil {
		errs = append(errs, "context is required")
	}
	return newValidationResult(errs)
}
