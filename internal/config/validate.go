package config

import (
	"errors"
	"fmt"
)

const placeholderJWTSecret = "change-me"

// Validate 校验对话编排依赖的关键配置；多个问题一并返回
func (c *Config) Validate() error {
	var errs []error

	conv := c.Conversation
	if conv.ContextCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("conversation.context_cache_ttl must be positive, got %s", conv.ContextCacheTTL))
	}
	if conv.CacheSweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("conversation.cache_sweep_interval must be positive, got %s", conv.CacheSweepInterval))
	}
	if conv.AIMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("conversation.ai_max_attempts must be at least 1, got %d", conv.AIMaxAttempts))
	}
	if conv.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("conversation.history_window must not be negative, got %d", conv.HistoryWindow))
	}

	// 写超时早于降级回复完成时，客户端收到的是连接重置而不是兜底消息
	if wt := c.Server.HTTP.WriteTimeout; wt > 0 && conv.AITimeout > 0 && wt <= conv.TurnBudget() {
		errs = append(errs, fmt.Errorf("server.http.write_timeout (%s) must exceed the worst-case AI turn (%s)", wt, conv.TurnBudget()))
	}

	if c.App.Env == "production" && c.Security.JWT.Enabled {
		if s := c.Security.JWT.Secret; s == "" || s == placeholderJWTSecret {
			errs = append(errs, errors.New("security.jwt.secret must be set in production"))
		}
	}
	if c.Features.QuestionTracking.Async && !c.Features.QuestionTracking.Enabled {
		errs = append(errs, errors.New("features.question_tracking.async requires question_tracking.enabled"))
	}

	return errors.Join(errs...)
}
