package conversation

import (
	"context"
	"fmt"

	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/pkg/logger"
)

// QuestionTracker 对助手回复做问题抽取与查重记录
type QuestionTracker interface {
	Track(ctx context.Context, req entity.QuestionTrackingRequest) error
}

// trackBestEffort 在后台执行问题追踪；失败与 panic 只记日志，不影响对话
func trackBestEffort(ctx context.Context, tracker QuestionTracker, req entity.QuestionTrackingRequest) {
	if tracker == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error(ctx, "question tracking panicked", fmt.Errorf("%v", rec), "session_id", req.SessionID)
			}
		}()
		if err := tracker.Track(ctx, req); err != nil {
			logger.Warn(ctx, "question tracking failed", "session_id", req.SessionID, "error", err.Error())
		}
	}()
}
