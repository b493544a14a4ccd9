package postgres

import (
	"context"
	"fmt"

	"memoir-ai-api/internal/domain/entity"
)

// AutoMigrate 同步对话相关表结构
func (c *Client) AutoMigrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.AutoMigrate")
	defer span.End()

	if err := c.db.WithContext(ctx).AutoMigrate(
		&entity.ConversationSession{},
		&entity.CachedContext{},
		&entity.ConversationQuestion{},
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
