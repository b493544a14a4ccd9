package postgres

import (
	"go.opentelemetry.io/otel/trace"

	apperrors "memoir-ai-api/pkg/errors"
	pkgtracer "memoir-ai-api/pkg/tracer"
)

// dbError 记录 span 错误并包装为结构化数据库错误
func dbError(span trace.Span, action string, err error) error {
	pkgtracer.Fail(span, err)
	return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to "+action)
}
